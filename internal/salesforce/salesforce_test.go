package salesforce

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strp(s string) *string { return &s }

// TestAccountFromCarrier проверяет сопоставление полей перевозчика и Account.
func TestAccountFromCarrier(t *testing.T) {
	c := &model.Carrier{
		USDOT:           "123456",
		DBAName:         strp("ACME"),
		Phone:           strp("555-1234"),
		PhysicalAddress: strp("1 MAIN ST"),
		MailingAddress:  strp("PO BOX 1"),
		EntityType:      strp("CARRIER"),
		USDOTStatus:     strp("ACTIVE"),
		URL:             strp("https://safer.example/123456"),
	}
	a := AccountFromCarrier(c)

	if a.Name != "ACME" {
		t.Errorf("Name = %q, ожидался DBA при пустом legal name", a.Name)
	}
	if a.Attributes.ReferenceID != "carrier_123456" || a.Attributes.Type != "Account" {
		t.Errorf("Attributes = %+v", a.Attributes)
	}
	if a.AccountNumber != "123456" || *a.BillingStreet != "1 MAIN ST" || *a.ShippingStreet != "PO BOX 1" {
		t.Errorf("неверное сопоставление адресов: %+v", a)
	}
	if *a.Type != "CARRIER" || *a.Description != "ACTIVE" {
		t.Errorf("Type/Description = %v/%v", *a.Type, *a.Description)
	}

	data, _ := json.Marshal(a)
	if !strings.Contains(string(data), `"URL__c":"https://safer.example/123456"`) {
		t.Errorf("ожидалось поле URL__c в %s", data)
	}

	if n := AccountFromCarrier(&model.Carrier{USDOT: "1"}).Name; n != "Unknown Carrier" {
		t.Errorf("Name = %q, хотели Unknown Carrier", n)
	}
}

// TestClient_CreateAccounts проверяет запрос и разбор смешанного ответа.
func TestClient_CreateAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/data/v58.0/composite/tree/Account/" {
			t.Errorf("путь = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("Authorization = %q", got)
		}
		var body struct {
			Records []Account `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("ошибка декодирования: %v", err)
		}
		if len(body.Records) != 2 {
			t.Errorf("ожидалось 2 записи, получено %d", len(body.Records))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"hasErrors":true,"results":[
			{"referenceId":"carrier_1","id":"001D000000K1YFjIAN"},
			{"referenceId":"carrier_2","errors":[{"statusCode":"INVALID_FIELD","message":"bad phone","fields":["Phone"]}]}]}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient("v58.0", 5*time.Second, testLogger())
	accounts := []Account{
		AccountFromCarrier(&model.Carrier{USDOT: "1"}),
		AccountFromCarrier(&model.Carrier{USDOT: "2"}),
	}
	res, err := client.CreateAccounts(context.Background(), server.URL+"/", "at-1", accounts)
	if err != nil {
		t.Fatalf("Ошибка CreateAccounts: %v", err)
	}
	if res.Accepted() {
		t.Error("ответ 400 не должен считаться принятым")
	}
	if res.Response == nil || len(res.Response.Results) != 2 {
		t.Fatalf("ожидался разобранный ответ с 2 результатами: %+v", res.Response)
	}
	if got := res.Response.Results[1].Detail(); got != "INVALID_FIELD: bad phone" {
		t.Errorf("Detail = %q", got)
	}
}

// TestClient_CreateAccounts_Unparsable проверяет ответ, который не разбирается.
func TestClient_CreateAccounts_Unparsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`[{"message":"Session expired or invalid","errorCode":"INVALID_SESSION_ID"}]`))
	}))
	t.Cleanup(server.Close)

	client := NewClient("v58.0", 5*time.Second, testLogger())
	res, err := client.CreateAccounts(context.Background(), server.URL, "x", nil)
	if err != nil {
		t.Fatalf("Ошибка CreateAccounts: %v", err)
	}
	if res.Response != nil {
		t.Error("ожидался nil Response для неразборчивого тела")
	}
	if !strings.Contains(res.Body, "INVALID_SESSION_ID") {
		t.Errorf("Body = %q", res.Body)
	}
}

// TestTreeResult_DetailDefaults проверяет подстановку пустых кода и сообщения.
func TestTreeResult_DetailDefaults(t *testing.T) {
	r := TreeResult{Errors: []TreeError{{}, {StatusCode: "A", Message: "b"}}}
	if got := r.Detail(); got != "UNKNOWN: Unknown error; A: b" {
		t.Errorf("Detail = %q", got)
	}
}

// TestOAuth_ExchangeAndRefresh проверяет обмен кода и обновление токена.
func TestOAuth_ExchangeAndRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/oauth2/token" {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		if r.Form.Get("client_id") != "cid" || r.Form.Get("client_secret") != "secret" {
			t.Errorf("учётные данные клиента должны передаваться в теле: %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("redirect_uri") != "https://app.example/salesforce/callback" {
				t.Errorf("redirect_uri = %q", r.Form.Get("redirect_uri"))
			}
			w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer",
				"instance_url":"https://na1.example","issued_at":"1700000000000","signature":"sig"}`))
		case "refresh_token":
			if r.Form.Get("refresh_token") != "rt-1" {
				t.Errorf("refresh_token = %q", r.Form.Get("refresh_token"))
			}
			w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","instance_url":"https://na1.example"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)

	o := NewOAuth(server.URL, "cid", "secret", 5*time.Second)

	authURL, err := url.Parse(o.AuthCodeURL("st", "https://app.example/salesforce/callback"))
	if err != nil {
		t.Fatal(err)
	}
	if authURL.Path != "/services/oauth2/authorize" || authURL.Query().Get("response_type") != "code" {
		t.Errorf("AuthCodeURL = %s", authURL)
	}

	tok, err := o.Exchange(context.Background(), "code-1", "https://app.example/salesforce/callback")
	if err != nil {
		t.Fatalf("Ошибка Exchange: %v", err)
	}
	if tok.AccessToken != "at-1" || tok.RefreshToken != "rt-1" {
		t.Errorf("токен = %+v", tok)
	}
	if tok.Data["instance_url"] != "https://na1.example" || tok.Data["issued_at"] != "1700000000000" {
		t.Errorf("Data = %v", tok.Data)
	}

	refreshed, err := o.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Ошибка Refresh: %v", err)
	}
	if refreshed.AccessToken != "at-2" {
		t.Errorf("AccessToken = %q", refreshed.AccessToken)
	}
	if refreshed.RefreshToken != "rt-1" {
		t.Errorf("прежний refresh token должен сохраниться, получено %q", refreshed.RefreshToken)
	}
}

// TestOAuth_ExchangeEmptyCode проверяет отказ без кода.
func TestOAuth_ExchangeEmptyCode(t *testing.T) {
	o := NewOAuth("login.example", "cid", "secret", time.Second)
	if _, err := o.Exchange(context.Background(), "", "https://x"); err == nil {
		t.Fatal("ожидалась ошибка для пустого кода")
	}
}
