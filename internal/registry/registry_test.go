package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// snapshotJSON — снимок в форме ответа сервиса реестра.
const snapshotJSON = `{
	"usdot": 123456,
	"legal_name": "ACME TRUCKING LLC",
	"dba_name": null,
	"phone": "(555) 123-4567",
	"mailing_address": "PO BOX 1, PHOENIX, AZ 85001",
	"power_units": 12,
	"drivers": "1,204",
	"mcs_150_mileage_year": {"mileage": 1500000, "year": 2023},
	"operation_classification": ["Auth. For Hire", "Private(Property)"],
	"carrier_operation": ["Interstate"],
	"cargo_carried": [],
	"united_states": {
		"inspections": {
			"vehicle": {"inspections": 10, "out_of_service": 2, "out_of_service_percent": "20%", "national_average": "22.26%"}
		},
		"crashes": {"tow": 1, "fatal": 0, "injury": 1, "total": 2}
	},
	"canada": {
		"inspections": {"driver": {"inspections": 4}},
		"crashes": {"total": 0}
	},
	"us_inspections": {"vehicle": {"inspections": 999}},
	"unknown_extra": "ignored"
}`

func decodeSnapshot(t *testing.T) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(snapshotJSON))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		t.Fatalf("ошибка разбора снимка: %v", err)
	}
	return m
}

// TestFlatten проверяет склейку ключей, списки и отброшенный ключ.
func TestFlatten(t *testing.T) {
	flat := Flatten(decodeSnapshot(t))

	if _, ok := flat["us_inspections_vehicle_inspections"]; ok {
		t.Error("us_inspections должен отбрасываться")
	}
	if got := flat["operation_classification"]; got != "Auth. For Hire, Private(Property)" {
		t.Errorf("operation_classification = %v", got)
	}
	if got := flat["cargo_carried"]; got != "" {
		t.Errorf("пустой список должен дать пустую строку, получено %v", got)
	}
	if _, ok := flat["mcs_150_mileage_year_mileage"]; !ok {
		t.Error("ожидался ключ mcs_150_mileage_year_mileage")
	}
	if _, ok := flat["united_states_inspections_vehicle_out_of_service_percent"]; !ok {
		t.Error("ожидался ключ united_states_inspections_vehicle_out_of_service_percent")
	}
}

// TestNormalizeKey проверяет переименование префиксов в колонки.
func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"united_states_inspections_vehicle_inspections": "usa_vehicle_inspections",
		"united_states_crashes_total":                   "usa_crashes_total",
		"canada_inspections_driver_out_of_service":      "canada_driver_out_of_service",
		"canada_crashes_tow":                            "canada_crashes_tow",
		"legal_name":                                    "legal_name",
	}
	for in, want := range tests {
		if got := normalizeKey(in); got != want {
			t.Errorf("normalizeKey(%q) = %q, хотели %q", in, got, want)
		}
	}
}

// TestToCarrier проверяет построение записи из плоского снимка.
func TestToCarrier(t *testing.T) {
	c, err := ToCarrier("123456", Flatten(decodeSnapshot(t)))
	if err != nil {
		t.Fatalf("Ошибка ToCarrier: %v", err)
	}

	if c.USDOT != "123456" {
		t.Errorf("USDOT = %q", c.USDOT)
	}
	if c.LegalName == nil || *c.LegalName != "ACME TRUCKING LLC" {
		t.Errorf("LegalName = %v", c.LegalName)
	}
	if c.DBAName != nil {
		t.Error("DBAName должен остаться nil для null")
	}
	if c.Drivers == nil || *c.Drivers != 1204 {
		t.Errorf("Drivers = %v, хотели 1204", c.Drivers)
	}
	if c.MCS150Mileage == nil || *c.MCS150Mileage != 1500000 {
		t.Errorf("MCS150Mileage = %v", c.MCS150Mileage)
	}
	if c.USAVehicleInspections == nil || *c.USAVehicleInspections != 10 {
		t.Errorf("USAVehicleInspections = %v, us_inspections не должен влиять", c.USAVehicleInspections)
	}
	if c.USAVehicleOutOfServicePct == nil || *c.USAVehicleOutOfServicePct != "20%" {
		t.Errorf("USAVehicleOutOfServicePct = %v", c.USAVehicleOutOfServicePct)
	}
	if c.USACrashesTotal == nil || *c.USACrashesTotal != 2 {
		t.Errorf("USACrashesTotal = %v", c.USACrashesTotal)
	}
	if c.CanadaDriverInspections == nil || *c.CanadaDriverInspections != 4 {
		t.Errorf("CanadaDriverInspections = %v", c.CanadaDriverInspections)
	}
	if c.CanadaCrashesTotal == nil || *c.CanadaCrashesTotal != 0 {
		t.Errorf("CanadaCrashesTotal = %v", c.CanadaCrashesTotal)
	}
}

// TestToCarrier_KeepsRequestedUSDOT проверяет, что номер из снимка
// не подменяет ключ записи.
func TestToCarrier_KeepsRequestedUSDOT(t *testing.T) {
	flat := map[string]any{"usdot": float64(123456), "legal_name": "ACME"}
	c, err := ToCarrier("0123456", flat)
	if err != nil {
		t.Fatalf("Ошибка ToCarrier: %v", err)
	}
	if c.USDOT != "0123456" {
		t.Errorf("USDOT = %q, хотели 0123456", c.USDOT)
	}
	if got := snapshotUSDOT(flat); got != "123456" {
		t.Errorf("snapshotUSDOT = %q, хотели 123456", got)
	}
}

// TestToCarrier_InvalidType проверяет ошибку для нечислового значения.
func TestToCarrier_InvalidType(t *testing.T) {
	_, err := ToCarrier("1", map[string]any{"power_units": "many"})
	if err == nil {
		t.Fatal("ожидалась ошибка для power_units = \"many\"")
	}
}

// TestClient_Lookup проверяет успешный поиск и 404.
func TestClient_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/snapshot/123456", "/snapshot/0123456":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(snapshotJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, 5*time.Second, 1, testLogger())

	found := client.Lookup(context.Background(), "123456")
	if !found.Success {
		t.Fatal("ожидался успешный поиск")
	}
	if found.Carrier.Phone == nil || *found.Carrier.Phone != "(555) 123-4567" {
		t.Errorf("Phone = %v", found.Carrier.Phone)
	}

	// Номер в снимке (123456) не подменяет запрошенный
	padded := client.Lookup(context.Background(), "0123456")
	if !padded.Success || padded.Carrier.USDOT != "0123456" {
		t.Errorf("USDOT = %q (success=%v), хотели 0123456", padded.Carrier.USDOT, padded.Success)
	}

	missing := client.Lookup(context.Background(), "999")
	if missing.Success {
		t.Error("ожидался неуспешный поиск для 404")
	}
	if missing.Carrier.USDOT != "999" || missing.Carrier.LegalName != nil {
		t.Errorf("неуспешный результат должен содержать только номер: %+v", missing.Carrier)
	}
}

// TestClient_LookupServerError проверяет повторы и итоговый неуспех.
func TestClient_LookupServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, 5*time.Second, 2, testLogger())
	if l := client.Lookup(context.Background(), "1"); l.Success {
		t.Error("ожидался неуспешный поиск")
	}
	if calls.Load() != 2 {
		t.Errorf("ожидалось 2 попытки, получено %d", calls.Load())
	}
}

type countingLookuper struct {
	calls   int
	success bool
}

func (l *countingLookuper) Lookup(_ context.Context, usdot string) model.CarrierLookup {
	l.calls++
	if !l.success {
		return model.FailedLookup(usdot)
	}
	return model.CarrierLookup{Carrier: model.Carrier{USDOT: usdot}, Success: true}
}

// TestCache проверяет, что успешные результаты кэшируются, а неуспешные нет.
func TestCache(t *testing.T) {
	ok := &countingLookuper{success: true}
	cache := NewCache(ok, 10, time.Minute)

	cache.Lookup(context.Background(), "1")
	cache.Lookup(context.Background(), "1")
	if ok.calls != 1 {
		t.Errorf("ожидался 1 запрос к источнику, получено %d", ok.calls)
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, хотели 1", cache.Len())
	}

	failing := &countingLookuper{}
	cache = NewCache(failing, 10, time.Minute)
	cache.Lookup(context.Background(), "2")
	cache.Lookup(context.Background(), "2")
	if failing.calls != 2 {
		t.Errorf("неуспешный результат не должен кэшироваться, вызовов: %d", failing.calls)
	}
}
