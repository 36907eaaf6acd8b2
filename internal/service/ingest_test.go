package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// stubEngine возвращает текст по содержимому файла.
type stubEngine struct {
	texts map[string]string
	errs  map[string]error
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Recognize(_ context.Context, image []byte) (string, error) {
	if err, ok := e.errs[string(image)]; ok {
		return "", err
	}
	return e.texts[string(image)], nil
}

type stubLookuper struct {
	results map[string]model.CarrierLookup
	calls   []string
}

func (l *stubLookuper) Lookup(_ context.Context, usdot string) model.CarrierLookup {
	l.calls = append(l.calls, usdot)
	if r, ok := l.results[usdot]; ok {
		return r
	}
	return model.FailedLookup(usdot)
}

func newTestIngest(engine *stubEngine, lookup *stubLookuper) (*IngestService, *mockOCRResultRepo, *mockCarrierRepo) {
	repos := newMockRepos()
	tx := &fakeTx{repos: repos}
	reconcile := NewReconcileService(repos, tx, testLogger())
	svc := NewIngestService(engine, lookup, reconcile, tx, testLogger())
	return svc, repos.OCRResults.(*mockOCRResultRepo), repos.Carriers.(*mockCarrierRepo)
}

func TestProcessUpload(t *testing.T) {
	engine := &stubEngine{
		texts: map[string]string{
			"a": "TRUCKING CO USDOT 1234567",
			"b": "DOT-1234567 again",
			"c": "no number here",
		},
		errs: map[string]error{"d": errors.New("ocr failed")},
	}
	lookup := &stubLookuper{results: map[string]model.CarrierLookup{"1234567": found("1234567", "ACME")}}
	svc, ocrRepo, carrierRepo := newTestIngest(engine, lookup)

	var stored []*model.OCRResult
	ocrRepo.createBatchFn = func(_ context.Context, rows []*model.OCRResult) error {
		for i, r := range rows {
			r.ID = int64(100 + i)
		}
		stored = rows
		return nil
	}
	var stubs []string
	carrierRepo.ensureStubsFn = func(_ context.Context, usdots []string) (int64, error) {
		stubs = usdots
		return 0, nil
	}

	res, err := svc.ProcessUpload(context.Background(), Actor{UserID: "u", OrgID: "o"}, []UploadFile{
		{Filename: "a.png", Data: []byte("a")},
		{Filename: "b.JPG", Data: []byte("b")},
		{Filename: "c.bmp", Data: []byte("c")},
		{Filename: "d.jpeg", Data: []byte("d")},
		{Filename: "notes.txt", Data: []byte("a")},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if len(res.ProcessedFiles) != 3 {
		t.Errorf("ожидалось 3 обработанных файла, получено %v", res.ProcessedFiles)
	}
	if len(res.InvalidFiles) != 1 || res.InvalidFiles[0] != "notes.txt" {
		t.Errorf("недопустимые файлы: %v", res.InvalidFiles)
	}
	if len(res.FailedFiles) != 1 || res.FailedFiles[0] != "d.jpeg" {
		t.Errorf("ошибочные файлы: %v", res.FailedFiles)
	}
	if len(res.Readings) != 1 || res.Readings[0] != "1234567" {
		t.Errorf("номера: %v", res.Readings)
	}
	if len(lookup.calls) != 1 {
		t.Errorf("ожидался 1 запрос к реестру, получено %d", len(lookup.calls))
	}
	if res.CarriersSaved != 1 {
		t.Errorf("ожидался 1 сохранённый перевозчик, получено %d", res.CarriersSaved)
	}
	if len(stored) != 3 {
		t.Fatalf("ожидалось 3 строки OCR, получено %d", len(stored))
	}
	if stored[2].DOTReading != nil {
		t.Errorf("для файла без номера ожидался nil, получено %v", *stored[2].DOTReading)
	}
	if len(res.ResultIDs) != 3 || res.ResultIDs[0] != 100 {
		t.Errorf("идентификаторы: %v", res.ResultIDs)
	}
	if len(stubs) != 1 || stubs[0] != "1234567" {
		t.Errorf("заготовки перевозчиков: %v", stubs)
	}
	if res.BatchID == "" {
		t.Error("пустой batch id")
	}
}

func TestProcessUpload_NoValidFiles(t *testing.T) {
	engine := &stubEngine{errs: map[string]error{"x": errors.New("boom")}}
	svc, _, _ := newTestIngest(engine, &stubLookuper{})

	_, err := svc.ProcessUpload(context.Background(), Actor{UserID: "u", OrgID: "o"}, []UploadFile{
		{Filename: "x.png", Data: []byte("x")},
		{Filename: "y.gif", Data: []byte("y")},
	})
	if !errors.Is(err, ErrNoValidFiles) {
		t.Fatalf("ожидалась ErrNoValidFiles, получено %v", err)
	}
}

func TestProcessUpload_NoReadingsSkipsRegistry(t *testing.T) {
	engine := &stubEngine{texts: map[string]string{"a": "blank"}}
	lookup := &stubLookuper{}
	svc, _, _ := newTestIngest(engine, lookup)

	res, err := svc.ProcessUpload(context.Background(), Actor{UserID: "u", OrgID: "o"},
		[]UploadFile{{Filename: "a.png", Data: []byte("a")}})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(lookup.calls) != 0 {
		t.Errorf("реестр не должен опрашиваться: %v", lookup.calls)
	}
	if res.CarriersSaved != 0 || len(res.ResultIDs) != 1 {
		t.Errorf("результат: %+v", res)
	}
}

func TestRefreshCarrier(t *testing.T) {
	lookup := &stubLookuper{results: map[string]model.CarrierLookup{"111": found("111", "ACME")}}
	svc, _, carrierRepo := newTestIngest(&stubEngine{}, lookup)

	var upserted *model.Carrier
	carrierRepo.upsertFn = func(_ context.Context, c *model.Carrier) (bool, error) {
		upserted = c
		return false, nil
	}

	c, err := svc.RefreshCarrier(context.Background(), "111")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if upserted == nil || *c.LegalName != "ACME" {
		t.Errorf("карточка не перезаписана: %+v", c)
	}

	if _, err := svc.RefreshCarrier(context.Background(), "222"); !errors.Is(err, ErrUpstream) {
		t.Errorf("ожидалась ErrUpstream, получено %v", err)
	}
}
