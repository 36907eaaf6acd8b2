// ingest.go — обработка загрузки фотографий табличек:
// OCR, извлечение номера, поиск в реестре, запись результатов.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/ocr"
	"github.com/bigkaa/dotscan/internal/registry"
	"github.com/bigkaa/dotscan/internal/repository"
)

// UploadFile — один загруженный файл.
type UploadFile struct {
	Filename string
	Data     []byte
}

// UploadResult — итог обработки загрузки.
type UploadResult struct {
	BatchID        string
	ResultIDs      []int64
	ProcessedFiles []string
	InvalidFiles   []string
	FailedFiles    []string
	// Readings — уникальные извлечённые номера в порядке появления
	Readings      []string
	CarriersSaved int
}

// IngestService — конвейер загрузки.
type IngestService struct {
	engine    ocr.Engine
	lookup    registry.Lookuper
	reconcile *ReconcileService
	tx        repository.Transactor
	logger    *slog.Logger
}

// NewIngestService создаёт сервис загрузки.
func NewIngestService(
	engine ocr.Engine,
	lookup registry.Lookuper,
	reconcile *ReconcileService,
	tx repository.Transactor,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		engine:    engine,
		lookup:    lookup,
		reconcile: reconcile,
		tx:        tx,
		logger:    logger.With(slog.String("component", "ingest_service")),
	}
}

// ProcessUpload распознаёт файлы, ищет перевозчиков и сохраняет результаты.
// Ошибка одного файла не прерывает пакет. ErrNoValidFiles — если ни один
// файл не дал результата OCR.
func (s *IngestService) ProcessUpload(ctx context.Context, actor Actor, files []UploadFile) (*UploadResult, error) {
	res := &UploadResult{BatchID: uuid.New().String()}
	log := s.logger.With(
		slog.String("batch_id", res.BatchID),
		slog.String("org_id", actor.OrgID),
	)

	var (
		rows     []*model.OCRResult
		seen     = make(map[string]bool)
		readings []string
	)
	for _, f := range files {
		if !ocr.AllowedFile(f.Filename) {
			log.Warn("Недопустимый тип файла", slog.String("filename", f.Filename))
			res.InvalidFiles = append(res.InvalidFiles, f.Filename)
			continue
		}

		if len(f.Data) == 0 {
			log.Warn("Пустой файл", slog.String("filename", f.Filename))
			res.FailedFiles = append(res.FailedFiles, f.Filename)
			continue
		}

		text, err := s.engine.Recognize(ctx, f.Data)
		if err != nil {
			log.Error("Ошибка распознавания файла",
				slog.String("filename", f.Filename),
				slog.String("error", err.Error()),
			)
			res.FailedFiles = append(res.FailedFiles, f.Filename)
			continue
		}

		reading := ocr.ExtractDOT(text)
		if reading == nil {
			log.Warn("Номер DOT не найден в тексте", slog.String("filename", f.Filename))
		} else if !seen[*reading] {
			seen[*reading] = true
			readings = append(readings, *reading)
		}

		row := model.NewOCRResult(text, reading, f.Filename, actor.UserID, actor.OrgID)
		rows = append(rows, &row)
		res.ProcessedFiles = append(res.ProcessedFiles, f.Filename)
	}

	if len(rows) == 0 {
		return nil, ErrNoValidFiles
	}
	res.Readings = readings

	lookups := make([]model.CarrierLookup, 0, len(readings))
	for _, r := range readings {
		lookups = append(lookups, s.lookup.Lookup(ctx, r))
	}

	if len(lookups) > 0 {
		saved, err := s.reconcile.SaveCarrierDataBulk(ctx, lookups, actor)
		if err != nil {
			return nil, err
		}
		res.CarriersSaved = len(saved)
	}

	err := s.tx.WithinTx(ctx, func(repos repository.Repos) error {
		if _, err := repos.Carriers.EnsureStubs(ctx, readings); err != nil {
			return err
		}
		return repos.OCRResults.CreateBatch(ctx, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения результатов OCR: %w", err)
	}

	res.ResultIDs = make([]int64, 0, len(rows))
	for _, r := range rows {
		res.ResultIDs = append(res.ResultIDs, r.ID)
	}

	log.Info("Загрузка обработана",
		slog.Int("processed", len(res.ProcessedFiles)),
		slog.Int("invalid", len(res.InvalidFiles)),
		slog.Int("failed", len(res.FailedFiles)),
		slog.Int("carriers_saved", res.CarriersSaved),
	)
	return res, nil
}

// RefreshCarrier повторно запрашивает реестр и перезаписывает карточку.
func (s *IngestService) RefreshCarrier(ctx context.Context, usdot string) (*model.Carrier, error) {
	l := s.lookup.Lookup(ctx, usdot)
	if !l.Success {
		return nil, fmt.Errorf("%w: реестр не вернул данные для %s", ErrUpstream, usdot)
	}
	return s.reconcile.SaveCarrierData(ctx, &l.Carrier)
}
