// sync.go — учёт синхронизации с CRM: журнал попыток (только вставка)
// и текущий статус пары (usdot, org_id).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/repository"
)

// Лимиты выборок журнала по умолчанию.
const (
	defaultHistoryLimit    = 100
	defaultOrgHistoryLimit = 1000
)

// SyncService — журнал и статусы синхронизации.
type SyncService struct {
	repos  repository.Repos
	tx     repository.Transactor
	now    func() time.Time
	logger *slog.Logger
}

// NewSyncService создаёт сервис учёта синхронизации.
func NewSyncService(repos repository.Repos, tx repository.Transactor, logger *slog.Logger) *SyncService {
	return &SyncService{
		repos:  repos,
		tx:     tx,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "sync_service")),
	}
}

// CreateSyncHistoryRecord добавляет запись в журнал. Нулевое время
// заменяется текущим, пустой detail сохраняется как NULL.
func (s *SyncService) CreateSyncHistoryRecord(ctx context.Context, h *model.SyncHistory) error {
	if h.Status != model.SyncSuccess && h.Status != model.SyncFailed {
		return fmt.Errorf("%w: недопустимый статус %q", ErrValidation, h.Status)
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = s.now()
	}
	return s.repos.SyncHistory.Create(ctx, h)
}

// UpsertSyncStatus перезаписывает текущий статус пары.
func (s *SyncService) UpsertSyncStatus(ctx context.Context, st *model.SyncStatus) error {
	if st.Status != model.SyncSuccess && st.Status != model.SyncFailed {
		return fmt.Errorf("%w: недопустимый статус %q", ErrValidation, st.Status)
	}
	return s.repos.SyncStatus.Upsert(ctx, st)
}

// RecordOutcomes пишет журнал и статус по каждому исходу одной транзакцией.
func (s *SyncService) RecordOutcomes(ctx context.Context, actor Actor, outcomes []model.SyncOutcomeRecord) error {
	if len(outcomes) == 0 {
		return nil
	}
	ts := s.now()
	err := s.tx.WithinTx(ctx, func(repos repository.Repos) error {
		for _, o := range outcomes {
			var detail *string
			if o.Detail != "" {
				d := o.Detail
				detail = &d
			}
			if err := repos.SyncHistory.Create(ctx, &model.SyncHistory{
				USDOT:       o.USDOT,
				Status:      o.Status,
				SObjectType: model.SObjectAccount,
				UserID:      actor.UserID,
				OrgID:       actor.OrgID,
				SObjectID:   o.SObjectID,
				Detail:      detail,
				Timestamp:   ts,
			}); err != nil {
				return err
			}
			if err := repos.SyncStatus.Upsert(ctx, &model.SyncStatus{
				USDOT:     o.USDOT,
				OrgID:     actor.OrgID,
				UserID:    actor.UserID,
				Status:    o.Status,
				SObjectID: o.SObjectID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка записи результатов синхронизации: %w", err)
	}
	s.logger.Info("Результаты синхронизации записаны",
		slog.String("org_id", actor.OrgID),
		slog.Int("count", len(outcomes)),
	)
	return nil
}

// StatusForUSDOTs возвращает статусы по номерам. Номер без записи
// отсутствует в карте и означает, что синхронизации не было.
func (s *SyncService) StatusForUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]*model.SyncStatus, error) {
	return s.repos.SyncStatus.GetForUSDOTs(ctx, orgID, usdots)
}

// ListSyncHistory возвращает попытки по номеру в организации, новые сначала.
func (s *SyncService) ListSyncHistory(ctx context.Context, usdot, orgID string, limit int) ([]*model.SyncHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.repos.SyncHistory.ListByUSDOT(ctx, usdot, orgID, limit)
}

// ListSyncHistoryByOrg возвращает попытки организации, опционально одного пользователя.
func (s *SyncService) ListSyncHistoryByOrg(ctx context.Context, orgID string, userID *string, limit int) ([]*model.SyncHistory, error) {
	if limit <= 0 {
		limit = defaultOrgHistoryLimit
	}
	return s.repos.SyncHistory.ListByOrg(ctx, orgID, userID, limit)
}

// ListSyncStatusByOrg возвращает статусы организации, опционально по исходу.
func (s *SyncService) ListSyncStatusByOrg(ctx context.Context, orgID string, status *model.SyncOutcome) ([]*model.SyncStatus, error) {
	return s.repos.SyncStatus.ListByOrg(ctx, orgID, status)
}

// DeleteSyncStatus удаляет текущий статус пары (ручная очистка оператором).
// Журнал при этом не меняется.
func (s *SyncService) DeleteSyncStatus(ctx context.Context, usdot, orgID string) error {
	if err := s.repos.SyncStatus.Delete(ctx, usdot, orgID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: статус синхронизации %s", ErrNotFound, usdot)
		}
		return err
	}
	s.logger.Info("Статус синхронизации удалён",
		slog.String("usdot", usdot),
		slog.String("org_id", orgID),
	)
	return nil
}
