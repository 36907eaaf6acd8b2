package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// SyncHistoryRepository — журнал попыток синхронизации (только вставка).
type SyncHistoryRepository interface {
	// Create добавляет запись; пустой ID и нулевой Timestamp заполняются.
	Create(ctx context.Context, h *model.SyncHistory) error
	// ListByUSDOT возвращает попытки пары, новые сначала.
	ListByUSDOT(ctx context.Context, usdot, orgID string, limit int) ([]*model.SyncHistory, error)
	// ListByOrg возвращает попытки организации, опционально одного пользователя.
	ListByOrg(ctx context.Context, orgID string, userID *string, limit int) ([]*model.SyncHistory, error)
}

// SyncStatusRepository — последнее состояние синхронизации пары (SCD type 1).
type SyncStatusRepository interface {
	// Upsert перезаписывает статус пары; created_at сохраняется.
	Upsert(ctx context.Context, s *model.SyncStatus) error
	// Get возвращает статус или ErrNotFound.
	Get(ctx context.Context, usdot, orgID string) (*model.SyncStatus, error)
	// GetForUSDOTs возвращает статусы по номерам; номера без записи отсутствуют в карте.
	GetForUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]*model.SyncStatus, error)
	// ListByOrg возвращает статусы организации, опционально с фильтром по исходу.
	ListByOrg(ctx context.Context, orgID string, status *model.SyncOutcome) ([]*model.SyncStatus, error)
	// Delete удаляет статус пары. ErrNotFound, если записи нет.
	Delete(ctx context.Context, usdot, orgID string) error
}

type syncHistoryRepo struct {
	db DBTX
}

// NewSyncHistoryRepository создаёт репозиторий журнала синхронизации.
func NewSyncHistoryRepository(db DBTX) SyncHistoryRepository {
	return &syncHistoryRepo{db: db}
}

const syncHistoryColumns = `id, usdot, sync_status, sobject_type, user_id, org_id,
	sobject_id, detail, sync_timestamp`

func (r *syncHistoryRepo) Create(ctx context.Context, h *model.SyncHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO sobject_sync_history (id, usdot, sync_status, sobject_type, user_id, org_id,
			sobject_id, detail, sync_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.USDOT, string(h.Status), h.SObjectType, h.UserID, h.OrgID,
		h.SObjectID, h.Detail, h.Timestamp,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: перевозчик %s", ErrNotFound, h.USDOT)
		}
		return fmt.Errorf("ошибка записи журнала синхронизации: %w", err)
	}
	return nil
}

func (r *syncHistoryRepo) ListByUSDOT(ctx context.Context, usdot, orgID string, limit int) ([]*model.SyncHistory, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sobject_sync_history
		WHERE usdot = $1 AND org_id = $2
		ORDER BY sync_timestamp DESC
		LIMIT $3`, syncHistoryColumns)
	return r.query(ctx, query, usdot, orgID, limit)
}

func (r *syncHistoryRepo) ListByOrg(ctx context.Context, orgID string, userID *string, limit int) ([]*model.SyncHistory, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sobject_sync_history
		WHERE org_id = $1 AND ($2::varchar IS NULL OR user_id = $2)
		ORDER BY sync_timestamp DESC
		LIMIT $3`, syncHistoryColumns)
	return r.query(ctx, query, orgID, userID, limit)
}

func (r *syncHistoryRepo) query(ctx context.Context, query string, args ...any) ([]*model.SyncHistory, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала синхронизации: %w", err)
	}
	defer rows.Close()

	var result []*model.SyncHistory
	for rows.Next() {
		h := &model.SyncHistory{}
		var status string
		if err := rows.Scan(
			&h.ID, &h.USDOT, &status, &h.SObjectType, &h.UserID, &h.OrgID,
			&h.SObjectID, &h.Detail, &h.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования журнала: %w", err)
		}
		h.Status = model.SyncOutcome(status)
		result = append(result, h)
	}
	return result, rows.Err()
}

type syncStatusRepo struct {
	db DBTX
}

// NewSyncStatusRepository создаёт репозиторий статусов синхронизации.
func NewSyncStatusRepository(db DBTX) SyncStatusRepository {
	return &syncStatusRepo{db: db}
}

const syncStatusColumns = `usdot, org_id, user_id, sync_status, sobject_id, created_at, updated_at`

func scanSyncStatus(row pgx.Row) (*model.SyncStatus, error) {
	s := &model.SyncStatus{}
	var status string
	err := row.Scan(&s.USDOT, &s.OrgID, &s.UserID, &status, &s.SObjectID, &s.CreatedAt, &s.UpdatedAt)
	s.Status = model.SyncOutcome(status)
	return s, err
}

func (r *syncStatusRepo) Upsert(ctx context.Context, s *model.SyncStatus) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sobject_sync_status (usdot, org_id, user_id, sync_status, sobject_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (usdot, org_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			sync_status = EXCLUDED.sync_status,
			sobject_id = EXCLUDED.sobject_id,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		s.USDOT, s.OrgID, s.UserID, string(s.Status), s.SObjectID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: перевозчик %s", ErrNotFound, s.USDOT)
		}
		return fmt.Errorf("ошибка сохранения статуса синхронизации: %w", err)
	}
	return nil
}

func (r *syncStatusRepo) Get(ctx context.Context, usdot, orgID string) (*model.SyncStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM sobject_sync_status WHERE usdot = $1 AND org_id = $2`, syncStatusColumns)
	s, err := scanSyncStatus(r.db.QueryRow(ctx, query, usdot, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения статуса синхронизации: %w", err)
	}
	return s, nil
}

func (r *syncStatusRepo) GetForUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]*model.SyncStatus, error) {
	result := make(map[string]*model.SyncStatus, len(usdots))
	if len(usdots) == 0 {
		return result, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM sobject_sync_status WHERE org_id = $1 AND usdot = ANY($2)`, syncStatusColumns)
	rows, err := r.db.Query(ctx, query, orgID, usdots)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статусов синхронизации: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSyncStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования статуса: %w", err)
		}
		result[s.USDOT] = s
	}
	return result, rows.Err()
}

func (r *syncStatusRepo) ListByOrg(ctx context.Context, orgID string, status *model.SyncOutcome) ([]*model.SyncStatus, error) {
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}
	query := fmt.Sprintf(`
		SELECT %s FROM sobject_sync_status
		WHERE org_id = $1 AND ($2::varchar IS NULL OR sync_status = $2)
		ORDER BY updated_at DESC`, syncStatusColumns)
	rows, err := r.db.Query(ctx, query, orgID, statusArg)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статусов синхронизации: %w", err)
	}
	defer rows.Close()

	var result []*model.SyncStatus
	for rows.Next() {
		s, err := scanSyncStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования статуса: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *syncStatusRepo) Delete(ctx context.Context, usdot, orgID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sobject_sync_status WHERE usdot = $1 AND org_id = $2`, usdot, orgID)
	if err != nil {
		return fmt.Errorf("ошибка удаления статуса синхронизации: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
