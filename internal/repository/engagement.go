package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// EngagementRepository — таблица carrier_engagement_status.
type EngagementRepository interface {
	// ExistingUSDOTs возвращает номера, для которых у организации уже есть запись.
	ExistingUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]bool, error)
	// Create вставляет запись; при конфликте (usdot, org_id) ничего не делает
	// и возвращает false.
	Create(ctx context.Context, e *model.Engagement) (bool, error)
	// Get возвращает запись или ErrNotFound.
	Get(ctx context.Context, usdot, orgID string) (*model.Engagement, error)
	// ApplyChange применяет изменение одним UPDATE. ErrNotFound, если записи нет.
	ApplyChange(ctx context.Context, orgID, actorID string, ch model.EngagementChange, now time.Time) (*model.Engagement, error)
	// List возвращает записи организации вместе с данными перевозчика.
	List(ctx context.Context, orgID string, filter model.CarrierFilter, limit, offset int) ([]model.CarrierListItem, error)
}

type engagementRepo struct {
	db DBTX
}

// NewEngagementRepository создаёт репозиторий engagement.
func NewEngagementRepository(db DBTX) EngagementRepository {
	return &engagementRepo{db: db}
}

const engagementColumns = `usdot, org_id, user_id, created_at,
	carrier_interested, carrier_interested_timestamp, carrier_interested_by_user_id,
	carrier_contacted, carrier_contacted_timestamp, carrier_contacted_by_user_id,
	carrier_followed_up, carrier_followed_up_timestamp, carrier_followed_up_by_user_id,
	carrier_emailed, carrier_emailed_timestamp, carrier_emailed_by_user_id,
	carrier_follow_up_by_date, rental_notes`

func scanEngagement(row pgx.Row) (*model.Engagement, error) {
	e := &model.Engagement{}
	err := row.Scan(
		&e.USDOT, &e.OrgID, &e.UserID, &e.CreatedAt,
		&e.Interested.Value, &e.Interested.At, &e.Interested.ByUserID,
		&e.Contacted.Value, &e.Contacted.At, &e.Contacted.ByUserID,
		&e.FollowedUp.Value, &e.FollowedUp.At, &e.FollowedUp.ByUserID,
		&e.Emailed.Value, &e.Emailed.At, &e.Emailed.ByUserID,
		&e.FollowUpByDate, &e.RentalNotes,
	)
	return e, err
}

func (r *engagementRepo) ExistingUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]bool, error) {
	result := make(map[string]bool, len(usdots))
	if len(usdots) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT usdot FROM carrier_engagement_status
		WHERE org_id = $1 AND usdot = ANY($2)`, orgID, usdots)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки engagement: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var usdot string
		if err := rows.Scan(&usdot); err != nil {
			return nil, fmt.Errorf("ошибка сканирования usdot: %w", err)
		}
		result[usdot] = true
	}
	return result, rows.Err()
}

func (r *engagementRepo) Create(ctx context.Context, e *model.Engagement) (bool, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO carrier_engagement_status (usdot, org_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (usdot, org_id) DO NOTHING
		RETURNING created_at`, e.USDOT, e.OrgID, e.UserID,
	).Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: перевозчик %s или организация %s не существует", ErrNotFound, e.USDOT, e.OrgID)
		}
		return false, fmt.Errorf("ошибка создания engagement: %w", err)
	}
	return true, nil
}

func (r *engagementRepo) Get(ctx context.Context, usdot, orgID string) (*model.Engagement, error) {
	query := fmt.Sprintf(`SELECT %s FROM carrier_engagement_status WHERE usdot = $1 AND org_id = $2`, engagementColumns)
	e, err := scanEngagement(r.db.QueryRow(ctx, query, usdot, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения engagement: %w", err)
	}
	return e, nil
}

func (r *engagementRepo) ApplyChange(
	ctx context.Context, orgID, actorID string, ch model.EngagementChange, now time.Time,
) (*model.Engagement, error) {
	var (
		set  string
		args = []any{ch.Target(), orgID}
	)

	switch c := ch.(type) {
	case model.FlagChange:
		if !c.Flag.Valid() {
			return nil, fmt.Errorf("недопустимый флаг %q", c.Flag)
		}
		// Флаг, время и автор меняются одним оператором
		set = fmt.Sprintf("%s = $3, %s = $4, %s = $5",
			c.Flag, c.Flag.TimestampColumn(), c.Flag.ByUserColumn())
		args = append(args, c.Value, now, actorID)
	case model.FollowUpDateChange:
		set = "carrier_follow_up_by_date = $3"
		args = append(args, c.Date)
	case model.RentalNotesChange:
		set = "rental_notes = $3"
		var notes *string
		if c.Notes != "" {
			notes = &c.Notes
		}
		args = append(args, notes)
	default:
		return nil, fmt.Errorf("неизвестный тип изменения %T", ch)
	}

	query := fmt.Sprintf(`
		UPDATE carrier_engagement_status SET %s
		WHERE usdot = $1 AND org_id = $2
		RETURNING %s`, set, engagementColumns)

	e, err := scanEngagement(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления engagement: %w", err)
	}
	return e, nil
}

func (r *engagementRepo) List(
	ctx context.Context, orgID string, filter model.CarrierFilter, limit, offset int,
) ([]model.CarrierListItem, error) {
	conditions := []string{"e.org_id = $1"}
	args := []any{orgID}
	argNum := 2

	if filter.Interested != nil {
		conditions = append(conditions, fmt.Sprintf("e.carrier_interested = $%d", argNum))
		args = append(args, *filter.Interested)
		argNum++
	}
	if filter.Contacted != nil {
		conditions = append(conditions, fmt.Sprintf("e.carrier_contacted = $%d", argNum))
		args = append(args, *filter.Contacted)
		argNum++
	}

	query := fmt.Sprintf(`
		SELECT e.usdot, c.legal_name, c.phone, c.mailing_address, e.created_at,
			e.carrier_interested, e.carrier_contacted, e.carrier_followed_up, e.carrier_emailed,
			e.carrier_follow_up_by_date, e.rental_notes
		FROM carrier_engagement_status e
		JOIN carrier_data c ON c.usdot = e.usdot
		WHERE %s
		ORDER BY e.created_at DESC, e.usdot
		LIMIT $%d OFFSET $%d`, strings.Join(conditions, " AND "), argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка перевозчиков: %w", err)
	}
	defer rows.Close()

	var result []model.CarrierListItem
	for rows.Next() {
		var it model.CarrierListItem
		if err := rows.Scan(
			&it.USDOT, &it.LegalName, &it.Phone, &it.MailingAddress, &it.CreatedAt,
			&it.Interested, &it.Contacted, &it.FollowedUp, &it.Emailed,
			&it.FollowUpByDate, &it.RentalNotes,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования перевозчика: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}
