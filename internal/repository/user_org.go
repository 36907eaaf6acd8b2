package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// UserOrgRepository — пользователи, организации и членство.
type UserOrgRepository interface {
	// UpsertUser создаёт пользователя или обновляет его профиль.
	UpsertUser(ctx context.Context, u *model.AppUser) error
	// UpsertOrg создаёт организацию или обновляет её имя.
	UpsertOrg(ctx context.Context, o *model.AppOrg) error
	// EnsureMembership создаёт связь, если её нет. Возвращает true при создании.
	EnsureMembership(ctx context.Context, userID, orgID string) (bool, error)
	// GetMembership возвращает членство или ErrNotFound.
	GetMembership(ctx context.Context, userID, orgID string) (*model.Membership, error)
}

type userOrgRepo struct {
	db DBTX
}

// NewUserOrgRepository создаёт репозиторий пользователей и организаций.
func NewUserOrgRepository(db DBTX) UserOrgRepository {
	return &userOrgRepo{db: db}
}

func (r *userOrgRepo) UpsertUser(ctx context.Context, u *model.AppUser) error {
	query := `
		INSERT INTO app_user (user_id, user_email, name, first_name, last_name, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (user_id) DO UPDATE SET
			user_email = EXCLUDED.user_email,
			name = EXCLUDED.name,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name
		RETURNING is_active, created_at`

	err := r.db.QueryRow(ctx, query,
		u.UserID, u.Email, u.Name, u.FirstName, u.LastName,
	).Scan(&u.IsActive, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return nil
}

func (r *userOrgRepo) UpsertOrg(ctx context.Context, o *model.AppOrg) error {
	query := `
		INSERT INTO app_org (org_id, org_name, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (org_id) DO UPDATE SET org_name = EXCLUDED.org_name
		RETURNING is_active, created_at`

	if err := r.db.QueryRow(ctx, query, o.OrgID, o.OrgName).Scan(&o.IsActive, &o.CreatedAt); err != nil {
		return fmt.Errorf("ошибка сохранения организации: %w", err)
	}
	return nil
}

func (r *userOrgRepo) EnsureMembership(ctx context.Context, userID, orgID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_org_membership (user_id, org_id, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (user_id, org_id) DO NOTHING`, userID, orgID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: пользователь или организация не существует", ErrNotFound)
		}
		return false, fmt.Errorf("ошибка сохранения членства: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userOrgRepo) GetMembership(ctx context.Context, userID, orgID string) (*model.Membership, error) {
	m := &model.Membership{}
	err := r.db.QueryRow(ctx, `
		SELECT user_id, org_id, is_active
		FROM user_org_membership
		WHERE user_id = $1 AND org_id = $2`, userID, orgID,
	).Scan(&m.UserID, &m.OrgID, &m.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения членства: %w", err)
	}
	return m, nil
}
