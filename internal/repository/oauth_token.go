package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// OAuthTokenRepository — таблица oauth_token, ключ (user_id, org_id).
type OAuthTokenRepository interface {
	// Upsert создаёт или перезаписывает токен пары.
	Upsert(ctx context.Context, t *model.OAuthToken) error
	// Get возвращает токен или ErrNotFound.
	Get(ctx context.Context, userID, orgID string) (*model.OAuthToken, error)
	// Delete удаляет токен. ErrNotFound, если его не было.
	Delete(ctx context.Context, userID, orgID string) error
}

type oauthTokenRepo struct {
	db DBTX
}

// NewOAuthTokenRepository создаёт репозиторий OAuth-токенов.
func NewOAuthTokenRepository(db DBTX) OAuthTokenRepository {
	return &oauthTokenRepo{db: db}
}

func (r *oauthTokenRepo) Upsert(ctx context.Context, t *model.OAuthToken) error {
	data := t.TokenData
	if data == nil {
		data = map[string]any{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO oauth_token (user_id, org_id, provider, access_token, refresh_token,
			token_type, issued_at, valid_until, token_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, org_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			issued_at = EXCLUDED.issued_at,
			valid_until = EXCLUDED.valid_until,
			token_data = EXCLUDED.token_data`,
		t.UserID, t.OrgID, t.Provider, t.AccessToken, t.RefreshToken,
		t.TokenType, t.IssuedAt, t.ValidUntil, data,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения OAuth-токена: %w", err)
	}
	return nil
}

func (r *oauthTokenRepo) Get(ctx context.Context, userID, orgID string) (*model.OAuthToken, error) {
	t := &model.OAuthToken{}
	var tokenType *string
	err := r.db.QueryRow(ctx, `
		SELECT user_id, org_id, provider, access_token, refresh_token,
			token_type, issued_at, valid_until, token_data
		FROM oauth_token
		WHERE user_id = $1 AND org_id = $2`, userID, orgID,
	).Scan(
		&t.UserID, &t.OrgID, &t.Provider, &t.AccessToken, &t.RefreshToken,
		&tokenType, &t.IssuedAt, &t.ValidUntil, &t.TokenData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения OAuth-токена: %w", err)
	}
	if tokenType != nil {
		t.TokenType = *tokenType
	}
	return t, nil
}

func (r *oauthTokenRepo) Delete(ctx context.Context, userID, orgID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM oauth_token WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		return fmt.Errorf("ошибка удаления OAuth-токена: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
