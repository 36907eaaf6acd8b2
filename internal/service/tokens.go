// tokens.go — хранение и обновление OAuth-токенов CRM.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/repository"
	"github.com/bigkaa/dotscan/internal/salesforce"
)

// TokenRefresher обновляет access token по refresh token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*salesforce.Token, error)
}

// TokenService — токены CRM, по одному на (user_id, org_id).
type TokenService struct {
	repo      repository.OAuthTokenRepository
	refresher TokenRefresher
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewTokenService создаёт сервис токенов. ttl — срок жизни access token
// от момента выдачи (провайдер его не сообщает).
func NewTokenService(
	repo repository.OAuthTokenRepository,
	refresher TokenRefresher,
	ttl time.Duration,
	logger *slog.Logger,
) *TokenService {
	return &TokenService{
		repo:      repo,
		refresher: refresher,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "token_service")),
	}
}

// issuedAt берёт время выдачи из поля issued_at (миллисекунды), иначе now.
func (s *TokenService) issuedAt(data map[string]any) time.Time {
	var ms int64
	switch v := data["issued_at"].(type) {
	case string:
		ms, _ = strconv.ParseInt(v, 10, 64)
	case float64:
		ms = int64(v)
	}
	if ms <= 0 {
		return s.now()
	}
	return time.UnixMilli(ms).UTC()
}

// Upsert сохраняет токен пары, заменяя прежний.
func (s *TokenService) Upsert(ctx context.Context, actor Actor, tok *salesforce.Token) (*model.OAuthToken, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: пустой access token", ErrValidation)
	}
	issued := s.issuedAt(tok.Data)
	t := &model.OAuthToken{
		UserID:      actor.UserID,
		OrgID:       actor.OrgID,
		Provider:    model.ProviderSalesforce,
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		IssuedAt:    issued,
		ValidUntil:  issued.Add(s.ttl),
		TokenData:   tok.Data,
	}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		t.RefreshToken = &rt
	}
	if err := s.repo.Upsert(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("Токен CRM сохранён",
		slog.String("user_id", actor.UserID),
		slog.String("org_id", actor.OrgID),
	)
	return t, nil
}

// GetValid возвращает пригодный токен или nil. Истёкший токен
// обновляется, если есть refresh token.
func (s *TokenService) GetValid(ctx context.Context, actor Actor) (*model.OAuthToken, error) {
	t, err := s.repo.Get(ctx, actor.UserID, actor.OrgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if t.AccessToken == "" {
		return nil, nil
	}
	if !t.Expired(s.now()) {
		return t, nil
	}
	if !t.CanRefresh() {
		s.logger.Info("Токен CRM истёк, refresh token отсутствует",
			slog.String("user_id", actor.UserID),
		)
		return nil, nil
	}

	s.logger.Info("Обновление токена CRM",
		slog.String("user_id", actor.UserID),
		slog.String("org_id", actor.OrgID),
	)
	fresh, err := s.refresher.Refresh(ctx, *t.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err) //nolint:errorlint // намеренный двойной wrap
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = *t.RefreshToken
	}
	return s.Upsert(ctx, actor, fresh)
}

// Delete удаляет токен пары. Отсутствие токена не ошибка.
func (s *TokenService) Delete(ctx context.Context, actor Actor) (bool, error) {
	if err := s.repo.Delete(ctx, actor.UserID, actor.OrgID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Токен CRM не найден",
				slog.String("user_id", actor.UserID),
				slog.String("org_id", actor.OrgID),
			)
			return false, nil
		}
		return false, err
	}
	s.logger.Info("Токен CRM удалён",
		slog.String("user_id", actor.UserID),
		slog.String("org_id", actor.OrgID),
	)
	return true, nil
}
