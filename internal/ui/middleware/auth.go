// Пакет middleware — HTTP middleware пользовательских сессий.
// auth.go — чтение сессии из cookie, таймаут неактивности, защита маршрутов.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/dotscan/internal/api/errors"
	"github.com/bigkaa/dotscan/internal/service"
	"github.com/bigkaa/dotscan/internal/ui/auth"
)

// contextKey — тип для ключей контекста сессии.
type contextKey string

const (
	// ContextKeySession — данные сессии в контексте запроса.
	ContextKeySession contextKey = "session"
)

// LoginPath — страница входа.
const LoginPath = "/login"

// TokenRevoker удаляет сохранённый токен CRM при истечении сессии.
type TokenRevoker interface {
	Delete(ctx context.Context, actor service.Actor) (bool, error)
}

// Sessions — middleware пользовательских сессий.
type Sessions struct {
	sessionManager *auth.SessionManager
	tokens         TokenRevoker
	timeout        time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// NewSessions создаёт middleware сессий. tokens может быть nil (CRM не настроена).
func NewSessions(
	sessionManager *auth.SessionManager,
	tokens TokenRevoker,
	timeout time.Duration,
	logger *slog.Logger,
) *Sessions {
	return &Sessions{
		sessionManager: sessionManager,
		tokens:         tokens,
		timeout:        timeout,
		now:            time.Now,
		logger:         logger.With(slog.String("component", "session_middleware")),
	}
}

// Middleware читает сессию и применяет таймаут неактивности.
// Простаивающая сессия завершается: токен CRM удаляется, cookie очищается,
// redirect на /login. Активная сессия получает новую отметку активности.
// Запрос без сессии проходит дальше без неё.
func (s *Sessions) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := s.sessionManager.GetSessionFromRequest(r)
			if err != nil {
				s.logger.Debug("Ошибка чтения сессии",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				// Повреждённый cookie — очищаем
				s.sessionManager.ClearSessionCookie(w)
				session = nil
			}

			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			now := s.now()
			if session.Idle(now, s.timeout) {
				s.expire(r.Context(), session)
				s.sessionManager.ClearSessionCookie(w)
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}

			session.Touch(now)
			if err := s.sessionManager.SetSessionCookie(w, session); err != nil {
				s.logger.Error("Ошибка обновления session cookie",
					slog.String("error", err.Error()),
				)
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// expire удаляет токен CRM истёкшей сессии.
func (s *Sessions) expire(ctx context.Context, session *auth.SessionData) {
	s.logger.Info("Сессия истекла по неактивности",
		slog.String("user_id", session.UserID),
		slog.String("org_id", session.OrgID),
	)
	if !session.CRMConnected || s.tokens == nil {
		return
	}
	actor := service.Actor{UserID: session.UserID, OrgID: session.OrgID}
	if _, err := s.tokens.Delete(ctx, actor); err != nil {
		s.logger.Warn("Не удалось удалить токен CRM истёкшей сессии",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// RequirePage пропускает только аутентифицированные запросы,
// остальные перенаправляются на /login.
func RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			http.Redirect(w, r, LoginPath, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPI пропускает только аутентифицированные запросы,
// остальные получают 401 в JSON.
func RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			apierrors.Unauthorized(w, "Пользователь не аутентифицирован")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext извлекает SessionData из контекста запроса.
// Возвращает nil если сессия не найдена.
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, ok := ctx.Value(ContextKeySession).(*auth.SessionData)
	if !ok {
		return nil
	}
	return session
}

// ActorFromContext возвращает пользователя и организацию текущей сессии.
func ActorFromContext(ctx context.Context) (service.Actor, bool) {
	session := SessionFromContext(ctx)
	if session == nil {
		return service.Actor{}, false
	}
	return service.Actor{UserID: session.UserID, OrgID: session.OrgID}, true
}

// WithSession помещает сессию в контекст (для тестов обработчиков).
func WithSession(ctx context.Context, session *auth.SessionData) context.Context {
	return context.WithValue(ctx, ContextKeySession, session)
}
