// Пакет auth — аутентификация и сессии dotscan.
// Шифрование сессий AES-256-GCM, OIDC-клиент (Authorization Code + PKCE),
// проверка id_token по JWKS.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Имя cookie зашифрованной сессии.
const SessionCookieName = "dotscan_session"

// Максимальный возраст cookie сессии (24 часа).
const SessionCookieMaxAge = 24 * 60 * 60

// SessionData — данные сессии в зашифрованном cookie.
type SessionData struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
	OrgID   string `json:"org_id"`
	// CRMConnected — пользователь подключил CRM в этой сессии
	CRMConnected bool `json:"crm_connected"`
	// LastActivity — время последнего запроса (Unix timestamp)
	LastActivity int64 `json:"last_activity"`
	// ExpiresAt — срок действия id_token (Unix timestamp)
	ExpiresAt int64 `json:"expires_at"`
}

// Idle сообщает, превышен ли таймаут неактивности к моменту now.
// Сессия без отметки активности не считается простаивающей.
func (s *SessionData) Idle(now time.Time, timeout time.Duration) bool {
	if s.LastActivity == 0 {
		return false
	}
	return now.Sub(time.Unix(s.LastActivity, 0)) > timeout
}

// Touch отмечает активность.
func (s *SessionData) Touch(now time.Time) {
	s.LastActivity = now.Unix()
}

// SessionManager шифрует и дешифрует SessionData в cookie через AES-256-GCM.
type SessionManager struct {
	gcm    cipher.AEAD
	secure bool
}

// NewSessionManager создаёт менеджер сессий.
// key — 32-байтовый ключ (base64) или произвольная строка, хешируемая SHA-256.
// Пустой key — случайный ключ, сессии не переживают рестарт.
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			keyBytes = sha256Key(key)
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &SessionManager{gcm: gcm, secure: secure}, nil
}

// Seal шифрует произвольное значение в base64url-строку.
func (sm *SessionManager) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации: %w", err)
	}

	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := sm.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Open дешифрует строку, полученную от Seal, в v.
func (sm *SessionManager) Open(encrypted string, v any) error {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := sm.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := sm.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("ошибка дешифрования: %w", err)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("ошибка десериализации: %w", err)
	}
	return nil
}

// Encrypt шифрует SessionData.
func (sm *SessionManager) Encrypt(data *SessionData) (string, error) {
	return sm.Seal(data)
}

// Decrypt дешифрует SessionData.
func (sm *SessionManager) Decrypt(encrypted string) (*SessionData, error) {
	var data SessionData
	if err := sm.Open(encrypted, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetSessionCookie устанавливает зашифрованный session cookie.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	encrypted, err := sm.Encrypt(data)
	if err != nil {
		return err
	}
	sm.setCookie(w, SessionCookieName, encrypted, SessionCookieMaxAge)
	return nil
}

// GetSessionFromRequest извлекает SessionData из cookie.
// Возвращает nil, nil если cookie отсутствует.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	return sm.Decrypt(cookie.Value)
}

// ClearSessionCookie удаляет session cookie.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	sm.setCookie(w, SessionCookieName, "", -1)
}

// SetSealedCookie шифрует v в короткоживущий cookie (state OAuth-потоков).
func (sm *SessionManager) SetSealedCookie(w http.ResponseWriter, name string, v any, maxAge int) error {
	sealed, err := sm.Seal(v)
	if err != nil {
		return err
	}
	sm.setCookie(w, name, sealed, maxAge)
	return nil
}

// OpenSealedCookie читает и дешифрует cookie, затем удаляет его (одноразовый).
func (sm *SessionManager) OpenSealedCookie(w http.ResponseWriter, r *http.Request, name string, v any) error {
	cookie, err := r.Cookie(name)
	if err != nil {
		return err
	}
	sm.setCookie(w, name, "", -1)
	return sm.Open(cookie.Value, v)
}

func (sm *SessionManager) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sha256Key хеширует строковый ключ в 32 bytes.
func sha256Key(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}
