// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNoValidFiles — ни один файл загрузки не дал результата OCR.
	ErrNoValidFiles = errors.New("ни один файл не был обработан")
	// ErrNoCRMToken — нет действующего токена CRM, нужно подключиться заново.
	ErrNoCRMToken = errors.New("нет действующего токена CRM")
	// ErrCRMRejected — CRM ответила кодом не 2xx.
	ErrCRMRejected = errors.New("CRM отклонила запрос")
	// ErrUpstream — внешний сервис недоступен.
	ErrUpstream = errors.New("внешний сервис недоступен")
)

// Actor — пользователь и организация, от имени которых выполняется операция.
type Actor struct {
	UserID string
	OrgID  string
}
