package model

import "time"

// SyncOutcome — исход попытки синхронизации с CRM.
type SyncOutcome string

const (
	SyncSuccess SyncOutcome = "SUCCESS"
	SyncFailed  SyncOutcome = "FAILED"
)

// SObjectAccount — тип объекта CRM, в который выгружаются перевозчики.
const SObjectAccount = "account"

// SyncHistory — запись журнала синхронизации (только вставка).
type SyncHistory struct {
	// ID — UUID записи
	ID          string
	USDOT       string
	Status      SyncOutcome
	SObjectType string
	UserID      string
	OrgID       string
	// SObjectID — идентификатор объекта в CRM, только при успехе
	SObjectID *string
	// Detail — текст результата или ошибки
	Detail *string
	// Timestamp — время попытки; нулевое значение заменяется на now
	Timestamp time.Time
}

// SyncStatus — последнее состояние синхронизации пары (usdot, org_id).
// Каждая новая попытка перезаписывает запись (SCD type 1).
type SyncStatus struct {
	USDOT     string
	OrgID     string
	UserID    string
	Status    SyncOutcome
	SObjectID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncOutcomeRecord — исход выгрузки одного перевозчика.
type SyncOutcomeRecord struct {
	USDOT     string
	Status    SyncOutcome
	SObjectID *string
	Detail    string
}
