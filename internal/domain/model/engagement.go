package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// RentalNotesMaxLen — ограничение колонки rental_notes.
const RentalNotesMaxLen = 360

// ErrInvalidChange — изменение engagement не прошло декодирование.
var ErrInvalidChange = errors.New("недопустимое изменение")

// Engagement — взаимодействие организации с перевозчиком
// (таблица carrier_engagement_status, ключ (usdot, org_id)).
type Engagement struct {
	USDOT     string
	OrgID     string
	UserID    string
	CreatedAt time.Time

	Interested     FlagState
	Contacted      FlagState
	FollowedUp     FlagState
	Emailed        FlagState
	FollowUpByDate *time.Time
	RentalNotes    *string
}

// FlagState — булев флаг с отметкой, кем и когда он установлен.
type FlagState struct {
	Value    bool
	At       *time.Time
	ByUserID *string
}

// NewEngagement возвращает пустую запись с атрибуцией.
func NewEngagement(usdot, userID, orgID string) Engagement {
	return Engagement{USDOT: usdot, UserID: userID, OrgID: orgID}
}

// EngagementFlag — один из четырёх флагов взаимодействия.
type EngagementFlag string

const (
	FlagInterested EngagementFlag = "carrier_interested"
	FlagContacted  EngagementFlag = "carrier_contacted"
	FlagFollowedUp EngagementFlag = "carrier_followed_up"
	FlagEmailed    EngagementFlag = "carrier_emailed"
)

// Valid проверяет, что флаг входит в закрытый набор.
func (f EngagementFlag) Valid() bool {
	switch f {
	case FlagInterested, FlagContacted, FlagFollowedUp, FlagEmailed:
		return true
	}
	return false
}

// TimestampColumn — колонка времени установки флага.
func (f EngagementFlag) TimestampColumn() string { return string(f) + "_timestamp" }

// ByUserColumn — колонка автора установки флага.
func (f EngagementFlag) ByUserColumn() string { return string(f) + "_by_user_id" }

// Имена полей, которые не являются флагами.
const (
	fieldFollowUpByDate = "carrier_follow_up_by_date"
	fieldRentalNotes    = "rental_notes"
)

// EngagementChange — закрытое множество допустимых изменений engagement.
// Реализации: FlagChange, FollowUpDateChange, RentalNotesChange.
type EngagementChange interface {
	Target() string
	isEngagementChange()
}

// FlagChange устанавливает флаг вместе с отметкой времени и автора.
type FlagChange struct {
	USDOT string
	Flag  EngagementFlag
	Value bool
}

// FollowUpDateChange задаёт или сбрасывает (Date == nil) дату follow-up.
type FollowUpDateChange struct {
	USDOT string
	Date  *time.Time
}

// RentalNotesChange заменяет заметки; пустая строка очищает колонку.
type RentalNotesChange struct {
	USDOT string
	Notes string
}

func (c FlagChange) Target() string         { return c.USDOT }
func (c FollowUpDateChange) Target() string { return c.USDOT }
func (c RentalNotesChange) Target() string  { return c.USDOT }

func (FlagChange) isEngagementChange()         {}
func (FollowUpDateChange) isEngagementChange() {}
func (RentalNotesChange) isEngagementChange()  {}

// rawChange — форма изменения на проводе: {"usdot","field","value"}.
type rawChange struct {
	USDOT json.RawMessage `json:"usdot"`
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// DecodeEngagementChanges разбирает тело {"changes":[...]}.
// Любое недопустимое изменение отклоняет весь запрос.
func DecodeEngagementChanges(r io.Reader) ([]EngagementChange, error) {
	var body struct {
		Changes []json.RawMessage `json:"changes"`
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: некорректный JSON: %v", ErrInvalidChange, err)
	}
	if len(body.Changes) == 0 {
		return nil, fmt.Errorf("%w: список changes пуст", ErrInvalidChange)
	}

	changes := make([]EngagementChange, 0, len(body.Changes))
	for i, raw := range body.Changes {
		ch, err := DecodeEngagementChange(raw)
		if err != nil {
			return nil, fmt.Errorf("changes[%d]: %w", i, err)
		}
		changes = append(changes, ch)
	}
	return changes, nil
}

// DecodeEngagementChange разбирает одно изменение в конкретный вариант.
func DecodeEngagementChange(data []byte) (EngagementChange, error) {
	var raw rawChange
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}

	usdot, err := decodeUSDOT(raw.USDOT)
	if err != nil {
		return nil, err
	}

	if flag := EngagementFlag(raw.Field); flag.Valid() {
		var v bool
		if err := strictUnmarshal(raw.Value, &v); err != nil {
			return nil, fmt.Errorf("%w: поле %s ожидает boolean", ErrInvalidChange, raw.Field)
		}
		return FlagChange{USDOT: usdot, Flag: flag, Value: v}, nil
	}

	switch raw.Field {
	case fieldFollowUpByDate:
		date, err := decodeDate(raw.Value)
		if err != nil {
			return nil, err
		}
		return FollowUpDateChange{USDOT: usdot, Date: date}, nil

	case fieldRentalNotes:
		var notes string
		if err := strictUnmarshal(raw.Value, &notes); err != nil {
			return nil, fmt.Errorf("%w: поле %s ожидает строку", ErrInvalidChange, raw.Field)
		}
		if utf8.RuneCountInString(notes) > RentalNotesMaxLen {
			return nil, fmt.Errorf("%w: %s длиннее %d символов", ErrInvalidChange, raw.Field, RentalNotesMaxLen)
		}
		return RentalNotesChange{USDOT: usdot, Notes: notes}, nil
	}

	return nil, fmt.Errorf("%w: неизвестное поле %q", ErrInvalidChange, raw.Field)
}

// decodeUSDOT принимает номер строкой или числом.
func decodeUSDOT(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: usdot должен быть строкой или числом", ErrInvalidChange)
		}
		s = n.String()
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: usdot не задан", ErrInvalidChange)
	}
	return s, nil
}

// decodeDate принимает YYYY-MM-DD, RFC 3339 или null.
func decodeDate(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := strictUnmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s ожидает дату строкой", ErrInvalidChange, fieldFollowUpByDate)
	}
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: некорректная дата %q", ErrInvalidChange, s)
}

// strictUnmarshal запрещает null и несовпадение типов.
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("значение отсутствует")
	}
	return json.Unmarshal(raw, v)
}

// CarrierListItem — строка списка перевозчиков организации.
type CarrierListItem struct {
	USDOT          string
	LegalName      *string
	Phone          *string
	MailingAddress *string
	CreatedAt      time.Time
	Interested     bool
	Contacted      bool
	FollowedUp     bool
	Emailed        bool
	FollowUpByDate *time.Time
	RentalNotes    *string
}

// CarrierFilter — фильтры списка перевозчиков. nil — без фильтра.
type CarrierFilter struct {
	Interested *bool
	Contacted  *bool
}
