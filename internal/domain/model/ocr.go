package model

import (
	"time"
	"unicode/utf8"
)

// Ограничения колонок ocr_result.
const (
	ExtractedTextMaxLen = 250
	FilenameMaxLen      = 250
	DOTReadingMaxLen    = 32
)

// OCRResult — одна строка на загруженное изображение.
// DOTReading == nil означает, что номер не извлечён; строка всё равно хранится.
type OCRResult struct {
	ID            int64
	ExtractedText string
	DOTReading    *string
	Filename      string
	Timestamp     time.Time
	UserID        string
	OrgID         string
}

// NewOCRResult обрезает текстовые поля до размеров колонок.
func NewOCRResult(text string, reading *string, filename, userID, orgID string) OCRResult {
	return OCRResult{
		ExtractedText: Truncate(text, ExtractedTextMaxLen),
		DOTReading:    reading,
		Filename:      Truncate(filename, FilenameMaxLen),
		UserID:        userID,
		OrgID:         orgID,
	}
}

// LookupHistoryItem — строка истории распознаваний с данными перевозчика.
type LookupHistoryItem struct {
	OCRResult
	LegalName      *string
	Phone          *string
	MailingAddress *string
}

// Truncate обрезает строку до n рун.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
