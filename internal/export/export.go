// Пакет export формирует выгрузки перевозчиков и истории распознаваний
// в CSV и XLSX.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// ErrUnknownFormat — формат выгрузки не поддерживается.
var ErrUnknownFormat = errors.New("неизвестный формат выгрузки")

// Format — формат файла выгрузки.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

// ParseFormat разбирает значение параметра format. Пустое значение — CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType — MIME-тип ответа.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Filename — имя файла для Content-Disposition.
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// Table — таблица выгрузки: лист, заголовок и строки.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// CarriersTable строит выгрузку перевозчиков организации.
func CarriersTable(items []model.CarrierListItem) Table {
	t := Table{
		Sheet: "Carriers",
		Header: []string{
			"DOT Number", "Legal Name", "Phone Number", "Mailing Address", "Created At",
			"Client Contacted?", "Carrier Followed Up?", "Carrier Follow Up by Date", "Carrier Interested",
		},
		Rows: make([][]string, 0, len(items)),
	}
	for _, it := range items {
		t.Rows = append(t.Rows, []string{
			it.USDOT,
			deref(it.LegalName),
			deref(it.Phone),
			deref(it.MailingAddress),
			it.CreatedAt.Format(timestampLayout),
			strconv.FormatBool(it.Contacted),
			strconv.FormatBool(it.FollowedUp),
			formatDate(it.FollowUpByDate),
			strconv.FormatBool(it.Interested),
		})
	}
	return t
}

// LookupHistoryTable строит выгрузку истории распознаваний.
func LookupHistoryTable(items []model.LookupHistoryItem) Table {
	t := Table{
		Sheet:  "Lookup History",
		Header: []string{"DOT Number", "Legal Name", "Phone Number", "Mailing Address", "Created At", "Filename"},
		Rows:   make([][]string, 0, len(items)),
	}
	for _, it := range items {
		t.Rows = append(t.Rows, []string{
			deref(it.DOTReading),
			deref(it.LegalName),
			deref(it.Phone),
			deref(it.MailingAddress),
			it.Timestamp.Format(timestampLayout),
			it.Filename,
		})
	}
	return t
}

// Write записывает таблицу в w в заданном формате.
func Write(w io.Writer, f Format, t Table) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, t)
	case FormatXLSX:
		return writeXLSX(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("ошибка записи заголовка CSV: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("ошибка записи CSV: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), t.Sheet); err != nil {
		return fmt.Errorf("ошибка создания листа: %w", err)
	}

	if err := setRow(f, t.Sheet, 1, t.Header); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := setRow(f, t.Sheet, i+2, row); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("ошибка создания стиля: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(t.Header), 1)
	if err != nil {
		return fmt.Errorf("ошибка адреса ячейки: %w", err)
	}
	if err := f.SetCellStyle(t.Sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("ошибка оформления заголовка: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("ошибка записи XLSX: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("ошибка адреса ячейки: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("ошибка записи строки %d: %w", rowNum, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
