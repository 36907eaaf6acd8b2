package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// OCRResultRepository — таблица ocr_result.
type OCRResultRepository interface {
	// CreateBatch вставляет строки и заполняет ID и Timestamp.
	CreateBatch(ctx context.Context, results []*model.OCRResult) error
	// List возвращает историю распознаваний организации, новые сначала.
	// validOnly отбрасывает строки без извлечённого номера.
	List(ctx context.Context, orgID string, validOnly bool, limit, offset int) ([]model.LookupHistoryItem, error)
}

type ocrResultRepo struct {
	db DBTX
}

// NewOCRResultRepository создаёт репозиторий результатов OCR.
func NewOCRResultRepository(db DBTX) OCRResultRepository {
	return &ocrResultRepo{db: db}
}

func (r *ocrResultRepo) CreateBatch(ctx context.Context, results []*model.OCRResult) error {
	query := `
		INSERT INTO ocr_result (extracted_text, dot_reading, filename, user_id, org_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, timestamp`

	for _, res := range results {
		err := r.db.QueryRow(ctx, query,
			res.ExtractedText, res.DOTReading, res.Filename, res.UserID, res.OrgID,
		).Scan(&res.ID, &res.Timestamp)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: ссылка ocr_result (%s) на несуществующую запись", ErrNotFound, res.Filename)
			}
			return fmt.Errorf("ошибка сохранения результата OCR %s: %w", res.Filename, err)
		}
	}
	return nil
}

func (r *ocrResultRepo) List(
	ctx context.Context, orgID string, validOnly bool, limit, offset int,
) ([]model.LookupHistoryItem, error) {
	where := "o.org_id = $1"
	if validOnly {
		where += " AND o.dot_reading IS NOT NULL"
	}

	query := fmt.Sprintf(`
		SELECT o.id, o.extracted_text, o.dot_reading, o.filename, o.timestamp, o.user_id, o.org_id,
			c.legal_name, c.phone, c.mailing_address
		FROM ocr_result o
		LEFT JOIN carrier_data c ON c.usdot = o.dot_reading
		WHERE %s
		ORDER BY o.timestamp DESC, o.id DESC
		LIMIT $2 OFFSET $3`, where)

	rows, err := r.db.Query(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории распознаваний: %w", err)
	}
	defer rows.Close()

	var result []model.LookupHistoryItem
	for rows.Next() {
		var it model.LookupHistoryItem
		if err := rows.Scan(
			&it.ID, &it.ExtractedText, &it.DOTReading, &it.Filename, &it.Timestamp, &it.UserID, &it.OrgID,
			&it.LegalName, &it.Phone, &it.MailingAddress,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования результата OCR: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}
