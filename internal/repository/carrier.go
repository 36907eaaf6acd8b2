package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/dotscan/internal/domain/model"
)

// CarrierRepository — таблица carrier_data.
type CarrierRepository interface {
	// Get возвращает перевозчика по usdot или ErrNotFound.
	Get(ctx context.Context, usdot string) (*model.Carrier, error)
	// ExistingUSDOTs возвращает множество номеров, уже присутствующих в таблице.
	ExistingUSDOTs(ctx context.Context, usdots []string) (map[string]bool, error)
	// Upsert перезаписывает все атрибуты записи (last-write-wins).
	// Возвращает true, если строка была вставлена.
	Upsert(ctx context.Context, c *model.Carrier) (bool, error)
	// EnsureStubs создаёт пустые записи для отсутствующих номеров.
	EnsureStubs(ctx context.Context, usdots []string) (int64, error)
	// ListByUSDOTs возвращает записи в порядке usdot.
	ListByUSDOTs(ctx context.Context, usdots []string) ([]*model.Carrier, error)
}

type carrierRepo struct {
	db DBTX
}

// NewCarrierRepository создаёт репозиторий перевозчиков.
func NewCarrierRepository(db DBTX) CarrierRepository {
	return &carrierRepo{db: db}
}

// Запросы собираются один раз из списка колонок модели.
var (
	carrierColumns = "usdot, " + strings.Join(model.CarrierColumns(), ", ") + ", created_at, updated_at"
	carrierUpsert  = buildCarrierUpsert()
)

func buildCarrierUpsert() string {
	attrs := model.CarrierColumns()
	placeholders := make([]string, 0, len(attrs)+1)
	sets := make([]string, 0, len(attrs)+1)
	placeholders = append(placeholders, "$1")
	for i, col := range attrs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "updated_at = NOW()")

	return fmt.Sprintf(`
		INSERT INTO carrier_data (usdot, %s)
		VALUES (%s)
		ON CONFLICT (usdot) DO UPDATE SET %s
		RETURNING created_at, updated_at, (xmax = 0) AS inserted`,
		strings.Join(attrs, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)
}

// carrierDest — адреса для Scan в порядке carrierColumns.
func carrierDest(c *model.Carrier) []any {
	fields := c.Fields()
	dest := make([]any, 0, len(fields)+3)
	dest = append(dest, &c.USDOT)
	for _, f := range fields {
		dest = append(dest, f.Ptr)
	}
	return append(dest, &c.CreatedAt, &c.UpdatedAt)
}

// carrierArgs — значения для upsert в порядке колонок.
func carrierArgs(c *model.Carrier) []any {
	fields := c.Fields()
	args := make([]any, 0, len(fields)+1)
	args = append(args, c.USDOT)
	for _, f := range fields {
		switch p := f.Ptr.(type) {
		case **string:
			args = append(args, *p)
		case **int64:
			args = append(args, *p)
		}
	}
	return args
}

func (r *carrierRepo) Get(ctx context.Context, usdot string) (*model.Carrier, error) {
	c := &model.Carrier{}
	query := fmt.Sprintf(`SELECT %s FROM carrier_data WHERE usdot = $1`, carrierColumns)
	if err := r.db.QueryRow(ctx, query, usdot).Scan(carrierDest(c)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения перевозчика: %w", err)
	}
	return c, nil
}

func (r *carrierRepo) ExistingUSDOTs(ctx context.Context, usdots []string) (map[string]bool, error) {
	result := make(map[string]bool, len(usdots))
	if len(usdots) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx, `SELECT usdot FROM carrier_data WHERE usdot = ANY($1)`, usdots)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки перевозчиков: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var usdot string
		if err := rows.Scan(&usdot); err != nil {
			return nil, fmt.Errorf("ошибка сканирования usdot: %w", err)
		}
		result[usdot] = true
	}
	return result, rows.Err()
}

func (r *carrierRepo) Upsert(ctx context.Context, c *model.Carrier) (bool, error) {
	var inserted bool
	err := r.db.QueryRow(ctx, carrierUpsert, carrierArgs(c)...).Scan(&c.CreatedAt, &c.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения перевозчика %s: %w", c.USDOT, err)
	}
	return inserted, nil
}

func (r *carrierRepo) EnsureStubs(ctx context.Context, usdots []string) (int64, error) {
	if len(usdots) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO carrier_data (usdot)
		SELECT DISTINCT unnest($1::varchar[])
		ON CONFLICT (usdot) DO NOTHING`, usdots)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания заготовок перевозчиков: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *carrierRepo) ListByUSDOTs(ctx context.Context, usdots []string) ([]*model.Carrier, error) {
	if len(usdots) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM carrier_data WHERE usdot = ANY($1) ORDER BY usdot`, carrierColumns)
	rows, err := r.db.Query(ctx, query, usdots)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения перевозчиков: %w", err)
	}
	defer rows.Close()

	var result []*model.Carrier
	for rows.Next() {
		c := &model.Carrier{}
		if err := rows.Scan(carrierDest(c)...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования перевозчика: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
