// reconcile.go — согласование результатов поиска в реестре с таблицами
// carrier_data и carrier_engagement_status.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/repository"
)

// errBatchAbandoned откатывает транзакцию пакета без ошибки для вызывающего.
var errBatchAbandoned = errors.New("пакет отменён")

// StagedCarrier — подготовленная к записи карточка перевозчика.
type StagedCarrier struct {
	Carrier *model.Carrier
	// Exists — строка уже есть в carrier_data и будет перезаписана
	Exists bool
}

// ReconcileService — запись перевозчиков и engagement.
type ReconcileService struct {
	repos  repository.Repos
	tx     repository.Transactor
	now    func() time.Time
	logger *slog.Logger
}

// NewReconcileService создаёт сервис согласования.
func NewReconcileService(repos repository.Repos, tx repository.Transactor, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		repos:  repos,
		tx:     tx,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "reconcile_service")),
	}
}

// validateCarrier проверяет ограничения схемы carrier_data.
func validateCarrier(c *model.Carrier) error {
	if c.USDOT == "" {
		return fmt.Errorf("%w: пустой usdot", ErrValidation)
	}
	if utf8.RuneCountInString(c.USDOT) > model.DOTReadingMaxLen {
		return fmt.Errorf("%w: usdot длиннее %d символов", ErrValidation, model.DOTReadingMaxLen)
	}
	return nil
}

// GenerateCarrierRecords готовит карточки для всех результатов поиска,
// включая неуспешные. Ошибка валидации одной карточки прерывает весь пакет.
func (s *ReconcileService) GenerateCarrierRecords(
	ctx context.Context, repos repository.Repos, lookups []model.CarrierLookup,
) ([]StagedCarrier, error) {
	usdots := make([]string, 0, len(lookups))
	for i := range lookups {
		if err := validateCarrier(&lookups[i].Carrier); err != nil {
			return nil, err
		}
		usdots = append(usdots, lookups[i].Carrier.USDOT)
	}

	existing, err := repos.Carriers.ExistingUSDOTs(ctx, usdots)
	if err != nil {
		return nil, err
	}

	staged := make([]StagedCarrier, 0, len(lookups))
	for i := range lookups {
		c := lookups[i].Carrier
		staged = append(staged, StagedCarrier{Carrier: &c, Exists: existing[c.USDOT]})
		if existing[c.USDOT] {
			s.logger.Debug("Перевозчик существует, запись будет перезаписана", slog.String("usdot", c.USDOT))
		}
	}
	return staged, nil
}

// GenerateEngagementRecords готовит пустые записи engagement для номеров,
// у которых ещё нет записи в организации. Повторы внутри вызова отбрасываются.
func (s *ReconcileService) GenerateEngagementRecords(
	ctx context.Context, repos repository.Repos, usdots []string, actor Actor,
) ([]*model.Engagement, error) {
	existing, err := repos.Engagements.ExistingUSDOTs(ctx, actor.OrgID, usdots)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(usdots))
	var records []*model.Engagement
	for _, usdot := range usdots {
		if existing[usdot] || seen[usdot] {
			s.logger.Debug("Engagement уже существует, пропуск",
				slog.String("usdot", usdot),
				slog.String("org_id", actor.OrgID),
			)
			continue
		}
		seen[usdot] = true
		e := model.NewEngagement(usdot, actor.UserID, actor.OrgID)
		records = append(records, &e)
	}
	return records, nil
}

// SaveCarrierDataBulk записывает карточки и engagement одной транзакцией.
// engagement создаётся только для успешных поисков. Если число карточек
// не совпадает с числом новых engagement, пакет не записывается и
// возвращается пустой список.
func (s *ReconcileService) SaveCarrierDataBulk(
	ctx context.Context, lookups []model.CarrierLookup, actor Actor,
) ([]*model.Carrier, error) {
	successful := make([]string, 0, len(lookups))
	for _, l := range lookups {
		if l.Success {
			successful = append(successful, l.Carrier.USDOT)
		}
	}

	var saved []*model.Carrier
	err := s.tx.WithinTx(ctx, func(repos repository.Repos) error {
		staged, err := s.GenerateCarrierRecords(ctx, repos, lookups)
		if err != nil {
			return err
		}
		engagements, err := s.GenerateEngagementRecords(ctx, repos, successful, actor)
		if err != nil {
			return err
		}

		if len(staged) == 0 || len(engagements) == 0 || len(staged) != len(engagements) {
			s.logger.Warn("Нет согласованных записей перевозчиков для сохранения",
				slog.Int("carriers", len(staged)),
				slog.Int("engagements", len(engagements)),
			)
			return errBatchAbandoned
		}

		for _, sc := range staged {
			if _, err := repos.Carriers.Upsert(ctx, sc.Carrier); err != nil {
				return err
			}
			saved = append(saved, sc.Carrier)
		}
		for _, e := range engagements {
			if _, err := repos.Engagements.Create(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errBatchAbandoned) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения перевозчиков: %w", err)
	}

	s.logger.Info("Перевозчики сохранены", slog.Int("count", len(saved)))
	return saved, nil
}

// SaveCarrierData перезаписывает одну карточку перевозчика.
func (s *ReconcileService) SaveCarrierData(ctx context.Context, c *model.Carrier) (*model.Carrier, error) {
	if err := validateCarrier(c); err != nil {
		return nil, err
	}
	inserted, err := s.repos.Carriers.Upsert(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения перевозчика: %w", err)
	}
	s.logger.Info("Перевозчик сохранён",
		slog.String("usdot", c.USDOT),
		slog.Bool("inserted", inserted),
	)
	return c, nil
}

// UpdateCarrierEngagement применяет изменения одной транзакцией.
// Если записи engagement для какого-либо номера нет, ничего не применяется.
func (s *ReconcileService) UpdateCarrierEngagement(
	ctx context.Context, actor Actor, changes []model.EngagementChange,
) ([]*model.Engagement, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: пустой список изменений", ErrValidation)
	}

	now := s.now()
	updated := make([]*model.Engagement, 0, len(changes))
	err := s.tx.WithinTx(ctx, func(repos repository.Repos) error {
		for _, ch := range changes {
			e, err := repos.Engagements.ApplyChange(ctx, actor.OrgID, actor.UserID, ch, now)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w: No carrier found for DOT number: %s", ErrNotFound, ch.Target())
				}
				return err
			}
			updated = append(updated, e)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка обновления engagement: %w", err)
	}

	s.logger.Info("Engagement обновлён",
		slog.String("org_id", actor.OrgID),
		slog.Int("changes", len(changes)),
	)
	return updated, nil
}
