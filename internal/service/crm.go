// crm.go — выгрузка перевозчиков в CRM с записью результатов синхронизации.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/repository"
	"github.com/bigkaa/dotscan/internal/salesforce"
)

// AccountPusher создаёт Account-записи в CRM.
type AccountPusher interface {
	CreateAccounts(ctx context.Context, instanceURL, accessToken string, accounts []salesforce.Account) (*salesforce.PushResult, error)
}

// PushSummary — итог выгрузки.
type PushSummary struct {
	Outcomes  []model.SyncOutcomeRecord
	Succeeded int
	Failed    int
}

// CRMService — выгрузка перевозчиков в CRM.
type CRMService struct {
	tokens   *TokenService
	carriers repository.CarrierRepository
	pusher   AccountPusher
	sync     *SyncService
	logger   *slog.Logger
}

// NewCRMService создаёт сервис выгрузки.
func NewCRMService(
	tokens *TokenService,
	carriers repository.CarrierRepository,
	pusher AccountPusher,
	sync *SyncService,
	logger *slog.Logger,
) *CRMService {
	return &CRMService{
		tokens:   tokens,
		carriers: carriers,
		pusher:   pusher,
		sync:     sync,
		logger:   logger.With(slog.String("component", "crm_service")),
	}
}

// PushCarriers выгружает перевозчиков как Account и записывает исход по
// каждому. Ответ CRM с кодом не 2xx записывается и возвращается как
// ErrCRMRejected.
func (s *CRMService) PushCarriers(ctx context.Context, actor Actor, usdots []string) (*PushSummary, error) {
	if len(usdots) == 0 {
		return nil, fmt.Errorf("%w: пустой список перевозчиков", ErrValidation)
	}

	token, err := s.tokens.GetValid(ctx, actor)
	if err != nil {
		return nil, err
	}
	if token == nil {
		s.logger.Warn("Нет действующего токена CRM",
			slog.String("user_id", actor.UserID),
			slog.String("org_id", actor.OrgID),
		)
		return nil, ErrNoCRMToken
	}
	instanceURL := token.InstanceURL()
	if instanceURL == "" {
		return nil, fmt.Errorf("%w: в токене нет instance_url", ErrNoCRMToken)
	}

	carriers, err := s.carriers.ListByUSDOTs(ctx, usdots)
	if err != nil {
		return nil, err
	}
	if len(carriers) == 0 {
		return nil, fmt.Errorf("%w: No carriers found.", ErrNotFound)
	}

	accounts := make([]salesforce.Account, 0, len(carriers))
	for _, c := range carriers {
		accounts = append(accounts, salesforce.AccountFromCarrier(c))
	}

	res, err := s.pusher.CreateAccounts(ctx, instanceURL, token.AccessToken, accounts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err) //nolint:errorlint // намеренный двойной wrap
	}

	summary := &PushSummary{Outcomes: correlate(carriers, res)}
	for _, o := range summary.Outcomes {
		if o.Status == model.SyncSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	if err := s.sync.RecordOutcomes(ctx, actor, summary.Outcomes); err != nil {
		return nil, err
	}

	if !res.Accepted() {
		return summary, fmt.Errorf("%w: Salesforce error: %s", ErrCRMRejected, res.Body)
	}

	s.logger.Info("Перевозчики выгружены в CRM",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
	)
	return summary, nil
}

// correlate сопоставляет результаты CRM перевозчикам по referenceId.
// Перевозчик без результата считается неуспешным с фрагментом ответа.
func correlate(carriers []*model.Carrier, res *salesforce.PushResult) []model.SyncOutcomeRecord {
	byRef := make(map[string]salesforce.TreeResult)
	if res.Response != nil {
		for _, r := range res.Response.Results {
			byRef[r.ReferenceID] = r
		}
	}

	outcomes := make([]model.SyncOutcomeRecord, 0, len(carriers))
	for _, c := range carriers {
		r, ok := byRef[salesforce.ReferenceID(c.USDOT)]
		switch {
		case ok && r.ID != "":
			id := r.ID
			outcomes = append(outcomes, model.SyncOutcomeRecord{
				USDOT:     c.USDOT,
				Status:    model.SyncSuccess,
				SObjectID: &id,
				Detail:    "Successfully created Account with ID: " + id,
			})
		case ok && len(r.Errors) > 0:
			outcomes = append(outcomes, model.SyncOutcomeRecord{
				USDOT:  c.USDOT,
				Status: model.SyncFailed,
				Detail: r.Detail(),
			})
		default:
			outcomes = append(outcomes, model.SyncOutcomeRecord{
				USDOT:  c.USDOT,
				Status: model.SyncFailed,
				Detail: fmt.Sprintf("HTTP %d: %s", res.StatusCode, res.Body),
			})
		}
	}
	return outcomes
}
