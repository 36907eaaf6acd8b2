// members.go — регистрация пользователя и организации при входе.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/repository"
)

// MembershipService — пользователи, организации и членство.
type MembershipService struct {
	tx     repository.Transactor
	logger *slog.Logger
}

// NewMembershipService создаёт сервис членства.
func NewMembershipService(tx repository.Transactor, logger *slog.Logger) *MembershipService {
	return &MembershipService{
		tx:     tx,
		logger: logger.With(slog.String("component", "membership_service")),
	}
}

// Register создаёт или обновляет пользователя и организацию и связывает их.
// Существующее членство не меняется. Возвращает действующую организацию.
func (s *MembershipService) Register(ctx context.Context, id model.Identity) (model.AppOrg, error) {
	if id.UserID == "" {
		return model.AppOrg{}, fmt.Errorf("%w: пустой идентификатор пользователя", ErrValidation)
	}
	org := id.EffectiveOrg()

	var created bool
	err := s.tx.WithinTx(ctx, func(repos repository.Repos) error {
		if err := repos.UserOrgs.UpsertUser(ctx, &model.AppUser{
			UserID:    id.UserID,
			Email:     id.Email,
			Name:      id.Name,
			FirstName: id.FirstName,
			LastName:  id.LastName,
			IsActive:  true,
		}); err != nil {
			return err
		}
		if err := repos.UserOrgs.UpsertOrg(ctx, &org); err != nil {
			return err
		}
		var err error
		created, err = repos.UserOrgs.EnsureMembership(ctx, id.UserID, org.OrgID)
		return err
	})
	if err != nil {
		return model.AppOrg{}, fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}

	if created {
		s.logger.Info("Пользователь добавлен в организацию",
			slog.String("user_id", id.UserID),
			slog.String("org_id", org.OrgID),
		)
	}
	return org, nil
}
