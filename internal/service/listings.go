// listings.go — постраничные выборки для дашбордов и выгрузок.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/repository"
)

// Параметры пагинации.
const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Page — смещение и размер страницы.
type Page struct {
	Offset int
	Limit  int
}

// NormalizePage приводит параметры к допустимому диапазону.
func NormalizePage(offset, limit int) Page {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Offset: offset, Limit: limit}
}

// ListingService — чтение перевозчиков и истории распознаваний.
type ListingService struct {
	repos repository.Repos
}

// NewListingService создаёт сервис выборок.
func NewListingService(repos repository.Repos) *ListingService {
	return &ListingService{repos: repos}
}

// ListCarriers — перевозчики организации, новые сначала.
func (s *ListingService) ListCarriers(
	ctx context.Context, orgID string, filter model.CarrierFilter, page Page,
) ([]model.CarrierListItem, error) {
	return s.repos.Engagements.List(ctx, orgID, filter, page.Limit, page.Offset)
}

// GetCarrier — полная карточка перевозчика.
func (s *ListingService) GetCarrier(ctx context.Context, usdot string) (*model.Carrier, error) {
	c, err := s.repos.Carriers.Get(ctx, usdot)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: No carrier found for DOT number: %s", ErrNotFound, usdot)
		}
		return nil, err
	}
	return c, nil
}

// ListLookupHistory — история распознаваний организации.
func (s *ListingService) ListLookupHistory(
	ctx context.Context, orgID string, validOnly bool, page Page,
) ([]model.LookupHistoryItem, error) {
	return s.repos.OCRResults.List(ctx, orgID, validOnly, page.Limit, page.Offset)
}

// ExportCarriers — все перевозчики организации, постранично по MaxLimit.
func (s *ListingService) ExportCarriers(ctx context.Context, orgID string) ([]model.CarrierListItem, error) {
	var all []model.CarrierListItem
	for offset := 0; ; offset += MaxLimit {
		page, err := s.repos.Engagements.List(ctx, orgID, model.CarrierFilter{}, MaxLimit, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < MaxLimit {
			return all, nil
		}
	}
}

// ExportLookupHistory — вся история распознаваний организации.
func (s *ListingService) ExportLookupHistory(ctx context.Context, orgID string) ([]model.LookupHistoryItem, error) {
	var all []model.LookupHistoryItem
	for offset := 0; ; offset += MaxLimit {
		page, err := s.repos.OCRResults.List(ctx, orgID, false, MaxLimit, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < MaxLimit {
			return all, nil
		}
	}
}
