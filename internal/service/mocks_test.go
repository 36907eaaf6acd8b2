package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/bigkaa/dotscan/internal/domain/model"
	"github.com/bigkaa/dotscan/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strp(s string) *string { return &s }

// --- Mock repositories ---

type mockUserOrgRepo struct {
	upsertUserFn       func(ctx context.Context, u *model.AppUser) error
	upsertOrgFn        func(ctx context.Context, o *model.AppOrg) error
	ensureMembershipFn func(ctx context.Context, userID, orgID string) (bool, error)
	getMembershipFn    func(ctx context.Context, userID, orgID string) (*model.Membership, error)
}

func (m *mockUserOrgRepo) UpsertUser(ctx context.Context, u *model.AppUser) error {
	if m.upsertUserFn != nil {
		return m.upsertUserFn(ctx, u)
	}
	return nil
}

func (m *mockUserOrgRepo) UpsertOrg(ctx context.Context, o *model.AppOrg) error {
	if m.upsertOrgFn != nil {
		return m.upsertOrgFn(ctx, o)
	}
	return nil
}

func (m *mockUserOrgRepo) EnsureMembership(ctx context.Context, userID, orgID string) (bool, error) {
	if m.ensureMembershipFn != nil {
		return m.ensureMembershipFn(ctx, userID, orgID)
	}
	return true, nil
}

func (m *mockUserOrgRepo) GetMembership(ctx context.Context, userID, orgID string) (*model.Membership, error) {
	if m.getMembershipFn != nil {
		return m.getMembershipFn(ctx, userID, orgID)
	}
	return nil, repository.ErrNotFound
}

type mockCarrierRepo struct {
	getFn          func(ctx context.Context, usdot string) (*model.Carrier, error)
	existingFn     func(ctx context.Context, usdots []string) (map[string]bool, error)
	upsertFn       func(ctx context.Context, c *model.Carrier) (bool, error)
	ensureStubsFn  func(ctx context.Context, usdots []string) (int64, error)
	listByUSDOTsFn func(ctx context.Context, usdots []string) ([]*model.Carrier, error)
}

func (m *mockCarrierRepo) Get(ctx context.Context, usdot string) (*model.Carrier, error) {
	if m.getFn != nil {
		return m.getFn(ctx, usdot)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCarrierRepo) ExistingUSDOTs(ctx context.Context, usdots []string) (map[string]bool, error) {
	if m.existingFn != nil {
		return m.existingFn(ctx, usdots)
	}
	return map[string]bool{}, nil
}

func (m *mockCarrierRepo) Upsert(ctx context.Context, c *model.Carrier) (bool, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, c)
	}
	return true, nil
}

func (m *mockCarrierRepo) EnsureStubs(ctx context.Context, usdots []string) (int64, error) {
	if m.ensureStubsFn != nil {
		return m.ensureStubsFn(ctx, usdots)
	}
	return int64(len(usdots)), nil
}

func (m *mockCarrierRepo) ListByUSDOTs(ctx context.Context, usdots []string) ([]*model.Carrier, error) {
	if m.listByUSDOTsFn != nil {
		return m.listByUSDOTsFn(ctx, usdots)
	}
	return nil, nil
}

type mockEngagementRepo struct {
	existingFn    func(ctx context.Context, orgID string, usdots []string) (map[string]bool, error)
	createFn      func(ctx context.Context, e *model.Engagement) (bool, error)
	getFn         func(ctx context.Context, usdot, orgID string) (*model.Engagement, error)
	applyChangeFn func(ctx context.Context, orgID, actorID string, ch model.EngagementChange, now time.Time) (*model.Engagement, error)
	listFn        func(ctx context.Context, orgID string, filter model.CarrierFilter, limit, offset int) ([]model.CarrierListItem, error)
}

func (m *mockEngagementRepo) ExistingUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]bool, error) {
	if m.existingFn != nil {
		return m.existingFn(ctx, orgID, usdots)
	}
	return map[string]bool{}, nil
}

func (m *mockEngagementRepo) Create(ctx context.Context, e *model.Engagement) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, e)
	}
	return true, nil
}

func (m *mockEngagementRepo) Get(ctx context.Context, usdot, orgID string) (*model.Engagement, error) {
	if m.getFn != nil {
		return m.getFn(ctx, usdot, orgID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockEngagementRepo) ApplyChange(
	ctx context.Context, orgID, actorID string, ch model.EngagementChange, now time.Time,
) (*model.Engagement, error) {
	if m.applyChangeFn != nil {
		return m.applyChangeFn(ctx, orgID, actorID, ch, now)
	}
	return nil, repository.ErrNotFound
}

func (m *mockEngagementRepo) List(
	ctx context.Context, orgID string, filter model.CarrierFilter, limit, offset int,
) ([]model.CarrierListItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, orgID, filter, limit, offset)
	}
	return nil, nil
}

type mockOCRResultRepo struct {
	createBatchFn func(ctx context.Context, results []*model.OCRResult) error
	listFn        func(ctx context.Context, orgID string, validOnly bool, limit, offset int) ([]model.LookupHistoryItem, error)
}

func (m *mockOCRResultRepo) CreateBatch(ctx context.Context, results []*model.OCRResult) error {
	if m.createBatchFn != nil {
		return m.createBatchFn(ctx, results)
	}
	for i, r := range results {
		r.ID = int64(i + 1)
	}
	return nil
}

func (m *mockOCRResultRepo) List(
	ctx context.Context, orgID string, validOnly bool, limit, offset int,
) ([]model.LookupHistoryItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, orgID, validOnly, limit, offset)
	}
	return nil, nil
}

type mockTokenRepo struct {
	upsertFn func(ctx context.Context, t *model.OAuthToken) error
	getFn    func(ctx context.Context, userID, orgID string) (*model.OAuthToken, error)
	deleteFn func(ctx context.Context, userID, orgID string) error
}

func (m *mockTokenRepo) Upsert(ctx context.Context, t *model.OAuthToken) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, t)
	}
	return nil
}

func (m *mockTokenRepo) Get(ctx context.Context, userID, orgID string) (*model.OAuthToken, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, orgID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockTokenRepo) Delete(ctx context.Context, userID, orgID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, orgID)
	}
	return nil
}

type mockSyncHistoryRepo struct {
	createFn      func(ctx context.Context, h *model.SyncHistory) error
	listByUSDOTFn func(ctx context.Context, usdot, orgID string, limit int) ([]*model.SyncHistory, error)
	listByOrgFn   func(ctx context.Context, orgID string, userID *string, limit int) ([]*model.SyncHistory, error)
}

func (m *mockSyncHistoryRepo) Create(ctx context.Context, h *model.SyncHistory) error {
	if m.createFn != nil {
		return m.createFn(ctx, h)
	}
	return nil
}

func (m *mockSyncHistoryRepo) ListByUSDOT(ctx context.Context, usdot, orgID string, limit int) ([]*model.SyncHistory, error) {
	if m.listByUSDOTFn != nil {
		return m.listByUSDOTFn(ctx, usdot, orgID, limit)
	}
	return nil, nil
}

func (m *mockSyncHistoryRepo) ListByOrg(ctx context.Context, orgID string, userID *string, limit int) ([]*model.SyncHistory, error) {
	if m.listByOrgFn != nil {
		return m.listByOrgFn(ctx, orgID, userID, limit)
	}
	return nil, nil
}

type mockSyncStatusRepo struct {
	upsertFn       func(ctx context.Context, s *model.SyncStatus) error
	getFn          func(ctx context.Context, usdot, orgID string) (*model.SyncStatus, error)
	getForUSDOTsFn func(ctx context.Context, orgID string, usdots []string) (map[string]*model.SyncStatus, error)
	listByOrgFn    func(ctx context.Context, orgID string, status *model.SyncOutcome) ([]*model.SyncStatus, error)
	deleteFn       func(ctx context.Context, usdot, orgID string) error
}

func (m *mockSyncStatusRepo) Upsert(ctx context.Context, s *model.SyncStatus) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, s)
	}
	return nil
}

func (m *mockSyncStatusRepo) Get(ctx context.Context, usdot, orgID string) (*model.SyncStatus, error) {
	if m.getFn != nil {
		return m.getFn(ctx, usdot, orgID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockSyncStatusRepo) GetForUSDOTs(ctx context.Context, orgID string, usdots []string) (map[string]*model.SyncStatus, error) {
	if m.getForUSDOTsFn != nil {
		return m.getForUSDOTsFn(ctx, orgID, usdots)
	}
	return map[string]*model.SyncStatus{}, nil
}

func (m *mockSyncStatusRepo) ListByOrg(ctx context.Context, orgID string, status *model.SyncOutcome) ([]*model.SyncStatus, error) {
	if m.listByOrgFn != nil {
		return m.listByOrgFn(ctx, orgID, status)
	}
	return nil, nil
}

func (m *mockSyncStatusRepo) Delete(ctx context.Context, usdot, orgID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, usdot, orgID)
	}
	return nil
}

// newMockRepos возвращает набор моков с поведением по умолчанию.
func newMockRepos() repository.Repos {
	return repository.Repos{
		UserOrgs:    &mockUserOrgRepo{},
		OCRResults:  &mockOCRResultRepo{},
		Carriers:    &mockCarrierRepo{},
		Engagements: &mockEngagementRepo{},
		Tokens:      &mockTokenRepo{},
		SyncHistory: &mockSyncHistoryRepo{},
		SyncStatus:  &mockSyncStatusRepo{},
	}
}

// fakeTx выполняет fn с теми же моками без реальной транзакции.
type fakeTx struct {
	repos repository.Repos
	calls int
}

func (f *fakeTx) WithinTx(_ context.Context, fn func(repository.Repos) error) error {
	f.calls++
	return fn(f.repos)
}
