package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type mockResourceRepo struct {
	resources map[string]models.Resource
	created   *models.Resource
}

func (m *mockResourceRepo) List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error) {
	var out []models.Resource
	for _, r := range m.resources {
		if filter.LowStock && !r.LowStock() {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *mockResourceRepo) FindByID(ctx context.Context, id string) (*models.Resource, error) {
	if r, ok := m.resources[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockResourceRepo) Create(ctx context.Context, resource *models.Resource) error {
	resource.ID = "new-resource"
	m.created = resource
	m.resources[resource.ID] = *resource
	return nil
}

func (m *mockResourceRepo) Update(ctx context.Context, resource *models.Resource) error {
	m.resources[resource.ID] = *resource
	return nil
}

func (m *mockResourceRepo) Deactivate(ctx context.Context, id string) error {
	r := m.resources[id]
	r.Active = false
	m.resources[id] = r
	return nil
}

func (m *mockResourceRepo) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	r, ok := m.resources[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if r.QuantityInStock+delta < 0 {
		return 0, repository.ErrInsufficientStock
	}
	r.QuantityInStock += delta
	m.resources[id] = r
	return r.QuantityInStock, nil
}

type fakeStockMetrics struct {
	deltas []int
}

func (f *fakeStockMetrics) RecordStockMovement(delta int) {
	f.deltas = append(f.deltas, delta)
}

func newResourceFixture() (*ResourceService, *mockResourceRepo, *fakeAudit, *fakeStockMetrics) {
	repo := &mockResourceRepo{resources: map[string]models.Resource{
		"r1": {
			ID: "r1", Name: "Workbook", QuantityInStock: 10, ReorderLevel: 3, Condition: models.ConditionGood, Active: true,
			PriceTiers: models.PriceTiers{
				{Name: "Single", MinQuantity: 1, UnitPrice: 12.5},
				{Name: "Class pack", MinQuantity: 10, UnitPrice: 10},
			},
		},
	}}
	audit := &fakeAudit{}
	metrics := &fakeStockMetrics{}
	return NewResourceService(repo, audit, metrics, &fakeInvalidator{}, 5, nil, nil), repo, audit, metrics
}

func TestResourceServiceCreateNormalises(t *testing.T) {
	svc, repo, _, _ := newResourceFixture()

	resp, err := svc.Create(context.Background(), dto.CreateResourceRequest{
		Name:            "Flashcards",
		QuantityInStock: 4,
		PriceTiers: models.PriceTiers{
			{Name: "Bulk", MinQuantity: 20, UnitPrice: 1},
			{Name: "Single", MinQuantity: 1, UnitPrice: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConditionGood, resp.Condition)
	assert.Equal(t, 5, repo.created.ReorderLevel)
	assert.Equal(t, "Single", resp.PriceTiers[0].Name)
	assert.True(t, resp.LowStock)
	assert.Equal(t, 8.0, resp.InventoryValue)
}

func TestResourceServiceCreateRejectsBadTiers(t *testing.T) {
	svc, _, _, _ := newResourceFixture()

	_, err := svc.Create(context.Background(), dto.CreateResourceRequest{
		Name:       "Flashcards",
		PriceTiers: models.PriceTiers{{Name: "Bulk", MinQuantity: 5, UnitPrice: 1}},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), dto.CreateResourceRequest{
		Name:       "Flashcards",
		Condition:  "Broken",
		PriceTiers: models.PriceTiers{{Name: "Single", MinQuantity: 1, UnitPrice: 1}},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResourceServiceQuote(t *testing.T) {
	svc, _, _, _ := newResourceFixture()

	quote, err := svc.Quote(context.Background(), "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, "Single", quote.Tier)
	assert.Equal(t, 37.5, quote.Total)

	quote, err = svc.Quote(context.Background(), "r1", 12)
	require.NoError(t, err)
	assert.Equal(t, "Class pack", quote.Tier)
	assert.Equal(t, 120.0, quote.Total)

	_, err = svc.Quote(context.Background(), "r1", 0)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Quote(context.Background(), "missing", 1)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestResourceServiceAdjust(t *testing.T) {
	svc, _, audit, metrics := newResourceFixture()

	resp, err := svc.Adjust(context.Background(), adminActor, "r1", dto.AdjustStockRequest{Delta: -8, Reason: "handed out"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.QuantityInStock)
	assert.True(t, resp.LowStock)
	assert.Equal(t, []int{-8}, metrics.deltas)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionStockAdjust, audit.logs[0].Action)

	_, err = svc.Adjust(context.Background(), adminActor, "r1", dto.AdjustStockRequest{Delta: -3, Reason: "lost"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInsufficientStock))

	_, err = svc.Adjust(context.Background(), adminActor, "missing", dto.AdjustStockRequest{Delta: 1, Reason: "found"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Adjust(context.Background(), adminActor, "r1", dto.AdjustStockRequest{Delta: 1})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResourceServiceUpdateKeepsStock(t *testing.T) {
	svc, repo, _, _ := newResourceFixture()

	poor := models.ConditionPoor
	resp, err := svc.Update(context.Background(), "r1", dto.UpdateResourceRequest{Name: strPtr(" Workbook v2 "), Condition: &poor})
	require.NoError(t, err)
	assert.Equal(t, "Workbook v2", resp.Name)
	assert.Equal(t, models.ConditionPoor, resp.Condition)
	assert.Equal(t, 10, repo.resources["r1"].QuantityInStock)
}
