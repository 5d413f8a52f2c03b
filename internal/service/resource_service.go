package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type resourceRepository interface {
	List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error)
	FindByID(ctx context.Context, id string) (*models.Resource, error)
	Create(ctx context.Context, resource *models.Resource) error
	Update(ctx context.Context, resource *models.Resource) error
	Deactivate(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
}

type stockRecorder interface {
	RecordStockMovement(delta int)
}

// ResourceService manages the inventory catalog.
type ResourceService struct {
	repo         resourceRepository
	audit        auditRecorder
	metrics      stockRecorder
	cache        cacheInvalidator
	reorderLevel int
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewResourceService constructs the resource service. defaultReorderLevel is
// applied when a new resource omits reorder_level.
func NewResourceService(repo resourceRepository, audit auditRecorder, metrics stockRecorder, cache cacheInvalidator, defaultReorderLevel int, validate *validator.Validate, logger *zap.Logger) *ResourceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultReorderLevel < 0 {
		defaultReorderLevel = 0
	}
	return &ResourceService{repo: repo, audit: audit, metrics: metrics, cache: cache, reorderLevel: defaultReorderLevel, validator: validate, logger: logger}
}

// List returns resources matching the filter.
func (s *ResourceService) List(ctx context.Context, filter models.ResourceFilter) ([]dto.ResourceResponse, *models.Pagination, error) {
	if filter.Condition != "" {
		if _, err := models.NormalizeCondition(filter.Condition); err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	}
	resources, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalErr(err, "failed to list resources")
	}
	out := make([]dto.ResourceResponse, 0, len(resources))
	for _, r := range resources {
		out = append(out, dto.NewResourceResponse(r))
	}
	return out, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a resource by id.
func (s *ResourceService) Get(ctx context.Context, id string) (*dto.ResourceResponse, error) {
	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "resource not found", "failed to load resource")
	}
	resp := dto.NewResourceResponse(*resource)
	return &resp, nil
}

// Create adds a resource after normalising its condition and price tiers.
func (s *ResourceService) Create(ctx context.Context, req dto.CreateResourceRequest) (*dto.ResourceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid resource payload")
	}
	condition, err := models.NormalizeCondition(req.Condition)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	tiers, err := req.PriceTiers.Normalize()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reorder := s.reorderLevel
	if req.ReorderLevel != nil {
		reorder = *req.ReorderLevel
	}
	resource := &models.Resource{
		Name:            strings.TrimSpace(req.Name),
		Category:        strings.TrimSpace(req.Category),
		Description:     req.Description,
		SKU:             strings.TrimSpace(req.SKU),
		QuantityInStock: req.QuantityInStock,
		ReorderLevel:    reorder,
		Condition:       condition,
		Location:        strings.TrimSpace(req.Location),
		PriceTiers:      tiers,
		Active:          true,
	}
	if err := s.repo.Create(ctx, resource); err != nil {
		return nil, internalErr(err, "failed to create resource")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	resp := dto.NewResourceResponse(*resource)
	return &resp, nil
}

// Update merges the provided fields into the stored resource.
func (s *ResourceService) Update(ctx context.Context, id string, req dto.UpdateResourceRequest) (*dto.ResourceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid resource payload")
	}
	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "resource not found", "failed to load resource")
	}

	assignTrimmed(&resource.Name, req.Name)
	assignTrimmed(&resource.Category, req.Category)
	assignTrimmed(&resource.SKU, req.SKU)
	assignTrimmed(&resource.Location, req.Location)
	if req.Description != nil {
		resource.Description = *req.Description
	}
	if req.ReorderLevel != nil {
		resource.ReorderLevel = *req.ReorderLevel
	}
	if req.Condition != nil {
		if resource.Condition, err = models.NormalizeCondition(*req.Condition); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	}
	if req.PriceTiers != nil {
		if resource.PriceTiers, err = req.PriceTiers.Normalize(); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	}
	if req.Active != nil {
		resource.Active = *req.Active
	}

	if err := s.repo.Update(ctx, resource); err != nil {
		return nil, internalErr(err, "failed to update resource")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	resp := dto.NewResourceResponse(*resource)
	return &resp, nil
}

// Deactivate soft deletes a resource.
func (s *ResourceService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return loadErr(err, "resource not found", "failed to load resource")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return internalErr(err, "failed to deactivate resource")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return nil
}

// Quote prices quantity units using the applicable tier.
func (s *ResourceService) Quote(ctx context.Context, id string, quantity int) (*models.PriceQuote, error) {
	if quantity < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quantity must be at least 1")
	}
	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "resource not found", "failed to load resource")
	}
	tier, ok := resource.PriceTiers.Resolve(quantity)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "resource has no applicable price tier")
	}
	return &models.PriceQuote{
		ResourceID: resource.ID,
		Quantity:   quantity,
		Tier:       tier.Name,
		UnitPrice:  tier.UnitPrice,
		Total:      models.QuoteTotal(tier.UnitPrice, quantity),
	}, nil
}

// Adjust moves stock by delta. The result may not be negative.
func (s *ResourceService) Adjust(ctx context.Context, actor *models.JWTClaims, id string, req dto.AdjustStockRequest) (*dto.ResourceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid stock adjustment")
	}
	quantity, err := s.repo.AdjustStock(ctx, id, req.Delta)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
	case errors.Is(err, repository.ErrInsufficientStock):
		return nil, appErrors.Clone(appErrors.ErrInsufficientStock, "stock cannot go below zero")
	default:
		return nil, internalErr(err, "failed to adjust stock")
	}

	if s.metrics != nil {
		s.metrics.RecordStockMovement(req.Delta)
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     actorID(actor),
			Action:     models.AuditActionStockAdjust,
			Resource:   "resources",
			ResourceID: &id,
			NewValues:  auditJSON(map[string]interface{}{"delta": req.Delta, "reason": req.Reason, "quantity_in_stock": quantity}),
		}); err != nil {
			s.logger.Warn("failed to record stock audit log", zap.Error(err))
		}
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return s.Get(ctx, id)
}
