package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
	"github.com/noah-isme/class-measures-api/pkg/response"
)

type resourceService interface {
	List(ctx context.Context, filter models.ResourceFilter) ([]dto.ResourceResponse, *models.Pagination, error)
	Get(ctx context.Context, id string) (*dto.ResourceResponse, error)
	Create(ctx context.Context, req dto.CreateResourceRequest) (*dto.ResourceResponse, error)
	Update(ctx context.Context, id string, req dto.UpdateResourceRequest) (*dto.ResourceResponse, error)
	Deactivate(ctx context.Context, id string) error
	Quote(ctx context.Context, id string, quantity int) (*models.PriceQuote, error)
	Adjust(ctx context.Context, actor *models.JWTClaims, id string, req dto.AdjustStockRequest) (*dto.ResourceResponse, error)
}

// ResourceHandler exposes inventory endpoints.
type ResourceHandler struct {
	resources resourceService
}

// NewResourceHandler constructs ResourceHandler.
func NewResourceHandler(resources resourceService) *ResourceHandler {
	return &ResourceHandler{resources: resources}
}

// List godoc
// @Summary List resources
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by name or SKU"
// @Param category query string false "Filter by category"
// @Param condition query string false "Filter by condition"
// @Param low_stock query bool false "Only items at or below reorder level"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /resources [get]
func (h *ResourceHandler) List(c *gin.Context) {
	var filter models.ResourceFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Category = c.Query("category")
	filter.Condition = models.ResourceCondition(c.Query("condition"))
	if low := queryBool(c, "low_stock"); low != nil {
		filter.LowStock = *low
	}
	filter.Active = queryBool(c, "active")
	filter.Page, filter.PageSize = queryPage(c)
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	resources, pagination, err := h.resources.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, pagination)
}

// Get godoc
// @Summary Get resource
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	resource, err := h.resources.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

// Create godoc
// @Summary Create resource
// @Tags Resources
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateResourceRequest true "Resource payload"
// @Success 201 {object} response.Envelope
// @Router /resources [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	var req dto.CreateResourceRequest
	if !bindJSON(c, &req) {
		return
	}
	resource, err := h.resources.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resource)
}

// Update godoc
// @Summary Update resource
// @Tags Resources
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Param payload body dto.UpdateResourceRequest true "Resource payload"
// @Success 200 {object} response.Envelope
// @Router /resources/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	var req dto.UpdateResourceRequest
	if !bindJSON(c, &req) {
		return
	}
	resource, err := h.resources.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

// Delete godoc
// @Summary Deactivate resource
// @Tags Resources
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Success 204
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	if err := h.resources.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Quote godoc
// @Summary Price a purchase quantity
// @Description Resolves the tier whose quantity range contains the requested quantity.
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Param quantity query int true "Quantity"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /resources/{id}/quote [get]
func (h *ResourceHandler) Quote(c *gin.Context) {
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "quantity must be an integer"))
		return
	}
	quote, err := h.resources.Quote(c.Request.Context(), c.Param("id"), quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Adjust godoc
// @Summary Adjust stock
// @Description Applies a signed stock movement. Stock never drops below zero.
// @Tags Resources
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Param payload body dto.AdjustStockRequest true "Stock movement"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /resources/{id}/adjust [post]
func (h *ResourceHandler) Adjust(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	resource, err := h.resources.Adjust(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}
