package dto

import "github.com/noah-isme/class-measures-api/internal/models"

// CreateResourceRequest captures POST /resources payload.
type CreateResourceRequest struct {
	Name            string                   `json:"name" validate:"required,max=200"`
	Category        string                   `json:"category" validate:"omitempty,max=100"`
	Description     string                   `json:"description"`
	SKU             string                   `json:"sku" validate:"omitempty,max=64"`
	QuantityInStock int                      `json:"quantity_in_stock" validate:"min=0"`
	ReorderLevel    *int                     `json:"reorder_level" validate:"omitempty,min=0"`
	Condition       models.ResourceCondition `json:"condition"`
	Location        string                   `json:"location" validate:"omitempty,max=200"`
	PriceTiers      models.PriceTiers        `json:"price_tiers" validate:"required,min=1"`
}

// UpdateResourceRequest merges the provided fields. Stock moves through the
// adjust endpoint only.
type UpdateResourceRequest struct {
	Name         *string                   `json:"name" validate:"omitempty,min=1,max=200"`
	Category     *string                   `json:"category" validate:"omitempty,max=100"`
	Description  *string                   `json:"description"`
	SKU          *string                   `json:"sku" validate:"omitempty,max=64"`
	ReorderLevel *int                      `json:"reorder_level" validate:"omitempty,min=0"`
	Condition    *models.ResourceCondition `json:"condition"`
	Location     *string                   `json:"location" validate:"omitempty,max=200"`
	PriceTiers   models.PriceTiers         `json:"price_tiers" validate:"omitempty,min=1"`
	Active       *bool                     `json:"active"`
}

// AdjustStockRequest captures POST /resources/:id/adjust payload.
type AdjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// ResourceResponse adds stock indicators to a resource.
type ResourceResponse struct {
	models.Resource
	LowStock       bool    `json:"low_stock"`
	InventoryValue float64 `json:"inventory_value"`
}

// NewResourceResponse builds the response for r.
func NewResourceResponse(r models.Resource) ResourceResponse {
	return ResourceResponse{Resource: r, LowStock: r.LowStock(), InventoryValue: r.InventoryValue()}
}
