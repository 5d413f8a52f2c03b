package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"sort"
	"time"
)

// ResourceCondition grades the physical state of a resource.
type ResourceCondition string

const (
	ConditionExcellent ResourceCondition = "Excellent"
	ConditionGood      ResourceCondition = "Good"
	ConditionFair      ResourceCondition = "Fair"
	ConditionPoor      ResourceCondition = "Poor"
)

// NormalizeCondition applies the Good default and rejects unknown values.
func NormalizeCondition(c ResourceCondition) (ResourceCondition, error) {
	v, ok := normalizeEnum(c, ConditionGood, ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor)
	if !ok {
		return c, fmt.Errorf("invalid condition %q", c)
	}
	return v, nil
}

// PriceTier is a unit price that applies from MinQuantity units upward.
type PriceTier struct {
	Name        string  `json:"name"`
	MinQuantity int     `json:"min_quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// PriceTiers is stored as JSONB, sorted by MinQuantity.
type PriceTiers []PriceTier

// Value marshals tiers to JSON for persistence.
func (t PriceTiers) Value() (driver.Value, error) {
	if t == nil {
		t = PriceTiers{}
	}
	return jsonValue(t, "price tiers")
}

// Scan unmarshals JSON payloads into the tiers slice.
func (t *PriceTiers) Scan(value interface{}) error {
	*t = PriceTiers{}
	return scanJSON(value, t, "price tiers")
}

// Normalize sorts the tiers and checks that the first starts at one unit,
// thresholds strictly increase and prices are non-negative.
func (t PriceTiers) Normalize() (PriceTiers, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("at least one price tier is required")
	}
	out := make(PriceTiers, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinQuantity < out[j].MinQuantity })
	if out[0].MinQuantity != 1 {
		return nil, fmt.Errorf("first price tier must start at quantity 1")
	}
	for i, tier := range out {
		if tier.UnitPrice < 0 {
			return nil, fmt.Errorf("price tier %q has a negative unit price", tier.Name)
		}
		if i > 0 && tier.MinQuantity == out[i-1].MinQuantity {
			return nil, fmt.Errorf("duplicate price tier threshold %d", tier.MinQuantity)
		}
	}
	return out, nil
}

// Resolve picks the tier with the largest threshold not above quantity.
func (t PriceTiers) Resolve(quantity int) (PriceTier, bool) {
	var (
		best  PriceTier
		found bool
	)
	for _, tier := range t {
		if tier.MinQuantity <= quantity && (!found || tier.MinQuantity > best.MinQuantity) {
			best, found = tier, true
		}
	}
	return best, found
}

// Resource is an inventory item that can be used in sessions or sold.
type Resource struct {
	ID              string            `db:"id" json:"id"`
	Name            string            `db:"name" json:"name"`
	Category        string            `db:"category" json:"category"`
	Description     string            `db:"description" json:"description"`
	SKU             string            `db:"sku" json:"sku"`
	QuantityInStock int               `db:"quantity_in_stock" json:"quantity_in_stock"`
	ReorderLevel    int               `db:"reorder_level" json:"reorder_level"`
	Condition       ResourceCondition `db:"condition" json:"condition"`
	Location        string            `db:"location" json:"location"`
	PriceTiers      PriceTiers        `db:"price_tiers" json:"price_tiers"`
	Active          bool              `db:"active" json:"active"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether stock has fallen to the reorder level.
func (r Resource) LowStock() bool {
	return r.QuantityInStock <= r.ReorderLevel
}

// InventoryValue values the stock at the single-unit tier price.
func (r Resource) InventoryValue() float64 {
	tier, ok := r.PriceTiers.Resolve(1)
	if !ok || r.QuantityInStock <= 0 {
		return 0
	}
	return roundCents(float64(r.QuantityInStock) * tier.UnitPrice)
}

// ResourceFilter scopes resource listings.
type ResourceFilter struct {
	Search    string
	Category  string
	Condition ResourceCondition
	LowStock  bool
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// PriceQuote is the price for buying Quantity units of a resource.
type PriceQuote struct {
	ResourceID string  `json:"resource_id"`
	Quantity   int     `json:"quantity"`
	Tier       string  `json:"tier"`
	UnitPrice  float64 `json:"unit_price"`
	Total      float64 `json:"total"`
}

// QuoteTotal is quantity times unitPrice, rounded to cents.
func QuoteTotal(unitPrice float64, quantity int) float64 {
	return roundCents(unitPrice * float64(quantity))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
