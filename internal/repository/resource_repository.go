package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-measures-api/internal/models"
)

// ErrInsufficientStock is returned when an adjustment would go negative.
var ErrInsufficientStock = errors.New("insufficient stock")

const resourceColumns = `id, name, category, description, sku, quantity_in_stock, reorder_level, condition, location, price_tiers, active, created_at, updated_at`

// ResourceRepository persists the inventory catalog.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs a ResourceRepository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// List returns resources matching filter with the total count.
func (r *ResourceRepository) List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error) {
	var where whereBuilder
	if filter.Search != "" {
		where.add("(LOWER(name) LIKE %s OR LOWER(description) LIKE %s OR LOWER(sku) LIKE %s)", likePattern(filter.Search))
	}
	if filter.Category != "" {
		where.add("category = %s", filter.Category)
	}
	if filter.Condition != "" {
		where.add("condition = %s", filter.Condition)
	}
	if filter.LowStock {
		where.conditions = append(where.conditions, "quantity_in_stock <= reorder_level")
	}
	if filter.Active != nil {
		where.add("active = %s", *filter.Active)
	}

	allowedSorts := map[string]string{
		"name":              "name",
		"category":          "category",
		"quantity_in_stock": "quantity_in_stock",
		"created_at":        "created_at",
	}
	tail := orderAndPage(filter.SortBy, filter.SortOrder, allowedSorts, "created_at", filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM resources %s %s", resourceColumns, where.clause(), tail)
	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list resources: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM resources %s", where.clause()), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count resources: %w", err)
	}
	return resources, total, nil
}

// FindByID returns a resource.
func (r *ResourceRepository) FindByID(ctx context.Context, id string) (*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find resource: %w", err)
	}
	return &resource, nil
}

// Create inserts a resource.
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}
	resource.UpdatedAt = now
	const query = `INSERT INTO resources (id, name, category, description, sku, quantity_in_stock, reorder_level, condition, location, price_tiers, active, created_at, updated_at)
        VALUES (:id, :name, :category, :description, :sku, :quantity_in_stock, :reorder_level, :condition, :location, :price_tiers, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// Update modifies a resource. Stock is changed through AdjustStock only.
func (r *ResourceRepository) Update(ctx context.Context, resource *models.Resource) error {
	resource.UpdatedAt = time.Now().UTC()
	const query = `UPDATE resources SET name = :name, category = :category, description = :description, sku = :sku, reorder_level = :reorder_level,
        condition = :condition, location = :location, price_tiers = :price_tiers, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	return nil
}

// Deactivate soft deletes a resource.
func (r *ResourceRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE resources SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate resource: %w", err)
	}
	return nil
}

// AdjustStock applies delta in a single conditional update and returns the
// new quantity.
func (r *ResourceRepository) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	const query = `UPDATE resources SET quantity_in_stock = quantity_in_stock + $2, updated_at = $3
        WHERE id = $1 AND quantity_in_stock + $2 >= 0 RETURNING quantity_in_stock`
	var quantity int
	err := r.db.GetContext(ctx, &quantity, query, id, delta, time.Now().UTC())
	if err == nil {
		return quantity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM resources WHERE id = $1)`, id); err != nil {
		return 0, fmt.Errorf("check resource: %w", err)
	}
	if !exists {
		return 0, sql.ErrNoRows
	}
	return 0, ErrInsufficientStock
}

// ListAll returns every active resource for analytics and exports.
func (r *ResourceRepository) ListAll(ctx context.Context) ([]models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE active = TRUE ORDER BY name`
	resources := []models.Resource{}
	if err := r.db.SelectContext(ctx, &resources, query); err != nil {
		return nil, fmt.Errorf("list all resources: %w", err)
	}
	return resources, nil
}
