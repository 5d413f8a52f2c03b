package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-measures-api/internal/models"
)

func TestResourceRepositoryFindByIDDecodesTiers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "category", "description", "sku", "quantity_in_stock", "reorder_level", "condition", "location", "price_tiers", "active", "created_at", "updated_at"}).
		AddRow("res-1", "Workbook", "Books", "", "WB-1", 12, 5, "Good", "Shelf A", []byte(`[{"name":"single","min_quantity":1,"unit_price":4.5},{"name":"class set","min_quantity":10,"unit_price":3.75}]`), true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM resources WHERE id = $1")).
		WithArgs("res-1").
		WillReturnRows(rows)

	resource, err := repo.FindByID(context.Background(), "res-1")
	require.NoError(t, err)
	require.Len(t, resource.PriceTiers, 2)
	tier, ok := resource.PriceTiers.Resolve(12)
	require.True(t, ok)
	assert.Equal(t, "class set", tier.Name)
	assert.Equal(t, models.ConditionGood, resource.Condition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryListLowStock(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM resources WHERE category = $1 AND quantity_in_stock <= reorder_level ORDER BY created_at DESC")).
		WithArgs("Books").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("res-1", "Workbook"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM resources WHERE category = $1 AND quantity_in_stock <= reorder_level")).
		WithArgs("Books").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	resources, total, err := repo.List(context.Background(), models.ResourceFilter{Category: "Books", LowStock: true})
	require.NoError(t, err)
	assert.Len(t, resources, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryAdjustStock(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources SET quantity_in_stock = quantity_in_stock + $2")).
		WithArgs("res-1", -3, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_in_stock"}).AddRow(9))

	qty, err := repo.AdjustStock(context.Background(), "res-1", -3)
	require.NoError(t, err)
	assert.Equal(t, 9, qty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryAdjustStockInsufficient(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources SET quantity_in_stock")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.AdjustStock(context.Background(), "res-1", -50)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE resources SET quantity_in_stock")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = repo.AdjustStock(context.Background(), "missing", -1)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
