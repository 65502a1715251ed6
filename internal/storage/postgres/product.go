package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

const (
	productColumns = `id, name, price, stock, low_stock_threshold, is_active`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	listLowStockSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_active AND stock < low_stock_threshold
		ORDER BY stock ASC, id ASC`

	upsertProductSQL = `INSERT INTO products (name, slug, sku, price, stock, low_stock_threshold)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			updated_at = NOW()
		RETURNING id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Unknown IDs are
// omitted.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListLowStock returns active products whose stock is below their
// low-stock threshold, lowest stock first.
func (r *ProductRepository) ListLowStock(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listLowStockSQL)
	if err != nil {
		return nil, fmt.Errorf("listing low stock products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// SeedProduct is the catalog data written by the seeding tool.
type SeedProduct struct {
	Name              string
	Slug              string
	SKU               string
	Price             decimal.Decimal
	Stock             int
	LowStockThreshold int
}

// Upsert inserts or refreshes a product keyed by slug and returns its id.
func (r *ProductRepository) Upsert(ctx context.Context, p SeedProduct) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, upsertProductSQL,
		p.Name, p.Slug, p.SKU, p.Price, p.Stock, p.LowStockThreshold,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting product %q: %w", p.Slug, err)
	}
	return id, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.LowStockThreshold, &p.IsActive)
	return p, err
}
