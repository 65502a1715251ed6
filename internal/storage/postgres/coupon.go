package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

const (
	couponColumns = `code, description, type, value, min_order_amount, max_discount,
		usage_limit, used_count, is_active, start_date, end_date, created_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, code ASC`

	// redeemCouponSQL is the guarded increment. It matches no row once the
	// usage limit has been reached, so used_count never exceeds usage_limit.
	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND is_active AND (usage_limit IS NULL OR used_count < usage_limit)`

	insertCouponSQL = `INSERT INTO coupons (code, description, type, value, min_order_amount,
		max_discount, usage_limit, is_active, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING used_count, created_at`

	importCouponSQL = `INSERT INTO coupons (code, description, type, value, min_order_amount,
		max_discount, usage_limit, is_active, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode returns the coupon stored under the canonical code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// TryRedeem consumes one use of the coupon outside of an order.
func (r *CouponRepository) TryRedeem(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, redeemCouponSQL, code)
	if err != nil {
		return false, fmt.Errorf("redeeming coupon %q: %w", code, err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create stores a new coupon. It returns coupon.ErrCodeTaken when the code
// is already in use.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, insertCouponSQL, couponArgs(c)...).Scan(&c.UsedCount, &c.CreatedAt)
	if err != nil {
		if uniqueViolation(err) != "" {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Import inserts coupons in a single batch, skipping codes that already
// exist. It returns how many rows were inserted.
func (r *CouponRepository) Import(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	if len(coupons) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i := range coupons {
		batch.Queue(importCouponSQL, couponArgs(&coupons[i])...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int
	for i := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("importing coupon %q: %w", coupons[i].Code, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.Code, c.Description, string(c.DiscountType), c.Value, c.MinOrderAmount,
		c.MaxDiscount, c.UsageLimit, c.IsActive, c.StartDate, c.EndDate,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.Code, &c.Description, &typ, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
		&c.UsageLimit, &c.UsedCount, &c.IsActive, &c.StartDate, &c.EndDate, &c.CreatedAt,
	)
	c.DiscountType = coupon.DiscountType(typ)
	return c, err
}
