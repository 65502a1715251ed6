package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

const (
	orderColumns = `id, order_number, idempotency_key, user_id, status, subtotal, shipping_cost,
		discount, tax, total, coupon_code, shipping_address, shipping_method, payment_method,
		payment_status, payment_reference, is_next_day_delivery, estimated_days, created_at, updated_at`

	orderItemColumns = `id, order_id, product_id, variant_id, name, price, quantity, total`

	// decrementStockSQL is the guarded decrement. It matches no row when the
	// product has fewer units than requested, so stock never goes negative.
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2`

	insertOrderSQL = `INSERT INTO orders (order_number, idempotency_key, user_id, status,
		subtotal, shipping_cost, discount, tax, total, coupon_code, shipping_address,
		shipping_method, payment_method, payment_status, payment_reference,
		is_next_day_delivery, estimated_days, estimated_delivery)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11,
			$12, $13, $14, NULLIF($15, ''), $16, $17, NOW() + make_interval(days => $17))
		RETURNING id, created_at, updated_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, variant_id, name, price, quantity, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	findOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	findOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT ` + orderItemColumns + ` FROM order_items
		WHERE order_id = ANY($1) ORDER BY order_id, id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

// Unique constraint names generated by PostgreSQL for the orders table.
const (
	orderNumberConstraint    = "orders_order_number_key"
	idempotencyKeyConstraint = "orders_idempotency_key_key"
)

var _ order.Ledger = (*OrderLedger)(nil)

// OrderLedger implements order.Ledger backed by PostgreSQL.
type OrderLedger struct {
	pool *pgxpool.Pool
}

// NewOrderLedger returns an OrderLedger that uses the given pool.
func NewOrderLedger(pool *pgxpool.Pool) *OrderLedger {
	return &OrderLedger{pool: pool}
}

// Create commits the order in one transaction: stock decrements, coupon
// redemption, the order row and its items.
func (l *OrderLedger) Create(ctx context.Context, o *order.Order) error {
	err := withTx(ctx, l.pool, func(tx pgx.Tx) error {
		if err := decrementStock(ctx, tx, o.Items); err != nil {
			return err
		}

		if o.CouponCode != "" {
			tag, err := tx.Exec(ctx, redeemCouponSQL, o.CouponCode)
			if err != nil {
				return fmt.Errorf("redeeming coupon %q: %w", o.CouponCode, err)
			}
			if tag.RowsAffected() == 0 {
				return order.ErrCouponRaceLost
			}
		}

		err := tx.QueryRow(ctx, insertOrderSQL,
			o.OrderNumber, o.IdempotencyKey, o.UserID, string(o.Status),
			o.Subtotal, o.ShippingCost, o.Discount, o.Tax, o.Total, o.CouponCode, o.ShippingAddress,
			string(o.ShippingMethod), string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentReference,
			o.IsNextDayDelivery, o.EstimatedDays,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			switch uniqueViolation(err) {
			case orderNumberConstraint:
				return order.ErrOrderNumberTaken
			case idempotencyKeyConstraint:
				return order.ErrIdempotencyKeyTaken
			}
			return fmt.Errorf("inserting order: %w", err)
		}

		return insertItems(ctx, tx, o)
	})
	if err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

// decrementStock applies one guarded decrement per product, in ascending
// product id order so concurrent checkouts lock rows consistently.
func decrementStock(ctx context.Context, tx pgx.Tx, items []order.Item) error {
	qty := make(map[int64]int, len(items))
	for _, it := range items {
		prior := qty[it.ProductID]
		if it.Quantity < 1 || it.Quantity > money.MaxQuantity-prior {
			return &order.InsufficientStockError{ProductID: it.ProductID, Requested: money.MaxQuantity}
		}
		qty[it.ProductID] = prior + it.Quantity
	}

	ids := make([]int64, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		tag, err := tx.Exec(ctx, decrementStockSQL, id, qty[id])
		if err != nil {
			return fmt.Errorf("decrementing stock for product %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return &order.InsufficientStockError{ProductID: id, Requested: qty[id]}
		}
	}
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	batch := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		batch.Queue(insertOrderItemSQL,
			o.ID, it.ProductID, it.VariantID, it.Name, it.Price, it.Quantity, it.Total,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&it.ID)
		})
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting order items: %w", err)
	}
	return nil
}

// FindByID returns an order with its items.
func (l *OrderLedger) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	return l.findOne(ctx, findOrderByIDSQL, id)
}

// FindByIdempotencyKey returns the order committed under key.
func (l *OrderLedger) FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return l.findOne(ctx, findOrderByIdempotencyKeySQL, key)
}

func (l *OrderLedger) findOne(ctx context.Context, query string, arg any) (*order.Order, error) {
	rows, err := l.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("finding order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order: %w", err)
	}

	orders := []order.Order{o}
	if err := l.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns a user's orders, newest first.
func (l *OrderLedger) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	return l.list(ctx, listOrdersByUserSQL, userID)
}

// List returns orders matching the filter, newest first.
func (l *OrderLedger) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	query, args := orderListQuery(f.Normalize())
	return l.list(ctx, query, args...)
}

func (l *OrderLedger) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	if err := l.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (l *OrderLedger) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := l.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	for _, it := range items {
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return nil
}

// UpdateStatus moves an order from one status to another.
func (l *OrderLedger) UpdateStatus(ctx context.Context, id int64, from, to order.Status) error {
	tag, err := l.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating order %d status: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := l.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %d: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                        order.Order
		idemKey, couponCode, paymentReference    *string
		status, shipMethod, payMethod, payStatus string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &idemKey, &o.UserID, &status, &o.Subtotal, &o.ShippingCost,
		&o.Discount, &o.Tax, &o.Total, &couponCode, &o.ShippingAddress, &shipMethod, &payMethod,
		&payStatus, &paymentReference, &o.IsNextDayDelivery, &o.EstimatedDays, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.IdempotencyKey = deref(idemKey)
	o.CouponCode = deref(couponCode)
	o.PaymentReference = deref(paymentReference)
	o.Status = order.Status(status)
	o.ShippingMethod = shipping.Method(shipMethod)
	o.PaymentMethod = order.PaymentMethod(payMethod)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	return o, nil
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Name, &it.Price, &it.Quantity, &it.Total)
	return it, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
