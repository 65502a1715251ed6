package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// ParseStatus validates a wire value.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod is the customer's chosen way to pay.
type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentPayPal PaymentMethod = "paypal"
)

// ParsePaymentMethod validates a wire value. An empty value means card.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return PaymentCard, true
	case PaymentCard, PaymentPayPal:
		return m, true
	}
	return "", false
}

// PaymentStatus tracks the payment side of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Address is the shipping address snapshot stored with an order.
type Address struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Missing lists the required address fields that are blank.
func (a Address) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"address1", a.Address1},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Order is a committed customer order. Everything except Status and
// UpdatedAt is fixed at creation.
type Order struct {
	ID                int64
	OrderNumber       string
	UserID            *int64
	Status            Status
	Subtotal          decimal.Decimal
	ShippingCost      decimal.Decimal
	Discount          decimal.Decimal
	Tax               decimal.Decimal
	Total             decimal.Decimal
	CouponCode        string
	ShippingAddress   Address
	ShippingMethod    shipping.Method
	EstimatedDays     int
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	PaymentReference  string
	IsNextDayDelivery bool
	IdempotencyKey    string
	Items             []Item
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EstimatedDelivery is the promised delivery date.
func (o *Order) EstimatedDelivery() time.Time {
	return o.CreatedAt.AddDate(0, 0, o.EstimatedDays)
}

// Item is an immutable order line with snapshotted name and price.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	VariantID *int64
	Name      string
	Price     decimal.Decimal
	Quantity  int
	Total     decimal.Decimal
}

// Filter selects orders for the admin listing. Nil fields are not applied.
type Filter struct {
	Status *Status
	UserID *int64
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalize clamps paging values to their allowed range.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrOrderNumberTaken is returned by Ledger.Create when the generated
	// order number collides with an existing order.
	ErrOrderNumberTaken = errors.New("order number already taken")
	// ErrIdempotencyKeyTaken is returned by Ledger.Create when another order
	// was already committed with the same idempotency key.
	ErrIdempotencyKeyTaken = errors.New("idempotency key already used")
	// ErrInsufficientStock is returned by Ledger.Create when a stock
	// decrement would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCouponRaceLost is returned by Ledger.Create when the coupon's usage
	// limit was exhausted by a concurrent order.
	ErrCouponRaceLost = errors.New("coupon usage limit reached by concurrent order")
	// ErrInvalidTransition is returned for a status change the transition
	// table does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusConflict is returned when the order's status changed between
	// read and update.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// InsufficientStockError names the product whose guarded decrement failed.
type InsufficientStockError struct {
	ProductID int64
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (requested %d)", e.ProductID, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Ledger is the durable store of orders.
type Ledger interface {
	// Create atomically inserts the order and its items, decrements stock
	// for every item and, when CouponCode is set, redeems one coupon use.
	// Either everything is applied or nothing is. On success the order's
	// ID, CreatedAt and item IDs are set.
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id int64) (*Order, error)
	// FindByIdempotencyKey returns ErrNotFound when no order carries key.
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// UpdateStatus moves the order from one status to another, returning
	// ErrStatusConflict when the current status is no longer from.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
}
