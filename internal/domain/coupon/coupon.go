package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order amount, optionally
	// capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, never more than the order amount.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrCouponNotFound is returned when no coupon matches the code or the
	// coupon has been deactivated.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponNotYetActive is returned before the coupon's start date.
	ErrCouponNotYetActive = errors.New("coupon not yet active")
	// ErrCouponExpired is returned after the coupon's end date.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrMinOrderNotMet is returned when the order amount is below the
	// coupon's minimum.
	ErrMinOrderNotMet = errors.New("minimum order amount not met")
	// ErrUsageLimitReached is returned when the coupon has no uses left.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrCodeTaken is returned when creating a coupon whose code exists.
	ErrCodeTaken = errors.New("coupon code already exists")
)

// Coupon is a persistent promotion keyed by its canonical code.
type Coupon struct {
	Code           string
	Description    string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.NullDecimal
	MaxDiscount    decimal.NullDecimal
	UsageLimit     *int
	UsedCount      int
	IsActive       bool
	StartDate      *time.Time
	EndDate        *time.Time
	CreatedAt      time.Time
}

// Discount is the outcome of applying a coupon to an order amount.
type Discount struct {
	Code        string
	Type        DiscountType
	Amount      decimal.Decimal
	Description string
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	// FindByCode returns the coupon stored under the canonical code, active
	// or not. It returns ErrCouponNotFound when absent.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// TryRedeem consumes one use of the coupon if its usage limit allows it.
	// It reports false when the guard rejected the increment.
	TryRedeem(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
}

// Canonicalize normalizes a user-supplied coupon code.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// InvalidError describes a coupon definition rejected by Check.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return "invalid coupon " + e.Field + ": " + e.Reason
}

// Check validates a coupon definition before it is stored.
func (c *Coupon) Check() error {
	c.Code = Canonicalize(c.Code)
	switch {
	case c.Code == "":
		return &InvalidError{Field: "code", Reason: "required"}
	case !c.DiscountType.Valid():
		return &InvalidError{Field: "type", Reason: "must be percentage or fixed"}
	case !c.Value.IsPositive():
		return &InvalidError{Field: "value", Reason: "must be positive"}
	case c.DiscountType == DiscountPercentage && c.Value.GreaterThan(decimal.NewFromInt(100)):
		return &InvalidError{Field: "value", Reason: "percentage cannot exceed 100"}
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return &InvalidError{Field: "usageLimit", Reason: "must not be negative"}
	case c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate):
		return &InvalidError{Field: "endDate", Reason: "before startDate"}
	case c.MinOrderAmount.Valid && c.MinOrderAmount.Decimal.IsNegative():
		return &InvalidError{Field: "minOrderAmount", Reason: "must not be negative"}
	case c.MaxDiscount.Valid && !c.MaxDiscount.Decimal.IsPositive():
		return &InvalidError{Field: "maxDiscount", Reason: "must be positive"}
	}
	return nil
}
