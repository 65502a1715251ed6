package coupon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/money"
)

// Evaluate checks c against the order amount at time now and computes the
// discount. The checks run in a fixed order so the first failing constraint
// is the one reported.
func Evaluate(c *Coupon, amount decimal.Decimal, now time.Time) (Discount, error) {
	if c == nil || !c.IsActive {
		return Discount{}, ErrCouponNotFound
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return Discount{}, ErrCouponNotYetActive
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return Discount{}, ErrCouponExpired
	}
	if c.MinOrderAmount.Valid && amount.LessThan(c.MinOrderAmount.Decimal) {
		return Discount{}, ErrMinOrderNotMet
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return Discount{}, ErrUsageLimitReached
	}

	var off decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		off = money.Percent(amount, c.Value)
		if c.MaxDiscount.Valid {
			off = money.Min(off, c.MaxDiscount.Decimal)
		}
	default:
		off = money.Min(c.Value, amount)
	}

	return Discount{
		Code:        c.Code,
		Type:        c.DiscountType,
		Amount:      money.Round(money.FloorZero(off)),
		Description: c.Description,
	}, nil
}
