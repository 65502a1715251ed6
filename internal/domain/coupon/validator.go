package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a coupon code against an order amount and returns the
// computed discount. Validation never consumes a use.
type Validator interface {
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error)
}

var _ Validator = (*Directory)(nil)

// Directory implements Validator over a Repository.
type Directory struct {
	repo Repository
	now  func() time.Time
}

// NewDirectory creates a Directory backed by the given Repository.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo, now: time.Now}
}

// Validate canonicalizes the code, looks the coupon up and evaluates it.
func (d *Directory) Validate(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error) {
	code = Canonicalize(code)
	if code == "" {
		return nil, ErrCouponNotFound
	}

	c, err := d.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	disc, err := Evaluate(c, amount, d.now())
	if err != nil {
		return nil, err
	}
	return &disc, nil
}
