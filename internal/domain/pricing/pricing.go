// Package pricing composes subtotal, coupon discount and shipping into a
// price breakdown for a cart.
package pricing

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// ErrInvalidQuantity is returned for a line quantity outside
// 1..money.MaxQuantity.
var ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")

// Line is one cart entry as submitted by the client. Client-side prices are
// never trusted, so a line carries no price.
type Line struct {
	ProductID int64
	Quantity  int
	VariantID *int64
}

// PricedLine is a cart line resolved against the catalog, with the name and
// unit price captured at pricing time.
type PricedLine struct {
	ProductID int64
	VariantID *int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Total     decimal.Decimal
}

// Breakdown is the full priced view of a cart.
type Breakdown struct {
	Lines        []PricedLine
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	Coupon       *coupon.Discount
	Shipping     shipping.Decision
}

// Inputs is everything Compute needs. Lookups have already happened: a nil
// Coupon with a non-empty CouponCode means the code is unknown, a nil Rule
// means the destination is unknown.
type Inputs struct {
	Lines      []Line
	Products   map[int64]product.Product
	CouponCode string
	Coupon     *coupon.Coupon
	Rule       *shipping.Rule
	Method     shipping.Method
	Now        time.Time
	Collect    shipping.CollectPolicy
}

// Compute prices a cart. It is deterministic and performs no I/O. Failures
// are reported in a fixed order: quantities, products, coupon, shipping.
func Compute(in Inputs) (*Breakdown, error) {
	lines, subtotal, err := priceLines(in.Lines, in.Products)
	if err != nil {
		return nil, err
	}

	out := &Breakdown{
		Lines:    lines,
		Subtotal: subtotal,
		Discount: decimal.Zero,
		Tax:      decimal.Zero,
	}

	if in.CouponCode != "" {
		disc, err := coupon.Evaluate(in.Coupon, subtotal, in.Now)
		if err != nil {
			return nil, err
		}
		out.Coupon = &disc
		out.Discount = disc.Amount
	}

	// Free-shipping thresholds apply to the pre-discount subtotal.
	decision, err := shipping.Decide(in.Rule, subtotal, in.Method, in.Now, in.Collect)
	if err != nil {
		return nil, err
	}
	out.Shipping = decision
	out.ShippingCost = money.Round(decision.Cost)

	out.Total = Total(out.Subtotal, out.Discount, out.ShippingCost, out.Tax)
	return out, nil
}

// Total returns subtotal - discount + shipping + tax, floored at zero and
// rounded to cents.
func Total(subtotal, discount, shippingCost, tax decimal.Decimal) decimal.Decimal {
	return money.Round(money.FloorZero(subtotal.Sub(discount).Add(shippingCost).Add(tax)))
}

func priceLines(lines []Line, products map[int64]product.Product) ([]PricedLine, decimal.Decimal, error) {
	for _, l := range lines {
		if !money.ValidQuantity(l.Quantity) {
			return nil, decimal.Zero, ErrInvalidQuantity
		}
	}

	for _, l := range lines {
		if _, ok := products[l.ProductID]; !ok {
			return nil, decimal.Zero, &product.NotFoundError{ProductID: l.ProductID}
		}
	}

	// Stock is checked against the total requested per product, so split
	// lines cannot oversell. Each line is compared with what is left rather
	// than added to a running sum first, so the sum never wraps.
	requested := make(map[int64]int, len(lines))
	for _, l := range lines {
		p := products[l.ProductID]
		prior := requested[l.ProductID]
		if !p.Available(prior) || l.Quantity > p.Stock-prior {
			return nil, decimal.Zero, &product.UnavailableError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: unavailableQty(lines, l.ProductID),
				InStock:   p.Stock,
			}
		}
		requested[l.ProductID] = prior + l.Quantity
	}

	priced := make([]PricedLine, 0, len(lines))
	sum := decimal.Zero
	for _, l := range lines {
		p := products[l.ProductID]
		lineTotal := money.LineTotal(p.Price, l.Quantity)
		sum = sum.Add(lineTotal)
		priced = append(priced, PricedLine{
			ProductID: p.ID,
			VariantID: l.VariantID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  l.Quantity,
			Total:     money.Round(lineTotal),
		})
	}

	return priced, money.Round(sum), nil
}

// unavailableQty totals the lines for id, saturating at money.MaxQuantity.
func unavailableQty(lines []Line, id int64) int {
	total := 0
	for _, l := range lines {
		if l.ProductID != id {
			continue
		}
		if l.Quantity > money.MaxQuantity-total {
			return money.MaxQuantity
		}
		total += l.Quantity
	}
	return total
}
