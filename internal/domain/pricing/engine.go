package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// Request is a cart to price.
type Request struct {
	Lines       []Line
	CouponCode  string
	CountryCode string
	Method      shipping.Method
}

// CouponLookup resolves a coupon by its canonical code.
type CouponLookup interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

// RuleLookup resolves the shipping rule for a destination.
type RuleLookup interface {
	Rule(ctx context.Context, countryCode string) (*shipping.Rule, error)
	Now() time.Time
}

// Engine prices carts against live catalog, coupon and shipping data.
type Engine struct {
	catalog product.Catalog
	coupons CouponLookup
	rules   RuleLookup
	collect shipping.CollectPolicy
}

// NewEngine creates a pricing Engine.
func NewEngine(
	catalog product.Catalog,
	coupons CouponLookup,
	rules RuleLookup,
	collect shipping.CollectPolicy,
) *Engine {
	return &Engine{
		catalog: catalog,
		coupons: coupons,
		rules:   rules,
		collect: collect,
	}
}

// Price looks up products, coupon and shipping rule concurrently, then runs
// Compute. It has no side effects and is safe to call for previews.
func (e *Engine) Price(ctx context.Context, req Request) (*Breakdown, error) {
	in := Inputs{
		Lines:      req.Lines,
		CouponCode: coupon.Canonicalize(req.CouponCode),
		Method:     req.Method,
		Collect:    e.collect,
	}

	ids := make([]int64, 0, len(req.Lines))
	seen := make(map[int64]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, err := e.catalog.GetByIDs(gctx, ids)
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		in.Products = make(map[int64]product.Product, len(fetched))
		for _, p := range fetched {
			in.Products[p.ID] = p
		}
		return nil
	})
	if in.CouponCode != "" {
		g.Go(func() error {
			c, err := e.coupons.FindByCode(gctx, in.CouponCode)
			switch {
			case errors.Is(err, coupon.ErrCouponNotFound):
				return nil
			case err != nil:
				return errors.Wrap(err, "get coupon")
			}
			in.Coupon = c
			return nil
		})
	}
	g.Go(func() error {
		rule, err := e.rules.Rule(gctx, req.CountryCode)
		switch {
		case errors.Is(err, shipping.ErrUnsupportedDestination):
			return nil
		case err != nil:
			return errors.Wrap(err, "get shipping rule")
		}
		in.Rule = rule
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in.Now = e.rules.Now()
	return Compute(in)
}
