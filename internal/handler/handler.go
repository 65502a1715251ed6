// Package handler serves the storefront checkout and admin HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// Orders is the checkout orchestrator and order workflow. Implemented by
// *order.Service.
type Orders interface {
	Quote(ctx context.Context, req order.QuoteRequest) (*pricing.Breakdown, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Confirmation, error)
	ListForUser(ctx context.Context, userID int64) ([]order.Order, error)
	List(ctx context.Context, f order.Filter) ([]order.Order, error)
	ChangeStatus(ctx context.Context, id int64, to order.Status) (*order.Order, error)
}

// NextDayChecker reports display-only next-day availability. Implemented by
// *shipping.Resolver.
type NextDayChecker interface {
	NextDay(ctx context.Context, countryCode string) (shipping.NextDayStatus, error)
}

// KeyAuthenticator validates admin API keys. Implemented by
// *auth.KeyAuthenticator.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey, scope string) (*auth.APIKeyInfo, error)
}

// TokenVerifier validates customer session tokens. Implemented by
// *auth.Tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// CouponAdmin lists and creates coupons.
type CouponAdmin interface {
	List(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, c *coupon.Coupon) error
}

// StockReporter lists products running low.
type StockReporter interface {
	ListLowStock(ctx context.Context) ([]product.Product, error)
}

// Deps are the collaborators of Handler. All except Meter are required.
type Deps struct {
	Orders        Orders
	Coupons       coupon.Validator
	CouponAdmin   CouponAdmin
	ShippingRules shipping.Repository
	NextDay       NextDayChecker
	Stock         StockReporter
	Keys          KeyAuthenticator
	Tokens        TokenVerifier
	Meter         metric.Meter
}

// Handler implements the HTTP API.
type Handler struct {
	orders      Orders
	coupons     coupon.Validator
	couponAdmin CouponAdmin
	rules       shipping.Repository
	nextDay     NextDayChecker
	stock       StockReporter
	keys        KeyAuthenticator
	tokens      TokenVerifier

	rejections metric.Int64Counter
	placed     metric.Int64Counter
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) (*Handler, error) {
	meter := deps.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	h := &Handler{
		orders:      deps.Orders,
		coupons:     deps.Coupons,
		couponAdmin: deps.CouponAdmin,
		rules:       deps.ShippingRules,
		nextDay:     deps.NextDay,
		stock:       deps.Stock,
		keys:        deps.Keys,
		tokens:      deps.Tokens,
	}

	var err error
	h.rejections, err = meter.Int64Counter("checkout.rejections",
		metric.WithDescription("Rejected checkouts by reason code"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "rejections counter")
	}
	h.placed, err = meter.Int64Counter("checkout.orders_placed",
		metric.WithDescription("Committed orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	return h, nil
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout/quote", h.Quote)
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders", h.requireUser(h.ListMyOrders))
	mux.HandleFunc("GET /api/coupons/validate", h.ValidateCoupon)
	mux.HandleFunc("GET /api/shipping/next-day", h.NextDay)

	mux.HandleFunc("GET /api/admin/orders", h.requireAdmin(h.AdminListOrders))
	mux.HandleFunc("PATCH /api/admin/orders/{id}/status", h.requireAdmin(h.AdminChangeStatus))
	mux.HandleFunc("GET /api/admin/low-stock", h.requireAdmin(h.AdminLowStock))
	mux.HandleFunc("GET /api/admin/coupons", h.requireAdmin(h.AdminListCoupons))
	mux.HandleFunc("POST /api/admin/coupons", h.requireAdmin(h.AdminCreateCoupon))
	mux.HandleFunc("GET /api/admin/shipping-rules", h.requireAdmin(h.AdminListShippingRules))
	mux.HandleFunc("PUT /api/admin/shipping-rules/{countryCode}", h.requireAdmin(h.AdminUpsertShippingRule))

	mux.HandleFunc("/api/", h.notFound)
}

func (h *Handler) notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "NotFound", "route not found")
}
