package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// ErrEmptyCart is the cause of an InvalidPayload rejection for a cart
// without lines.
var ErrEmptyCart = errors.New("cart is empty")

// PayloadError describes why a checkout payload was rejected before any
// lookup happened.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	return e.Field + ": " + e.Reason
}

// Pricer prices carts. Implemented by *pricing.Engine.
type Pricer interface {
	Price(ctx context.Context, req pricing.Request) (*pricing.Breakdown, error)
}

// Receipt is the cached outcome of a committed checkout.
type Receipt struct {
	OrderID     int64
	OrderNumber string
}

// IdempotencyCache is a look-aside cache in front of the ledger's
// idempotency key index.
type IdempotencyCache interface {
	// Get returns nil without error on a miss.
	Get(ctx context.Context, key string) (*Receipt, error)
	Put(ctx context.Context, key string, r Receipt) error
}

// EventPublisher is notified after an order is committed.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
}

// PlaceOrderRequest is a checkout submission.
type PlaceOrderRequest struct {
	Items           []pricing.Line
	ShippingAddress Address
	DeliveryMethod  string
	PaymentMethod   string
	CouponCode      string
	UserID          *int64
	IdempotencyKey  string
}

// QuoteRequest is a pricing preview.
type QuoteRequest struct {
	Items          []pricing.Line
	CountryCode    string
	DeliveryMethod string
	CouponCode     string
}

// Confirmation is returned once an order is durable.
type Confirmation struct {
	OrderID     int64
	OrderNumber string
	Replayed    bool
	Order       *Order
}

// Options holds optional collaborators and tuning for Service.
type Options struct {
	Payments       PaymentAuthorizer
	Idempotency    IdempotencyCache
	Events         EventPublisher
	Numbers        NumberGenerator
	NumberAttempts int
}

// Service runs the checkout state machine and the order status workflow.
type Service struct {
	pricer   Pricer
	ledger   Ledger
	payments PaymentAuthorizer
	cache    IdempotencyCache
	events   EventPublisher
	numbers  NumberGenerator
	attempts int
	now      func() time.Time
}

// NewService creates an order Service.
func NewService(pricer Pricer, ledger Ledger, opts Options) *Service {
	s := &Service{
		pricer:   pricer,
		ledger:   ledger,
		payments: opts.Payments,
		cache:    opts.Idempotency,
		events:   opts.Events,
		numbers:  opts.Numbers,
		attempts: opts.NumberAttempts,
		now:      time.Now,
	}
	if s.payments == nil {
		s.payments = AlwaysApprove{}
	}
	if s.numbers == nil {
		s.numbers = defaultNumbers()
	}
	if s.attempts <= 0 {
		s.attempts = 5
	}
	return s
}

// Quote prices a cart without side effects.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*pricing.Breakdown, error) {
	method, err := checkLines(req.Items, req.DeliveryMethod)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CountryCode) == "" {
		return nil, reject(ReasonInvalidPayload, StageReceived, &PayloadError{Field: "country", Reason: "required"})
	}

	b, err := s.pricer.Price(ctx, pricing.Request{
		Lines:       req.Items,
		CouponCode:  req.CouponCode,
		CountryCode: req.CountryCode,
		Method:      method,
	})
	if err != nil {
		return nil, rejectAt(StageValidated, err)
	}
	return b, nil
}

// PlaceOrder validates, prices, authorizes and commits a checkout. Every
// business failure is returned as a *RejectionError; any other error is an
// infrastructure fault and nothing was persisted.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Confirmation, error) {
	lg := zctx.From(ctx)

	// Received.
	method, err := checkLines(req.Items, req.DeliveryMethod)
	if err != nil {
		return nil, err
	}
	if missing := req.ShippingAddress.Missing(); len(missing) > 0 {
		return nil, reject(ReasonInvalidPayload, StageReceived, &PayloadError{
			Field:  "shippingAddress",
			Reason: "missing " + strings.Join(missing, ", "),
		})
	}
	payMethod, ok := ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return nil, reject(ReasonInvalidPayload, StageReceived, &PayloadError{Field: "paymentMethod", Reason: "must be card or paypal"})
	}

	if req.IdempotencyKey != "" {
		conf, err := s.replay(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if conf != nil {
			lg.Info("Replaying checkout", zap.String("order_number", conf.OrderNumber))
			return conf, nil
		}
	}

	// Validated -> Priced.
	b, err := s.pricer.Price(ctx, pricing.Request{
		Lines:       req.Items,
		CouponCode:  req.CouponCode,
		CountryCode: req.ShippingAddress.Country,
		Method:      method,
	})
	if err != nil {
		return nil, rejectAt(StageValidated, err)
	}

	auth, err := s.payments.Authorize(ctx, Authorization{
		Amount:         b.Total,
		Method:         payMethod,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "authorize payment")
	}
	if !auth.Approved {
		return nil, reject(ReasonPaymentDeclined, StagePriced, errors.Errorf("payment declined: %s", auth.Reason))
	}

	o := newOrder(req, b, payMethod, auth)

	// Priced -> Committed.
	if err := s.commit(ctx, o); err != nil {
		if errors.Is(err, ErrIdempotencyKeyTaken) {
			// A concurrent submission with the same key won.
			conf, rerr := s.replay(ctx, req.IdempotencyKey)
			if rerr != nil {
				return nil, rerr
			}
			if conf != nil {
				return conf, nil
			}
		}
		return nil, rejectAt(StagePriced, err)
	}

	// Committed -> Confirmed.
	lg.Info("Order placed",
		zap.String("order_number", o.OrderNumber),
		zap.Int64("order_id", o.ID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	if s.cache != nil && o.IdempotencyKey != "" {
		if err := s.cache.Put(ctx, o.IdempotencyKey, Receipt{OrderID: o.ID, OrderNumber: o.OrderNumber}); err != nil {
			lg.Warn("Cache idempotency receipt", zap.Error(err))
		}
	}
	if s.events != nil {
		if err := s.events.OrderPlaced(ctx, o); err != nil {
			lg.Warn("Publish order placed", zap.Error(err), zap.String("order_number", o.OrderNumber))
		}
	}

	return &Confirmation{OrderID: o.ID, OrderNumber: o.OrderNumber, Order: o}, nil
}

func (s *Service) commit(ctx context.Context, o *Order) error {
	for attempt := 1; ; attempt++ {
		num, err := s.numbers()
		if err != nil {
			return errors.Wrap(err, "generate order number")
		}
		o.OrderNumber = num

		err = s.ledger.Create(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrOrderNumberTaken) || attempt >= s.attempts {
			return err
		}
		zctx.From(ctx).Debug("Order number collision, retrying", zap.Int("attempt", attempt))
	}
}

// replay returns the confirmation of an earlier checkout with the same
// idempotency key, or nil if there is none.
func (s *Service) replay(ctx context.Context, key string) (*Confirmation, error) {
	if s.cache != nil {
		r, err := s.cache.Get(ctx, key)
		if err != nil {
			zctx.From(ctx).Warn("Read idempotency cache", zap.Error(err))
		} else if r != nil {
			return &Confirmation{OrderID: r.OrderID, OrderNumber: r.OrderNumber, Replayed: true}, nil
		}
	}

	o, err := s.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find by idempotency key")
	}
	return &Confirmation{OrderID: o.ID, OrderNumber: o.OrderNumber, Replayed: true, Order: o}, nil
}

func newOrder(req PlaceOrderRequest, b *pricing.Breakdown, method PaymentMethod, auth AuthorizationResult) *Order {
	addr := req.ShippingAddress
	addr.Country = shipping.NormalizeCountry(addr.Country)

	o := &Order{
		UserID:            req.UserID,
		Status:            StatusProcessing,
		Subtotal:          b.Subtotal,
		ShippingCost:      b.ShippingCost,
		Discount:          b.Discount,
		Tax:               b.Tax,
		Total:             b.Total,
		ShippingAddress:   addr,
		ShippingMethod:    b.Shipping.Method,
		EstimatedDays:     b.Shipping.EstimatedDays,
		PaymentMethod:     method,
		PaymentStatus:     PaymentPaid,
		PaymentReference:  auth.Reference,
		IsNextDayDelivery: b.Shipping.IsNextDay(),
		IdempotencyKey:    req.IdempotencyKey,
		Items:             make([]Item, 0, len(b.Lines)),
	}
	if b.Coupon != nil {
		o.CouponCode = b.Coupon.Code
	}
	for _, l := range b.Lines {
		o.Items = append(o.Items, Item{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			Price:     l.UnitPrice,
			Quantity:  l.Quantity,
			Total:     l.Total,
		})
	}
	return o
}

func checkLines(lines []pricing.Line, deliveryMethod string) (shipping.Method, error) {
	if len(lines) == 0 {
		return "", reject(ReasonInvalidPayload, StageReceived, ErrEmptyCart)
	}
	for _, l := range lines {
		if !money.ValidQuantity(l.Quantity) {
			return "", reject(ReasonInvalidPayload, StageReceived, pricing.ErrInvalidQuantity)
		}
	}
	method, ok := shipping.ParseMethod(deliveryMethod)
	if !ok {
		return "", reject(ReasonInvalidPayload, StageReceived, &PayloadError{
			Field:  "deliveryMethod",
			Reason: "must be standard, nextday or collect",
		})
	}
	return method, nil
}

// ListForUser returns the order history of a signed-in customer.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders for user")
	}
	return orders, nil
}

// List returns orders matching the admin filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	orders, err := s.ledger.List(ctx, f.Normalize())
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ChangeStatus moves an order along the status workflow.
func (s *Service) ChangeStatus(ctx context.Context, id int64, to Status) (*Order, error) {
	o, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s to %s", o.Status, to)
	}
	if err := s.ledger.UpdateStatus(ctx, id, o.Status, to); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.Int64("order_id", id),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)
	o.Status = to
	o.UpdatedAt = s.now()
	return o, nil
}
