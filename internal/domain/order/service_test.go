package order

import (
	"bytes"
	"context"
	"crypto/rand"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// --- Mock implementations ---

type mockCatalog struct {
	mu       sync.Mutex
	products map[int64]product.Product
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCoupons struct {
	coupons map[string]*coupon.Coupon
}

func (m *mockCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

type mockRules struct {
	now time.Time
}

func (m *mockRules) Rule(_ context.Context, code string) (*shipping.Rule, error) {
	if shipping.NormalizeCountry(code) != "GB" {
		return nil, shipping.ErrUnsupportedDestination
	}
	return &shipping.Rule{
		CountryCode: "GB", StandardCost: d("3.50"), StandardDeliveryDays: 3,
		FreeShippingThreshold: decimal.NewNullDecimal(d("25.00")),
		NextDayAvailable:      true, NextDayCost: decimal.NewNullDecimal(d("4.95")),
		NextDayCutoffHour: 14, ClickCollectAvailable: true, IsActive: true,
	}, nil
}

func (m *mockRules) Now() time.Time { return m.now }

// memLedger is an in-memory Ledger whose Create applies the same guards as
// the SQL implementation under a single lock.
type memLedger struct {
	mu         sync.Mutex
	catalog    *mockCatalog
	coupons    *mockCoupons
	orders     []*Order
	nextID     int64
	createErrs []error
	creates    int
}

func (m *memLedger) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++

	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range m.orders {
		if existing.OrderNumber == o.OrderNumber {
			return ErrOrderNumberTaken
		}
		if o.IdempotencyKey != "" && existing.IdempotencyKey == o.IdempotencyKey {
			return ErrIdempotencyKeyTaken
		}
	}

	m.catalog.mu.Lock()
	defer m.catalog.mu.Unlock()
	stock := make(map[int64]int)
	for id, p := range m.catalog.products {
		stock[id] = p.Stock
	}
	for _, it := range o.Items {
		if stock[it.ProductID] < it.Quantity {
			return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity}
		}
		stock[it.ProductID] -= it.Quantity
	}
	if o.CouponCode != "" {
		c := m.coupons.coupons[o.CouponCode]
		if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
			return ErrCouponRaceLost
		}
		c.UsedCount++
	}
	for id, s := range stock {
		p := m.catalog.products[id]
		p.Stock = s
		m.catalog.products[id] = p
	}

	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *memLedger) FindByID(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memLedger) FindByIdempotencyKey(_ context.Context, key string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memLedger) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memLedger) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *memLedger) UpdateStatus(_ context.Context, id int64, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			if o.Status != from {
				return ErrStatusConflict
			}
			o.Status = to
			return nil
		}
	}
	return ErrNotFound
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]Receipt
	getErr  error
}

func (m *mockCache) Get(_ context.Context, key string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockCache) Put(_ context.Context, key string, r Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = r
	return nil
}

type mockEvents struct {
	placed []string
	err    error
}

func (m *mockEvents) OrderPlaced(_ context.Context, o *Order) error {
	m.placed = append(m.placed, o.OrderNumber)
	return m.err
}

type declineAll struct{}

func (declineAll) Authorize(_ context.Context, _ Authorization) (AuthorizationResult, error) {
	return AuthorizationResult{Approved: false, Reason: "insufficient funds"}, nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func intPtr(v int) *int { return &v }

type fixture struct {
	catalog *mockCatalog
	coupons *mockCoupons
	ledger  *memLedger
	svc     *Service
}

func newFixture(t *testing.T, hour int, opts Options) *fixture {
	t.Helper()

	catalog := &mockCatalog{products: map[int64]product.Product{
		1: {ID: 1, Name: "Vitamin C 1000mg", Price: d("10.00"), Stock: 10, IsActive: true},
		2: {ID: 2, Name: "Baby Lotion", Price: d("20.00"), Stock: 1, IsActive: true},
	}}
	coupons := &mockCoupons{coupons: map[string]*coupon.Coupon{
		"SAVE20": {
			Code: "SAVE20", DiscountType: coupon.DiscountPercentage, Value: d("20"),
			MinOrderAmount: decimal.NewNullDecimal(d("30")), IsActive: true,
		},
		"FREESHIP": {
			Code: "FREESHIP", DiscountType: coupon.DiscountFixed, Value: d("3.50"),
			MinOrderAmount: decimal.NewNullDecimal(d("15")), IsActive: true,
		},
		"WELCOME10": {
			Code: "WELCOME10", DiscountType: coupon.DiscountPercentage, Value: d("10"),
			UsageLimit: intPtr(1), IsActive: true,
		},
	}}
	rules := &mockRules{now: time.Date(2025, 3, 10, hour, 0, 0, 0, time.UTC)}
	engine := pricing.NewEngine(catalog, coupons, rules, shipping.DefaultCollectPolicy())
	ledger := &memLedger{catalog: catalog, coupons: coupons}

	return &fixture{
		catalog: catalog,
		coupons: coupons,
		ledger:  ledger,
		svc:     NewService(engine, ledger, opts),
	}
}

func address() Address {
	return Address{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Address1:   "12 St James's Square",
		City:       "London",
		PostalCode: "SW1Y 4JH",
		Country:    "GB",
	}
}

func requireRejection(t *testing.T, err error, code ReasonCode) *RejectionError {
	t.Helper()
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, code, rej.Code)
	return rej
}

// --- Tests ---

func TestPlaceOrder_StandardShipping(t *testing.T) {
	f := newFixture(t, 10, Options{})

	conf, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 2}},
		ShippingAddress: address(),
		DeliveryMethod:  "standard",
		PaymentMethod:   "card",
	})
	require.NoError(t, err)

	assert.True(t, ValidNumber(conf.OrderNumber), conf.OrderNumber)
	assert.False(t, conf.Replayed)
	o := conf.Order
	assert.Equal(t, "20.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "3.50", o.ShippingCost.StringFixed(2))
	assert.Equal(t, "23.50", o.Total.StringFixed(2))
	assert.Equal(t, StatusProcessing, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.NotEmpty(t, o.PaymentReference)
	assert.Equal(t, 8, f.catalog.products[1].Stock)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Vitamin C 1000mg", o.Items[0].Name)
	assert.Equal(t, "20.00", o.Items[0].Total.StringFixed(2))
}

func TestPlaceOrder_CouponRejectedWithoutMutation(t *testing.T) {
	f := newFixture(t, 10, Options{})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 2}},
		ShippingAddress: address(),
		CouponCode:      "SAVE20",
	})
	rej := requireRejection(t, err, ReasonMinOrderNotMet)
	assert.Equal(t, StageValidated, rej.Stage)
	assert.False(t, rej.Retryable)
	assert.ErrorIs(t, err, coupon.ErrMinOrderNotMet)

	assert.Equal(t, 0, f.ledger.creates)
	assert.Equal(t, 10, f.catalog.products[1].Stock)
}

func TestPlaceOrder_FixedCouponFreeShipping(t *testing.T) {
	f := newFixture(t, 10, Options{})

	conf, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 4}},
		ShippingAddress: address(),
		CouponCode:      "freeship",
	})
	require.NoError(t, err)

	o := conf.Order
	assert.Equal(t, "40.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "3.50", o.Discount.StringFixed(2))
	assert.Equal(t, "0.00", o.ShippingCost.StringFixed(2))
	assert.Equal(t, "36.50", o.Total.StringFixed(2))
	assert.Equal(t, "FREESHIP", o.CouponCode)
	assert.Equal(t, 1, f.coupons.coupons["FREESHIP"].UsedCount)
}

func TestPlaceOrder_NextDayCutoffPassed(t *testing.T) {
	f := newFixture(t, 15, Options{})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
		DeliveryMethod:  "nextday",
	})
	requireRejection(t, err, ReasonNextDayCutoffPassed)
	assert.Equal(t, 0, f.ledger.creates)
}

func TestPlaceOrder_NextDayBeforeCutoff(t *testing.T) {
	f := newFixture(t, 9, Options{})

	conf, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
		DeliveryMethod:  "nextday",
	})
	require.NoError(t, err)
	assert.True(t, conf.Order.IsNextDayDelivery)
	assert.Equal(t, 1, conf.Order.EstimatedDays)
	assert.Equal(t, "14.95", conf.Order.Total.StringFixed(2))
}

func TestPlaceOrder_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		req  PlaceOrderRequest
	}{
		{name: "empty cart", req: PlaceOrderRequest{ShippingAddress: address()}},
		{name: "zero quantity", req: PlaceOrderRequest{Items: []pricing.Line{{ProductID: 1, Quantity: 0}}, ShippingAddress: address()}},
		{name: "quantity beyond column range", req: PlaceOrderRequest{Items: []pricing.Line{{ProductID: 1, Quantity: math.MaxInt}, {ProductID: 1, Quantity: math.MaxInt}}, ShippingAddress: address()}},
		{name: "missing address fields", req: PlaceOrderRequest{Items: []pricing.Line{{ProductID: 1, Quantity: 1}}, ShippingAddress: Address{FirstName: "Ada"}}},
		{name: "unknown delivery method", req: PlaceOrderRequest{Items: []pricing.Line{{ProductID: 1, Quantity: 1}}, ShippingAddress: address(), DeliveryMethod: "drone"}},
		{name: "unknown payment method", req: PlaceOrderRequest{Items: []pricing.Line{{ProductID: 1, Quantity: 1}}, ShippingAddress: address(), PaymentMethod: "cash"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, Options{})
			_, err := f.svc.PlaceOrder(context.Background(), tt.req)
			rej := requireRejection(t, err, ReasonInvalidPayload)
			assert.Equal(t, StageReceived, rej.Stage)
			assert.Equal(t, 0, f.ledger.creates)
		})
	}
}

func TestPlaceOrder_ProductErrors(t *testing.T) {
	f := newFixture(t, 10, Options{})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 42, Quantity: 1}},
		ShippingAddress: address(),
	})
	requireRejection(t, err, ReasonProductNotFound)

	_, err = f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 2, Quantity: 2}},
		ShippingAddress: address(),
	})
	requireRejection(t, err, ReasonProductUnavailable)
}

func TestPlaceOrder_HugeSplitLinesRejected(t *testing.T) {
	f := newFixture(t, 10, Options{})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []pricing.Line{
			{ProductID: 1, Quantity: math.MaxInt32},
			{ProductID: 1, Quantity: math.MaxInt32},
		},
		ShippingAddress: address(),
	})
	rej := requireRejection(t, err, ReasonProductUnavailable)
	assert.False(t, rej.Retryable)
	assert.Equal(t, 0, f.ledger.creates)
	assert.Equal(t, 10, f.catalog.products[1].Stock)
}

func TestPlaceOrder_UnsupportedDestination(t *testing.T) {
	f := newFixture(t, 10, Options{})
	addr := address()
	addr.Country = "JP"

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: addr,
	})
	requireRejection(t, err, ReasonUnsupportedDestination)
}

func TestPlaceOrder_PaymentDeclined(t *testing.T) {
	f := newFixture(t, 10, Options{Payments: declineAll{}})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
	})
	rej := requireRejection(t, err, ReasonPaymentDeclined)
	assert.Equal(t, StagePriced, rej.Stage)
	assert.Equal(t, 0, f.ledger.creates)
}

func TestPlaceOrder_LastUnitConcurrently(t *testing.T) {
	f := newFixture(t, 10, Options{})
	// Both requests price against stock=1 before either commits.
	f.svc.pricer = &barrierPricer{next: f.svc.pricer, wait: 2}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				Items:           []pricing.Line{{ProductID: 2, Quantity: 1}},
				ShippingAddress: address(),
			})
		}()
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		rej := requireRejection(t, err, ReasonInsufficientStock)
		assert.True(t, rej.Retryable)
		lost++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, f.catalog.products[2].Stock)
}

func TestPlaceOrder_CouponRaceLost(t *testing.T) {
	f := newFixture(t, 10, Options{})
	f.svc.pricer = &barrierPricer{next: f.svc.pricer, wait: 2}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
				ShippingAddress: address(),
				CouponCode:      "WELCOME10",
			})
		}()
	}
	wg.Wait()

	var lost int
	for _, err := range errs {
		if err != nil {
			requireRejection(t, err, ReasonCouponRaceLost)
			lost++
		}
	}
	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, f.coupons.coupons["WELCOME10"].UsedCount)
	assert.Equal(t, 9, f.catalog.products[1].Stock, "losing order must not decrement stock")
}

func TestPlaceOrder_RetriesOrderNumberCollision(t *testing.T) {
	f := newFixture(t, 10, Options{})
	f.ledger.createErrs = []error{ErrOrderNumberTaken, ErrOrderNumberTaken}

	conf, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, f.ledger.creates)
	assert.True(t, ValidNumber(conf.OrderNumber))
}

func TestPlaceOrder_GivesUpAfterAttempts(t *testing.T) {
	f := newFixture(t, 10, Options{NumberAttempts: 2})
	f.ledger.createErrs = []error{ErrOrderNumberTaken, ErrOrderNumberTaken, nil}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
	})
	require.ErrorIs(t, err, ErrOrderNumberTaken)
	_, _, classified := Classify(err)
	assert.False(t, classified)
	assert.Equal(t, 2, f.ledger.creates)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	cache := &mockCache{entries: map[string]Receipt{}}
	events := &mockEvents{}
	f := newFixture(t, 10, Options{Idempotency: cache, Events: events})
	req := PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
		IdempotencyKey:  "3f1c9a",
	}

	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, f.ledger.creates)
	assert.Equal(t, 9, f.catalog.products[1].Stock)
	assert.Equal(t, []string{first.OrderNumber}, events.placed)
}

func TestPlaceOrder_IdempotentReplayFromLedger(t *testing.T) {
	cache := &mockCache{entries: map[string]Receipt{}, getErr: errors.New("redis down")}
	f := newFixture(t, 10, Options{Idempotency: cache})
	req := PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
		IdempotencyKey:  "k-1",
	}

	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, 1, f.ledger.creates)
}

func TestPlaceOrder_EventFailureDoesNotFailCheckout(t *testing.T) {
	events := &mockEvents{err: errors.New("broker unavailable")}
	f := newFixture(t, 10, Options{Events: events})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
	})
	require.NoError(t, err)
	assert.Len(t, events.placed, 1)
}

func TestPlaceOrder_OrderTotalsReconcile(t *testing.T) {
	f := newFixture(t, 10, Options{})

	conf, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 3}},
		ShippingAddress: address(),
		CouponCode:      "SAVE20",
		DeliveryMethod:  "collect",
	})
	require.NoError(t, err)

	o := conf.Order
	want := o.Subtotal.Sub(o.Discount).Add(o.ShippingCost).Add(o.Tax).Round(2)
	assert.True(t, want.Equal(o.Total), "total %s, want %s", o.Total, want)
	assert.False(t, o.Total.IsNegative())

	stored, err := f.ledger.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(stored.Total))
	assert.Equal(t, o.Items, stored.Items)
}

func TestQuote(t *testing.T) {
	f := newFixture(t, 10, Options{})

	b, err := f.svc.Quote(context.Background(), QuoteRequest{
		Items:       []pricing.Line{{ProductID: 1, Quantity: 2}},
		CountryCode: "GB",
	})
	require.NoError(t, err)
	assert.Equal(t, "23.50", b.Total.StringFixed(2))
	assert.Equal(t, 0, f.ledger.creates)

	_, err = f.svc.Quote(context.Background(), QuoteRequest{
		Items: []pricing.Line{{ProductID: 1, Quantity: 2}},
	})
	requireRejection(t, err, ReasonInvalidPayload)
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t, 10, Options{})
	conf, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:           []pricing.Line{{ProductID: 1, Quantity: 1}},
		ShippingAddress: address(),
	})
	require.NoError(t, err)

	o, err := f.svc.ChangeStatus(context.Background(), conf.OrderID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Status)

	_, err = f.svc.ChangeStatus(context.Background(), conf.OrderID, StatusProcessing)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.ChangeStatus(context.Background(), conf.OrderID, StatusDelivered)
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(context.Background(), conf.OrderID, StatusCancelled)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.ChangeStatus(context.Background(), 999, StatusShipped)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusProcessing))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusShipped, StatusCancelled))
	assert.False(t, CanTransition(StatusPending, StatusShipped))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestFilter_Normalize(t *testing.T) {
	assert.Equal(t, Filter{Limit: 50}, Filter{}.Normalize())
	assert.Equal(t, Filter{Limit: 200, Offset: 0}, Filter{Limit: 1000, Offset: -5}.Normalize())
}

func TestRandomNumbers(t *testing.T) {
	gen := RandomNumbers(rand.Reader)
	seen := make(map[string]struct{})
	for range 200 {
		n, err := gen()
		require.NoError(t, err)
		require.True(t, ValidNumber(n), n)
		seen[n] = struct{}{}
	}
	assert.Len(t, seen, 200)

	// Bytes at or above the rejection limit are skipped.
	src := bytes.NewReader(append(bytes.Repeat([]byte{255}, 16), make([]byte, 64)...))
	n, err := RandomNumbers(src)()
	require.NoError(t, err)
	assert.Equal(t, "ORD-AAAAA-AAAAA", n)
}

// barrierPricer holds every caller until wait callers have priced, forcing
// concurrent checkouts to race at commit.
type barrierPricer struct {
	next Pricer
	wait int

	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func (b *barrierPricer) Price(ctx context.Context, req pricing.Request) (*pricing.Breakdown, error) {
	res, err := b.next.Price(ctx, req)

	b.mu.Lock()
	if b.release == nil {
		b.release = make(chan struct{})
	}
	b.arrived++
	if b.arrived == b.wait {
		close(b.release)
	}
	ch := b.release
	b.mu.Unlock()

	<-ch
	return res, err
}
