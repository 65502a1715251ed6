package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

const idempotencyHeader = "Idempotency-Key"

// maxIdempotencyKey matches the orders.idempotency_key column.
const maxIdempotencyKey = 128

// Quote handles POST /api/checkout/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	p, err := decodeCheckout(body)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	country := p.Country
	if country == "" {
		country = p.ShippingAddress.Country
	}

	b, err := h.orders.Quote(ctx, order.QuoteRequest{
		Items:          p.Items,
		CountryCode:    country,
		DeliveryMethod: p.DeliveryMethod,
		CouponCode:     p.CouponCode,
	})
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeBreakdown(e, b)
	writeJSON(w, http.StatusOK, e)
}

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > maxIdempotencyKey {
		h.fail(ctx, w, badField(idempotencyHeader, errors.New("too long")))
		return
	}

	body, err := readBody(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	p, err := decodeCheckout(body)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	req := order.PlaceOrderRequest{
		Items:           p.Items,
		ShippingAddress: p.ShippingAddress,
		DeliveryMethod:  p.DeliveryMethod,
		PaymentMethod:   p.PaymentMethod,
		CouponCode:      p.CouponCode,
		IdempotencyKey:  key,
	}
	if id := h.optionalUser(r); id != nil {
		req.UserID = &id.UserID
	}

	conf, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if conf.Replayed {
		status = http.StatusOK
	} else {
		h.placed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("guest", req.UserID == nil)))
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("orderNumber")
	e.Str(conf.OrderNumber)
	e.FieldStart("orderId")
	e.Int64(conf.OrderID)
	if conf.Replayed {
		e.FieldStart("replayed")
		e.Bool(true)
	}
	e.ObjEnd()
	writeJSON(w, status, e)
}

// ListMyOrders handles GET /api/orders for the signed-in customer.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := auth.IdentityFrom(ctx)

	orders, err := h.orders.ListForUser(ctx, id.UserID)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	writeOrders(w, orders)
}

// ValidateCoupon handles GET /api/coupons/validate. Business failures are
// reported in the body with status 200; nothing is redeemed. A missing
// amount counts as zero.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	amount := decimal.Zero
	var err error
	if raw := q.Get("amount"); raw != "" {
		amount, err = decimal.NewFromString(raw)
	}
	if err != nil || amount.IsNegative() {
		h.fail(ctx, w, badField("amount", errors.New("must be a non-negative number")))
		return
	}

	disc, err := h.coupons.Validate(ctx, q.Get("code"), amount)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	if err != nil {
		code, _, ok := order.Classify(err)
		if !ok {
			h.fail(ctx, w, err)
			return
		}
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(false)
		e.FieldStart("errorCode")
		e.Str(string(code))
		e.FieldStart("message")
		e.Str(err.Error())
		e.ObjEnd()
		writeJSON(w, http.StatusOK, e)
		return
	}

	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(true)
	e.FieldStart("code")
	e.Str(disc.Code)
	e.FieldStart("type")
	e.Str(string(disc.Type))
	writeMoney(e, "discount", disc.Amount)
	writeOptStr(e, "description", disc.Description)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

// NextDay handles GET /api/shipping/next-day.
func (h *Handler) NextDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	country := shipping.NormalizeCountry(r.URL.Query().Get("country"))

	st, err := h.nextDay.NextDay(ctx, country)
	if err != nil {
		if !errors.Is(err, shipping.ErrUnsupportedDestination) {
			h.fail(ctx, w, err)
			return
		}
		st = shipping.NextDayStatus{CutoffHour: shipping.DefaultCutoffHour}
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("available")
	e.Bool(st.Available)
	e.FieldStart("cutoffHour")
	e.Int(st.CutoffHour)
	writeOptStr(e, "country", country)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

func encodeBreakdown(e *jx.Encoder, b *pricing.Breakdown) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range b.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Int64(l.ProductID)
		writeOptInt64(e, "variantId", l.VariantID)
		e.FieldStart("name")
		e.Str(l.Name)
		writeMoney(e, "unitPrice", l.UnitPrice)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		writeMoney(e, "total", l.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	writeMoney(e, "subtotal", b.Subtotal)
	writeMoney(e, "discount", b.Discount)
	writeMoney(e, "shippingCost", b.ShippingCost)
	writeMoney(e, "tax", b.Tax)
	writeMoney(e, "total", b.Total)
	e.FieldStart("shippingMethod")
	e.Str(string(b.Shipping.Method))
	e.FieldStart("estimatedDays")
	e.Int(b.Shipping.EstimatedDays)
	e.FieldStart("isNextDay")
	e.Bool(b.Shipping.IsNextDay())
	e.FieldStart("country")
	e.Str(b.Shipping.CountryCode)
	if b.Coupon != nil {
		writeOptStr(e, "couponCode", b.Coupon.Code)
	} else {
		writeOptStr(e, "couponCode", "")
	}
	e.ObjEnd()
}

func writeOrders(w http.ResponseWriter, orders []order.Order) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.OrderNumber)
	writeOptInt64(e, "userId", o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	writeMoney(e, "subtotal", o.Subtotal)
	writeMoney(e, "discount", o.Discount)
	writeMoney(e, "shippingCost", o.ShippingCost)
	writeMoney(e, "tax", o.Tax)
	writeMoney(e, "total", o.Total)
	writeOptStr(e, "couponCode", o.CouponCode)
	e.FieldStart("shippingMethod")
	e.Str(string(o.ShippingMethod))
	e.FieldStart("isNextDayDelivery")
	e.Bool(o.IsNextDayDelivery)
	e.FieldStart("estimatedDays")
	e.Int(o.EstimatedDays)
	e.FieldStart("estimatedDelivery")
	e.Str(o.EstimatedDelivery().UTC().Format(time.RFC3339))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("shippingAddress")
	encodeAddress(e, o.ShippingAddress)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("productId")
		e.Int64(it.ProductID)
		writeOptInt64(e, "variantId", it.VariantID)
		e.FieldStart("name")
		e.Str(it.Name)
		writeMoney(e, "price", it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		writeMoney(e, "total", it.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.ObjStart()
	for _, f := range []struct{ key, value string }{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"email", a.Email},
		{"phone", a.Phone},
		{"address1", a.Address1},
		{"address2", a.Address2},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	} {
		if f.value == "" {
			continue
		}
		e.FieldStart(f.key)
		e.Str(f.value)
	}
	e.ObjEnd()
}
