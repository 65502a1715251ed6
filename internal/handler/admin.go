package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// AdminListOrders handles GET /api/admin/orders.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, err := parseOrderFilter(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	orders, err := h.orders.List(ctx, f)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	writeOrders(w, orders)
}

func parseOrderFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	var f order.Filter

	if v := q.Get("status"); v != "" {
		st, ok := order.ParseStatus(v)
		if !ok {
			return f, badField("status", errors.Errorf("unknown status %q", v))
		}
		f.Status = &st
	}
	if v := q.Get("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, badField("userId", err)
		}
		f.UserID = &id
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, badField(p.name, errors.New("must be a non-negative integer"))
		}
		*p.dst = n
	}
	return f.Normalize(), nil
}

// AdminChangeStatus handles PATCH /api/admin/orders/{id}/status.
func (h *Handler) AdminChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(ctx, w, badField("id", errors.New("must be a positive integer")))
		return
	}

	body, err := readBody(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	var raw string
	err = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		raw = s
		return err
	})
	if err != nil {
		h.fail(ctx, w, badField("", err))
		return
	}
	to, ok := order.ParseStatus(raw)
	if !ok {
		h.fail(ctx, w, badField("status", errors.Errorf("unknown status %q", raw)))
		return
	}

	o, err := h.orders.ChangeStatus(ctx, id, to)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrder(e, o)
	writeJSON(w, http.StatusOK, e)
}

// AdminLowStock handles GET /api/admin/low-stock.
func (h *Handler) AdminLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.stock.ListLowStock(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ArrStart()
	for _, p := range products {
		encodeProduct(e, p)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	writeMoney(e, "price", p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("lowStockThreshold")
	e.Int(p.LowStockThreshold)
	e.ObjEnd()
}

// AdminListCoupons handles GET /api/admin/coupons.
func (h *Handler) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	coupons, err := h.couponAdmin.List(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ArrStart()
	for i := range coupons {
		encodeCoupon(e, &coupons[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

// AdminCreateCoupon handles POST /api/admin/coupons.
func (h *Handler) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	c, err := decodeCoupon(body)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := c.Check(); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := h.couponAdmin.Create(ctx, c); err != nil {
		h.fail(ctx, w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeCoupon(e, c)
	writeJSON(w, http.StatusCreated, e)
}

func decodeCoupon(data []byte) (*coupon.Coupon, error) {
	c := &coupon.Coupon{IsActive: true}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "description":
			err = optString(d, &c.Description)
		case "type":
			var t string
			t, err = d.Str()
			c.DiscountType = coupon.DiscountType(t)
		case "value":
			c.Value, err = decodeDecimal(d)
		case "minOrderAmount":
			c.MinOrderAmount, err = decodeNullDecimal(d)
		case "maxDiscount":
			c.MaxDiscount, err = decodeNullDecimal(d)
		case "usageLimit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var n int
			n, err = d.Int()
			c.UsageLimit = &n
		case "isActive":
			c.IsActive, err = d.Bool()
		case "startDate":
			c.StartDate, err = decodeTime(d)
		case "endDate":
			c.EndDate, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return badField(key, err)
		}
		return nil
	})
	if err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, badField("", err)
	}
	return c, nil
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("type")
	e.Str(string(c.DiscountType))
	writeMoney(e, "value", c.Value)
	writeNullMoney(e, "minOrderAmount", c.MinOrderAmount)
	writeNullMoney(e, "maxDiscount", c.MaxDiscount)
	e.FieldStart("usageLimit")
	if c.UsageLimit != nil {
		e.Int(*c.UsageLimit)
	} else {
		e.Null()
	}
	e.FieldStart("usedCount")
	e.Int(c.UsedCount)
	e.FieldStart("isActive")
	e.Bool(c.IsActive)
	writeOptTime(e, "startDate", c.StartDate)
	writeOptTime(e, "endDate", c.EndDate)
	e.ObjEnd()
}

func writeOptTime(e *jx.Encoder, field string, t *time.Time) {
	e.FieldStart(field)
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

// AdminListShippingRules handles GET /api/admin/shipping-rules.
func (h *Handler) AdminListShippingRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rules, err := h.rules.List(ctx)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ArrStart()
	for i := range rules {
		encodeRule(e, &rules[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

// AdminUpsertShippingRule handles PUT /api/admin/shipping-rules/{countryCode}.
func (h *Handler) AdminUpsertShippingRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	rule, err := decodeRule(body)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	rule.CountryCode = shipping.NormalizeCountry(r.PathValue("countryCode"))
	if err := rule.Check(); err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := h.rules.Upsert(ctx, rule); err != nil {
		h.fail(ctx, w, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeRule(e, rule)
	writeJSON(w, http.StatusOK, e)
}

func decodeRule(data []byte) (*shipping.Rule, error) {
	rule := &shipping.Rule{
		NextDayCutoffHour:    shipping.DefaultCutoffHour,
		StandardDeliveryDays: 3,
		IsActive:             true,
	}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "countryName":
			err = optString(d, &rule.CountryName)
		case "standardCost":
			rule.StandardCost, err = decodeDecimal(d)
		case "standardDeliveryDays":
			rule.StandardDeliveryDays, err = d.Int()
		case "freeShippingThreshold":
			rule.FreeShippingThreshold, err = decodeNullDecimal(d)
		case "nextDayAvailable":
			rule.NextDayAvailable, err = d.Bool()
		case "nextDayCost":
			rule.NextDayCost, err = decodeNullDecimal(d)
		case "nextDayCutoffHour":
			rule.NextDayCutoffHour, err = d.Int()
		case "clickCollectAvailable":
			rule.ClickCollectAvailable, err = d.Bool()
		case "isActive":
			rule.IsActive, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return badField(key, err)
		}
		return nil
	})
	if err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, badField("", err)
	}
	return rule, nil
}

func encodeRule(e *jx.Encoder, r *shipping.Rule) {
	e.ObjStart()
	e.FieldStart("countryCode")
	e.Str(r.CountryCode)
	e.FieldStart("countryName")
	e.Str(r.CountryName)
	writeMoney(e, "standardCost", r.StandardCost)
	e.FieldStart("standardDeliveryDays")
	e.Int(r.StandardDeliveryDays)
	writeNullMoney(e, "freeShippingThreshold", r.FreeShippingThreshold)
	e.FieldStart("nextDayAvailable")
	e.Bool(r.NextDayAvailable)
	writeNullMoney(e, "nextDayCost", r.NextDayCost)
	e.FieldStart("nextDayCutoffHour")
	e.Int(r.NextDayCutoffHour)
	e.FieldStart("clickCollectAvailable")
	e.Bool(r.ClickCollectAvailable)
	e.FieldStart("isActive")
	e.Bool(r.IsActive)
	e.ObjEnd()
}
