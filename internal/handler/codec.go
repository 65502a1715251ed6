package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// decodeError is a malformed request body or parameter.
type decodeError struct {
	field string
	err   error
}

func (e *decodeError) Error() string {
	if e.field == "" {
		return "invalid request body: " + e.err.Error()
	}
	return "invalid " + e.field + ": " + e.err.Error()
}

func (e *decodeError) Unwrap() error { return e.err }

func badField(field string, err error) error {
	return &decodeError{field: field, err: err}
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, badField("", err)
	}
	if len(body) > maxBodyBytes {
		return nil, badField("", errors.New("body too large"))
	}
	if len(body) == 0 {
		return nil, badField("", errors.New("empty body"))
	}
	return body, nil
}

// checkoutPayload is the body of POST /api/orders and /api/checkout/quote.
type checkoutPayload struct {
	Items           []pricing.Line
	ShippingAddress order.Address
	DeliveryMethod  string
	PaymentMethod   string
	CouponCode      string
	// Country is accepted by the quote endpoint when no address is given.
	Country string
}

func decodeCheckout(data []byte) (*checkoutPayload, error) {
	var p checkoutPayload
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return err
				}
				p.Items = append(p.Items, line)
				return nil
			})
		case "shippingAddress":
			return decodeAddress(d, &p.ShippingAddress)
		case "deliveryMethod":
			return optString(d, &p.DeliveryMethod)
		case "paymentMethod":
			return optString(d, &p.PaymentMethod)
		case "couponCode":
			return optString(d, &p.CouponCode)
		case "country":
			return optString(d, &p.Country)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, badField("", err)
	}
	return &p, nil
}

func decodeLine(d *jx.Decoder) (pricing.Line, error) {
	var (
		line         pricing.Line
		hasID, hasQt bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			line.ProductID, err = d.Int64()
			hasID = err == nil
		case "quantity":
			line.Quantity, err = d.Int()
			hasQt = err == nil
		case "variantId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v int64
			v, err = d.Int64()
			line.VariantID = &v
		default:
			err = d.Skip()
		}
		if err != nil {
			return badField("items."+key, err)
		}
		return nil
	})
	if err != nil {
		return line, err
	}
	switch {
	case !hasID:
		return line, badField("items.productId", errors.New("required"))
	case !hasQt:
		return line, badField("items.quantity", errors.New("required"))
	}
	return line, nil
}

func decodeAddress(d *jx.Decoder, a *order.Address) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	fields := map[string]*string{
		"firstName":  &a.FirstName,
		"lastName":   &a.LastName,
		"email":      &a.Email,
		"phone":      &a.Phone,
		"address1":   &a.Address1,
		"address2":   &a.Address2,
		"city":       &a.City,
		"postalCode": &a.PostalCode,
		"country":    &a.Country,
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		dst, ok := fields[key]
		if !ok {
			return d.Skip()
		}
		if err := optString(d, dst); err != nil {
			return badField("shippingAddress."+key, err)
		}
		return nil
	})
}

// optString reads a string or null into dst.
func optString(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

// decodeDecimal reads a JSON number or numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
}

func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// writeMoney writes a monetary amount as a two-decimal string.
func writeMoney(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(money.String(v))
}

func writeNullMoney(e *jx.Encoder, field string, v decimal.NullDecimal) {
	e.FieldStart(field)
	if !v.Valid {
		e.Null()
		return
	}
	e.Str(money.String(v.Decimal))
}

func writeOptStr(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	if v == "" {
		e.Null()
		return
	}
	e.Str(v)
}

func writeOptInt64(e *jx.Encoder, field string, v *int64) {
	e.FieldStart(field)
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}
