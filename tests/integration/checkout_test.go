//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"
)

// Seeded catalog ids, in db/seed/products.json order.
const (
	productVitaminC    = 1
	productBabyLotion  = 3
	productLavender    = 7
	productLimitedGift = 9
)

func uniqueKey(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name         string
		req          checkoutRequest
		wantTotal    string
		wantDiscount string
		wantShipping string
		wantDays     int
	}{
		{
			name: "SAVE20 with free standard shipping",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productBabyLotion, Quantity: 2}},
				ShippingAddress: gbAddress(),
				CouponCode:      "save20",
			},
			wantTotal:    "32.00",
			wantDiscount: "8.00",
			wantShipping: "0.00",
			wantDays:     3,
		},
		{
			name: "Ireland standard below threshold",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
				ShippingAddress: addressRequest{Country: "IE"},
			},
			wantTotal:    "15.99",
			wantDiscount: "0.00",
			wantShipping: "5.99",
			wantDays:     5,
		},
		{
			name: "Click and collect below threshold",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
				ShippingAddress: gbAddress(),
				DeliveryMethod:  "collect",
			},
			wantTotal:    "11.50",
			wantDiscount: "0.00",
			wantShipping: "1.50",
			wantDays:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, "/api/checkout/quote", tt.req)
			defer resp.Body.Close()
			expectStatus(t, resp, http.StatusOK)

			q := decodeJSON[quoteResponse](t, resp)
			if q.Total != tt.wantTotal {
				t.Errorf("total: got %s, want %s", q.Total, tt.wantTotal)
			}
			if q.Discount != tt.wantDiscount {
				t.Errorf("discount: got %s, want %s", q.Discount, tt.wantDiscount)
			}
			if q.ShippingCost != tt.wantShipping {
				t.Errorf("shipping: got %s, want %s", q.ShippingCost, tt.wantShipping)
			}
			if q.EstimatedDays != tt.wantDays {
				t.Errorf("estimatedDays: got %d, want %d", q.EstimatedDays, tt.wantDays)
			}
		})
	}
}

func TestQuote_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		req      checkoutRequest
		wantCode string
	}{
		{
			name: "unknown product",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: 99999, Quantity: 1}},
				ShippingAddress: gbAddress(),
			},
			wantCode: "ProductNotFound",
		},
		{
			name: "minimum order not met",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
				ShippingAddress: gbAddress(),
				CouponCode:      "FREESHIP",
			},
			wantCode: "MinOrderNotMet",
		},
		{
			name: "unknown coupon",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
				ShippingAddress: gbAddress(),
				CouponCode:      "NOPE",
			},
			wantCode: "CouponNotFound",
		},
		{
			name: "unsupported destination",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
				ShippingAddress: addressRequest{Country: "ZZ"},
			},
			wantCode: "UnsupportedDestination",
		},
		{
			name: "collect unavailable",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
				ShippingAddress: addressRequest{Country: "IE"},
				DeliveryMethod:  "collect",
			},
			wantCode: "ClickCollectUnavailable",
		},
		{
			name: "zero quantity",
			req: checkoutRequest{
				Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 0}},
				ShippingAddress: gbAddress(),
			},
			wantCode: "InvalidPayload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, "/api/checkout/quote", tt.req)
			defer resp.Body.Close()
			expectStatus(t, resp, http.StatusBadRequest)

			body := decodeJSON[errorResponse](t, resp)
			if body.ErrorCode != tt.wantCode {
				t.Errorf("errorCode: got %q, want %q (%s)", body.ErrorCode, tt.wantCode, body.Message)
			}
		})
	}
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	req := checkoutRequest{
		Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
		ShippingAddress: gbAddress(),
		PaymentMethod:   "card",
	}
	headers := map[string]string{"Idempotency-Key": uniqueKey(t)}

	resp := do(t, http.MethodPost, "/api/orders", req, headers)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	first := decodeJSON[confirmationResponse](t, resp)
	if first.OrderNumber == "" || first.OrderID == 0 {
		t.Fatalf("incomplete confirmation: %+v", first)
	}

	replay := do(t, http.MethodPost, "/api/orders", req, headers)
	defer replay.Body.Close()
	expectStatus(t, replay, http.StatusOK)
	second := decodeJSON[confirmationResponse](t, replay)
	if !second.Replayed {
		t.Error("expected replayed flag")
	}
	if second.OrderNumber != first.OrderNumber || second.OrderID != first.OrderID {
		t.Errorf("replay returned %+v, want %+v", second, first)
	}
}

func TestPlaceOrder_MissingAddress(t *testing.T) {
	resp := doPost(t, "/api/orders", checkoutRequest{
		Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
		ShippingAddress: addressRequest{Country: "GB"},
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	if body := decodeJSON[errorResponse](t, resp); body.ErrorCode != "InvalidPayload" {
		t.Errorf("errorCode: got %q, want InvalidPayload", body.ErrorCode)
	}
}

func TestPlaceOrder_LastUnitRace(t *testing.T) {
	const buyers = 5

	payload, err := json.Marshal(checkoutRequest{
		Items:           []lineRequest{{ProductID: productLimitedGift, Quantity: 1}},
		ShippingAddress: gbAddress(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	type result struct {
		status int
		body   errorResponse
		err    error
	}
	results := make([]result, buyers)

	var wg sync.WaitGroup
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := httpClient.Post(baseURL+"/api/orders", "application/json", bytes.NewReader(payload))
			if err != nil {
				results[i].err = err
				return
			}
			defer resp.Body.Close()
			results[i].status = resp.StatusCode
			if resp.StatusCode != http.StatusCreated {
				results[i].err = json.NewDecoder(resp.Body).Decode(&results[i].body)
			}
		}()
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		if r.err != nil {
			t.Fatalf("request failed: %v", r.err)
		}
		if r.status == http.StatusCreated {
			created++
			continue
		}
		switch r.body.ErrorCode {
		case "InsufficientStock":
			if r.status != http.StatusConflict || !r.body.Retryable {
				t.Errorf("InsufficientStock should be a retryable 409: %d %+v", r.status, r.body)
			}
		case "ProductUnavailable":
		default:
			t.Errorf("unexpected failure %d %+v", r.status, r.body)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one order for the last unit, got %d", created)
	}
}

func TestPlaceOrder_SingleUseCoupon(t *testing.T) {
	req := checkoutRequest{
		Items:           []lineRequest{{ProductID: productVitaminC, Quantity: 1}},
		ShippingAddress: gbAddress(),
		CouponCode:      "WELCOME10",
	}

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	again := doPost(t, "/api/orders", req)
	defer again.Body.Close()
	if again.StatusCode != http.StatusBadRequest && again.StatusCode != http.StatusConflict {
		t.Fatalf("expected 400 or 409, got %d", again.StatusCode)
	}
	body := decodeJSON[errorResponse](t, again)
	if body.ErrorCode != "UsageLimitReached" && body.ErrorCode != "CouponRaceLost" {
		t.Errorf("unexpected errorCode %q", body.ErrorCode)
	}
}

func TestOrderHistory(t *testing.T) {
	resp := doGet(t, "/api/orders")
	resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)

	const userID = 4242
	auth := bearer(t, userID)

	placed := do(t, http.MethodPost, "/api/orders", checkoutRequest{
		Items:           []lineRequest{{ProductID: productLavender, Quantity: 1}},
		ShippingAddress: gbAddress(),
	}, auth)
	defer placed.Body.Close()
	expectStatus(t, placed, http.StatusCreated)
	conf := decodeJSON[confirmationResponse](t, placed)

	list := do(t, http.MethodGet, "/api/orders", nil, auth)
	defer list.Body.Close()
	expectStatus(t, list, http.StatusOK)

	orders := decodeJSON[[]orderResponse](t, list)
	if len(orders) == 0 {
		t.Fatal("expected at least one order")
	}
	got := orders[0]
	if got.OrderNumber != conf.OrderNumber {
		t.Fatalf("newest order: got %s, want %s", got.OrderNumber, conf.OrderNumber)
	}
	if got.UserID == nil || *got.UserID != userID {
		t.Errorf("userId: got %v, want %d", got.UserID, userID)
	}
	if got.Status != "processing" {
		t.Errorf("status: got %q, want processing", got.Status)
	}
	if len(got.Items) != 1 || got.Items[0].Price != "8.49" {
		t.Errorf("items: got %+v", got.Items)
	}
}

func TestValidateCoupon(t *testing.T) {
	tests := []struct {
		code, amount string
		valid        bool
		wantCode     string
	}{
		{code: "save20", amount: "50", valid: true},
		{code: "SAVE20", amount: "10", wantCode: "MinOrderNotMet"},
		{code: "MISSING", amount: "10", wantCode: "CouponNotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.amount, func(t *testing.T) {
			q := url.Values{"code": {tt.code}, "amount": {tt.amount}}
			resp := doGet(t, "/api/coupons/validate?"+q.Encode())
			defer resp.Body.Close()
			expectStatus(t, resp, http.StatusOK)

			body := decodeJSON[map[string]any](t, resp)
			if body["valid"] != tt.valid {
				t.Fatalf("valid: got %v, want %v (%v)", body["valid"], tt.valid, body)
			}
			if tt.valid {
				if body["discount"] != "10.00" {
					t.Errorf("discount: got %v, want 10.00", body["discount"])
				}
				return
			}
			if body["errorCode"] != tt.wantCode {
				t.Errorf("errorCode: got %v, want %s", body["errorCode"], tt.wantCode)
			}
		})
	}
}

func TestNextDay(t *testing.T) {
	resp := doGet(t, "/api/shipping/next-day?country=gb")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	body := decodeJSON[map[string]any](t, resp)
	if body["cutoffHour"] != float64(14) {
		t.Errorf("cutoffHour: got %v, want 14", body["cutoffHour"])
	}
	if body["country"] != "GB" {
		t.Errorf("country: got %v, want GB", body["country"])
	}

	ie := doGet(t, "/api/shipping/next-day?country=IE")
	defer ie.Body.Close()
	expectStatus(t, ie, http.StatusOK)
	if body := decodeJSON[map[string]any](t, ie); body["available"] != false {
		t.Errorf("IE next-day should be unavailable: %v", body)
	}
}
