package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// Stage is a checkout state. A rejection records the last stage the
// checkout reached.
type Stage int

const (
	StageReceived Stage = iota
	StageValidated
	StagePriced
	StageCommitted
	StageConfirmed
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageValidated:
		return "validated"
	case StagePriced:
		return "priced"
	case StageCommitted:
		return "committed"
	case StageConfirmed:
		return "confirmed"
	case StageRejected:
		return "rejected"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ReasonCode is the caller-facing classification of a rejected checkout.
type ReasonCode string

const (
	ReasonInvalidPayload          ReasonCode = "InvalidPayload"
	ReasonProductNotFound         ReasonCode = "ProductNotFound"
	ReasonProductUnavailable      ReasonCode = "ProductUnavailable"
	ReasonCouponNotFound          ReasonCode = "CouponNotFound"
	ReasonCouponNotYetActive      ReasonCode = "CouponNotYetActive"
	ReasonCouponExpired           ReasonCode = "CouponExpired"
	ReasonMinOrderNotMet          ReasonCode = "MinOrderNotMet"
	ReasonUsageLimitReached       ReasonCode = "UsageLimitReached"
	ReasonUnsupportedDestination  ReasonCode = "UnsupportedDestination"
	ReasonClickCollectUnavailable ReasonCode = "ClickCollectUnavailable"
	ReasonNextDayUnavailable      ReasonCode = "NextDayUnavailable"
	ReasonNextDayCutoffPassed     ReasonCode = "NextDayCutoffPassed"
	ReasonInsufficientStock       ReasonCode = "InsufficientStock"
	ReasonCouponRaceLost          ReasonCode = "CouponRaceLost"
	ReasonPaymentDeclined         ReasonCode = "PaymentDeclined"
)

// RejectionError is a checkout that ended in the Rejected state. Nothing
// was persisted. Retryable rejections lost a race at commit time and may
// succeed if the client submits again.
type RejectionError struct {
	Code      ReasonCode
	Stage     Stage
	Retryable bool
	Err       error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("checkout rejected at %s: %s: %v", e.Stage, e.Code, e.Err)
}

func (e *RejectionError) Unwrap() error { return e.Err }

func reject(code ReasonCode, stage Stage, err error) *RejectionError {
	return &RejectionError{Code: code, Stage: stage, Err: err}
}

var reasons = []struct {
	err       error
	code      ReasonCode
	retryable bool
}{
	{pricing.ErrInvalidQuantity, ReasonInvalidPayload, false},
	{product.ErrNotFound, ReasonProductNotFound, false},
	{coupon.ErrCouponNotFound, ReasonCouponNotFound, false},
	{coupon.ErrCouponNotYetActive, ReasonCouponNotYetActive, false},
	{coupon.ErrCouponExpired, ReasonCouponExpired, false},
	{coupon.ErrMinOrderNotMet, ReasonMinOrderNotMet, false},
	{coupon.ErrUsageLimitReached, ReasonUsageLimitReached, false},
	{shipping.ErrUnsupportedDestination, ReasonUnsupportedDestination, false},
	{shipping.ErrClickCollectUnavailable, ReasonClickCollectUnavailable, false},
	{shipping.ErrNextDayUnavailable, ReasonNextDayUnavailable, false},
	{shipping.ErrNextDayCutoffPassed, ReasonNextDayCutoffPassed, false},
	{ErrInsufficientStock, ReasonInsufficientStock, true},
	{ErrCouponRaceLost, ReasonCouponRaceLost, true},
}

// Classify maps a domain error to its reason code. It reports false for
// errors that are not business rejections, such as storage failures.
func Classify(err error) (code ReasonCode, retryable bool, ok bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Code, rej.Retryable, true
	}
	var unavailable *product.UnavailableError
	if errors.As(err, &unavailable) {
		return ReasonProductUnavailable, false, true
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code, r.retryable, true
		}
	}
	return "", false, false
}

// rejectAt wraps a classified error as a rejection at stage, or returns
// the error unchanged when it is not a business failure.
func rejectAt(stage Stage, err error) error {
	code, retryable, ok := Classify(err)
	if !ok {
		return err
	}
	return &RejectionError{Code: code, Stage: stage, Retryable: retryable, Err: err}
}
