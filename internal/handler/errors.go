package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorBody(w, status, code, message, false)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string, retryable bool) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("errorCode")
	e.Str(code)
	e.FieldStart("message")
	e.Str(message)
	if retryable {
		e.FieldStart("retryable")
		e.Bool(true)
	}
	e.ObjEnd()
	writeJSON(w, status, e)
}

// fail renders err. Business failures carry their own message; anything
// unrecognised is logged and hidden behind a generic 500.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		rej       *order.RejectionError
		dec       *decodeError
		couponErr *coupon.InvalidError
		ruleErr   *shipping.InvalidRuleError
	)
	switch {
	case errors.As(err, &rej):
		h.rejections.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", string(rej.Code)),
			attribute.String("stage", rej.Stage.String()),
		))
		zctx.From(ctx).Info("Checkout rejected",
			zap.String("code", string(rej.Code)),
			zap.Stringer("stage", rej.Stage),
			zap.Bool("retryable", rej.Retryable),
			zap.NamedError("reason", rej.Err),
		)
		status := http.StatusBadRequest
		if rej.Retryable {
			status = http.StatusConflict
		}
		writeErrorBody(w, status, string(rej.Code), rej.Err.Error(), rej.Retryable)
	case errors.As(err, &dec):
		writeError(w, http.StatusBadRequest, string(order.ReasonInvalidPayload), dec.Error())
	case errors.As(err, &couponErr):
		writeError(w, http.StatusBadRequest, string(order.ReasonInvalidPayload), couponErr.Error())
	case errors.As(err, &ruleErr):
		writeError(w, http.StatusBadRequest, string(order.ReasonInvalidPayload), ruleErr.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid credentials")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", "insufficient scope")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "order not found")
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "InvalidTransition", err.Error())
	case errors.Is(err, order.ErrStatusConflict):
		writeErrorBody(w, http.StatusConflict, "StatusConflict", "order status changed concurrently", true)
	case errors.Is(err, coupon.ErrCodeTaken):
		writeError(w, http.StatusConflict, "CouponCodeTaken", "coupon code already exists")
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}
