// Package shipping resolves a destination, order subtotal and requested
// delivery method into a shipping cost and delivery promise.
package shipping

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Method is the delivery method requested at checkout.
type Method string

const (
	MethodStandard Method = "standard"
	MethodNextDay  Method = "nextday"
	MethodCollect  Method = "collect"
)

// ParseMethod maps a wire value to a Method. An empty value selects standard
// delivery.
func ParseMethod(s string) (Method, bool) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodStandard:
		return MethodStandard, true
	case MethodNextDay:
		return MethodNextDay, true
	case MethodCollect:
		return MethodCollect, true
	}
	return "", false
}

// DefaultCutoffHour is the next-day cutoff used when a rule does not set one.
const DefaultCutoffHour = 14

var (
	ErrUnsupportedDestination  = errors.New("unsupported shipping destination")
	ErrClickCollectUnavailable = errors.New("click and collect unavailable")
	ErrNextDayUnavailable      = errors.New("next-day delivery unavailable")
	ErrNextDayCutoffPassed     = errors.New("next-day cutoff has passed")
	ErrRuleNotFound            = errors.New("shipping rule not found")
)

// Rule is the per-country shipping configuration.
type Rule struct {
	CountryCode           string
	CountryName           string
	StandardCost          decimal.Decimal
	StandardDeliveryDays  int
	FreeShippingThreshold decimal.NullDecimal
	NextDayAvailable      bool
	NextDayCost           decimal.NullDecimal
	NextDayCutoffHour     int
	ClickCollectAvailable bool
	IsActive              bool
}

// InvalidRuleError describes a rule rejected by Check.
type InvalidRuleError struct {
	Field  string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return "invalid shipping rule " + e.Field + ": " + e.Reason
}

// Check validates a rule before it is stored.
func (r *Rule) Check() error {
	r.CountryCode = NormalizeCountry(r.CountryCode)
	switch {
	case len(r.CountryCode) != 2:
		return &InvalidRuleError{Field: "countryCode", Reason: "must be a two-letter code"}
	case r.StandardCost.IsNegative():
		return &InvalidRuleError{Field: "standardCost", Reason: "must not be negative"}
	case r.StandardDeliveryDays < 0:
		return &InvalidRuleError{Field: "standardDeliveryDays", Reason: "must not be negative"}
	case r.NextDayAvailable && !r.NextDayCost.Valid:
		return &InvalidRuleError{Field: "nextDayCost", Reason: "required when next-day delivery is available"}
	case r.NextDayCost.Valid && r.NextDayCost.Decimal.IsNegative():
		return &InvalidRuleError{Field: "nextDayCost", Reason: "must not be negative"}
	case r.NextDayCutoffHour < 0 || r.NextDayCutoffHour > 23:
		return &InvalidRuleError{Field: "nextDayCutoffHour", Reason: "must be between 0 and 23"}
	}
	return nil
}

// NormalizeCountry canonicalizes an ISO country code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Decision is the resolved shipping outcome for an order.
type Decision struct {
	Method        Method
	Cost          decimal.Decimal
	EstimatedDays int
	CountryCode   string
}

// IsNextDay reports whether the decision grants next-day delivery.
func (d Decision) IsNextDay() bool {
	return d.Method == MethodNextDay
}

// Repository provides access to shipping rules.
type Repository interface {
	// FindByCountry returns ErrRuleNotFound when no rule exists.
	FindByCountry(ctx context.Context, countryCode string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	Upsert(ctx context.Context, r *Rule) error
}

// NextDayOpen reports whether an order placed at now still qualifies for
// next-day delivery. now must already be in the store's local time zone.
func NextDayOpen(now time.Time, cutoffHour int) bool {
	return now.Hour() < cutoffHour
}
