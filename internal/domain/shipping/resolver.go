package shipping

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// CollectPolicy prices click and collect orders. Collection is free at or
// above FreeThreshold, otherwise Fee is charged.
type CollectPolicy struct {
	FreeThreshold decimal.Decimal
	Fee           decimal.Decimal
	DeliveryDays  int
}

// DefaultCollectPolicy returns the store's standard collect pricing.
func DefaultCollectPolicy() CollectPolicy {
	return CollectPolicy{
		FreeThreshold: decimal.NewFromInt(15),
		Fee:           decimal.RequireFromString("1.50"),
		DeliveryDays:  2,
	}
}

// Decide applies rule to the subtotal and requested method at local time now.
// It performs no I/O.
func Decide(rule *Rule, subtotal decimal.Decimal, method Method, now time.Time, collect CollectPolicy) (Decision, error) {
	if rule == nil || !rule.IsActive {
		return Decision{}, ErrUnsupportedDestination
	}

	out := Decision{Method: method, CountryCode: rule.CountryCode}

	switch method {
	case MethodCollect:
		if !rule.ClickCollectAvailable {
			return Decision{}, ErrClickCollectUnavailable
		}
		out.Cost = collect.Fee
		if subtotal.GreaterThanOrEqual(collect.FreeThreshold) {
			out.Cost = decimal.Zero
		}
		out.EstimatedDays = collect.DeliveryDays
	case MethodNextDay:
		if !rule.NextDayAvailable || !rule.NextDayCost.Valid {
			return Decision{}, ErrNextDayUnavailable
		}
		if !NextDayOpen(now, rule.NextDayCutoffHour) {
			return Decision{}, ErrNextDayCutoffPassed
		}
		out.Cost = rule.NextDayCost.Decimal
		out.EstimatedDays = 1
	default:
		out.Method = MethodStandard
		out.Cost = rule.StandardCost
		if rule.FreeShippingThreshold.Valid && subtotal.GreaterThanOrEqual(rule.FreeShippingThreshold.Decimal) {
			out.Cost = decimal.Zero
		}
		out.EstimatedDays = rule.StandardDeliveryDays
	}

	return out, nil
}

// Resolver looks up rules and decides shipping in the store's time zone.
type Resolver struct {
	rules   Repository
	collect CollectPolicy
	loc     *time.Location
	now     func() time.Time
}

// NewResolver creates a Resolver. A nil loc means UTC.
func NewResolver(rules Repository, collect CollectPolicy, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{rules: rules, collect: collect, loc: loc, now: time.Now}
}

// Resolve returns the shipping decision for an order to countryCode.
func (r *Resolver) Resolve(ctx context.Context, countryCode string, subtotal decimal.Decimal, method Method) (Decision, error) {
	rule, err := r.Rule(ctx, countryCode)
	if err != nil {
		return Decision{}, err
	}
	return Decide(rule, subtotal, method, r.Now(), r.collect)
}

// Rule fetches the rule for countryCode, mapping a missing rule to
// ErrUnsupportedDestination.
func (r *Resolver) Rule(ctx context.Context, countryCode string) (*Rule, error) {
	code := NormalizeCountry(countryCode)
	if code == "" {
		return nil, ErrUnsupportedDestination
	}
	rule, err := r.rules.FindByCountry(ctx, code)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return nil, ErrUnsupportedDestination
		}
		return nil, errors.Wrap(err, "lookup shipping rule")
	}
	return rule, nil
}

// Now returns the current time in the store's time zone.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.loc)
}

// NextDayStatus is the display-only next-day availability for a country.
type NextDayStatus struct {
	Available  bool
	CutoffHour int
}

// NextDay reports whether next-day delivery can currently be offered. With
// an empty countryCode only the default cutoff is considered.
func (r *Resolver) NextDay(ctx context.Context, countryCode string) (NextDayStatus, error) {
	now := r.Now()
	if NormalizeCountry(countryCode) == "" {
		return NextDayStatus{Available: NextDayOpen(now, DefaultCutoffHour), CutoffHour: DefaultCutoffHour}, nil
	}

	rule, err := r.Rule(ctx, countryCode)
	if err != nil {
		return NextDayStatus{}, err
	}
	st := NextDayStatus{CutoffHour: rule.NextDayCutoffHour}
	st.Available = rule.IsActive && rule.NextDayAvailable && rule.NextDayCost.Valid &&
		NextDayOpen(now, rule.NextDayCutoffHour)
	return st, nil
}
