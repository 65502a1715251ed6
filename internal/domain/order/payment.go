package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Authorization is a request to authorize payment for a priced order.
type Authorization struct {
	Amount         decimal.Decimal
	Method         PaymentMethod
	IdempotencyKey string
}

// AuthorizationResult is the gateway's answer.
type AuthorizationResult struct {
	Approved  bool
	Reference string
	Reason    string
}

// PaymentAuthorizer sits between pricing and commit.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, a Authorization) (AuthorizationResult, error)
}

// AlwaysApprove approves every authorization without contacting a gateway.
type AlwaysApprove struct{}

var _ PaymentAuthorizer = AlwaysApprove{}

// Authorize implements PaymentAuthorizer.
func (AlwaysApprove) Authorize(_ context.Context, _ Authorization) (AuthorizationResult, error) {
	return AuthorizationResult{Approved: true, Reference: "auth_" + uuid.NewString()}, nil
}
