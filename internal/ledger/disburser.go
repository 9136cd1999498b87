package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/campus-market/campus_market/internal/money"
)

// Disburser represents a connector that moves withdrawn funds off the platform.
type Disburser interface {
	Disburse(ctx context.Context, userID string, amount money.Amount) (reference string, err error)
}

// StaticDisburser simulates a successful transfer with a synthetic reference.
type StaticDisburser struct{}

// Disburse approves the payout without moving money.
func (StaticDisburser) Disburse(_ context.Context, _ string, _ money.Amount) (string, error) {
	return uuid.NewString(), nil
}
