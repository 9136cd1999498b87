package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus-market/campus_market/internal/money"
)

// DefaultFeeRate is the platform share of every sale.
var DefaultFeeRate = decimal.RequireFromString("0.02")

// Transaction is an immutable record of one completed sale.
type Transaction struct {
	ID               string       `json:"id"`
	ListingID        string       `json:"listingId"`
	Price            money.Amount `json:"price"`
	ProviderID       string       `json:"providerId"`
	BuyerID          string       `json:"buyerId"`
	Fee              money.Amount `json:"fee"`
	ProviderReceives money.Amount `json:"providerReceives"`
	At               time.Time    `json:"at"`
}

// Quote is the fee split of a price.
type Quote struct {
	Price            money.Amount `json:"price"`
	Fee              money.Amount `json:"fee"`
	ProviderReceives money.Amount `json:"providerReceives"`
}

// Payout records a withdrawal of a user's available balance.
type Payout struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Amount    money.Amount `json:"amount"`
	Reference string       `json:"reference"`
	At        time.Time    `json:"at"`
}

// Split computes the fee for price at rate. The provider share is the remainder,
// so Fee + ProviderReceives always equals Price.
func Split(price money.Amount, rate decimal.Decimal) Quote {
	fee := price.MulRate(rate)
	return Quote{Price: price, Fee: fee, ProviderReceives: price - fee}
}

// Store persists the append-only sale and payout history.
type Store interface {
	// Record appends tx. When exclusive is set the listing may only ever be
	// recorded once and a second attempt fails with apperr.ErrAlreadySettled.
	Record(ctx context.Context, tx Transaction, exclusive bool) error
	// Void removes a transaction recorded by a settlement that could not
	// complete, releasing its listing claim.
	Void(ctx context.Context, txID string) error
	Settled(ctx context.Context, listingID string) (bool, error)
	Transactions(ctx context.Context) ([]Transaction, error)
	// ForUser returns transactions where the user is buyer or provider.
	ForUser(ctx context.Context, userID string) ([]Transaction, error)
	TotalFees(ctx context.Context) (money.Amount, error)
	RecordPayout(ctx context.Context, p Payout) error
	Payouts(ctx context.Context, userID string) ([]Payout, error)
}
