package identity

import (
	"time"

	"github.com/campus-market/campus_market/internal/money"
)

// User represents a registered marketplace member. The same record acts as
// buyer and provider.
type User struct {
	ID               string
	Email            string
	Phone            string
	SecretHash       []byte
	Verified         bool
	BiometricEnabled bool
	Balances         Balances
	TokenVersion     int
	CreatedAt        time.Time
}

// Balances holds provider proceeds. Neither field may go negative.
type Balances struct {
	Pending   money.Amount
	Available money.Amount
}

// Registration request structure.
type Registration struct {
	Email  string
	Phone  string
	Secret string
}
