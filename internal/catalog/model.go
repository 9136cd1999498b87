package catalog

import (
	"strings"
	"time"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/money"
)

// Unit describes how a listing is priced.
type Unit string

const (
	UnitOneTime  Unit = "one-time"
	UnitPerMonth Unit = "per-month"
	UnitPerUse   Unit = "per-use"
	UnitPerHour  Unit = "per-hour"
)

// ParseUnit validates a pricing unit. An empty value defaults to one-time.
func ParseUnit(s string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case "":
		return UnitOneTime, nil
	case UnitOneTime, UnitPerMonth, UnitPerUse, UnitPerHour:
		return u, nil
	default:
		return "", apperr.Validation("unknown unit %q", s)
	}
}

// Recurring reports whether a listing priced in this unit can be sold more than once.
func (u Unit) Recurring() bool {
	return u != UnitOneTime
}

// Listing is a published offer of a room, item or service.
type Listing struct {
	ID           string
	Title        string
	Price        money.Amount
	Unit         Unit
	Category     string
	Description  string
	Location     string
	ProviderID   string
	Visible      bool
	ContactEmail string
	CreatedAt    time.Time
}

// PublishInput captures the data required to publish a listing. Price is the
// raw decimal text entered by the provider.
type PublishInput struct {
	ProviderID   string
	Title        string
	Price        string
	Unit         string
	Category     string
	Description  string
	Location     string
	ContactEmail string
}
