// Package seed loads the demo accounts and listings used for local runs.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/identity"
)

const demoSecret = "123"

type demoUser struct {
	email    string
	phone    string
	listings []catalog.PublishInput
}

var demoUsers = []demoUser{
	{
		email: "alex@campus.edu",
		phone: "555-0100",
		listings: []catalog.PublishInput{{
			Title:       "Dorm Room Near Science Bldg",
			Price:       "400.00",
			Unit:        string(catalog.UnitPerMonth),
			Category:    "Rooms",
			Description: "Furnished single room, five minutes from the science building. Utilities included.",
			Location:    "North Campus",
		}},
	},
	{
		email: "jamie@campus.edu",
		phone: "555-0101",
		listings: []catalog.PublishInput{{
			Title:       "Calculus Textbook (2nd ed)",
			Price:       "20.00",
			Unit:        string(catalog.UnitOneTime),
			Category:    "Books",
			Description: "Lightly highlighted, no missing pages.",
			Location:    "Library steps",
		}},
	},
}

// Demo creates the demo users and their listings. Users that can already sign
// in are left untouched, so running it twice is harmless.
func Demo(ctx context.Context, ids *identity.Service, listings *catalog.Service, logger *slog.Logger) error {
	for _, d := range demoUsers {
		if _, err := ids.Authenticate(ctx, d.email, demoSecret); err == nil {
			continue
		} else if !errors.Is(err, apperr.ErrAuth) {
			return fmt.Errorf("check demo user %s: %w", d.email, err)
		}

		user, err := ids.Register(ctx, identity.Registration{Email: d.email, Phone: d.phone, Secret: demoSecret})
		if err != nil {
			return fmt.Errorf("register demo user %s: %w", d.email, err)
		}
		if _, err := ids.Verify(ctx, user.ID, ids.VerificationCode()); err != nil {
			return fmt.Errorf("verify demo user %s: %w", d.email, err)
		}

		for _, in := range d.listings {
			in.ProviderID = user.ID
			in.ContactEmail = user.Email
			if _, err := listings.Publish(ctx, in); err != nil {
				return fmt.Errorf("publish demo listing %q: %w", in.Title, err)
			}
		}
		logger.InfoContext(ctx, "demo user seeded", slog.String("email", d.email), slog.String("user_id", user.ID))
	}
	return nil
}
