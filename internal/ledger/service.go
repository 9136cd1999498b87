package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/identity"
	"github.com/campus-market/campus_market/internal/logging"
	"github.com/campus-market/campus_market/internal/money"
	"github.com/campus-market/campus_market/internal/notification"
)

// Listings is the catalog surface the ledger reads from.
type Listings interface {
	Get(ctx context.Context, id string) (catalog.Listing, error)
	Archive(ctx context.Context, id string) error
}

// Accounts is the identity surface the ledger credits and debits.
type Accounts interface {
	Get(ctx context.Context, userID string) (identity.User, error)
	UpdateBalances(ctx context.Context, userID string, fn identity.BalanceFunc) (identity.User, error)
}

// Service computes fee splits and applies settlements and payouts to user balances.
type Service struct {
	store     Store
	listings  Listings
	accounts  Accounts
	feeRate   decimal.Decimal
	disburser Disburser
	notifier  notification.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires a ledger service. A nil disburser, notifier or logger falls back to a no-op default.
func NewService(store Store, listings Listings, accounts Accounts, feeRate decimal.Decimal, disburser Disburser, notifier notification.Notifier, logger *slog.Logger) *Service {
	if disburser == nil {
		disburser = StaticDisburser{}
	}
	if notifier == nil {
		notifier = notification.Fanout{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:     store,
		listings:  listings,
		accounts:  accounts,
		feeRate:   feeRate,
		disburser: disburser,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FeeRate returns the configured platform share.
func (s *Service) FeeRate() decimal.Decimal {
	return s.feeRate
}

// Quote returns the split a purchase of the listing would produce. It has no side effects.
func (s *Service) Quote(ctx context.Context, listingID string) (Quote, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return Quote{}, err
	}
	return Split(listing.Price, s.feeRate), nil
}

// Settle records a sale of the listing to buyerID and credits the provider.
// The record claims one-time listings first; when the credit fails the record
// is voided so the sale can be retried.
func (s *Service) Settle(ctx context.Context, listingID, buyerID string) (Transaction, error) {
	if buyerID == "" {
		return Transaction{}, apperr.ErrNoCurrentUser
	}
	if _, err := s.accounts.Get(ctx, buyerID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Transaction{}, fmt.Errorf("buyer %s: %w", buyerID, apperr.ErrNoCurrentUser)
		}
		return Transaction{}, err
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return Transaction{}, err
	}
	if listing.ProviderID == buyerID {
		return Transaction{}, apperr.ErrSelfPurchase
	}
	if !listing.Visible {
		settled, err := s.store.Settled(ctx, listingID)
		if err != nil {
			return Transaction{}, err
		}
		if settled {
			return Transaction{}, apperr.ErrAlreadySettled
		}
		return Transaction{}, fmt.Errorf("listing %s not available: %w", listingID, apperr.ErrNotFound)
	}

	quote := Split(listing.Price, s.feeRate)
	tx := Transaction{
		ID:               uuid.NewString(),
		ListingID:        listing.ID,
		Price:            quote.Price,
		ProviderID:       listing.ProviderID,
		BuyerID:          buyerID,
		Fee:              quote.Fee,
		ProviderReceives: quote.ProviderReceives,
		At:               s.now(),
	}

	oneTime := !listing.Unit.Recurring()
	if err := s.store.Record(ctx, tx, oneTime); err != nil {
		return Transaction{}, err
	}

	provider, err := s.accounts.UpdateBalances(ctx, listing.ProviderID, func(b *identity.Balances) error {
		b.Available += quote.ProviderReceives
		return nil
	})
	if err != nil {
		if voidErr := s.store.Void(ctx, tx.ID); voidErr != nil {
			s.logger.ErrorContext(ctx, "void transaction after failed provider credit",
				slog.String("transaction_id", tx.ID),
				slog.String("provider_id", listing.ProviderID),
				slog.Any("credit_error", err),
				slog.Any("error", voidErr),
			)
		}
		return Transaction{}, fmt.Errorf("credit provider: %w", err)
	}

	if oneTime {
		if err := s.listings.Archive(ctx, listing.ID); err != nil {
			s.logger.WarnContext(ctx, "archive settled listing", slog.String("listing_id", listing.ID), slog.Any("error", err))
		}
	}

	s.logger.InfoContext(ctx, "listing settled",
		slog.String("transaction_id", tx.ID),
		slog.String("listing_id", tx.ListingID),
		slog.String("price", tx.Price.String()),
		slog.String("fee", tx.Fee.String()),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindBalanceCredited,
		Destination: provider.Email,
		Subject:     "You made a sale",
		Body:        fmt.Sprintf("%s sold for %s. %s was added to your available balance.", listing.Title, tx.Price, tx.ProviderReceives),
	})
	return tx, nil
}

// Payout withdraws the user's whole available balance and returns the payout record.
func (s *Service) Payout(ctx context.Context, userID string) (Payout, error) {
	if userID == "" {
		return Payout{}, apperr.ErrNoCurrentUser
	}

	var amount money.Amount
	user, err := s.accounts.UpdateBalances(ctx, userID, func(b *identity.Balances) error {
		if b.Available <= 0 {
			return apperr.ErrNoBalance
		}
		amount = b.Available
		b.Available = 0
		return nil
	})
	if err != nil {
		return Payout{}, err
	}

	reference, err := s.disburser.Disburse(ctx, userID, amount)
	if err != nil {
		if _, restoreErr := s.accounts.UpdateBalances(ctx, userID, func(b *identity.Balances) error {
			b.Available += amount
			return nil
		}); restoreErr != nil {
			s.logger.ErrorContext(ctx, "restore balance after failed payout",
				slog.String("user_id", userID),
				slog.String("amount", amount.String()),
				slog.Any("error", restoreErr),
			)
		}
		return Payout{}, fmt.Errorf("disburse payout: %w", err)
	}

	payout := Payout{ID: uuid.NewString(), UserID: userID, Amount: amount, Reference: reference, At: s.now()}
	if err := s.store.RecordPayout(ctx, payout); err != nil {
		s.logger.ErrorContext(ctx, "record payout", slog.String("payout_id", payout.ID), slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "payout sent", slog.String("user_id", userID), slog.String("amount", amount.String()))
	s.notify(ctx, notification.Message{
		Kind:        notification.KindPayoutSent,
		Destination: user.Email,
		Subject:     "Payout sent",
		Body:        fmt.Sprintf("%s is on its way. Reference %s.", amount, reference),
	})
	return payout, nil
}

// Transactions returns the user's purchases and sales.
func (s *Service) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	return s.store.ForUser(ctx, userID)
}

// Payouts returns the user's payout history.
func (s *Service) Payouts(ctx context.Context, userID string) ([]Payout, error) {
	return s.store.Payouts(ctx, userID)
}

// PlatformFees is the fee total retained across every transaction.
func (s *Service) PlatformFees(ctx context.Context) (money.Amount, error) {
	return s.store.TotalFees(ctx)
}

func (s *Service) notify(ctx context.Context, message notification.Message) {
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("kind", message.Kind), slog.Any("error", err))
	}
}
