package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/identity"
	"github.com/campus-market/campus_market/internal/ledger"
	"github.com/campus-market/campus_market/internal/logging"
	"github.com/campus-market/campus_market/internal/messaging"
	"github.com/campus-market/campus_market/internal/money"
	"github.com/campus-market/campus_market/internal/notification"
)

// HomeFeedSize is the number of listings shown on the home screen.
const HomeFeedSize = 6

// Session holds the signed-in user for one caller. The zero value is signed out.
type Session struct {
	UserID string
}

// SignedIn reports whether a user is attached to the session.
func (s *Session) SignedIn() bool {
	return s != nil && s.UserID != ""
}

// Dashboard summarizes a provider's position.
type Dashboard struct {
	User           identity.User `json:"-"`
	ActiveListings int           `json:"activeListings"`
	Pending        money.Amount  `json:"pending"`
	Available      money.Amount  `json:"available"`
}

// ThreadSummary is one row of the inbox.
type ThreadSummary struct {
	Key          messaging.ThreadKey `json:"key"`
	Counterpart  string              `json:"counterpart"`
	MessageCount int                 `json:"messageCount"`
}

// Service composes the stores into the user-facing use cases.
type Service struct {
	identity  *identity.Service
	catalog   *catalog.Service
	ledger    *ledger.Service
	messaging *messaging.Service
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewService wires the facade.
func NewService(ids *identity.Service, listings *catalog.Service, ledgerSvc *ledger.Service, messages *messaging.Service, notifier notification.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Fanout{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{identity: ids, catalog: listings, ledger: ledgerSvc, messaging: messages, notifier: notifier, logger: logger}
}

// RegisterAndSendVerification creates an unverified account and sends the verification notice.
func (s *Service) RegisterAndSendVerification(ctx context.Context, reg identity.Registration) (identity.User, error) {
	user, err := s.identity.Register(ctx, reg)
	if err != nil {
		return identity.User{}, err
	}
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	s.notify(ctx, notification.Message{
		Kind:        notification.KindVerificationSent,
		Destination: user.Email,
		Subject:     "Verify your account",
		Body:        fmt.Sprintf("Your verification code is %s", s.identity.VerificationCode()),
	})
	return user, nil
}

// VerifyAccount verifies the user and signs them into sess.
func (s *Service) VerifyAccount(ctx context.Context, sess *Session, userID, code string) (identity.User, error) {
	user, err := s.identity.Verify(ctx, userID, code)
	if err != nil {
		return identity.User{}, err
	}
	sess.UserID = user.ID
	return user, nil
}

// Login authenticates the credentials into sess and optionally turns on biometric login.
func (s *Service) Login(ctx context.Context, sess *Session, email, secret string, enableBiometric bool) (identity.User, error) {
	user, err := s.identity.Authenticate(ctx, email, secret)
	if err != nil {
		return identity.User{}, err
	}
	if enableBiometric && !user.BiometricEnabled {
		if user, err = s.identity.SetBiometric(ctx, user.ID, true); err != nil {
			return identity.User{}, err
		}
	}
	sess.UserID = user.ID
	s.logger.InfoContext(ctx, "user signed in", slog.String("user_id", user.ID))
	return user, nil
}

// Logout clears sess.
func (s *Service) Logout(_ context.Context, sess *Session) error {
	if !sess.SignedIn() {
		return apperr.ErrNoCurrentUser
	}
	sess.UserID = ""
	return nil
}

// CurrentUser loads the signed-in user.
func (s *Service) CurrentUser(ctx context.Context, sess *Session) (identity.User, error) {
	if !sess.SignedIn() {
		return identity.User{}, apperr.ErrNoCurrentUser
	}
	user, err := s.identity.Get(ctx, sess.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return identity.User{}, apperr.ErrNoCurrentUser
	}
	return user, err
}

// SetBiometric toggles biometric login for the signed-in user.
func (s *Service) SetBiometric(ctx context.Context, sess *Session, enabled bool) (identity.User, error) {
	user, err := s.CurrentUser(ctx, sess)
	if err != nil {
		return identity.User{}, err
	}
	return s.identity.SetBiometric(ctx, user.ID, enabled)
}

// PublishListing publishes a listing owned by the signed-in user. A blank
// contact email falls back to the user's own.
func (s *Service) PublishListing(ctx context.Context, sess *Session, input catalog.PublishInput) (catalog.Listing, error) {
	user, err := s.CurrentUser(ctx, sess)
	if err != nil {
		return catalog.Listing{}, err
	}
	if !user.Verified {
		return catalog.Listing{}, apperr.ErrNotVerified
	}

	input.ProviderID = user.ID
	if strings.TrimSpace(input.ContactEmail) == "" {
		input.ContactEmail = user.Email
	}
	listing, err := s.catalog.Publish(ctx, input)
	if err != nil {
		return catalog.Listing{}, err
	}

	s.notify(ctx, notification.Message{
		Kind:        notification.KindListingPublished,
		Destination: user.Email,
		Subject:     "Listing published",
		Body:        fmt.Sprintf("%s is live at %s", listing.Title, listing.Price),
	})
	return listing, nil
}

// ArchiveListing hides one of the signed-in user's listings.
func (s *Service) ArchiveListing(ctx context.Context, sess *Session, listingID string) error {
	user, err := s.CurrentUser(ctx, sess)
	if err != nil {
		return err
	}
	listing, err := s.catalog.Get(ctx, listingID)
	if err != nil {
		return err
	}
	if listing.ProviderID != user.ID {
		return apperr.NotFound("listing", listingID)
	}
	return s.catalog.Archive(ctx, listingID)
}

// GetListing returns a listing by id.
func (s *Service) GetListing(ctx context.Context, listingID string) (catalog.Listing, error) {
	return s.catalog.Get(ctx, listingID)
}

// Feed returns every visible listing.
func (s *Service) Feed(ctx context.Context) ([]catalog.Listing, error) {
	return s.catalog.Feed(ctx)
}

// Search finds visible listings by title or category.
func (s *Service) Search(ctx context.Context, term string) ([]catalog.Listing, error) {
	return s.catalog.Search(ctx, term)
}

// Recent returns the newest n listings.
func (s *Service) Recent(ctx context.Context, n int) ([]catalog.Listing, error) {
	return s.catalog.Recent(ctx, n)
}

// HomeFeed returns the listings shown on the home screen.
func (s *Service) HomeFeed(ctx context.Context) ([]catalog.Listing, error) {
	return s.catalog.Recent(ctx, HomeFeedSize)
}

// QuotePurchase previews the fee split. No session is required.
func (s *Service) QuotePurchase(ctx context.Context, listingID string) (ledger.Quote, error) {
	return s.ledger.Quote(ctx, listingID)
}

// CompletePurchase settles the listing with the signed-in user as buyer.
func (s *Service) CompletePurchase(ctx context.Context, sess *Session, listingID string) (ledger.Transaction, error) {
	if !sess.SignedIn() {
		return ledger.Transaction{}, apperr.ErrNoCurrentUser
	}
	return s.ledger.Settle(ctx, listingID, sess.UserID)
}

// RequestPayout withdraws the signed-in user's available balance.
func (s *Service) RequestPayout(ctx context.Context, sess *Session) (ledger.Payout, error) {
	if !sess.SignedIn() {
		return ledger.Payout{}, apperr.ErrNoCurrentUser
	}
	return s.ledger.Payout(ctx, sess.UserID)
}

// SendMessage appends text to the thread between the signed-in user and toUserID.
func (s *Service) SendMessage(ctx context.Context, sess *Session, toUserID, text string) (messaging.Message, error) {
	thread, err := s.openThread(ctx, sess, toUserID)
	if err != nil {
		return messaging.Message{}, err
	}
	return s.messaging.Append(ctx, thread.Key, sess.UserID, text)
}

// Thread opens the conversation with otherUserID, creating it on first contact.
func (s *Service) Thread(ctx context.Context, sess *Session, otherUserID string) (messaging.Thread, error) {
	return s.openThread(ctx, sess, otherUserID)
}

// Threads lists the signed-in user's conversations.
func (s *Service) Threads(ctx context.Context, sess *Session) ([]ThreadSummary, error) {
	if !sess.SignedIn() {
		return nil, apperr.ErrNoCurrentUser
	}
	threads, err := s.messaging.ListFor(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadSummary{Key: t.Key, Counterpart: t.Counterpart(sess.UserID), MessageCount: len(t.Messages)})
	}
	return out, nil
}

// Dashboard returns the provider summary for the signed-in user.
func (s *Service) Dashboard(ctx context.Context, sess *Session) (Dashboard, error) {
	user, err := s.CurrentUser(ctx, sess)
	if err != nil {
		return Dashboard{}, err
	}
	listings, err := s.catalog.ListByProvider(ctx, user.ID)
	if err != nil {
		return Dashboard{}, err
	}
	active := 0
	for _, l := range listings {
		if l.Visible {
			active++
		}
	}
	return Dashboard{
		User:           user,
		ActiveListings: active,
		Pending:        user.Balances.Pending,
		Available:      user.Balances.Available,
	}, nil
}

// MyListings returns every listing the signed-in user published, archived ones included.
func (s *Service) MyListings(ctx context.Context, sess *Session) ([]catalog.Listing, error) {
	if !sess.SignedIn() {
		return nil, apperr.ErrNoCurrentUser
	}
	return s.catalog.ListByProvider(ctx, sess.UserID)
}

// MyTransactions returns the signed-in user's purchases and sales, newest first.
func (s *Service) MyTransactions(ctx context.Context, sess *Session) ([]ledger.Transaction, error) {
	if !sess.SignedIn() {
		return nil, apperr.ErrNoCurrentUser
	}
	txs, err := s.ledger.Transactions(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(txs)
	return txs, nil
}

func (s *Service) openThread(ctx context.Context, sess *Session, otherUserID string) (messaging.Thread, error) {
	if !sess.SignedIn() {
		return messaging.Thread{}, apperr.ErrNoCurrentUser
	}
	if _, err := s.identity.Get(ctx, otherUserID); err != nil {
		return messaging.Thread{}, err
	}
	return s.messaging.Open(ctx, sess.UserID, otherUserID)
}

func (s *Service) notify(ctx context.Context, message notification.Message) {
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("kind", message.Kind), slog.Any("error", err))
	}
}
