package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/identity"
	"github.com/campus-market/campus_market/internal/money"
	"github.com/campus-market/campus_market/internal/notification"
)

type fixture struct {
	ledger   *Service
	store    Store
	users    *identity.Service
	listings *catalog.Service
	notes    *notification.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	users := identity.NewService(identity.NewMemoryRepository(), "123456").WithHashCost(bcrypt.MinCost)
	listings := catalog.NewService(catalog.NewMemoryRepository())
	store := NewInMemory()
	notes := &notification.Recorder{}
	return fixture{
		ledger:   NewService(store, listings, users, DefaultFeeRate, nil, notes, nil),
		store:    store,
		users:    users,
		listings: listings,
		notes:    notes,
	}
}

func (f fixture) user(t *testing.T, email string) identity.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.Register(ctx, identity.Registration{Email: email, Secret: "pw"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	if u, err = f.users.Verify(ctx, u.ID, "123456"); err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return u
}

func (f fixture) listing(t *testing.T, providerID, price, unit string) catalog.Listing {
	t.Helper()
	l, err := f.listings.Publish(context.Background(), catalog.PublishInput{
		ProviderID:  providerID,
		Title:       "Calculus Textbook",
		Price:       price,
		Unit:        unit,
		Category:    "Books",
		Description: "Lightly used",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return l
}

func (f fixture) available(t *testing.T, userID string) money.Amount {
	t.Helper()
	u, err := f.users.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.Balances.Available
}

func TestSplitScenarios(t *testing.T) {
	cases := []struct {
		price, fee, receives string
	}{
		{"19.99", "0.40", "19.59"},
		{"0.01", "0.00", "0.01"},
		{"0.25", "0.01", "0.24"},
		{"400.00", "8.00", "392.00"},
	}
	for _, tc := range cases {
		price, err := money.Parse(tc.price)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.price, err)
		}
		q := Split(price, DefaultFeeRate)
		if q.Fee.String() != tc.fee || q.ProviderReceives.String() != tc.receives {
			t.Fatalf("price %s: expected %s/%s, got %s/%s", tc.price, tc.fee, tc.receives, q.Fee, q.ProviderReceives)
		}
	}
}

func TestSplitAlwaysSumsToPrice(t *testing.T) {
	rates := []decimal.Decimal{DefaultFeeRate, decimal.RequireFromString("0.035"), decimal.RequireFromString("0.125")}
	for _, rate := range rates {
		for cents := int64(1); cents <= 100_000; cents++ {
			q := Split(money.Cents(cents), rate)
			if q.Fee+q.ProviderReceives != q.Price || q.Fee < 0 || q.ProviderReceives < 0 {
				t.Fatalf("rate %s price %d: fee %d + receives %d != price", rate, cents, q.Fee, q.ProviderReceives)
			}
		}
	}
}

func TestSettleCreditsProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "19.99", "one-time")

	q, err := f.ledger.Quote(ctx, l.ID)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Fee != money.Cents(40) || q.ProviderReceives != money.Cents(1959) {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if got := f.available(t, seller.ID); got != 0 {
		t.Fatalf("quote must not credit, got %s", got)
	}

	tx, err := f.ledger.Settle(ctx, l.ID, buyer.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if tx.Fee+tx.ProviderReceives != tx.Price || tx.BuyerID != buyer.ID || tx.ProviderID != seller.ID {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if got := f.available(t, seller.ID); got != money.Cents(1959) {
		t.Fatalf("expected 19.59 available, got %s", got)
	}

	fees, _ := f.ledger.PlatformFees(ctx)
	if fees != money.Cents(40) {
		t.Fatalf("expected platform fees 0.40, got %s", fees)
	}

	archived, _ := f.listings.Get(ctx, l.ID)
	if archived.Visible {
		t.Fatalf("one-time listing should be archived after settlement")
	}

	msg, ok := f.notes.Last(notification.KindBalanceCredited)
	if !ok || msg.Destination != seller.Email {
		t.Fatalf("expected credit notification to seller, got %+v", msg)
	}

	for _, id := range []string{seller.ID, buyer.ID} {
		txs, _ := f.ledger.Transactions(ctx, id)
		if len(txs) != 1 || txs[0].ID != tx.ID {
			t.Fatalf("user %s should see the transaction, got %+v", id, txs)
		}
	}
}

func TestSettleFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "5", "one-time")

	if _, err := f.ledger.Settle(ctx, l.ID, ""); !errors.Is(err, apperr.ErrNoCurrentUser) {
		t.Fatalf("expected no current user, got %v", err)
	}
	if _, err := f.ledger.Settle(ctx, l.ID, "ghost"); !errors.Is(err, apperr.ErrNoCurrentUser) {
		t.Fatalf("expected no current user for unknown buyer, got %v", err)
	}
	if _, err := f.ledger.Settle(ctx, "missing", buyer.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.ledger.Settle(ctx, l.ID, seller.ID); !errors.Is(err, apperr.ErrSelfPurchase) {
		t.Fatalf("expected self purchase, got %v", err)
	}

	if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); !errors.Is(err, apperr.ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}
	if got := f.available(t, seller.ID); got != money.Cents(490) {
		t.Fatalf("second settle must not double credit, got %s", got)
	}

	archived := f.listing(t, seller.ID, "5", "one-time")
	if err := f.listings.Archive(ctx, archived.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := f.ledger.Settle(ctx, archived.ID, buyer.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected archived listing to be unavailable, got %v", err)
	}
}

func TestRecurringListingSettlesRepeatedly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "tutor@campus.edu")
	buyer := f.user(t, "student@campus.edu")
	l := f.listing(t, seller.ID, "20", "per-hour")

	for i := 0; i < 3; i++ {
		if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); err != nil {
			t.Fatalf("settle %d: %v", i, err)
		}
	}
	if got := f.available(t, seller.ID); got != money.Cents(3*1960) {
		t.Fatalf("expected 58.80, got %s", got)
	}
	still, _ := f.listings.Get(ctx, l.ID)
	if !still.Visible {
		t.Fatalf("recurring listing must stay visible")
	}
}

func TestConcurrentSettlementsDoNotLoseUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "19.99", "per-use")

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("settle: %v", err)
	}

	if got := f.available(t, seller.ID); got != money.Cents(n*1959) {
		t.Fatalf("expected %d cents, got %d", n*1959, got)
	}
	txs, _ := f.store.Transactions(ctx)
	if len(txs) != n {
		t.Fatalf("expected %d transactions, got %d", n, len(txs))
	}
}

func TestConcurrentOneTimeSettleHasSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "10", "one-time")

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one settlement, got %d", wins)
	}
	if got := f.available(t, seller.ID); got != money.Cents(980) {
		t.Fatalf("expected 9.80, got %s", got)
	}
}

func TestPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")

	if _, err := f.ledger.Payout(ctx, seller.ID); !errors.Is(err, apperr.ErrNoBalance) {
		t.Fatalf("expected no balance, got %v", err)
	}
	if _, err := f.ledger.Payout(ctx, ""); !errors.Is(err, apperr.ErrNoCurrentUser) {
		t.Fatalf("expected no current user, got %v", err)
	}

	l := f.listing(t, seller.ID, "19.99", "one-time")
	if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	p, err := f.ledger.Payout(ctx, seller.ID)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if p.Amount != money.Cents(1959) || p.Reference == "" {
		t.Fatalf("unexpected payout: %+v", p)
	}
	if got := f.available(t, seller.ID); got != 0 {
		t.Fatalf("balance should be zero after payout, got %s", got)
	}
	if _, err := f.ledger.Payout(ctx, seller.ID); !errors.Is(err, apperr.ErrNoBalance) {
		t.Fatalf("second payout should fail, got %v", err)
	}

	history, _ := f.ledger.Payouts(ctx, seller.ID)
	if len(history) != 1 || history[0].ID != p.ID {
		t.Fatalf("unexpected payout history: %+v", history)
	}
	if _, ok := f.notes.Last(notification.KindPayoutSent); !ok {
		t.Fatalf("expected payout notification")
	}
}

func TestConcurrentPayoutsPayOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "50", "one-time")
	if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total money.Amount
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.ledger.Payout(ctx, seller.ID)
			if err != nil {
				return
			}
			mu.Lock()
			total += p.Amount
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != money.Cents(4900) {
		t.Fatalf("expected exactly 49.00 paid out, got %s", total)
	}
}

func TestPayoutRacingSettlementsLosesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "1", "per-use")

	const n = 40
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid money.Amount
	)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Settle(ctx, l.ID, buyer.ID); err != nil {
				t.Errorf("settle: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if p, err := f.ledger.Payout(ctx, seller.ID); err == nil {
				mu.Lock()
				paid += p.Amount
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got := paid + f.available(t, seller.ID); got != money.Cents(n*98) {
		t.Fatalf("paid plus remaining should equal credits: got %s", got)
	}
}

type failingDisburser struct{}

func (failingDisburser) Disburse(context.Context, string, money.Amount) (string, error) {
	return "", errors.New("rail offline")
}

func TestPayoutRestoresBalanceWhenDisburseFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.store, f.listings, f.users, DefaultFeeRate, failingDisburser{}, nil, nil)
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "10", "one-time")
	if _, err := svc.Settle(ctx, l.ID, buyer.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := svc.Payout(ctx, seller.ID); err == nil {
		t.Fatalf("expected payout failure")
	}
	if got := f.available(t, seller.ID); got != money.Cents(980) {
		t.Fatalf("balance should be restored, got %s", got)
	}
}

// flakyAccounts fails every balance update while down is set.
type flakyAccounts struct {
	*identity.Service
	down bool
}

func (a *flakyAccounts) UpdateBalances(ctx context.Context, userID string, fn identity.BalanceFunc) (identity.User, error) {
	if a.down {
		return identity.User{}, errors.New("db unavailable")
	}
	return a.Service.UpdateBalances(ctx, userID, fn)
}

func TestSettleVoidsRecordWhenCreditFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accounts := &flakyAccounts{Service: f.users, down: true}
	svc := NewService(f.store, f.listings, accounts, DefaultFeeRate, nil, nil, nil)
	seller := f.user(t, "seller@campus.edu")
	buyer := f.user(t, "buyer@campus.edu")
	l := f.listing(t, seller.ID, "10", "one-time")

	if _, err := svc.Settle(ctx, l.ID, buyer.ID); err == nil {
		t.Fatalf("expected settle to fail while credits fail")
	}

	txs, _ := f.store.Transactions(ctx)
	if len(txs) != 0 {
		t.Fatalf("failed settlement must not stay recorded, got %d transactions", len(txs))
	}
	if fees, _ := f.store.TotalFees(ctx); fees != money.Zero {
		t.Fatalf("failed settlement must not count fees, got %s", fees)
	}
	if settled, _ := f.store.Settled(ctx, l.ID); settled {
		t.Fatalf("listing claim must be released")
	}
	if got, _ := f.listings.Get(ctx, l.ID); !got.Visible {
		t.Fatalf("listing must stay available")
	}

	accounts.down = false
	tx, err := svc.Settle(ctx, l.ID, buyer.ID)
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if got := f.available(t, seller.ID); got != tx.ProviderReceives {
		t.Fatalf("expected %s available after retry, got %s", tx.ProviderReceives, got)
	}
	if fees, _ := f.store.TotalFees(ctx); fees != tx.Fee {
		t.Fatalf("expected fees %s, got %s", tx.Fee, fees)
	}
}

func TestInMemoryVoidUnknownTransaction(t *testing.T) {
	if err := NewInMemory().Void(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
