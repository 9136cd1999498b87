package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/money"
)

const uniqueViolation = "23505"

// PostgresStore persists the sale history in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const transactionColumns = `id, listing_id, price_cents, provider_id, buyer_id, fee_cents, provider_receives_cents, created_at`

// Record inserts the transaction and, for exclusive sales, claims the listing in the same database transaction.
func (s *PostgresStore) Record(ctx context.Context, t Transaction, exclusive bool) error {
	txID, err := uuid.Parse(t.ID)
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if exclusive {
		if _, err := tx.Exec(ctx, `INSERT INTO settled_listings (listing_id, transaction_id) VALUES ($1, $2)`, t.ListingID, txID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return apperr.ErrAlreadySettled
			}
			return err
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txID, t.ListingID, int64(t.Price), t.ProviderID, t.BuyerID, int64(t.Fee), int64(t.ProviderReceives), t.At); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Void deletes the transaction and its listing claim in one database transaction.
func (s *PostgresStore) Void(ctx context.Context, txID string) error {
	id, err := uuid.Parse(txID)
	if err != nil {
		return apperr.NotFound("transaction", txID)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM settled_listings WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("transaction", txID)
	}
	return tx.Commit(ctx)
}

// Settled reports whether an exclusive sale was recorded for the listing.
func (s *PostgresStore) Settled(ctx context.Context, listingID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM settled_listings WHERE listing_id = $1)`, listingID).Scan(&exists)
	return exists, err
}

// Transactions returns the full sale history in insertion order.
func (s *PostgresStore) Transactions(ctx context.Context) ([]Transaction, error) {
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY seq`)
}

// ForUser returns transactions where the user is buyer or provider.
func (s *PostgresStore) ForUser(ctx context.Context, userID string) ([]Transaction, error) {
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE buyer_id = $1 OR provider_id = $1 ORDER BY seq`, userID)
}

// TotalFees sums the platform fee over every transaction.
func (s *PostgresStore) TotalFees(ctx context.Context) (money.Amount, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(fee_cents), 0) FROM transactions`).Scan(&total); err != nil {
		return 0, err
	}
	return money.Amount(total), nil
}

// RecordPayout appends a payout audit row.
func (s *PostgresStore) RecordPayout(ctx context.Context, p Payout) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("payout id: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO payouts (id, user_id, amount_cents, reference, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, p.UserID, int64(p.Amount), p.Reference, p.At)
	return err
}

// Payouts lists a user's payouts oldest first.
func (s *PostgresStore) Payouts(ctx context.Context, userID string) ([]Payout, error) {
	rows, err := s.db.Query(ctx, `SELECT id, user_id, amount_cents, reference, created_at FROM payouts
        WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payout
	for rows.Next() {
		var (
			p      Payout
			id     uuid.UUID
			amount int64
		)
		if err := rows.Scan(&id, &p.UserID, &amount, &p.Reference, &p.At); err != nil {
			return nil, err
		}
		p.ID = id.String()
		p.Amount = money.Amount(amount)
		p.At = p.At.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			t                    Transaction
			id                   uuid.UUID
			price, fee, receives int64
		)
		if err := rows.Scan(&id, &t.ListingID, &price, &t.ProviderID, &t.BuyerID, &fee, &receives, &t.At); err != nil {
			return nil, err
		}
		t.ID = id.String()
		t.Price = money.Amount(price)
		t.Fee = money.Amount(fee)
		t.ProviderReceives = money.Amount(receives)
		t.At = t.At.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
