package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/money"
)

// BalanceFunc mutates a user's balances inside the repository's critical section.
type BalanceFunc func(b *Balances) error

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	// FindByEmail returns every user registered with email, oldest first.
	FindByEmail(ctx context.Context, email string) ([]User, error)
	// MarkVerified fails with apperr.ErrAlreadyVerified when the user is already verified.
	MarkVerified(ctx context.Context, id string) error
	SetBiometric(ctx context.Context, id string, enabled bool) error
	// UpdateBalances runs fn as an atomic read-modify-write on the user's balances.
	UpdateBalances(ctx context.Context, id string, fn BalanceFunc) (User, error)
	BumpTokenVersion(ctx context.Context, id string) (int, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, phone, secret_hash, verified, biometric_enabled,
        balance_pending, balance_available, token_version, created_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		userID, user.Email, user.Phone, user.SecretHash, user.Verified, user.BiometricEnabled,
		int64(user.Balances.Pending), int64(user.Balances.Available), user.TokenVersion, user.CreatedAt.UTC())
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, apperr.NotFound("user", id)
	}
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user", id)
	}
	return user, err
}

// FindByEmail fetches every user registered with the email, in registration order.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 ORDER BY seq`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// MarkVerified flips the verified flag. Only the first call for a user succeeds.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	err := r.exec(ctx, id, `UPDATE users SET verified = TRUE WHERE id = $1 AND NOT verified`)
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, findErr := r.FindByID(ctx, id); findErr != nil {
		return findErr
	}
	return apperr.ErrAlreadyVerified
}

// SetBiometric stores the biometric login preference.
func (r *PostgresRepository) SetBiometric(ctx context.Context, id string, enabled bool) error {
	return r.exec(ctx, id, `UPDATE users SET biometric_enabled = $2 WHERE id = $1`, enabled)
}

// UpdateBalances locks the user row for the duration of fn.
func (r *PostgresRepository) UpdateBalances(ctx context.Context, id string, fn BalanceFunc) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, apperr.NotFound("user", id)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var pending, available int64
	err = tx.QueryRow(ctx, `SELECT balance_pending, balance_available FROM users WHERE id = $1 FOR UPDATE`, userID).
		Scan(&pending, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound("user", id)
		}
		return User{}, err
	}

	balances := Balances{Pending: money.Amount(pending), Available: money.Amount(available)}
	if err := applyBalanceFunc(&balances, fn); err != nil {
		return User{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET balance_pending = $2, balance_available = $3 WHERE id = $1`,
		userID, int64(balances.Pending), int64(balances.Available)); err != nil {
		return User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return r.FindByID(ctx, id)
}

// BumpTokenVersion increments the token version so older session tokens stop validating.
func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return 0, apperr.NotFound("user", id)
	}
	var version int
	err = r.db.QueryRow(ctx, `UPDATE users SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`, userID).
		Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("user", id)
	}
	return version, err
}

func (r *PostgresRepository) exec(ctx context.Context, id, query string, args ...any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return apperr.NotFound("user", id)
	}
	cmd, err := r.db.Exec(ctx, query, append([]any{userID}, args...)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("user", id)
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		pending   int64
		available int64
		createdAt time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Email, &user.Phone, &user.SecretHash, &user.Verified, &user.BiometricEnabled,
		&pending, &available, &user.TokenVersion, &createdAt); err != nil {
		return User{}, err
	}
	user.ID = id.String()
	user.Balances = Balances{Pending: money.Amount(pending), Available: money.Amount(available)}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

// applyBalanceFunc runs fn on a scratch copy and only commits it when the
// non-negative invariant still holds.
func applyBalanceFunc(b *Balances, fn BalanceFunc) error {
	next := *b
	if err := fn(&next); err != nil {
		return err
	}
	if next.Pending < 0 || next.Available < 0 {
		return fmt.Errorf("balances would go negative (pending %s, available %s)", next.Pending, next.Available)
	}
	*b = next
	return nil
}
