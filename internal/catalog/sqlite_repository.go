package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/catalog/migrations"
	"github.com/campus-market/campus_market/internal/money"
)

// SQLiteRepository persists listings in an embedded SQLite file.
type SQLiteRepository struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite listing store and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, migrations.FS)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("build migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRepository{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}

const sqliteColumns = `id, title, price_cents, unit, category, description, location,
        provider_id, visible, contact_email, created_at`

// Create inserts one listing record.
func (r *SQLiteRepository) Create(ctx context.Context, l Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.sqlDB.ExecContext(ctx,
		`INSERT INTO listings (`+sqliteColumns+`, title_folded, category_folded)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Title, int64(l.Price), string(l.Unit), l.Category, l.Description, l.Location,
		l.ProviderID, l.Visible, l.ContactEmail, toMillis(l.CreatedAt),
		strings.ToLower(l.Title), strings.ToLower(l.Category),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("listing %s already exists", l.ID)
		}
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

// Get returns one listing by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	row := r.sqlDB.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanSQLiteListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Listing{}, apperr.NotFound("listing", id)
		}
		return Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

// ListByProvider returns the provider's listings in publication order.
func (r *SQLiteRepository) ListByProvider(ctx context.Context, providerID string) ([]Listing, error) {
	return r.query(ctx, `SELECT `+sqliteColumns+` FROM listings WHERE provider_id = ? ORDER BY seq`, providerID)
}

// ListVisible returns the consumer feed.
func (r *SQLiteRepository) ListVisible(ctx context.Context) ([]Listing, error) {
	return r.query(ctx, `SELECT `+sqliteColumns+` FROM listings WHERE visible = 1 ORDER BY seq`)
}

// Search runs a case-insensitive substring match on title and category. Case
// is folded in Go on both sides so non-ASCII text matches like the other backends.
func (r *SQLiteRepository) Search(ctx context.Context, term string) ([]Listing, error) {
	needle := strings.ToLower(term)
	return r.query(ctx, `SELECT `+sqliteColumns+` FROM listings
        WHERE visible = 1 AND (instr(title_folded, ?) > 0 OR instr(category_folded, ?) > 0)
        ORDER BY seq`, needle, needle)
}

// Recent returns the newest visible listings.
func (r *SQLiteRepository) Recent(ctx context.Context, n int) ([]Listing, error) {
	return r.query(ctx, `SELECT `+sqliteColumns+` FROM listings WHERE visible = 1 ORDER BY seq DESC LIMIT ?`, n)
}

// SetVisible toggles the soft-archive flag.
func (r *SQLiteRepository) SetVisible(ctx context.Context, id string, visible bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := r.sqlDB.ExecContext(ctx, `UPDATE listings SET visible = ? WHERE id = ?`, visible, id)
	if err != nil {
		return fmt.Errorf("set listing visibility: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("listing", id)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteListing(row rowScanner) (Listing, error) {
	var (
		l         Listing
		price     int64
		unit      string
		createdAt int64
	)
	if err := row.Scan(&l.ID, &l.Title, &price, &unit, &l.Category, &l.Description, &l.Location,
		&l.ProviderID, &l.Visible, &l.ContactEmail, &createdAt); err != nil {
		return Listing{}, err
	}
	l.Price = money.Amount(price)
	l.Unit = Unit(unit)
	l.CreatedAt = fromMillis(createdAt)
	return l, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
