package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/money"
)

// Repository persists listings. Listing order is always publication order.
type Repository interface {
	Create(ctx context.Context, listing Listing) error
	Get(ctx context.Context, id string) (Listing, error)
	// ListByProvider returns every listing of the provider, archived ones included.
	ListByProvider(ctx context.Context, providerID string) ([]Listing, error)
	// ListVisible returns every visible listing.
	ListVisible(ctx context.Context) ([]Listing, error)
	// Search matches term case-insensitively against title or category of visible listings.
	Search(ctx context.Context, term string) ([]Listing, error)
	// Recent returns up to n visible listings, newest first.
	Recent(ctx context.Context, n int) ([]Listing, error)
	SetVisible(ctx context.Context, id string, visible bool) error
}

// PostgresRepository stores listings in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const listingColumns = `id, title, price_cents, unit, category, description, location,
        provider_id, visible, contact_email, created_at`

// Create inserts a listing record.
func (r *PostgresRepository) Create(ctx context.Context, l Listing) error {
	listingID, err := uuid.Parse(l.ID)
	if err != nil {
		return err
	}
	providerID, err := uuid.Parse(l.ProviderID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO listings (`+listingColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		listingID, l.Title, int64(l.Price), string(l.Unit), l.Category, l.Description, l.Location,
		providerID, l.Visible, l.ContactEmail, l.CreatedAt.UTC())
	return err
}

// Get fetches a listing by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Listing, error) {
	listingID, err := uuid.Parse(id)
	if err != nil {
		return Listing{}, apperr.NotFound("listing", id)
	}
	l, err := scanListing(r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, apperr.NotFound("listing", id)
	}
	return l, err
}

// ListByProvider returns the provider's listings in publication order.
func (r *PostgresRepository) ListByProvider(ctx context.Context, providerID string) ([]Listing, error) {
	pid, err := uuid.Parse(providerID)
	if err != nil {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings WHERE provider_id = $1 ORDER BY seq`, pid)
}

// ListVisible returns the consumer feed.
func (r *PostgresRepository) ListVisible(ctx context.Context) ([]Listing, error) {
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings WHERE visible ORDER BY seq`)
}

// Search runs a case-insensitive substring match on title and category.
func (r *PostgresRepository) Search(ctx context.Context, term string) ([]Listing, error) {
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings
        WHERE visible AND (strpos(lower(title), lower($1)) > 0 OR strpos(lower(category), lower($1)) > 0)
        ORDER BY seq`, term)
}

// Recent returns the newest visible listings.
func (r *PostgresRepository) Recent(ctx context.Context, n int) ([]Listing, error) {
	return r.query(ctx, `SELECT `+listingColumns+` FROM listings WHERE visible ORDER BY seq DESC LIMIT $1`, n)
}

// SetVisible toggles the soft-archive flag.
func (r *PostgresRepository) SetVisible(ctx context.Context, id string, visible bool) error {
	listingID, err := uuid.Parse(id)
	if err != nil {
		return apperr.NotFound("listing", id)
	}
	cmd, err := r.db.Exec(ctx, `UPDATE listings SET visible = $2 WHERE id = $1`, listingID, visible)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("listing", id)
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]Listing, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (Listing, error) {
	var (
		id         uuid.UUID
		providerID uuid.UUID
		price      int64
		unit       string
		createdAt  time.Time
		l          Listing
	)
	if err := row.Scan(&id, &l.Title, &price, &unit, &l.Category, &l.Description, &l.Location,
		&providerID, &l.Visible, &l.ContactEmail, &createdAt); err != nil {
		return Listing{}, err
	}
	l.ID = id.String()
	l.ProviderID = providerID.String()
	l.Price = money.Amount(price)
	l.Unit = Unit(unit)
	l.CreatedAt = createdAt.UTC()
	return l, nil
}
