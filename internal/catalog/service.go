package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/money"
)

// Service exposes listing operations backed by a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a catalog service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Publish validates the input and stores a new visible listing owned by input.ProviderID.
func (s *Service) Publish(ctx context.Context, input PublishInput) (Listing, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" {
		return Listing{}, apperr.Validation("title is required")
	}
	if description == "" {
		return Listing{}, apperr.Validation("description is required")
	}
	if input.ProviderID == "" {
		return Listing{}, apperr.Validation("provider is required")
	}

	price, err := money.Parse(input.Price)
	if err != nil || !price.IsPositive() {
		return Listing{}, apperr.Validation("price must be a positive number")
	}

	unit, err := ParseUnit(input.Unit)
	if err != nil {
		return Listing{}, err
	}

	listing := Listing{
		ID:           uuid.New().String(),
		Title:        title,
		Price:        price,
		Unit:         unit,
		Category:     strings.TrimSpace(input.Category),
		Description:  description,
		Location:     strings.TrimSpace(input.Location),
		ProviderID:   input.ProviderID,
		Visible:      true,
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		CreatedAt:    s.now(),
	}

	if err := s.repo.Create(ctx, listing); err != nil {
		return Listing{}, err
	}
	return listing, nil
}

// Get retrieves a listing by id, archived or not.
func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	return s.repo.Get(ctx, id)
}

// ListByProvider returns the provider's listings in publication order.
func (s *Service) ListByProvider(ctx context.Context, providerID string) ([]Listing, error) {
	return s.repo.ListByProvider(ctx, providerID)
}

// Feed returns every visible listing in publication order.
func (s *Service) Feed(ctx context.Context) ([]Listing, error) {
	return s.repo.ListVisible(ctx)
}

// Search matches term against title or category. An empty term matches nothing.
func (s *Service) Search(ctx context.Context, term string) ([]Listing, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	return s.repo.Search(ctx, term)
}

// Recent returns up to n listings, most recently published first.
func (s *Service) Recent(ctx context.Context, n int) ([]Listing, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.repo.Recent(ctx, n)
}

// Archive hides a listing from feeds without deleting it.
func (s *Service) Archive(ctx context.Context, id string) error {
	return s.repo.SetVisible(ctx, id, false)
}
