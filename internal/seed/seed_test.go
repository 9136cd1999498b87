package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/identity"
	"github.com/campus-market/campus_market/internal/logging"
)

func TestDemoIsRepeatable(t *testing.T) {
	ctx := context.Background()
	ids := identity.NewService(identity.NewMemoryRepository(), "123456").WithHashCost(bcrypt.MinCost)
	listings := catalog.NewService(catalog.NewMemoryRepository())

	require.NoError(t, Demo(ctx, ids, listings, logging.Discard()))
	require.NoError(t, Demo(ctx, ids, listings, logging.Discard()))

	alex, err := ids.Authenticate(ctx, "alex@campus.edu", "123")
	require.NoError(t, err)
	assert.True(t, alex.Verified)

	feed, err := listings.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "400.00", feed[0].Price.String())
	assert.Equal(t, catalog.UnitPerMonth, feed[0].Unit)
	assert.Equal(t, alex.ID, feed[0].ProviderID)
	assert.Equal(t, "Calculus Textbook (2nd ed)", feed[1].Title)
}
