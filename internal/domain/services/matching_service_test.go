package services

import (
	"context"
	"testing"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type matchingFixture struct {
	svc       *MatchingService
	products  *fakeProducts
	links     *fakeLinks
	connector *fakeConnector
}

func newMatchingFixture(registry func(c *fakeConnector) *connectors.Registry) *matchingFixture {
	f := &matchingFixture{
		products: &fakeProducts{products: []*models.Product{
			{ID: "p-code", TenantID: testTenant, Code: "SKU-1", Barcode: "111", Name: "Vazo", SalePrice: decimal.RequireFromString("25.50"), Stock: 3},
			{ID: "p-barcode", TenantID: testTenant, Code: "SKU-2", Barcode: "869000", Name: "Kupa"},
			{ID: "p-dup-a", TenantID: testTenant, Code: "SKU-3", Barcode: "555"},
			{ID: "p-dup-b", TenantID: testTenant, Code: "SKU-4", Barcode: "555"},
			{ID: "p-other-tenant", TenantID: "tenant-2", Code: "SKU-9", Barcode: "999"},
		}},
		links: newFakeLinks(),
		connector: &fakeConnector{
			platform: models.PlatformTrendyol,
			catalog: []models.RemoteListing{
				{ListingID: "L1", Code: "SKU-1"},
				{ListingID: "L2", Barcode: "869000"},
				{ListingID: "L3", Code: "unknown"},
			},
		},
	}
	accounts := newFakeAccounts(
		&models.Account{ID: "acc-1", TenantID: testTenant, Platform: models.PlatformTrendyol, Active: true},
		&models.Account{ID: "acc-2", TenantID: testTenant, Platform: models.PlatformTrendyol, Active: true},
	)
	reg := connectors.NewRegistry(f.connector)
	if registry != nil {
		reg = registry(f.connector)
	}
	f.svc = NewMatchingService(f.products, f.links, accounts, reg, logger.NewNopLogger())
	return f
}

func TestMatching_CodeWinsOverBarcode(t *testing.T) {
	f := newMatchingFixture(nil)

	// код указывает на p-code, штрихкод - на другой товар p-barcode
	res, err := f.svc.Resolve(context.Background(), testTenant, "acc-1", models.RemoteListing{
		ListingID: "L1", Code: "SKU-1", Barcode: "869000", Price: decimal.RequireFromString("30"), Stock: 4,
	})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "p-code", res.ProductID)
	assert.Equal(t, models.MatchedByCode, res.MatchedBy)
	assert.Equal(t, "L1", res.Link.RemoteListingID)
	assert.Equal(t, 4, res.Link.RemoteStock)
}

func TestMatching_BarcodeFallback(t *testing.T) {
	f := newMatchingFixture(nil)

	res, err := f.svc.Resolve(context.Background(), testTenant, "acc-1", models.RemoteListing{ListingID: "L2", Code: "NOPE", Barcode: "869000"})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "p-barcode", res.ProductID)
	assert.Equal(t, models.MatchedByBarcode, res.MatchedBy)
}

func TestMatching_NoGuessing(t *testing.T) {
	f := newMatchingFixture(nil)

	tests := []struct {
		name    string
		listing models.RemoteListing
	}{
		{"ambiguous barcode", models.RemoteListing{ListingID: "L", Barcode: "555"}},
		{"partial code", models.RemoteListing{ListingID: "L", Code: "SKU"}},
		{"other tenant product", models.RemoteListing{ListingID: "L", Code: "SKU-9", Barcode: "999"}},
		{"no keys", models.RemoteListing{ListingID: "L"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Resolve(context.Background(), testTenant, "acc-1", tt.listing)
			require.NoError(t, err)
			assert.False(t, res.Matched)
			assert.Nil(t, res.Link)
		})
	}
	assert.Empty(t, f.links.links)
}

func TestMatching_ResolveUpdatesExistingLink(t *testing.T) {
	f := newMatchingFixture(nil)

	first, err := f.svc.Resolve(context.Background(), testTenant, "acc-1", models.RemoteListing{ListingID: "L1", Code: "SKU-1"})
	require.NoError(t, err)
	second, err := f.svc.Resolve(context.Background(), testTenant, "acc-1", models.RemoteListing{ListingID: "L1-new", Code: "SKU-1"})
	require.NoError(t, err)

	assert.Equal(t, first.Link.ID, second.Link.ID)
	assert.Len(t, f.links.links, 1)
	assert.Equal(t, "L1-new", f.links.get(first.Link.ID).RemoteListingID)
}

func TestMatching_UnmatchTouchesOnlyThatAccount(t *testing.T) {
	f := newMatchingFixture(nil)
	ctx := context.Background()

	_, err := f.svc.LinkManually(ctx, testTenant, "p-code", "acc-1", models.RemoteListing{ListingID: "A"})
	require.NoError(t, err)
	other, err := f.svc.LinkManually(ctx, testTenant, "p-code", "acc-2", models.RemoteListing{ListingID: "B"})
	require.NoError(t, err)
	assert.Equal(t, models.MatchedByManual, other.MatchedBy)

	require.NoError(t, f.svc.Unmatch(ctx, testTenant, "p-code", "acc-1"))

	require.Len(t, f.links.links, 1)
	assert.Equal(t, "acc-2", f.links.get(other.ID).AccountID)

	err = f.svc.Unmatch(ctx, testTenant, "p-code", "acc-1")
	assert.ErrorIs(t, err, utils.ErrLinkNotFound)
}

func TestMatching_LinkManuallyRequiresProduct(t *testing.T) {
	f := newMatchingFixture(nil)
	_, err := f.svc.LinkManually(context.Background(), testTenant, "p-other-tenant", "acc-1", models.RemoteListing{ListingID: "A"})
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestMatching_AutoMatch(t *testing.T) {
	f := newMatchingFixture(nil)

	res, err := f.svc.AutoMatch(context.Background(), testTenant, "acc-1", connectors.CatalogQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Unmatched)
	assert.Len(t, f.links.links, 2)
}

func TestMatching_PublishAsNew(t *testing.T) {
	t.Run("not supported", func(t *testing.T) {
		f := newMatchingFixture(nil)
		_, err := f.svc.PublishAsNew(context.Background(), testTenant, "p-code", "acc-1")
		assert.ErrorIs(t, err, connectors.ErrNotSupported)
	})

	t.Run("publisher", func(t *testing.T) {
		var pub *fakePublisher
		f := newMatchingFixture(func(c *fakeConnector) *connectors.Registry {
			pub = &fakePublisher{fakeConnector: c}
			return connectors.NewRegistry(pub)
		})

		link, err := f.svc.PublishAsNew(context.Background(), testTenant, "p-code", "acc-1")
		require.NoError(t, err)
		require.Len(t, pub.published, 1)
		assert.Equal(t, "new-SKU-1", link.RemoteListingID)
		assert.Equal(t, models.MatchedByPublished, link.MatchedBy)
		assert.True(t, decimal.RequireFromString("25.5").Equal(link.RemotePrice))
	})
}
