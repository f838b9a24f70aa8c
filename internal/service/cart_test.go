package service

import (
	"context"
	"testing"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
	"github.com/tanatos09/perfectbody/internal/notify"
	"github.com/tanatos09/perfectbody/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products map[int64]*models.Product
	approved map[int64]bool
}

func (f *fakeCatalog) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *product
	return &copied, nil
}

func (f *fakeCatalog) HasApprovedTrainer(_ context.Context, serviceID int64) (bool, error) {
	return f.approved[serviceID], nil
}

// fakeLedger mutates the shared product counters the way the SQL ledger
// does, including the release clamp.
type fakeLedger struct {
	products map[int64]*models.Product
}

func (f *fakeLedger) ReserveStock(_ context.Context, productID int64, quantity int) error {
	product, ok := f.products[productID]
	if !ok {
		return models.ErrNotFound
	}
	if product.AvailableStock() < quantity {
		return models.ErrOutOfStock
	}
	product.StockReserved += quantity
	return nil
}

func (f *fakeLedger) ReleaseStock(_ context.Context, productID int64, quantity int) error {
	product, ok := f.products[productID]
	if !ok {
		return models.ErrNotFound
	}
	if product.StockReserved < quantity {
		product.StockReserved = 0
		return models.ErrInsufficientReservation
	}
	product.StockReserved -= quantity
	return nil
}

type cartFixture struct {
	svc      *CartService
	sessions *session.MemoryStore
	products map[int64]*models.Product
	approved map[int64]bool
	clock    *time.Time
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()

	products := map[int64]*models.Product{
		1: {ID: 1, ProductType: models.ProductTypePhysical, Name: "Protein powder", Price: 10000, StockAvailable: 5},
		2: {ID: 2, ProductType: models.ProductTypeService, Name: "Personal training", Price: 50000},
	}
	approved := map[int64]bool{2: true}

	sessions := session.NewMemoryStore()
	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	svc := NewCartService(sessions, &fakeCatalog{products: products, approved: approved},
		&fakeLedger{products: products}, notify.NewFlashSink(sessions), 15*time.Minute)
	svc.now = func() time.Time { return *clock }

	return &cartFixture{svc: svc, sessions: sessions, products: products, approved: approved, clock: clock}
}

func (f *cartFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestAddToCartReservesStock(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	cart, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, cart.Quantity(1))
	assert.Equal(t, 2, f.products[1].StockReserved)
	assert.Equal(t, "Protein powder", cart.Entries[1].Name)
	assert.Equal(t, int64(10000), cart.Entries[1].UnitPrice)
	assert.Equal(t, int64(20000), cart.Total())
}

func TestAddToCartOutOfStock(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 6)
	assert.ErrorIs(t, err, models.ErrOutOfStock)
	assert.Equal(t, 0, f.products[1].StockReserved)

	// The cart's own holds count against availability.
	_, err = f.svc.AddToCart(ctx, "s1", 1, 3)
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "s1", 1, 3)
	assert.ErrorIs(t, err, models.ErrOutOfStock)
	assert.Equal(t, 3, f.products[1].StockReserved)
}

func TestAddToCartUnknownProduct(t *testing.T) {
	f := newCartFixture(t)

	_, err := f.svc.AddToCart(context.Background(), "s1", 99, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAddServiceRequiresApprovedTrainer(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	cart, err := f.svc.AddToCart(ctx, "s1", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Quantity(2))
	assert.Equal(t, 0, f.products[2].StockReserved)

	f.approved[2] = false
	_, err = f.svc.AddToCart(ctx, "s1", 2, 1)
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestAddThenRemoveRoundTripsReservation(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 3)
	require.NoError(t, err)
	require.Equal(t, 3, f.products[1].StockReserved)

	cart, err := f.svc.RemoveFromCart(ctx, "s1", 1)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 0, f.products[1].StockReserved)
}

func TestRemoveMissingEntry(t *testing.T) {
	f := newCartFixture(t)

	_, err := f.svc.RemoveFromCart(context.Background(), "s1", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRemoveSurvivesLedgerDrift(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)

	// Somebody else zeroed the ledger behind our back.
	f.products[1].StockReserved = 1

	cart, err := f.svc.RemoveFromCart(ctx, "s1", 1)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 0, f.products[1].StockReserved)

	messages, err := f.sessions.PopMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageError, messages[0].Kind)
}

func TestUpdateCartAdjustsReservationByDelta(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)

	cart, err := f.svc.UpdateCart(ctx, "s1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Quantity(1))
	assert.Equal(t, 5, f.products[1].StockReserved)

	cart, err = f.svc.UpdateCart(ctx, "s1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Quantity(1))
	assert.Equal(t, 1, f.products[1].StockReserved)
}

func TestUpdateCartBeyondAvailableStock(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)

	_, err = f.svc.UpdateCart(ctx, "s1", 1, 6)
	assert.ErrorIs(t, err, models.ErrOutOfStock)
	assert.Equal(t, 2, f.products[1].StockReserved)
}

func TestUpdateCartToZeroRemoves(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)

	cart, err := f.svc.UpdateCart(ctx, "s1", 1, 0)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 0, f.products[1].StockReserved)
}

func TestUpdateCartMissingEntry(t *testing.T) {
	f := newCartFixture(t)

	_, err := f.svc.UpdateCart(context.Background(), "s1", 1, 2)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCartExpiresAfterInactivity(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, f.products[1].StockReserved)

	f.advance(16 * time.Minute)

	cart, err := f.svc.ViewCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 0, f.products[1].StockReserved)

	messages, err := f.sessions.PopMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageInfo, messages[0].Kind)
}

func TestCartSurvivesWithinInactivityWindow(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)

	f.advance(14 * time.Minute)

	cart, err := f.svc.ViewCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Quantity(1))
	assert.Equal(t, 2, f.products[1].StockReserved)
}

func TestMutationResetsInactivityWindow(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 1)
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	_, err = f.svc.AddToCart(ctx, "s1", 1, 1)
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	cart, err := f.svc.ViewCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Quantity(1))
}

func TestClearCartReleasesAllHolds(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 3)
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "s1", 2, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearCart(ctx, "s1"))

	cart, err := f.sessions.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 0, f.products[1].StockReserved)
}

func TestCartsAreIsolatedPerSession(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 1, 2)
	require.NoError(t, err)

	cart, err := f.svc.ViewCart(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	// Both sessions hold against the same counters.
	_, err = f.svc.AddToCart(ctx, "s2", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, f.products[1].StockReserved)

	_, err = f.svc.AddToCart(ctx, "s2", 1, 1)
	assert.ErrorIs(t, err, models.ErrOutOfStock)
}
