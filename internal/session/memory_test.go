package session

import (
	"context"
	"testing"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCartRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cart, err := s.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	cart.Entries[1] = models.CartEntry{ProductID: 1, Name: "Protein powder", UnitPrice: 10000, Quantity: 2}
	require.NoError(t, s.SaveCart(ctx, "s1", cart))

	loaded, err := s.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Quantity(1))

	require.NoError(t, s.ClearCart(ctx, "s1"))
	cleared, err := s.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cleared.IsEmpty())
}

func TestMemoryStoreCopiesCarts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cart := models.NewCart()
	cart.Entries[1] = models.CartEntry{ProductID: 1, Quantity: 1}
	require.NoError(t, s.SaveCart(ctx, "s1", cart))

	// Mutating the caller's copy must not leak into the store.
	cart.Entries[1] = models.CartEntry{ProductID: 1, Quantity: 9}

	loaded, err := s.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Quantity(1))

	// Same for a loaded copy.
	loaded.Entries[1] = models.CartEntry{ProductID: 1, Quantity: 5}
	again, err := s.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Quantity(1))
}

func TestMemoryStoreStagedOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	staged, err := s.LoadStagedOrder(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, staged)

	cart := models.NewCart()
	cart.Entries[1] = models.CartEntry{ProductID: 1, UnitPrice: 10000, Quantity: 2}
	require.NoError(t, s.SaveStagedOrder(ctx, "s1", &models.StagedOrder{
		ShippingAddressID: 3,
		BillingAddressID:  3,
		Cart:              cart,
		StagedAt:          time.Now(),
	}))

	loaded, err := s.LoadStagedOrder(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(3), loaded.ShippingAddressID)
	assert.Equal(t, 2, loaded.Cart.Quantity(1))

	require.NoError(t, s.ClearStagedOrder(ctx, "s1"))
	loaded, err = s.LoadStagedOrder(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreActivity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	last, err := s.LastActivity(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchActivity(ctx, "s1", now))

	last, err = s.LastActivity(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, now, last)

	// Clearing the cart also drops the activity marker.
	require.NoError(t, s.ClearCart(ctx, "s1"))
	last, err = s.LastActivity(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestMemoryStoreGuestEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	email, err := s.GuestEmail(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, email)

	require.NoError(t, s.SetGuestEmail(ctx, "s1", "guest@example.com"))
	email, err = s.GuestEmail(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", email)
}

func TestMemoryStoreMessagesDrainOnPop(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PushMessage(ctx, "s1", models.Message{Kind: models.MessageSuccess, Text: "first"}))
	require.NoError(t, s.PushMessage(ctx, "s1", models.Message{Kind: models.MessageError, Text: "second"}))
	require.NoError(t, s.PushMessage(ctx, "s2", models.Message{Kind: models.MessageInfo, Text: "other"}))

	messages, err := s.PopMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "second", messages[1].Text)

	messages, err = s.PopMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	messages, err = s.PopMessages(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "other", messages[0].Text)
}
