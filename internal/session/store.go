// Package session keeps per-visitor checkout state: the live cart, the
// staged order, the cart activity stamp, the remembered guest email and
// queued flash messages. The workflow services only see the Store interface,
// so they are independent of the session transport.
package session

import (
	"context"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
)

// Store is a namespaced, per-visitor key-value state store.
type Store interface {
	// LoadCart returns the session's cart, empty (never nil) when absent.
	LoadCart(ctx context.Context, sessionID string) (*models.Cart, error)
	SaveCart(ctx context.Context, sessionID string, cart *models.Cart) error
	ClearCart(ctx context.Context, sessionID string) error

	// LoadStagedOrder returns the staged checkout state, nil when absent.
	LoadStagedOrder(ctx context.Context, sessionID string) (*models.StagedOrder, error)
	SaveStagedOrder(ctx context.Context, sessionID string, staged *models.StagedOrder) error
	ClearStagedOrder(ctx context.Context, sessionID string) error

	// LastActivity returns the last cart mutation time, zero when unknown.
	LastActivity(ctx context.Context, sessionID string) (time.Time, error)
	TouchActivity(ctx context.Context, sessionID string, now time.Time) error

	GuestEmail(ctx context.Context, sessionID string) (string, error)
	SetGuestEmail(ctx context.Context, sessionID, email string) error

	// PushMessage queues a flash message; PopMessages drains the queue.
	PushMessage(ctx context.Context, sessionID string, msg models.Message) error
	PopMessages(ctx context.Context, sessionID string) ([]models.Message, error)
}
