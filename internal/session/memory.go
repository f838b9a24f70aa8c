package session

import (
	"context"
	"sync"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
)

// MemoryStore is an in-process Store used by unit tests and local
// development without Redis. Carts are deep-copied on load and save so
// callers never share entry maps with the store.
type MemoryStore struct {
	mu       sync.Mutex
	carts    map[string]*models.Cart
	staged   map[string]*models.StagedOrder
	activity map[string]time.Time
	guests   map[string]string
	messages map[string][]models.Message
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:    make(map[string]*models.Cart),
		staged:   make(map[string]*models.StagedOrder),
		activity: make(map[string]time.Time),
		guests:   make(map[string]string),
		messages: make(map[string][]models.Message),
	}
}

func copyCart(cart *models.Cart) *models.Cart {
	out := models.NewCart()
	if cart != nil {
		for id, entry := range cart.Entries {
			out.Entries[id] = entry
		}
	}
	return out
}

func (s *MemoryStore) LoadCart(_ context.Context, sessionID string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCart(s.carts[sessionID]), nil
}

func (s *MemoryStore) SaveCart(_ context.Context, sessionID string, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[sessionID] = copyCart(cart)
	return nil
}

func (s *MemoryStore) ClearCart(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	delete(s.activity, sessionID)
	return nil
}

func (s *MemoryStore) LoadStagedOrder(_ context.Context, sessionID string) (*models.StagedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged, ok := s.staged[sessionID]
	if !ok {
		return nil, nil
	}
	out := *staged
	out.Cart = copyCart(staged.Cart)
	return &out, nil
}

func (s *MemoryStore) SaveStagedOrder(_ context.Context, sessionID string, staged *models.StagedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *staged
	out.Cart = copyCart(staged.Cart)
	s.staged[sessionID] = &out
	return nil
}

func (s *MemoryStore) ClearStagedOrder(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staged, sessionID)
	return nil
}

func (s *MemoryStore) LastActivity(_ context.Context, sessionID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity[sessionID], nil
}

func (s *MemoryStore) TouchActivity(_ context.Context, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[sessionID] = now
	return nil
}

func (s *MemoryStore) GuestEmail(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guests[sessionID], nil
}

func (s *MemoryStore) SetGuestEmail(_ context.Context, sessionID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guests[sessionID] = email
	return nil
}

func (s *MemoryStore) PushMessage(_ context.Context, sessionID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	return nil
}

func (s *MemoryStore) PopMessages(_ context.Context, sessionID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages[sessionID]
	delete(s.messages, sessionID)
	return out, nil
}
