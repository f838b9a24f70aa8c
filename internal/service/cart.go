package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
	"github.com/tanatos09/perfectbody/internal/notify"
	"github.com/tanatos09/perfectbody/internal/session"
	"github.com/tanatos09/perfectbody/internal/util"

	"go.uber.org/zap"
)

// catalog provides product lookups for cart and checkout decisions.
type catalog interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	HasApprovedTrainer(ctx context.Context, serviceID int64) (bool, error)
}

// ledger mutates the stock reservation counters. Both operations are atomic
// units of work against the backing store.
type ledger interface {
	ReserveStock(ctx context.Context, productID int64, quantity int) error
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
}

// CartService owns the session cart workflow: add, remove, update, view and
// the lazy inactivity expiry. Every cart mutation keeps the reservation
// ledger in step and stamps the activity clock.
type CartService struct {
	sessions session.Store
	catalog  catalog
	ledger   ledger
	sink     notify.Sink
	cartTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(sessions session.Store, catalog catalog, ledger ledger, sink notify.Sink, cartTTL time.Duration) *CartService {
	return &CartService{
		sessions: sessions,
		catalog:  catalog,
		ledger:   ledger,
		sink:     sink,
		cartTTL:  cartTTL,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// AddToCart puts delta units of a product into the session cart and reserves
// the matching stock. Physical goods fail with ErrOutOfStock when the cart's
// hold would exceed what is still sellable; services fail with
// ErrServiceUnavailable unless an approved trainer offers them.
func (s *CartService) AddToCart(ctx context.Context, sessionID string, productID int64, delta int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	if delta < 1 {
		delta = 1
	}

	if _, err := s.ExpireIfInactive(ctx, sessionID, s.now()); err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		util.CartRejectionsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	cart, err := s.sessions.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if product.IsService() {
		available, err := s.catalog.HasApprovedTrainer(ctx, productID)
		if err != nil {
			return nil, err
		}
		if !available {
			util.CartRejectionsTotal.WithLabelValues("service_unavailable").Inc()
			return nil, models.ErrServiceUnavailable
		}
	} else {
		held := cart.Quantity(productID)
		if product.AvailableStock() <= 0 || held+delta > product.AvailableStock() {
			util.CartRejectionsTotal.WithLabelValues("out_of_stock").Inc()
			return nil, models.ErrOutOfStock
		}

		start := s.now()
		err = s.ledger.ReserveStock(ctx, productID, delta)
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			if errors.Is(err, models.ErrOutOfStock) {
				util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			} else {
				util.StockReservationsFailed.WithLabelValues("error").Inc()
			}
			return nil, err
		}
	}

	entry, ok := cart.Entries[productID]
	if !ok {
		entry = models.CartEntry{
			ProductID: productID,
			Name:      product.Name,
			UnitPrice: product.Price,
		}
	}
	entry.Quantity += delta
	cart.Entries[productID] = entry

	if err := s.saveAndTouch(ctx, sessionID, cart); err != nil {
		return nil, err
	}

	util.CartAddsTotal.Inc()
	s.logger.Info("Product added to cart",
		zap.String("session_id", sessionID),
		zap.Int64("product_id", productID),
		zap.Int("delta", delta))

	return cart, nil
}

// RemoveFromCart deletes a cart entry and releases its hold. A ledger
// already below the released amount is a consistency fault: it is logged and
// surfaced as a message, but the entry is removed all the same.
func (s *CartService) RemoveFromCart(ctx context.Context, sessionID string, productID int64) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveFromCart")
	defer span.End()

	if _, err := s.ExpireIfInactive(ctx, sessionID, s.now()); err != nil {
		return nil, err
	}

	cart, err := s.sessions.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	entry, ok := cart.Entries[productID]
	if !ok {
		return nil, models.ErrNotFound
	}

	s.releaseHold(ctx, sessionID, productID, entry.Quantity)

	delete(cart.Entries, productID)
	if err := s.saveAndTouch(ctx, sessionID, cart); err != nil {
		return nil, err
	}

	util.CartRemovesTotal.Inc()
	return cart, nil
}

// UpdateCart rewrites an entry's quantity and adjusts the reservation by the
// difference. A non-positive quantity behaves as a removal.
func (s *CartService) UpdateCart(ctx context.Context, sessionID string, productID int64, quantity int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateCart")
	defer span.End()

	if quantity <= 0 {
		return s.RemoveFromCart(ctx, sessionID, productID)
	}

	if _, err := s.ExpireIfInactive(ctx, sessionID, s.now()); err != nil {
		return nil, err
	}

	cart, err := s.sessions.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	entry, ok := cart.Entries[productID]
	if !ok {
		return nil, models.ErrNotFound
	}

	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if !product.IsService() {
		diff := quantity - entry.Quantity
		switch {
		case diff > 0:
			if diff > product.AvailableStock() {
				util.CartRejectionsTotal.WithLabelValues("out_of_stock").Inc()
				return nil, models.ErrOutOfStock
			}
			if err := s.ledger.ReserveStock(ctx, productID, diff); err != nil {
				return nil, err
			}
		case diff < 0:
			s.releaseHold(ctx, sessionID, productID, -diff)
		}
	}

	entry.Quantity = quantity
	cart.Entries[productID] = entry

	if err := s.saveAndTouch(ctx, sessionID, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// ViewCart returns the session cart after applying the lazy expiry check.
func (s *CartService) ViewCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ViewCart")
	defer span.End()

	if _, err := s.ExpireIfInactive(ctx, sessionID, s.now()); err != nil {
		return nil, err
	}
	return s.sessions.LoadCart(ctx, sessionID)
}

// ClearCart drops every entry and releases all holds.
func (s *CartService) ClearCart(ctx context.Context, sessionID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	cart, err := s.sessions.LoadCart(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}

	for productID, entry := range cart.Entries {
		s.releaseHold(ctx, sessionID, productID, entry.Quantity)
	}

	return s.sessions.ClearCart(ctx, sessionID)
}

// ExpireIfInactive clears the cart and releases its holds when the last cart
// mutation is older than the inactivity window. It reports whether the cart
// expired; the visitor is told through the notification sink.
func (s *CartService) ExpireIfInactive(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	last, err := s.sessions.LastActivity(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if last.IsZero() || now.Sub(last) <= s.cartTTL {
		return false, nil
	}

	cart, err := s.sessions.LoadCart(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if cart.IsEmpty() {
		return false, s.sessions.ClearCart(ctx, sessionID)
	}

	for productID, entry := range cart.Entries {
		s.releaseHold(ctx, sessionID, productID, entry.Quantity)
	}

	if err := s.sessions.ClearCart(ctx, sessionID); err != nil {
		return false, err
	}

	util.CartExpirationsTotal.Inc()
	s.logger.Info("Cart expired due to inactivity",
		zap.String("session_id", sessionID),
		zap.Time("last_activity", last))
	s.sink.Info(ctx, sessionID, models.ErrCartExpired.Error())

	return true, nil
}

// releaseHold returns held units to the ledger for a physical good. Services
// hold nothing; products deleted since the add release nothing either.
func (s *CartService) releaseHold(ctx context.Context, sessionID string, productID int64, quantity int) {
	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("Failed to look up product for release",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
		return
	}
	if product.IsService() {
		return
	}

	err = s.ledger.ReleaseStock(ctx, productID, quantity)
	if errors.Is(err, models.ErrInsufficientReservation) {
		s.logger.Warn("Reservation ledger below released amount",
			zap.String("session_id", sessionID),
			zap.Int64("product_id", productID),
			zap.Int("quantity", quantity))
		s.sink.Error(ctx, sessionID, models.ErrInsufficientReservation.Error())
		return
	}
	if err != nil {
		s.logger.Error("Failed to release stock",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

func (s *CartService) saveAndTouch(ctx context.Context, sessionID string, cart *models.Cart) error {
	if err := s.sessions.SaveCart(ctx, sessionID, cart); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	if err := s.sessions.TouchActivity(ctx, sessionID, s.now()); err != nil {
		return fmt.Errorf("failed to stamp cart activity: %w", err)
	}
	return nil
}
