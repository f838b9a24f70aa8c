package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
	"github.com/tanatos09/perfectbody/internal/notify"
	"github.com/tanatos09/perfectbody/internal/session"
	"github.com/tanatos09/perfectbody/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// orderStore persists orders and their address records.
type orderStore interface {
	PlaceOrder(ctx context.Context, order *models.Order, lines []models.OrderProduct) error
	CancelOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderForCustomer(ctx context.Context, id, customerID int64) (*models.Order, error)
	GetOrderForGuest(ctx context.Context, id int64, guestEmail string) (*models.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error)
	GetOrderLines(ctx context.Context, orderID int64) ([]models.OrderProduct, error)
}

// addressStore persists and reuses checkout addresses.
type addressStore interface {
	CreateAddress(ctx context.Context, address *models.Address) error
	FindMatchingAddress(ctx context.Context, userID *int64, address *models.Address) (*models.Address, error)
	GetAddressByID(ctx context.Context, id int64) (*models.Address, error)
	LatestAddressForUser(ctx context.Context, userID int64) (*models.Address, error)
}

// publisher emits order lifecycle events.
type publisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// CheckoutService orchestrates address collection, order staging,
// confirmation and cancellation on top of the session cart.
type CheckoutService struct {
	sessions  session.Store
	orders    orderStore
	addresses addressStore
	events    publisher
	sink      notify.Sink
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(sessions session.Store, orders orderStore, addresses addressStore, events publisher, sink notify.Sink) *CheckoutService {
	return &CheckoutService{
		sessions:  sessions,
		orders:    orders,
		addresses: addresses,
		events:    events,
		sink:      sink,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// StartOrderInput is the checkout form: shipping address, optional distinct
// billing address and the guest email for unauthenticated visitors.
type StartOrderInput struct {
	Shipping   AddressInput  `json:"shipping"`
	Billing    *AddressInput `json:"billing,omitempty"`
	GuestEmail string        `json:"guest_email,omitempty"`
}

// PrefillAddress returns the authenticated user's most recent address so the
// checkout form can be pre-populated, nil when there is none.
func (s *CheckoutService) PrefillAddress(ctx context.Context, customerID *int64) (*AddressInput, error) {
	if customerID == nil {
		return nil, nil
	}

	address, err := s.addresses.LatestAddressForUser(ctx, *customerID)
	if err != nil {
		return nil, err
	}
	if address == nil {
		return nil, nil
	}
	return addressToInput(address), nil
}

// StartOrder validates the checkout form and stages the order: address rows
// are persisted (or reused on an exact normalized match for the same user)
// and the cart is snapshotted under the session's cart_order key, separate
// from the live cart.
func (s *CheckoutService) StartOrder(ctx context.Context, sessionID string, customerID *int64, in StartOrderInput) (*models.StagedOrder, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.StartOrder")
	defer span.End()

	cart, err := s.sessions.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.IsEmpty() {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		s.sink.Error(ctx, sessionID, "your cart is empty")
		return nil, models.ErrEmptyCart
	}

	guestEmail := strings.TrimSpace(in.GuestEmail)
	if customerID == nil {
		if guestEmail == "" {
			util.CheckoutFailedTotal.WithLabelValues("missing_guest_email").Inc()
			return nil, models.ErrMissingGuestEmail
		}
		if !emailRx.MatchString(guestEmail) {
			return nil, &models.ValidationError{Fields: []models.FieldError{
				{Field: "guest_email", Message: "enter a valid email address"},
			}}
		}
	} else {
		guestEmail = ""
	}

	if fieldErrs := ValidateAddress(in.Shipping); len(fieldErrs) > 0 {
		return nil, &models.ValidationError{Fields: fieldErrs}
	}
	if in.Billing != nil {
		if fieldErrs := ValidateAddress(*in.Billing); len(fieldErrs) > 0 {
			return nil, &models.ValidationError{Fields: fieldErrs}
		}
	}

	shipping, err := s.findOrCreateAddress(ctx, customerID, in.Shipping)
	if err != nil {
		return nil, err
	}

	billing := shipping
	if in.Billing != nil {
		billing, err = s.findOrCreateAddress(ctx, customerID, *in.Billing)
		if err != nil {
			return nil, err
		}
	}

	staged := &models.StagedOrder{
		ShippingAddressID: shipping.ID,
		BillingAddressID:  billing.ID,
		Cart:              cart,
		GuestEmail:        guestEmail,
		StagedAt:          s.now(),
	}

	if err := s.sessions.SaveStagedOrder(ctx, sessionID, staged); err != nil {
		return nil, fmt.Errorf("failed to stage order: %w", err)
	}
	if guestEmail != "" {
		if err := s.sessions.SetGuestEmail(ctx, sessionID, guestEmail); err != nil {
			return nil, fmt.Errorf("failed to remember guest email: %w", err)
		}
	}

	s.logger.Info("Order staged",
		zap.String("session_id", sessionID),
		zap.Int64("shipping_address_id", shipping.ID),
		zap.Int64("billing_address_id", billing.ID))

	return staged, nil
}

// OrderSummary is the priced recap of a staged order. Pricing comes from the
// staged snapshot only, so catalog changes mid-checkout do not move it.
type OrderSummary struct {
	Lines           []models.SummaryLine `json:"lines"`
	TotalPrice      int64                `json:"total_price"`
	ShippingAddress *models.Address      `json:"shipping_address"`
	BillingAddress  *models.Address      `json:"billing_address"`
	GuestEmail      string               `json:"guest_email,omitempty"`
}

// Summary recomputes per-line and total pricing from the staged snapshot.
func (s *CheckoutService) Summary(ctx context.Context, sessionID string) (*OrderSummary, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Summary")
	defer span.End()

	staged, err := s.loadStaged(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	shipping, billing, err := s.stagedAddresses(ctx, sessionID, staged)
	if err != nil {
		return nil, err
	}

	return &OrderSummary{
		Lines:           summaryLines(staged.Cart),
		TotalPrice:      staged.Cart.Total(),
		ShippingAddress: shipping,
		BillingAddress:  billing,
		GuestEmail:      staged.GuestEmail,
	}, nil
}

// ConfirmOrder materializes the staged order. Physical lines are re-checked
// against authoritative stock inside the order transaction; on success the
// staged order and the live cart are cleared and OrderPlaced is published.
func (s *CheckoutService) ConfirmOrder(ctx context.Context, sessionID string, customerID *int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ConfirmOrder")
	defer span.End()

	staged, err := s.loadStaged(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if customerID == nil && staged.GuestEmail == "" {
		util.CheckoutFailedTotal.WithLabelValues("missing_guest_email").Inc()
		return nil, models.ErrMissingGuestEmail
	}

	if _, _, err := s.stagedAddresses(ctx, sessionID, staged); err != nil {
		return nil, err
	}

	var guestEmail *string
	if customerID == nil {
		guestEmail = &staged.GuestEmail
	}

	order := &models.Order{
		CustomerID:        customerID,
		GuestEmail:        guestEmail,
		State:             models.OrderStatePending,
		TotalPrice:        staged.Cart.Total(),
		BillingAddressID:  staged.BillingAddressID,
		ShippingAddressID: staged.ShippingAddressID,
	}

	lines := make([]models.OrderProduct, 0, len(staged.Cart.Entries))
	for _, line := range summaryLines(staged.Cart) {
		lines = append(lines, models.OrderProduct{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			PricePerItem: line.UnitPrice,
		})
	}

	if err := s.orders.PlaceOrder(ctx, order, lines); err != nil {
		var stockErr *models.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			s.sink.Error(ctx, sessionID, stockErr.Error())
		case errors.Is(err, models.ErrNotFound):
			util.CheckoutFailedTotal.WithLabelValues("stale_product").Inc()
		default:
			util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	if err := s.sessions.ClearStagedOrder(ctx, sessionID); err != nil {
		s.logger.Error("Failed to clear staged order", zap.Error(err))
	}
	if err := s.sessions.ClearCart(ctx, sessionID); err != nil {
		s.logger.Error("Failed to clear cart after confirmation", zap.Error(err))
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("total_price", order.TotalPrice))
	s.sink.Success(ctx, sessionID, fmt.Sprintf("thank you for your order #%d", order.ID))

	event := &models.OrderPlacedEvent{
		BaseEvent:  s.baseEvent(models.EventTypeOrderPlaced),
		OrderID:    order.ID,
		SessionID:  sessionID,
		CustomerID: order.CustomerID,
		TotalPrice: order.TotalPrice,
		Lines:      eventLines(staged.Cart),
	}
	if guestEmail != nil {
		event.GuestEmail = *guestEmail
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}

	return order, nil
}

// CancelOrder cancels a pending order owned by the caller and restores its
// stock. Guests are matched by the email remembered in their session.
func (s *CheckoutService) CancelOrder(ctx context.Context, sessionID string, customerID *int64, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CancelOrder")
	defer span.End()

	if _, err := s.ownedOrder(ctx, sessionID, customerID, orderID); err != nil {
		return nil, err
	}

	order, err := s.orders.CancelOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotCancellable) {
			s.sink.Error(ctx, sessionID, models.ErrOrderNotCancellable.Error())
		}
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.Int64("order_id", order.ID))
	s.sink.Success(ctx, sessionID, fmt.Sprintf("order #%d was cancelled", order.ID))

	event := &models.OrderCancelledEvent{
		BaseEvent:  s.baseEvent(models.EventTypeOrderCancelled),
		OrderID:    order.ID,
		SessionID:  sessionID,
		CustomerID: order.CustomerID,
		Reason:     "cancelled by customer",
	}
	if order.GuestEmail != nil {
		event.GuestEmail = *order.GuestEmail
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return order, nil
}

// MyOrders lists the customer's orders, newest first.
func (s *CheckoutService) MyOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	return s.orders.GetOrdersByCustomer(ctx, customerID)
}

// OrderDetail fetches one order with its lines, scoped to the caller.
func (s *CheckoutService) OrderDetail(ctx context.Context, sessionID string, customerID *int64, orderID int64) (*models.Order, []models.OrderProduct, error) {
	order, err := s.ownedOrder(ctx, sessionID, customerID, orderID)
	if err != nil {
		return nil, nil, err
	}

	lines, err := s.orders.GetOrderLines(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, lines, nil
}

func (s *CheckoutService) ownedOrder(ctx context.Context, sessionID string, customerID *int64, orderID int64) (*models.Order, error) {
	if customerID != nil {
		return s.orders.GetOrderForCustomer(ctx, orderID, *customerID)
	}

	guestEmail, err := s.sessions.GuestEmail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if guestEmail == "" {
		return nil, models.ErrNotFound
	}
	return s.orders.GetOrderForGuest(ctx, orderID, guestEmail)
}

// loadStaged fetches the staged order or reports why checkout cannot
// continue.
func (s *CheckoutService) loadStaged(ctx context.Context, sessionID string) (*models.StagedOrder, error) {
	staged, err := s.sessions.LoadStagedOrder(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load staged order: %w", err)
	}
	if staged == nil {
		util.CheckoutFailedTotal.WithLabelValues("not_staged").Inc()
		return nil, models.ErrOrderNotStaged
	}
	if staged.Cart.IsEmpty() {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, models.ErrEmptyCart
	}
	return staged, nil
}

// stagedAddresses resolves the staged address ids. A miss means the session
// references rows that no longer exist, so the staging is dropped and the
// workflow resets to StartOrder.
func (s *CheckoutService) stagedAddresses(ctx context.Context, sessionID string, staged *models.StagedOrder) (*models.Address, *models.Address, error) {
	reset := func() error {
		s.logger.Warn("Staged order references a missing address, resetting checkout",
			zap.String("session_id", sessionID))
		if clearErr := s.sessions.ClearStagedOrder(ctx, sessionID); clearErr != nil {
			s.logger.Error("Failed to clear stale staged order", zap.Error(clearErr))
		}
		util.CheckoutFailedTotal.WithLabelValues("stale_address").Inc()
		return models.ErrOrderNotStaged
	}

	shipping, err := s.addresses.GetAddressByID(ctx, staged.ShippingAddressID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, reset()
	}
	if err != nil {
		return nil, nil, err
	}

	if staged.BillingAddressID == staged.ShippingAddressID {
		return shipping, shipping, nil
	}

	billing, err := s.addresses.GetAddressByID(ctx, staged.BillingAddressID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, reset()
	}
	if err != nil {
		return nil, nil, err
	}
	return shipping, billing, nil
}

func (s *CheckoutService) findOrCreateAddress(ctx context.Context, customerID *int64, in AddressInput) (*models.Address, error) {
	address := in.toAddress(customerID)

	existing, err := s.addresses.FindMatchingAddress(ctx, customerID, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.addresses.CreateAddress(ctx, address); err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return address, nil
}

func (s *CheckoutService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}

// summaryLines flattens the cart into priced lines sorted by product id.
func summaryLines(cart *models.Cart) []models.SummaryLine {
	lines := make([]models.SummaryLine, 0, len(cart.Entries))
	for _, entry := range cart.Entries {
		lines = append(lines, models.SummaryLine{
			ProductID: entry.ProductID,
			Name:      entry.Name,
			UnitPrice: entry.UnitPrice,
			Quantity:  entry.Quantity,
			Subtotal:  entry.Subtotal(),
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func eventLines(cart *models.Cart) []models.OrderLineData {
	lines := make([]models.OrderLineData, 0, len(cart.Entries))
	for _, line := range summaryLines(cart) {
		lines = append(lines, models.OrderLineData{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return lines
}
