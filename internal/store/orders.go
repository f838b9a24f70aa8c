package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tanatos09/perfectbody/internal/models"
)

// CreateAddress persists a new address row.
func (s *Store) CreateAddress(ctx context.Context, address *models.Address) error {
	query := `
		INSERT INTO addresses (user_id, first_name, last_name, street, street_number, city, postal_code, country, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, address, query,
		address.UserID, address.FirstName, address.LastName, address.Street,
		address.StreetNumber, address.City, address.PostalCode, address.Country, address.Email)
}

// GetAddressByID retrieves an address by ID
func (s *Store) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	var address models.Address
	err := s.db.GetContext(ctx, &address, "SELECT * FROM addresses WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("address %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// FindMatchingAddress looks for an existing address of the same user whose
// normalized fields (trimmed, case-folded) all match. Guest addresses are
// never reused, so a nil userID always misses.
func (s *Store) FindMatchingAddress(ctx context.Context, userID *int64, address *models.Address) (*models.Address, error) {
	if userID == nil {
		return nil, nil
	}

	query := `
		SELECT * FROM addresses
		WHERE user_id = $1
		  AND LOWER(TRIM(first_name)) = $2 AND LOWER(TRIM(last_name)) = $3
		  AND LOWER(TRIM(street)) = $4 AND LOWER(TRIM(street_number)) = $5
		  AND LOWER(TRIM(city)) = $6 AND LOWER(TRIM(postal_code)) = $7
		  AND LOWER(TRIM(country)) = $8 AND LOWER(TRIM(email)) = $9
		ORDER BY created_at DESC LIMIT 1`

	norm := func(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

	var found models.Address
	err := s.db.GetContext(ctx, &found, query, *userID,
		norm(address.FirstName), norm(address.LastName), norm(address.Street),
		norm(address.StreetNumber), norm(address.City), norm(address.PostalCode),
		norm(address.Country), norm(address.Email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// LatestAddressForUser returns the user's most recent address for prefill,
// nil when the user has none.
func (s *Store) LatestAddressForUser(ctx context.Context, userID int64) (*models.Address, error) {
	var address models.Address
	err := s.db.GetContext(ctx, &address,
		"SELECT * FROM addresses WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// PlaceOrder materializes a confirmed checkout in a single transaction:
// every staged line is re-validated against authoritative stock under a row
// lock, the order and its lines are inserted, stock is decremented and the
// matching soft holds are released. Any failure rolls the whole thing back.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, lines []models.OrderProduct) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Lock product rows in id order so concurrent confirmations cannot
	// deadlock on each other.
	sorted := make([]models.OrderProduct, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, line := range sorted {
		var product models.Product
		err = tx.GetContext(ctx, &product,
			"SELECT * FROM products WHERE id = $1 FOR UPDATE", line.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %d: %w", line.ProductID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock product: %w", err)
		}

		if product.IsService() {
			continue
		}

		if product.StockAvailable < line.Quantity {
			return &models.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.StockAvailable,
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products
			 SET stock_available = stock_available - $1,
			     stock_reserved = GREATEST(stock_reserved - $1, 0)
			 WHERE id = $2`,
			line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to consume stock: %w", err)
		}
	}

	query := `
		INSERT INTO orders (customer_id, guest_email, state, total_price, billing_address_id, shipping_address_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err = tx.GetContext(ctx, order, query,
		order.CustomerID, order.GuestEmail, order.State, order.TotalPrice,
		order.BillingAddressID, order.ShippingAddressID)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range lines {
		lines[i].OrderID = order.ID
		err = tx.GetContext(ctx, &lines[i].ID,
			`INSERT INTO order_products (order_id, product_id, quantity, price_per_item, note)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			lines[i].OrderID, lines[i].ProductID, lines[i].Quantity, lines[i].PricePerItem, lines[i].Note)
		if err != nil {
			return fmt.Errorf("failed to create order line: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForCustomer retrieves an order owned by the given customer.
func (s *Store) GetOrderForCustomer(ctx context.Context, id, customerID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND customer_id = $2", id, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForGuest retrieves a guest order matched by its email.
func (s *Store) GetOrderForGuest(ctx context.Context, id int64, guestEmail string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND customer_id IS NULL AND LOWER(guest_email) = LOWER($2)",
		id, guestEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByCustomer retrieves a customer's orders, newest first.
func (s *Store) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

// GetOrderLines retrieves all lines of an order.
func (s *Store) GetOrderLines(ctx context.Context, orderID int64) ([]models.OrderProduct, error) {
	var lines []models.OrderProduct
	err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_products WHERE order_id = $1 ORDER BY id", orderID)
	return lines, err
}

// CancelOrder flips a pending order to CANCELLED and restores the
// authoritative stock of its physical lines, all in one transaction. The
// holds were already consumed at confirmation, so only stock_available
// moves. Non-pending orders fail with ErrOrderNotCancellable, untouched.
func (s *Store) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if order.State != models.OrderStatePending {
		return nil, models.ErrOrderNotCancellable
	}

	var lines []models.OrderProduct
	err = tx.SelectContext(ctx, &lines,
		"SELECT * FROM order_products WHERE order_id = $1 ORDER BY product_id", orderID)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET stock_available = stock_available + $1
			 WHERE id = $2 AND product_type = $3`,
			line.Quantity, line.ProductID, models.ProductTypePhysical)
		if err != nil {
			return nil, fmt.Errorf("failed to restore stock: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET state = $1 WHERE id = $2", models.OrderStateCancelled, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.State = models.OrderStateCancelled
	return &order, nil
}
