package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY name")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// HasApprovedTrainer reports whether a service product has at least one
// approved trainer offering it.
func (s *Store) HasApprovedTrainer(ctx context.Context, serviceID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM trainer_services WHERE service_id = $1 AND is_approved)", serviceID)
	return exists, err
}

// ApprovedTrainersForService lists the approved trainer links for a service.
func (s *Store) ApprovedTrainersForService(ctx context.Context, serviceID int64) ([]models.TrainerService, error) {
	var links []models.TrainerService
	err := s.db.SelectContext(ctx, &links,
		"SELECT * FROM trainer_services WHERE service_id = $1 AND is_approved ORDER BY id", serviceID)
	return links, err
}

// ReserveStock adds a soft hold against a physical product's stock. The row
// is locked so concurrent carts cannot oversubscribe the same units. Fails
// with ErrOutOfStock when the hold would exceed what is still sellable.
func (s *Store) ReserveStock(ctx context.Context, productID int64, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var product models.Product
	err = tx.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock product: %w", err)
	}

	if product.AvailableStock() < quantity {
		return models.ErrOutOfStock
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET stock_reserved = stock_reserved + $1 WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	return tx.Commit()
}

// ReleaseStock drops a soft hold. The counter is clamped at zero; releasing
// more than is held still succeeds at the clamp but reports
// ErrInsufficientReservation so the caller can log the ledger drift.
func (s *Store) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var reserved int
	err = tx.GetContext(ctx, &reserved,
		"SELECT stock_reserved FROM products WHERE id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock product: %w", err)
	}

	newReserved := reserved - quantity
	if newReserved < 0 {
		newReserved = 0
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET stock_reserved = $1 WHERE id = $2", newReserved, productID)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if reserved < quantity {
		return models.ErrInsufficientReservation
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
