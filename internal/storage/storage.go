package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace-checkout/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrInsufficientStock is returned by DecrementStock when the conditional
// update matched no row, meaning live stock was below the requested quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrPromoExhausted is returned by RedeemPromo when the quota-guarded update
// matched no row.
var ErrPromoExhausted = errors.New("promo quota exhausted")

type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a new database store
func NewStorage(databaseURL string) (*Storage, error) {
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

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// GetProductByID retrieves a product by ID
func (s *Storage) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Storage) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
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

// ListActiveProducts retrieves active products for catalog browsing
func (s *Storage) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE status = $1 ORDER BY id", models.ProductStatusActive)
	return products, err
}

// GetStoreByID retrieves a store by ID
func (s *Storage) GetStoreByID(ctx context.Context, id int64) (*models.Store, error) {
	var store models.Store
	err := s.db.GetContext(ctx, &store, "SELECT * FROM stores WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

// GetStoresByIDs retrieves multiple stores by IDs
func (s *Storage) GetStoresByIDs(ctx context.Context, ids []int64) ([]models.Store, error) {
	if len(ids) == 0 {
		return []models.Store{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM stores WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var stores []models.Store
	err = s.db.SelectContext(ctx, &stores, query, args...)
	return stores, err
}

// GetAddressByID retrieves an address by ID. Returns nil when absent so
// callers can apply their own ownership semantics without leaking existence.
func (s *Storage) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	var addr models.Address
	err := s.db.GetContext(ctx, &addr, "SELECT * FROM addresses WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// GetCustomerCityID resolves a customer's city from their default address.
// Returns 0 when the customer has no default address or it carries no city.
func (s *Storage) GetCustomerCityID(ctx context.Context, customerID int64) (int64, error) {
	var cityID sql.NullInt64
	err := s.db.GetContext(ctx, &cityID,
		"SELECT city_id FROM addresses WHERE customer_id = $1 AND is_default ORDER BY id LIMIT 1",
		customerID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !cityID.Valid {
		return 0, nil
	}
	return cityID.Int64, nil
}
