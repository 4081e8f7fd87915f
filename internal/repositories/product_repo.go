package repositories

import (
	"errors"

	"kasir/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	// List returns one page of products ordered by name ascending,
	// optionally filtered to those whose name or barcode contains search.
	// It also returns the total number of matching rows.
	List(search string, page, perPage int) ([]models.Product, int64, error)
	GetByID(id string) (*models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id string) error
	// LowStock returns products below their minimum stock level, applying
	// models.DefaultMinStockLevel to products without one.
	LowStock() ([]models.Product, error)
	// Search returns up to limit products whose name or barcode contains query.
	Search(query string, limit int) ([]models.Product, error)
	// BarcodeTaken reports whether another product (excluding excludeID,
	// when non-empty) already uses the given barcode.
	BarcodeTaken(barcode, excludeID string) (bool, error)
}
