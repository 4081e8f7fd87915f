package repositories

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kasir/internal/models"
)

// InMemoryProductRepository is an in-memory implementation of
// ProductRepository, used for tests and the "memory" database driver.
type InMemoryProductRepository struct {
	products map[string]models.Product
	mu       sync.RWMutex
}

// NewInMemoryProductRepository creates a new instance of InMemoryProductRepository.
func NewInMemoryProductRepository() *InMemoryProductRepository {
	return &InMemoryProductRepository{
		products: make(map[string]models.Product),
	}
}

func productMatches(p *models.Product, search string) bool {
	if strings.Contains(p.Name, search) {
		return true
	}
	return p.Barcode != nil && strings.Contains(*p.Barcode, search)
}

// List returns one page of products ordered by name, optionally filtered on
// name or barcode, together with the total count of matching products.
func (r *InMemoryProductRepository) List(search string, page, perPage int) ([]models.Product, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if search == "" || productMatches(&p, search) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := int64(len(matched))
	start := (page - 1) * perPage
	if start >= len(matched) {
		return []models.Product{}, total, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// GetByID returns a product by its ID.
func (r *InMemoryProductRepository) GetByID(id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	return &product, nil
}

// Create adds a new product, rejecting duplicate barcodes the way the
// database unique index would.
func (r *InMemoryProductRepository) Create(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.checkBarcodeLocked(product); err != nil {
		return err
	}
	r.products[product.ID] = *product
	return nil
}

// Update modifies an existing product.
func (r *InMemoryProductRepository) Update(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[product.ID]; !ok {
		return fmt.Errorf("product with ID %s: %w", product.ID, ErrNotFound)
	}
	if err := r.checkBarcodeLocked(product); err != nil {
		return err
	}
	r.products[product.ID] = *product
	return nil
}

func (r *InMemoryProductRepository) checkBarcodeLocked(product *models.Product) error {
	if product.Barcode == nil {
		return nil
	}
	for _, p := range r.products {
		if p.ID != product.ID && p.Barcode != nil && *p.Barcode == *product.Barcode {
			return fmt.Errorf("barcode %s violates unique constraint", *product.Barcode)
		}
	}
	return nil
}

// Delete removes a product by its ID.
func (r *InMemoryProductRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	delete(r.products, id)
	return nil
}

// LowStock returns products below their minimum stock level.
func (r *InMemoryProductRepository) LowStock() ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	low := make([]models.Product, 0)
	for _, p := range r.products {
		if p.IsLowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

// Search returns up to limit products whose name or barcode contains query.
func (r *InMemoryProductRepository) Search(query string, limit int) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]models.Product, 0)
	for _, p := range r.products {
		if productMatches(&p, query) {
			results = append(results, p)
			if len(results) == limit {
				break
			}
		}
	}
	return results, nil
}

// BarcodeTaken reports whether a product other than excludeID uses the barcode.
func (r *InMemoryProductRepository) BarcodeTaken(barcode, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.ID != excludeID && p.Barcode != nil && *p.Barcode == barcode {
			return true, nil
		}
	}
	return false, nil
}
