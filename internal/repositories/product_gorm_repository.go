package repositories

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"kasir/internal/models"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// List returns one page of products ordered by name, optionally filtered on
// name or barcode, together with the total count of matching rows.
func (r *GORMProductRepository) List(search string, page, perPage int) ([]models.Product, int64, error) {
	query := r.db.Model(&models.Product{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name LIKE ? OR barcode LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var products []models.Product
	offset := (page - 1) * perPage
	if err := query.Order("name asc").Offset(offset).Limit(perPage).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update updates an existing product in the database.
func (r *GORMProductRepository) Update(product *models.Product) error {
	res := r.db.Save(product) // Save writes all fields, including zero values
	if res.Error != nil {
		return fmt.Errorf("failed to update product: %w", res.Error)
	}
	return nil
}

// Delete deletes a product by its ID from the database.
func (r *GORMProductRepository) Delete(id string) error {
	res := r.db.Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

// LowStock returns products whose stock is below their minimum level. The
// default-threshold clause is parenthesized so it only applies to products
// without a min_stock_level of their own.
func (r *GORMProductRepository) LowStock() ([]models.Product, error) {
	var products []models.Product
	err := r.db.
		Where("stock_quantity < min_stock_level OR (min_stock_level IS NULL AND stock_quantity < ?)",
			models.DefaultMinStockLevel).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock products: %w", err)
	}
	return products, nil
}

// Search returns up to limit products whose name or barcode contains query.
func (r *GORMProductRepository) Search(query string, limit int) ([]models.Product, error) {
	pattern := "%" + query + "%"
	var products []models.Product
	err := r.db.
		Where("name LIKE ? OR barcode LIKE ?", pattern, pattern).
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}

// BarcodeTaken reports whether a product other than excludeID uses the barcode.
func (r *GORMProductRepository) BarcodeTaken(barcode, excludeID string) (bool, error) {
	query := r.db.Model(&models.Product{}).Where("barcode = ?", barcode)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check barcode uniqueness: %w", err)
	}
	return count > 0, nil
}
