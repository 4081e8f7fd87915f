package services

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"kasir/internal/models"
	"kasir/internal/repositories"
	"kasir/pkg/storage"
)

const (
	// DefaultPerPage is the page size used when the client does not ask
	// for one.
	DefaultPerPage = 10
	// SearchLimit caps the number of results returned by Search.
	SearchLimit = 10
	// MaxImageBytes is the largest accepted product image (2048 KB).
	MaxImageBytes = 2048 * 1024

	// imageNamespace is the blob-store prefix for product images.
	imageNamespace = "products"
)

// EventPublisher pushes stock alerts to interested consumers. Publishing is
// best-effort; failures are logged and never fail the triggering request.
type EventPublisher interface {
	PublishLowStockAlert(product *models.Product) error
}

// ImageUpload carries an uploaded image from the transport layer.
type ImageUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// CreateProductRequest is the payload for creating a product.
type CreateProductRequest struct {
	Name          string   `json:"name" form:"name" validate:"required,max=255"`
	Description   *string  `json:"description" form:"description"`
	Price         *float64 `json:"price" form:"price" validate:"required,gte=0"`
	CostPrice     *float64 `json:"cost_price" form:"cost_price" validate:"omitempty,gte=0"`
	StockQuantity *int     `json:"stock_quantity" form:"stock_quantity" validate:"required,gte=0"`
	MinStockLevel *int     `json:"min_stock_level" form:"min_stock_level" validate:"omitempty,gte=0"`
	Barcode       *string  `json:"barcode" form:"barcode" validate:"omitempty,max=255"`
	Category      *string  `json:"category" form:"category" validate:"omitempty,max=255"`
}

// UpdateProductRequest is the payload for a partial product update. A nil
// field means "absent, keep the stored value".
type UpdateProductRequest struct {
	Name          *string  `json:"name" form:"name" validate:"omitempty,max=255"`
	Description   *string  `json:"description" form:"description"`
	Price         *float64 `json:"price" form:"price" validate:"omitempty,gte=0"`
	CostPrice     *float64 `json:"cost_price" form:"cost_price" validate:"omitempty,gte=0"`
	StockQuantity *int     `json:"stock_quantity" form:"stock_quantity" validate:"omitempty,gte=0"`
	MinStockLevel *int     `json:"min_stock_level" form:"min_stock_level" validate:"omitempty,gte=0"`
	Barcode       *string  `json:"barcode" form:"barcode" validate:"omitempty,max=255"`
	Category      *string  `json:"category" form:"category" validate:"omitempty,max=255"`
}

// ProductPage is one page of the product listing.
type ProductPage struct {
	Data    []models.Product `json:"data"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo      repositories.ProductRepository
	blobs     storage.Store
	publisher EventPublisher // may be nil when eventing is disabled
	validate  *validator.Validate
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, blobs storage.Store, publisher EventPublisher) *ProductService {
	return &ProductService{
		repo:      repo,
		blobs:     blobs,
		publisher: publisher,
		validate:  NewValidator(),
	}
}

// List returns one page of products ordered by name. An empty search means
// no filter; page and perPage fall back to 1 and DefaultPerPage.
func (s *ProductService) List(search string, page, perPage int) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	products, total, err := s.repo.List(search, page, perPage)
	if err != nil {
		return nil, err
	}
	return &ProductPage{
		Data:    products,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}, nil
}

// Get retrieves a single product by its ID.
func (s *ProductService) Get(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// Create validates and persists a new product, storing the image blob first
// when one was uploaded. Requires the manage-products capability.
func (s *ProductService) Create(role models.Role, req *CreateProductRequest, image *ImageUpload) (*models.Product, error) {
	if !Can(role, ActionManageProducts) {
		return nil, ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	ve := newValidationError()
	barcode := normalizeBarcode(req.Barcode)
	if barcode != nil {
		taken, err := s.repo.BarcodeTaken(*barcode, "")
		if err != nil {
			return nil, err
		}
		if taken {
			ve.add("barcode", "the barcode has already been taken")
		}
	}
	validateImage(image, ve)
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:          req.Name,
		Description:   req.Description,
		Price:         *req.Price,
		CostPrice:     req.CostPrice,
		StockQuantity: *req.StockQuantity,
		MinStockLevel: req.MinStockLevel,
		Barcode:       barcode,
		Category:      req.Category,
	}

	if image != nil {
		path, err := s.storeImage(image)
		if err != nil {
			return nil, err
		}
		product.ImagePath = &path
	}

	if err := s.repo.Create(product); err != nil {
		return nil, err
	}
	s.alertIfLowStock(product)
	return product, nil
}

// Update applies a partial update to an existing product. Fields left nil
// keep their stored values; an empty barcode clears the stored one; a new
// image replaces the old blob, whose deletion is best-effort. Requires the
// manage-products capability.
func (s *ProductService) Update(role models.Role, id string, req *UpdateProductRequest, image *ImageUpload) (*models.Product, error) {
	if !Can(role, ActionManageProducts) {
		return nil, ErrForbidden
	}
	product, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	ve := newValidationError()
	barcode := normalizeBarcode(req.Barcode)
	if barcode != nil {
		taken, err := s.repo.BarcodeTaken(*barcode, id)
		if err != nil {
			return nil, err
		}
		if taken {
			ve.add("barcode", "the barcode has already been taken")
		}
	}
	validateImage(image, ve)
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.CostPrice != nil {
		product.CostPrice = req.CostPrice
	}
	if req.StockQuantity != nil {
		product.StockQuantity = *req.StockQuantity
	}
	if req.MinStockLevel != nil {
		product.MinStockLevel = req.MinStockLevel
	}
	if req.Barcode != nil {
		product.Barcode = barcode
	}
	if req.Category != nil {
		product.Category = req.Category
	}

	if image != nil {
		if product.ImagePath != nil {
			// Old blob removal must not block the update.
			if err := s.blobs.Delete(*product.ImagePath); err != nil {
				log.Warn().Err(err).Str("path", *product.ImagePath).
					Msg("failed to delete replaced product image")
			}
		}
		path, err := s.storeImage(image)
		if err != nil {
			return nil, err
		}
		product.ImagePath = &path
	}

	if err := s.repo.Update(product); err != nil {
		return nil, err
	}
	s.alertIfLowStock(product)
	return product, nil
}

// Delete removes a product, deleting its image blob first. Blob deletion is
// best-effort and never aborts the record removal. Requires the
// manage-products capability.
func (s *ProductService) Delete(role models.Role, id string) error {
	if !Can(role, ActionManageProducts) {
		return ErrForbidden
	}
	product, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if product.ImagePath != nil {
		if err := s.blobs.Delete(*product.ImagePath); err != nil {
			log.Warn().Err(err).Str("path", *product.ImagePath).
				Msg("failed to delete product image")
		}
	}
	return s.repo.Delete(id)
}

// LowStock returns all products below their minimum stock level.
func (s *ProductService) LowStock() ([]models.Product, error) {
	return s.repo.LowStock()
}

// Search returns up to SearchLimit products whose name or barcode contains
// query. An empty query is rejected before any storage access.
func (s *ProductService) Search(query string) ([]models.Product, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is required: %w", ErrBadRequest)
	}
	return s.repo.Search(query, SearchLimit)
}

// normalizeBarcode maps an explicitly empty barcode to nil so it is stored
// as NULL and never collides on the unique index.
func normalizeBarcode(barcode *string) *string {
	if barcode == nil || *barcode == "" {
		return nil
	}
	return barcode
}

// validateImage checks extension and size of an uploaded image, collecting
// failures into ve. A nil image is valid (the field is optional).
func validateImage(image *ImageUpload, ve *ValidationError) {
	if image == nil {
		return
	}
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(image.Filename), ".")) {
	case "jpeg", "jpg", "png", "gif":
	default:
		ve.add("image", "must be a file of type: jpeg, png, jpg, gif")
	}
	if image.Size > MaxImageBytes {
		ve.add("image", "may not be greater than 2048 kilobytes")
	}
}

// storeImage writes the upload under the products namespace and returns the
// recorded blob path.
func (s *ProductService) storeImage(image *ImageUpload) (string, error) {
	ext := strings.ToLower(filepath.Ext(image.Filename))
	path := fmt.Sprintf("%s/%s%s", imageNamespace, uuid.New().String(), ext)
	if err := s.blobs.Save(path, image.Content); err != nil {
		return "", fmt.Errorf("failed to store product image: %w", err)
	}
	return path, nil
}

func (s *ProductService) alertIfLowStock(product *models.Product) {
	if s.publisher == nil || !product.IsLowStock() {
		return
	}
	if err := s.publisher.PublishLowStockAlert(product); err != nil {
		log.Warn().Err(err).Str("product_id", product.ID).
			Msg("failed to publish low stock alert")
	}
}
