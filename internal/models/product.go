package models

import "time"

// DefaultMinStockLevel is the stock threshold applied to products that
// have no min_stock_level of their own.
const DefaultMinStockLevel = 5

// Product represents an item sold through the point of sale.
type Product struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name          string    `json:"name" gorm:"type:varchar(255);not null"`
	Description   *string   `json:"description" gorm:"type:text"`
	Price         float64   `json:"price" gorm:"not null"`
	CostPrice     *float64  `json:"cost_price"`
	StockQuantity int       `json:"stock_quantity" gorm:"not null"`
	MinStockLevel *int      `json:"min_stock_level"`
	Barcode       *string   `json:"barcode" gorm:"type:varchar(255);uniqueIndex"`
	Category      *string   `json:"category" gorm:"type:varchar(255)"`
	ImagePath     *string   `json:"image_path" gorm:"type:varchar(255)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsLowStock reports whether the product's stock is below its minimum
// level, falling back to DefaultMinStockLevel when none is configured.
func (p *Product) IsLowStock() bool {
	if p.MinStockLevel != nil {
		return p.StockQuantity < *p.MinStockLevel
	}
	return p.StockQuantity < DefaultMinStockLevel
}
