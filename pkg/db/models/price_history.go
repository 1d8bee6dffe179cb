package models

import "github.com/shopspring/decimal"

// PriceHistory is one observed price for a barcode. Append-only in practice.
type PriceHistory struct {
	ID         string           `gorm:"column:id;primaryKey" json:"id"`
	Barcode    string           `gorm:"column:barcode;not null;index" json:"barcode"`
	Price      decimal.Decimal  `gorm:"column:price;type:numeric;not null" json:"price"`
	StoreName  *string          `gorm:"column:store_name;index" json:"storeName,omitempty"`
	UserID     string           `gorm:"column:user_id;not null;index" json:"userId"`
	RecordedAt int64            `gorm:"column:recorded_at;not null" json:"recordedAt"`
	IsOnSale   bool             `gorm:"column:is_on_sale;not null;default:false" json:"isOnSale"`
	SalePrice  *decimal.Decimal `gorm:"column:sale_price;type:numeric" json:"salePrice,omitempty"`
	Location   *string          `gorm:"column:location" json:"location,omitempty"`
}

func (PriceHistory) TableName() string { return "price_history" }
