package models

import "github.com/shopspring/decimal"

// ScanHistory records one barcode/label scan by a user. Append-mostly:
// only IsOpened/OpenedAt are mutated after insert. ExpiryDate is normalized
// to YYYY-MM-DD so lexical comparison matches chronological order.
type ScanHistory struct {
	ID         string           `gorm:"column:id;primaryKey" json:"id"`
	UserID     string           `gorm:"column:user_id;not null;index" json:"userId"`
	Barcode    *string          `gorm:"column:barcode;index" json:"barcode,omitempty"`
	ItemName   string           `gorm:"column:item_name;not null" json:"itemName"`
	Price      *decimal.Decimal `gorm:"column:price;type:numeric" json:"price,omitempty"`
	ScannedAt  int64            `gorm:"column:scanned_at;not null" json:"scannedAt"`
	ExpiryDate *string          `gorm:"column:expiry_date" json:"expiryDate,omitempty"`
	IsOpened   bool             `gorm:"column:is_opened;not null;default:false" json:"isOpened"`
	OpenedAt   *int64           `gorm:"column:opened_at" json:"openedAt,omitempty"`
	CategoryID *string          `gorm:"column:category_id" json:"categoryId,omitempty"`
	Quantity   int              `gorm:"column:quantity;not null;default:1" json:"quantity"`
	StoreName  *string          `gorm:"column:store_name" json:"storeName,omitempty"`
	Location   *string          `gorm:"column:location" json:"location,omitempty"`
}

func (ScanHistory) TableName() string { return "scan_history" }
