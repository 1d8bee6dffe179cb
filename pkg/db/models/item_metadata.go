package models

import "github.com/shopspring/decimal"

// ItemMetadata is product knowledge keyed by barcode. One record per barcode,
// shared globally across users and groups; it accumulates and is never
// deleted. ScanCount only increases.
type ItemMetadata struct {
	Barcode           string           `gorm:"column:barcode;primaryKey" json:"barcode"`
	ItemName          string           `gorm:"column:item_name;not null" json:"itemName"`
	TypicalPrice      *decimal.Decimal `gorm:"column:typical_price;type:numeric" json:"typicalPrice,omitempty"`
	CategoryID        *string          `gorm:"column:category_id;index" json:"categoryId,omitempty"`
	TypicalExpiryDays *int             `gorm:"column:typical_expiry_days" json:"typicalExpiryDays,omitempty"`
	Brand             *string          `gorm:"column:brand" json:"brand,omitempty"`
	Manufacturer      *string          `gorm:"column:manufacturer" json:"manufacturer,omitempty"`
	Weight            *string          `gorm:"column:weight" json:"weight,omitempty"`
	LastUpdated       int64            `gorm:"column:last_updated;not null" json:"lastUpdated"`
	ScanCount         int              `gorm:"column:scan_count;not null;default:1" json:"scanCount"`
	ImageURL          *string          `gorm:"column:image_url" json:"imageUrl,omitempty"`
}

func (ItemMetadata) TableName() string { return "item_metadata" }
