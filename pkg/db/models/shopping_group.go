package models

import (
	dbtypes "github.com/shopperapp/shopper-backend/pkg/db/types"
)

// ShoppingGroup is a shared list collection. MemberIDs keeps join order.
type ShoppingGroup struct {
	ID          string             `gorm:"column:id;primaryKey" json:"id"`
	Name        string             `gorm:"column:name;not null" json:"name"`
	Description *string            `gorm:"column:description" json:"description,omitempty"`
	CreatedBy   string             `gorm:"column:created_by;not null;index" json:"createdBy"`
	CreatedAt   int64              `gorm:"column:created_at;not null" json:"createdAt"`
	MemberIDs   dbtypes.StringList `gorm:"column:member_ids;type:text;not null;default:'[]'" json:"memberIds"`
	IsActive    bool               `gorm:"column:is_active;not null;default:true" json:"isActive"`
}

func (ShoppingGroup) TableName() string { return "shopping_groups" }
