package models

// Category is local reference data for grouping items. ParentID forms a tree.
type Category struct {
	ID          string  `gorm:"column:id;primaryKey" json:"id"`
	Name        string  `gorm:"column:name;not null" json:"name"`
	Description *string `gorm:"column:description" json:"description,omitempty"`
	Icon        *string `gorm:"column:icon" json:"icon,omitempty"`
	Color       *string `gorm:"column:color" json:"color,omitempty"`
	ParentID    *string `gorm:"column:parent_id;index" json:"parentId,omitempty"`
	SortOrder   int     `gorm:"column:sort_order;not null;default:0" json:"sortOrder"`
	IsActive    bool    `gorm:"column:is_active;not null;default:true" json:"isActive"`
}

func (Category) TableName() string { return "categories" }
