package models

// ShoppingItem is one entry on a group's collaborative shopping list. The
// same record is mirrored under groups/{groupId}/shopping_items/{id} on the
// realtime backend; JSON tags define that wire shape.
//
// Revision is a logical version bumped on every local write. The stream
// merger refuses to overwrite a local row whose Revision is newer than the
// incoming remote snapshot.
type ShoppingItem struct {
	ID                   string  `gorm:"column:id;primaryKey" json:"id"`
	Name                 string  `gorm:"column:name;not null" json:"name"`
	Quantity             int     `gorm:"column:quantity;not null;default:1" json:"quantity"`
	Barcode              *string `gorm:"column:barcode" json:"barcode,omitempty"`
	CategoryID           *string `gorm:"column:category_id" json:"categoryId,omitempty"`
	GroupID              string  `gorm:"column:group_id;not null;index" json:"groupId"`
	AddedBy              string  `gorm:"column:added_by;not null" json:"addedBy"`
	AddedAt              int64   `gorm:"column:added_at;not null" json:"addedAt"`
	Completed            bool    `gorm:"column:completed;not null;default:false" json:"completed"`
	CompletedAt          *int64  `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CompletedBy          *string `gorm:"column:completed_by" json:"completedBy,omitempty"`
	Notes                *string `gorm:"column:notes" json:"notes,omitempty"`
	Hyperlink            *string `gorm:"column:hyperlink" json:"hyperlink,omitempty"`
	SuggestedFromHistory bool    `gorm:"column:suggested_from_history;not null;default:false" json:"suggestedFromHistory"`
	Revision             int64   `gorm:"column:revision;not null;default:0" json:"revision"`
}

func (ShoppingItem) TableName() string { return "shopping_items" }
