package models

import (
	"encoding/json"

	"github.com/shopperapp/shopper-backend/pkg/enums"
)

// PendingWrite is a remote write that failed after its local counterpart
// succeeded. Rows are replayed oldest-first by an explicit flush; nothing
// retries them in the background.
type PendingWrite struct {
	ID        string          `gorm:"column:id;primaryKey"`
	Path      string          `gorm:"column:path;not null;index"`
	Op        enums.PendingOp `gorm:"column:op;not null"`
	Payload   json.RawMessage `gorm:"column:payload;type:text"`
	Attempts  int             `gorm:"column:attempts;not null;default:0"`
	LastError *string         `gorm:"column:last_error"`
	CreatedAt int64           `gorm:"column:created_at;not null;index"`
}

func (PendingWrite) TableName() string { return "pending_writes" }
