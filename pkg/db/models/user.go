package models

// User is the canonical profile record, mirrored under users/{id} on the
// realtime backend. A user belongs to at most one active group at a time.
type User struct {
	ID             string  `gorm:"column:id;primaryKey" json:"id"`
	Email          string  `gorm:"column:email;not null;uniqueIndex" json:"email"`
	DisplayName    string  `gorm:"column:display_name;not null" json:"displayName"`
	PhotoURL       *string `gorm:"column:photo_url" json:"photoUrl,omitempty"`
	CurrentGroupID *string `gorm:"column:current_group_id;index" json:"currentGroupId,omitempty"`
	CreatedAt      int64   `gorm:"column:created_at;not null" json:"createdAt"`
	LastActiveAt   int64   `gorm:"column:last_active_at;not null" json:"lastActiveAt"`
	IsOnline       bool    `gorm:"column:is_online;not null;default:false" json:"isOnline"`
}

func (User) TableName() string { return "users" }
