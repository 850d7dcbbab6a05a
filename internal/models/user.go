package models

import "time"

// User is the identity record behind every chat owner. The ID is a ULID
// issued at registration and treated as opaque everywhere else.
type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName  string    `gorm:"type:varchar(64);not null" json:"display_name"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }
