package models

import (
	"time"
)

// User is an operator account for the HTTP surface. Staff accounts may act
// on other users' data (mercy overrides, reviewing someone else's scan).
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time `gorm:"index"`
	Username       string     `gorm:"size:255;not null;unique"`
	HashedPassword []byte     `gorm:"not null"`
	// DiscordID links the account to the chat identity the ledger keys on.
	DiscordID string `gorm:"size:64;index"`
	Staff     bool   `gorm:"default:false"`
}
