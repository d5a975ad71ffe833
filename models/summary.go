package models

import "time"

// SummaryArtifact is the pinned weekly aggregate message for a group.
// Exactly one row per (group, ISO week) is live: the one targeted by edits.
// Rollover to a new week creates a new row and retires the previous one.
type SummaryArtifact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	GroupID   string    `gorm:"size:64;not null;uniqueIndex:idx_group_week" json:"group_id"`
	// WeekKey is the ISO-8601 week, e.g. "2026-W35".
	WeekKey string `gorm:"size:16;not null;uniqueIndex:idx_group_week" json:"week_key"`
	// MessageRef is the chat-platform handle of the pinned message.
	MessageRef    string    `gorm:"size:128" json:"message_ref"`
	Live          bool      `gorm:"index" json:"live"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	// Pages is the rendered content, one JSON-encoded page per artifact,
	// stored as a single JSON array.
	Pages     string `gorm:"type:text" json:"pages"`
	PageCount int    `json:"page_count"`
}
