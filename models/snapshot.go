package models

import "time"

// Snapshot is one confirmed reading of all five shard counters for a user.
// Rows are append-only; the latest row by TakenAt is the authoritative
// inventory for the user, earlier rows remain as history.
type Snapshot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	GroupID   string    `gorm:"size:64;index;not null;uniqueIndex:idx_group_message" json:"group_id"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	UserName  string    `gorm:"size:128" json:"user_name"`
	// MessageRef points at the chat message that carried the screenshot or
	// manual entry. One snapshot per message.
	MessageRef string    `gorm:"size:128;not null;uniqueIndex:idx_group_message" json:"message_ref"`
	TakenAt    time.Time `gorm:"index;not null" json:"taken_at"`
	Mystery    int       `gorm:"not null" json:"mystery"`
	Ancient    int       `gorm:"not null" json:"ancient"`
	Void       int       `gorm:"not null" json:"void"`
	Primal     int       `gorm:"not null" json:"primal"`
	Sacred     int       `gorm:"not null" json:"sacred"`
	// Source is "ocr" or "manual" per counter origin; a scan confirmed with
	// hand-corrected values is recorded as "manual".
	Source     string  `gorm:"size:16;not null" json:"source"`
	Confidence float64 `json:"confidence"`
}

// Counts returns the per-shard counter map for rendering and diffing.
func (s *Snapshot) Counts() map[ShardType]int {
	return map[ShardType]int{
		ShardMystery: s.Mystery,
		ShardAncient: s.Ancient,
		ShardVoid:    s.Void,
		ShardPrimal:  s.Primal,
		ShardSacred:  s.Sacred,
	}
}

// SetCounts fills the five counter columns from a map, missing types are zero.
func (s *Snapshot) SetCounts(counts map[ShardType]int) {
	s.Mystery = counts[ShardMystery]
	s.Ancient = counts[ShardAncient]
	s.Void = counts[ShardVoid]
	s.Primal = counts[ShardPrimal]
	s.Sacred = counts[ShardSacred]
}
