package models

import "time"

// MercyState is the cached pity counter for one (user, shard type) pair.
// Derived from the PullEvent log; never authoritative on its own.
type MercyState struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      string     `gorm:"size:64;not null;uniqueIndex:idx_mercy_user_shard" json:"user_id"`
	ShardType   ShardType  `gorm:"size:16;not null;uniqueIndex:idx_mercy_user_shard" json:"shard_type"`
	PityCount   int        `gorm:"not null" json:"pity_count"`
	LastResetAt *time.Time `json:"last_reset_at,omitempty"`
}

// ResetEvent records a pity reset for reporting. Granted marks resets from
// Guaranteed legendaries, Extra marks bundled extra legendaries; both are
// distinguished from earned-via-pity resets downstream.
type ResetEvent struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UserID     string    `gorm:"size:64;index" json:"user_id"`
	ShardType  ShardType `gorm:"size:16" json:"shard_type"`
	PriorCount int       `json:"prior_count"`
	Granted    bool      `json:"granted"`
	Extra      bool      `json:"extra"`
	OccurredAt time.Time `json:"occurred_at"`
}
