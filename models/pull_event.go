package models

import "time"

// PullEvent is one append-only ledger row recording a batch of pulls.
// The event log is the source of truth for mercy state; MercyState rows are
// a cache that must always be reconstructible from these rows alone.
type PullEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// IdempotencyKey makes retried appends safe: a second insert with the
	// same key is a no-op and the ledger fold skips duplicates.
	IdempotencyKey string    `gorm:"size:64;not null;uniqueIndex" json:"idempotency_key"`
	GroupID        string    `gorm:"size:64;index;not null" json:"group_id"`
	UserID         string    `gorm:"size:64;index:idx_user_shard;not null" json:"user_id"`
	ShardType      ShardType `gorm:"size:16;index:idx_user_shard;not null" json:"shard_type"`
	// EventType is "pull", "legendary", "epic", "mythical" or "set" for
	// manual pity overrides.
	EventType  string    `gorm:"size:16;not null" json:"event_type"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	OccurredAt time.Time `gorm:"index;not null" json:"occurred_at"`

	Legendary  bool `json:"legendary"`
	Guaranteed bool `json:"guaranteed"`
	Extra      bool `json:"extra"`

	// Batch bookkeeping carried through from the submitting command so a
	// multi-row batch (pull + the legendary it contained) can be re-grouped.
	BatchID      string `gorm:"size:64;index" json:"batch_id"`
	BatchSize    int    `json:"batch_size"`
	IndexInBatch int    `json:"index_in_batch"`

	// SetValue is the target pity count for EventType "set".
	SetValue   int    `json:"set_value"`
	ActorID    string `gorm:"size:64" json:"actor_id"`
	MessageRef string `gorm:"size:128" json:"message_ref"`
	Note       string `gorm:"size:255" json:"note"`
}

// Flags folds the boolean columns back into a RarityFlags value.
func (e *PullEvent) Flags() RarityFlags {
	return RarityFlags{
		Legendary:  e.Legendary,
		Guaranteed: e.Guaranteed,
		Extra:      e.Extra,
		Epic:       e.EventType == "epic",
		Mythical:   e.EventType == "mythical",
	}
}
