// Package mercy folds the append-only pull-event log into per-user,
// per-shard pity counters. The engine is a pure state machine: the event
// log is the single ordering authority and every derived state must be
// reconstructible from it alone.
package mercy

import (
	"sort"
	"time"

	"shardscan/models"
)

// State is the pity counter for one (user, shard type) pair plus the keys
// already folded in, so replays of the same event are no-ops.
type State struct {
	UserID      string
	ShardType   models.ShardType
	PityCount   int
	Baseline    int
	LastResetAt *time.Time
	applied     map[string]struct{}
}

// NewState starts a fresh counter at the configured baseline.
func NewState(userID string, st models.ShardType, baseline int) *State {
	return &State{
		UserID:    userID,
		ShardType: st,
		PityCount: baseline,
		Baseline:  baseline,
		applied:   make(map[string]struct{}),
	}
}

// Snapshot converts the in-memory state into its persisted row form.
func (s *State) Snapshot() models.MercyState {
	return models.MercyState{
		UserID:      s.UserID,
		ShardType:   s.ShardType,
		PityCount:   s.PityCount,
		LastResetAt: s.LastResetAt,
	}
}

// Reset describes one pity reset produced while folding events. TriggerKey
// is the idempotency key of the legendary event that fired it, the stable
// identity for matching a reset back to a just-appended row.
type Reset struct {
	UserID     string
	ShardType  models.ShardType
	PriorCount int
	Granted    bool
	Extra      bool
	OccurredAt time.Time
	TriggerKey string
}

// Apply folds a single event into the state. Transition rules:
//
//   - non-Legendary pull of quantity q: pity += q
//   - Legendary, no flags: the triggering pull is credited first, then the
//     counter resets to baseline; the emitted Reset carries the credited
//     prior count
//   - Legendary + Guaranteed: system-granted, resets the same way but the
//     Reset is tagged Granted and the pull is not credited as progress
//   - Legendary + Extra: bundled with a primary pull whose quantity was
//     already counted, so it contributes zero quantity before the reset
//   - set: direct overwrite of the counter, never below the baseline
//
// A duplicate idempotency key returns (nil, false) without touching state.
func (s *State) Apply(ev models.PullEvent) (*Reset, bool) {
	if ev.IdempotencyKey != "" {
		if _, dup := s.applied[ev.IdempotencyKey]; dup {
			return nil, false
		}
		s.applied[ev.IdempotencyKey] = struct{}{}
	}

	if ev.EventType == "set" {
		v := ev.SetValue
		if v < s.Baseline {
			v = s.Baseline
		}
		s.PityCount = v
		return nil, true
	}

	if !ev.Legendary {
		if ev.Quantity > 0 {
			s.PityCount += ev.Quantity
		}
		return nil, true
	}

	prior := s.PityCount
	switch {
	case ev.Extra:
		// quantity already counted by the primary pull row
	case ev.Guaranteed:
		// granted outside the pity track, no progress credit
	default:
		if ev.Quantity > 0 {
			prior += ev.Quantity
		}
	}
	t := ev.OccurredAt
	s.PityCount = s.Baseline
	s.LastResetAt = &t
	return &Reset{
		UserID:     s.UserID,
		ShardType:  s.ShardType,
		PriorCount: prior,
		Granted:    ev.Guaranteed,
		Extra:      ev.Extra,
		OccurredAt: t,
		TriggerKey: ev.IdempotencyKey,
	}, true
}

// Fold replays an event slice in ledger order: timestamp ascending, ties
// broken by idempotency key so any two replays agree. Events for other
// (user, shard) pairs are skipped. Returns the resets that occurred.
func (s *State) Fold(events []models.PullEvent) []Reset {
	ordered := make([]models.PullEvent, 0, len(events))
	for _, ev := range events {
		if ev.UserID == s.UserID && ev.ShardType == s.ShardType {
			ordered = append(ordered, ev)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].OccurredAt.Equal(ordered[j].OccurredAt) {
			return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
		}
		return ordered[i].IdempotencyKey < ordered[j].IdempotencyKey
	})
	var resets []Reset
	for _, ev := range ordered {
		if r, ok := s.Apply(ev); ok && r != nil {
			resets = append(resets, *r)
		}
	}
	return resets
}

// Rebuild reconstructs state for a (user, shard) pair from scratch.
func Rebuild(userID string, st models.ShardType, baseline int, events []models.PullEvent) (*State, []Reset) {
	state := NewState(userID, st, baseline)
	resets := state.Fold(events)
	return state, resets
}
