package mercy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shardscan/models"
	"shardscan/pkg/coordinator"
	"shardscan/pkg/store"
)

// Ledger applies pull batches and manual overrides to the event log and
// keeps the cached MercyState rows in step. One mutation per (user, shard)
// key at a time; everything else queues on the key lock.
type Ledger struct {
	Store    store.Adapter
	Locks    *coordinator.KeyLock
	Retry    coordinator.RetryPolicy
	Baseline int
	Log      zerolog.Logger
}

func NewLedger(st store.Adapter, locks *coordinator.KeyLock, retry coordinator.RetryPolicy, baseline int, log zerolog.Logger) *Ledger {
	return &Ledger{Store: st, Locks: locks, Retry: retry, Baseline: baseline, Log: log}
}

// PullBatch is one submitted batch of pulls with its rarity outcome.
type PullBatch struct {
	GroupID        string
	UserID         string
	ShardType      models.ShardType
	Quantity       int
	Flags          models.RarityFlags
	IdempotencyKey string
	MessageRef     string
	ActorID        string
}

// RecordPulls appends the batch's ledger rows and returns the refolded
// state. A batch containing a Legendary produces two rows sharing a batch
// id: the quantity row and the legendary marker row, so the Extra rule
// (no quantity double-count) falls out of the fold naturally.
func (l *Ledger) RecordPulls(ctx context.Context, batch PullBatch) (models.MercyState, []Reset, error) {
	if batch.Quantity <= 0 {
		return models.MercyState{}, nil, fmt.Errorf("quantity must be positive")
	}
	if !batch.ShardType.Valid() {
		return models.MercyState{}, nil, fmt.Errorf("unknown shard type %q", batch.ShardType)
	}
	if batch.IdempotencyKey == "" {
		batch.IdempotencyKey = uuid.NewString()
	}
	now := time.Now().UTC()
	batchID := "b-" + batch.IdempotencyKey

	rows := []models.PullEvent{{
		IdempotencyKey: batch.IdempotencyKey,
		GroupID:        batch.GroupID,
		UserID:         batch.UserID,
		ShardType:      batch.ShardType,
		EventType:      "pull",
		Quantity:       batch.Quantity,
		OccurredAt:     now,
		BatchID:        batchID,
		BatchSize:      batch.Quantity,
		ActorID:        batch.ActorID,
		MessageRef:     batch.MessageRef,
	}}
	if batch.Flags.Legendary {
		rows = append(rows, models.PullEvent{
			IdempotencyKey: batch.IdempotencyKey + ":leg",
			GroupID:        batch.GroupID,
			UserID:         batch.UserID,
			ShardType:      batch.ShardType,
			EventType:      "legendary",
			Quantity:       0,
			// A breath after the quantity row so the fold credits the
			// batch before the reset fires.
			OccurredAt: now.Add(time.Millisecond),
			Legendary:  true,
			Guaranteed: batch.Flags.Guaranteed,
			Extra:      batch.Flags.Extra,
			BatchID:    batchID,
			BatchSize:  batch.Quantity,
			ActorID:    batch.ActorID,
			MessageRef: batch.MessageRef,
		})
	}

	return l.applyAndFold(ctx, batch.UserID, batch.ShardType, rows)
}

// SetMercy overwrites the pity counter directly. Always allowed; the
// override lands in the ledger as an auditable "set" row naming the actor.
func (l *Ledger) SetMercy(ctx context.Context, userID string, st models.ShardType, value int, actorID string) (models.MercyState, error) {
	if !st.Valid() {
		return models.MercyState{}, fmt.Errorf("unknown shard type %q", st)
	}
	if value < 0 {
		return models.MercyState{}, fmt.Errorf("mercy value must be non-negative")
	}
	row := models.PullEvent{
		IdempotencyKey: uuid.NewString(),
		UserID:         userID,
		ShardType:      st,
		EventType:      "set",
		SetValue:       value,
		OccurredAt:     time.Now().UTC(),
		ActorID:        actorID,
		Note:           "manual override",
	}
	state, _, err := l.applyAndFold(ctx, userID, st, []models.PullEvent{row})
	return state, err
}

// State returns the cached counters for a user.
func (l *Ledger) State(ctx context.Context, userID string) ([]models.MercyState, error) {
	return l.Store.MercyStates(ctx, userID)
}

// applyAndFold holds the (user, shard) lock while appending rows, replaying
// the full log and persisting the recomputed cache. Replay-from-log rather
// than increment-in-place keeps the cache honest even after partial writes.
func (l *Ledger) applyAndFold(ctx context.Context, userID string, st models.ShardType, rows []models.PullEvent) (models.MercyState, []Reset, error) {
	var state models.MercyState
	var resets []Reset
	key := "mercy:" + userID + ":" + string(st)
	err := l.Locks.WithLock(key, func() error {
		err := l.Retry.Do(ctx, "append_pull_events", func(ctx context.Context) error {
			if e := l.Store.AppendPullEvents(ctx, rows); e != nil {
				return coordinator.Transient(e)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("append events: %w", err)
		}

		events, err := l.Store.ReadEventsOrdered(ctx, userID, st)
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		folded, allResets := Rebuild(userID, st, l.Baseline, events)
		state = folded.Snapshot()

		// Only resets triggered by the rows just appended are reported and
		// persisted; earlier ones are already on record.
		resets = filterNewResets(allResets, rows)

		if err := l.Store.SaveMercyState(ctx, state); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		if len(resets) > 0 {
			rows := make([]models.ResetEvent, 0, len(resets))
			for _, r := range resets {
				rows = append(rows, models.ResetEvent{
					UserID:     r.UserID,
					ShardType:  r.ShardType,
					PriorCount: r.PriorCount,
					Granted:    r.Granted,
					Extra:      r.Extra,
					OccurredAt: r.OccurredAt,
				})
			}
			if err := l.Store.AppendResets(ctx, rows); err != nil {
				l.Log.Warn().Err(err).Msg("reset reporting rows not written")
			}
		}
		return nil
	})
	if err != nil {
		return models.MercyState{}, nil, err
	}
	l.Log.Info().Str("user", userID).Str("shard", string(st)).Int("pity", state.PityCount).Int("resets", len(resets)).Msg("ledger updated")
	return state, resets, nil
}

// filterNewResets keeps the resets fired by the rows just appended. Matched
// by idempotency key: timestamps round-trip through the store at reduced
// precision (Postgres keeps microseconds), so they are not a stable identity.
func filterNewResets(all []Reset, appended []models.PullEvent) []Reset {
	keys := make(map[string]struct{}, len(appended))
	for _, ev := range appended {
		if ev.Legendary {
			keys[ev.IdempotencyKey] = struct{}{}
		}
	}
	var out []Reset
	for _, r := range all {
		if _, ok := keys[r.TriggerKey]; ok {
			out = append(out, r)
		}
	}
	return out
}
