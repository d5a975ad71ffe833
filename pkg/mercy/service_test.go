package mercy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shardscan/models"
	"shardscan/pkg/coordinator"
	"shardscan/pkg/store"
)

func testLedger(baseline int) (*Ledger, *store.MemStore) {
	st := store.NewMemStore()
	log := zerolog.Nop()
	l := NewLedger(st, coordinator.NewKeyLock(), coordinator.DefaultRetryPolicy(log), baseline, log)
	return l, st
}

func TestRecordPullsAccumulates(t *testing.T) {
	l, _ := testLedger(0)
	ctx := context.Background()

	state, resets, err := l.RecordPulls(ctx, PullBatch{
		UserID: "u1", ShardType: models.ShardSacred, Quantity: 85, IdempotencyKey: "p1",
	})
	require.NoError(t, err)
	require.Empty(t, resets)
	require.Equal(t, 85, state.PityCount)

	state, _, err = l.RecordPulls(ctx, PullBatch{
		UserID: "u1", ShardType: models.ShardSacred, Quantity: 10, IdempotencyKey: "p2",
	})
	require.NoError(t, err)
	require.Equal(t, 95, state.PityCount)
}

func TestRecordPullsLegendaryResetsAndReportsOnce(t *testing.T) {
	l, st := testLedger(0)
	ctx := context.Background()

	_, _, err := l.RecordPulls(ctx, PullBatch{
		UserID: "u1", ShardType: models.ShardSacred, Quantity: 95, IdempotencyKey: "p1",
	})
	require.NoError(t, err)

	state, resets, err := l.RecordPulls(ctx, PullBatch{
		UserID: "u1", ShardType: models.ShardSacred, Quantity: 5,
		Flags: models.RarityFlags{Legendary: true}, IdempotencyKey: "p2",
	})
	require.NoError(t, err)
	require.Len(t, resets, 1)
	require.Equal(t, 100, resets[0].PriorCount)
	require.Equal(t, 0, state.PityCount)

	// Two ledger rows for the batch: quantity plus the legendary marker.
	events := st.Events()
	require.Len(t, events, 3)

	// Replaying the same batch changes nothing and reports no new reset.
	state, resets, err = l.RecordPulls(ctx, PullBatch{
		UserID: "u1", ShardType: models.ShardSacred, Quantity: 5,
		Flags: models.RarityFlags{Legendary: true}, IdempotencyKey: "p2",
	})
	require.NoError(t, err)
	require.Empty(t, resets)
	require.Equal(t, 0, state.PityCount)
	require.Len(t, st.Events(), 3)
}

// microsecondStore round-trips events the way the Postgres adapter does:
// timestamptz keeps microseconds, so nanosecond write-side precision is
// lost on read.
type microsecondStore struct {
	*store.MemStore
}

func (m *microsecondStore) ReadEventsOrdered(ctx context.Context, userID string, st models.ShardType) ([]models.PullEvent, error) {
	events, err := m.MemStore.ReadEventsOrdered(ctx, userID, st)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].OccurredAt = events[i].OccurredAt.Truncate(time.Microsecond)
	}
	return events, nil
}

func TestRecordPullsResetSurvivesTimestampRounding(t *testing.T) {
	mem := store.NewMemStore()
	log := zerolog.Nop()
	l := NewLedger(&microsecondStore{mem}, coordinator.NewKeyLock(), coordinator.DefaultRetryPolicy(log), 0, log)
	ctx := context.Background()

	_, _, err := l.RecordPulls(ctx, PullBatch{
		UserID: "u1", ShardType: models.ShardSacred, Quantity: 95, IdempotencyKey: "p1",
	})
	require.NoError(t, err)

	state, resets, err := l.RecordPulls(ctx, PullBatch{
		UserID: "u1", ShardType: models.ShardSacred, Quantity: 5,
		Flags: models.RarityFlags{Legendary: true}, IdempotencyKey: "p2",
	})
	require.NoError(t, err)
	require.Equal(t, 0, state.PityCount)
	require.Len(t, resets, 1)
	require.Equal(t, 100, resets[0].PriorCount)

	rows := mem.Resets()
	require.Len(t, rows, 1)
	require.Equal(t, 100, rows[0].PriorCount)
}

func TestRecordPullsValidation(t *testing.T) {
	l, _ := testLedger(0)
	ctx := context.Background()

	_, _, err := l.RecordPulls(ctx, PullBatch{UserID: "u1", ShardType: models.ShardSacred, Quantity: 0})
	require.Error(t, err)

	_, _, err = l.RecordPulls(ctx, PullBatch{UserID: "u1", ShardType: "bogus", Quantity: 1})
	require.Error(t, err)
}

func TestSetMercyAuditedOverride(t *testing.T) {
	l, st := testLedger(5)
	ctx := context.Background()

	state, err := l.SetMercy(ctx, "u1", models.ShardPrimal, 42, "staffer")
	require.NoError(t, err)
	require.Equal(t, 42, state.PityCount)

	events := st.Events()
	require.Len(t, events, 1)
	require.Equal(t, "set", events[0].EventType)
	require.Equal(t, "staffer", events[0].ActorID)

	// Below-baseline override clamps.
	state, err = l.SetMercy(ctx, "u1", models.ShardPrimal, 1, "staffer")
	require.NoError(t, err)
	require.Equal(t, 5, state.PityCount)

	_, err = l.SetMercy(ctx, "u1", models.ShardPrimal, -1, "staffer")
	require.Error(t, err)
}

func TestStateReadsAllShards(t *testing.T) {
	l, _ := testLedger(0)
	ctx := context.Background()

	_, _, err := l.RecordPulls(ctx, PullBatch{UserID: "u1", ShardType: models.ShardSacred, Quantity: 3, IdempotencyKey: "a"})
	require.NoError(t, err)
	_, _, err = l.RecordPulls(ctx, PullBatch{UserID: "u1", ShardType: models.ShardPrimal, Quantity: 7, IdempotencyKey: "b"})
	require.NoError(t, err)

	states, err := l.State(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, states, 2)
}

func TestConcurrentPullsSameKeySerialize(t *testing.T) {
	l, _ := testLedger(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := l.RecordPulls(ctx, PullBatch{
				UserID: "u1", ShardType: models.ShardSacred, Quantity: 1,
				IdempotencyKey: "k" + string(rune('a'+n)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	states, err := l.State(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.Equal(t, 20, states[0].PityCount)
}
