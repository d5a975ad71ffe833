package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shardscan/models"
)

func TestAppendSnapshotIdempotentByGroupAndMessage(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := st.AppendSnapshot(ctx, &models.Snapshot{
		GroupID: "g1", UserID: "u1", MessageRef: "m1", TakenAt: now, Mystery: 10,
	})
	require.NoError(t, err)

	// Same message confirmed again, even with different counts, returns the
	// original row untouched.
	dup, err := st.AppendSnapshot(ctx, &models.Snapshot{
		GroupID: "g1", UserID: "u1", MessageRef: "m1", TakenAt: now.Add(time.Hour), Mystery: 999,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, dup.ID)
	require.Equal(t, 10, dup.Mystery)

	other, err := st.AppendSnapshot(ctx, &models.Snapshot{
		GroupID: "g2", UserID: "u1", MessageRef: "m1", TakenAt: now,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID, "same ref in another group is a new row")
}

func TestAppendPullEventsDedupAndOrderedRead(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()
	t0 := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	events := []models.PullEvent{
		{IdempotencyKey: "b", UserID: "u1", ShardType: models.ShardSacred, EventType: "pull", Quantity: 2, OccurredAt: t0.Add(time.Minute)},
		{IdempotencyKey: "a", UserID: "u1", ShardType: models.ShardSacred, EventType: "pull", Quantity: 1, OccurredAt: t0},
		{IdempotencyKey: "a", UserID: "u1", ShardType: models.ShardSacred, EventType: "pull", Quantity: 99, OccurredAt: t0},
	}
	require.NoError(t, st.AppendPullEvents(ctx, events))
	require.NoError(t, st.AppendPullEvents(ctx, events[:1]))

	out, err := st.ReadEventsOrdered(ctx, "u1", models.ShardSacred)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].IdempotencyKey)
	require.Equal(t, 1, out[0].Quantity, "duplicate key must not overwrite the original")
	require.Equal(t, "b", out[1].IdempotencyKey)
}

func TestReadEventsOrderedTieBreaksOnKey(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()
	t0 := time.Now().UTC()
	require.NoError(t, st.AppendPullEvents(ctx, []models.PullEvent{
		{IdempotencyKey: "z", UserID: "u1", ShardType: models.ShardVoid, OccurredAt: t0},
		{IdempotencyKey: "a", UserID: "u1", ShardType: models.ShardVoid, OccurredAt: t0},
	}))
	out, err := st.ReadEventsOrdered(ctx, "u1", models.ShardVoid)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "z"}, []string{out[0].IdempotencyKey, out[1].IdempotencyKey})
}

func TestLatestSnapshotsOnePerUser(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()
	t0 := time.Now().UTC()

	for i, ref := range []string{"m1", "m2", "m3"} {
		_, err := st.AppendSnapshot(ctx, &models.Snapshot{
			GroupID: "g1", UserID: "u1", MessageRef: ref, TakenAt: t0.Add(time.Duration(i) * time.Hour), Mystery: i,
		})
		require.NoError(t, err)
	}
	_, err := st.AppendSnapshot(ctx, &models.Snapshot{GroupID: "g1", UserID: "u2", MessageRef: "m4", TakenAt: t0})
	require.NoError(t, err)

	latest, err := st.LatestSnapshots(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	for _, s := range latest {
		if s.UserID == "u1" {
			require.Equal(t, 2, s.Mystery, "latest row wins")
		}
	}
}

func TestCreateArtifactRetiresPreviousLive(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	a1 := &models.SummaryArtifact{GroupID: "g1", WeekKey: "2026-W35", MessageRef: "s1"}
	require.NoError(t, st.CreateArtifact(ctx, a1))
	a2 := &models.SummaryArtifact{GroupID: "g1", WeekKey: "2026-W36", MessageRef: "s2"}
	require.NoError(t, st.CreateArtifact(ctx, a2))

	old, err := st.GetLiveArtifact(ctx, "g1", "2026-W35")
	require.NoError(t, err)
	require.Nil(t, old, "previous week's artifact must be retired")

	cur, err := st.GetLiveArtifact(ctx, "g1", "2026-W36")
	require.NoError(t, err)
	require.NotNil(t, cur)
	require.True(t, cur.Live)
}

func TestEditArtifactMissingRow(t *testing.T) {
	st := NewMemStore()
	err := st.EditArtifact(context.Background(), &models.SummaryArtifact{ID: 404})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveMercyStateUpserts(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	require.NoError(t, st.SaveMercyState(ctx, models.MercyState{UserID: "u1", ShardType: models.ShardSacred, PityCount: 5}))
	require.NoError(t, st.SaveMercyState(ctx, models.MercyState{UserID: "u1", ShardType: models.ShardSacred, PityCount: 9}))
	require.NoError(t, st.SaveMercyState(ctx, models.MercyState{UserID: "u1", ShardType: models.ShardVoid, PityCount: 1}))

	states, err := st.MercyStates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, s := range states {
		if s.ShardType == models.ShardSacred {
			require.Equal(t, 9, s.PityCount)
		}
	}
}
