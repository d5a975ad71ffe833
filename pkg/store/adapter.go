// Package store defines the contract the engine has with the external
// event store. Snapshots and pull events are append-only and idempotent by
// key; the artifact operations implement the live-reference protocol the
// weekly summary manager drives.
package store

import (
	"context"
	"errors"

	"shardscan/models"
)

// ErrNotFound is returned for missing rows where absence is not an
// expected branch.
var ErrNotFound = errors.New("not found")

// Adapter is the storage contract. All writes must be safe to retry:
// appending a snapshot or event whose key already exists returns success
// without a second row.
type Adapter interface {
	// AppendSnapshot appends one confirmed inventory reading, idempotent
	// by (groupID, messageRef). Returns the stored row, which is the
	// pre-existing one on a duplicate.
	AppendSnapshot(ctx context.Context, snap *models.Snapshot) (*models.Snapshot, error)

	// AppendPullEvents appends ledger rows, each idempotent by its key.
	AppendPullEvents(ctx context.Context, events []models.PullEvent) error

	// ReadEventsOrdered returns every event for the pair in ledger order:
	// timestamp ascending, ties broken by idempotency key.
	ReadEventsOrdered(ctx context.Context, userID string, st models.ShardType) ([]models.PullEvent, error)

	// LatestSnapshots returns the most recent snapshot per user in a group.
	LatestSnapshots(ctx context.Context, groupID string) ([]models.Snapshot, error)

	// SaveMercyState upserts the cached counter for a (user, shard) pair.
	SaveMercyState(ctx context.Context, state models.MercyState) error

	// MercyStates returns the cached counters for a user.
	MercyStates(ctx context.Context, userID string) ([]models.MercyState, error)

	// AppendResets records pity resets for reporting.
	AppendResets(ctx context.Context, resets []models.ResetEvent) error

	// GetLiveArtifact returns the live summary for (group, week), or
	// (nil, nil) when none exists yet.
	GetLiveArtifact(ctx context.Context, groupID, weekKey string) (*models.SummaryArtifact, error)

	// CreateArtifact stores a new artifact, marks it live and retires any
	// previously live artifact for the group in one critical section.
	CreateArtifact(ctx context.Context, art *models.SummaryArtifact) error

	// EditArtifact rewrites the content of an existing artifact in place.
	EditArtifact(ctx context.Context, art *models.SummaryArtifact) error
}
