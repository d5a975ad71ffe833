package store

import (
	"context"
	"sort"
	"sync"

	"shardscan/models"
)

// MemStore is an in-memory adapter with the same idempotency semantics as
// the Postgres one. Used by unit tests and by local runs without a DSN.
type MemStore struct {
	mu        sync.Mutex
	snapshots []models.Snapshot
	events    []models.PullEvent
	states    map[string]models.MercyState
	resets    []models.ResetEvent
	artifacts []models.SummaryArtifact
	nextID    uint
}

func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]models.MercyState)}
}

func (m *MemStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *MemStore) AppendSnapshot(_ context.Context, snap *models.Snapshot) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.snapshots {
		if m.snapshots[i].GroupID == snap.GroupID && m.snapshots[i].MessageRef == snap.MessageRef {
			existing := m.snapshots[i]
			return &existing, nil
		}
	}
	snap.ID = m.id()
	m.snapshots = append(m.snapshots, *snap)
	return snap, nil
}

func (m *MemStore) AppendPullEvents(_ context.Context, events []models.PullEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(m.events))
	for _, ev := range m.events {
		seen[ev.IdempotencyKey] = struct{}{}
	}
	for _, ev := range events {
		if _, dup := seen[ev.IdempotencyKey]; dup {
			continue
		}
		seen[ev.IdempotencyKey] = struct{}{}
		ev.ID = m.id()
		m.events = append(m.events, ev)
	}
	return nil
}

func (m *MemStore) ReadEventsOrdered(_ context.Context, userID string, st models.ShardType) ([]models.PullEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PullEvent
	for _, ev := range m.events {
		if ev.UserID == userID && ev.ShardType == st {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].IdempotencyKey < out[j].IdempotencyKey
	})
	return out, nil
}

func (m *MemStore) LatestSnapshots(_ context.Context, groupID string) ([]models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]models.Snapshot)
	for _, s := range m.snapshots {
		if s.GroupID != groupID {
			continue
		}
		if cur, ok := latest[s.UserID]; !ok || s.TakenAt.After(cur.TakenAt) {
			latest[s.UserID] = s
		}
	}
	out := make([]models.Snapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemStore) SaveMercyState(_ context.Context, state models.MercyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.UserID+"|"+string(state.ShardType)] = state
	return nil
}

func (m *MemStore) MercyStates(_ context.Context, userID string) ([]models.MercyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MercyState
	for _, s := range m.states {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardType < out[j].ShardType })
	return out, nil
}

func (m *MemStore) AppendResets(_ context.Context, resets []models.ResetEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, resets...)
	return nil
}

func (m *MemStore) GetLiveArtifact(_ context.Context, groupID, weekKey string) (*models.SummaryArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.artifacts {
		a := m.artifacts[i]
		if a.GroupID == groupID && a.WeekKey == weekKey && a.Live {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateArtifact(_ context.Context, art *models.SummaryArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.artifacts {
		if m.artifacts[i].GroupID == art.GroupID {
			m.artifacts[i].Live = false
		}
	}
	art.ID = m.id()
	art.Live = true
	m.artifacts = append(m.artifacts, *art)
	return nil
}

func (m *MemStore) EditArtifact(_ context.Context, art *models.SummaryArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.artifacts {
		if m.artifacts[i].ID == art.ID {
			m.artifacts[i].Pages = art.Pages
			m.artifacts[i].PageCount = art.PageCount
			m.artifacts[i].LastUpdatedAt = art.LastUpdatedAt
			m.artifacts[i].MessageRef = art.MessageRef
			return nil
		}
	}
	return ErrNotFound
}

// Artifacts returns a copy of every stored artifact, for tests.
func (m *MemStore) Artifacts() []models.SummaryArtifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SummaryArtifact, len(m.artifacts))
	copy(out, m.artifacts)
	return out
}

// Resets returns a copy of the recorded reset rows, for tests.
func (m *MemStore) Resets() []models.ResetEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ResetEvent, len(m.resets))
	copy(out, m.resets)
	return out
}

// Events returns a copy of the event log, for tests.
func (m *MemStore) Events() []models.PullEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PullEvent, len(m.events))
	copy(out, m.events)
	return out
}
