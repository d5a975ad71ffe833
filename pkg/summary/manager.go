// Package summary keeps exactly one live aggregate artifact per group per
// ISO week, editing it in place within the week and rolling over to a fresh
// artifact at week boundaries.
package summary

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

// Manager drives the live-artifact protocol. All mutation for a group runs
// inside the group's key lock so two concurrent refreshes can never race
// the exists-check into creating duplicate live artifacts.
type Manager struct {
	Store    store.Adapter
	Locks    *coordinator.KeyLock
	Retry    coordinator.RetryPolicy
	PageSize int
	Log      zerolog.Logger
	// Now is swappable for tests.
	Now func() time.Time
}

func NewManager(st store.Adapter, locks *coordinator.KeyLock, retry coordinator.RetryPolicy, pageSize int, log zerolog.Logger) *Manager {
	return &Manager{Store: st, Locks: locks, Retry: retry, PageSize: pageSize, Log: log, Now: time.Now}
}

// Refresh recomputes the group's aggregate and either edits the live
// artifact for the current ISO week or, on the first event of a new week,
// creates one and retires the previous. The second return reports whether a
// new artifact was created rather than edited.
func (m *Manager) Refresh(ctx context.Context, groupID string) (*models.SummaryArtifact, bool, error) {
	var result *models.SummaryArtifact
	var created bool
	err := m.Locks.WithLock("summary:"+groupID, func() error {
		now := m.Now()
		weekKey := WeekKey(now)

		snapshots, err := m.Store.LatestSnapshots(ctx, groupID)
		if err != nil {
			return fmt.Errorf("load snapshots: %w", err)
		}
		pages, _ := Render(groupID, weekKey, snapshots, m.PageSize, now)
		encoded, err := EncodePages(pages)
		if err != nil {
			return err
		}

		live, err := m.Store.GetLiveArtifact(ctx, groupID, weekKey)
		if err != nil {
			return fmt.Errorf("find live artifact: %w", err)
		}

		if live != nil {
			live.Pages = encoded
			live.PageCount = len(pages)
			live.LastUpdatedAt = now
			err = m.Retry.Do(ctx, "edit_artifact", func(ctx context.Context) error {
				if e := m.Store.EditArtifact(ctx, live); e != nil {
					return coordinator.Transient(e)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("edit artifact: %w", err)
			}
			m.Log.Debug().Str("group", groupID).Str("week", weekKey).Int("pages", len(pages)).Msg("summary edited in place")
			result = live
			return nil
		}

		art := &models.SummaryArtifact{
			GroupID:       groupID,
			WeekKey:       weekKey,
			MessageRef:    "summary-" + uuid.NewString(),
			LastUpdatedAt: now,
			Pages:         encoded,
			PageCount:     len(pages),
		}
		err = m.Retry.Do(ctx, "create_artifact", func(ctx context.Context) error {
			if e := m.Store.CreateArtifact(ctx, art); e != nil {
				return coordinator.Transient(e)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}
		m.Log.Info().Str("group", groupID).Str("week", weekKey).Msg("new weekly summary artifact created")
		result = art
		created = true
		return nil
	})
	return result, created, err
}

// Current returns the live artifact for the group's current ISO week, or
// nil when the week has no artifact yet.
func (m *Manager) Current(ctx context.Context, groupID string) (*models.SummaryArtifact, error) {
	return m.Store.GetLiveArtifact(ctx, groupID, WeekKey(m.Now()))
}
