package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shardscan/models"
)

// GormStore is the Postgres-backed adapter. Idempotency rides on the unique
// indexes declared by the models: duplicate appends resolve via ON CONFLICT
// DO NOTHING and return the pre-existing row.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AppendSnapshot(ctx context.Context, snap *models.Snapshot) (*models.Snapshot, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "message_ref"}},
			DoNothing: true,
		}).
		Create(snap)
	if res.Error != nil {
		return nil, fmt.Errorf("append snapshot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Duplicate confirm: fetch and hand back the original row.
		var existing models.Snapshot
		err := s.db.WithContext(ctx).
			Where("group_id = ? AND message_ref = ?", snap.GroupID, snap.MessageRef).
			First(&existing).Error
		if err != nil {
			return nil, fmt.Errorf("fetch existing snapshot: %w", err)
		}
		return &existing, nil
	}
	return snap, nil
}

func (s *GormStore) AppendPullEvents(ctx context.Context, events []models.PullEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(&events).Error
	if err != nil {
		return fmt.Errorf("append pull events: %w", err)
	}
	return nil
}

func (s *GormStore) ReadEventsOrdered(ctx context.Context, userID string, st models.ShardType) ([]models.PullEvent, error) {
	var events []models.PullEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND shard_type = ?", userID, st).
		Order("occurred_at ASC, idempotency_key ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

func (s *GormStore) LatestSnapshots(ctx context.Context, groupID string) ([]models.Snapshot, error) {
	var rows []models.Snapshot
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("taken_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}
	latest := make(map[string]models.Snapshot, len(rows))
	for _, r := range rows {
		latest[r.UserID] = r // rows are time-ordered, last write wins
	}
	out := make([]models.Snapshot, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	return out, nil
}

func (s *GormStore) SaveMercyState(ctx context.Context, state models.MercyState) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "shard_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"pity_count", "last_reset_at", "updated_at"}),
		}).
		Create(&state).Error
	if err != nil {
		return fmt.Errorf("save mercy state: %w", err)
	}
	return nil
}

func (s *GormStore) MercyStates(ctx context.Context, userID string) ([]models.MercyState, error) {
	var states []models.MercyState
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("shard_type ASC").
		Find(&states).Error
	if err != nil {
		return nil, fmt.Errorf("mercy states: %w", err)
	}
	return states, nil
}

func (s *GormStore) AppendResets(ctx context.Context, resets []models.ResetEvent) error {
	if len(resets) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&resets).Error; err != nil {
		return fmt.Errorf("append resets: %w", err)
	}
	return nil
}

func (s *GormStore) GetLiveArtifact(ctx context.Context, groupID, weekKey string) (*models.SummaryArtifact, error) {
	var art models.SummaryArtifact
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND week_key = ? AND live", groupID, weekKey).
		First(&art).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get live artifact: %w", err)
	}
	return &art, nil
}

func (s *GormStore) CreateArtifact(ctx context.Context, art *models.SummaryArtifact) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Retire whatever was live for the group; the new week owns the
		// edit path from here on.
		if err := tx.Model(&models.SummaryArtifact{}).
			Where("group_id = ? AND live", art.GroupID).
			Update("live", false).Error; err != nil {
			return fmt.Errorf("retire live artifact: %w", err)
		}
		art.Live = true
		if err := tx.Create(art).Error; err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}
		return nil
	})
}

func (s *GormStore) EditArtifact(ctx context.Context, art *models.SummaryArtifact) error {
	res := s.db.WithContext(ctx).Model(&models.SummaryArtifact{}).
		Where("id = ?", art.ID).
		Updates(map[string]any{
			"pages":           art.Pages,
			"page_count":      art.PageCount,
			"last_updated_at": art.LastUpdatedAt,
			"message_ref":     art.MessageRef,
		})
	if res.Error != nil {
		return fmt.Errorf("edit artifact: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
