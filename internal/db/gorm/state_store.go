package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultRevisionsKept is how many revisions are retained per key.
const DefaultRevisionsKept = 20

// ErrRevisionNotFound is returned when a revision does not exist for a key.
var ErrRevisionNotFound = errors.New("revision not found")

// RevisionInfo describes one stored revision without its payload.
type RevisionInfo struct {
	CreatedAt time.Time `json:"createdAt"`
	Revision  int64     `json:"revision"`
	Size      int       `json:"size"`
}

// StateStore stores roster payloads by key. It satisfies roster.Backend.
type StateStore struct {
	db   *gorm.DB
	keep int
}

// NewStateStore creates a StateStore on top of an open Store.
// keep <= 0 uses DefaultRevisionsKept.
func NewStateStore(store *Store, keep int) *StateStore {
	if keep <= 0 {
		keep = DefaultRevisionsKept
	}
	return &StateStore{db: store.DB, keep: keep}
}

// Read returns the payload for key, or nil if none is stored.
func (s *StateStore) Read(ctx context.Context, key string) ([]byte, error) {
	var st RosterState
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %q: %w", key, err)
	}
	return st.Payload, nil
}

// Write replaces the payload for key and appends a revision.
func (s *StateStore) Write(ctx context.Context, key string, payload []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current RosterState
		err := tx.Select("revision").Where("key = ?", key).Take(&current).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load revision: %w", err)
		}
		rev := current.Revision + 1
		if err != nil {
			// No current payload; continue numbering after any kept history.
			var last int64
			if err := tx.Model(&RosterRevision{}).Where("key = ?", key).
				Select("COALESCE(MAX(revision), 0)").Scan(&last).Error; err != nil {
				return fmt.Errorf("load last revision: %w", err)
			}
			rev = last + 1
		}
		now := time.Now().UTC()

		st := RosterState{Key: key, Payload: payload, Revision: rev, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "revision", "updated_at"}),
		}).Create(&st).Error; err != nil {
			return fmt.Errorf("upsert state: %w", err)
		}

		if err := tx.Create(&RosterRevision{Key: key, Payload: payload, Revision: rev, CreatedAt: now}).Error; err != nil {
			return fmt.Errorf("append revision: %w", err)
		}

		return tx.Where("key = ? AND revision <= ?", key, rev-int64(s.keep)).
			Delete(&RosterRevision{}).Error
	})
}

// Delete removes the current payload. Revision history is kept so a
// reset roster can still be restored.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&RosterState{}).Error; err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Purge removes the payload and its history.
func (s *StateStore) Purge(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ?", key).Delete(&RosterState{}).Error; err != nil {
			return fmt.Errorf("delete state: %w", err)
		}
		if err := tx.Where("key = ?", key).Delete(&RosterRevision{}).Error; err != nil {
			return fmt.Errorf("delete revisions: %w", err)
		}
		return nil
	})
}

// Keys lists stored namespaces in ascending order.
func (s *StateStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&RosterState{}).Order("key").Pluck("key", &keys).Error
	return keys, err
}

// Revisions lists the newest revisions for key, newest first.
func (s *StateStore) Revisions(ctx context.Context, key string, limit int) ([]RevisionInfo, error) {
	if limit <= 0 {
		limit = s.keep
	}
	var rows []RosterRevision
	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Order("revision DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]RevisionInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, RevisionInfo{Revision: r.Revision, CreatedAt: r.CreatedAt, Size: len(r.Payload)})
	}
	return out, nil
}

// RevisionPayload returns the payload stored at a given revision.
func (s *StateStore) RevisionPayload(ctx context.Context, key string, rev int64) ([]byte, error) {
	var r RosterRevision
	err := s.db.WithContext(ctx).Where("key = ? AND revision = ?", key, rev).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Payload, nil
}
