// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package catalogdb

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// SyncMetadata is the durable record of one source's sync history. Only
// the scheduler writes it; status reporting reads it and serves it on
// the admin surface.
type SyncMetadata struct {
	SourceID          string           `json:"sourceId"`
	Status            SyncStatus       `json:"status"`
	LastAttemptAt     *time.Time       `json:"lastAttemptAt,omitempty"`
	LastSuccessAt     *time.Time       `json:"lastSuccessAt,omitempty"`
	ConsecutiveErrors int32            `json:"consecutiveErrors"`
	CategoryCounts    map[string]int64 `json:"categoryCounts,omitempty"`
	LastError         string           `json:"lastError,omitempty"`
	LastRunID         string           `json:"lastRunId,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

const getSyncMetadataQuery = `
SELECT source_id, status, last_attempt_at, last_success_at, consecutive_errors, category_counts, last_error, last_run_id, updated_at
FROM sync_metadata
WHERE source_id = $1
`

// GetSyncMetadata returns the metadata row for sourceID and whether one
// exists. No row just means no sync has ever been attempted.
func (s *Store) GetSyncMetadata(ctx context.Context, sourceID string) (SyncMetadata, bool, error) {
	var md SyncMetadata
	var status string
	err := s.connPool.QueryRow(ctx, getSyncMetadataQuery, sourceID).Scan(
		&md.SourceID, &status, &md.LastAttemptAt, &md.LastSuccessAt,
		&md.ConsecutiveErrors, &md.CategoryCounts, &md.LastError,
		&md.LastRunID, &md.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SyncMetadata{}, false, nil
	}
	if err != nil {
		return SyncMetadata{}, false, err
	}
	md.Status = SyncStatus(status)
	return md, true, nil
}

const markSyncStartedQuery = `
INSERT INTO sync_metadata (source_id, status, last_attempt_at, last_run_id, updated_at)
VALUES ($1, 'syncing', now(), $2, now())
ON CONFLICT (source_id) DO UPDATE SET
  status = 'syncing',
  last_attempt_at = now(),
  last_run_id = $2,
  updated_at = now()
`

// MarkSyncStarted stamps the row syncing under a fresh run id, creating
// it on a source's first ever sync.
func (s *Store) MarkSyncStarted(ctx context.Context, sourceID, runID string) error {
	_, err := s.connPool.Exec(ctx, markSyncStartedQuery, sourceID, runID)
	return err
}

const markSyncSuccessQuery = `
INSERT INTO sync_metadata (source_id, status, last_attempt_at, last_success_at, consecutive_errors, category_counts, last_error, updated_at)
VALUES ($1, 'success', now(), now(), 0, $2, '', now())
ON CONFLICT (source_id) DO UPDATE SET
  status = 'success',
  last_success_at = now(),
  consecutive_errors = 0,
  category_counts = $2,
  last_error = '',
  updated_at = now()
`

// MarkSyncSuccess records a completed sync: the error streak resets and
// the per-category counts of the new generation are kept for reporting.
func (s *Store) MarkSyncSuccess(ctx context.Context, sourceID string, categoryCounts map[string]int64) error {
	if categoryCounts == nil {
		categoryCounts = map[string]int64{}
	}
	_, err := s.connPool.Exec(ctx, markSyncSuccessQuery, sourceID, categoryCounts)
	return err
}

const markSyncErrorQuery = `
INSERT INTO sync_metadata (source_id, status, last_attempt_at, consecutive_errors, last_error, updated_at)
VALUES ($1, 'error', now(), 1, $2, now())
ON CONFLICT (source_id) DO UPDATE SET
  status = 'error',
  consecutive_errors = sync_metadata.consecutive_errors + 1,
  last_error = $2,
  updated_at = now()
RETURNING consecutive_errors
`

// MarkSyncError extends the error streak and returns its new length.
func (s *Store) MarkSyncError(ctx context.Context, sourceID, lastError string) (int32, error) {
	var consecutive int32
	err := s.connPool.QueryRow(ctx, markSyncErrorQuery, sourceID, lastError).Scan(&consecutive)
	if err != nil {
		return 0, err
	}
	return consecutive, nil
}

const markSyncIdleQuery = `
UPDATE sync_metadata SET status = 'idle', updated_at = now() WHERE source_id = $1
`

// MarkSyncIdle returns the row to idle, used when a run decides there is
// nothing to do.
func (s *Store) MarkSyncIdle(ctx context.Context, sourceID string) error {
	_, err := s.connPool.Exec(ctx, markSyncIdleQuery, sourceID)
	return err
}
