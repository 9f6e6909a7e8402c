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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Venue is a place with a menu. SourceLocator names the spreadsheet the
// venue's menu comes from; the sync engine treats it as read-only and the
// caches treat it as part of a menu's identity.
type Venue struct {
	ID            uuid.UUID
	Name          string
	Latitude      float64
	Longitude     float64
	SourceLocator string
	Active        bool
	UpdatedAt     time.Time
}

const getVenueQuery = `
SELECT id, name, latitude, longitude, source_locator, active, updated_at
FROM venues
WHERE id = $1
`

// GetVenue returns the venue and whether it exists.
func (s *Store) GetVenue(ctx context.Context, id uuid.UUID) (Venue, bool, error) {
	var v Venue
	err := s.connPool.QueryRow(ctx, getVenueQuery, id).Scan(
		&v.ID, &v.Name, &v.Latitude, &v.Longitude, &v.SourceLocator, &v.Active, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Venue{}, false, nil
	}
	if err != nil {
		return Venue{}, false, err
	}
	return v, true, nil
}

const listActiveVenuesQuery = `
SELECT id, name, latitude, longitude, source_locator, active, updated_at
FROM venues
WHERE active
ORDER BY name, id
`

func (s *Store) ListActiveVenues(ctx context.Context) ([]Venue, error) {
	rows, err := s.connPool.Query(ctx, listActiveVenuesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []Venue
	for rows.Next() {
		var v Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Latitude, &v.Longitude,
			&v.SourceLocator, &v.Active, &v.UpdatedAt); err != nil {
			return nil, err
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return venues, nil
}

const upsertVenueQuery = `
INSERT INTO venues (id, name, latitude, longitude, source_locator, active, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  latitude = EXCLUDED.latitude,
  longitude = EXCLUDED.longitude,
  source_locator = EXCLUDED.source_locator,
  active = EXCLUDED.active,
  updated_at = now()
`

func (s *Store) UpsertVenue(ctx context.Context, v Venue) error {
	_, err := s.connPool.Exec(ctx, upsertVenueQuery,
		v.ID, v.Name, v.Latitude, v.Longitude, v.SourceLocator, v.Active)
	return err
}

const deactivateMissingVenuesQuery = `
UPDATE venues SET active = false, updated_at = now()
WHERE NOT (id = ANY($1))
`

// ReplaceVenueFeed applies a full administrative feed in one transaction:
// every listed venue is upserted and venues absent from the feed are
// deactivated, never deleted. Unlike the catalog mirror this is atomic; a
// bad feed must not half-apply.
func (s *Store) ReplaceVenueFeed(ctx context.Context, venues []Venue) error {
	return s.execTx(ctx, func(tx pgx.Tx) error {
		ids := make([]uuid.UUID, 0, len(venues))
		for _, v := range venues {
			if _, err := tx.Exec(ctx, upsertVenueQuery,
				v.ID, v.Name, v.Latitude, v.Longitude, v.SourceLocator, v.Active); err != nil {
				return err
			}
			ids = append(ids, v.ID)
		}
		_, err := tx.Exec(ctx, deactivateMissingVenuesQuery, ids)
		return err
	})
}
