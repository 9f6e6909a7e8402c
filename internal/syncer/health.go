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

package syncer

import (
	"fmt"
	"time"

	"github.com/cardinalhq/menurunner/catalogdb"
)

// HealthInput gathers everything health scoring and alerting read. It is a
// snapshot: scoring is derived at read time and never stored.
type HealthInput struct {
	Status         Status
	CatalogHealthy bool
	Stats          catalogdb.Stats
	Metadata       catalogdb.SyncMetadata
	MetadataFound  bool
	Now            time.Time
}

type HealthBand string

const (
	HealthHealthy  HealthBand = "healthy"
	HealthWarning  HealthBand = "warning"
	HealthCritical HealthBand = "critical"
)

type Health struct {
	Score  int        `json:"score"`
	Status HealthBand `json:"status"`
}

type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

type Alert struct {
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// ScoreHealth computes the weighted health score, clamped to [0,100].
// Weights: scheduler running 20, not mid-sync 5, error streak 15 eroded by
// 3 per consecutive error, catalog freshness 15, non-empty catalog 15,
// category diversity 2 per category up to 10, successful sync within 24h
// 15, source configured 5.
func ScoreHealth(in HealthInput) Health {
	score := 0

	if in.Status.Running {
		score += 20
	}
	if !in.Status.Syncing {
		score += 5
	}
	if pts := 15 - 3*errorStreak(in); pts > 0 {
		score += pts
	}
	if in.CatalogHealthy {
		score += 15
	}
	if in.Stats.TotalItems > 0 {
		score += 15
	}
	if div := 2 * len(in.Stats.PerCategory); div > 10 {
		score += 10
	} else {
		score += div
	}
	if ls := lastSuccessTime(in); ls != nil && in.Now.Sub(*ls) <= 24*time.Hour {
		score += 15
	}
	if in.Status.SourceID != "" {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	band := HealthCritical
	switch {
	case score >= 80:
		band = HealthHealthy
	case score >= 50:
		band = HealthWarning
	}
	return Health{Score: score, Status: band}
}

// GenerateAlerts derives operator-facing alerts from current state. Pure;
// every alert is stamped with in.Now.
func GenerateAlerts(in HealthInput) []Alert {
	var alerts []Alert
	add := func(level AlertLevel, message string) {
		alerts = append(alerts, Alert{Level: level, Message: message, Timestamp: in.Now})
	}

	if !in.Status.Running {
		add(AlertWarning, "Catalog sync scheduler is not running")
	}

	if streak := errorStreak(in); streak >= 5 {
		add(AlertError, fmt.Sprintf("%d consecutive sync failures", streak))
	} else if streak >= 3 {
		add(AlertWarning, fmt.Sprintf("%d consecutive sync failures", streak))
	}

	if !in.CatalogHealthy {
		add(AlertWarning, "Catalog mirror is stale or empty")
	}
	if in.Stats.TotalItems == 0 {
		add(AlertWarning, "Catalog is empty")
	}
	if ls := lastSuccessTime(in); ls == nil || in.Now.Sub(*ls) > 24*time.Hour {
		add(AlertWarning, "No successful sync in the last 24 hours")
	}
	if in.Status.SourceID == "" {
		add(AlertError, "No catalog source configured")
	}

	return alerts
}

// errorStreak is the larger of the in-memory and durable streaks: the
// in-memory one resets on restart, the durable one survives it.
func errorStreak(in HealthInput) int {
	streak := in.Status.ConsecutiveErrors
	if in.MetadataFound && int(in.Metadata.ConsecutiveErrors) > streak {
		streak = int(in.Metadata.ConsecutiveErrors)
	}
	return streak
}

// lastSuccessTime prefers the durable timestamp over the in-memory one.
func lastSuccessTime(in HealthInput) *time.Time {
	if in.MetadataFound && in.Metadata.LastSuccessAt != nil {
		return in.Metadata.LastSuccessAt
	}
	return in.Status.LastSuccess
}
