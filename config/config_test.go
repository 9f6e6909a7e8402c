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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 30*time.Minute, cfg.Sync.Interval)
	require.True(t, cfg.Sync.Enabled)
	require.Empty(t, cfg.Sync.SourceID)
	require.Equal(t, 3, cfg.Sync.MaxRetries)
	require.Equal(t, 5*time.Second, cfg.Sync.RetryDelay)
	require.Equal(t, 5, cfg.Sync.FailureThreshold)

	require.Equal(t, 100, cfg.Cache.MenuCapacity)
	require.Equal(t, 10*time.Minute, cfg.Cache.MenuTTL)
	require.Equal(t, time.Minute, cfg.Cache.HotTTL)
	require.Equal(t, 8080, cfg.Admin.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MENURUNNER_SYNC_SOURCE_ID", "sheet-abc123")
	t.Setenv("MENURUNNER_SYNC_INTERVAL", "15m")
	t.Setenv("MENURUNNER_SYNC_ENABLED", "false")
	t.Setenv("MENURUNNER_SYNC_MAX_RETRIES", "7")
	t.Setenv("MENURUNNER_CACHE_MENU_CAPACITY", "250")
	t.Setenv("MENURUNNER_ADMIN_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "sheet-abc123", cfg.Sync.SourceID)
	require.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	require.False(t, cfg.Sync.Enabled)
	require.Equal(t, 7, cfg.Sync.MaxRetries)
	require.Equal(t, 250, cfg.Cache.MenuCapacity)
	require.Equal(t, 9999, cfg.Admin.Port)
}

func TestLoadDurationEnvVars(t *testing.T) {
	t.Setenv("MENURUNNER_SYNC_RETRY_DELAY", "2s")
	t.Setenv("MENURUNNER_SYNC_STALE_AFTER", "45m")
	t.Setenv("MENURUNNER_CACHE_MENU_TTL", "90s")
	t.Setenv("MENURUNNER_CACHE_HOT_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 2*time.Second, cfg.Sync.RetryDelay)
	require.Equal(t, 45*time.Minute, cfg.Sync.StaleAfter)
	require.Equal(t, 90*time.Second, cfg.Cache.MenuTTL)
	require.Equal(t, 30*time.Second, cfg.Cache.HotTTL)
}

func TestLoadSourceCredentials(t *testing.T) {
	t.Setenv("MENURUNNER_SOURCE_API_KEY", "AIzaTestKey")
	t.Setenv("MENURUNNER_SOURCE_CREDENTIALS_FILE", "/etc/menurunner/sa.json")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "AIzaTestKey", cfg.Source.APIKey)
	require.Equal(t, "/etc/menurunner/sa.json", cfg.Source.CredentialsFile)
}
