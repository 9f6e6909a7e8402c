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
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/menurunner/internal/syncer"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Sync   syncer.Config `mapstructure:"sync"`
	Cache  CacheConfig   `mapstructure:"cache"`
	Admin  AdminConfig   `mapstructure:"admin"`
	Source SourceConfig  `mapstructure:"source"`
}

// CacheConfig sizes the in-process read tiers.
type CacheConfig struct {
	MenuCapacity int           `mapstructure:"menu_capacity"`
	MenuTTL      time.Duration `mapstructure:"menu_ttl"`
	HotTTL       time.Duration `mapstructure:"hot_ttl"`
	VenueTTL     time.Duration `mapstructure:"venue_ttl"`
}

type AdminConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig authenticates against the spreadsheet API. The
// spreadsheet itself is named by sync.source_id.
type SourceConfig struct {
	APIKey          string `mapstructure:"api_key"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{
		MenuCapacity: 100,
		MenuTTL:      10 * time.Minute,
		HotTTL:       time.Minute,
		VenueTTL:     5 * time.Minute,
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "MENURUNNER" and the dot character
// in keys is replaced by an underscore. For example, "sync.source_id"
// becomes "MENURUNNER_SYNC_SOURCE_ID".
func Load() (*Config, error) {
	cfg := &Config{
		Sync:  syncer.DefaultConfig(),
		Cache: defaultCacheConfig(),
		Admin: AdminConfig{Port: 8080},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("MENURUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("sync.enabled", true)
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	// Bools bound through bindEnvs do not reliably survive Unmarshal when
	// only the env var is set, so read this one back explicitly.
	cfg.Sync.Enabled = v.GetBool("sync.enabled")
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
