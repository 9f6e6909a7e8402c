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

// Package adminapi exposes the operator control surface: status and
// health reporting, manual sync trigger, and cache invalidation. It is
// meant to sit behind the deployment's own access control; the handlers
// do no authentication themselves.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/menurunner/catalogdb"
	"github.com/cardinalhq/menurunner/internal/idgen"
	"github.com/cardinalhq/menurunner/internal/menucache"
	"github.com/cardinalhq/menurunner/internal/syncer"
)

// Syncer is the scheduler handle the control surface drives.
type Syncer interface {
	Status() syncer.Status
	PerformManualSync(ctx context.Context) (syncer.Result, error)
}

// MenuCaches is the cache invalidation surface of the menu service.
type MenuCaches interface {
	InvalidateVenue(venueID uuid.UUID)
	ClearHotCache()
	CacheStats() menucache.Stats
}

// Store is the read-only slice of the catalog store that status
// reporting needs.
type Store interface {
	GetSyncMetadata(ctx context.Context, sourceID string) (catalogdb.SyncMetadata, bool, error)
	GetCatalogStats(ctx context.Context) (catalogdb.Stats, error)
	CatalogIsHealthy(ctx context.Context, maxAge time.Duration) (bool, error)
}

type Config struct {
	Port          int
	MaxCatalogAge time.Duration
}

type Service struct {
	cfg    Config
	syncer Syncer
	menus  MenuCaches
	store  Store
	logger *slog.Logger
}

func NewService(cfg Config, sc Syncer, menus MenuCaches, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	if cfg.MaxCatalogAge <= 0 {
		cfg.MaxCatalogAge = time.Hour
	}
	return &Service{
		cfg:    cfg,
		syncer: sc,
		menus:  menus,
		store:  store,
		logger: logger.With(slog.String("component", "adminapi")),
	}
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type statusResponse struct {
	Polling        syncer.Status           `json:"polling"`
	Cache          menucache.Stats         `json:"cache"`
	SourceMetadata *catalogdb.SyncMetadata `json:"sourceMetadata,omitempty"`
	Health         syncer.Health           `json:"health"`
	Alerts         []syncer.Alert          `json:"alerts"`
}

// Run serves the admin API until doneCtx is canceled.
func (s *Service) Run(doneCtx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sync", s.handleSync)
	mux.HandleFunc("/api/cache", s.handleCache)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: mux,
	}

	s.logger.Info("Starting admin API", slog.Int("port", s.cfg.Port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Failed to start admin API server", slog.Any("error", err))
		}
	}()

	<-doneCtx.Done()

	s.logger.Info("Shutting down admin API")
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("failed to shutdown admin API server: %w", err)
	}
	return nil
}

// handleStatus assembles the full status document. Store failures
// degrade the report rather than fail it; the endpoint must stay useful
// exactly when the database is in trouble.
func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	status := s.syncer.Status()

	healthy, err := s.store.CatalogIsHealthy(ctx, s.cfg.MaxCatalogAge)
	if err != nil {
		s.logger.Warn("Catalog health check failed", slog.Any("error", err))
		healthy = false
	}

	stats, err := s.store.GetCatalogStats(ctx)
	if err != nil {
		s.logger.Warn("Catalog stats query failed", slog.Any("error", err))
		stats = catalogdb.Stats{}
	}

	var metadata catalogdb.SyncMetadata
	var metadataFound bool
	if status.SourceID != "" {
		metadata, metadataFound, err = s.store.GetSyncMetadata(ctx, status.SourceID)
		if err != nil {
			s.logger.Warn("Sync metadata query failed", slog.Any("error", err))
			metadataFound = false
		}
	}

	in := syncer.HealthInput{
		Status:         status,
		CatalogHealthy: healthy,
		Stats:          stats,
		Metadata:       metadata,
		MetadataFound:  metadataFound,
		Now:            time.Now(),
	}

	resp := statusResponse{
		Polling: status,
		Cache:   s.menus.CacheStats(),
		Health:  syncer.ScoreHealth(in),
		Alerts:  syncer.GenerateAlerts(in),
	}
	if metadataFound {
		resp.SourceMetadata = &metadata
	}
	if resp.Alerts == nil {
		resp.Alerts = []syncer.Alert{}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	opID := idgen.GenerateShortBase32ID()
	logger := s.logger.With(slog.String("opID", opID))
	logger.Info("Manual sync requested")

	result, err := s.syncer.PerformManualSync(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			writeJSON(w, http.StatusConflict, apiResponse{Success: false, Message: err.Error()})
			return
		}
		logger.Error("Manual sync failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: err.Error()})
		return
	}

	message := "Sync completed"
	if result.Skipped {
		message = "Catalog already fresh, sync skipped"
	}
	logger.Info("Manual sync finished",
		slog.Bool("skipped", result.Skipped),
		slog.Int("itemCount", result.ItemCount))
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: message, Data: result})
}

// handleCache invalidates one venue's menu entry when venueId is given,
// or empties the whole hot tier when it is not.
func (s *Service) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "only DELETE method is allowed", http.StatusMethodNotAllowed)
		return
	}

	opID := idgen.GenerateShortBase32ID()
	logger := s.logger.With(slog.String("opID", opID))

	raw := r.URL.Query().Get("venueId")
	if raw == "" {
		s.menus.ClearHotCache()
		logger.Info("Hot cache cleared")
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Hot cache cleared"})
		return
	}

	venueID, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "invalid venueId: " + err.Error()})
		return
	}

	s.menus.InvalidateVenue(venueID)
	logger.Info("Venue menu cache invalidated", slog.String("venueID", venueID.String()))
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "Menu cache invalidated for venue " + venueID.String(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
