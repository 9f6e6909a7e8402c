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

// Package syncer keeps the catalog mirror fresh. One scheduler runs per
// process; it periodically pulls the full catalog from the source, writes
// it through the store, and stops itself after too many consecutive
// failures. Overlapping syncs are the only concurrency hazard and are
// rejected, never queued.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/menurunner/catalogdb"
	"github.com/cardinalhq/menurunner/internal/catalog"
	"github.com/cardinalhq/menurunner/internal/idgen"
)

// ErrSyncInProgress rejects a sync that would overlap a running one. The
// text is surfaced verbatim on the admin API.
var ErrSyncInProgress = errors.New("Sync already in progress")

var (
	syncRunsCounter    metric.Int64Counter
	syncErrorsCounter  metric.Int64Counter
	syncSkippedCounter metric.Int64Counter
	itemsStoredCounter metric.Int64Counter
	syncDuration       metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/menurunner/internal/syncer")

	var err error
	syncRunsCounter, err = meter.Int64Counter(
		"menurunner.sync.runs_total",
		metric.WithDescription("Count of sync runs started"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create runs_total counter: %w", err))
	}

	syncErrorsCounter, err = meter.Int64Counter(
		"menurunner.sync.errors_total",
		metric.WithDescription("Count of sync runs that failed"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create errors_total counter: %w", err))
	}

	syncSkippedCounter, err = meter.Int64Counter(
		"menurunner.sync.skipped_total",
		metric.WithDescription("Count of sync runs skipped because the catalog was still fresh"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create skipped_total counter: %w", err))
	}

	itemsStoredCounter, err = meter.Int64Counter(
		"menurunner.sync.items_stored_total",
		metric.WithDescription("Count of catalog items written through to the store"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create items_stored_total counter: %w", err))
	}

	syncDuration, err = meter.Float64Histogram(
		"menurunner.sync.duration_seconds",
		metric.WithDescription("Duration of successful sync runs in seconds"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create duration_seconds histogram: %w", err))
	}
}

// Config controls the scheduler.
type Config struct {
	Interval         time.Duration `mapstructure:"interval"`
	Enabled          bool          `mapstructure:"enabled"`
	SourceID         string        `mapstructure:"source_id"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	MaxCatalogAge    time.Duration `mapstructure:"max_catalog_age"`
}

// DefaultConfig returns the scheduler defaults. SourceID has no default;
// a deployment must name its spreadsheet.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Minute,
		Enabled:          true,
		MaxRetries:       3,
		RetryDelay:       5 * time.Second,
		FailureThreshold: 5,
		StaleAfter:       15 * time.Minute,
		MaxCatalogAge:    time.Hour,
	}
}

// Store is the catalog persistence the scheduler writes through.
type Store interface {
	ReplaceAllItems(ctx context.Context, items []catalog.Item) error
	CatalogIsHealthy(ctx context.Context, maxAge time.Duration) (bool, error)
	GetSyncMetadata(ctx context.Context, sourceID string) (catalogdb.SyncMetadata, bool, error)
	MarkSyncStarted(ctx context.Context, sourceID, runID string) error
	MarkSyncSuccess(ctx context.Context, sourceID string, categoryCounts map[string]int64) error
	MarkSyncError(ctx context.Context, sourceID, lastError string) (int32, error)
	MarkSyncIdle(ctx context.Context, sourceID string) error
}

// Fetcher produces the full catalog from the external source.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]catalog.Item, error)
}

// Result reports what one sync run did.
type Result struct {
	Skipped    bool             `json:"skipped,omitempty"`
	RunID      string           `json:"runId,omitempty"`
	ItemCount  int              `json:"itemCount"`
	Categories map[string]int64 `json:"categories,omitempty"`
	DurationMS int64            `json:"durationMs"`
}

// Status is a point-in-time snapshot of scheduler state for reporting.
type Status struct {
	Running           bool       `json:"running"`
	Syncing           bool       `json:"syncing"`
	Enabled           bool       `json:"enabled"`
	SourceID          string     `json:"sourceId,omitempty"`
	Interval          string     `json:"interval"`
	ConsecutiveErrors int        `json:"consecutiveErrors"`
	FailureThreshold  int        `json:"failureThreshold"`
	LastRunID         string     `json:"lastRunId,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
	LastAttempt       *time.Time `json:"lastAttempt,omitempty"`
	LastSuccess       *time.Time `json:"lastSuccess,omitempty"`
}

// Scheduler is the process-wide sync driver. Construct one at startup and
// pass the handle around; there is no package-level instance.
type Scheduler struct {
	cfg     Config
	store   Store
	fetcher Fetcher
	logger  *slog.Logger
	runIDs  *idgen.ULIDGenerator

	mu                sync.Mutex
	running           bool
	syncing           bool
	consecutiveErrors int
	lastRunID         string
	lastError         string
	lastAttempt       *time.Time
	lastSuccess       *time.Time
	loopCancel        context.CancelFunc
	loopDone          chan struct{}

	nowFn func() time.Time
}

func New(cfg Config, store Store, fetcher Fetcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "syncer")),
		runIDs:  idgen.NewULIDGenerator(),
		nowFn:   time.Now,
	}
}

// Start launches the periodic loop. It fails when no source is configured
// and is a no-op when the loop is already running. The loop runs one sync
// immediately, then one per interval.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.SourceID == "" {
		return errors.New("no catalog source configured")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	tickCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.loopCancel = cancel
	s.loopDone = make(chan struct{})
	done := s.loopDone
	s.mu.Unlock()

	go s.loop(ctx, tickCtx, done)

	s.logger.Info("Catalog sync scheduler started",
		slog.String("sourceID", s.cfg.SourceID),
		slog.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop cancels the loop and waits for it to exit. An in-flight attempt is
// allowed to finish; only the next tick is suppressed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.loopCancel
	done := s.loopDone
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Catalog sync scheduler stopped")
}

// Running reports whether the periodic loop is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// loop runs syncs against runCtx while tickCtx controls the ticker, so a
// Stop (which cancels only tickCtx) lets an in-flight attempt finish.
func (s *Scheduler) loop(runCtx, tickCtx context.Context, done chan struct{}) {
	defer close(done)

	s.runOnce(runCtx)

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-tickCtx.Done():
			return
		case <-t.C:
			s.runOnce(runCtx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, err := s.PerformSync(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		s.logger.Debug("Tick skipped, sync already in flight")
	}
	// other failures were already logged and counted by recordFailure
}

// PerformManualSync runs one sync regardless of whether the periodic loop
// is running. It never re-arms the loop: a success while the breaker is
// open leaves the scheduler stopped.
func (s *Scheduler) PerformManualSync(ctx context.Context) (Result, error) {
	return s.PerformSync(ctx)
}

// PerformSync runs one synchronization pass. Concurrent callers lose the
// single-flight race and get ErrSyncInProgress without starting a fetch.
func (s *Scheduler) PerformSync(ctx context.Context) (Result, error) {
	if s.cfg.SourceID == "" || s.fetcher == nil {
		return Result{}, errors.New("no catalog source configured")
	}

	start := s.nowFn()

	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return Result{}, ErrSyncInProgress
	}
	s.syncing = true
	attempt := start
	s.lastAttempt = &attempt
	runID := s.runIDs.Make(start)
	s.lastRunID = runID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	syncRunsCounter.Add(ctx, 1)
	logger := s.logger.With(slog.String("runID", runID))
	logger.Info("Catalog sync starting", slog.String("sourceID", s.cfg.SourceID))

	if err := s.store.MarkSyncStarted(ctx, s.cfg.SourceID, runID); err != nil {
		return Result{}, s.recordFailure(ctx, fmt.Errorf("failed to mark sync started: %w", err))
	}

	if s.cfg.StaleAfter > 0 {
		fresh, err := s.store.CatalogIsHealthy(ctx, s.cfg.StaleAfter)
		if err != nil {
			logger.Warn("Staleness check failed, proceeding with sync", slog.Any("error", err))
		} else if fresh {
			syncSkippedCounter.Add(ctx, 1)
			if err := s.store.MarkSyncIdle(ctx, s.cfg.SourceID); err != nil {
				logger.Warn("Failed to mark sync idle", slog.Any("error", err))
			}
			logger.Info("Catalog still fresh, sync skipped")
			return Result{Skipped: true, RunID: runID}, nil
		}
	}

	items, err := s.fetchWithRetry(ctx, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// shutdown, not a source failure
			return Result{}, err
		}
		return Result{}, s.recordFailure(ctx, err)
	}

	if err := s.store.ReplaceAllItems(ctx, items); err != nil {
		return Result{}, s.recordFailure(ctx, fmt.Errorf("failed to persist catalog: %w", err))
	}

	counts := countByCategory(items)
	if err := s.store.MarkSyncSuccess(ctx, s.cfg.SourceID, counts); err != nil {
		return Result{}, s.recordFailure(ctx, fmt.Errorf("failed to mark sync success: %w", err))
	}

	finished := s.nowFn()
	s.mu.Lock()
	s.consecutiveErrors = 0
	s.lastError = ""
	s.lastSuccess = &finished
	s.mu.Unlock()

	elapsed := finished.Sub(start)
	itemsStoredCounter.Add(ctx, int64(len(items)))
	syncDuration.Record(ctx, elapsed.Seconds())
	logger.Info("Catalog sync complete",
		slog.Int("itemCount", len(items)),
		slog.Duration("elapsed", elapsed))

	return Result{
		RunID:      runID,
		ItemCount:  len(items),
		Categories: counts,
		DurationMS: elapsed.Milliseconds(),
	}, nil
}

// fetchWithRetry calls the fetcher up to MaxRetries times with a fixed
// RetryDelay between attempts, surfacing the last error when all fail.
func (s *Scheduler) fetchWithRetry(ctx context.Context, logger *slog.Logger) ([]catalog.Item, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		items, err := s.fetcher.FetchAll(ctx)
		if err == nil {
			return items, nil
		}
		lastErr = err
		logger.Warn("Catalog fetch attempt failed",
			slog.String("sourceID", s.cfg.SourceID),
			slog.Int("attempt", attempt),
			slog.Int("maxRetries", s.cfg.MaxRetries),
			slog.Any("error", err))
		if attempt < s.cfg.MaxRetries {
			if sleepCtx(ctx, s.cfg.RetryDelay) {
				return nil, fmt.Errorf("fetch aborted: %w", ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("all %d fetch attempts failed: %w", s.cfg.MaxRetries, lastErr)
}

// recordFailure extends the error streak, persists it, and trips the
// breaker at the threshold. The scheduler stays stopped until an operator
// restarts it; a later manual sync success resets the streak only.
func (s *Scheduler) recordFailure(ctx context.Context, cause error) error {
	syncErrorsCounter.Add(ctx, 1)

	s.mu.Lock()
	s.consecutiveErrors++
	streak := s.consecutiveErrors
	s.lastError = cause.Error()
	s.mu.Unlock()

	durable, err := s.store.MarkSyncError(ctx, s.cfg.SourceID, cause.Error())
	if err != nil {
		s.logger.Warn("Failed to record sync error", slog.Any("error", err))
		durable = int32(streak)
	}

	s.logger.Error("Catalog sync failed",
		slog.String("sourceID", s.cfg.SourceID),
		slog.Int("consecutiveErrors", streak),
		slog.Int("durableErrors", int(durable)),
		slog.Any("error", cause))

	if streak >= s.cfg.FailureThreshold {
		s.mu.Lock()
		tripped := s.running
		s.tripBreakerLocked()
		s.mu.Unlock()
		if tripped {
			s.logger.Error("Failure threshold reached, scheduler stopping itself",
				slog.Int("threshold", s.cfg.FailureThreshold))
		}
	}

	return cause
}

// tripBreakerLocked halts the loop without waiting for it, since the trip
// may happen on the loop goroutine itself. Callers hold s.mu.
func (s *Scheduler) tripBreakerLocked() {
	if !s.running {
		return
	}
	s.running = false
	if s.loopCancel != nil {
		s.loopCancel()
	}
}

// Status snapshots scheduler state for the admin surface.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:           s.running,
		Syncing:           s.syncing,
		Enabled:           s.cfg.Enabled,
		SourceID:          s.cfg.SourceID,
		Interval:          s.cfg.Interval.String(),
		ConsecutiveErrors: s.consecutiveErrors,
		FailureThreshold:  s.cfg.FailureThreshold,
		LastRunID:         s.lastRunID,
		LastError:         s.lastError,
		LastAttempt:       s.lastAttempt,
		LastSuccess:       s.lastSuccess,
	}
}

func countByCategory(items []catalog.Item) map[string]int64 {
	counts := make(map[string]int64, len(catalog.Categories()))
	for _, item := range items {
		counts[string(item.Category)]++
	}
	return counts
}

// sleepCtx returns true if ctx was canceled before d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
