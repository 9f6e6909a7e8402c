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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/menurunner/catalogdb"
	"github.com/cardinalhq/menurunner/internal/catalog"
)

type fakeStore struct {
	mu             sync.Mutex
	items          []catalog.Item
	healthy        bool
	healthyErr     error
	replaceErr     error
	markSuccessErr error
	consecutive    int32
	startedRuns    []string
	successCounts  map[string]int64
	idleCalls      int
	lastError      string
}

func (f *fakeStore) ReplaceAllItems(_ context.Context, items []catalog.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.items = items
	return nil
}

func (f *fakeStore) CatalogIsHealthy(_ context.Context, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy, f.healthyErr
}

func (f *fakeStore) GetSyncMetadata(_ context.Context, sourceID string) (catalogdb.SyncMetadata, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.startedRuns) == 0 {
		return catalogdb.SyncMetadata{}, false, nil
	}
	return catalogdb.SyncMetadata{
		SourceID:          sourceID,
		ConsecutiveErrors: f.consecutive,
		LastError:         f.lastError,
	}, true, nil
}

func (f *fakeStore) MarkSyncStarted(_ context.Context, _, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedRuns = append(f.startedRuns, runID)
	return nil
}

func (f *fakeStore) MarkSyncSuccess(_ context.Context, _ string, categoryCounts map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markSuccessErr != nil {
		return f.markSuccessErr
	}
	f.consecutive = 0
	f.successCounts = categoryCounts
	return nil
}

func (f *fakeStore) MarkSyncError(_ context.Context, _, lastError string) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consecutive++
	f.lastError = lastError
	return f.consecutive, nil
}

func (f *fakeStore) MarkSyncIdle(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idleCalls++
	return nil
}

func (f *fakeStore) storedItems() []catalog.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items
}

type fakeFetcher struct {
	mu      sync.Mutex
	items   []catalog.Item
	errs    []error
	calls   int
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *fakeFetcher) FetchAll(ctx context.Context) ([]catalog.Item, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	release := f.release
	f.mu.Unlock()

	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.items, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() Config {
	return Config{
		Interval:         time.Hour,
		Enabled:          true,
		SourceID:         "sheet-test",
		MaxRetries:       1,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 5,
		StaleAfter:       0,
		MaxCatalogAge:    time.Hour,
	}
}

func someItems() []catalog.Item {
	return []catalog.Item{
		{ID: "stout", Name: "Dry Stout", Category: catalog.CategoryBeer},
		{ID: "pilsner", Name: "Pilsner", Category: catalog.CategoryBeer},
		{ID: "negroni", Name: "Negroni", Category: catalog.CategoryCocktail},
	}
}

func TestPerformSync_Success(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: someItems()}
	s := New(testConfig(), store, fetcher, nil)

	result, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.ItemCount)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, map[string]int64{"beer": 2, "cocktail": 1}, result.Categories)

	assert.Len(t, store.storedItems(), 3)
	assert.Equal(t, map[string]int64{"beer": 2, "cocktail": 1}, store.successCounts)

	status := s.Status()
	assert.Zero(t, status.ConsecutiveErrors)
	assert.NotNil(t, status.LastSuccess)
	assert.Equal(t, result.RunID, status.LastRunID)
}

func TestPerformSync_SkipsWhenFresh(t *testing.T) {
	cfg := testConfig()
	cfg.StaleAfter = 15 * time.Minute
	store := &fakeStore{healthy: true}
	fetcher := &fakeFetcher{items: someItems()}
	s := New(cfg, store, fetcher, nil)

	result, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Zero(t, fetcher.callCount(), "a skipped run must not contact the source")
	assert.Equal(t, 1, store.idleCalls)
}

func TestPerformSync_StalenessCheckErrorStillSyncs(t *testing.T) {
	cfg := testConfig()
	cfg.StaleAfter = 15 * time.Minute
	store := &fakeStore{healthyErr: errors.New("relation missing")}
	fetcher := &fakeFetcher{items: someItems()}
	s := New(cfg, store, fetcher, nil)

	result, err := s.PerformSync(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestFetchWithRetry_EventualSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	boom := errors.New("rate limited")
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: someItems(), errs: []error{boom, boom, nil}}
	s := New(cfg, store, fetcher, nil)

	result, err := s.PerformSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ItemCount)
	assert.Equal(t, 3, fetcher.callCount())
	assert.Zero(t, s.Status().ConsecutiveErrors)
}

func TestFetchWithRetry_AllAttemptsFail(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	boom := errors.New("rate limited")
	store := &fakeStore{}
	fetcher := &fakeFetcher{errs: []error{boom, boom, boom}}
	s := New(cfg, store, fetcher, nil)

	_, err := s.PerformSync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "all 3 fetch attempts failed")
	assert.Equal(t, 3, fetcher.callCount())
	assert.Equal(t, 1, s.Status().ConsecutiveErrors, "one run is one failure, however many attempts")
}

func TestPerformSync_PersistFailure(t *testing.T) {
	store := &fakeStore{replaceErr: errors.New("disk full")}
	fetcher := &fakeFetcher{items: someItems()}
	s := New(testConfig(), store, fetcher, nil)

	_, err := s.PerformSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist catalog")
	assert.Contains(t, store.lastError, "disk full")
}

func TestPerformSync_SingleFlight(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{
		items:   someItems(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(testConfig(), store, fetcher, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.PerformSync(context.Background())
		assert.NoError(t, err)
	}()

	<-fetcher.started

	_, err := s.PerformSync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, "Sync already in progress", err.Error())

	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, 1, fetcher.callCount(), "the losing call must not start a second fetch")
}

func TestCircuitBreaker_TripsAndStaysOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = time.Hour
	boom := errors.New("upstream down")
	store := &fakeStore{}
	fetcher := &fakeFetcher{errs: []error{boom, boom, boom, boom, boom}}
	s := New(cfg, store, fetcher, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// The loop runs once immediately; that is failure number one.
	require.Eventually(t, func() bool {
		return s.Status().ConsecutiveErrors == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Running())

	for range 4 {
		_, err := s.PerformManualSync(context.Background())
		require.Error(t, err)
	}

	status := s.Status()
	assert.Equal(t, 5, status.ConsecutiveErrors)
	assert.False(t, s.Running(), "breaker must stop the scheduler at the threshold")

	// A manual sync that succeeds resets the streak but never re-arms the loop.
	fetcher.mu.Lock()
	fetcher.errs = nil
	fetcher.items = someItems()
	fetcher.mu.Unlock()

	result, err := s.PerformManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ItemCount)
	assert.Zero(t, s.Status().ConsecutiveErrors)
	assert.False(t, s.Running())
}

func TestStart_RequiresSourceID(t *testing.T) {
	cfg := testConfig()
	cfg.SourceID = ""
	s := New(cfg, &fakeStore{}, &fakeFetcher{}, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no catalog source configured")
	assert.False(t, s.Running())
}

func TestStartStop_Lifecycle(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: someItems()}
	s := New(testConfig(), store, fetcher, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())

	// Starting twice is a no-op.
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return fetcher.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "the loop should sync immediately on start")

	s.Stop()
	assert.False(t, s.Running())

	// Stopping twice is also a no-op.
	s.Stop()
}

func TestPerformManualSync_WorksWhileStopped(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: someItems()}
	s := New(testConfig(), store, fetcher, nil)

	require.False(t, s.Running())

	result, err := s.PerformManualSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ItemCount)
	assert.False(t, s.Running(), "a manual sync must not arm the timer")
}

func TestStatus_Snapshot(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, &fakeStore{}, &fakeFetcher{items: someItems()}, nil)

	status := s.Status()
	assert.False(t, status.Running)
	assert.False(t, status.Syncing)
	assert.True(t, status.Enabled)
	assert.Equal(t, "sheet-test", status.SourceID)
	assert.Equal(t, time.Hour.String(), status.Interval)
	assert.Equal(t, 5, status.FailureThreshold)
	assert.Nil(t, status.LastAttempt)
	assert.Nil(t, status.LastSuccess)

	_, err := s.PerformSync(context.Background())
	require.NoError(t, err)

	status = s.Status()
	assert.NotNil(t, status.LastAttempt)
	assert.NotNil(t, status.LastSuccess)
	assert.NotEmpty(t, status.LastRunID)
}

func TestNew_AppliesDefaults(t *testing.T) {
	s := New(Config{SourceID: "sheet-test"}, &fakeStore{}, &fakeFetcher{}, nil)
	assert.Equal(t, 30*time.Minute, s.cfg.Interval)
	assert.Equal(t, 1, s.cfg.MaxRetries)
	assert.Equal(t, 5, s.cfg.FailureThreshold)
}
