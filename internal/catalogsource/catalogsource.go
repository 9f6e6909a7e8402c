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

// Package catalogsource reads the drink catalog out of its system of
// record, a spreadsheet with one tab per category. The source is slow,
// rate limited, and occasionally missing whole tabs, so fetches tolerate
// partition-level failure and surface an error only when nothing at all
// could be read.
package catalogsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/menurunner/internal/catalog"
)

// ErrNoData means every partition either failed or mapped to zero usable
// rows. Partial data never trips this.
var ErrNoData = errors.New("no catalog data available from source")

var (
	itemsFetchedCounter     metric.Int64Counter
	partitionFailureCounter metric.Int64Counter
	rowsSkippedCounter      metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/menurunner/internal/catalogsource")

	var err error
	itemsFetchedCounter, err = meter.Int64Counter(
		"menurunner.source.items_fetched_total",
		metric.WithDescription("Count of catalog items mapped from source rows"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create items_fetched_total counter: %w", err))
	}

	partitionFailureCounter, err = meter.Int64Counter(
		"menurunner.source.partition_failures_total",
		metric.WithDescription("Count of source partitions that failed to fetch"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create partition_failures_total counter: %w", err))
	}

	rowsSkippedCounter, err = meter.Int64Counter(
		"menurunner.source.rows_skipped_total",
		metric.WithDescription("Count of source rows skipped during validation"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows_skipped_total counter: %w", err))
	}
}

// RowSource fetches the raw cell grid for one partition of a spreadsheet.
// Implementations must return rows header-first and may return an empty
// grid for an empty tab.
type RowSource interface {
	FetchPartition(ctx context.Context, spreadsheetID, partition string) ([][]string, error)
}

// Adapter turns the per-category partitions of one spreadsheet into
// validated catalog items.
type Adapter struct {
	src           RowSource
	spreadsheetID string
	logger        *slog.Logger
}

func NewAdapter(src RowSource, spreadsheetID string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		src:           src,
		spreadsheetID: spreadsheetID,
		logger:        logger.With(slog.String("component", "catalogsource")),
	}
}

// FetchAll reads every category partition in order. A failed partition is
// logged and skipped; its items are simply absent from the result. Only
// when no partition yields any usable item does FetchAll return ErrNoData,
// wrapped around whatever partition errors accumulated.
func (a *Adapter) FetchAll(ctx context.Context) ([]catalog.Item, error) {
	var items []catalog.Item
	var partErrs *multierror.Error

	for _, category := range catalog.Categories() {
		partition := string(category)

		rows, err := a.src.FetchPartition(ctx, a.spreadsheetID, partition)
		if err != nil {
			partitionFailureCounter.Add(ctx, 1)
			partErrs = multierror.Append(partErrs, fmt.Errorf("partition %q: %w", partition, err))
			a.logger.Warn("partition fetch failed, skipping",
				slog.String("spreadsheetID", a.spreadsheetID),
				slog.String("partition", partition),
				slog.Any("error", err))
			continue
		}

		mapped := a.mapRows(category, rows)
		items = append(items, mapped...)
	}

	if len(items) == 0 {
		if err := partErrs.ErrorOrNil(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoData, err)
		}
		return nil, ErrNoData
	}

	itemsFetchedCounter.Add(ctx, int64(len(items)))
	return items, nil
}
