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

package catalogsource

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsRowSource fetches partitions through the Google Sheets API. One
// partition is one tab; a bare tab name is a valid A1 range covering the
// whole tab.
type SheetsRowSource struct {
	svc *sheets.Service
}

var _ RowSource = (*SheetsRowSource)(nil)

// NewSheetsRowSource builds a Sheets-backed row source. An API key is
// enough for publicly readable spreadsheets; a credentials file switches
// to service-account auth. With neither, ambient application default
// credentials apply.
func NewSheetsRowSource(ctx context.Context, apiKey, credentialsFile string) (*SheetsRowSource, error) {
	var opts []option.ClientOption
	switch {
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsRowSource{svc: svc}, nil
}

func (s *SheetsRowSource) FetchPartition(ctx context.Context, spreadsheetID, partition string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, partition).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets values.get %q range %q: %w", spreadsheetID, partition, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, v := range raw {
			if v == nil {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(v))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
