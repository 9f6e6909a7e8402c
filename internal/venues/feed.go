// Copyright (C) 2025-2026 CardinalHQ, Inc
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

package venues

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/menurunner/catalogdb"
)

type feedFile struct {
	Venues []feedVenue `yaml:"venues"`
}

type feedVenue struct {
	ID            uuid.UUID `yaml:"id"`
	Name          string    `yaml:"name"`
	Latitude      float64   `yaml:"latitude,omitempty"`
	Longitude     float64   `yaml:"longitude,omitempty"`
	SourceLocator string    `yaml:"source_locator"`
	Active        *bool     `yaml:"active,omitempty"`
}

// LoadFeedFile reads a venue feed from a YAML file. A filename of the form
// "env:VARNAME" reads the feed from that environment variable instead.
func LoadFeedFile(filename string) ([]catalogdb.Venue, error) {
	if after, ok := strings.CutPrefix(filename, "env:"); ok {
		contents := os.Getenv(after)
		if contents == "" {
			return nil, fmt.Errorf("environment variable %s is not set", after)
		}
		return parseFeed(filename, []byte(contents))
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue feed from file %s: %w", filename, err)
	}

	return parseFeed(filename, contents)
}

func parseFeed(filename string, contents []byte) ([]catalogdb.Venue, error) {
	var feed feedFile

	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal venue feed from file %s: %w", filename, err)
	}

	venues := make([]catalogdb.Venue, 0, len(feed.Venues))
	for i, fv := range feed.Venues {
		if fv.ID == uuid.Nil {
			return nil, fmt.Errorf("venue %d in %s is missing an id", i, filename)
		}
		if fv.Name == "" {
			return nil, fmt.Errorf("venue %s in %s is missing a name", fv.ID, filename)
		}
		if fv.SourceLocator == "" {
			return nil, fmt.Errorf("venue %s in %s is missing a source_locator", fv.ID, filename)
		}
		active := true
		if fv.Active != nil {
			active = *fv.Active
		}
		venues = append(venues, catalogdb.Venue{
			ID:            fv.ID,
			Name:          fv.Name,
			Latitude:      fv.Latitude,
			Longitude:     fv.Longitude,
			SourceLocator: fv.SourceLocator,
			Active:        active,
		})
	}
	return venues, nil
}
