// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package coord

import (
	"fmt"
	"os"

	"github.com/SnellerInc/ionscan/scan"

	"sigs.k8s.io/yaml"
)

// DefaultBufferSize is the default size
// of the buffers that tasks decode.
const DefaultBufferSize = 35_000_000

// DefaultWorkers is the default number
// of chunk decoding workers.
const DefaultWorkers = 3

// Config configures a Coordinator.
type Config struct {
	// BufferSize is the largest buffer that
	// any task decodes, and therefore the
	// bound on memory held per task.
	BufferSize int64 `json:"buffer_size,omitempty"`
	// Workers is the number of chunks
	// decoded concurrently.
	Workers int `json:"workers,omitempty"`
	// TopLevelInterval, if non-zero, limits
	// the recorded top-level offsets to roughly
	// one per TopLevelInterval bytes.
	TopLevelInterval int64 `json:"top_level_interval,omitempty"`
	// TrackUsage records where each
	// symbol is used.
	TrackUsage bool `json:"track_usage,omitempty"`
	// Logf, if non-nil, receives progress
	// messages and notices.
	Logf scan.Logf `json:"-"`
}

func (c *Config) setDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
}

func (c *Config) validate() error {
	switch {
	case c.BufferSize < 16:
		return fmt.Errorf("coord: buffer size %d too small", c.BufferSize)
	case c.Workers < 1:
		return fmt.Errorf("coord: %d workers", c.Workers)
	case c.TopLevelInterval < 0:
		return fmt.Errorf("coord: negative top-level interval %d", c.TopLevelInterval)
	}
	return nil
}

func (c *Config) logf(f string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(f, args...)
	}
}

// ReadConfig reads a Config from a
// YAML (or JSON) file. Fields that are
// absent keep their defaults.
func ReadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

// ParseConfig parses a YAML (or JSON) Config.
func ParseConfig(buf []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.UnmarshalStrict(buf, c); err != nil {
		return nil, fmt.Errorf("coord: parsing config: %w", err)
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
