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

package scan

import (
	"fmt"

	"github.com/SnellerInc/ionscan/ion"
)

// ChunkOptions configure Chunk.
type ChunkOptions struct {
	// Context is the encoding context in
	// effect at the start of the chunk.
	Context ion.Context
	// Checkpoint is where the chunk begins.
	// When nil, the chunk begins with a
	// top-level value at the start of buf.
	Checkpoint *Checkpoint
	// Length is the number of bytes in the
	// chunk. It defaults to len(buf).
	Length int64
	// TrackUsage records each use of a
	// symbol ID in Result.Usages.
	TrackUsage bool
	Logf       Logf
}

type chunk struct {
	cursor
	opts  *ChunkOptions
	res   *Result
	limit int64
}

// Chunk decodes every value in a chunk of a
// stream and accumulates statistics.
//
// The chunk must lie entirely within buf,
// which begins at absolute offset base
// of a stream of size bytes, and it must end
// exactly where a value begins (or at the end
// of the stream). Decoding stops at the first
// value that begins at or after the end of
// the chunk.
func Chunk(buf []byte, base, size int64, opts *ChunkOptions) (*Result, error) {
	if opts == nil {
		opts = &ChunkOptions{}
	}
	length := opts.Length
	if length <= 0 {
		length = int64(len(buf))
	}
	if length > int64(len(buf)) {
		return nil, fmt.Errorf("%d-byte chunk in a %d-byte buffer", length, len(buf))
	}
	c := &chunk{
		opts:  opts,
		res:   &Result{Start: base, Stats: new(Stats)},
		limit: base + length,
	}
	if err := c.init(buf, base, size, opts.Context, opts.Checkpoint); err != nil {
		return nil, err
	}
	if err := c.run(); err != nil {
		return nil, err
	}
	return c.res, nil
}

func (c *chunk) run() error {
	for {
		e := c.cur()
		if e.Abs() >= c.limit {
			if e.Abs() != c.limit {
				return c.fail(fmt.Errorf("chunk ends at %d inside a value", c.limit))
			}
			c.res.End = c.limit
			c.res.Checkpoint = c.snapshot()
			return nil
		}
		ok, err := c.decode()
		if err != nil {
			return err
		}
		if !ok {
			return c.fail(fmt.Errorf("chunk ended early at %d of [%d, %d)", e.Abs(), c.res.Start, c.limit))
		}
		c.res.Stats.Track(e)
		if c.opts.TrackUsage {
			if err := c.usage(e); err != nil {
				return err
			}
		}
		if e.Type() == ion.BVMType {
			c.res.Contexts = append(c.res.Contexts, ContextChange{Offset: e.Abs(), Context: c.ctx})
		}
		if c.descend() || c.advance() || c.ascend() {
			continue
		}
		c.res.AtEnd = true
		c.res.End = c.size
		return c.finish()
	}
}

// usage records the symbols used by e
func (c *chunk) usage(e *ion.Element) error {
	off := e.Abs()
	if f, ok := e.Field(); ok {
		c.res.Usages = append(c.res.Usages, Usage{Symbol: f, Offset: off})
	}
	for _, a := range e.Annotations() {
		c.res.Usages = append(c.res.Usages, Usage{Symbol: a, Offset: off})
	}
	if e.Type() != ion.SymbolType || e.IsNull() {
		return nil
	}
	var sym ion.Symbol
	if pos, ok := e.ReprPos(); ok {
		var err error
		sym, ok, err = ion.ReadSymbolID(&c.src, pos, int(e.ReprLength()))
		if err != nil {
			return c.fail(err)
		}
		if !ok {
			return c.fail(fmt.Errorf("symbol value extends past the chunk"))
		}
	}
	c.res.Usages = append(c.res.Usages, Usage{Symbol: sym, Offset: off})
	return nil
}
