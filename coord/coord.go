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

// Package coord coordinates the decoding of
// a binary ion stream in bounded memory.
//
// A serial top-level scan records where values,
// symbol tables and resumable checkpoints lie.
// The stream is then split at checkpoints into
// chunks of at most Config.BufferSize bytes,
// which are decoded concurrently, and the results
// are merged in stream order.
package coord

import (
	"context"
	"errors"
	"fmt"

	"github.com/SnellerInc/ionscan/indexcache"
	"github.com/SnellerInc/ionscan/ion"
	"github.com/SnellerInc/ionscan/loader"
	"github.com/SnellerInc/ionscan/scan"
)

// Coordinator runs the tasks that decode one stream.
type Coordinator struct {
	conf Config
	src  loader.Loader
	size int64

	index *Index
	res   *ion.Resolver

	cache *indexcache.Cache
	ident indexcache.Identity
}

// New returns a Coordinator for the stream in src.
// A nil conf uses the defaults.
func New(src loader.Loader, conf *Config) (*Coordinator, error) {
	c := &Coordinator{src: src, size: src.Size()}
	if conf != nil {
		c.conf = *conf
	}
	c.conf.setDefaults()
	if err := c.conf.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// UseCache makes the Coordinator load the index
// from cache, and store it there after a scan.
// The identity must describe the stream; its
// scan parameters are taken from the Config.
func (c *Coordinator) UseCache(cache *indexcache.Cache, ident indexcache.Identity) {
	ident.Size = c.size
	ident.BufferSize = c.conf.BufferSize
	ident.Interval = c.conf.TopLevelInterval
	c.cache = cache
	c.ident = ident
}

// Size returns the size of the stream.
func (c *Coordinator) Size() int64 { return c.size }

func (c *Coordinator) load(start, length int64) ([]byte, error) {
	if start+length > c.size {
		length = c.size - start
	}
	return c.src.Load(start, length)
}

// ScanTopLevel runs the top-level scan, or
// loads its result from the cache, and
// returns the merged index. The scan only
// runs once per Coordinator.
func (c *Coordinator) ScanTopLevel(ctx context.Context) (*Index, error) {
	if c.index != nil {
		return c.index, nil
	}
	index, cached := c.cached()
	if !cached {
		var err error
		index, err = c.scan(ctx)
		if err != nil {
			return nil, err
		}
	}
	res, err := index.Resolver()
	if err != nil {
		return nil, err
	}
	if !cached && c.cache != nil {
		if err := c.store(index); err != nil {
			c.conf.logf("storing index: %s", err)
		}
	}
	c.index, c.res = index, res
	return index, nil
}

func (c *Coordinator) cached() (*Index, bool) {
	if c.cache == nil {
		return nil, false
	}
	buf, ok, err := c.cache.Get(c.ident.Key())
	if err != nil {
		c.conf.logf("loading cached index: %s", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	index := new(Index)
	if err := index.UnmarshalBinary(buf); err != nil {
		c.conf.logf("decoding cached index: %s", err)
		return nil, false
	}
	if index.Size != c.size {
		return nil, false
	}
	c.conf.logf("loaded index of %d top-level values from cache", len(index.TopLevel))
	return index, true
}

func (c *Coordinator) store(index *Index) error {
	buf, err := index.MarshalBinary()
	if err != nil {
		return err
	}
	return c.cache.Put(c.ident.Key(), buf)
}

func (c *Coordinator) scan(ctx context.Context) (*Index, error) {
	index := &Index{Size: c.size}
	opts := &scan.TopLevelOptions{
		Interval:   c.conf.TopLevelInterval,
		BufferSize: c.conf.BufferSize,
		Logf:       c.conf.Logf,
	}
	base := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf, err := c.load(base, c.conf.BufferSize)
		if err != nil {
			return nil, err
		}
		r, err := scan.TopLevel(buf, base, c.size, opts)
		if err != nil {
			return nil, err
		}
		index.add(r)
		if r.AtEnd {
			break
		}
		if r.Checkpoint.Offset <= base {
			// TopLevel guarantees progress
			panic(fmt.Sprintf("coord: top-level scan stalled at %d", base))
		}
		c.conf.logf("scanned [%d, %d) of %d", base, r.Checkpoint.Offset, c.size)
		base = r.Checkpoint.Offset
		opts.Resume = r.Resume
	}
	c.conf.logf("%d top-level values, %d symbol tables, %d checkpoints",
		len(index.TopLevel), len(index.SymtabOffsets), index.Checkpoints.Len())
	return index, nil
}

// Resolver returns the symbol tables of the
// stream. ScanTopLevel must have succeeded.
func (c *Coordinator) Resolver() *ion.Resolver {
	if c.res == nil {
		panic("coord: Resolver called before ScanTopLevel")
	}
	return c.res
}

// ChunkError is a decoding error
// confined to one chunk.
type ChunkError struct {
	Start, End int64
	Err        error
}

func (c *ChunkError) Error() string {
	return fmt.Sprintf("chunk [%d, %d): %s", c.Start, c.End, c.Err)
}

func (c *ChunkError) Unwrap() error { return c.Err }

// Offset returns the offset of the
// malformed data, if it is known.
func (c *ChunkError) Offset() (int64, bool) {
	var de *scan.DecodeError
	if errors.As(c.Err, &de) {
		return de.Offset, true
	}
	return 0, false
}
