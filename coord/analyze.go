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
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SnellerInc/ionscan/ion"
	"github.com/SnellerInc/ionscan/scan"

	"github.com/google/uuid"
)

// maxUnresolved is the number of unresolved
// symbol uses that a Report lists
const maxUnresolved = 100

// Report is the merged result of decoding
// every chunk of a stream.
type Report struct {
	ID          uuid.UUID `json:"id"`
	Size        int64     `json:"size"`
	Chunks      int       `json:"chunks"`
	TopLevel    int       `json:"top_level"`
	Tables      int       `json:"tables"`
	Symbols     int       `json:"symbols"`
	Checkpoints int       `json:"checkpoints"`

	Stats  *scan.Stats                `json:"stats"`
	ByType map[string]*scan.TypeStats `json:"types"`

	// Unresolved counts symbol uses that do not
	// resolve where they occur; UnresolvedAt lists
	// the first of them. Both are only populated
	// when usage tracking is enabled.
	Unresolved   int64        `json:"unresolved,omitempty"`
	UnresolvedAt []scan.Usage `json:"unresolved_at,omitempty"`
	// Fingerprint is a hash of the symbol
	// tables and recorded symbol usage.
	Fingerprint uint64 `json:"fingerprint"`

	Errors  []*ChunkError `json:"errors,omitempty"`
	Notices []scan.Notice `json:"notices,omitempty"`
	Elapsed time.Duration `json:"elapsed"`

	// Resolver holds the symbol tables
	// with any recorded usage.
	Resolver *ion.Resolver `json:"-"`
}

// MarshalText implements encoding.TextMarshaler.
func (c *ChunkError) MarshalText() ([]byte, error) {
	return []byte(c.Error()), nil
}

type chunkPlan struct {
	seq int
	cp  scan.Checkpoint
	ctx ion.Context
	end int64
}

// plan splits the stream into chunks of at
// most BufferSize bytes that begin and end
// at checkpoints
func (c *Coordinator) plan() ([]chunkPlan, error) {
	index := c.index
	var bounds []scan.Checkpoint
	if all := index.Checkpoints.All(); len(all) == 0 || all[0].Offset != 0 {
		bounds = append(bounds, scan.Checkpoint{})
	}
	bounds = append(bounds, index.Checkpoints.All()...)
	var out []chunkPlan
	i := 0
	for i < len(bounds) {
		start := bounds[i]
		limit := start.Offset + c.conf.BufferSize
		var end int64
		next := i + sort.Search(len(bounds)-i, func(j int) bool {
			return bounds[i+j].Offset > limit
		})
		switch {
		case next == len(bounds) && c.size <= limit:
			end = c.size
		case next-1 > i:
			next--
			end = bounds[next].Offset
		default:
			return nil, fmt.Errorf("coord: no checkpoint within %d bytes of %d", c.conf.BufferSize, start.Offset)
		}
		out = append(out, chunkPlan{
			seq: len(out),
			cp:  start,
			ctx: index.ContextAt(start.Offset),
			end: end,
		})
		i = next
	}
	return out, nil
}

func (c *Coordinator) decode(p chunkPlan) chunkResult {
	buf, err := c.load(p.cp.Offset, p.end-p.cp.Offset)
	if err != nil {
		return chunkResult{plan: p, err: err}
	}
	res, err := scan.Chunk(buf, p.cp.Offset, c.size, &scan.ChunkOptions{
		Context:    p.ctx,
		Checkpoint: &p.cp,
		TrackUsage: c.conf.TrackUsage,
		Logf:       c.conf.Logf,
	})
	return chunkResult{plan: p, res: res, err: err}
}

// Analyze scans the stream if it has not been
// scanned yet, then decodes every chunk on
// Config.Workers goroutines and merges the results.
//
// Malformed data within a chunk is reported
// in Report.Errors; the other chunks are still
// merged. Errors in the top-level scan, and
// cancellation of ctx, are returned.
func (c *Coordinator) Analyze(ctx context.Context) (*Report, error) {
	start := time.Now()
	index, err := c.ScanTopLevel(ctx)
	if err != nil {
		return nil, err
	}
	res, err := index.Resolver()
	if err != nil {
		return nil, err
	}
	plans, err := c.plan()
	if err != nil {
		return nil, err
	}
	rep := &Report{
		ID:          uuid.New(),
		Size:        c.size,
		Chunks:      len(plans),
		TopLevel:    len(index.TopLevel),
		Tables:      len(index.Tables),
		Symbols:     len(index.Symbols),
		Checkpoints: index.Checkpoints.Len(),
		Stats:       new(scan.Stats),
		Notices:     append([]scan.Notice(nil), index.Notices...),
		Resolver:    res,
	}

	c.conf.logf("%s: decoding %d chunks with %d workers", rep.ID, len(plans), c.conf.Workers)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobs := make(chan chunkPlan)
	results := make(chan chunkResult, c.conf.Workers)
	var wg sync.WaitGroup
	for i := 0; i < c.conf.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				results <- c.decode(p)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, p := range plans {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	m := newMerger(rep, res)
	for r := range results {
		if r.err != nil {
			c.conf.logf("%s: chunk [%d, %d): %s", rep.ID, r.plan.cp.Offset, r.plan.end, r.err)
		}
		m.push(r)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.done(len(plans)) {
		panic("coord: chunks missing after all workers exited")
	}
	rep.ByType = rep.Stats.ByType()
	rep.Fingerprint = res.Fingerprint()
	rep.Elapsed = time.Since(start)
	return rep, nil
}
