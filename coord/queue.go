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

	"github.com/SnellerInc/ionscan/ion"
	"github.com/SnellerInc/ionscan/scan"
)

type chunkResult struct {
	plan chunkPlan
	res  *scan.Result
	err  error
}

// merger folds chunk results into a Report
// in stream order, holding results that
// arrive early in a min-heap keyed by
// sequence number
type merger struct {
	next    int
	pending []chunkResult
	rep     *Report
	res     *ion.Resolver
}

func newMerger(rep *Report, res *ion.Resolver) *merger {
	return &merger{rep: rep, res: res}
}

func (m *merger) less(i, j int) bool {
	return m.pending[i].plan.seq < m.pending[j].plan.seq
}

func (m *merger) swap(i, j int) {
	m.pending[i], m.pending[j] = m.pending[j], m.pending[i]
}

func (m *merger) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if m.less(p, i) {
			break
		}
		m.swap(p, i)
		i = p
	}
}

func (m *merger) siftDown(i int) {
	for {
		left := (i * 2) + 1
		right := left + 1
		if left >= len(m.pending) {
			break
		}
		c := left
		if len(m.pending) > right && m.less(right, left) {
			c = right
		}
		if m.less(i, c) {
			break
		}
		m.swap(c, i)
		i = c
	}
}

func (m *merger) pop() chunkResult {
	ret := m.pending[0]
	last := len(m.pending) - 1
	m.pending[0] = m.pending[last]
	m.pending = m.pending[:last]
	if last > 0 {
		m.siftDown(0)
	}
	return ret
}

// push adds r and merges every
// result that is now in order
func (m *merger) push(r chunkResult) {
	if r.plan.seq < m.next {
		panic(fmt.Sprintf("coord: chunk %d merged twice", r.plan.seq))
	}
	for i := range m.pending {
		if m.pending[i].plan.seq == r.plan.seq {
			panic(fmt.Sprintf("coord: chunk %d merged twice", r.plan.seq))
		}
	}
	m.pending = append(m.pending, r)
	m.siftUp(len(m.pending) - 1)
	for len(m.pending) > 0 && m.pending[0].plan.seq == m.next {
		m.merge(m.pop())
		m.next++
	}
}

// done returns whether n results were merged
func (m *merger) done(n int) bool {
	return m.next == n && len(m.pending) == 0
}

func (m *merger) merge(r chunkResult) {
	rep := m.rep
	if r.err != nil {
		rep.Errors = append(rep.Errors, &ChunkError{Start: r.plan.cp.Offset, End: r.plan.end, Err: r.err})
		return
	}
	rep.Stats.Merge(r.res.Stats)
	rep.Notices = append(rep.Notices, r.res.Notices...)
	for _, u := range r.res.Usages {
		if !m.res.AddUsage(u.Symbol, u.Offset) {
			rep.Unresolved++
			if len(rep.UnresolvedAt) < maxUnresolved {
				rep.UnresolvedAt = append(rep.UnresolvedAt, u)
			}
		}
	}
}
