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
	"github.com/SnellerInc/ionscan/ion"
)

// maxExamples is the number of example
// offsets kept for each extreme value
const maxExamples = 10

// Extreme tracks the largest (or smallest)
// value seen along with the offsets where
// it first occurred.
type Extreme struct {
	Value   int64   `json:"value"`
	Count   int64   `json:"count"`
	Offsets []int64 `json:"offsets,omitempty"`
}

func greater(a, b int64) bool { return a > b }
func less(a, b int64) bool    { return a < b }

func (x *Extreme) track(v, off int64, better func(a, b int64) bool) {
	switch {
	case x.Count == 0 || better(v, x.Value):
		x.Value = v
		x.Count = 1
		x.Offsets = append(x.Offsets[:0], off)
	case v == x.Value:
		x.Count++
		if len(x.Offsets) < maxExamples {
			x.Offsets = append(x.Offsets, off)
		}
	}
}

// merge folds in o, which must describe
// data that follows the data in x
func (x *Extreme) merge(o *Extreme, better func(a, b int64) bool) {
	switch {
	case o.Count == 0:
	case x.Count == 0 || better(o.Value, x.Value):
		x.Value = o.Value
		x.Count = o.Count
		x.Offsets = append([]int64(nil), o.Offsets...)
	case o.Value == x.Value:
		x.Count += o.Count
		for _, off := range o.Offsets {
			if len(x.Offsets) >= maxExamples {
				break
			}
			x.Offsets = append(x.Offsets, off)
		}
	}
}

// TypeStats are the statistics for one type.
type TypeStats struct {
	Count    int64   `json:"count"`
	Bytes    int64   `json:"bytes"`
	Nulls    int64   `json:"nulls,omitempty"`
	MinBytes Extreme `json:"min_bytes"`
	MaxBytes Extreme `json:"max_bytes"`
	MaxDepth Extreme `json:"max_depth"`
}

func (t *TypeStats) track(n, depth, off int64) {
	t.Count++
	t.Bytes += n
	t.MinBytes.track(n, off, less)
	t.MaxBytes.track(n, off, greater)
	t.MaxDepth.track(depth, off, greater)
}

func (t *TypeStats) merge(o *TypeStats) {
	t.Count += o.Count
	t.Bytes += o.Bytes
	t.Nulls += o.Nulls
	t.MinBytes.merge(&o.MinBytes, less)
	t.MaxBytes.merge(&o.MaxBytes, greater)
	t.MaxDepth.merge(&o.MaxDepth, greater)
}

// Stats are structural statistics
// about a range of a stream.
//
// Byte counts exclude the type/length byte
// and any annotation wrapper. Annotation
// wrappers are counted as values of type
// ion.AnnotationType whose size is the
// length of the annotation list.
type Stats struct {
	Values         int64                   `json:"values"`
	Nulls          int64                   `json:"nulls"`
	MaxDepth       Extreme                 `json:"max_depth"`
	MaxAnnotations Extreme                 `json:"max_annotations"`
	Types          [ion.NumTypes]TypeStats `json:"-"`
}

// Track adds the decoded element e.
func (s *Stats) Track(e *ion.Element) {
	off := e.Abs()
	depth := int64(e.Depth())
	s.Values++
	t := &s.Types[e.Type()]
	t.track(e.InnerLength(), depth, off)
	if e.IsNull() {
		t.Nulls++
		s.Nulls++
	}
	s.MaxDepth.track(depth, off, greater)
	if w, ok := e.Wrapper(); ok {
		s.Types[ion.AnnotationType].track(w.AnnotLength, depth, off)
		s.MaxAnnotations.track(int64(len(e.Annotations())), off, greater)
	}
}

// Merge folds in o, which must describe
// the data immediately following the data
// described by s.
func (s *Stats) Merge(o *Stats) {
	s.Values += o.Values
	s.Nulls += o.Nulls
	s.MaxDepth.merge(&o.MaxDepth, greater)
	s.MaxAnnotations.merge(&o.MaxAnnotations, greater)
	for i := range s.Types {
		s.Types[i].merge(&o.Types[i])
	}
}

// ByType returns the statistics of
// every type that was seen, by name.
func (s *Stats) ByType() map[string]*TypeStats {
	out := make(map[string]*TypeStats)
	for i := range s.Types {
		if s.Types[i].Count > 0 {
			out[ion.Type(i).String()] = &s.Types[i]
		}
	}
	return out
}
