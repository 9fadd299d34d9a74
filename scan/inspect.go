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

// maxRendered is the largest representation
// that an Entry renders in full
const maxRendered = 256

// Entry describes one value in an inspected range.
type Entry struct {
	Offset      int64        `json:"offset"`
	Depth       int          `json:"depth"`
	Type        ion.Type     `json:"-"`
	TypeName    string       `json:"type"`
	Null        bool         `json:"null,omitempty"`
	Field       ion.Symbol   `json:"field,omitempty"`
	HasField    bool         `json:"-"`
	Annotations []ion.Symbol `json:"annotations,omitempty"`
	// Length is the length of the value after
	// its type/length byte, and Total is the
	// number of bytes it spans.
	Length int64 `json:"length"`
	Total  int64 `json:"total"`
	// Header holds the bytes from the start of
	// the value up to its representation.
	Header []byte `json:"header"`
	// Value is the rendered scalar value.
	Value  string `json:"value,omitempty"`
	System bool   `json:"system,omitempty"`
}

func (e *Entry) String() string {
	var field string
	if e.HasField {
		field = fmt.Sprintf("$%d: ", e.Field)
	}
	return fmt.Sprintf("%d %*s%s%s % x %s", e.Offset, 2*e.Depth, "", field, e.TypeName, e.Header, e.Value)
}

// InspectOptions configure Inspect.
type InspectOptions struct {
	Context    ion.Context
	Checkpoint *Checkpoint
	// Start and End delimit the absolute
	// range of offsets to inspect.
	Start, End int64
}

// Inspect decodes the values in buf that
// intersect [opts.Start, opts.End), starting
// from opts.Checkpoint, and describes each of
// them in pre-order. Decoding stops early if
// the range extends past the buffer.
func Inspect(buf []byte, base, size int64, opts *InspectOptions) ([]Entry, error) {
	var c cursor
	if err := c.init(buf, base, size, opts.Context, opts.Checkpoint); err != nil {
		return nil, err
	}
	var out []Entry
	for {
		e := c.cur()
		if e.Abs() >= opts.End {
			return out, nil
		}
		ok, err := c.decode()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		if e.End() > opts.Start {
			out = append(out, entry(&c.src, e))
			if c.descend() {
				continue
			}
		}
		if c.advance() || c.ascend() {
			continue
		}
		return out, nil
	}
}

func entry(src *ion.Source, e *ion.Element) Entry {
	ent := Entry{
		Offset:   e.Abs(),
		Depth:    e.Depth(),
		Type:     e.Type(),
		TypeName: e.Type().String(),
		Null:     e.IsNull(),
		Length:   e.Length(),
		Total:    e.TotalLength(),
		System:   e.IsSystem(),
	}
	ent.Field, ent.HasField = e.Field()
	if a := e.Annotations(); len(a) > 0 {
		ent.Annotations = append([]ion.Symbol(nil), a...)
	}
	l := e.Layout()
	if b, ok := src.Slice(l.Start, l.Repr-l.Start); ok {
		ent.Header = append([]byte(nil), b...)
	}
	ent.Value = render(src, e)
	return ent
}

func render(src *ion.Source, e *ion.Element) string {
	switch e.Type() {
	case ion.ListType, ion.SexpType, ion.StructType, ion.NopType:
		if e.IsNull() {
			return "null." + e.Type().String()
		}
		return ""
	case ion.BVMType:
		major, minor := e.Version()
		return fmt.Sprintf("$ion_%d_%d", major, minor)
	}
	if n := e.ReprLength(); n > maxRendered {
		return fmt.Sprintf("<%d bytes>", n)
	}
	s, ok, err := ion.ReadScalar(src, e)
	if err != nil {
		return fmt.Sprintf("<%s>", err)
	}
	if !ok {
		return "…"
	}
	return s.String()
}
