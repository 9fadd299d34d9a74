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
	"strconv"

	"github.com/SnellerInc/ionscan/ion"
	"github.com/SnellerInc/ionscan/scan"
)

// Entry is a scan.Entry with its
// symbols resolved.
type Entry struct {
	scan.Entry
	FieldName   string   `json:"field_name,omitempty"`
	Annotated   []string `json:"annotation_names,omitempty"`
	SymbolValue string   `json:"symbol,omitempty"`
}

func (c *Coordinator) name(sym ion.Symbol, at int64) string {
	if text, ok := c.res.Resolve(sym, at); ok {
		return text
	}
	return fmt.Sprintf("$%d", sym)
}

// Inspect describes the values that intersect
// the absolute range [start, end), decoding
// from the nearest preceding checkpoint or
// top-level value. At most BufferSize bytes
// are decoded, so a long range may be cut short.
func (c *Coordinator) Inspect(ctx context.Context, start, end int64) ([]Entry, error) {
	index, err := c.ScanTopLevel(ctx)
	if err != nil {
		return nil, err
	}
	if start < 0 || end > c.size || start > end {
		return nil, fmt.Errorf("coord: range [%d, %d) outside of %d bytes", start, end, c.size)
	}
	cp := index.Nearest(start)
	buf, err := c.load(cp.Offset, c.conf.BufferSize)
	if err != nil {
		return nil, err
	}
	raw, err := scan.Inspect(buf, cp.Offset, c.size, &scan.InspectOptions{
		Context:    index.ContextAt(cp.Offset),
		Checkpoint: &cp,
		Start:      start,
		End:        end,
	})
	out := make([]Entry, len(raw))
	for i := range raw {
		e := &out[i]
		e.Entry = raw[i]
		if e.HasField {
			e.FieldName = c.name(e.Field, e.Offset)
		}
		for _, a := range e.Annotations {
			e.Annotated = append(e.Annotated, c.name(a, e.Offset))
		}
		if e.Type == ion.SymbolType && !e.Null && len(e.Value) > 1 && e.Value[0] == '$' {
			if id, perr := strconv.ParseUint(e.Value[1:], 10, 32); perr == nil {
				e.SymbolValue = c.name(ion.Symbol(id), e.Offset)
			}
		}
	}
	return out, err
}
