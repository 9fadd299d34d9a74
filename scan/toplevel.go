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

// Resume is the state that a top-level scan
// carries from one buffer to the next.
type Resume struct {
	Checkpoint Checkpoint
	Context    ion.Context

	// symbol table definition in progress
	inTable bool
	inList  bool
	table   TableDef
	last    int64
}

// TopLevelOptions configure TopLevel.
type TopLevelOptions struct {
	// Resume continues an earlier scan.
	// When nil, the buffer must begin
	// at offset 0 of the stream.
	Resume *Resume
	// Interval, if non-zero, limits the recorded
	// top-level offsets to the first one in the
	// buffer, ones that cross the end of the
	// buffer, and ones more than Interval bytes
	// past the previously recorded offset.
	// Otherwise every top-level offset is recorded.
	Interval int64
	// BufferSize is the size of the buffers
	// that later tasks will load. Values larger
	// than BufferSize are descended into.
	// It defaults to len(buf).
	BufferSize int64
	Logf       Logf
}

type toplevel struct {
	cursor
	opts    *TopLevelOptions
	res     *Result
	last    int64 // last recorded top-level offset
	seen    bool  // a top-level value was decoded
	inTable bool
	inList  bool
	table   TableDef
}

// TopLevel scans buf, which begins at absolute
// offset base of a stream of size bytes, and
// records the offset of top-level values,
// binary version markers and symbol tables.
// Symbol table definitions are read and
// their symbols returned in order.
//
// Only symbol tables and values larger than
// buf are descended into. When the scan can
// make no more progress in buf, the returned
// Result holds a Checkpoint and a Resume to
// pass to the next call.
//
// Malformed data returns a *DecodeError.
func TopLevel(buf []byte, base, size int64, opts *TopLevelOptions) (*Result, error) {
	if opts == nil {
		opts = &TopLevelOptions{}
	}
	t := &toplevel{
		opts: opts,
		res:  &Result{Start: base},
		last: -1,
	}
	ctx := ion.ContextUnknown
	var cp *Checkpoint
	if r := opts.Resume; r != nil {
		ctx = r.Context
		cp = &r.Checkpoint
		t.inTable, t.inList, t.table = r.inTable, r.inList, r.table
		t.last = r.last
	} else if base != 0 {
		return nil, fmt.Errorf("top-level scan at %d without a checkpoint", base)
	}
	if err := t.init(buf, base, size, ctx, cp); err != nil {
		return nil, err
	}
	if base == size {
		t.res.End = size
		t.res.AtEnd = true
		return t.res, nil
	}
	bufsize := opts.BufferSize
	if bufsize <= 0 || bufsize < int64(len(buf)) {
		bufsize = int64(len(buf))
	}
	if err := t.run(int64(len(buf)), bufsize); err != nil {
		return nil, err
	}
	return t.res, nil
}

func (t *toplevel) record(off int64) {
	t.res.TopLevel = append(t.res.TopLevel, off)
	t.last = off
}

func (t *toplevel) notice(off int64, f string, args ...interface{}) {
	msg := fmt.Sprintf(f, args...)
	t.res.Notices = append(t.res.Notices, Notice{Offset: off, Msg: msg})
	t.opts.Logf.printf("offset %d: %s", off, msg)
}

// closeTable emits the pending symbol table
// once all of its fields have been read
func (t *toplevel) closeTable() {
	if t.inTable {
		t.res.Tables = append(t.res.Tables, t.table)
	}
	t.inTable = false
	t.inList = false
}

func (t *toplevel) pause() error {
	if t.rel() == 0 {
		return t.fail(fmt.Errorf("no progress within a %d-byte buffer", t.src.Size()))
	}
	cp := t.snapshot()
	t.res.Checkpoint = cp
	t.res.End = cp.Offset
	// a table in progress is emitted by
	// the call that reaches its end
	t.res.Resume = &Resume{
		Checkpoint: *cp,
		Context:    t.ctx,
		inTable:    t.inTable,
		inList:     t.inList,
		table:      t.table,
		last:       t.last,
	}
	return nil
}

// run scans a buffer of buflen bytes
func (t *toplevel) run(buflen, bufsize int64) error {
	for {
		ok, err := t.decode()
		if err != nil {
			return err
		}
		if !ok {
			return t.pause()
		}
		e := t.cur()
		rel := t.rel()
		total := e.TotalLength()
		if e.Depth() == 0 {
			t.closeTable()
			crosses := total <= bufsize && rel+total > buflen
			switch {
			case e.Abs() == t.last:
				// recorded before pausing
			case t.opts.Interval == 0, !t.seen, crosses:
				t.record(e.Abs())
			case e.Abs()-t.last > t.opts.Interval:
				t.record(e.Abs())
			}
			t.seen = true
			if crosses {
				// re-read from the start in the next buffer
				return t.pause()
			}
		}
		ok, err = t.system(e)
		if err != nil {
			return err
		}
		if !ok {
			return t.pause()
		}

		_, hasChild := e.Child()
		if total > bufsize && !hasChild {
			return t.fail(fmt.Errorf("%d-byte value is larger than the %d-byte buffer and contains no values", total, bufsize))
		}
		if hasChild && (total > bufsize || (t.inTable && e.Depth() < 2)) {
			t.descend()
			continue
		}
		if e.Depth() > 0 && rel+total > buflen {
			return t.pause()
		}
		if t.advance() {
			continue
		}
		if t.ascend() {
			if t.depth < 2 {
				t.inList = false
			}
			if t.depth == 0 {
				t.closeTable()
			}
			continue
		}
		t.closeTable()
		t.res.AtEnd = true
		t.res.End = t.size
		return t.finish()
	}
}

// system handles binary version markers
// and symbol table structure
func (t *toplevel) system(e *ion.Element) (bool, error) {
	switch e.Depth() {
	case 0:
		switch {
		case e.Type() == ion.BVMType:
			t.res.Contexts = append(t.res.Contexts, ContextChange{Offset: e.Abs(), Context: t.ctx})
			t.res.Tables = append(t.res.Tables, TableDef{Offset: e.Abs(), BVM: true})
		case e.IsLocalSymtab() || e.IsSharedSymtab():
			t.res.SymtabOffsets = append(t.res.SymtabOffsets, e.Abs())
			t.inTable = true
			t.table = TableDef{Offset: e.Abs(), Shared: e.IsSharedSymtab()}
		}
	case 1:
		if !t.inTable {
			return true, nil
		}
		f, _ := e.Field()
		t.inList = f == ion.SymbolSymbols && e.Type() == ion.ListType
		if f != ion.SymbolImports {
			return true, nil
		}
		switch {
		case e.Type() == ion.SymbolType && !e.IsNull():
			pos, _ := e.ReprPos()
			sym, ok, err := ion.ReadSymbolID(&t.src, pos, int(e.ReprLength()))
			if err != nil {
				return false, t.fail(err)
			}
			if !ok {
				return false, nil
			}
			if sym == ion.SystemSymbolTable {
				t.table.Append = true
			} else {
				t.table.Imports = true
			}
		case e.Type() == ion.ListType && !e.IsNull():
			t.table.Imports = true
		}
	case 2:
		if t.inList && e.Type() != ion.NopType {
			return t.symbol(e)
		}
	}
	return true, nil
}

// symbol reads a symbol definition
func (t *toplevel) symbol(e *ion.Element) (bool, error) {
	if e.Type() != ion.StringType || e.IsNull() {
		t.notice(e.Abs(), "symbol defined by %s", describe(e))
		t.res.Symbols = append(t.res.Symbols, SymbolDef{Offset: e.Abs()})
		return true, nil
	}
	text := ""
	if pos, ok := e.ReprPos(); ok {
		var got bool
		text, got = ion.ReadText(&t.src, pos, int(e.ReprLength()))
		if !got {
			return false, nil
		}
	}
	if text == "" {
		t.notice(e.Abs(), "zero-length symbol text")
	}
	t.res.Symbols = append(t.res.Symbols, SymbolDef{Text: text, Offset: e.Abs()})
	return true, nil
}

func describe(e *ion.Element) string {
	if e.IsNull() {
		return "null." + e.Type().String()
	}
	return e.Type().String()
}
