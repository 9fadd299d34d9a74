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
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/SnellerInc/ionscan/ion"
)

// testStream returns a stream holding a
// symbol table followed by n records
func testStream(n int) (buf []byte, symbols []string) {
	var out ion.Buffer
	st := ion.NewSymtab(0, false)
	name := st.Intern("name")
	id := st.Intern("id")
	tags := st.Intern("tags")
	nested := st.Intern("nested")
	label := st.Intern("label")
	red := st.Intern("red")
	out.WriteSymtab(st)
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			out.BeginAnnotation(label)
		}
		out.BeginStruct()
		out.BeginField(name)
		out.WriteString(fmt.Sprintf("record-%d", i))
		out.BeginField(id)
		out.WriteInt(int64(i) - 5)
		out.BeginField(tags)
		out.BeginList()
		for j := 0; j < i%4; j++ {
			out.WriteSymbol(red)
		}
		out.EndList()
		out.BeginField(nested)
		out.BeginStruct()
		out.BeginField(id)
		if i%5 == 0 {
			out.WriteTypedNull(ion.IntType)
		} else {
			out.WriteFloat64(float64(i) / 4)
		}
		out.EndStruct()
		out.EndStruct()
		if i%3 == 0 {
			out.EndAnnotation()
		}
	}
	return out.Bytes(), st.Locals()
}

// bigList returns a stream holding a
// single top-level list of n strings
func bigList(n int) []byte {
	var out ion.Buffer
	out.WriteBVM()
	out.BeginList()
	for i := 0; i < n; i++ {
		out.WriteString(strings.Repeat("x", i%17))
	}
	out.EndList()
	return out.Bytes()
}

type pass struct {
	results []*Result
}

func (p *pass) offsets() []int64 {
	var out []int64
	for _, r := range p.results {
		out = append(out, r.TopLevel...)
	}
	return out
}

func (p *pass) symbols() []string {
	var out []string
	for _, r := range p.results {
		for i := range r.Symbols {
			out = append(out, r.Symbols[i].Text)
		}
	}
	return out
}

// topLevel runs a top-level scan of
// buf in buffers of bufsize bytes
func topLevel(t *testing.T, buf []byte, bufsize, interval int64) *pass {
	t.Helper()
	size := int64(len(buf))
	opts := &TopLevelOptions{
		Interval:   interval,
		BufferSize: bufsize,
		Logf:       t.Logf,
	}
	p := new(pass)
	base := int64(0)
	for i := 0; ; i++ {
		if i > len(buf) {
			t.Fatal("no progress")
		}
		end := base + bufsize
		if end > size {
			end = size
		}
		res, err := TopLevel(buf[base:end], base, size, opts)
		if err != nil {
			t.Fatalf("buffer at %d: %s", base, err)
		}
		p.results = append(p.results, res)
		if res.AtEnd {
			return p
		}
		if res.Checkpoint == nil || res.Resume == nil {
			t.Fatalf("buffer at %d: no checkpoint", base)
		}
		if res.Checkpoint.Offset <= base {
			t.Fatalf("checkpoint at %d does not follow %d", res.Checkpoint.Offset, base)
		}
		base = res.Checkpoint.Offset
		opts.Resume = res.Resume
	}
}

func TestTopLevelBuffers(t *testing.T) {
	buf, symbols := testStream(40)
	size := int64(len(buf))
	whole := topLevel(t, buf, size, 0)
	if len(whole.results) != 1 {
		t.Fatalf("%d results for a single buffer", len(whole.results))
	}
	// BVM and symbol table precede the records
	if got := len(whole.offsets()); got != 42 {
		t.Fatalf("%d top-level offsets", got)
	}
	if got := whole.symbols(); !reflect.DeepEqual(got, symbols) {
		t.Fatalf("symbols %q, want %q", got, symbols)
	}
	for _, bufsize := range []int64{64, 100, 257, size / 2} {
		t.Run(fmt.Sprint(bufsize), func(t *testing.T) {
			p := topLevel(t, buf, bufsize, 0)
			if !reflect.DeepEqual(p.offsets(), whole.offsets()) {
				t.Fatalf("offsets %v, want %v", p.offsets(), whole.offsets())
			}
			if !reflect.DeepEqual(p.symbols(), symbols) {
				t.Fatalf("symbols %q, want %q", p.symbols(), symbols)
			}
		})
	}
}

func TestTopLevelInterval(t *testing.T) {
	buf, _ := testStream(40)
	all := topLevel(t, buf, int64(len(buf)), 0).offsets()
	sparse := topLevel(t, buf, 128, 300).offsets()
	if len(sparse) == 0 || len(sparse) >= len(all) {
		t.Fatalf("%d sparse offsets of %d", len(sparse), len(all))
	}
	j := 0
	for _, off := range sparse {
		for j < len(all) && all[j] != off {
			j++
		}
		if j == len(all) {
			t.Fatalf("offset %d is not a top-level offset", off)
		}
	}
	if sparse[0] != 0 {
		t.Fatalf("first offset %d", sparse[0])
	}
}

func TestTopLevelContexts(t *testing.T) {
	buf, _ := testStream(3)
	res, err := TopLevel(buf, 0, int64(len(buf)), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []ContextChange{{Offset: 0, Context: ion.Context1_0}}
	if !reflect.DeepEqual(res.Contexts, want) {
		t.Fatalf("contexts %+v", res.Contexts)
	}
	if len(res.Tables) != 2 || !res.Tables[0].BVM || res.Tables[1].Offset != 4 {
		t.Fatalf("tables %+v", res.Tables)
	}
	if !reflect.DeepEqual(res.SymtabOffsets, []int64{4}) {
		t.Fatalf("symbol table offsets %v", res.SymtabOffsets)
	}
	if !res.AtEnd || res.End != int64(len(buf)) {
		t.Fatalf("end %d, at end %v", res.End, res.AtEnd)
	}
}

func TestTopLevelLargeContainer(t *testing.T) {
	buf := bigList(200)
	p := topLevel(t, buf, 48, 0)
	if got := p.offsets(); !reflect.DeepEqual(got, []int64{0, 4}) {
		t.Fatalf("offsets %v", got)
	}
	stacked := 0
	for _, r := range p.results {
		if r.Checkpoint == nil {
			continue
		}
		if err := r.Checkpoint.Validate(); err != nil {
			t.Fatal(err)
		}
		if r.Checkpoint.Depth() == 1 {
			stacked++
		}
	}
	if stacked == 0 {
		t.Fatal("no checkpoints inside the list")
	}
}

func TestTopLevelAppendTable(t *testing.T) {
	var out ion.Buffer
	out.WriteBVM()
	out.BeginAnnotation(ion.SystemSymbolTable)
	out.BeginStruct()
	out.BeginField(ion.SymbolImports)
	out.WriteSymbol(ion.SystemSymbolTable)
	out.BeginField(ion.SymbolSymbols)
	out.BeginList()
	out.WriteString("a")
	out.WriteString("")
	out.WriteInt(3)
	out.EndList()
	out.EndStruct()
	out.EndAnnotation()
	buf := out.Bytes()
	res, err := TopLevel(buf, 0, int64(len(buf)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tables) != 2 || !res.Tables[1].Append || res.Tables[1].Imports {
		t.Fatalf("tables %+v", res.Tables)
	}
	if len(res.Symbols) != 3 || res.Symbols[0].Text != "a" {
		t.Fatalf("symbols %+v", res.Symbols)
	}
	if len(res.Notices) != 2 {
		t.Fatalf("notices %+v", res.Notices)
	}
}

// splitTable returns a stream whose second
// symbol table extends the first, with the
// imports field after a long symbol list
func splitTable() (buf []byte, second int64) {
	var out ion.Buffer
	out.WriteBVM()
	out.BeginAnnotation(ion.SystemSymbolTable)
	out.BeginStruct()
	out.BeginField(ion.SymbolSymbols)
	out.BeginList()
	out.WriteString("x")
	out.EndList()
	out.EndStruct()
	out.EndAnnotation()
	second = int64(out.Size())
	out.BeginAnnotation(ion.SystemSymbolTable)
	out.BeginStruct()
	out.BeginField(ion.SymbolSymbols)
	out.BeginList()
	for i := 0; i < 20; i++ {
		out.WriteString(fmt.Sprintf("s%02d", i))
	}
	out.EndList()
	out.BeginField(ion.SymbolImports)
	out.WriteSymbol(ion.SystemSymbolTable)
	out.EndStruct()
	out.EndAnnotation()
	out.WriteSymbol(10)
	return out.Bytes(), second
}

func TestTopLevelSplitTable(t *testing.T) {
	buf, second := splitTable()
	for _, bufsize := range []int64{20, 24, 32, 48, int64(len(buf))} {
		t.Run(fmt.Sprint(bufsize), func(t *testing.T) {
			p := topLevel(t, buf, bufsize, 0)
			var tables []TableDef
			for _, r := range p.results {
				tables = append(tables, r.Tables...)
			}
			if len(tables) != 3 {
				t.Fatalf("tables %+v", tables)
			}
			if got := tables[2]; got.Offset != second || !got.Append || got.Imports {
				t.Fatalf("second table %+v", got)
			}
			if got := p.symbols(); len(got) != 21 || got[0] != "x" || got[20] != "s19" {
				t.Fatalf("symbols %q", got)
			}
		})
	}
}

func TestTopLevelErrors(t *testing.T) {
	buf, _ := testStream(4)
	trailing := append(append([]byte(nil), buf...), 0x21)
	_, err := TopLevel(trailing, 0, int64(len(trailing)), nil)
	if !errors.Is(err, ErrNotAtEnd) {
		t.Fatalf("trailing bytes: %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Offset != int64(len(buf)) {
		t.Fatalf("got %v", err)
	}

	var out ion.Buffer
	out.WriteBVM()
	out.WriteString(strings.Repeat("y", 100))
	big := out.Bytes()
	_, err = TopLevel(big[:32], 0, int64(len(big)), &TopLevelOptions{BufferSize: 32})
	if err == nil || !strings.Contains(err.Error(), "contains no values") {
		t.Fatalf("oversized string: %v", err)
	}

	// no BVM
	_, err = TopLevel([]byte{0x20}, 0, 1, nil)
	if err == nil {
		t.Fatal("expected an error without a version marker")
	}
}

func TestTopLevelEmpty(t *testing.T) {
	res, err := TopLevel(nil, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.AtEnd || len(res.TopLevel) != 0 {
		t.Fatalf("got %+v", res)
	}
}
