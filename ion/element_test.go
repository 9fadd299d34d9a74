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

package ion

import (
	"errors"
	"testing"
)

func decodeTop(t *testing.T, buf []byte, ctx Context) (*Source, *Element) {
	t.Helper()
	src := NewSource(buf, 0)
	e := new(Element)
	e.Reset(TopRef(0, int64(len(buf))))
	ok, err := e.Decode(src, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("short decode")
	}
	return src, e
}

func TestEmptyStruct(t *testing.T) {
	_, e := decodeTop(t, []byte{0xd0}, Context1_0)
	if e.Type() != StructType || e.Length() != 0 || e.IsNull() {
		t.Fatalf("got %s", e)
	}
	if _, ok := e.Child(); ok {
		t.Fatal("unexpected child")
	}
	if _, ok := e.Sibling(); ok {
		t.Fatal("unexpected sibling")
	}
}

func TestPositiveInt(t *testing.T) {
	src, e := decodeTop(t, []byte{0x21, 0xff}, Context1_0)
	if e.Type() != UintType || e.TotalLength() != 2 {
		t.Fatalf("got %s", e)
	}
	s, ok, err := ReadScalar(src, e)
	if err != nil || !ok {
		t.Fatal(ok, err)
	}
	if u, _ := s.Int.Mag.Uint64(); u != 255 {
		t.Fatalf("got %d", u)
	}
}

func TestAnnotatedString(t *testing.T) {
	src, e := decodeTop(t, []byte{0xe4, 0x81, 0x81, 0x81, 0x30}, Context1_0)
	if e.Type() != StringType {
		t.Fatalf("got %s", e)
	}
	if a := e.Annotations(); len(a) != 1 || a[0] != 1 {
		t.Fatalf("annotations %v", a)
	}
	if e.TotalLength() != 5 {
		t.Fatalf("total length %d", e.TotalLength())
	}
	s, ok, err := ReadScalar(src, e)
	if err != nil || !ok {
		t.Fatal(ok, err)
	}
	if s.Text != "0" {
		t.Fatalf("got %q", s.Text)
	}
}

func TestElementShort(t *testing.T) {
	// truncated headers are absent and leave the
	// position where the value began
	heads := [][]byte{
		{},
		{0x8e},             // missing length
		{0xee, 0x82},       // missing annotation length
		{0xe4, 0x81, 0x81}, // missing wrapped value
	}
	for i, buf := range heads {
		src := NewSource(append([]byte{0x20}, buf...), 0)
		var e Element
		e.Reset(Ref{Rel: 1, Remaining: 100, Container: NoContainer})
		ok, err := e.Decode(src, Context1_0)
		if ok || err != nil {
			t.Fatalf("case %d: ok=%v err=%v", i, ok, err)
		}
		if src.Pos() != 1 {
			t.Fatalf("case %d: position %d", i, src.Pos())
		}
	}

	full := []byte{0xd3, 0x84, 0x21, 0x01}
	// the value claims more than remains at its depth
	src := NewSource(full, 0)
	var e Element
	e.Reset(TopRef(0, 3))
	ok, err := e.Decode(src, Context1_0)
	if ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	// ... and decodes once the bytes are there
	e.Reset(TopRef(0, 4))
	ok, err = e.Decode(src, Context1_0)
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	child, ok := e.Child()
	if !ok {
		t.Fatal("no child")
	}
	if child.Remaining != 3 || child.Depth != 1 || child.Container != 0 {
		t.Fatalf("child %s", child)
	}
	// field name present, value missing
	src = NewSource(full[:2], 0)
	var c Element
	c.Reset(child)
	ok, err = c.Decode(src, Context1_0)
	if ok || err != nil || src.Pos() != int(child.Rel) {
		t.Fatalf("ok=%v err=%v pos=%d", ok, err, src.Pos())
	}
	src = NewSource(full, 0)
	ok, err = c.Decode(src, Context1_0)
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if f, ok := c.Field(); !ok || f != SymbolName {
		t.Fatalf("field %d", f)
	}
	if _, ok := c.Sibling(); ok {
		t.Fatal("unexpected sibling")
	}
}

func TestElementMalformed(t *testing.T) {
	tcs := []struct {
		name  string
		buf   []byte
		depth int
	}{
		{"annotation of annotation", []byte{0xe7, 0x81, 0x81, 0xe3, 0x81, 0x81, 0x20}, 0},
		{"annotation of nop", []byte{0xe3, 0x81, 0x81, 0x00}, 0},
		{"empty annotation list", []byte{0xe3, 0x80, 0x20, 0x20}, 0},
		{"sorted empty struct", []byte{0xd1, 0x80}, 0},
		{"bvm below top level", []byte{0xe0, 0x01, 0x00, 0xea}, 1},
		{"symbol table below top level", []byte{0xe3, 0x81, 0x83, 0xd0}, 1},
		{"symbol table on a list", []byte{0xe3, 0x81, 0x83, 0xb0}, 0},
		{"shared symbol table on a string", []byte{0xe3, 0x81, 0x89, 0x80}, 0},
		{"annotation length mismatch", []byte{0xe5, 0x81, 0x81, 0x21, 0x01, 0x00}, 0},
		{"reserved byte", []byte{0xf3}, 0},
	}
	for i := range tcs {
		t.Run(tcs[i].name, func(t *testing.T) {
			buf := tcs[i].buf
			ref := TopRef(0, int64(len(buf)))
			if tcs[i].depth > 0 {
				ref.Depth = tcs[i].depth
				ref.Container = 0
				ref.ContainerType = ListType
				buf = append([]byte{0xbe, 0x80 | byte(len(buf))}, buf...)
				ref.Rel = 2
			}
			src := NewSource(buf, 0)
			var e Element
			e.Reset(ref)
			_, err := e.Decode(src, Context1_0)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestSymbolTableElement(t *testing.T) {
	var b Buffer
	st := NewSymtab(0, false)
	st.Intern("foo")
	b.WriteSymtab(st)
	buf := b.Bytes()
	_, e := decodeTop(t, buf, ContextUnknown)
	if e.Type() != BVMType || !e.IsSystem() {
		t.Fatalf("got %s", e)
	}
	next, ok := e.Sibling()
	if !ok {
		t.Fatal("no sibling")
	}
	src := NewSource(buf, 0)
	e.Reset(next)
	ok, err := e.Decode(src, Context1_0)
	if !ok || err != nil {
		t.Fatal(ok, err)
	}
	if !e.IsLocalSymtab() || !e.IsSystem() || e.Type() != StructType {
		t.Fatalf("got %s", e)
	}
	if e.End() != int64(len(buf)) {
		t.Fatalf("end %d of %d", e.End(), len(buf))
	}
}

// walk visits every value in buf in pre-order
// and checks that the children of every container
// cover its representation exactly
func walk(t *testing.T, buf []byte) int {
	src := NewSource(buf, 0)
	var stack [16]Element
	count := 0
	ctx := ContextUnknown
	var visit func(ref Ref, end int64)
	visit = func(ref Ref, end int64) {
		pos := ref.Abs()
		for {
			e := &stack[ref.Depth]
			e.Reset(ref)
			ok, err := e.Decode(src, ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Fatalf("short decode at %d", ref.Abs())
			}
			ctx = Context1_0
			count++
			if e.Abs() != pos {
				t.Fatalf("gap or overlap at %d (expected %d)", e.Abs(), pos)
			}
			pos = e.End()
			if child, ok := e.Child(); ok {
				visit(child, e.End())
			}
			next, ok := e.Sibling()
			if !ok {
				break
			}
			if next.Abs() != pos {
				t.Fatalf("sibling at %d, previous ended at %d", next.Abs(), pos)
			}
			ref = next
		}
		if pos != end {
			t.Fatalf("children end at %d, container at %d", pos, end)
		}
	}
	visit(TopRef(0, int64(len(buf))), int64(len(buf)))
	return count
}

func TestCoverage(t *testing.T) {
	var b Buffer
	st := NewSymtab(0, false)
	name := st.Intern("name")
	tags := st.Intern("tags")
	b.WriteSymtab(st)
	for i := 0; i < 20; i++ {
		b.BeginStruct()
		b.BeginField(name)
		b.WriteString("a rather long string that needs a length field")
		b.BeginField(tags)
		b.BeginAnnotation(tags, name)
		b.BeginList()
		for j := 0; j < i; j++ {
			b.WriteInt(int64(-j * 1000))
			b.WriteNop(j % 3)
		}
		b.BeginSexp()
		b.EndSexp()
		b.EndList()
		b.EndAnnotation()
		b.BeginField(name)
		b.WriteTypedNull(StructType)
		b.EndStruct()
		b.WriteNop(20)
	}
	n := walk(t, b.Bytes())
	if n < 100 {
		t.Fatalf("visited only %d values", n)
	}
}
