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
	"fmt"
	"strings"
)

// Element is a decoded view of the value
// that a Ref points to.
//
// Elements are meant to be reused: a decoder
// keeps one Element per depth and calls Reset
// to point it at a new position. Decoding does
// not allocate except to grow the annotation list.
type Element struct {
	ref     Ref
	decoded bool

	desc      Descriptor // the value, after any annotations
	wrap      Descriptor // the annotation wrapper, if annotated
	annotated bool

	field    Symbol
	fieldLen int
	annots   []Symbol

	system bool
	local  bool
	shared bool

	total    int64
	child    Ref
	hasChild bool
}

// Reset points e at r and discards any
// previously decoded state. Until Decode
// succeeds, only the Ref-derived accessors
// (Ref, Abs, Depth, Sibling, End) are meaningful.
func (e *Element) Reset(r Ref) {
	annots := e.annots[:0]
	*e = Element{ref: r, annots: annots}
}

func (e *Element) clear() {
	e.Reset(e.ref)
}

func symbolOf(p Primitive, off int64) (Symbol, error) {
	u, ok := p.Mag.Uint64()
	if !ok || u > maxSymbol {
		return 0, malformed(off, "symbol ID %s out of range", p.Mag)
	}
	return Symbol(u), nil
}

// Decode decodes the value at e.Ref() from src,
// which must hold the buffer that the Ref's Base
// refers to.
//
// If the buffer or the bytes remaining at the
// current depth do not hold the whole header,
// or the value does not fit in the bytes remaining
// at its depth, Decode returns false, leaves the
// position of src where it was when the value
// began, and e may be decoded again later.
// Malformed input returns a *FormatError.
func (e *Element) Decode(src *Source, ctx Context) (bool, error) {
	e.clear()
	ref := e.ref
	ref.Next = 0
	abs := ref.Abs()
	if ref.Rel < 0 {
		return false, fmt.Errorf("ion: value at %d precedes the buffer at %d", abs, ref.Base)
	}
	if ref.Base != src.Base() {
		return false, fmt.Errorf("ion: ref based at %d used with buffer at %d", ref.Base, src.Base())
	}
	if ref.Rel >= int64(src.Size()) {
		return false, nil
	}
	start := int(ref.Rel)
	pos := start
	short := func() (bool, error) {
		src.SetPos(start)
		e.clear()
		return false, nil
	}
	src.SetPos(pos)
	if ref.inStruct() {
		p, ok := src.ReadVarUInt()
		if !ok {
			return short()
		}
		sym, err := symbolOf(p, abs)
		if err != nil {
			return false, err
		}
		e.field = sym
		e.fieldLen = p.N
		pos += p.N
	}
	d, ok, err := ReadDescriptor(src, pos, ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return short()
	}
	outer := d
	if d.Type == AnnotationType {
		e.annotated = true
		e.wrap = d
		if d.AnnotLength == 0 {
			return false, malformed(abs, "annotation wrapper without annotations")
		}
		left := d.AnnotLength
		for left > 0 {
			p, ok := src.ReadVarUInt()
			if !ok {
				return short()
			}
			sym, err := symbolOf(p, abs)
			if err != nil {
				return false, err
			}
			e.annots = append(e.annots, sym)
			left -= int64(p.N)
		}
		if left < 0 {
			return false, malformed(abs, "annotation symbols overrun the annotation length")
		}
		d, ok, err = ReadDescriptor(src, src.Pos(), ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return short()
		}
		switch d.Type {
		case AnnotationType, NopType:
			return false, malformed(abs, "annotation wrapper around %s", d.Type)
		}
		want := outer.Length - int64(outer.LenBytes+outer.AnnotLenBytes) - outer.AnnotLength
		if 1+d.Length != want {
			return false, malformed(abs, "annotated value of length %d in a wrapper with room for %d", 1+d.Length, want)
		}
		switch e.annots[0] {
		case SystemSymbolTable, SharedSymbolTable:
			if ref.Depth != 0 {
				return false, malformed(abs, "symbol table annotation at depth %d", ref.Depth)
			}
			if d.Type != StructType {
				return false, malformed(abs, "symbol table annotation on a %s", d.Type)
			}
			e.system = true
			e.local = e.annots[0] == SystemSymbolTable
			e.shared = !e.local
		}
	}
	e.desc = d
	switch d.Type {
	case BVMType:
		if ref.Depth != 0 {
			return false, malformed(abs, "binary version marker at depth %d", ref.Depth)
		}
		e.system = true
	case NopType:
		e.system = true
	case StructType:
		if d.Sorted && d.ReprLength() == 0 {
			return false, malformed(abs, "sorted struct with zero length")
		}
	}
	e.total = 1 + int64(e.fieldLen) + outer.Length
	if e.total > ref.Remaining {
		return short()
	}
	if d.Type.IsContainer() && !d.Null && d.ReprLength() != 0 {
		e.hasChild = true
		e.child = Ref{
			Base:          ref.Base,
			Rel:           int64(e.reprPos()),
			Depth:         ref.Depth + 1,
			Remaining:     d.ReprLength(),
			Container:     abs,
			ContainerType: d.Type,
		}
	}
	if ref.Remaining > e.total {
		ref.Next = abs + e.total
	}
	e.ref = ref
	e.decoded = true
	return true, nil
}

// reprPos is the relative position of the
// representation bytes
func (e *Element) reprPos() int {
	pos := int(e.ref.Rel) + e.fieldLen
	if e.annotated {
		pos += 1 + e.wrap.LenBytes + e.wrap.AnnotLenBytes + int(e.wrap.AnnotLength)
	}
	return pos + 1 + e.desc.LenBytes
}

// Ref returns the position of e. After a
// successful Decode, Ref().Next is set when
// a sibling follows.
func (e *Element) Ref() Ref { return e.ref }

// Abs returns the absolute offset of e.
func (e *Element) Abs() int64 { return e.ref.Abs() }

// Depth returns the nesting depth of e.
func (e *Element) Depth() int { return e.ref.Depth }

// Decoded returns whether e holds a decoded value.
func (e *Element) Decoded() bool { return e.decoded }

// Type returns the type of the value,
// looking through any annotations.
func (e *Element) Type() Type { return e.desc.Type }

// IsNull returns whether the value is a typed null.
func (e *Element) IsNull() bool { return e.desc.Null }

// Bool returns the value of a bool.
func (e *Element) Bool() bool { return e.desc.Bool }

// Descriptor returns the descriptor of the
// value, after any annotation wrapper.
func (e *Element) Descriptor() Descriptor { return e.desc }

// Wrapper returns the descriptor of the
// annotation wrapper, if there is one.
func (e *Element) Wrapper() (Descriptor, bool) { return e.wrap, e.annotated }

// Field returns the field name symbol of a
// struct field.
func (e *Element) Field() (Symbol, bool) { return e.field, e.fieldLen > 0 }

// FieldLen returns the size of the field name VarUInt.
func (e *Element) FieldLen() int { return e.fieldLen }

// Annotations returns the annotation symbols.
// The returned slice is reused by the next
// call to Reset or Decode.
func (e *Element) Annotations() []Symbol { return e.annots }

// IsSystem returns whether e is a binary
// version marker, NOP padding, or a symbol
// table definition.
func (e *Element) IsSystem() bool { return e.system }

// IsLocalSymtab returns whether e is a
// $ion_symbol_table definition.
func (e *Element) IsLocalSymtab() bool { return e.local }

// IsSharedSymtab returns whether e is a
// $ion_shared_symbol_table definition.
func (e *Element) IsSharedSymtab() bool { return e.shared }

// IsSorted returns whether e is a struct
// with sorted fields.
func (e *Element) IsSorted() bool { return e.desc.Sorted }

// Version returns the major and minor
// version of a binary version marker.
func (e *Element) Version() (major, minor byte) { return e.desc.Major, e.desc.Minor }

// TotalLength is the number of bytes spanned
// by e, including the field name and any
// annotation wrapper.
func (e *Element) TotalLength() int64 { return e.total }

// Length is the number of bytes after the
// type/length byte, including any annotation
// wrapper, but not the field name.
func (e *Element) Length() int64 {
	if e.annotated {
		return e.wrap.Length
	}
	return e.desc.Length
}

// InnerLength is the number of bytes after the
// type/length byte of the value itself.
func (e *Element) InnerLength() int64 { return e.desc.Length }

// ReprLength is the number of representation bytes.
func (e *Element) ReprLength() int64 { return e.desc.ReprLength() }

// ReprPos returns the relative position of the
// representation bytes. It returns false for
// system values, nulls and empty representations.
func (e *Element) ReprPos() (int, bool) {
	switch {
	case !e.decoded, e.desc.Null, e.desc.Type == BVMType,
		e.desc.Type == NopType, e.desc.ReprLength() == 0:
		return 0, false
	}
	return e.reprPos(), true
}

// Layout is the position of each part of
// an encoded value, relative to its buffer.
// Unused parts have zero length.
type Layout struct {
	Start      int // field name, if any
	Wrapper    int // annotation wrapper type/length byte
	WrapperLen int // from Wrapper up to the value's type/length byte
	Value      int // value type/length byte
	Repr       int // representation
	End        int
}

// Layout returns the byte layout of e.
func (e *Element) Layout() Layout {
	l := Layout{Start: int(e.ref.Rel)}
	pos := l.Start + e.fieldLen
	l.Wrapper = pos
	if e.annotated {
		l.WrapperLen = 1 + e.wrap.LenBytes + e.wrap.AnnotLenBytes + int(e.wrap.AnnotLength)
	}
	l.Value = pos + l.WrapperLen
	l.Repr = l.Value + 1 + e.desc.LenBytes
	if e.desc.Type == BVMType {
		l.Repr = l.Value + 1
	}
	l.End = l.Start + int(e.total)
	return l
}

// Child returns the Ref of the first
// value in a non-empty container.
func (e *Element) Child() (Ref, bool) { return e.child, e.hasChild }

// Sibling returns the Ref of the value
// that follows e at the same depth.
func (e *Element) Sibling() (Ref, bool) {
	r := e.ref
	if r.Next == 0 {
		return Ref{}, false
	}
	return Ref{
		Base:          r.Base,
		Rel:           r.Next - r.Base,
		Depth:         r.Depth,
		Remaining:     r.Remaining - (r.Next - r.Abs()),
		Container:     r.Container,
		ContainerType: r.ContainerType,
	}, true
}

// End returns the absolute offset just past e.
// For an element that has not been decoded
// this is derived from its Ref.
func (e *Element) End() int64 {
	if e.decoded {
		return e.Abs() + e.total
	}
	if e.ref.Next != 0 {
		return e.ref.Next
	}
	return e.Abs() + e.ref.Remaining
}

func (e *Element) String() string {
	if !e.decoded {
		return fmt.Sprintf("<undecoded %s>", e.ref)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at %d (depth %d, %d bytes", e.desc.Type, e.Abs(), e.ref.Depth, e.total)
	if e.desc.Null {
		sb.WriteString(", null")
	}
	if e.fieldLen > 0 {
		fmt.Fprintf(&sb, ", field $%d", e.field)
	}
	for i, a := range e.annots {
		if i == 0 {
			sb.WriteString(", annotations")
		}
		fmt.Fprintf(&sb, " $%d", a)
	}
	if e.system {
		sb.WriteString(", system")
	}
	sb.WriteString(")")
	return sb.String()
}
