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
	"encoding/binary"
	"math"
	"math/bits"
)

type segkind int

const (
	segstruct segkind = iota
	seglist
	segsexp
	segannotation
)

type segment struct {
	off, width int
	kind       segkind
}

// Buffer encodes binary ion.
//
// Nothing in the decoding path depends on
// Buffer; it produces the small internal records
// (checkpoints and cached indexes) that are stored
// as ion, and it is convenient for building
// streams by hand.
type Buffer struct {
	buf  []byte
	segs []segment
}

// Bytes returns the encoded bytes.
func (b *Buffer) Bytes() []byte { return b.buf }

// Size returns the number of encoded bytes.
func (b *Buffer) Size() int { return len(b.buf) }

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.segs = b.segs[:0]
}

// Set resets the buffer so that
// it appends to p.
func (b *Buffer) Set(p []byte) {
	b.Reset()
	b.buf = p
}

// UnsafeAppend appends raw bytes,
// which must be valid ion in context.
func (b *Buffer) UnsafeAppend(p []byte) {
	b.buf = append(b.buf, p...)
}

// uvsize returns the encoded size
// of value as a uvarint
func uvsize(value uint) int {
	// oring in 1 makes bits.Len
	// count one bit for zero
	return (bits.Len(value|1) + 6) / 7
}

func (b *Buffer) begin(kind segkind, desc byte, width int) {
	b.segs = append(b.segs, segment{
		off:   len(b.buf),
		width: width,
		kind:  kind,
	})
	b.buf = append(b.buf, desc)
	for i := 1; i < width; i++ {
		b.buf = append(b.buf, 0)
	}
}

func (b *Buffer) end(kind segkind, name string) {
	s := &b.segs[len(b.segs)-1]
	if s.kind != kind {
		panic(name + "() called when current segment is of a different kind")
	}
	b.segs = b.segs[:len(b.segs)-1]
	b.term(s)
}

// term writes the final length of seg,
// moving its contents if the length
// needs a different number of bytes
// than was reserved
func (b *Buffer) term(seg *segment) {
	size := len(b.buf) - (seg.off + seg.width)
	if size < 14 {
		if seg.width > 1 {
			copy(b.buf[seg.off+1:], b.buf[seg.off+seg.width:])
			b.buf = b.buf[:seg.off+1+size]
		}
		b.buf[seg.off] = byte(b.buf[seg.off]&0xf0) | byte(size)
		return
	}
	needwidth := uvsize(uint(size)) + 1
	if seg.width != needwidth {
		for s := seg.width; s < needwidth; s++ {
			b.buf = append(b.buf, 0)
		}
		n := copy(b.buf[seg.off+needwidth:], b.buf[seg.off+seg.width:])
		seg.width = needwidth
		b.buf = b.buf[:seg.off+seg.width+n]
	}
	b.buf[seg.off] = byte(b.buf[seg.off]&0xf0) | 0xe
	for i := seg.width - 1; i > 0; i-- {
		b.buf[seg.off+i] = byte(size & 0x7f)
		size >>= 7
	}
	b.buf[seg.off+seg.width-1] |= 0x80
}

// BeginStruct begins a structure.
// Fields are written with paired calls
// to BeginField and one of the Write*
// methods, followed by EndStruct.
func (b *Buffer) BeginStruct() { b.begin(segstruct, 0xd0, 2) }

// EndStruct ends a structure.
// It panics if the current segment
// is not a structure.
func (b *Buffer) EndStruct() { b.end(segstruct, "EndStruct") }

// BeginList begins a list.
func (b *Buffer) BeginList() { b.begin(seglist, 0xb0, 1) }

// EndList ends a list.
func (b *Buffer) EndList() { b.end(seglist, "EndList") }

// BeginSexp begins an s-expression.
func (b *Buffer) BeginSexp() { b.begin(segsexp, 0xc0, 1) }

// EndSexp ends an s-expression.
func (b *Buffer) EndSexp() { b.end(segsexp, "EndSexp") }

// BeginAnnotation begins an annotation wrapper
// with the given labels. Exactly one value
// should be written before EndAnnotation.
func (b *Buffer) BeginAnnotation(labels ...Symbol) {
	if len(labels) == 0 {
		panic("BeginAnnotation() without labels")
	}
	b.begin(segannotation, 0xe0, 2)
	size := 0
	for _, l := range labels {
		size += uvsize(uint(l))
	}
	b.putuv(uint(size))
	for _, l := range labels {
		b.putuv(uint(l))
	}
}

// EndAnnotation ends an annotation wrapper.
func (b *Buffer) EndAnnotation() { b.end(segannotation, "EndAnnotation") }

// get the next 'n' bytes at the end of the buffer
func (b *Buffer) grow(n int) []byte {
	off := len(b.buf)
	if cap(b.buf)-off >= n {
		b.buf = b.buf[:off+n]
	} else {
		nb := make([]byte, off+n, n+(2*off))
		copy(nb, b.buf)
		b.buf = nb
	}
	return b.buf[off:]
}

// write an integer as a uvarint
func (b *Buffer) putuv(s uint) {
	dst := b.grow(uvsize(s))
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(s & 0x7f)
		s >>= 7
	}
	dst[len(dst)-1] |= 0x80
}

// BeginField writes the name of the next
// field of a structure.
func (b *Buffer) BeginField(sym Symbol) {
	b.putuv(uint(sym))
}

// WriteBVM writes an ion 1.0 binary version marker.
func (b *Buffer) WriteBVM() {
	b.buf = append(b.buf, 0xe0, 0x01, 0x00, 0xea)
}

// WriteNop writes n bytes of NOP padding.
func (b *Buffer) WriteNop(n int) {
	switch {
	case n <= 0:
		return
	case n <= 14:
		b.buf = append(b.buf, byte(n-1))
		zero(b.grow(n - 1))
		return
	}
	// 0x0e + VarUInt length + padding;
	// the length field takes uvsize(rest) bytes
	rest := n - 2
	for 1+uvsize(uint(rest))+rest != n {
		rest--
	}
	b.buf = append(b.buf, 0x0e)
	b.putuv(uint(rest))
	zero(b.grow(rest))
}

func zero(p []byte) {
	for i := range p {
		p[i] = 0
	}
}

// WriteBool writes a bool.
func (b *Buffer) WriteBool(n bool) {
	bt := byte(0x10)
	if n {
		bt++
	}
	b.buf = append(b.buf, bt)
}

// WriteNull writes an untyped null.
func (b *Buffer) WriteNull() {
	b.buf = append(b.buf, 0x0f)
}

// WriteTypedNull writes a null of type t.
func (b *Buffer) WriteTypedNull(t Type) {
	b.buf = append(b.buf, byte(t)<<4|0x0f)
}

func (b *Buffer) header(tag byte, size int) {
	if size < 14 {
		b.buf = append(b.buf, tag|byte(size))
	} else {
		b.buf = append(b.buf, tag|0x0e)
		b.putuv(uint(size))
	}
}

// WriteString writes a string.
func (b *Buffer) WriteString(s string) {
	b.header(0x80, len(s))
	copy(b.grow(len(s)), s)
}

// WriteInt writes a signed integer.
func (b *Buffer) WriteInt(i int64) {
	mag := uint64(i)
	pre := byte(0x20)
	if i < 0 {
		mag = uint64(-i)
		pre = 0x30
	}
	b.writeint(mag, pre)
}

func (b *Buffer) writeint(mag uint64, pre byte) {
	// size of integer in bytes
	size := (bits.Len64(mag) + 7) >> 3
	b.buf = append(b.buf, pre|byte(size))
	mag = bits.ReverseBytes64(mag)
	mag >>= (8 - size) * 8
	for size != 0 {
		b.buf = append(b.buf, byte(mag))
		mag >>= 8
		size--
	}
}

// WriteSymbol writes a symbol value.
func (b *Buffer) WriteSymbol(s Symbol) {
	b.writeint(uint64(s), 0x70)
}

// WriteUint writes an unsigned integer.
func (b *Buffer) WriteUint(u uint64) {
	b.writeint(u, 0x20)
}

// WriteFloat64 writes an 8-byte float.
func (b *Buffer) WriteFloat64(f float64) {
	if f == 0.0 && !math.Signbit(f) {
		b.buf = append(b.buf, 0x40)
		return
	}
	dst := b.grow(9)
	dst[0] = 0x48
	binary.BigEndian.PutUint64(dst[1:], math.Float64bits(f))
}

// WriteFloat32 writes a 4-byte float.
func (b *Buffer) WriteFloat32(f float32) {
	dst := b.grow(5)
	dst[0] = 0x44
	binary.BigEndian.PutUint32(dst[1:], math.Float32bits(f))
}

// WriteBlob writes a blob.
func (b *Buffer) WriteBlob(p []byte) {
	b.header(0xa0, len(p))
	copy(b.grow(len(p)), p)
}

// WriteClob writes a clob.
func (b *Buffer) WriteClob(p []byte) {
	b.header(0x90, len(p))
	copy(b.grow(len(p)), p)
}

// WriteSymtab writes a binary version marker
// followed by a local symbol table that defines
// the local symbols of st, so that the symbol
// IDs of st are valid in the values that follow.
func (b *Buffer) WriteSymtab(st *Symtab) {
	b.WriteBVM()
	b.BeginAnnotation(SystemSymbolTable)
	b.BeginStruct()
	b.BeginField(SymbolSymbols)
	b.BeginList()
	for _, x := range st.Locals() {
		b.WriteString(x)
	}
	b.EndList()
	b.EndStruct()
	b.EndAnnotation()
}
