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

// Descriptor is the decoded meaning of a
// type/length byte and the length and
// annotation-length fields that follow it.
type Descriptor struct {
	Type Type
	// Length is the number of bytes that
	// follow the type/length byte, including
	// the length VarUInt when one is present.
	Length int64
	// LenBytes is the size of the length
	// VarUInt, or zero if the length was
	// encoded in the type/length byte.
	LenBytes int
	Null     bool
	Bool     bool
	Sorted   bool
	// AnnotLength and AnnotLenBytes are
	// set for AnnotationType: the length of the
	// annotation symbol list and the size of
	// the VarUInt that encodes it.
	AnnotLength   int64
	AnnotLenBytes int
	// Major and Minor are set for BVMType.
	Major, Minor byte
}

// ReprLength returns the number of
// representation bytes, which excludes the
// length VarUInt.
func (d *Descriptor) ReprLength() int64 {
	return d.Length - int64(d.LenBytes)
}

// descriptor templates are indexed by the
// type/length byte
type template struct {
	typ     Type
	length  int8 // 0-13, or varlen
	null    bool
	bool    bool
	sorted  bool
	invalid bool
}

const varlen = 14

var descriptors [256]template

func init() {
	for i := range descriptors {
		descriptors[i] = classify(byte(i))
	}
}

func classify(b byte) template {
	t, l := Type(b>>4), int8(b&0xf)
	if l == 0xf {
		// typed nulls; 0x0f is the plain null
		switch t {
		case AnnotationType, ReservedType:
			return template{invalid: true}
		}
		return template{typ: t, null: true}
	}
	switch t {
	case NullType:
		return template{typ: NopType, length: l}
	case BoolType:
		if l > 1 {
			return template{invalid: true}
		}
		return template{typ: BoolType, bool: l == 1}
	case IntType:
		if l == 0 {
			// negative zero
			return template{invalid: true}
		}
	case FloatType:
		if l != 0 && l != 4 && l != 8 {
			return template{invalid: true}
		}
	case TimestampType:
		if l < 2 {
			return template{invalid: true}
		}
	case StructType:
		if l == 1 {
			return template{typ: StructType, length: varlen, sorted: true}
		}
	case AnnotationType:
		switch l {
		case 0:
			return template{typ: BVMType, length: 3}
		case 1, 2:
			return template{invalid: true}
		}
	case ReservedType:
		return template{invalid: true}
	}
	return template{typ: t, length: l}
}

// ReadDescriptor decodes the type/length byte at
// relative position pos along with any length
// or annotation-length VarUInt that follows it.
// On return the position of src is just past the
// decoded fields.
//
// If src ends before the descriptor is complete,
// the position is restored to pos and ok is false.
// Reserved type/length bytes, and binary version
// markers that are malformed or of an unsupported
// version, produce a *FormatError.
//
// In ContextUnknown the only acceptable value
// is a binary version marker.
func ReadDescriptor(src *Source, pos int, ctx Context) (d Descriptor, ok bool, err error) {
	src.SetPos(pos)
	b, ok := src.Next()
	if !ok {
		return d, false, nil
	}
	off := src.Base() + int64(pos)
	t := &descriptors[b]
	if t.invalid {
		return d, false, malformed(off, "invalid type/length byte %#02x", b)
	}
	if ctx == ContextUnknown && t.typ != BVMType {
		return d, false, malformed(off, "no binary version marker found (type/length byte %#02x)", b)
	}
	d.Type = t.typ
	d.Null = t.null
	d.Bool = t.bool
	d.Sorted = t.sorted
	switch {
	case t.typ == BVMType:
		var tail [3]byte
		for i := range tail {
			tail[i], ok = src.Next()
			if !ok {
				src.SetPos(pos)
				return Descriptor{}, false, nil
			}
		}
		if tail[2] != 0xea {
			return d, false, malformed(off, "malformed binary version marker")
		}
		if tail[0] != 1 || tail[1] != 0 {
			return d, false, malformed(off, "unsupported ion version %d.%d", tail[0], tail[1])
		}
		d.Major, d.Minor = tail[0], tail[1]
		d.Length = 3
		return d, true, nil
	case t.length == varlen:
		p, ok := src.ReadVarUInt()
		if !ok {
			src.SetPos(pos)
			return Descriptor{}, false, nil
		}
		n, ok := p.Mag.Int64()
		if !ok || n > 1<<62 {
			return d, false, malformed(off, "length %s out of range", p.Mag)
		}
		d.LenBytes = p.N
		d.Length = int64(p.N) + n
	default:
		d.Length = int64(t.length)
	}
	if t.typ == AnnotationType {
		p, ok := src.ReadVarUInt()
		if !ok {
			src.SetPos(pos)
			return Descriptor{}, false, nil
		}
		n, ok := p.Mag.Int64()
		if !ok || n > 1<<62 {
			return d, false, malformed(off, "annotation length %s out of range", p.Mag)
		}
		d.AnnotLength = n
		d.AnnotLenBytes = p.N
	}
	return d, true, nil
}
