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
)

// Type is one of the ion datatypes.
//
// The values of the first sixteen types
// match the high nibble of the type/length
// byte that introduces them. NopType and
// BVMType share the nibbles of NullType and
// AnnotationType, respectively, and are
// distinguished by the low nibble.
type Type byte

const (
	NullType Type = iota
	BoolType
	UintType // unsigned integer
	IntType  // signed integer; always negative
	FloatType
	DecimalType
	TimestampType
	SymbolType
	StringType
	ClobType
	BlobType
	ListType
	SexpType
	StructType
	AnnotationType
	ReservedType
	NopType // padding
	BVMType // binary version marker

	// NumTypes is the number of distinct Type values.
	NumTypes = int(BVMType) + 1
)

func (t Type) String() string {
	switch t {
	case NullType:
		return "null"
	case BoolType:
		return "bool"
	case UintType:
		return "uint"
	case IntType:
		return "int"
	case FloatType:
		return "float"
	case DecimalType:
		return "decimal"
	case TimestampType:
		return "timestamp"
	case SymbolType:
		return "symbol"
	case StringType:
		return "string"
	case ClobType:
		return "clob"
	case BlobType:
		return "blob"
	case ListType:
		return "list"
	case SexpType:
		return "sexp"
	case StructType:
		return "struct"
	case AnnotationType:
		return "annotation"
	case ReservedType:
		return "reserved"
	case NopType:
		return "nop"
	case BVMType:
		return "bvm"
	default:
		return "invalid"
	}
}

// IsContainer returns whether values of
// type t contain other values.
func (t Type) IsContainer() bool {
	return t == ListType || t == SexpType || t == StructType
}

// Context is the encoding context that
// applies to a position in a stream.
type Context byte

const (
	// ContextUnknown means no binary version marker
	// has been seen yet; the next value must be one.
	ContextUnknown Context = iota
	// Context1_0 is the ion 1.0 binary encoding.
	Context1_0
)

func (c Context) String() string {
	switch c {
	case ContextUnknown:
		return "unknown"
	case Context1_0:
		return "1_0"
	default:
		return "invalid"
	}
}

// ParseContext is the inverse of Context.String.
func ParseContext(s string) (Context, bool) {
	switch s {
	case "unknown":
		return ContextUnknown, true
	case "1_0":
		return Context1_0, true
	}
	return ContextUnknown, false
}

func (c Context) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Context) UnmarshalText(b []byte) error {
	v, ok := ParseContext(string(b))
	if !ok {
		return fmt.Errorf("ion: unknown context %q", b)
	}
	*c = v
	return nil
}
