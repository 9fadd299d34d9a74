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
	"fmt"
)

// The functions in this file decode small,
// complete ion records held in memory,
// such as the ones produced with Buffer.
// Each accepts a buffer that begins with a
// value and returns the bytes that follow it.

var errTruncated = errors.New("ion: truncated value")

// TypeError is returned when a value
// has an unexpected type.
type TypeError struct {
	Wanted, Found Type
	Func          string
}

func (t *TypeError) Error() string {
	return fmt.Sprintf("ion.%s: found type %s, wanted %s", t.Func, t.Found, t.Wanted)
}

// first decodes the value that begins buf
func first(src *Source, e *Element, buf []byte) error {
	src.Reset(buf, 0)
	e.Reset(TopRef(0, int64(len(buf))))
	ok, err := e.Decode(src, Context1_0)
	if err != nil {
		return err
	}
	if !ok {
		return errTruncated
	}
	return nil
}

// TypeOf returns the type of the value that
// begins buf, looking through annotations.
func TypeOf(buf []byte) (Type, error) {
	var src Source
	var e Element
	if err := first(&src, &e, buf); err != nil {
		return ReservedType, err
	}
	return e.Type(), nil
}

// SizeOf returns the encoded size of the
// value that begins buf.
func SizeOf(buf []byte) (int, error) {
	var src Source
	var e Element
	if err := first(&src, &e, buf); err != nil {
		return 0, err
	}
	return int(e.TotalLength()), nil
}

func scalar(buf []byte, want Type, fn string) (Scalar, []byte, error) {
	var src Source
	var e Element
	if err := first(&src, &e, buf); err != nil {
		return Scalar{}, buf, err
	}
	rest := buf[e.TotalLength():]
	t := e.Type()
	if t == UintType && want == IntType {
		t = IntType
	}
	if t != want || e.IsNull() {
		return Scalar{}, buf, &TypeError{Wanted: want, Found: e.Type(), Func: fn}
	}
	s, ok, err := ReadScalar(&src, &e)
	if err != nil {
		return s, buf, err
	}
	if !ok {
		return s, buf, errTruncated
	}
	return s, rest, nil
}

// ReadInt reads a signed integer that fits in an int64.
func ReadInt(buf []byte) (int64, []byte, error) {
	s, rest, err := scalar(buf, IntType, "ReadInt")
	if err != nil {
		return 0, buf, err
	}
	i, ok := s.Int.Int64()
	if !ok {
		return 0, buf, fmt.Errorf("ion.ReadInt: %s overflows int64", s.Int)
	}
	return i, rest, nil
}

// ReadString reads a string.
func ReadString(buf []byte) (string, []byte, error) {
	s, rest, err := scalar(buf, StringType, "ReadString")
	return s.Text, rest, err
}

// ReadSymbol reads a symbol value.
func ReadSymbol(buf []byte) (Symbol, []byte, error) {
	s, rest, err := scalar(buf, SymbolType, "ReadSymbol")
	return s.Symbol, rest, err
}

// ReadBool reads a bool.
func ReadBool(buf []byte) (bool, []byte, error) {
	s, rest, err := scalar(buf, BoolType, "ReadBool")
	return s.Bool, rest, err
}

// each calls fn on every child of the
// container that begins buf
func each(buf []byte, want Type, fn string, visit func(field Symbol, val []byte) error) ([]byte, error) {
	var src Source
	var e, c Element
	if err := first(&src, &e, buf); err != nil {
		return buf, err
	}
	if e.Type() != want || e.IsNull() {
		return buf, &TypeError{Wanted: want, Found: e.Type(), Func: fn}
	}
	rest := buf[e.TotalLength():]
	ref, ok := e.Child()
	for ok {
		c.Reset(ref)
		decoded, err := c.Decode(&src, Context1_0)
		if err != nil {
			return buf, err
		}
		if !decoded {
			return buf, errTruncated
		}
		if c.Type() != NopType {
			l := c.Layout()
			sym, _ := c.Field()
			if err := visit(sym, buf[l.Wrapper:l.End]); err != nil {
				return buf, err
			}
		}
		ref, ok = c.Sibling()
	}
	return rest, nil
}

// UnpackStruct calls fn for each field of the
// struct that begins buf. The value passed to
// fn excludes the field name.
func UnpackStruct(buf []byte, fn func(field Symbol, val []byte) error) ([]byte, error) {
	return each(buf, StructType, "UnpackStruct", fn)
}

// UnpackList calls fn for each item in the
// list that begins buf.
func UnpackList(buf []byte, fn func(item []byte) error) ([]byte, error) {
	return each(buf, ListType, "UnpackList", func(_ Symbol, val []byte) error {
		return fn(val)
	})
}

// ReadSymtab reads the binary version marker and
// local symbol table written by Buffer.WriteSymtab
// and returns the table and the bytes that follow.
func ReadSymtab(buf []byte) (*Symtab, []byte, error) {
	var src Source
	var e Element
	src.Reset(buf, 0)
	e.Reset(TopRef(0, int64(len(buf))))
	ok, err := e.Decode(&src, ContextUnknown)
	if err != nil {
		return nil, buf, err
	}
	if !ok {
		return nil, buf, errTruncated
	}
	body := buf[e.TotalLength():]
	if err := first(&src, &e, body); err != nil {
		return nil, buf, err
	}
	if !e.IsLocalSymtab() {
		return nil, buf, fmt.Errorf("ion.ReadSymtab: found %s, wanted a symbol table", &e)
	}
	st := NewSymtab(0, false)
	_, err = UnpackStruct(body, func(field Symbol, val []byte) error {
		if field != SymbolSymbols {
			return nil
		}
		_, err := UnpackList(val, func(item []byte) error {
			s, _, err := ReadString(item)
			if err != nil {
				return err
			}
			st.Add(s, 0)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, buf, err
	}
	return st, body[e.TotalLength():], nil
}
