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
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// The Read* functions below decode the n
// representation bytes that begin at relative
// position pos. When src does not hold all of
// them they return ok == false and leave the
// position of src at pos.

// ReadPosInt decodes a positive integer.
func ReadPosInt(src *Source, pos, n int) (Primitive, bool) {
	src.SetPos(pos)
	return src.ReadUInt(n)
}

// ReadNegInt decodes a negative integer.
// A zero magnitude is malformed.
func ReadNegInt(src *Source, pos, n int) (Primitive, bool, error) {
	src.SetPos(pos)
	p, ok := src.ReadUInt(n)
	if !ok {
		return p, false, nil
	}
	if p.Mag.IsZero() {
		src.SetPos(pos)
		return p, false, malformed(src.Base()+int64(pos), "negative integer with zero magnitude")
	}
	p.Neg = true
	return p, true, nil
}

// ReadFloat decodes a 0, 4 or 8 byte
// big-endian IEEE-754 float.
func ReadFloat(src *Source, pos, n int) (float64, bool, error) {
	switch n {
	case 0:
		return 0, true, nil
	case 4, 8:
	default:
		return 0, false, malformed(src.Base()+int64(pos), "float of length %d", n)
	}
	buf, ok := src.Slice(pos, n)
	if !ok {
		src.SetPos(pos)
		return 0, false, nil
	}
	src.SetPos(pos + n)
	var u uint64
	for _, b := range buf {
		u = u<<8 | uint64(b)
	}
	if n == 4 {
		return float64(math.Float32frombits(uint32(u))), true, nil
	}
	return math.Float64frombits(u), true, nil
}

// Decimal is a decimal number:
// Coefficient * 10^Exponent.
type Decimal struct {
	Exponent    Primitive
	Coefficient Primitive
}

func (d Decimal) String() string {
	return d.Coefficient.String() + "d" + d.Exponent.String()
}

// ReadDecimal decodes a VarInt exponent followed
// by an Int coefficient that fills the remaining
// bytes. An empty coefficient is a positive zero.
func ReadDecimal(src *Source, pos, n int) (Decimal, bool, error) {
	var d Decimal
	if n == 0 {
		return d, true, nil
	}
	src.SetPos(pos)
	exp, ok := src.ReadVarInt()
	if !ok {
		return d, false, nil
	}
	rest := n - exp.N
	if rest < 0 {
		src.SetPos(pos)
		return d, false, malformed(src.Base()+int64(pos), "decimal exponent overruns its length")
	}
	coef, ok := src.ReadInt(rest)
	if !ok {
		src.SetPos(pos)
		return d, false, nil
	}
	d.Exponent, d.Coefficient = exp, coef
	return d, true, nil
}

// Precision is the set of fields
// present in a Timestamp.
type Precision int

const (
	PrecisionYear Precision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionFraction
)

// Timestamp is a decoded ion timestamp.
// Fields beyond Precision are zero.
type Timestamp struct {
	// Offset is the offset from UTC in minutes.
	// A negative zero means the offset is unknown.
	Offset               Primitive
	Year, Month, Day     uint64
	Hour, Minute, Second uint64
	FracExp, FracCoef    Primitive
	Precision            Precision
}

// UnknownOffset returns whether the
// UTC offset is unknown (-00:00).
func (t *Timestamp) UnknownOffset() bool {
	return t.Offset.Neg && t.Offset.Mag.IsZero()
}

// Time converts t into a time.Time.
// Fractional seconds beyond nanosecond
// precision are truncated.
func (t *Timestamp) Time() (time.Time, error) {
	off, ok := t.Offset.Int64()
	if !ok || off < -24*60 || off > 24*60 {
		return time.Time{}, fmt.Errorf("ion: timestamp offset %s out of range", t.Offset)
	}
	if t.Year > 9999 {
		return time.Time{}, fmt.Errorf("ion: timestamp year %d out of range", t.Year)
	}
	month, day := t.Month, t.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	nsec := int64(0)
	if t.Precision == PrecisionFraction {
		exp, ok := t.FracExp.Int64()
		coef, ok2 := t.FracCoef.Int64()
		if !ok || !ok2 || exp > 0 || coef < 0 {
			return time.Time{}, fmt.Errorf("ion: timestamp fraction %sd%s out of range", t.FracCoef, t.FracExp)
		}
		for ; exp < -9; exp++ {
			coef /= 10
		}
		for ; exp > -9; exp-- {
			coef *= 10
		}
		nsec = coef
	}
	loc := time.UTC
	if off != 0 {
		loc = time.FixedZone("", int(off)*60)
	}
	// fields are UTC; shift into the local offset
	u := time.Date(int(t.Year), time.Month(month), int(day),
		int(t.Hour), int(t.Minute), int(t.Second), int(nsec), time.UTC)
	return u.In(loc), nil
}

// local returns the date and time fields
// shifted from UTC into the local offset
func (t *Timestamp) local() (year, month, day, hour, minute uint64) {
	year, month, day, hour, minute = t.Year, t.Month, t.Day, t.Hour, t.Minute
	off, ok := t.Offset.Int64()
	if !ok || off == 0 || off < -24*60 || off > 24*60 ||
		t.Precision < PrecisionMinute || t.Year > 9999 {
		return
	}
	u := time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), 0, 0, time.UTC)
	l := u.Add(time.Duration(off) * time.Minute)
	return uint64(l.Year()), uint64(l.Month()), uint64(l.Day()),
		uint64(l.Hour()), uint64(l.Minute())
}

// fraction writes the fractional seconds
// as decimal digits, or as coefficient and
// exponent when they are not below one
func (t *Timestamp) fraction(sb *strings.Builder) {
	exp, ok := t.FracExp.Int64()
	if ok && exp == 0 && t.FracCoef.Mag.IsZero() {
		return
	}
	digits := t.FracCoef.Mag.String()
	if !ok || exp >= 0 || exp < -1000 || (t.FracCoef.Neg && !t.FracCoef.Mag.IsZero()) ||
		len(digits) > int(-exp) {
		fmt.Fprintf(sb, "(%sd%s)", t.FracCoef, t.FracExp)
		return
	}
	sb.WriteByte('.')
	sb.WriteString(strings.Repeat("0", int(-exp)-len(digits)))
	sb.WriteString(digits)
}

// String formats t as ion text, with the
// date and time in its local offset.
func (t *Timestamp) String() string {
	year, month, day, hour, minute := t.local()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d", year)
	if t.Precision == PrecisionYear {
		sb.WriteString("T")
		return sb.String()
	}
	fmt.Fprintf(&sb, "-%02d", month)
	if t.Precision == PrecisionMonth {
		sb.WriteString("T")
		return sb.String()
	}
	fmt.Fprintf(&sb, "-%02d", day)
	if t.Precision == PrecisionDay {
		return sb.String()
	}
	fmt.Fprintf(&sb, "T%02d:%02d", hour, minute)
	if t.Precision >= PrecisionSecond {
		fmt.Fprintf(&sb, ":%02d", t.Second)
	}
	if t.Precision == PrecisionFraction {
		t.fraction(&sb)
	}
	switch off, _ := t.Offset.Int64(); {
	case t.UnknownOffset():
		sb.WriteString("-00:00")
	case off == 0:
		sb.WriteString("Z")
	default:
		sign := byte('+')
		if off < 0 {
			sign, off = '-', -off
		}
		fmt.Fprintf(&sb, "%c%02d:%02d", sign, off/60, off%60)
	}
	return sb.String()
}

// ReadTimestamp decodes a timestamp. Each field
// is present only if bytes remain for it; an
// hour without a minute is malformed.
func ReadTimestamp(src *Source, pos, n int) (Timestamp, bool, error) {
	var t Timestamp
	off := src.Base() + int64(pos)
	src.SetPos(pos)
	rest := n
	short := func() (Timestamp, bool, error) {
		src.SetPos(pos)
		return Timestamp{}, false, nil
	}
	field := func(dst *uint64) (bool, error) {
		p, ok := src.ReadVarUInt()
		if !ok {
			return false, nil
		}
		rest -= p.N
		if rest < 0 {
			return false, malformed(off, "timestamp field overruns its length")
		}
		u, ok := p.Mag.Uint64()
		if !ok {
			return false, malformed(off, "timestamp field %s out of range", p.Mag)
		}
		*dst = u
		return true, nil
	}
	signed := func(dst *Primitive) (bool, error) {
		p, ok := src.ReadVarInt()
		if !ok {
			return false, nil
		}
		rest -= p.N
		if rest < 0 {
			return false, malformed(off, "timestamp field overruns its length")
		}
		*dst = p
		return true, nil
	}
	fail := func(err error) (Timestamp, bool, error) {
		src.SetPos(pos)
		return Timestamp{}, false, err
	}

	if ok, err := signed(&t.Offset); err != nil {
		return fail(err)
	} else if !ok {
		return short()
	}
	if rest == 0 {
		return fail(malformed(off, "timestamp without a year"))
	}
	steps := []struct {
		dst  *uint64
		prec Precision
	}{
		{&t.Year, PrecisionYear},
		{&t.Month, PrecisionMonth},
		{&t.Day, PrecisionDay},
	}
	for _, s := range steps {
		if rest == 0 {
			return t, true, nil
		}
		if ok, err := field(s.dst); err != nil {
			return fail(err)
		} else if !ok {
			return short()
		}
		t.Precision = s.prec
	}
	if rest == 0 {
		return t, true, nil
	}
	if ok, err := field(&t.Hour); err != nil {
		return fail(err)
	} else if !ok {
		return short()
	}
	if rest == 0 {
		return fail(malformed(off, "timestamp with an hour but no minute"))
	}
	if ok, err := field(&t.Minute); err != nil {
		return fail(err)
	} else if !ok {
		return short()
	}
	t.Precision = PrecisionMinute
	if rest == 0 {
		return t, true, nil
	}
	if ok, err := field(&t.Second); err != nil {
		return fail(err)
	} else if !ok {
		return short()
	}
	t.Precision = PrecisionSecond
	if rest == 0 {
		return t, true, nil
	}
	if ok, err := signed(&t.FracExp); err != nil {
		return fail(err)
	} else if !ok {
		return short()
	}
	coef, ok := src.ReadInt(rest)
	if !ok {
		return short()
	}
	t.FracCoef = coef
	t.Precision = PrecisionFraction
	return t, true, nil
}

// ReadSymbolID decodes a symbol value.
// An empty representation is symbol 0.
func ReadSymbolID(src *Source, pos, n int) (Symbol, bool, error) {
	if n == 0 {
		return 0, true, nil
	}
	src.SetPos(pos)
	p, ok := src.ReadUInt(n)
	if !ok {
		return 0, false, nil
	}
	sym, err := symbolOf(p, src.Base()+int64(pos))
	if err != nil {
		src.SetPos(pos)
		return 0, false, err
	}
	return sym, true, nil
}

// ReadText decodes a UTF-8 string.
// Invalid sequences are replaced
// with U+FFFD.
func ReadText(src *Source, pos, n int) (string, bool) {
	buf, ok := src.Slice(pos, n)
	if !ok {
		src.SetPos(pos)
		return "", false
	}
	src.SetPos(pos + n)
	return strings.ToValidUTF8(string(buf), "\uFFFD"), true
}

// ReadLob returns a copy of the bytes of
// a clob or blob.
func ReadLob(src *Source, pos, n int) ([]byte, bool) {
	buf, ok := src.Slice(pos, n)
	if !ok {
		src.SetPos(pos)
		return nil, false
	}
	src.SetPos(pos + n)
	return append([]byte(nil), buf...), true
}

// Scalar is a decoded scalar value.
// Only the field that corresponds
// to Type is meaningful.
type Scalar struct {
	Type    Type
	Null    bool
	Bool    bool
	Int     Primitive
	Float   float64
	Decimal Decimal
	Time    Timestamp
	Symbol  Symbol
	Text    string
	Bytes   []byte
}

// ReadScalar decodes the representation of
// the scalar value e. It returns an error for
// containers and system values.
func ReadScalar(src *Source, e *Element) (s Scalar, ok bool, err error) {
	s.Type = e.Type()
	s.Null = e.IsNull()
	s.Bool = e.Bool()
	switch s.Type {
	case ListType, SexpType, StructType, NopType, BVMType, AnnotationType, ReservedType:
		return s, false, fmt.Errorf("ion: cannot read %s at %d as a scalar", s.Type, e.Abs())
	}
	if s.Null || s.Type == NullType || s.Type == BoolType {
		return s, true, nil
	}
	pos, present := e.ReprPos()
	if !present {
		// the zero value of the type
		return s, true, nil
	}
	n := int(e.ReprLength())
	switch s.Type {
	case UintType:
		s.Int, ok = ReadPosInt(src, pos, n)
	case IntType:
		s.Int, ok, err = ReadNegInt(src, pos, n)
	case FloatType:
		s.Float, ok, err = ReadFloat(src, pos, n)
	case DecimalType:
		s.Decimal, ok, err = ReadDecimal(src, pos, n)
	case TimestampType:
		s.Time, ok, err = ReadTimestamp(src, pos, n)
	case SymbolType:
		s.Symbol, ok, err = ReadSymbolID(src, pos, n)
	case StringType:
		s.Text, ok = ReadText(src, pos, n)
	case ClobType, BlobType:
		s.Bytes, ok = ReadLob(src, pos, n)
	}
	return s, ok, err
}

// String renders s as ion text. Symbols
// are rendered as $<id>.
func (s *Scalar) String() string {
	if s.Null {
		if s.Type == NullType {
			return "null"
		}
		return "null." + s.Type.String()
	}
	switch s.Type {
	case NullType:
		return "null"
	case BoolType:
		return strconv.FormatBool(s.Bool)
	case UintType, IntType:
		return s.Int.String()
	case FloatType:
		switch {
		case math.IsNaN(s.Float):
			return "nan"
		case math.IsInf(s.Float, 1):
			return "+inf"
		case math.IsInf(s.Float, -1):
			return "-inf"
		}
		return strconv.FormatFloat(s.Float, 'e', -1, 64)
	case DecimalType:
		return s.Decimal.String()
	case TimestampType:
		return s.Time.String()
	case SymbolType:
		return "$" + strconv.FormatUint(uint64(s.Symbol), 10)
	case StringType:
		return strconv.Quote(s.Text)
	case ClobType:
		return "{{" + strconv.Quote(string(s.Bytes)) + "}}"
	case BlobType:
		return "{{" + base64.StdEncoding.EncodeToString(s.Bytes) + "}}"
	}
	return s.Type.String()
}
