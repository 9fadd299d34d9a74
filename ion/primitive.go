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
	"math/big"
)

// Magnitude is an unsigned integer magnitude.
// It is stored inline until the decoder
// crosses the width at which the inline
// representation could overflow, after which
// it is held as a big.Int.
//
// The zero value is the magnitude 0.
type Magnitude struct {
	u   uint64
	big *big.Int
}

// MagnitudeOf returns u as a Magnitude.
func MagnitudeOf(u uint64) Magnitude { return Magnitude{u: u} }

// IsBig returns whether m has been
// widened to arbitrary precision.
func (m Magnitude) IsBig() bool { return m.big != nil }

// IsZero returns whether m is zero.
func (m Magnitude) IsZero() bool {
	if m.big != nil {
		return m.big.Sign() == 0
	}
	return m.u == 0
}

// Uint64 returns m as a uint64 and
// whether or not it fits.
func (m Magnitude) Uint64() (uint64, bool) {
	if m.big != nil {
		if !m.big.IsUint64() {
			return 0, false
		}
		return m.big.Uint64(), true
	}
	return m.u, true
}

// Int64 returns m as an int64 and
// whether or not it fits.
func (m Magnitude) Int64() (int64, bool) {
	u, ok := m.Uint64()
	if !ok || u > 1<<63-1 {
		return 0, false
	}
	return int64(u), true
}

// Big returns a new big.Int holding m.
func (m Magnitude) Big() *big.Int {
	if m.big != nil {
		return new(big.Int).Set(m.big)
	}
	return new(big.Int).SetUint64(m.u)
}

// Cmp compares m and o and returns
// -1, 0, or +1.
func (m Magnitude) Cmp(o Magnitude) int {
	if m.big == nil && o.big == nil {
		switch {
		case m.u < o.u:
			return -1
		case m.u > o.u:
			return 1
		}
		return 0
	}
	return m.Big().Cmp(o.Big())
}

func (m Magnitude) String() string {
	if m.big != nil {
		return m.big.String()
	}
	return new(big.Int).SetUint64(m.u).String()
}

// widen moves the inline value into a big.Int
func (m *Magnitude) widen() {
	if m.big == nil {
		m.big = new(big.Int).SetUint64(m.u)
		m.u = 0
	}
}

// shift shifts m left by bits and ors in v
func (m *Magnitude) shift(bits uint, v byte) {
	if m.big != nil {
		m.big.Lsh(m.big, bits)
		m.big.Or(m.big, big.NewInt(int64(v)))
		return
	}
	m.u = m.u<<bits | uint64(v)
}

// Primitive is the result of decoding one
// of the ion integer encodings.
type Primitive struct {
	// N is the number of bytes consumed.
	N int
	// Mag is the magnitude.
	Mag Magnitude
	// Neg is set when the sign bit was set,
	// including when Mag is zero.
	Neg bool
}

// Int64 returns p as a signed integer
// and whether or not it fits.
func (p Primitive) Int64() (int64, bool) {
	if p.Neg {
		u, ok := p.Mag.Uint64()
		if !ok || u > 1<<63 {
			return 0, false
		}
		return -int64(u), true
	}
	return p.Mag.Int64()
}

// Big returns p as a signed big.Int.
// The sign of a negative zero is lost.
func (p Primitive) Big() *big.Int {
	b := p.Mag.Big()
	if p.Neg {
		b.Neg(b)
	}
	return b
}

func (p Primitive) String() string {
	if p.Neg {
		return "-" + p.Mag.String()
	}
	return p.Mag.String()
}

const (
	// fixed-width integers are widened when
	// this byte is about to be accumulated
	fixedWiden = 4
	// same, for the self-delimiting encodings
	varWiden = 5
)

// ReadVarUInt decodes a VarUInt at the
// current position. If the range ends
// before the terminating byte, the position
// is restored and ok is false.
func (s *Source) ReadVarUInt() (p Primitive, ok bool) {
	for {
		b, ok := s.Next()
		if !ok {
			s.Skip(-p.N)
			return Primitive{}, false
		}
		p.N++
		if p.N == varWiden {
			p.Mag.widen()
		}
		p.Mag.shift(7, b&0x7f)
		if b&0x80 != 0 {
			return p, true
		}
	}
}

// ReadVarInt decodes a VarInt at the current
// position. The sign is bit 6 of the first byte.
// A short range restores the position and
// returns ok == false.
func (s *Source) ReadVarInt() (p Primitive, ok bool) {
	b, ok := s.Next()
	if !ok {
		return Primitive{}, false
	}
	p.N = 1
	p.Neg = b&0x40 != 0
	p.Mag.shift(6, b&0x3f)
	for b&0x80 == 0 {
		b, ok = s.Next()
		if !ok {
			s.Skip(-p.N)
			return Primitive{}, false
		}
		p.N++
		if p.N == varWiden {
			p.Mag.widen()
		}
		p.Mag.shift(7, b&0x7f)
	}
	return p, true
}

// ReadUInt decodes an n-byte big-endian
// unsigned integer. A short range restores
// the position and returns ok == false.
func (s *Source) ReadUInt(n int) (p Primitive, ok bool) {
	for p.N < n {
		b, ok := s.Next()
		if !ok {
			s.Skip(-p.N)
			return Primitive{}, false
		}
		p.N++
		if p.N == fixedWiden {
			p.Mag.widen()
		}
		p.Mag.shift(8, b)
	}
	return p, true
}

// ReadInt decodes an n-byte big-endian
// sign-and-magnitude integer. The sign is
// the high bit of the first byte.
// A short range restores the position and
// returns ok == false.
func (s *Source) ReadInt(n int) (p Primitive, ok bool) {
	if n == 0 {
		return p, true
	}
	b, ok := s.Next()
	if !ok {
		return Primitive{}, false
	}
	p.N = 1
	p.Neg = b&0x80 != 0
	p.Mag.shift(8, b&0x7f)
	for p.N < n {
		b, ok = s.Next()
		if !ok {
			s.Skip(-p.N)
			return Primitive{}, false
		}
		p.N++
		if p.N == fixedWiden {
			p.Mag.widen()
		}
		p.Mag.shift(8, b)
	}
	return p, true
}
