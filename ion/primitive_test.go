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
	"math/rand"
	"testing"
)

func TestReadVarUInt(t *testing.T) {
	tcs := []struct {
		in   []byte
		want uint64
	}{
		{[]byte{0x80}, 0},
		{[]byte{0x81}, 1},
		{[]byte{0xff}, 127},
		{[]byte{0x01, 0x80}, 128},
		{[]byte{0x7f, 0xff}, 16383},
		{[]byte{0x01, 0x00, 0x80}, 1 << 14},
		{[]byte{0x7f, 0x7f, 0x7f, 0xff}, 1<<28 - 1},
	}
	for i := range tcs {
		src := NewSource(tcs[i].in, 0)
		p, ok := src.ReadVarUInt()
		if !ok {
			t.Fatalf("case %d: short read", i)
		}
		if p.N != len(tcs[i].in) || src.Pos() != len(tcs[i].in) {
			t.Errorf("case %d: read %d bytes, position %d", i, p.N, src.Pos())
		}
		if u, _ := p.Mag.Uint64(); u != tcs[i].want {
			t.Errorf("case %d: got %d, want %d", i, u, tcs[i].want)
		}
		if p.Mag.IsBig() {
			t.Errorf("case %d: widened at %d bytes", i, p.N)
		}
	}
}

func TestReadVarInt(t *testing.T) {
	tcs := []struct {
		in   []byte
		want int64
		neg  bool
	}{
		{[]byte{0x80}, 0, false},
		{[]byte{0xc0}, 0, true},
		{[]byte{0x81}, 1, false},
		{[]byte{0xc1}, -1, true},
		{[]byte{0xbf}, 63, false},
		{[]byte{0x40, 0xff}, -127, true},
		{[]byte{0x01, 0x80}, 128, false},
	}
	for i := range tcs {
		src := NewSource(tcs[i].in, 0)
		p, ok := src.ReadVarInt()
		if !ok {
			t.Fatalf("case %d: short read", i)
		}
		if p.Neg != tcs[i].neg {
			t.Errorf("case %d: negative = %v", i, p.Neg)
		}
		if v, _ := p.Int64(); v != tcs[i].want {
			t.Errorf("case %d: got %d, want %d", i, v, tcs[i].want)
		}
	}
}

func TestReadFixed(t *testing.T) {
	src := NewSource([]byte{0x00, 0xff}, 0)
	p, ok := src.ReadUInt(2)
	if !ok || p.N != 2 {
		t.Fatal("short read")
	}
	if u, _ := p.Mag.Uint64(); u != 255 {
		t.Fatalf("got %d", u)
	}
	src = NewSource([]byte{0x80, 0x00}, 0)
	p, ok = src.ReadInt(2)
	if !ok {
		t.Fatal("short read")
	}
	if !p.Neg || !p.Mag.IsZero() {
		t.Fatalf("want negative zero, got %s (neg=%v)", p, p.Neg)
	}
	src = NewSource([]byte{0x81, 0x01}, 0)
	p, _ = src.ReadInt(2)
	if v, _ := p.Int64(); v != -257 {
		t.Fatalf("got %d", v)
	}
	src = NewSource(nil, 0)
	p, ok = src.ReadInt(0)
	if !ok || !p.Mag.IsZero() || p.N != 0 {
		t.Fatal("empty Int should be zero")
	}
}

// reference conversions

func bigUInt(buf []byte) *big.Int {
	return new(big.Int).SetBytes(buf)
}

func bigVarUInt(buf []byte) *big.Int {
	out := new(big.Int)
	for _, b := range buf {
		out.Lsh(out, 7)
		out.Or(out, big.NewInt(int64(b&0x7f)))
	}
	return out
}

func TestWidening(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 1; n <= 24; n++ {
		buf := make([]byte, n)
		for iter := 0; iter < 20; iter++ {
			rng.Read(buf)

			src := NewSource(buf, 0)
			p, ok := src.ReadUInt(n)
			if !ok {
				t.Fatal("short read")
			}
			if p.Mag.IsBig() != (n >= fixedWiden) {
				t.Errorf("UInt of %d bytes: big=%v", n, p.Mag.IsBig())
			}
			if want := bigUInt(buf); p.Mag.Big().Cmp(want) != 0 {
				t.Fatalf("UInt %x: got %s want %s", buf, p.Mag, want)
			}

			src = NewSource(buf, 0)
			p, _ = src.ReadInt(n)
			mag := append([]byte{}, buf...)
			mag[0] &= 0x7f
			want := bigUInt(mag)
			if p.Mag.Big().Cmp(want) != 0 || p.Neg != (buf[0]&0x80 != 0) {
				t.Fatalf("Int %x: got %s neg=%v want %s", buf, p.Mag, p.Neg, want)
			}

			vbuf := append([]byte{}, buf...)
			for i := range vbuf {
				vbuf[i] &= 0x7f
			}
			vbuf[n-1] |= 0x80
			src = NewSource(vbuf, 0)
			p, _ = src.ReadVarUInt()
			if p.N != n {
				t.Fatalf("VarUInt read %d of %d bytes", p.N, n)
			}
			if p.Mag.IsBig() != (n >= varWiden) {
				t.Errorf("VarUInt of %d bytes: big=%v", n, p.Mag.IsBig())
			}
			if want := bigVarUInt(vbuf); p.Mag.Big().Cmp(want) != 0 {
				t.Fatalf("VarUInt %x: got %s want %s", vbuf, p.Mag, want)
			}
		}
	}
}

func TestShortReadRewinds(t *testing.T) {
	full := []byte{0x01, 0x02, 0x03, 0x04, 0x85}
	for cut := 0; cut < len(full); cut++ {
		buf := append([]byte{0xaa}, full[:cut]...)
		reads := map[string]func(s *Source) (Primitive, bool){
			"VarUInt": (*Source).ReadVarUInt,
			"VarInt":  (*Source).ReadVarInt,
			"UInt":    func(s *Source) (Primitive, bool) { return s.ReadUInt(len(full)) },
			"Int":     func(s *Source) (Primitive, bool) { return s.ReadInt(len(full)) },
		}
		for name, read := range reads {
			src := NewSource(buf, 100)
			src.SetPos(1)
			if _, ok := read(src); ok {
				t.Fatalf("%s: read %d of %d bytes", name, cut, len(full))
			}
			if src.Pos() != 1 {
				t.Fatalf("%s: position %d after short read of %d bytes", name, src.Pos(), cut)
			}
		}
	}
	// once the bytes are present the result is
	// the same as if nothing had been attempted
	src := NewSource(full, 0)
	a, _ := src.ReadVarUInt()
	src.SetPos(0)
	b, _ := src.ReadVarUInt()
	if a.N != b.N || a.Mag.Cmp(b.Mag) != 0 {
		t.Fatal("re-read differs")
	}
}

func TestShortScenario(t *testing.T) {
	// the first byte of a 2-byte element
	src := NewSource([]byte{0x21}, 0)
	src.SetPos(1)
	if _, ok := src.ReadUInt(1); ok {
		t.Fatal("expected a short read")
	}
	if src.Pos() != 1 {
		t.Fatalf("position moved to %d", src.Pos())
	}
}

func TestMagnitudeCmp(t *testing.T) {
	small := MagnitudeOf(1 << 40)
	src := NewSource([]byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}, 0)
	wide, _ := src.ReadUInt(8)
	if !wide.Mag.IsBig() {
		t.Fatal("expected a widened magnitude")
	}
	if small.Cmp(wide.Mag) != 0 {
		t.Fatalf("%s != %s", small, wide.Mag)
	}
	if u, ok := wide.Mag.Uint64(); !ok || u != 1<<40 {
		t.Fatalf("Uint64() = %d, %v", u, ok)
	}
	if MagnitudeOf(3).Cmp(wide.Mag) != -1 {
		t.Fatal("bad ordering")
	}
}
