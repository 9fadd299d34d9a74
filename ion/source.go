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

// Source is a cursor over a byte range
// that begins at an absolute offset Base
// within a larger stream.
//
// Positions passed to and returned from
// Source methods are relative to the start
// of the range.
type Source struct {
	buf  []byte
	base int64
	pos  int
}

// NewSource returns a Source over buf,
// where buf[0] lives at absolute offset base.
func NewSource(buf []byte, base int64) *Source {
	return &Source{buf: buf, base: base}
}

// Reset points s at a new range.
func (s *Source) Reset(buf []byte, base int64) {
	s.buf = buf
	s.base = base
	s.pos = 0
}

// Next returns the next byte and advances
// the position. It returns false at the
// end of the range, without moving.
func (s *Source) Next() (byte, bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	b := s.buf[s.pos]
	s.pos++
	return b, true
}

// Skip moves the position by n bytes,
// which may be negative.
func (s *Source) Skip(n int) { s.pos += n }

// SetPos sets the relative position.
func (s *Source) SetPos(pos int) { s.pos = pos }

// Pos returns the relative position.
func (s *Source) Pos() int { return s.pos }

// Size returns the number of bytes in the range.
func (s *Source) Size() int { return len(s.buf) }

// Base returns the absolute offset of
// the first byte in the range.
func (s *Source) Base() int64 { return s.base }

// Slice returns the n bytes starting at
// relative offset off, aliasing the
// underlying buffer. It returns false if
// the range does not hold all n bytes.
func (s *Source) Slice(off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(s.buf)-n {
		return nil, false
	}
	return s.buf[off : off+n : off+n], true
}
