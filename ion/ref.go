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

// NoContainer is the Container offset
// of a top-level Ref.
const NoContainer = -1

// Ref is a resumable position in a stream.
//
// Given a Ref and the bytes it points to,
// decoding is deterministic and requires
// no other history. Refs are values: they
// can be compared with == and copied freely.
type Ref struct {
	// Base is the absolute offset of the
	// first byte of the buffer that Rel
	// is relative to.
	Base int64
	// Rel is the offset of the value within
	// the buffer. It may be negative for
	// ancestors that began in an earlier buffer.
	Rel int64
	// Depth is the nesting depth; top-level
	// values live at depth 0.
	Depth int
	// Remaining is the number of bytes left
	// at this depth, starting with this value.
	Remaining int64
	// Container is the absolute offset of the
	// enclosing container, or NoContainer.
	Container int64
	// ContainerType is the type of the
	// enclosing container, if any.
	ContainerType Type
	// Next is the absolute offset of the next
	// sibling once it is known. It is zero
	// when there is no known sibling.
	Next int64
}

// TopRef returns a Ref for the top-level value
// at absolute offset base, with size bytes
// remaining in the stream.
func TopRef(base, size int64) Ref {
	return Ref{
		Base:      base,
		Remaining: size,
		Container: NoContainer,
	}
}

// Abs returns the absolute offset of the value.
func (r Ref) Abs() int64 { return r.Base + r.Rel }

// Rebase returns r relative to a buffer
// beginning at absolute offset base.
func (r Ref) Rebase(base int64) Ref {
	r.Rel = r.Abs() - base
	r.Base = base
	return r
}

// inStruct returns whether the value
// at r is a struct field
func (r Ref) inStruct() bool {
	return r.Container != NoContainer && r.ContainerType == StructType
}

// Validate checks the internal consistency
// of a Ref that was produced elsewhere.
func (r Ref) Validate() error {
	switch {
	case r.Depth < 0:
		return fmt.Errorf("ion: ref at %d: negative depth %d", r.Abs(), r.Depth)
	case r.Remaining < 0:
		return fmt.Errorf("ion: ref at %d: negative remaining length %d", r.Abs(), r.Remaining)
	case r.Next != 0 && r.Next <= r.Abs():
		return fmt.Errorf("ion: ref at %d: next sibling offset %d does not follow it", r.Abs(), r.Next)
	case r.Depth == 0 && r.Container != NoContainer:
		return fmt.Errorf("ion: top-level ref at %d has a container", r.Abs())
	case r.Depth > 0 && (r.Container < 0 || r.Container >= r.Abs()):
		return fmt.Errorf("ion: ref at %d: bad container offset %d", r.Abs(), r.Container)
	case r.Depth > 0 && !r.ContainerType.IsContainer():
		return fmt.Errorf("ion: ref at %d: container type %s", r.Abs(), r.ContainerType)
	}
	return nil
}

func (r Ref) String() string {
	return fmt.Sprintf("{abs:%d depth:%d remaining:%d container:%d/%s next:%d}",
		r.Abs(), r.Depth, r.Remaining, r.Container, r.ContainerType, r.Next)
}
