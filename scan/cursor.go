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

// Package scan implements the decoding tasks
// that the coordinator runs over buffers of a
// binary ion stream. TopLevel is the serial
// first pass; Chunk decodes one chunk of the
// second pass. Inspect describes single values.
//
// Every task takes a buffer with its absolute
// offset in the stream plus the stream size.
// It may be resumed from a Checkpoint produced
// by an earlier task.
package scan

import (
	"errors"
	"fmt"

	"github.com/SnellerInc/ionscan/ion"
)

// DecodeError is returned when a task
// encounters malformed data.
type DecodeError struct {
	// Offset is the absolute offset of
	// the element being decoded.
	Offset int64
	// Element describes the element, or its
	// position if it could not be decoded.
	Element string
	Err     error
}

func (d *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %s", d.Element, d.Err)
}

func (d *DecodeError) Unwrap() error { return d.Err }

// ErrNotAtEnd is wrapped by the error returned
// when the stream does not end exactly at the
// end of its last value.
var ErrNotAtEnd = errors.New("not at end of stream")

// cursor walks a buffer in pre-order using
// one reused ion.Element per depth
type cursor struct {
	src   ion.Source
	stack []ion.Element
	depth int
	ctx   ion.Context
	size  int64 // size of the stream
}

func (c *cursor) init(buf []byte, base, size int64, ctx ion.Context, cp *Checkpoint) error {
	c.src.Reset(buf, base)
	c.ctx = ctx
	c.size = size
	c.depth = 0
	if base < 0 || base > size || base+int64(len(buf)) > size {
		return fmt.Errorf("buffer [%d, %d) outside of a stream of %d bytes", base, base+int64(len(buf)), size)
	}
	if cp == nil || len(cp.Stack) == 0 {
		if cp != nil && cp.Offset != base {
			return fmt.Errorf("checkpoint at %d used with a buffer at %d", cp.Offset, base)
		}
		c.at(0).Reset(ion.TopRef(base, size-base))
		return nil
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	if cp.Offset != base {
		return fmt.Errorf("checkpoint at %d used with a buffer at %d", cp.Offset, base)
	}
	for i := range cp.Stack {
		c.at(i).Reset(cp.Stack[i].Rebase(base))
	}
	c.depth = len(cp.Stack) - 1
	return nil
}

// at returns the element for depth d,
// growing the stack if necessary
func (c *cursor) at(d int) *ion.Element {
	for len(c.stack) <= d {
		c.stack = append(c.stack, ion.Element{})
	}
	return &c.stack[d]
}

func (c *cursor) cur() *ion.Element { return &c.stack[c.depth] }

// rel returns the buffer-relative
// position of the current element
func (c *cursor) rel() int64 { return c.cur().Ref().Rel }

// atEOF returns whether the buffer
// extends to the end of the stream
func (c *cursor) atEOF() bool {
	return c.src.Base()+int64(c.src.Size()) >= c.size
}

func (c *cursor) decode() (bool, error) {
	e := c.cur()
	ok, err := e.Decode(&c.src, c.ctx)
	if err != nil {
		return false, c.fail(err)
	}
	if !ok && c.atEOF() && e.Abs() < c.size {
		return false, c.fail(fmt.Errorf("value extends past the end of the data: %w", ErrNotAtEnd))
	}
	if ok && e.Type() == ion.BVMType {
		c.ctx = ion.Context1_0
	}
	return ok, nil
}

func (c *cursor) fail(err error) error {
	e := c.cur()
	desc := e.String()
	return &DecodeError{Offset: e.Abs(), Element: desc, Err: err}
}

// descend moves to the first child
// of the current element, if any
func (c *cursor) descend() bool {
	child, ok := c.cur().Child()
	if !ok {
		return false
	}
	c.depth++
	c.at(c.depth).Reset(child)
	return true
}

// advance moves to the next sibling
// of the current element, if any
func (c *cursor) advance() bool {
	e := c.cur()
	next, ok := e.Sibling()
	if ok {
		e.Reset(next)
	}
	return ok
}

// ascend pops levels until an ancestor has
// a sibling and moves to that sibling.
// It returns false when the top level is
// exhausted, leaving the cursor on the
// last top-level element.
func (c *cursor) ascend() bool {
	for c.depth > 0 {
		c.depth--
		if c.advance() {
			return true
		}
	}
	return false
}

// finish checks that the exhausted top
// level ends exactly at the end of the stream
func (c *cursor) finish() error {
	end := c.stack[0].End()
	if end != c.size {
		return c.fail(fmt.Errorf("last value ends at %d of %d bytes: %w", end, c.size, ErrNotAtEnd))
	}
	return nil
}

// snapshot captures the position of the
// current (undecoded) element
func (c *cursor) snapshot() *Checkpoint {
	cp := &Checkpoint{Offset: c.cur().Abs()}
	if c.depth > 0 {
		cp.Stack = make([]ion.Ref, c.depth+1)
		for i := range cp.Stack {
			cp.Stack[i] = c.stack[i].Ref()
		}
	}
	return cp
}
