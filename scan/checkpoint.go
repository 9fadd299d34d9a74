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

package scan

import (
	"fmt"
	"sort"

	"github.com/SnellerInc/ionscan/ion"

	"golang.org/x/exp/slices"
)

// Checkpoint is a position at which decoding
// can resume in a new buffer.
//
// When decoding paused at the top level, Stack
// is empty and Offset is the offset of the next
// top-level value. Otherwise Stack holds one Ref
// per depth, from the top-level ancestor down to
// the value at Offset, which has not been decoded.
type Checkpoint struct {
	Offset int64
	Stack  []ion.Ref
}

// Depth returns the depth of the value at c.Offset.
func (c *Checkpoint) Depth() int {
	if len(c.Stack) == 0 {
		return 0
	}
	return len(c.Stack) - 1
}

// Validate checks that c describes a
// consistent chain of ancestors.
func (c *Checkpoint) Validate() error {
	if len(c.Stack) == 0 {
		return nil
	}
	for i := range c.Stack {
		r := &c.Stack[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("checkpoint at %d: %w", c.Offset, err)
		}
		if r.Depth != i {
			return fmt.Errorf("checkpoint at %d: ref %d has depth %d", c.Offset, i, r.Depth)
		}
		if i > 0 && r.Container != c.Stack[i-1].Abs() {
			return fmt.Errorf("checkpoint at %d: ref %d is not inside its parent", c.Offset, i)
		}
	}
	if last := c.Stack[len(c.Stack)-1]; last.Abs() != c.Offset {
		return fmt.Errorf("checkpoint at %d: innermost ref at %d", c.Offset, last.Abs())
	}
	return nil
}

// Equal returns whether c and o describe
// the same position.
func (c *Checkpoint) Equal(o *Checkpoint) bool {
	return c.Offset == o.Offset && slices.Equal(c.Stack, o.Stack)
}

// Checkpoints is a set of checkpoints
// ordered by offset. At most one checkpoint
// is kept for each offset.
type Checkpoints struct {
	list []Checkpoint
}

func (c *Checkpoints) search(off int64) int {
	return sort.Search(len(c.list), func(i int) bool {
		return c.list[i].Offset >= off
	})
}

// Add inserts cp. It returns false if a
// checkpoint at the same offset already exists,
// in which case the existing one is kept.
func (c *Checkpoints) Add(cp Checkpoint) bool {
	i := c.search(cp.Offset)
	if i < len(c.list) && c.list[i].Offset == cp.Offset {
		return false
	}
	c.list = slices.Insert(c.list, i, cp)
	return true
}

// Nearest returns the checkpoint with the
// greatest offset that is <= off.
func (c *Checkpoints) Nearest(off int64) (Checkpoint, bool) {
	i := c.search(off + 1)
	if i == 0 {
		return Checkpoint{}, false
	}
	return c.list[i-1], true
}

// Len returns the number of checkpoints.
func (c *Checkpoints) Len() int { return len(c.list) }

// All returns the checkpoints in order.
// The returned slice must not be modified.
func (c *Checkpoints) All() []Checkpoint { return c.list }

// MarshalTo writes c as an ion struct, interning
// field names in st. The caller is responsible
// for writing st ahead of the struct.
func (c *Checkpoint) MarshalTo(dst *ion.Buffer, st *ion.Symtab) {
	dst.BeginStruct()
	dst.BeginField(st.Intern("offset"))
	dst.WriteInt(c.Offset)
	if len(c.Stack) > 0 {
		dst.BeginField(st.Intern("stack"))
		dst.BeginList()
		for i := range c.Stack {
			marshalRef(dst, st, &c.Stack[i])
		}
		dst.EndList()
	}
	dst.EndStruct()
}

func marshalRef(dst *ion.Buffer, st *ion.Symtab, r *ion.Ref) {
	dst.BeginStruct()
	dst.BeginField(st.Intern("base"))
	dst.WriteInt(r.Base)
	dst.BeginField(st.Intern("rel"))
	dst.WriteInt(r.Rel)
	dst.BeginField(st.Intern("depth"))
	dst.WriteInt(int64(r.Depth))
	dst.BeginField(st.Intern("remaining"))
	dst.WriteInt(r.Remaining)
	dst.BeginField(st.Intern("container"))
	dst.WriteInt(r.Container)
	dst.BeginField(st.Intern("container_type"))
	dst.WriteInt(int64(r.ContainerType))
	if r.Next != 0 {
		dst.BeginField(st.Intern("next"))
		dst.WriteInt(r.Next)
	}
	dst.EndStruct()
}

// UnmarshalFrom reads a checkpoint written
// by MarshalTo, resolving field names in st,
// and returns the bytes that follow it.
func (c *Checkpoint) UnmarshalFrom(buf []byte, st *ion.Symtab) ([]byte, error) {
	c.Offset = 0
	c.Stack = c.Stack[:0]
	rest, err := ion.UnpackStruct(buf, func(f ion.Symbol, val []byte) error {
		name, _ := st.Get(f)
		var err error
		switch name {
		case "offset":
			c.Offset, _, err = ion.ReadInt(val)
		case "stack":
			_, err = ion.UnpackList(val, func(item []byte) error {
				var r ion.Ref
				if err := unmarshalRef(item, st, &r); err != nil {
					return err
				}
				c.Stack = append(c.Stack, r)
				return nil
			})
		default:
			err = fmt.Errorf("unexpected checkpoint field %q", name)
		}
		return err
	})
	if err != nil {
		return buf, err
	}
	if len(c.Stack) == 0 {
		c.Stack = nil
	}
	return rest, c.Validate()
}

func unmarshalRef(buf []byte, st *ion.Symtab, r *ion.Ref) error {
	_, err := ion.UnpackStruct(buf, func(f ion.Symbol, val []byte) error {
		name, _ := st.Get(f)
		v, _, err := ion.ReadInt(val)
		if err != nil {
			return fmt.Errorf("ref field %q: %w", name, err)
		}
		switch name {
		case "base":
			r.Base = v
		case "rel":
			r.Rel = v
		case "depth":
			r.Depth = int(v)
		case "remaining":
			r.Remaining = v
		case "container":
			r.Container = v
		case "container_type":
			r.ContainerType = ion.Type(v)
		case "next":
			r.Next = v
		default:
			return fmt.Errorf("unexpected ref field %q", name)
		}
		return nil
	})
	return err
}

// MarshalBinary implements encoding.BinaryMarshaler.
// The encoding is a self-contained binary ion stream.
func (c *Checkpoint) MarshalBinary() ([]byte, error) {
	var body, out ion.Buffer
	st := ion.NewSymtab(0, false)
	c.MarshalTo(&body, st)
	out.WriteSymtab(st)
	out.UnsafeAppend(body.Bytes())
	return out.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Checkpoint) UnmarshalBinary(buf []byte) error {
	st, body, err := ion.ReadSymtab(buf)
	if err != nil {
		return err
	}
	_, err = c.UnmarshalFrom(body, st)
	return err
}
