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

package coord

import (
	"fmt"
	"sort"

	"github.com/SnellerInc/ionscan/ion"
	"github.com/SnellerInc/ionscan/scan"
)

// Index is the merged output of the
// top-level scan of a stream.
type Index struct {
	Size          int64
	TopLevel      []int64
	SymtabOffsets []int64
	Tables        []scan.TableDef
	Symbols       []scan.SymbolDef
	Contexts      []scan.ContextChange
	Checkpoints   scan.Checkpoints
	Notices       []scan.Notice
}

// add merges a top-level scan result,
// which must follow every result added so far
func (x *Index) add(r *scan.Result) {
	x.TopLevel = append(x.TopLevel, r.TopLevel...)
	x.SymtabOffsets = append(x.SymtabOffsets, r.SymtabOffsets...)
	for _, t := range r.Tables {
		n := len(x.Tables)
		if n > 0 && x.Tables[n-1].Offset > t.Offset {
			panic("coord: symbol table definitions out of order")
		}
		if n > 0 && x.Tables[n-1].Offset == t.Offset {
			// the later report has read more of the table
			x.Tables[n-1] = t
			continue
		}
		x.Tables = append(x.Tables, t)
	}
	x.Symbols = append(x.Symbols, r.Symbols...)
	x.Contexts = append(x.Contexts, r.Contexts...)
	x.Notices = append(x.Notices, r.Notices...)
	if r.Checkpoint != nil {
		x.Checkpoints.Add(*r.Checkpoint)
	}
}

// ContextAt returns the encoding context
// in effect just before absolute offset off.
func (x *Index) ContextAt(off int64) ion.Context {
	i := sort.Search(len(x.Contexts), func(i int) bool {
		return x.Contexts[i].Offset >= off
	})
	if i == 0 {
		return ion.ContextUnknown
	}
	return x.Contexts[i-1].Context
}

// Nearest returns the best position from
// which to start decoding at or before off:
// the greatest checkpoint or top-level
// offset that is <= off.
func (x *Index) Nearest(off int64) scan.Checkpoint {
	cp, _ := x.Checkpoints.Nearest(off)
	i := sort.Search(len(x.TopLevel), func(i int) bool {
		return x.TopLevel[i] > off
	})
	if i > 0 && x.TopLevel[i-1] > cp.Offset {
		return scan.Checkpoint{Offset: x.TopLevel[i-1]}
	}
	return cp
}

// Resolver builds the symbol tables
// that the index describes.
func (x *Index) Resolver() (*ion.Resolver, error) {
	r := ion.NewResolver()
	for _, t := range x.Tables {
		if t.Append {
			continue
		}
		if _, err := r.Open(t.Offset, t.Shared); err != nil {
			return nil, err
		}
	}
	for _, s := range x.Symbols {
		r.Add(s.Text, s.Offset)
	}
	return r, nil
}

// MarshalBinary encodes x as a binary ion stream.
func (x *Index) MarshalBinary() ([]byte, error) {
	var body, out ion.Buffer
	st := ion.NewSymtab(0, false)
	ints := func(name string, lst []int64) {
		body.BeginField(st.Intern(name))
		body.BeginList()
		for _, v := range lst {
			body.WriteInt(v)
		}
		body.EndList()
	}
	flag := func(name string, v bool) {
		if v {
			body.BeginField(st.Intern(name))
			body.WriteBool(true)
		}
	}
	body.BeginStruct()
	body.BeginField(st.Intern("size"))
	body.WriteInt(x.Size)
	ints("top_level", x.TopLevel)
	ints("symtab_offsets", x.SymtabOffsets)

	body.BeginField(st.Intern("tables"))
	body.BeginList()
	for i := range x.Tables {
		t := &x.Tables[i]
		body.BeginStruct()
		body.BeginField(st.Intern("offset"))
		body.WriteInt(t.Offset)
		flag("bvm", t.BVM)
		flag("shared", t.Shared)
		flag("append", t.Append)
		flag("imports", t.Imports)
		body.EndStruct()
	}
	body.EndList()

	body.BeginField(st.Intern("symbols"))
	body.BeginList()
	for i := range x.Symbols {
		body.BeginStruct()
		body.BeginField(st.Intern("text"))
		body.WriteString(x.Symbols[i].Text)
		body.BeginField(st.Intern("offset"))
		body.WriteInt(x.Symbols[i].Offset)
		body.EndStruct()
	}
	body.EndList()

	body.BeginField(st.Intern("contexts"))
	body.BeginList()
	for i := range x.Contexts {
		body.BeginStruct()
		body.BeginField(st.Intern("offset"))
		body.WriteInt(x.Contexts[i].Offset)
		body.BeginField(st.Intern("context"))
		body.WriteString(x.Contexts[i].Context.String())
		body.EndStruct()
	}
	body.EndList()

	body.BeginField(st.Intern("checkpoints"))
	body.BeginList()
	for _, cp := range x.Checkpoints.All() {
		cp.MarshalTo(&body, st)
	}
	body.EndList()

	body.BeginField(st.Intern("notices"))
	body.BeginList()
	for i := range x.Notices {
		body.BeginStruct()
		body.BeginField(st.Intern("offset"))
		body.WriteInt(x.Notices[i].Offset)
		body.BeginField(st.Intern("msg"))
		body.WriteString(x.Notices[i].Msg)
		body.EndStruct()
	}
	body.EndList()
	body.EndStruct()

	out.WriteSymtab(st)
	out.UnsafeAppend(body.Bytes())
	return out.Bytes(), nil
}

// UnmarshalBinary decodes an index
// written by MarshalBinary.
func (x *Index) UnmarshalBinary(buf []byte) error {
	st, body, err := ion.ReadSymtab(buf)
	if err != nil {
		return err
	}
	*x = Index{}
	ints := func(val []byte, dst *[]int64) error {
		_, err := ion.UnpackList(val, func(item []byte) error {
			v, _, err := ion.ReadInt(item)
			*dst = append(*dst, v)
			return err
		})
		return err
	}
	fields := func(val []byte, fn func(name string, val []byte) error) error {
		_, err := ion.UnpackStruct(val, func(f ion.Symbol, val []byte) error {
			name, _ := st.Get(f)
			return fn(name, val)
		})
		return err
	}
	return fields(body, func(name string, val []byte) error {
		var err error
		switch name {
		case "size":
			x.Size, _, err = ion.ReadInt(val)
		case "top_level":
			err = ints(val, &x.TopLevel)
		case "symtab_offsets":
			err = ints(val, &x.SymtabOffsets)
		case "tables":
			_, err = ion.UnpackList(val, func(item []byte) error {
				var t scan.TableDef
				err := fields(item, func(name string, val []byte) error {
					var err error
					switch name {
					case "offset":
						t.Offset, _, err = ion.ReadInt(val)
					case "bvm":
						t.BVM, _, err = ion.ReadBool(val)
					case "shared":
						t.Shared, _, err = ion.ReadBool(val)
					case "append":
						t.Append, _, err = ion.ReadBool(val)
					case "imports":
						t.Imports, _, err = ion.ReadBool(val)
					}
					return err
				})
				x.Tables = append(x.Tables, t)
				return err
			})
		case "symbols":
			_, err = ion.UnpackList(val, func(item []byte) error {
				var s scan.SymbolDef
				err := fields(item, func(name string, val []byte) error {
					var err error
					switch name {
					case "text":
						s.Text, _, err = ion.ReadString(val)
					case "offset":
						s.Offset, _, err = ion.ReadInt(val)
					}
					return err
				})
				x.Symbols = append(x.Symbols, s)
				return err
			})
		case "contexts":
			_, err = ion.UnpackList(val, func(item []byte) error {
				var c scan.ContextChange
				err := fields(item, func(name string, val []byte) error {
					switch name {
					case "offset":
						var err error
						c.Offset, _, err = ion.ReadInt(val)
						return err
					case "context":
						s, _, err := ion.ReadString(val)
						if err != nil {
							return err
						}
						ctx, ok := ion.ParseContext(s)
						if !ok {
							return fmt.Errorf("unknown context %q", s)
						}
						c.Context = ctx
					}
					return nil
				})
				x.Contexts = append(x.Contexts, c)
				return err
			})
		case "checkpoints":
			_, err = ion.UnpackList(val, func(item []byte) error {
				var cp scan.Checkpoint
				if _, err := cp.UnmarshalFrom(item, st); err != nil {
					return err
				}
				if !x.Checkpoints.Add(cp) {
					return fmt.Errorf("duplicate checkpoint at %d", cp.Offset)
				}
				return nil
			})
		case "notices":
			_, err = ion.UnpackList(val, func(item []byte) error {
				var n scan.Notice
				err := fields(item, func(name string, val []byte) error {
					var err error
					switch name {
					case "offset":
						n.Offset, _, err = ion.ReadInt(val)
					case "msg":
						n.Msg, _, err = ion.ReadString(val)
					}
					return err
				})
				x.Notices = append(x.Notices, n)
				return err
			})
		default:
			err = fmt.Errorf("unexpected index field %q", name)
		}
		return err
	})
}
