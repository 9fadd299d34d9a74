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
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/dchest/siphash"
)

// SystemOffset is the definition offset of
// the system symbol table, which precedes
// every position in a stream.
const SystemOffset = -1

// Resolver holds the symbol tables of a stream
// ordered by the offset at which they are defined,
// and resolves symbol IDs against the table that
// is in effect at a given offset.
type Resolver struct {
	tables []*Symtab
}

// NewResolver returns a Resolver that
// holds only the system symbol table.
func NewResolver() *Resolver {
	return &Resolver{tables: []*Symtab{NewSymtab(SystemOffset, false)}}
}

// Open begins a new symbol table scope at the
// absolute offset at. Tables must be opened in
// strictly increasing offset order.
func (r *Resolver) Open(at int64, shared bool) (*Symtab, error) {
	last := r.tables[len(r.tables)-1]
	if at <= last.offset {
		return nil, fmt.Errorf("ion: symbol table at %d does not follow the table at %d", at, last.offset)
	}
	s := NewSymtab(at, shared)
	r.tables = append(r.tables, s)
	return s, nil
}

// Table returns the table in effect at
// absolute offset at: the table with the
// greatest definition offset that is <= at.
func (r *Resolver) Table(at int64) *Symtab {
	i := sort.Search(len(r.tables), func(i int) bool {
		return r.tables[i].offset > at
	})
	if i == 0 {
		// only possible for at < SystemOffset
		return r.tables[0]
	}
	return r.tables[i-1]
}

// Tables returns every table in offset order.
func (r *Resolver) Tables() []*Symtab { return r.tables }

// Resolve returns the text of id as of
// absolute offset at.
func (r *Resolver) Resolve(id Symbol, at int64) (string, bool) {
	if at < SystemOffset {
		at = SystemOffset
	}
	return r.Table(at).Lookup(id, at)
}

// Add defines text in the table in effect
// at the absolute offset at.
func (r *Resolver) Add(text string, at int64) Symbol {
	return r.Table(at).Add(text, at)
}

// AddUsage records a use of id at the
// absolute offset at. It returns false
// if id does not resolve there.
func (r *Resolver) AddUsage(id Symbol, at int64) bool {
	return r.Table(at).AddUsage(id, at)
}

var fingerprintKey = []byte("ionscan.symtabs!")

// Fingerprint returns a hash of the complete
// state of every table: offsets, symbol text,
// definition offsets and recorded uses.
// Two resolvers built from the same stream
// have the same fingerprint regardless of how
// the work was divided.
func (r *Resolver) Fingerprint() uint64 {
	h := siphash.New(fingerprintKey)
	var tmp [binary.MaxVarintLen64]byte
	putint := func(v int64) {
		h.Write(tmp[:binary.PutVarint(tmp[:], v)])
	}
	for _, t := range r.tables {
		putint(t.offset)
		if t.shared {
			putint(1)
		} else {
			putint(0)
		}
		putint(int64(t.n))
		t.Each(func(id Symbol, text string, def int64) {
			putint(int64(len(text)))
			h.Write([]byte(text))
			putint(def)
			uses := t.Usage(id)
			putint(int64(len(uses)))
			for _, u := range uses {
				putint(u)
			}
		})
	}
	return h.Sum64()
}
