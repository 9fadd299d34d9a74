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

// Symbol represents an ion Symbol
type Symbol uint

const maxSymbol = 1<<32 - 1

// system symbol IDs
const (
	SymbolIon         Symbol = 1
	SymbolIon1_0      Symbol = 2
	SystemSymbolTable Symbol = 3 // $ion_symbol_table
	SymbolName        Symbol = 4
	SymbolVersion     Symbol = 5
	SymbolImports     Symbol = 6
	SymbolSymbols     Symbol = 7
	SymbolMaxID       Symbol = 8
	SharedSymbolTable Symbol = 9 // $ion_shared_symbol_table
)

// first symbol ID after the system symbols
const firstLocal = 10

var systemsyms = []string{
	"$0",
	"$ion",
	"$ion_1_0",
	"$ion_symbol_table",
	"name",
	"version",
	"imports",
	"symbols",
	"max_id",
	"$ion_shared_symbol_table",
}

// symbols are stored in fixed-size blocks
// so that growing a table never copies it
const symbolBlockSize = 10000

type symbol struct {
	text string
	def  int64   // absolute offset of the definition
	uses []int64 // absolute offsets of recorded uses
}

// Symtab is a symbol table defined at
// a particular offset in a stream.
//
// Symbol IDs are allocated in definition
// order starting after the system symbols.
// Each symbol remembers the offset at which
// it was defined, and optionally the offsets
// at which it was used.
type Symtab struct {
	offset  int64
	shared  bool
	blocks  [][]symbol
	n       int // next symbol ID
	toindex map[string]Symbol
}

// NewSymtab returns a table defined at offset
// that holds only the system symbols.
func NewSymtab(offset int64, shared bool) *Symtab {
	s := &Symtab{offset: offset, shared: shared, n: 1}
	for _, x := range systemsyms[1:] {
		s.add(x, offset)
	}
	return s
}

// Offset returns the absolute offset of
// the definition of s.
func (s *Symtab) Offset() int64 { return s.offset }

// Shared returns whether s was defined
// as a shared symbol table.
func (s *Symtab) Shared() bool { return s.shared }

// MaxID returns the largest defined symbol ID.
func (s *Symtab) MaxID() int { return s.n - 1 }

func (s *Symtab) slot(id Symbol) *symbol {
	if id == 0 || int(id) >= s.n {
		return nil
	}
	blk, i := int(id)/symbolBlockSize, int(id)%symbolBlockSize
	return &s.blocks[blk][i]
}

func (s *Symtab) add(text string, def int64) Symbol {
	id := s.n
	blk := id / symbolBlockSize
	if blk == len(s.blocks) {
		s.blocks = append(s.blocks, make([]symbol, 0, symbolBlockSize))
		if blk == 0 {
			// ID 0 has no text
			s.blocks[0] = append(s.blocks[0], symbol{def: -1})
		}
	}
	s.blocks[blk] = append(s.blocks[blk], symbol{text: text, def: def})
	s.n++
	if s.toindex != nil {
		if _, ok := s.toindex[text]; !ok {
			s.toindex[text] = Symbol(id)
		}
	}
	return Symbol(id)
}

// Add defines a new symbol with the given text
// at absolute offset def and returns its ID.
func (s *Symtab) Add(text string, def int64) Symbol {
	if def < s.offset {
		panic(fmt.Sprintf("ion: symbol defined at %d before its table at %d", def, s.offset))
	}
	return s.add(text, def)
}

// Lookup returns the text of id as of
// absolute offset at. Symbols defined after
// at are not visible.
//
// Looking up a symbol in a table that is
// defined after at is a bug in the caller,
// and Lookup panics.
func (s *Symtab) Lookup(id Symbol, at int64) (string, bool) {
	if at < s.offset {
		panic(fmt.Sprintf("ion: lookup at %d in symbol table defined at %d", at, s.offset))
	}
	if id == 0 {
		return systemsyms[0], true
	}
	sym := s.slot(id)
	if sym == nil || sym.def > at {
		return "", false
	}
	return sym.text, true
}

// Get returns the text of id regardless
// of where it was defined.
func (s *Symtab) Get(id Symbol) (string, bool) {
	if id == 0 {
		return systemsyms[0], true
	}
	if sym := s.slot(id); sym != nil {
		return sym.text, true
	}
	return "", false
}

// Defined returns the offset at which id was defined.
func (s *Symtab) Defined(id Symbol) (int64, bool) {
	if sym := s.slot(id); sym != nil {
		return sym.def, true
	}
	return 0, false
}

// AddUsage records that id was used at
// absolute offset at. It returns false if
// id does not resolve at that offset.
func (s *Symtab) AddUsage(id Symbol, at int64) bool {
	sym := s.slot(id)
	if sym == nil || sym.def > at || at < s.offset {
		return false
	}
	sym.uses = append(sym.uses, at)
	return true
}

// Usage returns the recorded use offsets of id.
func (s *Symtab) Usage(id Symbol) []int64 {
	if sym := s.slot(id); sym != nil {
		return sym.uses
	}
	return nil
}

// Intern returns the ID of x, defining it
// at the table's own offset if necessary.
func (s *Symtab) Intern(x string) Symbol {
	if sym, ok := s.Symbolize(x); ok {
		return sym
	}
	return s.add(x, s.offset)
}

// Symbolize returns the lowest ID
// whose text is x.
func (s *Symtab) Symbolize(x string) (Symbol, bool) {
	if s.toindex == nil {
		s.toindex = make(map[string]Symbol, s.n)
		for id := s.n - 1; id > 0; id-- {
			s.toindex[s.slot(Symbol(id)).text] = Symbol(id)
		}
	}
	sym, ok := s.toindex[x]
	return sym, ok
}

// Each calls fn for every symbol in ID order.
func (s *Symtab) Each(fn func(id Symbol, text string, def int64)) {
	for id := 1; id < s.n; id++ {
		sym := s.slot(Symbol(id))
		fn(Symbol(id), sym.text, sym.def)
	}
}

// Locals returns the text of the symbols
// that follow the system symbols.
func (s *Symtab) Locals() []string {
	var out []string
	for id := firstLocal; id < s.n; id++ {
		out = append(out, s.slot(Symbol(id)).text)
	}
	return out
}
