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
	"github.com/SnellerInc/ionscan/ion"
)

// TableDef describes a symbol table
// definition found in a stream.
type TableDef struct {
	// Offset is the absolute offset of the
	// binary version marker or annotated struct
	// that defines the table.
	Offset int64 `json:"offset"`
	// BVM is set for the implicit table
	// that a binary version marker opens.
	BVM bool `json:"bvm,omitempty"`
	// Shared is set for $ion_shared_symbol_table.
	Shared bool `json:"shared,omitempty"`
	// Append is set when the table imports
	// $ion_symbol_table, which extends the
	// previous table instead of replacing it.
	Append bool `json:"append,omitempty"`
	// Imports is set when the table imports
	// shared tables, which are not resolved.
	Imports bool `json:"imports,omitempty"`
}

// SymbolDef is a symbol defined by a local
// symbol table at absolute offset Offset.
type SymbolDef struct {
	Text   string `json:"text"`
	Offset int64  `json:"offset"`
}

// ContextChange records the encoding
// context that begins at Offset.
type ContextChange struct {
	Offset  int64       `json:"offset"`
	Context ion.Context `json:"context"`
}

// Notice is a non-fatal observation
// about the data at Offset.
type Notice struct {
	Offset int64  `json:"offset"`
	Msg    string `json:"msg"`
}

// Usage records a use of Symbol at Offset.
type Usage struct {
	Symbol ion.Symbol
	Offset int64
}

// Result is the output of a decoding task.
// Results are values: tasks never share them.
type Result struct {
	// Start is the absolute offset at which
	// the task began; End is the offset at
	// which it stopped.
	Start, End int64

	// TopLevel, SymtabOffsets, Tables, Symbols
	// and Contexts are produced by TopLevel.
	TopLevel      []int64
	SymtabOffsets []int64
	Tables        []TableDef
	Symbols       []SymbolDef
	Contexts      []ContextChange

	// Checkpoint is where decoding paused,
	// or nil when the stream was exhausted.
	Checkpoint *Checkpoint
	// Resume is the state needed to continue
	// a top-level scan from Checkpoint.
	Resume *Resume
	AtEnd  bool

	// Stats and Usages are produced by Chunk.
	Stats  *Stats
	Usages []Usage

	Notices []Notice
}

// Logf is the signature of a logging hook.
type Logf func(f string, args ...interface{})

func (l Logf) printf(f string, args ...interface{}) {
	if l != nil {
		l(f, args...)
	}
}
