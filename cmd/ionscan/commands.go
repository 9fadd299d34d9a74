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

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/SnellerInc/ionscan/ion"
	"github.com/SnellerInc/ionscan/scan"
)

func stats(ctx context.Context, path string) {
	c := open(path)
	rep, err := c.Analyze(ctx)
	if err != nil {
		exitf("%s: %s", path, err)
	}
	if dashj {
		writeJSON(rep)
		return
	}
	fmt.Printf("%s %s (%s, %d chunks, %s)\n", heading("report"), rep.ID, human(rep.Size), rep.Chunks, rep.Elapsed)
	fmt.Printf("\t%d values, %d nulls, %d top-level\n", rep.Stats.Values, rep.Stats.Nulls, rep.TopLevel)
	fmt.Printf("\tmax depth %d, max annotations %d\n", rep.Stats.MaxDepth.Value, rep.Stats.MaxAnnotations.Value)
	fmt.Printf("\t%d symbol tables, %d symbols, fingerprint %016x\n", rep.Tables, rep.Symbols, rep.Fingerprint)
	if rep.Unresolved > 0 {
		fmt.Printf("\t%s\n", warn(fmt.Sprintf("%d unresolved symbol uses", rep.Unresolved)))
	}

	names := make([]string, 0, len(rep.ByType))
	for n := range rep.ByType {
		names = append(names, n)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "\t%s\t%s\t%s\t%s\t%s\t%s\n", heading("type"), heading("count"), heading("bytes"), heading("nulls"), heading("min"), heading("max"))
	for _, n := range names {
		ts := rep.ByType[n]
		fmt.Fprintf(w, "\t%s\t%d\t%s\t%d\t%d\t%d\n", typ(n), ts.Count, human(ts.Bytes), ts.Nulls, ts.MinBytes.Value, ts.MaxBytes.Value)
	}
	w.Flush()
	for _, n := range rep.Notices {
		fmt.Printf("%s %d: %s\n", warn("notice"), n.Offset, n.Msg)
	}
	for _, e := range rep.Errors {
		fmt.Printf("%s %s\n", bad("error"), e)
	}
	if len(rep.Errors) > 0 {
		exit(1)
	}
}

func index(ctx context.Context, path string) {
	c := open(path)
	x, err := c.ScanTopLevel(ctx)
	if err != nil {
		exitf("%s: %s", path, err)
	}
	if dashj {
		writeJSON(struct {
			Size          int64   `json:"size"`
			TopLevel      []int64 `json:"top_level"`
			SymtabOffsets []int64 `json:"symtab_offsets"`
			Checkpoints   []int64 `json:"checkpoints"`
		}{
			Size:          x.Size,
			TopLevel:      x.TopLevel,
			SymtabOffsets: x.SymtabOffsets,
			Checkpoints:   checkpointOffsets(x.Checkpoints.All()),
		})
		return
	}
	fmt.Printf("%s %s\n", heading(path), human(x.Size))
	fmt.Printf("\t%d top-level offsets, %d symbol tables\n", len(x.TopLevel), len(x.SymtabOffsets))
	for _, cp := range x.Checkpoints.All() {
		fmt.Printf("\tcheckpoint %d %s\n", cp.Offset, dim(fmt.Sprintf("depth %d", cp.Depth())))
	}
	for _, cc := range x.Contexts {
		fmt.Printf("\tcontext %s at %d\n", cc.Context, cc.Offset)
	}
	for _, n := range x.Notices {
		fmt.Printf("%s %d: %s\n", warn("notice"), n.Offset, n.Msg)
	}
}

func symbols(ctx context.Context, path string) {
	c := open(path)
	var res *ion.Resolver
	if dashu {
		rep, err := c.Analyze(ctx)
		if err != nil {
			exitf("%s: %s", path, err)
		}
		res = rep.Resolver
	} else {
		if _, err := c.ScanTopLevel(ctx); err != nil {
			exitf("%s: %s", path, err)
		}
		res = c.Resolver()
	}
	for _, st := range res.Tables() {
		if st.Offset() == ion.SystemOffset {
			continue
		}
		kind := "local"
		if st.Shared() {
			kind = "shared"
		}
		fmt.Printf("%s %s table at %d, %d symbols\n", heading("table"), kind, st.Offset(), st.MaxID())
		st.Each(func(id ion.Symbol, text string, def int64) {
			if id <= ion.SharedSymbolTable {
				return
			}
			uses := ""
			if dashu {
				uses = dim(fmt.Sprintf(" (%d uses)", len(st.Usage(id))))
			}
			fmt.Printf("\t$%d %s at %d%s\n", id, name(fmt.Sprintf("%q", text)), def, uses)
		})
	}
}

func inspect(ctx context.Context, path string, start, end int64) {
	c := open(path)
	entries, err := c.Inspect(ctx, start, end)
	if dashj {
		writeJSON(entries)
	} else {
		for i := range entries {
			e := &entries[i]
			field := ""
			if e.HasField {
				field = name(e.FieldName) + ": "
			}
			annot := ""
			for _, a := range e.Annotated {
				annot += name(a) + "::"
			}
			value := e.Value
			if e.SymbolValue != "" {
				value = e.SymbolValue
			}
			fmt.Printf("%10d %*s%s%s%s % x %s\n", e.Offset, 2*e.Depth, "", field, annot, typ(e.TypeName), e.Header, dim(value))
		}
	}
	if err != nil {
		exitf("%s: %s", path, err)
	}
}

func checkpointOffsets(lst []scan.Checkpoint) []int64 {
	out := make([]int64, len(lst))
	for i := range lst {
		out[i] = lst[i].Offset
	}
	return out
}
