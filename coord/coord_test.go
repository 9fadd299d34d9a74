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
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/SnellerInc/ionscan/indexcache"
	"github.com/SnellerInc/ionscan/ion"
	"github.com/SnellerInc/ionscan/loader"
	"github.com/SnellerInc/ionscan/scan"

	"github.com/cockroachdb/pebble/vfs"
)

// testStream returns a stream of n records;
// a new symbol table is written every
// tableEvery records, when it is non-zero
func testStream(n, tableEvery int) []byte {
	var out ion.Buffer
	var st *ion.Symtab
	for i := 0; i < n; i++ {
		if st == nil || (tableEvery > 0 && i%tableEvery == 0) {
			st = ion.NewSymtab(0, false)
			// vary the IDs between tables
			for j := 0; j < i%7; j++ {
				st.Intern(fmt.Sprintf("pad%d", j))
			}
			st.Intern("name")
			st.Intern("value")
			st.Intern("tag")
			out.WriteSymtab(st)
		}
		out.BeginAnnotation(st.Intern("tag"))
		out.BeginStruct()
		out.BeginField(st.Intern("name"))
		out.WriteString(strings.Repeat("n", i%23))
		out.BeginField(st.Intern("value"))
		out.BeginList()
		for j := 0; j < i%5; j++ {
			out.WriteInt(int64(i * j))
			out.WriteSymbol(st.Intern("tag"))
		}
		out.EndList()
		out.EndStruct()
		out.EndAnnotation()
	}
	return out.Bytes()
}

func analyze(t *testing.T, buf []byte, conf *Config) *Report {
	t.Helper()
	conf.Logf = t.Logf
	c, err := New(loader.Memory(buf), conf)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := c.Analyze(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rep
}

func TestAnalyzeDeterministic(t *testing.T) {
	buf := testStream(300, 40)
	base := analyze(t, buf, &Config{BufferSize: int64(len(buf)), Workers: 1, TrackUsage: true})
	if base.Chunks != 1 || len(base.Errors) != 0 {
		t.Fatalf("%d chunks, errors %v", base.Chunks, base.Errors)
	}
	if base.Unresolved != 0 {
		t.Fatalf("%d unresolved symbols: %v", base.Unresolved, base.UnresolvedAt)
	}
	if base.TopLevel != 300+2*8 {
		t.Fatalf("%d top-level values", base.TopLevel)
	}
	for _, conf := range []Config{
		{BufferSize: 512, Workers: 1},
		{BufferSize: 512, Workers: 8},
		{BufferSize: 100, Workers: 3},
		{BufferSize: 2000, Workers: 2, TopLevelInterval: 700},
	} {
		t.Run(fmt.Sprintf("%d-%d-%d", conf.BufferSize, conf.Workers, conf.TopLevelInterval), func(t *testing.T) {
			conf.TrackUsage = true
			rep := analyze(t, buf, &conf)
			if rep.Chunks < 2 {
				t.Fatalf("%d chunks", rep.Chunks)
			}
			if len(rep.Errors) != 0 {
				t.Fatal(rep.Errors)
			}
			if !reflect.DeepEqual(rep.Stats, base.Stats) {
				t.Fatal("stats differ")
			}
			if rep.Fingerprint != base.Fingerprint {
				t.Fatalf("fingerprint %x, want %x", rep.Fingerprint, base.Fingerprint)
			}
		})
	}
}

func TestMergeOrder(t *testing.T) {
	buf := testStream(100, 0)
	c, err := New(loader.Memory(buf), &Config{BufferSize: 256, TrackUsage: true})
	if err != nil {
		t.Fatal(err)
	}
	index, err := c.ScanTopLevel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	plans, err := c.plan()
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) < 3 {
		t.Fatalf("%d chunks", len(plans))
	}
	var results []chunkResult
	for _, p := range plans {
		results = append(results, c.decode(p))
	}
	merge := func(order []int) *Report {
		res, err := index.Resolver()
		if err != nil {
			t.Fatal(err)
		}
		rep := &Report{Stats: new(scan.Stats)}
		m := newMerger(rep, res)
		for _, i := range order {
			m.push(results[i])
		}
		if !m.done(len(results)) {
			t.Fatal("not done")
		}
		rep.Fingerprint = res.Fingerprint()
		return rep
	}
	var forward, backward, rotated []int
	for i := range results {
		forward = append(forward, i)
		backward = append(backward, len(results)-1-i)
		rotated = append(rotated, (i+len(results)/2)%len(results))
	}
	want := merge(forward)
	for _, order := range [][]int{backward, rotated} {
		got := merge(order)
		if !reflect.DeepEqual(got.Stats, want.Stats) || got.Fingerprint != want.Fingerprint {
			t.Fatalf("order %v: result differs", order)
		}
	}

	m := newMerger(&Report{Stats: new(scan.Stats)}, ion.NewResolver())
	m.push(results[0])
	func() {
		defer func() {
			if recover() == nil {
				t.Error("pushing a merged chunk did not panic")
			}
		}()
		m.push(results[0])
	}()
}

func TestPlan(t *testing.T) {
	buf := testStream(200, 0)
	c, err := New(loader.Memory(buf), &Config{BufferSize: 300})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ScanTopLevel(context.Background()); err != nil {
		t.Fatal(err)
	}
	plans, err := c.plan()
	if err != nil {
		t.Fatal(err)
	}
	prev := int64(0)
	for i, p := range plans {
		if p.seq != i || p.cp.Offset != prev {
			t.Fatalf("chunk %d: %+v", i, p)
		}
		if p.end-p.cp.Offset > 300 || p.end <= p.cp.Offset {
			t.Fatalf("chunk %d: [%d, %d)", i, p.cp.Offset, p.end)
		}
		if i > 0 && p.ctx != ion.Context1_0 {
			t.Fatalf("chunk %d: context %s", i, p.ctx)
		}
		prev = p.end
	}
	if prev != int64(len(buf)) {
		t.Fatalf("chunks end at %d of %d", prev, len(buf))
	}
}

func TestChunkErrorRecorded(t *testing.T) {
	good := testStream(50, 0)
	// a struct holding a reserved type
	bad := []byte{0xd2, 0x8a, 0x12}
	buf := append(append([]byte(nil), good...), bad...)
	rep := analyze(t, buf, &Config{BufferSize: 128, Workers: 2})
	if len(rep.Errors) != 1 {
		t.Fatalf("errors %v", rep.Errors)
	}
	off, ok := rep.Errors[0].Offset()
	if !ok || off != int64(len(good))+1 {
		t.Fatalf("error offset %d %v: %s", off, ok, rep.Errors[0])
	}
	if rep.Stats.Values == 0 {
		t.Fatal("no chunks merged")
	}
}

func TestTopLevelErrorReturned(t *testing.T) {
	buf := append(testStream(10, 0), 0x21)
	c, err := New(loader.Memory(buf), &Config{BufferSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Analyze(context.Background())
	if !errors.Is(err, scan.ErrNotAtEnd) {
		t.Fatalf("got %v", err)
	}
}

func TestCanceled(t *testing.T) {
	buf := testStream(100, 0)
	c, err := New(loader.Memory(buf), &Config{BufferSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Analyze(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestCachedIndex(t *testing.T) {
	buf := testStream(120, 30)
	cache, err := indexcache.OpenFS("cache", vfs.NewMem())
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	ident := indexcache.Identity{Path: "test.10n", ModTime: 1}
	conf := &Config{BufferSize: 200, Logf: t.Logf}

	c1, err := New(loader.Memory(buf), conf)
	if err != nil {
		t.Fatal(err)
	}
	c1.UseCache(cache, ident)
	want, err := c1.ScanTopLevel(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	c2, err := New(loader.Memory(buf), conf)
	if err != nil {
		t.Fatal(err)
	}
	c2.UseCache(cache, ident)
	if _, ok := c2.cached(); !ok {
		t.Fatal("index was not cached")
	}
	got, err := c2.ScanTopLevel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cached index differs:\n%+v\n%+v", got, want)
	}
	if c1.Resolver().Fingerprint() != c2.Resolver().Fingerprint() {
		t.Fatal("resolvers differ")
	}
}

func TestAppendTableAcrossBuffers(t *testing.T) {
	var out ion.Buffer
	st := ion.NewSymtab(0, false)
	st.Intern("x")
	out.WriteSymtab(st)
	out.BeginAnnotation(ion.SystemSymbolTable)
	out.BeginStruct()
	out.BeginField(ion.SymbolSymbols)
	out.BeginList()
	for i := 0; i < 20; i++ {
		out.WriteString(fmt.Sprintf("s%02d", i))
	}
	out.EndList()
	out.BeginField(ion.SymbolImports)
	out.WriteSymbol(ion.SystemSymbolTable)
	out.EndStruct()
	out.EndAnnotation()
	at := int64(out.Size())
	out.WriteSymbol(10)
	buf := out.Bytes()

	var fp uint64
	for _, bufsize := range []int64{int64(len(buf)), 64, 32, 24} {
		c, err := New(loader.Memory(buf), &Config{BufferSize: bufsize, Logf: t.Logf})
		if err != nil {
			t.Fatal(err)
		}
		index, err := c.ScanTopLevel(context.Background())
		if err != nil {
			t.Fatalf("buffer size %d: %s", bufsize, err)
		}
		if len(index.Tables) != 3 || !index.Tables[2].Append {
			t.Fatalf("buffer size %d: tables %+v", bufsize, index.Tables)
		}
		if got, _ := c.Resolver().Resolve(10, at); got != "x" {
			t.Fatalf("buffer size %d: $10 is %q", bufsize, got)
		}
		if got, _ := c.Resolver().Resolve(11, at); got != "s00" {
			t.Fatalf("buffer size %d: $11 is %q", bufsize, got)
		}
		if fp == 0 {
			fp = c.Resolver().Fingerprint()
		} else if got := c.Resolver().Fingerprint(); got != fp {
			t.Fatalf("buffer size %d: fingerprint %x, want %x", bufsize, got, fp)
		}
	}
}

func TestInspectNames(t *testing.T) {
	buf := testStream(20, 5)
	c, err := New(loader.Memory(buf), &Config{BufferSize: 150})
	if err != nil {
		t.Fatal(err)
	}
	index, err := c.ScanTopLevel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// the last record
	last := index.TopLevel[len(index.TopLevel)-1]
	entries, err := c.Inspect(context.Background(), last, int64(len(buf)))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 3 {
		t.Fatalf("%d entries", len(entries))
	}
	if got := entries[0].Annotated; len(got) != 1 || got[0] != "tag" {
		t.Fatalf("annotations %v", got)
	}
	if entries[1].FieldName != "name" || entries[2].FieldName != "value" {
		t.Fatalf("fields %q %q", entries[1].FieldName, entries[2].FieldName)
	}
	for i := range entries {
		if entries[i].Type == ion.SymbolType && entries[i].SymbolValue != "tag" {
			t.Fatalf("symbol %+v", entries[i])
		}
	}
}

func TestIndexHelpers(t *testing.T) {
	x := &Index{
		TopLevel: []int64{0, 4, 40, 90},
		Contexts: []scan.ContextChange{{Offset: 0, Context: ion.Context1_0}},
	}
	x.Checkpoints.Add(scan.Checkpoint{Offset: 60})
	tcs := []struct {
		off  int64
		want int64
	}{
		{0, 0}, {39, 4}, {59, 40}, {60, 60}, {89, 60}, {500, 90},
	}
	for _, tc := range tcs {
		if got := x.Nearest(tc.off).Offset; got != tc.want {
			t.Errorf("Nearest(%d) = %d, want %d", tc.off, got, tc.want)
		}
	}
	if x.ContextAt(0) != ion.ContextUnknown || x.ContextAt(1) != ion.Context1_0 {
		t.Fatal("wrong contexts")
	}
}

func TestParseConfig(t *testing.T) {
	conf, err := ParseConfig([]byte("buffer_size: 1048576\nworkers: 4\ntrack_usage: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if conf.BufferSize != 1<<20 || conf.Workers != 4 || !conf.TrackUsage || conf.TopLevelInterval != 0 {
		t.Fatalf("got %+v", conf)
	}
	conf, err = ParseConfig([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if conf.BufferSize != DefaultBufferSize || conf.Workers != DefaultWorkers {
		t.Fatalf("defaults %+v", conf)
	}
	for _, bad := range []string{"workers: -1", "buffer_size: 3", "bogus: 1", "top_level_interval: -5"} {
		if _, err := ParseConfig([]byte(bad)); err == nil {
			t.Errorf("%q: no error", bad)
		}
	}
}
