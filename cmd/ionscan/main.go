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

// Command ionscan decodes binary ion streams
// in bounded memory and reports their structure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/SnellerInc/ionscan/coord"
	"github.com/SnellerInc/ionscan/indexcache"
	"github.com/SnellerInc/ionscan/loader"
)

var (
	dashv     bool
	dashh     bool
	dashj     bool
	dashu     bool
	dashc     string
	dashb     int64
	dashw     int
	dashi     int64
	dashm     int64
	dashcache string
	dashcolor string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.BoolVar(&dashj, "j", false, "write JSON output")
	flag.BoolVar(&dashu, "u", false, "track symbol usage")
	flag.StringVar(&dashc, "c", "", "YAML configuration file")
	flag.Int64Var(&dashb, "b", 0, "buffer size in bytes (default from config, or 35MB)")
	flag.IntVar(&dashw, "w", 0, "number of workers (default from config, or 3)")
	flag.Int64Var(&dashi, "i", -1, "record top-level offsets at most every i bytes (0 records all)")
	flag.Int64Var(&dashm, "m", 0, "maximum decompressed size of compressed inputs (default 4GiB)")
	flag.StringVar(&dashcache, "cache", "", "directory of the index cache (disabled if empty)")
	flag.StringVar(&dashcolor, "color", "auto", "colorize output: auto, always or never")
}

// closers are run in reverse order
// by release before the process exits
var closers []func() error

func onExit(fn func() error) {
	closers = append(closers, fn)
}

func release() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
	}
	closers = closers[:0]
}

func exit(code int) {
	release()
	os.Exit(code)
}

func exitf(f string, args ...interface{}) {
	if f[len(f)-1] != '\n' {
		f += "\n"
	}
	fmt.Fprintf(os.Stderr, f, args...)
	exit(1)
}

func logf(f string, args ...interface{}) {
	if f[len(f)-1] != '\n' {
		f += "\n"
	}
	fmt.Fprintf(os.Stderr, f, args...)
}

func config() *coord.Config {
	conf := &coord.Config{}
	if dashc != "" {
		c, err := coord.ReadConfig(dashc)
		if err != nil {
			exitf("%s", err)
		}
		conf = c
	}
	if dashb != 0 {
		conf.BufferSize = dashb
	}
	if dashw != 0 {
		conf.Workers = dashw
	}
	if dashi >= 0 {
		conf.TopLevelInterval = dashi
	}
	if dashu {
		conf.TrackUsage = true
	}
	if dashv {
		conf.Logf = logf
	}
	return conf
}

// open returns a coordinator for the file
// at path; its resources are closed by release
func open(path string) *coord.Coordinator {
	opts := &loader.Options{MaxMemory: dashm}
	if dashv {
		opts.Logf = logf
	}
	src, err := loader.Open(path, opts)
	if err != nil {
		exitf("%s", err)
	}
	onExit(src.Close)
	c, err := coord.New(src, config())
	if err != nil {
		exitf("%s", err)
	}
	if dashcache == "" {
		return c
	}
	cache, err := indexcache.Open(dashcache)
	if err != nil {
		exitf("%s", err)
	}
	onExit(cache.Close)
	info, err := os.Stat(path)
	if err != nil {
		exitf("%s", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	c.UseCache(cache, indexcache.Identity{Path: abs, ModTime: info.ModTime().UnixNano()})
	return c
}

func writeJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitf("%s", err)
	}
}

func offset(s string) int64 {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil || v < 0 {
		exitf("bad offset %q", s)
	}
	return v
}

func main() {
	flag.Parse()
	args := flag.Args()
	if dashh || len(args) == 0 {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s [flags] stats <file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        decode every value and report statistics\n")
		fmt.Fprintf(os.Stderr, "    %s [flags] index <file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        run the top-level scan and describe the index\n")
		fmt.Fprintf(os.Stderr, "    %s [flags] symbols <file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        list symbol tables and their symbols\n")
		fmt.Fprintf(os.Stderr, "    %s [flags] inspect <file> <start> <end>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        describe the values in a range of offsets\n")
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.PrintDefaults()
		exit(1)
	}
	setColor(dashcolor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer release()
	switch args[0] {
	case "stats":
		if len(args) != 2 {
			exitf("usage: stats <file>")
		}
		stats(ctx, args[1])
	case "index":
		if len(args) != 2 {
			exitf("usage: index <file>")
		}
		index(ctx, args[1])
	case "symbols":
		if len(args) != 2 {
			exitf("usage: symbols <file>")
		}
		symbols(ctx, args[1])
	case "inspect":
		if len(args) != 4 {
			exitf("usage: inspect <file> <start> <end>")
		}
		inspect(ctx, args[1], offset(args[2]), offset(args[3]))
	default:
		exitf("commands: stats, index, symbols, inspect")
	}
}
