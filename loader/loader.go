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

// Package loader provides random access
// to the bytes of an input stream.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/SnellerInc/ionscan/compr"
)

// Loader loads byte ranges of a stream.
//
// Load may be called concurrently. The
// returned slice must not be modified and
// is only valid until the Loader is closed.
type Loader interface {
	// Size is the size of the stream in bytes.
	Size() int64
	// Load returns the bytes [start, start+length).
	Load(start, length int64) ([]byte, error)
	io.Closer
}

func checkRange(start, length, size int64) error {
	if start < 0 || length < 0 || start+length > size {
		return fmt.Errorf("loader: range [%d, %d) outside of %d bytes", start, start+length, size)
	}
	return nil
}

// Memory is a Loader for a stream held in memory.
type Memory []byte

func (m Memory) Size() int64 { return int64(len(m)) }

func (m Memory) Load(start, length int64) ([]byte, error) {
	if err := checkRange(start, length, m.Size()); err != nil {
		return nil, err
	}
	return m[start : start+length : start+length], nil
}

func (m Memory) Close() error { return nil }

// File is a Loader that reads each
// range from a file into a new buffer.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: info.Size()}, nil
}

func (f *File) Size() int64 { return f.size }

func (f *File) Load(start, length int64) ([]byte, error) {
	if err := checkRange(start, length, f.size); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	_, err := f.f.ReadAt(buf, start)
	if err != nil {
		return nil, fmt.Errorf("loader: reading [%d, %d): %w", start, start+length, err)
	}
	return buf, nil
}

func (f *File) Close() error { return f.f.Close() }

// DefaultMaxMemory is the default limit on
// the decompressed size of a compressed input.
const DefaultMaxMemory = 4 << 30

// ErrTooLarge is returned when a compressed
// input decompresses to more than the limit.
var ErrTooLarge = errors.New("loader: decompressed stream too large")

// Options configure Open.
type Options struct {
	// MaxMemory limits the decompressed size
	// of compressed inputs. Zero means
	// DefaultMaxMemory.
	MaxMemory int64
	Logf      func(f string, args ...interface{})
}

func (o *Options) logf(f string, args ...interface{}) {
	if o.Logf != nil {
		o.Logf(f, args...)
	}
}

// Open returns a Loader for the file at path.
// Compressed files (see compr.Sniff) are
// decompressed into memory, up to
// opts.MaxMemory bytes. Otherwise the
// file is mapped into memory where that is
// supported, and read on demand where it is not.
// opts may be nil.
func Open(path string, opts *Options) (Loader, error) {
	if opts == nil {
		opts = &Options{}
	}
	limit := opts.MaxMemory
	if limit <= 0 {
		limit = DefaultMaxMemory
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	magic, _ := r.Peek(compr.MagicSize)
	if name := compr.Sniff(magic); name != "" {
		m, err := Decompress(name, r, limit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		opts.logf("%s: %s stream decompressed into %d bytes of memory", path, name, len(m))
		return m, nil
	}
	if m, err := Mmap(path); err == nil {
		return m, nil
	}
	return OpenFile(path)
}

// Decompress reads the whole of a stream
// compressed in the named format. It returns
// ErrTooLarge if the stream holds more than
// limit bytes.
func Decompress(name string, r io.Reader, limit int64) (Memory, error) {
	dr, err := compr.NewReader(name, r)
	if err != nil {
		return nil, err
	}
	defer dr.Close()
	buf, err := io.ReadAll(io.LimitReader(dr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("loader: decompressing %s: %w", name, err)
	}
	if int64(len(buf)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes of %s", ErrTooLarge, limit, name)
	}
	return Memory(buf), nil
}
