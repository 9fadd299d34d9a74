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

// Package compr provides a unified interface wrapping
// third-party compression libraries, for index
// records and for whole compressed input streams.
package compr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"unsafe"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor describes a block
// compression algorithm.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress should append the compressed contents
	// of src to dst and return the result.
	Compress(src, dst []byte) []byte
}

// Decompressor is the inverse of Compressor.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	// See also Compressor.Name.
	Name() string
	// Decompress appends the decompressed
	// contents of src to dst.
	//
	// It must be safe to make multiple
	// calls to Decompress simultaneously
	// from different goroutines.
	Decompress(src, dst []byte) ([]byte, error)
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (z zstdCompressor) Name() string { return "zstd" }

var zstdDecoder *zstd.Decoder

func init() {
	// by default, concurrency is set to min(4, GOMAXPROCS);
	// we'd like it to *always* be GOMAXPROCS
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

type zstdDecompressor zstd.Decoder

func (z *zstdDecompressor) Name() string { return "zstd" }

func (z *zstdDecompressor) Decompress(src, dst []byte) ([]byte, error) {
	return (*zstd.Decoder)(z).DecodeAll(src, dst)
}

type s2Compressor struct{}

func (s2Compressor) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	// s2 requires non-overlapping src and dst
	if overlaps(src, tail) {
		tail = nil
	}
	got := s2.Encode(tail, src)
	if len(dst) == 0 {
		return got
	}
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (s2Compressor) Decompress(src, dst []byte) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return dst, err
	}
	out, err := s2.Decode(nil, src)
	if err != nil {
		return dst, err
	}
	if len(out) != n {
		return dst, fmt.Errorf("s2: expected %d bytes decompressed; got %d", n, len(out))
	}
	return append(dst, out...), nil
}

func (s2Compressor) Name() string { return "s2" }

// lz4 blocks do not record their decompressed
// size, so it is prepended as a uvarint
type lz4Compressor struct{}

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(src, dst []byte) []byte {
	var c lz4.Compressor
	dst = binary.AppendUvarint(dst, uint64(len(src)))
	start := len(dst)
	bound := lz4.CompressBlockBound(len(src))
	dst = append(dst, make([]byte, bound)...)
	n, err := c.CompressBlock(src, dst[start:])
	if err != nil {
		// only possible if dst is too small
		panic(err)
	}
	return dst[:start+n]
}

func (lz4Compressor) Decompress(src, dst []byte) ([]byte, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 {
		return dst, fmt.Errorf("lz4: bad length prefix")
	}
	// a literal run of 255 bytes costs at least
	// one input byte, so no block expands further
	if limit := uint64(len(src)-n) * 255; size > limit {
		return dst, fmt.Errorf("lz4: length prefix %d exceeds the %d-byte maximum for a %d-byte block", size, limit, len(src)-n)
	}
	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	got, err := lz4.UncompressBlock(src[n:], dst[start:])
	if err != nil {
		return dst[:start], err
	}
	if uint64(got) != size {
		return dst[:start], fmt.Errorf("lz4: expected %d bytes decompressed; got %d", size, got)
	}
	return dst, nil
}

// Compression selects a compression algorithm by name.
// The returned Compressor will return the same value
// for Compressor.Name as the specified name.
func Compression(name string) Compressor {
	switch name {
	case "zstd-better":
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "s2":
		return s2Compressor{}
	case "lz4":
		return lz4Compressor{}
	default:
		return nil
	}
}

// Decompression selects a decompression
// algorithm by name.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd", "zstd-better":
		return (*zstdDecompressor)(zstdDecoder)
	case "s2":
		return s2Compressor{}
	case "lz4":
		return lz4Compressor{}
	default:
		return nil
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	s2Magic   = []byte("\xff\x06\x00\x00S2sTwO")
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// MagicSize is the number of bytes
// that Sniff needs to see.
const MagicSize = 10

// Sniff returns the name of the stream
// compression format that begins with
// magic, or "" if it is not recognized.
func Sniff(magic []byte) string {
	switch {
	case bytes.HasPrefix(magic, zstdMagic):
		return "zstd"
	case bytes.HasPrefix(magic, s2Magic):
		return "s2"
	case bytes.HasPrefix(magic, lz4Magic):
		return "lz4"
	}
	return ""
}

// NewReader returns a reader that decompresses
// a stream in the named format.
// The caller must close the returned reader.
func NewReader(name string, r io.Reader) (io.ReadCloser, error) {
	switch name {
	case "zstd":
		z, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return z.IOReadCloser(), nil
	case "s2":
		return io.NopCloser(s2.NewReader(r)), nil
	case "lz4":
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("compr: unknown stream format %q", name)
}

// NewWriter returns a writer that compresses
// a stream in the named format.
func NewWriter(name string, w io.Writer) (io.WriteCloser, error) {
	switch name {
	case "zstd":
		return zstd.NewWriter(w)
	case "s2":
		return s2.NewWriter(w), nil
	case "lz4":
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("compr: unknown stream format %q", name)
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
