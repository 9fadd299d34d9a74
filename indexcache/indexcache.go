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

// Package indexcache stores the index that a
// top-level scan produces so that later runs
// over the same input can skip the scan.
package indexcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/SnellerInc/ionscan/compr"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"golang.org/x/crypto/blake2b"
)

// Identity describes an input and the
// parameters of the scan that indexed it.
// Changing any field invalidates the index.
type Identity struct {
	Path       string
	Size       int64
	ModTime    int64 // unix nanoseconds
	BufferSize int64
	Interval   int64
}

// Key returns the cache key for id.
func (id *Identity) Key() []byte {
	h := xxhash.New()
	var tmp [binary.MaxVarintLen64]byte
	h.WriteString(id.Path)
	for _, v := range []int64{int64(len(id.Path)), id.Size, id.ModTime, id.BufferSize, id.Interval} {
		h.Write(tmp[:binary.PutVarint(tmp[:], v)])
	}
	return binary.BigEndian.AppendUint64([]byte(keyPrefix), h.Sum64())
}

const keyPrefix = "index/"

// ErrCorrupt is returned by Get when
// a stored record fails verification.
var ErrCorrupt = errors.New("indexcache: corrupt record")

// Cache is an index cache backed by pebble.
type Cache struct {
	db   *pebble.DB
	comp compr.Compressor
	dec  compr.Decompressor
}

// Open opens or creates a cache in dir.
func Open(dir string) (*Cache, error) {
	return OpenFS(dir, vfs.Default)
}

// OpenFS opens or creates a cache in
// dir within the filesystem fs.
func OpenFS(dir string, fs vfs.FS) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{FS: fs})
	if err != nil {
		return nil, fmt.Errorf("indexcache: %w", err)
	}
	return &Cache{
		db:   db,
		comp: compr.Compression("zstd"),
		dec:  compr.Decompression("zstd"),
	}, nil
}

// Put stores val under key. Records are
// compressed and followed by the BLAKE2b-256
// sum of the compressed bytes.
func (c *Cache) Put(key, val []byte) error {
	rec := c.comp.Compress(val, nil)
	sum := blake2b.Sum256(rec)
	rec = append(rec, sum[:]...)
	return c.db.Set(key, rec, pebble.Sync)
}

// Get returns the value stored under key.
// It returns false if there is none.
// A record that fails verification is
// deleted and ErrCorrupt is returned.
func (c *Cache) Get(key []byte) ([]byte, bool, error) {
	rec, closer, err := c.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := c.open(rec)
	closer.Close()
	if err != nil {
		if derr := c.Delete(key); derr != nil {
			return nil, false, derr
		}
		return nil, false, err
	}
	return val, true, nil
}

// open verifies and decompresses rec,
// which is only valid until the pebble
// closer is closed
func (c *Cache) open(rec []byte) ([]byte, error) {
	if len(rec) < blake2b.Size256 {
		return nil, ErrCorrupt
	}
	body, want := rec[:len(rec)-blake2b.Size256], rec[len(rec)-blake2b.Size256:]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:], want) {
		return nil, ErrCorrupt
	}
	val, err := c.dec.Decompress(body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
	}
	return val, nil
}

// Delete removes the value stored under key.
func (c *Cache) Delete(key []byte) error {
	return c.db.Delete(key, pebble.Sync)
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.db.Close()
}
