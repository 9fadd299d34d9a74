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

//go:build linux

package loader

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// Mapped is a Loader for a file
// mapped into memory.
type Mapped struct {
	mem []byte
}

// Mmap maps the file at path.
func Mmap(path string) (*Mapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > math.MaxInt {
		return nil, fmt.Errorf("mapped file size %d exceeds max integer", info.Size())
	}
	if info.Size() == 0 {
		return &Mapped{}, nil
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	// workers mostly read forward
	unix.Madvise(mem, unix.MADV_SEQUENTIAL)
	return &Mapped{mem: mem}, nil
}

func (m *Mapped) Size() int64 { return int64(len(m.mem)) }

func (m *Mapped) Load(start, length int64) ([]byte, error) {
	return Memory(m.mem).Load(start, length)
}

func (m *Mapped) Close() error {
	if m.mem == nil {
		return nil
	}
	mem := m.mem
	m.mem = nil
	return unix.Munmap(mem)
}
