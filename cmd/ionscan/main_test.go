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
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type closeLog struct {
	order []string
}

func (l *closeLog) closer(name string, err error) func() error {
	return func() error {
		l.order = append(l.order, name)
		return err
	}
}

func TestRelease(t *testing.T) {
	var l closeLog
	onExit(l.closer("src", nil))
	onExit(l.closer("cache", errors.New("cache: already closed")))
	onExit(l.closer("last", nil))
	release()
	if want := []string{"last", "cache", "src"}; !reflect.DeepEqual(l.order, want) {
		t.Fatalf("closed %v, want %v", l.order, want)
	}
	release()
	if len(l.order) != 3 {
		t.Fatalf("closers ran again: %v", l.order)
	}
}

func TestOpenRegistersClosers(t *testing.T) {
	defer release()
	path := filepath.Join(t.TempDir(), "bvm.10n")
	buf := []byte{0xe0, 0x01, 0x00, 0xea}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	dashcache = t.TempDir()
	defer func() { dashcache = "" }()
	c := open(path)
	if c.Size() != int64(len(buf)) {
		t.Fatalf("size %d", c.Size())
	}
	if len(closers) != 2 {
		t.Fatalf("%d closers registered", len(closers))
	}
	release()
	if len(closers) != 0 {
		t.Fatal("closers not cleared")
	}
}
