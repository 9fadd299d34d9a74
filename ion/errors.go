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

// FormatError is returned when the input
// is not well-formed binary ion.
//
// Format errors are never retried;
// a short buffer is reported by the
// decoding functions with ok == false
// rather than an error.
type FormatError struct {
	// Offset is the absolute offset
	// of the offending value.
	Offset int64
	Msg    string
}

func (f *FormatError) Error() string {
	return fmt.Sprintf("ion: offset %d: %s", f.Offset, f.Msg)
}

func malformed(off int64, f string, args ...interface{}) error {
	return &FormatError{Offset: off, Msg: fmt.Sprintf(f, args...)}
}
