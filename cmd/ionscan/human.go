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
	"fmt"
	"strconv"
)

var hsizes = []byte{'K', 'M', 'G', 'T', 'P', 'E'}

// human formats a byte count
// with a binary prefix
func human(size int64) string {
	if size < 1024 {
		return strconv.FormatInt(size, 10) + " B"
	}
	f := float64(size)
	i := -1
	for f >= 1024 && i < len(hsizes)-1 {
		f /= 1024
		i++
	}
	return fmt.Sprintf("%.3f %ciB", f, hsizes[i])
}
