/*
Copyright © 2020 the copepod authors.
This file is part of copepod.

copepod is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

copepod is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with copepod.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package hash creates keys for cached results. Keys are hexadecimal, so
// they can be used as file names.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"io"

	"github.com/davecgh/go-spew/spew"
)

var printer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Hash returns a hash key for the specified object. Strings and
// fmt.Stringers are hashed by their text. Other objects are gob encoded,
// or printed with spew if gob cannot encode them (e.g., if they have no
// exported fields).
func Hash(object interface{}) string {
	h := fnv.New128a()
	switch v := object.(type) {
	case string:
		io.WriteString(h, v)
	case fmt.Stringer:
		io.WriteString(h, v.String())
	default:
		if err := gob.NewEncoder(h).Encode(object); err != nil {
			h.Reset()
			printer.Fprintf(h, "%#v", object)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
