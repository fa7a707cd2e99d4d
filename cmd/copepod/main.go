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

// Command copepod is a command-line interface for downloading, converting,
// and regridding COPEPOD zooplankton biomass fields.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/copepod/copepodutil"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
}

func main() {
	if err := copepodutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
