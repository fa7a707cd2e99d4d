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

package copepod

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Summary holds summary statistics of the valid values of a field.
type Summary struct {
	Count          int
	Min, Max, Mean float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d min=%g max=%g mean=%g", s.Count, s.Min, s.Max, s.Mean)
}

// Summarize returns statistics of the values in f that are not
// missing. If all values are missing, Min, Max and Mean are NaN.
func Summarize(f *Field) Summary {
	valid := make([]float64, 0, len(f.Data.Elements))
	for _, v := range f.Data.Elements {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return Summary{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	}
	return Summary{
		Count: len(valid),
		Min:   floats.Min(valid),
		Max:   floats.Max(valid),
		Mean:  floats.Sum(valid) / float64(len(valid)),
	}
}

// Integral returns the area-weighted sum of time record t of f, which is
// defined on grid g, over active cells with valid values. The units are
// those of f times radians².
func Integral(f *Field, g *Grid, t int) (float64, error) {
	nt, ny, nx := f.Shape()
	if ny != g.Ny || nx != g.Nx {
		return 0, fmt.Errorf("copepod: field %s has horizontal shape (%d, %d) but the grid has (%d, %d)",
			f.Name, ny, nx, g.Ny, g.Nx)
	}
	if t < 0 || t >= nt {
		return 0, fmt.Errorf("copepod: time index %d is out of range for field %s with %d records", t, f.Name, nt)
	}
	var sum float64
	for c, v := range f.Record(t) {
		if math.IsNaN(v) || g.Mask[c] == 0 {
			continue
		}
		sum += v * g.Area[c]
	}
	return sum, nil
}
