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
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	f := NewField("biomass", "mg m-3", []float64{0}, []float64{0, 1, 2, 3}, 1)
	copy(f.Data.Elements, []float64{1, math.NaN(), 5, 3})
	s := Summarize(f)
	if s.Count != 3 || s.Min != 1 || s.Max != 5 || s.Mean != 3 {
		t.Errorf("summary: %v", s)
	}
	s = Summarize(NewField("biomass", "mg m-3", []float64{0}, []float64{0}, 1))
	if s.Count != 0 || !math.IsNaN(s.Mean) {
		t.Errorf("summary of missing field: %v", s)
	}
}

func TestIntegral(t *testing.T) {
	mask := []int32{1, 1, 1, 1, 1, 1, 1, 0}
	g, err := NewLatLonGrid(4, 2, -180, mask)
	if err != nil {
		t.Fatal(err)
	}
	lat, lon, _ := g.Rectilinear()
	f := NewField("ones", "1", lat, lon, 1)
	for i := range f.Data.Elements {
		f.Data.Elements[i] = 1
	}
	f.Data.Elements[0] = math.NaN()
	v, err := Integral(f, g, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := 4 * math.Pi * 6 / 8; different(v, want, testTolerance) {
		t.Errorf("integral: %g != %g", v, want)
	}
	if _, err := Integral(f, g, 1); err == nil {
		t.Error("expected an error for an invalid time index")
	}
}
