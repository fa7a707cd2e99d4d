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

func TestTransform(t *testing.T) {
	f := NewField("biomass", "mg m-3", []float64{-45, 45}, []float64{-90, 90}, 1)
	f.Data.Elements[0] = 12.011
	f.Data.Elements[3] = 24.022
	if err := f.Transform("biomass / 12.011 + lat / 45", "mmol C m-3"); err != nil {
		t.Fatal(err)
	}
	if different(f.Data.Elements[0], 0, testTolerance) {
		t.Errorf("element 0: %g != 0", f.Data.Elements[0])
	}
	if different(f.Data.Elements[3], 3, testTolerance) {
		t.Errorf("element 3: %g != 3", f.Data.Elements[3])
	}
	if !math.IsNaN(f.Data.Elements[1]) {
		t.Errorf("missing value changed to %g", f.Data.Elements[1])
	}
	if f.Units != "mmol C m-3" {
		t.Errorf("units: %s", f.Units)
	}
}

func TestTransformFunctions(t *testing.T) {
	f := NewField("biomass", "mg m-3", []float64{60}, []float64{0}, 1)
	f.Data.Elements[0] = 100
	if err := f.Transform("log10(biomass) * cos(lat)", ""); err != nil {
		t.Fatal(err)
	}
	if different(f.Data.Elements[0], 1, testTolerance) {
		t.Errorf("result: %g != 1", f.Data.Elements[0])
	}
	if f.Units != "mg m-3" {
		t.Errorf("units changed to %s", f.Units)
	}
}

func TestTransformErrors(t *testing.T) {
	f := NewField("biomass", "mg m-3", []float64{0}, []float64{0}, 1)
	f.Data.Elements[0] = 1
	if err := f.Transform("chlorophyll * 2", ""); err == nil {
		t.Error("expected an error for an undefined variable")
	}
	if err := f.Transform("biomass *", ""); err == nil {
		t.Error("expected an error for an invalid expression")
	}
	if err := f.Transform("biomass > 0", ""); err == nil {
		t.Error("expected an error for a non-numeric result")
	}
	for _, expr := range []string{"exp('abc')", "log(biomass > 0)", "cos(lat, lon)", "log10()"} {
		if err := f.Transform(expr, ""); err == nil {
			t.Errorf("%s: expected an error for invalid function arguments", expr)
		}
	}
	if f.Data.Elements[0] != 1 {
		t.Errorf("failed transforms changed the value to %g", f.Data.Elements[0])
	}
}
