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
	"io"
	"math"
	"reflect"
	"strings"
	"testing"
)

const testCSV = `# COPEPOD global biomass fields
# values in mg m-3
Latitude,Longitude,Biomass
-45.0,-135.0,1.5
-45.0,315.0,3
45.0,135.0,-999
45.0,-45.0,
-45.0,45.0,NaN
`

func testConvertOptions() ConvertOptions {
	o := DefaultConvertOptions()
	o.Dx, o.Dy = 90, 90
	return o
}

func TestConvert(t *testing.T) {
	f, err := Convert(testConvertOptions(), strings.NewReader(testCSV))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.Data.Shape, []int{1, 2, 4}) {
		t.Fatalf("shape: %v", f.Data.Shape)
	}
	want := []float64{1.5, 3, math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	if !sameOrBothNaN(f.Data.Elements, want, 0) {
		t.Errorf("data: %v != %v", f.Data.Elements, want)
	}
	if !reflect.DeepEqual(f.Lat.Elements, []float64{-45, 45}) {
		t.Errorf("lat: %v", f.Lat.Elements)
	}
	if !reflect.DeepEqual(f.Lon.Elements, []float64{-135, -45, 45, 135}) {
		t.Errorf("lon: %v", f.Lon.Elements)
	}
	if f.Name != "biomass" || f.Units != "mg m-3" {
		t.Errorf("metadata: %s [%s]", f.Name, f.Units)
	}
	if !reflect.DeepEqual(f.Time, []float64{1}) {
		t.Errorf("time: %v", f.Time)
	}
}

func TestConvertMultipleFiles(t *testing.T) {
	o := testConvertOptions()
	o.Times = []float64{15, 45}
	o.TimeUnits = "days since 2000-01-01"
	f, err := Convert(o, strings.NewReader("-45,-135,1\n"), strings.NewReader("-45,-135,2\n45,135,4\n"))
	if err != nil {
		t.Fatal(err)
	}
	if nt, _, _ := f.Shape(); nt != 2 {
		t.Fatalf("number of records: %d", nt)
	}
	if f.Data.Get(0, 0, 0) != 1 || f.Data.Get(1, 0, 0) != 2 || f.Data.Get(1, 1, 3) != 4 {
		t.Errorf("data: %v", f.Data.Elements)
	}
	if !reflect.DeepEqual(f.Time, o.Times) || f.TimeUnits != o.TimeUnits {
		t.Errorf("time: %v %s", f.Time, f.TimeUnits)
	}
}

func TestConvertDelimiter(t *testing.T) {
	o := testConvertOptions()
	o.Delimiter = '\t'
	o.LatColumn, o.LonColumn, o.ValueColumn = 1, 0, 3
	f, err := Convert(o, strings.NewReader("lon\tlat\tdepth\tvalue\n135\t45\t0\t7.25\n"))
	if err != nil {
		t.Fatal(err)
	}
	if v := f.Data.Get(0, 1, 3); v != 7.25 {
		t.Errorf("value: %g != 7.25", v)
	}
}

func TestCellOfWrapsLongitude(t *testing.T) {
	o := testConvertOptions()
	for _, lon := range []float64{-135, 225, 585, -495, -135 + 360*1000} {
		j, i, err := o.cellOf(-45, lon, 2, 4)
		if err != nil {
			t.Errorf("longitude %g: %v", lon, err)
			continue
		}
		if j != 0 || i != 0 {
			t.Errorf("longitude %g: cell (%d, %d) != (0, 0)", lon, j, i)
		}
	}
}

func TestConvertErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		o     func(*ConvertOptions)
		files []io.Reader
	}{
		{
			name:  "off grid",
			files: []io.Reader{strings.NewReader("-40,-135,1\n")},
		},
		{
			name:  "infinite longitude",
			files: []io.Reader{strings.NewReader("-45,Inf,1\n")},
		},
		{
			name:  "infinite latitude",
			files: []io.Reader{strings.NewReader("-Inf,-135,1\n")},
		},
		{
			name:  "NaN longitude",
			files: []io.Reader{strings.NewReader("-45,NaN,1\n")},
		},
		{
			name:  "huge longitude",
			files: []io.Reader{strings.NewReader("-45,1e300,1\n")},
		},
		{
			name:  "huge negative longitude",
			files: []io.Reader{strings.NewReader("-45,-1e300,1\n")},
		},
		{
			name:  "duplicate",
			files: []io.Reader{strings.NewReader("-45,-135,1\n-45,225,2\n")},
		},
		{
			name:  "bad value",
			files: []io.Reader{strings.NewReader("-45,-135,abc\n")},
		},
		{
			name:  "too few columns",
			files: []io.Reader{strings.NewReader("-45,-135\n")},
		},
		{
			name:  "uneven grid",
			o:     func(o *ConvertOptions) { o.Dx = 7 },
			files: []io.Reader{strings.NewReader("-45,-135,1\n")},
		},
		{
			name:  "times",
			o:     func(o *ConvertOptions) { o.Times = []float64{1, 2} },
			files: []io.Reader{strings.NewReader("-45,-135,1\n")},
		},
		{
			name: "no files",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			o := testConvertOptions()
			if test.o != nil {
				test.o(&o)
			}
			if _, err := Convert(o, test.files...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConvertWriteRead(t *testing.T) {
	f, err := Convert(testConvertOptions(), strings.NewReader(testCSV))
	if err != nil {
		t.Fatal(err)
	}
	w := tempFile(t, "convert")
	defer w.Close()
	if err := f.Write(w); err != nil {
		t.Fatal(err)
	}
	f2, err := ReadField(w, "biomass")
	if err != nil {
		t.Fatal(err)
	}
	if !sameOrBothNaN(f.Data.Elements, f2.Data.Elements, 0) {
		t.Errorf("data: %v != %v", f2.Data.Elements, f.Data.Elements)
	}
}
