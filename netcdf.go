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
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// coordinate variable names that are never treated as field data.
var coordVars = map[string]bool{
	"time": true, "lat": true, "lon": true,
	"lat_bnds": true, "lon_bnds": true, "time_bnds": true,
}

// Write writes f to netcdf file w.
func (f *Field) Write(w *os.File) error {
	if err := f.Check(); err != nil {
		return err
	}
	nt, ny, nx := f.Shape()
	var h *cdf.Header
	var coordDims, dataDims []string
	if f.Rectilinear() {
		h = cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, ny, nx})
		dataDims = []string{"time", "lat", "lon"}
		h.AddVariable("lat", []string{"lat"}, []float64{0})
		h.AddVariable("lon", []string{"lon"}, []float64{0})
	} else {
		h = cdf.NewHeader([]string{"time", "nlat", "nlon"}, []int{nt, ny, nx})
		dataDims = []string{"time", "nlat", "nlon"}
		coordDims = []string{"nlat", "nlon"}
		h.AddVariable("lat", coordDims, []float64{0})
		h.AddVariable("lon", coordDims, []float64{0})
	}
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddAttribute("lat", "long_name", "latitude")
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddAttribute("lon", "long_name", "longitude")

	h.AddVariable("time", []string{"time"}, []float64{0})
	timeUnits := f.TimeUnits
	if timeUnits == "" {
		timeUnits = "1"
	}
	h.AddAttribute("time", "units", timeUnits)

	h.AddVariable(f.Name, dataDims, []float64{0})
	h.AddAttribute(f.Name, "units", f.Units)
	if f.LongName != "" {
		h.AddAttribute(f.Name, "long_name", f.LongName)
	}
	h.AddAttribute(f.Name, "_FillValue", []float64{math.NaN()})
	h.AddAttribute(f.Name, "coordinates", "lat lon")

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(f.Attributes))
	for n := range f.Attributes {
		if n == "history" {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h.AddAttribute("", n, f.Attributes[n])
	}
	history := strings.TrimSpace(f.Attributes["history"] + "\n" +
		fmt.Sprintf("%s: written by copepod v%s", gridTimestamp(), Version))
	h.AddAttribute("", "history", history)
	h.Define()

	ff, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return fmt.Errorf("copepod: creating netcdf file: %v", err)
	}
	for _, v := range []struct {
		name string
		data []float64
	}{
		{name: "lat", data: f.Lat.Elements},
		{name: "lon", data: f.Lon.Elements},
		{name: "time", data: f.Time},
		{name: f.Name, data: f.Data.Elements},
	} {
		if err := writeNCF(ff, v.name, v.data); err != nil {
			return fmt.Errorf("copepod: writing variable %s to netcdf file: %v", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// ReadField reads the field variable called name from netcdf file rw.
// If name is empty, the file must contain exactly one non-coordinate
// variable, which will be read.
func ReadField(rw cdf.ReaderWriterAt, name string) (*Field, error) {
	ff, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("copepod: opening netcdf field file: %v", err)
	}
	if name == "" {
		var candidates []string
		for _, v := range ff.Header.Variables() {
			if !coordVars[v] {
				candidates = append(candidates, v)
			}
		}
		if len(candidates) != 1 {
			return nil, fmt.Errorf("copepod: cannot determine which field variable to read from candidates %v; "+
				"specify a variable name", candidates)
		}
		name = candidates[0]
	}
	dims := ff.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("copepod: variable %s not in file", name)
	}
	data, err := readNCF(ff, name)
	if err != nil {
		return nil, err
	}
	f := &Field{
		Name:       name,
		Units:      stringAttribute(ff, name, "units"),
		LongName:   stringAttribute(ff, name, "long_name"),
		Attributes: make(map[string]string),
	}
	switch len(dims) {
	case 2:
		f.Data = sparse.ZerosDense(1, dims[0], dims[1])
		f.Time = []float64{1}
	case 3:
		f.Data = sparse.ZerosDense(dims...)
		if t, err := readNCF(ff, "time"); err == nil {
			f.Time = t
		} else {
			f.Time = make([]float64, dims[0])
			for i := range f.Time {
				f.Time[i] = float64(i + 1)
			}
		}
		f.TimeUnits = stringAttribute(ff, "time", "units")
	default:
		return nil, fmt.Errorf("copepod: variable %s has %d dimensions but should have 2 or 3", name, len(dims))
	}
	copy(f.Data.Elements, data)
	for _, fillName := range []string{"_FillValue", "missing_value"} {
		fill, ok := floatAttribute(ff, name, fillName)
		if !ok || math.IsNaN(fill) {
			continue
		}
		for i, v := range f.Data.Elements {
			if v == fill {
				f.Data.Elements[i] = math.NaN()
			}
		}
	}

	for _, c := range []struct {
		name string
		dst  **sparse.DenseArray
	}{{name: "lat", dst: &f.Lat}, {name: "lon", dst: &f.Lon}} {
		v, err := readNCF(ff, c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = sparse.ZerosDense(ff.Header.Lengths(c.name)...)
		copy((*c.dst).Elements, v)
	}

	for _, a := range ff.Header.Attributes("") {
		if s, ok := ff.Header.GetAttribute("", a).(string); ok {
			f.Attributes[a] = s
		}
	}
	if err := f.Check(); err != nil {
		return nil, err
	}
	return f, nil
}

// writeNCF writes data to variable v, converting to the variable's type.
func writeNCF(f *cdf.File, v string, data interface{}) error {
	end := f.Header.Lengths(v)
	if len(end) == 0 {
		return fmt.Errorf("variable %s not in file", v)
	}
	n := 1
	for _, l := range end {
		n *= l
	}
	var out interface{}
	switch d := data.(type) {
	case []float64:
		if len(d) != n {
			return fmt.Errorf("dims are %d but array length is %d", n, len(d))
		}
		switch f.Header.ZeroValue(v, 0).(type) {
		case []float32:
			d32 := make([]float32, len(d))
			for i, e := range d {
				d32[i] = float32(e)
			}
			out = d32
		default:
			out = d
		}
	case []int32:
		if len(d) != n {
			return fmt.Errorf("dims are %d but array length is %d", n, len(d))
		}
		out = d
	default:
		return fmt.Errorf("unsupported data type %T", data)
	}
	start := make([]int, len(end))
	w := f.Writer(v, start, end)
	if _, err := w.Write(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// readNCF reads all values of variable v and converts them to float64.
func readNCF(f *cdf.File, v string) ([]float64, error) {
	dims := f.Header.Lengths(v)
	if len(dims) == 0 {
		return nil, fmt.Errorf("copepod: read netcdf: variable %s not in file", v)
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	r := f.Reader(v, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("copepod: read netcdf variable %s: %v", v, err)
	}
	o := make([]float64, n)
	switch b := buf.(type) {
	case []float64:
		copy(o, b)
	case []float32:
		for i, val := range b {
			o[i] = float64(val)
		}
	case []int32:
		for i, val := range b {
			o[i] = float64(val)
		}
	case []int16:
		for i, val := range b {
			o[i] = float64(val)
		}
	case []uint8:
		for i, val := range b {
			o[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("copepod: read netcdf variable %s: unsupported type %T", v, buf)
	}
	return o, nil
}

func stringAttribute(f *cdf.File, v, a string) string {
	s, _ := f.Header.GetAttribute(v, a).(string)
	return s
}

func floatAttribute(f *cdf.File, v, a string) (float64, bool) {
	switch val := f.Header.GetAttribute(v, a).(type) {
	case []float64:
		if len(val) > 0 {
			return val[0], true
		}
	case []float32:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	case []int32:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	}
	return 0, false
}
