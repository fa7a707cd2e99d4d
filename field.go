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

// Package copepod fetches gridded copepod biomass fields, stores them
// as netCDF, and regrids them onto other grids.
package copepod

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "1.0.0"

// Field is a gridded biomass field. Data has shape (time, y, x).
// Lat and Lon are either one-dimensional (Lat has length y and Lon has
// length x) or two-dimensional with shape (y, x). Missing values
// are NaN.
type Field struct {
	Name     string
	LongName string
	Units    string

	Lat, Lon *sparse.DenseArray

	Time      []float64
	TimeUnits string

	Data *sparse.DenseArray

	// Attributes are global attributes to be written to netCDF files.
	Attributes map[string]string
}

// NewField returns a field of NaN values with the given rectilinear
// coordinates and number of time records.
func NewField(name, units string, lat, lon []float64, nt int) *Field {
	f := &Field{
		Name:       name,
		Units:      units,
		Lat:        denseFrom(lat),
		Lon:        denseFrom(lon),
		Time:       make([]float64, nt),
		Data:       sparse.ZerosDense(nt, len(lat), len(lon)),
		Attributes: make(map[string]string),
	}
	for i := range f.Time {
		f.Time[i] = float64(i + 1)
	}
	for i := range f.Data.Elements {
		f.Data.Elements[i] = math.NaN()
	}
	return f
}

func denseFrom(v []float64) *sparse.DenseArray {
	o := sparse.ZerosDense(len(v))
	copy(o.Elements, v)
	return o
}

// Shape returns the number of time records and the
// number of grid cells in the y and x directions.
func (f *Field) Shape() (nt, ny, nx int) {
	if f.Data == nil || len(f.Data.Shape) != 3 {
		return 0, 0, 0
	}
	return f.Data.Shape[0], f.Data.Shape[1], f.Data.Shape[2]
}

// Rectilinear returns whether f has one-dimensional coordinates.
func (f *Field) Rectilinear() bool {
	return f.Lat != nil && len(f.Lat.Shape) == 1
}

// Record returns a copy of the horizontal slice of data at time index t.
func (f *Field) Record(t int) []float64 {
	_, ny, nx := f.Shape()
	o := make([]float64, ny*nx)
	copy(o, f.Data.Elements[t*ny*nx:(t+1)*ny*nx])
	return o
}

// Check makes sure that the coordinate arrays in f match the
// dimensions of the data array.
func (f *Field) Check() error {
	if f.Name == "" || coordVars[f.Name] {
		return fmt.Errorf("copepod: invalid field name %q", f.Name)
	}
	if f.Data == nil {
		return fmt.Errorf("copepod: field %s has no data", f.Name)
	}
	if len(f.Data.Shape) != 3 {
		return fmt.Errorf("copepod: field %s data has %d dimensions but should have 3 (time, y, x)",
			f.Name, len(f.Data.Shape))
	}
	n := 1
	for _, d := range f.Data.Shape {
		n *= d
	}
	if len(f.Data.Elements) != n {
		return fmt.Errorf("copepod: field %s dims are %d but array length is %d",
			f.Name, n, len(f.Data.Elements))
	}
	nt, ny, nx := f.Shape()
	if len(f.Time) != nt {
		return fmt.Errorf("copepod: field %s has %d time values but %d time records",
			f.Name, len(f.Time), nt)
	}
	if f.Lat == nil || f.Lon == nil {
		return fmt.Errorf("copepod: field %s is missing coordinates", f.Name)
	}
	if len(f.Lat.Shape) != len(f.Lon.Shape) {
		return fmt.Errorf("copepod: field %s latitude has %d dimensions but longitude has %d",
			f.Name, len(f.Lat.Shape), len(f.Lon.Shape))
	}
	switch len(f.Lat.Shape) {
	case 1:
		if f.Lat.Shape[0] != ny || len(f.Lat.Elements) != ny {
			return fmt.Errorf("copepod: field %s has %d latitudes but %d rows", f.Name, len(f.Lat.Elements), ny)
		}
		if f.Lon.Shape[0] != nx || len(f.Lon.Elements) != nx {
			return fmt.Errorf("copepod: field %s has %d longitudes but %d columns", f.Name, len(f.Lon.Elements), nx)
		}
	case 2:
		for _, c := range []*sparse.DenseArray{f.Lat, f.Lon} {
			if c.Shape[0] != ny || c.Shape[1] != nx || len(c.Elements) != ny*nx {
				return fmt.Errorf("copepod: field %s coordinate shape %v does not match data shape [%d %d]",
					f.Name, c.Shape, ny, nx)
			}
		}
	default:
		return fmt.Errorf("copepod: field %s coordinates have %d dimensions", f.Name, len(f.Lat.Shape))
	}
	return nil
}

// LatLon returns the latitude and longitude of cell (j, i).
func (f *Field) LatLon(j, i int) (lat, lon float64) {
	if f.Rectilinear() {
		return f.Lat.Elements[j], f.Lon.Elements[i]
	}
	return f.Lat.Get(j, i), f.Lon.Get(j, i)
}
