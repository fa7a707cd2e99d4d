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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ConvertOptions specify how delimited text files are placed onto a
// regular latitude-longitude grid.
type ConvertOptions struct {
	// Name, LongName and Units describe the output variable.
	Name, LongName, Units string

	// Dx and Dy are the grid spacing in degrees. Lon0 and Lat0 are the
	// western and southern grid boundaries. The grid extends east to
	// Lon0+360 and north to 90°.
	Dx, Dy, Lon0, Lat0 float64

	// LatColumn, LonColumn and ValueColumn are the zero-based
	// column indices of the latitude, longitude and value in each row.
	LatColumn, LonColumn, ValueColumn int

	// Delimiter separates columns. If it is zero, columns are separated
	// by commas.
	Delimiter rune

	// MissingValue is a sentinel value that marks missing data. It is
	// ignored if it is NaN.
	MissingValue float64

	// Times holds the time coordinate of each input file. If it is
	// empty, times are 1, 2, ....
	Times []float64

	// TimeUnits are the units of Times.
	TimeUnits string
}

// DefaultConvertOptions returns options for a global 1° grid with
// columns latitude, longitude, value.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		Name:         "biomass",
		LongName:     "copepod biomass",
		Units:        "mg m-3",
		Dx:           1,
		Dy:           1,
		Lon0:         -180,
		Lat0:         -90,
		LatColumn:    0,
		LonColumn:    1,
		ValueColumn:  2,
		Delimiter:    ',',
		MissingValue: -999,
	}
}

// gridSize returns the number of columns and rows of the grid.
func (o *ConvertOptions) gridSize() (nx, ny int, err error) {
	if o.Dx <= 0 || o.Dy <= 0 {
		return 0, 0, fmt.Errorf("copepod: grid spacing must be positive but is dx=%g, dy=%g", o.Dx, o.Dy)
	}
	if o.Lat0 < -90 || o.Lat0 >= 90 {
		return 0, 0, fmt.Errorf("copepod: southern grid boundary %g is not between -90 and 90", o.Lat0)
	}
	nxF := 360 / o.Dx
	nyF := (90 - o.Lat0) / o.Dy
	nx, ny = int(math.Round(nxF)), int(math.Round(nyF))
	const tolerance = 1.e-6
	if math.Abs(nxF-float64(nx)) > tolerance || math.Abs(nyF-float64(ny)) > tolerance {
		return 0, 0, fmt.Errorf("copepod: grid spacing dx=%g, dy=%g does not evenly divide the domain", o.Dx, o.Dy)
	}
	return nx, ny, nil
}

// Convert parses delimited text files with one row per grid point
// and returns a field with one time record per file.
// Lines beginning with '#' and lines whose coordinates are not numbers
// (for example column headers) are skipped. Blank values, "NaN" and
// the missing value sentinel become NaN, as do grid points that are
// not in the file.
func Convert(o ConvertOptions, files ...io.Reader) (*Field, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("copepod: convert: no input files")
	}
	if len(o.Times) != 0 && len(o.Times) != len(files) {
		return nil, fmt.Errorf("copepod: convert: there are %d times but %d input files", len(o.Times), len(files))
	}
	nx, ny, err := o.gridSize()
	if err != nil {
		return nil, err
	}
	lat := make([]float64, ny)
	for j := range lat {
		lat[j] = o.Lat0 + (float64(j)+0.5)*o.Dy
	}
	lon := make([]float64, nx)
	for i := range lon {
		lon[i] = o.Lon0 + (float64(i)+0.5)*o.Dx
	}
	f := NewField(o.Name, o.Units, lat, lon, len(files))
	f.LongName = o.LongName
	f.TimeUnits = o.TimeUnits
	if len(o.Times) != 0 {
		copy(f.Time, o.Times)
	}
	for t, r := range files {
		if err := o.parse(f, t, r); err != nil {
			return nil, fmt.Errorf("copepod: convert: file %d: %v", t+1, err)
		}
	}
	return f, f.Check()
}

// parse places the values in r into time record t of f.
func (o *ConvertOptions) parse(f *Field, t int, r io.Reader) error {
	_, ny, nx := f.Shape()
	rec := f.Data.Elements[t*ny*nx : (t+1)*ny*nx]
	seen := make([]bool, ny*nx)

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if o.Delimiter != 0 {
		cr.Comma = o.Delimiter
	}
	maxCol := o.LatColumn
	if o.LonColumn > maxCol {
		maxCol = o.LonColumn
	}
	if o.ValueColumn > maxCol {
		maxCol = o.ValueColumn
	}
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		line++
		if len(row) <= maxCol {
			if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
				continue
			}
			return fmt.Errorf("record %d has %d columns but column %d is required", line, len(row), maxCol+1)
		}
		la, errLat := strconv.ParseFloat(strings.TrimSpace(row[o.LatColumn]), 64)
		lo, errLon := strconv.ParseFloat(strings.TrimSpace(row[o.LonColumn]), 64)
		if errLat != nil || errLon != nil {
			continue // header line
		}
		j, i, err := o.cellOf(la, lo, ny, nx)
		if err != nil {
			return fmt.Errorf("record %d: %v", line, err)
		}
		c := j*nx + i
		if seen[c] {
			return fmt.Errorf("record %d: duplicate value for latitude %g, longitude %g", line, la, lo)
		}
		seen[c] = true
		v, err := o.parseValue(row[o.ValueColumn])
		if err != nil {
			return fmt.Errorf("record %d: %v", line, err)
		}
		rec[c] = v
	}
	return nil
}

func (o *ConvertOptions) parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v == o.MissingValue {
		return math.NaN(), nil
	}
	return v, nil
}

// cellOf returns the row and column of the grid cell centered at lat,
// lon.
func (o *ConvertOptions) cellOf(lat, lon float64, ny, nx int) (j, i int, err error) {
	const tolerance = 1.e-3
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0, 0, fmt.Errorf("latitude %g, longitude %g is not a grid cell center", lat, lon)
	}
	lon = math.Mod(lon-o.Lon0, 360)
	if lon < 0 {
		lon += 360
	}
	lon += o.Lon0
	x := (lon-o.Lon0)/o.Dx - 0.5
	y := (lat-o.Lat0)/o.Dy - 0.5
	i, j = int(math.Round(x)), int(math.Round(y))
	if i == nx {
		i = 0
	}
	if math.Abs(x-math.Round(x)) > tolerance || math.Abs(y-math.Round(y)) > tolerance ||
		j < 0 || j >= ny || i < 0 || i >= nx {
		return 0, 0, fmt.Errorf("latitude %g, longitude %g is not a grid cell center", lat, lon)
	}
	return j, i, nil
}
