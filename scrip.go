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
	"os"
	"strings"

	"github.com/ctessum/cdf"
)

// Write writes g to w as a SCRIP grid file.
func (g *Grid) Write(w *os.File) error {
	if err := g.Check(); err != nil {
		return err
	}
	h := cdf.NewHeader([]string{"grid_size", "grid_corners", "grid_rank"}, []int{g.Size(), 4, 2})
	h.AddVariable("grid_dims", []string{"grid_rank"}, []int32{0})
	for _, v := range []string{"grid_center_lat", "grid_center_lon"} {
		h.AddVariable(v, []string{"grid_size"}, []float64{0})
		h.AddAttribute(v, "units", "degrees")
	}
	for _, v := range []string{"grid_corner_lat", "grid_corner_lon"} {
		h.AddVariable(v, []string{"grid_size", "grid_corners"}, []float64{0})
		h.AddAttribute(v, "units", "degrees")
	}
	h.AddVariable("grid_imask", []string{"grid_size"}, []int32{0})
	h.AddAttribute("grid_imask", "units", "unitless")
	h.AddVariable("grid_area", []string{"grid_size"}, []float64{0})
	h.AddAttribute("grid_area", "units", "radians^2")
	h.AddAttribute("grid_area", "long_name", "area weights")

	title := g.Title
	if title == "" {
		title = fmt.Sprintf("%d x %d grid", g.Ny, g.Nx)
	}
	h.AddAttribute("", "title", title)
	h.AddAttribute("", "created_by", "copepod v"+Version)
	h.AddAttribute("", "date_created", gridTimestamp())
	h.AddAttribute("", "conventions", "SCRIP")
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("copepod: creating SCRIP grid file: %v", err)
	}
	vars := []struct {
		name string
		data interface{}
	}{
		{"grid_dims", []int32{int32(g.Nx), int32(g.Ny)}},
		{"grid_center_lat", g.CenterLat},
		{"grid_center_lon", g.CenterLon},
		{"grid_corner_lat", g.CornerLat},
		{"grid_corner_lon", g.CornerLon},
		{"grid_imask", g.Mask},
		{"grid_area", g.Area},
	}
	for _, v := range vars {
		if err := writeNCF(f, v.name, v.data); err != nil {
			return fmt.Errorf("copepod: writing SCRIP variable %s: %v", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// ReadGrid reads a SCRIP grid file. Coordinates in radians are
// converted to degrees. If the file has no grid_imask variable all
// cells are active, and if it has no grid_area variable areas are
// computed from the cell corners.
func ReadGrid(rw cdf.ReaderWriterAt) (*Grid, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("copepod: opening SCRIP grid file: %v", err)
	}
	dims, err := readNCF(f, "grid_dims")
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("copepod: SCRIP grid has rank %d; only rank 2 grids are supported", len(dims))
	}
	g := &Grid{
		Nx:    int(dims[0]),
		Ny:    int(dims[1]),
		Title: stringAttribute(f, "", "title"),
	}
	for _, v := range []struct {
		name string
		dst  *[]float64
	}{
		{"grid_center_lat", &g.CenterLat},
		{"grid_center_lon", &g.CenterLon},
		{"grid_corner_lat", &g.CornerLat},
		{"grid_corner_lon", &g.CornerLon},
	} {
		d, err := readNCF(f, v.name)
		if err != nil {
			return nil, err
		}
		switch u := strings.ToLower(stringAttribute(f, v.name, "units")); {
		case strings.HasPrefix(u, "rad"):
			for i := range d {
				d[i] /= degToRad
			}
		case u == "" || strings.HasPrefix(u, "deg"):
		default:
			return nil, fmt.Errorf("copepod: SCRIP variable %s has unsupported units %q", v.name, u)
		}
		*v.dst = d
	}

	g.Mask = make([]int32, len(g.CenterLat))
	if len(f.Header.Lengths("grid_imask")) == 0 {
		for i := range g.Mask {
			g.Mask[i] = 1
		}
	} else {
		m, err := readNCF(f, "grid_imask")
		if err != nil {
			return nil, err
		}
		if len(m) != len(g.Mask) {
			return nil, fmt.Errorf("copepod: SCRIP grid_imask has %d values but there are %d cells", len(m), len(g.Mask))
		}
		for i, v := range m {
			if v != 0 {
				g.Mask[i] = 1
			}
		}
	}

	if len(f.Header.Lengths("grid_area")) == 0 {
		if len(g.CornerLat) == 4*g.Size() && len(g.CornerLon) == 4*g.Size() {
			g.Area = make([]float64, g.Size())
			for c := range g.Area {
				g.Area[c] = math.Abs(g.equalAreaCell(c).Area())
			}
		}
	} else {
		if g.Area, err = readNCF(f, "grid_area"); err != nil {
			return nil, err
		}
	}
	if err := g.Check(); err != nil {
		return nil, err
	}
	return g, nil
}
