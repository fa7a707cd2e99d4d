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
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/copepod/internal/hash"
	"gonum.org/v1/gonum/floats"
)

const degToRad = math.Pi / 180

// Grid is a grid description following the SCRIP conventions.
// Cells are numbered j*Nx + i, where j is the row (south to north for
// regular grids) and i is the column.
type Grid struct {
	Nx, Ny int

	CenterLat, CenterLon []float64 // [degrees]

	// CornerLat and CornerLon hold 4 corners per cell, counterclockwise
	// starting from the southwest corner.
	CornerLat, CornerLon []float64 // [degrees]

	// Mask is 1 for active cells and 0 for cells to be ignored.
	Mask []int32

	Area []float64 // [radians²]

	// Title is a descriptive title for the grid.
	Title string
}

// Size returns the number of cells in the grid.
func (g *Grid) Size() int { return g.Nx * g.Ny }

// NewLatLonGrid creates a regular global latitude-longitude grid with nx
// cells in the longitude direction and ny cells in the latitude
// direction. lon0 is the longitude of the western grid boundary.
// mask, if not nil, must have nx*ny elements; otherwise all cells are
// active.
func NewLatLonGrid(nx, ny int, lon0 float64, mask []int32) (*Grid, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("copepod: invalid grid size nx=%d, ny=%d", nx, ny)
	}
	if mask != nil && len(mask) != nx*ny {
		return nil, fmt.Errorf("copepod: grid mask has %d elements but grid has %d cells", len(mask), nx*ny)
	}
	dx := 360. / float64(nx)
	dy := 180. / float64(ny)
	g := &Grid{
		Nx:        nx,
		Ny:        ny,
		CenterLat: make([]float64, nx*ny),
		CenterLon: make([]float64, nx*ny),
		CornerLat: make([]float64, nx*ny*4),
		CornerLon: make([]float64, nx*ny*4),
		Mask:      make([]int32, nx*ny),
		Area:      make([]float64, nx*ny),
		Title:     fmt.Sprintf("%g x %g (lat x lon) grid", dy, dx),
	}
	for j := 0; j < ny; j++ {
		south := -90 + float64(j)*dy
		north := south + dy
		if j == ny-1 {
			north = 90
		}
		for i := 0; i < nx; i++ {
			west := lon0 + float64(i)*dx
			east := west + dx
			c := j*nx + i
			g.CenterLat[c] = south + dy/2
			g.CenterLon[c] = west + dx/2
			g.setCorners(c, south, north, west, east)
			g.Area[c] = (math.Sin(north*degToRad) - math.Sin(south*degToRad)) * (east - west) * degToRad
			if mask == nil {
				g.Mask[c] = 1
			} else {
				g.Mask[c] = mask[c]
			}
		}
	}
	const tolerance = 1.e-9
	if total := floats.Sum(g.Area); !floats.EqualWithinRel(total, 4*math.Pi, tolerance) {
		return nil, fmt.Errorf("copepod: grid area sums to %g but should be 4π", total)
	}
	return g, nil
}

func (g *Grid) setCorners(c int, south, north, west, east float64) {
	g.CornerLat[c*4], g.CornerLon[c*4] = south, west
	g.CornerLat[c*4+1], g.CornerLon[c*4+1] = south, east
	g.CornerLat[c*4+2], g.CornerLon[c*4+2] = north, east
	g.CornerLat[c*4+3], g.CornerLon[c*4+3] = north, west
}

// GridFromField returns the grid that f is defined on. Cell edges are
// placed halfway between neighboring cell centers and at the poles
// latitudes are clamped to ±90°. All cells are active.
func GridFromField(f *Field) (*Grid, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}
	_, ny, nx := f.Shape()
	g := &Grid{
		Nx:        nx,
		Ny:        ny,
		CenterLat: make([]float64, nx*ny),
		CenterLon: make([]float64, nx*ny),
		CornerLat: make([]float64, nx*ny*4),
		CornerLon: make([]float64, nx*ny*4),
		Mask:      make([]int32, nx*ny),
		Area:      make([]float64, nx*ny),
		Title:     fmt.Sprintf("%s native grid", f.Name),
	}
	if !f.Rectilinear() {
		return nil, fmt.Errorf("copepod: cannot infer cell corners for curvilinear field %s; "+
			"supply a SCRIP grid file instead", f.Name)
	}
	latEdges := cellEdges(f.Lat.Elements)
	lonEdges := cellEdges(f.Lon.Elements)
	for j := 0; j < ny; j++ {
		south := clampLat(math.Min(latEdges[j], latEdges[j+1]))
		north := clampLat(math.Max(latEdges[j], latEdges[j+1]))
		for i := 0; i < nx; i++ {
			west := math.Min(lonEdges[i], lonEdges[i+1])
			east := math.Max(lonEdges[i], lonEdges[i+1])
			c := j*nx + i
			g.CenterLat[c] = f.Lat.Elements[j]
			g.CenterLon[c] = f.Lon.Elements[i]
			g.setCorners(c, south, north, west, east)
			g.Area[c] = (math.Sin(north*degToRad) - math.Sin(south*degToRad)) * (east - west) * degToRad
			g.Mask[c] = 1
		}
	}
	return g, nil
}

// cellEdges returns the len(centers)+1 edges of cells with the given
// centers.
func cellEdges(centers []float64) []float64 {
	n := len(centers)
	edges := make([]float64, n+1)
	if n == 1 {
		edges[0], edges[1] = centers[0]-0.5, centers[0]+0.5
		return edges
	}
	for i := 1; i < n; i++ {
		edges[i] = (centers[i-1] + centers[i]) / 2
	}
	edges[0] = centers[0] - (edges[1] - centers[0])
	edges[n] = centers[n-1] + (centers[n-1] - edges[n-1])
	return edges
}

func clampLat(v float64) float64 { return math.Max(-90, math.Min(90, v)) }

// Rectilinear returns whether the cell centers of g form the product of
// a list of latitudes and a list of longitudes. If so, the lists are
// also returned.
func (g *Grid) Rectilinear() (lat, lon []float64, ok bool) {
	const tolerance = 1.e-9
	lat = make([]float64, g.Ny)
	lon = make([]float64, g.Nx)
	for j := 0; j < g.Ny; j++ {
		lat[j] = g.CenterLat[j*g.Nx]
	}
	copy(lon, g.CenterLon[0:g.Nx])
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			c := j*g.Nx + i
			if math.Abs(g.CenterLat[c]-lat[j]) > tolerance || math.Abs(g.CenterLon[c]-lon[i]) > tolerance {
				return nil, nil, false
			}
		}
	}
	return lat, lon, true
}

// Coordinates returns coordinate arrays suitable for a field on grid g:
// one-dimensional if g is rectilinear and two-dimensional otherwise.
func (g *Grid) Coordinates() (lat, lon *sparse.DenseArray) {
	if la, lo, ok := g.Rectilinear(); ok {
		return denseFrom(la), denseFrom(lo)
	}
	lat = sparse.ZerosDense(g.Ny, g.Nx)
	lon = sparse.ZerosDense(g.Ny, g.Nx)
	copy(lat.Elements, g.CenterLat)
	copy(lon.Elements, g.CenterLon)
	return lat, lon
}

// cell is a grid cell projected onto equal-area (λ, sin φ) coordinates,
// in which planar areas equal areas on the unit sphere.
type cell struct {
	geom.Polygon
	index int
}

// equalAreaCell returns cell c of g in (λ, sin φ) coordinates, with
// longitudes unwrapped so the cell does not cross the dateline seam.
func (g *Grid) equalAreaCell(c int) *cell {
	path := make(geom.Path, 5)
	lon0 := g.CornerLon[c*4]
	for k := 0; k < 4; k++ {
		lon := g.CornerLon[c*4+k]
		for lon-lon0 > 180 {
			lon -= 360
		}
		for lon-lon0 < -180 {
			lon += 360
		}
		path[k] = geom.Point{X: lon * degToRad, Y: math.Sin(g.CornerLat[c*4+k] * degToRad)}
	}
	path[4] = path[0]
	return &cell{Polygon: geom.Polygon{path}, index: c}
}

// Hash returns a key identifying the cell geometry and mask of g.
// Grids with equal keys give the same remapping weights.
func (g *Grid) Hash() string {
	return hash.Hash(struct {
		Nx, Ny                                     int
		CenterLat, CenterLon, CornerLat, CornerLon []float64
		Mask                                       []int32
	}{
		Nx: g.Nx, Ny: g.Ny,
		CenterLat: g.CenterLat, CenterLon: g.CenterLon,
		CornerLat: g.CornerLat, CornerLon: g.CornerLon,
		Mask: g.Mask,
	})
}

// Check makes sure the arrays in g are consistent with its dimensions.
func (g *Grid) Check() error {
	n := g.Size()
	if n <= 0 {
		return fmt.Errorf("copepod: grid has invalid dimensions %d x %d", g.Nx, g.Ny)
	}
	for name, l := range map[string]int{
		"grid_center_lat": len(g.CenterLat),
		"grid_center_lon": len(g.CenterLon),
		"grid_imask":      len(g.Mask),
		"grid_area":       len(g.Area),
		"grid_corner_lat": len(g.CornerLat) / 4,
		"grid_corner_lon": len(g.CornerLon) / 4,
	} {
		if l != n {
			return fmt.Errorf("copepod: grid variable %s has %d cells but grid_dims gives %d", name, l, n)
		}
	}
	return nil
}

func gridTimestamp() string { return time.Now().Format(time.RFC3339) }
