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
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/sparse"
)

// Regridding methods.
const (
	Conservative = "conservative"
	Nearest      = "nearest"
)

// Weights is a sparse remapping matrix with shape (destination cells,
// source cells).
type Weights struct {
	M *sparse.SparseArray

	// SrcDims and DstDims are the (nx, ny) dimensions of the source and
	// destination grids.
	SrcDims, DstDims [2]int

	// FracB is the fraction of each destination cell covered by
	// active source cells.
	FracB []float64

	Method string

	// SrcGrid and DstGrid are the Hash keys of the grids the weights
	// were computed for. They are empty for weight files written by
	// other programs.
	SrcGrid, DstGrid string
}

func newWeights(src, dst *Grid, method string) *Weights {
	return &Weights{
		M:       sparse.ZerosSparse(dst.Size(), src.Size()),
		SrcDims: [2]int{src.Nx, src.Ny},
		DstDims: [2]int{dst.Nx, dst.Ny},
		FracB:   make([]float64, dst.Size()),
		Method:  method,
		SrcGrid: src.Hash(),
		DstGrid: dst.Hash(),
	}
}

// Matches returns whether w was computed with the given method for
// remapping from src to dst.
func (w *Weights) Matches(method string, src, dst *Grid) bool {
	return w.Method == method &&
		w.SrcDims == [2]int{src.Nx, src.Ny} && w.DstDims == [2]int{dst.Nx, dst.Ny} &&
		w.SrcGrid != "" && w.SrcGrid == src.Hash() &&
		w.DstGrid != "" && w.DstGrid == dst.Hash()
}

// NSrc returns the number of source cells.
func (w *Weights) NSrc() int { return w.M.Shape[1] }

// NDst returns the number of destination cells.
func (w *Weights) NDst() int { return w.M.Shape[0] }

// entry is a single matrix element.
type entry struct {
	row, col int
	s        float64
}

// entries returns the nonzero elements of w sorted by row and then
// column.
func (w *Weights) entries() []entry {
	nSrc := w.NSrc()
	o := make([]entry, 0, len(w.M.Elements))
	for k, v := range w.M.Elements {
		o = append(o, entry{row: k / nSrc, col: k % nSrc, s: v})
	}
	sort.Slice(o, func(i, j int) bool {
		if o[i].row == o[j].row {
			return o[i].col < o[j].col
		}
		return o[i].row < o[j].row
	})
	return o
}

// Apply returns W · src.
func (w *Weights) Apply(src []float64) ([]float64, error) {
	nSrc := w.NSrc()
	if len(src) != nSrc {
		return nil, fmt.Errorf("copepod: weights expect %d source values but got %d", nSrc, len(src))
	}
	dst := make([]float64, w.NDst())
	for k, v := range w.M.Elements {
		dst[k/nSrc] += v * src[k%nSrc]
	}
	return dst, nil
}

// ComputeWeights calculates regridding weights from src to dst using the
// given method, which must be Conservative or Nearest.
func ComputeWeights(method string, src, dst *Grid) (*Weights, error) {
	switch method {
	case Conservative:
		return ConservativeWeights(src, dst)
	case Nearest:
		return NearestWeights(src, dst)
	default:
		return nil, fmt.Errorf("copepod: invalid regridding method %q; valid methods are %q and %q",
			method, Conservative, Nearest)
	}
}

// cellIndex returns a spatial index of the active cells in g.
func cellIndex(g *Grid) *rtree.Rtree {
	tree := rtree.NewTree(25, 50)
	for c := 0; c < g.Size(); c++ {
		if g.Mask[c] == 0 {
			continue
		}
		tree.Insert(g.equalAreaCell(c))
	}
	return tree
}

// lonShifts are the offsets applied to destination cells when searching
// for overlapping source cells so that cells on either side of the
// longitude seam are found.
var lonShifts = []float64{0, -2 * math.Pi, 2 * math.Pi}

func shift(p geom.Polygon, dx float64) geom.Polygon {
	o := make(geom.Polygon, len(p))
	for i, r := range p {
		o[i] = make(geom.Path, len(r))
		for j, pt := range r {
			o[i][j] = geom.Point{X: pt.X + dx, Y: pt.Y}
		}
	}
	return o
}

// ConservativeWeights calculates first-order conservative regridding
// weights, where the weight of a source cell for a destination cell is
// the fraction of the destination cell area that it overlaps. Masked
// source and destination cells are excluded.
func ConservativeWeights(src, dst *Grid) (*Weights, error) {
	for _, g := range []*Grid{src, dst} {
		if err := g.Check(); err != nil {
			return nil, err
		}
	}
	w := newWeights(src, dst, Conservative)
	tree := cellIndex(src)
	for d := 0; d < dst.Size(); d++ {
		if dst.Mask[d] == 0 {
			continue
		}
		dc := dst.equalAreaCell(d)
		dArea := math.Abs(dc.Area())
		if dArea == 0 {
			continue
		}
		overlaps := make(map[int]float64)
		for _, dx := range lonShifts {
			p := dc.Polygon
			if dx != 0 {
				p = shift(p, dx)
			}
			for _, sI := range tree.SearchIntersect(p.Bounds()) {
				s := sI.(*cell)
				if a := overlapArea(p, s.Polygon); a > dArea*1.e-12 {
					overlaps[s.index] += a
				}
			}
		}
		var frac float64
		for s, a := range overlaps {
			v := a / dArea
			w.M.Set(v, d, s)
			frac += v
		}
		w.FracB[d] = frac
	}
	return w, nil
}

// overlapArea returns the area of the intersection of a and b.
func overlapArea(a, b geom.Polygon) float64 {
	ba, aRect := rectangle(a)
	bb, bRect := rectangle(b)
	if aRect && bRect {
		x := math.Min(ba.Max.X, bb.Max.X) - math.Max(ba.Min.X, bb.Min.X)
		y := math.Min(ba.Max.Y, bb.Max.Y) - math.Max(ba.Min.Y, bb.Min.Y)
		if x <= 0 || y <= 0 {
			return 0
		}
		return x * y
	}
	isect := a.Intersection(b)
	if isect == nil {
		return 0
	}
	return math.Abs(isect.Area())
}

// rectangle returns the bounds of p and whether p is an axis-aligned
// rectangle.
func rectangle(p geom.Polygon) (*geom.Bounds, bool) {
	b := p.Bounds()
	if len(p) != 1 {
		return b, false
	}
	r := p[0]
	if len(r) == 5 && r[4] == r[0] {
		r = r[:4]
	}
	if len(r) != 4 {
		return b, false
	}
	for i := range r {
		next := r[(i+1)%4]
		if r[i].X != next.X && r[i].Y != next.Y {
			return b, false
		}
		onX := r[i].X == b.Min.X || r[i].X == b.Max.X
		onY := r[i].Y == b.Min.Y || r[i].Y == b.Max.Y
		if !onX || !onY {
			return b, false
		}
	}
	return b, true
}

// NearestWeights calculates weights where each active destination cell
// takes the value of the active source cell that contains its center.
// When several source cells contain the center, the one with the lowest
// index is used.
func NearestWeights(src, dst *Grid) (*Weights, error) {
	for _, g := range []*Grid{src, dst} {
		if err := g.Check(); err != nil {
			return nil, err
		}
	}
	w := newWeights(src, dst, Nearest)
	tree := cellIndex(src)
	for d := 0; d < dst.Size(); d++ {
		if dst.Mask[d] == 0 {
			continue
		}
		pt := geom.Point{
			X: dst.CenterLon[d] * degToRad,
			Y: math.Sin(dst.CenterLat[d] * degToRad),
		}
		best := -1
		for _, dx := range lonShifts {
			p := geom.Point{X: pt.X + dx, Y: pt.Y}
			for _, sI := range tree.SearchIntersect(p.Bounds()) {
				s := sI.(*cell)
				if p.Within(s.Polygon) != geom.Outside && (best < 0 || s.index < best) {
					best = s.index
				}
			}
		}
		if best >= 0 {
			w.M.Set(1, d, best)
			w.FracB[d] = 1
		}
	}
	return w, nil
}

// Write writes w to f in the ESMF weight file format, with 1-based
// row and column indices.
func (w *Weights) Write(f *os.File) error {
	e := w.entries()
	if len(e) == 0 {
		return fmt.Errorf("copepod: writing weights: there are no nonzero weights")
	}
	h := cdf.NewHeader(
		[]string{"n_s", "n_a", "n_b", "src_grid_rank", "dst_grid_rank"},
		[]int{len(e), w.NSrc(), w.NDst(), 2, 2})
	h.AddVariable("src_grid_dims", []string{"src_grid_rank"}, []int32{0})
	h.AddVariable("dst_grid_dims", []string{"dst_grid_rank"}, []int32{0})
	h.AddVariable("row", []string{"n_s"}, []int32{0})
	h.AddVariable("col", []string{"n_s"}, []int32{0})
	h.AddVariable("S", []string{"n_s"}, []float64{0})
	h.AddVariable("frac_b", []string{"n_b"}, []float64{0})
	h.AddAttribute("", "title", "copepod regridding weights")
	method := w.Method
	if method == "" {
		method = "unknown"
	}
	h.AddAttribute("", "map_method", method)
	h.AddAttribute("", "conventions", "NCAR-CSM")
	if w.SrcGrid != "" {
		h.AddAttribute("", "src_grid_hash", w.SrcGrid)
	}
	if w.DstGrid != "" {
		h.AddAttribute("", "dst_grid_hash", w.DstGrid)
	}
	h.AddAttribute("", "date_created", gridTimestamp())
	h.Define()

	ff, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("copepod: creating weight file: %v", err)
	}
	row := make([]int32, len(e))
	col := make([]int32, len(e))
	s := make([]float64, len(e))
	for i, ee := range e {
		row[i] = int32(ee.row + 1)
		col[i] = int32(ee.col + 1)
		s[i] = ee.s
	}
	fracB := w.FracB
	if len(fracB) != w.NDst() {
		fracB = make([]float64, w.NDst())
	}
	for _, v := range []struct {
		name string
		data interface{}
	}{
		{"src_grid_dims", []int32{int32(w.SrcDims[0]), int32(w.SrcDims[1])}},
		{"dst_grid_dims", []int32{int32(w.DstDims[0]), int32(w.DstDims[1])}},
		{"row", row},
		{"col", col},
		{"S", s},
		{"frac_b", fracB},
	} {
		if err := writeNCF(ff, v.name, v.data); err != nil {
			return fmt.Errorf("copepod: writing weight variable %s: %v", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(f)
}

// ReadWeights reads an ESMF weight file.
func ReadWeights(rw cdf.ReaderWriterAt) (*Weights, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("copepod: opening weight file: %v", err)
	}
	w := &Weights{
		Method:  stringAttribute(f, "", "map_method"),
		SrcGrid: stringAttribute(f, "", "src_grid_hash"),
		DstGrid: stringAttribute(f, "", "dst_grid_hash"),
	}
	for _, d := range []struct {
		name string
		dst  *[2]int
	}{{"src_grid_dims", &w.SrcDims}, {"dst_grid_dims", &w.DstDims}} {
		v, err := readNCF(f, d.name)
		if err != nil {
			return nil, err
		}
		if len(v) != 2 {
			return nil, fmt.Errorf("copepod: weight file %s has rank %d; only rank 2 grids are supported", d.name, len(v))
		}
		d.dst[0], d.dst[1] = int(v[0]), int(v[1])
	}
	nSrc := w.SrcDims[0] * w.SrcDims[1]
	nDst := w.DstDims[0] * w.DstDims[1]
	w.M = sparse.ZerosSparse(nDst, nSrc)

	row, err := readNCF(f, "row")
	if err != nil {
		return nil, err
	}
	col, err := readNCF(f, "col")
	if err != nil {
		return nil, err
	}
	s, err := readNCF(f, "S")
	if err != nil {
		return nil, err
	}
	if len(row) != len(s) || len(col) != len(s) {
		return nil, fmt.Errorf("copepod: weight file has %d rows, %d columns and %d weights", len(row), len(col), len(s))
	}
	for i, v := range s {
		r, c := int(row[i])-1, int(col[i])-1
		if r < 0 || r >= nDst || c < 0 || c >= nSrc {
			return nil, fmt.Errorf("copepod: weight %d has row %d and column %d, which are out of range for a "+
				"(%d, %d) matrix", i, r+1, c+1, nDst, nSrc)
		}
		w.M.Elements[r*nSrc+c] += v
	}

	if len(f.Header.Lengths("frac_b")) != 0 {
		if w.FracB, err = readNCF(f, "frac_b"); err != nil {
			return nil, err
		}
	}
	if len(w.FracB) != nDst {
		w.FracB = make([]float64, nDst)
		for k, v := range w.M.Elements {
			w.FracB[k/nSrc] += v
		}
	}
	return w, nil
}
