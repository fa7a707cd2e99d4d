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

	"github.com/ctessum/sparse"
)

// Regridder remaps fields from a source grid to a destination grid.
type Regridder struct {
	Src, Dst *Grid
	Weights  *Weights
}

// RegridOptions control how missing values and masks are treated.
type RegridOptions struct {
	// Renormalize specifies that missing source values should be
	// ignored and the result divided by the fraction of each
	// destination cell covered by valid source values.
	Renormalize bool

	// ApplyMask specifies that destination cells with a grid_imask of
	// zero should be set to missing.
	ApplyMask bool

	// MinFraction, if greater than zero, is the minimum fraction of a
	// destination cell that must be covered by valid source values
	// for the cell to not be set to missing.
	MinFraction float64
}

// DefaultRegridOptions are the options used when none are specified.
var DefaultRegridOptions = RegridOptions{Renormalize: true, ApplyMask: true}

// NewRegridder returns a regridder from src to dst using weights w.
func NewRegridder(src, dst *Grid, w *Weights) (*Regridder, error) {
	for _, g := range []*Grid{src, dst} {
		if err := g.Check(); err != nil {
			return nil, err
		}
	}
	if w.NDst() != dst.Size() || w.NSrc() != src.Size() {
		return nil, fmt.Errorf("copepod: weight matrix has shape (%d, %d) but the grids require (%d, %d)",
			w.NDst(), w.NSrc(), dst.Size(), src.Size())
	}
	if w.SrcDims != [2]int{src.Nx, src.Ny} || w.DstDims != [2]int{dst.Nx, dst.Ny} {
		return nil, fmt.Errorf("copepod: weights are for grids with dims %v --> %v but the grids have dims "+
			"[%d %d] --> [%d %d]", w.SrcDims, w.DstDims, src.Nx, src.Ny, dst.Nx, dst.Ny)
	}
	return &Regridder{Src: src, Dst: dst, Weights: w}, nil
}

func (r *Regridder) String() string {
	return fmt.Sprintf("regridder %q (%d x %d) --> %q (%d x %d)",
		r.Src.Title, r.Src.Ny, r.Src.Nx, r.Dst.Title, r.Dst.Ny, r.Dst.Nx)
}

// Regrid remaps every time record of f onto the destination grid.
func (r *Regridder) Regrid(f *Field, o RegridOptions) (*Field, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}
	nt, ny, nx := f.Shape()
	if ny != r.Src.Ny || nx != r.Src.Nx {
		return nil, fmt.Errorf("copepod: field %s has horizontal shape (%d, %d) but the source grid has (%d, %d)",
			f.Name, ny, nx, r.Src.Ny, r.Src.Nx)
	}
	if o.MinFraction < 0 || o.MinFraction > 1 {
		return nil, fmt.Errorf("copepod: regrid minimum fraction %g is not between 0 and 1", o.MinFraction)
	}
	out := &Field{
		Name:       f.Name,
		LongName:   f.LongName,
		Units:      f.Units,
		Time:       append([]float64{}, f.Time...),
		TimeUnits:  f.TimeUnits,
		Data:       sparse.ZerosDense(nt, r.Dst.Ny, r.Dst.Nx),
		Attributes: make(map[string]string),
	}
	for k, v := range f.Attributes {
		out.Attributes[k] = v
	}
	out.Lat, out.Lon = r.Dst.Coordinates()

	nDst := r.Dst.Size()
	for t := 0; t < nt; t++ {
		src := f.Record(t)
		var ones []float64
		if o.Renormalize || o.MinFraction > 0 {
			ones = make([]float64, len(src))
			for i, v := range src {
				if !math.IsNaN(v) {
					ones[i] = 1
				}
			}
		}
		if o.Renormalize {
			for i, v := range src {
				if math.IsNaN(v) {
					src[i] = 0
				}
			}
		}
		dst, err := r.Weights.Apply(src)
		if err != nil {
			return nil, err
		}
		if ones != nil {
			frac, err := r.Weights.Apply(ones)
			if err != nil {
				return nil, err
			}
			for i := range dst {
				if o.Renormalize {
					if frac[i] > 0 {
						dst[i] /= frac[i]
					} else {
						dst[i] = math.NaN()
					}
				}
				if o.MinFraction > 0 && frac[i] < o.MinFraction {
					dst[i] = math.NaN()
				}
			}
		}
		if o.ApplyMask {
			for i := range dst {
				if r.Dst.Mask[i] == 0 {
					dst[i] = math.NaN()
				}
			}
		}
		copy(out.Data.Elements[t*nDst:(t+1)*nDst], dst)
	}
	if err := out.Check(); err != nil {
		return nil, err
	}
	return out, nil
}
