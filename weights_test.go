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
	"os"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

func TestConservativeWeightsIdentity(t *testing.T) {
	g, err := NewLatLonGrid(8, 4, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := ConservativeWeights(g, g)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.M.Elements) != g.Size() {
		t.Errorf("number of weights: %d != %d", len(w.M.Elements), g.Size())
	}
	for _, e := range w.entries() {
		if e.row != e.col {
			t.Errorf("off-diagonal weight (%d, %d) = %g", e.row, e.col, e.s)
		}
		if different(e.s, 1, testTolerance) {
			t.Errorf("weight (%d, %d) = %g", e.row, e.col, e.s)
		}
	}
	for i, f := range w.FracB {
		if different(f, 1, testTolerance) {
			t.Errorf("frac_b %d = %g", i, f)
		}
	}
}

func TestConservativeWeightsConservation(t *testing.T) {
	src, err := NewLatLonGrid(8, 4, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	// The destination grid is offset so that cells cross the dateline.
	dst, err := NewLatLonGrid(5, 3, -170, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := ConservativeWeights(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range w.FracB {
		if different(f, 1, 1.e-9) {
			t.Errorf("frac_b %d = %g", i, f)
		}
	}
	srcVals := make([]float64, src.Size())
	var srcIntegral float64
	for i := range srcVals {
		srcVals[i] = float64(i%5) + src.CenterLat[i]/100
		srcIntegral += srcVals[i] * src.Area[i]
	}
	dstVals, err := w.Apply(srcVals)
	if err != nil {
		t.Fatal(err)
	}
	var dstIntegral float64
	for i, v := range dstVals {
		dstIntegral += v * dst.Area[i]
	}
	if different(srcIntegral, dstIntegral, 1.e-9) {
		t.Errorf("integral not conserved: %g != %g", dstIntegral, srcIntegral)
	}
}

func TestConservativeWeightsMask(t *testing.T) {
	mask := make([]int32, 8)
	for i := range mask {
		mask[i] = 1
	}
	mask[0] = 0
	src, err := NewLatLonGrid(4, 2, -180, mask)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewLatLonGrid(2, 1, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := ConservativeWeights(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range w.entries() {
		if e.col == 0 {
			t.Errorf("masked cell has weight %g", e.s)
		}
	}
	if different(w.FracB[0], 0.75, testTolerance) {
		t.Errorf("frac_b[0] = %g != 0.75", w.FracB[0])
	}
	if different(w.FracB[1], 1, testTolerance) {
		t.Errorf("frac_b[1] = %g != 1", w.FracB[1])
	}
}

func TestNearestWeights(t *testing.T) {
	src, err := NewLatLonGrid(4, 2, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewLatLonGrid(8, 4, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NearestWeights(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.M.Elements) != dst.Size() {
		t.Fatalf("number of weights: %d != %d", len(w.M.Elements), dst.Size())
	}
	for _, e := range w.entries() {
		j, i := e.row/8, e.row%8
		want := (j/2)*4 + i/2
		if e.col != want || e.s != 1 {
			t.Errorf("destination cell %d maps to %d with weight %g; want %d", e.row, e.col, e.s, want)
		}
	}
}

func TestComputeWeightsInvalidMethod(t *testing.T) {
	g, err := NewLatLonGrid(4, 2, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ComputeWeights("bilinear", g, g); err == nil {
		t.Error("expected an error for an invalid method")
	}
}

func TestOverlapArea(t *testing.T) {
	a := geom.Polygon{{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}}
	b := geom.Polygon{{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}}}
	if area := overlapArea(a, b); different(area, 1, testTolerance) {
		t.Errorf("rectangle overlap: %g != 1", area)
	}
	tri := geom.Polygon{{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 2}}}
	if area := overlapArea(a, tri); different(area, 2, 1.e-6) {
		t.Errorf("triangle overlap: %g != 2", area)
	}
	far := geom.Polygon{{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}, {X: 5, Y: 6}}}
	if area := overlapArea(a, far); area != 0 {
		t.Errorf("disjoint overlap: %g != 0", area)
	}
}

func TestWeightsWriteRead(t *testing.T) {
	src, err := NewLatLonGrid(8, 4, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewLatLonGrid(5, 3, -170, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := ConservativeWeights(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	f := tempFile(t, "weights")
	defer os.Remove(f.Name())
	defer f.Close()
	if err := w.Write(f); err != nil {
		t.Fatal(err)
	}
	w2, err := ReadWeights(f)
	if err != nil {
		t.Fatal(err)
	}
	if w2.SrcDims != w.SrcDims || w2.DstDims != w.DstDims {
		t.Errorf("dims: %v, %v != %v, %v", w2.SrcDims, w2.DstDims, w.SrcDims, w.DstDims)
	}
	if w2.Method != Conservative {
		t.Errorf("method: %q", w2.Method)
	}
	if !reflect.DeepEqual(w2.M.Elements, w.M.Elements) {
		t.Errorf("weights differ")
	}
	if !reflect.DeepEqual(w2.FracB, w.FracB) {
		t.Errorf("frac_b: %v != %v", w2.FracB, w.FracB)
	}
	if !w2.Matches(Conservative, src, dst) {
		t.Errorf("weights read from file should match the grids they were computed for")
	}
}

func TestWeightsMatches(t *testing.T) {
	src, err := NewLatLonGrid(8, 4, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewLatLonGrid(4, 2, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := ConservativeWeights(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if !w.Matches(Conservative, src, dst) {
		t.Error("weights should match their own grids")
	}
	if w.Matches(Nearest, src, dst) {
		t.Error("weights should not match a different method")
	}
	shifted, err := NewLatLonGrid(4, 2, -135, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.Matches(Conservative, src, shifted) {
		t.Error("weights should not match a grid with a different western edge")
	}
	masked, err := NewLatLonGrid(4, 2, -180, []int32{1, 1, 1, 1, 0, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if w.Matches(Conservative, src, masked) {
		t.Error("weights should not match a grid with a different mask")
	}
	w.SrcGrid, w.DstGrid = "", ""
	if w.Matches(Conservative, src, dst) {
		t.Error("weights without grid keys should never match")
	}
}

func TestWeightsApplyWrongSize(t *testing.T) {
	g, err := NewLatLonGrid(4, 2, -180, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NearestWeights(g, g)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Apply(make([]float64, 3)); err == nil {
		t.Error("expected an error for the wrong number of source values")
	}
	if v, err := w.Apply([]float64{0, 1, 2, 3, 4, 5, 6, math.Pi}); err != nil || v[7] != math.Pi {
		t.Errorf("identity apply: %v, %v", v, err)
	}
}
