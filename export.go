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
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// wgs84 is the projection definition written to .prj files.
const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],` +
	`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// ShapefileMissing is the value written to shapefiles for missing data.
const ShapefileMissing = -9999.

// WriteShapefile writes time record t of field f, which is defined on
// grid g, to a polygon shapefile with one feature per active cell.
// Each feature has fields row, col, and value.
func WriteShapefile(fname string, f *Field, g *Grid, t int) error {
	if err := f.Check(); err != nil {
		return err
	}
	nt, ny, nx := f.Shape()
	if ny != g.Ny || nx != g.Nx {
		return fmt.Errorf("copepod: field %s has horizontal shape (%d, %d) but the grid has (%d, %d)",
			f.Name, ny, nx, g.Ny, g.Nx)
	}
	if t < 0 || t >= nt {
		return fmt.Errorf("copepod: time index %d is out of range for field %s with %d records", t, f.Name, nt)
	}
	base := strings.TrimSuffix(fname, filepath.Ext(fname))
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(base + ext)
	}
	e, err := shp.NewEncoderFromFields(base+".shp", goshp.POLYGON,
		goshp.NumberField("row", 10),
		goshp.NumberField("col", 10),
		goshp.FloatField("value", 20, 8),
	)
	if err != nil {
		return fmt.Errorf("copepod: creating shapefile: %v", err)
	}
	rec := f.Record(t)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			c := j*nx + i
			if g.Mask[c] == 0 {
				continue
			}
			path := make(geom.Path, 5)
			for k := 0; k < 4; k++ {
				path[k] = geom.Point{X: g.CornerLon[c*4+k], Y: g.CornerLat[c*4+k]}
			}
			path[4] = path[0]
			v := rec[c]
			if math.IsNaN(v) {
				v = ShapefileMissing
			}
			if err := e.EncodeFields(geom.Polygon{path}, j, i, v); err != nil {
				e.Close()
				return fmt.Errorf("copepod: writing shapefile: %v", err)
			}
		}
	}
	e.Close()

	prj, err := os.Create(base + ".prj")
	if err != nil {
		return err
	}
	if _, err = prj.Write([]byte(wgs84)); err != nil {
		prj.Close()
		return err
	}
	return prj.Close()
}
