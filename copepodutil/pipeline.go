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

package copepodutil

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/copepod"
)

func logger(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}

// Convert fetches the raw files at the given locations, places them on a
// regular grid as successive time records, optionally transforms the
// values using expression, and writes the resulting field to outputFile.
// attributes are added to the global attributes of the output file.
func Convert(ctx context.Context, fetcher *Fetcher, locations []string, o copepod.ConvertOptions,
	expression, expressionUnits string, attributes map[string]string, outputFile string,
	log logrus.FieldLogger) (*copepod.Field, error) {
	log = logger(log)

	paths, err := fetcher.Fetch(ctx, locations...)
	if err != nil {
		return nil, err
	}
	readers := make([]io.Reader, len(paths))
	for i, p := range paths {
		r, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("copepodutil: opening raw file: %v", err)
		}
		defer r.Close()
		readers[i] = r
	}
	f, err := copepod.Convert(o, readers...)
	if err != nil {
		return nil, err
	}
	if expression != "" {
		if err := f.Transform(expression, expressionUnits); err != nil {
			return nil, err
		}
	}
	f.Attributes["source"] = strings.Join(locations, " ")
	for k, v := range attributes {
		f.Attributes[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	nt, ny, nx := f.Shape()
	s := copepod.Summarize(f)
	log.WithFields(logrus.Fields{
		"records": nt,
		"ny":      ny,
		"nx":      nx,
		"valid":   s.Count,
		"min":     s.Min,
		"max":     s.Max,
		"mean":    s.Mean,
	}).Info("converted field")
	if err := writeField(f, outputFile); err != nil {
		return nil, err
	}
	log.WithField("file", outputFile).Info("wrote field")
	return f, nil
}

// MakeGrid creates a global latitude-longitude grid with nx by ny cells
// whose western edge is at lon0 and writes it to outputFile, if
// outputFile is not empty. If maskFile is not empty, the first time record
// of variable in maskFile, which must have the same shape as the grid, is
// used as the grid mask: cells where it is missing or zero are inactive.
// Remote mask files are retrieved with fetcher.
func MakeGrid(ctx context.Context, fetcher *Fetcher, nx, ny int, lon0 float64, maskFile, variable, outputFile string,
	log logrus.FieldLogger) (*copepod.Grid, error) {
	log = logger(log)

	var mask []int32
	if maskFile != "" {
		m, err := readField(ctx, fetcher, maskFile, variable)
		if err != nil {
			return nil, err
		}
		_, mny, mnx := m.Shape()
		if mny != ny || mnx != nx {
			return nil, fmt.Errorf("copepodutil: mask %s has shape (%d, %d) but the grid has shape (%d, %d)",
				maskFile, mny, mnx, ny, nx)
		}
		mask = make([]int32, nx*ny)
		for i, v := range m.Record(0) {
			if !math.IsNaN(v) && v != 0 {
				mask[i] = 1
			}
		}
	}
	g, err := copepod.NewLatLonGrid(nx, ny, lon0, mask)
	if err != nil {
		return nil, err
	}
	var active int
	for _, m := range g.Mask {
		active += int(m)
	}
	log.WithFields(logrus.Fields{
		"title":  g.Title,
		"cells":  g.Size(),
		"active": active,
	}).Info("created grid")
	if outputFile == "" {
		return g, nil
	}
	if err := writeGrid(g, outputFile); err != nil {
		return nil, err
	}
	log.WithField("file", outputFile).Info("wrote grid")
	return g, nil
}

// LoadGrid reads a SCRIP grid from gridFile. If gridFile is empty, the
// grid is instead derived from the coordinates of variable in fieldFile.
// Either file may be a remote location, which is retrieved with fetcher.
func LoadGrid(ctx context.Context, fetcher *Fetcher, gridFile, fieldFile, variable string) (*copepod.Grid, error) {
	if gridFile == "" {
		if fieldFile == "" {
			return nil, fmt.Errorf("copepodutil: a grid file or a field file must be specified")
		}
		f, err := readField(ctx, fetcher, fieldFile, variable)
		if err != nil {
			return nil, err
		}
		return copepod.GridFromField(f)
	}
	p, err := fetcher.LocalPath(ctx, gridFile)
	if err != nil {
		return nil, err
	}
	r, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: opening grid file: %v", err)
	}
	defer r.Close()
	g, err := copepod.ReadGrid(r)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: reading grid file %s: %v", gridFile, err)
	}
	return g, nil
}

// Weights computes the weights for remapping fields from the src grid to
// the dst grid using the given method and writes them to outputFile, if
// outputFile is not empty.
func Weights(src, dst *copepod.Grid, method, outputFile string, log logrus.FieldLogger) (*copepod.Weights, error) {
	log = logger(log)
	w, err := copepod.ComputeWeights(method, src, dst)
	if err != nil {
		return nil, err
	}
	var covered int
	for _, f := range w.FracB {
		if f > 0 {
			covered++
		}
	}
	log.WithFields(logrus.Fields{
		"method":  method,
		"src":     src.Title,
		"dst":     dst.Title,
		"weights": len(w.M.Elements),
		"covered": covered,
	}).Info("computed weights")
	if outputFile == "" {
		return w, nil
	}
	wf, err := os.Create(outputFile)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: creating weight file: %v", err)
	}
	defer wf.Close()
	if err := w.Write(wf); err != nil {
		return nil, err
	}
	log.WithField("file", outputFile).Info("wrote weights")
	return w, nil
}

// LoadWeights reads remapping weights from the weight file at p.
func LoadWeights(ctx context.Context, fetcher *Fetcher, p string) (*copepod.Weights, error) {
	lp, err := fetcher.LocalPath(ctx, p)
	if err != nil {
		return nil, err
	}
	r, err := os.Open(lp)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: opening weight file: %v", err)
	}
	defer r.Close()
	w, err := copepod.ReadWeights(r)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: reading weight file %s: %v", p, err)
	}
	return w, nil
}

// Regrid remaps variable in inputFile using r and writes the result to
// outputFile. The area-weighted integral of every time record before
// and after regridding is logged.
func Regrid(ctx context.Context, fetcher *Fetcher, inputFile, variable string, r *copepod.Regridder, o copepod.RegridOptions,
	outputFile string, log logrus.FieldLogger) (*copepod.Field, error) {
	log = logger(log)
	f, err := readField(ctx, fetcher, inputFile, variable)
	if err != nil {
		return nil, err
	}
	out, err := r.Regrid(f, o)
	if err != nil {
		return nil, err
	}
	nt, _, _ := out.Shape()
	for t := 0; t < nt; t++ {
		in, err := copepod.Integral(f, r.Src, t)
		if err != nil {
			return nil, err
		}
		dstIntegral, err := copepod.Integral(out, r.Dst, t)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"record":       t,
			"src_integral": in,
			"dst_integral": dstIntegral,
		}).Info("regridded record")
	}
	s := copepod.Summarize(out)
	log.WithFields(logrus.Fields{
		"regridder": r.String(),
		"valid":     s.Count,
		"min":       s.Min,
		"max":       s.Max,
		"mean":      s.Mean,
	}).Info("regridded field")
	if err := writeField(out, outputFile); err != nil {
		return nil, err
	}
	log.WithField("file", outputFile).Info("wrote regridded field")
	return out, nil
}

// Export writes time record t of variable in inputFile, which is defined
// on grid g, to the shapefile outputFile.
func Export(ctx context.Context, fetcher *Fetcher, inputFile, variable string, g *copepod.Grid, t int, outputFile string,
	log logrus.FieldLogger) error {
	f, err := readField(ctx, fetcher, inputFile, variable)
	if err != nil {
		return err
	}
	if err := copepod.WriteShapefile(outputFile, f, g, t); err != nil {
		return err
	}
	logger(log).WithFields(logrus.Fields{
		"file":   outputFile,
		"record": t,
	}).Info("wrote shapefile")
	return nil
}

func writeField(f *copepod.Field, p string) error {
	w, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("copepodutil: creating output file: %v", err)
	}
	defer w.Close()
	return f.Write(w)
}

func writeGrid(g *copepod.Grid, p string) error {
	w, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("copepodutil: creating grid file: %v", err)
	}
	defer w.Close()
	return g.Write(w)
}

// readField reads variable from the netCDF file at p, which may be a
// remote location.
func readField(ctx context.Context, fetcher *Fetcher, p, variable string) (*copepod.Field, error) {
	lp, err := fetcher.LocalPath(ctx, p)
	if err != nil {
		return nil, err
	}
	r, err := os.Open(lp)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: opening field file: %v", err)
	}
	defer r.Close()
	f, err := copepod.ReadField(r, variable)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: reading %s: %v", p, err)
	}
	return f, nil
}

// weightsFromConfig returns weights for remapping from src to dst. If
// the configured weight file is a local file holding weights for the same
// grids and method, they are reused. Otherwise they are computed and,
// if a weight file is configured, written to it.
func weightsFromConfig(ctx context.Context, cfg *viper.Viper, fetcher *Fetcher, u *uploader, src, dst *copepod.Grid) (*copepod.Weights, error) {
	method, err := checkMethod(cfg.GetString("Regrid.Method"))
	if err != nil {
		return nil, err
	}
	weightFile := expandPath(cfg.GetString("Regrid.WeightFile"))
	if weightFile == "" {
		return Weights(src, dst, method, "", nil)
	}
	if _, err := os.Stat(weightFile); err == nil && !IsBlob(weightFile) {
		w, err := LoadWeights(ctx, fetcher, weightFile)
		if err == nil && w.Matches(method, src, dst) {
			logrus.WithField("file", weightFile).Info("reusing weights")
			return w, nil
		}
		logrus.WithField("file", weightFile).Warn("weight file does not match the grids; recomputing")
	}
	outputFile, err := checkOutputFile(weightFile)
	if err != nil {
		return nil, err
	}
	return Weights(src, dst, method, u.maybeUpload(outputFile), nil)
}

// regridFromConfig regrids the field in inputFile onto the grid in
// dstGridFile using the Regrid options in cfg.
func regridFromConfig(ctx context.Context, cfg *viper.Viper, fetcher *Fetcher, u *uploader, inputFile, dstGridFile, outputFile string) (*copepod.Grid, error) {
	variable := cfg.GetString("Regrid.Variable")
	src, err := LoadGrid(ctx, fetcher, expandPath(cfg.GetString("Regrid.SrcGridFile")), inputFile, variable)
	if err != nil {
		return nil, err
	}
	dst, err := LoadGrid(ctx, fetcher, dstGridFile, "", "")
	if err != nil {
		return nil, err
	}
	w, err := weightsFromConfig(ctx, cfg, fetcher, u, src, dst)
	if err != nil {
		return nil, err
	}
	r, err := copepod.NewRegridder(src, dst, w)
	if err != nil {
		return nil, err
	}
	if _, err = Regrid(ctx, fetcher, inputFile, variable, r, regridOptions(cfg), outputFile, nil); err != nil {
		return nil, err
	}
	return dst, nil
}

// runFromConfig runs the whole pipeline using the options in cfg.
// Outputs destined for blob storage are uploaded only after every step
// has succeeded.
func runFromConfig(ctx context.Context, cfg *viper.Viper) error {
	fetcher, err := fetcherFromConfig(cfg)
	if err != nil {
		return err
	}
	defer fetcher.Close()
	o, err := convertOptions(cfg)
	if err != nil {
		return err
	}
	attributes, err := getStringMapString("Convert.Attributes", cfg)
	if err != nil {
		return err
	}
	outputs := make(map[string]string)
	for _, name := range []string{"Convert.OutputFile", "Grid.OutputFile", "Regrid.OutputFile", "Export.OutputFile"} {
		if name == "Export.OutputFile" && cfg.GetString(name) == "" {
			continue
		}
		if outputs[name], err = checkOutputFile(cfg.GetString(name)); err != nil {
			return err
		}
	}
	var u uploader
	for name, p := range outputs {
		outputs[name] = u.maybeUpload(p)
	}

	if _, err = Convert(ctx, fetcher, expandStringSlice(cfg.GetStringSlice("Source.URLs")), o,
		cfg.GetString("Convert.Expression"), cfg.GetString("Convert.ExpressionUnits"),
		attributes, outputs["Convert.OutputFile"], nil); err != nil {
		return err
	}
	if _, err = MakeGrid(ctx, fetcher, cfg.GetInt("Grid.Nx"), cfg.GetInt("Grid.Ny"), cfg.GetFloat64("Grid.Lon0"),
		expandPath(cfg.GetString("Grid.MaskFile")), cfg.GetString("Grid.MaskVariable"),
		outputs["Grid.OutputFile"], nil); err != nil {
		return err
	}
	dst, err := regridFromConfig(ctx, cfg, fetcher, &u, outputs["Convert.OutputFile"], outputs["Grid.OutputFile"],
		outputs["Regrid.OutputFile"])
	if err != nil {
		return err
	}
	if exportFile, ok := outputs["Export.OutputFile"]; ok {
		if err = Export(ctx, fetcher, outputs["Regrid.OutputFile"], cfg.GetString("Regrid.Variable"), dst,
			cfg.GetInt("Export.Time"), exportFile, nil); err != nil {
			return err
		}
	}
	return u.uploadOutput(ctx)
}
