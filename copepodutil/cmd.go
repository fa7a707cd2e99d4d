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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/copepod"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage string
	defaultVal  interface{}
	flagsets    []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to copepod.
	options = []struct {
		name, usage string
		defaultVal  interface{}
		flagsets    []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "loglevel",
			usage: `
              loglevel sets the logging verbosity. It can be one of
              debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Source.URLs",
			usage: `
              Source.URLs lists the locations of the raw biomass files.
              Each location can be a local path, an http:// or https:// URL,
              or a blob storage URL (gs://, s3://, or file://). Each file
              becomes one time record of the converted field.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags(), convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Source.Member",
			usage: `
              Source.Member is the pattern (in the format used by Go's path.Match)
              of the file to extract when a source location is a zip archive.
              Exactly one archive member must match.`,
			defaultVal: "*.csv",
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags(), convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Fetch.MaxRetries",
			usage: `
              Fetch.MaxRetries is the number of times a failed download is retried,
              with exponential backoff between attempts.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags(), convertCmd.Flags(), runCmd.Flags(), gridCmd.Flags(), weightsCmd.Flags(), regridCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "Fetch.CacheDir",
			usage: `
              Fetch.CacheDir is the directory where downloaded files are cached
              so they are not downloaded again. If it is empty, downloads are
              only cached in memory.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags(), convertCmd.Flags(), runCmd.Flags(), gridCmd.Flags(), weightsCmd.Flags(), regridCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "Convert.Name",
			usage: `
              Convert.Name is the name of the field variable in the output file.`,
			defaultVal: "biomass",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.LongName",
			usage: `
              Convert.LongName is the descriptive name of the field variable.`,
			defaultVal: "copepod biomass",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Units",
			usage: `
              Convert.Units are the units of the field values.`,
			defaultVal: "mg m-3",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Dx",
			usage: `
              Convert.Dx is the longitude spacing of the raw data in degrees.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Dy",
			usage: `
              Convert.Dy is the latitude spacing of the raw data in degrees.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Lon0",
			usage: `
              Convert.Lon0 is the western edge of the raw data grid in degrees.`,
			defaultVal: -180.0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Lat0",
			usage: `
              Convert.Lat0 is the southern edge of the raw data grid in degrees.`,
			defaultVal: -90.0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.LatColumn",
			usage: `
              Convert.LatColumn is the zero-based column holding latitude.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.LonColumn",
			usage: `
              Convert.LonColumn is the zero-based column holding longitude.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.ValueColumn",
			usage: `
              Convert.ValueColumn is the zero-based column holding the biomass value.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Delimiter",
			usage: `
              Convert.Delimiter is the column separator of the raw files.
              Use "tab" for tab-separated files.`,
			defaultVal: ",",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.MissingValue",
			usage: `
              Convert.MissingValue is the sentinel that marks missing values
              in the raw files.`,
			defaultVal: -999.0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Times",
			usage: `
              Convert.Times are the time coordinates of the source files,
              one per file. If empty, records are numbered from 1.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.TimeUnits",
			usage: `
              Convert.TimeUnits are the units of Convert.Times, for example
              "days since 2000-01-01".`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Expression",
			usage: `
              Convert.Expression is an optional arithmetic expression applied
              to every valid value. It can refer to the field by its name and
              to the lat and lon of each cell, for example "biomass / 12.011".`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.ExpressionUnits",
			usage: `
              Convert.ExpressionUnits are the units of the field after
              Convert.Expression is applied.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.Attributes",
			usage: `
              Convert.Attributes are global attributes to add to the output file.
              When set from the command line, it should be a JSON object,
              for example '{"source":"COPEPOD"}'.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Convert.OutputFile",
			usage: `
              Convert.OutputFile is the path of the netCDF file holding the
              field on its original grid.`,
			defaultVal: "copepod.nc",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Grid.Nx",
			usage: `
              Grid.Nx is the number of longitude cells in the destination grid.`,
			defaultVal: 360,
			flagsets:   []*pflag.FlagSet{gridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Grid.Ny",
			usage: `
              Grid.Ny is the number of latitude cells in the destination grid.`,
			defaultVal: 180,
			flagsets:   []*pflag.FlagSet{gridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Grid.Lon0",
			usage: `
              Grid.Lon0 is the western edge of the destination grid in degrees.`,
			defaultVal: -180.0,
			flagsets:   []*pflag.FlagSet{gridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Grid.MaskFile",
			usage: `
              Grid.MaskFile is an optional netCDF file holding a field on the
              destination grid. Cells where the field is missing or zero are
              masked out.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{gridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Grid.MaskVariable",
			usage: `
              Grid.MaskVariable is the variable in Grid.MaskFile to use as the mask.
              It can be left empty if the file holds a single variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{gridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Grid.OutputFile",
			usage: `
              Grid.OutputFile is the path of the SCRIP file describing the
              destination grid.`,
			defaultVal: "dst_grid.nc",
			flagsets:   []*pflag.FlagSet{gridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.InputFile",
			usage: `
              Regrid.InputFile is the netCDF file holding the field to be regridded.`,
			defaultVal: "copepod.nc",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), regridCmd.Flags()},
		},
		{
			name: "Regrid.Variable",
			usage: `
              Regrid.Variable is the variable in Regrid.InputFile to regrid.
              It can be left empty if the file holds a single variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.SrcGridFile",
			usage: `
              Regrid.SrcGridFile is an optional SCRIP file describing the source grid.
              If it is empty, the source grid is derived from the coordinates
              of the input field.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.DstGridFile",
			usage: `
              Regrid.DstGridFile is the SCRIP file describing the destination grid.
              When running the full pipeline, it defaults to the grid
              created from the Grid options.`,
			defaultVal: "dst_grid.nc",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), regridCmd.Flags()},
		},
		{
			name: "Regrid.WeightFile",
			usage: `
              Regrid.WeightFile is the path of the remapping weight file. The
              regrid command reads it if it exists and otherwise computes and
              writes it. Leave it empty to always compute the weights in memory.`,
			defaultVal: "weights.nc",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.Method",
			usage: `
              Regrid.Method is the remapping method: conservative or nearest.`,
			defaultVal: copepod.Conservative,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.Renormalize",
			usage: `
              Regrid.Renormalize specifies whether regridded values should be
              divided by the fraction of each destination cell covered by
              valid source data, so missing values do not bias the result.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.ApplyMask",
			usage: `
              Regrid.ApplyMask specifies whether masked destination cells
              should be set to missing.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.MinFraction",
			usage: `
              Regrid.MinFraction is the minimum fraction of a destination cell
              that must be covered by valid source data for the cell to be valid.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Regrid.OutputFile",
			usage: `
              Regrid.OutputFile is the path of the netCDF file holding the
              regridded field.`,
			defaultVal: "copepod_regridded.nc",
			flagsets:   []*pflag.FlagSet{regridCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Export.InputFile",
			usage: `
              Export.InputFile is the netCDF file holding the field to export.`,
			defaultVal: "copepod_regridded.nc",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "Export.Variable",
			usage: `
              Export.Variable is the variable in Export.InputFile to export.
              It can be left empty if the file holds a single variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "Export.GridFile",
			usage: `
              Export.GridFile is an optional SCRIP file describing the grid of
              the exported field. If it is empty, the grid is derived from the
              coordinates of the field.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "Export.Time",
			usage: `
              Export.Time is the zero-based index of the time record to export.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "Export.OutputFile",
			usage: `
              Export.OutputFile is the path of the output shapefile. When running
              the full pipeline, the regridded field is exported only if this is set.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags(), runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	// Nested names are separated by underscores, e.g. COPEPOD_CONVERT_DX.
	Cfg.SetEnvPrefix("COPEPOD")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				set.String(option.name, option.defaultVal.(string), option.usage)
			case []string:
				set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
			case bool:
				set.Bool(option.name, option.defaultVal.(bool), option.usage)
			case int:
				set.Int(option.name, option.defaultVal.(int), option.usage)
			case float64:
				set.Float64(option.name, option.defaultVal.(float64), option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				set.String(option.name, s, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(configCmd)
	Root.AddCommand(fetchCmd)
	Root.AddCommand(convertCmd)
	Root.AddCommand(gridCmd)
	Root.AddCommand(weightsCmd)
	Root.AddCommand(regridCmd)
	Root.AddCommand(exportCmd)
	Root.AddCommand(runCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the logging level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("copepodutil: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("loglevel"))
	if err != nil {
		return fmt.Errorf("copepodutil: %v", err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "copepod",
	Short: "Fetch, convert, and regrid copepod biomass fields.",
	Long: `copepod downloads gridded copepod biomass data, converts it to netCDF,
and regrids it onto a different spatial grid.
Use the subcommands specified below to run individual steps or the
whole pipeline.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'COPEPOD_var' where 'var' is the
name of the variable to be set. File path variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of copepod.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("copepod v%s\n", copepod.Version)
	},
	DisableAutoGenTag: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration.",
	Long: `config prints the effective configuration, combining defaults, the
configuration file, environment variables, and command-line arguments,
in TOML format. The output can be used as a starting point for a
configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := configMap(Cfg)
		if err != nil {
			return err
		}
		b := bytes.NewBuffer(nil)
		if err := toml.NewEncoder(b).Encode(m); err != nil {
			return fmt.Errorf("copepodutil: encoding configuration: %v", err)
		}
		cmd.Print(b.String())
		return nil
	},
	DisableAutoGenTag: true,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the raw biomass files.",
	Long: `fetch downloads the files listed in Source.URLs, extracting them from
zip archives if necessary, and prints their local paths. Downloads are
cached in Fetch.CacheDir. If Fetch.CacheDir is not set, the files are
left in a temporary directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fetcherFromConfig(Cfg)
		if err != nil {
			return err
		}
		paths, err := f.Fetch(context.TODO(), expandStringSlice(Cfg.GetStringSlice("Source.URLs"))...)
		if err != nil {
			f.Close()
			return err
		}
		for _, p := range paths {
			cmd.Println(p)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the raw biomass files to netCDF.",
	Long: `convert downloads the files listed in Source.URLs, places their values
on a regular latitude-longitude grid, and writes the result to
Convert.OutputFile in netCDF format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fetcherFromConfig(Cfg)
		if err != nil {
			return err
		}
		defer f.Close()
		o, err := convertOptions(Cfg)
		if err != nil {
			return err
		}
		attributes, err := getStringMapString("Convert.Attributes", Cfg)
		if err != nil {
			return err
		}
		var u uploader
		outputFile, err := checkOutputFile(Cfg.GetString("Convert.OutputFile"))
		if err != nil {
			return err
		}
		_, err = Convert(context.TODO(), f, expandStringSlice(Cfg.GetStringSlice("Source.URLs")), o,
			Cfg.GetString("Convert.Expression"), Cfg.GetString("Convert.ExpressionUnits"),
			attributes, u.maybeUpload(outputFile), nil)
		if err != nil {
			return err
		}
		return u.uploadOutput(context.TODO())
	},
	DisableAutoGenTag: true,
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Create the destination grid.",
	Long: `grid creates a global regular latitude-longitude grid with Grid.Nx by
Grid.Ny cells, optionally masked by Grid.MaskFile, and writes it to
Grid.OutputFile in SCRIP format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fetcherFromConfig(Cfg)
		if err != nil {
			return err
		}
		defer f.Close()
		var u uploader
		outputFile, err := checkOutputFile(Cfg.GetString("Grid.OutputFile"))
		if err != nil {
			return err
		}
		_, err = MakeGrid(context.TODO(), f, Cfg.GetInt("Grid.Nx"), Cfg.GetInt("Grid.Ny"), Cfg.GetFloat64("Grid.Lon0"),
			expandPath(Cfg.GetString("Grid.MaskFile")), Cfg.GetString("Grid.MaskVariable"),
			u.maybeUpload(outputFile), nil)
		if err != nil {
			return err
		}
		return u.uploadOutput(context.TODO())
	},
	DisableAutoGenTag: true,
}

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Compute remapping weights.",
	Long: `weights computes the weights that remap fields from the source grid to
the destination grid and writes them to Regrid.WeightFile in ESMF format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := checkMethod(Cfg.GetString("Regrid.Method"))
		if err != nil {
			return err
		}
		f, err := fetcherFromConfig(Cfg)
		if err != nil {
			return err
		}
		defer f.Close()
		ctx := context.TODO()
		src, err := LoadGrid(ctx, f, expandPath(Cfg.GetString("Regrid.SrcGridFile")),
			expandPath(Cfg.GetString("Regrid.InputFile")), Cfg.GetString("Regrid.Variable"))
		if err != nil {
			return err
		}
		dst, err := LoadGrid(ctx, f, expandPath(Cfg.GetString("Regrid.DstGridFile")), "", "")
		if err != nil {
			return err
		}
		var u uploader
		outputFile, err := checkOutputFile(Cfg.GetString("Regrid.WeightFile"))
		if err != nil {
			return err
		}
		if _, err = Weights(src, dst, method, u.maybeUpload(outputFile), nil); err != nil {
			return err
		}
		return u.uploadOutput(ctx)
	},
	DisableAutoGenTag: true,
}

var regridCmd = &cobra.Command{
	Use:   "regrid",
	Short: "Regrid a field.",
	Long: `regrid remaps the field in Regrid.InputFile onto the grid in
Regrid.DstGridFile and writes the result to Regrid.OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fetcherFromConfig(Cfg)
		if err != nil {
			return err
		}
		defer f.Close()
		ctx := context.TODO()
		var u uploader
		outputFile, err := checkOutputFile(Cfg.GetString("Regrid.OutputFile"))
		if err != nil {
			return err
		}
		if _, err = regridFromConfig(ctx, Cfg, f, &u, expandPath(Cfg.GetString("Regrid.InputFile")),
			expandPath(Cfg.GetString("Regrid.DstGridFile")), u.maybeUpload(outputFile)); err != nil {
			return err
		}
		return u.uploadOutput(ctx)
	},
	DisableAutoGenTag: true,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a field to a shapefile.",
	Long: `export writes one time record of the field in Export.InputFile to a
polygon shapefile with one feature per grid cell.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fetcherFromConfig(Cfg)
		if err != nil {
			return err
		}
		defer f.Close()
		ctx := context.TODO()
		inputFile := expandPath(Cfg.GetString("Export.InputFile"))
		g, err := LoadGrid(ctx, f, expandPath(Cfg.GetString("Export.GridFile")), inputFile, Cfg.GetString("Export.Variable"))
		if err != nil {
			return err
		}
		var u uploader
		outputFile, err := checkOutputFile(Cfg.GetString("Export.OutputFile"))
		if err != nil {
			return err
		}
		if err = Export(ctx, f, inputFile, Cfg.GetString("Export.Variable"), g, Cfg.GetInt("Export.Time"),
			u.maybeUpload(outputFile), nil); err != nil {
			return err
		}
		return u.uploadOutput(ctx)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline.",
	Long: `run fetches and converts the raw biomass files, creates the destination
grid, and regrids the converted field onto it. If Export.OutputFile is
set, the regridded field is also exported to a shapefile. Output files
that are blob storage locations are uploaded after all steps succeed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFromConfig(context.TODO(), Cfg)
	},
	DisableAutoGenTag: true,
}
