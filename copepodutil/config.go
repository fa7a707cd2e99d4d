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
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/copepod"
	"github.com/spf13/cast"
)

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// expandPath expands the environment variables in a file path.
func expandPath(p string) string { return os.ExpandEnv(p) }

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`copepodutil: you need to specify an output file configuration variable (for example: Convert.OutputFile="copepod.nc")`)
	}
	f = os.ExpandEnv(f)
	if IsBlob(f) {
		url, err := url.Parse(f)
		if err != nil {
			return f, err
		}
		_, err = OpenBucket(context.TODO(), url.Scheme+"://"+url.Host)
		if err != nil {
			return f, fmt.Errorf("copepodutil: error when checking output file location: %v", err)
		}
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("copepodutil: the output file directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkMethod makes sure the remapping method is one that is supported.
func checkMethod(m string) (string, error) {
	m = strings.ToLower(strings.TrimSpace(m))
	if m != copepod.Conservative && m != copepod.Nearest {
		return m, fmt.Errorf("copepodutil: the Regrid.Method configuration variable "+
			"needs to be set to either %s or %s, but is currently set to `%s`",
			copepod.Conservative, copepod.Nearest, m)
	}
	return m, nil
}

// checkDelimiter returns the column separator specified by d.
func checkDelimiter(d string) (rune, error) {
	switch d {
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	r, n := utf8.DecodeRuneInString(d)
	if r == utf8.RuneError || n != len(d) {
		return 0, fmt.Errorf("copepodutil: the Convert.Delimiter configuration variable "+
			"needs to be a single character, but is currently set to `%s`", d)
	}
	return r, nil
}

// convertOptions returns the field conversion options specified in cfg.
func convertOptions(cfg *viper.Viper) (copepod.ConvertOptions, error) {
	o := copepod.DefaultConvertOptions()
	o.Name = cfg.GetString("Convert.Name")
	o.LongName = cfg.GetString("Convert.LongName")
	o.Units = cfg.GetString("Convert.Units")
	o.Dx = cfg.GetFloat64("Convert.Dx")
	o.Dy = cfg.GetFloat64("Convert.Dy")
	o.Lon0 = cfg.GetFloat64("Convert.Lon0")
	o.Lat0 = cfg.GetFloat64("Convert.Lat0")
	o.LatColumn = cfg.GetInt("Convert.LatColumn")
	o.LonColumn = cfg.GetInt("Convert.LonColumn")
	o.ValueColumn = cfg.GetInt("Convert.ValueColumn")
	o.MissingValue = cfg.GetFloat64("Convert.MissingValue")
	o.TimeUnits = cfg.GetString("Convert.TimeUnits")
	var err error
	if o.Delimiter, err = checkDelimiter(cfg.GetString("Convert.Delimiter")); err != nil {
		return o, err
	}
	if o.Times, err = toFloat64SliceE(cfg.Get("Convert.Times")); err != nil {
		return o, fmt.Errorf("copepodutil: invalid Convert.Times: %v", err)
	}
	switch o.Name {
	case "":
		return o, fmt.Errorf("copepodutil: Convert.Name must not be empty")
	case "time", "lat", "lon", "time_bnds", "lat_bnds", "lon_bnds":
		return o, fmt.Errorf("copepodutil: Convert.Name must not be the name of a coordinate variable, "+
			"but is currently set to `%s`", o.Name)
	}
	return o, nil
}

// regridOptions returns the regridding options specified in cfg.
func regridOptions(cfg *viper.Viper) copepod.RegridOptions {
	return copepod.RegridOptions{
		Renormalize: cfg.GetBool("Regrid.Renormalize"),
		ApplyMask:   cfg.GetBool("Regrid.ApplyMask"),
		MinFraction: cfg.GetFloat64("Regrid.MinFraction"),
	}
}

// fetcherFromConfig returns a Fetcher configured by the Source and
// Fetch options in cfg.
func fetcherFromConfig(cfg *viper.Viper) (*Fetcher, error) {
	maxRetries := cfg.GetInt("Fetch.MaxRetries")
	if maxRetries < 0 {
		return nil, fmt.Errorf("copepodutil: Fetch.MaxRetries must not be negative but is %d", maxRetries)
	}
	return NewFetcher(expandPath(cfg.GetString("Fetch.CacheDir")), cfg.GetString("Source.Member"),
		uint64(maxRetries), nil)
}

// toFloat64SliceE converts s to a float slice. s can be a slice or a
// JSON array if it was set from a command line argument.
func toFloat64SliceE(s interface{}) ([]float64, error) {
	switch v := s.(type) {
	case nil:
		return nil, nil
	case []float64:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" || strings.TrimSpace(v) == "[]" {
			return nil, nil
		}
		var o []float64
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			return nil, err
		}
		return o, nil
	}
	ss, err := cast.ToStringSliceE(s)
	if err != nil {
		return nil, err
	}
	o := make([]float64, len(ss))
	for i, str := range ss {
		if o[i], err = cast.ToFloat64E(strings.TrimSpace(str)); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// getStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func getStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("copepodutil: decoding %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("copepodutil: invalid type for map variable %s: %#v", varName, i)
	}
}

// configMap returns the effective value of every option in cfg, nested
// by section, for encoding as a configuration file.
func configMap(cfg *viper.Viper) (map[string]interface{}, error) {
	o := make(map[string]interface{})
	for _, option := range options {
		if option.name == "config" {
			continue
		}
		var v interface{}
		var err error
		switch option.defaultVal.(type) {
		case string:
			v = cfg.GetString(option.name)
		case []string:
			ss := cfg.GetStringSlice(option.name)
			if ss == nil {
				ss = []string{}
			}
			v = ss
		case bool:
			v, err = cast.ToBoolE(cfg.Get(option.name))
		case int:
			v, err = cast.ToIntE(cfg.Get(option.name))
		case float64:
			v, err = cast.ToFloat64E(cfg.Get(option.name))
		case map[string]string:
			v, err = getStringMapString(option.name, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("copepodutil: option %s: %v", option.name, err)
		}
		m := o
		parts := strings.Split(option.name, ".")
		for _, section := range parts[:len(parts)-1] {
			sub, ok := m[section].(map[string]interface{})
			if !ok {
				sub = make(map[string]interface{})
				m[section] = sub
			}
			m = sub
		}
		m[parts[len(parts)-1]] = v
	}
	return o, nil
}
