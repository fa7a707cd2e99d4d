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

	"github.com/Knetic/govaluate"
)

// expressionFunctions are the functions available in Transform
// expressions.
var expressionFunctions = map[string]govaluate.ExpressionFunction{
	"exp":   unaryFunction("exp", math.Exp),
	"log":   unaryFunction("log", math.Log),
	"log10": unaryFunction("log10", math.Log10),
	"cos":   unaryFunction("cos", func(deg float64) float64 { return math.Cos(deg * degToRad) }),
}

// unaryFunction wraps fn as an expression function of a single number.
func unaryFunction(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("copepod: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		v, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("copepod: function '%s' needs a number but got %v (type %T)", name, arg[0], arg[0])
		}
		return fn(v), nil
	}
}

// Transform replaces every valid value of f with the result of
// expression, which can refer to the value by the field name and to
// the cell location as "lat" and "lon" (in degrees). Available
// functions are exp, log, log10 and cos (of an angle in degrees).
// Missing values stay missing. If units is not empty, it
// replaces the units of f.
func (f *Field) Transform(expression, units string) error {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, expressionFunctions)
	if err != nil {
		return fmt.Errorf("copepod: parsing expression %q: %v", expression, err)
	}
	for _, v := range expr.Vars() {
		if v != f.Name && v != "lat" && v != "lon" {
			return fmt.Errorf("copepod: expression %q refers to undefined variable %q; "+
				"valid variables are %q, \"lat\" and \"lon\"", expression, v, f.Name)
		}
	}
	nt, ny, nx := f.Shape()
	params := make(map[string]interface{}, 3)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			params["lat"], params["lon"] = f.LatLon(j, i)
			for t := 0; t < nt; t++ {
				k := (t*ny+j)*nx + i
				v := f.Data.Elements[k]
				if math.IsNaN(v) {
					continue
				}
				params[f.Name] = v
				result, err := expr.Evaluate(params)
				if err != nil {
					return fmt.Errorf("copepod: evaluating expression %q: %v", expression, err)
				}
				r, ok := result.(float64)
				if !ok {
					return fmt.Errorf("copepod: expression %q returned %v (type %T) but should return a number",
						expression, result, result)
				}
				f.Data.Elements[k] = r
			}
		}
	}
	if units != "" {
		f.Units = units
	}
	return nil
}
