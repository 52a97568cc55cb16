// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gdalutils

import (
	"fmt"
	"math"
	"sort"

	goeval "github.com/edisonguo/govaluate"
)

// Expression is a compiled band math expression
type Expression struct {
	src  string
	expr *goeval.EvaluableExpression
	vars []string
}

// CompileExpression parses expr, accepting only the given variable names. The
// following functions are available: abs, sqrt, exp, log, log10, pow, min, max,
// floor, ceil, round, where(cond,a,b) and isnan.
func CompileExpression(expr string, variables []string) (*Expression, error) {
	e, err := goeval.NewEvaluableExpressionWithFunctions(expr, calcFunctions)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", expr, err)
	}
	valid := make(map[string]struct{}, len(variables))
	for _, v := range variables {
		valid[v] = struct{}{}
	}
	used := map[string]struct{}{}
	for _, token := range e.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		name, ok := token.Value.(string)
		if !ok {
			return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
		}
		if _, found := valid[name]; !found {
			return nil, fmt.Errorf("variable %v is not defined in %q", name, expr)
		}
		used[name] = struct{}{}
	}
	ret := &Expression{src: expr, expr: e}
	for v := range used {
		ret.vars = append(ret.vars, v)
	}
	sort.Strings(ret.vars)
	return ret, nil
}

// Variables returns the sorted list of variables referenced by the expression
func (e *Expression) Variables() []string {
	return e.vars
}

func (e *Expression) String() string {
	return e.src
}

// Evaluate evaluates the expression. Boolean results are returned as 1 or 0.
func (e *Expression) Evaluate(params map[string]interface{}) (float64, error) {
	res, err := e.expr.Evaluate(params)
	if err != nil {
		return 0, err
	}
	return toFloat(res)
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case int:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("unsupported value %v of type %T", v, v)
	}
}

func unary(name string, fn func(float64) float64) goeval.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		v, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return fn(v), nil
	}
}

func reduce(name string, fn func(a, b float64) float64) goeval.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s expects at least 1 argument", name)
		}
		acc, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			v, err := toFloat(a)
			if err != nil {
				return nil, err
			}
			acc = fn(acc, v)
		}
		return acc, nil
	}
}

var calcFunctions = map[string]goeval.ExpressionFunction{
	"abs":   unary("abs", math.Abs),
	"sqrt":  unary("sqrt", math.Sqrt),
	"exp":   unary("exp", math.Exp),
	"log":   unary("log", math.Log),
	"log10": unary("log10", math.Log10),
	"floor": unary("floor", math.Floor),
	"ceil":  unary("ceil", math.Ceil),
	"round": unary("round", math.Round),
	"isnan": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("isnan expects 1 argument, got %d", len(args))
		}
		v, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return math.IsNaN(v), nil
	},
	"pow": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(args))
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return math.Pow(x, y), nil
	},
	"min": reduce("min", math.Min),
	"max": reduce("max", math.Max),
	"where": func(args ...interface{}) (interface{}, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("where expects 3 arguments, got %d", len(args))
		}
		c, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		if c != 0 {
			return args[1], nil
		}
		return args[2], nil
	},
}
