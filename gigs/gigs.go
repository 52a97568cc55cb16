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

// Package gigs runs coordinate transformation test files in the style of the Geospatial
// Integrity of Geoscience Software (GIGS) test series: pairs of coordinates expressed
// in two coordinate reference systems, checked with conversion and round trip tests.
package gigs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestType is the kind of check run on a case's coordinates
type TestType string

const (
	// Conversion transforms each point and compares it to its expected counterpart
	Conversion TestType = "conversion"
	// RoundTrip transforms each point forth and back a number of times and checks
	// it did not drift from its starting value
	RoundTrip TestType = "roundtrip"
)

// Direction restricts which way a test is run
type Direction string

const (
	// Forward runs from the first projection to the second
	Forward Direction = "forward"
	// Inverse runs from the second projection to the first
	Inverse Direction = "inverse"
	// Both runs both directions, the default
	Both Direction = "both"
)

func (d Direction) forward() bool { return d == Forward || d == Both || d == "" }
func (d Direction) inverse() bool { return d == Inverse || d == Both || d == "" }

// Test is one check of a Case
type Test struct {
	Type TestType `json:"type" yaml:"type"`
	// Tolerances holds the maximum per-axis difference allowed in the units of the
	// source and of the target projection. A single value applies to both.
	Tolerances []float64 `json:"tolerances" yaml:"tolerances"`
	// Times is the number of round trips. Defaults to 1
	Times     int       `json:"times,omitempty" yaml:"times,omitempty"`
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
}

func (t Test) sourceTolerance() float64 { return t.Tolerances[0] }

func (t Test) targetTolerance() float64 { return t.Tolerances[len(t.Tolerances)-1] }

// Case is the content of a test file
type Case struct {
	// File is the path the case was loaded from
	File        string `json:"-" yaml:"-"`
	Description string `json:"description" yaml:"description"`
	// Projections holds the source and target coordinate reference systems, as EPSG
	// codes, +init=epsg:XXXX or PROJ strings, or WKT
	Projections []string `json:"projections" yaml:"projections"`
	// Coordinates holds [source, target] point pairs, each point having 2 or 3 values
	Coordinates [][][]float64 `json:"coordinates" yaml:"coordinates"`
	Tests       []Test        `json:"tests" yaml:"tests"`
}

// Validate checks the structure of the case
func (c *Case) Validate() error {
	if len(c.Projections) != 2 {
		return fmt.Errorf("expecting 2 projections, got %d", len(c.Projections))
	}
	for i, p := range c.Projections {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("projection %d is empty", i)
		}
	}
	if len(c.Coordinates) == 0 {
		return fmt.Errorf("no coordinates")
	}
	for i, pair := range c.Coordinates {
		if len(pair) != 2 {
			return fmt.Errorf("coordinate %d: expecting a [source, target] pair, got %d points", i, len(pair))
		}
		for _, pt := range pair {
			if len(pt) < 2 || len(pt) > 3 {
				return fmt.Errorf("coordinate %d: points must have 2 or 3 values, got %d", i, len(pt))
			}
		}
	}
	if len(c.Tests) == 0 {
		return fmt.Errorf("no tests")
	}
	for i, t := range c.Tests {
		switch t.Type {
		case Conversion, RoundTrip:
		default:
			return fmt.Errorf("test %d: unknown type %q", i, t.Type)
		}
		switch t.Direction {
		case "", Forward, Inverse, Both:
		default:
			return fmt.Errorf("test %d: unknown direction %q", i, t.Direction)
		}
		if len(t.Tolerances) < 1 || len(t.Tolerances) > 2 {
			return fmt.Errorf("test %d: expecting 1 or 2 tolerances, got %d", i, len(t.Tolerances))
		}
		for _, tol := range t.Tolerances {
			if tol < 0 {
				return fmt.Errorf("test %d: negative tolerance %g", i, tol)
			}
		}
		if t.Times < 0 {
			return fmt.Errorf("test %d: negative times %d", i, t.Times)
		}
	}
	return nil
}

// Load reads and validates a json (.json) or yaml (.yaml, .yml) test file
func Load(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Case{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return nil, fmt.Errorf("%s: unsupported extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	c.File = path
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadDir loads every test file of dir, sorted by name. Files with other extensions are
// ignored.
func LoadDir(dir string) ([]*Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	cases := make([]*Case, 0, len(names))
	for _, n := range names {
		c, err := Load(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// normalizeSRS turns proj4 style +init=epsg:XXXX and bare codes into EPSG:XXXX
func normalizeSRS(def string) string {
	def = strings.TrimSpace(def)
	lower := strings.ToLower(def)
	if strings.HasPrefix(lower, "+init=epsg:") && !strings.Contains(def, " ") {
		return "EPSG:" + def[len("+init=epsg:"):]
	}
	if def != "" && strings.Trim(def, "0123456789") == "" {
		return "EPSG:" + def
	}
	return def
}
