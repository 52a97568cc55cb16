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

package gigs

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/airbusgeo/gdalutils/internal/log"
	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one Test of a Case
type Result struct {
	File        string   `json:"file"`
	Description string   `json:"description"`
	Test        TestType `json:"test"`
	// Index is the position of the test in the case's test list
	Index    int      `json:"index"`
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
}

// Summary counts results
type Summary struct {
	Files, Tests, Passed, Failed int
}

// Summarize counts the results. Files counts distinct files.
func Summarize(results []Result) Summary {
	s := Summary{}
	files := map[string]bool{}
	for _, r := range results {
		files[r.File] = true
		s.Tests++
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	s.Files = len(files)
	return s
}

// WriteResults writes one line per result, followed by the failures of failed tests
// when verbose is set, and a summary line
func WriteResults(w io.Writer, results []Result, verbose bool) error {
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		if _, err := fmt.Fprintf(w, "%s %s [%d %s] %s\n", status, r.File, r.Index, r.Test, r.Description); err != nil {
			return err
		}
		if verbose {
			for _, f := range r.Failures {
				if _, err := fmt.Fprintf(w, "    %s\n", f); err != nil {
					return err
				}
			}
		}
	}
	s := Summarize(results)
	_, err := fmt.Fprintf(w, "%d files, %d tests, %d passed, %d failed\n", s.Files, s.Tests, s.Passed, s.Failed)
	return err
}

type runOpts struct {
	concurrency int
	logger      *zap.Logger
	maxFailures int
}

// Option is an option that can be passed to Run
type Option func(o *runOpts)

// Concurrency sets the number of cases run in parallel. Defaults to GOMAXPROCS
func Concurrency(n int) Option {
	return func(o *runOpts) {
		o.concurrency = n
	}
}

// Logger sets the logger receiving per case progress. Defaults to the process wide logger
func Logger(l *zap.Logger) Option {
	return func(o *runOpts) {
		o.logger = l
	}
}

// MaxFailures caps the number of failure messages recorded per test. Defaults to 10
func MaxFailures(n int) Option {
	return func(o *runOpts) {
		o.maxFailures = n
	}
}

// Run runs the tests of all cases, cases being processed concurrently. Results are
// returned in case then test order. A case whose projections cannot be instantiated
// produces failed results for all its tests. The returned error is only set if ctx
// is cancelled.
func Run(ctx context.Context, cases []*Case, opts ...Option) ([]Result, error) {
	ro := runOpts{
		concurrency: runtime.GOMAXPROCS(0),
		logger:      log.L(),
		maxFailures: 10,
	}
	for _, o := range opts {
		o(&ro)
	}
	if ro.concurrency < 1 {
		ro.concurrency = 1
	}
	perCase := make([][]Result, len(cases))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ro.concurrency)
	for i, c := range cases {
		i, c := i, c
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			perCase[i] = runCase(c, ro)
			ro.logger.Debug("ran gigs case", zap.String("file", c.File), zap.Int("tests", len(perCase[i])))
			return nil
		})
	}
	err := eg.Wait()
	var results []Result
	for _, rs := range perCase {
		results = append(results, rs...)
	}
	return results, err
}

type transformer struct {
	fwd, inv *godal.Transform
	srs      []*godal.SpatialRef
}

func newTransformer(projections []string) (*transformer, error) {
	t := &transformer{}
	for _, p := range projections {
		sr, err := godal.NewSpatialRef(normalizeSRS(p))
		if err != nil {
			t.close()
			return nil, fmt.Errorf("parse projection %q: %w", p, err)
		}
		t.srs = append(t.srs, sr)
	}
	var err error
	if t.fwd, err = godal.NewTransform(t.srs[0], t.srs[1]); err != nil {
		t.close()
		return nil, fmt.Errorf("create forward transform: %w", err)
	}
	if t.inv, err = godal.NewTransform(t.srs[1], t.srs[0]); err != nil {
		t.close()
		return nil, fmt.Errorf("create inverse transform: %w", err)
	}
	return t, nil
}

func (t *transformer) close() {
	if t.fwd != nil {
		t.fwd.Close()
	}
	if t.inv != nil {
		t.inv.Close()
	}
	for _, sr := range t.srs {
		sr.Close()
	}
}

// points holds coordinates as separate axis slices. z is nil for 2D points.
type points struct {
	x, y, z []float64
}

func newPoints(pts [][]float64) points {
	p := points{x: make([]float64, len(pts)), y: make([]float64, len(pts))}
	has3D := true
	for _, pt := range pts {
		has3D = has3D && len(pt) == 3
	}
	if has3D {
		p.z = make([]float64, len(pts))
	}
	for i, pt := range pts {
		p.x[i], p.y[i] = pt[0], pt[1]
		if has3D {
			p.z[i] = pt[2]
		}
	}
	return p
}

func (p points) clone() points {
	c := points{x: append([]float64{}, p.x...), y: append([]float64{}, p.y...)}
	if p.z != nil {
		c.z = append([]float64{}, p.z...)
	}
	return c
}

func (p points) at(i int) []float64 {
	if p.z != nil {
		return []float64{p.x[i], p.y[i], p.z[i]}
	}
	return []float64{p.x[i], p.y[i]}
}

// apply transforms p in place. ok[i] is false for points that failed.
func apply(trn *godal.Transform, p points, ok []bool) {
	// failed points are reported through ok
	_ = trn.TransformEx(p.x, p.y, p.z, ok)
}

type failures struct {
	max  int
	msgs []string
	n    int
}

func (f *failures) addf(format string, args ...interface{}) {
	f.n++
	if len(f.msgs) < f.max {
		f.msgs = append(f.msgs, fmt.Sprintf(format, args...))
	}
}

func (f *failures) list() []string {
	if f.n > len(f.msgs) {
		return append(f.msgs, fmt.Sprintf("... %d more failures", f.n-len(f.msgs)))
	}
	return f.msgs
}

func within(got, exp []float64, tol float64) bool {
	for i := range exp {
		if i >= len(got) || math.IsNaN(got[i]) || math.Abs(got[i]-exp[i]) > tol {
			return false
		}
	}
	return true
}

func runCase(c *Case, ro runOpts) []Result {
	results := make([]Result, len(c.Tests))
	for i, t := range c.Tests {
		results[i] = Result{File: c.File, Description: c.Description, Test: t.Type, Index: i}
	}
	trn, err := newTransformer(c.Projections)
	if err != nil {
		for i := range results {
			results[i].Failures = []string{err.Error()}
		}
		return results
	}
	defer trn.close()

	src := make([][]float64, len(c.Coordinates))
	dst := make([][]float64, len(c.Coordinates))
	for i, pair := range c.Coordinates {
		src[i], dst[i] = pair[0], pair[1]
	}
	for i, t := range c.Tests {
		f := &failures{max: ro.maxFailures}
		switch t.Type {
		case Conversion:
			if t.Direction.forward() {
				convert(trn.fwd, "forward", src, dst, t.targetTolerance(), f)
			}
			if t.Direction.inverse() {
				convert(trn.inv, "inverse", dst, src, t.sourceTolerance(), f)
			}
		case RoundTrip:
			times := t.Times
			if times == 0 {
				times = 1
			}
			if t.Direction.forward() {
				roundTrip(trn.fwd, trn.inv, "forward", src, times, t.sourceTolerance(), f)
			}
			if t.Direction.inverse() {
				roundTrip(trn.inv, trn.fwd, "inverse", dst, times, t.targetTolerance(), f)
			}
		}
		results[i].Failures = f.list()
		results[i].Passed = f.n == 0
	}
	return results
}

func convert(trn *godal.Transform, dir string, from, to [][]float64, tol float64, f *failures) {
	p := newPoints(from)
	ok := make([]bool, len(from))
	apply(trn, p, ok)
	for i := range from {
		if !ok[i] {
			f.addf("%s point %d %v: transformation failed", dir, i, from[i])
			continue
		}
		got := p.at(i)
		if !within(got, to[i][:min(len(got), len(to[i]))], tol) {
			f.addf("%s point %d %v: expected %v, got %v (tolerance %g)", dir, i, from[i], to[i], got, tol)
		}
	}
}

func roundTrip(there, back *godal.Transform, dir string, from [][]float64, times int, tol float64, f *failures) {
	start := newPoints(from)
	p := start.clone()
	ok := make([]bool, len(from))
	failed := make([]bool, len(from))
	for n := 0; n < times; n++ {
		apply(there, p, ok)
		for i := range ok {
			failed[i] = failed[i] || !ok[i]
		}
		apply(back, p, ok)
		for i := range ok {
			failed[i] = failed[i] || !ok[i]
		}
	}
	for i := range from {
		if failed[i] {
			f.addf("%s round trip point %d %v: transformation failed", dir, i, from[i])
			continue
		}
		if got := p.at(i); !within(got, start.at(i), tol) {
			f.addf("%s round trip point %d: %v drifted to %v after %d round trips (tolerance %g)",
				dir, i, from[i], got, times, tol)
		}
	}
}
