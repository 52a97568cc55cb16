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
	"strings"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// Method is a layer algebra operation
type Method int

const (
	// Union outputs the intersections of input and method features, plus the parts of
	// each that intersect nothing in the other layer
	Union Method = iota
	// Intersection outputs the intersections of input and method features
	Intersection
	// SymDifference outputs the parts of input and method features that do not
	// intersect the other layer
	SymDifference
	// Identity outputs the intersections plus the parts of input features that do not
	// intersect the method layer
	Identity
	// Update outputs the input features minus the method layer, plus the method features
	Update
	// Clip outputs the parts of input features covered by the method layer
	Clip
	// Erase outputs the parts of input features not covered by the method layer
	Erase
)

var methodNames = []string{"Union", "Intersection", "SymDifference", "Identity", "Update", "Clip", "Erase"}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod returns the method named s, compared case-insensitively
func ParseMethod(s string) (Method, error) {
	for i, n := range methodNames {
		if strings.EqualFold(n, s) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownMethod)
}

// methodFields reports whether the output carries the method layer's fields
func (m Method) methodFields() bool {
	return m == Union || m == Intersection || m == SymDifference || m == Identity
}

type algebraOpts struct {
	logger         *zap.Logger
	inputPrefix    string
	methodPrefix   string
	inputFields    []string
	hasInputFields bool
	methodFields   []string
	hasMethodField bool
	skipFailures   bool
	promoteToMulti bool
	keepLowerDim   bool
	progress       func(done, total int)
}

// AlgebraOption is an option that can be passed to LayerAlgebra or PrepareOutput
//
// Available AlgebraOptions are:
//
// • InputPrefix, MethodPrefix, InputFields, MethodFields
//
// • SkipFailures, PromoteToMulti, KeepLowerDimension
//
// • Progress
//
// • Logger
type AlgebraOption interface {
	setAlgebraOpt(o *algebraOpts)
}

type algebraFunc func(o *algebraOpts)

func (f algebraFunc) setAlgebraOpt(o *algebraOpts) { f(o) }

// InputPrefix sets the prefix of output fields coming from the input layer.
// Defaults to "input_"
func InputPrefix(p string) AlgebraOption {
	return algebraFunc(func(o *algebraOpts) { o.inputPrefix = p })
}

// MethodPrefix sets the prefix of output fields coming from the method layer.
// Defaults to "method_"
func MethodPrefix(p string) AlgebraOption {
	return algebraFunc(func(o *algebraOpts) { o.methodPrefix = p })
}

// InputFields restricts the input fields copied to the output. Calling it without
// names copies no input field.
func InputFields(names ...string) AlgebraOption {
	return algebraFunc(func(o *algebraOpts) {
		o.inputFields = names
		o.hasInputFields = true
	})
}

// MethodFields restricts the method fields copied to the output, as InputFields
func MethodFields(names ...string) AlgebraOption {
	return algebraFunc(func(o *algebraOpts) {
		o.methodFields = names
		o.hasMethodField = true
	})
}

// SkipFailures logs and skips features whose geometry operations fail
func SkipFailures() AlgebraOption {
	return algebraFunc(func(o *algebraOpts) { o.skipFailures = true })
}

// PromoteToMulti converts single part output geometries to their multi part type
func PromoteToMulti() AlgebraOption {
	return algebraFunc(func(o *algebraOpts) { o.promoteToMulti = true })
}

// KeepLowerDimension controls whether intersections of two geometries of the same
// dimension are written when the result has a lower dimension (e.g. the line where two
// polygons touch). Defaults to true
func KeepLowerDimension(keep bool) AlgebraOption {
	return algebraFunc(func(o *algebraOpts) { o.keepLowerDim = keep })
}

// Progress registers a callback invoked after each processed feature
func Progress(fn func(done, total int)) AlgebraOption {
	return algebraFunc(func(o *algebraOpts) { o.progress = fn })
}

func newAlgebraOpts(opts []AlgebraOption) algebraOpts {
	ao := algebraOpts{inputPrefix: "input_", methodPrefix: "method_", keepLowerDim: true}
	for _, o := range opts {
		o.setAlgebraOpt(&ao)
	}
	ao.logger = loggerOrDefault(ao.logger)
	return ao
}

// fieldMapping is an output field and the source field it is copied from
type fieldMapping struct {
	output, source string
	ftype          godal.FieldType
	fromMethod     bool
}

// layerSchema returns the fields of the layer's first feature, in alphabetical order
func layerSchema(l godal.Layer) []FieldInfo {
	l.ResetReading()
	defer l.ResetReading()
	f := l.NextFeature()
	if f == nil {
		return nil
	}
	defer f.Close()
	ret := []FieldInfo{}
	fields := f.Fields()
	for _, n := range sortedFieldNames(fields) {
		ret = append(ret, FieldInfo{Name: n, Type: FieldTypeName(fields[n].Type())})
	}
	return ret
}

func selectFields(schema []FieldInfo, restrict bool, names []string) []FieldInfo {
	if !restrict {
		return schema
	}
	keep := map[string]bool{}
	for _, n := range names {
		keep[n] = true
	}
	ret := []FieldInfo{}
	for _, f := range schema {
		if keep[f.Name] {
			ret = append(ret, f)
		}
	}
	return ret
}

var writableFieldTypes = map[string]godal.FieldType{
	"Integer":   godal.FTInt,
	"Integer64": godal.FTInt64,
	"Real":      godal.FTReal,
	"String":    godal.FTString,
	"Date":      godal.FTDate,
	"Time":      godal.FTTime,
	"DateTime":  godal.FTDateTime,
}

func outputFieldType(typeName string) godal.FieldType {
	if ft, ok := writableFieldTypes[typeName]; ok {
		return ft
	}
	return godal.FTString
}

func fieldMappings(method Method, input, methodLayer godal.Layer, ao algebraOpts) []fieldMapping {
	var ret []fieldMapping
	for _, f := range selectFields(layerSchema(input), ao.hasInputFields, ao.inputFields) {
		name := f.Name
		if method.methodFields() {
			name = ao.inputPrefix + name
		}
		ret = append(ret, fieldMapping{output: name, source: f.Name, ftype: outputFieldType(f.Type)})
	}
	if !method.methodFields() {
		return ret
	}
	for _, f := range selectFields(layerSchema(methodLayer), ao.hasMethodField, ao.methodFields) {
		ret = append(ret, fieldMapping{output: ao.methodPrefix + f.Name, source: f.Name,
			ftype: outputFieldType(f.Type), fromMethod: true})
	}
	return ret
}

// PrepareOutput creates the output layer of a layer algebra operation in ds, with the
// fields LayerAlgebra will fill: prefixed input and method fields for Union,
// Intersection, SymDifference and Identity, input fields only for Update, Clip and
// Erase.
func PrepareOutput(ds *godal.Dataset, name string, sr *godal.SpatialRef, gtype godal.GeometryType,
	method Method, input, methodLayer godal.Layer, opts ...AlgebraOption) (godal.Layer, error) {
	ao := newAlgebraOpts(opts)
	lopts := []godal.CreateLayerOption{godal.ErrLogger(ErrorHandler(ao.logger))}
	for _, m := range fieldMappings(method, input, methodLayer, ao) {
		lopts = append(lopts, godal.NewFieldDefinition(m.output, m.ftype))
	}
	l, err := ds.CreateLayer(name, sr, gtype, lopts...)
	if err != nil {
		return godal.Layer{}, fmt.Errorf("create layer %s: %w", name, err)
	}
	return l, nil
}

type algebraFeature struct {
	geom   *godal.Geometry
	bounds [4]float64
	fields map[string]godal.Field
}

func (f *algebraFeature) close() {
	if f.geom != nil {
		f.geom.Close()
	}
}

// cloneGeometry returns an owned copy of g
func cloneGeometry(g *godal.Geometry) (*godal.Geometry, error) {
	wkb, err := g.WKB()
	if err != nil {
		return nil, err
	}
	return godal.NewGeometryFromWKB(wkb, nil)
}

// loadFeatures reads all the features of l. Features without geometry are kept for
// their attributes only.
func loadFeatures(l godal.Layer, logger *zap.Logger) []*algebraFeature {
	var ret []*algebraFeature
	l.ResetReading()
	for {
		f := l.NextFeature()
		if f == nil {
			return ret
		}
		af := &algebraFeature{fields: f.Fields()}
		if g := f.Geometry(); !g.Empty() {
			if err := af.setGeometry(g); err != nil {
				logger.Debug("feature without geometry", zap.String("layer", l.Name()), zap.Error(err))
			}
		}
		f.Close()
		ret = append(ret, af)
	}
}

var geometryBounds = (*godal.Geometry).Bounds

// setGeometry stores a copy of g and its bounds. The feature is left without geometry
// on error.
func (f *algebraFeature) setGeometry(g *godal.Geometry) error {
	c, err := cloneGeometry(g)
	if err != nil {
		return err
	}
	bounds, err := geometryBounds(c)
	if err != nil {
		c.Close()
		return fmt.Errorf("bounds: %w", err)
	}
	f.geom, f.bounds = c, bounds
	return nil
}

func closeFeatures(fs []*algebraFeature) {
	for _, f := range fs {
		f.close()
	}
}

func boundsOverlap(a, b [4]float64) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

// dimension returns 0 for points, 1 for lines and 2 for surfaces
func dimension(g *godal.Geometry) int {
	name := strings.TrimPrefix(g.Name(), "MULTI")
	switch {
	case strings.HasSuffix(name, "POINT"):
		return 0
	case strings.Contains(name, "LINE") || name == "LINEARRING" || name == "CIRCULARSTRING":
		return 1
	case name == "GEOMETRYCOLLECTION":
		dim := 0
		for i := 0; i < g.GeometryCount(); i++ {
			if sub, err := g.SubGeometry(i); err == nil {
				if d := dimension(sub); d > dim {
					dim = d
				}
			}
		}
		return dim
	default:
		return 2
	}
}

func promoteToMulti(g *godal.Geometry) (*godal.Geometry, error) {
	name := g.Name()
	if strings.HasPrefix(name, "MULTI") || name == "GEOMETRYCOLLECTION" {
		return g, nil
	}
	multi, err := godal.NewGeometryFromWKT("MULTI"+name+" EMPTY", nil)
	if err != nil {
		return nil, err
	}
	if err := multi.AddGeometry(g); err != nil {
		multi.Close()
		return nil, err
	}
	g.Close()
	return multi, nil
}

type algebraRun struct {
	ao       algebraOpts
	method   Method
	out      godal.Layer
	mappings []fieldMapping
	written  int
}

// LayerAlgebra applies method between the features of the input and method layers and
// writes the result to output, returning the number of written features. The output
// layer's fields are matched by name, see PrepareOutput.
//
// Candidate pairs are selected on their envelopes before testing for exact
// intersection. Empty result geometries are never written.
func LayerAlgebra(method Method, input, methodLayer, output godal.Layer, opts ...AlgebraOption) (int, error) {
	if method < Union || method > Erase {
		return 0, fmt.Errorf("%v: %w", method, ErrUnknownMethod)
	}
	run := &algebraRun{
		ao:     newAlgebraOpts(opts),
		method: method,
		out:    output,
	}
	run.mappings = fieldMappings(method, input, methodLayer, run.ao)

	inputs := loadFeatures(input, run.ao.logger)
	defer closeFeatures(inputs)
	methods := loadFeatures(methodLayer, run.ao.logger)
	defer closeFeatures(methods)

	total := len(inputs)
	if method == Union || method == SymDifference || method == Update {
		total += len(methods)
	}
	done := 0
	step := func() {
		done++
		if run.ao.progress != nil {
			run.ao.progress(done, total)
		}
	}

	for _, in := range inputs {
		if err := run.processInput(in, methods); err != nil {
			return run.written, err
		}
		step()
	}
	if method == Union || method == SymDifference || method == Update {
		for _, m := range methods {
			if err := run.processMethod(m, inputs); err != nil {
				return run.written, err
			}
			step()
		}
	}
	run.ao.logger.Debug("layer algebra done", zap.Stringer("method", method),
		zap.Int("input", len(inputs)), zap.Int("method", len(methods)), zap.Int("written", run.written))
	return run.written, nil
}

// failure returns err, or logs it and returns nil when failures are skipped
func (r *algebraRun) failure(err error) error {
	if r.ao.skipFailures {
		r.ao.logger.Warn("skipping feature", zap.Error(err))
		return nil
	}
	return err
}

func (r *algebraRun) processInput(in *algebraFeature, methods []*algebraFeature) error {
	if in.geom == nil {
		return nil
	}
	var candidates []*algebraFeature
	for _, m := range methods {
		if m.geom == nil || !boundsOverlap(in.bounds, m.bounds) {
			continue
		}
		ok, err := in.geom.Intersects(m.geom)
		if err != nil {
			return r.failure(fmt.Errorf("intersects: %w", err))
		}
		if ok {
			candidates = append(candidates, m)
		}
	}

	switch r.method {
	case Intersection, Union, Identity:
		for _, m := range candidates {
			g, err := in.geom.Intersection(m.geom)
			if err != nil {
				if err := r.failure(fmt.Errorf("intersection: %w", err)); err != nil {
					return err
				}
				continue
			}
			if err := r.write(g, in.geom, m.geom, in, m); err != nil {
				return err
			}
		}
	case Clip:
		if len(candidates) == 0 {
			return nil
		}
		cover, err := unionAll(candidates)
		if err != nil {
			return r.failure(fmt.Errorf("union: %w", err))
		}
		g, err := in.geom.Intersection(cover)
		cover.Close()
		if err != nil {
			return r.failure(fmt.Errorf("intersection: %w", err))
		}
		return r.write(g, nil, nil, in, nil)
	}

	switch r.method {
	case Union, Identity, SymDifference, Update, Erase:
		g, err := difference(in.geom, candidates)
		if err != nil {
			return r.failure(fmt.Errorf("difference: %w", err))
		}
		return r.write(g, nil, nil, in, nil)
	}
	return nil
}

func (r *algebraRun) processMethod(m *algebraFeature, inputs []*algebraFeature) error {
	if m.geom == nil {
		return nil
	}
	if r.method == Update {
		g, err := cloneGeometry(m.geom)
		if err != nil {
			return r.failure(err)
		}
		return r.write(g, nil, nil, nil, m)
	}
	var candidates []*algebraFeature
	for _, in := range inputs {
		if in.geom == nil || !boundsOverlap(in.bounds, m.bounds) {
			continue
		}
		ok, err := m.geom.Intersects(in.geom)
		if err != nil {
			return r.failure(fmt.Errorf("intersects: %w", err))
		}
		if ok {
			candidates = append(candidates, in)
		}
	}
	g, err := difference(m.geom, candidates)
	if err != nil {
		return r.failure(fmt.Errorf("difference: %w", err))
	}
	return r.write(g, nil, nil, nil, m)
}

func unionAll(fs []*algebraFeature) (*godal.Geometry, error) {
	acc, err := cloneGeometry(fs[0].geom)
	if err != nil {
		return nil, err
	}
	for _, f := range fs[1:] {
		u, err := acc.Union(f.geom)
		acc.Close()
		if err != nil {
			return nil, err
		}
		acc = u
	}
	return acc, nil
}

// difference returns g minus the union of the candidates' geometries
func difference(g *godal.Geometry, candidates []*algebraFeature) (*godal.Geometry, error) {
	if len(candidates) == 0 {
		return cloneGeometry(g)
	}
	cover, err := unionAll(candidates)
	if err != nil {
		return nil, err
	}
	defer cover.Close()
	return g.Difference(cover)
}

// write writes g, taking ownership of it, with the attributes of the input and/or
// method features. x and y are the operands g is the intersection of, if any.
func (r *algebraRun) write(g, x, y *godal.Geometry, in, m *algebraFeature) error {
	defer func() {
		if g != nil {
			g.Close()
		}
	}()
	if g.Empty() {
		return nil
	}
	if !r.ao.keepLowerDim && x != nil && y != nil {
		if dx := dimension(x); dx == dimension(y) && dimension(g) < dx {
			return nil
		}
	}
	if r.ao.promoteToMulti {
		pg, err := promoteToMulti(g)
		if err != nil {
			return r.failure(fmt.Errorf("promote to multi: %w", err))
		}
		g = pg
	}
	f, err := r.out.NewFeature(g)
	if err != nil {
		return fmt.Errorf("create feature: %w", err)
	}
	defer f.Close()
	targets := f.Fields()
	for _, fm := range r.mappings {
		src := in
		if fm.fromMethod {
			src = m
		}
		if r.method == Update && in == nil {
			// method features are mapped onto the input fields
			src = m
		}
		if src == nil {
			continue
		}
		sf, ok := src.fields[fm.source]
		if !ok {
			continue
		}
		tf, ok := targets[fm.output]
		if !ok {
			continue
		}
		if err := setFieldFrom(f, tf, sf); err != nil {
			return fmt.Errorf("set field %s: %w", fm.output, err)
		}
	}
	if err := r.out.UpdateFeature(f); err != nil {
		return fmt.Errorf("write feature: %w", err)
	}
	r.written++
	return nil
}

func setFieldFrom(f *godal.Feature, target, src godal.Field) error {
	if !src.IsSet() {
		return nil
	}
	switch target.Type() {
	case godal.FTInt:
		return f.SetFieldValue(target, int(src.Int()))
	case godal.FTInt64:
		return f.SetFieldValue(target, src.Int())
	case godal.FTReal:
		return f.SetFieldValue(target, src.Float())
	case godal.FTString:
		if src.Type() == godal.FTString {
			return f.SetFieldValue(target, src.String())
		}
		return f.SetFieldValue(target, formatField(src))
	case godal.FTDate, godal.FTTime, godal.FTDateTime:
		if t := src.DateTime(); t != nil {
			return f.SetFieldValue(target, *t)
		}
	}
	return nil
}
