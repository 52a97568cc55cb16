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
	"errors"
	"sort"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// algebraLayers returns an input layer holding two 10x10 squares "a" at the origin and
// "b" at x=20, and a method layer holding the 10x10 square "m" overlapping a's upper
// right quarter.
func algebraLayers(t *testing.T) (*godal.Dataset, godal.Layer, godal.Layer) {
	t.Helper()
	ds, err := godal.CreateVector(godal.Memory, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	in, err := ds.CreateLayer("in", nil, godal.GTPolygon,
		godal.NewFieldDefinition("name", godal.FTString),
		godal.NewFieldDefinition("value", godal.FTInt))
	require.NoError(t, err)
	addFeatures(t, in, []testFeature{
		{"POLYGON ((0 0,0 10,10 10,10 0,0 0))", "a", 1},
		{"POLYGON ((20 0,20 10,30 10,30 0,20 0))", "b", 2},
	})
	m, err := ds.CreateLayer("m", nil, godal.GTPolygon,
		godal.NewFieldDefinition("name", godal.FTString),
		godal.NewFieldDefinition("value", godal.FTInt))
	require.NoError(t, err)
	addFeatures(t, m, []testFeature{{"POLYGON ((5 5,5 15,15 15,15 5,5 5))", "m", 9}})
	return ds, in, m
}

type algebraResult struct {
	area   float64
	name   string
	fields map[string]string
}

func readAlgebraOutput(t *testing.T, l godal.Layer) []algebraResult {
	t.Helper()
	var ret []algebraResult
	l.ResetReading()
	for {
		f := l.NextFeature()
		if f == nil {
			break
		}
		res := algebraResult{area: f.Geometry().Area(), name: f.Geometry().Name(), fields: map[string]string{}}
		for n, fld := range f.Fields() {
			res.fields[n] = formatField(fld)
		}
		f.Close()
		ret = append(ret, res)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].area != ret[j].area {
			return ret[i].area < ret[j].area
		}
		return ret[i].fields["input_name"]+ret[i].fields["name"] < ret[j].fields["input_name"]+ret[j].fields["name"]
	})
	return ret
}

func runAlgebra(t *testing.T, method Method, opts ...AlgebraOption) []algebraResult {
	t.Helper()
	ds, in, m := algebraLayers(t)
	out, err := PrepareOutput(ds, "out", nil, godal.GTUnknown, method, in, m, opts...)
	require.NoError(t, err)
	n, err := LayerAlgebra(method, in, m, out, opts...)
	require.NoError(t, err)
	res := readAlgebraOutput(t, out)
	assert.Len(t, res, n)
	return res
}

func areas(res []algebraResult) []float64 {
	ret := make([]float64, len(res))
	for i, r := range res {
		ret[i] = r.area
	}
	return ret
}

func TestLayerAlgebraIntersection(t *testing.T) {
	res := runAlgebra(t, Intersection)
	require.Len(t, res, 1)
	assert.InDelta(t, 25, res[0].area, 1e-9)
	assert.Equal(t, map[string]string{
		"input_name": "a", "input_value": "1",
		"method_name": "m", "method_value": "9",
	}, res[0].fields)
}

func TestLayerAlgebraUnion(t *testing.T) {
	res := runAlgebra(t, Union)
	assert.Equal(t, []float64{25, 75, 75, 100}, areas(res))
	// remainders carry the attributes of their own layer only
	assert.Equal(t, "(null)", res[1].fields["input_name"])
	assert.Equal(t, "m", res[1].fields["method_name"])
	assert.Equal(t, "a", res[2].fields["input_name"])
	assert.Equal(t, "(null)", res[2].fields["method_name"])
	assert.Equal(t, "b", res[3].fields["input_name"])
}

func TestLayerAlgebraSymDifference(t *testing.T) {
	res := runAlgebra(t, SymDifference)
	assert.Equal(t, []float64{75, 75, 100}, areas(res))
}

func TestLayerAlgebraIdentity(t *testing.T) {
	res := runAlgebra(t, Identity)
	assert.Equal(t, []float64{25, 75, 100}, areas(res))
	assert.Equal(t, "m", res[0].fields["method_name"])
}

func TestLayerAlgebraUpdate(t *testing.T) {
	res := runAlgebra(t, Update)
	require.Equal(t, []float64{75, 100, 100}, areas(res))
	assert.Equal(t, "a", res[0].fields["name"])
	// method feature mapped onto the input schema
	assert.Equal(t, map[string]string{"name": "b", "value": "2"}, res[1].fields)
	assert.Equal(t, map[string]string{"name": "m", "value": "9"}, res[2].fields)
}

func TestLayerAlgebraClipErase(t *testing.T) {
	res := runAlgebra(t, Clip)
	require.Len(t, res, 1)
	assert.InDelta(t, 25, res[0].area, 1e-9)
	assert.Equal(t, map[string]string{"name": "a", "value": "1"}, res[0].fields)

	res = runAlgebra(t, Erase)
	assert.Equal(t, []float64{75, 100}, areas(res))
}

func TestLayerAlgebraOptions(t *testing.T) {
	var calls, lastTotal int
	res := runAlgebra(t, Intersection,
		InputPrefix("in_"), MethodPrefix("m_"),
		InputFields("name"), MethodFields(),
		PromoteToMulti(),
		Progress(func(done, total int) { calls++; lastTotal = total }))
	require.Len(t, res, 1)
	assert.Equal(t, map[string]string{"in_name": "a"}, res[0].fields)
	assert.Equal(t, "MULTIPOLYGON", res[0].name)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, lastTotal)
}

func TestLayerAlgebraLowerDimension(t *testing.T) {
	ds, err := godal.CreateVector(godal.Memory, "")
	require.NoError(t, err)
	defer ds.Close()
	mk := func(name string, gtype godal.GeometryType, wkt string) godal.Layer {
		l, err := ds.CreateLayer(name, nil, gtype,
			godal.NewFieldDefinition("name", godal.FTString),
			godal.NewFieldDefinition("value", godal.FTInt))
		require.NoError(t, err)
		addFeatures(t, l, []testFeature{{wkt, name, 0}})
		return l
	}
	// squares sharing an edge intersect along a line
	in := mk("in", godal.GTPolygon, "POLYGON ((0 0,0 1,1 1,1 0,0 0))")
	m := mk("m", godal.GTPolygon, "POLYGON ((1 0,1 1,2 1,2 0,1 0))")

	out, err := PrepareOutput(ds, "keep", nil, godal.GTUnknown, Intersection, in, m)
	require.NoError(t, err)
	n, err := LayerAlgebra(Intersection, in, m, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err = PrepareOutput(ds, "drop", nil, godal.GTUnknown, Intersection, in, m)
	require.NoError(t, err)
	n, err = LayerAlgebra(Intersection, in, m, out, KeepLowerDimension(false))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// only the shared edge is dropped, the differences are kept
	out, err = PrepareOutput(ds, "union", nil, godal.GTUnknown, Union, in, m)
	require.NoError(t, err)
	n, err = LayerAlgebra(Union, in, m, out, KeepLowerDimension(false))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// a line crossing a polygon has a lower dimension than the polygon:
	// its intersection is kept as operands differ in dimension
	line := mk("line", godal.GTLineString, "LINESTRING (-1 0.5,2 0.5)")
	out, err = PrepareOutput(ds, "line", nil, godal.GTUnknown, Intersection, in, line)
	require.NoError(t, err)
	n, err = LayerAlgebra(Intersection, in, line, out, KeepLowerDimension(false))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	out.ResetReading()
	f := out.NextFeature()
	require.NotNil(t, f)
	defer f.Close()
	assert.Equal(t, 1, dimension(f.Geometry()))
}

func TestParseMethod(t *testing.T) {
	for i, n := range []string{"union", "INTERSECTION", "SymDifference", "identity", "update", "clip", "Erase"} {
		m, err := ParseMethod(n)
		require.NoError(t, err)
		assert.Equal(t, Method(i), m)
	}
	_, err := ParseMethod("merge")
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, "Clip", Clip.String())
	assert.Equal(t, "Method(12)", Method(12).String())

	_, in, m := algebraLayers(t)
	_, err = LayerAlgebra(Method(12), in, m, in)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestGeometryDimension(t *testing.T) {
	for _, tc := range []struct {
		wkt string
		dim int
	}{
		{"POINT (1 1)", 0},
		{"MULTIPOINT ((1 1),(2 2))", 0},
		{"LINESTRING (0 0,1 1)", 1},
		{"MULTILINESTRING ((0 0,1 1))", 1},
		{"POLYGON ((0 0,0 1,1 1,0 0))", 2},
		{"GEOMETRYCOLLECTION (POINT (1 1),LINESTRING (0 0,1 1))", 1},
	} {
		wkt, dim := tc.wkt, tc.dim
		g, err := godal.NewGeometryFromWKT(wkt, nil)
		require.NoError(t, err)
		assert.Equal(t, dim, dimension(g), wkt)
		g.Close()
	}
}

func TestLoadFeaturesBoundsError(t *testing.T) {
	_, in, _ := algebraLayers(t)
	defer func(fn func(*godal.Geometry, ...godal.BoundsOption) ([4]float64, error)) { geometryBounds = fn }(geometryBounds)
	geometryBounds = func(*godal.Geometry, ...godal.BoundsOption) ([4]float64, error) {
		return [4]float64{}, errors.New("no envelope")
	}
	core, logs := observer.New(zap.DebugLevel)
	fs := loadFeatures(in, zap.New(core))
	defer closeFeatures(fs)
	require.Len(t, fs, 2)
	for _, f := range fs {
		assert.Nil(t, f.geom)
		assert.NotEmpty(t, f.fields)
	}
	entries := logs.FilterMessage("feature without geometry").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "bounds: no envelope", entries[0].ContextMap()["error"])
}
