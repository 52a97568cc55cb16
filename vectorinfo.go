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
	"sort"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// GeometryMode selects how feature geometries are reported
type GeometryMode int

const (
	// GeomFull reports geometries as WKT
	GeomFull GeometryMode = iota
	// GeomSummary reports the geometry type and part counts
	GeomSummary
	// GeomNone does not report geometries
	GeomNone
)

// VectorReport describes a vector datasource
type VectorReport struct {
	Source string      `json:"source"`
	Driver string      `json:"driver"`
	Layers []LayerInfo `json:"layers"`
}

// LayerInfo describes a layer and optionally its features
type LayerInfo struct {
	Name         string        `json:"name"`
	GeometryType string        `json:"geometryType"`
	FeatureCount int           `json:"featureCount"`
	Extent       *[4]float64   `json:"extent,omitempty"`
	SRS          string        `json:"srs,omitempty"`
	Fields       []FieldInfo   `json:"fields"`
	Features     []FeatureInfo `json:"features,omitempty"`
}

// FieldInfo is a field name and type, as found on the layer's first feature
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FeatureInfo holds the attributes and geometry of a feature. Features are numbered
// sequentially in reading order.
type FeatureInfo struct {
	Index    int          `json:"index"`
	Fields   []FieldValue `json:"fields"`
	Geometry string       `json:"geometry,omitempty"`
}

// FieldValue is a formatted attribute value. Set is false for unset/null fields
type FieldValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Set   bool   `json:"set"`
}

type vectorInfoOpts struct {
	logger   *zap.Logger
	features bool
	layers   []string
	sql      string
	where    string
	filter   *[4]float64
	limit    int
	geometry GeometryMode
}

// VectorInfoOption is an option that can be passed to VectorInfo
//
// Available VectorInfoOptions are:
//
// • Features, Limit, GeometryOutput
//
// • Layers, SQL, Where, SpatialFilter
//
// • Logger
type VectorInfoOption interface {
	setVectorInfoOpt(o *vectorInfoOpts)
}

type vectorInfoFunc func(o *vectorInfoOpts)

func (f vectorInfoFunc) setVectorInfoOpt(o *vectorInfoOpts) { f(o) }

// Features includes the features in the report
func Features() VectorInfoOption {
	return vectorInfoFunc(func(o *vectorInfoOpts) { o.features = true })
}

// Layers restricts the report to the named layers
func Layers(names ...string) VectorInfoOption {
	return vectorInfoFunc(func(o *vectorInfoOpts) { o.layers = append(o.layers, names...) })
}

// SQL reports the result set of the given statement instead of the datasource layers
func SQL(stmt string) VectorInfoOption {
	return vectorInfoFunc(func(o *vectorInfoOpts) { o.sql = stmt })
}

// Where restricts the features of each layer with an attribute filter
func Where(expr string) VectorInfoOption {
	return vectorInfoFunc(func(o *vectorInfoOpts) { o.where = expr })
}

// SpatialFilter restricts the features to those intersecting the given rectangle,
// expressed in the layer's spatial reference
func SpatialFilter(minx, miny, maxx, maxy float64) VectorInfoOption {
	return vectorInfoFunc(func(o *vectorInfoOpts) { o.filter = &[4]float64{minx, miny, maxx, maxy} })
}

// Limit caps the number of features reported per layer. It does not change the
// reported feature count
func Limit(n int) VectorInfoOption {
	return vectorInfoFunc(func(o *vectorInfoOpts) { o.limit = n })
}

// GeometryOutput selects how geometries are reported
func GeometryOutput(mode GeometryMode) VectorInfoOption {
	return vectorInfoFunc(func(o *vectorInfoOpts) { o.geometry = mode })
}

// VectorInfo describes the layers of a vector dataset, in the manner of ogrinfo
func VectorInfo(ds *godal.Dataset, opts ...VectorInfoOption) (*VectorReport, error) {
	vo := vectorInfoOpts{}
	for _, o := range opts {
		o.setVectorInfoOpt(&vo)
	}
	logger := loggerOrDefault(vo.logger)
	rep := &VectorReport{
		Source: ds.Description(),
		Driver: ds.Driver().ShortName(),
	}
	var filter *godal.Geometry
	if vo.filter != nil {
		f := vo.filter
		wkt := fmt.Sprintf("POLYGON ((%[1]s %[2]s,%[3]s %[2]s,%[3]s %[4]s,%[1]s %[4]s,%[1]s %[2]s))",
			formatValue(f[0]), formatValue(f[1]), formatValue(f[2]), formatValue(f[3]))
		var err error
		if filter, err = godal.NewGeometryFromWKT(wkt, nil); err != nil {
			return nil, fmt.Errorf("spatial filter: %w", err)
		}
		defer filter.Close()
	}

	if vo.sql != "" {
		rs, err := ds.ExecuteSQL(vo.sql)
		if err != nil {
			return nil, fmt.Errorf("execute %q: %w", vo.sql, err)
		}
		defer rs.Close()
		li, err := describeLayer(rs.Layer, rs.Layer, filter, vo, true)
		if err != nil {
			return nil, err
		}
		rep.Layers = append(rep.Layers, li)
		return rep, nil
	}

	layers := ds.Layers()
	if len(vo.layers) > 0 {
		byName := map[string]godal.Layer{}
		for _, l := range layers {
			byName[l.Name()] = l
		}
		selected := make([]godal.Layer, 0, len(vo.layers))
		for _, name := range vo.layers {
			l, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("layer %s not found", name)
			}
			selected = append(selected, l)
		}
		layers = selected
	}
	for _, l := range layers {
		features := l
		var rs *godal.ResultSet
		if vo.where != "" {
			var err error
			stmt := fmt.Sprintf(`SELECT * FROM "%s" WHERE %s`, strings.ReplaceAll(l.Name(), `"`, `""`), vo.where)
			if rs, err = ds.ExecuteSQL(stmt); err != nil {
				return nil, fmt.Errorf("layer %s: filter %q: %w", l.Name(), vo.where, err)
			}
			features = rs.Layer
		}
		li, err := describeLayer(l, features, filter, vo, vo.where != "")
		if rs != nil {
			_ = rs.Close()
		}
		if err != nil {
			return nil, err
		}
		logger.Debug("described layer", zap.String("layer", li.Name), zap.Int("features", li.FeatureCount))
		rep.Layers = append(rep.Layers, li)
	}
	return rep, nil
}

// describeLayer reports layer l, reading its features from the features layer which
// is either l itself or a filtered result set on it
func describeLayer(l, features godal.Layer, filter *godal.Geometry, vo vectorInfoOpts, filtered bool) (LayerInfo, error) {
	li := LayerInfo{
		Name:         l.Name(),
		GeometryType: GeometryTypeName(l.Type()),
	}
	if bnds, err := l.Bounds(); err == nil {
		li.Extent = &bnds
	}
	if wkt, err := l.SpatialRef().WKT(); err == nil {
		li.SRS = wkt
	}

	countByIteration := filtered || filter != nil
	if !countByIteration {
		n, err := l.FeatureCount()
		if err != nil {
			return li, fmt.Errorf("layer %s: feature count: %w", li.Name, err)
		}
		li.FeatureCount = n
		if !vo.features && li.FeatureCount > 0 {
			// only the first feature is needed for the field list
			features.ResetReading()
			if f := features.NextFeature(); f != nil {
				li.Fields = fieldInfos(f)
				f.Close()
			}
			return li, nil
		}
	}

	features.ResetReading()
	idx := 0
	for {
		f := features.NextFeature()
		if f == nil {
			break
		}
		if filter != nil {
			g := f.Geometry()
			ok := false
			if !g.Empty() {
				var err error
				if ok, err = g.Intersects(filter); err != nil {
					f.Close()
					return li, fmt.Errorf("layer %s: spatial filter: %w", li.Name, err)
				}
			}
			if !ok {
				f.Close()
				continue
			}
		}
		if li.Fields == nil {
			li.Fields = fieldInfos(f)
		}
		if countByIteration {
			li.FeatureCount++
		}
		if vo.features && (vo.limit <= 0 || len(li.Features) < vo.limit) {
			fi, err := featureInfo(f, idx, vo.geometry)
			if err != nil {
				f.Close()
				return li, fmt.Errorf("layer %s: feature %d: %w", li.Name, idx, err)
			}
			li.Features = append(li.Features, fi)
		}
		f.Close()
		idx++
		if !countByIteration && vo.limit > 0 && len(li.Features) >= vo.limit {
			break
		}
	}
	return li, nil
}

func sortedFieldNames(fields map[string]godal.Field) []string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func fieldInfos(f *godal.Feature) []FieldInfo {
	fields := f.Fields()
	ret := []FieldInfo{}
	for _, n := range sortedFieldNames(fields) {
		ret = append(ret, FieldInfo{Name: n, Type: FieldTypeName(fields[n].Type())})
	}
	return ret
}

func featureInfo(f *godal.Feature, idx int, mode GeometryMode) (FeatureInfo, error) {
	fi := FeatureInfo{Index: idx, Fields: []FieldValue{}}
	fields := f.Fields()
	for _, n := range sortedFieldNames(fields) {
		fld := fields[n]
		fi.Fields = append(fi.Fields, FieldValue{
			Name:  n,
			Type:  FieldTypeName(fld.Type()),
			Value: formatField(fld),
			Set:   fld.IsSet(),
		})
	}
	g := f.Geometry()
	if mode == GeomNone || g.Empty() {
		return fi, nil
	}
	if mode == GeomSummary {
		fi.Geometry = geometrySummary(g)
		return fi, nil
	}
	wkt, err := g.WKT()
	if err != nil {
		return fi, err
	}
	fi.Geometry = wkt
	return fi, nil
}

func geometrySummary(g *godal.Geometry) string {
	name := g.Name()
	switch {
	case strings.HasPrefix(name, "MULTI") || name == "GEOMETRYCOLLECTION":
		return fmt.Sprintf("%s : %d geometries", name, g.GeometryCount())
	case name == "POLYGON":
		return fmt.Sprintf("%s : %d rings", name, g.GeometryCount())
	default:
		return name
	}
}

func formatField(fld godal.Field) string {
	if !fld.IsSet() {
		return "(null)"
	}
	switch fld.Type() {
	case godal.FTInt, godal.FTInt64:
		return strconv.FormatInt(fld.Int(), 10)
	case godal.FTReal:
		return formatValue(fld.Float())
	case godal.FTString:
		return fld.String()
	case godal.FTDate:
		if t := fld.DateTime(); t != nil {
			return t.Format("2006/01/02")
		}
	case godal.FTTime:
		if t := fld.DateTime(); t != nil {
			return t.Format("15:04:05")
		}
	case godal.FTDateTime:
		if t := fld.DateTime(); t != nil {
			return t.Format("2006/01/02 15:04:05")
		}
	case godal.FTIntList, godal.FTInt64List:
		l := fld.IntList()
		s := make([]string, len(l))
		for i, v := range l {
			s[i] = strconv.FormatInt(v, 10)
		}
		return formatList(s)
	case godal.FTRealList:
		l := fld.FloatList()
		s := make([]string, len(l))
		for i, v := range l {
			s[i] = formatValue(v)
		}
		return formatList(s)
	case godal.FTStringList:
		return formatList(fld.StringList())
	case godal.FTBinary:
		return fmt.Sprintf("%X", fld.Bytes())
	}
	return ""
}

func formatList(s []string) string {
	return fmt.Sprintf("(%d:%s)", len(s), strings.Join(s, ","))
}

// FieldTypeName returns the ogr name of a field type
func FieldTypeName(ft godal.FieldType) string {
	switch ft {
	case godal.FTInt:
		return "Integer"
	case godal.FTInt64:
		return "Integer64"
	case godal.FTReal:
		return "Real"
	case godal.FTString:
		return "String"
	case godal.FTIntList:
		return "IntegerList"
	case godal.FTInt64List:
		return "Integer64List"
	case godal.FTRealList:
		return "RealList"
	case godal.FTStringList:
		return "StringList"
	case godal.FTBinary:
		return "Binary"
	case godal.FTDate:
		return "Date"
	case godal.FTTime:
		return "Time"
	case godal.FTDateTime:
		return "DateTime"
	default:
		return "Unknown"
	}
}

var geometryTypeNames = map[godal.GeometryType]string{
	godal.GTUnknown:               "Unknown (any)",
	godal.GTPoint:                 "Point",
	godal.GTPoint25D:              "3D Point",
	godal.GTLinearRing:            "Linear Ring",
	godal.GTLineString:            "Line String",
	godal.GTLineString25D:         "3D Line String",
	godal.GTPolygon:               "Polygon",
	godal.GTPolygon25D:            "3D Polygon",
	godal.GTMultiPoint:            "Multi Point",
	godal.GTMultiPoint25D:         "3D Multi Point",
	godal.GTMultiLineString:       "Multi Line String",
	godal.GTMultiLineString25D:    "3D Multi Line String",
	godal.GTMultiPolygon:          "Multi Polygon",
	godal.GTMultiPolygon25D:       "3D Multi Polygon",
	godal.GTGeometryCollection:    "Geometry Collection",
	godal.GTGeometryCollection25D: "3D Geometry Collection",
	godal.GTNone:                  "None",
}

// GeometryTypeName returns the ogr name of a geometry type
func GeometryTypeName(gt godal.GeometryType) string {
	if n, ok := geometryTypeNames[gt]; ok {
		return n
	}
	return fmt.Sprintf("Unknown (%d)", gt)
}
