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

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// Point is a location to query, expressed in the coordinate system selected by the
// LocationOptions (pixel/line by default)
type Point struct {
	X, Y float64
}

// BandValue is the value of one band at a queried location
type BandValue struct {
	// Band is the 1-based band index
	Band  int
	Value float64
	// Scaled is true when the band carries a scale/offset other than 1/0, in which
	// case Descaled holds Value*scale+offset
	Scaled   bool
	Descaled float64
	// LocationInfo is the content of the Pixel_x_y item of the LocationInfo metadata
	// domain, as exposed by e.g. the VRT driver.
	LocationInfo string
}

// Location is the report for one queried Point
type Location struct {
	Input Point
	// Pixel and Line are the full resolution raster coordinates of the point
	Pixel, Line int
	// OffFile is true if the point falls outside of the raster. Bands is empty in that case
	OffFile bool
	Bands   []BandValue
}

type inputCoords int

const (
	pixelLineCoords inputCoords = iota
	georefCoords
	srsCoords
)

type locationOpts struct {
	logger   *zap.Logger
	coords   inputCoords
	srs      string
	bands    []int
	overview int
}

// LocationOption is an option that can be passed to LocationInfo
//
// Available LocationOptions are:
//
// • Georef
//
// • WGS84
//
// • InputSRS
//
// • Bands
//
// • Overview
//
// • Logger
type LocationOption interface {
	setLocationOpt(o *locationOpts)
}

type georefOpt struct{}

// Georef interprets query points as georeferenced coordinates in the dataset's
// coordinate system
func Georef() interface {
	LocationOption
} {
	return georefOpt{}
}

func (georefOpt) setLocationOpt(o *locationOpts) {
	o.coords = georefCoords
}

type inputSRSOpt struct {
	srs string
}

// InputSRS interprets query points as coordinates in the given spatial reference (any
// string accepted by godal.NewSpatialRef), in longitude/easting, latitude/northing order
func InputSRS(srs string) interface {
	LocationOption
} {
	return inputSRSOpt{srs}
}

// WGS84 interprets query points as WGS84 longitude/latitude
func WGS84() interface {
	LocationOption
} {
	return inputSRSOpt{"EPSG:4326"}
}

func (io inputSRSOpt) setLocationOpt(o *locationOpts) {
	o.coords = srsCoords
	o.srs = io.srs
}

type bandsOpt struct {
	bands []int
}

// Bands restricts the report to the given bands. Contrary to godal.Bands, band indexes
// are 1-based as in the gdal utilities.
func Bands(bands ...int) interface {
	LocationOption
} {
	return bandsOpt{bands}
}

func (bo bandsOpt) setLocationOpt(o *locationOpts) {
	o.bands = append(o.bands, bo.bands...)
}

type overviewOpt struct {
	level int
}

// Overview queries the level'th overview instead of the full resolution band.
// level is 1-based, i.e. Overview(1) queries the first overview.
func Overview(level int) interface {
	LocationOption
} {
	return overviewOpt{level}
}

func (oo overviewOpt) setLocationOpt(o *locationOpts) {
	o.overview = oo.level
}

// LocationInfo reports the band values of ds at each of the given points.
//
// Points that fall outside of the raster are reported with OffFile set, they are not
// considered an error.
func LocationInfo(ds *godal.Dataset, pts []Point, opts ...LocationOption) ([]Location, error) {
	lo := locationOpts{}
	for _, o := range opts {
		o.setLocationOpt(&lo)
	}
	logger := loggerOrDefault(lo.logger)
	st := ds.Structure()
	bands := ds.Bands()
	if len(lo.bands) == 0 {
		for i := range bands {
			lo.bands = append(lo.bands, i+1)
		}
	}
	for _, b := range lo.bands {
		if b < 1 || b > len(bands) {
			return nil, fmt.Errorf("invalid band %d, dataset has %d bands", b, len(bands))
		}
	}

	pixels, err := toPixelLine(ds, pts, lo)
	if err != nil {
		return nil, err
	}

	ret := make([]Location, len(pts))
	for i, pt := range pts {
		px, ln := pixels[i].X, pixels[i].Y
		loc := Location{Input: pt}
		if math.IsNaN(px) || math.IsNaN(ln) {
			loc.OffFile = true
			ret[i] = loc
			continue
		}
		loc.Pixel = int(math.Floor(px))
		loc.Line = int(math.Floor(ln))
		if loc.Pixel < 0 || loc.Line < 0 || loc.Pixel >= st.SizeX || loc.Line >= st.SizeY {
			loc.OffFile = true
			ret[i] = loc
			continue
		}
		for _, bidx := range lo.bands {
			bv, err := sampleBand(bands[bidx-1], bidx, loc.Pixel, loc.Line, st, lo.overview)
			if err != nil {
				return nil, err
			}
			loc.Bands = append(loc.Bands, bv)
		}
		logger.Debug("sampled location", zap.Float64("x", pt.X), zap.Float64("y", pt.Y),
			zap.Int("pixel", loc.Pixel), zap.Int("line", loc.Line))
		ret[i] = loc
	}
	return ret, nil
}

// toPixelLine converts the input points to fractional pixel/line coordinates. Points
// that could not be transformed are returned as NaN.
func toPixelLine(ds *godal.Dataset, pts []Point, lo locationOpts) ([]Point, error) {
	out := make([]Point, len(pts))
	copy(out, pts)
	if lo.coords == pixelLineCoords || len(pts) == 0 {
		return out, nil
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("dataset has no geotransform: %w", err)
	}
	inv, ok := InvertGeoTransform(gt)
	if !ok {
		return nil, fmt.Errorf("cannot invert geotransform %v", gt)
	}
	if lo.coords == srsCoords {
		if ds.Projection() == "" {
			return nil, fmt.Errorf("dataset has no spatial reference")
		}
		dstSR := ds.SpatialRef()
		srcSR, err := godal.NewSpatialRef(lo.srs)
		if err != nil {
			return nil, fmt.Errorf("parse srs %q: %w", lo.srs, err)
		}
		defer srcSR.Close()
		trn, err := godal.NewTransform(srcSR, dstSR)
		if err != nil {
			return nil, fmt.Errorf("create transform: %w", err)
		}
		defer trn.Close()
		xs := make([]float64, len(pts))
		ys := make([]float64, len(pts))
		oks := make([]bool, len(pts))
		for i := range pts {
			xs[i], ys[i] = pts[i].X, pts[i].Y
		}
		// failures are reported per point through oks
		_ = trn.TransformEx(xs, ys, nil, oks)
		for i := range pts {
			if !oks[i] {
				out[i] = Point{math.NaN(), math.NaN()}
				continue
			}
			out[i] = Point{xs[i], ys[i]}
		}
	}
	for i := range out {
		if math.IsNaN(out[i].X) {
			continue
		}
		x, y := out[i].X, out[i].Y
		out[i].X = inv[0] + inv[1]*x + inv[2]*y
		out[i].Y = inv[3] + inv[4]*x + inv[5]*y
	}
	return out, nil
}

func sampleBand(band godal.Band, bidx, pixel, line int, st godal.DatasetStructure, overview int) (BandValue, error) {
	bv := BandValue{Band: bidx}
	qband := band
	qpixel, qline := pixel, line
	if overview > 0 {
		ovrs := band.Overviews()
		if overview > len(ovrs) {
			return bv, fmt.Errorf("cannot get overview %d of band %d", overview, bidx)
		}
		qband = ovrs[overview-1]
		ost := qband.Structure()
		qpixel = int(0.5 + float64(pixel)/float64(st.SizeX)*float64(ost.SizeX))
		qline = int(0.5 + float64(line)/float64(st.SizeY)*float64(ost.SizeY))
		if qpixel >= ost.SizeX {
			qpixel = ost.SizeX - 1
		}
		if qline >= ost.SizeY {
			qline = ost.SizeY - 1
		}
	}
	bv.LocationInfo = qband.Metadata(fmt.Sprintf("Pixel_%d_%d", qpixel, qline), godal.Domain("LocationInfo"))

	buf := make([]float64, 1)
	if err := qband.Read(qpixel, qline, buf, 1, 1); err != nil {
		return bv, fmt.Errorf("read band %d at %d,%d: %w", bidx, qpixel, qline, err)
	}
	bv.Value = buf[0]
	bst := band.Structure()
	if (bst.Scale != 1 && bst.Scale != 0) || bst.Offset != 0 {
		scale := bst.Scale
		if scale == 0 {
			scale = 1
		}
		bv.Scaled = true
		bv.Descaled = bv.Value*scale + bst.Offset
	}
	return bv, nil
}

// InvertGeoTransform computes the inverse of an affine geotransform. ok is false if
// the geotransform is degenerate.
func InvertGeoTransform(gt [6]float64) (inv [6]float64, ok bool) {
	// fast path for north up images
	if gt[2] == 0 && gt[4] == 0 && gt[1] != 0 && gt[5] != 0 {
		inv[0] = -gt[0] / gt[1]
		inv[1] = 1 / gt[1]
		inv[2] = 0
		inv[3] = -gt[3] / gt[5]
		inv[4] = 0
		inv[5] = 1 / gt[5]
		return inv, true
	}
	det := gt[1]*gt[5] - gt[2]*gt[4]
	magnitude := math.Max(math.Max(math.Abs(gt[1]), math.Abs(gt[2])), math.Max(math.Abs(gt[4]), math.Abs(gt[5])))
	if math.Abs(det) <= 1e-10*magnitude*magnitude {
		return inv, false
	}
	invDet := 1 / det
	inv[1] = gt[5] * invDet
	inv[4] = -gt[4] * invDet
	inv[2] = -gt[2] * invDet
	inv[5] = gt[1] * invDet
	inv[0] = (gt[2]*gt[3] - gt[0]*gt[5]) * invDet
	inv[3] = (-gt[1]*gt[3] + gt[0]*gt[4]) * invDet
	return inv, true
}
