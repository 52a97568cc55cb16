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
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// CalcInput binds a raster band to an expression variable
type CalcInput struct {
	// Name is the variable name used in expressions, e.g. "A"
	Name string
	Path string
	// Band is 1-based. 0 selects the first band
	Band int
}

type calcOpts struct {
	logger     *zap.Logger
	config     []string
	creation   []string
	format     godal.DriverName
	dtype      godal.DataType
	hasType    bool
	nodata     *float64
	hideNoData bool
	allBands   string
	overwrite  bool
}

// CalcOption is an option that can be passed to Calc
//
// Available CalcOptions are:
//
// • OutputFormat, OutputType, CreationOption, ConfigOption
//
// • NoDataValue, HideNoData
//
// • AllBands
//
// • Overwrite
//
// • Logger
type CalcOption interface {
	setCalcOpt(o *calcOpts)
}

type calcFunc func(o *calcOpts)

func (f calcFunc) setCalcOpt(o *calcOpts) { f(o) }

// OutputFormat sets the output driver. Defaults to GTiff
func OutputFormat(name string) CalcOption {
	return calcFunc(func(o *calcOpts) { o.format = godal.DriverName(name) })
}

// OutputType sets the output data type. Defaults to the type shared by all inputs,
// or Float32 if they differ
func OutputType(dtype godal.DataType) CalcOption {
	return calcFunc(func(o *calcOpts) {
		o.dtype = dtype
		o.hasType = true
	})
}

// NoDataValue sets the output nodata value, instead of the output type's default one
func NoDataValue(v float64) CalcOption {
	return calcFunc(func(o *calcOpts) { o.nodata = &v })
}

// HideNoData ignores the inputs' nodata values, and does not set one on the output
func HideNoData() CalcOption {
	return calcFunc(func(o *calcOpts) { o.hideNoData = true })
}

// AllBands evaluates the expression once per band of the named input, producing one
// output band for each
func AllBands(name string) CalcOption {
	return calcFunc(func(o *calcOpts) { o.allBands = name })
}

// Overwrite allows replacing an existing output file
func Overwrite() CalcOption {
	return calcFunc(func(o *calcOpts) { o.overwrite = true })
}

// DefaultNoData returns the nodata value used for outputs of the given type
func DefaultNoData(dtype godal.DataType) float64 {
	switch dtype {
	case godal.Byte:
		return 255
	case godal.UInt16:
		return 65535
	case godal.Int16:
		return -32768
	case godal.UInt32:
		return 4294967293
	case godal.Int32:
		return -2147483647
	case godal.Float32:
		return 3.402823466e+38
	default:
		return math.MaxFloat64
	}
}

func typeRange(dtype godal.DataType) (float64, float64) {
	switch dtype {
	case godal.Byte:
		return 0, math.MaxUint8
	case godal.UInt16:
		return 0, math.MaxUint16
	case godal.Int16:
		return math.MinInt16, math.MaxInt16
	case godal.UInt32:
		return 0, math.MaxUint32
	case godal.Int32:
		return math.MinInt32, math.MaxInt32
	case godal.Float32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

type calcSource struct {
	name   string
	band   godal.Band
	nodata float64
	hasND  bool
	buf    []float64
}

// Calc evaluates band math expressions over the given inputs and writes one output
// band per expression (or per band of the AllBands input) to outPath.
//
// All inputs must have the same raster size, and the output is georeferenced like the
// first input. Pixels where an input equals its nodata value, or where the expression
// evaluates to NaN, are set to the output nodata value.
func Calc(outPath string, inputs []CalcInput, exprs []string, opts ...CalcOption) error {
	co := calcOpts{format: godal.GTiff}
	for _, o := range opts {
		o.setCalcOpt(&co)
	}
	logger := loggerOrDefault(co.logger)
	eh := godal.ErrLogger(ErrorHandler(logger))
	if len(inputs) == 0 {
		return errors.New("no input")
	}
	if len(exprs) == 0 {
		return errors.New("no expression")
	}
	if co.allBands != "" && len(exprs) > 1 {
		return errors.New("a single expression is allowed when evaluating all bands")
	}

	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	compiled := make([]*Expression, len(exprs))
	for i, e := range exprs {
		c, err := CompileExpression(e, names)
		if err != nil {
			return err
		}
		compiled[i] = c
	}

	if !co.overwrite {
		if f, err := godal.VSIOpen(outPath); err == nil {
			_ = f.Close()
			return fmt.Errorf("%s already exists", outPath)
		}
	}

	datasets := make([]*godal.Dataset, 0, len(inputs))
	defer func() {
		for _, ds := range datasets {
			_ = ds.Close()
		}
	}()
	var allBandsDS *godal.Dataset
	sources := make([]*calcSource, len(inputs))
	for i, in := range inputs {
		ds, err := godal.Open(in.Path, godal.RasterOnly(), godal.ConfigOption(co.config...), eh)
		if err != nil {
			return fmt.Errorf("open %s: %w", in.Path, err)
		}
		datasets = append(datasets, ds)
		bands := ds.Bands()
		bidx := in.Band
		if bidx == 0 {
			bidx = 1
		}
		if bidx < 1 || bidx > len(bands) {
			return fmt.Errorf("%s: invalid band %d, dataset has %d bands", in.Path, bidx, len(bands))
		}
		if in.Name == co.allBands {
			allBandsDS = ds
		}
		sources[i] = &calcSource{name: in.Name, band: bands[bidx-1]}
		if !co.hideNoData {
			sources[i].nodata, sources[i].hasND = bands[bidx-1].NoData()
		}
		if i > 0 {
			st0, st := datasets[0].Structure(), ds.Structure()
			if st.SizeX != st0.SizeX || st.SizeY != st0.SizeY {
				return fmt.Errorf("%s is %dx%d, expected %dx%d: %w", in.Path,
					st.SizeX, st.SizeY, st0.SizeX, st0.SizeY, ErrSizeMismatch)
			}
		}
	}
	if co.allBands != "" && allBandsDS == nil {
		return fmt.Errorf("unknown input %s", co.allBands)
	}

	if !co.hasType {
		co.dtype = sources[0].band.Structure().DataType
		for _, s := range sources[1:] {
			if s.band.Structure().DataType != co.dtype {
				co.dtype = godal.Float32
				break
			}
		}
	}
	if isComplex(co.dtype) {
		return fmt.Errorf("unsupported output type %s", co.dtype)
	}
	outND := DefaultNoData(co.dtype)
	if co.nodata != nil {
		outND = *co.nodata
	}

	nOut := len(compiled)
	if allBandsDS != nil {
		nOut = len(allBandsDS.Bands())
	}
	st := datasets[0].Structure()
	out, closeOut, err := createCalcOutput(outPath, nOut, st.SizeX, st.SizeY, co, eh)
	if err != nil {
		return err
	}
	if gt, err := datasets[0].GeoTransform(); err == nil {
		if err := out.SetGeoTransform(gt, eh); err != nil {
			_ = closeOut(false)
			return fmt.Errorf("set geotransform: %w", err)
		}
	}
	if wkt := datasets[0].Projection(); wkt != "" {
		if err := out.SetProjection(wkt, eh); err != nil {
			_ = closeOut(false)
			return fmt.Errorf("set projection: %w", err)
		}
	}

	lo, hi := typeRange(co.dtype)
	for ob, obnd := range out.Bands() {
		if !co.hideNoData {
			if err := obnd.SetNoData(outND, eh); err != nil {
				_ = closeOut(false)
				return fmt.Errorf("set nodata: %w", err)
			}
		}
		expr := compiled[0]
		if allBandsDS == nil {
			expr = compiled[ob]
		} else {
			for _, s := range sources {
				if s.name != co.allBands {
					continue
				}
				s.band = allBandsDS.Bands()[ob]
				if !co.hideNoData {
					s.nodata, s.hasND = s.band.NoData()
				}
			}
		}
		logger.Debug("computing band", zap.Int("band", ob+1), zap.Stringer("expression", expr))
		if err := calcBand(obnd, sources, expr, outND, lo, hi, co.hideNoData); err != nil {
			_ = closeOut(false)
			return fmt.Errorf("band %d: %w", ob+1, err)
		}
	}
	return closeOut(true)
}

// createCalcOutput creates the output dataset directly if the driver supports it, or
// in memory to be copied to outPath when closed otherwise
func createCalcOutput(outPath string, nBands, sx, sy int, co calcOpts, eh interface {
	godal.DatasetCreateOption
	godal.CloseOption
	godal.DatasetTranslateOption
}) (*godal.Dataset, func(commit bool) error, error) {
	drv, ok := godal.RasterDriver(co.format)
	if !ok {
		return nil, nil, fmt.Errorf("unknown raster driver %s", co.format)
	}
	if drv.Metadata("DCAP_CREATE") == "YES" {
		ds, err := godal.Create(co.format, outPath, nBands, co.dtype, sx, sy,
			godal.CreationOption(co.creation...), godal.ConfigOption(co.config...), eh)
		if err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", outPath, err)
		}
		return ds, func(bool) error { return ds.Close(eh) }, nil
	}
	mem, err := godal.Create(godal.Memory, "", nBands, co.dtype, sx, sy, eh)
	if err != nil {
		return nil, nil, fmt.Errorf("create temporary dataset: %w", err)
	}
	return mem, func(commit bool) error {
		defer mem.Close()
		if !commit {
			return nil
		}
		ds, err := mem.Translate(outPath, []string{"-of", string(co.format)},
			godal.CreationOption(co.creation...), godal.ConfigOption(co.config...), eh)
		if err != nil {
			return fmt.Errorf("copy to %s: %w", outPath, err)
		}
		return ds.Close(eh)
	}, nil
}

func calcBand(out godal.Band, sources []*calcSource, expr *Expression, outND, lo, hi float64, hideNoData bool) error {
	used := map[string]bool{}
	for _, v := range expr.Variables() {
		used[v] = true
	}
	params := make(map[string]interface{}, len(sources))
	st := sources[0].band.Structure()
	var res []float64
	for blk, ok := st.FirstBlock(), true; ok; blk, ok = blk.Next() {
		n := blk.W * blk.H
		if cap(res) < n {
			res = make([]float64, n)
		}
		res = res[:n]
		for _, s := range sources {
			if !used[s.name] {
				continue
			}
			if cap(s.buf) < n {
				s.buf = make([]float64, n)
			}
			s.buf = s.buf[:n]
			if err := s.band.Read(blk.X0, blk.Y0, s.buf, blk.W, blk.H); err != nil {
				return fmt.Errorf("read %s at %d,%d: %w", s.name, blk.X0, blk.Y0, err)
			}
		}
	pixels:
		for i := 0; i < n; i++ {
			for _, s := range sources {
				if !used[s.name] {
					continue
				}
				v := s.buf[i]
				if !hideNoData && s.hasND && (v == s.nodata || (math.IsNaN(v) && math.IsNaN(s.nodata))) {
					res[i] = outND
					continue pixels
				}
				params[s.name] = v
			}
			v, err := expr.Evaluate(params)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", expr, err)
			}
			switch {
			case math.IsNaN(v):
				v = outND
			case v < lo:
				v = lo
			case v > hi:
				v = hi
			}
			res[i] = v
		}
		if err := out.Write(blk.X0, blk.Y0, res, blk.W, blk.H); err != nil {
			return fmt.Errorf("write at %d,%d: %w", blk.X0, blk.Y0, err)
		}
	}
	return nil
}
