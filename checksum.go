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
)

var checksumPrimes = [11]int{7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43}

type checksumOpts struct {
	window                   bool
	xOff, yOff, xSize, ySize int
	config                   []string
}

// ChecksumOption is an option that can be passed to Checksum
//
// Available ChecksumOptions are:
//
// • Window
//
// • ConfigOption
type ChecksumOption interface {
	setChecksumOpt(o *checksumOpts)
}

type windowOpt struct {
	x, y, w, h int
}

// Window restricts the checksum to the given pixel window. By default the whole band is used.
func Window(xOff, yOff, xSize, ySize int) interface {
	ChecksumOption
} {
	return windowOpt{xOff, yOff, xSize, ySize}
}

func (wo windowOpt) setChecksumOpt(o *checksumOpts) {
	o.window = true
	o.xOff, o.yOff, o.xSize, o.ySize = wo.x, wo.y, wo.w, wo.h
}

// Checksum computes the 16 bit checksum of a band, identical to the value returned by
// gdal's GDALChecksumImage (and gdalinfo -checksum).
func Checksum(band godal.Band, opts ...ChecksumOption) (int, error) {
	st := band.Structure()
	co := checksumOpts{xSize: st.SizeX, ySize: st.SizeY}
	for _, o := range opts {
		o.setChecksumOpt(&co)
	}
	if co.xSize <= 0 || co.ySize <= 0 {
		return 0, fmt.Errorf("empty checksum window %dx%d", co.xSize, co.ySize)
	}
	if co.xOff < 0 || co.yOff < 0 || co.xOff+co.xSize > st.SizeX || co.yOff+co.ySize > st.SizeY {
		return 0, fmt.Errorf("checksum window %d,%d,%d,%d outside of %dx%d raster",
			co.xOff, co.yOff, co.xSize, co.ySize, st.SizeX, st.SizeY)
	}

	cs := checksummer{}
	switch {
	case isComplex(st.DataType):
		line := make([]complex128, co.xSize)
		for y := co.yOff; y < co.yOff+co.ySize; y++ {
			if err := band.Read(co.xOff, y, line, co.xSize, 1, godal.ConfigOption(co.config...)); err != nil {
				return 0, fmt.Errorf("read line %d: %w", y, err)
			}
			for _, v := range line {
				cs.add(floatChecksumValue(real(v)))
				cs.add(floatChecksumValue(imag(v)))
			}
		}
	case isFloat(st.DataType):
		line := make([]float64, co.xSize)
		for y := co.yOff; y < co.yOff+co.ySize; y++ {
			if err := band.Read(co.xOff, y, line, co.xSize, 1, godal.ConfigOption(co.config...)); err != nil {
				return 0, fmt.Errorf("read line %d: %w", y, err)
			}
			for _, v := range line {
				cs.add(floatChecksumValue(v))
			}
		}
	default:
		line := make([]int32, co.xSize)
		for y := co.yOff; y < co.yOff+co.ySize; y++ {
			if err := band.Read(co.xOff, y, line, co.xSize, 1, godal.ConfigOption(co.config...)); err != nil {
				return 0, fmt.Errorf("read line %d: %w", y, err)
			}
			for _, v := range line {
				cs.add(int(v))
			}
		}
	}
	return cs.sum, nil
}

type checksummer struct {
	sum   int
	prime int
}

func (c *checksummer) add(v int) {
	c.sum += v % checksumPrimes[c.prime]
	c.prime++
	if c.prime > 10 {
		c.prime = 0
	}
	c.sum &= 0xffff
}

// floatChecksumValue mimics gdal's float to int32 conversion used by the checksum
func floatChecksumValue(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.MinInt32
	}
	v += 0.5
	switch {
	case v < -2147483647.0:
		return -2147483647
	case v > 2147483647.0:
		return 2147483647
	default:
		return int(math.Floor(v))
	}
}

func isComplex(dt godal.DataType) bool {
	switch dt {
	case godal.CInt16, godal.CInt32, godal.CFloat32, godal.CFloat64:
		return true
	}
	return false
}

func isFloat(dt godal.DataType) bool {
	return dt == godal.Float32 || dt == godal.Float64
}
