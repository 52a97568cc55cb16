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
	"math"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumConstant(t *testing.T) {
	tc := func(dtype godal.DataType, re, im float64, exp int) {
		t.Helper()
		ds, err := godal.Create(godal.Memory, "", 1, dtype, 20, 20)
		require.NoError(t, err)
		defer ds.Close()
		require.NoError(t, ds.Bands()[0].Fill(re, im))
		cs, err := Checksum(ds.Bands()[0])
		assert.NoError(t, err)
		assert.Equal(t, exp, cs, "%s %v", dtype, re)
	}
	tc(godal.Byte, 0, 0, 0)
	tc(godal.Byte, 1, 0, 400)
	// 10%7 + 10*(10%p) per cycle of 11 primes, 36 full cycles then 4 values
	tc(godal.Byte, 10, 0, 36*103+33)
	tc(godal.Int16, 1, 0, 400)
	tc(godal.Float32, 2.5, 0, 1200)
	tc(godal.Float64, -0.6, 0, (-400)&0xffff)
	tc(godal.CFloat32, 1, 2, 1200)
}

func TestChecksumWindow(t *testing.T) {
	ds, err := godal.Create(godal.Memory, "", 1, godal.Byte, 10, 10)
	require.NoError(t, err)
	defer ds.Close()
	bnd := ds.Bands()[0]
	buf := make([]byte, 100)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, bnd.Write(0, 0, buf, 10, 10))

	full, err := Checksum(bnd)
	require.NoError(t, err)
	win, err := Checksum(bnd, Window(0, 0, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, full, win)

	// single pixel at (3,2): value 23, first prime
	one, err := Checksum(bnd, Window(3, 2, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 23%7, one)

	_, err = Checksum(bnd, Window(0, 0, 0, 10))
	assert.Error(t, err)
	_, err = Checksum(bnd, Window(5, 5, 10, 10))
	assert.Error(t, err)
	_, err = Checksum(bnd, Window(-1, 0, 2, 2))
	assert.Error(t, err)
}

func TestFloatChecksumValue(t *testing.T) {
	assert.Equal(t, math.MinInt32, floatChecksumValue(math.NaN()))
	assert.Equal(t, math.MinInt32, floatChecksumValue(math.Inf(1)))
	assert.Equal(t, math.MinInt32, floatChecksumValue(math.Inf(-1)))
	assert.Equal(t, 3, floatChecksumValue(2.5))
	assert.Equal(t, 2, floatChecksumValue(2.49))
	assert.Equal(t, -1, floatChecksumValue(-0.6))
	assert.Equal(t, 2147483647, floatChecksumValue(1e20))
	assert.Equal(t, -2147483647, floatChecksumValue(-1e20))
}

func TestChecksummerWraps(t *testing.T) {
	cs := checksummer{}
	for i := 0; i < 11; i++ {
		cs.add(math.MinInt32)
	}
	assert.True(t, cs.sum >= 0 && cs.sum <= 0xffff)
	assert.Equal(t, 0, cs.prime)
}
