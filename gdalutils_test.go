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
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/require"
)

func init() {
	godal.RegisterAll()
}

type errChecker struct {
	errs int
}

func (e *errChecker) ErrorHandler(ec godal.ErrorCategory, code int, message string) error {
	if ec >= godal.CE_Warning {
		e.errs++
		return errors.New(message)
	}
	return nil
}

// rampDataset creates an in memory north-up dataset whose pixel (x,y) of band b
// holds (y*sx+x+b*10)%256
func rampDataset(t *testing.T, nbands, sx, sy int) *godal.Dataset {
	t.Helper()
	ds, err := godal.Create(godal.Memory, "", nbands, godal.Byte, sx, sy)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	for b, bnd := range ds.Bands() {
		buf := make([]byte, sx*sy)
		for i := range buf {
			buf[i] = byte((i + b*10) % 256)
		}
		require.NoError(t, bnd.Write(0, 0, buf, sx, sy))
	}
	sr, err := godal.NewSpatialRefFromEPSG(32631)
	require.NoError(t, err)
	defer sr.Close()
	require.NoError(t, ds.SetSpatialRef(sr))
	require.NoError(t, ds.SetGeoTransform([6]float64{500000, 10, 0, 5000000, 0, -10}))
	return ds
}

// tiffCopy writes ds to a GTiff file inside the test's temp dir and returns its path
func tiffCopy(t *testing.T, ds *godal.Dataset, switches ...string) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "copy.tif")
	out, err := ds.Translate(fname, append([]string{"-of", "GTiff"}, switches...))
	require.NoError(t, err)
	require.NoError(t, out.Close())
	return fname
}
