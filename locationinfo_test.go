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
	"bytes"
	"math"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationInfoPixelLine(t *testing.T) {
	ds := rampDataset(t, 2, 20, 10)
	locs, err := LocationInfo(ds, []Point{{3.7, 2.2}, {-1, 0}, {20, 0}, {0, 10}})
	require.NoError(t, err)
	require.Len(t, locs, 4)

	assert.False(t, locs[0].OffFile)
	assert.Equal(t, 3, locs[0].Pixel)
	assert.Equal(t, 2, locs[0].Line)
	require.Len(t, locs[0].Bands, 2)
	assert.Equal(t, 1, locs[0].Bands[0].Band)
	assert.Equal(t, 43.0, locs[0].Bands[0].Value)
	assert.Equal(t, 53.0, locs[0].Bands[1].Value)
	assert.False(t, locs[0].Bands[0].Scaled)

	for _, l := range locs[1:] {
		assert.True(t, l.OffFile)
		assert.Empty(t, l.Bands)
	}
	assert.ErrorIs(t, AnyOffFile(locs), ErrOffFile)
	assert.NoError(t, AnyOffFile(locs[:1]))
}

func TestLocationInfoBands(t *testing.T) {
	ds := rampDataset(t, 3, 20, 10)
	locs, err := LocationInfo(ds, []Point{{0, 0}}, Bands(3, 1))
	require.NoError(t, err)
	require.Len(t, locs[0].Bands, 2)
	assert.Equal(t, 3, locs[0].Bands[0].Band)
	assert.Equal(t, 20.0, locs[0].Bands[0].Value)
	assert.Equal(t, 0.0, locs[0].Bands[1].Value)

	_, err = LocationInfo(ds, []Point{{0, 0}}, Bands(4))
	assert.Error(t, err)
	_, err = LocationInfo(ds, []Point{{0, 0}}, Bands(0))
	assert.Error(t, err)
}

func TestLocationInfoGeoref(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	// pixel 5, line 3
	locs, err := LocationInfo(ds, []Point{{500055, 4999965}, {499000, 5000000}}, Georef())
	require.NoError(t, err)
	assert.Equal(t, 5, locs[0].Pixel)
	assert.Equal(t, 3, locs[0].Line)
	assert.Equal(t, 65.0, locs[0].Bands[0].Value)
	assert.True(t, locs[1].OffFile)

	noGeo, _ := godal.Create(godal.Memory, "", 1, godal.Byte, 5, 5)
	defer noGeo.Close()
	_, err = LocationInfo(noGeo, []Point{{1, 1}}, Georef())
	assert.Error(t, err)
	_, err = LocationInfo(noGeo, []Point{{1, 1}}, WGS84())
	assert.Error(t, err)
}

func TestLocationInfoWGS84(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	// utm 31N origin easting 500000 is on the 3°E central meridian
	lon, lat := 3.0, 45.1
	sr4326, _ := godal.NewSpatialRefFromEPSG(4326)
	defer sr4326.Close()
	sr32631, _ := godal.NewSpatialRefFromEPSG(32631)
	defer sr32631.Close()
	trn, err := godal.NewTransform(sr4326, sr32631)
	require.NoError(t, err)
	defer trn.Close()
	x, y := []float64{lon}, []float64{lat}
	require.NoError(t, trn.TransformEx(x, y, nil, nil))

	gt, _ := ds.GeoTransform()
	expPixel := int(math.Floor((x[0] - gt[0]) / gt[1]))
	expLine := int(math.Floor((y[0] - gt[3]) / gt[5]))

	locs, err := LocationInfo(ds, []Point{{lon, lat}}, WGS84())
	require.NoError(t, err)
	if expPixel >= 0 && expPixel < 20 && expLine >= 0 && expLine < 10 {
		assert.False(t, locs[0].OffFile)
		assert.Equal(t, expPixel, locs[0].Pixel)
		assert.Equal(t, expLine, locs[0].Line)
	} else {
		assert.True(t, locs[0].OffFile)
	}

	_, err = LocationInfo(ds, []Point{{0, 0}}, InputSRS("bogus srs"))
	assert.Error(t, err)
}

func TestLocationInfoScaleOffset(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	require.NoError(t, ds.Bands()[0].SetScaleOffset(0.5, 10))
	locs, err := LocationInfo(ds, []Point{{2, 0}})
	require.NoError(t, err)
	b := locs[0].Bands[0]
	assert.True(t, b.Scaled)
	assert.Equal(t, 2.0, b.Value)
	assert.Equal(t, 11.0, b.Descaled)
}

func TestLocationInfoOverview(t *testing.T) {
	src := rampDataset(t, 1, 64, 64)
	ds, err := godal.Open(tiffCopy(t, src), godal.Update())
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.BuildOverviews(godal.Levels(2), godal.Resampling(godal.Nearest)))

	locs, err := LocationInfo(ds, []Point{{10, 10}}, Overview(1))
	require.NoError(t, err)
	// pixel 10,10 maps to overview pixel 5,5
	assert.Equal(t, 10, locs[0].Pixel)
	ovr := make([]float64, 1)
	require.NoError(t, ds.Bands()[0].Overviews()[0].Read(5, 5, ovr, 1, 1))
	assert.Equal(t, ovr[0], locs[0].Bands[0].Value)

	_, err = LocationInfo(ds, []Point{{10, 10}}, Overview(3))
	assert.Error(t, err)
}

func TestLocationInfoOverviewMetadata(t *testing.T) {
	ds := rampDataset(t, 1, 64, 64)
	require.NoError(t, ds.BuildOverviews(godal.Levels(2), godal.Resampling(godal.Nearest)))
	band := ds.Bands()[0]
	require.NoError(t, band.SetMetadata("Pixel_10_10", "<full/>", godal.Domain("LocationInfo")))
	require.NoError(t, band.Overviews()[0].SetMetadata("Pixel_5_5", "<overview/>", godal.Domain("LocationInfo")))

	locs, err := LocationInfo(ds, []Point{{10, 10}})
	require.NoError(t, err)
	assert.Equal(t, "<full/>", locs[0].Bands[0].LocationInfo)
	locs, err = LocationInfo(ds, []Point{{10, 10}}, Overview(1))
	require.NoError(t, err)
	assert.Equal(t, "<overview/>", locs[0].Bands[0].LocationInfo)
}

func TestInvertGeoTransform(t *testing.T) {
	inv, ok := InvertGeoTransform([6]float64{100, 2, 0, 200, 0, -4})
	require.True(t, ok)
	assert.Equal(t, [6]float64{-50, 0.5, 0, 50, 0, -0.25}, inv)

	gt := [6]float64{10, 1, 0.5, 20, 0.25, -1}
	inv, ok = InvertGeoTransform(gt)
	require.True(t, ok)
	// applying gt then inv gives back the pixel coordinates
	px, ln := 7.0, 3.0
	x := gt[0] + gt[1]*px + gt[2]*ln
	y := gt[3] + gt[4]*px + gt[5]*ln
	assert.InDelta(t, px, inv[0]+inv[1]*x+inv[2]*y, 1e-9)
	assert.InDelta(t, ln, inv[3]+inv[4]*x+inv[5]*y, 1e-9)

	_, ok = InvertGeoTransform([6]float64{0, 1, 1, 0, 1, 1})
	assert.False(t, ok)
}

func TestLocationWriters(t *testing.T) {
	locs := []Location{
		{Input: Point{1, 2}, Pixel: 1, Line: 2, Bands: []BandValue{
			{Band: 1, Value: 107},
			{Band: 2, Value: 2.5, Scaled: true, Descaled: 15, LocationInfo: "<LocationInfo><File>a.tif</File></LocationInfo>"},
		}},
		{Input: Point{-1, 0}, OffFile: true},
	}
	buf := bytes.Buffer{}
	require.NoError(t, WriteLocationText(&buf, locs))
	assert.Equal(t, `Report:
  Location: (1P,2L)
  Band 1:
    Value: 107
  Band 2:
    LocationInfo:
      <LocationInfo><File>a.tif</File></LocationInfo>
    Value: 2.5
    Descaled Value: 15
Report:
  Location is off this file! No further details to report.
`, buf.String())

	buf.Reset()
	require.NoError(t, WriteLocationValues(&buf, locs, false, ""))
	assert.Equal(t, "107\n2.5\n\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteLocationValues(&buf, locs, true, ";"))
	assert.Equal(t, "1;2;107;2.5\n-1;0;\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteLocationXML(&buf, locs))
	out := buf.String()
	assert.Contains(t, out, `<Report pixel="1" line="2"><BandReport band="1"><Value>107</Value></BandReport>`)
	assert.Contains(t, out, `<DescaledValue>15</DescaledValue>`)
	assert.Contains(t, out, `<Report><Alert>Location is off this file! No further details to report.</Alert></Report>`)
}
