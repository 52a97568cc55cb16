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
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditGeoreferencing(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	require.NoError(t, Edit(ds, AssignSRS("EPSG:4326"), AssignBounds(0, 10, 20, 0)))
	gt, err := ds.GeoTransform()
	require.NoError(t, err)
	assert.Equal(t, [6]float64{0, 1, 0, 10, 0, -1}, gt)
	assert.Contains(t, ds.Projection(), "WGS 84")

	require.NoError(t, Edit(ds, AssignGeoTransform([6]float64{5, 2, 0, 50, 0, -2})))
	gt, _ = ds.GeoTransform()
	assert.Equal(t, [6]float64{5, 2, 0, 50, 0, -2}, gt)

	assert.Error(t, Edit(ds, AssignSRS("bogus")))
}

func TestEditUnsetGeoreferencing(t *testing.T) {
	fname := tiffCopy(t, rampDataset(t, 1, 20, 10))
	ds, err := godal.Open(fname, godal.Update())
	require.NoError(t, err)
	require.NoError(t, Edit(ds, AssignSRS(""), UnsetGeoTransform()))
	require.NoError(t, ds.Close())

	ds, err = godal.Open(fname)
	require.NoError(t, err)
	defer ds.Close()
	assert.Empty(t, ds.Projection())
	gt, err := ds.GeoTransform()
	assert.True(t, err != nil || gt == [6]float64{0, 1, 0, 0, 0, 1}, "%v", gt)
}

func TestEditNoDataScaleOffset(t *testing.T) {
	ds := rampDataset(t, 2, 20, 10)
	require.NoError(t, Edit(ds, AssignNoData(5), AssignScale(2), AssignOffset(1, 3)))
	for i, b := range ds.Bands() {
		nd, ok := b.NoData()
		assert.True(t, ok)
		assert.Equal(t, 5.0, nd)
		st := b.Structure()
		assert.Equal(t, 2.0, st.Scale)
		assert.Equal(t, float64(1+2*i), st.Offset)
	}

	// offset only keeps the current scale
	require.NoError(t, Edit(ds, AssignOffset(7)))
	assert.Equal(t, 2.0, ds.Bands()[1].Structure().Scale)
	assert.Equal(t, 7.0, ds.Bands()[1].Structure().Offset)

	require.NoError(t, Edit(ds, UnsetNoData()))
	_, ok := ds.Bands()[0].NoData()
	assert.False(t, ok)

	assert.Error(t, Edit(ds, AssignScale(1, 2, 3)))
}

func TestEditMetadata(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	require.NoError(t, Edit(ds, SetMetadataItem("a", "1")))
	assert.Equal(t, "1", ds.Metadata("a"))
	require.NoError(t, ds.SetMetadata("LINE_OFF", "1", godal.Domain("RPC")))

	require.NoError(t, Edit(ds, UnsetMetadata(), SetMetadataItem("b", "2"), UnsetRPC()))
	assert.Equal(t, map[string]string{"b": "2"}, ds.Metadatas())
	assert.Empty(t, ds.Metadatas(godal.Domain("RPC")))
}

func TestEditBands(t *testing.T) {
	ds := rampDataset(t, 2, 20, 10)
	require.NoError(t, Edit(ds, AssignColorInterp(1, "red"), SetDescription(2, "nir")))
	assert.Equal(t, godal.CIRed, ds.Bands()[0].ColorInterp())
	assert.Equal(t, "nir", ds.Bands()[1].Description())

	assert.Error(t, Edit(ds, AssignColorInterp(3, "red")))
	assert.Error(t, Edit(ds, AssignColorInterp(1, "nope")))
	assert.Error(t, Edit(ds, SetDescription(0, "x")))
}

func TestEditStatistics(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	require.NoError(t, Edit(ds, SetStats(0, 200, 1.5, 2)))
	assert.Equal(t, "200", ds.Bands()[0].Metadata("STATISTICS_MAXIMUM"))

	require.NoError(t, Edit(ds, ComputeStats(false)))
	assert.Equal(t, "199", ds.Bands()[0].Metadata("STATISTICS_MAXIMUM"))
}

func TestEditGCPs(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	gcps := []godal.GCP{
		{PszId: "1", DfGCPPixel: 0, DfGCPLine: 0, DfGCPX: 2, DfGCPY: 49},
		{PszId: "2", DfGCPPixel: 20, DfGCPLine: 0, DfGCPX: 3, DfGCPY: 49},
		{PszId: "3", DfGCPPixel: 20, DfGCPLine: 10, DfGCPX: 3, DfGCPY: 48},
	}
	require.NoError(t, Edit(ds, AssignGCPs(gcps, "EPSG:4326")))
	got := ds.GCPs()
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, got[2].DfGCPX)
	assert.Contains(t, ds.GCPProjection(), "WGS 84")
}

func TestEditConflicts(t *testing.T) {
	ds := rampDataset(t, 1, 20, 10)
	gt := [6]float64{0, 1, 0, 0, 0, -1}
	for _, opts := range [][]EditOption{
		{AssignNoData(1), UnsetNoData()},
		{ComputeStats(true), UnsetStats()},
		{SetStats(0, 1, 0, 0), UnsetStats()},
		{ComputeStats(true), SetStats(0, 1, 0, 0)},
		{AssignGeoTransform(gt), UnsetGeoTransform()},
		{AssignBounds(0, 1, 1, 0), UnsetGeoTransform()},
		{AssignGeoTransform(gt), AssignBounds(0, 1, 1, 0)},
		{AssignGCPs(nil, ""), AssignGeoTransform(gt)},
	} {
		// conflicting options must be rejected before the nodata value is written
		err := Edit(ds, append(opts, AssignNoData(42))...)
		assert.Error(t, err)
	}
	_, ok := ds.Bands()[0].NoData()
	assert.False(t, ok)
}

func TestParseColorInterp(t *testing.T) {
	ci, ok := ParseColorInterp("Alpha")
	assert.True(t, ok)
	assert.Equal(t, godal.CIAlpha, ci)
	ci, ok = ParseColorInterp("gray")
	assert.True(t, ok)
	assert.Equal(t, godal.CIGray, ci)
	_, ok = ParseColorInterp("infrared")
	assert.False(t, ok)
}
