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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCogify(t *testing.T) {
	src := tiffCopy(t, rampDataset(t, 1, 1024, 1024))
	buf := bytes.Buffer{}
	require.NoError(t, Cogify(context.Background(), src, &buf, nil, TempDir(t.TempDir())))

	cog := filepath.Join(t.TempDir(), "cog.tif")
	require.NoError(t, os.WriteFile(cog, buf.Bytes(), 0644))
	rep, err := ValidateCOG(cog)
	require.NoError(t, err)
	assert.True(t, rep.Valid(), "%v", rep.Errors)
	assert.NoError(t, rep.Err())
	// 1024 -> 512 -> 256 with 256x256 blocks
	assert.Len(t, rep.IFDOffsets, 3)
	assert.Len(t, rep.DataOffsets, 3)

	golden, err := godal.Open(src)
	require.NoError(t, err)
	defer golden.Close()
	cds, err := godal.Open(cog)
	require.NoError(t, err)
	defer cds.Close()
	cmp, err := Compare(golden, cds, Skip(OverviewsCheck, MetadataCheck))
	require.NoError(t, err)
	assert.Equal(t, 0, cmp.Count(), "%v", cmp.Differences)
	assert.Equal(t, 256, cds.Bands()[0].Structure().BlockSizeX)
}

func TestCogifyOptions(t *testing.T) {
	src := tiffCopy(t, rampDataset(t, 1, 300, 200))
	buf := bytes.Buffer{}
	require.NoError(t, Cogify(context.Background(), src, &buf,
		[]string{"-co", "BLOCKXSIZE=128", "-co", "BLOCKYSIZE=128"},
		TempDir(t.TempDir()), OverviewLevels(2), OverviewResampling(godal.Nearest)))
	cog := filepath.Join(t.TempDir(), "cog.tif")
	require.NoError(t, os.WriteFile(cog, buf.Bytes(), 0644))
	rep, err := ValidateCOG(cog)
	require.NoError(t, err)
	assert.True(t, rep.Valid(), "%v", rep.Errors)
	assert.Len(t, rep.IFDOffsets, 2)

	buf.Reset()
	require.NoError(t, Cogify(context.Background(), src, &buf, nil, TempDir(t.TempDir()), NoOverviews()))
	require.NoError(t, os.WriteFile(cog, buf.Bytes(), 0644))
	rep, err = ValidateCOG(cog)
	require.NoError(t, err)
	assert.Len(t, rep.IFDOffsets, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Cogify(ctx, src, &buf, nil, TempDir(t.TempDir())), context.Canceled)

	assert.Error(t, Cogify(context.Background(), filepath.Join(t.TempDir(), "missing.tif"), &buf, nil))
}

func TestValidateCOGDriver(t *testing.T) {
	ds := rampDataset(t, 1, 1024, 1024)
	fname := filepath.Join(t.TempDir(), "cog.tif")
	out, err := ds.Translate(fname, []string{"-of", "COG"})
	require.NoError(t, err)
	require.NoError(t, out.Close())

	rep, err := ValidateCOG(fname)
	require.NoError(t, err)
	assert.True(t, rep.Valid(), "%v", rep.Errors)
	assert.Empty(t, rep.Warnings)
	assert.NotEmpty(t, rep.Structural)
	assert.Equal(t, "IFDS_BEFORE_DATA", rep.Structural["LAYOUT"])
}

func TestValidateCOGErrors(t *testing.T) {
	// striped tiff without overviews
	striped := tiffCopy(t, rampDataset(t, 1, 1100, 1100))
	rep, err := ValidateCOG(striped)
	require.NoError(t, err)
	assert.False(t, rep.Valid())
	assert.ErrorIs(t, rep.Err(), ErrNotCOG)
	assert.Contains(t, rep.Errors, "The file is greater than 512xH or Wx512, but is not tiled")
	assert.Contains(t, rep.Warnings, "The file is greater than 512xH or Wx512, it is recommended to include internal overviews")

	// strips up to 1024 pixels wide are accepted
	narrow := tiffCopy(t, rampDataset(t, 1, 1024, 1024))
	rep, err = ValidateCOG(narrow)
	require.NoError(t, err)
	assert.NotContains(t, rep.Errors, "The file is greater than 512xH or Wx512, but is not tiled")
	assert.Contains(t, rep.Warnings, "The file is greater than 512xH or Wx512, it is recommended to include internal overviews")

	// tiled tiff whose overviews were appended after the main image
	tiled := tiffCopy(t, rampDataset(t, 1, 1024, 1024), "-co", "TILED=YES")
	ds, err := godal.Open(tiled, godal.Update())
	require.NoError(t, err)
	require.NoError(t, ds.BuildOverviews(godal.Levels(2, 4)))
	require.NoError(t, ds.Close())
	rep, err = ValidateCOG(tiled)
	require.NoError(t, err)
	assert.False(t, rep.Valid())
	assert.Contains(t, rep.Errors,
		"The offset of the first block of the main resolution image should be after the one of the overview of index 1")

	// small tiled files are not required to have overviews
	small := tiffCopy(t, rampDataset(t, 1, 256, 256), "-co", "TILED=YES")
	rep, err = ValidateCOG(small)
	require.NoError(t, err)
	assert.True(t, rep.Valid(), "%v", rep.Errors)
	rep, err = ValidateCOG(small, Strict())
	require.NoError(t, err)
	assert.False(t, rep.Valid())
	assert.Empty(t, rep.Warnings)

	png := filepath.Join(t.TempDir(), "x.png")
	pds, err := rampDataset(t, 1, 16, 16).Translate(png, []string{"-of", "PNG"})
	require.NoError(t, err)
	require.NoError(t, pds.Close())
	rep, err = ValidateCOG(png)
	require.NoError(t, err)
	assert.Equal(t, []string{"The file is not a GeoTIFF (driver PNG)"}, rep.Errors)

	_, err = ValidateCOG(filepath.Join(t.TempDir(), "missing.tif"))
	assert.Error(t, err)
}

func TestParseResampling(t *testing.T) {
	alg, err := ParseResampling("AVERAGE")
	require.NoError(t, err)
	assert.Equal(t, godal.Average, alg)
	alg, err = ParseResampling("nearest")
	require.NoError(t, err)
	assert.Equal(t, godal.Nearest, alg)
	alg, err = ParseResampling("median")
	require.NoError(t, err)
	assert.Equal(t, godal.Median, alg)
	alg, err = ParseResampling(godal.Median.String())
	require.NoError(t, err)
	assert.Equal(t, godal.Median, alg)
	_, err = ParseResampling("fancy")
	assert.Error(t, err)
}

func TestCOGReportCheckOffsets(t *testing.T) {
	// ifds at the start of the file, data from the smallest overview to the main image
	rep := &COGReport{IFDOffsets: []int64{8, 300, 500}, DataOffsets: []int64{9000, 2000, 1000}}
	rep.checkOffsets()
	assert.Empty(t, rep.Errors)

	// smallest overview data located before its ifd
	rep = &COGReport{IFDOffsets: []int64{8, 300, 5000}, DataOffsets: []int64{9000, 2000, 1000}}
	rep.checkOffsets()
	assert.Equal(t, []string{"The offset of the first block of the smallest overview should be after its IFD"}, rep.Errors)

	rep = &COGReport{IFDOffsets: []int64{5000}, DataOffsets: []int64{1000}}
	rep.checkOffsets()
	assert.Equal(t, []string{"The offset of the first block of the image should be after its IFD"}, rep.Errors)

	// main image data preceding the overview data
	rep = &COGReport{IFDOffsets: []int64{8, 300, 500}, DataOffsets: []int64{100, 2000, 1000}}
	rep.checkOffsets()
	assert.Equal(t, []string{
		"The offset of the first block of the main resolution image should be after the one of the overview of index 1",
	}, rep.Errors)

	rep = &COGReport{IFDOffsets: []int64{8, 300, 500}, DataOffsets: []int64{9000, 1000, 2000}}
	rep.checkOffsets()
	assert.Equal(t, []string{
		"The offset of the first block of overview of index 0 should be after the one of the overview of index 1",
	}, rep.Errors)

	// sparse images have no data offset
	rep = &COGReport{IFDOffsets: []int64{8, 300, 5000}, DataOffsets: []int64{0, 0, 0}}
	rep.checkOffsets()
	assert.Empty(t, rep.Errors)

	rep = &COGReport{IFDOffsets: []int64{8, 500, 300}, DataOffsets: []int64{9000, 2000, 1000}}
	rep.checkOffsets()
	assert.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "The offset of the IFD for overview of index 1 is 300")
}

func TestCOGReportCheckMainIFD(t *testing.T) {
	header := []byte{'I', 'I', 0x2a, 0, 0, 0, 0, 0}
	structural := "LAYOUT=IFDS_BEFORE_DATA\nKNOWN_INCOMPATIBLE_EDITION=YES\n"
	buf := append(header, []byte("GDAL_STRUCTURAL_METADATA_SIZE=000056 bytes\n"+structural)...)
	expected, md, err := parseTIFFHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8+43+56), expected)
	assert.Equal(t, "YES", md["KNOWN_INCOMPATIBLE_EDITION"])
	assert.Equal(t, "IFDS_BEFORE_DATA", md["LAYOUT"])

	rep := &COGReport{Structural: md}
	rep.checkMainIFD(expected+1, expected)
	assert.Equal(t, []string{"KNOWN_INCOMPATIBLE_EDITION=YES is declared in the file"}, rep.Errors)

	rep = &COGReport{Structural: map[string]string{"LAYOUT": "IFDS_BEFORE_DATA"}}
	rep.checkMainIFD(200, expected)
	assert.Equal(t, []string{"The offset of the main IFD should be 107. It is 200 instead"}, rep.Errors)

	bigtiff := []byte{'I', 'I', 0x2b, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	expected, md, err = parseTIFFHeader(bigtiff)
	require.NoError(t, err)
	assert.Equal(t, int64(16), expected)
	assert.Empty(t, md)

	_, _, err = parseTIFFHeader([]byte("II"))
	assert.Error(t, err)
}
