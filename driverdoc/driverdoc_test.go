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

package driverdoc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/airbusgeo/gdalutils"
	"github.com/airbusgeo/gdalutils/internal/config"
	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaps() []gdalutils.Capabilities {
	return []gdalutils.Capabilities{
		{
			Name: "GTiff", Found: true, ShortName: "GTiff", LongName: "GeoTIFF",
			Raster: true, Create: true, CreateCopy: true, VirtualIO: true,
			Extensions: []string{"tif", "tiff"},
		},
		{
			Name: "ESRI Shapefile", Found: true, ShortName: "ESRI Shapefile", LongName: "ESRI Shapefile",
			Vector: true, Create: true, VirtualIO: true, Extensions: []string{"shp"},
		},
		{Name: "bazbaz"},
	}
}

func TestRenderMarkdown(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, Render(&buf, testCaps(), Markdown))
	lines := strings.Split(buf.String(), "\n")
	require.True(t, len(lines) >= 4)
	assert.Equal(t, "| Driver | Long name | Raster | Vector | Create | CreateCopy | Georeferencing | Virtual I/O | Extensions |", lines[0])
	assert.Equal(t, "| GTiff | GeoTIFF | Yes | No | Yes | Yes | No | Yes | tif tiff |", lines[2])
	assert.Equal(t, "| ESRI Shapefile | ESRI Shapefile | No | Yes | Yes | No | No | Yes | shp |", lines[3])
	assert.Contains(t, buf.String(), "Driver bazbaz is not available in this build.")
}

func TestRenderRST(t *testing.T) {
	caps := testCaps()
	ApplyOverrides(caps, map[string]config.DriverOverride{
		"GTiff":   {Georeferencing: true, BuiltIn: true, Dependencies: []string{"libtiff", "libgeotiff"}},
		"unknown": {Deprecated: true},
	})
	buf := bytes.Buffer{}
	require.NoError(t, Render(&buf, caps, RST))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, ".. list-table:: Drivers\n   :header-rows: 1\n"))
	assert.Contains(t, out, "   * - GTiff\n     - GeoTIFF\n     - Yes\n     - No\n")
	assert.Contains(t, out, ".. _raster.gtiff:\n\nGTiff -- GeoTIFF\n================\n\n.. shortname:: GTiff\n")
	assert.Contains(t, out, ".. build_dependencies:: libtiff, libgeotiff\n")
	assert.Contains(t, out, ".. built_in_by_default::\n")
	assert.Contains(t, out, ".. supports_georeferencing::\n")
	assert.Contains(t, out, ".. _vector.esri_shapefile:\n")
	assert.Equal(t, 1, strings.Count(out, ".. supports_createcopy::"))
	assert.Equal(t, 2, strings.Count(out, ".. supports_virtualio::"))
	assert.NotContains(t, out, ".. deprecated_driver::")
	assert.Contains(t, out, ".. warning:: Driver bazbaz is not available in this build.")
}

func TestRenderGDALDrivers(t *testing.T) {
	godal.RegisterAll()
	caps := gdalutils.DriverCapabilities("GTiff", "GeoJSON")
	buf := bytes.Buffer{}
	require.NoError(t, Render(&buf, caps, Markdown))
	assert.Contains(t, buf.String(), "| GTiff | GeoTIFF | Yes | No | Yes | Yes |")
	assert.Contains(t, buf.String(), "| GeoJSON | GeoJSON | No | Yes |")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("RST")
	require.NoError(t, err)
	assert.Equal(t, RST, f)
	f, err = ParseFormat("markdown")
	require.NoError(t, err)
	assert.Equal(t, Markdown, f)
	_, err = ParseFormat("html")
	assert.Error(t, err)
	assert.Error(t, Render(&bytes.Buffer{}, nil, Format(5)))
}
