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
	"strings"

	"github.com/airbusgeo/godal"
)

// KnownDrivers lists the drivers godal names explicitly
var KnownDrivers = []godal.DriverName{
	godal.GTiff,
	godal.GeoJSON,
	godal.Memory,
	godal.VRT,
	godal.Shapefile,
	godal.GeoPackage,
	godal.JP2KAK,
	godal.OpenJPEG,
	godal.DIMAP,
	godal.HFA,
	godal.Mitab,
}

// Capabilities describes what a driver supports, as advertised in its metadata
type Capabilities struct {
	// Name is the name the driver was looked up with
	Name string `json:"name"`
	// Found is false if no registered driver matches Name. All other fields are empty then.
	Found      bool     `json:"found"`
	ShortName  string   `json:"short_name,omitempty"`
	LongName   string   `json:"long_name,omitempty"`
	Raster     bool     `json:"raster"`
	Vector     bool     `json:"vector"`
	MultiDim   bool     `json:"multidimensional"`
	Create     bool     `json:"create"`
	CreateCopy bool     `json:"createcopy"`
	VirtualIO  bool     `json:"virtualio"`
	Extensions []string `json:"extensions,omitempty"`
	HelpTopic  string   `json:"help_topic,omitempty"`

	// The following are not exposed by gdal and must be filled from external
	// knowledge, see driverdoc.ApplyOverrides

	Georeferencing bool     `json:"georeferencing"`
	BuiltIn        bool     `json:"built_in"`
	Deprecated     bool     `json:"deprecated"`
	Dependencies   []string `json:"dependencies,omitempty"`
}

// DriverCapabilities looks up the named drivers (godal.DriverName values or gdal short
// names) and reads their capabilities. Without names, KnownDrivers are described.
// Drivers must have been registered beforehand, e.g. with godal.RegisterAll.
func DriverCapabilities(names ...string) []Capabilities {
	if len(names) == 0 {
		for _, dn := range KnownDrivers {
			names = append(names, string(dn))
		}
	}
	ret := make([]Capabilities, 0, len(names))
	for _, name := range names {
		c := Capabilities{Name: name}
		var drivers []godal.Driver
		if drv, ok := godal.RasterDriver(godal.DriverName(name)); ok {
			drivers = append(drivers, drv)
		}
		if drv, ok := godal.VectorDriver(godal.DriverName(name)); ok {
			if len(drivers) == 0 || drv.ShortName() != drivers[0].ShortName() {
				drivers = append(drivers, drv)
			}
		}
		for _, drv := range drivers {
			c.merge(drv)
		}
		ret = append(ret, c)
	}
	return ret
}

func (c *Capabilities) merge(drv godal.Driver) {
	if !c.Found {
		c.Found = true
		c.ShortName = drv.ShortName()
		c.LongName = drv.LongName()
		c.HelpTopic = drv.Metadata("DMD_HELPTOPIC")
	}
	c.Raster = c.Raster || capability(drv, "DCAP_RASTER")
	c.Vector = c.Vector || capability(drv, "DCAP_VECTOR")
	c.MultiDim = c.MultiDim || capability(drv, "DCAP_MULTIDIM_RASTER")
	c.Create = c.Create || capability(drv, "DCAP_CREATE")
	c.CreateCopy = c.CreateCopy || capability(drv, "DCAP_CREATECOPY")
	c.VirtualIO = c.VirtualIO || capability(drv, "DCAP_VIRTUALIO")
	for _, ext := range strings.Fields(drv.Metadata("DMD_EXTENSIONS")) {
		if !contains(c.Extensions, ext) {
			c.Extensions = append(c.Extensions, ext)
		}
	}
}

func capability(drv godal.Driver, key string) bool {
	return strings.EqualFold(drv.Metadata(key), "YES")
}

func contains(l []string, s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
