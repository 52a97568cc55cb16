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
	"strings"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

type editOpts struct {
	logger *zap.Logger

	srs      *string
	gt       *[6]float64
	bounds   *[4]float64
	unsetGT  bool
	nodata   *float64
	unsetND  bool
	scales   []float64
	offsets  []float64
	metadata [][2]string
	unsetMD  bool
	unsetRPC bool

	computeStats bool
	approxStats  bool
	stats        *godal.Statistics
	unsetStats   bool

	colorInterps map[int]string
	descriptions map[int]string
	gcps         []godal.GCP
	gcpSRS       string
	setGCPs      bool
}

// EditOption is an option that can be passed to Edit
//
// Available EditOptions are:
//
// • AssignSRS, AssignGeoTransform, AssignBounds, UnsetGeoTransform
//
// • AssignNoData, UnsetNoData, AssignScale, AssignOffset
//
// • SetMetadataItem, UnsetMetadata, UnsetRPC
//
// • ComputeStats, SetStats, UnsetStats
//
// • AssignColorInterp, AssignGCPs, SetDescription
//
// • Logger
type EditOption interface {
	setEditOpt(o *editOpts)
}

type editFunc func(o *editOpts)

func (f editFunc) setEditOpt(o *editOpts) { f(o) }

// AssignSRS sets the dataset's spatial reference. An empty definition removes it.
func AssignSRS(def string) EditOption {
	return editFunc(func(o *editOpts) { o.srs = &def })
}

// AssignGeoTransform sets the dataset's geotransform
func AssignGeoTransform(gt [6]float64) EditOption {
	return editFunc(func(o *editOpts) { o.gt = &gt })
}

// AssignBounds sets the geotransform so that the raster spans the given corners
func AssignBounds(ulx, uly, lrx, lry float64) EditOption {
	return editFunc(func(o *editOpts) { o.bounds = &[4]float64{ulx, uly, lrx, lry} })
}

// UnsetGeoTransform removes the geotransform
func UnsetGeoTransform() EditOption {
	return editFunc(func(o *editOpts) { o.unsetGT = true })
}

// AssignNoData sets the nodata value of all bands
func AssignNoData(v float64) EditOption {
	return editFunc(func(o *editOpts) { o.nodata = &v })
}

// UnsetNoData removes the nodata value of all bands
func UnsetNoData() EditOption {
	return editFunc(func(o *editOpts) { o.unsetND = true })
}

// AssignScale sets the band scale. A single value applies to all bands, otherwise
// one value per band must be given.
func AssignScale(v ...float64) EditOption {
	return editFunc(func(o *editOpts) { o.scales = v })
}

// AssignOffset sets the band offset, following the same rules as AssignScale
func AssignOffset(v ...float64) EditOption {
	return editFunc(func(o *editOpts) { o.offsets = v })
}

// SetMetadataItem sets a dataset metadata item in the default domain
func SetMetadataItem(key, value string) EditOption {
	return editFunc(func(o *editOpts) { o.metadata = append(o.metadata, [2]string{key, value}) })
}

// UnsetMetadata removes the default domain metadata before SetMetadataItem is applied
func UnsetMetadata() EditOption {
	return editFunc(func(o *editOpts) { o.unsetMD = true })
}

// UnsetRPC removes the RPC metadata domain
func UnsetRPC() EditOption {
	return editFunc(func(o *editOpts) { o.unsetRPC = true })
}

// ComputeStats computes and stores the statistics of all bands
func ComputeStats(approx bool) EditOption {
	return editFunc(func(o *editOpts) {
		o.computeStats = true
		o.approxStats = approx
	})
}

// SetStats stores user supplied statistics on all bands
func SetStats(min, max, mean, std float64) EditOption {
	return editFunc(func(o *editOpts) {
		o.stats = &godal.Statistics{Min: min, Max: max, Mean: mean, Std: std}
	})
}

// UnsetStats removes the stored statistics
func UnsetStats() EditOption {
	return editFunc(func(o *editOpts) { o.unsetStats = true })
}

// AssignColorInterp sets the color interpretation of the given 1-based band, by
// name (e.g. "red", "alpha", "gray", "undefined")
func AssignColorInterp(band int, name string) EditOption {
	return editFunc(func(o *editOpts) {
		if o.colorInterps == nil {
			o.colorInterps = map[int]string{}
		}
		o.colorInterps[band] = name
	})
}

// AssignGCPs replaces the dataset's ground control points, expressed in the srsDef
// spatial reference
func AssignGCPs(gcps []godal.GCP, srsDef string) EditOption {
	return editFunc(func(o *editOpts) {
		o.gcps = gcps
		o.gcpSRS = srsDef
		o.setGCPs = true
	})
}

// SetDescription sets the description of the given 1-based band
func SetDescription(band int, text string) EditOption {
	return editFunc(func(o *editOpts) {
		if o.descriptions == nil {
			o.descriptions = map[int]string{}
		}
		o.descriptions[band] = text
	})
}

func (o editOpts) validate(nbands int) error {
	switch {
	case o.nodata != nil && o.unsetND:
		return fmt.Errorf("nodata cannot be both assigned and unset")
	case (o.computeStats || o.stats != nil) && o.unsetStats:
		return fmt.Errorf("statistics cannot be both set and unset")
	case o.computeStats && o.stats != nil:
		return fmt.Errorf("statistics cannot be both computed and set")
	case (o.gt != nil || o.bounds != nil) && o.unsetGT:
		return fmt.Errorf("geotransform cannot be both assigned and unset")
	case o.gt != nil && o.bounds != nil:
		return fmt.Errorf("geotransform and bounds are mutually exclusive")
	case o.setGCPs && (o.gt != nil || o.bounds != nil):
		return fmt.Errorf("gcps and geotransform are mutually exclusive")
	}
	for _, v := range [][]float64{o.scales, o.offsets} {
		if len(v) > 1 && len(v) != nbands {
			return fmt.Errorf("got %d scale/offset values for %d bands", len(v), nbands)
		}
	}
	for b, name := range o.colorInterps {
		if b < 1 || b > nbands {
			return fmt.Errorf("invalid band %d", b)
		}
		if _, ok := ParseColorInterp(name); !ok {
			return fmt.Errorf("unknown color interpretation %q", name)
		}
	}
	for b := range o.descriptions {
		if b < 1 || b > nbands {
			return fmt.Errorf("invalid band %d", b)
		}
	}
	return nil
}

// Edit modifies a dataset opened in update mode in place, in the manner of gdal_edit.
// All options are checked for consistency before anything is written.
func Edit(ds *godal.Dataset, opts ...EditOption) error {
	eo := editOpts{}
	for _, o := range opts {
		o.setEditOpt(&eo)
	}
	bands := ds.Bands()
	if err := eo.validate(len(bands)); err != nil {
		return err
	}
	logger := loggerOrDefault(eo.logger)
	eh := godal.ErrLogger(ErrorHandler(logger))

	if eo.srs != nil {
		if *eo.srs == "" {
			if err := ds.SetProjection("", eh); err != nil {
				return fmt.Errorf("unset srs: %w", err)
			}
		} else {
			sr, err := godal.NewSpatialRef(*eo.srs)
			if err != nil {
				return fmt.Errorf("parse srs %q: %w", *eo.srs, err)
			}
			err = ds.SetSpatialRef(sr, eh)
			sr.Close()
			if err != nil {
				return fmt.Errorf("set srs: %w", err)
			}
		}
	}

	switch {
	case eo.unsetGT:
		if err := ds.SetGeoTransform([6]float64{}, eh); err != nil {
			return fmt.Errorf("unset geotransform: %w", err)
		}
	case eo.gt != nil:
		if err := ds.SetGeoTransform(*eo.gt, eh); err != nil {
			return fmt.Errorf("set geotransform: %w", err)
		}
	case eo.bounds != nil:
		st := ds.Structure()
		ulx, uly, lrx, lry := eo.bounds[0], eo.bounds[1], eo.bounds[2], eo.bounds[3]
		gt := [6]float64{ulx, (lrx - ulx) / float64(st.SizeX), 0, uly, 0, (lry - uly) / float64(st.SizeY)}
		if err := ds.SetGeoTransform(gt, eh); err != nil {
			return fmt.Errorf("set bounds: %w", err)
		}
	}

	if eo.nodata != nil {
		if err := ds.SetNoData(*eo.nodata, eh); err != nil {
			return fmt.Errorf("set nodata: %w", err)
		}
	}
	if eo.unsetND {
		for i, b := range bands {
			if err := b.ClearNoData(eh); err != nil {
				return fmt.Errorf("unset nodata of band %d: %w", i+1, err)
			}
		}
	}

	if len(eo.scales) > 0 || len(eo.offsets) > 0 {
		for i, b := range bands {
			st := b.Structure()
			scale, offset := st.Scale, st.Offset
			if scale == 0 {
				scale = 1
			}
			if len(eo.scales) > 0 {
				scale = perBand(eo.scales, i)
			}
			if len(eo.offsets) > 0 {
				offset = perBand(eo.offsets, i)
			}
			if err := b.SetScaleOffset(scale, offset); err != nil {
				return fmt.Errorf("set scale/offset of band %d: %w", i+1, err)
			}
		}
	}

	if eo.unsetMD {
		if err := ds.ClearMetadata(eh); err != nil {
			return fmt.Errorf("unset metadata: %w", err)
		}
	}
	for _, kv := range eo.metadata {
		if err := ds.SetMetadata(kv[0], kv[1], eh); err != nil {
			return fmt.Errorf("set metadata %s: %w", kv[0], err)
		}
	}
	if eo.unsetRPC {
		if err := ds.ClearMetadata(godal.Domain("RPC"), eh); err != nil {
			return fmt.Errorf("unset rpc: %w", err)
		}
	}

	if eo.setGCPs {
		var gopts []godal.SetGCPsOption
		if eo.gcpSRS != "" {
			sr, err := godal.NewSpatialRef(eo.gcpSRS)
			if err != nil {
				return fmt.Errorf("parse gcp srs %q: %w", eo.gcpSRS, err)
			}
			defer sr.Close()
			gopts = append(gopts, godal.GCPSpatialRef(sr))
		}
		if err := ds.SetGCPs(eo.gcps, gopts...); err != nil {
			return fmt.Errorf("set gcps: %w", err)
		}
	}

	for bidx, name := range eo.colorInterps {
		ci, _ := ParseColorInterp(name)
		if err := bands[bidx-1].SetColorInterp(ci, eh); err != nil {
			return fmt.Errorf("set color interpretation of band %d: %w", bidx, err)
		}
	}
	for bidx, text := range eo.descriptions {
		if err := bands[bidx-1].SetDescription(text); err != nil {
			return fmt.Errorf("set description of band %d: %w", bidx, err)
		}
	}

	if eo.unsetStats {
		if err := ds.ClearStatistics(); err != nil {
			return fmt.Errorf("unset statistics: %w", err)
		}
	}
	for i, b := range bands {
		switch {
		case eo.computeStats:
			var sopts []godal.StatisticsOption
			if eo.approxStats {
				sopts = append(sopts, godal.Approximate())
			}
			st, err := b.ComputeStatistics(sopts...)
			if err != nil {
				return fmt.Errorf("compute statistics of band %d: %w", i+1, err)
			}
			logger.Debug("computed statistics", zap.Int("band", i+1),
				zap.Float64("min", st.Min), zap.Float64("max", st.Max))
		case eo.stats != nil:
			s := eo.stats
			if err := b.SetStatistics(s.Min, s.Max, s.Mean, s.Std); err != nil {
				return fmt.Errorf("set statistics of band %d: %w", i+1, err)
			}
		}
	}
	return nil
}

func perBand(v []float64, i int) float64 {
	if len(v) == 1 {
		return v[0]
	}
	return v[i]
}

var colorInterps = []godal.ColorInterp{
	godal.CIUndefined, godal.CIGray, godal.CIPalette, godal.CIRed, godal.CIGreen,
	godal.CIBlue, godal.CIAlpha, godal.CIHue, godal.CISaturation, godal.CILightness,
	godal.CICyan, godal.CIMagenta, godal.CIYellow, godal.CIBlack, godal.CIY, godal.CICb,
	godal.CICr,
}

// ParseColorInterp returns the color interpretation matching name, compared
// case-insensitively with gdal's color interpretation names
func ParseColorInterp(name string) (godal.ColorInterp, bool) {
	for _, ci := range colorInterps {
		if strings.EqualFold(ci.Name(), name) {
			return ci, true
		}
	}
	return godal.CIUndefined, false
}
