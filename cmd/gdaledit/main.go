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

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/gdalutils"
	"github.com/airbusgeo/gdalutils/internal/cli"
	"github.com/airbusgeo/godal"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var (
	srs          string
	ullr         []float64
	gt           []float64
	unsetGT      bool
	nodata       string
	unsetNoData  bool
	scales       []float64
	offsets      []float64
	metadata     []string
	unsetMD      bool
	unsetRPC     bool
	stats        bool
	approxStats  bool
	setStats     []float64
	unsetStats   bool
	colorInterps []string
	gcps         []string
	descriptions []string
)

func init() {
	flags.Register(editCommand)
	f := editCommand.Flags()
	f.StringVar(&srs, "a_srs", "", "assign a spatial reference (\"none\" removes it)")
	f.Float64SliceVar(&ullr, "a_ullr", nil, "assign bounds: ulx,uly,lrx,lry")
	f.Float64SliceVar(&gt, "a_gt", nil, "assign a geotransform: 6 comma separated values")
	f.BoolVar(&unsetGT, "unsetgt", false, "remove the geotransform")
	f.StringVar(&nodata, "a_nodata", "", "assign a nodata value to all bands")
	f.BoolVar(&unsetNoData, "unsetnodata", false, "remove the nodata value")
	f.Float64SliceVar(&scales, "scale", nil, "band scale, one value or one per band")
	f.Float64SliceVar(&offsets, "offset", nil, "band offset, one value or one per band")
	f.StringArrayVar(&metadata, "mo", nil, "set a KEY=VALUE metadata item (repeatable)")
	f.BoolVar(&unsetMD, "unsetmd", false, "remove existing metadata")
	f.BoolVar(&unsetRPC, "unsetrpc", false, "remove the RPC metadata")
	f.BoolVar(&stats, "stats", false, "compute and store band statistics")
	f.BoolVar(&approxStats, "approx_stats", false, "compute and store approximate band statistics")
	f.Float64SliceVar(&setStats, "setstats", nil, "store min,max,mean,stddev statistics")
	f.BoolVar(&unsetStats, "unsetstats", false, "remove stored statistics")
	f.StringArrayVar(&colorInterps, "colorinterp", nil, "set a band color interpretation BAND=NAME (repeatable)")
	f.StringArrayVar(&gcps, "gcp", nil, "add a ground control point pixel,line,x,y[,z] (repeatable)")
	f.StringArrayVar(&descriptions, "description", nil, "set a band description BAND=TEXT (repeatable)")
}

func main() {
	cli.Main(editCommand)
}

var editCommand = &cobra.Command{
	Use:   "gdaledit [flags] datasetname",
	Short: "edit raster information in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		opts, err := editOptions()
		if err != nil {
			return err
		}
		if len(opts) == 0 {
			return fmt.Errorf("no edit requested")
		}
		opts = append(opts, gdalutils.Logger(env.Logger))
		eh := godal.ErrLogger(gdalutils.ErrorHandler(env.Logger))
		ds, err := godal.Open(args[0], godal.RasterOnly(), godal.Update(),
			godal.ConfigOption(env.GDALOptions()...), eh)
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		if err := gdalutils.Edit(ds, opts...); err != nil {
			ds.Close()
			return err
		}
		return ds.Close(eh)
	},
}

func editOptions() ([]gdalutils.EditOption, error) {
	var opts []gdalutils.EditOption
	// with gcps, the srs applies to the gcps only
	switch {
	case len(gcps) > 0:
	case srs == "none":
		opts = append(opts, gdalutils.AssignSRS(""))
	case srs != "":
		opts = append(opts, gdalutils.AssignSRS(srs))
	}
	if ullr != nil {
		if len(ullr) != 4 {
			return nil, fmt.Errorf("--a_ullr expects 4 values, got %d", len(ullr))
		}
		opts = append(opts, gdalutils.AssignBounds(ullr[0], ullr[1], ullr[2], ullr[3]))
	}
	if gt != nil {
		if len(gt) != 6 {
			return nil, fmt.Errorf("--a_gt expects 6 values, got %d", len(gt))
		}
		opts = append(opts, gdalutils.AssignGeoTransform([6]float64{gt[0], gt[1], gt[2], gt[3], gt[4], gt[5]}))
	}
	if unsetGT {
		opts = append(opts, gdalutils.UnsetGeoTransform())
	}
	if nodata != "" {
		v, err := strconv.ParseFloat(nodata, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid nodata value %q", nodata)
		}
		opts = append(opts, gdalutils.AssignNoData(v))
	}
	if unsetNoData {
		opts = append(opts, gdalutils.UnsetNoData())
	}
	if scales != nil {
		opts = append(opts, gdalutils.AssignScale(scales...))
	}
	if offsets != nil {
		opts = append(opts, gdalutils.AssignOffset(offsets...))
	}
	if unsetMD {
		opts = append(opts, gdalutils.UnsetMetadata())
	}
	for _, kv := range metadata {
		k, v, err := splitKV(kv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gdalutils.SetMetadataItem(k, v))
	}
	if unsetRPC {
		opts = append(opts, gdalutils.UnsetRPC())
	}
	if stats || approxStats {
		opts = append(opts, gdalutils.ComputeStats(approxStats))
	}
	if setStats != nil {
		if len(setStats) != 4 {
			return nil, fmt.Errorf("--setstats expects min,max,mean,stddev")
		}
		opts = append(opts, gdalutils.SetStats(setStats[0], setStats[1], setStats[2], setStats[3]))
	}
	if unsetStats {
		opts = append(opts, gdalutils.UnsetStats())
	}
	for _, kv := range colorInterps {
		band, name, err := bandKV(kv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gdalutils.AssignColorInterp(band, name))
	}
	for _, kv := range descriptions {
		band, text, err := bandKV(kv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gdalutils.SetDescription(band, text))
	}
	if len(gcps) > 0 {
		parsed, err := parseGCPs(gcps)
		if err != nil {
			return nil, err
		}
		gcpSRS := srs
		if gcpSRS == "none" {
			gcpSRS = ""
		}
		opts = append(opts, gdalutils.AssignGCPs(parsed, gcpSRS))
	}
	return opts, nil
}

func splitKV(kv string) (string, string, error) {
	idx := strings.Index(kv, "=")
	if idx <= 0 {
		return "", "", fmt.Errorf("invalid %q, expecting KEY=VALUE", kv)
	}
	return kv[:idx], kv[idx+1:], nil
}

func bandKV(kv string) (int, string, error) {
	k, v, err := splitKV(kv)
	if err != nil {
		return 0, "", err
	}
	band, err := strconv.Atoi(k)
	if err != nil {
		return 0, "", fmt.Errorf("invalid band %q in %q", k, kv)
	}
	return band, v, nil
}

func parseGCPs(defs []string) ([]godal.GCP, error) {
	ret := make([]godal.GCP, 0, len(defs))
	for i, def := range defs {
		parts := strings.Split(def, ",")
		if len(parts) != 4 && len(parts) != 5 {
			return nil, fmt.Errorf("invalid gcp %q, expecting pixel,line,x,y[,z]", def)
		}
		vals := make([]float64, 5)
		for j, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid gcp %q: %w", def, err)
			}
			vals[j] = v
		}
		ret = append(ret, godal.GCP{
			PszId:      strconv.Itoa(i + 1),
			DfGCPPixel: vals[0],
			DfGCPLine:  vals[1],
			DfGCPX:     vals[2],
			DfGCPY:     vals[3],
			DfGCPZ:     vals[4],
		})
	}
	return ret, nil
}
