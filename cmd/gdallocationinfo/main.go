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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/airbusgeo/gdalutils"
	"github.com/airbusgeo/gdalutils/internal/cli"
	"github.com/airbusgeo/gdalutils/remote"
	"github.com/airbusgeo/godal"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var (
	asXML    bool
	valOnly  bool
	echo     bool
	sep      string
	bands    []int
	overview int
	geoloc   bool
	wgs84    bool
	srcSRS   string
)

func init() {
	f := locationCommand.Flags()
	flags.Register(locationCommand)
	f.BoolVar(&asXML, "xml", false, "xml output")
	f.BoolVar(&valOnly, "valonly", false, "only print the band values")
	f.BoolVar(&echo, "echo", false, "with --valonly, echo the input coordinates before the values")
	f.StringVar(&sep, "field-sep", ",", "field separator used by --echo")
	f.IntSliceVarP(&bands, "band", "b", nil, "1-based band to query (repeatable)")
	f.IntVar(&overview, "overview", 0, "1-based overview level to query")
	f.BoolVar(&geoloc, "geoloc", false, "coordinates are georeferenced in the dataset srs")
	f.BoolVar(&wgs84, "wgs84", false, "coordinates are WGS84 longitude/latitude")
	f.StringVar(&srcSRS, "s_srs", "", "srs of the input coordinates")
}

func main() {
	cli.Main(locationCommand)
}

var locationCommand = &cobra.Command{
	Use:   "gdallocationinfo [flags] srcfile [x y]",
	Short: "report raster values at given locations",
	Long: "Report raster values at given locations. When x and y are not given, " +
		"coordinates are read from stdin as whitespace separated pairs, one per line.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 && len(args) != 3 {
			return fmt.Errorf("expecting srcfile [x y], got %d arguments", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		var pts []gdalutils.Point
		if len(args) == 3 {
			pt, err := parsePoint(args[1], args[2])
			if err != nil {
				return err
			}
			pts = append(pts, pt)
		} else {
			if pts, err = readPoints(cmd.InOrStdin()); err != nil {
				return err
			}
		}
		if err := env.RegisterRemote(cmd.Context(), args[0]); err != nil {
			return err
		}
		ds, err := godal.Open(args[0], godal.RasterOnly(), godal.ConfigOption(env.GDALOptions()...),
			godal.ErrLogger(gdalutils.ErrorHandler(env.Logger)))
		if err != nil {
			return remote.Describe(args[0], fmt.Errorf("open %s: %w", args[0], err))
		}
		defer ds.Close()

		opts := []gdalutils.LocationOption{gdalutils.Logger(env.Logger)}
		switch {
		case srcSRS != "":
			opts = append(opts, gdalutils.InputSRS(srcSRS))
		case wgs84:
			opts = append(opts, gdalutils.WGS84())
		case geoloc:
			opts = append(opts, gdalutils.Georef())
		}
		if len(bands) > 0 {
			opts = append(opts, gdalutils.Bands(bands...))
		}
		if overview > 0 {
			opts = append(opts, gdalutils.Overview(overview))
		}
		locs, err := gdalutils.LocationInfo(ds, pts, opts...)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case asXML:
			err = gdalutils.WriteLocationXML(out, locs)
		case valOnly:
			err = gdalutils.WriteLocationValues(out, locs, echo, sep)
		default:
			err = gdalutils.WriteLocationText(out, locs)
		}
		if err != nil {
			return err
		}
		if gdalutils.AnyOffFile(locs) != nil {
			return &cli.ExitError{Code: 1}
		}
		return nil
	},
}

func parsePoint(xs, ys string) (gdalutils.Point, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return gdalutils.Point{}, fmt.Errorf("invalid x coordinate %q", xs)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return gdalutils.Point{}, fmt.Errorf("invalid y coordinate %q", ys)
	}
	return gdalutils.Point{X: x, Y: y}, nil
}

// readPoints reads "x y" lines, ignoring empty ones
func readPoints(r io.Reader) ([]gdalutils.Point, error) {
	var pts []gdalutils.Point
	sc := bufio.NewScanner(r)
	ln := 0
	for sc.Scan() {
		ln++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expecting x y", ln)
		}
		pt, err := parsePoint(fields[0], fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln, err)
		}
		pts = append(pts, pt)
	}
	return pts, sc.Err()
}
