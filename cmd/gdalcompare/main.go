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

	"github.com/airbusgeo/gdalutils"
	"github.com/airbusgeo/gdalutils/internal/cli"
	"github.com/airbusgeo/gdalutils/remote"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var skip []string

var checkNames = map[string]gdalutils.Check{
	"geotransform": gdalutils.GeoTransformCheck,
	"srs":          gdalutils.SRSCheck,
	"metadata":     gdalutils.MetadataCheck,
	"rpc":          gdalutils.RPCCheck,
	"geolocation":  gdalutils.GeolocationCheck,
	"overviews":    gdalutils.OverviewsCheck,
	"binary":       gdalutils.BinaryCheck,
}

func init() {
	flags.Register(compareCommand)
	compareCommand.Flags().StringSliceVar(&skip, "skip", nil,
		"checks to skip: geotransform, srs, metadata, rpc, geolocation, overviews, binary")
}

func main() {
	cli.Main(compareCommand)
}

var compareCommand = &cobra.Command{
	Use:   "gdalcompare [flags] golden_file new_file",
	Short: "compare two rasters, the exit status is the number of differences",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		var checks []gdalutils.Check
		for _, s := range skip {
			c, ok := checkNames[s]
			if !ok {
				return fmt.Errorf("unknown check %q", s)
			}
			checks = append(checks, c)
		}
		if err := env.RegisterRemote(cmd.Context(), args...); err != nil {
			return err
		}
		rep, err := gdalutils.CompareFiles(args[0], args[1], gdalutils.Skip(checks...), gdalutils.Logger(env.Logger),
			gdalutils.ConfigOption(env.GDALOptions()...))
		if err != nil {
			return remote.Describe(args[0]+" "+args[1], err)
		}
		out := cmd.OutOrStdout()
		for _, d := range rep.Differences {
			fmt.Fprintln(out, d)
		}
		fmt.Fprintf(out, "Differences Found: %d\n", rep.Count())
		if rep.Count() > 0 {
			return &cli.ExitError{Code: rep.Count()}
		}
		return nil
	},
}
