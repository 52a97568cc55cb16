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
	"io"

	"github.com/airbusgeo/gdalutils"
	"github.com/airbusgeo/gdalutils/internal/cli"
	"github.com/airbusgeo/gdalutils/remote"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var outfile string
var tmpdir string
var overviews bool
var levels []int
var resampling string

func init() {
	flags.Register(cogCommand)
	cogCommand.Flags().StringVar(&tmpdir, "tmp", ".", "directory to use for temp file")
	cogCommand.Flags().BoolVar(&overviews, "ovr", true, "compute overviews")
	cogCommand.Flags().IntSliceVar(&levels, "levels", nil, "overview levels (default: halve until the block size is reached)")
	cogCommand.Flags().StringVarP(&resampling, "resampling", "r", "average", "overview resampling algorithm")
	cogCommand.Flags().StringVarP(&outfile, "out", "o", "out-cog.tif", "output cog name")
}

func main() {
	cli.Main(cogCommand)
}

var cogCommand = &cobra.Command{
	Use:   "cogify [flags] -- infile [gdal switches]*",
	Short: "convert a generic tiff to COG",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		infile := args[0]
		switches := args[1:]
		if len(switches) == 0 {
			switches = gdalutils.DefaultCOGSwitches
		}
		alg, err := gdalutils.ParseResampling(resampling)
		if err != nil {
			return err
		}
		if err := env.RegisterRemote(ctx, infile); err != nil {
			return err
		}
		opts := []gdalutils.CogifyOption{
			gdalutils.Logger(env.Logger),
			gdalutils.ConfigOption(env.GDALOptions()...),
			gdalutils.TempDir(tmpdir),
			gdalutils.OverviewResampling(alg),
		}
		if !overviews {
			opts = append(opts, gdalutils.NoOverviews())
		} else if len(levels) > 0 {
			opts = append(opts, gdalutils.OverviewLevels(levels...))
		}

		out, err := openOutput(cmd, env)
		if err != nil {
			return err
		}
		if err := gdalutils.Cogify(ctx, infile, out, switches, opts...); err != nil {
			out.Close()
			return remote.Describe(infile, err)
		}
		if err := out.Close(); err != nil {
			return remote.Describe(outfile, fmt.Errorf("close %s: %w", outfile, err))
		}
		env.Logger.Sugar().Infof("wrote %s", outfile)
		return nil
	},
}

func openOutput(cmd *cobra.Command, env *cli.Env) (io.WriteCloser, error) {
	if !remote.IsRemote(outfile) {
		return remote.NewWriter(cmd.Context(), nil, outfile)
	}
	cl, err := remote.NewClient(cmd.Context(), env.Config.Remote.Anonymous)
	if err != nil {
		return nil, err
	}
	return remote.NewWriter(cmd.Context(), cl, outfile)
}
