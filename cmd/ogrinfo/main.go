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
	"github.com/airbusgeo/godal"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var (
	summary  bool
	asJSON   bool
	sql      string
	where    string
	spat     []float64
	limit    int
	geometry string
)

var geometryModes = map[string]gdalutils.GeometryMode{
	"yes":     gdalutils.GeomFull,
	"summary": gdalutils.GeomSummary,
	"no":      gdalutils.GeomNone,
}

func init() {
	flags.Register(infoCommand)
	f := infoCommand.Flags()
	f.BoolVar(&summary, "so", false, "summary only, do not list features")
	f.BoolVar(&asJSON, "json", false, "json output")
	f.StringVar(&sql, "sql", "", "sql statement to execute, its result set is reported")
	f.StringVar(&where, "where", "", "attribute filter")
	f.Float64SliceVar(&spat, "spat", nil, "spatial filter xmin,ymin,xmax,ymax")
	f.IntVar(&limit, "limit", 0, "maximum number of features to list per layer")
	f.StringVar(&geometry, "geom", "yes", "geometry output: yes, summary or no")
}

func main() {
	cli.Main(infoCommand)
}

var infoCommand = &cobra.Command{
	Use:   "ogrinfo [flags] datasource [layer]*",
	Short: "list information about a vector datasource",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		mode, ok := geometryModes[geometry]
		if !ok {
			return fmt.Errorf("invalid --geom %q, expecting yes, summary or no", geometry)
		}
		opts := []gdalutils.VectorInfoOption{gdalutils.Logger(env.Logger), gdalutils.GeometryOutput(mode)}
		if !summary {
			opts = append(opts, gdalutils.Features())
		}
		if len(args) > 1 {
			opts = append(opts, gdalutils.Layers(args[1:]...))
		}
		if sql != "" {
			opts = append(opts, gdalutils.SQL(sql))
		}
		if where != "" {
			opts = append(opts, gdalutils.Where(where))
		}
		if spat != nil {
			if len(spat) != 4 {
				return fmt.Errorf("--spat expects xmin,ymin,xmax,ymax")
			}
			opts = append(opts, gdalutils.SpatialFilter(spat[0], spat[1], spat[2], spat[3]))
		}
		if limit > 0 {
			opts = append(opts, gdalutils.Limit(limit))
		}
		if err := env.RegisterRemote(cmd.Context(), args[0]); err != nil {
			return err
		}
		ds, err := godal.Open(args[0], godal.VectorOnly(), godal.ConfigOption(env.GDALOptions()...),
			godal.ErrLogger(gdalutils.ErrorHandler(env.Logger)))
		if err != nil {
			return remote.Describe(args[0], fmt.Errorf("open %s: %w", args[0], err))
		}
		defer ds.Close()
		rep, err := gdalutils.VectorInfo(ds, opts...)
		if err != nil {
			return err
		}
		if asJSON {
			return gdalutils.WriteVectorJSON(cmd.OutOrStdout(), rep)
		}
		return gdalutils.WriteVectorText(cmd.OutOrStdout(), rep)
	},
}
