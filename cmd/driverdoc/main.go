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
	"os"

	"github.com/airbusgeo/gdalutils"
	"github.com/airbusgeo/gdalutils/driverdoc"
	"github.com/airbusgeo/gdalutils/internal/cli"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var format string
var outfile string

func init() {
	flags.Register(docCommand)
	docCommand.Flags().StringVar(&format, "format", "rst", "output format: rst or md")
	docCommand.Flags().StringVarP(&outfile, "out", "o", "", "output file (default: stdout)")
}

func main() {
	cli.Main(docCommand)
}

var docCommand = &cobra.Command{
	Use:   "driverdoc [flags] [driver]*",
	Short: "document the capabilities of gdal drivers",
	Long: "Document the capabilities of the given gdal drivers, or of a default list of " +
		"common drivers. Properties gdal does not expose are read from the [drivers] " +
		"section of the configuration file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		f, err := driverdoc.ParseFormat(format)
		if err != nil {
			return err
		}
		caps := gdalutils.DriverCapabilities(args...)
		driverdoc.ApplyOverrides(caps, env.Config.Drivers)
		for _, c := range caps {
			if !c.Found {
				env.Logger.Sugar().Warnf("driver %s not available in this gdal build", c.Name)
			}
		}
		if outfile == "" {
			return driverdoc.Render(cmd.OutOrStdout(), caps, f)
		}
		out, err := os.Create(outfile)
		if err != nil {
			return err
		}
		if err := driverdoc.Render(out, caps, f); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	},
}
