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
var strict bool
var quiet bool

func init() {
	flags.Register(validateCommand)
	validateCommand.Flags().BoolVar(&strict, "strict", false, "report warnings as errors")
	validateCommand.Flags().BoolVarP(&quiet, "quiet", "q", false, "only set the exit status")
}

func main() {
	cli.Main(validateCommand)
}

var validateCommand = &cobra.Command{
	Use:   "validatecog [flags] file",
	Short: "check that a file is a valid cloud optimized geotiff",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		path := args[0]
		if err := env.RegisterRemote(cmd.Context(), path); err != nil {
			return err
		}
		opts := []gdalutils.ValidateOption{gdalutils.Logger(env.Logger), gdalutils.ConfigOption(env.GDALOptions()...)}
		if strict {
			opts = append(opts, gdalutils.Strict())
		}
		rep, err := gdalutils.ValidateCOG(path, opts...)
		if err != nil {
			return remote.Describe(path, err)
		}
		out := cmd.OutOrStdout()
		if !quiet {
			for _, w := range rep.Warnings {
				fmt.Fprintf(out, "WARNING: %s\n", w)
			}
			for _, e := range rep.Errors {
				fmt.Fprintf(out, "ERROR: %s\n", e)
			}
		}
		if !rep.Valid() {
			if !quiet {
				fmt.Fprintf(out, "%s is NOT a valid cloud optimized GeoTIFF\n", path)
			}
			return &cli.ExitError{Code: 1}
		}
		if !quiet {
			fmt.Fprintf(out, "%s is a valid cloud optimized GeoTIFF\n", path)
		}
		return nil
	},
}
