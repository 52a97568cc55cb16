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
	"github.com/airbusgeo/godal"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var (
	inputDS, inputLyr   string
	methodDS, methodLyr string
	outputDS, outputLyr string
	format              string
	inputPrefix         string
	methodPrefix        string
	inputFields         []string
	methodFields        []string
	skipFailures        bool
	promoteToMulti      bool
	keepLowerDim        bool
	progress            bool
)

func init() {
	flags.Register(algebraCommand)
	f := algebraCommand.Flags()
	f.StringVar(&inputDS, "input_ds", "", "input datasource")
	f.StringVar(&inputLyr, "input_lyr", "", "input layer name (default: first layer)")
	f.StringVar(&methodDS, "method_ds", "", "method datasource")
	f.StringVar(&methodLyr, "method_lyr", "", "method layer name (default: first layer)")
	f.StringVar(&outputDS, "output_ds", "", "output datasource, created")
	f.StringVar(&outputLyr, "output_lyr", "", "output layer name (default: the method name)")
	f.StringVarP(&format, "format", "f", "GPKG", "output driver")
	f.StringVar(&inputPrefix, "input_prefix", "input_", "prefix of the fields copied from the input layer")
	f.StringVar(&methodPrefix, "method_prefix", "method_", "prefix of the fields copied from the method layer")
	f.StringSliceVar(&inputFields, "input_fields", nil, "input fields to copy (default: all)")
	f.StringSliceVar(&methodFields, "method_fields", nil, "method fields to copy (default: all)")
	f.BoolVar(&skipFailures, "skipfailures", false, "skip features whose geometry operations fail")
	f.BoolVar(&promoteToMulti, "promote_to_multi", false, "write multi part geometries")
	f.BoolVar(&keepLowerDim, "keep_lower_dim", true, "keep results of lower dimension than the input")
	f.BoolVar(&progress, "progress", false, "report progress on stderr")
	for _, req := range []string{"input_ds", "method_ds", "output_ds"} {
		_ = algebraCommand.MarkFlagRequired(req)
	}
}

func main() {
	cli.Main(algebraCommand)
}

var algebraCommand = &cobra.Command{
	Use:   "ogrlayeralgebra [flags] Union|Intersection|SymDifference|Identity|Update|Clip|Erase",
	Short: "perform vector layer algebra",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		method, err := gdalutils.ParseMethod(args[0])
		if err != nil {
			return err
		}
		if err := env.RegisterRemote(cmd.Context(), inputDS, methodDS); err != nil {
			return err
		}
		eh := godal.ErrLogger(gdalutils.ErrorHandler(env.Logger))
		cfg := godal.ConfigOption(env.GDALOptions()...)

		ids, err := godal.Open(inputDS, godal.VectorOnly(), cfg, eh)
		if err != nil {
			return remote.Describe(inputDS, fmt.Errorf("open %s: %w", inputDS, err))
		}
		defer ids.Close()
		in, err := pickLayer(ids, inputLyr)
		if err != nil {
			return err
		}
		mds := ids
		if methodDS != inputDS {
			mds, err = godal.Open(methodDS, godal.VectorOnly(), cfg, eh)
			if err != nil {
				return remote.Describe(methodDS, fmt.Errorf("open %s: %w", methodDS, err))
			}
			defer mds.Close()
		}
		ml, err := pickLayer(mds, methodLyr)
		if err != nil {
			return err
		}

		opts := []gdalutils.AlgebraOption{
			gdalutils.Logger(env.Logger),
			gdalutils.InputPrefix(inputPrefix),
			gdalutils.MethodPrefix(methodPrefix),
			gdalutils.KeepLowerDimension(keepLowerDim),
		}
		if cmd.Flag("input_fields").Changed {
			opts = append(opts, gdalutils.InputFields(inputFields...))
		}
		if cmd.Flag("method_fields").Changed {
			opts = append(opts, gdalutils.MethodFields(methodFields...))
		}
		if skipFailures {
			opts = append(opts, gdalutils.SkipFailures())
		}
		if promoteToMulti {
			opts = append(opts, gdalutils.PromoteToMulti())
		}
		if progress {
			opts = append(opts, gdalutils.Progress(progressPrinter(cmd.ErrOrStderr())))
		}

		ods, err := godal.CreateVector(godal.DriverName(format), outputDS, eh)
		if err != nil {
			return fmt.Errorf("create %s: %w", outputDS, err)
		}
		name := outputLyr
		if name == "" {
			name = method.String()
		}
		out, err := gdalutils.PrepareOutput(ods, name, in.SpatialRef(), godal.GTUnknown, method, in, ml, opts...)
		if err != nil {
			ods.Close()
			return err
		}
		n, err := gdalutils.LayerAlgebra(method, in, ml, out, opts...)
		if err != nil {
			ods.Close()
			return err
		}
		if err := ods.Close(eh); err != nil {
			return fmt.Errorf("close %s: %w", outputDS, err)
		}
		env.Logger.Sugar().Infof("wrote %d features to %s", n, outputDS)
		return nil
	},
}

func pickLayer(ds *godal.Dataset, name string) (godal.Layer, error) {
	if name != "" {
		l := ds.LayerByName(name)
		if l == nil {
			return godal.Layer{}, fmt.Errorf("layer %s not found in %s", name, ds.Description())
		}
		return *l, nil
	}
	layers := ds.Layers()
	if len(layers) == 0 {
		return godal.Layer{}, fmt.Errorf("no layer in %s", ds.Description())
	}
	return layers[0], nil
}

// progressPrinter prints the completion percentage every 10%
func progressPrinter(w io.Writer) func(done, total int) {
	lastDecile := -1
	return func(done, total int) {
		if total <= 0 {
			return
		}
		pct := done * 100 / total
		if pct/10 <= lastDecile {
			return
		}
		lastDecile = pct / 10
		fmt.Fprintf(w, "%d%%\n", pct)
	}
}
