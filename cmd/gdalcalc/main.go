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
	inputs     []string
	exprs      []string
	outfile    string
	format     string
	dtype      string
	nodata     string
	hideNoData bool
	allBands   string
	overwrite  bool
	creation   []string
)

var dataTypes = []godal.DataType{godal.Byte, godal.UInt16, godal.Int16, godal.UInt32, godal.Int32,
	godal.Float32, godal.Float64}

func init() {
	flags.Register(calcCommand)
	f := calcCommand.Flags()
	f.StringArrayVarP(&inputs, "input", "i", nil, "input raster NAME=path[:band] (repeatable)")
	f.StringArrayVarP(&exprs, "calc", "c", nil, "expression, one output band per occurrence")
	f.StringVarP(&outfile, "outfile", "o", "", "output file")
	f.StringVar(&format, "format", "GTiff", "output driver")
	f.StringVar(&dtype, "type", "", "output data type (default: the first input's)")
	f.StringVar(&nodata, "NoDataValue", "", "output nodata value")
	f.BoolVar(&hideNoData, "hideNoData", false, "ignore input nodata values")
	f.StringVar(&allBands, "allBands", "", "evaluate the expression on all bands of the named input")
	f.BoolVar(&overwrite, "overwrite", false, "overwrite the output file")
	f.StringArrayVar(&creation, "co", nil, "creation option KEY=VALUE (repeatable)")
	_ = calcCommand.MarkFlagRequired("outfile")
}

func main() {
	cli.Main(calcCommand)
}

var calcCommand = &cobra.Command{
	Use:   "gdalcalc [flags] -i A=in.tif -c 'A*2' -o out.tif",
	Short: "raster calculator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		ins, err := parseInputs(inputs)
		if err != nil {
			return err
		}
		opts := []gdalutils.CalcOption{
			gdalutils.Logger(env.Logger),
			gdalutils.ConfigOption(env.GDALOptions()...),
			gdalutils.OutputFormat(format),
		}
		if dtype != "" {
			dt, err := parseDataType(dtype)
			if err != nil {
				return err
			}
			opts = append(opts, gdalutils.OutputType(dt))
		}
		if nodata != "" {
			v, err := strconv.ParseFloat(nodata, 64)
			if err != nil {
				return fmt.Errorf("invalid nodata value %q", nodata)
			}
			opts = append(opts, gdalutils.NoDataValue(v))
		}
		if hideNoData {
			opts = append(opts, gdalutils.HideNoData())
		}
		if allBands != "" {
			opts = append(opts, gdalutils.AllBands(allBands))
		}
		if overwrite {
			opts = append(opts, gdalutils.Overwrite())
		}
		if len(creation) > 0 {
			opts = append(opts, gdalutils.CreationOption(creation...))
		}
		paths := []string{outfile}
		for _, in := range ins {
			paths = append(paths, in.Path)
		}
		if err := env.RegisterRemote(cmd.Context(), paths...); err != nil {
			return err
		}
		return gdalutils.Calc(outfile, ins, exprs, opts...)
	},
}

// parseInputs parses NAME=path[:band] definitions. The band suffix is only
// recognized when it is numeric so that paths containing colons are kept whole.
func parseInputs(defs []string) ([]gdalutils.CalcInput, error) {
	ret := make([]gdalutils.CalcInput, 0, len(defs))
	for _, def := range defs {
		idx := strings.Index(def, "=")
		if idx <= 0 || idx == len(def)-1 {
			return nil, fmt.Errorf("invalid input %q, expecting NAME=path[:band]", def)
		}
		in := gdalutils.CalcInput{Name: def[:idx], Path: def[idx+1:]}
		if c := strings.LastIndex(in.Path, ":"); c > 0 {
			if b, err := strconv.Atoi(in.Path[c+1:]); err == nil {
				in.Path, in.Band = in.Path[:c], b
			}
		}
		ret = append(ret, in)
	}
	return ret, nil
}

func parseDataType(s string) (godal.DataType, error) {
	for _, dt := range dataTypes {
		if strings.EqualFold(dt.String(), s) {
			return dt, nil
		}
	}
	return godal.Unknown, fmt.Errorf("unsupported data type %q", s)
}
