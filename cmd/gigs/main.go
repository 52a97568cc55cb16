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
	"os"

	"github.com/airbusgeo/gdalutils/gigs"
	"github.com/airbusgeo/gdalutils/internal/cli"
	"github.com/spf13/cobra"
)

var flags cli.Flags
var concurrency int
var maxFailures int

func init() {
	flags.Register(gigsCommand)
	gigsCommand.Flags().IntVarP(&concurrency, "jobs", "j", 4, "number of test files run concurrently")
	gigsCommand.Flags().IntVar(&maxFailures, "max-failures", 10, "maximum number of failing points reported per test")
}

func main() {
	cli.Main(gigsCommand)
}

var gigsCommand = &cobra.Command{
	Use:   "gigs [flags] file_or_dir...",
	Short: "run GIGS coordinate transformation test files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := flags.Setup(cmd)
		if err != nil {
			return err
		}
		var cases []*gigs.Case
		for _, arg := range args {
			st, err := os.Stat(arg)
			if err != nil {
				return err
			}
			if st.IsDir() {
				cs, err := gigs.LoadDir(arg)
				if err != nil {
					return err
				}
				cases = append(cases, cs...)
				continue
			}
			c, err := gigs.Load(arg)
			if err != nil {
				return err
			}
			cases = append(cases, c)
		}
		if len(cases) == 0 {
			return fmt.Errorf("no test file found")
		}
		results, err := gigs.Run(cmd.Context(), cases,
			gigs.Concurrency(concurrency), gigs.Logger(env.Logger), gigs.MaxFailures(maxFailures))
		if err != nil {
			return err
		}
		if err := gigs.WriteResults(cmd.OutOrStdout(), results, flags.Verbose); err != nil {
			return err
		}
		if gigs.Summarize(results).Failed > 0 {
			return &cli.ExitError{Code: 1}
		}
		return nil
	},
}
