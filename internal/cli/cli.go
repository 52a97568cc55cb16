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

// Package cli holds the flags and setup shared by the gdalutils commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/airbusgeo/gdalutils/internal/config"
	"github.com/airbusgeo/gdalutils/internal/log"
	"github.com/airbusgeo/gdalutils/remote"
	"github.com/airbusgeo/godal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Flags are the persistent flags common to all commands
type Flags struct {
	Verbose        bool
	LogJSON        bool
	ConfigFile     string
	BlockSize      string
	NumBlocks      int
	BillingProject string
	Anonymous      bool
	GDALConfig     []string
}

// Register adds the common flags to cmd
func (f *Flags) Register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&f.Verbose, "verbose", "v", false, "log debug messages")
	pf.BoolVar(&f.LogJSON, "log-json", false, "log in json")
	pf.StringVar(&f.ConfigFile, "config", "", "toml configuration file")
	pf.StringVarP(&f.BlockSize, "gs.blocksize", "b", "512k", "gs:// block size")
	pf.IntVarP(&f.NumBlocks, "gs.numblocks", "n", 512, "number of gs:// blocks to cache")
	pf.StringVar(&f.BillingProject, "gs.billing-project", "", "project billed for requester-pays buckets")
	pf.BoolVar(&f.Anonymous, "gs.anonymous", false, "access gs:// without credentials")
	pf.StringArrayVar(&f.GDALConfig, "gdal-config", nil, "gdal configuration option KEY=VALUE (repeatable)")
}

// Env is the resolved environment of a command run
type Env struct {
	Config config.Config
	Logger *zap.Logger
	flags  *Flags
}

// Setup loads the configuration file, applies explicitly set flags over it, installs
// the logger and registers the gdal drivers.
func (f *Flags) Setup(cmd *cobra.Command) (*Env, error) {
	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		return nil, err
	}
	changed := func(name string) bool {
		fl := cmd.Flag(name)
		return fl != nil && fl.Changed
	}
	if changed("gs.blocksize") {
		cfg.Remote.BlockSize = f.BlockSize
	}
	if changed("gs.numblocks") {
		cfg.Remote.NumBlocks = f.NumBlocks
	}
	if changed("gs.billing-project") {
		cfg.Remote.BillingProject = f.BillingProject
	}
	if changed("gs.anonymous") {
		cfg.Remote.Anonymous = f.Anonymous
	}
	for _, kv := range f.GDALConfig {
		if err := cfg.SetGDALOption(kv); err != nil {
			return nil, err
		}
	}
	if _, err := remote.ParseBlockSize(cfg.Remote.BlockSize); err != nil {
		return nil, err
	}
	l, err := log.Init(f.Verbose, f.LogJSON)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	godal.RegisterAll()
	return &Env{Config: cfg, Logger: l, flags: f}, nil
}

// RegisterRemote registers the gs:// handler if any of paths is a gs:// uri
func (e *Env) RegisterRemote(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		if remote.IsRemote(p) {
			return remote.Register(ctx, e.RemoteOptions()...)
		}
	}
	return nil
}

// RemoteOptions returns the remote.Register options matching the configuration
func (e *Env) RemoteOptions() []remote.Option {
	r := e.Config.Remote
	opts := []remote.Option{
		remote.BlockSize(r.BlockSize),
		remote.NumCachedBlocks(r.NumBlocks),
		remote.Anonymous(r.Anonymous),
		remote.Verbose(e.flags != nil && e.flags.Verbose),
	}
	if r.BillingProject != "" {
		opts = append(opts, remote.BillingProject(r.BillingProject))
	}
	return opts
}

// GDALOptions returns the configured gdal KEY=VALUE options
func (e *Env) GDALOptions() []string {
	return e.Config.GDALOptions()
}

// ExitError makes Main exit with Code, printing Err if not nil
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Main executes cmd and exits the process with a non zero status on error
func Main(cmd *cobra.Command) {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	log.Sync()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fmt.Fprintln(os.Stderr, ee.Err)
		}
		return ee.Code
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}
