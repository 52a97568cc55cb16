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

// Command gdalplugin builds a gdal driver plugin (gdal_gcs.so) registering the gs://
// handler in any gdal based program. It is configured through the GODAL_*
// environment variables.
package main

import "C"

import (
	"context"
	"os"
	"strings"

	"github.com/airbusgeo/gdalutils/internal/config"
	"github.com/airbusgeo/gdalutils/internal/log"
	"github.com/airbusgeo/gdalutils/remote"
)

// EnvVerbose enables the block cache debug logs when set to a true value
const EnvVerbose = "GODAL_LOG"

func verbose() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvVerbose))) {
	case "", "0", "no", "false":
		return false
	default:
		return true
	}
}

func pluginOptions(cfg config.Config, verbose bool) []remote.Option {
	opts := []remote.Option{
		remote.BlockSize(cfg.Remote.BlockSize),
		remote.NumCachedBlocks(cfg.Remote.NumBlocks),
		remote.Anonymous(cfg.Remote.Anonymous),
		remote.Verbose(verbose),
	}
	if cfg.Remote.BillingProject != "" {
		opts = append(opts, remote.BillingProject(cfg.Remote.BillingProject))
	}
	return opts
}

//export GDALRegister_gcs
func GDALRegister_gcs() {
	l, err := log.Init(verbose(), false)
	if err != nil {
		return
	}
	cfg, err := config.Load("")
	if err != nil {
		l.Sugar().Errorf("failed to load gcs handler configuration: %v", err)
		return
	}
	if err := remote.Register(context.Background(), pluginOptions(cfg, verbose())...); err != nil {
		l.Sugar().Errorf("failed to register gcs handler: %v", err)
	}
}

func main() {}
