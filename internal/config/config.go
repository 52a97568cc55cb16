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

// Package config loads the optional toml configuration shared by the gdalutils
// commands. Values are resolved file < environment < flags.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variables honored by Load. The names are shared with the gdal plugin.
const (
	EnvBlockSize      = "GODAL_BLOCKSIZE"
	EnvNumBlocks      = "GODAL_NUMBLOCKS"
	EnvBillingProject = "GODAL_BILLING_PROJECT"
	EnvAnonymous      = "GODAL_GS_ANONYMOUS"
)

// Remote configures access to gs:// objects
type Remote struct {
	BlockSize      string `toml:"blocksize"`
	NumBlocks      int    `toml:"numblocks"`
	BillingProject string `toml:"billing_project"`
	Anonymous      bool   `toml:"anonymous"`
}

// Config is the decoded configuration file
type Config struct {
	// GDAL holds gdal configuration options (e.g. GDAL_CACHEMAX = "512")
	GDAL   map[string]string `toml:"gdal"`
	Remote Remote            `toml:"remote"`
	// Drivers holds per driver documentation overrides, keyed by driver short name
	Drivers map[string]DriverOverride `toml:"drivers"`
}

// DriverOverride carries driver properties that gdal does not expose through metadata
type DriverOverride struct {
	Georeferencing bool     `toml:"georeferencing"`
	BuiltIn        bool     `toml:"built_in"`
	Deprecated     bool     `toml:"deprecated"`
	Dependencies   []string `toml:"dependencies"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		GDAL: map[string]string{},
		Remote: Remote{
			BlockSize: "512k",
			NumBlocks: 512,
		},
		Drivers: map[string]DriverOverride{},
	}
}

// Load reads the toml file at path (if not empty) over the defaults and applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if cfg.GDAL == nil {
		cfg.GDAL = map[string]string{}
	}
	if cfg.Drivers == nil {
		cfg.Drivers = map[string]DriverOverride{}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	if s := strings.TrimSpace(os.Getenv(EnvBlockSize)); s != "" {
		cfg.Remote.BlockSize = s
	}
	if s := strings.TrimSpace(os.Getenv(EnvNumBlocks)); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("failed to parse %s %q", EnvNumBlocks, s)
		}
		cfg.Remote.NumBlocks = n
	}
	if s := strings.TrimSpace(os.Getenv(EnvBillingProject)); s != "" {
		cfg.Remote.BillingProject = s
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvAnonymous))) {
	case "":
	case "0", "no", "false":
		cfg.Remote.Anonymous = false
	default:
		cfg.Remote.Anonymous = true
	}
	return nil
}

// SetGDALOption records a KEY=VALUE gdal configuration option
func (cfg *Config) SetGDALOption(keyval string) error {
	idx := strings.Index(keyval, "=")
	if idx <= 0 {
		return fmt.Errorf("invalid gdal config option %q, expecting KEY=VALUE", keyval)
	}
	cfg.GDAL[keyval[:idx]] = keyval[idx+1:]
	return nil
}

// GDALOptions returns the gdal configuration as a sorted KEY=VALUE list, suitable
// for godal.ConfigOption
func (cfg Config) GDALOptions() []string {
	opts := make([]string, 0, len(cfg.GDAL))
	for k, v := range cfg.GDAL {
		opts = append(opts, k+"="+v)
	}
	sort.Strings(opts)
	return opts
}
