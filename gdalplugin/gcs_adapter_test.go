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
	"testing"

	"github.com/airbusgeo/gdalutils/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerbose(t *testing.T) {
	t.Setenv(EnvVerbose, "")
	assert.False(t, verbose())
	t.Setenv(EnvVerbose, "no")
	assert.False(t, verbose())
	t.Setenv(EnvVerbose, "1")
	assert.True(t, verbose())
}

func TestPluginOptions(t *testing.T) {
	t.Setenv(config.EnvBlockSize, "1M")
	t.Setenv(config.EnvBillingProject, "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "1M", cfg.Remote.BlockSize)
	assert.Len(t, pluginOptions(cfg, false), 4)

	cfg.Remote.BillingProject = "proj"
	assert.Len(t, pluginOptions(cfg, true), 5)
}
