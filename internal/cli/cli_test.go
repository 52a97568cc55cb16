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

package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSetup(t *testing.T, args ...string) (*Env, error) {
	t.Helper()
	f := &Flags{}
	var env *Env
	var err error
	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err = f.Setup(cmd)
			return nil
		},
	}
	f.Register(cmd)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return env, err
}

func TestSetupPrecedence(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
[gdal]
GDAL_CACHEMAX = "64"

[remote]
blocksize = "1M"
numblocks = 10
`), 0644))

	env, err := runSetup(t, "--config", cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "1M", env.Config.Remote.BlockSize)
	assert.Equal(t, 10, env.Config.Remote.NumBlocks)
	assert.Equal(t, []string{"GDAL_CACHEMAX=64"}, env.GDALOptions())
	assert.Len(t, env.RemoteOptions(), 4)

	env, err = runSetup(t, "--config", cfgFile, "-n", "20", "--gdal-config", "CPL_DEBUG=ON",
		"--gs.billing-project", "proj")
	require.NoError(t, err)
	assert.Equal(t, "1M", env.Config.Remote.BlockSize)
	assert.Equal(t, 20, env.Config.Remote.NumBlocks)
	assert.Equal(t, "proj", env.Config.Remote.BillingProject)
	assert.Equal(t, []string{"CPL_DEBUG=ON", "GDAL_CACHEMAX=64"}, env.GDALOptions())
	assert.Len(t, env.RemoteOptions(), 5)

	_, err = runSetup(t, "--gdal-config", "novalue")
	assert.Error(t, err)
	_, err = runSetup(t, "-b", "lots")
	assert.Error(t, err)
	_, err = runSetup(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestRegisterRemoteLocal(t *testing.T) {
	env, err := runSetup(t)
	require.NoError(t, err)
	// no gs:// path, nothing to register
	assert.NoError(t, env.RegisterRemote(context.Background(), "a.tif", "/vsimem/b.tif"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 3, exitCode(&ExitError{Code: 3}))
	err := &ExitError{Code: 2, Err: errors.New("bad")}
	assert.Equal(t, 2, exitCode(err))
	assert.Equal(t, "bad", err.Error())
	assert.Equal(t, "exit status 3", (&ExitError{Code: 3}).Error())
}
