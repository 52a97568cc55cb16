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

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGCPs(t *testing.T) {
	gcps, err := parseGCPs([]string{"0,0,100,200", "10, 20, 110, 180, 5"})
	require.NoError(t, err)
	assert.Equal(t, []godal.GCP{
		{PszId: "1", DfGCPX: 100, DfGCPY: 200},
		{PszId: "2", DfGCPPixel: 10, DfGCPLine: 20, DfGCPX: 110, DfGCPY: 180, DfGCPZ: 5},
	}, gcps)

	_, err = parseGCPs([]string{"1,2,3"})
	assert.Error(t, err)
	_, err = parseGCPs([]string{"1,2,3,x"})
	assert.Error(t, err)
}

func TestBandKV(t *testing.T) {
	b, v, err := bandKV("2=alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, b)
	assert.Equal(t, "alpha", v)

	_, _, err = bandKV("x=alpha")
	assert.Error(t, err)
	_, _, err = bandKV("=alpha")
	assert.Error(t, err)

	k, v, err := splitKV("A=B=C")
	require.NoError(t, err)
	assert.Equal(t, "A", k)
	assert.Equal(t, "B=C", v)
}
