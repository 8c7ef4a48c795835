// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConf = `
[log]
level = "info"
path = "./logs"

[sgb]
name = "p2"
labelHolder = "p1"
    [sgb.trainer]
    maxDepth = 3
    gamma = 0.5
    scheme = "plain"

    [[sgb.parties]]
    name = "p1"
    address = "127.0.0.1:9001"
    labels = "y.npy"

    [[sgb.parties]]
    name = "p2"
    address = "127.0.0.1:9002"
`

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConf), 0644))
	require.NoError(t, InitConfig(path))

	require.Equal(t, "info", GetLogConf().Level)

	conf := GetSgbConf()
	require.Equal(t, "p2", conf.Name)
	require.Equal(t, 30, conf.RpcTimeout)
	require.Equal(t, 3, conf.Trainer.MaxDepth)
	require.Equal(t, 0.5, conf.Trainer.Gamma)
	require.Equal(t, 1.0, conf.Trainer.Lambda)
	require.Equal(t, "plain", conf.Trainer.Scheme)
	require.Len(t, conf.Parties, 2)

	p, err := conf.Party("p1")
	require.NoError(t, err)
	require.Equal(t, "y.npy", p.Labels)
	_, err = conf.Party("p3")
	require.Error(t, err)
}

func TestInitConfigMissingSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0644))
	require.Error(t, InitConfig(path))
}
