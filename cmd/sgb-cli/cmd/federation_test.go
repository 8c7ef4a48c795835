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

package cmd

import (
	"testing"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/cluster"
)

func testConf(name string) *config.SgbConf {
	tc := config.DefaultTrainerConf()
	tc.Scheme = "plain"
	return &config.SgbConf{
		Name:        name,
		LabelHolder: "party1",
		RpcTimeout:  1,
		Trainer:     tc,
		Parties: []*config.PartyConf{
			{Name: "party1", Address: "127.0.0.1:8184", Features: "../../../testdata/party1_features.npy", Labels: "../../../testdata/labels.npy"},
			{Name: "party2", Address: "127.0.0.1:8185", Features: "../../../testdata/party2_features.npy"},
		},
	}
}

func TestOnlyLabelHolderTrains(t *testing.T) {
	_, _, _, err := federation(testConf("party2"))
	require.Error(t, err)
	require.True(t, errorx.Is(err, errcodes.ErrCodeConfig))

	holder, parties, stop, err := federation(testConf("party1"))
	require.NoError(t, err)
	defer stop()
	require.Equal(t, "party1", holder.Name())
	require.Len(t, parties, 2)
	require.Equal(t, holder, parties[0])
	_, ok := parties[1].(*cluster.Client)
	require.True(t, ok)
}
