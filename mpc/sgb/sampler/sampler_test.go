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

package sampler

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
)

func TestNew(t *testing.T) {
	_, err := New(0, 1, 1)
	require.Error(t, err)
	_, err = New(1, 1.5, 1)
	require.Error(t, err)
	_, err = New(0.5, 0.5, 1)
	require.NoError(t, err)
}

func TestGenerateColChoices(t *testing.T) {
	s, err := New(1, 0.5, 7)
	require.NoError(t, err)

	buckets := [][]int{{4, 4, 4, 4}, {2}, {}}
	cols, total := s.GenerateColChoices(buckets)
	require.Len(t, cols[0], 2)
	require.True(t, sort.IntsAreSorted(cols[0]))
	require.Equal(t, []int{0}, cols[1])
	require.Empty(t, cols[2])
	require.Equal(t, 10, total)

	s, _ = New(1, 1, 7)
	cols, total = s.GenerateColChoices(buckets)
	require.Equal(t, []int{0, 1, 2, 3}, cols[0])
	require.Equal(t, 18, total)
}

func TestGenerateRowChoices(t *testing.T) {
	s, _ := New(1, 1, 3)
	require.Nil(t, s.GenerateRowChoices(10))

	a, _ := New(0.3, 1, 3)
	b, _ := New(0.3, 1, 3)
	rows := a.GenerateRowChoices(10)
	require.Len(t, rows, 3)
	require.True(t, sort.IntsAreSorted(rows))
	require.Equal(t, rows, b.GenerateRowChoices(10))

	// a tiny rate still keeps one row
	c, _ := New(0.01, 1, 3)
	require.Len(t, c.GenerateRowChoices(10), 1)
}

func TestApplySampling(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	out := ApplyVectorSampling(v, []int{0, 3})
	require.Equal(t, []float64{1, 4}, out)
	out = ApplyVectorSampling(v, nil)
	out[0] = 9
	require.Equal(t, 1.0, v[0])

	om, err := ordermap.Build(mat.NewDense(4, 2, []float64{1, 1, 2, 2, 3, 3, 4, 4}), 4)
	require.NoError(t, err)
	view, err := ApplyVFedSampling(om, []int{1, 2}, []int{1})
	require.NoError(t, err)
	require.Equal(t, []int{1}, view.Features)
	require.Equal(t, []int{1, 2}, view.Buckets[0])
}
