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

package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReadFeatures(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "x.npy")
	f, err := os.Create(name)
	require.NoError(t, err)
	want := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, npyio.Write(f, want))
	require.NoError(t, f.Close())

	got, err := ReadFeatures(name)
	require.NoError(t, err)
	require.True(t, mat.Equal(want, got))

	_, err = ReadFeatures(filepath.Join(dir, "missing.npy"))
	require.Error(t, err)

	vec := filepath.Join(dir, "v.npy")
	require.NoError(t, WriteVector(vec, []float64{1, 2}))
	_, err = ReadFeatures(vec)
	require.Error(t, err)
}

func TestLabels(t *testing.T) {
	name := filepath.Join(t.TempDir(), "y.npy")
	require.NoError(t, WriteVector(name, []float64{0.5, -1, 3}))

	y, err := ReadLabels(name)
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, -1, 3}, y)
}
