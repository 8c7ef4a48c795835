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

package tree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// node 0 is split by a on feature 0, node 2 by b on feature 1
func twoPartyTree(t *testing.T) *DistributedTree {
	tr := New()
	a := NewSplitTree()
	a.Insert(0, &Split{Feature: 0, Threshold: 2.5})
	b := NewSplitTree()
	b.Insert(2, &Split{Feature: 1, Threshold: 10})
	require.NoError(t, tr.InsertSplitTree("a", a))
	require.NoError(t, tr.InsertSplitTree("b", b))
	require.NoError(t, tr.SetLeaves([]int{1, 5, 6}))
	require.NoError(t, tr.SetLeafWeight("a", []float64{-1, 0.5, 2}))
	return tr
}

func TestPredict(t *testing.T) {
	tr := twoPartyTree(t)
	require.Equal(t, 2, tr.Depth())
	require.Equal(t, []int{2}, tr.SplitTrees["b"].Nodes())

	pred, err := tr.Predict(map[string]mat.Matrix{
		"a": mat.NewDense(3, 1, []float64{1, 3, 3}),
		"b": mat.NewDense(3, 2, []float64{0, 100, 0, 5, 0, 11}),
	})
	require.NoError(t, err)
	require.Equal(t, []float64{-1, 0.5, 2}, pred)

	_, err = tr.Predict(map[string]mat.Matrix{"a": mat.NewDense(1, 1, []float64{3})})
	require.Error(t, err)
}

func TestInsertConflicts(t *testing.T) {
	tr := twoPartyTree(t)
	other := NewSplitTree()
	other.Insert(0, &Split{})
	require.Error(t, tr.InsertSplitTree("c", other))
	require.Error(t, tr.SetLeaves([]int{0}))
	require.Error(t, tr.SetLeafWeight("a", []float64{1}))
}

func TestMarshal(t *testing.T) {
	tr := twoPartyTree(t)
	b, err := tr.Marshal()
	require.NoError(t, err)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, tr, got)
}

func TestUnmarshalIncomplete(t *testing.T) {
	for name, doc := range map[string]string{
		"missing weight": `{"split_trees":{"a":{"splits":{"0":{"feature":0,"threshold":1}}}},
			"owners":{"0":"a"},"leaves":[1,2],"label_holder":"a","weights":[1]}`,
		"missing split tree": `{"split_trees":{},"owners":{"0":"a"},"leaves":[1,2],"label_holder":"a","weights":[1,2]}`,
		"missing child": `{"split_trees":{"a":{"splits":{"0":{"feature":0,"threshold":1}}}},
			"owners":{"0":"a"},"leaves":[1],"label_holder":"a","weights":[1]}`,
		"no root": `{"split_trees":{},"owners":{},"leaves":[],"label_holder":"a","weights":[]}`,
	} {
		_, err := Unmarshal([]byte(doc))
		require.Error(t, err, name)
	}

	// trees built in memory are checked before walking too
	tr := twoPartyTree(t)
	tr.Weights = tr.Weights[:2]
	_, err := tr.Predict(map[string]mat.Matrix{
		"a": mat.NewDense(1, 1, []float64{1}),
		"b": mat.NewDense(1, 2, []float64{0, 0}),
	})
	require.Error(t, err)

	tr = twoPartyTree(t)
	delete(tr.SplitTrees, "b")
	_, err = tr.Predict(map[string]mat.Matrix{"a": mat.NewDense(1, 1, []float64{3})})
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, twoPartyTree(t).Render(&buf, "dot"))
	require.NotZero(t, buf.Len())
	require.Error(t, twoPartyTree(t).Render(&buf, "bmp"))
}
