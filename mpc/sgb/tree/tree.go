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

// Package tree holds a trained tree whose splits are spread over the parties.
//  Node indexes follow heap numbering. Every internal node is owned by exactly one
//  party, which alone knows the feature and threshold of its split; leaf weights
//  are known to the label holder.
package tree

import (
	"encoding/json"
	"sort"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"gonum.org/v1/gonum/mat"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// Split sends a sample left when its value of Feature is <= Threshold
type Split struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
}

// SplitTree is the part of a tree one party knows
type SplitTree struct {
	Splits map[int]*Split `json:"splits"`
}

// NewSplitTree returns an empty SplitTree
func NewSplitTree() *SplitTree {
	return &SplitTree{Splits: make(map[int]*Split)}
}

// Insert records the split of a node
func (s *SplitTree) Insert(node int, sp *Split) {
	s.Splits[node] = sp
}

// Nodes returns the recorded node indexes in ascending order
func (s *SplitTree) Nodes() []int {
	nodes := make([]int, 0, len(s.Splits))
	for n := range s.Splits {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	return nodes
}

// DistributedTree is one tree of the ensemble
type DistributedTree struct {
	SplitTrees  map[string]*SplitTree `json:"split_trees"`
	Owners      map[int]string        `json:"owners"`
	Leaves      []int                 `json:"leaves"`
	LabelHolder string                `json:"label_holder"`
	Weights     []float64             `json:"weights"` // aligned with Leaves
}

// New returns an empty DistributedTree
func New() *DistributedTree {
	return &DistributedTree{
		SplitTrees: make(map[string]*SplitTree),
		Owners:     make(map[int]string),
	}
}

// InsertSplitTree adds the splits a party owns, a node may have only one owner
func (t *DistributedTree) InsertSplitTree(party string, st *SplitTree) error {
	for n := range st.Splits {
		if owner, ok := t.Owners[n]; ok && owner != party {
			return errorx.New(errcodes.ErrCodeInternal, "node %d is split by both %s and %s", n, owner, party)
		}
		t.Owners[n] = party
	}
	t.SplitTrees[party] = st
	return nil
}

// SetLeaves records the leaf indexes of the tree
func (t *DistributedTree) SetLeaves(leaves []int) error {
	for _, l := range leaves {
		if owner, ok := t.Owners[l]; ok {
			return errorx.New(errcodes.ErrCodeInternal, "node %d is both a leaf and split by %s", l, owner)
		}
	}
	t.Leaves = append([]int(nil), leaves...)
	return nil
}

// SetLeafWeight stores the weights computed by the label holder, one per leaf
func (t *DistributedTree) SetLeafWeight(labelHolder string, weights []float64) error {
	if len(weights) != len(t.Leaves) {
		return errorx.New(errcodes.ErrCodeParam, "%d weights for %d leaves", len(weights), len(t.Leaves))
	}
	t.LabelHolder = labelHolder
	t.Weights = append([]float64(nil), weights...)
	return nil
}

// Depth returns the number of split levels on the longest path
func (t *DistributedTree) Depth() int {
	depth := 0
	for _, l := range t.Leaves {
		d := 0
		for n := l; n > 0; n = (n - 1) / 2 {
			d++
		}
		if d > depth {
			depth = d
		}
	}
	return depth
}

// Validate checks the tree can be walked: one weight per leaf, a recorded split for
// every owned node and a leaf or a split below every split
func (t *DistributedTree) Validate() error {
	if len(t.Weights) != len(t.Leaves) {
		return errorx.New(errcodes.ErrCodeParam, "%d weights for %d leaves", len(t.Weights), len(t.Leaves))
	}
	leaves := make(map[int]bool, len(t.Leaves))
	for _, l := range t.Leaves {
		if l < 0 || leaves[l] {
			return errorx.New(errcodes.ErrCodeParam, "bad or repeated leaf %d", l)
		}
		if owner, ok := t.Owners[l]; ok {
			return errorx.New(errcodes.ErrCodeParam, "node %d is both a leaf and split by %s", l, owner)
		}
		leaves[l] = true
	}
	for n, owner := range t.Owners {
		st, ok := t.SplitTrees[owner]
		if !ok || st == nil || st.Splits[n] == nil {
			return errorx.New(errcodes.ErrCodeParam, "split of node %d is missing from party %s", n, owner)
		}
		if n < 0 || st.Splits[n].Feature < 0 {
			return errorx.New(errcodes.ErrCodeParam, "bad split of node %d", n)
		}
		for _, c := range []int{2*n + 1, 2*n + 2} {
			if _, split := t.Owners[c]; !split && !leaves[c] {
				return errorx.New(errcodes.ErrCodeParam, "child %d of node %d is neither a leaf nor split", c, n)
			}
		}
	}
	for party, st := range t.SplitTrees {
		if st == nil {
			return errorx.New(errcodes.ErrCodeParam, "empty split tree of party %s", party)
		}
		for n := range st.Splits {
			if t.Owners[n] != party {
				return errorx.New(errcodes.ErrCodeParam, "node %d of party %s has owner %q", n, party, t.Owners[n])
			}
		}
	}
	if _, split := t.Owners[0]; !split && !leaves[0] {
		return errorx.New(errcodes.ErrCodeParam, "tree has no root")
	}
	return nil
}

// Predict walks every row down the tree, features holds each owner's columns
// with rows aligned across parties
func (t *DistributedTree) Predict(features map[string]mat.Matrix) ([]float64, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	weights := make(map[int]float64, len(t.Leaves))
	for i, l := range t.Leaves {
		weights[l] = t.Weights[i]
	}
	rows := -1
	for _, x := range features {
		r, _ := x.Dims()
		if rows >= 0 && r != rows {
			return nil, errorx.New(errcodes.ErrCodeParam, "parties disagree on the number of rows")
		}
		rows = r
	}
	if rows < 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "no features to predict on")
	}

	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		n := 0
		for {
			if w, ok := weights[n]; ok {
				out[r] = w
				break
			}
			owner, ok := t.Owners[n]
			if !ok {
				return nil, errorx.New(errcodes.ErrCodeInternal, "node %d is neither a leaf nor split", n)
			}
			x, ok := features[owner]
			if !ok {
				return nil, errorx.New(errcodes.ErrCodeParam, "missing features of party %s", owner)
			}
			sp := t.SplitTrees[owner].Splits[n]
			if _, cols := x.Dims(); sp.Feature >= cols {
				return nil, errorx.New(errcodes.ErrCodeParam, "party %s has no feature %d", owner, sp.Feature)
			}
			if x.At(r, sp.Feature) <= sp.Threshold {
				n = 2*n + 1
			} else {
				n = 2*n + 2
			}
		}
	}
	return out, nil
}

// Marshal encodes the tree as json
func (t *DistributedTree) Marshal() ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to marshal tree")
	}
	return b, nil
}

// Unmarshal decodes a tree encoded by Marshal and validates it
func Unmarshal(b []byte) (*DistributedTree, error) {
	t := New()
	if err := json.Unmarshal(b, t); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to unmarshal tree")
	}
	if err := t.Validate(); err != nil {
		return nil, errorx.Wrap(err, "invalid tree")
	}
	return t, nil
}
