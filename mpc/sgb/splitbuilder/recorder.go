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

package splitbuilder

import (
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

// Feature addresses one bucket of a party's sampled order map, Pos is -1 when the
// party does not own the node's split
type Feature struct {
	Pos    int
	Bucket int
}

// GetSplitFeatureListWise resolves unshuffled bucket ids of the party's segment
func GetSplitFeatureListWise(view *ordermap.View, buckets []int) ([]Feature, error) {
	out := make([]Feature, len(buckets))
	for k, id := range buckets {
		if id < 0 {
			out[k] = Feature{Pos: -1, Bucket: -1}
			continue
		}
		pos, b, ok := view.Locate(id)
		if !ok {
			return nil, errorx.New(errcodes.ErrCodeParam, "bucket %d out of range [0,%d)", id, view.TotalBuckets())
		}
		out[k] = Feature{Pos: pos, Bucket: b}
	}
	return out, nil
}

// Recorder keeps the splits a party owns during one tree
type Recorder struct {
	lock sync.Mutex
	st   *tree.SplitTree
}

// NewRecorder returns an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{st: tree.NewSplitTree()}
}

// Reset starts a new tree
func (r *Recorder) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.st = tree.NewSplitTree()
}

// DoSplitListWise records the split of every kept node the party owns and returns the
// left child select of those nodes, nil elsewhere. selects are the samples of each node
func (r *Recorder) DoSplitListWise(view *ordermap.View, features []Feature, selects [][]bool, keep []bool, indices []int) ([][]bool, error) {
	if len(features) != len(selects) || len(keep) != len(selects) || len(indices) != len(selects) {
		return nil, errorx.New(errcodes.ErrCodeParam, "mismatched split request: %d features, %d selects, %d flags, %d indices",
			len(features), len(selects), len(keep), len(indices))
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([][]bool, len(selects))
	for k, f := range features {
		if !keep[k] || f.Pos < 0 {
			continue
		}
		if len(selects[k]) != view.NumRows() {
			return nil, errorx.New(errcodes.ErrCodeParam, "node %d selects %d samples, expected %d", indices[k], len(selects[k]), view.NumRows())
		}
		r.st.Insert(indices[k], &tree.Split{
			Feature:   view.Features[f.Pos],
			Threshold: view.SplitPoint(f.Pos, f.Bucket),
		})
		out[k] = view.LeftChildSelect(f.Pos, f.Bucket, selects[k])
	}
	return out, nil
}

// SplitTree returns the splits recorded so far
func (r *Recorder) SplitTree() *tree.SplitTree {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.st
}
