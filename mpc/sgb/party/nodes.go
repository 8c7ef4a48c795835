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

package party

import (
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"golang.org/x/exp/slices"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/leaf"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/selector"
)

// nodes is the label holder's own record of the tree in progress. Sums and weights
// are only computed over the samples of nodes recorded here
type nodes struct {
	selects [][]bool
	indices []int
	keep    []bool // set by FindSplits until the children are applied
	leaves  *leaf.Manager
}

func newNodes(n int) *nodes {
	return &nodes{
		selects: selector.RootSelect(n),
		indices: []int{0},
		leaves:  leaf.New(),
	}
}

// checkLevel accepts a FindSplits request naming exactly the active nodes and the
// smaller side of every sibling pair
func (ns *nodes) checkLevel(req *FindSplitsRequest) error {
	if ns.keep != nil {
		return errorx.New(errcodes.ErrCodeParam, "splits of nodes %v are already found", ns.indices)
	}
	if !slices.Equal(req.Indices, ns.indices) {
		return errorx.New(errcodes.ErrCodeParam, "nodes %v are not the active nodes %v", req.Indices, ns.indices)
	}
	computed, isLefts, _ := selector.PickChildrenNodeSS(ns.selects)
	if !slices.Equal(req.IsLefts, isLefts) || !equalSelects(req.Selects, computed) {
		return errorx.New(errcodes.ErrCodeParam, "summed samples differ from the samples of nodes %v", ns.indices)
	}
	return nil
}

// found records which nodes keep growing
func (ns *nodes) found(keep []bool) {
	ns.keep = append([]bool(nil), keep...)
}

// apply replaces the kept nodes by their children and records the others as leaves.
// A left select must stay inside its parent and leave both children non empty
func (ns *nodes) apply(lchilds [][]bool) error {
	if ns.keep == nil {
		return errorx.New(errcodes.ErrCodeParam, "splits of nodes %v are not found yet", ns.indices)
	}
	if len(lchilds) != len(ns.indices) {
		return errorx.New(errcodes.ErrCodeParam, "%d left selects for %d nodes", len(lchilds), len(ns.indices))
	}
	for k, parent := range ns.selects {
		lchild := lchilds[k]
		if !ns.keep[k] {
			if lchild != nil {
				return errorx.New(errcodes.ErrCodeParam, "node %d stopped growing but has a left select", ns.indices[k])
			}
			continue
		}
		if len(lchild) != len(parent) {
			return errorx.New(errcodes.ErrCodeParam, "node %d has a left select of %d samples, expected %d",
				ns.indices[k], len(lchild), len(parent))
		}
		left, right := 0, 0
		for i, in := range lchild {
			switch {
			case in && !parent[i]:
				return errorx.New(errcodes.ErrCodeParam, "left select of node %d leaves its parent", ns.indices[k])
			case in:
				left++
			case parent[i]:
				right++
			}
		}
		if left == 0 || right == 0 {
			return errorx.New(errcodes.ErrCodeParam, "split of node %d leaves a child empty", ns.indices[k])
		}
	}

	children, childIdx, pruned, prunedIdx, err := selector.GetChildSelect(ns.selects, lchilds, ns.keep, ns.indices)
	if err != nil {
		return err
	}
	if err := ns.leaves.ExtendLeaves(pruned, prunedIdx); err != nil {
		return err
	}
	ns.selects, ns.indices, ns.keep = children, childIdx, nil
	return nil
}

// finish turns the remaining active nodes into leaves and checks a LeafWeights request
// names the recorded leaves in order
func (ns *nodes) finish(req *LeafWeightsRequest) error {
	if ns.keep != nil {
		return errorx.New(errcodes.ErrCodeParam, "children of nodes %v are not applied", ns.indices)
	}
	if err := ns.leaves.ExtendLeaves(ns.selects, ns.indices); err != nil {
		return err
	}
	ns.selects, ns.indices = nil, nil

	if !slices.Equal(req.Indices, ns.leaves.GetLeafIndices()) {
		return errorx.New(errcodes.ErrCodeParam, "leaves %v are not the leaves %v of the tree",
			req.Indices, ns.leaves.GetLeafIndices())
	}
	if !equalSelects(req.Selects, ns.leaves.GetLeafSelects()) {
		return errorx.New(errcodes.ErrCodeParam, "samples of leaves %v differ from the grown tree", req.Indices)
	}
	return nil
}

func equalSelects(a, b [][]bool) bool {
	return slices.EqualFunc(a, b, func(x, y []bool) bool {
		return slices.Equal(x, y)
	})
}
