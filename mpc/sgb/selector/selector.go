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

// Package selector maintains which samples belong to which active node of a level.
//  Nodes use heap numbering, the children of node i are 2i+1 and 2i+2, and a level
//  lists siblings next to each other, left first.
package selector

import (
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// RootSelect selects every sample for the root
func RootSelect(n int) [][]bool {
	s := make([]bool, n)
	for i := range s {
		s[i] = true
	}
	return [][]bool{s}
}

// PickChildrenNodeSS picks for every sibling pair the side holding fewer samples,
// that side gets its histogram built and the other is derived from the parent.
// A lone node is the root and is returned as a left node
func PickChildrenNodeSS(selects [][]bool) ([][]bool, []bool, int) {
	if len(selects) == 1 {
		return [][]bool{selects[0]}, []bool{true}, 1
	}
	n := len(selects) / 2
	chosen := make([][]bool, n)
	isLefts := make([]bool, n)
	for k := 0; k < n; k++ {
		left, right := selects[2*k], selects[2*k+1]
		if Count(left) <= Count(right) {
			chosen[k], isLefts[k] = left, true
		} else {
			chosen[k], isLefts[k] = right, false
		}
	}
	return chosen, isLefts, n
}

// GetChildSelect splits every kept node into its two children, nodes whose keep flag
// is false are handed back as pruned. left = parent AND lchild, right = parent AND NOT lchild
func GetChildSelect(parents, lchilds [][]bool, keep []bool, indices []int) (
	children [][]bool, childIdx []int, pruned [][]bool, prunedIdx []int, err error) {
	if len(lchilds) != len(parents) || len(keep) != len(parents) || len(indices) != len(parents) {
		return nil, nil, nil, nil, errorx.New(errcodes.ErrCodeParam,
			"mismatched level state: %d parents, %d left selects, %d flags, %d indices",
			len(parents), len(lchilds), len(keep), len(indices))
	}
	for i, parent := range parents {
		if !keep[i] {
			pruned = append(pruned, parent)
			prunedIdx = append(prunedIdx, indices[i])
			continue
		}
		lchild := lchilds[i]
		if len(lchild) != len(parent) {
			return nil, nil, nil, nil, errorx.New(errcodes.ErrCodeParam,
				"node %d has a left select of %d samples, expected %d", indices[i], len(lchild), len(parent))
		}
		left := make([]bool, len(parent))
		right := make([]bool, len(parent))
		for j, in := range parent {
			left[j] = in && lchild[j]
			right[j] = in && !lchild[j]
		}
		children = append(children, left, right)
		childIdx = append(childIdx, 2*indices[i]+1, 2*indices[i]+2)
	}
	return children, childIdx, pruned, prunedIdx, nil
}

// IsListEmpty reports whether no node is left to grow
func IsListEmpty(indices []int) bool {
	return len(indices) == 0
}

// Count returns the number of selected samples
func Count(s []bool) int {
	n := 0
	for _, in := range s {
		if in {
			n++
		}
	}
	return n
}
