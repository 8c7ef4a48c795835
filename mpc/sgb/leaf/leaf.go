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

// Package leaf tracks the nodes of a tree that stopped growing.
package leaf

import (
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"gonum.org/v1/gonum/floats"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// Manager keeps leaf indexes with their sample selects, in the order they were added
type Manager struct {
	selects [][]bool
	indices []int
}

func New() *Manager {
	return &Manager{}
}

// ClearLeaves forgets the leaves of the previous tree
func (m *Manager) ClearLeaves() {
	m.selects = nil
	m.indices = nil
}

// ExtendLeaves adds nodes that will not be split any further
func (m *Manager) ExtendLeaves(selects [][]bool, indices []int) error {
	if len(selects) != len(indices) {
		return errorx.New(errcodes.ErrCodeParam, "%d selects for %d leaves", len(selects), len(indices))
	}
	m.selects = append(m.selects, selects...)
	m.indices = append(m.indices, indices...)
	return nil
}

// ComputeLeafWeights returns -sum(g)/(sum(h)+lambda) over the samples of every leaf
func (m *Manager) ComputeLeafWeights(g, h []float64, lambda float64) ([]float64, error) {
	if len(g) != len(h) {
		return nil, errorx.New(errcodes.ErrCodeParam, "g and h differ in length, %d != %d", len(g), len(h))
	}
	weights := make([]float64, len(m.selects))
	mask := make([]float64, len(g))
	for k, sel := range m.selects {
		if len(sel) != len(g) {
			return nil, errorx.New(errcodes.ErrCodeParam, "leaf %d selects %d samples, expected %d", m.indices[k], len(sel), len(g))
		}
		for i, in := range sel {
			mask[i] = 0
			if in {
				mask[i] = 1
			}
		}
		denominator := floats.Dot(mask, h) + lambda
		if denominator == 0 {
			continue
		}
		weights[k] = -floats.Dot(mask, g) / denominator
	}
	return weights, nil
}

// GetLeafIndices returns the node indexes of the leaves
func (m *Manager) GetLeafIndices() []int {
	return append([]int(nil), m.indices...)
}

// GetLeafSelects returns the sample selects of the leaves, aligned with GetLeafIndices
func (m *Manager) GetLeafSelects() [][]bool {
	return append([][]bool(nil), m.selects...)
}
