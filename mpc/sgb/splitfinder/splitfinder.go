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

// Package splitfinder scores every candidate bucket of a node and picks the best one.
package splitfinder

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

var (
	logger = logrus.WithField("module", "sgb.splitfinder")
)

// Finder holds the regularization of the objective
type Finder struct {
	lambda         float64
	gamma          float64
	minChildWeight float64
}

// New returns a Finder, lambda is the L2 penalty on leaf weights and gamma the
// minimum gain a split has to bring
func New(lambda, gamma, minChildWeight float64) *Finder {
	return &Finder{
		lambda:         lambda,
		gamma:          gamma,
		minChildWeight: minChildWeight,
	}
}

// Gain of sending (gl,hl) left out of a node summing to (g,h).
// Candidates leaving a side lighter than minChildWeight, or with a non positive
// denominator, score -Inf
func (f *Finder) Gain(gl, hl, g, h float64) float64 {
	gr, hr := g-gl, h-hl
	if hl < f.minChildWeight || hr < f.minChildWeight {
		return math.Inf(-1)
	}
	if hl+f.lambda <= 0 || hr+f.lambda <= 0 || h+f.lambda <= 0 {
		return math.Inf(-1)
	}
	return 0.5*(gl*gl/(hl+f.lambda)+gr*gr/(hr+f.lambda)-g*g/(h+f.lambda)) - f.gamma
}

// FindBestSplits returns, per node, the first bucket reaching the highest gain and
// whether that gain is positive. G[k][b] and H[k][b] are cumulative sums of node k,
// totalG[k] and totalH[k] its sums over all its samples. Nodes without a
// positive gain get bucket -1
func (f *Finder) FindBestSplits(G, H [][]float64, totalG, totalH []float64, treeIndex, level int) ([]int, []bool) {
	buckets := make([]int, len(G))
	costEffective := make([]bool, len(G))
	for k := range G {
		buckets[k] = -1
		if len(G[k]) == 0 {
			continue
		}
		gains := make([]float64, len(G[k]))
		for b := range G[k] {
			gains[b] = f.Gain(G[k][b], H[k][b], totalG[k], totalH[k])
		}
		best := floats.MaxIdx(gains)
		if gains[best] > 0 {
			buckets[k] = best
			costEffective[k] = true
		}
	}
	logger.WithFields(logrus.Fields{
		"tree":  treeIndex,
		"level": level,
		"nodes": len(G),
	}).Debug("best splits found")
	return buckets, costEffective
}
