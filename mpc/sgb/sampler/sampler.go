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

// Package sampler chooses the rows and feature columns a tree is grown on.
package sampler

import (
	"math"
	"sort"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
)

// Sampler draws row and column subsets from a seeded source,
// the same seed yields the same choices on every run
type Sampler struct {
	rowRate float64
	colRate float64
	src     rand.Source
}

// New checks both rates lie in (0,1]
func New(rowRate, colRate float64, seed uint64) (*Sampler, error) {
	if !validRate(rowRate) {
		return nil, errorx.New(errcodes.ErrCodeParam, "row sample rate must be in (0,1], got %v", rowRate)
	}
	if !validRate(colRate) {
		return nil, errorx.New(errcodes.ErrCodeParam, "column sample rate must be in (0,1], got %v", colRate)
	}
	return &Sampler{
		rowRate: rowRate,
		colRate: colRate,
		src:     rand.NewSource(seed),
	}, nil
}

func validRate(r float64) bool {
	return r > 0 && r <= 1
}

// GenerateColChoices picks features of every party, featureBuckets[p][f] being the
// bucket count of feature f of party p. Each party with features keeps at least one.
// It returns the sorted choices per party and the total bucket count they span
func (s *Sampler) GenerateColChoices(featureBuckets [][]int) ([][]int, int) {
	choices := make([][]int, len(featureBuckets))
	total := 0
	for p, buckets := range featureBuckets {
		n := len(buckets)
		choices[p] = s.choose(n, s.colRate)
		for _, f := range choices[p] {
			total += buckets[f]
		}
	}
	return choices, total
}

// GenerateRowChoices returns sorted row indexes, nil means all rows
func (s *Sampler) GenerateRowChoices(nRows int) []int {
	if s.rowRate == 1 {
		return nil
	}
	return s.choose(nRows, s.rowRate)
}

func (s *Sampler) choose(n int, rate float64) []int {
	k := int(math.Ceil(rate * float64(n)))
	if k > n {
		k = n
	}
	if k == n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	idx := make([]int, k)
	sampleuv.WithoutReplacement(idx, n, s.src)
	sort.Ints(idx)
	return idx
}

// ApplyVectorSampling copies the sampled entries of v, rows == nil copies all
func ApplyVectorSampling(v []float64, rows []int) []float64 {
	if rows == nil {
		return append([]float64(nil), v...)
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = v[r]
	}
	return out
}

// ApplyVFedSampling restricts a party's order map to the sampled rows and its chosen columns
func ApplyVFedSampling(om *ordermap.OrderMap, rows, cols []int) (*ordermap.View, error) {
	return om.Sample(rows, cols)
}
