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

// Package ordermap bucketizes a party's feature columns once per data set.
//  Bucket b of feature f holds the values v with SplitPoints[f][b-1] < v <= SplitPoints[f][b],
//  the last split point of a feature is its maximum.
package ordermap

import (
	"math"
	"sort"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"gonum.org/v1/gonum/mat"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// OrderMap keeps per feature split points and the bucket of every row
type OrderMap struct {
	SplitPoints [][]float64
	Buckets     [][]int // feature -> row -> bucket
	Rows        int
}

// Build bucketizes each column of x into at most maxBins quantile buckets
func Build(x mat.Matrix, maxBins int) (*OrderMap, error) {
	if maxBins < 1 {
		return nil, errorx.New(errcodes.ErrCodeParam, "maxBins must be positive, got %d", maxBins)
	}
	rows, cols := x.Dims()
	if rows == 0 {
		return nil, errorx.New(errcodes.ErrCodeDataSet, "empty data set")
	}
	om := &OrderMap{
		SplitPoints: make([][]float64, cols),
		Buckets:     make([][]int, cols),
		Rows:        rows,
	}
	for f := 0; f < cols; f++ {
		col := mat.Col(nil, f, x)
		for i, v := range col {
			if math.IsNaN(v) {
				return nil, errorx.New(errcodes.ErrCodeDataSet, "feature %d has NaN at row %d", f, i)
			}
		}
		sp := splitPoints(col, maxBins)
		om.SplitPoints[f] = sp
		bs := make([]int, rows)
		for i, v := range col {
			bs[i] = sort.SearchFloat64s(sp, v)
		}
		om.Buckets[f] = bs
	}
	return om, nil
}

func splitPoints(col []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	n := len(sorted)

	var sp []float64
	push := func(v float64) {
		if len(sp) == 0 || sp[len(sp)-1] != v {
			sp = append(sp, v)
		}
	}
	for _, v := range sorted {
		push(v)
	}
	if len(sp) <= maxBins {
		return sp
	}

	sp = sp[:0]
	for b := 1; b <= maxBins; b++ {
		idx := (b*n+maxBins-1)/maxBins - 1
		push(sorted[idx])
	}
	return sp
}

// FeatureBuckets returns the number of buckets of every feature
func (om *OrderMap) FeatureBuckets() []int {
	counts := make([]int, len(om.SplitPoints))
	for f, sp := range om.SplitPoints {
		counts[f] = len(sp)
	}
	return counts
}

// NumRows returns the number of rows bucketized
func (om *OrderMap) NumRows() int {
	return om.Rows
}

// Sample slices the order map down to the chosen rows and features,
// rows == nil keeps every row. The order map itself is left untouched
func (om *OrderMap) Sample(rows, features []int) (*View, error) {
	v := &View{
		Features:    append([]int(nil), features...),
		SplitPoints: make([][]float64, len(features)),
		Buckets:     make([][]int, len(features)),
		rows:        om.NumRows(),
	}
	if rows != nil {
		v.rows = len(rows)
	}
	for i, f := range features {
		if f < 0 || f >= len(om.SplitPoints) {
			return nil, errorx.New(errcodes.ErrCodeParam, "feature %d out of range [0,%d)", f, len(om.SplitPoints))
		}
		v.SplitPoints[i] = om.SplitPoints[f]
		if rows == nil {
			v.Buckets[i] = om.Buckets[f]
			continue
		}
		bs := make([]int, len(rows))
		for j, r := range rows {
			if r < 0 || r >= om.NumRows() {
				return nil, errorx.New(errcodes.ErrCodeParam, "row %d out of range [0,%d)", r, om.NumRows())
			}
			bs[j] = om.Buckets[f][r]
		}
		v.Buckets[i] = bs
	}
	return v, nil
}

// View is an order map restricted to the rows and features sampled for one tree.
//  Features are addressed by their position in Features, buckets of the chosen
//  features are laid out one after another to form the party's bucket list
type View struct {
	Features    []int
	SplitPoints [][]float64
	Buckets     [][]int
	rows        int
}

// NumRows returns the number of sampled rows
func (v *View) NumRows() int {
	return v.rows
}

// BucketLists returns the bucket count of every chosen feature, in layout order
func (v *View) BucketLists() []int {
	counts := make([]int, len(v.SplitPoints))
	for i, sp := range v.SplitPoints {
		counts[i] = len(sp)
	}
	return counts
}

// TotalBuckets is the length of the party's bucket list
func (v *View) TotalBuckets() int {
	total := 0
	for _, sp := range v.SplitPoints {
		total += len(sp)
	}
	return total
}

// Locate turns an index of the bucket list into (feature position, bucket)
func (v *View) Locate(id int) (pos, bucket int, ok bool) {
	if id < 0 {
		return 0, 0, false
	}
	for i, sp := range v.SplitPoints {
		if id < len(sp) {
			return i, id, true
		}
		id -= len(sp)
	}
	return 0, 0, false
}

// SplitPoint returns the threshold of a bucket, rows with value <= threshold go left
func (v *View) SplitPoint(pos, bucket int) float64 {
	return v.SplitPoints[pos][bucket]
}

// LeftChildSelect marks rows of parent whose value falls into a bucket <= bucket
func (v *View) LeftChildSelect(pos, bucket int, parent []bool) []bool {
	bs := v.Buckets[pos]
	left := make([]bool, len(parent))
	for i, in := range parent {
		left[i] = in && bs[i] <= bucket
	}
	return left
}
