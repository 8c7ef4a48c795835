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

package trainer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/he"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/loss"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/party"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/sampler"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

var (
	// x takes 4 distinct values, one bucket each
	stepX = []float64{1, 1, 2, 2, 3, 3, 4, 4}
	stepY = []float64{0, 0, 1, 1, 4, 4, 5, 5}
)

func holderParams(scheme string, gamma float64) party.HolderParams {
	return party.HolderParams{
		Objective:   loss.SquaredError,
		Lambda:      1,
		Gamma:       gamma,
		Scheme:      scheme,
		PrimeLength: 128,
		Precision:   32,
		Concurrency: 4,
	}
}

func singleHolder(t *testing.T, gamma float64) *party.Holder {
	om, err := ordermap.Build(mat.NewDense(len(stepX), 1, stepX), 4)
	require.NoError(t, err)
	h, err := party.NewHolder("alice", om, stepY, holderParams(he.SchemePlain, gamma))
	require.NoError(t, err)
	return h
}

func testParams(depth int) Params {
	return Params{MaxDepth: depth, RowSampleRate: 1, ColSampleRate: 1, Seed: 7}
}

// checkLeaves asserts every sampled row lands in exactly one leaf and that
// prediction routes it to that leaf's weight
func checkLeaves(t *testing.T, tr *Trainer, dt *tree.DistributedTree, features map[string]mat.Matrix) {
	selects := tr.leaves.GetLeafSelects()
	require.Len(t, selects, len(dt.Leaves))
	require.NotEmpty(t, selects)

	n := len(selects[0])
	owner := make([]int, n)
	for i := range owner {
		owner[i] = -1
	}
	for k, sel := range selects {
		require.Len(t, sel, n)
		for i, in := range sel {
			if in {
				require.Equal(t, -1, owner[i], "row %d in two leaves", i)
				owner[i] = k
			}
		}
	}
	for i, k := range owner {
		require.NotEqual(t, -1, k, "row %d in no leaf", i)
	}

	if features == nil {
		return
	}
	pred, err := dt.Predict(features)
	require.NoError(t, err)
	require.Len(t, pred, n)
	for i, k := range owner {
		require.InDelta(t, dt.Weights[k], pred[i], 1e-9)
	}
}

func TestParamsValidate(t *testing.T) {
	for _, depth := range []int{0, 17, -1} {
		p := testParams(depth)
		require.Error(t, p.Validate())
	}
	for _, depth := range []int{1, 16} {
		p := testParams(depth)
		require.NoError(t, p.Validate())
	}
}

func TestNew(t *testing.T) {
	h := singleHolder(t, 0)

	_, err := New(testParams(0), h, []party.Party{h})
	require.Error(t, err)

	p := testParams(2)
	p.ColSampleRate = 0
	_, err = New(p, h, []party.Party{h})
	require.Error(t, err)

	_, err = New(testParams(2), nil, []party.Party{h})
	require.Error(t, err)

	om, err := ordermap.Build(mat.NewDense(len(stepX), 1, stepX), 4)
	require.NoError(t, err)
	w, err := party.NewWorker("bob", om)
	require.NoError(t, err)
	_, err = New(testParams(2), h, []party.Party{w})
	require.Error(t, err)
	_, err = New(testParams(2), h, []party.Party{h, w, w})
	require.Error(t, err)

	_, err = New(testParams(2), h, []party.Party{h, w})
	require.NoError(t, err)
}

func TestSingleSplit(t *testing.T) {
	h := singleHolder(t, 0)
	tr, err := New(testParams(1), h, []party.Party{h})
	require.NoError(t, err)

	dt, err := tr.TrainTree(context.Background(), 0)
	require.NoError(t, err)

	// cumulative sums of g = -y per bucket give gains 6.35, 10.58, 1.59, 0
	st := dt.SplitTrees["alice"]
	require.NotNil(t, st)
	require.Equal(t, []int{0}, st.Nodes())
	require.Equal(t, 0, st.Splits[0].Feature)
	require.Equal(t, 2.0, st.Splits[0].Threshold)

	require.Equal(t, []int{1, 2}, dt.Leaves)
	require.Equal(t, "alice", dt.LabelHolder)
	require.InDelta(t, 2.0/5, dt.Weights[0], 1e-6)
	require.InDelta(t, 18.0/5, dt.Weights[1], 1e-6)
	require.Equal(t, 1, dt.Depth())

	checkLeaves(t, tr, dt, map[string]mat.Matrix{"alice": mat.NewDense(len(stepX), 1, stepX)})
}

func TestNoGainSingleLeaf(t *testing.T) {
	h := singleHolder(t, 1000)
	tr, err := New(testParams(3), h, []party.Party{h})
	require.NoError(t, err)

	var names []string
	tr.observer = func(r Reveal) { names = append(names, r.Name) }

	dt, err := tr.TrainTree(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []int{0}, dt.Leaves)
	require.InDelta(t, 20.0/9, dt.Weights[0], 1e-6)
	require.Empty(t, dt.SplitTrees["alice"].Splits)
	require.Equal(t, 0, dt.Depth())

	// a single level ran before the frontier emptied
	require.Equal(t, []string{
		RevealIsLefts, RevealCostEffective, RevealBuckets, RevealLeftSelects,
		RevealLeafWeights, RevealSplitTrees,
	}, names)
	checkLeaves(t, tr, dt, nil)
}

func TestPruning(t *testing.T) {
	h := singleHolder(t, 0)
	tr, err := New(testParams(2), h, []party.Party{h})
	require.NoError(t, err)

	dt, err := tr.TrainTree(context.Background(), 0)
	require.NoError(t, err)

	// node 2 has no positive gain and becomes a leaf one level early
	require.Equal(t, []int{2, 3, 4}, dt.Leaves)
	require.Equal(t, []int{0, 1}, dt.SplitTrees["alice"].Nodes())
	require.Equal(t, 1.0, dt.SplitTrees["alice"].Splits[1].Threshold)
	require.InDelta(t, 18.0/5, dt.Weights[0], 1e-6)
	require.InDelta(t, 0, dt.Weights[1], 1e-6)
	require.InDelta(t, 2.0/3, dt.Weights[2], 1e-6)

	checkLeaves(t, tr, dt, map[string]mat.Matrix{"alice": mat.NewDense(len(stepX), 1, stepX)})
}

func TestRevealObserver(t *testing.T) {
	h := singleHolder(t, 0)
	var reveals []Reveal
	tr, err := New(testParams(2), h, []party.Party{h}, WithRevealObserver(func(r Reveal) {
		reveals = append(reveals, r)
	}))
	require.NoError(t, err)
	_, err = tr.TrainTree(context.Background(), 3)
	require.NoError(t, err)

	allowed := map[string]bool{
		RevealIsLefts: true, RevealCostEffective: true, RevealBuckets: true,
		RevealLeftSelects: true, RevealLeafWeights: true, RevealSplitTrees: true,
	}
	require.NotEmpty(t, reveals)
	for _, r := range reveals {
		require.True(t, allowed[r.Name], r.Name)
		require.Equal(t, 3, r.Tree)
	}
	require.Equal(t, RevealIsLefts, reveals[0].Name)
	require.Equal(t, []bool{true}, reveals[0].Value)
	require.Equal(t, []bool{true}, reveals[1].Value)
	require.Equal(t, []int{1}, reveals[2].Value)

	// level 1 sums the smaller child of the single pair, both hold 4 rows
	require.Equal(t, 1, reveals[4].Level)
	require.Equal(t, []bool{true}, reveals[4].Value)
	require.Equal(t, []bool{true, false}, reveals[5].Value)
}

func TestRowSampling(t *testing.T) {
	h := singleHolder(t, 0)
	p := testParams(3)
	p.RowSampleRate = 0.5
	tr, err := New(p, h, []party.Party{h})
	require.NoError(t, err)

	dt, err := tr.TrainTree(context.Background(), 0)
	require.NoError(t, err)
	for _, sel := range tr.leaves.GetLeafSelects() {
		require.Len(t, sel, 4)
	}
	checkLeaves(t, tr, dt, nil)
}

type failingSplit struct {
	party.Party
}

func (f *failingSplit) Split(ctx context.Context, req *party.SplitRequest) (*party.SplitResponse, error) {
	return nil, errors.New("connection reset")
}

func TestPartyFailureAbortsTree(t *testing.T) {
	h := singleHolder(t, 0)
	om, err := ordermap.Build(mat.NewDense(len(stepX), 1, stepX), 4)
	require.NoError(t, err)
	w, err := party.NewWorker("bob", om)
	require.NoError(t, err)

	tr, err := New(testParams(2), h, []party.Party{h, &failingSplit{w}})
	require.NoError(t, err)
	dt, err := tr.TrainTree(context.Background(), 0)
	require.Error(t, err)
	require.Nil(t, dt)
}

func TestMismatchedRows(t *testing.T) {
	h := singleHolder(t, 0)
	om, err := ordermap.Build(mat.NewDense(3, 1, []float64{1, 2, 3}), 4)
	require.NoError(t, err)
	w, err := party.NewWorker("bob", om)
	require.NoError(t, err)

	tr, err := New(testParams(2), h, []party.Party{h, w})
	require.NoError(t, err)
	_, err = tr.TrainTree(context.Background(), 0)
	require.Error(t, err)
}

type dataset struct {
	holderX []float64
	workerX []float64
	y       []float64
	rows    int
}

func randomDataset(rows int) *dataset {
	r := rand.New(rand.NewSource(42))
	d := &dataset{rows: rows}
	for i := 0; i < rows; i++ {
		a, b := r.NormFloat64(), r.NormFloat64()
		c := r.Float64()
		d.holderX = append(d.holderX, a)
		d.workerX = append(d.workerX, b, c)
		d.y = append(d.y, 2*b-a+0.1*r.NormFloat64())
	}
	return d
}

func trainTwoParties(t *testing.T, d *dataset, scheme string) (*Trainer, *tree.DistributedTree) {
	hom, err := ordermap.Build(mat.NewDense(d.rows, 1, d.holderX), 8)
	require.NoError(t, err)
	wom, err := ordermap.Build(mat.NewDense(d.rows, 2, d.workerX), 8)
	require.NoError(t, err)

	h, err := party.NewHolder("alice", hom, d.y, holderParams(scheme, 0))
	require.NoError(t, err)
	w, err := party.NewWorker("bob", wom)
	require.NoError(t, err)

	tr, err := New(testParams(3), h, []party.Party{h, w})
	require.NoError(t, err)
	dt, err := tr.TrainTree(context.Background(), 0)
	require.NoError(t, err)
	return tr, dt
}

func TestPaillierMatchesPlain(t *testing.T) {
	d := randomDataset(32)
	features := map[string]mat.Matrix{
		"alice": mat.NewDense(d.rows, 1, d.holderX),
		"bob":   mat.NewDense(d.rows, 2, d.workerX),
	}

	ptr, plain := trainTwoParties(t, d, he.SchemePlain)
	ctr, cipher := trainTwoParties(t, d, he.SchemePaillier)
	checkLeaves(t, ptr, plain, features)
	checkLeaves(t, ctr, cipher, features)

	// bob's shuffles differ between runs, equal gain buckets of his may resolve to a
	// different threshold with the same partition
	require.Equal(t, plain.Leaves, cipher.Leaves)
	require.InDeltaSlice(t, plain.Weights, cipher.Weights, 1e-9)
	pp, err := plain.Predict(features)
	require.NoError(t, err)
	cp, err := cipher.Predict(features)
	require.NoError(t, err)
	require.InDeltaSlice(t, pp, cp, 1e-9)
	require.Greater(t, len(plain.Leaves), 1)
}

func TestConsecutiveTrees(t *testing.T) {
	d := randomDataset(16)
	hom, err := ordermap.Build(mat.NewDense(d.rows, 1, d.holderX), 4)
	require.NoError(t, err)
	wom, err := ordermap.Build(mat.NewDense(d.rows, 2, d.workerX), 4)
	require.NoError(t, err)
	h, err := party.NewHolder("alice", hom, d.y, holderParams(he.SchemePlain, 0))
	require.NoError(t, err)
	w, err := party.NewWorker("bob", wom)
	require.NoError(t, err)

	p := testParams(2)
	p.ColSampleRate = 0.5
	tr, err := New(p, h, []party.Party{h, w})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		dt, err := tr.TrainTree(context.Background(), i)
		require.NoError(t, err)
		checkLeaves(t, tr, dt, nil)
	}
}

// TestRetriedTreeUsesNewSamples trains tree 0 twice with row sampling. The second run
// samples other rows, its split must be the best split over those rows
func TestRetriedTreeUsesNewSamples(t *testing.T) {
	ctx := context.Background()
	const rows = 16
	r := rand.New(rand.NewSource(5))
	x := make([]float64, rows)
	y := make([]float64, rows)
	for i := range x {
		x[i] = float64(i)
		y[i] = 10*r.Float64() + float64(i%5)
	}
	om, err := ordermap.Build(mat.NewDense(rows, 1, x), rows)
	require.NoError(t, err)
	// alice's only feature is constant and never splits
	hom, err := ordermap.Build(mat.NewDense(rows, 1, make([]float64, rows)), 4)
	require.NoError(t, err)
	h, err := party.NewHolder("alice", hom, y, holderParams(he.SchemePlain, 0))
	require.NoError(t, err)
	w, err := party.NewWorker("bob", om)
	require.NoError(t, err)

	p := testParams(1)
	p.RowSampleRate = 0.5
	tr, err := New(p, h, []party.Party{h, w})
	require.NoError(t, err)

	// replay the trainer's sampling to learn the rows of each run
	hi, err := h.Info(ctx)
	require.NoError(t, err)
	wi, err := w.Info(ctx)
	require.NoError(t, err)
	featureBuckets := [][]int{hi.FeatureBuckets, wi.FeatureBuckets}
	s, err := sampler.New(p.RowSampleRate, p.ColSampleRate, p.Seed)
	require.NoError(t, err)
	var runs [][]int
	for i := 0; i < 2; i++ {
		s.GenerateColChoices(featureBuckets)
		runs = append(runs, s.GenerateRowChoices(rows))
	}
	require.NotEqual(t, runs[0], runs[1])

	_, err = tr.TrainTree(ctx, 0)
	require.NoError(t, err)
	dt, err := tr.TrainTree(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, dt.Leaves)

	sampled := runs[1]
	bestGain, bestLeft := 0.0, []bool(nil)
	for b := 0; b < om.FeatureBuckets()[0]; b++ {
		left := make([]bool, len(sampled))
		var gl, hl, g, hs float64
		for k, row := range sampled {
			g -= y[row]
			hs++
			if om.Buckets[0][row] <= b {
				left[k] = true
				gl -= y[row]
				hl++
			}
		}
		gr, hr := g-gl, hs-hl
		gain := 0.5 * (gl*gl/(hl+1) + gr*gr/(hr+1) - g*g/(hs+1))
		if gain > bestGain+1e-9 {
			bestGain, bestLeft = gain, left
		}
	}
	require.NotNil(t, bestLeft)
	selects := tr.leaves.GetLeafSelects()
	require.Equal(t, bestLeft, selects[0])

	for k, sel := range selects {
		sum, n := 0.0, 0.0
		for i, in := range sel {
			if in {
				sum += y[sampled[i]]
				n++
			}
		}
		require.InDelta(t, sum/(n+1), dt.Weights[k], 1e-6)
	}
}

// levelRecorder keeps the node selects every Split call is made with
type levelRecorder struct {
	party.Party
	levels []*party.SplitRequest
}

func (l *levelRecorder) Split(ctx context.Context, req *party.SplitRequest) (*party.SplitResponse, error) {
	l.levels = append(l.levels, req)
	return l.Party.Split(ctx, req)
}

func TestLevelsPartitionSamples(t *testing.T) {
	d := randomDataset(32)
	hom, err := ordermap.Build(mat.NewDense(d.rows, 1, d.holderX), 8)
	require.NoError(t, err)
	wom, err := ordermap.Build(mat.NewDense(d.rows, 2, d.workerX), 8)
	require.NoError(t, err)
	h, err := party.NewHolder("alice", hom, d.y, holderParams(he.SchemePlain, 0))
	require.NoError(t, err)
	w, err := party.NewWorker("bob", wom)
	require.NoError(t, err)
	rec := &levelRecorder{Party: w}

	var lefts [][][]bool
	tr, err := New(testParams(4), h, []party.Party{h, rec}, WithRevealObserver(func(r Reveal) {
		if r.Name == RevealLeftSelects {
			lefts = append(lefts, r.Value.([][]bool))
		}
	}))
	require.NoError(t, err)
	_, err = tr.TrainTree(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, lefts, len(rec.levels))
	require.Greater(t, len(rec.levels), 1)

	// rows of nodes that stopped growing on earlier levels
	done := make([]bool, d.rows)
	for l, req := range rec.levels {
		seen := append([]bool(nil), done...)
		for _, sel := range req.Selects {
			require.Len(t, sel, d.rows)
			for i, in := range sel {
				if in {
					require.False(t, seen[i], "row %d twice on level %d", i, l)
					seen[i] = true
				}
			}
		}
		for i, in := range seen {
			require.True(t, in, "row %d lost on level %d", i, l)
		}

		next := map[int][]bool{}
		for k, parent := range req.Selects {
			if !req.Keep[k] {
				for i, in := range parent {
					done[i] = done[i] || in
				}
				continue
			}
			left, right := make([]bool, d.rows), make([]bool, d.rows)
			for i, in := range parent {
				left[i] = in && lefts[l][k][i]
				right[i] = in && !lefts[l][k][i]
			}
			next[2*req.Indices[k]+1], next[2*req.Indices[k]+2] = left, right
		}
		if l+1 < len(rec.levels) {
			child := rec.levels[l+1]
			require.Len(t, child.Indices, len(next))
			for k, idx := range child.Indices {
				require.Equal(t, next[idx], child.Selects[k], "node %d", idx)
			}
		}
	}
}

// forgingHolder rewrites the leaves the trainer asks the label holder to weight
type forgingHolder struct {
	*party.Holder
}

func (f *forgingHolder) LeafWeights(ctx context.Context, req *party.LeafWeightsRequest) (*party.LeafWeightsResponse, error) {
	forged := make([][]bool, len(req.Selects))
	for k, sel := range req.Selects {
		forged[k] = make([]bool, len(sel))
		forged[k][k%len(sel)] = true
	}
	return f.Holder.LeafWeights(ctx, &party.LeafWeightsRequest{TreeIndex: req.TreeIndex, Selects: forged, Indices: req.Indices})
}

func TestForgedLeavesAreRefused(t *testing.T) {
	h := singleHolder(t, 0)
	tr, err := New(testParams(2), &forgingHolder{h}, []party.Party{h})
	require.NoError(t, err)
	dt, err := tr.TrainTree(context.Background(), 0)
	require.Error(t, err)
	require.Nil(t, dt)
}
