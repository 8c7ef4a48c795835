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

// Package trainer grows one tree level by level across the parties.
//  It runs in the label holder's process and only ever learns which side of each
//  sibling pair is summed, whether each node splits, the winning global bucket of
//  each node and, once the tree is done, every party's split tree and the leaf weights.
package trainer

import (
	"context"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/leaf"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/party"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/sampler"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/selector"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/splitbuilder"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

var (
	logger = logrus.WithField("module", "sgb.trainer")
)

const (
	MinDepth = 1
	MaxDepth = 16
)

// Params of one tree
type Params struct {
	MaxDepth      int
	RowSampleRate float64
	ColSampleRate float64
	Seed          uint64
}

// Validate rejects parameters before any training state exists
func (p *Params) Validate() error {
	if p.MaxDepth < MinDepth || p.MaxDepth > MaxDepth {
		return errorx.New(errcodes.ErrCodeParam, "max depth must be in [%d,%d], got %d", MinDepth, MaxDepth, p.MaxDepth)
	}
	return nil
}

// Reveal is one value disclosed to the trainer
type Reveal struct {
	Tree  int
	Level int
	Name  string
	Value interface{}
}

const (
	RevealIsLefts       = "is_lefts"
	RevealCostEffective = "cost_effective"
	RevealBuckets       = "buckets"
	RevealLeftSelects   = "left_selects"
	RevealSplitTrees    = "split_trees"
	RevealLeafWeights   = "leaf_weights"
)

// Option customizes a Trainer
type Option func(*Trainer)

// WithRevealObserver calls f with every value the trainer learns
func WithRevealObserver(f func(Reveal)) Option {
	return func(t *Trainer) {
		t.observer = f
	}
}

// Trainer drives the parties through the levels of a tree, one tree at a time
type Trainer struct {
	params   Params
	parties  []party.Party
	names    []string
	holder   party.LabelHolder
	sampler  *sampler.Sampler
	builder  *splitbuilder.Builder
	leaves   *leaf.Manager
	observer func(Reveal)
}

// New returns a Trainer, parties fixes the bucket layout and must contain the label holder.
// holder runs in the trainer's process, it checks every level against the nodes it grew
func New(params Params, holder party.LabelHolder, parties []party.Party, opts ...Option) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s, err := sampler.New(params.RowSampleRate, params.ColSampleRate, params.Seed)
	if err != nil {
		return nil, err
	}
	if holder == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "missing label holder")
	}

	names := make([]string, len(parties))
	seen := make(map[string]bool, len(parties))
	for i, p := range parties {
		names[i] = p.Name()
		if seen[names[i]] {
			return nil, errorx.New(errcodes.ErrCodeParam, "party %s appears twice", names[i])
		}
		seen[names[i]] = true
	}
	if !seen[holder.Name()] {
		return nil, errorx.New(errcodes.ErrCodeParam, "label holder %s is not among the parties", holder.Name())
	}

	t := &Trainer{
		params:  params,
		parties: parties,
		names:   names,
		holder:  holder,
		sampler: s,
		builder: splitbuilder.NewBuilder(names),
		leaves:  leaf.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Trainer) reveal(log *logrus.Entry, treeIndex, level int, name string, value interface{}) {
	log.WithFields(logrus.Fields{"level": level, "reveal": name}).Debugf("%v", value)
	if t.observer != nil {
		t.observer(Reveal{Tree: treeIndex, Level: level, Name: name, Value: value})
	}
}

// fanOut runs f for every party at once and waits for all of them
func (t *Trainer) fanOut(ctx context.Context, f func(ctx context.Context, i int, p party.Party) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range t.parties {
		i, p := i, p
		g.Go(func() error {
			if err := f(ctx, i, p); err != nil {
				return errorx.Wrap(err, "party %s failed", p.Name())
			}
			return nil
		})
	}
	return g.Wait()
}

// levelState is the active frontier of a tree
type levelState struct {
	selects [][]bool
	indices []int
}

// TrainTree grows tree treeIndex. Any party failure aborts the tree and no partial tree
// is returned
func (t *Trainer) TrainTree(ctx context.Context, treeIndex int) (*tree.DistributedTree, error) {
	log := logger.WithFields(logrus.Fields{
		"task": uuid.NewString(),
		"tree": treeIndex,
	})
	log.Info("start training tree")

	nRows, err := t.initTree(ctx, log, treeIndex)
	if err != nil {
		return nil, err
	}

	t.leaves.ClearLeaves()
	st := &levelState{
		selects: selector.RootSelect(nRows),
		indices: []int{0},
	}
	for level := 0; level < t.params.MaxDepth; level++ {
		st, err = t.trainLevel(ctx, log, treeIndex, level, st)
		if err != nil {
			return nil, errorx.Wrap(err, "failed to train level %d of tree %d", level, treeIndex)
		}
		if selector.IsListEmpty(st.indices) {
			log.WithField("level", level).Debug("no active node left")
			break
		}
	}
	if err := t.leaves.ExtendLeaves(st.selects, st.indices); err != nil {
		return nil, err
	}

	dt, err := t.finalize(ctx, log, treeIndex)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"leaves": len(dt.Leaves), "depth": dt.Depth()}).Info("tree trained")
	return dt, nil
}

// initTree samples rows and columns, has the label holder encrypt the gradients and hands
// them to every party. It returns the number of sampled rows
func (t *Trainer) initTree(ctx context.Context, log *logrus.Entry, treeIndex int) (int, error) {
	infos := make([]*party.InfoResponse, len(t.parties))
	err := t.fanOut(ctx, func(ctx context.Context, i int, p party.Party) error {
		info, err := p.Info(ctx)
		if err != nil {
			return err
		}
		infos[i] = info
		return nil
	})
	if err != nil {
		return 0, err
	}

	featureBuckets := make([][]int, len(infos))
	rows := infos[0].Rows
	for i, info := range infos {
		if info.Rows != rows {
			return 0, errorx.New(errcodes.ErrCodeDataSet, "party %s has %d rows, %s has %d",
				t.names[i], info.Rows, t.names[0], rows)
		}
		featureBuckets[i] = info.FeatureBuckets
	}
	if rows == 0 {
		return 0, errorx.New(errcodes.ErrCodeDataSet, "no sample to train on")
	}

	colChoices, _ := t.sampler.GenerateColChoices(featureBuckets)
	if err := t.builder.SetColChoicesAndBuckets(colChoices, featureBuckets); err != nil {
		return 0, err
	}
	rowChoices := t.sampler.GenerateRowChoices(rows)
	nRows := rows
	if rowChoices != nil {
		nRows = len(rowChoices)
	}
	log.WithFields(logrus.Fields{"rows": nRows, "buckets": t.builder.TotalBuckets()}).Debug("samples chosen")

	grads, err := t.holder.Gradients(ctx, &party.GradientsRequest{
		TreeIndex: treeIndex,
		Rows:      rowChoices,
		Parties:   t.names,
	})
	if err != nil {
		return 0, errorx.Wrap(err, "failed to compute gradients")
	}

	err = t.fanOut(ctx, func(ctx context.Context, i int, p party.Party) error {
		req := &party.InitTreeRequest{
			TreeIndex: treeIndex,
			Rows:      rowChoices,
			Cols:      t.builder.ColChoices(i),
		}
		if t.names[i] != t.holder.Name() {
			req.Gradients = grads
		}
		return p.InitTree(ctx, req)
	})
	if err != nil {
		return 0, err
	}
	return nRows, nil
}

// trainLevel splits the nodes of one level and returns the next frontier
func (t *Trainer) trainLevel(ctx context.Context, log *logrus.Entry, treeIndex, level int, st *levelState) (*levelState, error) {
	computed, isLefts, _ := selector.PickChildrenNodeSS(st.selects)
	t.reveal(log, treeIndex, level, RevealIsLefts, isLefts)

	parts := make([]*party.PartSums, len(t.parties))
	err := t.fanOut(ctx, func(ctx context.Context, i int, p party.Party) error {
		resp, err := p.BucketSums(ctx, &party.BucketSumsRequest{TreeIndex: treeIndex, Selects: computed})
		if err != nil {
			return err
		}
		parts[i] = &party.PartSums{Party: t.names[i], Sums: resp.Sums}
		return nil
	})
	if err != nil {
		return nil, err
	}

	found, err := t.holder.FindSplits(ctx, &party.FindSplitsRequest{
		TreeIndex:   treeIndex,
		Level:       level,
		IsLastLevel: level == t.params.MaxDepth-1,
		IsLefts:     isLefts,
		Indices:     st.indices,
		Selects:     computed,
		Parts:       parts,
	})
	if err != nil {
		return nil, errorx.Wrap(err, "failed to find splits")
	}
	if len(found.Buckets) != len(st.indices) || len(found.CostEffective) != len(st.indices) {
		return nil, errorx.New(errcodes.ErrCodeReveal, "splits of %d nodes for %d active nodes",
			len(found.Buckets), len(st.indices))
	}
	t.reveal(log, treeIndex, level, RevealCostEffective, found.CostEffective)
	t.reveal(log, treeIndex, level, RevealBuckets, found.Buckets)

	partition, err := t.builder.SplitBucketToPartition(found.Buckets)
	if err != nil {
		return nil, err
	}
	leftSelects := make([][][]bool, len(t.parties))
	err = t.fanOut(ctx, func(ctx context.Context, i int, p party.Party) error {
		resp, err := p.Split(ctx, &party.SplitRequest{
			TreeIndex: treeIndex,
			Buckets:   partition[i],
			Selects:   st.selects,
			Keep:      found.CostEffective,
			Indices:   st.indices,
		})
		if err != nil {
			return err
		}
		leftSelects[i] = resp.LeftSelects
		return nil
	})
	if err != nil {
		return nil, err
	}
	lchilds, err := t.builder.DoSplitListWise(leftSelects, found.CostEffective)
	if err != nil {
		return nil, err
	}
	t.reveal(log, treeIndex, level, RevealLeftSelects, lchilds)
	if err := t.holder.ApplySplits(ctx, &party.ApplySplitsRequest{TreeIndex: treeIndex, LeftSelects: lchilds}); err != nil {
		return nil, errorx.Wrap(err, "failed to apply splits")
	}

	children, childIdx, pruned, prunedIdx, err := selector.GetChildSelect(st.selects, lchilds, found.CostEffective, st.indices)
	if err != nil {
		return nil, err
	}
	if err := t.leaves.ExtendLeaves(pruned, prunedIdx); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"level":  level,
		"split":  len(childIdx) / 2,
		"pruned": len(prunedIdx),
	}).Debug("level trained")
	return &levelState{selects: children, indices: childIdx}, nil
}

// finalize weights the leaves and assembles the tree from every party's splits
func (t *Trainer) finalize(ctx context.Context, log *logrus.Entry, treeIndex int) (*tree.DistributedTree, error) {
	leafIndices := t.leaves.GetLeafIndices()
	weights, err := t.holder.LeafWeights(ctx, &party.LeafWeightsRequest{
		TreeIndex: treeIndex,
		Selects:   t.leaves.GetLeafSelects(),
		Indices:   leafIndices,
	})
	if err != nil {
		return nil, errorx.Wrap(err, "failed to compute leaf weights")
	}
	t.reveal(log, treeIndex, t.params.MaxDepth, RevealLeafWeights, weights.Weights)

	splitTrees := make([]*tree.SplitTree, len(t.parties))
	err = t.fanOut(ctx, func(ctx context.Context, i int, p party.Party) error {
		st, err := p.SplitTree(ctx, &party.SplitTreeRequest{TreeIndex: treeIndex})
		if err != nil {
			return err
		}
		splitTrees[i] = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.reveal(log, treeIndex, t.params.MaxDepth, RevealSplitTrees, splitTrees)

	dt := tree.New()
	if err := t.builder.InsertSplitTreesIntoDistributedTree(dt, splitTrees, leafIndices); err != nil {
		return nil, err
	}
	if err := dt.SetLeafWeight(t.holder.Name(), weights.Weights); err != nil {
		return nil, err
	}
	if err := dt.Validate(); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeReveal, "assembled tree %d is incomplete", treeIndex)
	}
	return dt, nil
}
