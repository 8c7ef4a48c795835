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

// Package splitbuilder turns globally chosen buckets into splits owned by single parties.
//  The driver side Builder knows how the global bucket list is cut into party segments,
//  the party side Recorder resolves its own segment and remembers the splits it owns.
package splitbuilder

import (
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

// Builder keeps the column choices and the bucket layout of the tree being grown
type Builder struct {
	parties     []string
	colChoices  [][]int
	bucketLists [][]int
	offsets     []int
	total       int
}

// NewBuilder lays out party segments in the order of parties
func NewBuilder(parties []string) *Builder {
	return &Builder{parties: append([]string(nil), parties...)}
}

// Reset drops the layout of the previous tree
func (b *Builder) Reset() {
	b.colChoices = nil
	b.bucketLists = nil
	b.offsets = nil
	b.total = 0
}

// SetColChoicesAndBuckets records the chosen columns of every party and their bucket counts,
// featureBuckets[p][f] being the bucket count of feature f of party p
func (b *Builder) SetColChoicesAndBuckets(colChoices, featureBuckets [][]int) error {
	if len(colChoices) != len(b.parties) || len(featureBuckets) != len(b.parties) {
		return errorx.New(errcodes.ErrCodeParam, "column choices of %d parties, expected %d", len(colChoices), len(b.parties))
	}
	b.Reset()
	b.colChoices = colChoices
	b.bucketLists = make([][]int, len(b.parties))
	b.offsets = make([]int, len(b.parties))
	for p, cols := range colChoices {
		b.offsets[p] = b.total
		b.bucketLists[p] = make([]int, len(cols))
		for i, f := range cols {
			if f < 0 || f >= len(featureBuckets[p]) {
				return errorx.New(errcodes.ErrCodeParam, "party %s has no feature %d", b.parties[p], f)
			}
			b.bucketLists[p][i] = featureBuckets[p][f]
			b.total += featureBuckets[p][f]
		}
	}
	return nil
}

// ColChoices returns the chosen columns of a party
func (b *Builder) ColChoices(p int) []int {
	return b.colChoices[p]
}

// TotalBuckets is the length of the global bucket list
func (b *Builder) TotalBuckets() int {
	return b.total
}

// PartyBuckets is the length of a party's segment
func (b *Builder) PartyBuckets(p int) int {
	n := 0
	for _, c := range b.bucketLists[p] {
		n += c
	}
	return n
}

// SplitBucketToPartition gives every party the position of each node's winning bucket
// inside its own segment, or -1 where another party owns it
func (b *Builder) SplitBucketToPartition(global []int) ([][]int, error) {
	out := make([][]int, len(b.parties))
	for p := range b.parties {
		out[p] = make([]int, len(global))
		size := b.PartyBuckets(p)
		for k, id := range global {
			local := id - b.offsets[p]
			if id < 0 || local < 0 || local >= size {
				out[p][k] = -1
				continue
			}
			out[p][k] = local
		}
	}
	for k, id := range global {
		if id >= b.total {
			return nil, errorx.New(errcodes.ErrCodeParam, "bucket %d of node %d out of range [0,%d)", id, k, b.total)
		}
	}
	return out, nil
}

// DoSplitListWise merges the left selects computed by the parties. Every kept node
// must get its left select from exactly one party, pruned nodes get nil
func (b *Builder) DoSplitListWise(leftSelects [][][]bool, keep []bool) ([][]bool, error) {
	if len(leftSelects) != len(b.parties) {
		return nil, errorx.New(errcodes.ErrCodeReveal, "left selects of %d parties, expected %d", len(leftSelects), len(b.parties))
	}
	out := make([][]bool, len(keep))
	for k, kept := range keep {
		if !kept {
			continue
		}
		for p, sels := range leftSelects {
			if k >= len(sels) || sels[k] == nil {
				continue
			}
			if out[k] != nil {
				return nil, errorx.New(errcodes.ErrCodeReveal, "node %d is split by more than one party, %s included", k, b.parties[p])
			}
			out[k] = sels[k]
		}
		if out[k] == nil {
			return nil, errorx.New(errcodes.ErrCodeReveal, "no party split node %d", k)
		}
	}
	return out, nil
}

// InsertSplitTreesIntoDistributedTree assembles the output tree from every party's splits
// and the final leaves
func (b *Builder) InsertSplitTreesIntoDistributedTree(t *tree.DistributedTree, splitTrees []*tree.SplitTree, leafIndices []int) error {
	if len(splitTrees) != len(b.parties) {
		return errorx.New(errcodes.ErrCodeReveal, "split trees of %d parties, expected %d", len(splitTrees), len(b.parties))
	}
	for p, st := range splitTrees {
		if st == nil {
			st = tree.NewSplitTree()
		}
		if err := t.InsertSplitTree(b.parties[p], st); err != nil {
			return err
		}
	}
	return t.SetLeaves(leafIndices)
}
