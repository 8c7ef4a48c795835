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

// Package shuffler hides the order of a party's bucket list from the label holder.
//  A party permutes its bucket sums with a permutation drawn once per tree, the
//  label holder only ever names buckets by their shuffled position and the owner
//  maps the winning position back.
package shuffler

import (
	"encoding/binary"
	"math/big"
	"sync"

	entropy "github.com/PaddlePaddle/PaddleDTX/crypto/common/math/rand"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"golang.org/x/exp/rand"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// Shuffler keeps the permutation of the current tree
type Shuffler struct {
	identity bool

	lock      sync.RWMutex
	treeIndex int
	perm      []int // shuffled position -> original bucket id
}

// New returns a Shuffler drawing a fresh random permutation for every tree
func New() *Shuffler {
	return &Shuffler{treeIndex: -1}
}

// NewIdentity returns a Shuffler that never reorders, used by the label holder for its own buckets
func NewIdentity() *Shuffler {
	return &Shuffler{identity: true, treeIndex: -1}
}

// Prepare draws the permutation of n buckets for a tree, it is kept until the tree changes
func (s *Shuffler) Prepare(treeIndex, n int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.perm != nil && s.treeIndex == treeIndex && len(s.perm) == n {
		return nil
	}

	var perm []int
	if s.identity {
		perm = make([]int, n)
		for i := range perm {
			perm[i] = i
		}
	} else {
		seed, err := entropy.GenerateSeedWithStrengthAndKeyLen(entropy.KeyStrengthHard, entropy.KeyLengthInt64)
		if err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to generate shuffle seed")
		}
		perm = rand.New(rand.NewSource(binary.BigEndian.Uint64(seed[:8]))).Perm(n)
	}
	s.treeIndex = treeIndex
	s.perm = perm
	return nil
}

// Shuffle reorders one node's bucket sums, position j receives the sum of bucket perm[j]
func (s *Shuffler) Shuffle(sums []*big.Int) ([]*big.Int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if len(sums) != len(s.perm) {
		return nil, errorx.New(errcodes.ErrCodeTreeNotReady, "shuffler prepared for %d buckets, got %d", len(s.perm), len(sums))
	}
	out := make([]*big.Int, len(sums))
	for j, id := range s.perm {
		out[j] = sums[id]
	}
	return out, nil
}

// UnshuffleSplitBuckets maps shuffled positions back to bucket ids, -1 stays -1
func (s *Shuffler) UnshuffleSplitBuckets(ids []int) ([]int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]int, len(ids))
	for i, id := range ids {
		if id < 0 {
			out[i] = -1
			continue
		}
		if id >= len(s.perm) {
			return nil, errorx.New(errcodes.ErrCodeParam, "bucket %d out of range [0,%d)", id, len(s.perm))
		}
		out[i] = s.perm[id]
	}
	return out, nil
}
