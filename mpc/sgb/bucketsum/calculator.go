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

package bucketsum

import (
	"math/big"
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/he"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/encryptor"
)

var (
	logger = logrus.WithField("module", "sgb.bucketsum")
)

// Part is the contribution of one party to a level, Sums[k] is the shuffled
// cumulative histogram of the k-th computed node
type Part struct {
	Party     string
	Decrypter he.Decrypter
	Sums      [][]*big.Int
}

// Level holds unpacked sums of every active node of a level, in level order
type Level struct {
	G      [][]float64
	H      [][]float64
	TotalG []float64
	TotalH []float64
}

type nodeSums struct {
	buckets []*big.Int
	total   *big.Int
}

// Calculator assembles the global bucket sums at the label holder and keeps the
// sums of split nodes for one level so that their children can be derived
type Calculator struct {
	packer *encryptor.Packer

	lock    sync.Mutex
	parents map[int]*nodeSums
	current map[int]*nodeSums
}

// NewCalculator unpacks sums with packer
func NewCalculator(packer *encryptor.Packer) *Calculator {
	return &Calculator{
		packer:  packer,
		parents: make(map[int]*nodeSums),
		current: make(map[int]*nodeSums),
	}
}

// CalculateBucketSumLevelWise decrypts the parts, concatenates them in the given order
// and completes every sibling pair. totals[k] is the packed gradient sum of the k-th
// computed node, isLefts[k] tells whether it is the left one of its pair, and indices
// lists every active node of the level
func (c *Calculator) CalculateBucketSumLevelWise(parts []*Part, totals []*big.Int, isLefts []bool, indices []int) (*Level, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	nodeNum := len(isLefts)
	if len(totals) != nodeNum {
		return nil, errorx.New(errcodes.ErrCodeParam, "%d totals for %d computed nodes", len(totals), nodeNum)
	}
	if !(nodeNum == 1 && len(indices) == 1) && len(indices) != 2*nodeNum {
		return nil, errorx.New(errcodes.ErrCodeParam, "%d computed nodes cannot cover %d active nodes", nodeNum, len(indices))
	}

	computed := make([]*nodeSums, nodeNum)
	for k := 0; k < nodeNum; k++ {
		ns := &nodeSums{total: totals[k]}
		for _, part := range parts {
			if len(part.Sums) != nodeNum {
				return nil, errorx.New(errcodes.ErrCodeReveal, "party %s sent sums of %d nodes, expected %d", part.Party, len(part.Sums), nodeNum)
			}
			for _, s := range part.Sums[k] {
				ns.buckets = append(ns.buckets, part.Decrypter.Decrypt(s))
			}
		}
		computed[k] = ns
	}

	c.current = make(map[int]*nodeSums, len(indices))
	if len(indices) == 1 {
		c.current[indices[0]] = computed[0]
	} else {
		for k := 0; k < nodeNum; k++ {
			left, right := indices[2*k], indices[2*k+1]
			parent, ok := c.parents[(left-1)/2]
			if !ok || right != left+1 || left%2 != 1 {
				return nil, errorx.New(errcodes.ErrCodeTreeNotReady, "no cached parent for nodes %d and %d", left, right)
			}
			other, err := subtract(parent, computed[k])
			if err != nil {
				return nil, err
			}
			if isLefts[k] {
				c.current[left], c.current[right] = computed[k], other
			} else {
				c.current[left], c.current[right] = other, computed[k]
			}
		}
	}

	level := &Level{
		G:      make([][]float64, len(indices)),
		H:      make([][]float64, len(indices)),
		TotalG: make([]float64, len(indices)),
		TotalH: make([]float64, len(indices)),
	}
	for i, idx := range indices {
		ns := c.current[idx]
		level.G[i] = make([]float64, len(ns.buckets))
		level.H[i] = make([]float64, len(ns.buckets))
		for b, v := range ns.buckets {
			level.G[i][b], level.H[i][b] = c.packer.Unpack(v)
		}
		level.TotalG[i], level.TotalH[i] = c.packer.Unpack(ns.total)
	}
	return level, nil
}

func subtract(parent, child *nodeSums) (*nodeSums, error) {
	if len(parent.buckets) != len(child.buckets) {
		return nil, errorx.New(errcodes.ErrCodeReveal, "bucket layout changed between levels, %d != %d", len(parent.buckets), len(child.buckets))
	}
	out := &nodeSums{
		buckets: make([]*big.Int, len(parent.buckets)),
		total:   new(big.Int).Sub(parent.total, child.total),
	}
	for b := range parent.buckets {
		out.buckets[b] = new(big.Int).Sub(parent.buckets[b], child.buckets[b])
	}
	return out, nil
}

// UpdateLevelCache keeps the sums of the nodes that split as parents of the next level,
// nothing is kept after the last level
func (c *Calculator) UpdateLevelCache(isLastLevel bool, keep []bool, indices []int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	parents := make(map[int]*nodeSums)
	if !isLastLevel {
		for i, idx := range indices {
			if i < len(keep) && keep[i] {
				if ns, ok := c.current[idx]; ok {
					parents[idx] = ns
				}
			}
		}
	}
	logger.WithField("kept", len(parents)).Debug("level cache updated")
	c.parents = parents
	c.current = make(map[int]*nodeSums)
}

// Reset forgets everything of the previous tree
func (c *Calculator) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.parents = make(map[int]*nodeSums)
	c.current = make(map[int]*nodeSums)
}

// Cached returns the number of parent nodes kept for the next level
func (c *Calculator) Cached() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.parents)
}
