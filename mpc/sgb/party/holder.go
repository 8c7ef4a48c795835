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

package party

import (
	"context"
	"math/big"
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/he"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/bucketsum"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/encryptor"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/loss"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/sampler"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/shuffler"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/splitfinder"
)

// HolderParams configures the label holder
type HolderParams struct {
	Objective      string
	Lambda         float64
	Gamma          float64
	MinChildWeight float64
	Scheme         string
	PrimeLength    int
	Precision      uint
	Concurrency    int
}

// Holder is the Worker that also owns labels and the private key
type Holder struct {
	*Worker
	labels []float64
	loss   loss.Computer
	enc    *encryptor.Encryptor
	plain  he.Decrypter
	calc   *bucketsum.Calculator
	finder *splitfinder.Finder
	lambda float64

	lock      sync.RWMutex
	pred      []float64
	treeIndex int
	grad      []float64
	hess      []float64
	local     *encryptor.Cache
	tree      *nodes
}

// NewHolder generates the key pair of the federation. om may be nil when the
// label holder has no features
func NewHolder(name string, om *ordermap.OrderMap, labels []float64, p HolderParams) (*Holder, error) {
	if len(labels) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "label holder %s has no labels", name)
	}
	if om == nil {
		om = &ordermap.OrderMap{Rows: len(labels)}
	}
	if om.NumRows() != len(labels) {
		return nil, errorx.New(errcodes.ErrCodeParam, "%d labels for %d rows", len(labels), om.NumRows())
	}
	if p.Lambda < 0 || p.Gamma < 0 || p.MinChildWeight < 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "lambda, gamma and minChildWeight must not be negative")
	}
	lc, err := loss.New(p.Objective)
	if err != nil {
		return nil, err
	}
	d, err := he.NewDecrypter(p.Scheme, p.PrimeLength)
	if err != nil {
		return nil, err
	}
	plain, err := he.NewDecrypter(he.SchemePlain, 0)
	if err != nil {
		return nil, err
	}
	w, err := NewWorker(name, om)
	if err != nil {
		return nil, err
	}
	// the label holder already sees its own sums in the clear
	w.shuffler = shuffler.NewIdentity()

	enc := encryptor.New(d, p.Precision, p.Concurrency)
	return &Holder{
		Worker:    w,
		labels:    labels,
		loss:      lc,
		enc:       enc,
		plain:     plain,
		calc:      bucketsum.NewCalculator(enc.Packer),
		finder:    splitfinder.New(p.Lambda, p.Gamma, p.MinChildWeight),
		lambda:    p.Lambda,
		pred:      make([]float64, len(labels)),
		treeIndex: -1,
	}, nil
}

// SetPredictions replaces the raw margins the next tree is fitted against
func (h *Holder) SetPredictions(pred []float64) error {
	if len(pred) != len(h.labels) {
		return errorx.New(errcodes.ErrCodeParam, "%d predictions for %d labels", len(pred), len(h.labels))
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	h.pred = append([]float64(nil), pred...)
	return nil
}

func (h *Holder) Gradients(ctx context.Context, req *GradientsRequest) (*GradientsResponse, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	y := sampler.ApplyVectorSampling(h.labels, req.Rows)
	pred := sampler.ApplyVectorSampling(h.pred, req.Rows)
	g, hs, err := h.loss.ComputeGH(y, pred)
	if err != nil {
		return nil, err
	}
	gh, err := h.enc.Pack(g, hs)
	if err != nil {
		return nil, err
	}
	enc, err := h.enc.Encrypt(ctx, gh, req.TreeIndex)
	if err != nil {
		return nil, err
	}
	caches, err := h.enc.CacheToWorkers(req.Parties, h.name, enc, gh)
	if err != nil {
		return nil, err
	}
	local, ok := caches[h.name]
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeParam, "label holder %s is not among the parties", h.name)
	}

	pub, err := he.NewEvaluator(h.enc.Public())
	if err != nil {
		return nil, err
	}
	ciphertexts, err := he.Encode(pub, enc)
	if err != nil {
		return nil, err
	}

	h.calc.Reset()
	h.treeIndex = req.TreeIndex
	h.grad, h.hess = g, hs
	h.local = local
	h.tree = newNodes(len(gh))
	logger.WithFields(logrus.Fields{"tree": req.TreeIndex, "samples": len(gh)}).Info("gradients encrypted")
	return &GradientsResponse{
		Public:      h.enc.Public(),
		Ciphertexts: ciphertexts,
	}, nil
}

// InitTree installs the plaintext cache prepared by Gradients
func (h *Holder) InitTree(ctx context.Context, req *InitTreeRequest) error {
	h.lock.RLock()
	local, treeIndex := h.local, h.treeIndex
	h.lock.RUnlock()
	if local == nil || treeIndex != req.TreeIndex {
		return errorx.New(errcodes.ErrCodeTreeNotReady, "gradients of tree %d are not computed", req.TreeIndex)
	}
	return h.initTree(req, local)
}

// FindSplits only sums the samples of the active nodes the label holder grew itself
func (h *Holder) FindSplits(ctx context.Context, req *FindSplitsRequest) (*FindSplitsResponse, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.local == nil || h.treeIndex != req.TreeIndex {
		return nil, errorx.New(errcodes.ErrCodeTreeNotReady, "gradients of tree %d are not computed", req.TreeIndex)
	}
	if err := h.tree.checkLevel(req); err != nil {
		return nil, err
	}

	parts := make([]*bucketsum.Part, len(req.Parts))
	for i, ps := range req.Parts {
		var d he.Decrypter = h.enc.Decrypter()
		if ps.Party == h.name {
			d = h.plain
		}
		part := &bucketsum.Part{Party: ps.Party, Decrypter: d, Sums: make([][]*big.Int, len(ps.Sums))}
		for k, b := range ps.Sums {
			sums, err := he.Decode(d, b)
			if err != nil {
				return nil, errorx.Wrap(err, "failed to decode sums of party %s", ps.Party)
			}
			part.Sums[k] = sums
		}
		parts[i] = part
	}

	totals := make([]*big.Int, len(req.Selects))
	for k, sel := range req.Selects {
		var values []*big.Int
		for i, in := range sel {
			if in {
				values = append(values, h.local.Values[i])
			}
		}
		totals[k] = h.plain.Decrypt(he.Sum(h.plain, values...))
	}

	level, err := h.calc.CalculateBucketSumLevelWise(parts, totals, req.IsLefts, req.Indices)
	if err != nil {
		return nil, err
	}
	buckets, costEffective := h.finder.FindBestSplits(level.G, level.H, level.TotalG, level.TotalH, req.TreeIndex, req.Level)
	h.calc.UpdateLevelCache(req.IsLastLevel, costEffective, req.Indices)
	h.tree.found(costEffective)
	logger.WithFields(logrus.Fields{
		"tree":    req.TreeIndex,
		"level":   req.Level,
		"parents": h.calc.Cached(),
	}).Debug("level splits found")
	return &FindSplitsResponse{
		Buckets:       buckets,
		CostEffective: costEffective,
	}, nil
}

func (h *Holder) ApplySplits(ctx context.Context, req *ApplySplitsRequest) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.tree == nil || h.treeIndex != req.TreeIndex {
		return errorx.New(errcodes.ErrCodeTreeNotReady, "gradients of tree %d are not computed", req.TreeIndex)
	}
	return h.tree.apply(req.LeftSelects)
}

// LeafWeights weights the leaves of the grown tree, a request naming other leaves
// or other samples is refused
func (h *Holder) LeafWeights(ctx context.Context, req *LeafWeightsRequest) (*LeafWeightsResponse, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.grad == nil || h.treeIndex != req.TreeIndex {
		return nil, errorx.New(errcodes.ErrCodeTreeNotReady, "gradients of tree %d are not computed", req.TreeIndex)
	}
	if err := h.tree.finish(req); err != nil {
		return nil, err
	}
	weights, err := h.tree.leaves.ComputeLeafWeights(h.grad, h.hess, h.lambda)
	if err != nil {
		return nil, err
	}
	return &LeafWeightsResponse{Weights: weights}, nil
}
