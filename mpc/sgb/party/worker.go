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
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/he"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/bucketsum"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/encryptor"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/sampler"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/shuffler"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/splitbuilder"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

var (
	logger = logrus.WithField("module", "sgb.party")
)

// Worker holds one party's features
type Worker struct {
	name     string
	om       *ordermap.OrderMap
	shuffler *shuffler.Shuffler
	recorder *splitbuilder.Recorder

	lock      sync.RWMutex
	treeIndex int
	view      *ordermap.View
	cache     *encryptor.Cache
}

// NewWorker returns a Worker over a bucketized data set
func NewWorker(name string, om *ordermap.OrderMap) (*Worker, error) {
	if om == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "party %s has no order map", name)
	}
	return &Worker{
		name:      name,
		om:        om,
		shuffler:  shuffler.New(),
		recorder:  splitbuilder.NewRecorder(),
		treeIndex: -1,
	}, nil
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) Info(ctx context.Context) (*InfoResponse, error) {
	return &InfoResponse{
		Rows:           w.om.NumRows(),
		FeatureBuckets: w.om.FeatureBuckets(),
	}, nil
}

func (w *Worker) InitTree(ctx context.Context, req *InitTreeRequest) error {
	if req.Gradients == nil {
		return errorx.New(errcodes.ErrCodeParam, "party %s got no gradients for tree %d", w.name, req.TreeIndex)
	}
	ev, err := he.NewEvaluator(req.Gradients.Public)
	if err != nil {
		return err
	}
	values, err := he.Decode(ev, req.Gradients.Ciphertexts)
	if err != nil {
		return err
	}
	return w.initTree(req, &encryptor.Cache{Evaluator: ev, Values: values})
}

func (w *Worker) initTree(req *InitTreeRequest, cache *encryptor.Cache) error {
	view, err := sampler.ApplyVFedSampling(w.om, req.Rows, req.Cols)
	if err != nil {
		return err
	}
	if len(cache.Values) != view.NumRows() {
		return errorx.New(errcodes.ErrCodeParam, "party %s got %d gradients for %d sampled rows",
			w.name, len(cache.Values), view.NumRows())
	}
	if err := w.shuffler.Prepare(req.TreeIndex, view.TotalBuckets()); err != nil {
		return err
	}
	w.recorder.Reset()

	w.lock.Lock()
	defer w.lock.Unlock()
	w.treeIndex = req.TreeIndex
	w.view = view
	w.cache = cache

	logger.WithFields(logrus.Fields{
		"party":   w.name,
		"tree":    req.TreeIndex,
		"rows":    view.NumRows(),
		"buckets": view.TotalBuckets(),
	}).Debug("tree initialized")
	return nil
}

// state returns the sampled view and gradient cache of treeIndex
func (w *Worker) state(treeIndex int) (*ordermap.View, *encryptor.Cache, error) {
	w.lock.RLock()
	defer w.lock.RUnlock()
	if w.view == nil || w.treeIndex != treeIndex {
		return nil, nil, errorx.New(errcodes.ErrCodeTreeNotReady, "party %s is not initialized for tree %d", w.name, treeIndex)
	}
	return w.view, w.cache, nil
}

func (w *Worker) BucketSums(ctx context.Context, req *BucketSumsRequest) (*BucketSumsResponse, error) {
	view, cache, err := w.state(req.TreeIndex)
	if err != nil {
		return nil, err
	}
	sums, err := bucketsum.LocalSums(ctx, cache, view, req.Selects)
	if err != nil {
		return nil, err
	}
	resp := &BucketSumsResponse{Sums: make([][]byte, len(sums))}
	for k := range sums {
		shuffled, err := w.shuffler.Shuffle(sums[k])
		if err != nil {
			return nil, err
		}
		if resp.Sums[k], err = he.Encode(cache.Evaluator, shuffled); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (w *Worker) Split(ctx context.Context, req *SplitRequest) (*SplitResponse, error) {
	view, _, err := w.state(req.TreeIndex)
	if err != nil {
		return nil, err
	}
	buckets, err := w.shuffler.UnshuffleSplitBuckets(req.Buckets)
	if err != nil {
		return nil, err
	}
	features, err := splitbuilder.GetSplitFeatureListWise(view, buckets)
	if err != nil {
		return nil, err
	}
	lefts, err := w.recorder.DoSplitListWise(view, features, req.Selects, req.Keep, req.Indices)
	if err != nil {
		return nil, err
	}
	return &SplitResponse{LeftSelects: lefts}, nil
}

func (w *Worker) SplitTree(ctx context.Context, req *SplitTreeRequest) (*tree.SplitTree, error) {
	if _, _, err := w.state(req.TreeIndex); err != nil {
		return nil, err
	}
	return w.recorder.SplitTree(), nil
}
