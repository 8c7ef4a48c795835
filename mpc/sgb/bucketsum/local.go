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

// Package bucketsum aggregates packed gradients into cumulative bucket histograms.
//  Every party sums the gradients of its own bucket list, the label holder decrypts
//  the sums, lines them up party after party and derives the sibling of every
//  computed node from the parent kept since the previous level.
package bucketsum

import (
	"context"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"golang.org/x/sync/errgroup"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/encryptor"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
)

// LocalSums returns one cumulative histogram per node select. Entry b of feature f
// sums the gradients of the node's samples whose bucket of f is <= b, features follow
// each other in the order of view.Features
func LocalSums(ctx context.Context, cache *encryptor.Cache, view *ordermap.View, selects [][]bool) ([][]*big.Int, error) {
	if cache == nil || view == nil {
		return nil, errorx.New(errcodes.ErrCodeTreeNotReady, "gradients or order map of the tree are missing")
	}
	if len(cache.Values) != view.NumRows() {
		return nil, errorx.New(errcodes.ErrCodeParam, "%d gradients for %d sampled rows", len(cache.Values), view.NumRows())
	}
	for k, s := range selects {
		if len(s) != view.NumRows() {
			return nil, errorx.New(errcodes.ErrCodeParam, "node %d selects %d samples, expected %d", k, len(s), view.NumRows())
		}
	}

	out := make([][]*big.Int, len(selects))
	g, ctx := errgroup.WithContext(ctx)
	for k := range selects {
		k := k
		g.Go(func() error {
			sums, err := histogram(ctx, cache, view, selects[k])
			if err != nil {
				return err
			}
			out[k] = sums
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func histogram(ctx context.Context, cache *encryptor.Cache, view *ordermap.View, sel []bool) ([]*big.Int, error) {
	e := cache.Evaluator
	sums := make([]*big.Int, 0, view.TotalBuckets())
	for pos, counts := range view.BucketLists() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		hist := make([]*big.Int, counts)
		for b := range hist {
			hist[b] = e.Zero()
		}
		for i, in := range sel {
			if in {
				b := view.Buckets[pos][i]
				hist[b] = e.Add(hist[b], cache.Values[i])
			}
		}
		for b := 1; b < counts; b++ {
			hist[b] = e.Add(hist[b-1], hist[b])
		}
		sums = append(sums, hist...)
	}
	return sums, nil
}
