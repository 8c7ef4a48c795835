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

// Package encryptor packs the label holder's gradient pairs into one integer per sample
// and encrypts them once per tree.
package encryptor

import (
	"context"
	"math"
	"math/big"
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/cjqpker/slidewindow"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/he"
)

var (
	logger = logrus.WithField("module", "sgb.encryptor")
)

const (
	DefaultPrecision   = 32
	DefaultConcurrency = 4

	// bits reserved above the precision for summing hessians without overflow
	hessianHeadroom = 48
)

// Packer converts (g,h) to fixed point and interleaves them as g*2^shift + h.
//  h must be non negative so that a sum of packed values still unpacks exactly
type Packer struct {
	precision uint
	shift     uint
	scale     float64
}

// NewPacker keeps precision fractional bits, 0 means DefaultPrecision
func NewPacker(precision uint) *Packer {
	if precision == 0 {
		precision = DefaultPrecision
	}
	return &Packer{
		precision: precision,
		shift:     precision + hessianHeadroom,
		scale:     math.Ldexp(1, int(precision)),
	}
}

// Pack merges g and h element by element
func (p *Packer) Pack(g, h []float64) ([]*big.Int, error) {
	if len(g) != len(h) {
		return nil, errorx.New(errcodes.ErrCodeParam, "g and h differ in length, %d != %d", len(g), len(h))
	}
	gh := make([]*big.Int, len(g))
	for i := range g {
		if h[i] < 0 || math.IsNaN(h[i]) || math.IsNaN(g[i]) || math.IsInf(g[i], 0) || math.IsInf(h[i], 0) {
			return nil, errorx.New(errcodes.ErrCodeParam, "invalid gradient pair (%v,%v) at %d", g[i], h[i], i)
		}
		v := p.encode(g[i])
		v.Lsh(v, p.shift)
		gh[i] = v.Add(v, p.encode(h[i]))
	}
	return gh, nil
}

func (p *Packer) encode(x float64) *big.Int {
	v, _ := big.NewFloat(math.Round(x * p.scale)).Int(nil)
	return v
}

// Unpack splits a packed value, or a sum of packed values, into (G,H)
func (p *Packer) Unpack(v *big.Int) (float64, float64) {
	mod := new(big.Int).Lsh(big.NewInt(1), p.shift)
	hSum := new(big.Int).Mod(v, mod)
	gSum := new(big.Int).Sub(v, hSum)
	gSum.Rsh(gSum, p.shift)
	return p.decode(gSum), p.decode(hSum)
}

func (p *Packer) decode(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f / p.scale
}

// Cache is the gradient state one party aggregates over during a tree
type Cache struct {
	Evaluator he.Evaluator
	Values    []*big.Int
}

// Encryptor encrypts packed gradients of the latest tree and keeps the result
type Encryptor struct {
	*Packer
	scheme      he.Decrypter
	concurrency int

	lock      sync.Mutex
	treeIndex int
	packed    []*big.Int
	cached    []*big.Int
}

// New returns an Encryptor over the label holder's key
func New(scheme he.Decrypter, precision uint, concurrency int) *Encryptor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Encryptor{
		Packer:      NewPacker(precision),
		scheme:      scheme,
		concurrency: concurrency,
		treeIndex:   -1,
	}
}

// Encrypt returns one ciphertext per packed value. A second call for the
// same tree with the same packed values returns the ciphertexts of the first
// call without encrypting again
func (e *Encryptor) Encrypt(ctx context.Context, gh []*big.Int, treeIndex int) ([]*big.Int, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.cached != nil && e.treeIndex == treeIndex && samePacked(e.packed, gh) {
		return e.cached, nil
	}

	enc := make([]*big.Int, len(gh))
	if len(gh) > 0 {
		sw := slidewindow.SlideWindow{
			Total:       uint64(len(gh)),
			Concurrency: uint64(e.concurrency),
		}
		sw.Init = func(ctx context.Context, s *slidewindow.Session) error {
			return nil
		}
		sw.Task = func(ctx context.Context, s *slidewindow.Session) error {
			c, err := e.scheme.Encrypt(gh[s.Index()])
			if err != nil {
				return err
			}
			s.Set("cipher", c)
			return nil
		}
		sw.Done = func(ctx context.Context, s *slidewindow.Session) error {
			c, exist := s.Get("cipher")
			if !exist {
				return errorx.New(errcodes.ErrCodeEncrypt, "missing ciphertext of sample %d", s.Index())
			}
			enc[s.Index()] = c.(*big.Int)
			return nil
		}
		if err := sw.Start(ctx); err != nil {
			return nil, errorx.Wrap(err, "failed to encrypt gradients of tree %d", treeIndex)
		}
	}

	logger.WithFields(logrus.Fields{"tree": treeIndex, "samples": len(gh)}).Debug("gradients encrypted")
	e.treeIndex = treeIndex
	e.packed = append([]*big.Int(nil), gh...)
	e.cached = enc
	return enc, nil
}

func samePacked(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Cmp(b[i]) != 0 {
			return false
		}
	}
	return true
}

// Public is the evaluator handed to parties without the private key
func (e *Encryptor) Public() *he.PublicParams {
	return e.scheme.Public()
}

// Decrypter returns the label holder's key
func (e *Encryptor) Decrypter() he.Decrypter {
	return e.scheme
}

// CacheToWorkers builds the aggregation cache of every party. The label holder
// sums its plaintext gh, every other party sums the ciphertexts
func (e *Encryptor) CacheToWorkers(parties []string, labelHolder string, enc, gh []*big.Int) (map[string]*Cache, error) {
	if len(enc) != len(gh) {
		return nil, errorx.New(errcodes.ErrCodeEncrypt, "%d ciphertexts for %d samples", len(enc), len(gh))
	}
	plain, err := he.NewDecrypter(he.SchemePlain, 0)
	if err != nil {
		return nil, err
	}
	local := make([]*big.Int, len(gh))
	for i, v := range gh {
		if local[i], err = plain.Encrypt(v); err != nil {
			return nil, err
		}
	}

	pub, err := he.NewEvaluator(e.scheme.Public())
	if err != nil {
		return nil, err
	}
	remote := &Cache{Evaluator: pub, Values: enc}
	caches := make(map[string]*Cache, len(parties))
	for _, p := range parties {
		if p == labelHolder {
			caches[p] = &Cache{Evaluator: plain, Values: local}
			continue
		}
		caches[p] = remote
	}
	return caches, nil
}
