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

// Package he wraps additively homomorphic schemes used to aggregate packed gradients.
//  The label holder owns a Decrypter, every other party only gets an Evaluator
//  rebuilt from PublicParams.
package he

import (
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

const (
	SchemePaillier = "paillier"
	// SchemePlain keeps values in the clear, for tests and single-party runs
	SchemePlain = "plain"
)

// Evaluator runs public operations over ciphertexts
type Evaluator interface {
	// Encrypt accepts negative values, they are reduced into the message space
	Encrypt(m *big.Int) (*big.Int, error)
	Add(a, b *big.Int) *big.Int
	// Zero returns a ciphertext of 0, the neutral element of Add
	Zero() *big.Int
	// Width is the number of bytes every encoded ciphertext takes
	Width() int
	Public() *PublicParams
}

// Decrypter is an Evaluator that can also decrypt
type Decrypter interface {
	Evaluator
	// Decrypt maps results back to the signed range (-M/2, M/2]
	Decrypt(c *big.Int) *big.Int
}

// PublicParams is what the label holder ships to other parties
type PublicParams struct {
	Scheme string `json:"scheme"`
	N      []byte `json:"n,omitempty"`
	G      []byte `json:"g,omitempty"`
}

// NewDecrypter generates a fresh key pair for the scheme
func NewDecrypter(scheme string, primeLength int) (Decrypter, error) {
	switch scheme {
	case SchemePaillier:
		return newPaillierDecrypter(primeLength)
	case SchemePlain:
		return newPlain(), nil
	}
	return nil, errorx.New(errcodes.ErrCodeParam, "unsupported homomorphic scheme: %s", scheme)
}

// NewEvaluator rebuilds the public half of a scheme
func NewEvaluator(p *PublicParams) (Evaluator, error) {
	if p == nil {
		return nil, errorx.New(errcodes.ErrCodeParam, "empty public params")
	}
	switch p.Scheme {
	case SchemePaillier:
		return newPaillierEvaluator(p)
	case SchemePlain:
		return newPlain(), nil
	}
	return nil, errorx.New(errcodes.ErrCodeParam, "unsupported homomorphic scheme: %s", p.Scheme)
}

// Sum folds cs with e.Add, an empty input gives e.Zero()
func Sum(e Evaluator, cs ...*big.Int) *big.Int {
	acc := e.Zero()
	for _, c := range cs {
		acc = e.Add(acc, c)
	}
	return acc
}
