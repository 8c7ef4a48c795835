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

package he

import (
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

type paillierEvaluator struct {
	pk    *paillier.PublicKey
	half  *big.Int
	width int
}

func newPaillierEvaluator(p *PublicParams) (*paillierEvaluator, error) {
	if len(p.N) == 0 || len(p.G) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "paillier public key is incomplete")
	}
	pk := &paillier.PublicKey{
		N: new(big.Int).SetBytes(p.N),
		G: new(big.Int).SetBytes(p.G),
	}
	return wrapPublicKey(pk), nil
}

func wrapPublicKey(pk *paillier.PublicKey) *paillierEvaluator {
	nSquare := new(big.Int).Mul(pk.N, pk.N)
	return &paillierEvaluator{
		pk:    pk,
		half:  new(big.Int).Rsh(pk.N, 1),
		width: (nSquare.BitLen() + 7) / 8,
	}
}

func (e *paillierEvaluator) Encrypt(m *big.Int) (*big.Int, error) {
	if new(big.Int).Abs(m).Cmp(e.half) >= 0 {
		return nil, errorx.New(errcodes.ErrCodeEncrypt, "message exceeds half of the paillier modulus")
	}
	c, err := e.pk.EncryptSupNegNum(m)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncrypt, "paillier encryption failed")
	}
	return c, nil
}

func (e *paillierEvaluator) Add(a, b *big.Int) *big.Int {
	return e.pk.CyphersAdd(a, b)
}

// Zero is g^0 * 1^N
func (e *paillierEvaluator) Zero() *big.Int {
	return big.NewInt(1)
}

func (e *paillierEvaluator) Width() int {
	return e.width
}

func (e *paillierEvaluator) Public() *PublicParams {
	return &PublicParams{
		Scheme: SchemePaillier,
		N:      e.pk.N.Bytes(),
		G:      e.pk.G.Bytes(),
	}
}

type paillierDecrypter struct {
	*paillierEvaluator
	sk *paillier.PrivateKey
}

func newPaillierDecrypter(primeLength int) (*paillierDecrypter, error) {
	if primeLength <= 0 {
		primeLength = paillier.DefaultPrimeLength
	}
	sk, err := paillier.GeneratePrivateKey(primeLength)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncrypt, "failed to generate paillier key")
	}
	return &paillierDecrypter{
		paillierEvaluator: wrapPublicKey(&sk.PublicKey),
		sk:                sk,
	}, nil
}

func (d *paillierDecrypter) Decrypt(c *big.Int) *big.Int {
	return d.sk.DecryptSupNegNum(c)
}
