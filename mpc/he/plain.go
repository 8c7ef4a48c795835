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

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

const plainBits = 256

// plain works in Z_M with M = 2^256 and never hides anything
type plain struct {
	m    *big.Int
	half *big.Int
}

func newPlain() *plain {
	m := new(big.Int).Lsh(big.NewInt(1), plainBits)
	return &plain{
		m:    m,
		half: new(big.Int).Rsh(m, 1),
	}
}

func (p *plain) Encrypt(m *big.Int) (*big.Int, error) {
	if new(big.Int).Abs(m).Cmp(p.half) >= 0 {
		return nil, errorx.New(errcodes.ErrCodeEncrypt, "message exceeds %d bits", plainBits-1)
	}
	return new(big.Int).Mod(m, p.m), nil
}

func (p *plain) Add(a, b *big.Int) *big.Int {
	s := new(big.Int).Add(a, b)
	return s.Mod(s, p.m)
}

func (p *plain) Zero() *big.Int {
	return big.NewInt(0)
}

func (p *plain) Width() int {
	return plainBits / 8
}

func (p *plain) Public() *PublicParams {
	return &PublicParams{Scheme: SchemePlain}
}

func (p *plain) Decrypt(c *big.Int) *big.Int {
	r := new(big.Int).Mod(c, p.m)
	if r.Cmp(p.half) > 0 {
		r.Sub(r, p.m)
	}
	return r
}
