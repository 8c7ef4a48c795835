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

// Encode writes every ciphertext into exactly e.Width() bytes, so the
// encoded size depends only on the number of ciphertexts
func Encode(e Evaluator, cs []*big.Int) ([]byte, error) {
	w := e.Width()
	out := make([]byte, w*len(cs))
	for i, c := range cs {
		if c == nil || c.Sign() < 0 || (c.BitLen()+7)/8 > w {
			return nil, errorx.New(errcodes.ErrCodeEncoding, "ciphertext %d does not fit in %d bytes", i, w)
		}
		c.FillBytes(out[i*w : (i+1)*w])
	}
	return out, nil
}

// Decode reverses Encode
func Decode(e Evaluator, b []byte) ([]*big.Int, error) {
	w := e.Width()
	if w == 0 || len(b)%w != 0 {
		return nil, errorx.New(errcodes.ErrCodeEncoding, "encoded length %d is not a multiple of %d", len(b), w)
	}
	cs := make([]*big.Int, len(b)/w)
	for i := range cs {
		cs[i] = new(big.Int).SetBytes(b[i*w : (i+1)*w])
	}
	return cs, nil
}
