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

package errcodes

// error code list
const (
	// 00xx common error
	ErrCodeInternal = "PX0001" // internal error
	ErrCodeParam    = "PX0002" // parameters error
	ErrCodeConfig   = "PX0003" // configuration error
	ErrCodeNotFound = "PX0004" // target not found
	ErrCodeEncoding = "PX0005" // encoding error
	ErrCodeUnknown  = "PX0006" // unknown error

	// rpc errors
	ErrCodeRPCFindNoPeer = "PX0017" // find no peer when do rpc request
	ErrCodeRPCConnect    = "PX0018" // failed to get connection

	// sgb training errors
	ErrCodeEncrypt      = "PX0031" // failed to encrypt or decrypt gradients
	ErrCodeReveal       = "PX0032" // a party's contribution could not be aggregated or revealed
	ErrCodeTreeNotReady = "PX0033" // tree-level state was used before the tree was initialized
	ErrCodeDataSet      = "PX0034" // failed to load or bucketize a party's data set
)
