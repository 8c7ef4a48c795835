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

package cluster

import (
	"encoding/json"
)

// Methods carried by Message
const (
	MethodInfo       = "Info"
	MethodInitTree   = "InitTree"
	MethodBucketSums = "BucketSums"
	MethodSplit      = "Split"
	MethodSplitTree  = "SplitTree"
)

// Message is the payload of a Step in both directions, Payload is the JSON encoded
// request or response of Method
type Message struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newMessage(method string, v interface{}) (*Message, error) {
	m := &Message{Method: method}
	if v == nil {
		return m, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m.Payload = b
	return m, nil
}
