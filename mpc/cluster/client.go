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

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"golang.org/x/net/context"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/party"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

// Client is a remote party seen through Rpc
type Client struct {
	name    string
	address string
	rpc     Rpc
	retry   int
	inteSec int64
}

var _ party.Party = (*Client)(nil)

// NewClient returns the party name served at address,
// retry and inteSec are handed to Rpc.StepWithRetry
func NewClient(name, address string, rpc Rpc, retry int, inteSec int64) *Client {
	return &Client{
		name:    name,
		address: address,
		rpc:     rpc,
		retry:   retry,
		inteSec: inteSec,
	}
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	msg, err := newMessage(method, req)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to encode %s request", method)
	}

	out, err := c.rpc.StepWithRetry(ctx, msg, c.address, c.retry, c.inteSec)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(out.Payload, resp); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "bad %s response from %s", method, c.name)
	}
	return nil
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Info(ctx context.Context) (*party.InfoResponse, error) {
	var resp party.InfoResponse
	if err := c.call(ctx, MethodInfo, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) InitTree(ctx context.Context, req *party.InitTreeRequest) error {
	return c.call(ctx, MethodInitTree, req, nil)
}

func (c *Client) BucketSums(ctx context.Context, req *party.BucketSumsRequest) (*party.BucketSumsResponse, error) {
	var resp party.BucketSumsResponse
	if err := c.call(ctx, MethodBucketSums, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Split(ctx context.Context, req *party.SplitRequest) (*party.SplitResponse, error) {
	var resp party.SplitResponse
	if err := c.call(ctx, MethodSplit, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SplitTree(ctx context.Context, req *party.SplitTreeRequest) (*tree.SplitTree, error) {
	resp := tree.NewSplitTree()
	if err := c.call(ctx, MethodSplitTree, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
