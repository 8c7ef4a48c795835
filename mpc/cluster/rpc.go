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
	"errors"
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"golang.org/x/net/context"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/p2p"
)

// Rpc performs remote procedure calls to remote parties
type Rpc interface {
	Step(ctx context.Context, msg *Message, peerAddress string) (*Message, error)

	// StepWithRetry sends msg to the remote party, retries 2 times at most.
	// inteSec indicates the interval between retry requests, in seconds
	StepWithRetry(ctx context.Context, msg *Message, peerAddress string, times int, inteSec int64) (*Message, error)
}

// P2P is used to get rpc connection to remote parties,
// remember to call FreePeer() when rpc requests finish
type P2P interface {
	GetPeer(address string) (*p2p.Peer, error)
	FreePeer()
}

// RpcClient implements Rpc interface
type RpcClient struct {
	timeout time.Duration
	cluster P2P
}

// NewRpcClient returns RpcClient instance
// timeout eg. 3*time.Second
// a request is cancelled when timeout elapses
func NewRpcClient(clu P2P, timeout time.Duration) *RpcClient {
	return &RpcClient{
		cluster: clu,
		timeout: timeout,
	}
}

func (rc *RpcClient) Step(ctx context.Context, msg *Message, peerAddress string) (*Message, error) {
	peer, err := rc.cluster.GetPeer(peerAddress)
	if err != nil {
		return nil, errorx.New(errcodes.ErrCodeRPCFindNoPeer, "failed to get peer %s when do rpc request: %s", peerAddress, err.Error())
	}
	defer rc.cluster.FreePeer()

	conn, err := peer.GetConnect()
	if err != nil {
		return nil, errorx.New(errcodes.ErrCodeRPCConnect, "failed to get connection with %s: %s", peerAddress, err.Error())
	}

	in, err := json.Marshal(msg)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to encode %s request", msg.Method)
	}

	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	out, err := NewClusterClient(conn).Step(ctx, wrapperspb.Bytes(in))
	if err != nil {
		logger.Warningf("Step %s to %s is error: %s", msg.Method, peerAddress, err.Error())
		return nil, fromStatus(err, msg.Method, peerAddress)
	}

	var resp Message
	if err := json.Unmarshal(out.GetValue(), &resp); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "bad %s response from %s", msg.Method, peerAddress)
	}
	return &resp, nil
}

// StepWithRetry sends msg to the remote party
// retries 2 times at most
// inteSec indicates the interval between retry requests, in seconds
func (rc *RpcClient) StepWithRetry(ctx context.Context, msg *Message, peerAddress string, times int, inteSec int64) (*Message, error) {
	if times <= 0 {
		times = 1
	} else if times > 2 {
		times = 3
	} else {
		times += 1
	}

	var errR error
	for i := 0; i < times; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(inteSec) * time.Second):
			}
		}
		resp, err := rc.Step(ctx, msg, peerAddress)
		if err == nil {
			return resp, nil
		}
		errR = err
	}

	return nil, errR
}

// fromStatus restores the errorx code a Service put in the status, transport
// failures become ErrCodeRPCConnect
func fromStatus(err error, method, peerAddress string) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unknown {
		return errorx.NewCode(err, errcodes.ErrCodeRPCConnect, "failed to step %s on %s", method, peerAddress)
	}
	return errorx.ParseAndWrap(errors.New(st.Message()), "%s failed on %s", method, peerAddress)
}
