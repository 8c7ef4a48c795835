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
	"context"
	"net"
	"testing"
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/he"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/loss"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/party"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/trainer"
	"github.com/PaddlePaddle/PaddleDTX/sgb/p2p"
)

const bufSize = 1024 * 1024

// network serves parties over in-memory listeners keyed by address
type network struct {
	listeners map[string]*bufconn.Listener
	servers   []*grpc.Server
}

func newNetwork() *network {
	return &network{listeners: make(map[string]*bufconn.Listener)}
}

func (n *network) serve(t *testing.T, address string, p party.Party) {
	svc, err := NewService(p)
	require.NoError(t, err)
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	svc.RegisterClusterServer(s)
	go s.Serve(lis)
	n.listeners[address] = lis
	n.servers = append(n.servers, s)
}

func (n *network) dialer(ctx context.Context, address string) (net.Conn, error) {
	lis, ok := n.listeners[address]
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "bufconn", Err: net.UnknownNetworkError(address)}
	}
	return lis.Dial()
}

func (n *network) stop() {
	for _, s := range n.servers {
		s.Stop()
	}
}

func (n *network) rpc(t *testing.T) *RpcClient {
	pool := p2p.NewP2P(grpc.WithContextDialer(n.dialer))
	t.Cleanup(pool.Stop)
	return NewRpcClient(pool, 5*time.Second)
}

type dataset struct {
	holderX, workerX, y []float64
	rows                int
}

func randomDataset(rows int) *dataset {
	r := rand.New(rand.NewSource(11))
	d := &dataset{rows: rows}
	for i := 0; i < rows; i++ {
		a, b := r.NormFloat64(), r.NormFloat64()
		d.holderX = append(d.holderX, a)
		d.workerX = append(d.workerX, b, r.Float64())
		d.y = append(d.y, a-3*b)
	}
	return d
}

func newParties(t *testing.T, d *dataset) (*party.Holder, *party.Worker) {
	hom, err := ordermap.Build(mat.NewDense(d.rows, 1, d.holderX), 8)
	require.NoError(t, err)
	wom, err := ordermap.Build(mat.NewDense(d.rows, 2, d.workerX), 8)
	require.NoError(t, err)

	h, err := party.NewHolder("alice", hom, d.y, party.HolderParams{
		Objective: loss.SquaredError,
		Lambda:    1,
		Scheme:    he.SchemePlain,
		Precision: 32,
	})
	require.NoError(t, err)
	w, err := party.NewWorker("bob", wom)
	require.NoError(t, err)
	return h, w
}

func TestStep(t *testing.T) {
	d := randomDataset(8)
	h, w := newParties(t, d)
	n := newNetwork()
	defer n.stop()
	n.serve(t, "bob:8080", w)
	rpc := n.rpc(t)
	ctx := context.Background()

	// the label holder trains in process and is never served
	_, err := NewService(h)
	require.Error(t, err)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))

	bob := NewClient("bob", "bob:8080", rpc, 0, 0)
	info, err := bob.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, 8, info.Rows)
	require.Len(t, info.FeatureBuckets, 2)

	for _, method := range []string{"Gradients", "FindSplits", "LeafWeights", "Predict"} {
		_, err = rpc.Step(ctx, &Message{Method: method, Payload: []byte("{}")}, "bob:8080")
		require.Error(t, err, method)
		require.True(t, errorx.Is(err, errcodes.ErrCodeParam), method)
	}

	// remote errors keep their code
	_, err = bob.BucketSums(ctx, &party.BucketSumsRequest{TreeIndex: 4})
	require.Error(t, err)
	require.True(t, errorx.Is(err, errcodes.ErrCodeTreeNotReady))
}

func TestStepWithRetryUnreachable(t *testing.T) {
	n := newNetwork()
	defer n.stop()
	rpc := n.rpc(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	carol := NewClient("carol", "carol:8080", rpc, 2, 0)
	_, err := carol.Info(ctx)
	require.Error(t, err)
	require.True(t, errorx.Is(err, errcodes.ErrCodeRPCConnect))
}

func TestRemoteTraining(t *testing.T) {
	d := randomDataset(24)
	features := map[string]mat.Matrix{
		"alice": mat.NewDense(d.rows, 1, d.holderX),
		"bob":   mat.NewDense(d.rows, 2, d.workerX),
	}
	params := trainer.Params{MaxDepth: 3, RowSampleRate: 1, ColSampleRate: 1, Seed: 3}

	h, w := newParties(t, d)
	local, err := trainer.New(params, h, []party.Party{h, w})
	require.NoError(t, err)
	want, err := local.TrainTree(context.Background(), 0)
	require.NoError(t, err)

	rh, rw := newParties(t, d)
	n := newNetwork()
	defer n.stop()
	n.serve(t, "bob:8080", rw)
	bob := NewClient("bob", "bob:8080", n.rpc(t), 1, 0)

	remote, err := trainer.New(params, rh, []party.Party{rh, bob})
	require.NoError(t, err)
	got, err := remote.TrainTree(context.Background(), 0)
	require.NoError(t, err)

	require.Equal(t, want.Leaves, got.Leaves)
	require.InDeltaSlice(t, want.Weights, got.Weights, 1e-9)
	require.Equal(t, want.SplitTrees["alice"], got.SplitTrees["alice"])
	wp, err := want.Predict(features)
	require.NoError(t, err)
	gp, err := got.Predict(features)
	require.NoError(t, err)
	require.InDeltaSlice(t, wp, gp, 1e-9)
}
