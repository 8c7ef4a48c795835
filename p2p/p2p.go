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

package p2p

import (
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

var (
	logger = logrus.WithField("module", "p2p")
)

type State uint8

const (
	// NEW indicates that the P2P is new and ready for providing service
	NEW State = iota

	// CLOSED indicates that the P2P has been closed
	CLOSED
)

// P2P keeps one gRPC connection per remote party
type P2P struct {
	peers    sync.Map       // key is 'ip:port', value is '*Peer'
	lock     sync.RWMutex   // guards state
	state    State          // state of p2p network
	wg       sync.WaitGroup // for waiting all connections freed when stopping
	dialOpts []grpc.DialOption
}

// NewP2P returns a connection pool, dialOpts are appended to the insecure default
func NewP2P(dialOpts ...grpc.DialOption) *P2P {
	return &P2P{
		state:    NEW,
		dialOpts: dialOpts,
	}
}

// Stop waits for the peers in use to be freed and closes every connection
func (p *P2P) Stop() {
	p.lock.Lock()
	p.state = CLOSED
	p.lock.Unlock()

	logger.Info("start to shut down P2P, please wait...")
	p.wg.Wait()

	p.peers.Range(func(k, v interface{}) bool {
		v.(*Peer).closeConn()
		return true
	})
}

// GetPeer returns the peer at address, creating it if needed.
// Call FreePeer once the request finishes
func (p *P2P) GetPeer(address string) (*Peer, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.state == CLOSED {
		return nil, errorx.New(errcodes.ErrCodeRPCFindNoPeer, "p2p service closed")
	}
	peer, _ := p.peers.LoadOrStore(address, newPeer(address, p.dialOpts))

	p.wg.Add(1)
	return peer.(*Peer), nil
}

// FreePeer releases a peer returned by GetPeer
func (p *P2P) FreePeer() {
	p.wg.Done()
}
