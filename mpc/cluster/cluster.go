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
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// StepMethod is the full name of the only RPC of sgb.Cluster
const StepMethod = "/sgb.Cluster/Step"

// ClusterServer is the server API of sgb.Cluster
type ClusterServer interface {
	Step(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// ClusterClient is the client API of sgb.Cluster
type ClusterClient interface {
	Step(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type clusterClient struct {
	cc grpc.ClientConnInterface
}

// NewClusterClient returns a client of sgb.Cluster over cc
func NewClusterClient(cc grpc.ClientConnInterface) ClusterClient {
	return &clusterClient{cc}
}

func (c *clusterClient) Step(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, StepMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func stepHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterServer).Step(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StepMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterServer).Step(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// clusterServiceDesc describes sgb.Cluster, a single unary Step carrying a Message
var clusterServiceDesc = grpc.ServiceDesc{
	ServiceName: "sgb.Cluster",
	HandlerType: (*ClusterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Step",
			Handler:    stepHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterClusterServer registers srv to grpcServer
func RegisterClusterServer(grpcServer grpc.ServiceRegistrar, srv ClusterServer) {
	grpcServer.RegisterService(&clusterServiceDesc, srv)
}
