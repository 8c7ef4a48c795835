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
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/party"
)

var (
	logger = logrus.WithField("module", "mpc.cluster")
)

// Service serves the party running in this process to the trainer. The label holder
// runs the trainer itself and is never served
type Service struct {
	local party.Party
}

// NewService to create a Service instance
func NewService(p party.Party) (*Service, error) {
	if _, ok := p.(party.LabelHolder); ok {
		return nil, errorx.New(errcodes.ErrCodeParam, "label holder %s drives training and is not served", p.Name())
	}
	return &Service{local: p}, nil
}

// RegisterClusterServer to register the Service to grpcServer
func (s *Service) RegisterClusterServer(grpcServer *grpc.Server) {
	RegisterClusterServer(grpcServer, s)
}

// Step @implementation sgb.Cluster.Step
func (s *Service) Step(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var msg Message
	if err := json.Unmarshal(in.GetValue(), &msg); err != nil {
		return nil, toStatus(errorx.NewCode(err, errcodes.ErrCodeEncoding, "bad step message"))
	}

	resp, err := s.handle(ctx, &msg)
	if err != nil {
		logger.WithError(err).WithField("method", msg.Method).Warn("step failed")
		return nil, toStatus(err)
	}
	out, err := newMessage(msg.Method, resp)
	if err != nil {
		return nil, toStatus(errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to encode %s response", msg.Method))
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, toStatus(errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to encode %s response", msg.Method))
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Service) handle(ctx context.Context, msg *Message) (interface{}, error) {
	switch msg.Method {
	case MethodInfo:
		return s.local.Info(ctx)
	case MethodInitTree:
		var req party.InitTreeRequest
		if err := decode(msg, &req); err != nil {
			return nil, err
		}
		return nil, s.local.InitTree(ctx, &req)
	case MethodBucketSums:
		var req party.BucketSumsRequest
		if err := decode(msg, &req); err != nil {
			return nil, err
		}
		return s.local.BucketSums(ctx, &req)
	case MethodSplit:
		var req party.SplitRequest
		if err := decode(msg, &req); err != nil {
			return nil, err
		}
		return s.local.Split(ctx, &req)
	case MethodSplitTree:
		var req party.SplitTreeRequest
		if err := decode(msg, &req); err != nil {
			return nil, err
		}
		return s.local.SplitTree(ctx, &req)
	}
	return nil, errorx.New(errcodes.ErrCodeParam, "party %s does not serve %q", s.local.Name(), msg.Method)
}

func decode(msg *Message, v interface{}) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "bad %s request", msg.Method)
	}
	return nil
}

// toStatus keeps the errorx code across the wire
func toStatus(err error) error {
	code, message := errorx.Parse(err)
	return status.Error(codes.Unknown, errorx.New(code, "%s", message).Error())
}
