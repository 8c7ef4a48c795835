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

package server

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
)

const (
	// MaxRecvMsgSize max message size, level histograms of wide data sets are large
	MaxRecvMsgSize = 1024 * 1024 * 1024
	// MaxConcurrentStreams max concurrent
	MaxConcurrentStreams = 1000
	// GRPCTIMEOUT grpc timeout
	GRPCTIMEOUT = 20
)

var (
	logger = logrus.WithField("module", "server")
)

// Server serves the Step requests of remote trainers
type Server struct {
	listenAddr string
	GrpcServer *grpc.Server
}

// New creates a GRPC server which has no service registered and has not
// started to accept requests yet.
func New(conf *config.SgbConf) *Server {
	ser := grpc.NewServer(grpc.MaxRecvMsgSize(MaxRecvMsgSize),
		grpc.MaxConcurrentStreams(MaxConcurrentStreams), grpc.ConnectionTimeout(time.Second*time.Duration(GRPCTIMEOUT)))
	return &Server{
		listenAddr: conf.ListenAddress,
		GrpcServer: ser,
	}
}

// Serve runs Server and blocks current routine until ctx is done or serving fails
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		logger.WithError(err).Errorf("listen tcp error: %v", err)
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.GrpcServer.Serve(lis)
	}()
	logger.Infof("serving on %s", lis.Addr())

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Errorf("failed to start grpc serve: %v", err)
		}
		return err
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}
}

// Stop when get interrupt signal
func (s *Server) Stop() {
	if s.GrpcServer != nil {
		s.GrpcServer.GracefulStop()
	}
}
