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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/cluster"
	"github.com/PaddlePaddle/PaddleDTX/sgb/server"
)

// serveCmd runs a party without labels so that the label holder can drive it
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the local party to remote trainers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig("sgb-party.log"); err != nil {
			return err
		}
		conf := config.GetSgbConf()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-quit
			cancel()
		}()

		if conf.Name == conf.LabelHolder {
			return errorx.New(errcodes.ErrCodeConfig, "label holder %s runs train, it is not served", conf.Name)
		}
		local, err := localParty(conf)
		if err != nil {
			return err
		}
		svc, err := cluster.NewService(local)
		if err != nil {
			return err
		}
		srv := server.New(conf)
		svc.RegisterClusterServer(srv.GrpcServer)

		logrus.WithField("party", conf.Name).Infof("listening on %s", conf.ListenAddress)
		if err := srv.Serve(ctx); err != nil && err != context.Canceled {
			logrus.WithError(err).Error("failed to start server")
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
