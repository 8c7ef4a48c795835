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
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
	"github.com/PaddlePaddle/PaddleDTX/sgb/util/logging"
)

var (
	configPath string
)

// rootCmd represents the base command that is called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sgb-cli",
	Short: "train SecureBoost trees across vertically partitioned parties",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig reads the config file and points logrus at the rotated log file
func initConfig(logFile string) error {
	if err := config.InitConfig(configPath); err != nil {
		return err
	}
	logStd, err := logging.InitLog(config.GetLogConf(), logFile, true)
	if err != nil {
		return err
	}
	logStd.Apply()
	logrus.WithField("conf", configPath).Debug("config loaded")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "./conf/config.toml", "configuration file")
}
