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
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/trainer"
)

var (
	treeIndex  int
	treeOutput string
)

// trainCmd grows one tree over the configured parties and stores it as JSON
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "train one tree, run by the label holder",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig("sgb-trainer.log"); err != nil {
			return err
		}
		conf := config.GetSgbConf()

		holder, parties, stop, err := federation(conf)
		if err != nil {
			return err
		}
		defer stop()

		t, err := trainer.New(trainerParams(conf.Trainer), holder, parties)
		if err != nil {
			return err
		}
		dt, err := t.TrainTree(context.Background(), treeIndex)
		if err != nil {
			logrus.WithError(err).Error("training failed")
			return err
		}

		b, err := dt.Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(treeOutput, b, 0644); err != nil {
			return err
		}
		fmt.Printf("tree %d with %d leaves saved to %s\n", treeIndex, len(dt.Leaves), treeOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().IntVarP(&treeIndex, "tree", "t", 0, "index of the tree in the ensemble")
	trainCmd.Flags().StringVarP(&treeOutput, "output", "o", "./tree.json", "file to store the trained tree")
}
