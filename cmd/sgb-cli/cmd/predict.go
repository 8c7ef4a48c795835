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
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
	"github.com/PaddlePaddle/PaddleDTX/sgb/util/dataset"
)

var (
	predictOutput string
)

// predictCmd evaluates a tree where every party's feature file is readable,
// typically on test data gathered for a joint evaluation
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "predict with a trained tree from the feature files of every party",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig("sgb-trainer.log"); err != nil {
			return err
		}
		conf := config.GetSgbConf()

		dt, err := readTree(treeInput)
		if err != nil {
			return err
		}
		features := make(map[string]mat.Matrix)
		for _, pc := range conf.Parties {
			if _, ok := dt.SplitTrees[pc.Name]; !ok || pc.Features == "" {
				continue
			}
			x, err := dataset.ReadFeatures(pc.Features)
			if err != nil {
				return err
			}
			features[pc.Name] = x
		}

		pred, err := dt.Predict(features)
		if err != nil {
			return err
		}
		if err := dataset.WriteVector(predictOutput, pred); err != nil {
			return err
		}
		fmt.Printf("%d predictions saved to %s\n", len(pred), predictOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVarP(&treeInput, "input", "i", "./tree.json", "trained tree")
	predictCmd.Flags().StringVarP(&predictOutput, "output", "o", "./prediction.npy", "file to store predictions")
}
