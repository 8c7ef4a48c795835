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
	"os"

	"github.com/spf13/cobra"

	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

var (
	treeInput    string
	figureOutput string
	format       string
)

func readTree(fileName string) (*tree.DistributedTree, error) {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	return tree.Unmarshal(b)
}

// renderCmd draws a trained tree with graphviz
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "draw a trained tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		dt, err := readTree(treeInput)
		if err != nil {
			return err
		}
		f, err := os.Create(figureOutput)
		if err != nil {
			return err
		}
		if err := dt.Render(f, format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("tree drawn to %s\n", figureOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&treeInput, "input", "i", "./tree.json", "trained tree")
	renderCmd.Flags().StringVarP(&figureOutput, "output", "o", "./tree.png", "figure file")
	renderCmd.Flags().StringVarP(&format, "format", "f", "png", "figure type, png, svg, jpg or dot")
}
