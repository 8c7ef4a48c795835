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

// Package loss computes first and second order gradients of boosting objectives.
package loss

import (
	"math"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

const (
	SquaredError = "reg:squarederror"
	Logistic     = "binary:logistic"
)

// Computer evaluates g and h of an objective, predictions are raw margins
type Computer interface {
	ComputeGH(y, pred []float64) (g, h []float64, err error)
}

// New returns the Computer of the named objective
func New(objective string) (Computer, error) {
	switch objective {
	case SquaredError, "":
		return squaredError{}, nil
	case Logistic:
		return logistic{}, nil
	}
	return nil, errorx.New(errcodes.ErrCodeParam, "unsupported objective: %s", objective)
}

type squaredError struct{}

// ComputeGH of 1/2*(pred-y)^2
func (squaredError) ComputeGH(y, pred []float64) ([]float64, []float64, error) {
	if err := checkLen(y, pred); err != nil {
		return nil, nil, err
	}
	g := make([]float64, len(y))
	h := make([]float64, len(y))
	for i := range y {
		g[i] = pred[i] - y[i]
		h[i] = 1
	}
	return g, h, nil
}

type logistic struct{}

// ComputeGH of log loss, labels are 0 or 1
func (logistic) ComputeGH(y, pred []float64) ([]float64, []float64, error) {
	if err := checkLen(y, pred); err != nil {
		return nil, nil, err
	}
	g := make([]float64, len(y))
	h := make([]float64, len(y))
	for i := range y {
		p := Sigmoid(pred[i])
		g[i] = p - y[i]
		h[i] = p * (1 - p)
	}
	return g, h, nil
}

// Sigmoid 1/(1+e^-x)
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func checkLen(y, pred []float64) error {
	if len(y) != len(pred) {
		return errorx.New(errcodes.ErrCodeParam, "labels and predictions differ in length, %d != %d", len(y), len(pred))
	}
	return nil
}
