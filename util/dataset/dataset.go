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

// Package dataset reads the numpy files parties keep their samples in
package dataset

import (
	"os"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// ReadFeatures loads a 2-D float64 array, one row per sample
func ReadFeatures(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeDataSet, "failed to open %s", fileName)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeDataSet, "failed to read %s", fileName)
	}
	if shape := r.Header.Descr.Shape; len(shape) != 2 {
		return nil, errorx.New(errcodes.ErrCodeDataSet, "%s holds a %d-D array, expected 2-D", fileName, len(shape))
	}
	m := &mat.Dense{}
	if err := r.Read(m); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeDataSet, "failed to read %s", fileName)
	}
	return m, nil
}

// ReadLabels loads a float64 array of any shape in row major order
func ReadLabels(fileName string) ([]float64, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeDataSet, "failed to open %s", fileName)
	}
	defer f.Close()

	var labels []float64
	if err := npyio.Read(f, &labels); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeDataSet, "failed to read %s", fileName)
	}
	return labels, nil
}

// WriteVector stores v as a 1-D array
func WriteVector(fileName string, v []float64) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to create %s", fileName)
	}
	if err := npyio.Write(f, v); err != nil {
		f.Close()
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to write %s", fileName)
	}
	return f.Close()
}
