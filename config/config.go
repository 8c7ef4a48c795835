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

package config

import (
	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/spf13/viper"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

var (
	logConf *Log
	sgbConf *SgbConf
)

// SgbConf describes the local party and the federation it trains with
type SgbConf struct {
	Name          string
	ListenAddress string
	LabelHolder   string
	RpcTimeout    int // seconds
	RpcRetry      int
	Trainer       TrainerConf
	Parties       []*PartyConf
}

// PartyConf locates one party of the federation.
//  Address is used by the driver to reach a remote party,
//  Features and Labels are read only by the party itself
type PartyConf struct {
	Name     string
	Address  string
	Features string
	Labels   string
}

// TrainerConf holds the hyper parameters of one tree
type TrainerConf struct {
	MaxDepth           int
	Lambda             float64
	Gamma              float64
	MinChildWeight     float64
	RowSampleRate      float64
	ColSampleRate      float64
	Seed               uint64
	Objective          string
	MaxBins            int
	Precision          uint
	Scheme             string
	PrimeLength        int
	EncryptConcurrency int
}

type Log struct {
	Level string
	Path  string
}

// InitConfig parses configuration file
func InitConfig(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	logConf = new(Log)
	if sub := v.Sub("log"); sub != nil {
		if err := sub.Unmarshal(logConf); err != nil {
			return err
		}
	}

	sub := v.Sub("sgb")
	if sub == nil {
		return errorx.New(errcodes.ErrCodeConfig, "missing config: sgb")
	}
	sgbConf = &SgbConf{
		RpcTimeout: 30,
		Trainer:    DefaultTrainerConf(),
	}
	if err := sub.Unmarshal(sgbConf); err != nil {
		return err
	}
	return nil
}

// DefaultTrainerConf returns the values used when [sgb.trainer] omits a key
func DefaultTrainerConf() TrainerConf {
	return TrainerConf{
		MaxDepth:           5,
		Lambda:             1,
		RowSampleRate:      1,
		ColSampleRate:      1,
		Objective:          "reg:squarederror",
		MaxBins:            32,
		Precision:          32,
		Scheme:             "paillier",
		PrimeLength:        512,
		EncryptConcurrency: 4,
	}
}

// Party returns the configuration of the named party
func (c *SgbConf) Party(name string) (*PartyConf, error) {
	for _, p := range c.Parties {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, errorx.New(errcodes.ErrCodeConfig, "party %s is not configured", name)
}

func GetSgbConf() *SgbConf {
	return sgbConf
}

func GetLogConf() *Log {
	return logConf
}
