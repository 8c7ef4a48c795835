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
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/cluster"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/ordermap"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/party"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/trainer"
	"github.com/PaddlePaddle/PaddleDTX/sgb/p2p"
	"github.com/PaddlePaddle/PaddleDTX/sgb/util/dataset"
)

// localParty loads the data of the party this process runs as
func localParty(conf *config.SgbConf) (party.Party, error) {
	pc, err := conf.Party(conf.Name)
	if err != nil {
		return nil, err
	}
	tc := conf.Trainer

	var om *ordermap.OrderMap
	if pc.Features != "" {
		x, err := dataset.ReadFeatures(pc.Features)
		if err != nil {
			return nil, err
		}
		if om, err = ordermap.Build(x, tc.MaxBins); err != nil {
			return nil, err
		}
	}

	if conf.Name != conf.LabelHolder {
		if om == nil {
			return nil, errorx.New(errcodes.ErrCodeConfig, "party %s has no features", conf.Name)
		}
		return party.NewWorker(conf.Name, om)
	}

	labels, err := dataset.ReadLabels(pc.Labels)
	if err != nil {
		return nil, err
	}
	return party.NewHolder(conf.Name, om, labels, party.HolderParams{
		Objective:      tc.Objective,
		Lambda:         tc.Lambda,
		Gamma:          tc.Gamma,
		MinChildWeight: tc.MinChildWeight,
		Scheme:         tc.Scheme,
		PrimeLength:    tc.PrimeLength,
		Precision:      tc.Precision,
		Concurrency:    tc.EncryptConcurrency,
	})
}

// federation lists every configured party in configuration order. The local party
// must be the label holder, the others are reached through cluster clients. Call the
// returned stop once done
func federation(conf *config.SgbConf) (party.LabelHolder, []party.Party, func(), error) {
	if conf.Name != conf.LabelHolder {
		return nil, nil, nil, errorx.New(errcodes.ErrCodeConfig,
			"only the label holder %s trains, this party is %s", conf.LabelHolder, conf.Name)
	}
	local, err := localParty(conf)
	if err != nil {
		return nil, nil, nil, err
	}
	holder, ok := local.(party.LabelHolder)
	if !ok {
		return nil, nil, nil, errorx.New(errcodes.ErrCodeConfig, "party %s cannot hold labels", conf.Name)
	}

	pool := p2p.NewP2P()
	rpc := cluster.NewRpcClient(pool, time.Duration(conf.RpcTimeout)*time.Second)
	parties := make([]party.Party, 0, len(conf.Parties))
	for _, pc := range conf.Parties {
		if pc.Name == conf.Name {
			parties = append(parties, holder)
			continue
		}
		parties = append(parties, cluster.NewClient(pc.Name, pc.Address, rpc, conf.RpcRetry, 1))
	}
	return holder, parties, pool.Stop, nil
}

func trainerParams(tc config.TrainerConf) trainer.Params {
	return trainer.Params{
		MaxDepth:      tc.MaxDepth,
		RowSampleRate: tc.RowSampleRate,
		ColSampleRate: tc.ColSampleRate,
		Seed:          tc.Seed,
	}
}
