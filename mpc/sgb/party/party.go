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

// Package party implements the actors that hold data during training.
//  A Worker owns a vertical slice of features, the Holder additionally owns the
//  labels and the private key. The trainer runs in the label holder's process and
//  reaches the other parties over mpc/cluster.
package party

import (
	"context"

	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/he"
	"github.com/PaddlePaddle/PaddleDTX/sgb/mpc/sgb/tree"
)

// Party is what the trainer needs from every participant
type Party interface {
	Name() string
	// Info reports the number of rows and the bucket count of every local feature
	Info(ctx context.Context) (*InfoResponse, error)
	// InitTree samples the local order map and installs the gradient cache of a tree
	InitTree(ctx context.Context, req *InitTreeRequest) error
	// BucketSums returns shuffled cumulative histograms of the requested nodes
	BucketSums(ctx context.Context, req *BucketSumsRequest) (*BucketSumsResponse, error)
	// Split applies the splits the party owns and returns their left child selects
	Split(ctx context.Context, req *SplitRequest) (*SplitResponse, error)
	// SplitTree returns the splits the party recorded during a tree
	SplitTree(ctx context.Context, req *SplitTreeRequest) (*tree.SplitTree, error)
}

// LabelHolder is the Party owning labels, gradients and the private key
type LabelHolder interface {
	Party
	// Gradients computes and encrypts the gradients of a tree
	Gradients(ctx context.Context, req *GradientsRequest) (*GradientsResponse, error)
	// FindSplits aggregates a level's histograms and picks the split of every node
	FindSplits(ctx context.Context, req *FindSplitsRequest) (*FindSplitsResponse, error)
	// ApplySplits grows the children of the nodes FindSplits kept
	ApplySplits(ctx context.Context, req *ApplySplitsRequest) error
	// LeafWeights weights the final leaves
	LeafWeights(ctx context.Context, req *LeafWeightsRequest) (*LeafWeightsResponse, error)
}

type InfoResponse struct {
	Rows           int   `json:"rows"`
	FeatureBuckets []int `json:"featureBuckets"`
}

type GradientsRequest struct {
	TreeIndex int      `json:"treeIndex"`
	Rows      []int    `json:"rows"` // nil for all rows
	Parties   []string `json:"parties"`
}

// GradientsResponse carries one fixed width ciphertext per sampled row
type GradientsResponse struct {
	Public      *he.PublicParams `json:"public"`
	Ciphertexts []byte           `json:"ciphertexts"`
}

type InitTreeRequest struct {
	TreeIndex int                `json:"treeIndex"`
	Rows      []int              `json:"rows"`
	Cols      []int              `json:"cols"`
	Gradients *GradientsResponse `json:"gradients,omitempty"` // not sent to the label holder
}

type BucketSumsRequest struct {
	TreeIndex int      `json:"treeIndex"`
	Selects   [][]bool `json:"selects"`
}

// BucketSumsResponse holds one encoded histogram per requested node
type BucketSumsResponse struct {
	Sums [][]byte `json:"sums"`
}

// PartSums is one party's BucketSumsResponse forwarded to the label holder
type PartSums struct {
	Party string   `json:"party"`
	Sums  [][]byte `json:"sums"`
}

type FindSplitsRequest struct {
	TreeIndex   int         `json:"treeIndex"`
	Level       int         `json:"level"`
	IsLastLevel bool        `json:"isLastLevel"`
	IsLefts     []bool      `json:"isLefts"`
	Indices     []int       `json:"indices"` // every active node of the level
	Selects     [][]bool    `json:"selects"` // the computed nodes only
	Parts       []*PartSums `json:"parts"`   // in bucket layout order
}

// FindSplitsResponse is revealed to the trainer, Buckets index the global bucket list
type FindSplitsResponse struct {
	Buckets       []int  `json:"buckets"`
	CostEffective []bool `json:"costEffective"`
}

type SplitRequest struct {
	TreeIndex int      `json:"treeIndex"`
	Buckets   []int    `json:"buckets"` // shuffled positions in the party's segment, -1 if not owned
	Selects   [][]bool `json:"selects"`
	Keep      []bool   `json:"keep"`
	Indices   []int    `json:"indices"`
}

type SplitResponse struct {
	LeftSelects [][]bool `json:"leftSelects"`
}

type SplitTreeRequest struct {
	TreeIndex int `json:"treeIndex"`
}

// ApplySplitsRequest holds the merged left child select of every active node,
// nil for the nodes that stopped growing
type ApplySplitsRequest struct {
	TreeIndex   int      `json:"treeIndex"`
	LeftSelects [][]bool `json:"leftSelects"`
}

type LeafWeightsRequest struct {
	TreeIndex int      `json:"treeIndex"`
	Selects   [][]bool `json:"selects"`
	Indices   []int    `json:"indices"`
}

type LeafWeightsResponse struct {
	Weights []float64 `json:"weights"`
}
