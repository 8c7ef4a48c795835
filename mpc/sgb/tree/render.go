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

package tree

import (
	"fmt"
	"io"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// Formats maps file extensions to graphviz formats
var Formats = map[string]graphviz.Format{
	"png": graphviz.PNG,
	"svg": graphviz.SVG,
	"jpg": graphviz.JPG,
	"dot": graphviz.XDOT,
}

// Render draws the tree, internal nodes show their owner and split, leaves their weight
func (t *DistributedTree) Render(w io.Writer, format string) error {
	f, ok := Formats[format]
	if !ok {
		return errorx.New(errcodes.ErrCodeParam, "unsupported figure type: %s", format)
	}
	g := graphviz.New()
	defer g.Close()
	graph, err := g.Graph()
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to create graph")
	}
	defer graph.Close()

	weights := make(map[int]float64, len(t.Leaves))
	for i, l := range t.Leaves {
		if i < len(t.Weights) {
			weights[l] = t.Weights[i]
		}
	}
	if err := t.draw(graph, 0, nil, weights); err != nil {
		return err
	}
	if err := g.Render(graph, f, w); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to render tree")
	}
	return nil
}

func (t *DistributedTree) draw(g *cgraph.Graph, n int, parent *cgraph.Node, weights map[int]float64) error {
	node, err := g.CreateNode(fmt.Sprint(n))
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to create node %d", n)
	}
	if parent != nil {
		if _, err := g.CreateEdge("", parent, node); err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to link node %d", n)
		}
	}

	owner, split := t.Owners[n]
	if !split {
		node.Set("label", fmt.Sprintf("leaf %d\nweight %.6g", n, weights[n]))
		node.Set("shape", "box")
		return nil
	}
	sp := t.SplitTrees[owner].Splits[n]
	node.Set("label", fmt.Sprintf("%s\nf%d <= %.6g", owner, sp.Feature, sp.Threshold))
	if err := t.draw(g, 2*n+1, node, weights); err != nil {
		return err
	}
	return t.draw(g, 2*n+2, node, weights)
}
