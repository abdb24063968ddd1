// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tilegraph

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/affine"
	"github.com/gx-org/tiler/base/diag"
	"github.com/gx-org/tiler/base/ordered"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/poly"
)

// Builder builds tile graphs.
type Builder struct {
	maxLevel int
}

// NewBuilder returns a builder creating maxLevel+1 tiling levels per op.
func NewBuilder(maxLevel int) *Builder {
	return &Builder{maxLevel: maxLevel}
}

// TileVarName returns the name of the variable of the tile extent
// of a loop of an op at a level.
func TileVarName(op loopir.OpID, loop string, level int) string {
	return fmt.Sprintf("%s.%s.L%d", op, loop, level)
}

type graphBuilder struct {
	g    *Graph
	errs *diag.Errors
}

var _ loopir.Visitor = (*graphBuilder)(nil)

// Build the tile graph of a function.
// Errors of all the ops are reported together.
func (b *Builder) Build(fn *loopir.Func) (*Graph, error) {
	if b.maxLevel < 0 {
		return nil, errors.Errorf("invalid maximum level %d", b.maxLevel)
	}
	g := &Graph{
		fn:       fn,
		maxLevel: b.maxLevel,
		chains:   ordered.NewMap[loopir.OpID, []VertexID](),
		tiles:    make(map[loopir.OpID][][]*dim.Variable),
		cache:    poly.NewCache(),
	}
	g.root = g.newCluster(NoVertex, b.maxLevel+1)
	gb := &graphBuilder{g: g, errs: &diag.Errors{}}
	if err := loopir.Walk(fn.Body, gb); err != nil {
		return nil, err
	}
	if err := gb.errs.ToError(); err != nil {
		return nil, err
	}
	return g, nil
}

func (gb *graphBuilder) VisitElementwise(n *loopir.Elementwise) error {
	gb.addOp(n)
	return nil
}

func (gb *graphBuilder) VisitContraction(n *loopir.Contraction) error {
	gb.addOp(n)
	return nil
}

func (gb *graphBuilder) VisitPack(n *loopir.Pack) error {
	gb.addOp(n)
	return nil
}

func (gb *graphBuilder) VisitUnpack(n *loopir.Unpack) error {
	gb.addOp(n)
	return nil
}

func (gb *graphBuilder) VisitLoop(n *loopir.Loop) error {
	return loopir.Walk(n.Body, gb)
}

func (g *Graph) newCluster(owner VertexID, level int) ClusterID {
	id := ClusterID(len(g.clusters))
	g.clusters = append(g.clusters, &Cluster{ID: id, Owner: owner, Level: level})
	return id
}

func (g *Graph) newVertex(op loopir.OpID, level int, rel DomainRelation, parent ClusterID) *Vertex {
	v := &Vertex{
		ID:       VertexID(len(g.vertices)),
		Op:       op,
		Level:    level,
		Relation: rel,
		Parent:   parent,
	}
	g.vertices = append(g.vertices, v)
	v.Cluster = g.newCluster(v.ID, level)
	g.clusters[parent].Vertices = append(g.clusters[parent].Vertices, v.ID)
	return v
}

// tileRange returns the range of a tile extent given the extent of a loop.
func tileRange(extent dim.Dimension) *dim.Range {
	if v, ok := dim.FixedValue(extent); ok {
		return &dim.Range{Lo: 1, Hi: v}
	}
	if _, hi, ok := dim.Bounds(extent); ok {
		return &dim.Range{Lo: 1, Hi: hi}
	}
	return &dim.Range{Lo: 1, Hi: dim.Unbounded}
}

// tileMap returns the map from tile indices to tile offsets d_j*T_j.
func tileMap(tiles []*dim.Variable) *affine.Map {
	return affine.FromCallable(len(tiles), 0, func(dims, _ []dim.Dimension) []dim.Dimension {
		res := make([]dim.Dimension, len(tiles))
		for j, t := range tiles {
			res[j] = dim.Mul(dims[j], t)
		}
		return res
	})
}

func checkAccesses(errs *diag.Errors, n loopir.ComputeNode) bool {
	rank := len(n.Loops())
	ok := true
	if len(n.Extents()) != rank {
		ok = errs.Append(diag.Internalf("%d extents for %d loops", len(n.Extents()), rank))
	}
	accesses := append([]loopir.Access{n.Result()}, n.Operands()...)
	for _, acc := range accesses {
		if acc.Map.NumDims() != rank {
			ok = errs.Append(diag.Internalf("access %s to %s has %d dimensions but the op has %d loops", acc.Map, acc.Tensor.Name, acc.Map.NumDims(), rank))
		}
		if acc.Map.NumResults() != acc.Tensor.Shape.Rank() {
			ok = errs.Append(diag.Internalf("access %s to %s%s has %d results", acc.Map, acc.Tensor.Name, acc.Tensor.Shape, acc.Map.NumResults()))
		}
	}
	return ok
}

func (gb *graphBuilder) addOp(n loopir.ComputeNode) {
	g := gb.g
	id := n.ID()
	errs := gb.errs.Prefixed("op %s: ", id)
	if _, exists := g.chains.Load(id); exists {
		errs.Appendf("op defined twice")
		return
	}
	if !checkAccesses(errs, n) {
		return
	}
	tiles := make([][]*dim.Variable, g.maxLevel+1)
	for level := range tiles {
		tiles[level] = make([]*dim.Variable, len(n.Loops()))
		for j, loop := range n.Loops() {
			tiles[level][j] = &dim.Variable{
				Name:  TileVarName(id, loop, level),
				Range: tileRange(n.Extents()[j]),
			}
		}
	}
	rel := n.Relation()
	chain := make([]VertexID, g.maxLevel+1)
	parent := g.root
	for level := g.maxLevel; level >= 0; level-- {
		m := tileMap(tiles[level])
		access, err := rel.Compose(m)
		if err != nil {
			errs.Append(err)
			return
		}
		v := g.newVertex(id, level, DomainRelation{
			DomainOp: id,
			RangeOp:  id,
			Map:      m,
			Extents:  asDims(tiles[level]),
			Access:   access,
		}, parent)
		chain[level] = v.ID
		parent = v.Cluster
	}
	g.chains.Store(id, chain)
	g.tiles[id] = tiles
}

func asDims(vs []*dim.Variable) []dim.Dimension {
	ds := make([]dim.Dimension, len(vs))
	for i, v := range vs {
		ds[i] = v
	}
	return ds
}
