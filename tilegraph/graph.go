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

// Package tilegraph builds the hierarchy of tiles of a function and
// merges the tiles of producers into the tiles of their consumers.
//
// A graph is an arena of vertices and clusters addressed by integer IDs.
// Each compute op of a function gets a chain of vertices, one per tiling
// level, from the outermost level down to level 0. A vertex owns a
// cluster listing the vertices nested in its tile. Merging a producer
// into a consumer at a level moves the producer vertex into the cluster
// of the consumer vertex, so that the producer computes the tile the
// consumer tile needs right before it is used.
//
// Graphs are not safe for concurrent use.
package tilegraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gx-org/tiler/affine"
	gxfmt "github.com/gx-org/tiler/base/fmt"
	"github.com/gx-org/tiler/base/ordered"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/poly"
)

type (
	// VertexID identifies a vertex in a graph.
	VertexID int

	// ClusterID identifies a cluster in a graph.
	ClusterID int

	// DomainRelation relates the tile of an op to the iteration domain it lives in.
	DomainRelation struct {
		// DomainOp is the op owning the iteration space of the tile indices:
		// the op itself before any merge, the consumer absorbing it after.
		DomainOp loopir.OpID
		// RangeOp is the op computed by the vertex.
		RangeOp loopir.OpID
		// Map goes from the tile indices of DomainOp to the offsets of the
		// loops of RangeOp, relative to the enclosing tile.
		Map *affine.Map
		// Extents of the tile for each loop of RangeOp.
		Extents []dim.Dimension
		// Determined marks the loops of RangeOp whose tile is the image of
		// the tile of DomainOp. These loops run once per tile of DomainOp.
		Determined []bool
		// Access is the access relation of RangeOp composed with Map.
		Access *affine.Relation
	}

	// Vertex is the tile of an op at a given level.
	Vertex struct {
		ID       VertexID
		Op       loopir.OpID
		Level    int
		Relation DomainRelation
		// Parent is the cluster the vertex lives in.
		Parent ClusterID
		// Cluster is the cluster owned by the vertex.
		Cluster ClusterID
	}

	// Cluster is a list of vertices nested in the tile of an owner vertex.
	Cluster struct {
		ID ClusterID
		// Owner of the cluster. NoVertex for the root cluster.
		Owner    VertexID
		Level    int
		Vertices []VertexID
	}

	// MergePoint requests to merge the tile of a producer into the
	// tile of a consumer at a given level.
	MergePoint struct {
		Consumer, Producer loopir.OpID
		Level              int
	}

	// Graph of tiles.
	Graph struct {
		fn       *loopir.Func
		maxLevel int
		vertices []*Vertex
		clusters []*Cluster
		root     ClusterID
		// chains stores the vertex of each op at every level, indexed by level.
		chains *ordered.Map[loopir.OpID, []VertexID]
		// tiles stores the tile extent variables of each op, indexed by level then loop.
		tiles map[loopir.OpID][][]*dim.Variable
		// cache memoizes the proofs of merge checks. It is shared by clones.
		cache *poly.Cache
	}
)

const (
	// NoVertex is the owner of the root cluster.
	NoVertex VertexID = -1
	// NoCluster is the parent of vertices not attached to a cluster.
	NoCluster ClusterID = -1
)

func (mp MergePoint) String() string {
	return fmt.Sprintf("%s<-%s@%d", mp.Consumer, mp.Producer, mp.Level)
}

// Func returns the function from which the graph has been built.
func (g *Graph) Func() *loopir.Func {
	return g.fn
}

// MaxLevel returns the level of the root cluster.
// It is one more than the outermost tiling level.
func (g *Graph) MaxLevel() int {
	return g.maxLevel + 1
}

// Vertex returns a vertex given its ID.
func (g *Graph) Vertex(id VertexID) *Vertex {
	return g.vertices[id]
}

// Cluster returns a cluster given its ID.
func (g *Graph) Cluster(id ClusterID) *Cluster {
	return g.clusters[id]
}

// Root returns the root cluster.
func (g *Graph) Root() *Cluster {
	return g.clusters[g.root]
}

// VertexOf returns the vertex of an op at a level.
func (g *Graph) VertexOf(op loopir.OpID, level int) (*Vertex, bool) {
	chain, ok := g.chains.Load(op)
	if !ok || level < 0 || level >= len(chain) {
		return nil, false
	}
	return g.vertices[chain[level]], true
}

// Ops returns the IDs of the ops in the graph in program order.
func (g *Graph) Ops() []loopir.OpID {
	return slices.Collect(g.chains.Keys())
}

// TileVar returns the variable of the tile extent of a loop of an op at a level.
func (g *Graph) TileVar(op loopir.OpID, loop, level int) (*dim.Variable, bool) {
	tiles, ok := g.tiles[op]
	if !ok || level < 0 || level >= len(tiles) || loop < 0 || loop >= len(tiles[level]) {
		return nil, false
	}
	return tiles[level][loop], true
}

// TileVars returns all the tile extent variables of the graph.
func (g *Graph) TileVars() []*dim.Variable {
	var vars []*dim.Variable
	for op := range g.chains.Keys() {
		for _, level := range g.tiles[op] {
			vars = append(vars, level...)
		}
	}
	return vars
}

// IsDetermined returns true if the tile of a loop is fixed by the tile of DomainOp.
func (r DomainRelation) IsDetermined(loop int) bool {
	return loop < len(r.Determined) && r.Determined[loop]
}

// parentExtent returns the extent of the enclosing tile of a loop of an op at a level.
func (g *Graph) parentExtent(op loopir.ComputeNode, loop, level int) dim.Dimension {
	if level == g.maxLevel {
		return op.Extents()[loop]
	}
	parent, _ := g.VertexOf(op.ID(), level+1)
	return parent.Relation.Extents[loop]
}

// Walk visits the vertices reachable from the root in depth-first order.
// A vertex is visited before the vertices of its cluster.
// The walk stops when fn returns false.
func (g *Graph) Walk(fn func(v *Vertex, depth int) bool) {
	g.walkCluster(g.root, 0, fn)
}

func (g *Graph) walkCluster(id ClusterID, depth int, fn func(*Vertex, int) bool) bool {
	for _, vid := range g.clusters[id].Vertices {
		v := g.vertices[vid]
		if !fn(v, depth) {
			return false
		}
		if !g.walkCluster(v.Cluster, depth+1, fn) {
			return false
		}
	}
	return true
}

// subtree returns the vertices in the subtree of a vertex, the vertex included.
func (g *Graph) subtree(id VertexID) []VertexID {
	ids := []VertexID{id}
	for i := 0; i < len(ids); i++ {
		ids = append(ids, g.clusters[g.vertices[ids[i]].Cluster].Vertices...)
	}
	return ids
}

// TopLevel returns the vertices of the root cluster.
func (g *Graph) TopLevel() []*Vertex {
	return g.vertexList(g.Root().Vertices)
}

// Leaves returns the vertices of level 0 in walking order.
func (g *Graph) Leaves() []*Vertex {
	var leaves []*Vertex
	g.Walk(func(v *Vertex, _ int) bool {
		if v.Level == 0 {
			leaves = append(leaves, v)
		}
		return true
	})
	return leaves
}

// VertexCount returns the number of vertices reachable from the root.
func (g *Graph) VertexCount() int {
	n := 0
	g.Walk(func(*Vertex, int) bool {
		n++
		return true
	})
	return n
}

func (g *Graph) vertexList(ids []VertexID) []*Vertex {
	vs := make([]*Vertex, len(ids))
	for i, id := range ids {
		vs[i] = g.vertices[id]
	}
	return vs
}

// LevelStats counts vertices and clusters at a level.
type LevelStats struct {
	Level int
	// Vertices is the number of vertices of the level reachable from the root.
	Vertices int
	// Clusters is the number of non-empty clusters owned by vertices of the level.
	Clusters int
}

// Stats returns the statistics of every level, outermost level first.
// The root cluster is counted at level MaxLevel().
func (g *Graph) Stats() []LevelStats {
	stats := make([]LevelStats, g.maxLevel+2)
	for i := range stats {
		stats[i].Level = g.maxLevel + 1 - i
	}
	at := func(level int) *LevelStats { return &stats[g.maxLevel+1-level] }
	at(g.maxLevel + 1).Clusters = 1
	g.Walk(func(v *Vertex, _ int) bool {
		s := at(v.Level)
		s.Vertices++
		if len(g.clusters[v.Cluster].Vertices) > 0 {
			s.Clusters++
		}
		return true
	})
	return stats
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		fn:       g.fn,
		maxLevel: g.maxLevel,
		vertices: make([]*Vertex, len(g.vertices)),
		clusters: make([]*Cluster, len(g.clusters)),
		root:     g.root,
		chains:   g.chains.Clone(),
		tiles:    g.tiles,
		cache:    g.cache,
	}
	for i, v := range g.vertices {
		cv := *v
		c.vertices[i] = &cv
	}
	for i, cl := range g.clusters {
		ccl := *cl
		ccl.Vertices = slices.Clone(cl.Vertices)
		c.clusters[i] = &ccl
	}
	return c
}

// Equal returns true if two graphs have the same structure and relations.
func (g *Graph) Equal(other *Graph) bool {
	return g.String() == other.String()
}

// Loop is a tile loop emitted for a vertex.
type Loop struct {
	Op    loopir.OpID
	Level int
	// Depth of the vertex in the graph.
	Depth int
	// Name of the loop in the op.
	Name string
	// Tile is the extent of the tile.
	Tile dim.Dimension
	// Trips is the number of tiles in the enclosing tile.
	// It is one for a loop determined by the tile of another op.
	Trips dim.Dimension
}

// Loops returns the tile loops of all the vertices in walking order.
// Tile extents variables are replaced by their values in bindings.
func (g *Graph) Loops(bindings dim.Bindings) []Loop {
	var loops []Loop
	g.Walk(func(v *Vertex, depth int) bool {
		op, _ := g.fn.Op(v.Op)
		for j, name := range op.Loops() {
			tile := dim.Bind(v.Relation.Extents[j], bindings)
			trips := dim.Dimension(dim.Const(1))
			if !v.Relation.IsDetermined(j) {
				parent := dim.Bind(g.parentExtent(op, j, v.Level), bindings)
				trips = dim.CeilDiv(parent, tile)
			}
			loops = append(loops, Loop{
				Op:    v.Op,
				Level: v.Level,
				Depth: depth,
				Name:  name,
				Tile:  tile,
				Trips: trips,
			})
		}
		return true
	})
	return loops
}

func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "root@%d\n", g.MaxLevel())
	g.Walk(func(v *Vertex, depth int) bool {
		sb.WriteString(gxfmt.Indent(depth + 1))
		fmt.Fprintf(&sb, "%s@%d", v.Op, v.Level)
		if v.Relation.DomainOp != v.Op {
			fmt.Fprintf(&sb, " in %s: %s tile %s", v.Relation.DomainOp, v.Relation.Map, dim.Shape(v.Relation.Extents...))
		}
		sb.WriteString("\n")
		return true
	})
	return sb.String()
}
