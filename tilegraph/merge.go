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
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/affine"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/poly"
	"github.com/hashicorp/go-set/v3"
	"k8s.io/klog/v2"
)

// mergePlan stores everything needed to apply a merge.
// Computing a plan never modifies the graph.
type mergePlan struct {
	mp       MergePoint
	producer *Vertex
	consumer *Vertex
	relation DomainRelation
	// hoisted is the finer vertex of the producer moved next to the
	// producer, or NoVertex if the producer keeps its cluster.
	hoisted VertexID
}

// rejection is the reason why a merge point is invalid.
type rejection string

// Merge merges the tile of a producer into the tile of its consumer.
// It returns false if the merge point is invalid, in which case the
// graph is unchanged. An error is returned only if an access relation
// cannot be represented with affine constraints.
func (g *Graph) Merge(mp MergePoint) (bool, error) {
	return g.MergeContext(context.Background(), mp)
}

// MergeContext merges a producer into a consumer and logs the decision
// with the logger of the context.
func (g *Graph) MergeContext(ctx context.Context, mp MergePoint) (bool, error) {
	logger := klog.FromContext(ctx)
	plan, reason, err := g.plan(mp)
	if err != nil {
		return false, err
	}
	if plan == nil {
		logger.V(2).Info("merge rejected", "merge", mp.String(), "reason", string(reason))
		return false, nil
	}
	g.apply(plan)
	logger.V(2).Info("merge accepted", "merge", mp.String(), "flattened", plan.hoisted != NoVertex)
	return true, nil
}

// CanMerge returns true if a merge point is valid without modifying the graph.
func (g *Graph) CanMerge(mp MergePoint) (bool, error) {
	plan, _, err := g.plan(mp)
	return plan != nil, err
}

func rejectf(format string, a ...any) (*mergePlan, rejection, error) {
	return nil, rejection(fmt.Sprintf(format, a...)), nil
}

func (g *Graph) plan(mp MergePoint) (*mergePlan, rejection, error) {
	if mp.Level < 0 || mp.Level > g.maxLevel {
		return rejectf("level %d out of range [0, %d]", mp.Level, g.maxLevel)
	}
	if mp.Consumer == mp.Producer {
		return rejectf("cannot merge %s into itself", mp.Consumer)
	}
	cv, ok := g.VertexOf(mp.Consumer, mp.Level)
	if !ok {
		return rejectf("consumer %s not found", mp.Consumer)
	}
	pv, ok := g.VertexOf(mp.Producer, mp.Level)
	if !ok {
		return rejectf("producer %s not found", mp.Producer)
	}
	if cv.Parent != pv.Parent {
		return rejectf("%s and %s are not in the same cluster at level %d", mp.Consumer, mp.Producer, mp.Level)
	}
	consumer, _ := g.fn.Op(mp.Consumer)
	producer, _ := g.fn.Op(mp.Producer)
	operand := consumer.OperandOf(mp.Producer)
	if operand < 0 {
		return rejectf("%s does not read the result of %s", mp.Consumer, mp.Producer)
	}
	if g.createsCycle(cv, pv) {
		return rejectf("merging %s into %s creates a cycle", mp.Producer, mp.Consumer)
	}
	composed, reason, err := g.producerTiles(mp, consumer, producer, operand)
	if err != nil || reason != "" {
		return nil, reason, err
	}
	extents, determined, reason, err := g.mergedExtents(mp, composed, pv)
	if err != nil || reason != "" {
		return nil, reason, err
	}
	cTiles := tileMap(g.tiles[mp.Consumer][mp.Level])
	m, err := affine.Compose(composed, cTiles)
	if err != nil {
		return nil, "", err
	}
	access, err := producer.Relation().Compose(m)
	if err != nil {
		return nil, "", err
	}
	plan := &mergePlan{
		mp:       mp,
		producer: pv,
		consumer: cv,
		relation: DomainRelation{
			DomainOp:   mp.Consumer,
			RangeOp:    mp.Producer,
			Map:        m,
			Extents:    extents,
			Determined: determined,
			Access:     access,
		},
		hoisted: NoVertex,
	}
	if mp.Level > 0 {
		finer, _ := g.VertexOf(mp.Producer, mp.Level-1)
		own := g.clusters[pv.Cluster].Vertices
		if len(own) == 1 && own[0] == finer.ID {
			plan.hoisted = finer.ID
		}
	}
	return plan, "", nil
}

// dependsOn returns true if an op in the subtree of x reads a tensor
// computed by an op in the subtree of y.
func (g *Graph) dependsOn(x, y VertexID) bool {
	produced := set.New[loopir.OpID](0)
	for _, id := range g.subtree(y) {
		produced.Insert(g.vertices[id].Op)
	}
	for _, id := range g.subtree(x) {
		for producer := range produced.Items() {
			if g.fn.DependsOn(g.vertices[id].Op, producer) {
				return true
			}
		}
	}
	return false
}

// createsCycle returns true if the consumer depends on the producer
// through another vertex of their cluster. Moving the producer into
// the consumer would then require the other vertex to run both before
// and after the consumer.
func (g *Graph) createsCycle(cv, pv *Vertex) bool {
	siblings := g.clusters[cv.Parent].Vertices
	visited := set.New[VertexID](len(siblings))
	stack := []VertexID{cv.ID}
	visited.Insert(cv.ID)
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range siblings {
			if s == x || visited.Contains(s) {
				continue
			}
			if x == cv.ID && s == pv.ID {
				continue
			}
			if !g.dependsOn(x, s) {
				continue
			}
			if s == pv.ID {
				return true
			}
			visited.Insert(s)
			stack = append(stack, s)
		}
	}
	return false
}

// producerTiles returns the map from the loop offsets of the consumer
// to the loop offsets of the producer computing the data read by the
// consumer. A non-empty rejection is returned if the producer would be
// computed more than once per consumer tile.
func (g *Graph) producerTiles(mp MergePoint, consumer, producer loopir.ComputeNode, operand int) (*affine.Map, rejection, error) {
	inv, err := producer.Result().Map.Inverse()
	if errors.Is(err, affine.ErrUnsupported) {
		return nil, rejection(fmt.Sprintf("result of %s cannot be inverted: %v", mp.Producer, err)), nil
	}
	if err != nil {
		return nil, "", err
	}
	composed, err := affine.Compose(inv, consumer.Operands()[operand].Map)
	if errors.Is(err, affine.ErrUnsupported) {
		return nil, rejection(fmt.Sprintf("access of %s to %s cannot be composed: %v", mp.Consumer, mp.Producer, err)), nil
	}
	if err != nil {
		return nil, "", err
	}
	var reason rejection
	err = poly.With(func(ctx *poly.Context) error {
		used := make([]bool, composed.NumDims())
		users := make([]int, composed.NumDims())
		for _, res := range composed.Results {
			if _, err := ctx.FromDimension(res); err != nil {
				return err
			}
			var loops []int
			for j, d := range composed.Dims {
				if dim.DependsOn(res, d.Name) {
					loops = append(loops, j)
					used[j] = true
				}
			}
			if len(loops) > 1 {
				reason = rejection(fmt.Sprintf("index %s of %s mixes loops %v of %s", res, mp.Producer, loopNames(consumer, loops), mp.Consumer))
				return nil
			}
			for _, j := range loops {
				users[j]++
				if users[j] > 1 {
					reason = rejection(fmt.Sprintf("loop %s of %s indexes several loops of %s: its tiles would compute a larger block of %s", consumer.Loops()[j], mp.Consumer, mp.Producer, mp.Producer))
					return nil
				}
			}
		}
		for j, u := range used {
			if u {
				continue
			}
			tile := g.tiles[mp.Consumer][mp.Level][j]
			single, err := g.cache.ProvablyGE(tile, g.parentExtent(consumer, j, mp.Level))
			if err != nil {
				return err
			}
			if !single {
				reason = rejection(fmt.Sprintf("loop %s of %s does not index %s: its tiles would recompute %s", consumer.Loops()[j], mp.Consumer, mp.Producer, mp.Producer))
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return composed, reason, nil
}

// mergedExtents returns the tile extents of a producer merged into a
// consumer. A loop of the producer indexed by a loop of the consumer
// spans the image of the consumer tile: the producer computes exactly
// one tile per consumer tile. The other loops keep the tiles of the producer.
func (g *Graph) mergedExtents(mp MergePoint, composed *affine.Map, pv *Vertex) ([]dim.Dimension, []bool, rejection, error) {
	tile := affine.NewDomain(asDims(g.tiles[mp.Consumer][mp.Level])...)
	syms := make([]dim.Dimension, composed.NumSymbols())
	for i := range syms {
		syms[i] = dim.Const(0)
	}
	image, err := tile.Image(composed, syms)
	if errors.Is(err, affine.ErrUnsupported) {
		return nil, nil, rejection(fmt.Sprintf("tile of %s read by a tile of %s is not a box: %v", mp.Producer, mp.Consumer, err)), nil
	}
	if err != nil {
		return nil, nil, "", err
	}
	extents := slices.Clone(pv.Relation.Extents)
	determined := make([]bool, len(extents))
	for i, res := range composed.Results {
		indexed := slices.ContainsFunc(composed.Dims, func(v *dim.Variable) bool {
			return dim.DependsOn(res, v.Name)
		})
		if !indexed {
			continue
		}
		extents[i] = image.Extents[i]
		determined[i] = true
	}
	return extents, determined, "", nil
}

func loopNames(op loopir.ComputeNode, loops []int) []string {
	names := make([]string, len(loops))
	for i, j := range loops {
		names[i] = op.Loops()[j]
	}
	return names
}

func (g *Graph) detach(id VertexID) {
	v := g.vertices[id]
	parent := g.clusters[v.Parent]
	parent.Vertices = slices.DeleteFunc(parent.Vertices, func(x VertexID) bool { return x == id })
	v.Parent = NoCluster
}

func (g *Graph) insert(id VertexID, cluster ClusterID, pos int) {
	cl := g.clusters[cluster]
	cl.Vertices = slices.Insert(cl.Vertices, pos, id)
	g.vertices[id].Parent = cluster
}

func (g *Graph) apply(plan *mergePlan) {
	pv, cv := plan.producer, plan.consumer
	g.detach(pv.ID)
	target := g.clusters[cv.Cluster]
	// The producer runs before the first vertex reading its result.
	pos := slices.IndexFunc(target.Vertices, func(x VertexID) bool {
		return g.dependsOn(x, pv.ID)
	})
	if pos < 0 {
		pos = len(target.Vertices)
	}
	g.insert(pv.ID, cv.Cluster, pos)
	pv.Relation = plan.relation
	if plan.hoisted != NoVertex {
		g.detach(plan.hoisted)
		g.insert(plan.hoisted, cv.Cluster, pos+1)
	}
	for _, root := range []VertexID{pv.ID, plan.hoisted} {
		if root == NoVertex {
			continue
		}
		for _, id := range g.subtree(root) {
			g.vertices[id].Relation.DomainOp = plan.mp.Consumer
		}
	}
}
