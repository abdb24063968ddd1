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

package tilegraph_test

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/tilegraph"
)

func c(v int64) dim.Dimension { return dim.Const(v) }

// mlp builds two chained matrix multiplications with an exponential in between.
func mlp(t *testing.T) *loopir.Func {
	b := loopir.NewFuncBuilder("mlp")
	x := b.Arg("x", dtype.Float32, c(384), c(512))
	w1 := b.Arg("w1", dtype.Float32, c(512), c(256))
	w2 := b.Arg("w2", dtype.Float32, c(256), c(128))
	h := b.MatMul("mm1", x, w1)
	e := b.Elementwise("exp", "exp", h)
	y := b.MatMul("mm2", e, w2)
	fn, err := b.Build(y)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return fn
}

func build(t *testing.T, fn *loopir.Func, maxLevel int) *tilegraph.Graph {
	g, err := tilegraph.NewBuilder(maxLevel).Build(fn)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return g
}

// structure returns the nesting of the vertices of a graph.
func structure(g *tilegraph.Graph) []string {
	var lines []string
	g.Walk(func(v *tilegraph.Vertex, depth int) bool {
		lines = append(lines, fmt.Sprintf("%s%s@%d", strings.Repeat(".", depth), v.Op, v.Level))
		return true
	})
	return lines
}

func leafOps(g *tilegraph.Graph) []loopir.OpID {
	var ops []loopir.OpID
	for _, v := range g.Leaves() {
		ops = append(ops, v.Op)
	}
	slices.Sort(ops)
	return ops
}

func TestBuild(t *testing.T) {
	g := build(t, mlp(t), 2)
	if g.MaxLevel() != 3 {
		t.Errorf("got max level %d but want 3", g.MaxLevel())
	}
	if got := len(g.TopLevel()); got != 3 {
		t.Errorf("got %d top-level vertices but want 3", got)
	}
	if got := g.VertexCount(); got != 9 {
		t.Errorf("got %d vertices but want 9", got)
	}
	wantStats := []tilegraph.LevelStats{
		{Level: 3, Vertices: 0, Clusters: 1},
		{Level: 2, Vertices: 3, Clusters: 3},
		{Level: 1, Vertices: 3, Clusters: 3},
		{Level: 0, Vertices: 3, Clusters: 0},
	}
	if diff := cmp.Diff(wantStats, g.Stats()); diff != "" {
		t.Errorf("unexpected statistics:\n%s", diff)
	}
	v, ok := g.VertexOf("mm1", 1)
	if !ok {
		t.Fatalf("vertex mm1@1 not found")
	}
	rel := v.Relation
	if rel.DomainOp != "mm1" || rel.RangeOp != "mm1" {
		t.Errorf("got relation %s -> %s but want mm1 -> mm1", rel.DomainOp, rel.RangeOp)
	}
	if got, want := dim.Shape(rel.Extents...).String(), "[mm1.m.L1, mm1.n.L1, mm1.k.L1]"; got != want {
		t.Errorf("got tile extents %s but want %s", got, want)
	}
	tile, _ := g.TileVar("mm1", 0, 2)
	if tile.Name != "mm1.m.L2" || tile.Range.Lo != 1 || tile.Range.Hi != 384 {
		t.Errorf("got tile variable %s in %v", tile, *tile.Range)
	}
	if got := len(g.TileVars()); got != 3*3+2*3+3*3 {
		t.Errorf("got %d tile variables", got)
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := tilegraph.NewBuilder(-1).Build(mlp(t)); err == nil {
		t.Errorf("expected an error for a negative maximum level")
	}
}

func TestMergeScenario(t *testing.T) {
	g := build(t, mlp(t), 2)
	tests := []struct {
		mp       tilegraph.MergePoint
		want     bool
		topLevel int
	}{
		{
			mp:       tilegraph.MergePoint{Consumer: "exp", Producer: "mm1", Level: 2},
			want:     true,
			topLevel: 2,
		},
		{
			// mm2 iterates over columns not indexing exp.
			mp:       tilegraph.MergePoint{Consumer: "mm2", Producer: "exp", Level: 2},
			want:     false,
			topLevel: 2,
		},
		{
			mp:       tilegraph.MergePoint{Consumer: "mm2", Producer: "mm1", Level: 2},
			want:     false,
			topLevel: 2,
		},
		{
			mp:       tilegraph.MergePoint{Consumer: "mm1", Producer: "exp", Level: 1},
			want:     false,
			topLevel: 2,
		},
		{
			mp:       tilegraph.MergePoint{Consumer: "exp", Producer: "mm1", Level: 1},
			want:     true,
			topLevel: 2,
		},
		{
			mp:       tilegraph.MergePoint{Consumer: "exp", Producer: "mm1", Level: 0},
			want:     true,
			topLevel: 2,
		},
		{
			mp:       tilegraph.MergePoint{Consumer: "exp", Producer: "mm1", Level: 3},
			want:     false,
			topLevel: 2,
		},
		{
			mp:       tilegraph.MergePoint{Consumer: "exp", Producer: "unknown", Level: 2},
			want:     false,
			topLevel: 2,
		},
	}
	wantLeaves := []loopir.OpID{"exp", "mm1", "mm2"}
	for i, test := range tests {
		before := g.Clone()
		got, err := g.Merge(test.mp)
		if err != nil {
			t.Errorf("test %d: %s: %+v", i, test.mp, err)
			continue
		}
		if got != test.want {
			t.Errorf("test %d: merge %s: got %v but want %v", i, test.mp, got, test.want)
		}
		if n := len(g.TopLevel()); n != test.topLevel {
			t.Errorf("test %d: got %d top-level vertices but want %d", i, n, test.topLevel)
		}
		if n := g.VertexCount(); n != 9 {
			t.Errorf("test %d: got %d vertices but want 9", i, n)
		}
		if diff := cmp.Diff(wantLeaves, leafOps(g)); diff != "" {
			t.Errorf("test %d: leaves changed:\n%s", i, diff)
		}
		if !got {
			if !g.Equal(before) {
				t.Errorf("test %d: failed merge changed the graph:\n%s\nwant:\n%s", i, g, before)
			}
			if diff := cmp.Diff(before.Stats(), g.Stats()); diff != "" {
				t.Errorf("test %d: failed merge changed the statistics:\n%s", i, diff)
			}
		}
	}
	want := []string{
		"exp@2",
		".mm1@2",
		".exp@1",
		"..mm1@1",
		"..exp@0",
		"...mm1@0",
		"mm2@2",
		".mm2@1",
		"..mm2@0",
	}
	if diff := cmp.Diff(want, structure(g)); diff != "" {
		t.Errorf("unexpected structure:\n%s", diff)
	}
	for level := 0; level <= 2; level++ {
		v, _ := g.VertexOf("mm1", level)
		if v.Relation.DomainOp != "exp" {
			t.Errorf("mm1@%d: got domain op %s but want exp", level, v.Relation.DomainOp)
		}
	}
	if !strings.Contains(g.String(), "mm1@2 in exp") {
		t.Errorf("merged relation missing in:\n%s", g)
	}
}

func TestMergeFlatten(t *testing.T) {
	g := build(t, mlp(t), 2)
	ok, err := g.Merge(tilegraph.MergePoint{Consumer: "exp", Producer: "mm1", Level: 2})
	if err != nil || !ok {
		t.Fatalf("merge failed: %v %+v", ok, err)
	}
	want := []string{
		"exp@2",
		".mm1@2",
		".mm1@1",
		"..mm1@0",
		".exp@1",
		"..exp@0",
		"mm2@2",
		".mm2@1",
		"..mm2@0",
	}
	if diff := cmp.Diff(want, structure(g)); diff != "" {
		t.Errorf("unexpected structure:\n%s", diff)
	}
	wantStats := []tilegraph.LevelStats{
		{Level: 3, Vertices: 0, Clusters: 1},
		{Level: 2, Vertices: 3, Clusters: 2},
		{Level: 1, Vertices: 3, Clusters: 3},
		{Level: 0, Vertices: 3, Clusters: 0},
	}
	if diff := cmp.Diff(wantStats, g.Stats()); diff != "" {
		t.Errorf("unexpected statistics:\n%s", diff)
	}
}

func TestMergeRejectionIsDeterministic(t *testing.T) {
	g := build(t, mlp(t), 2)
	mp := tilegraph.MergePoint{Consumer: "mm2", Producer: "exp", Level: 2}
	var graphs []string
	for i := 0; i < 2; i++ {
		ok, err := g.Merge(mp)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if ok {
			t.Errorf("attempt %d: merge %s accepted", i, mp)
		}
		graphs = append(graphs, g.String())
	}
	if graphs[0] != graphs[1] {
		t.Errorf("graphs differ after two rejections:\n%s\n%s", graphs[0], graphs[1])
	}
}

func TestMergeCycle(t *testing.T) {
	b := loopir.NewFuncBuilder("diamond")
	x := b.Arg("x", dtype.Float32, c(64), c(64))
	a := b.Elementwise("a", "exp", x)
	bb := b.Elementwise("b", "neg", a)
	sum := b.Elementwise("c", "add", a, bb)
	fn, err := b.Build(sum)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	g := build(t, fn, 1)
	tests := []struct {
		mp   tilegraph.MergePoint
		want bool
	}{
		{mp: tilegraph.MergePoint{Consumer: "c", Producer: "a", Level: 1}, want: false},
		{mp: tilegraph.MergePoint{Consumer: "c", Producer: "b", Level: 1}, want: true},
		{mp: tilegraph.MergePoint{Consumer: "c", Producer: "a", Level: 1}, want: true},
	}
	for i, test := range tests {
		got, err := g.Merge(test.mp)
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		if got != test.want {
			t.Errorf("test %d: merge %s: got %v but want %v\n%s", i, test.mp, got, test.want, g)
		}
	}
}

func TestMergeAccessRejections(t *testing.T) {
	b := loopir.NewFuncBuilder("blocked")
	x := b.Arg("x", dtype.Float32, c(64), c(64))
	e := b.Elementwise("exp", "exp", x)
	p := b.Pack("pack", e, 16, 8)
	u := b.Unpack("unpack", p, 16, 8)
	n := b.Elementwise("neg", "neg", u)
	fn, err := b.Build(n)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	g := build(t, fn, 1)
	tests := []tilegraph.MergePoint{
		// Each pack index mixes a block loop and an element loop.
		{Consumer: "pack", Producer: "exp", Level: 1},
		// The result of unpack cannot be inverted.
		{Consumer: "neg", Producer: "unpack", Level: 1},
	}
	for i, mp := range tests {
		ok, err := g.CanMerge(mp)
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		if ok {
			t.Errorf("test %d: merge %s accepted", i, mp)
		}
	}
	ok, err := g.CanMerge(tilegraph.MergePoint{Consumer: "unpack", Producer: "pack", Level: 1})
	if err != nil || !ok {
		t.Errorf("merge unpack<-pack: got %v, %v but want true", ok, err)
	}
	if got := len(g.TopLevel()); got != 4 {
		t.Errorf("CanMerge modified the graph: got %d top-level vertices", got)
	}
}

func TestClone(t *testing.T) {
	g := build(t, mlp(t), 1)
	clone := g.Clone()
	if ok, err := clone.Merge(tilegraph.MergePoint{Consumer: "exp", Producer: "mm1", Level: 1}); err != nil || !ok {
		t.Fatalf("merge failed: %v %+v", ok, err)
	}
	if len(g.TopLevel()) != 3 || len(clone.TopLevel()) != 2 {
		t.Errorf("got %d and %d top-level vertices but want 3 and 2", len(g.TopLevel()), len(clone.TopLevel()))
	}
	if g.Equal(clone) {
		t.Errorf("graph and its modified clone are equal")
	}
}

func TestLoops(t *testing.T) {
	b := loopir.NewFuncBuilder("f")
	x := b.Arg("x", dtype.Float32, c(64))
	e := b.Elementwise("exp", "exp", x)
	fn, err := b.Build(e)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	g := build(t, fn, 1)
	loops := g.Loops(dim.Bindings{"exp.i0.L1": 32, "exp.i0.L0": 8})
	var got []string
	for _, l := range loops {
		got = append(got, fmt.Sprintf("%s@%d depth=%d %s tile=%s trips=%s", l.Op, l.Level, l.Depth, l.Name, l.Tile, l.Trips))
	}
	want := []string{
		"exp@1 depth=0 i0 tile=32 trips=2",
		"exp@0 depth=1 i0 tile=8 trips=4",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected loops:\n%s", diff)
	}
}

func TestMergeTileExtents(t *testing.T) {
	g := build(t, mlp(t), 1)
	ok, err := g.Merge(tilegraph.MergePoint{Consumer: "exp", Producer: "mm1", Level: 1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !ok {
		t.Fatalf("merge of mm1 into exp rejected")
	}
	v, _ := g.VertexOf("mm1", 1)
	tileVar := func(op loopir.OpID, loop, level int) *dim.Variable {
		tv, ok := g.TileVar(op, loop, level)
		if !ok {
			t.Fatalf("no tile variable for loop %d of %s at level %d", loop, op, level)
		}
		return tv
	}
	wantExtents := []dim.Dimension{tileVar("exp", 0, 1), tileVar("exp", 1, 1), tileVar("mm1", 2, 1)}
	for i, want := range wantExtents {
		if got := v.Relation.Extents[i]; !dim.Equal(got, want) {
			t.Errorf("test %d: tile extent of mm1@1: got %s but want %s", i, got, want)
		}
	}
	var determined []bool
	for i := range wantExtents {
		determined = append(determined, v.Relation.IsDetermined(i))
	}
	if diff := cmp.Diff([]bool{true, true, false}, determined); diff != "" {
		t.Errorf("unexpected determined loops:\n%s", diff)
	}
	loops := g.Loops(dim.Bindings{
		"exp.i0.L1": 32,
		"exp.i1.L1": 32,
		"mm1.k.L1":  512,
		"mm1.m.L0":  8,
		"mm1.n.L0":  16,
		"mm1.k.L0":  64,
	})
	var got []string
	for _, l := range loops {
		if l.Op != "mm1" {
			continue
		}
		got = append(got, fmt.Sprintf("%s@%d depth=%d %s tile=%s trips=%s", l.Op, l.Level, l.Depth, l.Name, l.Tile, l.Trips))
	}
	want := []string{
		"mm1@1 depth=1 m tile=32 trips=1",
		"mm1@1 depth=1 n tile=32 trips=1",
		"mm1@1 depth=1 k tile=512 trips=1",
		"mm1@0 depth=1 m tile=8 trips=4",
		"mm1@0 depth=1 n tile=16 trips=2",
		"mm1@0 depth=1 k tile=64 trips=8",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected loops:\n%s", diff)
	}
}
