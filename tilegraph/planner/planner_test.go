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

package planner_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/tilegraph"
	"github.com/gx-org/tiler/tilegraph/planner"
)

func mlp(t *testing.T) *loopir.Func {
	b := loopir.NewFuncBuilder("mlp")
	x := b.Arg("x", dtype.Float32, dim.Const(384), dim.Const(512))
	w1 := b.Arg("w1", dtype.Float32, dim.Const(512), dim.Const(256))
	w2 := b.Arg("w2", dtype.Float32, dim.Const(256), dim.Const(128))
	h := b.MatMul("mm1", x, w1)
	e := b.Elementwise("exp", "exp", h)
	y := b.MatMul("mm2", e, w2)
	fn, err := b.Build(y)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return fn
}

func fanOut(t *testing.T) *loopir.Func {
	b := loopir.NewFuncBuilder("fanout")
	x := b.Arg("x", dtype.Float32, dim.Const(64))
	a := b.Elementwise("a", "exp", x)
	l := b.Elementwise("l", "neg", a)
	r := b.Elementwise("r", "abs", a)
	fn, err := b.Build(l, r)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return fn
}

func structure(g *tilegraph.Graph) []string {
	var lines []string
	g.Walk(func(v *tilegraph.Vertex, depth int) bool {
		lines = append(lines, fmt.Sprintf("%s%s@%d", strings.Repeat(".", depth), v.Op, v.Level))
		return true
	})
	return lines
}

func mp(consumer, producer loopir.OpID, level int) tilegraph.MergePoint {
	return tilegraph.MergePoint{Consumer: consumer, Producer: producer, Level: level}
}

func TestPlanChain(t *testing.T) {
	ctx := context.Background()
	g, err := tilegraph.NewBuilder(2).Build(mlp(t))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	candidates := []tilegraph.MergePoint{
		mp("exp", "mm1", 0),
		mp("mm2", "exp", 1),
		mp("exp", "mm1", 2),
		mp("exp", "mm1", 1),
		mp("mm2", "exp", 2),
		mp("exp", "mm1", 2),
		mp("mm2", "mm1", 2),
	}
	selected, err := planner.Plan(ctx, g, candidates)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := []tilegraph.MergePoint{
		mp("exp", "mm1", 2),
		mp("exp", "mm1", 1),
		mp("exp", "mm1", 0),
	}
	if diff := cmp.Diff(want, selected); diff != "" {
		t.Errorf("unexpected selection:\n%s", diff)
	}
	applied, err := planner.Apply(ctx, g, selected)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := cmp.Diff(want, applied); diff != "" {
		t.Errorf("unexpected applied merge points:\n%s", diff)
	}
	wantStructure := []string{
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
	if diff := cmp.Diff(wantStructure, structure(g)); diff != "" {
		t.Errorf("unexpected structure:\n%s", diff)
	}
}

func TestPlanDoesNotModifyGraph(t *testing.T) {
	g, err := tilegraph.NewBuilder(1).Build(mlp(t))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	before := g.String()
	if _, err := planner.Plan(context.Background(), g, []tilegraph.MergePoint{mp("exp", "mm1", 1), mp("exp", "mm1", 0)}); err != nil {
		t.Fatalf("%+v", err)
	}
	if after := g.String(); after != before {
		t.Errorf("graph modified by planning:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestPlanProducerOnce(t *testing.T) {
	ctx := context.Background()
	g, err := tilegraph.NewBuilder(0).Build(fanOut(t))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	candidates := []tilegraph.MergePoint{mp("l", "a", 0), mp("r", "a", 0)}
	selected, err := planner.Plan(ctx, g, candidates)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(selected) != 1 {
		t.Fatalf("got %d merge points but want 1: %v", len(selected), selected)
	}
	if selected[0].Producer != "a" {
		t.Errorf("unexpected producer in %v", selected[0])
	}
	applied, err := planner.Apply(ctx, g, candidates)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applying both candidates: got %d merges but want 1", len(applied))
	}
}

func TestPlanNothingEligible(t *testing.T) {
	g, err := tilegraph.NewBuilder(1).Build(mlp(t))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	tests := [][]tilegraph.MergePoint{
		nil,
		{mp("mm2", "mm1", 1)},
		{mp("mm1", "exp", 1), mp("unknown", "exp", 0)},
		{mp("exp", "mm1", 0)},
	}
	for i, candidates := range tests {
		selected, err := planner.Plan(context.Background(), g, candidates)
		if err != nil {
			t.Errorf("test %d: %+v", i, err)
			continue
		}
		if len(selected) != 0 {
			t.Errorf("test %d: got %v but want no merge point", i, selected)
		}
	}
}

func TestCandidates(t *testing.T) {
	ctx := context.Background()
	g, err := tilegraph.NewBuilder(1).Build(mlp(t))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	candidates := planner.Candidates(g)
	want := []tilegraph.MergePoint{
		mp("exp", "mm1", 1),
		mp("mm2", "exp", 1),
		mp("exp", "mm1", 0),
		mp("mm2", "exp", 0),
	}
	if diff := cmp.Diff(want, candidates); diff != "" {
		t.Errorf("unexpected candidates:\n%s", diff)
	}
	selected, err := planner.Plan(ctx, g, candidates)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	wantSelected := []tilegraph.MergePoint{
		mp("exp", "mm1", 1),
		mp("exp", "mm1", 0),
	}
	if diff := cmp.Diff(wantSelected, selected); diff != "" {
		t.Errorf("unexpected selection:\n%s", diff)
	}
}
