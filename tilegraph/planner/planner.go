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

// Package planner selects a set of compatible merge points of a tile graph.
//
// Candidates are first checked one by one on copies of the graph. The
// eligible candidates become boolean variables of a SAT problem where:
//   - a producer is absorbed by at most one consumer at each level,
//   - a merge below the outermost level requires the same pair to be
//     merged one level up, unless both vertices already share a cluster.
//
// The planner then searches for the largest satisfying selection.
package planner

import (
	"context"
	"slices"

	"github.com/pkg/errors"
	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/tilegraph"
	"k8s.io/klog/v2"
)

type candidate struct {
	mp  tilegraph.MergePoint
	lit z.Lit
	// requires is the index of the candidate merging the same pair one
	// level up, or -1.
	requires int
}

// eligible returns true if a merge point is valid once the merges of the
// same pair at the levels above it have been applied.
func eligible(g *tilegraph.Graph, mp tilegraph.MergePoint) (bool, error) {
	clone := g.Clone()
	for level := clone.MaxLevel() - 1; level > mp.Level; level-- {
		up := mp
		up.Level = level
		if _, err := clone.Merge(up); err != nil {
			return false, err
		}
	}
	return clone.CanMerge(mp)
}

// Candidates returns a merge point for every producer and each of its
// consumers at every level of g, outermost level first.
func Candidates(g *tilegraph.Graph) []tilegraph.MergePoint {
	var mps []tilegraph.MergePoint
	for level := g.MaxLevel() - 1; level >= 0; level-- {
		for _, producer := range g.Ops() {
			for _, consumer := range g.Func().Consumers(producer) {
				mps = append(mps, tilegraph.MergePoint{
					Consumer: consumer.ID(),
					Producer: producer,
					Level:    level,
				})
			}
		}
	}
	return mps
}

// Plan returns the largest set of merge points of candidates that can be
// applied together. Duplicated and invalid candidates are ignored. The
// selection is returned outermost level first, in candidate order within
// a level.
func Plan(ctx context.Context, g *tilegraph.Graph, candidates []tilegraph.MergePoint) ([]tilegraph.MergePoint, error) {
	logger := klog.FromContext(ctx)
	c := logic.NewC()
	var cands []*candidate
	index := make(map[tilegraph.MergePoint]int)
	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, func(a, b tilegraph.MergePoint) int {
		return b.Level - a.Level
	})
	for _, mp := range ordered {
		if _, dup := index[mp]; dup {
			continue
		}
		ok, err := eligible(g, mp)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot check merge point %s", mp)
		}
		if !ok {
			logger.V(2).Info("merge point not eligible", "merge", mp.String())
			continue
		}
		requires := -1
		if direct, err := g.CanMerge(mp); err != nil {
			return nil, err
		} else if !direct {
			up := mp
			up.Level++
			upIndex, found := index[up]
			if !found {
				logger.V(2).Info("merge point requires a missing outer merge", "merge", mp.String(), "requires", up.String())
				continue
			}
			requires = upIndex
		}
		index[mp] = len(cands)
		cands = append(cands, &candidate{mp: mp, lit: c.Lit(), requires: requires})
	}
	if len(cands) == 0 {
		return nil, nil
	}
	formula := c.Ands(constraints(c, cands)...)
	lits := make([]z.Lit, len(cands))
	for i, cand := range cands {
		lits[i] = cand.lit
	}
	card := logic.NewCardSort(lits, c)
	s := gini.New()
	c.ToCnf(s)
	for k := len(cands); k > 0; k-- {
		s.Assume(formula, card.Geq(k))
		if s.Solve() != 1 {
			continue
		}
		var selected []tilegraph.MergePoint
		for _, cand := range cands {
			if s.Value(cand.lit) {
				selected = append(selected, cand.mp)
			}
		}
		logger.V(1).Info("merge plan", "candidates", len(candidates), "eligible", len(cands), "selected", len(selected))
		return selected, nil
	}
	return nil, nil
}

func constraints(c *logic.C, cands []*candidate) []z.Lit {
	var cs []z.Lit
	type producerLevel struct {
		producer loopir.OpID
		level    int
	}
	var keys []producerLevel
	byProducer := make(map[producerLevel][]*candidate)
	for _, cand := range cands {
		key := producerLevel{producer: cand.mp.Producer, level: cand.mp.Level}
		if _, ok := byProducer[key]; !ok {
			keys = append(keys, key)
		}
		byProducer[key] = append(byProducer[key], cand)
		if cand.requires >= 0 {
			cs = append(cs, c.Or(cand.lit.Not(), cands[cand.requires].lit))
		}
	}
	for _, key := range keys {
		group := byProducer[key]
		for i, a := range group {
			for _, b := range group[i+1:] {
				cs = append(cs, c.Or(a.lit.Not(), b.lit.Not()))
			}
		}
	}
	return cs
}

// Apply merges a list of merge points into a graph, outermost level first.
// Merge points which are not valid anymore are skipped.
// It returns the merge points which have been applied.
func Apply(ctx context.Context, g *tilegraph.Graph, mps []tilegraph.MergePoint) ([]tilegraph.MergePoint, error) {
	ordered := slices.Clone(mps)
	slices.SortStableFunc(ordered, func(a, b tilegraph.MergePoint) int {
		return b.Level - a.Level
	})
	var applied []tilegraph.MergePoint
	for _, mp := range ordered {
		ok, err := g.MergeContext(ctx, mp)
		if err != nil {
			return applied, errors.Wrapf(err, "cannot apply merge point %s", mp)
		}
		if ok {
			applied = append(applied, mp)
		}
	}
	return applied, nil
}
