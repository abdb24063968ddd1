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

package tiling

import (
	"fmt"

	"github.com/gx-org/tiler/internal/csp"
)

// position is a loop of the tiled loop nest.
type position struct {
	dim   int
	level int
}

// model is the constraint model of a problem.
//
// Loops are numbered outermost first: the loops of the outermost tiling
// level in loop order, then the loops of the next level, down to level 0.
// Quantities at position p describe the loops p and inside.
type model struct {
	m      *csp.Model
	p      *Problem
	levels int
	loops  []position

	// tiles[d][j] is the number of iterations of dimension d at tiling level j.
	tiles [][]csp.Var
	// footprint[t][p] is the number of elements of tensor t resident in
	// memory while executing the loops p and inside.
	footprint [][]csp.Var
	// fits[p][l] is true if the footprint of all tensors at p fits in memory level l.
	fits [][]csp.Var
	// moved[t][p][l] is the number of elements of tensor t loaded into
	// memory level l by the loops p and inside.
	moved [][][]csp.Var
	// splits[l][b] marks the outermost loop b at which the footprint fits in level l.
	splits [][]csp.Var
	// cost[l] is the number of cycles spent loading data into level l.
	cost []csp.Var
	time csp.Var
}

func divisors(n int64) []int64 {
	var small, large []int64
	for d := int64(1); d*d <= n; d++ {
		if n%d != 0 {
			continue
		}
		small = append(small, d)
		if d*d != n {
			large = append(large, n/d)
		}
	}
	for i := len(large) - 1; i >= 0; i-- {
		small = append(small, large[i])
	}
	return small
}

func buildModel(p *Problem, levels int) *model {
	md := &model{m: csp.NewModel(), p: p, levels: levels}
	order := p.LoopOrder()
	for j := levels - 1; j >= 0; j-- {
		for _, name := range order {
			d := indexOfDim(p, name)
			md.loops = append(md.loops, position{dim: d, level: j})
		}
	}
	md.buildTiles()
	md.buildFootprints()
	md.buildFits()
	md.buildDataMoved()
	md.buildSplits()
	md.buildObjective()
	return md
}

func indexOfDim(p *Problem, name string) int {
	for i, d := range p.Dims {
		if d.Name == name {
			return i
		}
	}
	return -1
}

func (md *model) loopVar(pos int) csp.Var {
	l := md.loops[pos]
	return md.tiles[l.dim][l.level]
}

func (md *model) dependsOn(t, pos int) bool {
	return md.p.Tensors[t].DependsOn(md.p.Dims[md.loops[pos].dim].Name)
}

// buildTiles declares the tile factors: the factors of a dimension
// multiply exactly to its extent.
func (md *model) buildTiles() {
	m := md.m
	md.tiles = make([][]csp.Var, len(md.p.Dims))
	for d, dm := range md.p.Dims {
		ts := make([]csp.Var, md.levels)
		values := divisors(dm.Extent)
		for j := range ts {
			ts[j] = m.NewIntVarFromValues(values, fmt.Sprintf("t[%s,%d]", dm.Name, j))
		}
		md.tiles[d] = ts
		if md.levels == 1 {
			m.AddLinear([]csp.Term{{Coeff: 1, X: ts[0]}}, csp.EQ, dm.Extent)
			continue
		}
		acc := ts[0]
		for j := 1; j < md.levels; j++ {
			var prod csp.Var
			if j == md.levels-1 {
				prod = m.NewConstant(dm.Extent)
			} else {
				prod = m.NewIntVarFromValues(values, fmt.Sprintf("t[%s,<=%d]", dm.Name, j))
			}
			m.AddMul(prod, acc, ts[j])
			acc = prod
		}
	}
	for _, l := range md.loops {
		m.Decide(md.tiles[l.dim][l.level])
	}
}

// maxElements returns the number of elements of a tensor.
func (md *model) maxElements(t int) int64 {
	n := int64(1)
	for _, d := range md.p.Dims {
		if md.p.Tensors[t].DependsOn(d.Name) {
			n *= d.Extent
		}
	}
	return n
}

// maxIterations returns the number of iterations of the full loop nest.
func (md *model) maxIterations() int64 {
	n := int64(1)
	for _, d := range md.p.Dims {
		n *= d.Extent
	}
	return n
}

func (md *model) buildFootprints() {
	m := md.m
	numLoops := len(md.loops)
	one := m.NewConstant(1)
	md.footprint = make([][]csp.Var, len(md.p.Tensors))
	for t, tensor := range md.p.Tensors {
		fp := make([]csp.Var, numLoops+1)
		fp[numLoops] = one
		for pos := numLoops - 1; pos >= 0; pos-- {
			if !md.dependsOn(t, pos) {
				fp[pos] = fp[pos+1]
				continue
			}
			fp[pos] = m.NewIntVar(1, md.maxElements(t), fmt.Sprintf("df[%s,%d]", tensor.Name, pos))
			m.AddMul(fp[pos], fp[pos+1], md.loopVar(pos))
		}
		md.footprint[t] = fp
	}
}

func (md *model) footprintTerms(pos int) []csp.Term {
	terms := make([]csp.Term, len(md.p.Tensors))
	for t, tensor := range md.p.Tensors {
		terms[t] = csp.Term{Coeff: tensor.Bytes(), X: md.footprint[t][pos]}
	}
	return terms
}

func (md *model) buildFits() {
	m := md.m
	md.fits = make([][]csp.Var, len(md.loops)+1)
	for pos := range md.fits {
		md.fits[pos] = make([]csp.Var, len(md.p.Hierarchy))
		for l, level := range md.p.Hierarchy {
			fits := m.NewBoolVar(fmt.Sprintf("fits[%d,%s]", pos, level.Name))
			m.AddReifyLinearLE(fits, md.footprintTerms(pos), level.Capacity)
			md.fits[pos][l] = fits
		}
	}
}

// buildDataMoved counts the elements loaded into each memory level.
// Iterating over a loop indexing a tensor loads a different part of the
// tensor at every iteration. Iterating over a loop not indexing a tensor
// reloads the same part, unless everything the inner loops need fits in
// the memory level.
func (md *model) buildDataMoved() {
	m := md.m
	numLoops := len(md.loops)
	one := m.NewConstant(1)
	maxMoved := md.maxIterations()
	md.moved = make([][][]csp.Var, len(md.p.Tensors))
	for t, tensor := range md.p.Tensors {
		md.moved[t] = make([][]csp.Var, numLoops+1)
		md.moved[t][numLoops] = make([]csp.Var, len(md.p.Hierarchy))
		for l := range md.p.Hierarchy {
			md.moved[t][numLoops][l] = one
		}
		for pos := numLoops - 1; pos >= 0; pos-- {
			md.moved[t][pos] = make([]csp.Var, len(md.p.Hierarchy))
			for l, level := range md.p.Hierarchy {
				inner := md.moved[t][pos+1][l]
				reload := m.NewIntVar(1, maxMoved, fmt.Sprintf("reload[%s,%d,%s]", tensor.Name, pos, level.Name))
				m.AddMul(reload, inner, md.loopVar(pos))
				if md.dependsOn(t, pos) {
					md.moved[t][pos][l] = reload
					continue
				}
				moved := m.NewIntVar(1, maxMoved, fmt.Sprintf("dm[%s,%d,%s]", tensor.Name, pos, level.Name))
				m.AddIfThenElse(moved, md.fits[pos+1][l], inner, reload)
				md.moved[t][pos][l] = moved
			}
		}
	}
}

// buildSplits marks, for every memory level but the outermost, the
// outermost loop from which the footprint fits in the level.
// The footprint decreases from the outermost to the innermost loop so
// exactly one loop boundary is marked.
func (md *model) buildSplits() {
	m := md.m
	numLevels := len(md.p.Hierarchy)
	if numLevels < 2 {
		return
	}
	md.splits = make([][]csp.Var, numLevels-1)
	for l := range md.splits {
		level := md.p.Hierarchy[l]
		splits := make([]csp.Var, len(md.loops)+1)
		sum := make([]csp.Term, len(splits))
		for b := range splits {
			split := m.NewBoolVar(fmt.Sprintf("split[%s,%d]", level.Name, b))
			splits[b] = split
			sum[b] = csp.Term{Coeff: 1, X: split}
			// split ⇒ fits(b)
			m.AddLinear([]csp.Term{{Coeff: 1, X: split}, {Coeff: -1, X: md.fits[b][l]}}, csp.LE, 0)
			if b > 0 {
				// split ⇒ ¬fits(b-1)
				m.AddLinear([]csp.Term{{Coeff: 1, X: split}, {Coeff: 1, X: md.fits[b-1][l]}}, csp.LE, 1)
			}
		}
		m.AddLinear(sum, csp.EQ, 1)
		md.splits[l] = splits
	}
}

// buildObjective minimizes the largest number of cycles spent loading
// data into a memory level. Transfers to different levels overlap.
func (md *model) buildObjective() {
	m := md.m
	var totalBytes int64
	for _, t := range md.p.Tensors {
		totalBytes += t.Bytes()
	}
	maxBytes := totalBytes * md.maxIterations()
	md.cost = make([]csp.Var, len(md.p.Hierarchy))
	var maxCost int64
	for l, level := range md.p.Hierarchy {
		hi := (maxBytes + level.Bandwidth - 1) / level.Bandwidth
		maxCost = max(maxCost, hi)
		cost := m.NewIntVar(0, hi, fmt.Sprintf("cycles[%s]", level.Name))
		terms := []csp.Term{{Coeff: level.Bandwidth, X: cost}}
		for t, tensor := range md.p.Tensors {
			terms = append(terms, csp.Term{Coeff: -tensor.Bytes(), X: md.moved[t][0][l]})
		}
		// cost = ceil(bytes / bandwidth)
		m.AddLinear(terms, csp.GE, 0)
		m.AddLinear(terms, csp.LE, level.Bandwidth-1)
		md.cost[l] = cost
	}
	md.time = m.NewIntVar(0, maxCost, "time")
	m.AddMax(md.time, md.cost...)
	m.Minimize(md.time)
}
