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

package csp

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type (
	// Status of a search.
	Status int

	// Params limits a search. A zero limit is no limit.
	Params struct {
		// TimeLimit is the maximum duration of the search.
		TimeLimit time.Duration
		// NoImprovementLimit is the number of nodes explored without
		// improving the objective after which the search stops.
		NoImprovementLimit int64
		// NodeLimit is the maximum number of nodes explored.
		NodeLimit int64
	}

	// Result of a search.
	Result struct {
		Status Status
		// Objective is the value of the objective of the best solution.
		Objective int64
		// Nodes is the number of nodes explored.
		Nodes int64
		// Solutions is the number of improving solutions found.
		Solutions int
		// Elapsed is the duration of the search.
		Elapsed time.Duration
		// Limit is the limit which stopped the search, if any.
		Limit string

		values []int64
	}
)

const (
	// Unknown means that a limit stopped the search before any solution was found.
	Unknown Status = iota
	// Optimal means that the search is complete and a best solution was found.
	Optimal
	// Feasible means that a limit stopped the search after a solution was found.
	Feasible
	// Infeasible means that the search is complete and no solution exists.
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case Optimal:
		return "OPTIMAL"
	case Feasible:
		return "FEASIBLE"
	case Infeasible:
		return "INFEASIBLE"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// HasSolution returns true if the result carries a solution.
func (r *Result) HasSolution() bool {
	return r.values != nil
}

// Value returns the value of a variable in the best solution.
func (r *Result) Value(v Var) int64 {
	return r.values[v]
}

// BoolValue returns true if a variable is non-zero in the best solution.
func (r *Result) BoolValue(v Var) bool {
	return r.values[v] != 0
}

type searcher struct {
	m      *Model
	params Params
	start  time.Time

	nodes       int64
	lastImprove int64
	best        []int64
	bestObj     int64
	solutions   int
	limit       string
}

// Solve searches for a solution of the model minimizing its objective.
// Without an objective, the first solution found is optimal.
func (m *Model) Solve(params Params) (*Result, error) {
	if m.err != nil {
		return nil, errors.Wrap(m.err, "invalid model")
	}
	sr := &searcher{m: m, params: params, start: time.Now()}
	root := &state{doms: m.domains}
	root = root.clone()
	if propagateAll(root, m.cons) {
		sr.search(root)
	}
	res := &Result{
		Nodes:     sr.nodes,
		Solutions: sr.solutions,
		Elapsed:   time.Since(sr.start),
		Limit:     sr.limit,
		values:    sr.best,
	}
	switch {
	case sr.best != nil && sr.limit == "":
		res.Status = Optimal
	case sr.best != nil:
		res.Status = Feasible
	case sr.limit == "":
		res.Status = Infeasible
	default:
		res.Status = Unknown
	}
	if sr.best != nil {
		res.Objective = sr.bestObj
	}
	return res, nil
}

// stop returns true if a limit has been reached.
func (sr *searcher) stop() bool {
	if sr.limit != "" {
		return true
	}
	p := sr.params
	switch {
	case p.NodeLimit > 0 && sr.nodes >= p.NodeLimit:
		sr.limit = "node limit"
	case p.NoImprovementLimit > 0 && sr.best != nil && sr.nodes-sr.lastImprove >= p.NoImprovementLimit:
		sr.limit = "no improvement limit"
	case p.TimeLimit > 0 && time.Since(sr.start) >= p.TimeLimit:
		sr.limit = "time limit"
	}
	return sr.limit != ""
}

// choose returns the unfixed decision variable with the lowest minimum.
// Other variables are considered once every decision variable is fixed.
func (sr *searcher) choose(s *state) (Var, bool) {
	if v, ok := lowestMin(s, sr.m.decisions); ok {
		return v, true
	}
	best, found := Var(0), false
	for i := range s.doms {
		v := Var(i)
		if s.isFixed(v) {
			continue
		}
		if !found || s.lo(v) < s.lo(best) {
			best, found = v, true
		}
	}
	return best, found
}

func lowestMin(s *state, vs []Var) (Var, bool) {
	best, found := Var(0), false
	for _, v := range vs {
		if s.isFixed(v) {
			continue
		}
		if !found || s.lo(v) < s.lo(best) {
			best, found = v, true
		}
	}
	return best, found
}

func (sr *searcher) record(s *state) {
	values := make([]int64, len(s.doms))
	for i, d := range s.doms {
		values[i] = d.lo
	}
	sr.best = values
	sr.solutions++
	sr.lastImprove = sr.nodes
	if sr.m.minimize {
		sr.bestObj = values[sr.m.objective]
	}
}

// search explores the subtree of a propagated state.
// It returns true when the search must end.
func (sr *searcher) search(s *state) bool {
	if sr.stop() {
		return true
	}
	sr.nodes++
	if sr.best != nil {
		if !sr.m.minimize {
			return true
		}
		if _, ok := s.setHi(sr.m.objective, sr.bestObj-1); !ok {
			return false
		}
		if !propagateAll(s, sr.m.cons) {
			return false
		}
	}
	v, ok := sr.choose(s)
	if !ok {
		sr.record(s)
		return !sr.m.minimize
	}
	val := s.lo(v)
	left := s.clone()
	if left.fix(v, val) && propagateAll(left, sr.m.cons) {
		if sr.search(left) {
			return true
		}
	}
	right := s
	if right.remove(v, val) && propagateAll(right, sr.m.cons) {
		return sr.search(right)
	}
	return false
}
