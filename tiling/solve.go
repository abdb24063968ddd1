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
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/base/diag"
	gxfmt "github.com/gx-org/tiler/base/fmt"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/internal/csp"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

type (
	options struct {
		params csp.Params
		levels int
	}

	// Option configures the solver.
	Option func(*options)
)

// DefaultTimeLimit is the time limit of a search if none is given.
const DefaultTimeLimit = 30 * time.Second

// WithTimeLimit sets the maximum duration of the search.
func WithTimeLimit(d time.Duration) Option {
	return func(o *options) {
		o.params.TimeLimit = d
	}
}

// WithNoImprovementLimit stops the search after exploring n nodes without
// finding a better solution.
func WithNoImprovementLimit(n int64) Option {
	return func(o *options) {
		o.params.NoImprovementLimit = n
	}
}

// WithNodeLimit sets the maximum number of nodes explored by the search.
func WithNodeLimit(n int64) Option {
	return func(o *options) {
		o.params.NodeLimit = n
	}
}

// WithTilingLevels sets the number of tiling levels of every dimension.
// The number of memory levels is used by default.
func WithTilingLevels(n int) Option {
	return func(o *options) {
		o.levels = n
	}
}

// Loop is a loop of a tiled loop nest.
type Loop struct {
	Dim   string
	Level int
	// Factor is the number of iterations of the loop.
	Factor int64
}

// Solution of a tiling problem.
type Solution struct {
	Problem *Problem
	// Levels is the number of tiling levels.
	Levels int
	// Loops of the tiled loop nest, outermost first.
	Loops []Loop
	// Splits gives for every memory level but the outermost the index
	// in Loops of the outermost loop whose footprint fits in the level.
	Splits []int
	// Objective is the number of cycles spent moving data into the
	// slowest memory level.
	Objective int64
	// DataMoved is the number of bytes loaded into each memory level.
	DataMoved []int64
	// Optimal is true if the search proved the solution optimal.
	Optimal bool
	// Status of the search.
	Status string
	// Nodes is the number of nodes explored by the search.
	Nodes int64
}

// Factors returns the tile factors of a dimension, indexed by level.
func (s *Solution) Factors(name string) []int64 {
	factors := make([]int64, s.Levels)
	for _, l := range s.Loops {
		if l.Dim == name {
			factors[l.Level] = l.Factor
		}
	}
	return factors
}

// Tile returns the extent of the tile of a dimension iterated over at a
// level: the product of the factors of the levels below.
func (s *Solution) Tile(name string, level int) int64 {
	tile := int64(1)
	for j, f := range s.Factors(name) {
		if j < level {
			tile *= f
		}
	}
	return tile
}

// Bindings returns the tile extents of the solution keyed by the names of
// the tile variables of an op in a tile graph, that is <prefix>.<dim>.L<level>.
func (s *Solution) Bindings(prefix string) dim.Bindings {
	b := make(dim.Bindings)
	for _, d := range s.Problem.Dims {
		for level := 0; level < s.Levels; level++ {
			b[fmt.Sprintf("%s.%s.L%d", prefix, d.Name, level)] = s.Tile(d.Name, level)
		}
	}
	return b
}

func (s *Solution) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d cycles (%s, %d nodes)\n", s.Problem.Name, s.Objective, s.Status, s.Nodes)
	for i, level := range s.Problem.Hierarchy {
		fmt.Fprintf(&sb, "  %s: %d bytes moved\n", level.Name, s.DataMoved[i])
	}
	depth := 0
	for i, l := range s.Loops {
		for lvl, split := range s.Splits {
			if split == i {
				fmt.Fprintf(&sb, "%s// fits in %s\n", gxfmt.Indent(depth+1), s.Problem.Hierarchy[lvl].Name)
			}
		}
		fmt.Fprintf(&sb, "%sfor %s.%d < %d\n", gxfmt.Indent(depth+1), l.Dim, l.Level, l.Factor)
		depth++
	}
	return sb.String()
}

// InfeasibleError is returned when no tiling of a problem has been found.
type InfeasibleError struct {
	Problem *Problem
	// Reason explains why the search found no solution.
	Reason string
}

func (err *InfeasibleError) Error() string {
	return fmt.Sprintf("%s of %s with capacities %v: %s", diag.ErrInfeasible, dimsString(err.Problem.Dims), err.Problem.Hierarchy.Capacities(), err.Reason)
}

// Unwrap returns diag.ErrInfeasible.
func (err *InfeasibleError) Unwrap() error {
	return diag.ErrInfeasible
}

// Solve chooses the tile factors of a problem.
func Solve(ctx context.Context, p *Problem, opts ...Option) (*Solution, error) {
	o := options{
		params: csp.Params{TimeLimit: DefaultTimeLimit},
		levels: len(p.Hierarchy),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid tiling problem %s", p.Name)
	}
	if o.levels < 1 {
		return nil, errors.Errorf("invalid number of tiling levels %d", o.levels)
	}
	logger := klog.FromContext(ctx).WithValues("problem", p.Name)
	md := buildModel(p, o.levels)
	logger.V(1).Info("solving tiling", "variables", md.m.NumVars(), "levels", o.levels, "memory", p.Hierarchy.String())
	if logger.V(3).Enabled() {
		logger.V(3).Info("tiling model", "model", "\n"+gxfmt.Number(md.m.String()))
	}
	res, err := md.m.Solve(o.params)
	if err != nil {
		return nil, diag.Internal(err)
	}
	logger.V(1).Info("search done", "status", res.Status.String(), "objective", res.Objective, "nodes", res.Nodes, "elapsed", res.Elapsed)
	if res.Limit != "" {
		logger.Info("tiling search stopped by a limit", "limit", res.Limit, "status", res.Status.String())
	}
	switch res.Status {
	case csp.Infeasible:
		return nil, errors.WithStack(&InfeasibleError{Problem: p, Reason: "the constraints have no solution"})
	case csp.Unknown:
		return nil, errors.WithStack(&InfeasibleError{Problem: p, Reason: fmt.Sprintf("%s reached after %d nodes before any solution", res.Limit, res.Nodes)})
	}
	sol := md.solution(res)
	if err := sol.check(); err != nil {
		return nil, diag.Internal(err)
	}
	return sol, nil
}

func (md *model) solution(res *csp.Result) *Solution {
	sol := &Solution{
		Problem:   md.p,
		Levels:    md.levels,
		Objective: res.Objective,
		Optimal:   res.Status == csp.Optimal,
		Status:    res.Status.String(),
		Nodes:     res.Nodes,
	}
	for i, l := range md.loops {
		sol.Loops = append(sol.Loops, Loop{
			Dim:    md.p.Dims[l.dim].Name,
			Level:  l.level,
			Factor: res.Value(md.loopVar(i)),
		})
	}
	for _, splits := range md.splits {
		for b, split := range splits {
			if res.BoolValue(split) {
				sol.Splits = append(sol.Splits, b)
			}
		}
	}
	sol.DataMoved = make([]int64, len(md.p.Hierarchy))
	for l := range md.p.Hierarchy {
		for t, tensor := range md.p.Tensors {
			sol.DataMoved[l] += tensor.Bytes() * res.Value(md.moved[t][0][l])
		}
	}
	return sol
}

// check verifies that the factors of every dimension multiply to its
// extent and that every inner memory level has one split.
func (s *Solution) check() error {
	for _, d := range s.Problem.Dims {
		prod := int64(1)
		for _, f := range s.Factors(d.Name) {
			if f <= 0 {
				return errors.Errorf("dimension %s: non-positive tile factor %d", d.Name, f)
			}
			prod *= f
		}
		if prod != d.Extent {
			return errors.Errorf("dimension %s: tile factors %v multiply to %d instead of %d", d.Name, s.Factors(d.Name), prod, d.Extent)
		}
	}
	if want := max(len(s.Problem.Hierarchy)-1, 0); len(s.Splits) != want {
		return errors.Errorf("got %d split points but want %d", len(s.Splits), want)
	}
	return nil
}

// SolveAll solves independent problems concurrently.
// It returns the first error encountered.
func SolveAll(ctx context.Context, problems []*Problem, opts ...Option) ([]*Solution, error) {
	sols := make([]*Solution, len(problems))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range problems {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sol, err := Solve(ctx, p, opts...)
			if err != nil {
				return errors.Wrapf(err, "problem %d (%s)", i, p.Name)
			}
			sols[i] = sol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sols, nil
}
