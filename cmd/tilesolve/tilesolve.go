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

// Utility tilesolve chooses the tile sizes of a loop nest and prints the schedule.
//
// Example:
//
//	tilesolve -dims m=384,n=8192,k=512 -tensors A:m:k,B:k:n,C:m:n -capacities 64K,4M -bandwidths 128,16
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	gxfmt "github.com/gx-org/tiler/base/fmt"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/tilegraph"
	"github.com/gx-org/tiler/tiling"
	"github.com/gx-org/tiler/tiling/hierarchy"
	"github.com/gx-org/tiler/tools/tileflag"
	"k8s.io/klog/v2"
)

var dtypes = map[string]dtype.DataType{
	"bfloat16": dtype.Bfloat16,
	"float32":  dtype.Float32,
	"float64":  dtype.Float64,
	"int32":    dtype.Int32,
	"int64":    dtype.Int64,
}

type config struct {
	dims        *[]tileflag.Binding
	tensors     *[]string
	order       *[]string
	capacities  *[]int64
	bandwidths  *[]int64
	preset      *string
	elementType *string
	levels      *int
	timeLimit   *time.Duration
	nodeLimit   *int64
	loops       *bool
}

func newConfig(fs *flag.FlagSet) *config {
	return &config{
		dims:        tileflag.BindingList(fs, "dims", "dimensions of the loop nest, for example m=384,n=8192,k=512"),
		tensors:     tileflag.StringList(fs, "tensors", "tensors with their dimensions separated by colons, for example A:m:k,B:k:n,C:m:n"),
		order:       tileflag.StringList(fs, "order", "order of the loops within a tiling level, outermost first"),
		capacities:  tileflag.Int64List(fs, "capacities", "capacity of each memory level in bytes, innermost first"),
		bandwidths:  tileflag.Int64List(fs, "bandwidths", "bandwidth of each memory level in bytes per cycle, innermost first"),
		preset:      fs.String("hierarchy", "auto", "memory hierarchy preset used when no capacity is given (auto, avx512, avx2, neon, fallback)"),
		elementType: fs.String("dtype", "float32", "element type of the tensors"),
		levels:      fs.Int("levels", 0, "number of tiling levels (0 for one per memory level)"),
		timeLimit:   fs.Duration("time_limit", tiling.DefaultTimeLimit, "maximum duration of the search"),
		nodeLimit:   fs.Int64("node_limit", 0, "maximum number of nodes explored by the search (0 for no limit)"),
		loops:       fs.Bool("loops", false, "print the tile loops of a matrix multiplication over the dimensions m, n and k"),
	}
}

func (cfg *config) hierarchy(ctx context.Context) (hierarchy.Hierarchy, error) {
	if len(*cfg.capacities) == 0 {
		if *cfg.preset != "auto" {
			return hierarchy.Lookup(*cfg.preset)
		}
		name, h := hierarchy.Detect()
		klog.FromContext(ctx).V(1).Info("memory hierarchy detected", "preset", name)
		return h, nil
	}
	if len(*cfg.capacities) != len(*cfg.bandwidths) {
		return nil, errors.Errorf("%d capacities but %d bandwidths", len(*cfg.capacities), len(*cfg.bandwidths))
	}
	h := make(hierarchy.Hierarchy, len(*cfg.capacities))
	for i, c := range *cfg.capacities {
		h[i] = hierarchy.Level{Name: fmt.Sprintf("L%d", i+1), Capacity: c, Bandwidth: (*cfg.bandwidths)[i]}
	}
	return h, nil
}

func (cfg *config) problem(ctx context.Context) (*tiling.Problem, error) {
	dt, ok := dtypes[*cfg.elementType]
	if !ok {
		return nil, errors.Errorf("unknown element type %q", *cfg.elementType)
	}
	h, err := cfg.hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	p := &tiling.Problem{Name: "tilesolve", Hierarchy: h, Order: *cfg.order}
	for _, d := range *cfg.dims {
		p.Dims = append(p.Dims, tiling.Dim{Name: d.Name, Extent: d.Value})
	}
	for _, t := range *cfg.tensors {
		parts := strings.Split(t, ":")
		p.Tensors = append(p.Tensors, tiling.Tensor{Name: parts[0], DType: dt, Dims: parts[1:]})
	}
	return p, nil
}

// printLoops prints the tile loops of a matrix multiplication tiled with a solution.
func printLoops(w io.Writer, sol *tiling.Solution, dt dtype.DataType) error {
	extents := make(map[string]int64)
	for _, d := range sol.Problem.Dims {
		extents[d.Name] = d.Extent
	}
	for _, name := range []string{"m", "n", "k"} {
		if _, ok := extents[name]; !ok {
			return errors.Errorf("dimension %s missing for a matrix multiplication", name)
		}
	}
	b := loopir.NewFuncBuilder("matmul")
	x := b.Arg("x", dt, dim.Const(extents["m"]), dim.Const(extents["k"]))
	y := b.Arg("y", dt, dim.Const(extents["k"]), dim.Const(extents["n"]))
	fn, err := b.Build(b.MatMul("mm", x, y))
	if err != nil {
		return err
	}
	g, err := tilegraph.NewBuilder(sol.Levels - 1).Build(fn)
	if err != nil {
		return err
	}
	for _, loop := range g.Loops(sol.Bindings("mm")) {
		fmt.Fprintf(w, "%sfor %s@%d: tile %s, %s trips\n", gxfmt.Indent(loop.Depth), loop.Name, loop.Level, loop.Tile, loop.Trips)
	}
	return nil
}

func run(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("tilesolve", flag.ContinueOnError)
	klog.InitFlags(fs)
	cfg := newConfig(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cfg.problem(ctx)
	if err != nil {
		return err
	}
	opts := []tiling.Option{tiling.WithTimeLimit(*cfg.timeLimit)}
	if *cfg.nodeLimit > 0 {
		opts = append(opts, tiling.WithNodeLimit(*cfg.nodeLimit))
	}
	if *cfg.levels > 0 {
		opts = append(opts, tiling.WithTilingLevels(*cfg.levels))
	}
	sol, err := tiling.Solve(ctx, p, opts...)
	if err != nil {
		return err
	}
	fmt.Fprint(w, sol)
	if *cfg.loops {
		return printLoops(w, sol, dtypes[*cfg.elementType])
	}
	return nil
}

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
