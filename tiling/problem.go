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

// Package tiling chooses tile sizes of a loop nest for a memory hierarchy.
//
// Every dimension of the loop nest is split into one loop per tiling
// level. The number of iterations of these loops, the tile factors,
// multiply to the extent of the dimension. The solver picks the factors
// minimizing the time spent moving data into the slowest memory level,
// given which tensors depend on which dimensions.
package tiling

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiler/affine"
	"github.com/gx-org/tiler/base/stringseq"
	"github.com/gx-org/tiler/base/uname"
	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/loopir"
	"github.com/gx-org/tiler/tiling/hierarchy"
	"go.uber.org/multierr"
)

type (
	// Dim is a dimension of the loop nest.
	Dim struct {
		Name   string
		Extent int64
	}

	// Tensor is a tensor read or written by the loop nest.
	Tensor struct {
		Name  string
		DType dtype.DataType
		// Dims lists the dimensions indexing the tensor.
		Dims []string
	}

	// Problem is a loop nest to tile.
	Problem struct {
		// Name of the problem, used in logs and errors.
		Name      string
		Dims      []Dim
		Tensors   []Tensor
		Hierarchy hierarchy.Hierarchy
		// Order of the dimensions within a tiling level, outermost first.
		// The order of Dims is used if empty.
		Order []string
	}
)

// Bytes returns the size of an element of the tensor.
func (t Tensor) Bytes() int64 {
	if t.DType == dtype.Invalid {
		return 0
	}
	return int64(dtype.Sizeof(t.DType))
}

// DependsOn returns true if the tensor is indexed by a dimension.
func (t Tensor) DependsOn(name string) bool {
	return slices.Contains(t.Dims, name)
}

func (d Dim) String() string {
	return fmt.Sprintf("%s=%d", d.Name, d.Extent)
}

func dimsString(dims []Dim) string {
	return stringseq.JoinStringer(dims, ", ")
}

func (t Tensor) String() string {
	return fmt.Sprintf("%s[%s]", t.Name, strings.Join(t.Dims, ", "))
}

// Dim returns a dimension given its name.
func (p *Problem) Dim(name string) (Dim, bool) {
	i := slices.IndexFunc(p.Dims, func(d Dim) bool { return d.Name == name })
	if i < 0 {
		return Dim{}, false
	}
	return p.Dims[i], true
}

// LoopOrder returns the order of the dimensions within a tiling level.
func (p *Problem) LoopOrder() []string {
	if len(p.Order) > 0 {
		return p.Order
	}
	order := make([]string, len(p.Dims))
	for i, d := range p.Dims {
		order[i] = d.Name
	}
	return order
}

// Validate returns all the problems found in the definition of a problem.
func (p *Problem) Validate() error {
	var err error
	if len(p.Dims) == 0 {
		err = multierr.Append(err, errors.Errorf("no dimension"))
	}
	dims := make(map[string]bool)
	for _, d := range p.Dims {
		if d.Name == "" {
			err = multierr.Append(err, errors.Errorf("dimension with no name"))
		}
		if dims[d.Name] {
			err = multierr.Append(err, errors.Errorf("dimension %s defined more than once", d.Name))
		}
		dims[d.Name] = true
		if d.Extent <= 0 {
			err = multierr.Append(err, errors.Errorf("dimension %s has a non-positive extent %d", d.Name, d.Extent))
		}
	}
	if len(p.Tensors) == 0 {
		err = multierr.Append(err, errors.Errorf("no tensor"))
	}
	tensors := make(map[string]bool)
	for _, t := range p.Tensors {
		if tensors[t.Name] {
			err = multierr.Append(err, errors.Errorf("tensor %s defined more than once", t.Name))
		}
		tensors[t.Name] = true
		if t.Bytes() <= 0 {
			err = multierr.Append(err, errors.Errorf("tensor %s has an invalid element type %v", t.Name, t.DType))
		}
		for _, d := range t.Dims {
			if !dims[d] {
				err = multierr.Append(err, errors.Errorf("tensor %s depends on undefined dimension %s", t.Name, d))
			}
		}
	}
	if len(p.Order) > 0 {
		sorted := slices.Sorted(slices.Values(p.Order))
		var names []string
		for _, d := range p.Dims {
			names = append(names, d.Name)
		}
		slices.Sort(names)
		if !slices.Equal(sorted, names) {
			err = multierr.Append(err, errors.Errorf("loop order %v is not a permutation of the dimensions %v", p.Order, names))
		}
	}
	if herr := p.Hierarchy.Validate(); herr != nil {
		err = multierr.Append(err, errors.Wrap(herr, "invalid memory hierarchy"))
	}
	return err
}

func (p *Problem) String() string {
	var sb strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&sb, "%s: ", p.Name)
	}
	fmt.Fprintf(&sb, "dims {%s} tensors {%s} memory %s", dimsString(p.Dims), stringseq.JoinStringer(p.Tensors, ", "), p.Hierarchy)
	return sb.String()
}

// FromContraction returns the problem of tiling a contraction.
// All the extents of the contraction need to be known.
func FromContraction(op *loopir.Contraction, h hierarchy.Hierarchy) (*Problem, error) {
	p := &Problem{Name: string(op.ID()), Hierarchy: h}
	var err error
	for j, loop := range op.Loops() {
		extent, ok := dim.FixedValue(op.Extents()[j])
		if !ok {
			err = multierr.Append(err, errors.Errorf("loop %s of %s has a non-fixed extent %s", loop, op.ID(), op.Extents()[j]))
			continue
		}
		p.Dims = append(p.Dims, Dim{Name: loop, Extent: extent})
	}
	if err != nil {
		return nil, err
	}
	names := uname.New()
	accesses := append(slices.Clone(op.Operands()), op.Result())
	for _, acc := range accesses {
		var dims []string
		for j, loop := range op.Loops() {
			if usesDim(acc.Map, j) {
				dims = append(dims, loop)
			}
		}
		p.Tensors = append(p.Tensors, Tensor{
			Name:  names.Name(acc.Tensor.Name),
			DType: acc.Tensor.DType,
			Dims:  dims,
		})
	}
	return p, nil
}

func usesDim(m *affine.Map, j int) bool {
	name := affine.DimVar(j).Name
	for _, res := range m.Results {
		if dim.DependsOn(res, name) {
			return true
		}
	}
	return false
}
