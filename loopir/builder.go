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

package loopir

import (
	"fmt"
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiler/affine"
	"github.com/gx-org/tiler/base/diag"
	"github.com/gx-org/tiler/base/ordered"
	"github.com/gx-org/tiler/base/uname"
	"github.com/gx-org/tiler/dim"
)

// FuncBuilder builds a function.
//
// Errors are accumulated and reported by Build. A method returns nil
// when it fails or when one of its inputs is nil, so that a sequence
// of calls can be written without checking errors in between.
type FuncBuilder struct {
	fn    *Func
	names *uname.Unique
	errs  *diag.Errors
	body  *[]Node
}

// NewFuncBuilder returns a builder for a new function.
func NewFuncBuilder(name string) *FuncBuilder {
	fn := &Func{Name: name, ops: ordered.NewMap[OpID, ComputeNode]()}
	return &FuncBuilder{
		fn:    fn,
		names: uname.New(),
		errs:  &diag.Errors{},
		body:  &fn.Body,
	}
}

// Arg adds an argument to the function.
func (b *FuncBuilder) Arg(name string, dt dtype.DataType, axes ...dim.Dimension) *Tensor {
	t := &Tensor{
		Name:  b.names.Name(name),
		DType: dt,
		Shape: dim.Shape(axes...),
	}
	b.fn.Args = append(b.fn.Args, t)
	return t
}

func (b *FuncBuilder) checkInputs(xs ...*Tensor) bool {
	for _, x := range xs {
		if x == nil {
			return false
		}
	}
	return true
}

func (b *FuncBuilder) newID(name string) OpID {
	return OpID(b.names.Name(name))
}

func (b *FuncBuilder) add(n ComputeNode) {
	*b.body = append(*b.body, n)
	b.fn.ops.Store(n.ID(), n)
}

func (b *FuncBuilder) result(id OpID, dt dtype.DataType, shape dim.RankedShape, m *affine.Map) Access {
	return Access{
		Tensor: &Tensor{Name: string(id), DType: dt, Shape: shape, Producer: id},
		Map:    m,
	}
}

func loopNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return names
}

func (b *FuncBuilder) checkExtents(id OpID, extents []dim.Dimension) bool {
	ok := true
	for i, ext := range extents {
		if v, fixed := dim.FixedValue(ext); fixed && v <= 0 {
			ok = b.errs.Appendf("op %s: loop %d has a non-positive extent %d", id, i, v)
		}
	}
	return ok
}

// MatMul adds the matrix multiplication x[m, k] * y[k, n].
// The loops of the node are m, n, and k. The loop k is reduced.
func (b *FuncBuilder) MatMul(name string, x, y *Tensor) *Tensor {
	if !b.checkInputs(x, y) {
		return nil
	}
	id := b.newID(name)
	if x.Shape.Rank() != 2 || y.Shape.Rank() != 2 {
		b.errs.Appendf("op %s: matrix multiplication of %s%s and %s%s: operands need to be matrices", id, x.Name, x.Shape, y.Name, y.Shape)
		return nil
	}
	if !dim.Equal(x.Shape[1], y.Shape[0]) {
		b.errs.Appendf("op %s: cannot multiply %s%s with %s%s: mismatched contracting dimensions %s and %s", id, x.Name, x.Shape, y.Name, y.Shape, x.Shape[1], y.Shape[0])
		return nil
	}
	if x.DType != y.DType {
		b.errs.Appendf("op %s: mismatched element types %v and %v", id, x.DType, y.DType)
		return nil
	}
	extents := []dim.Dimension{x.Shape[0], y.Shape[1], x.Shape[1]}
	if !b.checkExtents(id, extents) {
		return nil
	}
	d := func(i int) dim.Dimension { return affine.DimVar(i) }
	n := &Contraction{
		computeNode: computeNode{
			id:      id,
			loops:   []string{"m", "n", "k"},
			extents: extents,
			operands: []Access{
				{Tensor: x, Map: affine.NewMap(3, 0, []dim.Dimension{d(0), d(2)})},
				{Tensor: y, Map: affine.NewMap(3, 0, []dim.Dimension{d(2), d(1)})},
			},
		},
		Reduced: []int{2},
	}
	n.result = b.result(id, x.DType, dim.Shape(extents[0], extents[1]), affine.NewMap(3, 0, []dim.Dimension{d(0), d(1)}))
	b.add(n)
	return n.result.Tensor
}

// Elementwise applies fn to the elements of tensors with the same shape.
func (b *FuncBuilder) Elementwise(name, fn string, xs ...*Tensor) *Tensor {
	if len(xs) == 0 || !b.checkInputs(xs...) {
		return nil
	}
	id := b.newID(name)
	shape := xs[0].Shape
	for _, x := range xs[1:] {
		if !x.Shape.Equal(shape) {
			b.errs.Appendf("op %s: %s(%s%s, %s%s): mismatched shapes", id, fn, xs[0].Name, shape, x.Name, x.Shape)
			return nil
		}
	}
	if !b.checkExtents(id, shape) {
		return nil
	}
	identity := affine.Identity(shape.Rank())
	n := &Elementwise{
		computeNode: computeNode{
			id:      id,
			loops:   loopNames("i", shape.Rank()),
			extents: slices.Clone(shape),
		},
		Fn: fn,
	}
	for _, x := range xs {
		n.operands = append(n.operands, Access{Tensor: x, Map: identity})
	}
	n.result = b.result(id, xs[0].DType, slices.Clone(shape), identity)
	b.add(n)
	return n.result.Tensor
}

// Reduce reduces some axes of a tensor.
func (b *FuncBuilder) Reduce(name string, x *Tensor, axes ...int) *Tensor {
	if !b.checkInputs(x) {
		return nil
	}
	id := b.newID(name)
	rank := x.Shape.Rank()
	reduced := make([]bool, rank)
	for _, axis := range axes {
		if axis < 0 || axis >= rank {
			b.errs.Appendf("op %s: axis %d out of range for %s%s", id, axis, x.Name, x.Shape)
			return nil
		}
		if reduced[axis] {
			b.errs.Appendf("op %s: axis %d reduced twice", id, axis)
			return nil
		}
		reduced[axis] = true
	}
	if !b.checkExtents(id, x.Shape) {
		return nil
	}
	var results []dim.Dimension
	var shape dim.RankedShape
	for i, r := range reduced {
		if !r {
			results = append(results, affine.DimVar(i))
			shape = append(shape, x.Shape[i])
		}
	}
	sorted := slices.Clone(axes)
	slices.Sort(sorted)
	n := &Contraction{
		computeNode: computeNode{
			id:       id,
			loops:    loopNames("i", rank),
			extents:  slices.Clone(x.Shape),
			operands: []Access{{Tensor: x, Map: affine.Identity(rank)}},
		},
		Reduced: sorted,
	}
	n.result = b.result(id, x.DType, shape, affine.NewMap(rank, 0, results))
	b.add(n)
	return n.result.Tensor
}

// blockedMap returns the map (o, i) -> o*B + i from a blocked domain
// of rank 2r to a domain of rank r.
func blockedMap(blocks []int64) *affine.Map {
	r := len(blocks)
	return affine.FromCallable(2*r, 0, func(dims, _ []dim.Dimension) []dim.Dimension {
		res := make([]dim.Dimension, r)
		for i, blk := range blocks {
			res[i] = dim.Add(dim.Scale(blk, dims[i]), dims[r+i])
		}
		return res
	})
}

func (b *FuncBuilder) checkBlocks(id OpID, x *Tensor, rank int, blocks []int64) bool {
	if len(blocks) != rank {
		return b.errs.Appendf("op %s: got %d blocks for %s%s but want %d", id, len(blocks), x.Name, x.Shape, rank)
	}
	for i, blk := range blocks {
		if blk <= 0 {
			return b.errs.Appendf("op %s: block %d has a non-positive size %d", id, i, blk)
		}
	}
	return true
}

// Pack copies x[e_0, ..., e_r] into a tensor of shape
// [e_0/b_0, ..., e_r/b_r, b_0, ..., b_r].
func (b *FuncBuilder) Pack(name string, x *Tensor, blocks ...int64) *Tensor {
	if !b.checkInputs(x) {
		return nil
	}
	id := b.newID(name)
	r := x.Shape.Rank()
	if !b.checkBlocks(id, x, r, blocks) {
		return nil
	}
	shape := make(dim.RankedShape, 2*r)
	for i, blk := range blocks {
		if v, ok := dim.FixedValue(x.Shape[i]); ok && v%blk != 0 {
			b.errs.Appendf("op %s: axis %d of %s%s is not a multiple of %d", id, i, x.Name, x.Shape, blk)
			return nil
		}
		shape[i] = dim.FloorDiv(x.Shape[i], dim.Const(blk))
		shape[r+i] = dim.Const(blk)
	}
	if !b.checkExtents(id, shape) {
		return nil
	}
	n := &Pack{
		computeNode: computeNode{
			id:       id,
			loops:    append(loopNames("o", r), loopNames("b", r)...),
			extents:  slices.Clone(shape),
			operands: []Access{{Tensor: x, Map: blockedMap(blocks)}},
		},
		Blocks: slices.Clone(blocks),
	}
	n.result = b.result(id, x.DType, shape, affine.Identity(2*r))
	b.add(n)
	return n.result.Tensor
}

// Unpack copies a packed tensor [e_0, ..., e_r, b_0, ..., b_r] into a tensor
// of shape [e_0*b_0, ..., e_r*b_r].
func (b *FuncBuilder) Unpack(name string, x *Tensor, blocks ...int64) *Tensor {
	if !b.checkInputs(x) {
		return nil
	}
	id := b.newID(name)
	if x.Shape.Rank()%2 != 0 {
		b.errs.Appendf("op %s: cannot unpack %s%s: odd rank", id, x.Name, x.Shape)
		return nil
	}
	r := x.Shape.Rank() / 2
	if !b.checkBlocks(id, x, r, blocks) {
		return nil
	}
	shape := make(dim.RankedShape, r)
	for i, blk := range blocks {
		if !dim.Equal(x.Shape[r+i], dim.Const(blk)) {
			b.errs.Appendf("op %s: axis %d of %s%s does not match block size %d", id, r+i, x.Name, x.Shape, blk)
			return nil
		}
		shape[i] = dim.Scale(blk, x.Shape[i])
	}
	if !b.checkExtents(id, x.Shape) {
		return nil
	}
	n := &Unpack{
		computeNode: computeNode{
			id:       id,
			loops:    append(loopNames("o", r), loopNames("b", r)...),
			extents:  slices.Clone(x.Shape),
			operands: []Access{{Tensor: x, Map: affine.Identity(2 * r)}},
		},
		Blocks: slices.Clone(blocks),
	}
	n.result = b.result(id, x.DType, shape, blockedMap(blocks))
	b.add(n)
	return n.result.Tensor
}

// Loop adds a loop to the function. The nodes added by body are
// inserted in the body of the loop.
func (b *FuncBuilder) Loop(name string, extent dim.Dimension, body func(*FuncBuilder)) {
	loop := &Loop{Name: b.names.Name(name), Extent: extent}
	if v, ok := dim.FixedValue(extent); ok && v <= 0 {
		b.errs.Appendf("loop %s has a non-positive extent %d", loop.Name, v)
	}
	inner := &FuncBuilder{
		fn:    b.fn,
		names: b.names,
		errs:  b.errs,
		body:  &loop.Body,
	}
	body(inner)
	*b.body = append(*b.body, loop)
}

// Build returns the function with the given results and all the errors
// collected while building it.
func (b *FuncBuilder) Build(results ...*Tensor) (*Func, error) {
	for i, res := range results {
		if res == nil {
			b.errs.Appendf("result %d of function %s is undefined", i, b.fn.Name)
			continue
		}
		b.fn.Results = append(b.fn.Results, res)
	}
	if err := b.errs.ToError(); err != nil {
		return nil, err
	}
	return b.fn, nil
}
