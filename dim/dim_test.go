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

package dim_test

import (
	"go/token"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiler/base/diag"
	"github.com/gx-org/tiler/dim"
)

var (
	a    = dim.Var("a")
	b    = dim.Var("b")
	x    = dim.RangedVar("x", 8, 16)
	i    = dim.Var("i")
	tile = dim.Var("T")
)

func TestSimplify(t *testing.T) {
	tests := []struct {
		got  dim.Dimension
		want string
	}{
		{
			got:  dim.Add(dim.Add(a, b), dim.Neg(a), dim.Neg(b)),
			want: "0",
		},
		{
			got:  dim.Add(dim.Const(2), dim.Const(3)),
			want: "5",
		},
		{
			got:  dim.Add(b, a, a),
			want: "2*a + b",
		},
		{
			got:  dim.Sub(dim.Add(a, dim.Const(4)), dim.Scale(3, b)),
			want: "a - 3*b + 4",
		},
		{
			got:  dim.Mul(dim.Add(a, dim.Const(1)), dim.Add(b, dim.Const(2))),
			want: "2*a + a*b + b + 2",
		},
		{
			got:  dim.Mul(b, a),
			want: "a*b",
		},
		{
			got:  dim.FloorDiv(dim.Mul(i, tile), tile),
			want: "i",
		},
		{
			got:  dim.FloorDiv(dim.Add(dim.Scale(12, a), dim.Const(24)), dim.Const(12)),
			want: "a + 2",
		},
		{
			got:  dim.FloorDiv(dim.Add(dim.Scale(12, a), dim.Const(25)), dim.Const(12)),
			want: "a + 2",
		},
		{
			got:  dim.FloorDiv(dim.Add(x, dim.Const(11)), dim.Const(12)),
			want: "floordiv(x + 11, 12)",
		},
		{
			got:  dim.FloorDiv(x, dim.Const(32)),
			want: "0",
		},
		{
			got:  dim.FloorDiv(dim.FloorDiv(a, dim.Const(4)), dim.Const(8)),
			want: "floordiv(a, 32)",
		},
		{
			got:  dim.FloorDiv(a, b),
			want: "floordiv(a, b)",
		},
		{
			got:  dim.CeilDiv(dim.Const(10), dim.Const(4)),
			want: "3",
		},
		{
			got:  dim.CeilDiv(dim.Const(384), tile),
			want: "ceildiv(384, T)",
		},
		{
			got:  dim.CeilDiv(a, b),
			want: "ceildiv(a, b)",
		},
		{
			got:  dim.Mod(dim.Add(dim.Scale(8, a), dim.Const(3)), dim.Const(4)),
			want: "3",
		},
		{
			got:  dim.Mod(dim.Scale(5, a), dim.Const(3)),
			want: "mod(2*a, 3)",
		},
		{
			got:  dim.Mod(dim.Mul(a, b), b),
			want: "0",
		},
		{
			got:  dim.NewMin(x, dim.Const(32)),
			want: "x",
		},
		{
			got:  dim.NewMin(x, dim.Add(x, dim.Const(1)), a),
			want: "min(a, x)",
		},
		{
			got:  dim.NewMax(dim.NewMax(a, b), a),
			want: "max(a, b)",
		},
		{
			got:  dim.NewSelect(x, token.LEQ, dim.Const(20), dim.Const(1), dim.Const(2)),
			want: "1",
		},
		{
			got:  dim.NewSelect(x, token.LEQ, dim.Const(12), dim.Const(1), dim.Const(2)),
			want: "select(x <= 12, 1, 2)",
		},
		{
			got:  dim.NewSelect(a, token.LSS, b, dim.Const(3), dim.Const(3)),
			want: "3",
		},
	}
	for n, test := range tests {
		if got := test.got.String(); got != test.want {
			t.Errorf("test %d: got %s but want %s", n, got, test.want)
		}
	}
}

func TestEqualIgnoresConstructionOrder(t *testing.T) {
	lhs := dim.Add(dim.Mul(a, b), dim.Scale(2, a), dim.Const(1))
	rhs := dim.Add(dim.Const(1), a, dim.Mul(b, a), a)
	if !dim.Equal(lhs, rhs) {
		t.Errorf("%s and %s are not equal", lhs, rhs)
	}
	if dim.Equal(lhs, dim.Add(lhs, dim.Const(1))) {
		t.Errorf("%s and %s + 1 are equal", lhs, lhs)
	}
}

func TestFixed(t *testing.T) {
	tests := []struct {
		d     dim.Dimension
		fixed bool
		value int64
	}{
		{d: dim.Const(4), fixed: true, value: 4},
		{d: dim.Sub(a, a), fixed: true, value: 0},
		{d: dim.Add(a, dim.Const(1)), fixed: false},
		{d: dim.FloorDiv(dim.Mul(dim.Const(6), a), dim.Scale(3, a)), fixed: true, value: 2},
	}
	for n, test := range tests {
		if got := dim.IsFixed(test.d); got != test.fixed {
			t.Errorf("test %d: IsFixed(%s) = %v but want %v", n, test.d, got, test.fixed)
		}
		v, ok := dim.FixedValue(test.d)
		if ok && v != test.value {
			t.Errorf("test %d: FixedValue(%s) = %d but want %d", n, test.d, v, test.value)
		}
	}
}

func TestEval(t *testing.T) {
	bindings := dim.Bindings{"a": 7, "b": -3, "x": 9}
	tests := []struct {
		d    dim.Dimension
		want int64
	}{
		{d: dim.Add(a, b), want: 4},
		{d: dim.Mul(a, b), want: -21},
		{d: dim.FloorDiv(b, dim.Const(2)), want: -2},
		{d: dim.Mod(b, dim.Const(2)), want: 1},
		{d: dim.FloorDiv(a, b), want: -3},
		{d: dim.CeilDiv(dim.Add(x, dim.Const(11)), dim.Const(12)), want: 2},
		{d: dim.NewSelect(a, token.GTR, b, a, b), want: 7},
		{d: dim.NewMin(a, b, x), want: -3},
		{d: dim.NewMax(a, b, x), want: 9},
	}
	for n, test := range tests {
		got, err := dim.Eval(test.d, bindings)
		if err != nil {
			t.Errorf("test %d: cannot evaluate %s: %v", n, test.d, err)
			continue
		}
		if got != test.want {
			t.Errorf("test %d: %s evaluates to %d but want %d", n, test.d, got, test.want)
		}
	}
	if _, err := dim.Eval(dim.Add(a, i), bindings); err == nil {
		t.Errorf("expected an error when evaluating an unbound variable")
	}
	if _, err := dim.Eval(dim.FloorDiv(a, dim.Sub(b, b)), bindings); err == nil {
		t.Errorf("expected an error when dividing by zero")
	}
}

func TestSubstitute(t *testing.T) {
	d := dim.FloorDiv(dim.Add(dim.Mul(i, tile), a), tile)
	got := dim.Bind(d, dim.Bindings{"T": 4, "a": 8})
	if want := "i + 2"; got.String() != want {
		t.Errorf("got %s but want %s", got, want)
	}
	vars := dim.Variables(d, b)
	var names []string
	for _, v := range vars {
		names = append(names, v.Name)
	}
	if diff := cmp.Diff(names, []string{"T", "a", "b", "i"}); diff != "" {
		t.Errorf("unexpected variables: %s", diff)
	}
}

func TestAffine(t *testing.T) {
	tests := []struct {
		d           dim.Dimension
		affine      bool
		quasiAffine bool
	}{
		{d: dim.Add(a, dim.Scale(2, b)), affine: true, quasiAffine: true},
		{d: dim.FloorDiv(a, dim.Const(4)), affine: false, quasiAffine: true},
		{d: dim.Mul(a, b), affine: false, quasiAffine: false},
		{d: dim.FloorDiv(a, b), affine: false, quasiAffine: false},
	}
	for n, test := range tests {
		if got := dim.IsAffine(test.d); got != test.affine {
			t.Errorf("test %d: IsAffine(%s) = %v but want %v", n, test.d, got, test.affine)
		}
		if got := dim.IsQuasiAffine(test.d); got != test.quasiAffine {
			t.Errorf("test %d: IsQuasiAffine(%s) = %v but want %v", n, test.d, got, test.quasiAffine)
		}
	}
}

func TestBindings(t *testing.T) {
	bs := dim.Bindings{"n": 2, "m": 1}
	if got, want := bs.Key(), "m=1,n=2"; got != want {
		t.Errorf("got key %q but want %q", got, want)
	}
	clone := bs.Clone()
	if err := clone.Merge(dim.Bindings{"k": 3, "m": 1}); err != nil {
		t.Fatal(err)
	}
	if _, ok := bs["k"]; ok {
		t.Errorf("merge modified the original bindings")
	}
	if err := clone.Merge(dim.Bindings{"n": 4}); err == nil {
		t.Errorf("expected an error when merging conflicting values")
	}
	if err := (dim.Bindings{"x": 20}).Check([]*dim.Variable{x}); err == nil {
		t.Errorf("expected an error for a value out of range")
	}
}

func TestRankedShape(t *testing.T) {
	s := dim.Shape(dim.Const(2), a, dim.Const(3))
	if s.IsFixed() {
		t.Errorf("%s is fixed", s)
	}
	if got, want := s.NumElements().String(), "6*a"; got != want {
		t.Errorf("got %s elements but want %s", got, want)
	}
	if _, err := s.ToBackend(dtype.Float32); err == nil {
		t.Errorf("expected an error when converting a shape with unknown dimensions")
	}
	bs, err := s.Bind(dim.Bindings{"a": 5}).ToBackend(dtype.Float32)
	if err != nil {
		t.Fatal(err)
	}
	if bs.DType != dtype.Float32 {
		t.Errorf("got dtype %v but want %v", bs.DType, dtype.Float32)
	}
	if diff := cmp.Diff(bs.AxisLengths, []int{2, 5, 3}); diff != "" {
		t.Errorf("unexpected backend axis lengths:\n%s", diff)
	}
	if !dim.FromBackend(bs).Equal(dim.Shape(dim.Const(2), dim.Const(5), dim.Const(3))) {
		t.Errorf("shape does not round trip through the backend")
	}
}

func TestMinMaxOfNothing(t *testing.T) {
	for i, f := range []func(...dim.Dimension) dim.Dimension{dim.NewMin, dim.NewMax} {
		func() {
			defer func() {
				r := recover()
				if r == nil {
					t.Errorf("test %d: expected a panic", i)
					return
				}
				if err, ok := r.(error); !ok || !diag.IsInternal(err) {
					t.Errorf("test %d: panic %v is not an internal error", i, r)
				}
			}()
			f()
		}()
	}
}
