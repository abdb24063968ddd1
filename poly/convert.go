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

package poly

import (
	"go/token"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/base/diag"
	"github.com/gx-org/tiler/dim"
)

// FromDimension converts a dimension into an oracle expression.
// Variables become parameters of the context.
// Products of variables and divisions by non-constants are not
// quasi-affine and return an error of kind diag.ErrUnrepresentable.
func (ctx *Context) FromDimension(d dim.Dimension) (Expr, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	return ctx.fromDimension(d)
}

func (ctx *Context) fromDimension(d dim.Dimension) (Expr, error) {
	switch dT := d.(type) {
	case dim.Constant:
		return Const(dT), nil
	case *dim.Variable:
		return ctx.param(dT)
	case *dim.Sum:
		terms := make([]Term, len(dT.Terms))
		for i, t := range dT.Terms {
			x, err := ctx.fromDimension(t.X)
			if err != nil {
				return nil, err
			}
			terms[i] = Term{Coeff: t.Coeff, X: x}
		}
		return &Add{Terms: terms, Offset: dT.Offset}, nil
	case *dim.Product:
		return nil, diag.Unrepresentablef("product %s", d)
	case *dim.Div:
		x, by, err := ctx.divOperands(d, dT.X, dT.Y)
		if err != nil {
			return nil, err
		}
		return &FloorDiv{X: x, By: by}, nil
	case *dim.Modulo:
		x, by, err := ctx.divOperands(d, dT.X, dT.Y)
		if err != nil {
			return nil, err
		}
		return &Mod{X: x, By: by}, nil
	case *dim.Select:
		subject, err := ctx.fromDimension(dT.Subject)
		if err != nil {
			return nil, err
		}
		expected, err := ctx.fromDimension(dT.Expected)
		if err != nil {
			return nil, err
		}
		ifTrue, err := ctx.fromDimension(dT.True)
		if err != nil {
			return nil, err
		}
		ifFalse, err := ctx.fromDimension(dT.False)
		if err != nil {
			return nil, err
		}
		return &Piecewise{Pieces: []Piece{
			{Cond: &Cond{LHS: subject, Op: dT.Op, RHS: expected}, Value: ifTrue},
			{Value: ifFalse},
		}}, nil
	case *dim.Min:
		ops, err := ctx.fromDimensions(dT.Operands)
		if err != nil {
			return nil, err
		}
		return &MinOf{Operands: ops}, nil
	case *dim.Max:
		ops, err := ctx.fromDimensions(dT.Operands)
		if err != nil {
			return nil, err
		}
		return &MaxOf{Operands: ops}, nil
	}
	return nil, diag.Unrepresentablef("dimension %s of type %T", d, d)
}

func (ctx *Context) fromDimensions(ds []dim.Dimension) ([]Expr, error) {
	es := make([]Expr, len(ds))
	for i, d := range ds {
		var err error
		if es[i], err = ctx.fromDimension(d); err != nil {
			return nil, err
		}
	}
	return es, nil
}

func (ctx *Context) divOperands(d, x, y dim.Dimension) (Expr, int64, error) {
	c, ok := dim.FixedValue(y)
	if !ok || c <= 0 {
		return nil, 0, diag.Unrepresentablef("division %s by %s", d, y)
	}
	xe, err := ctx.fromDimension(x)
	if err != nil {
		return nil, 0, err
	}
	return xe, c, nil
}

// ToDimension converts an oracle expression back into a dimension.
//
// A piecewise expression with two pieces gated by a single relation
// becomes a dim.Select. If the context detects minimum and maximum
// patterns, a case split choosing the smallest (resp. largest) of its
// values becomes a dim.Min (resp. dim.Max).
func (ctx *Context) ToDimension(e Expr) (dim.Dimension, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	return ctx.toDimension(e)
}

func (ctx *Context) toDimension(e Expr) (dim.Dimension, error) {
	switch eT := e.(type) {
	case Const:
		return dim.Const(int64(eT)), nil
	case *Param:
		return &dim.Variable{Name: eT.Name, Range: eT.Range}, nil
	case *Add:
		ds := make([]dim.Dimension, 0, len(eT.Terms)+1)
		for _, t := range eT.Terms {
			x, err := ctx.toDimension(t.X)
			if err != nil {
				return nil, err
			}
			ds = append(ds, dim.Scale(t.Coeff, x))
		}
		ds = append(ds, dim.Const(eT.Offset))
		return dim.Add(ds...), nil
	case *FloorDiv:
		x, err := ctx.toDimension(eT.X)
		if err != nil {
			return nil, err
		}
		return dim.FloorDiv(x, dim.Const(eT.By)), nil
	case *Mod:
		x, err := ctx.toDimension(eT.X)
		if err != nil {
			return nil, err
		}
		return dim.Mod(x, dim.Const(eT.By)), nil
	case *Piecewise:
		return ctx.piecewiseToDimension(eT.Pieces)
	case *MinOf:
		ops, err := ctx.toDimensions(eT.Operands)
		if err != nil {
			return nil, err
		}
		return dim.NewMin(ops...), nil
	case *MaxOf:
		ops, err := ctx.toDimensions(eT.Operands)
		if err != nil {
			return nil, err
		}
		return dim.NewMax(ops...), nil
	}
	return nil, errors.Errorf("oracle expression %T not supported", e)
}

func (ctx *Context) toDimensions(es []Expr) ([]dim.Dimension, error) {
	ds := make([]dim.Dimension, len(es))
	for i, e := range es {
		var err error
		if ds[i], err = ctx.toDimension(e); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (ctx *Context) piecewiseToDimension(pieces []Piece) (dim.Dimension, error) {
	if len(pieces) == 0 {
		return nil, errors.Errorf("empty piecewise expression")
	}
	first := pieces[0]
	value, err := ctx.toDimension(first.Value)
	if err != nil {
		return nil, err
	}
	if first.Cond == nil {
		return value, nil
	}
	if len(pieces) == 1 {
		return nil, errors.Errorf("piecewise expression without a default piece")
	}
	rest, err := ctx.piecewiseToDimension(pieces[1:])
	if err != nil {
		return nil, err
	}
	lhs, err := ctx.toDimension(first.Cond.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toDimension(first.Cond.RHS)
	if err != nil {
		return nil, err
	}
	if ctx.opts.detectMinMax {
		if mm := minMaxPattern(lhs, first.Cond.Op, rhs, value, rest); mm != nil {
			return mm, nil
		}
	}
	return dim.NewSelect(lhs, first.Cond.Op, rhs, value, rest), nil
}

// minMaxPattern returns min(ifTrue, ifFalse) or max(ifTrue, ifFalse)
// if the condition lhs op rhs compares ifTrue with ifFalse.
// It returns nil if no pattern is detected.
func minMaxPattern(lhs dim.Dimension, op token.Token, rhs, ifTrue, ifFalse dim.Dimension) dim.Dimension {
	diff := dim.Sub(lhs, rhs)
	gap := dim.Sub(ifTrue, ifFalse)
	// The condition and the gap can differ by a constant in [lo, hi]:
	// both values are equal when the gap is zero.
	var lo, hi int64
	var isMinWhenSame bool
	switch op {
	case token.LEQ:
		lo, hi, isMinWhenSame = 0, 1, true
	case token.LSS:
		lo, hi, isMinWhenSame = -1, 0, true
	case token.GEQ:
		lo, hi, isMinWhenSame = -1, 0, false
	case token.GTR:
		lo, hi, isMinWhenSame = 0, 1, false
	default:
		return nil
	}
	inRange := func(d dim.Dimension) bool {
		v, ok := dim.FixedValue(d)
		return ok && lo <= v && v <= hi
	}
	switch {
	case inRange(dim.Sub(diff, gap)):
		// Condition compares ifTrue against ifFalse.
		if isMinWhenSame {
			return dim.NewMin(ifTrue, ifFalse)
		}
		return dim.NewMax(ifTrue, ifFalse)
	case inRange(dim.Add(diff, gap)):
		// Condition compares ifFalse against ifTrue.
		if isMinWhenSame {
			return dim.NewMax(ifTrue, ifFalse)
		}
		return dim.NewMin(ifTrue, ifFalse)
	}
	return nil
}
