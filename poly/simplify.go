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
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/hashicorp/go-set/v3"
	"github.com/gx-org/tiler/dim"
)

// params returns the parameters of an expression sorted by name.
func params(e Expr) []*Param {
	seen := set.New[string](0)
	var ps []*Param
	var walk func(Expr)
	walk = func(e Expr) {
		switch eT := e.(type) {
		case *Param:
			if seen.Insert(eT.Name) {
				ps = append(ps, eT)
			}
		case *Add:
			for _, t := range eT.Terms {
				walk(t.X)
			}
		case *FloorDiv:
			walk(eT.X)
		case *Mod:
			walk(eT.X)
		case *Piecewise:
			for _, piece := range eT.Pieces {
				if piece.Cond != nil {
					walk(piece.Cond.LHS)
					walk(piece.Cond.RHS)
				}
				walk(piece.Value)
			}
		case *MinOf:
			for _, op := range eT.Operands {
				walk(op)
			}
		case *MaxOf:
			for _, op := range eT.Operands {
				walk(op)
			}
		}
	}
	walk(e)
	slices.SortFunc(ps, func(a, b *Param) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ps
}

// box is a product of inclusive parameter intervals.
type box struct {
	lo, hi []int64
}

func (b box) size() int64 {
	n := int64(1)
	for i := range b.lo {
		n *= b.hi[i] - b.lo[i] + 1
	}
	return n
}

func (b box) with(j int, lo, hi int64) box {
	nb := box{lo: slices.Clone(b.lo), hi: slices.Clone(b.hi)}
	nb.lo[j], nb.hi[j] = lo, hi
	return nb
}

// forEach calls f on every point of the box in lexicographic order
// until f returns false.
func (b box) forEach(f func(pt []int64) bool) {
	pt := slices.Clone(b.lo)
	for {
		if !f(pt) {
			return
		}
		j := len(pt) - 1
		for ; j >= 0; j-- {
			if pt[j] < b.hi[j] {
				pt[j]++
				break
			}
			pt[j] = b.lo[j]
		}
		if j < 0 {
			return
		}
	}
}

// table stores the values of an expression on all the points of a box.
type table struct {
	params  []*Param
	full    box
	strides []int64
	values  []int64
}

func (ctx *Context) paramBox(ps []*Param) (box, error) {
	b := box{lo: make([]int64, len(ps)), hi: make([]int64, len(ps))}
	size := int64(1)
	for i, p := range ps {
		if !p.Bounded() {
			return box{}, errors.Wrapf(ErrUnbounded, "parameter %s", p.Name)
		}
		b.lo[i], b.hi[i] = p.Range.Lo, p.Range.Hi
		if b.hi[i] < b.lo[i] {
			return box{}, errors.Errorf("parameter %s has an empty range [%d, %d]", p.Name, b.lo[i], b.hi[i])
		}
		size *= b.hi[i] - b.lo[i] + 1
		if size > int64(ctx.opts.enumerationLimit) {
			return box{}, errors.Wrapf(ErrEnumerationLimit, "more than %d points", ctx.opts.enumerationLimit)
		}
	}
	return b, nil
}

func (ctx *Context) tabulate(e Expr) (*table, error) {
	ps := params(e)
	full, err := ctx.paramBox(ps)
	if err != nil {
		return nil, err
	}
	tab := &table{
		params:  ps,
		full:    full,
		strides: make([]int64, len(ps)),
		values:  make([]int64, 0, full.size()),
	}
	stride := int64(1)
	for j := len(ps) - 1; j >= 0; j-- {
		tab.strides[j] = stride
		stride *= full.hi[j] - full.lo[j] + 1
	}
	pt := make(Point, len(ps))
	full.forEach(func(coords []int64) bool {
		for j, p := range ps {
			pt[p.Name] = coords[j]
		}
		var v int64
		if v, err = eval(e, pt); err != nil {
			return false
		}
		tab.values = append(tab.values, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return tab, nil
}

func (tab *table) at(coords []int64) int64 {
	idx := int64(0)
	for j, c := range coords {
		idx += (c - tab.full.lo[j]) * tab.strides[j]
	}
	return tab.values[idx]
}

// affineFit is offset + sum_j coeffs[j]*p_j.
type affineFit struct {
	coeffs []int64
	offset int64
}

func (f affineFit) at(coords []int64) int64 {
	v := f.offset
	for j, c := range coords {
		v += f.coeffs[j] * c
	}
	return v
}

func (f affineFit) expr(ps []*Param) Expr {
	var terms []Term
	for j, c := range f.coeffs {
		if c != 0 {
			terms = append(terms, Term{Coeff: c, X: ps[j]})
		}
	}
	if len(terms) == 0 {
		return Const(f.offset)
	}
	return &Add{Terms: terms, Offset: f.offset}
}

// fit returns the affine function equal to the table on a box.
func (tab *table) fit(b box) (affineFit, bool) {
	base := b.lo
	v0 := tab.at(base)
	f := affineFit{coeffs: make([]int64, len(base))}
	f.offset = v0
	for j := range base {
		if b.hi[j] == b.lo[j] {
			continue
		}
		next := slices.Clone(base)
		next[j]++
		f.coeffs[j] = tab.at(next) - v0
		f.offset -= f.coeffs[j] * base[j]
	}
	ok := true
	b.forEach(func(pt []int64) bool {
		ok = tab.at(pt) == f.at(pt)
		return ok
	})
	return f, ok
}

// Simplify returns an expression computing the same function.
//
// If the parameters are bounded and their box is small enough, the
// expression is tabulated and replaced by, in order of preference:
// a constant, an affine expression, or a case split on one parameter
// between two affine expressions. Otherwise, the expression is
// normalized structurally.
func (ctx *Context) Simplify(e Expr) (Expr, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	tab, err := ctx.tabulate(e)
	if errors.Is(err, ErrUnbounded) || errors.Is(err, ErrEnumerationLimit) {
		return ctx.normalize(e)
	}
	if err != nil {
		return nil, err
	}
	if f, ok := tab.fit(tab.full); ok {
		return f.expr(tab.params), nil
	}
	for j := range tab.params {
		if split := tab.splitOn(j, ctx.opts.detectMinMax); split != nil {
			return split, nil
		}
	}
	return ctx.normalize(e)
}

// splitOn looks for the largest threshold t such that the table is affine
// on both sides of p_j <= t.
func (tab *table) splitOn(j int, detectMinMax bool) Expr {
	lo, hi := tab.full.lo[j], tab.full.hi[j]
	if lo == hi {
		return nil
	}
	below := func(t int64) bool {
		_, ok := tab.fit(tab.full.with(j, lo, t))
		return ok
	}
	above := func(s int64) bool {
		_, ok := tab.fit(tab.full.with(j, s, hi))
		return ok
	}
	if !below(lo) {
		return nil
	}
	// Affine on [lo, t] is monotone in t: find the largest t in [lo, hi-1].
	tMax := lo
	for l, h := lo+1, hi-1; l <= h; {
		mid := l + (h-l)/2
		if below(mid) {
			tMax, l = mid, mid+1
		} else {
			h = mid - 1
		}
	}
	if !above(tMax + 1) {
		return nil
	}
	f1, _ := tab.fit(tab.full.with(j, lo, tMax))
	f2, _ := tab.fit(tab.full.with(j, tMax+1, hi))
	e1, e2 := f1.expr(tab.params), f2.expr(tab.params)
	if detectMinMax {
		isMin, isMax := true, true
		tab.full.forEach(func(pt []int64) bool {
			v, v1, v2 := tab.at(pt), f1.at(pt), f2.at(pt)
			isMin = isMin && v == min(v1, v2)
			isMax = isMax && v == max(v1, v2)
			return isMin || isMax
		})
		switch {
		case isMin:
			return &MinOf{Operands: []Expr{e1, e2}}
		case isMax:
			return &MaxOf{Operands: []Expr{e1, e2}}
		}
	}
	return &Piecewise{Pieces: []Piece{
		{Cond: &Cond{LHS: tab.params[j], Op: token.LEQ, RHS: Const(tMax)}, Value: e1},
		{Value: e2},
	}}
}

// normalize rebuilds the expression through the dimension algebra.
func (ctx *Context) normalize(e Expr) (Expr, error) {
	d, err := ctx.toDimension(e)
	if err != nil {
		return nil, err
	}
	return ctx.fromDimension(d)
}

// linearForm returns the coefficients of an expression built only with
// constants, parameters, and sums.
func linearForm(e Expr) (coeffs map[*Param]int64, offset int64, ok bool) {
	coeffs = make(map[*Param]int64)
	var walk func(c int64, e Expr) bool
	walk = func(c int64, e Expr) bool {
		switch eT := e.(type) {
		case Const:
			offset += c * int64(eT)
			return true
		case *Param:
			coeffs[eT] += c
			return true
		case *Add:
			offset += c * eT.Offset
			for _, t := range eT.Terms {
				if !walk(c*t.Coeff, t.X) {
					return false
				}
			}
			return true
		}
		return false
	}
	ok = walk(1, e)
	return coeffs, offset, ok
}

// extremum returns the minimum or the maximum of an expression over
// the ranges of its parameters.
func (ctx *Context) extremum(e Expr, isMin bool) (int64, error) {
	if coeffs, offset, ok := linearForm(e); ok {
		res := offset
		for p, c := range coeffs {
			if c == 0 {
				continue
			}
			useLo := (c > 0) == isMin
			switch {
			case p.Range == nil:
				return 0, errors.Wrapf(ErrUnbounded, "parameter %s has no range", p.Name)
			case useLo:
				res += c * p.Range.Lo
			case p.Range.Hi == dim.Unbounded:
				return 0, errors.Wrapf(ErrUnbounded, "parameter %s has no upper bound", p.Name)
			default:
				res += c * p.Range.Hi
			}
		}
		return res, nil
	}
	tab, err := ctx.tabulate(e)
	if err != nil {
		return 0, err
	}
	res := tab.values[0]
	for _, v := range tab.values[1:] {
		if isMin {
			res = min(res, v)
		} else {
			res = max(res, v)
		}
	}
	return res, nil
}
