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

package dim

import (
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// linear is a dimension in the form sum_i c_i * x_i + offset
// where every x_i is neither a constant nor a sum.
type linear struct {
	coeffs map[string]int64
	atoms  map[string]Dimension
	offset int64
}

func newLinear() *linear {
	return &linear{
		coeffs: make(map[string]int64),
		atoms:  make(map[string]Dimension),
	}
}

func toLinear(d Dimension) *linear {
	l := newLinear()
	l.add(1, d)
	return l
}

func (l *linear) add(coeff int64, d Dimension) {
	if coeff == 0 {
		return
	}
	switch dT := d.(type) {
	case Constant:
		l.offset += coeff * int64(dT)
	case *Sum:
		for _, t := range dT.Terms {
			l.add(coeff*t.Coeff, t.X)
		}
		l.offset += coeff * dT.Offset
	default:
		key := d.String()
		l.coeffs[key] += coeff
		l.atoms[key] = d
	}
}

// terms returns the non-zero terms sorted by canonical key.
func (l *linear) terms() []Term {
	keys := maps.Keys(l.coeffs)
	slices.Sort(keys)
	terms := make([]Term, 0, len(keys))
	for _, key := range keys {
		coeff := l.coeffs[key]
		if coeff == 0 {
			continue
		}
		terms = append(terms, Term{Coeff: coeff, X: l.atoms[key]})
	}
	return terms
}

func (l *linear) build() Dimension {
	return buildSum(l.terms(), l.offset)
}

func buildSum(terms []Term, offset int64) Dimension {
	switch {
	case len(terms) == 0:
		return Constant(offset)
	case len(terms) == 1 && terms[0].Coeff == 1 && offset == 0:
		return terms[0].X
	}
	return &Sum{Terms: terms, Offset: offset}
}

// Add returns the sum of dimensions.
func Add(ds ...Dimension) Dimension {
	l := newLinear()
	for _, d := range ds {
		l.add(1, d)
	}
	return l.build()
}

// Sub returns a-b.
func Sub(a, b Dimension) Dimension {
	l := toLinear(a)
	l.add(-1, b)
	return l.build()
}

// Neg returns -d.
func Neg(d Dimension) Dimension {
	return Scale(-1, d)
}

// Scale returns c*d.
func Scale(c int64, d Dimension) Dimension {
	l := newLinear()
	l.add(c, d)
	return l.build()
}

// Mul returns the product of two dimensions.
// Products are distributed over sums.
func Mul(a, b Dimension) Dimension {
	if c, ok := a.(Constant); ok {
		return Scale(int64(c), b)
	}
	if c, ok := b.(Constant); ok {
		return Scale(int64(c), a)
	}
	la, lb := toLinear(a), toLinear(b)
	ta, tb := la.terms(), lb.terms()
	res := newLinear()
	res.offset = la.offset * lb.offset
	for _, t := range ta {
		res.add(t.Coeff*lb.offset, t.X)
	}
	for _, t := range tb {
		res.add(t.Coeff*la.offset, t.X)
	}
	for _, x := range ta {
		for _, y := range tb {
			res.add(x.Coeff*y.Coeff, mulAtoms(x.X, y.X))
		}
	}
	return res.build()
}

// Prod returns the product of all dimensions. Prod() returns 1.
func Prod(ds ...Dimension) Dimension {
	var res Dimension = Constant(1)
	for _, d := range ds {
		res = Mul(res, d)
	}
	return res
}

func factors(d Dimension) []Dimension {
	if p, ok := d.(*Product); ok {
		return p.Factors
	}
	return []Dimension{d}
}

func mulAtoms(x, y Dimension) Dimension {
	fs := append(append([]Dimension{}, factors(x)...), factors(y)...)
	sortDims(fs)
	return &Product{Factors: fs}
}

func sortDims(ds []Dimension) {
	slices.SortStableFunc(ds, func(a, b Dimension) int {
		return strings.Compare(a.String(), b.String())
	})
}

// removeFactors returns the factors of x once the factors of y have been
// removed. It returns false if y does not divide x.
func removeFactors(x, y Dimension) (Dimension, bool) {
	rest := append([]Dimension{}, factors(x)...)
	for _, f := range factors(y) {
		i := slices.IndexFunc(rest, func(r Dimension) bool { return Equal(r, f) })
		if i < 0 {
			return nil, false
		}
		rest = slices.Delete(rest, i, i+1)
	}
	switch len(rest) {
	case 0:
		return Constant(1), true
	case 1:
		return rest[0], true
	}
	return &Product{Factors: rest}, true
}
