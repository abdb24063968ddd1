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

// FloorDiv returns floor(x/y).
//
// Divisions by a constant are split such that floor((c*q+r)/c) = q + floor(r/c).
// Divisions by a non-constant dimension are simplified only when exact.
func FloorDiv(x, y Dimension) Dimension {
	if c, ok := y.(Constant); ok {
		return floorDivConst(x, int64(c))
	}
	if q, ok := divideExact(x, y); ok {
		return q
	}
	return &Div{X: x, Y: y}
}

// CeilDiv returns ceil(x/y).
func CeilDiv(x, y Dimension) Dimension {
	return Neg(FloorDiv(Neg(x), y))
}

// Mod returns x modulo y.
func Mod(x, y Dimension) Dimension {
	c, ok := y.(Constant)
	if !ok {
		if _, exact := divideExact(x, y); exact {
			return Constant(0)
		}
		return &Modulo{X: x, Y: y}
	}
	switch {
	case c == 1:
		return Constant(0)
	case c <= 0:
		if xc, ok := x.(Constant); ok && c != 0 {
			return Constant(floorMod(int64(xc), int64(c)))
		}
		return &Modulo{X: x, Y: y}
	}
	rem := remainderMod(x, int64(c))
	if _, ok := rem.(Constant); ok {
		return rem
	}
	if lo, hi, ok := Bounds(rem); ok && lo >= 0 && hi < int64(c) {
		return rem
	}
	return &Modulo{X: rem, Y: c}
}

func floorDivConst(x Dimension, c int64) Dimension {
	switch {
	case c == 0:
		return &Div{X: x, Y: Constant(0)}
	case c == 1:
		return x
	case c < 0:
		return floorDivConst(Neg(x), -c)
	}
	q, r := splitQuotient(x, c)
	if _, ok := r.(Constant); ok {
		// The remainder offset is in [0, c).
		return q
	}
	if lo, hi, ok := Bounds(r); ok && floorDiv(lo, c) == floorDiv(hi, c) {
		return Add(q, Constant(floorDiv(lo, c)))
	}
	if inner, ok := r.(*Div); ok {
		if ci, ok := inner.Y.(Constant); ok && ci > 0 {
			return Add(q, floorDivConst(inner.X, c*int64(ci)))
		}
	}
	return Add(q, &Div{X: r, Y: Constant(c)})
}

// splitQuotient writes x as c*q + r where q collects the terms
// with a coefficient divisible by c and the offset of r is in [0, c).
func splitQuotient(x Dimension, c int64) (q, r Dimension) {
	lx := toLinear(x)
	lq, lr := newLinear(), newLinear()
	for _, t := range lx.terms() {
		if t.Coeff%c == 0 {
			lq.add(t.Coeff/c, t.X)
		} else {
			lr.add(t.Coeff, t.X)
		}
	}
	lq.offset = floorDiv(lx.offset, c)
	lr.offset = lx.offset - c*lq.offset
	return lq.build(), lr.build()
}

// remainderMod returns r such that x mod c = r mod c with every
// coefficient of r in [0, c).
func remainderMod(x Dimension, c int64) Dimension {
	lx := toLinear(x)
	lr := newLinear()
	for _, t := range lx.terms() {
		lr.add(floorMod(t.Coeff, c), t.X)
	}
	lr.offset = floorMod(lx.offset, c)
	return lr.build()
}

// divideExact returns q such that x = q*y if it can be proven symbolically.
func divideExact(x, y Dimension) (Dimension, bool) {
	if Equal(x, y) {
		return Constant(1), true
	}
	lx, ly := toLinear(x), toLinear(y)
	ty := ly.terms()
	if len(ty) == 0 {
		return nil, false
	}
	if len(ty) > 1 || ly.offset != 0 {
		return multipleOf(lx, ly)
	}
	if lx.offset != 0 {
		return nil, false
	}
	cy, ay := ty[0].Coeff, ty[0].X
	lq := newLinear()
	for _, t := range lx.terms() {
		if t.Coeff%cy != 0 {
			return nil, false
		}
		rest, ok := removeFactors(t.X, ay)
		if !ok {
			return nil, false
		}
		lq.add(t.Coeff/cy, rest)
	}
	return lq.build(), true
}

// multipleOf returns k if x = k*y for a constant k.
func multipleOf(lx, ly *linear) (Dimension, bool) {
	tx, ty := lx.terms(), ly.terms()
	if len(tx) != len(ty) {
		return nil, false
	}
	if ty[0].Coeff == 0 || tx[0].Coeff%ty[0].Coeff != 0 {
		return nil, false
	}
	k := tx[0].Coeff / ty[0].Coeff
	for i := range tx {
		if !Equal(tx[i].X, ty[i].X) || tx[i].Coeff != k*ty[i].Coeff {
			return nil, false
		}
	}
	if lx.offset != k*ly.offset {
		return nil, false
	}
	return Constant(k), true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - b*floorDiv(a, b)
}
