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
	"math"
	"math/bits"
)

// Bounds returns an interval containing all the values a dimension can
// take given the ranges of its variables. The interval is not necessarily
// tight: use the polyhedral bridge for exact bounds.
// ok is false if a variable has no finite range.
func Bounds(d Dimension) (lo, hi int64, ok bool) {
	switch dT := d.(type) {
	case Constant:
		return int64(dT), int64(dT), true
	case *Variable:
		if !dT.Bounded() {
			return 0, 0, false
		}
		return dT.Range.Lo, dT.Range.Hi, true
	case *Sum:
		lo, hi = dT.Offset, dT.Offset
		for _, t := range dT.Terms {
			tlo, thi, ok := Bounds(t.X)
			if !ok {
				return 0, 0, false
			}
			tlo, thi, ok = mulInterval(t.Coeff, t.Coeff, tlo, thi)
			if !ok {
				return 0, 0, false
			}
			if lo, ok = addChecked(lo, tlo); !ok {
				return 0, 0, false
			}
			if hi, ok = addChecked(hi, thi); !ok {
				return 0, 0, false
			}
		}
		return lo, hi, true
	case *Product:
		lo, hi = 1, 1
		for _, f := range dT.Factors {
			flo, fhi, ok := Bounds(f)
			if !ok {
				return 0, 0, false
			}
			if lo, hi, ok = mulInterval(lo, hi, flo, fhi); !ok {
				return 0, 0, false
			}
		}
		return lo, hi, true
	case *Div:
		xlo, xhi, ok := Bounds(dT.X)
		if !ok {
			return 0, 0, false
		}
		ylo, yhi, ok := Bounds(dT.Y)
		if !ok || ylo <= 0 {
			return 0, 0, false
		}
		cands := []int64{floorDiv(xlo, ylo), floorDiv(xlo, yhi), floorDiv(xhi, ylo), floorDiv(xhi, yhi)}
		return minOf(cands), maxOf(cands), true
	case *Modulo:
		ylo, yhi, ok := Bounds(dT.Y)
		if !ok || ylo <= 0 {
			return 0, 0, false
		}
		if xlo, xhi, ok := Bounds(dT.X); ok && xlo >= 0 && xhi < ylo {
			return xlo, xhi, true
		}
		return 0, yhi - 1, true
	case *Select:
		tlo, thi, ok := Bounds(dT.True)
		if !ok {
			return 0, 0, false
		}
		flo, fhi, ok := Bounds(dT.False)
		if !ok {
			return 0, 0, false
		}
		return min(tlo, flo), max(thi, fhi), true
	case *Min:
		return boundsMinMax(dT.Operands, true)
	case *Max:
		return boundsMinMax(dT.Operands, false)
	}
	return 0, 0, false
}

func boundsMinMax(ops []Dimension, isMin bool) (lo, hi int64, ok bool) {
	los := make([]int64, len(ops))
	his := make([]int64, len(ops))
	for i, op := range ops {
		if los[i], his[i], ok = Bounds(op); !ok {
			return 0, 0, false
		}
	}
	if isMin {
		return minOf(los), minOf(his), true
	}
	return maxOf(los), maxOf(his), true
}

func mulInterval(alo, ahi, blo, bhi int64) (lo, hi int64, ok bool) {
	var cands [4]int64
	for i, pair := range [4][2]int64{{alo, blo}, {alo, bhi}, {ahi, blo}, {ahi, bhi}} {
		if cands[i], ok = mulChecked(pair[0], pair[1]); !ok {
			return 0, 0, false
		}
	}
	return minOf(cands[:]), maxOf(cands[:]), true
}

func addChecked(a, b int64) (int64, bool) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, false
	}
	return s, true
}

func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a == math.MinInt64 || b == math.MinInt64 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(abs(a)), uint64(abs(b)))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	if (a < 0) != (b < 0) {
		return -int64(lo), true
	}
	return int64(lo), true
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func minOf(vs []int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = min(m, v)
	}
	return m
}

func maxOf(vs []int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = max(m, v)
	}
	return m
}
