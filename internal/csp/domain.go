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

package csp

import (
	"fmt"
	"math/bits"
	"slices"
)

// Values are kept within ±limit so that sums of a few terms never overflow.
const limit = int64(1) << 60

func clamp(v int64) int64 {
	return max(-limit, min(limit, v))
}

func satAdd(a, b int64) int64 {
	return clamp(a + b)
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	neg := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}
	hi, lo := bits.Mul64(ua, ub)
	if hi != 0 || lo > uint64(limit) {
		if neg {
			return -limit
		}
		return limit
	}
	if neg {
		return -int64(lo)
	}
	return int64(lo)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}

// domain is an interval with an optional list of sorted allowed values.
// values are never modified in place so that domains can be shallow copied.
type domain struct {
	lo, hi int64
	values []int64
}

func (d domain) empty() bool {
	return d.lo > d.hi
}

func (d domain) fixed() bool {
	return d.lo == d.hi
}

func (d domain) size() int64 {
	if d.values != nil {
		return int64(len(d.values))
	}
	return d.hi - d.lo + 1
}

func (d domain) String() string {
	if d.values != nil {
		return fmt.Sprint(d.values)
	}
	return fmt.Sprintf("[%d, %d]", d.lo, d.hi)
}

// state is the domains of all the variables at a node of the search.
type state struct {
	doms []domain
}

func (s *state) clone() *state {
	return &state{doms: slices.Clone(s.doms)}
}

func (s *state) lo(v Var) int64 { return s.doms[v].lo }
func (s *state) hi(v Var) int64 { return s.doms[v].hi }

func (s *state) isFixed(v Var) bool { return s.doms[v].fixed() }

// setLo raises the lower bound of a variable.
// It returns whether the domain changed and false if the domain becomes empty.
func (s *state) setLo(v Var, lo int64) (changed, ok bool) {
	d := s.doms[v]
	if lo <= d.lo {
		return false, true
	}
	if lo > d.hi {
		return true, false
	}
	if d.values != nil {
		i, _ := slices.BinarySearch(d.values, lo)
		d.values = d.values[i:]
		lo = d.values[0]
	}
	d.lo = lo
	s.doms[v] = d
	return true, true
}

// setHi lowers the upper bound of a variable.
func (s *state) setHi(v Var, hi int64) (changed, ok bool) {
	d := s.doms[v]
	if hi >= d.hi {
		return false, true
	}
	if hi < d.lo {
		return true, false
	}
	if d.values != nil {
		i, found := slices.BinarySearch(d.values, hi)
		if found {
			i++
		}
		d.values = d.values[:i]
		hi = d.values[len(d.values)-1]
	}
	d.hi = hi
	s.doms[v] = d
	return true, true
}

// fix assigns a value to a variable.
func (s *state) fix(v Var, val int64) bool {
	if d := s.doms[v]; d.values != nil {
		if _, found := slices.BinarySearch(d.values, val); !found {
			return false
		}
	}
	if _, ok := s.setLo(v, val); !ok {
		return false
	}
	_, ok := s.setHi(v, val)
	return ok
}

// remove removes a value from the domain of a variable.
func (s *state) remove(v Var, val int64) bool {
	d := s.doms[v]
	switch {
	case val == d.lo:
		_, ok := s.setLo(v, val+1)
		return ok
	case val == d.hi:
		_, ok := s.setHi(v, val-1)
		return ok
	case d.values != nil:
		i, found := slices.BinarySearch(d.values, val)
		if found {
			d.values = slices.Delete(slices.Clone(d.values), i, i+1)
			s.doms[v] = d
		}
	}
	return true
}
