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

import "fmt"

// constraint narrows the domains of its variables.
type constraint interface {
	// propagate returns whether a domain changed and false if the
	// constraint cannot be satisfied anymore.
	propagate(s *state) (changed, ok bool)
	describe(m *Model) string
}

// narrower accumulates the result of several domain updates.
type narrower struct {
	s       *state
	changed bool
	ok      bool
}

func newNarrower(s *state) *narrower {
	return &narrower{s: s, ok: true}
}

func (n *narrower) lo(v Var, lo int64) {
	if !n.ok {
		return
	}
	changed, ok := n.s.setLo(v, lo)
	n.changed = n.changed || changed
	n.ok = ok
}

func (n *narrower) hi(v Var, hi int64) {
	if !n.ok {
		return
	}
	changed, ok := n.s.setHi(v, hi)
	n.changed = n.changed || changed
	n.ok = ok
}

func (n *narrower) between(v Var, lo, hi int64) {
	n.lo(v, lo)
	n.hi(v, hi)
}

func (n *narrower) fail() {
	n.ok = false
}

func (n *narrower) result() (bool, bool) {
	return n.changed, n.ok
}

// termMin returns the minimum of c·x.
func termMin(s *state, t Term) int64 {
	if t.Coeff >= 0 {
		return satMul(t.Coeff, s.lo(t.X))
	}
	return satMul(t.Coeff, s.hi(t.X))
}

// termMax returns the maximum of c·x.
func termMax(s *state, t Term) int64 {
	if t.Coeff >= 0 {
		return satMul(t.Coeff, s.hi(t.X))
	}
	return satMul(t.Coeff, s.lo(t.X))
}

func sumBounds(s *state, terms []Term) (lo, hi int64) {
	for _, t := range terms {
		lo = satAdd(lo, termMin(s, t))
		hi = satAdd(hi, termMax(s, t))
	}
	return lo, hi
}

// propagateLE narrows the variables of Σ terms ≤ rhs.
func propagateLE(n *narrower, terms []Term, rhs int64) {
	s := n.s
	sum, _ := sumBounds(s, terms)
	if sum > rhs {
		n.fail()
		return
	}
	if sum <= -limit {
		return
	}
	for _, t := range terms {
		if t.Coeff == 0 {
			continue
		}
		slack := rhs - (sum - termMin(s, t))
		if t.Coeff > 0 {
			n.hi(t.X, floorDiv(slack, t.Coeff))
		} else {
			n.lo(t.X, ceilDiv(slack, t.Coeff))
		}
		if !n.ok {
			return
		}
	}
}

type linearLE struct {
	terms []Term
	rhs   int64
}

func (c *linearLE) propagate(s *state) (bool, bool) {
	n := newNarrower(s)
	propagateLE(n, c.terms, c.rhs)
	return n.result()
}

func (c *linearLE) describe(m *Model) string {
	return fmt.Sprintf("%s <= %d", describeTerms(m, c.terms), c.rhs)
}

type mul struct {
	z, x, y Var
}

func (c *mul) propagate(s *state) (bool, bool) {
	n := newNarrower(s)
	corners := [4]int64{
		satMul(s.lo(c.x), s.lo(c.y)),
		satMul(s.lo(c.x), s.hi(c.y)),
		satMul(s.hi(c.x), s.lo(c.y)),
		satMul(s.hi(c.x), s.hi(c.y)),
	}
	n.between(c.z, min(corners[0], corners[1], corners[2], corners[3]), max(corners[0], corners[1], corners[2], corners[3]))
	if s.lo(c.x) >= 0 && s.lo(c.y) >= 0 {
		divide(n, c.z, c.x, c.y)
		divide(n, c.z, c.y, c.x)
	}
	if n.ok && s.isFixed(c.x) && s.isFixed(c.z) && s.lo(c.x) != 0 {
		if s.lo(c.z)%s.lo(c.x) != 0 {
			n.fail()
		} else {
			n.between(c.y, s.lo(c.z)/s.lo(c.x), s.lo(c.z)/s.lo(c.x))
		}
	}
	if n.ok && s.isFixed(c.y) && s.isFixed(c.z) && s.lo(c.y) != 0 {
		if s.lo(c.z)%s.lo(c.y) != 0 {
			n.fail()
		} else {
			n.between(c.x, s.lo(c.z)/s.lo(c.y), s.lo(c.z)/s.lo(c.y))
		}
	}
	return n.result()
}

// divide narrows x given z = x·y with x and y non-negative.
func divide(n *narrower, z, x, y Var) {
	s := n.s
	if s.lo(y) > 0 {
		n.hi(x, floorDiv(s.hi(z), s.lo(y)))
	}
	if s.hi(y) > 0 && s.lo(z) > 0 {
		n.lo(x, ceilDiv(s.lo(z), s.hi(y)))
	}
}

func (c *mul) describe(m *Model) string {
	return fmt.Sprintf("%s = %s * %s", m.Name(c.z), m.Name(c.x), m.Name(c.y))
}

type ifThenElse struct {
	z, b, x, y Var
}

// equal narrows a and b to their common bounds.
func equal(n *narrower, a, b Var) {
	s := n.s
	lo := max(s.lo(a), s.lo(b))
	hi := min(s.hi(a), s.hi(b))
	n.between(a, lo, hi)
	n.between(b, lo, hi)
}

func disjoint(s *state, a, b Var) bool {
	return s.hi(a) < s.lo(b) || s.lo(a) > s.hi(b)
}

func (c *ifThenElse) propagate(s *state) (bool, bool) {
	n := newNarrower(s)
	switch {
	case s.lo(c.b) >= 1:
		equal(n, c.z, c.x)
	case s.hi(c.b) <= 0:
		equal(n, c.z, c.y)
	default:
		n.between(c.z, min(s.lo(c.x), s.lo(c.y)), max(s.hi(c.x), s.hi(c.y)))
		if !n.ok {
			break
		}
		if disjoint(s, c.z, c.x) {
			n.hi(c.b, 0)
			equal(n, c.z, c.y)
		} else if disjoint(s, c.z, c.y) {
			n.lo(c.b, 1)
			equal(n, c.z, c.x)
		}
	}
	return n.result()
}

func (c *ifThenElse) describe(m *Model) string {
	return fmt.Sprintf("%s = %s ? %s : %s", m.Name(c.z), m.Name(c.b), m.Name(c.x), m.Name(c.y))
}

type reifiedLE struct {
	b     Var
	terms []Term
	rhs   int64
}

func (c *reifiedLE) propagate(s *state) (bool, bool) {
	n := newNarrower(s)
	lo, hi := sumBounds(s, c.terms)
	switch {
	case hi <= c.rhs:
		n.lo(c.b, 1)
	case lo > c.rhs:
		n.hi(c.b, 0)
	}
	if !n.ok {
		return n.result()
	}
	switch {
	case s.lo(c.b) >= 1:
		propagateLE(n, c.terms, c.rhs)
	case s.hi(c.b) <= 0:
		propagateLE(n, negate(c.terms), -c.rhs-1)
	}
	return n.result()
}

func (c *reifiedLE) describe(m *Model) string {
	return fmt.Sprintf("%s <=> %s <= %d", m.Name(c.b), describeTerms(m, c.terms), c.rhs)
}

type maximum struct {
	z  Var
	xs []Var
}

func (c *maximum) propagate(s *state) (bool, bool) {
	n := newNarrower(s)
	lo, hi := s.lo(c.xs[0]), s.hi(c.xs[0])
	for _, x := range c.xs[1:] {
		lo = max(lo, s.lo(x))
		hi = max(hi, s.hi(x))
	}
	n.between(c.z, lo, hi)
	for _, x := range c.xs {
		n.hi(x, s.hi(c.z))
	}
	if !n.ok {
		return n.result()
	}
	// If only one operand can reach the lower bound of z, it is the maximum.
	var reach []Var
	for _, x := range c.xs {
		if s.hi(x) >= s.lo(c.z) {
			reach = append(reach, x)
		}
	}
	switch len(reach) {
	case 0:
		n.fail()
	case 1:
		n.lo(reach[0], s.lo(c.z))
	}
	return n.result()
}

func (c *maximum) describe(m *Model) string {
	names := make([]string, len(c.xs))
	for i, x := range c.xs {
		names[i] = m.Name(x)
	}
	return fmt.Sprintf("%s = max%v", m.Name(c.z), names)
}

// propagateAll runs the constraints until no domain changes.
func propagateAll(s *state, cons []constraint) bool {
	const maxRounds = 1 << 12
	for range maxRounds {
		changed := false
		for _, c := range cons {
			ch, ok := c.propagate(s)
			if !ok {
				return false
			}
			changed = changed || ch
		}
		if !changed {
			return true
		}
	}
	return true
}
