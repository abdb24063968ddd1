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

// Package csp is a small finite-domain constraint solver over integers.
//
// A model declares integer variables, either with bounds or with an
// explicit set of values, and linear, product, conditional and maximum
// constraints between them. Solve runs a depth-first branch and bound
// search minimizing one objective variable. Propagation maintains the
// bounds of every variable.
package csp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type (
	// Var is a variable of a model.
	Var int

	// Term is a coefficient multiplying a variable in a linear expression.
	Term struct {
		Coeff int64
		X     Var
	}

	// Op is the comparison of a linear constraint.
	Op int

	// Model declares variables and constraints.
	Model struct {
		names     []string
		domains   []domain
		cons      []constraint
		decisions []Var
		objective Var
		minimize  bool
		err       error
	}
)

const (
	// EQ is Σ c·x = rhs.
	EQ Op = iota
	// LE is Σ c·x ≤ rhs.
	LE
	// GE is Σ c·x ≥ rhs.
	GE
)

func (op Op) String() string {
	switch op {
	case EQ:
		return "="
	case LE:
		return "<="
	case GE:
		return ">="
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

func (m *Model) newVar(name string, d domain) Var {
	if d.empty() {
		m.err = multierr.Append(m.err, errors.Errorf("variable %s has an empty domain", name))
	}
	v := Var(len(m.domains))
	m.names = append(m.names, name)
	m.domains = append(m.domains, d)
	return v
}

// NewIntVar returns a new variable in [lo, hi].
func (m *Model) NewIntVar(lo, hi int64, name string) Var {
	return m.newVar(name, domain{lo: clamp(lo), hi: clamp(hi)})
}

// NewIntVarFromValues returns a new variable taking one of the given values.
func (m *Model) NewIntVarFromValues(values []int64, name string) Var {
	vals := slices.Clone(values)
	slices.Sort(vals)
	vals = slices.Compact(vals)
	if len(vals) == 0 {
		return m.newVar(name, domain{lo: 1, hi: 0})
	}
	return m.newVar(name, domain{lo: vals[0], hi: vals[len(vals)-1], values: vals})
}

// NewBoolVar returns a new variable in {0, 1}.
func (m *Model) NewBoolVar(name string) Var {
	return m.newVar(name, domain{lo: 0, hi: 1})
}

// NewConstant returns a new variable fixed to a value.
func (m *Model) NewConstant(v int64) Var {
	return m.newVar(fmt.Sprint(v), domain{lo: v, hi: v})
}

// NumVars returns the number of variables in the model.
func (m *Model) NumVars() int {
	return len(m.domains)
}

// Name returns the name of a variable.
func (m *Model) Name(v Var) string {
	if !m.valid(v) {
		return fmt.Sprintf("Var(%d)", int(v))
	}
	return m.names[v]
}

// Bounds returns the bounds of a variable as declared.
func (m *Model) Bounds(v Var) (lo, hi int64) {
	if !m.valid(v) {
		return 1, 0
	}
	return m.domains[v].lo, m.domains[v].hi
}

func (m *Model) valid(v Var) bool {
	return v >= 0 && int(v) < len(m.domains)
}

func (m *Model) check(what string, vs ...Var) bool {
	ok := true
	for _, v := range vs {
		if !m.valid(v) {
			m.err = multierr.Append(m.err, errors.Errorf("%s: unknown variable %d", what, int(v)))
			ok = false
		}
	}
	return ok
}

func termVars(terms []Term) []Var {
	vs := make([]Var, len(terms))
	for i, t := range terms {
		vs[i] = t.X
	}
	return vs
}

// AddLinear adds the constraint Σ terms op rhs.
func (m *Model) AddLinear(terms []Term, op Op, rhs int64) {
	if !m.check("linear", termVars(terms)...) {
		return
	}
	terms = slices.Clone(terms)
	switch op {
	case LE:
		m.cons = append(m.cons, &linearLE{terms: terms, rhs: rhs})
	case GE:
		m.cons = append(m.cons, &linearLE{terms: negate(terms), rhs: -rhs})
	case EQ:
		m.cons = append(m.cons,
			&linearLE{terms: terms, rhs: rhs},
			&linearLE{terms: negate(terms), rhs: -rhs},
		)
	default:
		m.err = multierr.Append(m.err, errors.Errorf("linear: unknown comparison %s", op))
	}
}

// AddMul adds the constraint z = x·y.
func (m *Model) AddMul(z, x, y Var) {
	if !m.check("mul", z, x, y) {
		return
	}
	m.cons = append(m.cons, &mul{z: z, x: x, y: y})
}

// AddIfThenElse adds the constraint z = b ? x : y where b is a boolean variable.
func (m *Model) AddIfThenElse(z, b, x, y Var) {
	if !m.check("if-then-else", z, b, x, y) {
		return
	}
	m.cons = append(m.cons, &ifThenElse{z: z, b: b, x: x, y: y})
}

// AddReifyLinearLE adds the constraint b ⇔ (Σ terms ≤ rhs) where b is a boolean variable.
func (m *Model) AddReifyLinearLE(b Var, terms []Term, rhs int64) {
	if !m.check("reified linear", append([]Var{b}, termVars(terms)...)...) {
		return
	}
	m.cons = append(m.cons, &reifiedLE{b: b, terms: slices.Clone(terms), rhs: rhs})
}

// AddMax adds the constraint z = max(xs).
func (m *Model) AddMax(z Var, xs ...Var) {
	if len(xs) == 0 {
		m.err = multierr.Append(m.err, errors.Errorf("max: no operand"))
		return
	}
	if !m.check("max", append([]Var{z}, xs...)...) {
		return
	}
	m.cons = append(m.cons, &maximum{z: z, xs: slices.Clone(xs)})
}

// Minimize sets the objective of the model.
func (m *Model) Minimize(v Var) {
	if !m.check("objective", v) {
		return
	}
	m.objective = v
	m.minimize = true
}

// Decide sets the variables the search branches on first.
// Variables not fixed by propagation once all decisions are made are
// branched on afterward.
func (m *Model) Decide(vs ...Var) {
	if !m.check("decision", vs...) {
		return
	}
	m.decisions = append(m.decisions, vs...)
}

// Err returns the errors found while declaring the model.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) String() string {
	var sb strings.Builder
	for i, d := range m.domains {
		fmt.Fprintf(&sb, "%s in %s\n", m.names[i], d)
	}
	for _, c := range m.cons {
		sb.WriteString(c.describe(m))
		sb.WriteString("\n")
	}
	if m.minimize {
		fmt.Fprintf(&sb, "minimize %s\n", m.names[m.objective])
	}
	return sb.String()
}

func negate(terms []Term) []Term {
	neg := make([]Term, len(terms))
	for i, t := range terms {
		neg[i] = Term{Coeff: -t.Coeff, X: t.X}
	}
	return neg
}

func describeTerms(m *Model, terms []Term) string {
	if len(terms) == 0 {
		return "0"
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf("%d*%s", t.Coeff, m.Name(t.X))
	}
	return strings.Join(parts, " + ")
}
