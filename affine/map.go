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

// Package affine implements maps from loop indices (a domain) to tensor
// indices (a range).
//
// The domain variables of a map are named d0, d1, ... and its symbols,
// free variables constant over the iteration space, are named s0, s1, ...
package affine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/dim"
)

// ErrUnsupported is returned when an operation is not supported on a map,
// for example inverting a map that is not a bijection.
var ErrUnsupported = errors.New("unsupported affine map operation")

// Map is a list of dimensions computed from domain variables and symbols.
type Map struct {
	Dims    []*dim.Variable
	Symbols []*dim.Variable
	Results []dim.Dimension
}

// DimVar returns the variable of the ith domain dimension.
func DimVar(i int) *dim.Variable {
	return dim.Var(fmt.Sprintf("d%d", i))
}

// SymVar returns the variable of the ith symbol.
func SymVar(i int) *dim.Variable {
	return dim.Var(fmt.Sprintf("s%d", i))
}

func vars(n int, f func(int) *dim.Variable) []*dim.Variable {
	vs := make([]*dim.Variable, n)
	for i := range vs {
		vs[i] = f(i)
	}
	return vs
}

func asDims(vs []*dim.Variable) []dim.Dimension {
	ds := make([]dim.Dimension, len(vs))
	for i, v := range vs {
		ds[i] = v
	}
	return ds
}

// NewMap returns a map given its results.
// Results can only refer to DimVar(i) for i < numDims and SymVar(j) for j < numSymbols.
func NewMap(numDims, numSymbols int, results []dim.Dimension) *Map {
	return &Map{
		Dims:    vars(numDims, DimVar),
		Symbols: vars(numSymbols, SymVar),
		Results: results,
	}
}

// Identity returns the identity map of a given rank.
func Identity(rank int) *Map {
	m := NewMap(rank, 0, nil)
	m.Results = asDims(m.Dims)
	return m
}

// Permutation returns a map where result i is the domain dimension perm[i].
func Permutation(perm []int) (*Map, error) {
	seen := make([]bool, len(perm))
	results := make([]dim.Dimension, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) {
			return nil, errors.Errorf("invalid permutation %v: index %d out of range [0, %d)", perm, p, len(perm))
		}
		if seen[p] {
			return nil, errors.Errorf("invalid permutation %v: index %d used more than once", perm, p)
		}
		seen[p] = true
		results[i] = DimVar(p)
	}
	return NewMap(len(perm), 0, results), nil
}

// FromCallable returns a map computing its results with a function
// of the domain dimensions and symbols.
func FromCallable(rank, numSymbols int, f func(dims, syms []dim.Dimension) []dim.Dimension) *Map {
	m := NewMap(rank, numSymbols, nil)
	m.Results = f(asDims(m.Dims), asDims(m.Symbols))
	return m
}

// Constant returns a map without domain dimensions returning constant values.
func Constant(vals ...int64) *Map {
	results := make([]dim.Dimension, len(vals))
	for i, v := range vals {
		results[i] = dim.Const(v)
	}
	return NewMap(0, 0, results)
}

// NumDims returns the number of domain dimensions.
func (m *Map) NumDims() int {
	return len(m.Dims)
}

// NumSymbols returns the number of symbols.
func (m *Map) NumSymbols() int {
	return len(m.Symbols)
}

// NumResults returns the number of results.
func (m *Map) NumResults() int {
	return len(m.Results)
}

// Apply evaluates the map on domain values and symbol values.
func (m *Map) Apply(dims, syms []dim.Dimension) ([]dim.Dimension, error) {
	if len(dims) != len(m.Dims) {
		return nil, errors.Errorf("map %s applied to %d dimensions but has %d", m, len(dims), len(m.Dims))
	}
	if len(syms) != len(m.Symbols) {
		return nil, errors.Errorf("map %s applied to %d symbols but has %d", m, len(syms), len(m.Symbols))
	}
	subst := make(map[string]dim.Dimension, len(dims)+len(syms))
	for i, v := range m.Dims {
		subst[v.Name] = dims[i]
	}
	for i, v := range m.Symbols {
		subst[v.Name] = syms[i]
	}
	res := make([]dim.Dimension, len(m.Results))
	for i, r := range m.Results {
		res[i] = dim.Substitute(r, subst)
	}
	return res, nil
}

// Compose returns the map computing outer(inner(x)).
// Symbols are shared: symbol i of outer is symbol i of inner.
func Compose(outer, inner *Map) (*Map, error) {
	if outer.NumDims() != inner.NumResults() {
		return nil, errors.Errorf("cannot compose %s with %s: %d results for %d dimensions", outer, inner, inner.NumResults(), outer.NumDims())
	}
	numSyms := max(inner.NumSymbols(), outer.NumSymbols())
	syms := asDims(vars(outer.NumSymbols(), SymVar))
	results, err := outer.Apply(inner.Results, syms)
	if err != nil {
		return nil, err
	}
	return NewMap(inner.NumDims(), numSyms, results), nil
}

// UsedDims returns, for each domain dimension, the index of the result
// using it or -1 if no result uses it.
// It returns an error if a dimension is used by more than one result.
func (m *Map) UsedDims() ([]int, error) {
	used := make([]int, len(m.Dims))
	for i := range used {
		used[i] = -1
	}
	for r, res := range m.Results {
		for _, v := range dim.Variables(res) {
			d := m.dimIndex(v.Name)
			if d < 0 {
				continue
			}
			if used[d] >= 0 && used[d] != r {
				return nil, errors.Wrapf(ErrUnsupported, "dimension %s of %s used by results %d and %d", v.Name, m, used[d], r)
			}
			used[d] = r
		}
	}
	return used, nil
}

func (m *Map) dimIndex(name string) int {
	for i, v := range m.Dims {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// Inverse returns the map from results to domain dimensions.
//
// Every result using a domain dimension needs to be of the form
// +/-d + e where e only depends on symbols and constants, and no
// dimension can be used by two results. Domain dimensions not used by
// any result become new symbols of the inverse, appended after the
// symbols of m.
func (m *Map) Inverse() (*Map, error) {
	used, err := m.UsedDims()
	if err != nil {
		return nil, err
	}
	dimsPerResult := make([]int, m.NumResults())
	for _, r := range used {
		if r < 0 {
			continue
		}
		dimsPerResult[r]++
		if dimsPerResult[r] > 1 {
			return nil, errors.Wrapf(ErrUnsupported, "cannot invert %s: result %s uses several dimensions", m, m.Results[r])
		}
	}
	numSyms := m.NumSymbols()
	inv := make([]dim.Dimension, m.NumDims())
	for d, r := range used {
		if r < 0 {
			inv[d] = SymVar(numSyms)
			numSyms++
			continue
		}
		coeff, rest, err := m.unitTerm(m.Results[r], d)
		if err != nil {
			return nil, err
		}
		inv[d] = dim.Scale(coeff, dim.Sub(DimVar(r), rest))
	}
	return NewMap(m.NumResults(), numSyms, inv), nil
}

// unitTerm writes res as coeff*d + rest with coeff in {-1, 1}.
func (m *Map) unitTerm(res dim.Dimension, d int) (coeff int64, rest dim.Dimension, err error) {
	dv := m.Dims[d]
	var lin *dim.Sum
	switch resT := res.(type) {
	case *dim.Variable:
		return 1, dim.Const(0), nil
	case *dim.Sum:
		lin = resT
	default:
		return 0, nil, errors.Wrapf(ErrUnsupported, "cannot invert result %s of %s", res, m)
	}
	for _, t := range lin.Terms {
		if !dim.DependsOn(t.X, dv.Name) {
			continue
		}
		if !dim.Equal(t.X, dv) || (t.Coeff != 1 && t.Coeff != -1) {
			return 0, nil, errors.Wrapf(ErrUnsupported, "cannot invert result %s of %s: %s is not a unit term", res, m, dim.Scale(t.Coeff, t.X))
		}
		coeff = t.Coeff
	}
	return coeff, dim.Sub(res, dim.Scale(coeff, dv)), nil
}

// Equal returns true if two maps have the same signature and results.
func (m *Map) Equal(other *Map) bool {
	if m.NumDims() != other.NumDims() || m.NumSymbols() != other.NumSymbols() || m.NumResults() != other.NumResults() {
		return false
	}
	for i := range m.Results {
		if !dim.Equal(m.Results[i], other.Results[i]) {
			return false
		}
	}
	return true
}

// String representation of the map.
func (m *Map) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(joinVars(m.Dims))
	b.WriteString(")")
	if len(m.Symbols) > 0 {
		b.WriteString("[")
		b.WriteString(joinVars(m.Symbols))
		b.WriteString("]")
	}
	b.WriteString(" -> (")
	for i, r := range m.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteString(")")
	return b.String()
}

func joinVars(vs []*dim.Variable) string {
	ss := make([]string, len(vs))
	for i, v := range vs {
		ss[i] = v.Name
	}
	return strings.Join(ss, ", ")
}
