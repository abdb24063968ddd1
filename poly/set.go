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
	"github.com/pkg/errors"
	"github.com/gx-org/tiler/dim"
)

type (
	// Set is the set of integer points (c_0, ..., c_n) computed by a list
	// of expressions when their parameters range over their bounds.
	Set struct {
		ctx    *Context
		coords []Expr
	}

	// Mode specifies how a shape is converted into a domain.
	Mode int

	// Domain is the iteration domain [0, e_0) x ... x [0, e_n) of a shape.
	Domain struct {
		ctx     *Context
		mode    Mode
		extents []Expr
	}
)

const (
	// Concrete domains bind all symbols when they are created.
	Concrete Mode = iota
	// Parametric domains keep symbols as parameters.
	Parametric
)

// SetFromDims returns the set of points described by a list of dimensions.
// The range of each variable is a parametric bound of the set.
func (ctx *Context) SetFromDims(ds []dim.Dimension) (*Set, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	coords, err := ctx.fromDimensions(ds)
	if err != nil {
		return nil, err
	}
	return &Set{ctx: ctx, coords: coords}, nil
}

// Dim returns the number of coordinates of the set.
func (s *Set) Dim() int {
	return len(s.coords)
}

// Coord returns the expression of the ith coordinate.
func (s *Set) Coord(i int) Expr {
	return s.coords[i]
}

// Params returns the parameters of the set sorted by name.
func (s *Set) Params() []*Param {
	return params(&MinOf{Operands: s.coords})
}

// MinValue returns the exact minimum of the ith coordinate.
func (s *Set) MinValue(i int) (int64, error) {
	if err := s.ctx.check(); err != nil {
		return 0, err
	}
	return s.ctx.extremum(s.coords[i], true)
}

// MaxValue returns the exact maximum of the ith coordinate.
func (s *Set) MaxValue(i int) (int64, error) {
	if err := s.ctx.check(); err != nil {
		return 0, err
	}
	return s.ctx.extremum(s.coords[i], false)
}

// Contains returns true if a point belongs to the set.
func (s *Set) Contains(pt []int64) (bool, error) {
	if err := s.ctx.check(); err != nil {
		return false, err
	}
	if len(pt) != len(s.coords) {
		return false, errors.Errorf("point %v has %d coordinates but the set has %d", pt, len(pt), len(s.coords))
	}
	ps := s.Params()
	b, err := s.ctx.paramBox(ps)
	if err != nil {
		return false, err
	}
	found := false
	values := make(Point, len(ps))
	b.forEach(func(coords []int64) bool {
		for j, p := range ps {
			values[p.Name] = coords[j]
		}
		match := true
		for i, c := range s.coords {
			var v int64
			if v, err = eval(c, values); err != nil {
				return false
			}
			if v != pt[i] {
				match = false
				break
			}
		}
		found = match
		return !found
	})
	return found, err
}

// Simplify returns the coordinates of the set simplified by the oracle.
func (s *Set) Simplify() ([]dim.Dimension, error) {
	if err := s.ctx.check(); err != nil {
		return nil, err
	}
	ds := make([]dim.Dimension, len(s.coords))
	for i, c := range s.coords {
		simplified, err := s.ctx.Simplify(c)
		if err != nil {
			return nil, err
		}
		if ds[i], err = s.ctx.toDimension(simplified); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// DomainFromShape returns the iteration domain of a shape.
// A concrete domain binds every variable of the shape with bindings and
// fails if a variable has no value. A parametric domain keeps the
// variables as parameters and ignores bindings.
func (ctx *Context) DomainFromShape(s dim.RankedShape, mode Mode, bindings dim.Bindings) (*Domain, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	if mode == Concrete {
		s = s.Bind(bindings)
		for i, d := range s {
			if !dim.IsFixed(d) {
				return nil, errors.Errorf("axis %d of shape %s: variables %v have no value", i, s, dim.Variables(d))
			}
			if v, _ := dim.FixedValue(d); v < 0 {
				return nil, errors.Errorf("axis %d of shape %s has a negative extent", i, s)
			}
		}
	}
	extents, err := ctx.fromDimensions(s)
	if err != nil {
		return nil, err
	}
	return &Domain{ctx: ctx, mode: mode, extents: extents}, nil
}

// Mode returns the mode of the domain.
func (d *Domain) Mode() Mode {
	return d.mode
}

// Rank returns the number of axes of the domain.
func (d *Domain) Rank() int {
	return len(d.extents)
}

// Extent returns the extent of axis i.
func (d *Domain) Extent(i int) (dim.Dimension, error) {
	if err := d.ctx.check(); err != nil {
		return nil, err
	}
	return d.ctx.toDimension(d.extents[i])
}

// Shape returns the extents of the domain.
func (d *Domain) Shape() (dim.RankedShape, error) {
	if err := d.ctx.check(); err != nil {
		return nil, err
	}
	ds, err := d.ctx.toDimensions(d.extents)
	return dim.RankedShape(ds), err
}

// Bind returns a concrete domain where parameters have been replaced by their values.
func (d *Domain) Bind(bindings dim.Bindings) (*Domain, error) {
	s, err := d.Shape()
	if err != nil {
		return nil, err
	}
	return d.ctx.DomainFromShape(s, Concrete, bindings)
}

// Card returns the number of points in the domain.
func (d *Domain) Card() (dim.Dimension, error) {
	s, err := d.Shape()
	if err != nil {
		return nil, err
	}
	return s.NumElements(), nil
}

// Contains returns true if a point belongs to the domain for all the
// values of its parameters.
func (d *Domain) Contains(pt []int64) (bool, error) {
	if err := d.ctx.check(); err != nil {
		return false, err
	}
	if len(pt) != len(d.extents) {
		return false, errors.Errorf("point %v has %d coordinates but the domain has rank %d", pt, len(pt), len(d.extents))
	}
	for i, ext := range d.extents {
		if pt[i] < 0 {
			return false, nil
		}
		lo, err := d.ctx.extremum(ext, true)
		if err != nil {
			return false, err
		}
		if pt[i] >= lo {
			return false, nil
		}
	}
	return true, nil
}

// RoundTrip converts dimensions into a set and back. The result is a
// canonical form: dimensions computing the same function over the
// ranges of their variables return the same result.
func RoundTrip(ctx *Context, ds []dim.Dimension) ([]dim.Dimension, error) {
	s, err := ctx.SetFromDims(ds)
	if err != nil {
		return nil, err
	}
	return s.Simplify()
}

// Equivalent returns true if two dimensions compute the same function.
// It returns false if the equivalence cannot be proven.
func Equivalent(ctx *Context, a, b dim.Dimension) (bool, error) {
	diff := dim.Sub(a, b)
	if v, ok := dim.FixedValue(diff); ok {
		return v == 0, nil
	}
	rt, err := RoundTrip(ctx, []dim.Dimension{diff})
	if err != nil {
		return false, err
	}
	v, ok := dim.FixedValue(rt[0])
	return ok && v == 0, nil
}

// Extrema returns the minimum and maximum of a dimension over the ranges
// of its variables.
func Extrema(ctx *Context, d dim.Dimension) (lo, hi int64, err error) {
	s, err := ctx.SetFromDims([]dim.Dimension{d})
	if err != nil {
		return 0, 0, err
	}
	if lo, err = s.MinValue(0); err != nil {
		return 0, 0, err
	}
	if hi, err = s.MaxValue(0); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// ProvablyGE returns true if a >= b for all the values of their variables.
// It returns false if it cannot be proven.
func ProvablyGE(ctx *Context, a, b dim.Dimension) (bool, error) {
	lo, err := func() (int64, error) {
		s, err := ctx.SetFromDims([]dim.Dimension{dim.Sub(a, b)})
		if err != nil {
			return 0, err
		}
		return s.MinValue(0)
	}()
	if errors.Is(err, ErrUnbounded) || errors.Is(err, ErrEnumerationLimit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return lo >= 0, nil
}
