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

package affine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/dim"
)

type (
	// Domain is a box of the iteration space: one offset and one extent per loop.
	Domain struct {
		Offsets []dim.Dimension
		Extents []dim.Dimension
	}

	// Relation describes the accesses of an operation: a map per operand
	// and a map for the result, all sharing the same domain.
	Relation struct {
		Operands []*Map
		Result   *Map
	}
)

// NewDomain returns a domain starting at zero.
func NewDomain(extents ...dim.Dimension) Domain {
	offsets := make([]dim.Dimension, len(extents))
	for i := range offsets {
		offsets[i] = dim.Const(0)
	}
	return Domain{Offsets: offsets, Extents: extents}
}

// Rank returns the number of loops of the domain.
func (d Domain) Rank() int {
	return len(d.Extents)
}

// Image returns the bounding box of the image of a domain by a map.
// Symbols are bound to syms.
func (d Domain) Image(m *Map, syms []dim.Dimension) (Domain, error) {
	if m.NumDims() != d.Rank() {
		return Domain{}, errors.Errorf("cannot apply %s on a domain of rank %d", m, d.Rank())
	}
	offsets, err := m.Apply(d.Offsets, syms)
	if err != nil {
		return Domain{}, err
	}
	extents := make([]dim.Dimension, m.NumResults())
	for i, res := range m.Results {
		// The extent of sum_j c_j*d_j is sum_j |c_j|*(E_j-1) + 1.
		ext := dim.Dimension(dim.Const(1))
		for j, dv := range m.Dims {
			c, err := linearCoeff(res, dv)
			if err != nil {
				return Domain{}, err
			}
			if c < 0 {
				c = -c
			}
			ext = dim.Add(ext, dim.Scale(c, dim.Sub(d.Extents[j], dim.Const(1))))
		}
		extents[i] = ext
	}
	return Domain{Offsets: offsets, Extents: extents}, nil
}

// linearCoeff returns the coefficient of v in res.
func linearCoeff(res dim.Dimension, v *dim.Variable) (int64, error) {
	if !dim.DependsOn(res, v.Name) {
		return 0, nil
	}
	if dim.Equal(res, v) {
		return 1, nil
	}
	if sum, ok := res.(*dim.Sum); ok {
		for _, t := range sum.Terms {
			if dim.Equal(t.X, v) {
				return t.Coeff, nil
			}
		}
	}
	return 0, errors.Wrapf(ErrUnsupported, "%s is not linear in %s", res, v)
}

// String representation of the domain.
func (d Domain) String() string {
	ss := make([]string, d.Rank())
	for i := range ss {
		ss[i] = "[" + d.Offsets[i].String() + ", +" + d.Extents[i].String() + ")"
	}
	return strings.Join(ss, "x")
}

// NumOperands returns the number of operands of the relation.
func (r *Relation) NumOperands() int {
	return len(r.Operands)
}

// Inverse returns the relation from result indices to the domain.
// The returned relation result map goes from result indices to loop
// indices and its operand maps from result indices to operand indices.
func (r *Relation) Inverse() (*Relation, error) {
	inv, err := r.Result.Inverse()
	if err != nil {
		return nil, err
	}
	ops, err := composeAll(r.Operands, inv)
	if err != nil {
		return nil, err
	}
	return &Relation{Operands: ops, Result: inv}, nil
}

// Compose returns the relation where all accesses are composed with inner.
func (r *Relation) Compose(inner *Map) (*Relation, error) {
	ops, err := composeAll(r.Operands, inner)
	if err != nil {
		return nil, err
	}
	res, err := Compose(r.Result, inner)
	if err != nil {
		return nil, err
	}
	return &Relation{Operands: ops, Result: res}, nil
}

func composeAll(maps []*Map, inner *Map) ([]*Map, error) {
	res := make([]*Map, len(maps))
	for i, m := range maps {
		var err error
		if res[i], err = Compose(m, inner); err != nil {
			return nil, errors.WithMessagef(err, "operand %d", i)
		}
	}
	return res, nil
}

// String representation of the relation.
func (r *Relation) String() string {
	var b strings.Builder
	for i, op := range r.Operands {
		fmt.Fprintf(&b, "in%d: %s; ", i, op)
	}
	b.WriteString("out: ")
	b.WriteString(r.Result.String())
	return b.String()
}
