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

// Package dim implements symbolic integer expressions used as loop
// extents and offsets.
//
// A Dimension is an immutable value. Dimensions are always built by the
// constructors of this package which fold constants, merge terms with the
// same sub-expression, and sort operands. Two dimensions computing the
// same expression built in a different order have the same canonical
// string and are Equal.
package dim

import (
	"fmt"
	"go/token"
	"math"
	"strings"
)

type (
	// Dimension is a symbolic integer expression.
	Dimension interface {
		fmt.Stringer
		dimension()
	}

	// Constant is a dimension known at compile time.
	Constant int64

	// Range is an inclusive interval of values.
	Range struct {
		Lo, Hi int64
	}

	// Variable is a dimension only known at runtime or by a solver.
	// Variables are identified by their name.
	Variable struct {
		Name string
		// Range is an optional hint of the values the variable can take.
		Range *Range
	}

	// Term is a coefficient multiplying a non-constant dimension.
	Term struct {
		Coeff int64
		X     Dimension
	}

	// Sum of terms plus a constant offset.
	Sum struct {
		Terms  []Term
		Offset int64
	}

	// Product of non-constant dimensions.
	Product struct {
		Factors []Dimension
	}

	// Div is the floor division of X by Y.
	Div struct {
		X, Y Dimension
	}

	// Modulo is X modulo Y, with the sign of Y.
	Modulo struct {
		X, Y Dimension
	}

	// Select returns True if Subject compared to Expected with Op is true,
	// False otherwise.
	Select struct {
		Subject  Dimension
		Op       token.Token
		Expected Dimension
		True     Dimension
		False    Dimension
	}

	// Min is the minimum of its operands.
	Min struct {
		Operands []Dimension
	}

	// Max is the maximum of its operands.
	Max struct {
		Operands []Dimension
	}
)

// Unbounded is the upper bound of a range without an upper limit.
const Unbounded = math.MaxInt64

var (
	_ Dimension = Constant(0)
	_ Dimension = (*Variable)(nil)
	_ Dimension = (*Sum)(nil)
	_ Dimension = (*Product)(nil)
	_ Dimension = (*Div)(nil)
	_ Dimension = (*Modulo)(nil)
	_ Dimension = (*Select)(nil)
	_ Dimension = (*Min)(nil)
	_ Dimension = (*Max)(nil)
)

// Const returns a constant dimension.
func Const(v int64) Dimension {
	return Constant(v)
}

// Var returns a variable without any range.
func Var(name string) *Variable {
	return &Variable{Name: name}
}

// RangedVar returns a variable taking values in [lo, hi].
func RangedVar(name string, lo, hi int64) *Variable {
	return &Variable{Name: name, Range: &Range{Lo: lo, Hi: hi}}
}

// IsFixed returns true if the dimension is known at compile time.
func IsFixed(d Dimension) bool {
	_, ok := d.(Constant)
	return ok
}

// FixedValue returns the value of a dimension known at compile time.
func FixedValue(d Dimension) (int64, bool) {
	c, ok := d.(Constant)
	return int64(c), ok
}

// Equal returns true if two dimensions have the same canonical form.
func Equal(a, b Dimension) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

func (Constant) dimension() {}

func (c Constant) String() string {
	return fmt.Sprint(int64(c))
}

func (*Variable) dimension() {}

func (v *Variable) String() string {
	return v.Name
}

// Bounded returns true if the range of the variable has finite bounds.
func (v *Variable) Bounded() bool {
	return v.Range != nil && v.Range.Hi != Unbounded
}

func (*Sum) dimension() {}

func (s *Sum) String() string {
	// -floordiv(-x, y) is how ceil(x/y) is built.
	if len(s.Terms) == 1 && s.Offset == 0 && s.Terms[0].Coeff == -1 {
		if div, ok := s.Terms[0].X.(*Div); ok {
			return fmt.Sprintf("ceildiv(%s, %s)", Neg(div.X), div.Y)
		}
	}
	var b strings.Builder
	for i, t := range s.Terms {
		coeff := t.Coeff
		switch {
		case i == 0 && coeff < 0:
			b.WriteString("-")
			coeff = -coeff
		case i > 0 && coeff < 0:
			b.WriteString(" - ")
			coeff = -coeff
		case i > 0:
			b.WriteString(" + ")
		}
		if coeff != 1 {
			fmt.Fprintf(&b, "%d*", coeff)
		}
		b.WriteString(t.X.String())
	}
	switch {
	case s.Offset > 0:
		fmt.Fprintf(&b, " + %d", s.Offset)
	case s.Offset < 0:
		fmt.Fprintf(&b, " - %d", -s.Offset)
	}
	return b.String()
}

func (*Product) dimension() {}

func (p *Product) String() string {
	return joinDims(p.Factors, "*")
}

func (*Div) dimension() {}

func (d *Div) String() string {
	return fmt.Sprintf("floordiv(%s, %s)", d.X, d.Y)
}

func (*Modulo) dimension() {}

func (m *Modulo) String() string {
	return fmt.Sprintf("mod(%s, %s)", m.X, m.Y)
}

func (*Select) dimension() {}

func (s *Select) String() string {
	return fmt.Sprintf("select(%s %s %s, %s, %s)", s.Subject, s.Op, s.Expected, s.True, s.False)
}

func (*Min) dimension() {}

func (m *Min) String() string {
	return "min(" + joinDims(m.Operands, ", ") + ")"
}

func (*Max) dimension() {}

func (m *Max) String() string {
	return "max(" + joinDims(m.Operands, ", ") + ")"
}

func joinDims(ds []Dimension, sep string) string {
	ss := make([]string, len(ds))
	for i, d := range ds {
		ss[i] = d.String()
	}
	return strings.Join(ss, sep)
}
