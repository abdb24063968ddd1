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
	"fmt"
	"go/token"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/dim"
)

type (
	// Expr is a quasi-affine piecewise expression of the oracle.
	Expr interface {
		fmt.Stringer
		expr()
	}

	// Const is a constant value.
	Const int64

	// Param is a parameter of a set.
	// Parameters are bounded by the range of the variable they come from.
	Param struct {
		Name  string
		Range *dim.Range
	}

	// Term multiplies an expression by a constant.
	Term struct {
		Coeff int64
		X     Expr
	}

	// Add is a sum of terms plus a constant offset.
	Add struct {
		Terms  []Term
		Offset int64
	}

	// FloorDiv is floor(X/By) with By > 0.
	FloorDiv struct {
		X  Expr
		By int64
	}

	// Mod is X modulo By with By > 0.
	Mod struct {
		X  Expr
		By int64
	}

	// Cond is a relation LHS Op RHS.
	Cond struct {
		LHS Expr
		Op  token.Token
		RHS Expr
	}

	// Piece of a piecewise expression.
	// A piece without condition is the default piece.
	Piece struct {
		Cond  *Cond
		Value Expr
	}

	// Piecewise is the value of the first piece whose condition holds.
	Piecewise struct {
		Pieces []Piece
	}

	// MinOf is the minimum of its operands.
	MinOf struct {
		Operands []Expr
	}

	// MaxOf is the maximum of its operands.
	MaxOf struct {
		Operands []Expr
	}
)

var (
	_ Expr = Const(0)
	_ Expr = (*Param)(nil)
	_ Expr = (*Add)(nil)
	_ Expr = (*FloorDiv)(nil)
	_ Expr = (*Mod)(nil)
	_ Expr = (*Piecewise)(nil)
	_ Expr = (*MinOf)(nil)
	_ Expr = (*MaxOf)(nil)
)

func (Const) expr() {}

func (c Const) String() string {
	return fmt.Sprint(int64(c))
}

func (*Param) expr() {}

func (p *Param) String() string {
	return p.Name
}

// Bounded returns true if the parameter has finite bounds.
func (p *Param) Bounded() bool {
	return p.Range != nil && p.Range.Hi != dim.Unbounded
}

func (*Add) expr() {}

func (a *Add) String() string {
	ss := make([]string, 0, len(a.Terms)+1)
	for _, t := range a.Terms {
		if t.Coeff == 1 {
			ss = append(ss, t.X.String())
		} else {
			ss = append(ss, fmt.Sprintf("%d*%s", t.Coeff, t.X))
		}
	}
	if a.Offset != 0 || len(ss) == 0 {
		ss = append(ss, fmt.Sprint(a.Offset))
	}
	return "(" + strings.Join(ss, " + ") + ")"
}

func (*FloorDiv) expr() {}

func (f *FloorDiv) String() string {
	return fmt.Sprintf("floor(%s/%d)", f.X, f.By)
}

func (*Mod) expr() {}

func (m *Mod) String() string {
	return fmt.Sprintf("(%s mod %d)", m.X, m.By)
}

func (c *Cond) String() string {
	return fmt.Sprintf("%s %s %s", c.LHS, c.Op, c.RHS)
}

func (*Piecewise) expr() {}

func (p *Piecewise) String() string {
	ss := make([]string, len(p.Pieces))
	for i, piece := range p.Pieces {
		if piece.Cond == nil {
			ss[i] = piece.Value.String()
		} else {
			ss[i] = fmt.Sprintf("%s : %s", piece.Cond, piece.Value)
		}
	}
	return "{ " + strings.Join(ss, "; ") + " }"
}

func (*MinOf) expr() {}

func (m *MinOf) String() string {
	return "min(" + joinExprs(m.Operands) + ")"
}

func (*MaxOf) expr() {}

func (m *MaxOf) String() string {
	return "max(" + joinExprs(m.Operands) + ")"
}

func joinExprs(es []Expr) string {
	ss := make([]string, len(es))
	for i, e := range es {
		ss[i] = e.String()
	}
	return strings.Join(ss, ", ")
}

// Point assigns a value to parameters.
type Point map[string]int64

func eval(e Expr, pt Point) (int64, error) {
	switch eT := e.(type) {
	case Const:
		return int64(eT), nil
	case *Param:
		v, ok := pt[eT.Name]
		if !ok {
			return 0, errors.Errorf("parameter %s has no value", eT.Name)
		}
		return v, nil
	case *Add:
		res := eT.Offset
		for _, t := range eT.Terms {
			v, err := eval(t.X, pt)
			if err != nil {
				return 0, err
			}
			res += t.Coeff * v
		}
		return res, nil
	case *FloorDiv:
		v, err := eval(eT.X, pt)
		if err != nil {
			return 0, err
		}
		return floorDiv(v, eT.By), nil
	case *Mod:
		v, err := eval(eT.X, pt)
		if err != nil {
			return 0, err
		}
		return v - eT.By*floorDiv(v, eT.By), nil
	case *Piecewise:
		for _, piece := range eT.Pieces {
			holds := true
			if piece.Cond != nil {
				var err error
				if holds, err = evalCond(piece.Cond, pt); err != nil {
					return 0, err
				}
			}
			if holds {
				return eval(piece.Value, pt)
			}
		}
		return 0, errors.Errorf("no piece of %s defined at %v", eT, pt)
	case *MinOf:
		return evalMinMax(eT.Operands, pt, true)
	case *MaxOf:
		return evalMinMax(eT.Operands, pt, false)
	}
	return 0, errors.Errorf("expression %T not supported", e)
}

func evalCond(c *Cond, pt Point) (bool, error) {
	lhs, err := eval(c.LHS, pt)
	if err != nil {
		return false, err
	}
	rhs, err := eval(c.RHS, pt)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case token.LSS:
		return lhs < rhs, nil
	case token.LEQ:
		return lhs <= rhs, nil
	case token.GTR:
		return lhs > rhs, nil
	case token.GEQ:
		return lhs >= rhs, nil
	case token.EQL:
		return lhs == rhs, nil
	case token.NEQ:
		return lhs != rhs, nil
	}
	return false, errors.Errorf("operator %s not supported", c.Op)
}

func evalMinMax(ops []Expr, pt Point, isMin bool) (int64, error) {
	var res int64
	for i, op := range ops {
		v, err := eval(op, pt)
		if err != nil {
			return 0, err
		}
		switch {
		case i == 0:
			res = v
		case isMin:
			res = min(res, v)
		default:
			res = max(res, v)
		}
	}
	return res, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
