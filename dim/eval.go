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
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/hashicorp/go-set/v3"
)

// Eval computes the value of a dimension given values for its variables.
func Eval(d Dimension, b Bindings) (int64, error) {
	switch dT := d.(type) {
	case Constant:
		return int64(dT), nil
	case *Variable:
		v, ok := b[dT.Name]
		if !ok {
			return 0, errors.Errorf("variable %s has no value", dT.Name)
		}
		return v, nil
	case *Sum:
		res := dT.Offset
		for _, t := range dT.Terms {
			v, err := Eval(t.X, b)
			if err != nil {
				return 0, err
			}
			res += t.Coeff * v
		}
		return res, nil
	case *Product:
		res := int64(1)
		for _, f := range dT.Factors {
			v, err := Eval(f, b)
			if err != nil {
				return 0, err
			}
			res *= v
		}
		return res, nil
	case *Div, *Modulo:
		var x, y Dimension
		if div, ok := dT.(*Div); ok {
			x, y = div.X, div.Y
		} else {
			mod := dT.(*Modulo)
			x, y = mod.X, mod.Y
		}
		xv, err := Eval(x, b)
		if err != nil {
			return 0, err
		}
		yv, err := Eval(y, b)
		if err != nil {
			return 0, err
		}
		if yv == 0 {
			return 0, errors.Errorf("division by zero in %s: %s evaluates to 0", d, y)
		}
		if _, ok := dT.(*Div); ok {
			return floorDiv(xv, yv), nil
		}
		return floorMod(xv, yv), nil
	case *Select:
		sv, err := Eval(dT.Subject, b)
		if err != nil {
			return 0, err
		}
		ev, err := Eval(dT.Expected, b)
		if err != nil {
			return 0, err
		}
		holds, known := compareValues(sv, dT.Op, ev)
		if !known {
			return 0, errors.Errorf("operator %s not supported in %s", dT.Op, d)
		}
		if holds {
			return Eval(dT.True, b)
		}
		return Eval(dT.False, b)
	case *Min:
		return evalMinMax(dT.Operands, b, true)
	case *Max:
		return evalMinMax(dT.Operands, b, false)
	}
	return 0, errors.Errorf("dimension %T not supported", d)
}

func evalMinMax(ops []Dimension, b Bindings, isMin bool) (int64, error) {
	var res int64
	for i, op := range ops {
		v, err := Eval(op, b)
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

// Substitute replaces variables by dimensions and simplifies the result.
func Substitute(d Dimension, subst map[string]Dimension) Dimension {
	switch dT := d.(type) {
	case Constant:
		return dT
	case *Variable:
		if r, ok := subst[dT.Name]; ok {
			return r
		}
		return dT
	case *Sum:
		l := newLinear()
		l.offset = dT.Offset
		for _, t := range dT.Terms {
			l.add(t.Coeff, Substitute(t.X, subst))
		}
		return l.build()
	case *Product:
		var res Dimension = Constant(1)
		for _, f := range dT.Factors {
			res = Mul(res, Substitute(f, subst))
		}
		return res
	case *Div:
		return FloorDiv(Substitute(dT.X, subst), Substitute(dT.Y, subst))
	case *Modulo:
		return Mod(Substitute(dT.X, subst), Substitute(dT.Y, subst))
	case *Select:
		return NewSelect(
			Substitute(dT.Subject, subst),
			dT.Op,
			Substitute(dT.Expected, subst),
			Substitute(dT.True, subst),
			Substitute(dT.False, subst),
		)
	case *Min:
		return NewMin(substituteAll(dT.Operands, subst)...)
	case *Max:
		return NewMax(substituteAll(dT.Operands, subst)...)
	}
	return d
}

func substituteAll(ds []Dimension, subst map[string]Dimension) []Dimension {
	res := make([]Dimension, len(ds))
	for i, d := range ds {
		res[i] = Substitute(d, subst)
	}
	return res
}

// Bind replaces variables by their values.
// Variables without a value are left unchanged.
func Bind(d Dimension, b Bindings) Dimension {
	return Substitute(d, b.Dimensions())
}

// Operands returns the direct sub-expressions of a dimension.
func Operands(d Dimension) []Dimension {
	switch dT := d.(type) {
	case *Sum:
		ops := make([]Dimension, len(dT.Terms))
		for i, t := range dT.Terms {
			ops[i] = t.X
		}
		return ops
	case *Product:
		return dT.Factors
	case *Div:
		return []Dimension{dT.X, dT.Y}
	case *Modulo:
		return []Dimension{dT.X, dT.Y}
	case *Select:
		return []Dimension{dT.Subject, dT.Expected, dT.True, dT.False}
	case *Min:
		return dT.Operands
	case *Max:
		return dT.Operands
	}
	return nil
}

// Variables returns the variables of a dimension sorted by name.
func Variables(ds ...Dimension) []*Variable {
	seen := set.New[string](0)
	var vars []*Variable
	var walk func(Dimension)
	walk = func(d Dimension) {
		if v, ok := d.(*Variable); ok {
			if seen.Insert(v.Name) {
				vars = append(vars, v)
			}
			return
		}
		for _, op := range Operands(d) {
			walk(op)
		}
	}
	for _, d := range ds {
		walk(d)
	}
	slices.SortFunc(vars, func(a, b *Variable) int {
		return strings.Compare(a.Name, b.Name)
	})
	return vars
}

// DependsOn returns true if the dimension uses the variable name.
func DependsOn(d Dimension, name string) bool {
	return slices.ContainsFunc(Variables(d), func(v *Variable) bool {
		return v.Name == name
	})
}

// IsAffine returns true if the dimension is a sum of variables
// multiplied by constants.
func IsAffine(d Dimension) bool {
	switch dT := d.(type) {
	case Constant, *Variable:
		return true
	case *Sum:
		for _, t := range dT.Terms {
			if _, ok := t.X.(*Variable); !ok {
				return false
			}
		}
		return true
	}
	return false
}

// IsQuasiAffine returns true if the dimension is affine, possibly
// including floor divisions and modulos by positive constants.
func IsQuasiAffine(d Dimension) bool {
	switch dT := d.(type) {
	case Constant, *Variable:
		return true
	case *Sum:
		for _, t := range dT.Terms {
			if !IsQuasiAffine(t.X) {
				return false
			}
		}
		return true
	case *Div:
		c, ok := dT.Y.(Constant)
		return ok && c > 0 && IsQuasiAffine(dT.X)
	case *Modulo:
		c, ok := dT.Y.(Constant)
		return ok && c > 0 && IsQuasiAffine(dT.X)
	}
	return false
}
