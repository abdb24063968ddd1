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
	"go/token"

	"github.com/gx-org/tiler/base/diag"
	"github.com/hashicorp/go-set/v3"
)

// CompareOps are the operators supported by Select.
var CompareOps = []token.Token{token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL}

// NewSelect returns a dimension equal to ifTrue when subject op expected
// holds, ifFalse otherwise. The selection is folded when the comparison
// can be decided statically or when both values are equal.
func NewSelect(subject Dimension, op token.Token, expected, ifTrue, ifFalse Dimension) Dimension {
	if Equal(ifTrue, ifFalse) {
		return ifTrue
	}
	if holds, known := Compare(subject, op, expected); known {
		if holds {
			return ifTrue
		}
		return ifFalse
	}
	return &Select{
		Subject:  subject,
		Op:       op,
		Expected: expected,
		True:     ifTrue,
		False:    ifFalse,
	}
}

// Compare returns the result of a op b if it can be decided statically.
// The second value is false when the result depends on variable values.
func Compare(a Dimension, op token.Token, b Dimension) (holds, known bool) {
	lo, hi, ok := Bounds(Sub(a, b))
	if !ok {
		return false, false
	}
	return compareInterval(lo, hi, op)
}

func compareInterval(lo, hi int64, op token.Token) (holds, known bool) {
	switch op {
	case token.LSS:
		return decide(hi < 0, lo >= 0)
	case token.LEQ:
		return decide(hi <= 0, lo > 0)
	case token.GTR:
		return decide(lo > 0, hi <= 0)
	case token.GEQ:
		return decide(lo >= 0, hi < 0)
	case token.EQL:
		return decide(lo == 0 && hi == 0, lo > 0 || hi < 0)
	case token.NEQ:
		return decide(lo > 0 || hi < 0, lo == 0 && hi == 0)
	}
	return false, false
}

func decide(always, never bool) (holds, known bool) {
	switch {
	case always:
		return true, true
	case never:
		return false, true
	}
	return false, false
}

func compareValues(a int64, op token.Token, b int64) (bool, bool) {
	return compareInterval(a-b, a-b, op)
}

// NewMin returns the minimum of a list of dimensions.
// It panics if the list is empty.
func NewMin(ds ...Dimension) Dimension {
	if len(ds) == 0 {
		panic(diag.Internalf("minimum of no dimension"))
	}
	return minMax(true, ds)
}

// NewMax returns the maximum of a list of dimensions.
// It panics if the list is empty.
func NewMax(ds ...Dimension) Dimension {
	if len(ds) == 0 {
		panic(diag.Internalf("maximum of no dimension"))
	}
	return minMax(false, ds)
}

func minMax(isMin bool, ds []Dimension) Dimension {
	var flat []Dimension
	for _, d := range ds {
		switch dT := d.(type) {
		case *Min:
			if isMin {
				flat = append(flat, dT.Operands...)
				continue
			}
		case *Max:
			if !isMin {
				flat = append(flat, dT.Operands...)
				continue
			}
		}
		flat = append(flat, d)
	}
	seen := set.New[string](len(flat))
	var operands []Dimension
	for _, d := range flat {
		if seen.Insert(d.String()) {
			operands = append(operands, d)
		}
	}
	var kept []Dimension
	for i, a := range operands {
		dominated := false
		for j, b := range operands {
			if i == j || !dominates(isMin, b, a) {
				continue
			}
			if dominates(isMin, a, b) && i < j {
				continue
			}
			dominated = true
			break
		}
		if !dominated {
			kept = append(kept, a)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	sortDims(kept)
	if isMin {
		return &Min{Operands: kept}
	}
	return &Max{Operands: kept}
}

// dominates returns true if b makes a irrelevant:
// b <= a for a minimum, b >= a for a maximum.
func dominates(isMin bool, b, a Dimension) bool {
	op := token.LEQ
	if !isMin {
		op = token.GEQ
	}
	holds, known := Compare(b, op, a)
	return known && holds
}
