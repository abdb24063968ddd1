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
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// RankedShape is a fixed-rank sequence of dimensions.
type RankedShape []Dimension

// Shape returns a ranked shape from a list of dimensions.
func Shape(ds ...Dimension) RankedShape {
	return RankedShape(ds)
}

// FromBackend returns the ranked shape of a backend shape.
func FromBackend(s *shape.Shape) RankedShape {
	rs := make(RankedShape, len(s.AxisLengths))
	for i, l := range s.AxisLengths {
		rs[i] = Constant(l)
	}
	return rs
}

// Rank of the shape.
func (s RankedShape) Rank() int {
	return len(s)
}

// IsFixed returns true if all the dimensions are known at compile time.
func (s RankedShape) IsFixed() bool {
	for _, d := range s {
		if !IsFixed(d) {
			return false
		}
	}
	return true
}

// NumElements returns the number of elements as a dimension.
func (s RankedShape) NumElements() Dimension {
	return Prod(s...)
}

// Equal returns true if both shapes have the same rank and equal dimensions.
func (s RankedShape) Equal(other RankedShape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if !Equal(s[i], other[i]) {
			return false
		}
	}
	return true
}

// Bind returns a new shape where variables have been replaced by their values.
func (s RankedShape) Bind(b Bindings) RankedShape {
	rs := make(RankedShape, len(s))
	for i, d := range s {
		rs[i] = Bind(d, b)
	}
	return rs
}

// ToBackend returns the backend shape of a fixed shape.
func (s RankedShape) ToBackend(dt dtype.DataType) (*shape.Shape, error) {
	lengths := make([]int, len(s))
	for i, d := range s {
		v, ok := FixedValue(d)
		if !ok {
			return nil, errors.Errorf("axis %d of shape %s is not known at compile time", i, s)
		}
		lengths[i] = int(v)
	}
	return &shape.Shape{DType: dt, AxisLengths: lengths}, nil
}

// String representation of the shape.
func (s RankedShape) String() string {
	return "[" + joinDims(s, ", ") + "]"
}
