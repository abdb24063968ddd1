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
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Bindings maps variable names to concrete values.
// Used to substitute runtime sizes or tile sizes chosen by a solver.
type Bindings map[string]int64

// Key returns a canonical string representation of the bindings.
// Format: "name1=val1,name2=val2" with names sorted alphabetically.
func (b Bindings) Key() string {
	if len(b) == 0 {
		return ""
	}
	names := maps.Keys(b)
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, b[name])
	}
	return strings.Join(parts, ",")
}

// Clone returns a copy of the bindings.
func (b Bindings) Clone() Bindings {
	if b == nil {
		return nil
	}
	return maps.Clone(b)
}

// Merge adds the bindings of other.
// Returns an error if a variable is bound to two different values.
func (b Bindings) Merge(other Bindings) error {
	names := maps.Keys(other)
	slices.Sort(names)
	for _, name := range names {
		val := other[name]
		if existing, ok := b[name]; ok && existing != val {
			return errors.Errorf("conflicting values for variable %q: %d vs %d", name, existing, val)
		}
		b[name] = val
	}
	return nil
}

// Dimensions returns the bindings as a substitution of constant dimensions.
func (b Bindings) Dimensions() map[string]Dimension {
	subst := make(map[string]Dimension, len(b))
	for name, val := range b {
		subst[name] = Constant(val)
	}
	return subst
}

// Check returns an error if a value is outside of the range of its variable.
func (b Bindings) Check(vars []*Variable) error {
	for _, v := range vars {
		val, ok := b[v.Name]
		if !ok || v.Range == nil {
			continue
		}
		if val < v.Range.Lo || val > v.Range.Hi {
			return errors.Errorf("value %d of variable %s out of range [%d, %d]", val, v.Name, v.Range.Lo, v.Range.Hi)
		}
	}
	return nil
}
