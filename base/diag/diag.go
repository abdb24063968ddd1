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

// Package diag provides the error kinds reported by the tiler and
// helpers to accumulate errors while building tile graphs.
//
// Two kinds of errors are fatal for a compile unit:
// ErrUnrepresentable when an index relation cannot be expressed with
// affine constraints, and ErrInfeasible when no tiling satisfies the
// memory constraints. Refusing a merge is not an error: it is reported
// as a boolean by the tile graph.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnrepresentable is returned when a relation between dimensions is not affine.
	ErrUnrepresentable = errors.New("relation not representable with affine constraints")

	// ErrInfeasible is returned when no tiling satisfies the constraints.
	ErrInfeasible = errors.New("no feasible tiling")
)

// PrefixWith returns a function to prefix errors with a formatted string.
func PrefixWith(s string, o ...any) func(err error) error {
	return func(err error) error {
		return fmt.Errorf("%s%w", fmt.Sprintf(s, o...), err)
	}
}

// Unrepresentablef returns an error of kind ErrUnrepresentable.
func Unrepresentablef(format string, a ...any) error {
	return errors.WithStack(kindError{
		kind: ErrUnrepresentable,
		msg:  fmt.Sprintf(format, a...),
	})
}

type kindError struct {
	kind error
	msg  string
}

func (err kindError) Error() string {
	return err.msg + ": " + err.kind.Error()
}

func (err kindError) Is(target error) bool {
	return target == err.kind
}
