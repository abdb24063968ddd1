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

package diag_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/base/diag"
)

func TestErrorsContext(t *testing.T) {
	var errs diag.Errors
	if err := errs.ToError(); err != nil {
		t.Fatalf("empty set of errors returned %v", err)
	}
	op := errs.Prefixed("op %s: ", "mm1")
	if !op.Append(nil) {
		t.Errorf("appending a nil error reported a failure")
	}
	op.Append(errors.New("first"))
	op.Append(diag.Unrepresentablef("d0*d1"))
	errs.Append(errors.New("second"))

	err := errs.ToError()
	if err == nil {
		t.Fatal("no error returned")
	}
	got := err.Error()
	want := "op mm1: first\nop mm1: d0*d1: relation not representable with affine constraints\nsecond"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if !errors.Is(err, diag.ErrUnrepresentable) {
		t.Errorf("errors.Is(%v, ErrUnrepresentable) = false, want true", err)
	}
	if errors.Is(err, diag.ErrInfeasible) {
		t.Errorf("errors.Is(%v, ErrInfeasible) = true, want false", err)
	}
}

func TestInternal(t *testing.T) {
	err := diag.Internalf("vertex %d has no parent", 3)
	if !diag.IsInternal(err) {
		t.Errorf("IsInternal(%v) = false, want true", err)
	}
	if diag.IsInternal(errors.New("user error")) {
		t.Errorf("IsInternal returned true on a user error")
	}
	verbose := fmt.Sprintf("%+v", diag.ToStackTraceError(err))
	if !strings.Contains(verbose, "Error generated at:") {
		t.Errorf("verbose format does not contain a stack trace:\n%s", verbose)
	}
	if diag.Internal(nil) != nil {
		t.Errorf("Internal(nil) != nil")
	}
}
