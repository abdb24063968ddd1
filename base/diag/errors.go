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

package diag

import (
	"fmt"
	"strings"
)

// Errors is a list of errors collected while processing several
// independent items, for example all the operations of a function.
type Errors struct {
	// parent receives the errors of a prefixed list.
	parent *Errors
	prefix func(error) error
	errs   []error
}

// Prefixed returns a list storing its errors in errs, each one prefixed
// with a formatted string.
func (errs *Errors) Prefixed(format string, a ...any) *Errors {
	return &Errors{parent: errs, prefix: PrefixWith(format, a...)}
}

// Append an error to the list.
// Returns false if err is not nil, so that it can be used as a check result.
func (errs *Errors) Append(err error) bool {
	if err == nil {
		return true
	}
	if errs.parent != nil {
		return errs.parent.Append(errs.prefix(err))
	}
	errs.errs = append(errs.errs, err)
	return false
}

// Appendf appends a formatted error.
func (errs *Errors) Appendf(format string, a ...any) bool {
	return errs.Append(fmt.Errorf(format, a...))
}

// Empty returns true if no error has been appended.
func (errs *Errors) Empty() bool {
	if errs.parent != nil {
		return errs.parent.Empty()
	}
	return len(errs.errs) == 0
}

// Unwrap returns the collected errors so that errors.Is and errors.As
// look into every one of them.
func (errs *Errors) Unwrap() []error {
	return errs.errs
}

// ToError returns nil if the list is empty, the list otherwise.
func (errs *Errors) ToError() error {
	if errs == nil || errs.Empty() {
		return nil
	}
	return errs
}

func (errs *Errors) Error() string {
	ss := make([]string, len(errs.errs))
	for i, err := range errs.errs {
		ss[i] = err.Error()
	}
	return strings.Join(ss, "\n")
}

// Format writes one error per line. The verb and its flags are applied
// to each error so that %+v prints their stack traces.
func (errs *Errors) Format(s fmt.State, verb rune) {
	format := fmt.FormatString(s, verb)
	for i, err := range errs.errs {
		if i > 0 {
			fmt.Fprint(s, "\n")
		}
		fmt.Fprintf(s, format, err)
	}
}
