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

// Package stringseq joins the string representations of sequences of elements.
package stringseq

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Append appends the elements of seq formatted by f to a string builder.
// The separator sep is placed between elements.
func Append[T any](b *strings.Builder, seq iter.Seq[T], f func(T) string, sep string) {
	n := 0
	for item := range seq {
		if n > 0 {
			b.WriteString(sep)
		}
		b.WriteString(f(item))
		n++
	}
}

// Join concatenates the elements of a slice formatted by f.
func Join[T any](items []T, f func(T) string, sep string) string {
	var b strings.Builder
	Append(&b, slices.Values(items), f, sep)
	return b.String()
}

// JoinStringer concatenates the string representations of the elements of a slice.
func JoinStringer[T fmt.Stringer](items []T, sep string) string {
	return Join(items, func(x T) string { return x.String() }, sep)
}
