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

// Package fmt provides utility functions to build string representations of loop nests and tile graphs.
package fmt

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Indent returns the prefix of a line nested depth times.
func Indent(depth int) string {
	if depth <= 0 {
		return ""
	}
	return strings.Repeat("  ", depth)
}

// IndentLines indents every non-empty line of a string.
func IndentLines(depth int, x string) string {
	prefix := Indent(depth)
	var s strings.Builder
	for line := range strings.Lines(x) {
		if strings.TrimSpace(line) != "" {
			s.WriteString(prefix)
		}
		s.WriteString(line)
	}
	return s.String()
}

// Number adds a number prefix to all lines in a string.
func Number(x string) string {
	lines := slices.Collect(strings.Lines(x))
	if len(lines) == 0 {
		return ""
	}
	numDigits := int(math.Log10(float64(len(lines)))) + 1
	format := fmt.Sprintf("%%0%dd %%s", numDigits)
	var s strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&s, format, i+1, line)
	}
	return s.String()
}
