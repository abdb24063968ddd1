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

package fmt_test

import (
	"strings"
	"testing"

	gxfmt "github.com/gx-org/tiler/base/fmt"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		txt  string
		want string
	}{
		{
			txt:  "",
			want: "",
		},
		{
			txt:  "loop i\nloop j\n",
			want: "1 loop i\n2 loop j\n",
		},
		{
			txt:  strings.Repeat("x\n", 10),
			want: "01 x\n02 x\n03 x\n04 x\n05 x\n06 x\n07 x\n08 x\n09 x\n10 x\n",
		},
	}
	for i, test := range tests {
		if got := gxfmt.Number(test.txt); got != test.want {
			t.Errorf("test %d: got:\n%s\nwant:\n%s", i, got, test.want)
		}
	}
}

func TestIndent(t *testing.T) {
	if got := gxfmt.Indent(-1); got != "" {
		t.Errorf("got %q but want an empty string", got)
	}
	if got, want := gxfmt.Indent(2), "    "; got != want {
		t.Errorf("got %q but want %q", got, want)
	}
	got := gxfmt.IndentLines(1, "for m\n\nfor n\n")
	if want := "  for m\n\n  for n\n"; got != want {
		t.Errorf("got %q but want %q", got, want)
	}
}
