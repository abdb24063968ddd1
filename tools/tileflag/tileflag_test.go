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

package tileflag_test

import (
	"flag"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/tiler/tools/tileflag"
)

func TestFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	names := tileflag.StringList(fs, "names", "")
	sizes := tileflag.Int64List(fs, "sizes", "")
	dims := tileflag.BindingList(fs, "dims", "")
	err := fs.Parse([]string{
		"-names", "a, b,,c",
		"-names", "d",
		"-sizes", "64K,4M,12",
		"-dims", "m=384,n=8K",
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, *names); diff != "" {
		t.Errorf("unexpected names:\n%s", diff)
	}
	if diff := cmp.Diff([]int64{65536, 4194304, 12}, *sizes); diff != "" {
		t.Errorf("unexpected sizes:\n%s", diff)
	}
	if diff := cmp.Diff([]tileflag.Binding{{Name: "m", Value: 384}, {Name: "n", Value: 8192}}, *dims); diff != "" {
		t.Errorf("unexpected dimensions:\n%s", diff)
	}
}

func TestFlagErrors(t *testing.T) {
	tests := [][]string{
		{"-sizes", "12X"},
		{"-dims", "m"},
		{"-dims", "m=big"},
	}
	for i, args := range tests {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		tileflag.Int64List(fs, "sizes", "")
		tileflag.BindingList(fs, "dims", "")
		if err := fs.Parse(args); err == nil {
			t.Errorf("test %d: expected an error parsing %v", i, args)
		}
	}
}
