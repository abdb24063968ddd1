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

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-dims", "m=4,n=4,k=4",
		"-tensors", "A:m:k,B:k:n,C:m:n",
		"-capacities", "64,1K",
		"-bandwidths", "8,4",
		"-loops",
	}, &out)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for _, want := range []string{"tilesolve:", "L1:", "L2:", "for m@1", "for k@0", "trips"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not contain %q:\n%s", want, out.String())
		}
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{
			args: []string{"-dims", "m=4", "-tensors", "A:m", "-capacities", "64", "-bandwidths", "8,4"},
			want: "1 capacities but 2 bandwidths",
		},
		{
			args: []string{"-dims", "m=4", "-tensors", "A:m", "-dtype", "complex"},
			want: "unknown element type",
		},
		{
			args: []string{"-dims", "m=4", "-tensors", "A:m", "-hierarchy", "gpu"},
			want: "unknown memory hierarchy preset",
		},
		{
			args: []string{"-dims", "m=4", "-tensors", "A:m", "-capacities", "64,1K", "-bandwidths", "8,4", "-loops"},
			want: "dimension n missing",
		},
	}
	for i, test := range tests {
		var out bytes.Buffer
		err := run(context.Background(), test.args, &out)
		if err == nil {
			t.Errorf("test %d: expected an error", i)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("test %d: error %q does not contain %q", i, err.Error(), test.want)
		}
	}
}
