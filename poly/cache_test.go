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

package poly_test

import (
	"testing"

	"github.com/gx-org/tiler/dim"
	"github.com/gx-org/tiler/poly"
	"golang.org/x/sync/errgroup"
)

func TestCache(t *testing.T) {
	cache := poly.NewCache()
	wide := dim.RangedVar("x", 0, 16)
	tests := []struct {
		query func() (bool, error)
		want  bool
	}{
		{
			query: func() (bool, error) { return cache.ProvablyGE(x, dim.Const(8)) },
			want:  true,
		},
		{
			query: func() (bool, error) { return cache.ProvablyGE(x, dim.Const(9)) },
			want:  false,
		},
		{
			// Same name as x but a different range.
			query: func() (bool, error) { return cache.ProvablyGE(wide, dim.Const(8)) },
			want:  false,
		},
		{
			query: func() (bool, error) { return cache.Equivalent(dim.Add(x, x), dim.Scale(2, x)) },
			want:  true,
		},
	}
	for i, test := range tests {
		var g errgroup.Group
		for range 8 {
			g.Go(func() error {
				got, err := test.query()
				if err != nil {
					return err
				}
				if got != test.want {
					t.Errorf("test %d: got %v but want %v", i, got, test.want)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Errorf("test %d: %+v", i, err)
		}
	}
	if got := cache.Len(); got != len(tests) {
		t.Errorf("got %d cached queries but want %d", got, len(tests))
	}
}
