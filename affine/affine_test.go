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

package affine_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/gx-org/tiler/affine"
	"github.com/gx-org/tiler/dim"
)

func results(m *affine.Map) []string {
	ss := make([]string, len(m.Results))
	for i, r := range m.Results {
		ss[i] = r.String()
	}
	return ss
}

func TestMaps(t *testing.T) {
	perm, err := affine.Permutation([]int{2, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	shift := affine.FromCallable(2, 1, func(ds, ss []dim.Dimension) []dim.Dimension {
		return []dim.Dimension{dim.Add(ds[0], ss[0]), dim.Scale(2, ds[1])}
	})
	tests := []struct {
		m    *affine.Map
		want string
	}{
		{m: affine.Identity(2), want: "(d0, d1) -> (d0, d1)"},
		{m: perm, want: "(d0, d1, d2) -> (d2, d0, d1)"},
		{m: shift, want: "(d0, d1)[s0] -> (d0 + s0, 2*d1)"},
		{m: affine.Constant(3), want: "() -> (3)"},
	}
	for i, test := range tests {
		if got := test.m.String(); got != test.want {
			t.Errorf("test %d: got %s but want %s", i, got, test.want)
		}
	}
	for _, p := range [][]int{{0, 0}, {0, 2}, {-1, 0}} {
		if _, err := affine.Permutation(p); err == nil {
			t.Errorf("permutation %v: expected an error", p)
		}
	}
}

func TestApplyCompose(t *testing.T) {
	m := affine.FromCallable(2, 1, func(ds, ss []dim.Dimension) []dim.Dimension {
		return []dim.Dimension{dim.Add(ds[1], ss[0]), ds[0]}
	})
	got, err := m.Apply([]dim.Dimension{dim.Var("i"), dim.Const(3)}, []dim.Dimension{dim.Const(1)})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{got[0].String(), got[1].String()}, []string{"4", "i"}); diff != "" {
		t.Errorf("unexpected result:\n%s", diff)
	}
	if _, err := m.Apply([]dim.Dimension{dim.Const(0)}, nil); err == nil {
		t.Errorf("expected an error when applying a map on the wrong number of dimensions")
	}

	tile := affine.FromCallable(2, 0, func(ds, _ []dim.Dimension) []dim.Dimension {
		return []dim.Dimension{dim.Scale(4, ds[0]), dim.Scale(8, ds[1])}
	})
	composed, err := affine.Compose(m, tile)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := composed.String(), "(d0, d1)[s0] -> (8*d1 + s0, 4*d0)"; got != want {
		t.Errorf("got %s but want %s", got, want)
	}
	if _, err := affine.Compose(m, affine.Identity(3)); err == nil {
		t.Errorf("expected an error when composing incompatible maps")
	}
}

func TestInverse(t *testing.T) {
	tests := []struct {
		m           *affine.Map
		want        []string
		unsupported bool
	}{
		{
			m:    affine.Identity(2),
			want: []string{"d0", "d1"},
		},
		{
			m: affine.FromCallable(3, 0, func(ds, _ []dim.Dimension) []dim.Dimension {
				return []dim.Dimension{ds[2], ds[0]}
			}),
			want: []string{"d1", "s0", "d0"},
		},
		{
			m: affine.FromCallable(2, 1, func(ds, ss []dim.Dimension) []dim.Dimension {
				return []dim.Dimension{dim.Sub(ss[0], ds[1]), dim.Add(ds[0], dim.Const(2))}
			}),
			want: []string{"d1 - 2", "-d0 + s0"},
		},
		{
			m: affine.FromCallable(2, 0, func(ds, _ []dim.Dimension) []dim.Dimension {
				return []dim.Dimension{dim.Add(ds[0], ds[1])}
			}),
			unsupported: true,
		},
		{
			m: affine.FromCallable(1, 0, func(ds, _ []dim.Dimension) []dim.Dimension {
				return []dim.Dimension{dim.Scale(2, ds[0])}
			}),
			unsupported: true,
		},
		{
			m: affine.FromCallable(1, 0, func(ds, _ []dim.Dimension) []dim.Dimension {
				return []dim.Dimension{ds[0], ds[0]}
			}),
			unsupported: true,
		},
	}
	for i, test := range tests {
		inv, err := test.m.Inverse()
		if test.unsupported {
			if !errors.Is(err, affine.ErrUnsupported) {
				t.Errorf("test %d: inverting %s returned error %v but want %v", i, test.m, err, affine.ErrUnsupported)
			}
			continue
		}
		if err != nil {
			t.Errorf("test %d: cannot invert %s: %v", i, test.m, err)
			continue
		}
		if diff := cmp.Diff(results(inv), test.want); diff != "" {
			t.Errorf("test %d: unexpected inverse of %s:\n%s", i, test.m, diff)
		}
		// Check that m(inv(x)) = x on the results used by the domain.
		back, err := affine.Compose(test.m, inv)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		for r, res := range back.Results {
			if !dim.Equal(res, affine.DimVar(r)) {
				t.Errorf("test %d: m(inv(x))[%d] = %s but want d%d", i, r, res, r)
			}
		}
	}
}

func TestRelation(t *testing.T) {
	// C[i, j] = A[i, k] * B[k, j] with loops (i, j, k).
	mm := &affine.Relation{
		Operands: []*affine.Map{
			affine.FromCallable(3, 0, func(ds, _ []dim.Dimension) []dim.Dimension { return []dim.Dimension{ds[0], ds[2]} }),
			affine.FromCallable(3, 0, func(ds, _ []dim.Dimension) []dim.Dimension { return []dim.Dimension{ds[2], ds[1]} }),
		},
		Result: affine.FromCallable(3, 0, func(ds, _ []dim.Dimension) []dim.Dimension { return []dim.Dimension{ds[0], ds[1]} }),
	}
	inv, err := mm.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	want := "in0: (d0, d1)[s0] -> (d0, s0); in1: (d0, d1)[s0] -> (s0, d1); out: (d0, d1)[s0] -> (d0, d1, s0)"
	if got := inv.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	tiles := affine.FromCallable(3, 0, func(ds, _ []dim.Dimension) []dim.Dimension {
		return []dim.Dimension{dim.Scale(32, ds[0]), dim.Scale(64, ds[1]), dim.Scale(16, ds[2])}
	})
	tiled, err := mm.Compose(tiles)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(results(tiled.Operands[0]), []string{"32*d0", "16*d2"}); diff != "" {
		t.Errorf("unexpected tiled access:\n%s", diff)
	}

	dom := affine.NewDomain(dim.Const(32), dim.Const(64), dim.Const(16))
	img, err := dom.Image(mm.Operands[1], nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := img.String(), "[0, +16)x[0, +64)"; got != want {
		t.Errorf("got image %s but want %s", got, want)
	}
}
