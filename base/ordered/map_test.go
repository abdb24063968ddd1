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

package ordered_test

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/tiler/base/ordered"
)

type entry struct {
	k string
	v int
}

func TestMap(t *testing.T) {
	tests := []struct {
		entries []entry
		deleted []string
		want    []entry
	}{
		{
			entries: []entry{{"mm1", 1}, {"exp", 2}, {"mm2", 3}},
			want:    []entry{{"mm1", 1}, {"exp", 2}, {"mm2", 3}},
		},
		{
			entries: []entry{{"mm1", 1}, {"exp", 2}, {"mm1", 3}},
			want:    []entry{{"mm1", 3}, {"exp", 2}},
		},
		{
			entries: []entry{{"mm1", 1}, {"exp", 2}, {"mm2", 3}},
			deleted: []string{"exp", "other"},
			want:    []entry{{"mm1", 1}, {"mm2", 3}},
		},
		{
			entries: []entry{{"mm1", 1}, {"exp", 2}},
			deleted: []string{"mm1"},
			want:    []entry{{"exp", 2}},
		},
	}
	for ti, test := range tests {
		m := ordered.NewMap[string, int]()
		for _, e := range test.entries {
			m.Store(e.k, e.v)
		}
		for _, k := range test.deleted {
			m.Delete(k)
		}
		if m.Size() != len(test.want) {
			t.Errorf("test %d: map has %d entries but want %d", ti, m.Size(), len(test.want))
			continue
		}
		clone := m.Clone()
		var got []entry
		for k, v := range clone.All() {
			got = append(got, entry{k: k, v: v})
		}
		if diff := cmp.Diff(test.want, got, cmp.AllowUnexported(entry{})); diff != "" {
			t.Errorf("test %d: unexpected entries:\n%s", ti, diff)
		}
		wantKeys := make([]string, len(test.want))
		wantValues := make([]int, len(test.want))
		for i, e := range test.want {
			wantKeys[i], wantValues[i] = e.k, e.v
			if idx := m.Index(e.k); idx != i {
				t.Errorf("test %d: index of %s: got %d but want %d", ti, e.k, idx, i)
			}
		}
		if gotKeys := slices.Collect(m.Keys()); !slices.Equal(gotKeys, wantKeys) {
			t.Errorf("test %d: got keys %v but want %v", ti, gotKeys, wantKeys)
		}
		if gotValues := slices.Collect(m.Values()); !slices.Equal(gotValues, wantValues) {
			t.Errorf("test %d: got values %v but want %v", ti, gotValues, wantValues)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := ordered.NewMap[string, int]()
	m.Store("a", 1)
	clone := m.Clone()
	clone.Store("b", 2)
	clone.Delete("a")
	if _, ok := m.Load("a"); !ok || m.Size() != 1 {
		t.Errorf("original map modified by its clone: size %d", m.Size())
	}
	if m.Index("b") != -1 {
		t.Errorf("key b stored in the clone is visible in the original map")
	}
}
