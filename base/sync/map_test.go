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

package sync_test

import (
	"fmt"
	"testing"

	"github.com/gx-org/tiler/base/sync"
	"golang.org/x/sync/errgroup"
)

func TestMap(t *testing.T) {
	var m sync.Map[string, int]
	if _, ok := m.Load("a"); ok {
		t.Errorf("empty map: key a found")
	}
	var g errgroup.Group
	for i := range 64 {
		g.Go(func() error {
			m.LoadOrStore(fmt.Sprintf("k%d", i%8), i%8)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := m.Size(); got != 8 {
		t.Errorf("got %d elements but want 8", got)
	}
	if v, ok := m.Load("k3"); !ok || v != 3 {
		t.Errorf("got %d, %v but want 3, true", v, ok)
	}
	if v, loaded := m.LoadOrStore("k3", 10); !loaded || v != 3 {
		t.Errorf("got %d, %v but want 3, true", v, loaded)
	}
}
