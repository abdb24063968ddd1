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

// Package uname provides unique names for ops and tensors.
package uname

import (
	"fmt"
	"strings"
)

// Unique generates unique names.
type Unique struct {
	names map[string]int
}

// New name generator.
func New() *Unique {
	return &Unique{names: make(map[string]int)}
}

// Name returns a unique name given a desired root.
// The root is returned if it is available. Otherwise, the smallest
// suffix _<n> not used yet is appended.
// An empty root is replaced by "op".
func (n *Unique) Name(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "op"
	}
	if _, used := n.names[root]; !used {
		n.names[root] = 1
		return root
	}
	for {
		next := n.names[root]
		n.names[root] = next + 1
		name := fmt.Sprintf("%s_%d", root, next)
		if _, used := n.names[name]; !used {
			n.names[name] = 1
			return name
		}
	}
}

// Reserve marks a name as used. It returns false if the name was already used.
func (n *Unique) Reserve(name string) bool {
	if _, used := n.names[name]; used {
		return false
	}
	n.names[name] = 1
	return true
}
