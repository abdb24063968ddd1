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

package poly

import (
	"fmt"
	"strings"

	gxsync "github.com/gx-org/tiler/base/sync"
	"github.com/gx-org/tiler/dim"
)

// Cache memoizes queries on dimensions. Every query missing from the
// cache runs in its own context. A cache is safe for concurrent use.
type Cache struct {
	opts    []Option
	results gxsync.Map[string, bool]
}

// NewCache returns an empty cache running queries with the given options.
func NewCache(opts ...Option) *Cache {
	return &Cache{opts: opts}
}

// key identifies a query. Variables are keyed with their ranges since
// two variables with the same name may have different ranges.
func key(query string, ds ...dim.Dimension) string {
	var sb strings.Builder
	sb.WriteString(query)
	for _, d := range ds {
		fmt.Fprintf(&sb, "|%s", d)
	}
	for _, v := range dim.Variables(ds...) {
		if v.Range == nil {
			fmt.Fprintf(&sb, "|%s", v.Name)
			continue
		}
		fmt.Fprintf(&sb, "|%s[%d,%d]", v.Name, v.Range.Lo, v.Range.Hi)
	}
	return sb.String()
}

func (c *Cache) query(k string, fn func(*Context) (bool, error)) (bool, error) {
	if res, ok := c.results.Load(k); ok {
		return res, nil
	}
	var res bool
	if err := With(func(ctx *Context) (err error) {
		res, err = fn(ctx)
		return err
	}, c.opts...); err != nil {
		return false, err
	}
	res, _ = c.results.LoadOrStore(k, res)
	return res, nil
}

// ProvablyGE returns true if a >= b for all the values of their variables.
func (c *Cache) ProvablyGE(a, b dim.Dimension) (bool, error) {
	return c.query(key(">=", a, b), func(ctx *Context) (bool, error) {
		return ProvablyGE(ctx, a, b)
	})
}

// Equivalent returns true if two dimensions provably compute the same function.
func (c *Cache) Equivalent(a, b dim.Dimension) (bool, error) {
	return c.query(key("==", a, b), func(ctx *Context) (bool, error) {
		return Equivalent(ctx, a, b)
	})
}

// Len returns the number of queries stored in the cache.
func (c *Cache) Len() int {
	return c.results.Size()
}
