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

// Package tileflag provides flag types for tiling tools.
package tileflag

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func splitList(values string) []string {
	var list []string
	for _, value := range strings.Split(values, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		list = append(list, value)
	}
	return list
}

type stringList struct {
	list *[]string
}

func (sl *stringList) String() string {
	if sl.list == nil {
		return ""
	}
	return strings.Join(*sl.list, ",")
}

func (sl *stringList) Set(values string) error {
	*sl.list = append(*sl.list, splitList(values)...)
	return nil
}

// StringList returns a flag to pass a list of string from the command line.
func StringList(fs *flag.FlagSet, name, doc string) *[]string {
	var list []string
	fs.Var(&stringList{&list}, name, doc)
	return &list
}

type int64List struct {
	list *[]int64
}

func (il *int64List) String() string {
	if il.list == nil {
		return ""
	}
	parts := make([]string, len(*il.list))
	for i, v := range *il.list {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func (il *int64List) Set(values string) error {
	for _, value := range splitList(values) {
		v, err := ParseSize(value)
		if err != nil {
			return err
		}
		*il.list = append(*il.list, v)
	}
	return nil
}

// Int64List returns a flag to pass a list of integers from the command line.
// Integers can use the K, M and G binary suffixes.
func Int64List(fs *flag.FlagSet, name, doc string) *[]int64 {
	var list []int64
	fs.Var(&int64List{&list}, name, doc)
	return &list
}

// ParseSize parses an integer with an optional K, M or G binary suffix.
func ParseSize(s string) (int64, error) {
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1 << 10
	case strings.HasSuffix(s, "M"):
		mult = 1 << 20
	case strings.HasSuffix(s, "G"):
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	return v * mult, nil
}

// Binding is a name bound to an integer.
type Binding struct {
	Name  string
	Value int64
}

func (b Binding) String() string {
	return fmt.Sprintf("%s=%d", b.Name, b.Value)
}

type bindingList struct {
	list *[]Binding
}

func (bl *bindingList) String() string {
	if bl.list == nil {
		return ""
	}
	parts := make([]string, len(*bl.list))
	for i, b := range *bl.list {
		parts[i] = b.String()
	}
	return strings.Join(parts, ",")
}

func (bl *bindingList) Set(values string) error {
	for _, value := range splitList(values) {
		name, val, ok := strings.Cut(value, "=")
		if !ok {
			return errors.Errorf("invalid binding %q: want name=value", value)
		}
		v, err := ParseSize(strings.TrimSpace(val))
		if err != nil {
			return errors.Wrapf(err, "binding %s", name)
		}
		*bl.list = append(*bl.list, Binding{Name: strings.TrimSpace(name), Value: v})
	}
	return nil
}

// BindingList returns a flag to pass a list of name=value pairs from the command line.
func BindingList(fs *flag.FlagSet, name, doc string) *[]Binding {
	var list []Binding
	fs.Var(&bindingList{&list}, name, doc)
	return &list
}
