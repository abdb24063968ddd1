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

// Package hierarchy describes the memory levels tiles are scheduled on.
package hierarchy

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/tiler/base/stringseq"
	"go.uber.org/multierr"
	"golang.org/x/sys/cpu"
)

// Level is a memory level.
type Level struct {
	Name string
	// Capacity of the level in bytes.
	Capacity int64
	// Bandwidth to load data into the level, in bytes per cycle.
	Bandwidth int64
}

func (l Level) String() string {
	return fmt.Sprintf("%s(%dB, %dB/cycle)", l.Name, l.Capacity, l.Bandwidth)
}

// Hierarchy lists memory levels from the innermost to the outermost.
type Hierarchy []Level

// Validate returns all the problems of a hierarchy.
func (h Hierarchy) Validate() error {
	if len(h) == 0 {
		return errors.Errorf("empty memory hierarchy")
	}
	var err error
	names := make(map[string]bool)
	for i, l := range h {
		if l.Name == "" {
			err = multierr.Append(err, errors.Errorf("level %d has no name", i))
		} else if names[l.Name] {
			err = multierr.Append(err, errors.Errorf("level %d: name %s used more than once", i, l.Name))
		}
		names[l.Name] = true
		if l.Capacity <= 0 {
			err = multierr.Append(err, errors.Errorf("level %d (%s): non-positive capacity %d", i, l.Name, l.Capacity))
		}
		if l.Bandwidth <= 0 {
			err = multierr.Append(err, errors.Errorf("level %d (%s): non-positive bandwidth %d", i, l.Name, l.Bandwidth))
		}
		if i > 0 && l.Capacity < h[i-1].Capacity {
			err = multierr.Append(err, errors.Errorf("level %d (%s): capacity %d smaller than the capacity %d of inner level %s", i, l.Name, l.Capacity, h[i-1].Capacity, h[i-1].Name))
		}
	}
	return err
}

// Capacities returns the capacity of every level.
func (h Hierarchy) Capacities() []int64 {
	cs := make([]int64, len(h))
	for i, l := range h {
		cs[i] = l.Capacity
	}
	return cs
}

func (h Hierarchy) String() string {
	return stringseq.JoinStringer(h, " < ")
}

const (
	kib = 1 << 10
	mib = 1 << 20
)

// AVX512 returns the hierarchy of a typical CPU with AVX-512 (32KB L1d, 1MB L2).
func AVX512() Hierarchy {
	return Hierarchy{
		{Name: "L1", Capacity: 32 * kib, Bandwidth: 128},
		{Name: "L2", Capacity: 1 * mib, Bandwidth: 64},
	}
}

// AVX2 returns the hierarchy of a typical CPU with AVX2 (32KB L1d, 256KB L2).
func AVX2() Hierarchy {
	return Hierarchy{
		{Name: "L1", Capacity: 32 * kib, Bandwidth: 64},
		{Name: "L2", Capacity: 256 * kib, Bandwidth: 32},
	}
}

// NEON returns the hierarchy of a typical ARM CPU (64KB L1d, 1MB L2).
func NEON() Hierarchy {
	return Hierarchy{
		{Name: "L1", Capacity: 64 * kib, Bandwidth: 32},
		{Name: "L2", Capacity: 1 * mib, Bandwidth: 16},
	}
}

// Fallback returns a conservative hierarchy for unknown hardware.
func Fallback() Hierarchy {
	return Hierarchy{
		{Name: "L1", Capacity: 32 * kib, Bandwidth: 16},
		{Name: "L2", Capacity: 256 * kib, Bandwidth: 8},
	}
}

// Presets maps preset names to hierarchies.
var Presets = map[string]func() Hierarchy{
	"avx512":   AVX512,
	"avx2":     AVX2,
	"neon":     NEON,
	"fallback": Fallback,
}

// Lookup returns a preset given its name.
func Lookup(name string) (Hierarchy, error) {
	preset, ok := Presets[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("unknown memory hierarchy preset %q", name)
	}
	return preset(), nil
}

// Detect returns the preset matching the features of the host CPU.
func Detect() (string, Hierarchy) {
	switch {
	case cpu.X86.HasAVX512:
		return "avx512", AVX512()
	case cpu.X86.HasAVX2:
		return "avx2", AVX2()
	case cpu.ARM64.HasASIMD:
		return "neon", NEON()
	}
	return "fallback", Fallback()
}
