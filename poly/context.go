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

// Package poly converts dimensions to and from polyhedral sets to compute
// exact integer bounds and case splits of quasi-affine expressions.
//
// All queries go through a Context. A context owns the table of
// parameters created while converting dimensions and is only valid
// until it is released. A context cannot be used concurrently: use one
// context per goroutine.
package poly

import (
	"github.com/pkg/errors"
	"github.com/gx-org/tiler/dim"
)

var (
	// ErrReleased is returned when a context is used after being released.
	ErrReleased = errors.New("polyhedral context used after release")

	// ErrUnbounded is returned when an extremum depends on an unbounded parameter.
	ErrUnbounded = errors.New("unbounded parameter")

	// ErrEnumerationLimit is returned when an exact answer requires
	// enumerating more points than the context allows.
	ErrEnumerationLimit = errors.New("enumeration limit exceeded")
)

// DefaultEnumerationLimit is the maximum number of parameter points
// a context enumerates to simplify an expression.
const DefaultEnumerationLimit = 1 << 14

type (
	options struct {
		detectMinMax     bool
		enumerationLimit int
	}

	// Option configures a context.
	Option func(*options)

	// Context is a scoped oracle context.
	Context struct {
		opts     options
		released bool
		params   map[string]*Param
	}
)

// DetectMinMax configures the context to recognize minimum and maximum
// patterns instead of returning case splits.
func DetectMinMax() Option {
	return func(o *options) {
		o.detectMinMax = true
	}
}

// EnumerationLimit sets the maximum number of points enumerated by a context.
func EnumerationLimit(n int) Option {
	return func(o *options) {
		o.enumerationLimit = n
	}
}

// Acquire returns a new context. The context must be released once
// the batch of queries is done.
func Acquire(opts ...Option) *Context {
	ctx := &Context{
		opts:   options{enumerationLimit: DefaultEnumerationLimit},
		params: make(map[string]*Param),
	}
	for _, opt := range opts {
		opt(&ctx.opts)
	}
	return ctx
}

// With acquires a context, calls fn, and releases the context on all
// exit paths of fn.
func With(fn func(*Context) error, opts ...Option) error {
	ctx := Acquire(opts...)
	defer ctx.Release()
	return fn(ctx)
}

// Release the context. All sets, domains, and parameters created with
// the context are invalid after this call.
func (ctx *Context) Release() {
	ctx.released = true
	ctx.params = nil
}

func (ctx *Context) check() error {
	if ctx.released {
		return errors.WithStack(ErrReleased)
	}
	return nil
}

// param returns the parameter of a variable, creating it if needed.
// Variables are identified by name: two different ranges for the same
// name is an error.
func (ctx *Context) param(v *dim.Variable) (*Param, error) {
	p, ok := ctx.params[v.Name]
	if !ok {
		p = &Param{Name: v.Name, Range: v.Range}
		ctx.params[v.Name] = p
		return p, nil
	}
	switch {
	case v.Range == nil:
	case p.Range == nil:
		p.Range = v.Range
	case *p.Range != *v.Range:
		return nil, errors.Errorf("variable %s used with ranges [%d, %d] and [%d, %d]", v.Name, p.Range.Lo, p.Range.Hi, v.Range.Lo, v.Range.Hi)
	}
	return p, nil
}

// NumParams returns the number of parameters in the symbol table of the context.
func (ctx *Context) NumParams() int {
	return len(ctx.params)
}
