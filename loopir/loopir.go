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

// Package loopir is the lowered loop/op tree consumed by the tiler.
//
// A function is a list of nodes. Compute nodes iterate over a rectangular
// domain of named loops and access their operands and result through
// affine maps from the loop indices to the tensor coordinates.
// The set of nodes is closed: every consumer of the tree implements a
// Visitor with one method per node kind.
package loopir

import (
	"fmt"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/tiler/affine"
	gxfmt "github.com/gx-org/tiler/base/fmt"
	"github.com/gx-org/tiler/base/ordered"
	"github.com/gx-org/tiler/dim"
)

type (
	// OpID identifies a compute node in a function.
	OpID string

	// Kind of a node.
	Kind int

	// Node in the loop tree.
	Node interface {
		// node marks a structure as a node structure.
		// It prevents external implementations of the interface.
		node()

		// Accept calls the method of the visitor matching the kind of the node.
		Accept(Visitor) error
	}

	// ComputeNode is a node computing a tensor over an iteration domain.
	ComputeNode interface {
		Node

		// ID of the node in the function.
		ID() OpID

		// Kind of the node.
		Kind() Kind

		// Loops returns the names of the loops of the iteration domain.
		Loops() []string

		// Extents returns the extent of each loop.
		Extents() []dim.Dimension

		// Operands returns the tensors read by the node.
		Operands() []Access

		// Result returns the tensor written by the node.
		Result() Access

		// Relation returns the access relation of the node.
		Relation() *affine.Relation

		// OperandOf returns the index of the first operand computed by
		// another node or -1 if there is none.
		OperandOf(OpID) int

		String() string
	}

	// Visitor dispatches on the kind of a node.
	Visitor interface {
		VisitElementwise(*Elementwise) error
		VisitContraction(*Contraction) error
		VisitPack(*Pack) error
		VisitUnpack(*Unpack) error
		VisitLoop(*Loop) error
	}

	// Tensor is a value of a function.
	Tensor struct {
		Name  string
		DType dtype.DataType
		Shape dim.RankedShape
		// Producer is the node computing the tensor.
		// It is empty for function arguments.
		Producer OpID
	}

	// Access of a tensor by a compute node.
	// Map goes from the loop indices of the node to the coordinates of the tensor.
	Access struct {
		Tensor *Tensor
		Map    *affine.Map
	}

	computeNode struct {
		id       OpID
		loops    []string
		extents  []dim.Dimension
		operands []Access
		result   Access
	}

	// Elementwise applies a scalar function to the elements of its operands.
	Elementwise struct {
		computeNode
		Fn string
	}

	// Contraction reduces some loops of its domain.
	// Matrix multiplications and reductions are contractions.
	Contraction struct {
		computeNode
		// Reduced lists the indices of the loops reduced by the contraction.
		Reduced []int
	}

	// Pack copies a tensor into a blocked layout:
	// an axis of length E becomes two axes of lengths E/B and B.
	Pack struct {
		computeNode
		Blocks []int64
	}

	// Unpack is the inverse of Pack.
	Unpack struct {
		computeNode
		Blocks []int64
	}

	// Loop is a loop already present in the tree.
	Loop struct {
		Name   string
		Extent dim.Dimension
		Body   []Node
	}

	// Func is a function of the loop tree.
	Func struct {
		Name    string
		Args    []*Tensor
		Body    []Node
		Results []*Tensor

		ops *ordered.Map[OpID, ComputeNode]
	}
)

const (
	// ElementwiseKind is the kind of Elementwise nodes.
	ElementwiseKind Kind = iota
	// ContractionKind is the kind of Contraction nodes.
	ContractionKind
	// PackKind is the kind of Pack nodes.
	PackKind
	// UnpackKind is the kind of Unpack nodes.
	UnpackKind
	// LoopKind is the kind of Loop nodes.
	LoopKind
)

var kindNames = map[Kind]string{
	ElementwiseKind: "elementwise",
	ContractionKind: "contraction",
	PackKind:        "pack",
	UnpackKind:      "unpack",
	LoopKind:        "loop",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	_ ComputeNode = (*Elementwise)(nil)
	_ ComputeNode = (*Contraction)(nil)
	_ ComputeNode = (*Pack)(nil)
	_ ComputeNode = (*Unpack)(nil)
	_ Node        = (*Loop)(nil)
)

func (n *computeNode) node() {}

// ID of the node.
func (n *computeNode) ID() OpID {
	return n.id
}

// Loops returns the names of the loops of the node.
func (n *computeNode) Loops() []string {
	return n.loops
}

// Extents returns the extent of each loop.
func (n *computeNode) Extents() []dim.Dimension {
	return n.extents
}

// Operands returns the accesses to the tensors read by the node.
func (n *computeNode) Operands() []Access {
	return n.operands
}

// Result returns the access to the tensor written by the node.
func (n *computeNode) Result() Access {
	return n.result
}

// Relation returns the access relation of the node.
func (n *computeNode) Relation() *affine.Relation {
	r := &affine.Relation{Result: n.result.Map}
	for _, op := range n.operands {
		r.Operands = append(r.Operands, op.Map)
	}
	return r
}

// OperandOf returns the index of the operand produced by another node
// or -1 if the node does not read any tensor of the other node.
func (n *computeNode) OperandOf(id OpID) int {
	for i, op := range n.operands {
		if op.Tensor.Producer == id {
			return i
		}
	}
	return -1
}

func (n *computeNode) string(kind string) string {
	ops := make([]string, len(n.operands))
	for i, op := range n.operands {
		ops[i] = op.Tensor.Name
	}
	return fmt.Sprintf("%s = %s(%s) over %s", n.result.Tensor.Name, kind, strings.Join(ops, ", "), n.domainString())
}

func (n *computeNode) domainString() string {
	ss := make([]string, len(n.loops))
	for i, l := range n.loops {
		ss[i] = fmt.Sprintf("%s<%s", l, n.extents[i])
	}
	return "[" + strings.Join(ss, ", ") + "]"
}

// Accept calls VisitElementwise.
func (n *Elementwise) Accept(v Visitor) error {
	return v.VisitElementwise(n)
}

// Kind returns ElementwiseKind.
func (*Elementwise) Kind() Kind {
	return ElementwiseKind
}

func (n *Elementwise) String() string {
	return n.string(n.Fn)
}

// Accept calls VisitContraction.
func (n *Contraction) Accept(v Visitor) error {
	return v.VisitContraction(n)
}

// Kind returns ContractionKind.
func (*Contraction) Kind() Kind {
	return ContractionKind
}

func (n *Contraction) String() string {
	reduced := make([]string, len(n.Reduced))
	for i, loop := range n.Reduced {
		reduced[i] = n.loops[loop]
	}
	return fmt.Sprintf("%s reducing [%s]", n.string("contract"), strings.Join(reduced, ", "))
}

// Accept calls VisitPack.
func (n *Pack) Accept(v Visitor) error {
	return v.VisitPack(n)
}

// Kind returns PackKind.
func (*Pack) Kind() Kind {
	return PackKind
}

func (n *Pack) String() string {
	return n.string(fmt.Sprintf("pack%v", n.Blocks))
}

// Accept calls VisitUnpack.
func (n *Unpack) Accept(v Visitor) error {
	return v.VisitUnpack(n)
}

// Kind returns UnpackKind.
func (*Unpack) Kind() Kind {
	return UnpackKind
}

func (n *Unpack) String() string {
	return n.string(fmt.Sprintf("unpack%v", n.Blocks))
}

func (*Loop) node() {}

// Accept calls VisitLoop.
func (n *Loop) Accept(v Visitor) error {
	return v.VisitLoop(n)
}

// Walk calls Accept on all the nodes in order.
// It stops at the first error.
func Walk(nodes []Node, v Visitor) error {
	for _, n := range nodes {
		if err := n.Accept(v); err != nil {
			return err
		}
	}
	return nil
}

// Op returns a compute node given its ID.
func (f *Func) Op(id OpID) (ComputeNode, bool) {
	return f.ops.Load(id)
}

// Ops returns the compute nodes of the function in program order.
func (f *Func) Ops() []ComputeNode {
	ops := make([]ComputeNode, 0, f.ops.Size())
	for op := range f.ops.Values() {
		ops = append(ops, op)
	}
	return ops
}

// Consumers returns the nodes reading the result of a node.
func (f *Func) Consumers(id OpID) []ComputeNode {
	var consumers []ComputeNode
	for op := range f.ops.Values() {
		for _, acc := range op.Operands() {
			if acc.Tensor.Producer == id {
				consumers = append(consumers, op)
				break
			}
		}
	}
	return consumers
}

// DependsOn returns true if the node consumer reads a tensor computed by producer.
func (f *Func) DependsOn(consumer, producer OpID) bool {
	op, ok := f.Op(consumer)
	if !ok {
		return false
	}
	for _, acc := range op.Operands() {
		if acc.Tensor.Producer == producer {
			return true
		}
	}
	return false
}

func (f *Func) String() string {
	var sb strings.Builder
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		args[i] = fmt.Sprintf("%s %s%v", arg.Name, arg.Shape, arg.DType)
	}
	fmt.Fprintf(&sb, "func %s(%s) {\n", f.Name, strings.Join(args, ", "))
	writeNodes(&sb, f.Body, 1)
	sb.WriteString("}\n")
	return sb.String()
}

func writeNodes(sb *strings.Builder, nodes []Node, depth int) {
	indent := gxfmt.Indent(depth)
	for _, n := range nodes {
		switch nT := n.(type) {
		case *Loop:
			fmt.Fprintf(sb, "%sloop %s<%s {\n", indent, nT.Name, nT.Extent)
			writeNodes(sb, nT.Body, depth+1)
			fmt.Fprintf(sb, "%s}\n", indent)
		case fmt.Stringer:
			fmt.Fprintf(sb, "%s%s\n", indent, nT)
		}
	}
}
