// Package circuit is the sea-of-nodes instruction graph the optimizing passes
// work on. Every gate has state (control), depend (side-effect) and value
// inputs, in that order.
package circuit

import (
	"fmt"
	"iter"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

// GateRef is a handle into the circuit's gate arena.
type GateRef int32

// NullGate is the absence of a gate.
const NullGate GateRef = -1

// EdgeKind tells which input group an edge belongs to.
type EdgeKind uint8

const (
	StateEdge EdgeKind = iota
	DependEdge
	ValueEdge
)

// Use is one input edge seen from its source: input Index of User.
type Use struct {
	User  GateRef
	Index int
}

type gate struct {
	op        Opcode
	typ       types.Type
	imm       *constant.Int
	name      string
	ins       []GateRef
	numState  int
	numDepend int
	uses      []Use
	deleted   bool
}

// Ref is the machine type of object references.
var Ref types.Type = types.NewPointer(types.I8)

type Circuit struct {
	gates []*gate
	dead  GateRef
}

// New returns an empty circuit holding only the dead gate.
func New() *Circuit {
	c := &Circuit{}
	c.dead = c.NewGate(OpDead, types.Void, nil, nil, nil)
	return c
}

// DeadGate is the sentinel that stands in for removed values.
func (c *Circuit) DeadGate() GateRef {
	return c.dead
}

// NewGate appends a gate. Inputs may be NullGate and wired later.
func (c *Circuit) NewGate(op Opcode, typ types.Type, state, depend, value []GateRef) GateRef {
	return c.NewGateImm(op, typ, nil, state, depend, value)
}

// NewGateImm is NewGate for gates carrying an immediate.
func (c *Circuit) NewGateImm(op Opcode, typ types.Type, imm *constant.Int, state, depend, value []GateRef) GateRef {
	ref := GateRef(len(c.gates))
	g := &gate{
		op:        op,
		typ:       typ,
		imm:       imm,
		numState:  len(state),
		numDepend: len(depend),
		ins:       make([]GateRef, 0, len(state)+len(depend)+len(value)),
	}
	g.ins = append(g.ins, state...)
	g.ins = append(g.ins, depend...)
	g.ins = append(g.ins, value...)
	c.gates = append(c.gates, g)

	for i, in := range g.ins {
		if in != NullGate {
			c.get(in).uses = append(c.get(in).uses, Use{User: ref, Index: i})
		}
	}
	return ref
}

// NewConstant returns a fresh CONSTANT gate of the given integer type.
func (c *Circuit) NewConstant(typ *types.IntType, v int64) GateRef {
	return c.NewGateImm(OpConstant, typ, constant.NewInt(typ, v), nil, nil, nil)
}

func (c *Circuit) get(ref GateRef) *gate {
	if ref < 0 || int(ref) >= len(c.gates) {
		panic(fmt.Sprintf("circuit: no such gate: %d", ref))
	}
	return c.gates[ref]
}

// Len is the number of gates ever created, deleted ones included.
func (c *Circuit) Len() int {
	return len(c.gates)
}

// Gates yields the live gates in id order.
func (c *Circuit) Gates() iter.Seq[GateRef] {
	return func(yield func(GateRef) bool) {
		for i, g := range c.gates {
			if g.deleted {
				continue
			}
			if !yield(GateRef(i)) {
				return
			}
		}
	}
}

func (c *Circuit) Op(ref GateRef) Opcode {
	return c.get(ref).op
}

func (c *Circuit) MachineType(ref GateRef) types.Type {
	return c.get(ref).typ
}

func (c *Circuit) Name(ref GateRef) string {
	return c.get(ref).name
}

func (c *Circuit) SetName(ref GateRef, name string) {
	c.get(ref).name = name
}

func (c *Circuit) IsDeleted(ref GateRef) bool {
	return c.get(ref).deleted
}

func (c *Circuit) StateCount(ref GateRef) int {
	return c.get(ref).numState
}

func (c *Circuit) DependCount(ref GateRef) int {
	return c.get(ref).numDepend
}

func (c *Circuit) ValueCount(ref GateRef) int {
	g := c.get(ref)
	return len(g.ins) - g.numState - g.numDepend
}

func (c *Circuit) StateIn(ref GateRef, idx int) GateRef {
	g := c.get(ref)
	if idx < 0 || idx >= g.numState {
		panic(fmt.Sprintf("circuit: %s %d has no state input %d", g.op, ref, idx))
	}
	return g.ins[idx]
}

func (c *Circuit) DependIn(ref GateRef, idx int) GateRef {
	g := c.get(ref)
	if idx < 0 || idx >= g.numDepend {
		panic(fmt.Sprintf("circuit: %s %d has no depend input %d", g.op, ref, idx))
	}
	return g.ins[g.numState+idx]
}

func (c *Circuit) ValueIn(ref GateRef, idx int) GateRef {
	g := c.get(ref)
	if idx < 0 || idx >= len(g.ins)-g.numState-g.numDepend {
		panic(fmt.Sprintf("circuit: %s %d has no value input %d", g.op, ref, idx))
	}
	return g.ins[g.numState+g.numDepend+idx]
}

// Ins returns a copy of all inputs of ref.
func (c *Circuit) Ins(ref GateRef) []GateRef {
	return append([]GateRef(nil), c.get(ref).ins...)
}

// Uses returns a copy of the edges that read ref.
func (c *Circuit) Uses(ref GateRef) []Use {
	return append([]Use(nil), c.get(ref).uses...)
}

func (c *Circuit) EdgeKind(u Use) EdgeKind {
	g := c.get(u.User)
	switch {
	case u.Index < g.numState:
		return StateEdge
	case u.Index < g.numState+g.numDepend:
		return DependEdge
	default:
		return ValueEdge
	}
}

func (c *Circuit) IsConstant(ref GateRef) bool {
	return c.get(ref).op == OpConstant
}

// ConstantValue reads the integer held by a CONSTANT gate.
func (c *Circuit) ConstantValue(ref GateRef) int64 {
	g := c.get(ref)
	if g.op != OpConstant {
		panic(fmt.Sprintf("circuit: %s %d is not a constant", g.op, ref))
	}
	return c.Immediate(ref)
}

// Immediate reads the integer immediate of ref.
func (c *Circuit) Immediate(ref GateRef) int64 {
	g := c.get(ref)
	if g.imm == nil {
		panic(fmt.Sprintf("circuit: %s %d has no immediate", g.op, ref))
	}
	if !g.imm.X.IsInt64() {
		panic(fmt.Sprintf("circuit: immediate of %d overflows int64: %s", ref, g.imm.Ident()))
	}
	return g.imm.X.Int64()
}

func (c *Circuit) IsLoopHead(ref GateRef) bool {
	return c.get(ref).op == OpLoopBegin
}
