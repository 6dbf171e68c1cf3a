package circuit

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

// Builder appends gates to a circuit while tracking the current control
// (state) and side-effect (depend) gates, so straight-line code can be
// written one instruction at a time.
type Builder struct {
	c      *Circuit
	state  GateRef
	depend GateRef
}

// NewBuilder creates the root and entry gates of c and positions the
// builder right after them.
func NewBuilder(c *Circuit) *Builder {
	root := c.NewGate(OpCircuitRoot, types.Void, nil, nil, nil)
	return &Builder{
		c:      c,
		state:  c.NewGate(OpStateEntry, types.Void, []GateRef{root}, nil, nil),
		depend: c.NewGate(OpDependEntry, types.Void, []GateRef{root}, nil, nil),
	}
}

func (b *Builder) Circuit() *Circuit { return b.c }

func (b *Builder) State() GateRef  { return b.state }
func (b *Builder) Depend() GateRef { return b.depend }

// SetPosition moves the builder to another control/side-effect point.
func (b *Builder) SetPosition(state, depend GateRef) {
	b.state = state
	b.depend = depend
}

// effect appends a gate that sits on the depend chain.
func (b *Builder) effect(op Opcode, typ types.Type, imm *constant.Int, values ...GateRef) GateRef {
	g := b.c.NewGateImm(op, typ, imm, nil, []GateRef{b.depend}, values)
	b.depend = g
	return g
}

func (b *Builder) Int64(v int64) GateRef {
	return b.c.NewConstant(types.I64, v)
}

func (b *Builder) Arg(idx int64) GateRef {
	return b.c.NewGateImm(OpArg, Ref, constant.NewInt(types.I64, idx), nil, nil, nil)
}

func (b *Builder) StartAllocate() GateRef {
	return b.effect(OpStartAllocate, types.Void, nil)
}

func (b *Builder) FinishAllocate(obj GateRef) GateRef {
	return b.effect(OpFinishAllocate, Ref, nil, obj)
}

// CreateObjectWithBuffer allocates an object of size bytes. fields holds
// alternating value and byte-offset gates.
func (b *Builder) CreateObjectWithBuffer(size int64, fields ...GateRef) GateRef {
	values := append([]GateRef{b.Int64(size)}, fields...)
	return b.effect(OpCreateObjectWithBuffer, Ref, nil, values...)
}

func (b *Builder) LoadProperty(obj, offset GateRef) GateRef {
	return b.effect(OpLoadProperty, types.I64, nil, obj, offset)
}

func (b *Builder) LoadConstOffset(obj GateRef, offset int64) GateRef {
	return b.effect(OpLoadConstOffset, types.I64, constant.NewInt(types.I64, offset), obj)
}

func (b *Builder) StoreProperty(obj, offset, value GateRef) GateRef {
	return b.effect(OpStoreProperty, types.Void, nil, obj, offset, value)
}

func (b *Builder) ObjectTypeCheck(obj GateRef) GateRef {
	return b.effect(OpObjectTypeCheck, types.Void, nil, obj)
}

func (b *Builder) Convert(value GateRef) GateRef {
	return b.c.NewGate(OpConvert, b.c.MachineType(value), nil, nil, []GateRef{value})
}

func (b *Builder) Call(args ...GateRef) GateRef {
	return b.effect(OpCall, types.I64, nil, args...)
}

func (b *Builder) FrameState(values ...GateRef) GateRef {
	return b.c.NewGate(OpFrameState, types.Void, nil, nil, values)
}

func (b *Builder) StateSplit(frameState GateRef) GateRef {
	return b.effect(OpStateSplit, types.Void, nil, frameState)
}

// Branch ends the current block on cond and returns the two successors.
// The depend chain is shared by both arms.
func (b *Builder) Branch(cond GateRef) (ifTrue, ifFalse GateRef) {
	br := b.c.NewGate(OpIfBranch, types.Void, []GateRef{b.state}, nil, []GateRef{cond})
	ifTrue = b.c.NewGate(OpIfTrue, types.Void, []GateRef{br}, nil, nil)
	ifFalse = b.c.NewGate(OpIfFalse, types.Void, []GateRef{br}, nil, nil)
	return ifTrue, ifFalse
}

// Merge joins the given control/side-effect pairs and positions the builder
// after the join. It returns the MERGE and its DEPEND_SELECTOR.
func (b *Builder) Merge(states, depends []GateRef) (merge, selector GateRef) {
	if len(states) != len(depends) {
		panic("circuit: Merge: state and depend counts differ")
	}
	merge = b.c.NewGate(OpMerge, types.Void, states, nil, nil)
	selector = b.c.NewGate(OpDependSelector, types.Void, []GateRef{merge}, depends, nil)
	b.SetPosition(merge, selector)
	return merge, selector
}

// LoopBegin opens a loop at the current position. The back edge is wired by
// LoopEnd.
func (b *Builder) LoopBegin() (loop, selector GateRef) {
	loop = b.c.NewGate(OpLoopBegin, types.Void, []GateRef{b.state, NullGate}, nil, nil)
	selector = b.c.NewGate(OpDependSelector, types.Void, []GateRef{loop}, []GateRef{b.depend, NullGate}, nil)
	b.SetPosition(loop, selector)
	return loop, selector
}

// LoopEnd closes loop with a back edge from the current position.
func (b *Builder) LoopEnd(loop, selector GateRef) GateRef {
	back := b.c.NewGate(OpLoopBack, types.Void, []GateRef{b.state}, nil, nil)
	b.c.ReplaceStateIn(loop, 1, back)
	b.c.ReplaceDependIn(selector, 1, b.depend)
	return back
}

func (b *Builder) ValueSelector(control GateRef, values ...GateRef) GateRef {
	return b.c.NewGate(OpValueSelector, b.c.MachineType(values[0]), []GateRef{control}, nil, values)
}

func (b *Builder) Return(value GateRef) GateRef {
	return b.c.NewGate(OpReturn, types.Void, []GateRef{b.state}, []GateRef{b.depend}, []GateRef{value})
}
