package escape

import (
	"github.com/zegl/trejit/compiler/circuit"
	"github.com/zegl/trejit/compiler/passes/visitor"
)

// Editor rewrites the circuit from the final conclusions of an
// EscapeAnalysis. It must run after the analysis reached its fixed point.
type Editor struct {
	circuit  *circuit.Circuit
	analysis *EscapeAnalysis

	// START_ALLOCATE gates whose bracket goes, with their FINISH_ALLOCATE
	brackets map[circuit.GateRef]circuit.GateRef

	// removed FINISH_ALLOCATE gates and the allocation they stood for
	forward map[circuit.GateRef]circuit.GateRef
}

func NewEditor(c *circuit.Circuit, ea *EscapeAnalysis) *Editor {
	return &Editor{
		circuit:  c,
		analysis: ea,
		brackets: make(map[circuit.GateRef]circuit.GateRef),
		forward:  make(map[circuit.GateRef]circuit.GateRef),
	}
}

// Run applies the rewrite. Bracket decisions are taken up front since the
// edits below change what the brackets enclose.
func (e *Editor) Run() {
	for gate := range e.circuit.Gates() {
		if e.circuit.Op(gate) != circuit.OpStartAllocate {
			continue
		}
		finish := FindFinishAllocate(e.circuit, gate)
		if finish != circuit.NullGate && !e.analysis.NeedsAllocationBracket(finish) {
			e.brackets[gate] = finish
		}
	}
	visitor.Walk(e.circuit, e)
}

func (e *Editor) VisitGate(gate circuit.GateRef) bool {
	c := e.circuit

	if finish, ok := e.brackets[gate]; ok {
		alloc := c.ValueIn(finish, 0)
		e.forward[finish] = alloc
		e.replaceGate(finish, alloc)
		e.replaceGate(gate, circuit.NullGate)
		return true
	}

	r, ok := e.analysis.TryGetReplacement(gate)
	if !ok {
		return false
	}
	e.replaceGate(gate, e.resolve(r))
	return true
}

// resolve follows replacements of replacements and removed brackets, which
// may be gone by the time their users are rewritten.
func (e *Editor) resolve(value circuit.GateRef) circuit.GateRef {
	dead := e.circuit.DeadGate()
	for value != dead {
		if next, ok := e.forward[value]; ok {
			value = next
			continue
		}
		next, ok := e.analysis.TryGetReplacement(value)
		if !ok {
			break
		}
		value = next
	}
	return value
}

// replaceGate splices gate out of the control and side-effect chains and
// hands its value uses to value.
func (e *Editor) replaceGate(gate, value circuit.GateRef) {
	c := e.circuit
	state, depend := circuit.NullGate, circuit.NullGate
	if c.StateCount(gate) > 0 {
		state = c.StateIn(gate, 0)
	}
	if c.DependCount(gate) > 0 {
		depend = c.DependIn(gate, 0)
	}
	c.ReplaceGate(gate, state, depend, value)
}

// FindFinishAllocate follows the side-effect chain from start to the
// FINISH_ALLOCATE closing its bracket.
func FindFinishAllocate(c *circuit.Circuit, start circuit.GateRef) circuit.GateRef {
	cur := start
	for range c.Len() {
		next := circuit.NullGate
		for _, u := range c.Uses(cur) {
			if c.EdgeKind(u) == circuit.DependEdge {
				next = u.User
				break
			}
		}
		if next == circuit.NullGate {
			return circuit.NullGate
		}
		if c.Op(next) == circuit.OpFinishAllocate {
			return next
		}
		cur = next
	}
	return circuit.NullGate
}

// Optimize runs the analysis to its fixed point and applies the rewrite.
func Optimize(c *circuit.Circuit, limit int, opts Options) (*EscapeAnalysis, error) {
	ea := New(c, opts)
	if err := ea.Run(limit); err != nil {
		return nil, err
	}
	NewEditor(c, ea).Run()
	return ea, nil
}
