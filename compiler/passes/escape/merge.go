package escape

import (
	"slices"

	"github.com/zegl/trejit/compiler/circuit"
)

// mergeState joins the stores of all side-effect predecessors of join. A
// field survives the join only if every predecessor knows it; differing
// values are merged by a phi on the join's control gate.
//
// At a loop header a field known on a single predecessor is taken as is.
// The back edge has usually not been visited yet; the revisit once it is
// corrects the speculation.
func (ea *EscapeAnalysis) mergeState(join circuit.GateRef) State {
	c := ea.circuit
	n := c.DependCount(join)
	control := c.StateIn(join, 0)
	isLoop := c.IsLoopHead(control)

	preds := make([]State, n)
	for i := range preds {
		preds[i] = ea.gateToState[c.DependIn(join, i)]
	}

	var merged State
	values := make([]circuit.GateRef, n)
	for _, field := range preds[0].Fields() {
		alive := 0
		uniform := true
		first := circuit.NullGate
		for i, s := range preds {
			values[i] = s.Get(field)
			if values[i] == circuit.NullGate {
				continue
			}
			alive++
			if first == circuit.NullGate {
				first = values[i]
			} else if values[i] != first {
				uniform = false
			}
		}

		switch {
		case isLoop && alive == 1:
			merged.Set(field, first)
		case alive < n:
			// known on some paths only
		case uniform:
			merged.Set(field, first)
		default:
			merged.Set(field, ea.mergeValues(join, control, field, values))
		}
	}
	return merged
}

// mergeValues returns the phi selecting values at join, reusing and
// patching the one built for field by an earlier merge.
func (ea *EscapeAnalysis) mergeValues(join, control circuit.GateRef, field FieldID, values []circuit.GateRef) circuit.GateRef {
	c := ea.circuit
	key := phiKey{join: join, field: field}

	if phi, ok := ea.phis[key]; ok && !c.IsDeleted(phi) {
		patched := false
		for i, v := range values {
			if c.ValueIn(phi, i) != v {
				c.ReplaceValueIn(phi, i, v)
				patched = true
			}
		}
		if patched {
			ea.revisit(phi)
			if ea.debug {
				ea.logger.Printf("phi %d at join %d patched for field %d", phi, join, field)
			}
		}
		return phi
	}

	phi := c.NewGate(circuit.OpValueSelector, c.MachineType(values[0]),
		[]circuit.GateRef{control}, nil, slices.Clone(values))
	ea.phis[key] = phi
	ea.revisit(phi)
	if ea.debug {
		ea.logger.Printf("phi %d at join %d created for field %d", phi, join, field)
	}
	return phi
}
