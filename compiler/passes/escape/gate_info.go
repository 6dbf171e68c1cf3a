package escape

import "github.com/zegl/trejit/compiler/circuit"

// GateInfo collects the conclusions of one visit. It is created by
// beginVisit with the store flowing into the gate and handed to commit
// when the visit is done.
type GateInfo struct {
	gate        circuit.GateRef
	state       State
	object      ObjectRef
	replacement circuit.GateRef
}

func (info *GateInfo) Gate() circuit.GateRef {
	return info.gate
}

func (info *GateInfo) GetFieldValue(field FieldID) circuit.GateRef {
	return info.state.Get(field)
}

func (info *GateInfo) SetFieldValue(field FieldID, value circuit.GateRef) {
	info.state.Set(field, value)
}

func (info *GateInfo) State() State {
	return info.state
}

func (info *GateInfo) SetVirtualObject(obj ObjectRef) {
	info.object = obj
}

func (info *GateInfo) VirtualObject() ObjectRef {
	return info.object
}

func (info *GateInfo) SetReplacement(value circuit.GateRef) {
	info.replacement = value
}

func (info *GateInfo) Replacement() circuit.GateRef {
	return info.replacement
}
