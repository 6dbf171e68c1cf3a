// Package escape implements escape analysis with scalar replacement of
// object fields.
//
// The analysis walks the circuit to a fixed point, modelling every
// allocation site as a VirtualObject and computing, per gate, the abstract
// store of field values that hold after it. Objects that never escape have
// their loads replaced by the tracked values and their stores and
// allocation removed; the Editor applies those conclusions to the circuit.
package escape

import (
	"io"
	"iter"
	"log"
	"slices"

	"github.com/zegl/trejit/compiler/circuit"
	"github.com/zegl/trejit/compiler/passes/visitor"
)

type Options struct {
	// Debug logs every visit, escape and phi synthesized.
	Debug bool

	// Logger receives debug output. Defaults to the standard logger.
	Logger *log.Logger
}

// EscapeAnalysis is the fixed-point pass. It never changes the existing
// circuit; the only gates it creates are the phis merging field values at
// control-flow joins.
type EscapeAnalysis struct {
	circuit *circuit.Circuit
	fields  FieldAllocator
	objects []*VirtualObject

	gateToState         map[circuit.GateRef]State
	gateToVirtualObject map[circuit.GateRef]ObjectRef
	replacement         map[circuit.GateRef]circuit.GateRef

	// phis synthesized per join and field, patched in place on later merges
	phis map[phiKey]circuit.GateRef

	revisits []circuit.GateRef

	debug  bool
	logger *log.Logger
}

type phiKey struct {
	join  circuit.GateRef
	field FieldID
}

func New(c *circuit.Circuit, opts Options) *EscapeAnalysis {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if !opts.Debug {
		logger = log.New(io.Discard, "", 0)
	}
	return &EscapeAnalysis{
		circuit:             c,
		gateToState:         make(map[circuit.GateRef]State),
		gateToVirtualObject: make(map[circuit.GateRef]ObjectRef),
		replacement:         make(map[circuit.GateRef]circuit.GateRef),
		phis:                make(map[phiKey]circuit.GateRef),
		debug:               opts.Debug,
		logger:              logger,
	}
}

// Run visits the circuit until no conclusion changes. limit bounds the
// number of gate visits; zero means unbounded.
func (ea *EscapeAnalysis) Run(limit int) error {
	return visitor.Run(ea.circuit, ea, limit)
}

func (ea *EscapeAnalysis) PendingRevisits() iter.Seq[circuit.GateRef] {
	pending := ea.revisits
	ea.revisits = nil
	return slices.Values(pending)
}

func (ea *EscapeAnalysis) revisit(gate circuit.GateRef) {
	ea.revisits = append(ea.revisits, gate)
}

func (ea *EscapeAnalysis) VisitGate(gate circuit.GateRef) bool {
	info := ea.beginVisit(gate)

	switch ea.circuit.Op(gate) {
	case circuit.OpCreateObjectWithBuffer:
		ea.visitCreateObjectWithBuffer(gate, info)
	case circuit.OpLoadProperty:
		ea.visitLoadProperty(gate, info)
	case circuit.OpLoadConstOffset:
		ea.visitLoadConstOffset(gate, info)
	case circuit.OpStoreProperty:
		ea.visitStoreProperty(gate, info)
	case circuit.OpObjectTypeCheck, circuit.OpConvert:
		ea.visitCheck(gate, info)
	case circuit.OpFinishAllocate:
		ea.visitFinishAllocate(gate, info)
	case circuit.OpFrameState, circuit.OpFrameValues, circuit.OpStateSplit:
		// deopt metadata keeps neither objects nor fields alive
	default:
		ea.visitDefault(gate)
	}

	changed := ea.commit(info)
	if ea.debug {
		ea.logger.Printf("visit %d %s changed=%v", gate, ea.circuit.Op(gate), changed)
	}
	return changed
}

// beginVisit derives the store flowing into gate: merged at a join, shared
// with the single side-effect predecessor otherwise.
func (ea *EscapeAnalysis) beginVisit(gate circuit.GateRef) *GateInfo {
	c := ea.circuit
	info := &GateInfo{
		gate:        gate,
		object:      NoObject,
		replacement: circuit.NullGate,
	}

	switch {
	case ea.isJoin(gate):
		info.state = ea.mergeState(gate)
	case c.DependCount(gate) == 1:
		dep := c.DependIn(gate, 0)
		if ea.isJoin(dep) {
			info.state = ea.mergeState(dep)
		} else {
			info.state = ea.gateToState[dep].Fork()
		}
	}
	return info
}

func (ea *EscapeAnalysis) isJoin(gate circuit.GateRef) bool {
	return ea.circuit.Op(gate) == circuit.OpDependSelector && ea.circuit.DependCount(gate) >= 2
}

// commit records the conclusions of info and reports whether the store or
// the virtual object of the gate changed.
func (ea *EscapeAnalysis) commit(info *GateInfo) bool {
	gate := info.gate
	changed := false

	if prev := ea.gateToState[gate]; !prev.Equal(info.state) {
		changed = true
	}
	ea.gateToState[gate] = info.state

	prevObj, ok := ea.gateToVirtualObject[gate]
	if !ok {
		prevObj = NoObject
	}
	if prevObj != info.object {
		changed = true
	}
	if info.object == NoObject {
		delete(ea.gateToVirtualObject, gate)
	} else {
		ea.gateToVirtualObject[gate] = info.object
	}

	if info.replacement == circuit.NullGate {
		delete(ea.replacement, gate)
	} else {
		ea.replacement[gate] = info.replacement
	}
	return changed
}

func (ea *EscapeAnalysis) object(ref ObjectRef) *VirtualObject {
	if ref == NoObject {
		return nil
	}
	return ea.objects[ref]
}

func (ea *EscapeAnalysis) objectRef(gate circuit.GateRef) ObjectRef {
	if ref, ok := ea.gateToVirtualObject[gate]; ok {
		return ref
	}
	return NoObject
}

// getOrCreateVirtualObject returns the object modelling allocation site
// gate, creating it on the first visit.
func (ea *EscapeAnalysis) getOrCreateVirtualObject(numFields int, gate circuit.GateRef) ObjectRef {
	if ref := ea.objectRef(gate); ref != NoObject {
		return ref
	}
	ref := ObjectRef(len(ea.objects))
	ea.objects = append(ea.objects, newVirtualObject(numFields, &ea.fields))
	if ea.debug {
		ea.logger.Printf("object %d: %d fields at gate %d", ref, numFields, gate)
	}
	return ref
}

// tryGetVirtualObjectAndAddUser returns the object gate stands for and
// records user as depending on it.
func (ea *EscapeAnalysis) tryGetVirtualObjectAndAddUser(gate, user circuit.GateRef) ObjectRef {
	ref := ea.objectRef(gate)
	if ref != NoObject {
		ea.objects[ref].AddUser(user)
	}
	return ref
}

// setEscaped escapes the object gate stands for, if any.
func (ea *EscapeAnalysis) setEscaped(gate circuit.GateRef) {
	if ref := ea.objectRef(gate); ref != NoObject {
		ea.escapeObject(ref)
	}
}

// escapeObject marks the object escaped. On the transition every user is
// scheduled for a revisit and forgotten; the revisits register again.
func (ea *EscapeAnalysis) escapeObject(ref ObjectRef) {
	obj := ea.objects[ref]
	if obj.IsEscaped() {
		return
	}
	obj.SetEscaped()
	for user := range obj.Users() {
		ea.revisit(user)
	}
	obj.ClearUsers()
	if ea.debug {
		ea.logger.Printf("object %d escaped", ref)
	}
}

func (ea *EscapeAnalysis) visitCreateObjectWithBuffer(gate circuit.GateRef, info *GateInfo) {
	c := ea.circuit
	size := c.ConstantValue(c.ValueIn(gate, 0))
	if size < 0 || size%FieldWidth != 0 {
		panic("escape: object size is not a multiple of the field width")
	}

	ref := ea.getOrCreateVirtualObject(int(size/FieldWidth), gate)
	obj := ea.objects[ref]
	obj.AddUser(gate)

	for i := 1; i+1 < c.ValueCount(gate); i += 2 {
		value := c.ValueIn(gate, i)
		field := InvalidField
		if offset := c.ValueIn(gate, i+1); c.IsConstant(offset) {
			field = obj.FieldAt(c.ConstantValue(offset))
		}
		if !obj.IsEscaped() && field != InvalidField {
			info.SetFieldValue(field, value)
			continue
		}
		ea.setEscaped(value)
		ea.escapeObject(ref)
	}

	info.SetVirtualObject(ref)
	if !obj.IsEscaped() {
		info.SetReplacement(c.DeadGate())
	}
}

func (ea *EscapeAnalysis) visitLoadProperty(gate circuit.GateRef, info *GateInfo) {
	c := ea.circuit
	offset := c.ValueIn(gate, 1)
	if !c.IsConstant(offset) {
		ea.tryGetVirtualObjectAndAddUser(c.ValueIn(gate, 0), gate)
		ea.setEscaped(c.ValueIn(gate, 0))
		return
	}
	ea.visitLoad(gate, info, c.ValueIn(gate, 0), c.ConstantValue(offset))
}

func (ea *EscapeAnalysis) visitLoadConstOffset(gate circuit.GateRef, info *GateInfo) {
	ea.visitLoad(gate, info, ea.circuit.ValueIn(gate, 0), ea.circuit.Immediate(gate))
}

// visitLoad replaces a load from a non-escaped object by the tracked field
// value. A field that is not tracked here forces the object into memory.
func (ea *EscapeAnalysis) visitLoad(gate circuit.GateRef, info *GateInfo, base circuit.GateRef, offset int64) {
	ref := ea.tryGetVirtualObjectAndAddUser(base, gate)
	obj := ea.object(ref)
	if obj == nil {
		ea.setEscaped(base)
		return
	}
	if obj.IsEscaped() {
		return
	}

	field := obj.FieldAt(offset)
	if field == InvalidField {
		ea.escapeObject(ref)
		return
	}

	value := info.GetFieldValue(field)
	if value == circuit.NullGate {
		ea.escapeObject(ref)
		return
	}
	info.SetReplacement(value)
	info.SetVirtualObject(ea.objectRef(value))
}

func (ea *EscapeAnalysis) visitStoreProperty(gate circuit.GateRef, info *GateInfo) {
	c := ea.circuit
	base, offset, value := c.ValueIn(gate, 0), c.ValueIn(gate, 1), c.ValueIn(gate, 2)

	ref := ea.tryGetVirtualObjectAndAddUser(base, gate)
	if obj := ea.object(ref); obj != nil && !obj.IsEscaped() && c.IsConstant(offset) {
		if field := obj.FieldAt(c.ConstantValue(offset)); field != InvalidField {
			info.SetFieldValue(field, value)
			info.SetReplacement(c.DeadGate())
			return
		}
	}

	ea.setEscaped(value)
	if ref != NoObject {
		ea.escapeObject(ref)
	} else {
		ea.setEscaped(base)
	}
}

// visitCheck lets the object identity flow through a type check or a
// conversion. Checks of an object that stays virtual have nothing left to
// check.
func (ea *EscapeAnalysis) visitCheck(gate circuit.GateRef, info *GateInfo) {
	ref := ea.tryGetVirtualObjectAndAddUser(ea.circuit.ValueIn(gate, 0), gate)
	info.SetVirtualObject(ref)
	if obj := ea.object(ref); obj != nil && !obj.IsEscaped() {
		info.SetReplacement(ea.circuit.DeadGate())
	}
}

func (ea *EscapeAnalysis) visitFinishAllocate(gate circuit.GateRef, info *GateInfo) {
	info.SetVirtualObject(ea.tryGetVirtualObjectAndAddUser(ea.circuit.ValueIn(gate, 0), gate))
}

// visitDefault assumes any gate not modelled above may leak its operands.
func (ea *EscapeAnalysis) visitDefault(gate circuit.GateRef) {
	c := ea.circuit
	for i := range c.ValueCount(gate) {
		ea.setEscaped(c.ValueIn(gate, i))
	}
}

// TryGetReplacement returns what gate was concluded to be replaced by: a
// value, or the dead gate when gate is eliminated outright.
func (ea *EscapeAnalysis) TryGetReplacement(gate circuit.GateRef) (circuit.GateRef, bool) {
	r, ok := ea.replacement[gate]
	return r, ok
}

// VirtualObjectOf returns the object gate stands for, or nil.
func (ea *EscapeAnalysis) VirtualObjectOf(gate circuit.GateRef) *VirtualObject {
	return ea.object(ea.objectRef(gate))
}

// StateOf returns the committed store after gate.
func (ea *EscapeAnalysis) StateOf(gate circuit.GateRef) State {
	return ea.gateToState[gate].Fork()
}

func (ea *EscapeAnalysis) IsEscaped(gate circuit.GateRef) bool {
	obj := ea.VirtualObjectOf(gate)
	return obj != nil && obj.IsEscaped()
}

// NeedsAllocationBracket reports whether the START_ALLOCATE/FINISH_ALLOCATE
// pair closed by finish must stay. It goes when the object is virtual, or
// when the bracket holds nothing but the allocation itself.
func (ea *EscapeAnalysis) NeedsAllocationBracket(finish circuit.GateRef) bool {
	c := ea.circuit
	alloc := c.ValueIn(finish, 0)
	if obj := ea.VirtualObjectOf(alloc); obj != nil && !obj.IsEscaped() {
		return false
	}
	if c.DependCount(finish) != 1 || c.DependIn(finish, 0) != alloc || c.DependCount(alloc) != 1 {
		return true
	}
	return c.Op(c.DependIn(alloc, 0)) != circuit.OpStartAllocate
}
