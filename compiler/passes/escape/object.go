package escape

import (
	"fmt"
	"iter"

	"golang.org/x/tools/container/intsets"

	"github.com/zegl/trejit/compiler/circuit"
)

// FieldWidth is the size in bytes of one object field.
const FieldWidth = 8

// ObjectRef is a handle into the analysis' virtual object arena.
type ObjectRef int32

// NoObject is the absence of a virtual object.
const NoObject ObjectRef = -1

// VirtualObject models the fields of one allocation site without
// materializing it. Once escaped, every field of the object lives in real
// memory; there is no per-field escape.
type VirtualObject struct {
	fields  []FieldID
	escaped bool

	// gates whose conclusions were derived from this object
	users intsets.Sparse
}

func newVirtualObject(numFields int, alloc *FieldAllocator) *VirtualObject {
	obj := &VirtualObject{fields: make([]FieldID, numFields)}
	for i := range obj.fields {
		obj.fields[i] = alloc.Next()
	}
	return obj
}

func (o *VirtualObject) NumFields() int {
	return len(o.fields)
}

// FieldAt maps a byte offset to its field, or InvalidField when the offset
// lies outside the object.
func (o *VirtualObject) FieldAt(offset int64) FieldID {
	if offset%FieldWidth != 0 {
		panic(fmt.Sprintf("escape: field offset %d is not a multiple of %d", offset, FieldWidth))
	}
	idx := offset / FieldWidth
	if idx < 0 || idx >= int64(len(o.fields)) {
		return InvalidField
	}
	return o.fields[idx]
}

func (o *VirtualObject) IsEscaped() bool {
	return o.escaped
}

// SetEscaped is idempotent. Callers that react to the transition must look
// at IsEscaped first.
func (o *VirtualObject) SetEscaped() {
	o.escaped = true
}

func (o *VirtualObject) AddUser(gate circuit.GateRef) {
	o.users.Insert(int(gate))
}

func (o *VirtualObject) Users() iter.Seq[circuit.GateRef] {
	return func(yield func(circuit.GateRef) bool) {
		for _, u := range o.users.AppendTo(nil) {
			if !yield(circuit.GateRef(u)) {
				return
			}
		}
	}
}

func (o *VirtualObject) ClearUsers() {
	o.users.Clear()
}
