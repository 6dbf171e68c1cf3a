package escape

import (
	"maps"
	"slices"

	"github.com/zegl/trejit/compiler/circuit"
)

// State is the abstract store after a gate: the known value of each tracked
// field. Fields that are absent are unknown.
//
// States are values. A State obtained from Fork shares its map with the
// original until the first Set, so committed states are never mutated.
type State struct {
	fields map[FieldID]circuit.GateRef
	shared bool
}

// Fork returns a copy-on-write view of s.
func (s State) Fork() State {
	return State{fields: s.fields, shared: true}
}

// Get returns the known value of field, or circuit.NullGate.
func (s State) Get(field FieldID) circuit.GateRef {
	if v, ok := s.fields[field]; ok {
		return v
	}
	return circuit.NullGate
}

// Set records value for field. Setting circuit.NullGate forgets the field.
func (s *State) Set(field FieldID, value circuit.GateRef) {
	if s.Get(field) == value {
		return
	}
	if s.shared || s.fields == nil {
		s.fields = maps.Clone(s.fields)
		if s.fields == nil {
			s.fields = make(map[FieldID]circuit.GateRef)
		}
		s.shared = false
	}
	if value == circuit.NullGate {
		delete(s.fields, field)
		return
	}
	s.fields[field] = value
}

func (s State) Len() int {
	return len(s.fields)
}

func (s State) IsEmpty() bool {
	return len(s.fields) == 0
}

// Fields returns the tracked fields in ascending order.
func (s State) Fields() []FieldID {
	return slices.Sorted(maps.Keys(s.fields))
}

func (s State) Equal(other State) bool {
	return maps.Equal(s.fields, other.fields)
}
