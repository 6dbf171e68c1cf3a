package escape

import "math"

// FieldID identifies one field slot of one virtual object. IDs are compared
// by identity only, never by what the slot holds.
type FieldID uint32

// InvalidField is returned when an offset has no field.
const InvalidField FieldID = 0

// FieldAllocator hands out field IDs for one analysis. IDs are never reused.
type FieldAllocator struct {
	last FieldID
}

func (a *FieldAllocator) Next() FieldID {
	if a.last == math.MaxUint32 {
		panic("escape: field ids exhausted")
	}
	a.last++
	return a.last
}

func (a *FieldAllocator) Invalid() FieldID {
	return InvalidField
}
