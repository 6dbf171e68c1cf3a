package circuit

import "fmt"

// Opcode identifies what a gate does.
type Opcode uint8

const (
	OpDead Opcode = iota
	OpCircuitRoot
	OpStateEntry
	OpDependEntry
	OpReturn
	OpIfBranch
	OpIfTrue
	OpIfFalse
	OpMerge
	OpLoopBegin
	OpLoopBack
	OpDependSelector
	OpValueSelector
	OpConstant
	OpArg
	OpCall
	OpCreateObjectWithBuffer
	OpLoadProperty
	OpLoadConstOffset
	OpStoreProperty
	OpObjectTypeCheck
	OpConvert
	OpStartAllocate
	OpFinishAllocate
	OpFrameState
	OpFrameValues
	OpStateSplit

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpDead:                   "DEAD",
	OpCircuitRoot:            "CIRCUIT_ROOT",
	OpStateEntry:             "STATE_ENTRY",
	OpDependEntry:            "DEPEND_ENTRY",
	OpReturn:                 "RETURN",
	OpIfBranch:               "IF_BRANCH",
	OpIfTrue:                 "IF_TRUE",
	OpIfFalse:                "IF_FALSE",
	OpMerge:                  "MERGE",
	OpLoopBegin:              "LOOP_BEGIN",
	OpLoopBack:               "LOOP_BACK",
	OpDependSelector:         "DEPEND_SELECTOR",
	OpValueSelector:          "VALUE_SELECTOR",
	OpConstant:               "CONSTANT",
	OpArg:                    "ARG",
	OpCall:                   "CALL",
	OpCreateObjectWithBuffer: "CREATE_OBJECT_WITH_BUFFER",
	OpLoadProperty:           "LOAD_PROPERTY",
	OpLoadConstOffset:        "LOAD_CONST_OFFSET",
	OpStoreProperty:          "STORE_PROPERTY",
	OpObjectTypeCheck:        "OBJECT_TYPE_CHECK",
	OpConvert:                "CONVERT",
	OpStartAllocate:          "START_ALLOCATE",
	OpFinishAllocate:         "FINISH_ALLOCATE",
	OpFrameState:             "FRAME_STATE",
	OpFrameValues:            "FRAME_VALUES",
	OpStateSplit:             "STATE_SPLIT",
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// ParseOpcode looks up an opcode by its printed name.
func ParseOpcode(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return Opcode(op), true
		}
	}
	return 0, false
}
