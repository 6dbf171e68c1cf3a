package circuit

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"gopkg.in/yaml.v3"
)

// gateSpec is one entry of a circuit file. Inputs refer to other entries by
// name and may point forward, which loops need.
type gateSpec struct {
	Name   string   `yaml:"name"`
	Op     string   `yaml:"op"`
	Type   string   `yaml:"type"`
	Imm    *int64   `yaml:"imm"`
	State  []string `yaml:"state"`
	Depend []string `yaml:"depend"`
	Values []string `yaml:"values"`
}

type circuitFile struct {
	Gates []gateSpec `yaml:"gates"`
}

var machineTypes = map[string]types.Type{
	"void": types.Void,
	"i1":   types.I1,
	"i8":   types.I8,
	"i32":  types.I32,
	"i64":  types.I64,
	"ref":  Ref,
}

func defaultType(op Opcode) types.Type {
	switch op {
	case OpConstant, OpLoadProperty, OpLoadConstOffset, OpCall:
		return types.I64
	case OpArg, OpCreateObjectWithBuffer, OpFinishAllocate, OpConvert, OpValueSelector:
		return Ref
	default:
		return types.Void
	}
}

// LoadFile reads a circuit description from path.
func LoadFile(path string) (*Circuit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load reads a YAML circuit description. Gate names are kept for dumping.
func Load(r io.Reader) (*Circuit, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file circuitFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty circuit file")
		}
		return nil, err
	}

	c := New()
	refs := make(map[string]GateRef, len(file.Gates))

	// Create every gate with unwired inputs first so that names can be
	// resolved in any order.
	for i, spec := range file.Gates {
		if spec.Name == "" {
			return nil, fmt.Errorf("gate %d: missing name", i)
		}
		if _, ok := refs[spec.Name]; ok {
			return nil, fmt.Errorf("gate %s: duplicate name", spec.Name)
		}

		op, ok := ParseOpcode(spec.Op)
		if !ok {
			return nil, fmt.Errorf("gate %s: unknown opcode %q", spec.Name, spec.Op)
		}
		if op == OpDead {
			return nil, fmt.Errorf("gate %s: DEAD cannot be declared", spec.Name)
		}

		typ := defaultType(op)
		if spec.Type != "" {
			if typ, ok = machineTypes[spec.Type]; !ok {
				return nil, fmt.Errorf("gate %s: unknown type %q", spec.Name, spec.Type)
			}
		}

		var imm *constant.Int
		if spec.Imm != nil {
			imm = constant.NewInt(types.I64, *spec.Imm)
		} else if op == OpConstant || op == OpLoadConstOffset {
			return nil, fmt.Errorf("gate %s: %s needs an imm", spec.Name, op)
		}
		if op == OpConstant {
			intType, ok := typ.(*types.IntType)
			if !ok {
				return nil, fmt.Errorf("gate %s: constant of non-integer type %s", spec.Name, typ)
			}
			imm = constant.NewInt(intType, *spec.Imm)
		}

		ref := c.NewGateImm(op, typ, imm,
			unwired(len(spec.State)), unwired(len(spec.Depend)), unwired(len(spec.Values)))
		c.SetName(ref, spec.Name)
		refs[spec.Name] = ref
	}

	for _, spec := range file.Gates {
		ref := refs[spec.Name]
		for kind, names := range [][]string{spec.State, spec.Depend, spec.Values} {
			for i, name := range names {
				in, ok := refs[name]
				if !ok {
					return nil, fmt.Errorf("gate %s: undefined input %q", spec.Name, name)
				}
				switch EdgeKind(kind) {
				case StateEdge:
					c.ReplaceStateIn(ref, i, in)
				case DependEdge:
					c.ReplaceDependIn(ref, i, in)
				default:
					c.ReplaceValueIn(ref, i, in)
				}
			}
		}
	}

	return c, nil
}

func unwired(n int) []GateRef {
	ins := make([]GateRef, n)
	for i := range ins {
		ins[i] = NullGate
	}
	return ins
}
