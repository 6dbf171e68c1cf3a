package circuit

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Dump writes one line per live gate: id, opcode, machine type, name and the
// state, depend and value inputs.
func (c *Circuit) Dump(w io.Writer) error {
	nameWidth := 0
	for ref := range c.Gates() {
		nameWidth = max(nameWidth, runewidth.StringWidth(c.Name(ref)))
	}

	for ref := range c.Gates() {
		g := c.get(ref)

		var line strings.Builder
		fmt.Fprintf(&line, "%4d %-25s %-5s %s", ref, g.op, g.typ, runewidth.FillRight(g.name, nameWidth))
		writeIns(&line, "state", g.ins[:g.numState])
		writeIns(&line, "depend", g.ins[g.numState:g.numState+g.numDepend])
		writeIns(&line, "value", g.ins[g.numState+g.numDepend:])
		if g.imm != nil {
			line.WriteString(" imm(" + g.imm.Ident() + ")")
		}

		if _, err := io.WriteString(w, strings.TrimRight(line.String(), " ")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeIns(line *strings.Builder, label string, ins []GateRef) {
	if len(ins) == 0 {
		return
	}
	line.WriteString(" " + label + "(")
	for i, in := range ins {
		if i > 0 {
			line.WriteByte(' ')
		}
		if in == NullGate {
			line.WriteByte('-')
		} else {
			line.WriteString(strconv.Itoa(int(in)))
		}
	}
	line.WriteByte(')')
}
