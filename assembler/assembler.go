package assembler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ccvm/assembler/macroprocessor"
	"ccvm/datatypes"
	"ccvm/memory"

	"github.com/tliron/commonlog"
)

// maxExtraWords is what fits in the debug word's extra-word field.
const maxExtraWords = 0xff

func asmError(addr datatypes.Address, line int, format string, args ...any) error {
	f := datatypes.NewFault(datatypes.ErrAssembler, addr, format, args...)
	f.Line = line
	return f
}

// Assemble packs one instruction word. addr must fit the 16-bit address
// field.
func Assemble(opName string, typeA, typeB datatypes.CType, addr uint32) (datatypes.Word, error) {
	info, found := datatypes.InstMap()[opName]
	if !found {
		return 0, fmt.Errorf("%w: unknown mnemonic %q", datatypes.ErrAssembler, opName)
	}
	if !typeA.Valid() || !typeB.Valid() {
		return 0, fmt.Errorf("%w: %s: type index out of range", datatypes.ErrAssembler, opName)
	}
	if addr > 0xffff {
		return 0, fmt.Errorf("%w: %s: address 0x%x does not fit 16 bits", datatypes.ErrAssembler, opName, addr)
	}
	inst := datatypes.Instruction{
		Op:    info.Op,
		Sub:   info.Sub,
		TypeA: typeA,
		TypeB: typeB,
		Addr:  uint16(addr),
	}
	return inst.Encode(), nil
}

type DirectiveHandler struct {
	f       func(a *Assembler, line datatypes.InLine) error
	numArgs int // -1 takes the rest of the line
}

// fixup is a forward label reference waiting to be patched into the
// address field of the instruction word at from.
type fixup struct {
	from datatypes.Address
	name string
	line int
}

// Assembler writes instructions straight into the prog region of a Memory.
type Assembler struct {
	mem        *memory.Memory
	isa        map[string]datatypes.InstructionInfo
	directives map[string]DirectiveHandler

	labels  map[string]datatypes.Address
	fixups  []fixup
	relocs  []datatypes.Address
	lines   map[datatypes.Address]int
	origin  datatypes.Address
	highest datatypes.Address
	entry   *datatypes.Address
	cursor  *datatypes.Address

	Name string
	// Partial leaves references to undefined labels for the linker
	// instead of failing.
	Partial bool

	log commonlog.Logger
}

func MakeAssembler(mem *memory.Memory) *Assembler {
	a := &Assembler{
		mem:        mem,
		isa:        datatypes.InstMap(),
		directives: Directives(),
		log:        commonlog.GetLogger("ccvm.assembler"),
	}
	a.Reset()
	return a
}

// Reset forgets labels and pending references. Memory is left alone.
func (a *Assembler) Reset() {
	a.labels = make(map[string]datatypes.Address)
	a.fixups = nil
	a.relocs = nil
	a.lines = make(map[datatypes.Address]int)
	a.origin = a.mem.Layout().Prog.Start
	a.highest = a.origin
	a.entry = nil
	a.Name = ""
}

var addrExpr = regexp.MustCompile(`^(GLOBAL|DEFINE|HEAP|STACK)\((.+)\)$`)
var identifier = regexp.MustCompile(`^[A-Za-z_.$][A-Za-z0-9_.$]*$`)

// ParseAddress resolves an address operand. A label that is not defined
// yet comes back as its name with address 0.
func (a *Assembler) ParseAddress(tok string) (addr uint32, label string, err error) {
	layout := a.mem.Layout()
	if m := addrExpr.FindStringSubmatch(tok); m != nil {
		n, err := datatypes.ParseNum(m[2])
		if err != nil || n < 0 {
			return 0, "", fmt.Errorf("bad word index in %s", tok)
		}
		var region memory.Region
		var v int64
		switch m[1] {
		case "GLOBAL":
			region = layout.GAS
			v = int64(region.Start) + datatypes.WordSize*n
		case "DEFINE":
			region = layout.Defs
			v = int64(layout.GAS.Start) - datatypes.WordSize*(n+1)
		case "HEAP":
			region = layout.Heap
			v = int64(region.Start) + datatypes.WordSize*n
		case "STACK":
			region = layout.RTS
			v = int64(region.End()) - datatypes.WordSize*(n+1)
		}
		if v < 0 || !region.Contains(datatypes.Address(v), datatypes.WordSize) {
			return 0, "", fmt.Errorf("%s is outside region %s", tok, region.Name)
		}
		return uint32(v), "", nil
	}
	if n, err := datatypes.ParseNum(tok); err == nil {
		if n < 0 || n > 0xffff {
			return 0, "", fmt.Errorf("address %s does not fit 16 bits", tok)
		}
		return uint32(n), "", nil
	}
	if reg, found := datatypes.RegisterByName(tok); found {
		return a.mem.RegAddr(reg), "", nil
	}
	if identifier.MatchString(tok) {
		if addr, found := a.labels[tok]; found {
			return addr, "", nil
		}
		return 0, tok, nil
	}
	return 0, "", fmt.Errorf("malformed address %q", tok)
}

func parseType(tok string) (datatypes.CType, error) {
	t, found := datatypes.ParseCType(tok)
	if !found {
		return 0, fmt.Errorf("unknown type %q", tok)
	}
	return t, nil
}

// Write assembles one line of text at *cursor and advances the cursor past
// the instruction word, the debug word and any data words. The text reads
//
//	[label:] op [typeA [typeB [address [data ...]]]] [; comment]
//
// Missing types default to char and a missing address to 0. Lines holding
// only a label or a directive write nothing.
func (a *Assembler) Write(text string, cursor *datatypes.Address, line int) error {
	parsed, err := datatypes.ParseAsmLine(text)
	if errors.Is(err, datatypes.EmptyLineErr) {
		return nil
	}
	if err != nil {
		return asmError(*cursor, line, "%v", err)
	}
	if parsed.Label != "" {
		if err := a.DefineLabel(parsed.Label, *cursor, line); err != nil {
			return err
		}
	}
	if parsed.Op == "" {
		return nil
	}
	if directive, found := a.directives[parsed.Op]; found {
		if directive.numArgs >= 0 && directive.numArgs != len(parsed.Args) {
			return asmError(*cursor, line, "%s takes %d arguments, got %d", parsed.Op, directive.numArgs, len(parsed.Args))
		}
		a.cursor = cursor
		err := directive.f(a, parsed)
		a.cursor = nil
		if err != nil {
			return asmError(*cursor, line, "%s: %v", parsed.Op, err)
		}
		return nil
	}
	return a.writeInstruction(parsed, cursor, line)
}

func (a *Assembler) writeInstruction(parsed datatypes.InLine, cursor *datatypes.Address, line int) error {
	at := *cursor
	info, found := a.isa[parsed.Op]
	if !found {
		return asmError(at, line, "unknown mnemonic %q", parsed.Op)
	}
	args := parsed.Args
	typeA, typeB := datatypes.Char, datatypes.Char
	var err error
	if len(args) > 0 {
		if typeA, err = parseType(args[0]); err != nil {
			return asmError(at, line, "%s: %v", info.Name, err)
		}
	}
	if len(args) > 1 {
		if typeB, err = parseType(args[1]); err != nil {
			return asmError(at, line, "%s: %v", info.Name, err)
		}
	}
	var addr uint32
	var label string
	if len(args) > 2 {
		if addr, label, err = a.ParseAddress(args[2]); err != nil {
			return asmError(at, line, "%s: %v", info.Name, err)
		}
	}
	var data []string
	if len(args) > 3 {
		data = args[3:]
	}
	if len(data) > maxExtraWords {
		return asmError(at, line, "%s: %d data words, at most %d", info.Name, len(data), maxExtraWords)
	}

	word, err := Assemble(info.Name, typeA, typeB, addr)
	if err != nil {
		return asmError(at, line, "%v", err)
	}
	debug := datatypes.DebugWord{ExtraWords: uint8(len(data)), Line: uint16(line)}
	length := debug.Length()
	if !a.mem.Layout().Prog.Contains(at, int(length)) || at%datatypes.WordSize != 0 {
		return asmError(at, line, "%s does not fit in prog", info.Name)
	}
	values := make([]float64, len(data))
	for i, tok := range data {
		v, err := datatypes.ParseValue(tok)
		if err != nil {
			return asmError(at, line, "%s: data word %q: %v", info.Name, tok, err)
		}
		values[i] = v
	}

	if err := a.mem.ForceSet(at, datatypes.UInt, float64(word)); err != nil {
		return err
	}
	if err := a.mem.ForceSet(at+datatypes.WordSize, datatypes.UInt, float64(debug.Encode())); err != nil {
		return err
	}
	for i, v := range values {
		slot := at + datatypes.WordSize*datatypes.Address(2+i)
		if err := a.mem.ForceSet(slot, datatypes.UInt, 0); err != nil {
			return err
		}
		if err := a.mem.ForceSet(slot, typeA, v); err != nil {
			return err
		}
	}
	if label != "" {
		a.fixups = append(a.fixups, fixup{from: at, name: label, line: line})
	}
	if len(args) > 2 && a.isLabel(args[2]) {
		a.relocs = append(a.relocs, at)
	}
	a.lines[at] = line
	a.log.Debugf("%04x: %08x %08x %s", at, word, debug.Encode(), strings.Join(parsed.Args, " "))

	*cursor = at + length
	if *cursor > a.highest {
		a.highest = *cursor
	}
	return nil
}

func (a *Assembler) DefineLabel(name string, addr datatypes.Address, line int) error {
	if !identifier.MatchString(name) {
		return asmError(addr, line, "bad label %q", name)
	}
	if _, taken := datatypes.RegisterByName(name); taken {
		return asmError(addr, line, "label %q shadows a register", name)
	}
	if prev, found := a.labels[name]; found {
		return asmError(addr, line, "label %q already defined at 0x%04x", name, prev)
	}
	a.labels[name] = addr
	return nil
}

// Resolve patches every forward label reference it can. References to
// labels that are still undefined stay pending and the first one is
// reported.
func (a *Assembler) Resolve() error {
	pending := a.fixups
	a.fixups = nil
	var firstErr error
	for _, link := range pending {
		target, found := a.labels[link.name]
		if !found {
			a.fixups = append(a.fixups, link)
			if firstErr == nil {
				firstErr = asmError(link.from, link.line, "undefined label %q", link.name)
			}
			continue
		}
		word, err := a.mem.Word(link.from)
		if err != nil {
			return err
		}
		word = word&^0xffff | target&0xffff
		if err := a.mem.ForceSet(link.from, datatypes.UInt, float64(word)); err != nil {
			return err
		}
	}
	return firstErr
}

func (a *Assembler) isLabel(tok string) bool {
	if _, isReg := datatypes.RegisterByName(tok); isReg {
		return false
	}
	return identifier.MatchString(tok)
}

func (a *Assembler) Labels() map[string]datatypes.Address {
	out := make(map[string]datatypes.Address, len(a.labels))
	for k, v := range a.labels {
		out[k] = v
	}
	return out
}

// Entry is the start address set by .entry, or the origin.
func (a *Assembler) Entry() datatypes.Address {
	if a.entry != nil {
		return *a.entry
	}
	return a.origin
}

// AssembleSource expands macros in src, assembles every line from the start
// of prog and resolves labels. The result is already in memory; the Image
// is a copy for saving.
func (a *Assembler) AssembleSource(src string) (*Image, error) {
	lines, err := macroprocessor.Process(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrAssembler, err)
	}
	cursor := a.origin
	for _, l := range lines {
		if err := a.Write(l.Text, &cursor, l.Line); err != nil {
			return nil, err
		}
	}
	if err := a.Resolve(); err != nil && !a.Partial {
		return nil, err
	}
	a.log.Infof("assembled %q: %d bytes, %d labels", a.Name, a.highest-a.origin, len(a.labels))
	return a.Image(), nil
}

func Directives() map[string]DirectiveHandler {
	return map[string]DirectiveHandler{
		".name": {
			f: func(a *Assembler, line datatypes.InLine) error {
				a.Name = strings.Join(line.Args, " ")
				return nil
			},
			numArgs: -1,
		},
		".entry": {
			f: func(a *Assembler, line datatypes.InLine) error {
				addr, label, err := a.ParseAddress(line.Args[0])
				if err != nil {
					return err
				}
				if label != "" {
					return fmt.Errorf("label %q must be defined before .entry", label)
				}
				a.entry = &addr
				return nil
			},
			numArgs: 1,
		},
		".org": {
			f: func(a *Assembler, line datatypes.InLine) error {
				n, err := datatypes.ParseNum(line.Args[0])
				if err != nil {
					return err
				}
				prog := a.mem.Layout().Prog
				if n < int64(prog.Start) || n >= int64(prog.End()) || n%datatypes.WordSize != 0 {
					return fmt.Errorf("0x%x is not a word address in prog", n)
				}
				*a.cursor = datatypes.Address(n)
				return nil
			},
			numArgs: 1,
		},
	}
}
