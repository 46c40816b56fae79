package datatypes

import "fmt"

type Opcode uint8

const (
	OpBinary Opcode = iota
	OpUnary
	OpJump
	OpMemory
	OpFunction
	// 5..7 unused
)

var opcodeNames = [...]string{"binaryOp", "unaryOp", "jumpConditionally", "memory", "functionOp"}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// binaryOp subcodes
const (
	BinShr uint8 = iota
	BinShl
	BinLogAnd
	BinLogOr
	BinLt
	BinLe
	BinEq
	BinNe
	BinGe
	BinGt
	BinAnd
	BinOr
	BinXor
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinMod
)

// unaryOp subcodes
const (
	UnNot uint8 = iota // ~
	UnLogNot           // !
	UnCast
	UnTest
)

// jumpConditionally subcodes
const (
	JmpAlways uint8 = iota
	JmpIfTrue
	JmpIfFalse
)

// memory subcodes
const (
	MemPut uint8 = iota
	MemPutImmediate
	MemGet
	MemPush
	MemPop
	MemSwap
	MemExprPush
	MemExprPop
)

// functionOp subcodes
const (
	FnCall uint8 = iota
	FnRet
)

// ExitAddress is the jump target that ends a program normally.
const ExitAddress = 0xFFFF

type InstructionFlag byte

const (
	InstFlagBitwise = 1 << iota // operands must be unsigned integral
	InstFlagImmediate           // reads extra words after the debug word
	InstFlagJump
)

// InstructionInfo describes one mnemonic of the instruction set.
type InstructionInfo struct {
	Name    string
	Op      Opcode
	Sub     uint8
	NumArgs int
	Flags   InstructionFlag
}

type inst = InstructionInfo // shorthand for these defs
func InstMap() map[string]InstructionInfo {
	return map[string]InstructionInfo{
		">>":   inst{Name: ">>", Op: OpBinary, Sub: BinShr, Flags: InstFlagBitwise},
		"<<":   inst{Name: "<<", Op: OpBinary, Sub: BinShl, Flags: InstFlagBitwise},
		"&&":   inst{Name: "&&", Op: OpBinary, Sub: BinLogAnd},
		"||":   inst{Name: "||", Op: OpBinary, Sub: BinLogOr},
		"<":    inst{Name: "<", Op: OpBinary, Sub: BinLt},
		"<=":   inst{Name: "<=", Op: OpBinary, Sub: BinLe},
		"==":   inst{Name: "==", Op: OpBinary, Sub: BinEq},
		"!=":   inst{Name: "!=", Op: OpBinary, Sub: BinNe},
		">=":   inst{Name: ">=", Op: OpBinary, Sub: BinGe},
		">":    inst{Name: ">", Op: OpBinary, Sub: BinGt},
		"&":    inst{Name: "&", Op: OpBinary, Sub: BinAnd, Flags: InstFlagBitwise},
		"|":    inst{Name: "|", Op: OpBinary, Sub: BinOr, Flags: InstFlagBitwise},
		"^":    inst{Name: "^", Op: OpBinary, Sub: BinXor, Flags: InstFlagBitwise},
		"+":    inst{Name: "+", Op: OpBinary, Sub: BinAdd},
		"-":    inst{Name: "-", Op: OpBinary, Sub: BinSub},
		"*":    inst{Name: "*", Op: OpBinary, Sub: BinMul},
		"/":    inst{Name: "/", Op: OpBinary, Sub: BinDiv},
		"%":    inst{Name: "%", Op: OpBinary, Sub: BinMod},
		"~":    inst{Name: "~", Op: OpUnary, Sub: UnNot, Flags: InstFlagBitwise},
		"!":    inst{Name: "!", Op: OpUnary, Sub: UnLogNot, Flags: InstFlagBitwise},
		"cast": inst{Name: "cast", Op: OpUnary, Sub: UnCast},
		"test": inst{Name: "test", Op: OpUnary, Sub: UnTest},
		"jump": inst{Name: "jump", Op: OpJump, Sub: JmpAlways, NumArgs: 1, Flags: InstFlagJump},
		"jit":  inst{Name: "jit", Op: OpJump, Sub: JmpIfTrue, NumArgs: 1, Flags: InstFlagJump},
		"jif":  inst{Name: "jif", Op: OpJump, Sub: JmpIfFalse, NumArgs: 1, Flags: InstFlagJump},
		"put":  inst{Name: "put", Op: OpMemory, Sub: MemPut, NumArgs: 1},
		"puti": inst{Name: "puti", Op: OpMemory, Sub: MemPutImmediate, NumArgs: 1, Flags: InstFlagImmediate},
		"get":  inst{Name: "get", Op: OpMemory, Sub: MemGet, NumArgs: 1},
		"push": inst{Name: "push", Op: OpMemory, Sub: MemPush, NumArgs: 1},
		"pop":  inst{Name: "pop", Op: OpMemory, Sub: MemPop, NumArgs: 1},
		"swap": inst{Name: "swap", Op: OpMemory, Sub: MemSwap, NumArgs: 1},
		"epush": inst{Name: "epush", Op: OpMemory, Sub: MemExprPush, NumArgs: 1},
		"epop": inst{Name: "epop", Op: OpMemory, Sub: MemExprPop, NumArgs: 1},
		"call": inst{Name: "call", Op: OpFunction, Sub: FnCall, NumArgs: 1, Flags: InstFlagJump},
		"ret":  inst{Name: "ret", Op: OpFunction, Sub: FnRet},
	}
}

// MnemonicOf is the reverse of InstMap.
func MnemonicOf(op Opcode, sub uint8) (InstructionInfo, bool) {
	for _, info := range InstMap() {
		if info.Op == op && info.Sub == sub {
			return info, true
		}
	}
	return InstructionInfo{}, false
}

// Instruction is a decoded instruction word:
//
//	31   29 28    24 23   20 19   16 15            0
//	+------+--------+-------+-------+---------------+
//	|opcode|subcode | typeA | typeB |    address    |
//	+------+--------+-------+-------+---------------+
type Instruction struct {
	Op    Opcode
	Sub   uint8
	TypeA CType
	TypeB CType
	Addr  uint16
}

func (i Instruction) Encode() Word {
	return (Word(i.Op&0x7) << 29) |
		(Word(i.Sub&0x1f) << 24) |
		(Word(i.TypeA&0xf) << 20) |
		(Word(i.TypeB&0xf) << 16) |
		Word(i.Addr)
}

func DecodeInstruction(w Word) Instruction {
	return Instruction{
		Op:    Opcode((w >> 29) & 0x7),
		Sub:   uint8((w >> 24) & 0x1f),
		TypeA: CType((w >> 20) & 0xf),
		TypeB: CType((w >> 16) & 0xf),
		Addr:  uint16(w & 0xffff),
	}
}

func (i Instruction) String() string {
	name := fmt.Sprintf("%v.%d", i.Op, i.Sub)
	if info, found := MnemonicOf(i.Op, i.Sub); found {
		name = info.Name
	}
	return fmt.Sprintf("%s %v %v 0x%04x", name, i.TypeA, i.TypeB, i.Addr)
}

// DebugWord follows every instruction word: [31:24] extra words, [15:0] line.
type DebugWord struct {
	ExtraWords uint8
	Line       uint16
}

func (d DebugWord) Encode() Word {
	return Word(d.ExtraWords)<<24 | Word(d.Line)
}

func DecodeDebugWord(w Word) DebugWord {
	return DebugWord{ExtraWords: uint8(w >> 24), Line: uint16(w & 0xffff)}
}

// Length is the number of bytes the instruction occupies in prog,
// instruction and debug words included.
func (d DebugWord) Length() uint32 {
	return WordSize * (2 + uint32(d.ExtraWords))
}
