package datatypes

import "strings"

type Register struct {
	Name     string
	Slot     int // word offset inside the reg region
	Desc     string
	Longdesc string
	Tags     RegisterTag
}

type RegisterTag byte

const (
	RegisterTagGeneralPurpose = 1 << iota
	RegisterTagSpecial
)

type RegisterID int

const (
	RegPC RegisterID = iota
	RegSP
	RegESP
	RegFP
	RegR1
	RegR2
	RegR3

	NumRegisters = int(RegR3) + 1
)

var registers = [NumRegisters]Register{
	RegPC: {
		Name: "PC", Slot: 0, Desc: "Program Counter",
		Longdesc: "Address of the next instruction; updated before each instruction is dispatched",
		Tags:     RegisterTagSpecial,
	},
	RegSP: {
		Name: "SP", Slot: 1, Desc: "Stack Pointer",
		Longdesc: "Top of the run-time stack; grows downward from the end of rts",
		Tags:     RegisterTagSpecial,
	},
	RegESP: {
		Name: "ESP", Slot: 2, Desc: "Expression Stack Pointer",
		Longdesc: "Top of the expression stack; grows downward from the end of es",
		Tags:     RegisterTagSpecial,
	},
	RegFP: {
		Name: "FP", Slot: 3, Desc: "Frame Pointer",
		Longdesc: "Base address of the current activation",
		Tags:     RegisterTagSpecial,
	},
	RegR1: {
		Name: "R1", Slot: 4, Desc: "General Purpose Register",
		Longdesc: "Left operand and result of expression-stack operations",
		Tags:     RegisterTagGeneralPurpose,
	},
	RegR2: {
		Name: "R2", Slot: 5, Desc: "General Purpose Register",
		Longdesc: "Right operand of binary operations",
		Tags:     RegisterTagGeneralPurpose,
	},
	RegR3: {
		Name: "R3", Slot: 6, Desc: "General Purpose Register",
		Longdesc: "Scratch register",
		Tags:     RegisterTagGeneralPurpose,
	},
}

func (r RegisterID) Info() Register {
	return registers[r]
}

func (r RegisterID) String() string {
	if int(r) < 0 || int(r) >= NumRegisters {
		return "R?"
	}
	return registers[r].Name
}

// Registers lists the register table in slot order.
func Registers() []Register {
	out := make([]Register, NumRegisters)
	copy(out, registers[:])
	return out
}

func RegisterByName(name string) (RegisterID, bool) {
	name = strings.ToUpper(name)
	for i, reg := range registers {
		if reg.Name == name {
			return RegisterID(i), true
		}
	}
	return 0, false
}
