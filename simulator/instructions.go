package simulator

import (
	"fmt"
	"math"

	"ccvm/datatypes"
	"ccvm/memory"
)

// InstHandler executes one decoded instruction. instAddr is the address of
// the instruction word; PC already points past the whole instruction.
type InstHandler func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error

func operandFault(inst datatypes.Instruction, instAddr datatypes.Address, format string, args ...any) error {
	return datatypes.NewFault(datatypes.ErrOperandType, instAddr, "%s: %s", inst, fmt.Sprintf(format, args...))
}

func checkTypes(inst datatypes.Instruction, instAddr datatypes.Address, types ...datatypes.CType) error {
	for _, t := range types {
		if !t.Valid() {
			return operandFault(inst, instAddr, "unknown type index %d", uint8(t))
		}
	}
	return nil
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// epop pops the expression stack into a register.
func (m *Machine) epop(t datatypes.CType, reg datatypes.RegisterID) (float64, error) {
	v, err := m.Mem.ExprPop(t)
	if err != nil {
		return 0, err
	}
	m.Mem.SetReg(reg, t, v)
	return v, nil
}

// a binaryFunc sees both operands already converted to the common type t
type binaryFunc func(t datatypes.CType, l, r float64) float64

func binaryHandler(bitwise bool, f binaryFunc) InstHandler {
	return func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
		if err := checkTypes(inst, instAddr, inst.TypeA, inst.TypeB); err != nil {
			return err
		}
		if bitwise {
			if !inst.TypeA.UnsignedIntegral() {
				return operandFault(inst, instAddr, "left operand has type %v, must be unsigned integral", inst.TypeA)
			}
			if !inst.TypeB.UnsignedIntegral() {
				return operandFault(inst, instAddr, "right operand has type %v, must be unsigned integral", inst.TypeB)
			}
		}
		right, err := m.epop(inst.TypeB, datatypes.RegR2)
		if err != nil {
			return err
		}
		left, err := m.epop(inst.TypeA, datatypes.RegR1)
		if err != nil {
			return err
		}
		common := datatypes.Coerce(inst.TypeA, inst.TypeB)
		result := f(common, memory.Convert(common, left), memory.Convert(common, right))
		m.Mem.SetReg(datatypes.RegR1, common, result)
		return m.Mem.ExprPush(common, m.Mem.GetReg(datatypes.RegR1, common))
	}
}

func integral(op func(a, b uint32) uint32, fop func(a, b float64) float64) binaryFunc {
	return func(t datatypes.CType, l, r float64) float64 {
		if t.Floating() {
			return fop(l, r)
		}
		return memory.FromBits(t, op(memory.ToBits(t, l), memory.ToBits(t, r)))
	}
}

func bitwise(op func(a, b uint32) uint32) binaryFunc {
	return integral(op, func(a, b float64) float64 { return 0 })
}

func compare(pred func(l, r float64) bool) binaryFunc {
	return func(t datatypes.CType, l, r float64) float64 {
		return bool01(pred(l, r))
	}
}

// Integral division by zero yields 0.
func divide(mod bool) binaryFunc {
	return func(t datatypes.CType, l, r float64) float64 {
		if t.Floating() {
			if mod {
				return math.Mod(l, r)
			}
			return l / r
		}
		if r == 0 {
			return 0
		}
		if t.Unsigned() {
			a, b := uint64(l), uint64(r)
			if mod {
				return float64(a % b)
			}
			return float64(a / b)
		}
		a, b := int64(l), int64(r)
		if mod {
			return memory.Convert(t, float64(a%b))
		}
		return memory.Convert(t, float64(a/b))
	}
}

func unaryBitHandler(f func(t datatypes.CType, v float64) float64) InstHandler {
	return func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
		if err := checkTypes(inst, instAddr, inst.TypeA); err != nil {
			return err
		}
		if !inst.TypeA.UnsignedIntegral() {
			return operandFault(inst, instAddr, "operand has type %v, must be unsigned integral", inst.TypeA)
		}
		v, err := m.epop(inst.TypeA, datatypes.RegR1)
		if err != nil {
			return err
		}
		m.Mem.SetReg(datatypes.RegR1, inst.TypeA, f(inst.TypeA, v))
		return m.Mem.ExprPush(inst.TypeA, m.Mem.GetReg(datatypes.RegR1, inst.TypeA))
	}
}

func jumpHandler(cond func(m *Machine) bool) InstHandler {
	return func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
		if !cond(m) {
			return nil
		}
		m.Mem.SetRegWord(datatypes.RegPC, datatypes.Address(inst.Addr))
		return nil
	}
}

func r1True(m *Machine) bool {
	return m.Mem.GetReg(datatypes.RegR1, datatypes.UInt) != 0
}

// memoryHandler wraps the memory family, which all take type A.
func memoryHandler(f func(m *Machine, t datatypes.CType, addr, instAddr datatypes.Address) error) InstHandler {
	return func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
		if err := checkTypes(inst, instAddr, inst.TypeA); err != nil {
			return err
		}
		return f(m, inst.TypeA, datatypes.Address(inst.Addr), instAddr)
	}
}

func InstHandlers() map[string]InstHandler {
	add := func(a, b uint32) uint32 { return a + b }
	sub := func(a, b uint32) uint32 { return a - b }
	mul := func(a, b uint32) uint32 { return a * b }

	return map[string]InstHandler{
		">>": binaryHandler(true, bitwise(func(a, b uint32) uint32 { return a >> (b & 31) })),
		"<<": binaryHandler(true, bitwise(func(a, b uint32) uint32 { return a << (b & 31) })),
		"&&": binaryHandler(false, compare(func(l, r float64) bool { return l != 0 && r != 0 })),
		"||": binaryHandler(false, compare(func(l, r float64) bool { return l != 0 || r != 0 })),
		"<":  binaryHandler(false, compare(func(l, r float64) bool { return l < r })),
		"<=": binaryHandler(false, compare(func(l, r float64) bool { return l <= r })),
		"==": binaryHandler(false, compare(func(l, r float64) bool { return l == r })),
		"!=": binaryHandler(false, compare(func(l, r float64) bool { return l != r })),
		">=": binaryHandler(false, compare(func(l, r float64) bool { return l >= r })),
		">":  binaryHandler(false, compare(func(l, r float64) bool { return l > r })),
		"&":  binaryHandler(true, bitwise(func(a, b uint32) uint32 { return a & b })),
		"|":  binaryHandler(true, bitwise(func(a, b uint32) uint32 { return a | b })),
		"^":  binaryHandler(true, bitwise(func(a, b uint32) uint32 { return a ^ b })),
		"+":  binaryHandler(false, integral(add, func(a, b float64) float64 { return a + b })),
		"-":  binaryHandler(false, integral(sub, func(a, b float64) float64 { return a - b })),
		"*":  binaryHandler(false, integral(mul, func(a, b float64) float64 { return a * b })),
		"/":  binaryHandler(false, divide(false)),
		"%":  binaryHandler(false, divide(true)),

		"~": unaryBitHandler(func(t datatypes.CType, v float64) float64 {
			return memory.FromBits(t, ^memory.ToBits(t, v))
		}),
		"!": unaryBitHandler(func(t datatypes.CType, v float64) float64 {
			return bool01(v == 0)
		}),
		"cast": func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
			if err := checkTypes(inst, instAddr, inst.TypeA, inst.TypeB); err != nil {
				return err
			}
			m.Mem.SetReg(datatypes.RegR1, inst.TypeB, m.Mem.GetReg(datatypes.RegR1, inst.TypeA))
			return nil
		},
		"test": func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
			if err := checkTypes(inst, instAddr, inst.TypeA); err != nil {
				return err
			}
			v, err := m.epop(inst.TypeA, datatypes.RegR1)
			if err != nil {
				return err
			}
			m.Mem.SetReg(datatypes.RegR1, datatypes.Int, bool01(v != 0))
			return nil
		},

		"jump": func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
			if inst.Addr == datatypes.ExitAddress {
				return datatypes.ErrProgramExit
			}
			m.Mem.SetRegWord(datatypes.RegPC, datatypes.Address(inst.Addr))
			return nil
		},
		"jit": jumpHandler(r1True),
		"jif": jumpHandler(func(m *Machine) bool { return !r1True(m) }),

		"put": memoryHandler(func(m *Machine, t datatypes.CType, addr, _ datatypes.Address) error {
			return m.Mem.Move(m.Mem.RegAddr(datatypes.RegR1), t, addr, t, false)
		}),
		"puti": memoryHandler(func(m *Machine, t datatypes.CType, addr, instAddr datatypes.Address) error {
			dw, err := m.Mem.Word(instAddr + datatypes.WordSize)
			if err != nil {
				return err
			}
			if datatypes.DecodeDebugWord(dw).ExtraWords == 0 {
				return datatypes.NewFault(datatypes.ErrOperandType, instAddr, "puti without immediate data")
			}
			v, err := m.Mem.ForceGet(instAddr+2*datatypes.WordSize, t)
			if err != nil {
				return err
			}
			return m.Mem.MachineSet(addr, t, v)
		}),
		"get": memoryHandler(func(m *Machine, t datatypes.CType, addr, _ datatypes.Address) error {
			return m.Mem.Move(addr, t, m.Mem.RegAddr(datatypes.RegR1), t, false)
		}),
		"push": memoryHandler(func(m *Machine, t datatypes.CType, addr, _ datatypes.Address) error {
			v, err := m.Mem.MachineGet(addr, t)
			if err != nil {
				return err
			}
			_, err = m.Mem.StackPush(t, v)
			return err
		}),
		"pop": memoryHandler(func(m *Machine, t datatypes.CType, addr, _ datatypes.Address) error {
			v, err := m.Mem.StackPop(t)
			if err != nil {
				return err
			}
			return m.Mem.MachineSet(addr, t, v)
		}),
		"swap": func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
			r1 := m.Mem.GetReg(datatypes.RegR1, datatypes.UInt)
			m.Mem.SetReg(datatypes.RegR1, datatypes.UInt, m.Mem.GetReg(datatypes.RegR2, datatypes.UInt))
			m.Mem.SetReg(datatypes.RegR2, datatypes.UInt, r1)
			return nil
		},
		"epush": memoryHandler(func(m *Machine, t datatypes.CType, addr, _ datatypes.Address) error {
			v, err := m.Mem.MachineGet(addr, t)
			if err != nil {
				return err
			}
			return m.Mem.ExprPush(t, v)
		}),
		"epop": memoryHandler(func(m *Machine, t datatypes.CType, addr, _ datatypes.Address) error {
			v, err := m.Mem.ExprPop(t)
			if err != nil {
				return err
			}
			return m.Mem.MachineSet(addr, t, v)
		}),

		"call": func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
			sp := m.Mem.RegWord(datatypes.RegSP)
			if _, err := m.Mem.StackPush(datatypes.UInt, float64(m.Mem.RegWord(datatypes.RegPC))); err != nil {
				return err
			}
			m.Mem.BeginActivationRecord(sp)
			m.Mem.NameActivationRecord(m.functionName(datatypes.Address(inst.Addr)))
			m.Mem.SetRegWord(datatypes.RegPC, datatypes.Address(inst.Addr))
			return nil
		},
		"ret": func(m *Machine, inst datatypes.Instruction, instAddr datatypes.Address) error {
			pc, err := m.Mem.StackPop(datatypes.UInt)
			if err != nil {
				return err
			}
			m.Mem.EndActivationRecord()
			m.Mem.SetRegWord(datatypes.RegPC, datatypes.Address(pc))
			return nil
		},
	}
}
