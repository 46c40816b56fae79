package simulator

import (
	"errors"
	"fmt"
	"io"

	"ccvm/datatypes"
	"ccvm/memory"

	"github.com/k0kubun/pp/v3"
	"github.com/tliron/commonlog"
)

type State byte

const (
	StateIdle State = iota
	StateRunning
	StateHalted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateFaulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", byte(s))
}

type opKey struct {
	op  datatypes.Opcode
	sub uint8
}

// Machine is one simulated CPU running out of a Memory.
type Machine struct {
	Mem *memory.Memory

	handlers map[opKey]InstHandler
	names    map[datatypes.Address]string

	state    State
	steps    int
	maxSteps int
	trace    io.Writer
	lastPC   datatypes.Address
	lastLine int
	err      error

	log commonlog.Logger
}

type Option func(*Machine)

// WithMaxSteps bounds the number of instructions one Execute may run.
func WithMaxSteps(n int) Option {
	return func(m *Machine) { m.maxSteps = n }
}

// WithTrace writes every executed instruction to w.
func WithTrace(w io.Writer) Option {
	return func(m *Machine) { m.trace = w }
}

// WithFunctionNames names activation records opened by call.
func WithFunctionNames(names map[datatypes.Address]string) Option {
	return func(m *Machine) { m.names = names }
}

func MakeMachine(mem *memory.Memory, opts ...Option) *Machine {
	handlers := make(map[opKey]InstHandler)
	isa := datatypes.InstMap()
	for name, handler := range InstHandlers() {
		info := isa[name]
		handlers[opKey{info.Op, info.Sub}] = handler
	}

	m := &Machine{
		Mem:      mem,
		handlers: handlers,
		log:      commonlog.GetLogger("ccvm.machine"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.InitAll()
	return m
}

// InitAll resets the registers: PC to 0, SP and FP to the top of rts and
// ESP to the top of es. Memory contents are left alone.
func (m *Machine) InitAll() {
	layout := m.Mem.Layout()
	m.Mem.SetRegWord(datatypes.RegPC, 0)
	m.Mem.SetRegWord(datatypes.RegSP, layout.RTS.End())
	m.Mem.SetRegWord(datatypes.RegFP, layout.RTS.End())
	m.Mem.SetRegWord(datatypes.RegESP, layout.ES.End())
	m.state = StateIdle
	m.steps = 0
	m.lastPC = 0
	m.lastLine = 0
	m.err = nil
}

func (m *Machine) SetFunctionNames(names map[datatypes.Address]string) {
	m.names = names
}

func (m *Machine) functionName(addr datatypes.Address) string {
	if name, found := m.names[addr]; found {
		return name
	}
	return fmt.Sprintf("0x%04x", addr)
}

func (m *Machine) State() State              { return m.state }
func (m *Machine) Steps() int                { return m.steps }
func (m *Machine) LastPC() datatypes.Address { return m.lastPC }
func (m *Machine) LastLine() int             { return m.lastLine }

// Err is the fault that stopped the machine, if any.
func (m *Machine) Err() error { return m.err }

// Step fetches, decodes and executes the instruction at PC. A normal exit
// is reported as datatypes.ErrProgramExit.
func (m *Machine) Step() error {
	if m.state == StateHalted || m.state == StateFaulted {
		return fmt.Errorf("%w: machine is %v", datatypes.ErrHalt, m.state)
	}
	m.state = StateRunning

	pc := m.Mem.RegWord(datatypes.RegPC)
	m.lastPC = pc
	m.lastLine = 0
	prog := m.Mem.Layout().Prog
	if !prog.Contains(pc, 2*datatypes.WordSize) || pc%datatypes.WordSize != 0 {
		return m.fault(datatypes.NewFault(datatypes.ErrRegion, pc, "instruction fetch outside prog"))
	}
	word, err := m.Mem.Word(pc)
	if err != nil {
		return m.fault(err)
	}
	dw, err := m.Mem.Word(pc + datatypes.WordSize)
	if err != nil {
		return m.fault(err)
	}
	inst := datatypes.DecodeInstruction(word)
	debug := datatypes.DecodeDebugWord(dw)
	m.lastLine = int(debug.Line)

	m.Mem.SetRegWord(datatypes.RegPC, pc+debug.Length())
	m.steps++

	key := opKey{inst.Op, inst.Sub}
	handler, found := m.handlers[key]
	if !found {
		return m.fault(datatypes.NewFault(datatypes.ErrHalt, pc, "illegal instruction 0x%08x", word))
	}
	m.log.Debugf("%04x: %v (line %d)", pc, inst, debug.Line)
	if m.trace != nil {
		fmt.Fprintf(m.trace, "%04x: %-32v line %d\n", pc, inst, debug.Line)
	}

	if err := handler(m, inst, pc); err != nil {
		if errors.Is(err, datatypes.ErrProgramExit) {
			m.state = StateHalted
			return err
		}
		return m.fault(err)
	}
	return nil
}

func (m *Machine) fault(err error) error {
	err = datatypes.AtLine(err, m.lastLine)
	m.state = StateFaulted
	m.err = err
	m.log.Errorf("halted at 0x%04x: %v", m.lastPC, err)
	return err
}

// Execute runs from pc until the program jumps to the exit address, which
// returns nil, or until a fault, which is returned unchanged.
func (m *Machine) Execute(pc datatypes.Address) error {
	if m.state != StateIdle {
		m.InitAll()
	}
	m.Mem.SetRegWord(datatypes.RegPC, pc)
	return m.Resume()
}

// Resume continues from the current PC, for example after single steps.
func (m *Machine) Resume() error {
	start := m.steps
	for {
		if m.maxSteps > 0 && m.steps-start >= m.maxSteps {
			return m.fault(datatypes.NewFault(datatypes.ErrStepBudget, m.Mem.RegWord(datatypes.RegPC),
				"%d instructions executed", m.maxSteps))
		}
		if err := m.Step(); err != nil {
			if errors.Is(err, datatypes.ErrProgramExit) {
				m.log.Infof("program exit after %d instructions", m.steps)
				return nil
			}
			return err
		}
	}
}

type registerDump struct {
	Name  string
	Value string
}

type machineDump struct {
	State     string
	Steps     int
	LastPC    string
	LastLine  int
	Registers []registerDump
	ExprDepth int
	Records   []memory.ActivationRecord
	Err       string
}

// Dump renders the registers and run state for debugging.
func (m *Machine) Dump() string {
	d := machineDump{
		State:     m.state.String(),
		Steps:     m.steps,
		LastPC:    fmt.Sprintf("0x%04x", m.lastPC),
		LastLine:  m.lastLine,
		ExprDepth: m.Mem.ExprDepth(),
		Records:   m.Mem.ActivationRecords(),
	}
	for i, reg := range datatypes.Registers() {
		v := m.Mem.RegWord(datatypes.RegisterID(i))
		d.Registers = append(d.Registers, registerDump{Name: reg.Name, Value: fmt.Sprintf("0x%08x", v)})
	}
	if m.err != nil {
		d.Err = m.err.Error()
	}
	printer := pp.New()
	printer.SetColoringEnabled(false)
	return printer.Sprint(d)
}
