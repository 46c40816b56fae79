package datatypes

import (
	"errors"
	"fmt"
)

var (
	ErrRegion        = errors.New("segmentation fault")
	ErrAlignment     = errors.New("bus error")
	ErrUninitialized = errors.New("uninitialized read")
	ErrOperandType   = errors.New("illegal operand type")
	ErrAssembler     = errors.New("assembler error")
	ErrHalt          = errors.New("machine halted")
	ErrStepBudget    = errors.New("step budget exhausted")

	// ErrProgramExit is raised by a jump to ExitAddress.
	ErrProgramExit = errors.New("program exit")

	ErrScopeExists = errors.New("scope already exists")
	ErrEntrySealed = errors.New("entry already sealed")
)

// Fault is a machine or assembler error carrying the offending address and,
// when known, the source line of the instruction that raised it.
type Fault struct {
	Kind error
	Addr Address
	Line int
	Msg  string
}

func NewFault(kind error, addr Address, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Addr: addr, Msg: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	s := fmt.Sprintf("%v at 0x%04x", f.Kind, f.Addr)
	if f.Line > 0 {
		s += fmt.Sprintf(" (line %d)", f.Line)
	}
	if f.Msg != "" {
		s += ": " + f.Msg
	}
	return s
}

func (f *Fault) Is(target error) bool {
	return target == f.Kind
}

func (f *Fault) Unwrap() error {
	return f.Kind
}

// AtLine returns a copy of err annotated with a source line, if err is a
// Fault that does not carry one yet.
func AtLine(err error, line int) error {
	var f *Fault
	if errors.As(err, &f) && f.Line == 0 {
		g := *f
		g.Line = line
		return &g
	}
	return err
}
