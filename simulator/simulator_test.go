package simulator

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"ccvm/assembler"
	"ccvm/datatypes"
	"ccvm/memory"
)

func load(t *testing.T, src string, opts ...Option) (*Machine, *assembler.Image) {
	t.Helper()
	mem := memory.New(memory.DefaultLayout())
	img, err := assembler.MakeAssembler(mem).AssembleSource(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	opts = append([]Option{WithFunctionNames(img.FunctionNames())}, opts...)
	return MakeMachine(mem, opts...), img
}

func run(t *testing.T, src string, opts ...Option) *Machine {
	t.Helper()
	m, img := load(t, src, opts...)
	if err := m.Execute(img.Entry); err != nil {
		t.Fatalf("execute: %v\n%s", err, m.Dump())
	}
	if m.State() != StateHalted {
		t.Fatalf("state = %v", m.State())
	}
	return m
}

func global(n datatypes.Address) datatypes.Address {
	return memory.DefaultLayout().GAS.Start + datatypes.WordSize*n
}

func expectGlobal(t *testing.T, m *Machine, n datatypes.Address, typ datatypes.CType, want float64) {
	t.Helper()
	got, err := m.Mem.Get(global(n), typ, true)
	if err != nil {
		t.Fatalf("GLOBAL(%d): %v", n, err)
	}
	if got != want {
		t.Errorf("GLOBAL(%d) = %v, want %v", n, got, want)
	}
}

func TestStoreImmediateAndExit(t *testing.T) {
	m := run(t, `
		puti uint null GLOBAL(0) 0x13C
		jump null null 0xFFFF
	`)
	expectGlobal(t, m, 0, datatypes.UInt, 0x13C)
	if m.Steps() != 2 {
		t.Errorf("steps = %d", m.Steps())
	}
}

func TestPushPop(t *testing.T) {
	m := run(t, `
		puti uint null GLOBAL(0) 77
		push uint null GLOBAL(0)
		pop uint null GLOBAL(1)
		jump null null 0xFFFF
	`)
	expectGlobal(t, m, 1, datatypes.UInt, 77)
	if sp := m.Mem.RegWord(datatypes.RegSP); sp != m.Mem.Layout().RTS.End() {
		t.Errorf("SP = 0x%04x after push/pop", sp)
	}
	if hw := m.Mem.StackHighWater(); hw != m.Mem.Layout().RTS.End()-datatypes.WordSize {
		t.Errorf("high water = 0x%04x", hw)
	}
}

func TestEquality(t *testing.T) {
	for _, tt := range []struct {
		a, b string
		want float64
	}{
		{"5", "5", 1},
		{"5", "6", 0},
	} {
		m := run(t, `
			puti uint null GLOBAL(0) `+tt.a+`
			puti uint null GLOBAL(1) `+tt.b+`
			epush uint null GLOBAL(0)
			epush uint null GLOBAL(1)
			== uint uint 0
			epop uint null GLOBAL(2)
			jump null null 0xFFFF
		`)
		expectGlobal(t, m, 2, datatypes.UInt, tt.want)
		if d := m.Mem.ExprDepth(); d != 0 {
			t.Errorf("expression stack depth %d", d)
		}
	}
}

func TestBinaryOperators(t *testing.T) {
	tests := []struct {
		op     string
		ta, tb string
		a, b   string
		typ    datatypes.CType
		want   float64
	}{
		{"+", "int", "int", "-3", "10", datatypes.Int, 7},
		{"-", "uint", "uint", "1", "2", datatypes.UInt, 0xFFFFFFFF},
		{"*", "short", "int", "300", "300", datatypes.Int, 90000},
		{"*", "short", "short", "300", "300", datatypes.Short, 24464},
		{"/", "int", "int", "-7", "2", datatypes.Int, -3},
		{"%", "int", "int", "-7", "2", datatypes.Int, -1},
		{"/", "int", "int", "7", "0", datatypes.Int, 0},
		{"/", "uint", "uint", "7", "0", datatypes.UInt, 0},
		{"+", "float", "float", "1.5", "2.25", datatypes.Float, 3.75},
		{"+", "int", "float", "2", "0.5", datatypes.Float, 2.5},
		{"%", "float", "float", "7.5", "2", datatypes.Float, 1.5},
		{"<", "int", "int", "-1", "0", datatypes.Int, 1},
		{"<", "uint", "int", "0xFFFFFFFF", "0", datatypes.UInt, 0},
		{">=", "int", "int", "2", "2", datatypes.Int, 1},
		{"&&", "int", "int", "2", "0", datatypes.Int, 0},
		{"||", "int", "int", "0", "3", datatypes.Int, 1},
		{"&", "uint", "uint", "0xF0", "0x3C", datatypes.UInt, 0x30},
		{"|", "uint", "uint", "0xF0", "0x0F", datatypes.UInt, 0xFF},
		{"^", "uint", "uint", "0xFF", "0x0F", datatypes.UInt, 0xF0},
		{"<<", "uint", "uint", "1", "4", datatypes.UInt, 16},
		{">>", "uchar", "uint", "0x80", "7", datatypes.UInt, 1},
	}
	for _, tt := range tests {
		t.Run(tt.op+" "+tt.ta+" "+tt.tb, func(t *testing.T) {
			m := run(t, strings.Join([]string{
				"puti " + tt.ta + " null GLOBAL(0) " + tt.a,
				"puti " + tt.tb + " null GLOBAL(1) " + tt.b,
				"epush " + tt.ta + " null GLOBAL(0)",
				"epush " + tt.tb + " null GLOBAL(1)",
				tt.op + " " + tt.ta + " " + tt.tb + " 0",
				"epop " + tt.typ.Alias() + " null GLOBAL(2)",
				"jump null null 0xFFFF",
			}, "\n"))
			expectGlobal(t, m, 2, tt.typ, tt.want)
		})
	}
}

func TestBitwiseOperandType(t *testing.T) {
	m, img := load(t, `
		puti int null GLOBAL(0) 1
		epush int null GLOBAL(0)
		epush int null GLOBAL(0)
		& int int 0
		jump null null 0xFFFF
	`)
	err := m.Execute(img.Entry)
	if !errors.Is(err, datatypes.ErrOperandType) {
		t.Fatalf("err = %v", err)
	}
	if m.State() != StateFaulted || m.Err() != err {
		t.Errorf("state = %v, Err = %v", m.State(), m.Err())
	}
	var f *datatypes.Fault
	if !errors.As(err, &f) || f.Line != 5 || f.Addr != 28 {
		t.Errorf("fault = %+v", f)
	}
	if m.LastLine() != 5 {
		t.Errorf("last line %d", m.LastLine())
	}
	if err := m.Step(); !errors.Is(err, datatypes.ErrHalt) {
		t.Errorf("step after fault: %v", err)
	}
}

func TestUnary(t *testing.T) {
	m := run(t, `
		puti int null GLOBAL(0) -3
		get int null GLOBAL(0)
		cast int float 0
		put float null GLOBAL(1)
		epush int null GLOBAL(0)
		test int null 0
		put int null GLOBAL(2)
		puti uchar null GLOBAL(3) 0x0F
		epush uchar null GLOBAL(3)
		~ uchar null 0
		epop uchar null GLOBAL(4)
		puti uint null GLOBAL(5) 0
		epush uint null GLOBAL(5)
		! uint null 0
		epop uint null GLOBAL(6)
		jump null null 0xFFFF
	`)
	expectGlobal(t, m, 1, datatypes.Float, -3)
	expectGlobal(t, m, 2, datatypes.Int, 1)
	expectGlobal(t, m, 4, datatypes.UChar, 0xF0)
	expectGlobal(t, m, 6, datatypes.UInt, 1)
}

func TestConditionalJumps(t *testing.T) {
	m := run(t, `
		puti uint null GLOBAL(0) 0
		get uint null GLOBAL(0)
		jif null null skip
		puti uint null GLOBAL(1) 1
	skip:
		jit null null never
		puti uint null GLOBAL(2) 2
		jump null null 0xFFFF
	never:
		puti uint null GLOBAL(3) 3
		jump null null 0xFFFF
	`)
	if _, err := m.Mem.Get(global(1), datatypes.UInt, true); !errors.Is(err, datatypes.ErrUninitialized) {
		t.Errorf("jif fell through: %v", err)
	}
	expectGlobal(t, m, 2, datatypes.UInt, 2)
	if _, err := m.Mem.Get(global(3), datatypes.UInt, true); err == nil {
		t.Errorf("jit taken with R1 = 0")
	}
}

func TestCountingLoop(t *testing.T) {
	m := run(t, `
		puti int null GLOBAL(0) 0
		puti int null GLOBAL(1) 1
		puti int null GLOBAL(2) 10
	loop:
		epush int null GLOBAL(0)
		epush int null GLOBAL(1)
		+ int int 0
		epop int null GLOBAL(0)
		epush int null GLOBAL(0)
		epush int null GLOBAL(2)
		< int int 0
		test int null 0
		jit null null loop
		jump null null 0xFFFF
	`)
	expectGlobal(t, m, 0, datatypes.Int, 10)
}

func TestCallReturn(t *testing.T) {
	m, img := load(t, `
		call null null square
		jump null null 0xFFFF
	square:
		puti int null GLOBAL(0) 9
		get int null SP
		put uint null GLOBAL(1)
		ret
	`)
	if err := m.Execute(img.Entry); err != nil {
		t.Fatal(err)
	}
	expectGlobal(t, m, 0, datatypes.Int, 9)
	// SP inside the callee is one word below the caller's
	expectGlobal(t, m, 1, datatypes.UInt, float64(m.Mem.Layout().RTS.End()-datatypes.WordSize))
	if sp := m.Mem.RegWord(datatypes.RegSP); sp != m.Mem.Layout().RTS.End() {
		t.Errorf("SP = 0x%04x after return", sp)
	}
	if recs := m.Mem.ActivationRecords(); len(recs) != 0 {
		t.Errorf("records left: %v", recs)
	}
}

func TestActivationRecordNamed(t *testing.T) {
	m, img := load(t, `
		call null null worker
		jump null null 0xFFFF
	worker:
		jump null null 0xFFFF
	`)
	if err := m.Execute(img.Entry); err != nil {
		t.Fatal(err)
	}
	recs := m.Mem.ActivationRecords()
	if len(recs) != 1 || recs[0].Name != "worker" {
		t.Errorf("records = %+v", recs)
	}
}

func TestStepBudget(t *testing.T) {
	m, img := load(t, "loop: jump null null loop", WithMaxSteps(10))
	err := m.Execute(img.Entry)
	if !errors.Is(err, datatypes.ErrStepBudget) {
		t.Fatalf("err = %v", err)
	}
	if m.Steps() != 10 || m.State() != StateFaulted {
		t.Errorf("steps = %d, state = %v", m.Steps(), m.State())
	}
}

func TestRuntimeFaults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind error
	}{
		{"store into prog", "puti uint null 0x0010 5", datatypes.ErrRegion},
		{"odd address", "puti uint null 0x2801 5", datatypes.ErrAlignment},
		{"puti without data", "puti uint null GLOBAL(0)", datatypes.ErrOperandType},
		{"pop empty stack", "pop uint null GLOBAL(0)", datatypes.ErrRegion},
		{"epop empty stack", "epop uint null GLOBAL(0)", datatypes.ErrRegion},
		{"virgin prog", "", datatypes.ErrHalt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, img := load(t, tt.src)
			err := m.Execute(img.Entry)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			if m.State() != StateFaulted {
				t.Errorf("state = %v", m.State())
			}
		})
	}
}

func TestStepAndResume(t *testing.T) {
	m, _ := load(t, `
		puti uint null GLOBAL(0) 1
		puti uint null GLOBAL(1) 2
		jump null null 0xFFFF
	`)
	if err := m.Step(); err != nil {
		t.Fatal(err)
	}
	if pc := m.Mem.RegWord(datatypes.RegPC); pc != 12 {
		t.Errorf("PC = %d after one step", pc)
	}
	if m.State() != StateRunning {
		t.Errorf("state = %v", m.State())
	}
	if err := m.Resume(); err != nil {
		t.Fatal(err)
	}
	expectGlobal(t, m, 1, datatypes.UInt, 2)

	// a second Execute starts from fresh registers
	if err := m.Execute(0); err != nil {
		t.Fatal(err)
	}
	if m.Steps() != 3 {
		t.Errorf("steps = %d", m.Steps())
	}
}

func TestTraceAndDump(t *testing.T) {
	var trace bytes.Buffer
	m := run(t, "puti uint null GLOBAL(0) 1\njump null null 0xFFFF", WithTrace(&trace))
	if !strings.Contains(trace.String(), "0000: puti unsigned int") {
		t.Errorf("trace = %q", trace.String())
	}
	dump := m.Dump()
	for _, want := range []string{"halted", "PC", "R1"} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}
}
