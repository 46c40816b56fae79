package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ccvm/assembler"
	"ccvm/assembler/macroprocessor"
	"ccvm/config"
	"ccvm/datatypes"
	"ccvm/memory"
	"ccvm/simulator"

	"github.com/peterh/liner"
)

const (
	historyFile = ".ccvm_history"
	banner      = "ccvm REPL. Lines are assembled at the cursor; Ctrl+D exits. Type :help for commands."
	helpText    = `
REPL commands:
  :help              Show this help
  :isa               List instructions, registers and directives
  :quit / :exit      Exit the REPL
  :run [label|addr]  Run from the entry point or the given address
  :step [n]          Execute n instructions (default 1)
  :regs              Show the registers
  :mem <start> [len] Show data words (addresses may use GLOBAL(n) etc.)
  :list              Disassemble everything written so far
  :load <file>       Assemble a source file at the cursor
  :dump              Print the machine state
  :reset             Clear memory, labels and the cursor
`
)

type session struct {
	cfg    *config.Config
	mem    *memory.Memory
	asm    *assembler.Assembler
	vm     *simulator.Machine
	cursor datatypes.Address
	line   int
	out    io.Writer
}

func newSession(cfg *config.Config, out io.Writer) (*session, error) {
	mem, err := cfg.NewMemory()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, mem: mem, out: out}
	s.reset()
	return s, nil
}

func (s *session) reset() {
	s.mem.Reset()
	s.asm = assembler.MakeAssembler(s.mem)
	opts := []simulator.Option{simulator.WithMaxSteps(s.cfg.Machine.MaxSteps)}
	if s.cfg.Machine.Trace {
		opts = append(opts, simulator.WithTrace(s.out))
	}
	s.vm = simulator.MakeMachine(s.mem, opts...)
	s.cursor = s.mem.Layout().Prog.Start
	s.line = 0
}

func (s *session) assemble(text string) error {
	s.line++
	return s.asm.Write(text, &s.cursor, s.line)
}

// prepare patches labels and hands the machine the current label names.
func (s *session) prepare() error {
	if err := s.asm.Resolve(); err != nil {
		return err
	}
	s.vm.SetFunctionNames(s.asm.Image().FunctionNames())
	return nil
}

func (s *session) report(err error) {
	if err == nil {
		fmt.Fprintf(s.out, "ok (%d instructions)\n", s.vm.Steps())
		return
	}
	if errors.Is(err, datatypes.ErrProgramExit) {
		fmt.Fprintf(s.out, "program exit after %d instructions\n", s.vm.Steps())
		return
	}
	fmt.Fprintf(s.out, "error: %v\n", err)
}

func (s *session) address(tok string) (datatypes.Address, error) {
	addr, label, err := s.asm.ParseAddress(tok)
	if err != nil {
		return 0, err
	}
	if label != "" {
		return 0, fmt.Errorf("undefined label %q", label)
	}
	return addr, nil
}

// command runs one :command and reports whether the REPL should exit.
func (s *session) command(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case ":help":
		fmt.Fprint(s.out, helpText)

	case ":isa":
		NewHelpMenu().Write(s.out)

	case ":quit", ":exit":
		return true

	case ":reset":
		s.reset()
		fmt.Fprintln(s.out, "machine reset.")

	case ":run":
		if err := s.prepare(); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		pc := s.asm.Entry()
		if len(fields) > 1 {
			addr, err := s.address(fields[1])
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
				return false
			}
			pc = addr
		}
		s.vm.InitAll()
		s.report(s.vm.Execute(pc))

	case ":step":
		n := 1
		if len(fields) > 1 {
			v, err := datatypes.ParseNum(fields[1])
			if err != nil || v < 1 {
				fmt.Fprintf(s.out, "usage: :step [n]\n")
				return false
			}
			n = int(v)
		}
		if err := s.prepare(); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		if s.vm.State() != simulator.StateRunning {
			s.vm.InitAll()
			s.mem.SetRegWord(datatypes.RegPC, s.asm.Entry())
		}
		for i := 0; i < n; i++ {
			if err := s.vm.Step(); err != nil {
				s.report(err)
				return false
			}
		}
		fmt.Fprintf(s.out, "pc = 0x%04x (line %d)\n", s.mem.RegWord(datatypes.RegPC), s.vm.LastLine())

	case ":regs":
		registerTable(s.mem).Render(s.out)

	case ":mem":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: :mem <start> [len]")
			return false
		}
		start, err := s.address(fields[1])
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		length := datatypes.Address(datatypes.WordSize)
		if len(fields) > 2 {
			v, err := datatypes.ParseNum(fields[2])
			if err != nil || v < 1 {
				fmt.Fprintln(s.out, "usage: :mem <start> [len]")
				return false
			}
			length = datatypes.Address(v)
		}
		memoryTable(s.mem, start, length).Render(s.out)

	case ":list":
		fmt.Fprint(s.out, s.asm.Image().Listing())

	case ":load":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: :load <file>")
			return false
		}
		if err := s.load(fields[1]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}

	case ":dump":
		fmt.Fprintln(s.out, s.vm.Dump())

	default:
		fmt.Fprintf(s.out, "unknown command %s, try :help\n", fields[0])
	}
	return false
}

// load assembles a file line by line at the cursor; macros are expanded
// with the file's own definitions.
func (s *session) load(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines, err := macroprocessor.Process(string(src))
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := s.asm.Write(l.Text, &s.cursor, l.Line); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func runREPL(cfg *config.Config) int {
	s, err := newSession(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		text, err := ln.Prompt(fmt.Sprintf("%04x> ", s.cursor))
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			fmt.Println()
			break
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(trimmed)

		if strings.HasPrefix(trimmed, ":") {
			if s.command(trimmed) {
				break
			}
			continue
		}
		if err := s.assemble(text); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return 0
}
