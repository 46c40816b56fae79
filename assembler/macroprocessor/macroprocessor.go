package macroprocessor

import (
	"errors"
	"fmt"
	"strings"

	"ccvm/datatypes"

	"github.com/tliron/commonlog"
)

const (
	GND  = 0
	META = 1
	BODY = 2
	// all subsequent states are clones of body
)

// maxDepth bounds macro calls nested inside expansions, which stops
// self-recursive macros.
const maxDepth = 64

var (
	ErrMacroSyntax = errors.New("bad macro syntax")
	ErrMacroArgs   = errors.New("number of arguments doesn't match")
	ErrUnbalanced  = errors.New("unbalanced MACRO/MEND")
)

// SourceLine is one output line together with the source line it came from.
type SourceLine struct {
	Line int
	Text string
}

type Info struct {
	macros     map[string]*Macro
	state      int
	currentDef *MacroMeta
	output     []SourceLine
	log        commonlog.Logger
}

func (info *Info) GetOutput() []SourceLine {
	return info.output
}

type Macro struct {
	args      []string
	body      []string
	uses      int
	definedAt int
}

type MacroMeta struct {
	name      string
	args      []string
	body      []string
	definedAt int
}

// ProcessLine consumes one source line. Macro definitions are recorded,
// everything else is expanded and appended to the output.
func (info *Info) ProcessLine(rawline string, lineNo int) error {
	return info.processLine(rawline, lineNo, 0)
}

func (info *Info) processLine(rawline string, lineNo, depth int) error {
	line, err := datatypes.ParseAsmLine(rawline)
	if errors.Is(err, datatypes.EmptyLineErr) {
		if info.state == GND {
			return nil
		}
		line = datatypes.InLine{Raw: rawline}
	} else if err != nil {
		return err
	}

	if line.Op == "MACRO" {
		info.state++
	}
	if info.state != GND {
		if line.Op == "MEND" {
			info.state--
		}
		return info.handleMacroDef(line, lineNo)
	}
	if line.Op == "MEND" {
		return fmt.Errorf("%w: MEND at line %d", ErrUnbalanced, lineNo)
	}

	macro, found := info.macros[line.Op]
	if !found {
		info.output = append(info.output, SourceLine{Line: lineNo, Text: line.Raw})
		return nil
	}
	if depth >= maxDepth {
		return fmt.Errorf("%w: line %d: macros nested deeper than %d", ErrMacroSyntax, lineNo, maxDepth)
	}
	macro.uses++
	expansion, err := info.expandAndRunMacro(*macro, line)
	if err != nil {
		return fmt.Errorf("line %d: %w", lineNo, err)
	}
	for _, text := range expansion {
		if err := info.processLine(text, lineNo, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (info *Info) handleMacroDef(line datatypes.InLine, lineNo int) error {
	switch {
	case line.Op == "MACRO" && info.state == META && info.currentDef == nil:
		// skip MACRO line
		info.state = BODY
		return nil
	case line.Op == "MEND" && info.state == META:
		meta := info.currentDef
		info.currentDef = nil
		info.state = GND
		if meta == nil {
			return fmt.Errorf("%w: empty macro at line %d", ErrMacroSyntax, lineNo)
		}
		info.macros[meta.name] = &Macro{
			args:      meta.args,
			body:      meta.body,
			definedAt: meta.definedAt,
		}
		info.log.Debugf("macro %s/%d defined at line %d", meta.name, len(meta.args), meta.definedAt)
		return nil
	case info.currentDef == nil:
		// first body line names the macro and its formals
		if line.Op == "" {
			return nil
		}
		if line.Label != "" {
			return fmt.Errorf("%w: label on macro header at line %d", ErrMacroSyntax, lineNo)
		}
		info.currentDef = &MacroMeta{
			name:      line.Op,
			args:      line.Args,
			definedAt: lineNo,
		}
		return nil
	}
	info.currentDef.body = append(info.currentDef.body, line.Raw)
	return nil
}

func (info *Info) expandAndRunMacro(macro Macro, line datatypes.InLine) ([]string, error) {
	if len(line.Args) != len(macro.args) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrMacroArgs, line.Op, len(macro.args), len(line.Args))
	}

	substitutions := make(map[string]string)
	for i, formal := range macro.args {
		substitutions[formal] = line.Args[i]
	}

	var expansion []string
	if line.Label != "" {
		expansion = append(expansion, line.Label+":")
	}
	for _, raw := range macro.body {
		words := strings.Split(raw, " ")
		for i, word := range words {
			if actual, found := substitutions[word]; found {
				words[i] = actual
			}
		}
		expansion = append(expansion, strings.Join(words, " "))
	}
	info.log.Debugf("expanded %s: %q", line.Op, expansion)
	return expansion, nil
}

// Finish reports a definition left open at end of input.
func (info *Info) Finish() error {
	if info.state != GND {
		return ErrUnbalanced
	}
	return nil
}

func (info *Info) MacroReport() string {
	uses := 0
	for _, m := range info.macros {
		uses += m.uses
	}
	return fmt.Sprintf("Macro report:\n\t%d macros\n\t%d expansions", len(info.macros), uses)
}

func MakeMacroProcessor() Info {
	return Info{
		macros: make(map[string]*Macro),
		state:  GND,
		output: make([]SourceLine, 0),
		log:    commonlog.GetLogger("ccvm.macro"),
	}
}

// Process runs every line of src through a fresh processor.
func Process(src string) ([]SourceLine, error) {
	info := MakeMacroProcessor()
	for i, raw := range strings.Split(src, "\n") {
		if err := info.ProcessLine(raw, i+1); err != nil {
			return nil, err
		}
	}
	if err := info.Finish(); err != nil {
		return nil, err
	}
	return info.GetOutput(), nil
}
