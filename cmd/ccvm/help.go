package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"ccvm/assembler"
	"ccvm/datatypes"
)

type HelpMenu struct {
	instructions []string
	registers    []string
	directives   []string
}

func NewHelpMenu() *HelpMenu {
	hm := &HelpMenu{}
	for name, info := range datatypes.InstMap() {
		args := "typeA typeB"
		if info.NumArgs > 0 {
			args += " address"
		}
		if info.Flags&datatypes.InstFlagImmediate != 0 {
			args += " data..."
		}
		hm.instructions = append(hm.instructions, fmt.Sprintf("%-6s %s", name, args))
	}
	sort.Strings(hm.instructions)
	for _, reg := range datatypes.Registers() {
		hm.registers = append(hm.registers, fmt.Sprintf("%-4s %s", reg.Name, reg.Longdesc))
	}
	for name := range assembler.Directives() {
		hm.directives = append(hm.directives, name)
	}
	sort.Strings(hm.directives)
	return hm
}

func (hm *HelpMenu) Write(w io.Writer) {
	fmt.Fprintf(w, "Instructions:\n  %s\n", strings.Join(hm.instructions, "\n  "))
	fmt.Fprintf(w, "Registers:\n  %s\n", strings.Join(hm.registers, "\n  "))
	fmt.Fprintf(w, "Directives:\n  %s\n", strings.Join(hm.directives, "  "))
	fmt.Fprintf(w, "Addresses: number, label, register, GLOBAL(n), DEFINE(n), HEAP(n), STACK(n)\n")
}
