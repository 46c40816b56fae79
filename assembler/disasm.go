package assembler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ccvm/datatypes"
	"ccvm/memory"
)

// Disassemble renders one instruction in the syntax Write accepts. Data
// words are shown through the instruction's first type.
func Disassemble(word, debug datatypes.Word, extra []datatypes.Word) string {
	inst := datatypes.DecodeInstruction(word)
	name := fmt.Sprintf("%v.%d", inst.Op, inst.Sub)
	if info, found := datatypes.MnemonicOf(inst.Op, inst.Sub); found {
		name = info.Name
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s 0x%04x", name, inst.TypeA.Alias(), inst.TypeB.Alias(), inst.Addr)
	for _, w := range extra {
		sb.WriteString(" ")
		sb.WriteString(formatValue(inst.TypeA, w))
	}
	if line := datatypes.DecodeDebugWord(debug).Line; line != 0 {
		fmt.Fprintf(&sb, " ; line %d", line)
	}
	return sb.String()
}

func formatValue(t datatypes.CType, w datatypes.Word) string {
	v := memory.FromBits(t, w)
	if t.Floating() {
		return strconv.FormatFloat(v, 'g', -1, 32)
	}
	if t.Unsigned() {
		return fmt.Sprintf("0x%x", uint64(v))
	}
	return strconv.FormatInt(int64(v), 10)
}

// Listing disassembles a whole image, one instruction per line, with labels
// on lines of their own.
func (img *Image) Listing() string {
	byAddr := make(map[datatypes.Address][]string)
	for name, addr := range img.Labels {
		byAddr[addr] = append(byAddr[addr], name)
	}

	var sb strings.Builder
	if img.Name != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", img.Name)
	}
	fmt.Fprintf(&sb, "; id %s\n; origin 0x%04x entry 0x%04x, %d words\n", img.ID, img.Origin, img.Entry, len(img.Words))

	for i := 0; i < len(img.Words); {
		addr := img.Origin + datatypes.Address(i*datatypes.WordSize)
		labels := byAddr[addr]
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Fprintf(&sb, "%s:\n", l)
		}
		if i+1 >= len(img.Words) {
			fmt.Fprintf(&sb, "%04x: %08x ; truncated\n", addr, img.Words[i])
			break
		}
		debug := datatypes.DecodeDebugWord(img.Words[i+1])
		end := min(i+2+int(debug.ExtraWords), len(img.Words))
		text := Disassemble(img.Words[i], img.Words[i+1], img.Words[i+2:end])
		fmt.Fprintf(&sb, "%04x: %08x  %s\n", addr, img.Words[i], text)
		i = end
	}
	return sb.String()
}
