// Package linker joins separately assembled images into one program.
package linker

import (
	"fmt"
	"sort"
	"strings"

	"ccvm/assembler"
	"ccvm/datatypes"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

type LinkerMode byte

const (
	// Relocator places the images one after another from the origin of
	// the first.
	Relocator LinkerMode = iota
	// Absolute places them from a fixed load address.
	Absolute
)

func (m LinkerMode) String() string {
	switch m {
	case Relocator:
		return "relocator"
	case Absolute:
		return "absolute"
	default:
		return fmt.Sprintf("LinkerMode(%d)", byte(m))
	}
}

type Linker struct {
	mode        LinkerMode
	loadAddress datatypes.Address
	// EntryLabel, when defined by any image, becomes the entry point.
	EntryLabel string

	log commonlog.Logger
}

func MakeRelocatorLinker() *Linker {
	return &Linker{mode: Relocator, EntryLabel: "main", log: commonlog.GetLogger("ccvm.linker")}
}

func MakeAbsoluteLinker(loadAddress datatypes.Address) *Linker {
	l := MakeRelocatorLinker()
	l.mode = Absolute
	l.loadAddress = loadAddress
	return l
}

func linkError(format string, args ...any) error {
	return fmt.Errorf("%w: link: %s", datatypes.ErrAssembler, fmt.Sprintf(format, args...))
}

type placement struct {
	img  *assembler.Image
	base datatypes.Address
}

func patch(word datatypes.Word, target datatypes.Address) datatypes.Word {
	return word&^0xffff | target&0xffff
}

// GenerateExecutable lays the images out word-aligned, relocates every
// label reference, resolves external references against the labels of all
// images and returns the joined image.
func (l *Linker) GenerateExecutable(objects []*assembler.Image) (*assembler.Image, error) {
	if len(objects) == 0 {
		return nil, linkError("no objects")
	}

	base := objects[0].Origin
	if l.mode == Absolute {
		base = l.loadAddress
	}
	if base%datatypes.WordSize != 0 {
		return nil, linkError("load address 0x%04x is not word aligned", base)
	}

	exe := &assembler.Image{
		Magic:  assembler.ImageMagic,
		ID:     uuid.New().String(),
		Origin: base,
		Entry:  base,
		Lines:  make(map[datatypes.Address]int),
		Labels: make(map[string]datatypes.Address),
	}

	var names []string
	places := make([]placement, 0, len(objects))
	cursor := base
	for i, obj := range objects {
		if obj == nil {
			return nil, linkError("object %d is missing", i)
		}
		places = append(places, placement{img: obj, base: cursor})
		delta := cursor - obj.Origin
		for name, addr := range obj.Labels {
			if prev, taken := exe.Labels[name]; taken {
				return nil, linkError("label %q defined twice (0x%04x and 0x%04x)", name, prev, addr+delta)
			}
			exe.Labels[name] = addr + delta
		}
		for addr, line := range obj.Lines {
			exe.Lines[addr+delta] = line
		}
		if obj.Name != "" {
			names = append(names, obj.Name)
		}
		exe.Words = append(exe.Words, obj.Words...)
		cursor += datatypes.Address(len(obj.Words) * datatypes.WordSize)
		if cursor > 0xffff {
			return nil, linkError("program does not fit 16-bit addresses")
		}
	}
	exe.Name = strings.Join(names, "+")

	for _, p := range places {
		delta := p.base - p.img.Origin
		end := p.img.Origin + datatypes.Address(len(p.img.Words)*datatypes.WordSize)
		for _, at := range p.img.Relocs {
			if _, external := p.img.Externs[at]; external {
				continue
			}
			index, err := l.wordIndex(exe, at+delta)
			if err != nil {
				return nil, err
			}
			target := exe.Words[index] & 0xffff
			if target < p.img.Origin || target > end {
				continue
			}
			exe.Words[index] = patch(exe.Words[index], target+delta)
			exe.Relocs = append(exe.Relocs, at+delta)
		}

		externs := make([]datatypes.Address, 0, len(p.img.Externs))
		for at := range p.img.Externs {
			externs = append(externs, at)
		}
		sort.Slice(externs, func(i, j int) bool { return externs[i] < externs[j] })
		for _, at := range externs {
			name := p.img.Externs[at]
			target, found := exe.Labels[name]
			if !found {
				return nil, linkError("undefined label %q referenced at 0x%04x of %s", name, at, p.img.Name)
			}
			index, err := l.wordIndex(exe, at+delta)
			if err != nil {
				return nil, err
			}
			exe.Words[index] = patch(exe.Words[index], target)
			exe.Relocs = append(exe.Relocs, at+delta)
		}
	}
	sort.Slice(exe.Relocs, func(i, j int) bool { return exe.Relocs[i] < exe.Relocs[j] })

	first := places[0]
	exe.Entry = first.img.Entry + first.base - first.img.Origin
	if entry, found := exe.Labels[l.EntryLabel]; found && l.EntryLabel != "" {
		exe.Entry = entry
	}

	l.log.Infof("%s link of %d objects: %d words at 0x%04x, entry 0x%04x",
		l.mode, len(objects), len(exe.Words), exe.Origin, exe.Entry)
	return exe, nil
}

func (l *Linker) wordIndex(exe *assembler.Image, at datatypes.Address) (int, error) {
	if at < exe.Origin || at%datatypes.WordSize != 0 {
		return 0, linkError("reference at 0x%04x is outside the program", at)
	}
	index := int((at - exe.Origin) / datatypes.WordSize)
	if index >= len(exe.Words) {
		return 0, linkError("reference at 0x%04x is outside the program", at)
	}
	return index, nil
}
