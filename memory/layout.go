package memory

import (
	"fmt"
	"sort"

	"ccvm/datatypes"
)

// Region is a named, disjoint slice of the address space.
type Region struct {
	Name   string
	Start  datatypes.Address
	Length datatypes.Address
}

func (r Region) End() datatypes.Address {
	return r.Start + r.Length
}

// Contains reports whether [addr, addr+size) lies wholly inside r.
func (r Region) Contains(addr datatypes.Address, size int) bool {
	return addr >= r.Start && addr < r.End() && uint64(addr)+uint64(size) <= uint64(r.End())
}

const (
	RegionProg = "prog"
	RegionReg  = "reg"
	RegionES   = "es"
	RegionDefs = "defs"
	RegionGAS  = "gas"
	RegionHeap = "heap"
	RegionRTS  = "rts"
)

// Layout is the partition of the address space:
//
//	0x0000 +-------+ prog   instructions and debug words
//	0x1C00 +-------+ reg    PC SP ESP FP R1 R2 R3
//	0x2000 +-------+ es     expression stack, grows down
//	0x2400 +-------+ defs   #define constants, below gas
//	0x2800 +-------+ gas    globals and statics, grows up
//	0x3000 +-------+ heap   grows up
//	0x4000 +-------+ rts    run-time stack, grows down
//	0x4400 +-------+
type Layout struct {
	Prog, Reg, ES, Defs, GAS, Heap, RTS Region
}

func DefaultLayout() Layout {
	return Layout{
		Prog: Region{RegionProg, 0x0000, 0x1C00},
		Reg:  Region{RegionReg, 0x1C00, datatypes.Address(datatypes.NumRegisters * datatypes.WordSize)},
		ES:   Region{RegionES, 0x2000, 1024},
		Defs: Region{RegionDefs, 0x2400, 1024},
		GAS:  Region{RegionGAS, 0x2800, 2048},
		Heap: Region{RegionHeap, 0x3000, 4096},
		RTS:  Region{RegionRTS, 0x4000, 1024},
	}
}

func (l Layout) Regions() []Region {
	return []Region{l.Prog, l.Reg, l.ES, l.Defs, l.GAS, l.Heap, l.RTS}
}

// DataRegions are the regions reachable through Get and Set.
func (l Layout) DataRegions() []Region {
	return []Region{l.Defs, l.GAS, l.Heap, l.RTS}
}

func (l Layout) internalRegions() []Region {
	return []Region{l.Reg, l.ES, l.Defs, l.GAS, l.Heap, l.RTS}
}

func (l Layout) Region(name string) (Region, bool) {
	for _, r := range l.Regions() {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// RegionOf finds the region holding addr.
func (l Layout) RegionOf(addr datatypes.Address) (Region, bool) {
	for _, r := range l.Regions() {
		if r.Contains(addr, 1) {
			return r, true
		}
	}
	return Region{}, false
}

// Size is the number of bytes needed to back every region.
func (l Layout) Size() datatypes.Address {
	var size datatypes.Address
	for _, r := range l.Regions() {
		if r.End() > size {
			size = r.End()
		}
	}
	return size
}

// Validate checks that regions are word aligned, disjoint, addressable by
// the 16-bit operand field, and that defs sits right below gas.
func (l Layout) Validate() error {
	regions := l.Regions()
	for _, r := range regions {
		if r.Length == 0 {
			return fmt.Errorf("region %s is empty", r.Name)
		}
		if r.Start%datatypes.WordSize != 0 || r.Length%datatypes.WordSize != 0 {
			return fmt.Errorf("region %s is not word aligned", r.Name)
		}
		if r.End() > 0x10000 {
			return fmt.Errorf("region %s ends past 0xffff", r.Name)
		}
	}
	if l.Reg.Length < datatypes.Address(datatypes.NumRegisters*datatypes.WordSize) {
		return fmt.Errorf("region reg holds fewer than %d registers", datatypes.NumRegisters)
	}
	if l.Defs.End() != l.GAS.Start {
		return fmt.Errorf("region defs must end where gas starts (0x%04x != 0x%04x)", l.Defs.End(), l.GAS.Start)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })
	for i := 1; i < len(regions); i++ {
		if regions[i].Start < regions[i-1].End() {
			return fmt.Errorf("regions %s and %s overlap", regions[i-1].Name, regions[i].Name)
		}
	}
	return nil
}
