package memory

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"ccvm/datatypes"
)

// Symbol is what the metadata table needs to know about a declared name.
type Symbol interface {
	Name() string
	TypeName() string
	Unsigned() bool
	Size() int
	PointerCount() int
	ArraySizes() []int
	IsParameter() bool
	ScopeName() string
}

// SymbolInfo is the diagnostic record kept for one address. It never
// affects execution.
type SymbolInfo struct {
	Name     string
	Type     string
	Unsigned bool
	Size     int
	Pointer  int
	Array    []int
	Param    bool
	Scope    string
}

func (m *Memory) SetSymbolInfo(addr datatypes.Address, sym Symbol, prefix string) {
	m.symbols[addr] = SymbolInfo{
		Name:     prefix + sym.Name(),
		Type:     sym.TypeName(),
		Unsigned: sym.Unsigned(),
		Size:     sym.Size(),
		Pointer:  sym.PointerCount(),
		Array:    sym.ArraySizes(),
		Param:    sym.IsParameter(),
		Scope:    sym.ScopeName(),
	}
}

func (m *Memory) SymbolInfoAt(addr datatypes.Address) (SymbolInfo, bool) {
	info, found := m.symbols[addr]
	return info, found
}

// SymbolAddresses lists every address carrying metadata, ascending.
func (m *Memory) SymbolAddresses() []datatypes.Address {
	out := make([]datatypes.Address, 0, len(m.symbols))
	for addr := range m.symbols {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Record is one word of the data model.
type Record struct {
	Addr     datatypes.Address
	Name     string
	Type     string
	Unsigned bool
	Size     int
	Pointer  int
	Array    []int
	Param    bool
	Group    string
	Values   []float64
	Bytes    []byte
}

func (m *Memory) valueType(info SymbolInfo, found bool) datatypes.CType {
	if !found {
		return datatypes.UInt
	}
	if info.Pointer > 0 {
		return datatypes.Pointer
	}
	name := info.Type
	if info.Unsigned && !strings.HasPrefix(name, "unsigned") {
		name = "unsigned " + name
	}
	if t, ok := datatypes.ParseCType(name); ok {
		return t
	}
	return datatypes.UInt
}

// DataModel describes every word of [start, start+length) that lies in a
// data region. A zero length means through the end of rts. Stack words
// below the stack high-water mark are skipped.
func (m *Memory) DataModel(start, length datatypes.Address) []Record {
	end := m.layout.RTS.End()
	if length > 0 && start+length < end {
		end = start + length
	}
	start -= start % datatypes.WordSize

	var model []Record
	for addr := start; addr < end; addr += datatypes.WordSize {
		region, found := m.layout.RegionOf(addr)
		if !found {
			continue
		}
		switch region.Name {
		case RegionDefs, RegionGAS, RegionHeap:
		case RegionRTS:
			if addr < m.highWater {
				continue
			}
		default:
			continue
		}

		info, known := m.symbols[addr]
		rec := Record{
			Addr:     addr,
			Name:     info.Name,
			Type:     info.Type,
			Unsigned: info.Unsigned,
			Size:     info.Size,
			Pointer:  info.Pointer,
			Array:    info.Array,
			Param:    info.Param,
			Group:    region.Name,
			Bytes:    m.Bytes(addr, datatypes.WordSize),
		}
		if region.Name == RegionRTS {
			if name, owned := m.owner(addr); owned && name != "" {
				rec.Group = name
			}
		}
		t := m.valueType(info, known)
		for off := 0; off+t.Size() <= datatypes.WordSize; off += t.Size() {
			rec.Values = append(rec.Values, m.load(addr+datatypes.Address(off), t))
		}
		model = append(model, rec)
	}
	return model
}

// PrettyPrint writes one line per word: a name column 24 wide, the address
// as four hex digits, then the bytes. The label names the first line and
// known symbols name the rest.
func (m *Memory) PrettyPrint(w io.Writer, label string, start, length datatypes.Address) error {
	data := m.Bytes(start, length)
	for i := 0; i < len(data); i += datatypes.WordSize {
		addr := start + datatypes.Address(i)
		name := ""
		if info, found := m.symbols[addr]; found {
			name = info.Name
		}
		if i == 0 {
			name = label
		}
		parts := make([]string, 0, datatypes.WordSize)
		for j := i; j < i+datatypes.WordSize && j < len(data); j++ {
			parts = append(parts, fmt.Sprintf("%02x", data[j]))
		}
		if _, err := fmt.Fprintf(w, "%-24s%04x: %s\n", name, addr, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}
