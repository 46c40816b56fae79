package memory

import (
	"encoding/binary"
	"math"

	"ccvm/datatypes"

	"github.com/tliron/commonlog"
)

// DefaultVirgin is the byte every cell holds after a reset.
const DefaultVirgin = 0x5A

// Memory is the byte-addressable address space of one machine, together
// with its initialization map and the diagnostic symbol metadata.
type Memory struct {
	layout      Layout
	virgin      byte
	mem         []byte
	initialized []bool
	highWater   datatypes.Address

	symbols map[datatypes.Address]SymbolInfo
	records []ActivationRecord

	log commonlog.Logger
}

type Option func(*Memory)

func WithVirgin(b byte) Option {
	return func(m *Memory) { m.virgin = b }
}

func New(layout Layout, opts ...Option) *Memory {
	m := &Memory{
		layout: layout,
		virgin: DefaultVirgin,
		log:    commonlog.GetLogger("ccvm.memory"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.mem = make([]byte, layout.Size())
	m.initialized = make([]bool, layout.Size())
	m.Reset()
	return m
}

func (m *Memory) Layout() Layout {
	return m.layout
}

func (m *Memory) Virgin() byte {
	return m.virgin
}

// Reset fills memory with the virgin pattern and forgets everything that
// was written, including symbol metadata and activation records.
func (m *Memory) Reset() {
	for i := range m.mem {
		m.mem[i] = m.virgin
		m.initialized[i] = false
	}
	m.symbols = make(map[datatypes.Address]SymbolInfo)
	m.records = nil
	m.highWater = m.layout.RTS.End()
	m.log.Debugf("memory reset: %d bytes, virgin 0x%02x", len(m.mem), m.virgin)
}

func fault(kind error, addr datatypes.Address, format string, args ...any) error {
	return datatypes.NewFault(kind, addr, format, args...)
}

func (m *Memory) check(addr datatypes.Address, t datatypes.CType, allowed []Region) error {
	if !t.Valid() {
		return fault(datatypes.ErrOperandType, addr, "unknown type %d", uint8(t))
	}
	size := t.Size()
	inside := false
	for _, r := range allowed {
		if r.Contains(addr, 1) {
			if !r.Contains(addr, size) {
				return fault(datatypes.ErrRegion, addr,
					"%d-byte %v access runs past the end of region %s", size, t, r.Name)
			}
			inside = true
			break
		}
	}
	if !inside {
		name := "unmapped memory"
		if r, found := m.layout.RegionOf(addr); found {
			name = "region " + r.Name
		}
		return fault(datatypes.ErrRegion, addr, "%v access to %s", t, name)
	}
	if size > 1 && addr%2 != 0 {
		return fault(datatypes.ErrAlignment, addr, "%v access at an odd address", t)
	}
	return nil
}

func (m *Memory) inBuffer(addr datatypes.Address, t datatypes.CType) error {
	if !t.Valid() {
		return fault(datatypes.ErrOperandType, addr, "unknown type %d", uint8(t))
	}
	if int(addr)+t.Size() > len(m.mem) {
		return fault(datatypes.ErrRegion, addr, "access beyond the end of memory")
	}
	return nil
}

func (m *Memory) load(addr datatypes.Address, t datatypes.CType) float64 {
	var buf [4]byte
	copy(buf[:t.Size()], m.mem[addr:])
	return FromBits(t, binary.LittleEndian.Uint32(buf[:]))
}

func (m *Memory) store(addr datatypes.Address, t datatypes.CType, v float64) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], ToBits(t, v))
	size := t.Size()
	copy(m.mem[addr:int(addr)+size], buf[:size])
	for i := 0; i < size; i++ {
		m.initialized[int(addr)+i] = true
	}
}

func (m *Memory) isInitialized(addr datatypes.Address, size int) bool {
	for i := 0; i < size; i++ {
		if !m.initialized[int(addr)+i] {
			return false
		}
	}
	return true
}

// Get reads a value of type t from one of the data regions.
func (m *Memory) Get(addr datatypes.Address, t datatypes.CType, requireInitialized bool) (float64, error) {
	if err := m.check(addr, t, m.layout.DataRegions()); err != nil {
		return 0, err
	}
	if requireInitialized && !m.isInitialized(addr, t.Size()) {
		return 0, fault(datatypes.ErrUninitialized, addr, "%v read of memory never written", t)
	}
	return m.load(addr, t), nil
}

// Set writes v through the typed view t into one of the data regions.
func (m *Memory) Set(addr datatypes.Address, t datatypes.CType, v float64) error {
	if err := m.check(addr, t, m.layout.DataRegions()); err != nil {
		return err
	}
	m.store(addr, t, v)
	return nil
}

// MachineGet reads memory as instructions see it: registers and the
// expression stack are reachable too.
func (m *Memory) MachineGet(addr datatypes.Address, t datatypes.CType) (float64, error) {
	if err := m.check(addr, t, m.layout.internalRegions()); err != nil {
		return 0, err
	}
	return m.load(addr, t), nil
}

func (m *Memory) MachineSet(addr datatypes.Address, t datatypes.CType, v float64) error {
	if err := m.check(addr, t, m.layout.internalRegions()); err != nil {
		return err
	}
	m.store(addr, t, v)
	return nil
}

// Move copies one typed value. Both ends may also be registers or the
// expression stack. With force no region or alignment check is made, which
// is how program memory gets written.
func (m *Memory) Move(src datatypes.Address, srcType datatypes.CType, dest datatypes.Address, destType datatypes.CType, force bool) error {
	if force {
		if err := m.inBuffer(src, srcType); err != nil {
			return err
		}
		if err := m.inBuffer(dest, destType); err != nil {
			return err
		}
	} else {
		allowed := m.layout.internalRegions()
		if err := m.check(src, srcType, allowed); err != nil {
			return err
		}
		if err := m.check(dest, destType, allowed); err != nil {
			return err
		}
	}
	m.store(dest, destType, m.load(src, srcType))
	return nil
}

// ForceGet reads anywhere in the address space without checks.
func (m *Memory) ForceGet(addr datatypes.Address, t datatypes.CType) (float64, error) {
	if err := m.inBuffer(addr, t); err != nil {
		return 0, err
	}
	return m.load(addr, t), nil
}

// ForceSet writes anywhere in the address space without checks.
func (m *Memory) ForceSet(addr datatypes.Address, t datatypes.CType, v float64) error {
	if err := m.inBuffer(addr, t); err != nil {
		return err
	}
	m.store(addr, t, v)
	return nil
}

// Word fetches a raw instruction or data word.
func (m *Memory) Word(addr datatypes.Address) (datatypes.Word, error) {
	if err := m.inBuffer(addr, datatypes.UInt); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.mem[addr:]), nil
}

// Bytes returns a copy of [start, start+length).
func (m *Memory) Bytes(start, length datatypes.Address) []byte {
	end := int(start) + int(length)
	if end > len(m.mem) {
		end = len(m.mem)
	}
	if int(start) >= end {
		return nil
	}
	out := make([]byte, end-int(start))
	copy(out, m.mem[start:end])
	return out
}

func (m *Memory) RegAddr(r datatypes.RegisterID) datatypes.Address {
	return m.layout.Reg.Start + datatypes.Address(r.Info().Slot*datatypes.WordSize)
}

func (m *Memory) GetReg(r datatypes.RegisterID, t datatypes.CType) float64 {
	return m.load(m.RegAddr(r), t)
}

func (m *Memory) SetReg(r datatypes.RegisterID, t datatypes.CType, v float64) {
	m.store(m.RegAddr(r), t, v)
}

// RegWord reads a register as an unsigned word; used for PC, SP and ESP.
func (m *Memory) RegWord(r datatypes.RegisterID) datatypes.Address {
	return datatypes.Address(m.GetReg(r, datatypes.UInt))
}

func (m *Memory) SetRegWord(r datatypes.RegisterID, v datatypes.Address) {
	m.SetReg(r, datatypes.UInt, float64(v))
}

// ToBits converts v to the bit pattern of a t-typed cell, in the low
// bytes of the result. Integral conversion truncates toward zero and wraps
// modulo 2^32; NaN and infinities become 0.
func ToBits(t datatypes.CType, v float64) uint32 {
	if t.Floating() {
		return math.Float32bits(float32(v))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = math.Mod(math.Trunc(v), 1<<32)
	if v < 0 {
		v += 1 << 32
	}
	return uint32(v)
}

// FromBits interprets the low bytes of bits as a value of type t.
func FromBits(t datatypes.CType, bits uint32) float64 {
	switch t {
	case datatypes.Char:
		return float64(int8(bits))
	case datatypes.UChar:
		return float64(uint8(bits))
	case datatypes.Short:
		return float64(int16(bits))
	case datatypes.UShort, datatypes.Pointer:
		return float64(uint16(bits))
	case datatypes.Int, datatypes.Long, datatypes.LongLong:
		return float64(int32(bits))
	case datatypes.Float, datatypes.Double:
		return float64(math.Float32frombits(bits))
	default:
		return float64(bits)
	}
}

// Convert returns v as it reads back after being stored with type t.
func Convert(t datatypes.CType, v float64) float64 {
	return FromBits(t, ToBits(t, v))
}
