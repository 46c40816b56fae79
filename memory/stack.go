package memory

import (
	"ccvm/datatypes"
)

// Stack and expression-stack slots are one word wide. Integral values are
// kept as a two's complement word and floating values as a float word, so a
// value pushed with type t pops back unchanged with type t.

func (m *Memory) writeSlot(addr datatypes.Address, t datatypes.CType, v float64) {
	m.store(addr, t.SlotType(), Convert(t, v))
}

func (m *Memory) readSlot(addr datatypes.Address, t datatypes.CType) float64 {
	if t.Floating() {
		return m.load(addr, datatypes.Float)
	}
	return FromBits(t, ToBits(datatypes.UInt, m.load(addr, datatypes.UInt)))
}

func (m *Memory) push(sp datatypes.RegisterID, region Region, t datatypes.CType, v float64) (datatypes.Address, error) {
	top := m.RegWord(sp)
	if top < region.Start+datatypes.WordSize || top > region.End() {
		return top, fault(datatypes.ErrRegion, top, "%s overflow", region.Name)
	}
	top -= datatypes.WordSize
	m.SetRegWord(sp, top)
	m.writeSlot(top, t, v)
	return top, nil
}

func (m *Memory) pop(sp datatypes.RegisterID, region Region, t datatypes.CType) (float64, error) {
	top := m.RegWord(sp)
	if top < region.Start || top+datatypes.WordSize > region.End() {
		return 0, fault(datatypes.ErrRegion, top, "%s underflow", region.Name)
	}
	v := m.readSlot(top, t)
	m.SetRegWord(sp, top+datatypes.WordSize)
	return v, nil
}

// StackPush decrements SP by one word and stores v there.
func (m *Memory) StackPush(t datatypes.CType, v float64) (datatypes.Address, error) {
	addr, err := m.push(datatypes.RegSP, m.layout.RTS, t, v)
	if err == nil && addr < m.highWater {
		m.highWater = addr
	}
	return addr, err
}

func (m *Memory) StackPop(t datatypes.CType) (float64, error) {
	return m.pop(datatypes.RegSP, m.layout.RTS, t)
}

// StackHighWater is the lowest address the run-time stack has reached
// since the last reset.
func (m *Memory) StackHighWater() datatypes.Address {
	return m.highWater
}

func (m *Memory) ExprPush(t datatypes.CType, v float64) error {
	_, err := m.push(datatypes.RegESP, m.layout.ES, t, v)
	return err
}

func (m *Memory) ExprPop(t datatypes.CType) (float64, error) {
	return m.pop(datatypes.RegESP, m.layout.ES, t)
}

// ExprDepth is the number of words on the expression stack.
func (m *Memory) ExprDepth() int {
	return int(m.layout.ES.End()-m.RegWord(datatypes.RegESP)) / datatypes.WordSize
}

// ActivationRecord marks the stack extent of one function call. Start is
// SP when the call began; the callee's frame lies below it.
type ActivationRecord struct {
	Start datatypes.Address
	Name  string
}

func (m *Memory) BeginActivationRecord(start datatypes.Address) {
	m.records = append(m.records, ActivationRecord{Start: start})
}

// NameActivationRecord names the innermost activation record.
func (m *Memory) NameActivationRecord(name string) {
	if len(m.records) > 0 {
		m.records[len(m.records)-1].Name = name
	}
}

// EndActivationRecord pops the innermost record and forgets the symbol
// metadata of its frame, everything between the bottom of rts and the
// record's start.
func (m *Memory) EndActivationRecord() {
	if len(m.records) == 0 {
		return
	}
	rec := m.records[len(m.records)-1]
	m.records = m.records[:len(m.records)-1]
	for addr := range m.symbols {
		if addr >= m.layout.RTS.Start && addr < rec.Start {
			delete(m.symbols, addr)
		}
	}
	m.log.Debugf("end activation record %q at 0x%04x", rec.Name, rec.Start)
}

func (m *Memory) ActivationRecords() []ActivationRecord {
	out := make([]ActivationRecord, len(m.records))
	copy(out, m.records)
	return out
}

// owner names the activation record whose frame holds addr.
func (m *Memory) owner(addr datatypes.Address) (string, bool) {
	for i := len(m.records) - 1; i >= 0; i-- {
		if addr < m.records[i].Start {
			return m.records[i].Name, true
		}
	}
	return "", false
}
