package datatypes

import (
	"errors"
	"testing"
)

func TestCTypeTable(t *testing.T) {
	tests := []struct {
		name string
		want CType
		size int
	}{
		{"char", Char, 1},
		{"uchar", UChar, 1},
		{"unsigned  short", UShort, 2},
		{"int", Int, 4},
		{"null", UInt, 4},
		{"long long", LongLong, 4},
		{"ullong", ULongLong, 4},
		{"double", Double, 4},
		{"pointer", Pointer, 2},
	}
	for _, tt := range tests {
		got, ok := ParseCType(tt.name)
		if !ok {
			t.Fatalf("ParseCType(%q) not found", tt.name)
		}
		if got != tt.want {
			t.Errorf("ParseCType(%q) = %v, want %v", tt.name, got, tt.want)
		}
		if got.Size() != tt.size {
			t.Errorf("%v.Size() = %d, want %d", got, got.Size(), tt.size)
		}
	}
	if int(Pointer) != 12 || int(Char) != 0 || int(Float) != 10 {
		t.Errorf("type index table shifted")
	}
	if _, ok := ParseCType("bool"); ok {
		t.Errorf("ParseCType(bool) should fail")
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		a, b, want CType
	}{
		{Double, Char, Double},
		{Double, Float, Double},
		{Float, Int, Float},
		{ULongLong, Long, ULongLong},
		{ULong, Long, ULong},
		{Long, UInt, Long},
		{UInt, Short, UInt},
		{Int, Int, Int},
		{Char, Short, Int},
		{UChar, UChar, UChar},
	}
	for _, tt := range tests {
		if got := Coerce(tt.a, tt.b); got != tt.want {
			t.Errorf("Coerce(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	for a := CType(0); int(a) < NumCTypes; a++ {
		for b := CType(0); int(b) < NumCTypes; b++ {
			if Coerce(a, b) != Coerce(b, a) {
				t.Errorf("Coerce(%v, %v) is not symmetric", a, b)
			}
		}
	}
}

func TestInstructionEncoding(t *testing.T) {
	in := Instruction{Op: OpMemory, Sub: MemPutImmediate, TypeA: UInt, TypeB: UInt, Addr: 0x2800}
	w := in.Encode()
	if w != 0x61552800 {
		t.Fatalf("Encode() = 0x%08x, want 0x61552800", w)
	}
	if out := DecodeInstruction(w); out != in {
		t.Errorf("DecodeInstruction = %+v, want %+v", out, in)
	}

	exit := Instruction{Op: OpJump, Sub: JmpAlways, TypeA: UInt, TypeB: UInt, Addr: ExitAddress}
	if got := exit.Encode() & 0xffff; got != 0xffff {
		t.Errorf("exit address field = 0x%x", got)
	}

	d := DebugWord{ExtraWords: 1, Line: 42}
	if d.Encode() != 0x0100002a {
		t.Errorf("DebugWord.Encode() = 0x%08x", d.Encode())
	}
	if DecodeDebugWord(d.Encode()) != d {
		t.Errorf("DecodeDebugWord mismatch")
	}
	if d.Length() != 12 {
		t.Errorf("Length() = %d, want 12", d.Length())
	}
}

func TestMnemonics(t *testing.T) {
	seen := map[[2]uint8]string{}
	for name, info := range InstMap() {
		key := [2]uint8{uint8(info.Op), info.Sub}
		if other, dup := seen[key]; dup {
			t.Errorf("%s and %s share encoding %v", name, other, key)
		}
		seen[key] = name
		back, ok := MnemonicOf(info.Op, info.Sub)
		if !ok || back.Name != name {
			t.Errorf("MnemonicOf(%v, %d) = %q", info.Op, info.Sub, back.Name)
		}
	}
	if info := InstMap()["%"]; info.Sub != 0x11 {
		t.Errorf("%% subcode = 0x%x, want 0x11", info.Sub)
	}
}

func TestRegisters(t *testing.T) {
	for i, reg := range Registers() {
		if reg.Slot != i {
			t.Errorf("%s slot = %d, want %d", reg.Name, reg.Slot, i)
		}
		id, ok := RegisterByName(reg.Name)
		if !ok || int(id) != i {
			t.Errorf("RegisterByName(%s) = %d, %v", reg.Name, id, ok)
		}
	}
	if _, ok := RegisterByName("acc"); ok {
		t.Errorf("unexpected register acc")
	}
}

func TestFault(t *testing.T) {
	err := error(NewFault(ErrRegion, 0x10, "read of %d bytes", 4))
	if !errors.Is(err, ErrRegion) {
		t.Fatalf("fault does not match its kind")
	}
	if errors.Is(err, ErrAlignment) {
		t.Fatalf("fault matches the wrong kind")
	}
	err = AtLine(err, 7)
	var f *Fault
	if !errors.As(err, &f) || f.Line != 7 {
		t.Fatalf("AtLine did not annotate: %v", err)
	}
	if got := AtLine(err, 9).(*Fault).Line; got != 7 {
		t.Errorf("AtLine overwrote line: %d", got)
	}
}
