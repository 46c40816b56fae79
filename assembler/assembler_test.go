package assembler

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"ccvm/datatypes"
	"ccvm/memory"
)

func newAssembler(t *testing.T) (*Assembler, *memory.Memory) {
	t.Helper()
	mem := memory.New(memory.DefaultLayout())
	return MakeAssembler(mem), mem
}

func word(t *testing.T, mem *memory.Memory, addr datatypes.Address) datatypes.Word {
	t.Helper()
	w, err := mem.Word(addr)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestAssemble(t *testing.T) {
	w, err := Assemble("puti", datatypes.UInt, datatypes.UInt, 0x2800)
	if err != nil {
		t.Fatal(err)
	}
	if w != 0x61552800 {
		t.Errorf("puti = 0x%08x", w)
	}
	w, _ = Assemble("jump", datatypes.Char, datatypes.Char, datatypes.ExitAddress)
	if w != 0x4000ffff {
		t.Errorf("jump = 0x%08x", w)
	}

	for _, tt := range []struct {
		op     string
		ta, tb datatypes.CType
		addr   uint32
	}{
		{"nop", datatypes.Int, datatypes.Int, 0},
		{"put", datatypes.CType(13), datatypes.Int, 0},
		{"put", datatypes.Int, datatypes.CType(15), 0},
		{"put", datatypes.Int, datatypes.Int, 0x10000},
	} {
		if _, err := Assemble(tt.op, tt.ta, tt.tb, tt.addr); !errors.Is(err, datatypes.ErrAssembler) {
			t.Errorf("Assemble(%s, %d, %d, 0x%x): %v", tt.op, tt.ta, tt.tb, tt.addr, err)
		}
	}
}

func TestWrite(t *testing.T) {
	a, mem := newAssembler(t)
	var cursor datatypes.Address
	if err := a.Write("puti uint null GLOBAL(0) 0x13C ; store", &cursor, 7); err != nil {
		t.Fatal(err)
	}
	if cursor != 12 {
		t.Errorf("cursor = %d", cursor)
	}
	if w := word(t, mem, 0); w != 0x61552800 {
		t.Errorf("instruction word 0x%08x", w)
	}
	if w := word(t, mem, 4); w != 0x01000007 {
		t.Errorf("debug word 0x%08x", w)
	}
	if w := word(t, mem, 8); w != 0x13C {
		t.Errorf("data word 0x%08x", w)
	}

	if err := a.Write("jump", &cursor, 8); err != nil {
		t.Fatal(err)
	}
	if inst := datatypes.DecodeInstruction(word(t, mem, 12)); inst.TypeA != datatypes.Char || inst.Addr != 0 {
		t.Errorf("defaults: %v", inst)
	}
	if cursor != 20 {
		t.Errorf("cursor = %d", cursor)
	}
}

func TestWriteDataWords(t *testing.T) {
	a, mem := newAssembler(t)
	var cursor datatypes.Address
	if err := a.Write("puti float null GLOBAL(0) 1.5 -2", &cursor, 1); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.ForceGet(8, datatypes.Float); v != 1.5 {
		t.Errorf("float data = %v", v)
	}
	if v, _ := mem.ForceGet(12, datatypes.Float); v != -2 {
		t.Errorf("float data = %v", v)
	}
	if err := a.Write("puti char null GLOBAL(1) -1", &cursor, 2); err != nil {
		t.Fatal(err)
	}
	if w := word(t, mem, cursor-4); w != 0xff {
		t.Errorf("char data word 0x%08x", w)
	}
}

func TestAddressForms(t *testing.T) {
	a, mem := newAssembler(t)
	layout := mem.Layout()
	tests := []struct {
		tok  string
		want uint32
	}{
		{"0x10", 0x10},
		{"0b101", 5},
		{"0o17", 15},
		{"42", 42},
		{"GLOBAL(0)", layout.GAS.Start},
		{"GLOBAL(3)", layout.GAS.Start + 12},
		{"DEFINE(0)", layout.GAS.Start - 4},
		{"DEFINE(1)", layout.GAS.Start - 8},
		{"HEAP(2)", layout.Heap.Start + 8},
		{"STACK(0)", layout.RTS.End() - 4},
		{"R1", mem.RegAddr(datatypes.RegR1)},
		{"esp", mem.RegAddr(datatypes.RegESP)},
	}
	for _, tt := range tests {
		got, label, err := a.ParseAddress(tt.tok)
		if err != nil || label != "" || got != tt.want {
			t.Errorf("ParseAddress(%s) = 0x%x, %q, %v; want 0x%x", tt.tok, got, label, err, tt.want)
		}
	}
	for _, bad := range []string{"GLOBAL(512)", "DEFINE(256)", "HEAP(-1)", "0x10000", "-4", "1abc"} {
		if _, _, err := a.ParseAddress(bad); err == nil {
			t.Errorf("ParseAddress(%s) accepted", bad)
		}
	}
	if _, label, err := a.ParseAddress("later"); err != nil || label != "later" {
		t.Errorf("label = %q, %v", label, err)
	}
}

func TestWriteErrors(t *testing.T) {
	for _, text := range []string{
		"frobnicate uint uint 0",
		"put quad uint 0",
		"put uint uint 0x12345",
		"put uint uint GLOBAL(x)",
		"puti uint uint 0 abc",
	} {
		a, _ := newAssembler(t)
		var cursor datatypes.Address
		err := a.Write(text, &cursor, 3)
		if !errors.Is(err, datatypes.ErrAssembler) {
			t.Errorf("%q: %v", text, err)
			continue
		}
		var f *datatypes.Fault
		if errors.As(err, &f) && f.Line != 3 {
			t.Errorf("%q: line %d", text, f.Line)
		}
		if cursor != 0 {
			t.Errorf("%q advanced the cursor", text)
		}
	}

	a, _ := newAssembler(t)
	cursor := a.mem.Layout().Prog.End() - 8
	if err := a.Write("puti uint uint 0 1", &cursor, 1); !errors.Is(err, datatypes.ErrAssembler) {
		t.Errorf("write past prog: %v", err)
	}
}

func TestLabelsAndFixups(t *testing.T) {
	a, mem := newAssembler(t)
	img, err := a.AssembleSource(`
		.name labels
		start:  jump null null end  ; forward
		middle: jump null null start
		end:    jump null null 0xFFFF
	`)
	if err != nil {
		t.Fatal(err)
	}
	if img.Name != "labels" {
		t.Errorf("name = %q", img.Name)
	}
	if got := datatypes.DecodeInstruction(word(t, mem, 0)).Addr; got != 16 {
		t.Errorf("forward reference patched to %d", got)
	}
	if got := datatypes.DecodeInstruction(word(t, mem, 8)).Addr; got != 0 {
		t.Errorf("backward reference = %d", got)
	}
	if a.Labels()["middle"] != 8 {
		t.Errorf("labels = %v", a.Labels())
	}
	if names := img.FunctionNames(); names[16] != "end" {
		t.Errorf("function names = %v", names)
	}
}

func TestSourceErrors(t *testing.T) {
	for name, src := range map[string]string{
		"undefined label": "jump null null nowhere",
		"duplicate label": "a: jump\na: jump",
		"register label":  "sp: jump",
		"bad org":         ".org 0x2800",
		"entry forward":   ".entry main\nmain: jump",
		"open macro":      "MACRO\nFOO\njump",
		"macro arity":     "MACRO\nFOO x\njump null null x\nMEND\nFOO",
	} {
		a, _ := newAssembler(t)
		if _, err := a.AssembleSource(src); !errors.Is(err, datatypes.ErrAssembler) {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestMacrosAndDirectives(t *testing.T) {
	a, mem := newAssembler(t)
	img, err := a.AssembleSource(`
MACRO
STORE where value
	puti uint null where value
MEND
		.org 0x40
main:	STORE GLOBAL(0) 1
		STORE GLOBAL(1) 2
		.entry main
		jump null null 0xFFFF
	`)
	if err != nil {
		t.Fatal(err)
	}
	if img.Entry != 0x40 || img.Labels["main"] != 0x40 {
		t.Errorf("entry 0x%x, labels %v", img.Entry, img.Labels)
	}
	if w := word(t, mem, 0x40+8); w != 1 {
		t.Errorf("first expansion data %d", w)
	}
	if w := word(t, mem, 0x40+12+8); w != 2 {
		t.Errorf("second expansion data %d", w)
	}
	if line := datatypes.DecodeDebugWord(word(t, mem, 0x40+12+4)).Line; line != 8 {
		t.Errorf("expanded line %d", line)
	}
}

func TestImageRoundTrip(t *testing.T) {
	a, _ := newAssembler(t)
	img, err := a.AssembleSource(".name round trip\nloop: puti uint null GLOBAL(0) 0x13C\njump null null 0xFFFF")
	if err != nil {
		t.Fatal(err)
	}
	if img.Magic != ImageMagic || img.ID == "" || len(img.Words) != 5 {
		t.Fatalf("image = %+v", img)
	}

	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != img.ID || back.Name != img.Name || back.Entry != img.Entry || back.Lines[12] != 3 {
		t.Errorf("decoded %+v", back)
	}

	fresh := memory.New(memory.DefaultLayout())
	if err := back.Load(fresh); err != nil {
		t.Fatal(err)
	}
	for i, w := range img.Words {
		if got := word(t, fresh, datatypes.Address(4*i)); got != w {
			t.Errorf("word %d = 0x%08x, want 0x%08x", i, got, w)
		}
	}

	if _, err := UnmarshalImage([]byte{0xa0}); err == nil {
		t.Errorf("image without magic accepted")
	}
	big := &Image{Magic: ImageMagic, Words: make([]datatypes.Word, 0x1C00/4+1)}
	if err := big.Load(fresh); !errors.Is(err, datatypes.ErrAssembler) {
		t.Errorf("oversized image: %v", err)
	}
}

func TestDisassemble(t *testing.T) {
	a, mem := newAssembler(t)
	src := []string{
		"puti float null 0x2800 1.5",
		"== uint int 0x0000",
		"epop llong ullong 0x2804",
	}
	var cursor datatypes.Address
	for i, line := range src {
		if err := a.Write(line, &cursor, i+1); err != nil {
			t.Fatal(err)
		}
	}
	img := a.Image()
	listing := img.Listing()
	for _, want := range []string{
		"puti float uint 0x2800 1.5 ; line 1",
		"== uint int 0x0000 ; line 2",
		"epop llong ullong 0x2804 ; line 3",
	} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}

	// the listing reassembles to the same words
	b, mem2 := newAssembler(t)
	cursor = 0
	for i, line := range strings.Split(strings.TrimSpace(listing), "\n") {
		if strings.HasPrefix(line, ";") {
			continue
		}
		_, text, _ := strings.Cut(line, "  ")
		if err := b.Write(text, &cursor, i); err != nil {
			t.Fatalf("%q: %v", text, err)
		}
	}
	if got, want := word(t, mem2, 0), word(t, mem, 0); got != want {
		t.Errorf("reassembled 0x%08x, want 0x%08x", got, want)
	}
	if got, want := word(t, mem2, 8), word(t, mem, 8); got != want {
		t.Errorf("reassembled data 0x%08x, want 0x%08x", got, want)
	}
}

func TestResolveKeepsPending(t *testing.T) {
	a, mem := newAssembler(t)
	var cursor datatypes.Address
	if err := a.Write("jump null null later", &cursor, 1); err != nil {
		t.Fatal(err)
	}
	if err := a.Resolve(); !errors.Is(err, datatypes.ErrAssembler) {
		t.Fatalf("Resolve = %v", err)
	}
	if err := a.Write("later: jump null null 0xFFFF", &cursor, 2); err != nil {
		t.Fatal(err)
	}
	if err := a.Resolve(); err != nil {
		t.Fatal(err)
	}
	if got := datatypes.DecodeInstruction(word(t, mem, 0)).Addr; got != 8 {
		t.Errorf("reference patched to %d", got)
	}
}
