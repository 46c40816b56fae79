package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ccvm/datatypes"
	"ccvm/memory"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[machine]
max-steps = 5000
trace = true

[memory]
virgin = 0

[memory.regions.heap]
length = 2048

[log]
verbosity = 2
file = "ccvm.log"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Machine.MaxSteps != 5000 || !c.Machine.Trace {
		t.Errorf("machine = %+v", c.Machine)
	}
	if *c.Memory.Virgin != 0 {
		t.Errorf("virgin = %d, want 0", *c.Memory.Virgin)
	}
	if c.Log.Verbosity != 2 || c.Log.File != "ccvm.log" {
		t.Errorf("log = %+v", c.Log)
	}

	mem, err := c.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if heap := mem.Layout().Heap; heap.Start != 0x3000 || heap.Length != 2048 {
		t.Errorf("heap = %+v", heap)
	}
	if v, _ := mem.ForceGet(0x2800, datatypes.UChar); v != 0 {
		t.Errorf("virgin byte = 0x%x", int(v))
	}
}

func TestDefaults(t *testing.T) {
	c, err := Parse([]byte("[machine]\nmax-steps = 10\n"))
	if err != nil {
		t.Fatal(err)
	}
	if *c.Memory.Virgin != memory.DefaultVirgin {
		t.Errorf("virgin = 0x%x", *c.Memory.Virgin)
	}
	layout, err := c.Layout()
	if err != nil {
		t.Fatal(err)
	}
	if layout != memory.DefaultLayout() {
		t.Errorf("layout = %+v", layout)
	}
	if d, _ := Default().Layout(); d != memory.DefaultLayout() {
		t.Errorf("Default layout = %+v", d)
	}
}

func TestInvalidConfig(t *testing.T) {
	for name, content := range map[string]string{
		"negative steps": "[machine]\nmax-steps = -1",
		"virgin range":   "[memory]\nvirgin = 256",
		"unknown region": "[memory.regions.stack]\nlength = 4",
		"overlap":        "[memory.regions.heap]\nstart = 0x2c00",
		"misaligned":     "[memory.regions.gas]\nlength = 6",
		"past 16 bits":   "[memory.regions.rts]\nlength = 0xC004",
		"syntax":         "[machine\n",
	} {
		if _, err := Parse([]byte(content)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Dir != "" || c.Machine.MaxSteps != 0 {
		t.Errorf("expected defaults, got %+v", c)
	}

	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[machine]\nmax-steps = 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err = FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Machine.MaxSteps != 7 || !strings.HasSuffix(c.Dir, filepath.Base(root)) {
		t.Errorf("found %+v", c)
	}
}
