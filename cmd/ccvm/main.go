// ccvm assembles and runs programs for the C teaching machine.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ccvm/assembler"
	"ccvm/config"
	"ccvm/datatypes"
	"ccvm/linker"
	"ccvm/memory"
	"ccvm/simulator"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

const appName = "ccvm"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [arguments]\n\n", appName)
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  asm [-c] [-o out.img] <file.s>    Assemble a source file into an image\n")
	fmt.Fprintf(os.Stderr, "  link [-a addr] -o out.img <img>.. Join object images into one program\n")
	fmt.Fprintf(os.Stderr, "  run [-dump] [-trace] <file.s|img> Assemble if needed and execute\n")
	fmt.Fprintf(os.Stderr, "  repl                              Interactive assembler and debugger\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (overrides ccvm.toml)")
	logFile := flag.String("log", "", "Log file (overrides ccvm.toml)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, path)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	switch args[0] {
	case "asm":
		os.Exit(runAsm(cfg, args[1:]))
	case "link":
		os.Exit(runLink(args[1:]))
	case "run":
		os.Exit(runRun(cfg, args[1:]))
	case "repl":
		os.Exit(runREPL(cfg))
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, args[0])
		usage()
		os.Exit(2)
	}
}

func runAsm(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	out := fs.String("o", "", "Output image (default: source name with .img)")
	list := fs.Bool("l", false, "Print a listing")
	object := fs.Bool("c", false, "Allow undefined labels, leaving them for the linker")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s asm: expected one source file\n", appName)
		return 2
	}
	src := fs.Arg(0)

	mem, err := cfg.NewMemory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	img, err := assembleFile(mem, src, *object)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	if *out == "" {
		*out = strings.TrimSuffix(src, filepath.Ext(src)) + ".img"
	}
	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	defer f.Close()
	if err := img.Write(f); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	if *list {
		fmt.Print(img.Listing())
	}
	return 0
}

func assembleFile(mem *memory.Memory, path string, partial bool) (*assembler.Image, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	asm := assembler.MakeAssembler(mem)
	asm.Partial = partial
	img, err := asm.AssembleSource(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if img.Name == "" {
		img.Name = filepath.Base(path)
	}
	return img, nil
}

// loadProgram accepts either an image or assembly source.
func loadProgram(mem *memory.Memory, path string) (*assembler.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if img, err := assembler.Read(bytes.NewReader(data)); err == nil {
		if err := img.Load(mem); err != nil {
			return nil, err
		}
		return img, nil
	}
	return assembleFile(mem, path, false)
}

func runLink(args []string) int {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	out := fs.String("o", "a.img", "Output image")
	load := fs.String("a", "", "Absolute load address (default: relocate from the first origin)")
	entry := fs.String("e", "main", "Entry label")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "%s link: expected object images\n", appName)
		return 2
	}

	l := linker.MakeRelocatorLinker()
	if *load != "" {
		addr, err := datatypes.ParseNum(*load)
		if err != nil || addr < 0 || addr > 0xffff {
			fmt.Fprintf(os.Stderr, "%s link: bad load address %q\n", appName, *load)
			return 2
		}
		l = linker.MakeAbsoluteLinker(datatypes.Address(addr))
	}
	l.EntryLabel = *entry

	var objects []*assembler.Image
	for _, path := range fs.Args() {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			return 1
		}
		img, err := assembler.Read(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: %v\n", appName, path, err)
			return 1
		}
		objects = append(objects, img)
	}

	exe, err := l.GenerateExecutable(objects)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	defer f.Close()
	if err := exe.Write(f); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	return 0
}

func machineOptions(cfg *config.Config, img *assembler.Image, trace io.Writer) []simulator.Option {
	opts := []simulator.Option{
		simulator.WithMaxSteps(cfg.Machine.MaxSteps),
		simulator.WithFunctionNames(img.FunctionNames()),
	}
	if trace != nil {
		opts = append(opts, simulator.WithTrace(trace))
	}
	return opts
}

func runRun(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dump := fs.Bool("dump", false, "Print globals and registers after the run")
	trace := fs.Bool("trace", cfg.Machine.Trace, "Trace every instruction to stderr")
	maxSteps := fs.Int("max-steps", cfg.Machine.MaxSteps, "Instruction budget, 0 for none")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s run: expected one program\n", appName)
		return 2
	}
	cfg.Machine.MaxSteps = *maxSteps

	mem, err := cfg.NewMemory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	img, err := loadProgram(mem, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	var traceOut io.Writer
	if *trace {
		traceOut = os.Stderr
	}
	m := simulator.MakeMachine(mem, machineOptions(cfg, img, traceOut)...)
	runErr := m.Execute(img.Entry)

	if *dump || runErr != nil {
		registerTable(mem).Render(os.Stdout)
		fmt.Println()
		gas := mem.Layout().GAS
		memoryTable(mem, gas.Start, gas.Length).Render(os.Stdout)
	}
	if runErr != nil {
		var f *datatypes.Fault
		if errors.As(runErr, &f) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, f)
		} else {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, runErr)
		}
		return 1
	}
	return 0
}
