package symtab

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"ccvm/datatypes"
	"ccvm/memory"

	"github.com/tliron/commonlog"
)

const (
	RootName = "*"
	// StructMarker starts the name segment of a struct or union member
	// scope. Such scopes are left out of the memory metadata.
	StructMarker = "struct#"
	// CompoundMarker starts the name segment of a compound-statement scope.
	CompoundMarker = "%"
)

// MetadataSink receives symbol metadata when a frame pointer is pushed.
type MetadataSink interface {
	SetSymbolInfo(addr datatypes.Address, sym memory.Symbol, prefix string)
}

// SymbolTable owns every scope of one program.
type SymbolTable struct {
	layout memory.Layout
	sink   MetadataSink

	scopes      map[string]*Scope
	root        *Scope
	stack       []*Scope
	structStack []*Scope
	nextID      int
	warnings    []string

	log commonlog.Logger
}

func New(layout memory.Layout, sink MetadataSink) *SymbolTable {
	st := &SymbolTable{
		layout: layout,
		sink:   sink,
		log:    commonlog.GetLogger("ccvm.symtab"),
	}
	st.Reset()
	return st
}

// Reset drops every scope and entry and creates a fresh root.
func (st *SymbolTable) Reset() {
	st.scopes = make(map[string]*Scope)
	st.stack = nil
	st.structStack = nil
	st.nextID = 0
	st.warnings = nil

	root := st.newScope(nil, RootName, 0)
	st.scopes[RootName] = root
	st.stack = append(st.stack, root)
	st.root = root

	printf := root.Add("printf", 0, false, false, false)
	printf.SetSpecAndDecl(BuiltIn())
}

func (st *SymbolTable) Root() *Scope {
	return st.root
}

func (st *SymbolTable) newScope(parent *Scope, name string, line int) *Scope {
	return &Scope{
		table:     st,
		name:      name,
		parent:    parent,
		entries:   make(map[string]*Entry),
		nextChild: 1,
		line:      line,
	}
}

// CreateScope makes a child of parent. Without an explicit name the child
// is numbered by the parent's child counter. Creating a scope whose name is
// already taken is an error. The new scope becomes current.
func (st *SymbolTable) CreateScope(parent *Scope, explicitName string, line int) (*Scope, error) {
	if parent == nil {
		parent = st.root
	}
	segment := explicitName
	if segment == "" {
		segment = strconv.Itoa(parent.nextChild)
		parent.nextChild++
	}
	name := parent.name + "." + segment
	if _, exists := st.scopes[name]; exists {
		return nil, fmt.Errorf("%w: %s (line %d)", datatypes.ErrScopeExists, name, line)
	}
	scope := st.newScope(parent, name, line)
	st.scopes[name] = scope
	if scope.IsStruct() {
		st.structStack = append(st.structStack, scope)
	} else {
		st.stack = append(st.stack, scope)
	}
	return scope, nil
}

func (st *SymbolTable) ScopeByName(name string) *Scope {
	return st.scopes[name]
}

func (st *SymbolTable) Push(scope *Scope) {
	st.stack = append(st.stack, scope)
}

func (st *SymbolTable) Pop() *Scope {
	if len(st.stack) == 0 {
		return nil
	}
	scope := st.stack[len(st.stack)-1]
	st.stack = st.stack[:len(st.stack)-1]
	return scope
}

func (st *SymbolTable) Current() *Scope {
	if len(st.stack) == 0 {
		return nil
	}
	return st.stack[len(st.stack)-1]
}

func (st *SymbolTable) PopStruct() *Scope {
	if len(st.structStack) == 0 {
		return nil
	}
	scope := st.structStack[len(st.structStack)-1]
	st.structStack = st.structStack[:len(st.structStack)-1]
	return scope
}

func (st *SymbolTable) CurrentStruct() *Scope {
	if len(st.structStack) == 0 {
		return nil
	}
	return st.structStack[len(st.structStack)-1]
}

func (st *SymbolTable) Warnings() []string {
	return append([]string(nil), st.warnings...)
}

func (st *SymbolTable) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	st.warnings = append(st.warnings, msg)
	st.log.Warningf("%s", msg)
}

type globalSpace struct {
	name string
	size int
}

func (g globalSpace) Name() string       { return g.name }
func (g globalSpace) TypeName() string   { return "char" }
func (g globalSpace) Unsigned() bool     { return false }
func (g globalSpace) Size() int          { return g.size }
func (g globalSpace) PointerCount() int  { return 0 }
func (g globalSpace) ArraySizes() []int  { return []int{g.size} }
func (g globalSpace) IsParameter() bool  { return false }
func (g globalSpace) ScopeName() string  { return RootName }

// AllocGlobal reserves word-aligned space in gas, for example for a string
// literal, and returns its address.
func (st *SymbolTable) AllocGlobal(numBytes int, label string, line int) datatypes.Address {
	start := st.root.nextOffset
	st.root.nextOffset += roundWord(numBytes)
	addr := st.layout.GAS.Start + datatypes.Address(start)
	if st.sink != nil {
		st.sink.SetSymbolInfo(addr, globalSpace{name: fmt.Sprintf("%s at line %d", label, line), size: numBytes}, "")
	}
	return addr
}

func roundWord(n int) int {
	if mod := n % datatypes.WordSize; mod != 0 {
		n += datatypes.WordSize - mod
	}
	return n
}

// Display writes every scope and its entries, in scope name order.
func (st *SymbolTable) Display(w io.Writer, message string) {
	if message != "" {
		fmt.Fprintln(w, message)
	}
	names := make([]string, 0, len(st.scopes))
	for name := range st.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		scope := st.scopes[name]
		fmt.Fprintf(w, "Symbol table %s (size %d)\n", name, scope.Size())
		for _, e := range scope.order {
			flags := []string{}
			if e.isType {
				flags = append(flags, "type")
			}
			if e.isParam {
				flags = append(flags, "param")
			}
			if e.isDefine {
				flags = append(flags, "define")
			}
			fmt.Fprintf(w, "\t%-16s id=%-4d offset=%-5d size=%-4d %s", e.name, e.id, e.offset, e.Size(), describe(e.specDecl))
			if len(flags) > 0 {
				fmt.Fprintf(w, " [%s]", strings.Join(flags, ","))
			}
			fmt.Fprintln(w)
		}
	}
}
