package symtab

import (
	"strings"

	"ccvm/datatypes"
)

// Scope is one lexical block. Entries keep their insertion order.
type Scope struct {
	table     *SymbolTable
	name      string
	parent    *Scope
	entries   map[string]*Entry
	order     []*Entry
	nextChild int
	line      int

	framePointers []datatypes.Address
	nextOffset    int
	nextDefine    int
	union         bool
}

func (s *Scope) Name() string     { return s.name }
func (s *Scope) Parent() *Scope   { return s.parent }
func (s *Scope) Line() int        { return s.line }

// Size is the number of bytes allocated so far in the scope.
func (s *Scope) Size() int { return s.nextOffset }

func (s *Scope) segment() string {
	return s.name[strings.LastIndex(s.name, ".")+1:]
}

// IsStruct reports whether the scope, or one of its ancestors, holds
// struct or union members.
func (s *Scope) IsStruct() bool {
	for _, seg := range strings.Split(s.name, ".") {
		if strings.HasPrefix(seg, StructMarker) {
			return true
		}
	}
	return false
}

// SetUnion makes every member of the scope start at offset 0.
func (s *Scope) SetUnion(union bool) {
	s.union = union
}

func (s *Scope) IsUnion() bool { return s.union }

// Entries lists the scope's entries in insertion order.
func (s *Scope) Entries() []*Entry {
	return append([]*Entry(nil), s.order...)
}

// Add creates a new entry, or returns nil if name is already declared
// directly in this scope. Defines take their offset from the root's define
// cursor, which counts down from gas.
func (s *Scope) Add(name string, line int, isType, isParameter, isDefine bool) *Entry {
	if _, exists := s.entries[name]; exists {
		return nil
	}
	if strings.HasPrefix(s.segment(), CompoundMarker) && s.parent != nil &&
		!strings.HasPrefix(s.parent.segment(), CompoundMarker) {
		if shadowed := s.parent.Get(name, true); shadowed != nil {
			s.table.warn("line %d: %s shadows the declaration at line %d", line, name, shadowed.line)
		}
	}

	e := &Entry{
		name:     name,
		id:       s.table.nextID,
		line:     line,
		isType:   isType,
		isParam:  isParameter,
		isDefine: isDefine,
		scope:    s,
	}
	s.table.nextID++
	switch {
	case isDefine:
		root := s.table.root
		root.nextDefine -= datatypes.WordSize
		e.offset = root.nextDefine
	case s.union:
		e.offset = 0
	default:
		e.offset = s.nextOffset
	}
	s.entries[name] = e
	s.order = append(s.order, e)
	return e
}

// Get finds name in this scope or, unless currentOnly, in the nearest
// enclosing scope that declares it.
func (s *Scope) Get(name string, currentOnly bool) *Entry {
	for scope := s; scope != nil; scope = scope.parent {
		if e, found := scope.entries[name]; found {
			return e
		}
		if currentOnly {
			break
		}
	}
	return nil
}

// CalculateOffset advances the scope's offset cursor past the entry, once
// its type is known. Union scopes keep their largest member instead.
// Globals are registered with the memory metadata right away.
func (s *Scope) CalculateOffset(e *Entry) {
	if e.placed || e.isDefine || e.IsFunction() || e.isType {
		return
	}
	e.placed = true
	size := roundWord(e.Size())
	if s.union {
		if size > s.nextOffset {
			s.nextOffset = size
		}
	} else if end := e.offset + size; end > s.nextOffset {
		s.nextOffset = end
	}
	if s.parent == nil {
		s.register(e)
	}
}

func (s *Scope) register(e *Entry) {
	if s.table.sink == nil || s.IsStruct() {
		return
	}
	if addr, ok := e.Addr(); ok {
		s.table.sink.SetSymbolInfo(addr, e, "")
	}
}

// FramePointer is the base address entries are resolved against. Until a
// frame pointer is pushed it is the start of gas.
func (s *Scope) FramePointer() datatypes.Address {
	if len(s.framePointers) == 0 {
		return s.table.layout.GAS.Start
	}
	return s.framePointers[len(s.framePointers)-1]
}

// PushFramePointer starts a new activation of the scope and registers the
// address of every entry with the memory metadata.
func (s *Scope) PushFramePointer(fp datatypes.Address) {
	s.framePointers = append(s.framePointers, fp)
	for _, e := range s.order {
		s.register(e)
	}
}

// RestoreFramePointer returns to the previous activation.
func (s *Scope) RestoreFramePointer() {
	if len(s.framePointers) > 0 {
		s.framePointers = s.framePointers[:len(s.framePointers)-1]
	}
}
