package symtab

import (
	"fmt"

	"ccvm/datatypes"
)

// Entry describes one declared identifier.
type Entry struct {
	name     string
	id       int
	line     int
	isType   bool
	isParam  bool
	isDefine bool

	scope    *Scope
	offset   int
	specDecl []SpecOrDecl
	placed   bool

	// StructScope is the member scope when the entry declares a struct or
	// union tag.
	StructScope *Scope
}

func (e *Entry) Name() string       { return e.name }
func (e *Entry) ID() int            { return e.id }
func (e *Entry) Line() int          { return e.line }
func (e *Entry) IsType() bool       { return e.isType }
func (e *Entry) IsParameter() bool  { return e.isParam }
func (e *Entry) IsDefine() bool     { return e.isDefine }
func (e *Entry) Scope() *Scope      { return e.scope }
func (e *Entry) Offset() int        { return e.offset }
func (e *Entry) ScopeName() string  { return e.scope.name }

// SetSpecAndDecl fixes the type description of the entry. It may be
// called once.
func (e *Entry) SetSpecAndDecl(list ...SpecOrDecl) error {
	if e.specDecl != nil {
		return fmt.Errorf("%w: %s", datatypes.ErrEntrySealed, e.name)
	}
	if len(list) == 0 {
		return fmt.Errorf("empty type for %s", e.name)
	}
	if _, ok := list[len(list)-1].(Specifier); !ok && !e.isFunction(list) {
		return fmt.Errorf("type of %s does not end in a specifier", e.name)
	}
	e.specDecl = append([]SpecOrDecl(nil), list...)
	return nil
}

func (e *Entry) isFunction(list []SpecOrDecl) bool {
	if len(list) == 0 {
		return false
	}
	d, ok := list[0].(Declarator)
	return ok && (d.Kind == DeclFunction || d.Kind == DeclBuiltIn)
}

func (e *Entry) SpecAndDecl() []SpecOrDecl {
	return append([]SpecOrDecl(nil), e.specDecl...)
}

// IsFunction reports whether the entry names a function or built-in, whose
// "address" is not a memory location.
func (e *Entry) IsFunction() bool {
	return e.isFunction(e.specDecl)
}

func (e *Entry) specifier() (Specifier, bool) {
	if len(e.specDecl) == 0 {
		return Specifier{}, false
	}
	s, ok := e.specDecl[len(e.specDecl)-1].(Specifier)
	return s, ok
}

// Size is the number of bytes the entry occupies.
func (e *Entry) Size() int {
	return sizeOf(e.specDecl, e.isParam)
}

func (e *Entry) TypeName() string {
	if e.IsFunction() {
		return "function"
	}
	if s, ok := e.specifier(); ok {
		return s.TypeName()
	}
	return ""
}

func (e *Entry) Unsigned() bool {
	s, _ := e.specifier()
	return s.Unsigned
}

func (e *Entry) PointerCount() int {
	n := 0
	for _, sd := range e.specDecl {
		if d, ok := sd.(Declarator); ok && d.Kind == DeclPointer {
			n++
		}
	}
	return n
}

func (e *Entry) ArraySizes() []int {
	var out []int
	for _, sd := range e.specDecl {
		if d, ok := sd.(Declarator); ok && d.Kind == DeclArray {
			out = append(out, d.Count)
		}
	}
	return out
}

// CType is the machine type used to load or store the entry as a scalar.
func (e *Entry) CType() (datatypes.CType, bool) {
	if len(e.specDecl) == 0 || e.IsFunction() {
		return 0, false
	}
	if d, ok := e.specDecl[0].(Declarator); ok {
		if d.Kind == DeclPointer || (d.Kind == DeclArray && e.isParam) {
			return datatypes.Pointer, true
		}
		return 0, false
	}
	s, _ := e.specifier()
	return s.CType()
}

// Addr resolves the entry against the current frame pointer of its scope.
// Defines live below gas. Functions and entries without a type have no
// address.
func (e *Entry) Addr() (datatypes.Address, bool) {
	if len(e.specDecl) == 0 || e.IsFunction() {
		return 0, false
	}
	if e.isDefine {
		return datatypes.Address(int(e.scope.table.layout.GAS.Start) + e.offset), true
	}
	return datatypes.Address(int(e.scope.FramePointer()) + e.offset), true
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s (id %d, %s, offset %d)", e.name, e.id, describe(e.specDecl), e.offset)
}
