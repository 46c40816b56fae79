package symtab

import (
	"fmt"
	"strings"

	"ccvm/datatypes"
)

// SpecOrDecl is one element of an entry's type description. A finished
// list is zero or more Declarators, outermost first, ending in exactly one
// Specifier:
//
//	int *a[3]  =>  [Array(3), Pointer(), Specifier{Type: Int}]
type SpecOrDecl interface {
	isSpecOrDecl()
	String() string
}

type BaseType int

const (
	Void BaseType = iota
	Int
	Char
	Float
	Double
	Struct
	Union
	Enum
	Label
)

var baseTypeNames = [...]string{"void", "int", "char", "float", "double", "struct", "union", "enum", "label"}

func (b BaseType) String() string {
	if int(b) < len(baseTypeNames) {
		return baseTypeNames[b]
	}
	return fmt.Sprintf("basetype(%d)", int(b))
}

type SizeModifier int

const (
	SizeDefault SizeModifier = iota
	SizeShort
	SizeLong
	SizeLongLong
)

type Storage int

const (
	StorageAuto Storage = iota
	StorageRegister
	StorageStatic
	StorageExtern
	StorageTypedef
)

type Specifier struct {
	Storage  Storage
	Type     BaseType
	Size     SizeModifier
	Unsigned bool
	Const    bool
	Volatile bool
	// Members holds the member scope of a struct or union.
	Members *Scope
}

func (Specifier) isSpecOrDecl() {}

// CType is the machine type of a scalar specifier.
func (s Specifier) CType() (datatypes.CType, bool) {
	var t datatypes.CType
	switch s.Type {
	case Char:
		t = datatypes.Char
	case Float:
		return datatypes.Float, true
	case Double:
		return datatypes.Double, true
	case Int, Enum:
		switch s.Size {
		case SizeShort:
			t = datatypes.Short
		case SizeLong:
			t = datatypes.Long
		case SizeLongLong:
			t = datatypes.LongLong
		default:
			t = datatypes.Int
		}
	default:
		return 0, false
	}
	if s.Unsigned {
		t++
	}
	return t, true
}

// TypeName is the C spelling of the specifier, without signedness.
func (s Specifier) TypeName() string {
	if s.Type == Int {
		switch s.Size {
		case SizeShort:
			return "short"
		case SizeLong:
			return "long"
		case SizeLongLong:
			return "long long"
		}
	}
	return s.Type.String()
}

// ByteSize is the storage size of one object of this specifier.
func (s Specifier) ByteSize() int {
	switch s.Type {
	case Void, Label:
		return 0
	case Struct, Union:
		if s.Members == nil {
			return 0
		}
		return s.Members.Size()
	}
	t, _ := s.CType()
	return t.Size()
}

func (s Specifier) String() string {
	parts := []string{}
	if s.Storage != StorageAuto {
		parts = append(parts, [...]string{"auto", "register", "static", "extern", "typedef"}[s.Storage])
	}
	if s.Const {
		parts = append(parts, "const")
	}
	if s.Volatile {
		parts = append(parts, "volatile")
	}
	if s.Unsigned {
		parts = append(parts, "unsigned")
	}
	parts = append(parts, s.TypeName())
	if s.Members != nil {
		parts = append(parts, s.Members.Name())
	}
	return strings.Join(parts, " ")
}

type DeclaratorKind int

const (
	DeclPointer DeclaratorKind = iota
	DeclArray
	DeclFunction
	DeclBuiltIn
)

type Declarator struct {
	Kind DeclaratorKind
	// Count is the number of elements of an array declarator.
	Count int
}

func (Declarator) isSpecOrDecl() {}

func PointerTo() Declarator     { return Declarator{Kind: DeclPointer} }
func ArrayOf(n int) Declarator  { return Declarator{Kind: DeclArray, Count: n} }
func Function() Declarator      { return Declarator{Kind: DeclFunction} }
func BuiltIn() Declarator       { return Declarator{Kind: DeclBuiltIn} }

func (d Declarator) String() string {
	switch d.Kind {
	case DeclPointer:
		return "pointer to"
	case DeclArray:
		return fmt.Sprintf("array[%d] of", d.Count)
	case DeclFunction:
		return "function returning"
	case DeclBuiltIn:
		return "built-in function"
	}
	return "?"
}

// sizeOf walks a spec/decl list. Arrays multiply the size of what follows;
// pointers and functions end the walk at pointer size. An array parameter
// is passed as a pointer.
func sizeOf(list []SpecOrDecl, parameter bool) int {
	multiplier := 1
	for i, sd := range list {
		switch v := sd.(type) {
		case Declarator:
			switch v.Kind {
			case DeclArray:
				if parameter && i == 0 {
					return datatypes.Pointer.Size()
				}
				multiplier *= v.Count
			default:
				return datatypes.Pointer.Size() * multiplier
			}
		case Specifier:
			return v.ByteSize() * multiplier
		}
	}
	return 0
}

func describe(list []SpecOrDecl) string {
	parts := make([]string, len(list))
	for i, sd := range list {
		parts[i] = sd.String()
	}
	return strings.Join(parts, " ")
}
