package datatypes

import (
	"fmt"
	"strings"
)

type (
	Address = uint32
	Word    = uint32
)

// WordSize is the native integer width of the machine, in bytes.
const WordSize = 4

// CType is a type index as it appears in the 4-bit type fields of an
// instruction word. The numbering is part of the instruction encoding.
type CType uint8

const (
	Char CType = iota
	UChar
	Short
	UShort
	Int
	UInt
	Long
	ULong
	LongLong
	ULongLong
	Float
	Double
	Pointer

	NumCTypes = int(Pointer) + 1
)

type ctypeInfo struct {
	name     string
	size     int
	unsigned bool
	floating bool
}

// long long and double are 4 bytes wide on this machine. Do not widen them:
// the instruction type table and every stored program depend on it.
var ctypes = [NumCTypes]ctypeInfo{
	Char:      {name: "char", size: 1},
	UChar:     {name: "unsigned char", size: 1, unsigned: true},
	Short:     {name: "short", size: 2},
	UShort:    {name: "unsigned short", size: 2, unsigned: true},
	Int:       {name: "int", size: 4},
	UInt:      {name: "unsigned int", size: 4, unsigned: true},
	Long:      {name: "long", size: 4},
	ULong:     {name: "unsigned long", size: 4, unsigned: true},
	LongLong:  {name: "long long", size: 4},
	ULongLong: {name: "unsigned long long", size: 4, unsigned: true},
	Float:     {name: "float", size: 4, floating: true},
	Double:    {name: "double", size: 4, floating: true},
	Pointer:   {name: "pointer", size: 2, unsigned: true},
}

var ctypeNames = map[string]CType{
	"char":               Char,
	"unsigned char":      UChar,
	"uchar":              UChar,
	"short":              Short,
	"unsigned short":     UShort,
	"ushort":             UShort,
	"int":                Int,
	"unsigned int":       UInt,
	"uint":               UInt,
	"null":               UInt, // unspecified operands are unsigned int
	"long":               Long,
	"unsigned long":      ULong,
	"ulong":              ULong,
	"long long":          LongLong,
	"llong":              LongLong,
	"unsigned long long": ULongLong,
	"ullong":             ULongLong,
	"float":              Float,
	"double":             Double,
	"pointer":            Pointer,
}

// ParseCType maps a C type spelling, or one of the assembler's short
// aliases, to its type index.
func ParseCType(name string) (CType, bool) {
	t, found := ctypeNames[strings.Join(strings.Fields(name), " ")]
	return t, found
}

func (t CType) Valid() bool {
	return int(t) < NumCTypes
}

func (t CType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("ctype(%d)", uint8(t))
	}
	return ctypes[t].name
}

var ctypeAliases = [NumCTypes]string{
	UChar: "uchar", UShort: "ushort", UInt: "uint", ULong: "ulong",
	LongLong: "llong", ULongLong: "ullong",
}

// Alias is the single-word spelling the assembler reads back.
func (t CType) Alias() string {
	if t.Valid() && ctypeAliases[t] != "" {
		return ctypeAliases[t]
	}
	return t.String()
}

// Size is the number of bytes a value of this type occupies in memory.
func (t CType) Size() int {
	if !t.Valid() {
		return 0
	}
	return ctypes[t].size
}

func (t CType) Unsigned() bool {
	return t.Valid() && ctypes[t].unsigned
}

func (t CType) Floating() bool {
	return t.Valid() && ctypes[t].floating
}

// UnsignedIntegral reports whether t may be an operand of ~ ! << >> & | ^.
func (t CType) UnsignedIntegral() bool {
	return t.Unsigned() && !t.Floating() && t != Pointer
}

// SlotType is the view used for a value of type t once it occupies a full
// word slot on the run-time or expression stack.
func (t CType) SlotType() CType {
	if t.Floating() {
		return Float
	}
	return UInt
}

// Coerce picks the common type both operands of a binary operation are
// converted to. The rule is symmetric in its arguments.
func Coerce(a, b CType) CType {
	if a == b {
		return a
	}
	for _, wins := range []CType{Double, Float, ULongLong, ULong, Long, UInt} {
		if a == wins || b == wins {
			return wins
		}
	}
	return Int
}
