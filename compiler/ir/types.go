package ir

import (
	"strconv"
	"strings"
)

type (
	// Type is an LLVM first-class type.
	Type interface {
		String() string
	}

	Int struct {
		Bits int
	}

	Void struct{}

	Ptr struct {
		Elem Type
	}

	Array struct {
		Len  int
		Elem Type
	}

	Struct struct {
		Fields []Type
	}
)

var (
	I1  = Int{Bits: 1}
	I8  = Int{Bits: 8}
	I32 = Int{Bits: 32}
)

func (t Int) String() string   { return "i" + strconv.Itoa(t.Bits) }
func (Void) String() string    { return "void" }
func (t Ptr) String() string   { return t.Elem.String() + "*" }
func (t Array) String() string { return "[" + strconv.Itoa(t.Len) + " x " + t.Elem.String() + "]" }

func (t Struct) String() string {
	var b strings.Builder

	b.WriteByte('{')

	for i, f := range t.Fields {
		if i != 0 {
			b.WriteString(", ")
		}

		b.WriteString(f.String())
	}

	b.WriteByte('}')

	return b.String()
}

// ArrayBody is the layout of a source level array: the length followed by the elements.
func ArrayBody(elem Type) Struct {
	return Struct{Fields: []Type{I32, Array{Len: 0, Elem: elem}}}
}

// Width is the number of bytes a value of t occupies.
func Width(t Type) int {
	switch t := t.(type) {
	case Int:
		return (t.Bits + 7) / 8
	case Ptr:
		return 8
	default:
		return 0
	}
}

// Align is the alignment of a global of type t.
func Align(t Type) int {
	return max(1, Width(t))
}

func Equal(x, y Type) bool {
	return x.String() == y.String()
}
