package ir

import "strconv"

type (
	// Value is an instruction operand.
	Value interface {
		Type() Type
		String() string
	}

	// Reg is a virtual register defined exactly once.
	Reg struct {
		N int
		T Type
	}

	// Slot is a named stack location, the result of an alloca.
	Slot struct {
		Name string
		Elem Type
	}

	Const struct {
		V int64
		T Type
	}

	Null struct {
		T Type
	}

	// GlobalRef is the address of a global variable.
	GlobalRef struct {
		Name string
		Elem Type
	}
)

func I32Const(v int32) Const { return Const{V: int64(v), T: I32} }

func BoolConst(v bool) Const {
	if v {
		return Const{V: 1, T: I1}
	}

	return Const{V: 0, T: I1}
}

func (r Reg) Type() Type     { return r.T }
func (r Reg) String() string { return "%r" + strconv.Itoa(r.N) }

func (s Slot) Type() Type     { return Ptr{Elem: s.Elem} }
func (s Slot) String() string { return "%" + s.Name }

func (c Const) Type() Type { return c.T }

func (c Const) String() string {
	if c.T == I1 {
		if c.V != 0 {
			return "true"
		}

		return "false"
	}

	return strconv.FormatInt(c.V, 10)
}

func (n Null) Type() Type     { return n.T }
func (n Null) String() string { return "null" }

func (g GlobalRef) Type() Type     { return Ptr{Elem: g.Elem} }
func (g GlobalRef) String() string { return "@" + g.Name }

// Zero is the zero value of a type.
func Zero(t Type) Value {
	if _, ok := t.(Ptr); ok {
		return Null{T: t}
	}

	return Const{T: t}
}

func typed(v Value) string {
	return v.Type().String() + " " + v.String()
}
