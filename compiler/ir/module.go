package ir

import (
	"fmt"
	"strings"
)

type (
	Module struct {
		Name string

		Decls   []Decl
		Globals []Global
		Funcs   []*Function
	}

	// Decl is an external function.
	Decl struct {
		Name   string
		Ret    Type
		Params []Type
	}

	// Global is a zero initialized global variable.
	Global struct {
		Name string
		T    Type
	}
)

// Declare adds an external function once.
func (m *Module) Declare(name string, ret Type, params ...Type) {
	for _, d := range m.Decls {
		if d.Name == name {
			return
		}
	}

	m.Decls = append(m.Decls, Decl{Name: name, Ret: ret, Params: params})
}

func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}

	return nil
}

func (m *Module) Global(name string) (Global, bool) {
	for _, g := range m.Globals {
		if g.Name == name {
			return g, true
		}
	}

	return Global{}, false
}

// AppendTo prints the module as LLVM text.
// Functions must be finalized.
func (m *Module) AppendTo(b []byte) []byte {
	if m.Name != "" {
		b = fmt.Appendf(b, "; ModuleID = %q\n\n", m.Name)
	}

	for _, d := range m.Decls {
		ps := make([]string, len(d.Params))

		for i, p := range d.Params {
			ps[i] = p.String()
		}

		b = fmt.Appendf(b, "declare %v @%s(%s)\n", d.Ret, d.Name, strings.Join(ps, ", "))
	}

	if len(m.Decls) != 0 {
		b = append(b, '\n')
	}

	for _, g := range m.Globals {
		b = fmt.Appendf(b, "@%s = global %s, align %d\n", g.Name, typed(Zero(g.T)), Align(g.T))
	}

	if len(m.Globals) != 0 {
		b = append(b, '\n')
	}

	for i, f := range m.Funcs {
		if i != 0 {
			b = append(b, '\n')
		}

		b = f.AppendTo(b)
	}

	return b
}

func (f *Function) AppendTo(b []byte) []byte {
	ps := make([]string, len(f.Params))

	for i, p := range f.Params {
		ps[i] = typed(p)
	}

	b = fmt.Appendf(b, "define %v @%s(%s) {\n", f.Ret, f.Name, strings.Join(ps, ", "))

	for i, bl := range f.order {
		if i != 0 {
			b = append(b, '\n')
		}

		b = fmt.Appendf(b, "%v:\n", bl.Label)

		for c := bl.Code; c != nil; c = Next(c) {
			b = append(b, '\t')
			b = AppendCode(b, c)
			b = append(b, '\n')
		}
	}

	b = append(b, "}\n"...)

	return b
}

// AppendCode prints a single instruction.
func AppendCode(b []byte, c Code) []byte {
	switch c := c.(type) {
	case *BinOp:
		return fmt.Appendf(b, "%v = %s %s, %v", c.Dst, c.Op, typed(c.X), c.Y)
	case *Icmp:
		return fmt.Appendf(b, "%v = icmp %s %s, %v", c.Dst, c.Cond, typed(c.X), c.Y)
	case *Load:
		return fmt.Appendf(b, "%v = load %v, %s", c.Dst, c.Dst.T, typed(c.Ptr))
	case *Store:
		return fmt.Appendf(b, "store %s, %s", typed(c.Val), typed(c.Ptr))
	case *Alloca:
		return fmt.Appendf(b, "%v = alloca %v", c.Slot, c.Slot.Elem)
	case *Call:
		args := make([]string, len(c.Args))

		for i, a := range c.Args {
			args[i] = typed(a)
		}

		if _, ok := c.Dst.T.(Void); !ok {
			b = fmt.Appendf(b, "%v = ", c.Dst)
		}

		return fmt.Appendf(b, "call %v @%s(%s)", c.Dst.T, c.Func, strings.Join(args, ", "))
	case *Bitcast:
		return fmt.Appendf(b, "%v = bitcast %s to %v", c.Dst, typed(c.X), c.Dst.T)
	case *GEP:
		var elem Type = Void{}
		if p, ok := c.Ptr.Type().(Ptr); ok {
			elem = p.Elem
		}

		b = fmt.Appendf(b, "%v = getelementptr %v, %s", c.Dst, elem, typed(c.Ptr))

		for _, x := range c.Idx {
			b = fmt.Appendf(b, ", %s", typed(x))
		}

		return b
	case *Phi:
		b = fmt.Appendf(b, "%v = phi %v ", c.Dst, c.Dst.T)

		for i, e := range c.Edges {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = fmt.Appendf(b, "[%v, %%%v]", e.X, e.From.Label)
		}

		return b
	case *Goto:
		return fmt.Appendf(b, "br label %%%v", c.To.Label)
	case *CondBr:
		return fmt.Appendf(b, "br %s, label %%%v, label %%%v", typed(c.Cond), c.Then.Label, c.Else.Label)
	case *Switch:
		b = fmt.Appendf(b, "switch %s, label %%%v [", typed(c.X), c.Default.Label)

		for _, cs := range c.Cases {
			b = fmt.Appendf(b, "\n\t\t%v %d, label %%%v", c.X.Type(), cs.Num, cs.To.Label)
		}

		if len(c.Cases) != 0 {
			b = append(b, "\n\t"...)
		}

		return append(b, ']')
	case *Ret:
		if c.X == nil {
			return append(b, "ret void"...)
		}

		return fmt.Appendf(b, "ret %s", typed(c.X))
	case *Unreachable:
		return append(b, "unreachable"...)
	default:
		return fmt.Appendf(b, "; unknown code %T", c)
	}
}
