package front

import (
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/tp"
)

type (
	Kind int

	// Object is a resolved variable binding.
	// Each declaration gets its own Object, so backends may key storage by it.
	Object struct {
		Name string
		Type tp.Type
		Kind Kind

		// Index is the formal parameter index for Param
		// and declaration order for Global.
		Index int
	}

	// Env is a persistent scope chain.
	// It's never modified, only extended or dropped back to a saved head.
	Env struct {
		obj  *Object
		next *Env
	}

	Info struct {
		Types  map[ast.Expr]tp.Type
		Uses   map[*ast.Var]*Object
		Defs   map[*ast.VarIntro]*Object
		Params map[*ast.Formal]*Object
		Funcs  map[string]*ast.Func

		Globals []*Object
	}
)

const (
	Global Kind = iota
	Param
	Local
)

func (e *Env) Extend(obj *Object) *Env {
	return &Env{
		obj:  obj,
		next: e,
	}
}

func (e *Env) Lookup(name string) *Object {
	for ; e != nil; e = e.next {
		if e.obj.Name == name {
			return e.obj
		}
	}

	return nil
}

func (e *Env) Len() (n int) {
	for ; e != nil; e = e.next {
		n++
	}

	return n
}

func newInfo() *Info {
	return &Info{
		Types:  make(map[ast.Expr]tp.Type),
		Uses:   make(map[*ast.Var]*Object),
		Defs:   make(map[*ast.VarIntro]*Object),
		Params: make(map[*ast.Formal]*Object),
		Funcs:  make(map[string]*ast.Func),
	}
}

// TypeOf returns the checked type of x.
func (i *Info) TypeOf(x ast.Expr) tp.Type {
	return i.Types[x]
}

func (k Kind) String() string {
	switch k {
	case Global:
		return "global"
	case Param:
		return "param"
	case Local:
		return "local"
	default:
		return "kind?"
	}
}

func (o *Object) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyString(b, "name", o.Name)
	b = e.AppendKeyString(b, "type", o.Type.String())
	b = e.AppendKeyString(b, "kind", o.Kind.String())

	return b
}
