package back

import (
	"strconv"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/front"
	"github.com/slowlang/stevie/compiler/tp"
)

type (
	LocKind int

	// Loc is where a variable lives at some program point.
	Loc struct {
		Kind LocKind

		Reg asm.Reg // InReg
		Off int     // InFrame, relative to %rbp
		Sym string  // InGlobal

		W int // value width in bytes
	}

	// LocEnv maps variables to their current locations.
	// Like front.Env it's persistent: a saved head stays valid.
	LocEnv struct {
		obj  *front.Object
		loc  Loc
		next *LocEnv
	}
)

const (
	InReg LocKind = iota
	InFrame
	InGlobal
)

func width(t tp.Type) int {
	if tp.IsArray(t) {
		return 8
	}

	return 4
}

func mov(w int) string {
	if w == 8 {
		return "movq"
	}

	return "movl"
}

func RegLoc(r asm.Reg, t tp.Type) Loc  { return Loc{Kind: InReg, Reg: r, W: width(t)} }
func FrameLoc(off int, t tp.Type) Loc { return Loc{Kind: InFrame, Off: off, W: width(t)} }
func GlobalLoc(n string, t tp.Type) Loc {
	return Loc{Kind: InGlobal, Sym: n, W: width(t)}
}

// Operand formats the location as an instruction operand.
func (l Loc) Operand(a *asm.Assembly) string {
	switch l.Kind {
	case InReg:
		return l.Reg.W(l.W)
	case InFrame:
		return asm.Indirect(l.Off, asm.BasePointer)
	default:
		return a.Global(l.Sym)
	}
}

func (l Loc) String() string {
	switch l.Kind {
	case InReg:
		return l.Reg.String()
	case InFrame:
		return strconv.Itoa(l.Off) + "(rbp)"
	default:
		return l.Sym
	}
}

func (l Loc) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	return e.AppendString(b, l.String())
}

func (e *LocEnv) Extend(obj *front.Object, l Loc) *LocEnv {
	return &LocEnv{
		obj:  obj,
		loc:  l,
		next: e,
	}
}

func (e *LocEnv) Next() *LocEnv { return e.next }

func (e *LocEnv) Find(obj *front.Object) (Loc, bool) {
	for ; e != nil; e = e.next {
		if e.obj == obj {
			return e.loc, true
		}
	}

	return Loc{}, false
}
