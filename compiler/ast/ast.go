package ast

import "github.com/slowlang/stevie/compiler/tp"

type (
	Node interface {
		Position() int
	}

	Base struct {
		Pos int
	}

	Expr interface {
		Node
		expr()
	}

	Stmt interface {
		Node
		stmt()
	}

	Defn interface {
		Node
		defn()
	}

	BinOp int

	File struct {
		Name  string
		Defns []Defn
	}

	// Expressions.

	Int struct {
		Base `tlog:",embed"`

		Value int32
	}

	Bool struct {
		Base `tlog:",embed"`

		Value bool
	}

	Var struct {
		Base `tlog:",embed"`

		Name string
	}

	Nth struct {
		Base `tlog:",embed"`

		Arr Expr
		Idx Expr
	}

	NewArray struct {
		Base `tlog:",embed"`

		Elem tp.Type
		Size Expr
	}

	Length struct {
		Base `tlog:",embed"`

		Arr Expr
	}

	Binary struct {
		Base `tlog:",embed"`

		Op BinOp
		L  Expr
		R  Expr
	}

	// Assign is an expression so it can be nested, but it is used as a statement mostly.
	Assign struct {
		Base `tlog:",embed"`

		Lhs Expr // *Var or *Nth
		Rhs Expr
	}

	Call struct {
		Base `tlog:",embed"`

		Name string
		Args []Expr
	}

	// Statements.

	Block struct {
		Base `tlog:",embed"`

		Stmts []Stmt
	}

	ExprStmt struct {
		Base `tlog:",embed"`

		X Expr // *Assign or *Call
	}

	VarDecl struct {
		Base `tlog:",embed"`

		Type tp.Type
		Vars []*VarIntro
	}

	VarIntro struct {
		Base `tlog:",embed"`

		Name string
		Init Expr // may be nil in local declarations
	}

	While struct {
		Base `tlog:",embed"`

		Cond Expr
		Body Stmt
	}

	If struct {
		Base `tlog:",embed"`

		Cond Expr
		Then Stmt
		Else Stmt // may be nil
	}

	// For parts may be nil.
	For struct {
		Base `tlog:",embed"`

		Init Expr
		Cond Expr
		Step Expr
		Body Stmt
	}

	DoWhile struct {
		Base `tlog:",embed"`

		Body Stmt
		Cond Expr
	}

	Break struct {
		Base `tlog:",embed"`
	}

	Continue struct {
		Base `tlog:",embed"`
	}

	Switch struct {
		Base `tlog:",embed"`

		Test  Expr
		Cases []*Case
	}

	Case struct {
		Base `tlog:",embed"`

		Default bool
		Num     int32
		Body    []Stmt
	}

	Print struct {
		Base `tlog:",embed"`

		X Expr
	}

	Return struct {
		Base `tlog:",embed"`

		X Expr // nil in void functions
	}

	// Definitions.

	Globals struct {
		Base `tlog:",embed"`

		Type tp.Type
		Vars []*VarIntro
	}

	Func struct {
		Base `tlog:",embed"`

		Ret     tp.Type // nil means void
		Name    string
		Formals []*Formal
		Body    *Block
	}

	Formal struct {
		Base `tlog:",embed"`

		Type tp.Type
		Name string
	}
)

const (
	_ BinOp = iota
	Add
	Sub
	Mul
	Div
	Lt
	Eq
	And
	Or
)

var opNames = []string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Lt:  "<",
	Eq:  "==",
	And: "&&",
	Or:  "||",
}

func (x Base) Position() int { return x.Pos }

func (*Int) expr()      {}
func (*Bool) expr()     {}
func (*Var) expr()      {}
func (*Nth) expr()      {}
func (*NewArray) expr() {}
func (*Length) expr()   {}
func (*Binary) expr()   {}
func (*Assign) expr()   {}
func (*Call) expr()     {}

func (*Block) stmt()    {}
func (*ExprStmt) stmt() {}
func (*VarDecl) stmt()  {}
func (*While) stmt()    {}
func (*If) stmt()       {}
func (*For) stmt()      {}
func (*DoWhile) stmt()  {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Switch) stmt()   {}
func (*Print) stmt()    {}
func (*Return) stmt()   {}

func (*Globals) defn() {}
func (*Func) defn()    {}

func (op BinOp) String() string {
	if op <= 0 || int(op) >= len(opNames) {
		return "?"
	}

	return opNames[op]
}

// Arith reports whether op takes and produces ints.
func (op BinOp) Arith() bool { return op >= Add && op <= Div }

// Rel reports whether op compares ints.
func (op BinOp) Rel() bool { return op == Lt || op == Eq }

// Logic reports whether op is a short-circuit boolean operator.
func (op BinOp) Logic() bool { return op == And || op == Or }

func (f *Func) Void() bool { return f.Ret == nil }
