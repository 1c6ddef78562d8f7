package parse

import (
	"context"
	"os"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/tp"
)

type (
	State struct {
		b    []byte
		name string
	}

	Token any

	Char    byte
	Op      string
	Keyword string
	Ident   string
	Number  string
)

var keywords = map[string]bool{
	"int": true, "boolean": true, "void": true,
	"if": true, "else": true, "while": true, "for": true, "do": true,
	"break": true, "continue": true, "switch": true, "case": true, "default": true,
	"print": true, "return": true, "new": true, "true": true, "false": true,
}

var levels = [][]ast.BinOp{
	{ast.Or},
	{ast.And},
	{ast.Eq},
	{ast.Lt},
	{ast.Add, ast.Sub},
	{ast.Mul, ast.Div},
}

func ParseFile(ctx context.Context, name string) (*ast.File, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(ctx, name, text)
}

func Parse(ctx context.Context, name string, text []byte) (*ast.File, error) {
	s := &State{
		b:    text,
		name: name,
	}

	return s.Parse(ctx)
}

func (s *State) Parse(ctx context.Context) (f *ast.File, err error) {
	f = &ast.File{Name: s.name}

	for i := 0; ; {
		tk, _, _ := s.next(ctx, i)
		if tk == nil {
			break
		}

		var d ast.Defn

		d, i, err = s.parseDefn(ctx, i)
		if err != nil {
			return nil, err
		}

		f.Defns = append(f.Defns, d)
	}

	tlog.SpanFromContext(ctx).Printw("parsed", "name", s.name, "defns", len(f.Defns))

	return f, nil
}

func (s *State) parseDefn(ctx context.Context, st int) (d ast.Defn, i int, err error) {
	tk, dst, i := s.next(ctx, st)

	var ret tp.Type

	if tk != Keyword("void") {
		ret, i, err = s.parseType(ctx, st)
		if err != nil {
			return nil, i, err
		}
	}

	tk, tst, j := s.next(ctx, i)
	name, ok := tk.(Ident)
	if !ok {
		return nil, tst, NewUnexpected(tst, tk, Ident(""))
	}

	if tk, _, _ := s.next(ctx, j); tk == Char('(') {
		fn := &ast.Func{
			Base: ast.Base{Pos: dst},
			Ret:  ret,
			Name: string(name),
		}

		fn.Formals, i, err = s.parseFormals(ctx, j)
		if err != nil {
			return nil, i, err
		}

		fn.Body, i, err = s.parseBlock(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "func %v", name)
		}

		return fn, i, nil
	}

	if ret == nil {
		tk, tst, _ = s.next(ctx, j)
		return nil, tst, NewUnexpected(tst, tk, Char('('))
	}

	g := &ast.Globals{
		Base: ast.Base{Pos: dst},
		Type: ret,
	}

	g.Vars, i, err = s.parseVarIntros(ctx, i)
	if err != nil {
		return nil, i, err
	}

	return g, i, nil
}

func (s *State) parseType(ctx context.Context, st int) (t tp.Type, i int, err error) {
	tk, tst, i := s.next(ctx, st)

	switch tk {
	case Keyword("int"):
		t = tp.Int{}
	case Keyword("boolean"):
		t = tp.Boolean{}
	default:
		return nil, tst, NewUnexpected(tst, tk, Keyword("int"), Keyword("boolean"))
	}

	for {
		tk, _, j := s.next(ctx, i)
		if tk != Char('[') {
			return t, i, nil
		}

		tk, tst, j = s.next(ctx, j)
		if tk != Char(']') {
			return nil, tst, NewUnexpected(tst, tk, Char(']'))
		}

		t = tp.Array{Elem: t}
		i = j
	}
}

func (s *State) parseFormals(ctx context.Context, st int) (fs []*ast.Formal, i int, err error) {
	i, err = s.expect(ctx, st, Char('('))
	if err != nil {
		return nil, i, err
	}

	if tk, _, j := s.next(ctx, i); tk == Char(')') {
		return nil, j, nil
	}

	for {
		f := &ast.Formal{
			Base: ast.Base{Pos: skipSpaces(s.b, i)},
		}

		f.Type, i, err = s.parseType(ctx, i)
		if err != nil {
			return nil, i, err
		}

		tk, tst, j := s.next(ctx, i)
		name, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tst, tk, Ident(""))
		}

		f.Name = string(name)
		fs = append(fs, f)

		tk, tst, i = s.next(ctx, j)

		switch tk {
		case Char(')'):
			return fs, i, nil
		case Char(','):
		default:
			return nil, tst, NewUnexpected(tst, tk, Char(','), Char(')'))
		}
	}
}

func (s *State) parseVarIntros(ctx context.Context, st int) (vars []*ast.VarIntro, i int, err error) {
	i = st

	for {
		tk, tst, j := s.next(ctx, i)
		name, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tst, tk, Ident(""))
		}

		v := &ast.VarIntro{
			Base: ast.Base{Pos: tst},
			Name: string(name),
		}

		tk, tst, i = s.next(ctx, j)
		if tk == Char('=') {
			v.Init, i, err = s.parseExpr(ctx, i)
			if err != nil {
				return nil, i, errors.Wrap(err, "init %v", name)
			}

			tk, tst, i = s.next(ctx, i)
		}

		vars = append(vars, v)

		switch tk {
		case Char(';'):
			return vars, i, nil
		case Char(','):
		default:
			return nil, tst, NewUnexpected(tst, tk, Char(','), Char(';'))
		}
	}
}

func (s *State) parseBlock(ctx context.Context, st int) (b *ast.Block, i int, err error) {
	tk, tst, i := s.next(ctx, st)
	if tk != Char('{') {
		return nil, tst, NewUnexpected(tst, tk, Char('{'))
	}

	b = &ast.Block{Base: ast.Base{Pos: tst}}

	for {
		tk, tst, j := s.next(ctx, i)

		switch tk {
		case Char('}'):
			return b, j, nil
		case nil:
			return nil, tst, NewUnexpected(tst, tk, Char('}'))
		}

		var x ast.Stmt

		x, i, err = s.parseStmt(ctx, i)
		if err != nil {
			return nil, i, err
		}

		b.Stmts = append(b.Stmts, x)
	}
}

func (s *State) parseStmt(ctx context.Context, st int) (x ast.Stmt, i int, err error) {
	tk, tst, i := s.next(ctx, st)
	base := ast.Base{Pos: tst}

	switch tk {
	case Char('{'):
		return s.parseBlock(ctx, st)
	case Char(';'):
		return &ast.Block{Base: base}, i, nil
	case Keyword("int"), Keyword("boolean"):
		d := &ast.VarDecl{Base: base}

		d.Type, i, err = s.parseType(ctx, st)
		if err != nil {
			return nil, i, err
		}

		d.Vars, i, err = s.parseVarIntros(ctx, i)
		if err != nil {
			return nil, i, err
		}

		return d, i, nil
	case Keyword("while"):
		w := &ast.While{Base: base}

		w.Cond, i, err = s.parseParenExpr(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "while")
		}

		w.Body, i, err = s.parseStmt(ctx, i)
		if err != nil {
			return nil, i, err
		}

		return w, i, nil
	case Keyword("if"):
		return s.parseIf(ctx, base, i)
	case Keyword("for"):
		return s.parseFor(ctx, base, i)
	case Keyword("do"):
		d := &ast.DoWhile{Base: base}

		d.Body, i, err = s.parseStmt(ctx, i)
		if err != nil {
			return nil, i, err
		}

		i, err = s.expect(ctx, i, Keyword("while"))
		if err != nil {
			return nil, i, err
		}

		d.Cond, i, err = s.parseParenExpr(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "do-while")
		}

		i, err = s.expect(ctx, i, Char(';'))
		if err != nil {
			return nil, i, err
		}

		return d, i, nil
	case Keyword("break"):
		i, err = s.expect(ctx, i, Char(';'))
		if err != nil {
			return nil, i, err
		}

		return &ast.Break{Base: base}, i, nil
	case Keyword("continue"):
		i, err = s.expect(ctx, i, Char(';'))
		if err != nil {
			return nil, i, err
		}

		return &ast.Continue{Base: base}, i, nil
	case Keyword("switch"):
		return s.parseSwitch(ctx, base, i)
	case Keyword("print"):
		p := &ast.Print{Base: base}

		p.X, i, err = s.parseExpr(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "print")
		}

		i, err = s.expect(ctx, i, Char(';'))
		if err != nil {
			return nil, i, err
		}

		return p, i, nil
	case Keyword("return"):
		r := &ast.Return{Base: base}

		if tk, _, j := s.next(ctx, i); tk == Char(';') {
			return r, j, nil
		}

		r.X, i, err = s.parseExpr(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "return")
		}

		i, err = s.expect(ctx, i, Char(';'))
		if err != nil {
			return nil, i, err
		}

		return r, i, nil
	}

	e, i, err := s.parseStmtExpr(ctx, st)
	if err != nil {
		return nil, i, err
	}

	i, err = s.expect(ctx, i, Char(';'))
	if err != nil {
		return nil, i, err
	}

	return &ast.ExprStmt{Base: base, X: e}, i, nil
}

func (s *State) parseIf(ctx context.Context, base ast.Base, st int) (_ ast.Stmt, i int, err error) {
	x := &ast.If{Base: base}

	x.Cond, i, err = s.parseParenExpr(ctx, st)
	if err != nil {
		return nil, i, errors.Wrap(err, "if")
	}

	x.Then, i, err = s.parseStmt(ctx, i)
	if err != nil {
		return nil, i, err
	}

	if tk, _, j := s.next(ctx, i); tk == Keyword("else") {
		x.Else, i, err = s.parseStmt(ctx, j)
		if err != nil {
			return nil, i, err
		}
	}

	return x, i, nil
}

func (s *State) parseFor(ctx context.Context, base ast.Base, st int) (_ ast.Stmt, i int, err error) {
	x := &ast.For{Base: base}

	i, err = s.expect(ctx, st, Char('('))
	if err != nil {
		return nil, i, err
	}

	if tk, _, _ := s.next(ctx, i); tk != Char(';') {
		x.Init, i, err = s.parseStmtExpr(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "for init")
		}
	}

	i, err = s.expect(ctx, i, Char(';'))
	if err != nil {
		return nil, i, err
	}

	if tk, _, _ := s.next(ctx, i); tk != Char(';') {
		x.Cond, i, err = s.parseExpr(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "for cond")
		}
	}

	i, err = s.expect(ctx, i, Char(';'))
	if err != nil {
		return nil, i, err
	}

	if tk, _, _ := s.next(ctx, i); tk != Char(')') {
		x.Step, i, err = s.parseStmtExpr(ctx, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "for step")
		}
	}

	i, err = s.expect(ctx, i, Char(')'))
	if err != nil {
		return nil, i, err
	}

	x.Body, i, err = s.parseStmt(ctx, i)
	if err != nil {
		return nil, i, err
	}

	return x, i, nil
}

func (s *State) parseSwitch(ctx context.Context, base ast.Base, st int) (_ ast.Stmt, i int, err error) {
	x := &ast.Switch{Base: base}

	x.Test, i, err = s.parseParenExpr(ctx, st)
	if err != nil {
		return nil, i, errors.Wrap(err, "switch")
	}

	i, err = s.expect(ctx, i, Char('{'))
	if err != nil {
		return nil, i, err
	}

	var c *ast.Case

	for {
		tk, tst, j := s.next(ctx, i)

		switch tk {
		case Char('}'):
			return x, j, nil
		case nil:
			return nil, tst, NewUnexpected(tst, tk, Char('}'))
		case Keyword("case"):
			c = &ast.Case{Base: ast.Base{Pos: tst}}

			var n ast.Expr

			n, i, err = s.parseUnary(ctx, j)
			if err != nil {
				return nil, i, errors.Wrap(err, "case")
			}

			num, ok := n.(*ast.Int)
			if !ok {
				return nil, tst, Error{Pos: n.Position(), Msg: "case label must be an integer literal"}
			}

			c.Num = num.Value

			i, err = s.expect(ctx, i, Char(':'))
			if err != nil {
				return nil, i, err
			}

			x.Cases = append(x.Cases, c)

			continue
		case Keyword("default"):
			c = &ast.Case{Base: ast.Base{Pos: tst}, Default: true}

			i, err = s.expect(ctx, j, Char(':'))
			if err != nil {
				return nil, i, err
			}

			x.Cases = append(x.Cases, c)

			continue
		}

		if c == nil {
			return nil, tst, NewUnexpected(tst, tk, Keyword("case"), Keyword("default"))
		}

		var stmt ast.Stmt

		stmt, i, err = s.parseStmt(ctx, i)
		if err != nil {
			return nil, i, err
		}

		c.Body = append(c.Body, stmt)
	}
}

func (s *State) parseParenExpr(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	i, err = s.expect(ctx, st, Char('('))
	if err != nil {
		return nil, i, err
	}

	x, i, err = s.parseExpr(ctx, i)
	if err != nil {
		return nil, i, err
	}

	i, err = s.expect(ctx, i, Char(')'))
	if err != nil {
		return nil, i, err
	}

	return x, i, nil
}

// parseStmtExpr parses an expression that may stand alone as a statement.
func (s *State) parseStmtExpr(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	x, i, err = s.parseExpr(ctx, st)
	if err != nil {
		return nil, i, err
	}

	switch x.(type) {
	case *ast.Assign, *ast.Call:
		return x, i, nil
	}

	return nil, x.Position(), Error{Pos: x.Position(), Msg: "assignment or call expected"}
}

func (s *State) parseExpr(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	x, i, err = s.parseBinary(ctx, st, 0)
	if err != nil {
		return nil, i, err
	}

	tk, tst, j := s.next(ctx, i)
	if tk != Char('=') {
		return x, i, nil
	}

	switch x.(type) {
	case *ast.Var, *ast.Nth:
	default:
		return nil, tst, Error{Pos: tst, Msg: "cannot assign to expression"}
	}

	rhs, i, err := s.parseExpr(ctx, j)
	if err != nil {
		return nil, i, err
	}

	return &ast.Assign{
		Base: ast.Base{Pos: x.Position()},
		Lhs:  x,
		Rhs:  rhs,
	}, i, nil
}

func (s *State) parseBinary(ctx context.Context, st, lvl int) (x ast.Expr, i int, err error) {
	if lvl == len(levels) {
		return s.parseUnary(ctx, st)
	}

	x, i, err = s.parseBinary(ctx, st, lvl+1)
	if err != nil {
		return nil, i, err
	}

	for {
		tk, _, j := s.next(ctx, i)

		op := binOp(tk, levels[lvl])
		if op == 0 {
			return x, i, nil
		}

		var y ast.Expr

		y, i, err = s.parseBinary(ctx, j, lvl+1)
		if err != nil {
			return nil, i, err
		}

		x = &ast.Binary{
			Base: ast.Base{Pos: x.Position()},
			Op:   op,
			L:    x,
			R:    y,
		}
	}
}

func (s *State) parseUnary(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	tk, tst, i := s.next(ctx, st)
	if tk != Char('-') {
		return s.parsePostfix(ctx, st)
	}

	x, i, err = s.parseUnary(ctx, i)
	if err != nil {
		return nil, i, err
	}

	if n, ok := x.(*ast.Int); ok {
		n.Pos = tst
		n.Value = -n.Value

		return n, i, nil
	}

	return &ast.Binary{
		Base: ast.Base{Pos: tst},
		Op:   ast.Sub,
		L:    &ast.Int{Base: ast.Base{Pos: tst}},
		R:    x,
	}, i, nil
}

func (s *State) parsePostfix(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	x, i, err = s.parsePrimary(ctx, st)
	if err != nil {
		return nil, i, err
	}

	for {
		tk, _, j := s.next(ctx, i)

		switch tk {
		case Char('['):
			n := &ast.Nth{
				Base: ast.Base{Pos: x.Position()},
				Arr:  x,
			}

			n.Idx, i, err = s.parseExpr(ctx, j)
			if err != nil {
				return nil, i, errors.Wrap(err, "index")
			}

			i, err = s.expect(ctx, i, Char(']'))
			if err != nil {
				return nil, i, err
			}

			x = n
		case Char('.'):
			i, err = s.expect(ctx, j, Ident("length"))
			if err != nil {
				return nil, i, err
			}

			x = &ast.Length{
				Base: ast.Base{Pos: x.Position()},
				Arr:  x,
			}
		default:
			return x, i, nil
		}
	}
}

func (s *State) parsePrimary(ctx context.Context, st int) (x ast.Expr, i int, err error) {
	tk, tst, i := s.next(ctx, st)
	base := ast.Base{Pos: tst}

	switch tk := tk.(type) {
	case Number:
		v, err := strconv.ParseInt(string(tk), 10, 32)
		if err != nil {
			return nil, tst, Error{Pos: tst, Msg: "integer literal out of range: " + string(tk)}
		}

		return &ast.Int{Base: base, Value: int32(v)}, i, nil
	case Keyword:
		switch tk {
		case "true", "false":
			return &ast.Bool{Base: base, Value: tk == "true"}, i, nil
		case "new":
			return s.parseNew(ctx, base, i)
		}
	case Ident:
		paren, _, j := s.next(ctx, i)
		if paren != Char('(') {
			return &ast.Var{Base: base, Name: string(tk)}, i, nil
		}

		c := &ast.Call{Base: base, Name: string(tk)}

		c.Args, i, err = s.parseArgs(ctx, j)
		if err != nil {
			return nil, i, errors.Wrap(err, "call %v", tk)
		}

		return c, i, nil
	case Char:
		if tk != '(' {
			break
		}

		x, i, err = s.parseExpr(ctx, i)
		if err != nil {
			return nil, i, err
		}

		i, err = s.expect(ctx, i, Char(')'))
		if err != nil {
			return nil, i, err
		}

		return x, i, nil
	}

	return nil, tst, NewUnexpected(tst, tk, Number(""), Ident(""), Char('('))
}

func (s *State) parseNew(ctx context.Context, base ast.Base, st int) (x ast.Expr, i int, err error) {
	tk, tst, i := s.next(ctx, st)

	var elem tp.Type

	switch tk {
	case Keyword("int"):
		elem = tp.Int{}
	case Keyword("boolean"):
		elem = tp.Boolean{}
	default:
		return nil, tst, NewUnexpected(tst, tk, Keyword("int"), Keyword("boolean"))
	}

	i, err = s.expect(ctx, i, Char('['))
	if err != nil {
		return nil, i, err
	}

	size, i, err := s.parseExpr(ctx, i)
	if err != nil {
		return nil, i, errors.Wrap(err, "array size")
	}

	i, err = s.expect(ctx, i, Char(']'))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, _, j := s.next(ctx, i)
		if tk != Char('[') {
			break
		}

		if tk, _, j = s.next(ctx, j); tk != Char(']') {
			break
		}

		elem = tp.Array{Elem: elem}
		i = j
	}

	return &ast.NewArray{
		Base: base,
		Elem: elem,
		Size: size,
	}, i, nil
}

// parseArgs parses call arguments after the opening parenthesis.
func (s *State) parseArgs(ctx context.Context, st int) (args []ast.Expr, i int, err error) {
	if tk, _, j := s.next(ctx, st); tk == Char(')') {
		return nil, j, nil
	}

	i = st

	for {
		var a ast.Expr

		a, i, err = s.parseExpr(ctx, i)
		if err != nil {
			return nil, i, err
		}

		args = append(args, a)

		tk, tst, j := s.next(ctx, i)

		switch tk {
		case Char(')'):
			return args, j, nil
		case Char(','):
			i = j
		default:
			return nil, tst, NewUnexpected(tst, tk, Char(','), Char(')'))
		}
	}
}

func (s *State) expect(ctx context.Context, st int, want Token) (i int, err error) {
	tk, tst, i := s.next(ctx, st)
	if tk != want {
		return tst, NewUnexpected(tst, tk, want)
	}

	return i, nil
}

func (s *State) next(ctx context.Context, st int) (tk Token, tst int, i int) {
	if tr := tlog.SpanFromContext(ctx); tr.If("next_token") {
		defer func(st int) {
			tr.Printw("next token", "st", st, "tk", tk, "tst", tst, "i", i, "from", loc.Callers(1, 3))
		}(st)
	}

	st = skipSpaces(s.b, st)
	i = st

	if i == len(s.b) {
		return nil, st, i
	}

	if i+1 < len(s.b) {
		switch op := string(s.b[i : i+2]); op {
		case "==", "&&", "||":
			return Op(op), st, i + 2
		}
	}

	c := s.b[i]

	switch {
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
		e := skipIdent(s.b, i)
		w := string(s.b[i:e])

		if keywords[w] {
			return Keyword(w), st, e
		}

		return Ident(w), st, e
	case c >= '0' && c <= '9':
		e := skipNum(s.b, i)

		return Number(s.b[i:e]), st, e
	}

	return Char(c), st, i + 1
}

func binOp(tk Token, ops []ast.BinOp) ast.BinOp {
	var s string

	switch tk := tk.(type) {
	case Char:
		s = string(rune(tk))
	case Op:
		s = string(tk)
	default:
		return 0
	}

	for _, op := range ops {
		if op.String() == s {
			return op
		}
	}

	return 0
}

func skipNum(b []byte, i int) int {
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}

	return i
}

func skipIdent(b []byte, i int) int {
	for i < len(b) && (b[i] >= 'a' && b[i] <= 'z' || b[i] >= 'A' && b[i] <= 'Z' || b[i] >= '0' && b[i] <= '9' || b[i] == '_') {
		i++
	}

	return i
}

func skipSpaces(b []byte, i int) int {
	for i < len(b) {
		switch {
		case b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r':
			i++
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '/':
			for i < len(b) && b[i] != '\n' {
				i++
			}
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '*':
			i += 2

			for i+1 < len(b) && !(b[i] == '*' && b[i+1] == '/') {
				i++
			}

			i = min(i+2, len(b))
		default:
			return i
		}
	}

	return i
}
