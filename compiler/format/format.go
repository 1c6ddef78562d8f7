package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/tp"
)

const primary = 7

func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return format(ctx, b, x, 0)
}

func format(ctx context.Context, b []byte, x any, d int) ([]byte, error) {
	switch x := x.(type) {
	case *ast.File:
		return formatFile(ctx, b, x, d)
	case ast.Defn:
		return formatDefn(ctx, b, x, d)
	case ast.Stmt:
		return formatStmt(ctx, b, x, d)
	case ast.Expr:
		return formatExpr(ctx, b, x, 0)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatFile(ctx context.Context, b []byte, x *ast.File, d int) (_ []byte, err error) {
	for i, def := range x.Defns {
		if i != 0 {
			b = append(b, '\n')
		}

		b, err = formatDefn(ctx, b, def, d)
		if err != nil {
			return nil, errors.Wrap(err, "defn %d", i)
		}
	}

	return b, nil
}

func formatDefn(ctx context.Context, b []byte, x ast.Defn, d int) (_ []byte, err error) {
	switch x := x.(type) {
	case *ast.Globals:
		b = app(b, d, "%s ", x.Type.String())

		b, err = formatVars(ctx, b, x.Vars)
		if err != nil {
			return nil, err
		}

		return append(b, ";\n"...), nil
	case *ast.Func:
		return formatFunc(ctx, b, x, d)
	default:
		return nil, errors.New("unsupported defn: %T", x)
	}
}

func formatFunc(ctx context.Context, b []byte, x *ast.Func, d int) ([]byte, error) {
	if x.Void() {
		b = app(b, d, "void %s(", x.Name)
	} else {
		b = app(b, d, "%s %s(", x.Ret.String(), x.Name)
	}

	for i, a := range x.Formals {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = app(b, 0, "%s %s", a.Type.String(), a.Name)
	}

	b = append(b, ") {\n"...)

	b, err := formatStmts(ctx, b, x.Body.Stmts, d+1)
	if err != nil {
		return nil, errors.Wrap(err, "func %v", x.Name)
	}

	b = app(b, d, "}\n")

	return b, nil
}

func formatStmts(ctx context.Context, b []byte, l []ast.Stmt, d int) (_ []byte, err error) {
	for _, s := range l {
		b, err = formatStmt(ctx, b, s, d)
		if err != nil {
			return nil, err
		}
	}

	return b, nil
}

func formatStmt(ctx context.Context, b []byte, s ast.Stmt, d int) (_ []byte, err error) {
	switch s := s.(type) {
	case *ast.Block:
		if len(s.Stmts) == 0 {
			return app(b, d, ";\n"), nil
		}

		b = app(b, d, "{\n")

		b, err = formatStmts(ctx, b, s.Stmts, d+1)
		if err != nil {
			return nil, err
		}

		b = app(b, d, "}\n")
	case *ast.ExprStmt:
		b = app(b, d, "")

		b, err = formatExpr(ctx, b, s.X, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ";\n"...)
	case *ast.VarDecl:
		b = app(b, d, "%s ", s.Type.String())

		b, err = formatVars(ctx, b, s.Vars)
		if err != nil {
			return nil, err
		}

		b = append(b, ";\n"...)
	case *ast.While:
		b = app(b, d, "while (")

		b, err = formatExpr(ctx, b, s.Cond, 0)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = append(b, ')')

		b, err = formatBody(ctx, b, s.Body, d)
		if err != nil {
			return nil, err
		}
	case *ast.If:
		b = app(b, d, "")

		return formatIf(ctx, b, s, d)
	case *ast.For:
		b = app(b, d, "for (")

		for i, x := range []ast.Expr{s.Init, s.Cond, s.Step} {
			if i != 0 {
				b = append(b, "; "...)
			}

			if x == nil {
				continue
			}

			b, err = formatExpr(ctx, b, x, 0)
			if err != nil {
				return nil, errors.Wrap(err, "for header")
			}
		}

		b = append(b, ')')

		b, err = formatBody(ctx, b, s.Body, d)
		if err != nil {
			return nil, err
		}
	case *ast.DoWhile:
		b = app(b, d, "do")

		b, err = formatBody(ctx, b, s.Body, d)
		if err != nil {
			return nil, err
		}

		b = app(b, d, "while (")

		b, err = formatExpr(ctx, b, s.Cond, 0)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = append(b, ");\n"...)
	case *ast.Break:
		b = app(b, d, "break;\n")
	case *ast.Continue:
		b = app(b, d, "continue;\n")
	case *ast.Switch:
		b = app(b, d, "switch (")

		b, err = formatExpr(ctx, b, s.Test, 0)
		if err != nil {
			return nil, errors.Wrap(err, "test")
		}

		b = append(b, ") {\n"...)

		for _, c := range s.Cases {
			if c.Default {
				b = app(b, d, "default:\n")
			} else {
				b = app(b, d, "case %d:\n", c.Num)
			}

			b, err = formatStmts(ctx, b, c.Body, d+1)
			if err != nil {
				return nil, err
			}
		}

		b = app(b, d, "}\n")
	case *ast.Print:
		b = app(b, d, "print ")

		b, err = formatExpr(ctx, b, s.X, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ";\n"...)
	case *ast.Return:
		if s.X == nil {
			return app(b, d, "return;\n"), nil
		}

		b = app(b, d, "return ")

		b, err = formatExpr(ctx, b, s.X, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ";\n"...)
	default:
		return nil, errors.New("unsupported stmt: %T", s)
	}

	return b, nil
}

// formatIf expects the indentation to be already written.
func formatIf(ctx context.Context, b []byte, s *ast.If, d int) (_ []byte, err error) {
	b = append(b, "if ("...)

	b, err = formatExpr(ctx, b, s.Cond, 0)
	if err != nil {
		return nil, errors.Wrap(err, "cond")
	}

	b = append(b, ')')

	then, ok := s.Then.(*ast.Block)
	if !ok || s.Else == nil || len(then.Stmts) == 0 {
		b, err = formatBody(ctx, b, s.Then, d)
		if err != nil {
			return nil, err
		}

		if s.Else == nil {
			return b, nil
		}

		b = app(b, d, "else")
	} else {
		b = append(b, " {\n"...)

		b, err = formatStmts(ctx, b, then.Stmts, d+1)
		if err != nil {
			return nil, err
		}

		b = app(b, d, "} else")
	}

	if elif, ok := s.Else.(*ast.If); ok {
		b = append(b, ' ')

		return formatIf(ctx, b, elif, d)
	}

	return formatBody(ctx, b, s.Else, d)
}

// formatBody writes a loop or branch body after its header.
func formatBody(ctx context.Context, b []byte, s ast.Stmt, d int) (_ []byte, err error) {
	blk, ok := s.(*ast.Block)
	if !ok || len(blk.Stmts) == 0 {
		b = append(b, '\n')

		return formatStmt(ctx, b, s, d+1)
	}

	b = append(b, " {\n"...)

	b, err = formatStmts(ctx, b, blk.Stmts, d+1)
	if err != nil {
		return nil, err
	}

	return app(b, d, "}\n"), nil
}

func formatVars(ctx context.Context, b []byte, vars []*ast.VarIntro) (_ []byte, err error) {
	for i, v := range vars {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = append(b, v.Name...)

		if v.Init == nil {
			continue
		}

		b = append(b, " = "...)

		b, err = formatExpr(ctx, b, v.Init, 0)
		if err != nil {
			return nil, errors.Wrap(err, "var %v", v.Name)
		}
	}

	return b, nil
}

// formatExpr parenthesizes x if it binds weaker than outer.
func formatExpr(ctx context.Context, b []byte, x ast.Expr, outer int) (_ []byte, err error) {
	if prec(x) >= outer {
		return formatOperand(ctx, b, x)
	}

	b = append(b, '(')

	b, err = formatOperand(ctx, b, x)
	if err != nil {
		return nil, err
	}

	return append(b, ')'), nil
}

func formatOperand(ctx context.Context, b []byte, x ast.Expr) (_ []byte, err error) {
	switch x := x.(type) {
	case *ast.Int:
		b = hfmt.Appendf(b, "%d", x.Value)
	case *ast.Bool:
		b = hfmt.Appendf(b, "%v", x.Value)
	case *ast.Var:
		b = append(b, x.Name...)
	case *ast.Nth:
		b, err = formatExpr(ctx, b, x.Arr, primary)
		if err != nil {
			return nil, err
		}

		b = append(b, '[')

		b, err = formatExpr(ctx, b, x.Idx, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ']')
	case *ast.NewArray:
		base, dims := x.Elem, 0

		for {
			a, ok := base.(tp.Array)
			if !ok {
				break
			}

			base, dims = a.Elem, dims+1
		}

		b = hfmt.Appendf(b, "new %s[", base.String())

		b, err = formatExpr(ctx, b, x.Size, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ']')

		for i := 0; i < dims; i++ {
			b = append(b, "[]"...)
		}
	case *ast.Length:
		b, err = formatExpr(ctx, b, x.Arr, primary)
		if err != nil {
			return nil, err
		}

		b = append(b, ".length"...)
	case *ast.Binary:
		p := prec(x)

		b, err = formatExpr(ctx, b, x.L, p)
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = hfmt.Appendf(b, " %s ", x.Op.String())

		b, err = formatExpr(ctx, b, x.R, p+1)
		if err != nil {
			return nil, errors.Wrap(err, "right")
		}
	case *ast.Assign:
		b, err = formatExpr(ctx, b, x.Lhs, primary)
		if err != nil {
			return nil, errors.Wrap(err, "lhs")
		}

		b = append(b, " = "...)

		b, err = formatExpr(ctx, b, x.Rhs, 0)
		if err != nil {
			return nil, errors.Wrap(err, "rhs")
		}
	case *ast.Call:
		b = append(b, x.Name...)
		b = append(b, '(')

		for i, a := range x.Args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b, err = formatExpr(ctx, b, a, 0)
			if err != nil {
				return nil, errors.Wrap(err, "arg %d", i)
			}
		}

		b = append(b, ')')
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	return b, nil
}

func prec(x ast.Expr) int {
	switch x := x.(type) {
	case *ast.Assign:
		return 0
	case *ast.Binary:
		switch x.Op {
		case ast.Or:
			return 1
		case ast.And:
			return 2
		case ast.Eq:
			return 3
		case ast.Lt:
			return 4
		case ast.Add, ast.Sub:
			return 5
		default:
			return 6
		}
	default:
		return primary
	}
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
