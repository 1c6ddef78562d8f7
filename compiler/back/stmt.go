package back

import (
	"tlog.app/go/errors"

	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/ast"
)

// scoped compiles s releasing the locals it declares.
// It reports whether control may continue after s.
func (c *compiler) scoped(f *Frame, s ast.Stmt) (bool, error) {
	return c.scope(f, func() (bool, error) {
		return c.stmt(f, s)
	})
}

func (c *compiler) scope(f *Frame, body func() (bool, error)) (bool, error) {
	env := f.env

	next, err := body()
	if err != nil {
		return false, err
	}

	f.resetTo(env)

	if !next {
		c.a.Drop()
	}

	return next, nil
}

func (c *compiler) stmts(f *Frame, list []ast.Stmt) (bool, error) {
	for _, s := range list {
		next, err := c.stmt(f, s)
		if err != nil || !next {
			return next, err
		}
	}

	return true, nil
}

func (c *compiler) stmt(f *Frame, s ast.Stmt) (bool, error) {
	a := c.a

	switch s := s.(type) {
	case *ast.Block:
		return c.scope(f, func() (bool, error) {
			return c.stmts(f, s.Stmts)
		})
	case *ast.ExprStmt:
		return true, c.expr(f, s.X)
	case *ast.VarDecl:
		for _, v := range s.Vars {
			obj := c.info.Defs[v]

			if v.Init == nil {
				f.allocLocal(obj, asm.Imm(0))
				continue
			}

			err := c.expr(f, v.Init)
			if err != nil {
				return false, err
			}

			f.allocLocal(obj, f.Free().R64())
		}

		return true, nil
	case *ast.Print:
		cf := f.prepareCall(1)

		err := c.expr(&cf.Frame, s.X)
		if err != nil {
			return false, err
		}

		cf.saveArg()

		err = cf.call("print")
		if err != nil {
			return false, err
		}

		f.removeCall(cf)

		return true, nil
	case *ast.Return:
		if s.X != nil {
			err := c.expr(f, s.X)
			if err != nil {
				return false, err
			}

			if res := asm.Results[0]; f.Free() != res {
				a.Emit("movq", f.Free().R64(), res.R64())
			}
		}

		a.Adjust(-f.pushed)
		a.Epilogue()

		return false, nil
	case *ast.If:
		return c.ifStmt(f, s)
	case *ast.While:
		body := a.NewLabel()
		test := a.NewLabel()

		a.Emit("jmp", test.String())
		a.Label(body)

		_, err := c.scoped(f, s.Body)
		if err != nil {
			return false, err
		}

		a.Label(test)

		return true, c.branch(f, s.Cond, true, body)
	case *ast.For:
		return c.forStmt(f, s)
	case *ast.DoWhile:
		return false, unsupported("do-while loop", s.Pos)
	case *ast.Break:
		return false, unsupported("break", s.Pos)
	case *ast.Continue:
		return false, unsupported("continue", s.Pos)
	case *ast.Switch:
		return false, unsupported("switch", s.Pos)
	default:
		return false, errors.New("unexpected statement %T", s)
	}
}

func (c *compiler) ifStmt(f *Frame, s *ast.If) (bool, error) {
	a := c.a
	els := a.NewLabel()

	err := c.branch(f, s.Cond, false, els)
	if err != nil {
		return false, err
	}

	next, err := c.scoped(f, s.Then)
	if err != nil {
		return false, err
	}

	if s.Else == nil {
		a.Label(els)

		return true, nil
	}

	if !next {
		a.Label(els)

		return c.scoped(f, s.Else)
	}

	done := a.NewLabel()

	a.Emit("jmp", done.String())
	a.Label(els)

	_, err = c.scoped(f, s.Else)
	if err != nil {
		return false, err
	}

	a.Label(done)

	return true, nil
}

func (c *compiler) forStmt(f *Frame, s *ast.For) (bool, error) {
	a := c.a

	if s.Init != nil {
		err := c.expr(f, s.Init)
		if err != nil {
			return false, err
		}
	}

	body := a.NewLabel()
	test := a.NewLabel()

	a.Emit("jmp", test.String())
	a.Label(body)

	next, err := c.scoped(f, s.Body)
	if err != nil {
		return false, err
	}

	if next && s.Step != nil {
		err = c.expr(f, s.Step)
		if err != nil {
			return false, err
		}
	}

	a.Label(test)

	if s.Cond == nil {
		a.Emit("jmp", body.String())

		return false, nil
	}

	return true, c.branch(f, s.Cond, true, body)
}
