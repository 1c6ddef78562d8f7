package ssagen

import (
	"tlog.app/go/errors"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/ir"
)

// stmt returns the code running s and then andThen.
func (c *compiler) stmt(s ast.Stmt, andThen ir.Code) (ir.Code, error) {
	switch s := s.(type) {
	case *ast.Block:
		return c.stmts(s.Stmts, andThen)
	case *ast.ExprStmt:
		return c.discard(s.X, andThen)
	case *ast.VarDecl:
		return c.varDecl(s, andThen)
	case *ast.Print:
		return c.expr(s.X, func(x ir.Value) (ir.Code, error) {
			return &ir.Call{Dst: ir.Reg{T: ir.Void{}}, Func: printFunc, Args: []ir.Value{x}, Next: andThen}, nil
		})
	case *ast.Return:
		if s.X == nil {
			return &ir.Ret{}, nil
		}

		return c.expr(s.X, func(x ir.Value) (ir.Code, error) {
			return &ir.Ret{X: x}, nil
		})
	case *ast.If:
		return c.ifStmt(s, andThen)
	case *ast.While:
		return c.whileStmt(s, andThen)
	case *ast.For:
		return c.forStmt(s, andThen)
	case *ast.DoWhile:
		return c.doWhile(s, andThen)
	case *ast.Switch:
		return c.switchStmt(s, andThen)
	case *ast.Break:
		if c.breakTo == nil {
			return nil, errors.New("break outside of loop or switch")
		}

		return &ir.Goto{To: c.breakTo}, nil
	case *ast.Continue:
		if c.continueTo == nil {
			return nil, errors.New("continue outside of loop")
		}

		return &ir.Goto{To: c.continueTo}, nil
	default:
		return nil, errors.New("unsupported stmt: %T", s)
	}
}

func (c *compiler) stmts(l []ast.Stmt, andThen ir.Code) (code ir.Code, err error) {
	code = andThen

	for i := len(l) - 1; i >= 0; i-- {
		code, err = c.stmt(l[i], code)
		if err != nil {
			return nil, err
		}
	}

	return code, nil
}

func (c *compiler) varDecl(s *ast.VarDecl, andThen ir.Code) (code ir.Code, err error) {
	code = andThen

	for i := len(s.Vars) - 1; i >= 0; i-- {
		v := s.Vars[i]

		ptr, err := c.addr(c.info.Defs[v])
		if err != nil {
			return nil, errors.Wrap(err, "%v", v.Name)
		}

		next := code

		if v.Init == nil {
			elem := ptr.Type().(ir.Ptr).Elem
			code = &ir.Store{Val: ir.Zero(elem), Ptr: ptr, Next: next}

			continue
		}

		code, err = c.expr(v.Init, func(x ir.Value) (ir.Code, error) {
			return &ir.Store{Val: x, Ptr: ptr, Next: next}, nil
		})
		if err != nil {
			return nil, err
		}
	}

	return code, nil
}

func (c *compiler) ifStmt(s *ast.If, andThen ir.Code) (ir.Code, error) {
	tail := andThen
	if !ir.IsBareTerminator(andThen) {
		tail = &ir.Goto{To: c.blockFor(andThen)}
	}

	then := c.f.NewBlock()

	code, err := c.stmt(s.Then, tail)
	if err != nil {
		return nil, err
	}

	then.Set(code)

	var els *ir.Block

	if s.Else != nil {
		els = c.f.NewBlock()

		code, err = c.stmt(s.Else, tail)
		if err != nil {
			return nil, err
		}

		els.Set(code)
	} else {
		els = c.blockFor(tail)
	}

	return c.cond(s.Cond, then, els)
}

func (c *compiler) whileStmt(s *ast.While, andThen ir.Code) (ir.Code, error) {
	exit := c.blockFor(andThen)
	head := c.f.NewBlock()
	body := c.f.NewBlock()

	code, err := c.loopBody(s.Body, exit, head, head)
	if err != nil {
		return nil, err
	}

	body.Set(code)

	code, err = c.cond(s.Cond, body, exit)
	if err != nil {
		return nil, err
	}

	head.Set(code)

	return &ir.Goto{To: head}, nil
}

func (c *compiler) forStmt(s *ast.For, andThen ir.Code) (ir.Code, error) {
	exit := c.blockFor(andThen)
	test := c.f.NewBlock()
	body := c.f.NewBlock()
	step := c.f.NewBlock()

	code, err := c.loopBody(s.Body, exit, step, step)
	if err != nil {
		return nil, err
	}

	body.Set(code)

	code = &ir.Goto{To: test}

	if s.Step != nil {
		code, err = c.discard(s.Step, code)
		if err != nil {
			return nil, err
		}
	}

	step.Set(code)

	code = &ir.Goto{To: body}

	if s.Cond != nil {
		code, err = c.cond(s.Cond, body, exit)
		if err != nil {
			return nil, err
		}
	}

	test.Set(code)

	code = &ir.Goto{To: test}

	if s.Init != nil {
		code, err = c.discard(s.Init, code)
		if err != nil {
			return nil, err
		}
	}

	return code, nil
}

func (c *compiler) doWhile(s *ast.DoWhile, andThen ir.Code) (ir.Code, error) {
	exit := c.blockFor(andThen)
	body := c.f.NewBlock()
	test := c.f.NewBlock()

	code, err := c.loopBody(s.Body, exit, test, test)
	if err != nil {
		return nil, err
	}

	body.Set(code)

	code, err = c.cond(s.Cond, body, exit)
	if err != nil {
		return nil, err
	}

	test.Set(code)

	return &ir.Goto{To: body}, nil
}

// loopBody compiles a loop body which proceeds to next.
func (c *compiler) loopBody(s ast.Stmt, exit, next, cont *ir.Block) (ir.Code, error) {
	defer func(b, k *ir.Block) {
		c.breakTo, c.continueTo = b, k
	}(c.breakTo, c.continueTo)

	c.breakTo, c.continueTo = exit, cont

	return c.stmt(s, &ir.Goto{To: next})
}

func (c *compiler) switchStmt(s *ast.Switch, andThen ir.Code) (ir.Code, error) {
	exit := c.blockFor(andThen)
	def := exit

	blocks := make([]*ir.Block, len(s.Cases))
	var cases []ir.SwitchCase

	for i, cs := range s.Cases {
		blocks[i] = c.f.NewBlock()

		if cs.Default {
			def = blocks[i]
		} else {
			cases = append(cases, ir.SwitchCase{Num: cs.Num, To: blocks[i]})
		}
	}

	defer func(b *ir.Block) {
		c.breakTo = b
	}(c.breakTo)

	c.breakTo = exit

	for i := len(s.Cases) - 1; i >= 0; i-- {
		next := exit
		if i+1 < len(blocks) {
			next = blocks[i+1]
		}

		code, err := c.stmts(s.Cases[i].Body, &ir.Goto{To: next})
		if err != nil {
			return nil, err
		}

		blocks[i].Set(code)
	}

	return c.expr(s.Test, func(x ir.Value) (ir.Code, error) {
		return &ir.Switch{X: x, Default: def, Cases: cases}, nil
	})
}

func (c *compiler) cond(e ast.Expr, then, els *ir.Block) (ir.Code, error) {
	return c.expr(e, func(x ir.Value) (ir.Code, error) {
		return &ir.CondBr{Cond: x, Then: then, Else: els}, nil
	})
}

// discard evaluates e for its side effects.
func (c *compiler) discard(e ast.Expr, andThen ir.Code) (ir.Code, error) {
	return c.expr(e, func(ir.Value) (ir.Code, error) {
		return andThen, nil
	})
}
