package back

import (
	"tlog.app/go/errors"

	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/ast"
)

// Deep is the depth of expressions which may have side effects.
// They are evaluated in source order.
const Deep = 1000

func depth(e ast.Expr) int {
	switch e := e.(type) {
	case *ast.Int, *ast.Bool, *ast.Var:
		return 1
	case *ast.Binary:
		return 1 + max(depth(e.L), depth(e.R))
	case *ast.Nth:
		return 1 + max(depth(e.Arr), depth(e.Idx))
	case *ast.Length:
		return 1 + depth(e.Arr)
	default:
		return Deep
	}
}

// expr leaves the value of e in f.Free().
func (c *compiler) expr(f *Frame, e ast.Expr) error {
	a := c.a

	switch e := e.(type) {
	case *ast.Int:
		a.Emit("movl", asm.Imm(int64(e.Value)), f.Free().R32())
	case *ast.Bool:
		v := int64(0)
		if e.Value {
			v = 1
		}

		a.Emit("movl", asm.Imm(v), f.Free().R32())
	case *ast.Var:
		return f.load(c.info.Uses[e])
	case *ast.Assign:
		return c.assign(f, e)
	case *ast.Call:
		return c.call(f, e.Name, e.Args)
	case *ast.Binary:
		switch e.Op {
		case ast.Add:
			return c.arith(f, e, "addl", true)
		case ast.Sub:
			return c.arith(f, e, "subl", false)
		case ast.Mul:
			return c.arith(f, e, "imull", true)
		case ast.Div:
			return unsupported("division", e.Pos)
		case ast.Lt, ast.Eq, ast.And, ast.Or:
			return c.boolValue(f, e)
		default:
			return errors.New("unexpected binary op %v", e.Op)
		}
	case *ast.Nth:
		return unsupported("array indexing", e.Pos)
	case *ast.NewArray:
		return unsupported("new array", e.Pos)
	case *ast.Length:
		return unsupported("array length", e.Pos)
	default:
		return errors.New("unexpected expression %T", e)
	}

	return nil
}

func (c *compiler) assign(f *Frame, e *ast.Assign) error {
	v, ok := e.Lhs.(*ast.Var)
	if !ok {
		return unsupported("array element assignment", e.Pos)
	}

	err := c.expr(f, e.Rhs)
	if err != nil {
		return err
	}

	return f.store(c.info.Uses[v])
}

// arith computes l op r choosing the order that needs fewer registers.
func (c *compiler) arith(f *Frame, e *ast.Binary, op string, commutative bool) error {
	r0 := f.Free()

	if depth(e.L) >= depth(e.R) || depth(e.R) >= Deep {
		err := c.expr(f, e.L)
		if err != nil {
			return err
		}

		return f.withSpill(func(r1 asm.Reg) error {
			err := c.expr(f, e.R)
			if err != nil {
				return err
			}

			c.a.Emit(op, r1.R32(), r0.R32())

			return nil
		})
	}

	err := c.expr(f, e.R)
	if err != nil {
		return err
	}

	return f.withSpill(func(r1 asm.Reg) error {
		err := c.expr(f, e.L)
		if err != nil {
			return err
		}

		if !commutative {
			c.a.Emit("xchgl", r1.R32(), r0.R32())
		}

		c.a.Emit(op, r1.R32(), r0.R32())

		return nil
	})
}

// compare evaluates both sides of a comparison and sets the flags as cmpl r, l would.
func (c *compiler) compare(f *Frame, e *ast.Binary) error {
	r0 := f.Free()

	if depth(e.L) > depth(e.R) || depth(e.R) >= Deep {
		err := c.expr(f, e.L)
		if err != nil {
			return err
		}

		return f.withSpill(func(r1 asm.Reg) error {
			err := c.expr(f, e.R)
			if err != nil {
				return err
			}

			c.a.Emit("cmpl", r1.R32(), r0.R32())

			return nil
		})
	}

	err := c.expr(f, e.R)
	if err != nil {
		return err
	}

	return f.withSpill(func(r1 asm.Reg) error {
		err := c.expr(f, e.L)
		if err != nil {
			return err
		}

		c.a.Emit("cmpl", r0.R32(), r1.R32())

		return nil
	})
}

// jumps for comparisons: true, false.
var condJumps = map[ast.BinOp][2]string{
	ast.Lt: {"jl", "jge"},
	ast.Eq: {"je", "jne"},
}

// branch jumps to l if e evaluates to when, and falls through otherwise.
func (c *compiler) branch(f *Frame, e ast.Expr, when bool, l asm.Label) error {
	switch e := e.(type) {
	case *ast.Bool:
		if e.Value == when {
			c.a.Emit("jmp", l.String())
		}

		return nil
	case *ast.Binary:
		switch e.Op {
		case ast.Lt, ast.Eq:
			err := c.compare(f, e)
			if err != nil {
				return err
			}

			j := condJumps[e.Op]

			if when {
				c.a.Emit(j[0], l.String())
			} else {
				c.a.Emit(j[1], l.String())
			}

			return nil
		case ast.And, ast.Or:
			// && jumps out early on false, || on true.
			early := e.Op == ast.Or

			if when == early {
				err := c.branch(f, e.L, when, l)
				if err != nil {
					return err
				}

				return c.branch(f, e.R, when, l)
			}

			skip := c.a.NewLabel()

			err := c.branch(f, e.L, early, skip)
			if err != nil {
				return err
			}

			err = c.branch(f, e.R, when, l)
			if err != nil {
				return err
			}

			c.a.Label(skip)

			return nil
		}
	}

	err := c.expr(f, e)
	if err != nil {
		return err
	}

	c.a.Emit("cmpl", asm.Imm(0), f.Free().R32())

	if when {
		c.a.Emit("jne", l.String())
	} else {
		c.a.Emit("je", l.String())
	}

	return nil
}

// boolValue materializes a condition as 0 or 1.
func (c *compiler) boolValue(f *Frame, e *ast.Binary) error {
	lf := c.a.NewLabel()
	done := c.a.NewLabel()

	err := c.branch(f, e, false, lf)
	if err != nil {
		return err
	}

	c.a.Emit("movl", asm.Imm(1), f.Free().R32())
	c.a.Emit("jmp", done.String())
	c.a.Label(lf)
	c.a.Emit("movl", asm.Imm(0), f.Free().R32())
	c.a.Label(done)

	return nil
}

func (c *compiler) call(f *Frame, name string, args []ast.Expr) error {
	cf := f.prepareCall(len(args))

	for _, arg := range args {
		err := c.expr(&cf.Frame, arg)
		if err != nil {
			return err
		}

		cf.saveArg()
	}

	err := cf.call(name)
	if err != nil {
		return err
	}

	f.removeCall(cf)

	return nil
}
