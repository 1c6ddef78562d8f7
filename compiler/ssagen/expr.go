package ssagen

import (
	"tlog.app/go/errors"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/ir"
)

var (
	arithOps = map[ast.BinOp]ir.Op{
		ast.Add: ir.Add,
		ast.Sub: ir.Sub,
		ast.Mul: ir.Mul,
		ast.Div: ir.SDiv,
	}

	relConds = map[ast.BinOp]ir.Cond{
		ast.Lt: ir.SLT,
		ast.Eq: ir.EQ,
	}
)

// expr evaluates e and passes the result to k.
// Operands are evaluated left to right.
func (c *compiler) expr(e ast.Expr, k Cont) (ir.Code, error) {
	switch e := e.(type) {
	case *ast.Int:
		return k(ir.I32Const(e.Value))
	case *ast.Bool:
		return k(ir.BoolConst(e.Value))
	case *ast.Var:
		ptr, err := c.addr(c.info.Uses[e])
		if err != nil {
			return nil, errors.Wrap(err, "%v", e.Name)
		}

		return c.load(ptr, k)
	case *ast.Binary:
		return c.binary(e, k)
	case *ast.Assign:
		return c.assign(e, k)
	case *ast.Call:
		return c.call(e, k)
	case *ast.Nth:
		return c.expr(e.Arr, func(arr ir.Value) (ir.Code, error) {
			return c.expr(e.Idx, func(idx ir.Value) (ir.Code, error) {
				return c.elemAddr(arr, idx, func(p ir.Value) (ir.Code, error) {
					return c.load(p, k)
				})
			})
		})
	case *ast.Length:
		return c.expr(e.Arr, func(arr ir.Value) (ir.Code, error) {
			p := c.f.NewReg(ir.Ptr{Elem: ir.I32})

			code, err := c.load(p, k)
			if err != nil {
				return nil, err
			}

			return &ir.GEP{Dst: p, Ptr: arr, Idx: []ir.Value{ir.I32Const(0), ir.I32Const(0)}, Next: code}, nil
		})
	case *ast.NewArray:
		return c.newArray(e, k)
	default:
		return nil, errors.New("unsupported expr: %T", e)
	}
}

func (c *compiler) load(ptr ir.Value, k Cont) (ir.Code, error) {
	p, ok := ptr.Type().(ir.Ptr)
	if !ok {
		return nil, errors.New("load from %v", ptr.Type())
	}

	r := c.f.NewReg(p.Elem)

	next, err := k(r)
	if err != nil {
		return nil, err
	}

	return &ir.Load{Dst: r, Ptr: ptr, Next: next}, nil
}

func (c *compiler) binary(e *ast.Binary, k Cont) (ir.Code, error) {
	if e.Op.Logic() {
		return c.logic(e, k)
	}

	return c.expr(e.L, func(l ir.Value) (ir.Code, error) {
		return c.expr(e.R, func(r ir.Value) (ir.Code, error) {
			if op, ok := arithOps[e.Op]; ok {
				d := c.f.NewReg(ir.I32)

				next, err := k(d)
				if err != nil {
					return nil, err
				}

				return &ir.BinOp{Dst: d, Op: op, X: l, Y: r, Next: next}, nil
			}

			if cond, ok := relConds[e.Op]; ok {
				d := c.f.NewReg(ir.I1)

				next, err := k(d)
				if err != nil {
					return nil, err
				}

				return &ir.Icmp{Dst: d, Cond: cond, X: l, Y: r, Next: next}, nil
			}

			return nil, errors.New("unsupported operator: %v", e.Op)
		})
	})
}

// logic compiles short-circuit operators.
// The left operand decides in block first, the right one ends in block second,
// and the result is merged by a phi in join.
func (c *compiler) logic(e *ast.Binary, k Cont) (ir.Code, error) {
	first := c.f.NewBlock()
	right := c.f.NewBlock()
	second := c.f.NewBlock()
	join := c.f.NewBlock()

	var lv, rv ir.Value

	code, err := c.expr(e.L, func(x ir.Value) (ir.Code, error) {
		lv = x
		return &ir.Goto{To: first}, nil
	})
	if err != nil {
		return nil, err
	}

	if e.Op == ast.And {
		first.Set(&ir.CondBr{Cond: lv, Then: right, Else: join})
	} else {
		first.Set(&ir.CondBr{Cond: lv, Then: join, Else: right})
	}

	rc, err := c.expr(e.R, func(x ir.Value) (ir.Code, error) {
		rv = x
		return &ir.Goto{To: second}, nil
	})
	if err != nil {
		return nil, err
	}

	right.Set(rc)
	second.Set(&ir.Goto{To: join})

	d := c.f.NewReg(ir.I1)

	next, err := k(d)
	if err != nil {
		return nil, err
	}

	join.Set(&ir.Phi{
		Dst: d,
		Edges: []ir.PhiEdge{
			{X: lv, From: first},
			{X: rv, From: second},
		},
		Next: next,
	})

	return code, nil
}

func (c *compiler) assign(e *ast.Assign, k Cont) (ir.Code, error) {
	store := func(ptr, x ir.Value) (ir.Code, error) {
		next, err := k(x)
		if err != nil {
			return nil, err
		}

		return &ir.Store{Val: x, Ptr: ptr, Next: next}, nil
	}

	switch lhs := e.Lhs.(type) {
	case *ast.Var:
		ptr, err := c.addr(c.info.Uses[lhs])
		if err != nil {
			return nil, errors.Wrap(err, "%v", lhs.Name)
		}

		return c.expr(e.Rhs, func(x ir.Value) (ir.Code, error) {
			return store(ptr, x)
		})
	case *ast.Nth:
		return c.expr(lhs.Arr, func(arr ir.Value) (ir.Code, error) {
			return c.expr(lhs.Idx, func(idx ir.Value) (ir.Code, error) {
				return c.expr(e.Rhs, func(x ir.Value) (ir.Code, error) {
					return c.elemAddr(arr, idx, func(p ir.Value) (ir.Code, error) {
						return store(p, x)
					})
				})
			})
		})
	default:
		return nil, errors.New("assign to %T", e.Lhs)
	}
}

// elemAddr checks the index against the array length
// and passes the element address to k.
func (c *compiler) elemAddr(arr, idx ir.Value, k Cont) (ir.Code, error) {
	pt, ok := arr.Type().(ir.Ptr)
	if !ok {
		return nil, errors.New("index of %v", arr.Type())
	}

	body, ok := pt.Elem.(ir.Struct)
	if !ok || len(body.Fields) != 2 {
		return nil, errors.New("index of %v", arr.Type())
	}

	elem := body.Fields[1].(ir.Array).Elem

	lenp := c.f.NewReg(ir.Ptr{Elem: ir.I32})
	n := c.f.NewReg(ir.I32)
	inb := c.f.NewReg(ir.I1)

	good := c.f.NewBlock()
	ep := c.f.NewReg(ir.Ptr{Elem: elem})

	next, err := k(ep)
	if err != nil {
		return nil, err
	}

	good.Set(&ir.GEP{Dst: ep, Ptr: arr, Idx: []ir.Value{ir.I32Const(0), ir.I32Const(1), idx}, Next: next})

	return &ir.GEP{Dst: lenp, Ptr: arr, Idx: []ir.Value{ir.I32Const(0), ir.I32Const(0)},
		Next: &ir.Load{Dst: n, Ptr: lenp,
			Next: &ir.Icmp{Dst: inb, Cond: ir.ULT, X: idx, Y: n,
				Next: &ir.CondBr{Cond: inb, Then: good, Else: c.trapBlock()}}}}, nil
}

func (c *compiler) newArray(e *ast.NewArray, k Cont) (ir.Code, error) {
	elem := llType(e.Elem)
	t := ir.Ptr{Elem: ir.ArrayBody(elem)}

	return c.expr(e.Size, func(n ir.Value) (ir.Code, error) {
		raw := c.f.NewReg(ir.Ptr{Elem: ir.I8})
		arr := c.f.NewReg(t)

		next, err := k(arr)
		if err != nil {
			return nil, err
		}

		return &ir.Call{Dst: raw, Func: allocArrayFunc, Args: []ir.Value{n, ir.I32Const(int32(ir.Width(elem)))},
			Next: &ir.Bitcast{Dst: arr, X: raw, Next: next}}, nil
	})
}

func (c *compiler) call(e *ast.Call, k Cont) (ir.Code, error) {
	fn, ok := c.info.Funcs[e.Name]
	if !ok {
		return nil, errors.New("undefined function %v", e.Name)
	}

	args := make([]ir.Value, 0, len(e.Args))

	var evalArgs func(i int) (ir.Code, error)

	evalArgs = func(i int) (ir.Code, error) {
		if i < len(e.Args) {
			return c.expr(e.Args[i], func(x ir.Value) (ir.Code, error) {
				args = append(args, x)

				return evalArgs(i + 1)
			})
		}

		if fn.Void() {
			next, err := k(nil)
			if err != nil {
				return nil, err
			}

			return &ir.Call{Dst: ir.Reg{T: ir.Void{}}, Func: symbol(e.Name), Args: args, Next: next}, nil
		}

		d := c.f.NewReg(llType(fn.Ret))

		next, err := k(d)
		if err != nil {
			return nil, err
		}

		return &ir.Call{Dst: d, Func: symbol(e.Name), Args: args, Next: next}, nil
	}

	return evalArgs(0)
}
