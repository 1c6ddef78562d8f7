package emu

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/ir"
)

type (
	// Interp executes an SSA module directly.
	//
	// Values are int64 for integers and booleans,
	// *cell for pointers to scalars, *object for array pointers,
	// and nil for null.
	Interp struct {
		Module *ir.Module

		MaxSteps int

		// Out collects values passed to print.
		Out []int32

		steps   int
		globals map[string]*cell
	}

	cell struct {
		v any
	}

	// object is the runtime array: the length word followed by elements.
	object struct {
		length cell
		elems  []cell
	}

	frame struct {
		regs  map[int]any
		slots map[string]*cell
	}
)

var ErrTrap = errors.New("trap")

func NewInterp(m *ir.Module) *Interp {
	return &Interp{
		Module:   m,
		MaxSteps: 10_000_000,
	}
}

// Run initializes globals and runs main.
func (m *Interp) Run(ctx context.Context) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "interp run")
	defer tr.Finish("err", &err)

	m.globals = make(map[string]*cell, len(m.Module.Globals))

	for _, g := range m.Module.Globals {
		m.globals[g.Name] = &cell{}
	}

	for _, name := range []string{"XinitGlobals", "Xmain"} {
		_, err = m.Call(ctx, name)
		if err != nil {
			return errors.Wrap(err, "%v", name)
		}
	}

	return nil
}

// Call runs a function with integer arguments.
func (m *Interp) Call(ctx context.Context, name string, args ...int64) (any, error) {
	f := m.Module.Func(name)
	if f == nil {
		return nil, errors.New("no function %v", name)
	}

	if m.globals == nil {
		m.globals = make(map[string]*cell)
	}

	vals := make([]any, len(args))

	for i, a := range args {
		vals[i] = a
	}

	return m.call(ctx, f, vals)
}

func (m *Interp) call(ctx context.Context, f *ir.Function, args []any) (any, error) {
	if len(args) != len(f.Params) {
		return nil, errors.New("%v: want %d args, got %d", f.Name, len(f.Params), len(args))
	}

	fr := &frame{
		regs:  make(map[int]any),
		slots: make(map[string]*cell),
	}

	for i, p := range f.Params {
		fr.regs[p.N] = args[i]
	}

	var prev *ir.Block
	b := f.Entry

	for {
		if b.Code == nil {
			return nil, errors.New("%v: block %v: no code", f.Name, b.Label)
		}

		var next *ir.Block

	code:
		for c := b.Code; c != nil; c = ir.Next(c) {
			m.steps++
			if m.steps > m.MaxSteps {
				return nil, errors.New("step limit exceeded")
			}

			switch c := c.(type) {
			case *ir.Goto:
				next = c.To
				break code
			case *ir.CondBr:
				x, err := m.int(fr, c.Cond)
				if err != nil {
					return nil, err
				}

				next = c.Else
				if x != 0 {
					next = c.Then
				}

				break code
			case *ir.Switch:
				x, err := m.int(fr, c.X)
				if err != nil {
					return nil, err
				}

				next = c.Default

				for _, cs := range c.Cases {
					if int64(cs.Num) == x {
						next = cs.To
						break
					}
				}

				break code
			case *ir.Ret:
				if c.X == nil {
					return nil, nil
				}

				return m.value(fr, c.X)
			case *ir.Unreachable:
				return nil, errors.New("%v: reached unreachable in %v", f.Name, b.Label)
			}

			err := m.exec(ctx, fr, c, prev)
			if err != nil {
				return nil, errors.Wrap(err, "%v: %v", f.Name, b.Label)
			}
		}

		if next == nil {
			return nil, errors.New("%v: block %v: no terminator", f.Name, b.Label)
		}

		prev, b = b, next
	}
}

func (m *Interp) exec(ctx context.Context, fr *frame, c ir.Code, prev *ir.Block) error {
	switch c := c.(type) {
	case *ir.Alloca:
		fr.slots[c.Slot.Name] = &cell{}
	case *ir.BinOp:
		x, err := m.int(fr, c.X)
		if err != nil {
			return err
		}

		y, err := m.int(fr, c.Y)
		if err != nil {
			return err
		}

		var r int32

		switch c.Op {
		case ir.Add:
			r = int32(x) + int32(y)
		case ir.Sub:
			r = int32(x) - int32(y)
		case ir.Mul:
			r = int32(x) * int32(y)
		case ir.SDiv:
			if int32(y) == 0 {
				return errors.New("division by zero")
			}

			r = int32(x) / int32(y)
		default:
			return errors.New("unsupported op: %v", c.Op)
		}

		fr.regs[c.Dst.N] = int64(r)
	case *ir.Icmp:
		var r bool

		if c.Cond == ir.EQ {
			x, err := m.value(fr, c.X)
			if err != nil {
				return err
			}

			y, err := m.value(fr, c.Y)
			if err != nil {
				return err
			}

			r = x == y
		} else {
			x, err := m.int(fr, c.X)
			if err != nil {
				return err
			}

			y, err := m.int(fr, c.Y)
			if err != nil {
				return err
			}

			switch c.Cond {
			case ir.SLT:
				r = int32(x) < int32(y)
			case ir.ULT:
				r = uint32(x) < uint32(y)
			default:
				return errors.New("unsupported cond: %v", c.Cond)
			}
		}

		fr.regs[c.Dst.N] = b2i(r)
	case *ir.Load:
		p, err := m.pointer(fr, c.Ptr)
		if err != nil {
			return err
		}

		v := p.v
		if v == nil {
			if _, ok := c.Dst.T.(ir.Int); ok {
				v = int64(0)
			}
		}

		fr.regs[c.Dst.N] = v
	case *ir.Store:
		p, err := m.pointer(fr, c.Ptr)
		if err != nil {
			return err
		}

		v, err := m.value(fr, c.Val)
		if err != nil {
			return err
		}

		p.v = v
	case *ir.Call:
		return m.callInstr(ctx, fr, c)
	case *ir.Bitcast:
		v, err := m.value(fr, c.X)
		if err != nil {
			return err
		}

		fr.regs[c.Dst.N] = v
	case *ir.GEP:
		return m.gep(fr, c)
	case *ir.Phi:
		for _, e := range c.Edges {
			if e.From != prev {
				continue
			}

			v, err := m.value(fr, e.X)
			if err != nil {
				return err
			}

			fr.regs[c.Dst.N] = v

			return nil
		}

		return errors.New("phi %v: no edge from %v", c.Dst, prev)
	default:
		return errors.New("unsupported code: %T", c)
	}

	return nil
}

func (m *Interp) callInstr(ctx context.Context, fr *frame, c *ir.Call) error {
	args := make([]any, len(c.Args))

	for i, a := range c.Args {
		v, err := m.value(fr, a)
		if err != nil {
			return err
		}

		args[i] = v
	}

	var res any

	switch c.Func {
	case "Xprint":
		x, ok := args[0].(int64)
		if !ok {
			return errors.New("print: bad arg %v", args[0])
		}

		m.Out = append(m.Out, int32(x))
	case "XallocArray":
		n, ok := args[0].(int64)
		if !ok || int32(n) < 0 {
			return errors.New("allocArray: bad size %v", args[0])
		}

		res = &object{
			length: cell{v: int64(int32(n))},
			elems:  make([]cell, int32(n)),
		}
	case "llvm.trap":
		return ErrTrap
	default:
		f := m.Module.Func(c.Func)
		if f == nil {
			return errors.New("undefined function %v", c.Func)
		}

		var err error

		res, err = m.call(ctx, f, args)
		if err != nil {
			return err
		}
	}

	if _, ok := c.Dst.T.(ir.Void); !ok {
		fr.regs[c.Dst.N] = res
	}

	return nil
}

func (m *Interp) gep(fr *frame, c *ir.GEP) error {
	base, err := m.value(fr, c.Ptr)
	if err != nil {
		return err
	}

	obj, ok := base.(*object)
	if !ok || obj == nil {
		return errors.New("getelementptr on %T", base)
	}

	idx := make([]int64, len(c.Idx))

	for i, x := range c.Idx {
		idx[i], err = m.int(fr, x)
		if err != nil {
			return err
		}
	}

	switch {
	case len(idx) == 2 && idx[0] == 0 && idx[1] == 0:
		fr.regs[c.Dst.N] = &obj.length
	case len(idx) == 3 && idx[0] == 0 && idx[1] == 1:
		i := int32(idx[2])
		if i < 0 || int(i) >= len(obj.elems) {
			return errors.New("element %d out of %d", i, len(obj.elems))
		}

		fr.regs[c.Dst.N] = &obj.elems[i]
	default:
		return errors.New("unsupported getelementptr indexes: %v", idx)
	}

	return nil
}

func (m *Interp) value(fr *frame, v ir.Value) (any, error) {
	switch v := v.(type) {
	case ir.Reg:
		x, ok := fr.regs[v.N]
		if !ok {
			return nil, errors.New("register %v is not defined", v)
		}

		return x, nil
	case ir.Const:
		return v.V, nil
	case ir.Null:
		return nil, nil
	case ir.Slot:
		c, ok := fr.slots[v.Name]
		if !ok {
			return nil, errors.New("slot %v is not allocated", v)
		}

		return c, nil
	case ir.GlobalRef:
		c, ok := m.globals[v.Name]
		if !ok {
			return nil, errors.New("undefined global %v", v)
		}

		return c, nil
	default:
		return nil, errors.New("unsupported value: %T", v)
	}
}

func (m *Interp) int(fr *frame, v ir.Value) (int64, error) {
	x, err := m.value(fr, v)
	if err != nil {
		return 0, err
	}

	i, ok := x.(int64)
	if !ok {
		return 0, errors.New("%v is not an integer: %T", v, x)
	}

	return i, nil
}

func (m *Interp) pointer(fr *frame, v ir.Value) (*cell, error) {
	x, err := m.value(fr, v)
	if err != nil {
		return nil, err
	}

	p, ok := x.(*cell)
	if !ok || p == nil {
		return nil, errors.New("%v is not a pointer: %T", v, x)
	}

	return p, nil
}

func b2i(x bool) int64 {
	if x {
		return 1
	}

	return 0
}
