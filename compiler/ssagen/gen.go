package ssagen

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/front"
	"github.com/slowlang/stevie/compiler/ir"
	"github.com/slowlang/stevie/compiler/tp"
)

type (
	// Cont receives the value of an expression and returns the code that follows.
	Cont func(ir.Value) (ir.Code, error)

	compiler struct {
		info *front.Info
		mod  *ir.Module

		globals map[*front.Object]ir.GlobalRef

		// per function
		f     *ir.Function
		slots map[*front.Object]ir.Slot
		trap  *ir.Block

		breakTo    *ir.Block
		continueTo *ir.Block
	}
)

const (
	printFunc      = "Xprint"
	allocArrayFunc = "XallocArray"
	initGlobals    = "XinitGlobals"
	trapFunc       = "llvm.trap"
)

// Compile translates a checked file into an SSA module.
func Compile(ctx context.Context, file *ast.File, info *front.Info) (m *ir.Module, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "ssagen", "file", file.Name)
	defer tr.Finish("err", &err)

	c := &compiler{
		info:    info,
		mod:     &ir.Module{Name: file.Name},
		globals: make(map[*front.Object]ir.GlobalRef),
	}

	c.mod.Declare(printFunc, ir.Void{}, ir.I32)
	c.mod.Declare(allocArrayFunc, ir.Ptr{Elem: ir.I8}, ir.I32, ir.I32)

	for _, obj := range info.Globals {
		g := ir.Global{Name: symbol(obj.Name), T: llType(obj.Type)}

		c.mod.Globals = append(c.mod.Globals, g)
		c.globals[obj] = ir.GlobalRef{Name: g.Name, Elem: g.T}
	}

	err = c.initGlobals(ctx, file)
	if err != nil {
		return nil, errors.Wrap(err, "init globals")
	}

	for _, d := range file.Defns {
		fn, ok := d.(*ast.Func)
		if !ok {
			continue
		}

		err = c.function(ctx, fn)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fn.Name)
		}
	}

	return c.mod, nil
}

func (c *compiler) initGlobals(ctx context.Context, file *ast.File) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "ssa init globals")
	defer tr.Finish("err", &err)

	c.begin(ir.NewFunction(initGlobals, ir.Void{}))

	var vars []*ast.VarIntro

	for _, d := range file.Defns {
		if g, ok := d.(*ast.Globals); ok {
			vars = append(vars, g.Vars...)
		}
	}

	var code ir.Code = &ir.Ret{}

	for i := len(vars) - 1; i >= 0; i-- {
		v := vars[i]

		obj := c.info.Defs[v]
		if obj == nil {
			return errors.New("unresolved global %v", v.Name)
		}

		next := code

		code, err = c.expr(v.Init, func(x ir.Value) (ir.Code, error) {
			return &ir.Store{Val: x, Ptr: c.globals[obj], Next: next}, nil
		})
		if err != nil {
			return errors.Wrap(err, "global %v", v.Name)
		}
	}

	return c.end(tr, code)
}

func (c *compiler) function(ctx context.Context, fn *ast.Func) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "ssa func", "name", fn.Name)
	defer tr.Finish("err", &err)

	var ret ir.Type = ir.Void{}
	if !fn.Void() {
		ret = llType(fn.Ret)
	}

	params := make([]ir.Type, len(fn.Formals))

	for i, p := range fn.Formals {
		params[i] = llType(p.Type)
	}

	f := ir.NewFunction(symbol(fn.Name), ret, params...)
	c.begin(f)

	slots := make([]ir.Slot, len(fn.Formals))

	for i, p := range fn.Formals {
		obj := c.info.Params[p]
		if obj == nil {
			return errors.New("unresolved param %v", p.Name)
		}

		slots[i] = f.NewSlot(p.Name, params[i])
		c.slots[obj] = slots[i]
	}

	err = c.declare(fn.Body)
	if err != nil {
		return err
	}

	var fall ir.Code = &ir.Unreachable{}
	if fn.Void() {
		fall = &ir.Ret{}
	}

	code, err := c.stmt(fn.Body, fall)
	if err != nil {
		return err
	}

	for i := len(slots) - 1; i >= 0; i-- {
		code = &ir.Store{Val: f.Params[i], Ptr: slots[i], Next: code}
	}

	return c.end(tr, code)
}

func (c *compiler) begin(f *ir.Function) {
	c.f = f
	c.slots = make(map[*front.Object]ir.Slot)
	c.trap = nil
	c.breakTo, c.continueTo = nil, nil
}

func (c *compiler) end(tr tlog.Span, code ir.Code) error {
	c.f.SetEntry(code)

	err := c.f.Finalize()
	if err != nil {
		return err
	}

	if tr.If("dump_ir") {
		tr.Printw("ir", "func", c.f.Name, "blocks", len(c.f.Blocks()), "text", string(c.f.AppendTo(nil)))
	}

	c.mod.Funcs = append(c.mod.Funcs, c.f)

	return nil
}

// declare allocates slots for all the locals in source order,
// so uses compiled before their declaration find them.
func (c *compiler) declare(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.Block:
		return c.declareList(s.Stmts)
	case *ast.VarDecl:
		for _, v := range s.Vars {
			obj := c.info.Defs[v]
			if obj == nil {
				return errors.New("unresolved local %v", v.Name)
			}

			c.slots[obj] = c.f.NewSlot(v.Name, llType(obj.Type))
		}
	case *ast.If:
		err := c.declare(s.Then)
		if err != nil || s.Else == nil {
			return err
		}

		return c.declare(s.Else)
	case *ast.While:
		return c.declare(s.Body)
	case *ast.For:
		return c.declare(s.Body)
	case *ast.DoWhile:
		return c.declare(s.Body)
	case *ast.Switch:
		for _, cs := range s.Cases {
			err := c.declareList(cs.Body)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *compiler) declareList(l []ast.Stmt) error {
	for _, s := range l {
		err := c.declare(s)
		if err != nil {
			return err
		}
	}

	return nil
}

// trapBlock is the shared failed bounds check target.
func (c *compiler) trapBlock() *ir.Block {
	if c.trap != nil {
		return c.trap
	}

	c.mod.Declare(trapFunc, ir.Void{})

	c.trap = c.f.NewBlock()
	c.trap.Set(&ir.Call{Dst: ir.Reg{T: ir.Void{}}, Func: trapFunc, Next: &ir.Unreachable{}})

	return c.trap
}

// blockFor returns a block running code.
func (c *compiler) blockFor(code ir.Code) *ir.Block {
	if g, ok := code.(*ir.Goto); ok {
		return g.To
	}

	b := c.f.NewBlock()
	b.Set(code)

	return b
}

func (c *compiler) addr(obj *front.Object) (ir.Value, error) {
	if obj == nil {
		return nil, errors.New("unresolved variable")
	}

	if obj.Kind == front.Global {
		g, ok := c.globals[obj]
		if !ok {
			return nil, errors.New("no global %v", obj.Name)
		}

		return g, nil
	}

	s, ok := c.slots[obj]
	if !ok {
		return nil, errors.New("no slot for %v %v", obj.Kind, obj.Name)
	}

	return s, nil
}

func llType(t tp.Type) ir.Type {
	switch t := t.(type) {
	case tp.Int:
		return ir.I32
	case tp.Boolean:
		return ir.I1
	case tp.Array:
		return ir.Ptr{Elem: ir.ArrayBody(llType(t.Elem))}
	default:
		panic(t)
	}
}

func symbol(name string) string { return "X" + name }
