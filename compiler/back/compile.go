package back

import (
	"context"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/front"
)

type (
	compiler struct {
		a    *asm.Assembly
		info *front.Info
	}
)

// Compile generates x86-64 assembly for a checked file.
func Compile(ctx context.Context, file *ast.File, info *front.Info, p asm.Platform) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile", "file", file.Name, "platform", p)
	defer tr.Finish("err", &err)

	c := &compiler{
		a:    asm.New(p),
		info: info,
	}

	a := c.a

	if file.Name != "" {
		a.Emit(".file", strconv.Quote(file.Name))
	}

	a.Blank()
	a.Emit(".data")

	var globals *LocEnv

	for _, obj := range info.Globals {
		storage := ".long"
		l := GlobalLoc(obj.Name, obj.Type)

		if l.W == 8 {
			storage = ".quad"
		}

		a.Symbol(obj.Name)
		a.Emit(storage, "0")

		globals = globals.Extend(obj, l)
	}

	a.Blank()
	a.Emit(".text")

	err = c.initGlobals(ctx, file, globals)
	if err != nil {
		return nil, errors.Wrap(err, "init globals")
	}

	for _, d := range file.Defns {
		fn, ok := d.(*ast.Func)
		if !ok {
			continue
		}

		err = c.function(ctx, fn, globals)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fn.Name)
		}
	}

	if tr.If("dump_asm") {
		tr.Printw("assembly", "text", a.Bytes())
	}

	return a.Bytes(), nil
}

func (c *compiler) initGlobals(ctx context.Context, file *ast.File, globals *LocEnv) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "back: init globals")
	defer tr.Finish("err", &err)

	a := c.a

	a.Emit(".globl", a.Name("initGlobals"))
	a.Symbol("initGlobals")
	a.Prologue()

	f := newFunctionFrame(a, tr, nil, globals)

	for _, d := range file.Defns {
		g, ok := d.(*ast.Globals)
		if !ok {
			continue
		}

		for _, v := range g.Vars {
			err = c.expr(f, v.Init)
			if err != nil {
				return err
			}

			err = f.store(c.info.Defs[v])
			if err != nil {
				return err
			}
		}
	}

	a.Epilogue()
	a.Blank()

	return c.balanced(f)
}

func (c *compiler) function(ctx context.Context, fn *ast.Func, globals *LocEnv) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "back: compile func", "name", fn.Name)
	defer tr.Finish("err", &err)

	a := c.a

	formals := make([]*front.Object, len(fn.Formals))
	for i, p := range fn.Formals {
		formals[i] = c.info.Params[p]
	}

	a.Emit(".globl", a.Name(fn.Name))
	a.Symbol(fn.Name)
	a.Prologue()

	f := newFunctionFrame(a, tr, formals, globals)

	next, err := c.scoped(f, fn.Body)
	if err != nil {
		return err
	}

	if next {
		a.Epilogue()
	}

	a.Blank()

	return c.balanced(f)
}

func (c *compiler) balanced(f *Frame) error {
	if f.spills != 0 {
		return errors.New("%d unbalanced spills", f.spills)
	}

	if f.pushed != 0 {
		return errors.New("%d bytes left on stack", f.pushed)
	}

	return nil
}
