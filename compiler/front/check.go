package front

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/tp"
)

type (
	checker struct {
		info *Info

		globals *Env

		fn         *ast.Func // nil while checking global initializers
		globalInit bool
	}

	flags struct {
		canBreak    bool
		canContinue bool
	}
)

// Reserved names are taken by the runtime and generated code.
var Reserved = map[string]bool{
	"print":       true,
	"allocArray":  true,
	"initGlobals": true,
}

// Check type checks the whole file. The first error stops checking.
func Check(ctx context.Context, f *ast.File) (info *Info, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "check", "file", f.Name)
	defer tr.Finish("err", &err)

	c := &checker{
		info: newInfo(),
	}

	for _, d := range f.Defns {
		switch d := d.(type) {
		case *ast.Globals:
			err = c.addGlobals(ctx, d)
		case *ast.Func:
			err = c.addFunc(ctx, d)
		default:
			err = errors.New("unsupported defn: %T", d)
		}

		if err != nil {
			return nil, err
		}
	}

	for _, d := range f.Defns {
		fn, ok := d.(*ast.Func)
		if !ok {
			continue
		}

		err = c.checkFunc(ctx, fn)
		if err != nil {
			return nil, err
		}
	}

	main, ok := c.info.Funcs["main"]
	switch {
	case !ok:
		return nil, errorf(nil, "no definition for main function")
	case !main.Void():
		return nil, errorf(main, "main function does not have void return type")
	case len(main.Formals) != 0:
		return nil, errorf(main, "main function should not have any parameters")
	}

	if tr.If("dump_info") {
		for _, g := range c.info.Globals {
			tr.Printw("global", "obj", g)
		}
	}

	return c.info, nil
}

func (c *checker) declared(name string) bool {
	_, ok := c.info.Funcs[name]

	return ok || c.globals.Lookup(name) != nil
}

func (c *checker) addGlobals(ctx context.Context, d *ast.Globals) (err error) {
	c.globalInit = true
	defer func() { c.globalInit = false }()

	for _, v := range d.Vars {
		switch {
		case Reserved[v.Name]:
			return errorf(v, "%v is a reserved name", v.Name)
		case c.declared(v.Name):
			return errorf(v, "multiple global definitions for %v", v.Name)
		case v.Init == nil:
			return errorf(v, "global variable %v is not initialized", v.Name)
		}

		err = c.require(v.Init, nil, d.Type)
		if err != nil {
			return errors.Wrap(err, "global %v", v.Name)
		}

		obj := &Object{
			Name:  v.Name,
			Type:  d.Type,
			Kind:  Global,
			Index: len(c.info.Globals),
		}

		c.info.Defs[v] = obj
		c.info.Globals = append(c.info.Globals, obj)
		c.globals = c.globals.Extend(obj)
	}

	return nil
}

func (c *checker) addFunc(ctx context.Context, fn *ast.Func) error {
	switch {
	case Reserved[fn.Name]:
		return errorf(fn, "%v is a reserved name", fn.Name)
	case c.declared(fn.Name):
		return errorf(fn, "multiple definitions for %v", fn.Name)
	}

	c.info.Funcs[fn.Name] = fn

	return nil
}

func (c *checker) checkFunc(ctx context.Context, fn *ast.Func) (err error) {
	tr := tlog.SpanFromContext(ctx)

	var env *Env

	for i, f := range fn.Formals {
		if env.Lookup(f.Name) != nil {
			return errorf(f, "repeated formal parameter names for function %v", fn.Name)
		}

		obj := &Object{
			Name:  f.Name,
			Type:  f.Type,
			Kind:  Param,
			Index: i,
		}

		c.info.Params[f] = obj
		env = env.Extend(obj)
	}

	c.fn = fn
	defer func() { c.fn = nil }()

	_, err = c.stmt(fn.Body, env, flags{})
	if err != nil {
		return errors.Wrap(err, "func %v", fn.Name)
	}

	if !fn.Void() && !Returns(fn.Body) {
		return errorf(fn, "body of function %v may not return", fn.Name)
	}

	tr.V("check").Printw("func checked", "name", fn.Name, "params", len(fn.Formals))

	return nil
}

// Returns reports whether s is guaranteed to return on every path.
func Returns(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.Return:
		return true
	case *ast.Block:
		for _, x := range s.Stmts {
			if Returns(x) {
				return true
			}
		}

		return false
	case *ast.If:
		return s.Else != nil && Returns(s.Then) && Returns(s.Else)
	default:
		return false
	}
}

// stmt returns the environment in effect after s.
func (c *checker) stmt(s ast.Stmt, env *Env, fl flags) (_ *Env, err error) {
	switch s := s.(type) {
	case *ast.Block:
		err = c.stmts(s.Stmts, env, fl)
	case *ast.ExprStmt:
		err = c.stmtExpr(s.X, env)
	case *ast.VarDecl:
		for _, v := range s.Vars {
			if v.Init != nil {
				err = c.require(v.Init, env, s.Type)
				if err != nil {
					return nil, errors.Wrap(err, "var %v", v.Name)
				}
			}

			obj := &Object{
				Name: v.Name,
				Type: s.Type,
				Kind: Local,
			}

			c.info.Defs[v] = obj
			env = env.Extend(obj)
		}
	case *ast.While:
		err = c.require(s.Cond, env, tp.Boolean{})
		if err != nil {
			return nil, err
		}

		_, err = c.stmt(s.Body, env, flags{canBreak: true, canContinue: true})
	case *ast.If:
		err = c.require(s.Cond, env, tp.Boolean{})
		if err != nil {
			return nil, err
		}

		_, err = c.stmt(s.Then, env, fl)
		if err != nil || s.Else == nil {
			break
		}

		_, err = c.stmt(s.Else, env, fl)
	case *ast.For:
		if s.Init != nil {
			err = c.stmtExpr(s.Init, env)
			if err != nil {
				return nil, err
			}
		}

		if s.Cond != nil {
			err = c.require(s.Cond, env, tp.Boolean{})
			if err != nil {
				return nil, err
			}
		}

		if s.Step != nil {
			err = c.stmtExpr(s.Step, env)
			if err != nil {
				return nil, err
			}
		}

		_, err = c.stmt(s.Body, env, flags{canBreak: true, canContinue: true})
	case *ast.DoWhile:
		_, err = c.stmt(s.Body, env, flags{canBreak: true, canContinue: true})
		if err != nil {
			return nil, err
		}

		err = c.require(s.Cond, env, tp.Boolean{})
	case *ast.Break:
		if !fl.canBreak {
			return nil, errorf(s, "illegal use of break statement")
		}
	case *ast.Continue:
		if !fl.canContinue {
			return nil, errorf(s, "illegal use of continue statement")
		}
	case *ast.Switch:
		err = c.switchStmt(s, env, fl)
	case *ast.Print:
		err = c.require(s.X, env, tp.Int{})
	case *ast.Return:
		err = c.returnStmt(s, env)
	default:
		return nil, errors.New("unsupported stmt: %T", s)
	}

	if err != nil {
		return nil, err
	}

	return env, nil
}

func (c *checker) stmts(l []ast.Stmt, env *Env, fl flags) (err error) {
	for _, s := range l {
		env, err = c.stmt(s, env, fl)
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *checker) switchStmt(s *ast.Switch, env *Env, fl flags) (err error) {
	err = c.require(s.Test, env, tp.Int{})
	if err != nil {
		return err
	}

	nums := map[int32]bool{}
	dflt := false

	for _, cs := range s.Cases {
		switch {
		case cs.Default && dflt:
			return errorf(cs, "switch statement contains two default cases")
		case cs.Default:
			dflt = true
		case nums[cs.Num]:
			return errorf(cs, "switch statement contains two cases for %d", cs.Num)
		default:
			nums[cs.Num] = true
		}

		err = c.stmts(cs.Body, env, flags{canBreak: true, canContinue: fl.canContinue})
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *checker) returnStmt(s *ast.Return, env *Env) error {
	switch {
	case c.fn.Void() && s.X != nil:
		return errorf(s, "void function should not return a value")
	case c.fn.Void():
		return nil
	case s.X == nil:
		return errorf(s, "function must return a value of type %v", c.fn.Ret)
	}

	return c.require(s.X, env, c.fn.Ret)
}

// stmtExpr checks an expression evaluated for its side effects.
func (c *checker) stmtExpr(x ast.Expr, env *Env) (err error) {
	switch x := x.(type) {
	case *ast.Assign:
		_, err = c.expr(x, env)
	case *ast.Call:
		_, err = c.call(x, env)
	default:
		err = errorf(x, "expression cannot be used as a statement")
	}

	return err
}

func (c *checker) require(x ast.Expr, env *Env, want tp.Type) error {
	t, err := c.expr(x, env)
	if err != nil {
		return err
	}

	if !tp.Equal(t, want) {
		return errorf(x, "expression of type %v used where %v is required", t, want)
	}

	return nil
}

func (c *checker) expr(x ast.Expr, env *Env) (t tp.Type, err error) {
	switch x := x.(type) {
	case *ast.Int:
		t = tp.Int{}
	case *ast.Bool:
		t = tp.Boolean{}
	case *ast.Var:
		obj := c.lookup(x.Name, env)
		if obj == nil {
			return nil, errorf(x, "no definition for variable %v", x.Name)
		}

		c.info.Uses[x] = obj
		t = obj.Type
	case *ast.Nth:
		at, err := c.expr(x.Arr, env)
		if err != nil {
			return nil, err
		}

		arr, ok := at.(tp.Array)
		if !ok {
			return nil, errorf(x.Arr, "indexed value has type %v, not an array", at)
		}

		err = c.require(x.Idx, env, tp.Int{})
		if err != nil {
			return nil, err
		}

		t = arr.Elem
	case *ast.NewArray:
		err = c.require(x.Size, env, tp.Int{})
		if err != nil {
			return nil, err
		}

		t = tp.Array{Elem: x.Elem}
	case *ast.Length:
		at, err := c.expr(x.Arr, env)
		if err != nil {
			return nil, err
		}

		if !tp.IsArray(at) {
			return nil, errorf(x.Arr, "length of %v, not an array", at)
		}

		t = tp.Int{}
	case *ast.Binary:
		t, err = c.binary(x, env)
		if err != nil {
			return nil, err
		}
	case *ast.Assign:
		switch x.Lhs.(type) {
		case *ast.Var, *ast.Nth:
		default:
			return nil, errorf(x.Lhs, "cannot assign to expression")
		}

		t, err = c.expr(x.Lhs, env)
		if err != nil {
			return nil, err
		}

		err = c.require(x.Rhs, env, t)
		if err != nil {
			return nil, err
		}
	case *ast.Call:
		t, err = c.call(x, env)
		if err != nil {
			return nil, err
		}

		if t == nil {
			return nil, errorf(x, "function %v does not return a value", x.Name)
		}
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	c.info.Types[x] = t

	return t, nil
}

func (c *checker) binary(x *ast.Binary, env *Env) (tp.Type, error) {
	var arg, res tp.Type

	switch {
	case x.Op.Arith():
		arg, res = tp.Int{}, tp.Int{}
	case x.Op.Rel():
		arg, res = tp.Int{}, tp.Boolean{}
	case x.Op.Logic():
		arg, res = tp.Boolean{}, tp.Boolean{}
	default:
		return nil, errors.New("unsupported operator: %v", x.Op)
	}

	err := c.require(x.L, env, arg)
	if err != nil {
		return nil, err
	}

	err = c.require(x.R, env, arg)
	if err != nil {
		return nil, err
	}

	return res, nil
}

// call returns nil type for void functions.
func (c *checker) call(x *ast.Call, env *Env) (tp.Type, error) {
	if c.globalInit {
		return nil, errorf(x, "illegal call in global variable initializer")
	}

	fn, ok := c.info.Funcs[x.Name]
	if !ok {
		return nil, errorf(x, "call to undefined function %v", x.Name)
	}

	if len(x.Args) != len(fn.Formals) {
		return nil, errorf(x, "call to function %v has %d arguments, want %d", x.Name, len(x.Args), len(fn.Formals))
	}

	for i, a := range x.Args {
		err := c.require(a, env, fn.Formals[i].Type)
		if err != nil {
			return nil, errors.Wrap(err, "arg %d", i)
		}
	}

	if fn.Ret != nil {
		c.info.Types[x] = fn.Ret
	}

	return fn.Ret, nil
}

func (c *checker) lookup(name string, env *Env) *Object {
	if obj := env.Lookup(name); obj != nil {
		return obj
	}

	return c.globals.Lookup(name)
}
