package front

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/parse"
	"github.com/slowlang/stevie/compiler/tp"
)

func check(t *testing.T, src string) (*ast.File, *Info, error) {
	t.Helper()

	f, err := parse.Parse(context.Background(), "", []byte(src))
	require.NoError(t, err, src)

	info, err := Check(context.Background(), f)

	return f, info, err
}

func TestCheckOK(t *testing.T) {
	for _, src := range []string{
		`void main() { int x = 3; int y; y = x + 4; print y; }`,
		`void main() { boolean b = (2 == 2); if (b) { print 1; } else { print 0; } }`,
		`int g = 1; int h = g + 1; void main() { print h; }`,
		`int f(int a) { if (a < 0) { return 0; } else { return a; } } void main() { print f(1); }`,
		`int f() { { return 1; } } void main() { f(); }`,
		`int f() { print 1; return 2; print 3; } void main() { print f(); }`,
		`void main() { int[] a = new int[3]; a[0] = 1; print a[0] + a.length; }`,
		`void main() { boolean[][] m = new boolean[2][]; m[0] = new boolean[1]; m[0][0] = true; }`,
		`void main() { while (true) { if (false) break; else continue; } }`,
		`void main() { int i; for (i = 0; i < 3; i = i + 1) { continue; } for (;;) break; }`,
		`void main() { do { break; } while (true); }`,
		`void main() { while (true) { switch (1) { case 1: continue; case 2: break; default: } } }`,
		`void main() { int x = 1; { int x = 2; print x; } { boolean x = true; } print x; }`,
		`void p(int a, int b, int c, int d, int e, int f, int g) { print a + g; } void main() { p(1, 2, 3, 4, 5, 6, 7); }`,
		`int x = 1; void main() { int y = x; int x = 2; print x + y; }`,
	} {
		_, _, err := check(t, src)
		assert.NoError(t, err, src)
	}
}

func TestCheckErrors(t *testing.T) {
	for _, tc := range []struct {
		src string
		msg string
	}{
		{`void f() {}`, "no definition for main function"},
		{`int main() { return 1; }`, "main function does not have void return type"},
		{`void main(int a) {}`, "main function should not have any parameters"},
		{`void main() { print x; }`, "no definition for variable x"},
		{`void main() { print true; }`, "expression of type boolean used where int is required"},
		{`void main() { int x = false; }`, "expression of type boolean used where int is required"},
		{`void main() { if (1) print 1; }`, "expression of type int used where boolean is required"},
		{`void main() { print 1 < true; }`, "expression of type boolean used where int is required"},
		{`void main() { print 1 + 2 == 3; }`, "expression of type boolean used where int is required"},
		{`void main() { boolean b = 1 && true; }`, "expression of type int used where boolean is required"},
		{`int x = 1; int x = 2; void main() {}`, "multiple global definitions for x"},
		{`void main() {} void main() {}`, "multiple definitions for main"},
		{`int main = 1; void main() {}`, "multiple definitions for main"},
		{`int g; void main() {}`, "global variable g is not initialized"},
		{`int g = h; int h = 1; void main() {}`, "no definition for variable h"},
		{`int f() { return 1; } int g = f(); void main() {}`, "illegal call in global variable initializer"},
		{`void f(int a, int a) {} void main() {}`, "repeated formal parameter names for function f"},
		{`void main() { break; }`, "illegal use of break statement"},
		{`void main() { continue; }`, "illegal use of continue statement"},
		{`void main() { switch (1) { case 1: continue; } }`, "illegal use of continue statement"},
		{`void main() { switch (1) { case 1: case 1: } }`, "switch statement contains two cases for 1"},
		{`void main() { switch (1) { default: default: } }`, "switch statement contains two default cases"},
		{`void main() { switch (true) { } }`, "expression of type boolean used where int is required"},
		{`int f(int a) { if (a < 0) return 1; } void main() {}`, "body of function f may not return"},
		{`int f() { while (true) return 1; } void main() {}`, "body of function f may not return"},
		{`void main() { return 1; }`, "void function should not return a value"},
		{`int f() { return; } void main() {}`, "function must return a value of type int"},
		{`int f() { return true; } void main() {}`, "expression of type boolean used where int is required"},
		{`void f() {} void main() { print f(); }`, "function f does not return a value"},
		{`void main() { g(); }`, "call to undefined function g"},
		{`void f(int a) {} void main() { f(); }`, "call to function f has 0 arguments, want 1"},
		{`void f(int a) {} void main() { f(true); }`, "expression of type boolean used where int is required"},
		{`void main() { int x; print x[0]; }`, "indexed value has type int, not an array"},
		{`void main() { int[] a; a[true] = 1; }`, "expression of type boolean used where int is required"},
		{`void main() { int x; print x.length; }`, "length of int, not an array"},
		{`void main() { int[] a = new boolean[1]; }`, "expression of type boolean[] used where int[] is required"},
		{`void main() { { int y = 1; } print y; }`, "no definition for variable y"},
		{`void main() { if (true) { int y = 1; } else { print y; } }`, "no definition for variable y"},
		{`void allocArray() {} void main() {}`, "allocArray is a reserved name"},
		{`int initGlobals = 0; void main() {}`, "initGlobals is a reserved name"},
	} {
		_, _, err := check(t, tc.src)
		if assert.Error(t, err, tc.src) {
			assert.Contains(t, err.Error(), tc.msg, tc.src)

			var ferr *Error
			assert.ErrorAs(t, err, &ferr, tc.src)
		}
	}
}

func TestCheckErrorPosition(t *testing.T) {
	_, _, err := check(t, "void main() {\n\tprint y;\n}")
	require.Error(t, err)

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, 21, ferr.Pos)
}

func TestCheckInfo(t *testing.T) {
	f, info, err := check(t, `
int g = 5;
int f(int a, int b) {
	int c = a;
	{ int a = 1; c = c + a; }
	return c + b + g;
}
void main() { print f(1, 2); }
`)
	require.NoError(t, err)

	require.Len(t, info.Globals, 1)
	assert.Equal(t, Global, info.Globals[0].Kind)

	fn := info.Funcs["f"]
	require.NotNil(t, fn)
	assert.Same(t, fn, f.Defns[1])

	pa := info.Params[fn.Formals[0]]
	require.NotNil(t, pa)
	assert.Equal(t, Param, pa.Kind)
	assert.Equal(t, 0, pa.Index)
	assert.Equal(t, 1, info.Params[fn.Formals[1]].Index)

	decl := fn.Body.Stmts[0].(*ast.VarDecl)
	c := info.Defs[decl.Vars[0]]
	require.NotNil(t, c)
	assert.Equal(t, Local, c.Kind)

	// c = a: a resolves to the formal
	assert.Same(t, pa, info.Uses[decl.Vars[0].Init.(*ast.Var)])

	// inner block: a resolves to the shadowing local
	inner := fn.Body.Stmts[1].(*ast.Block)
	innerDecl := inner.Stmts[0].(*ast.VarDecl)
	innerA := info.Defs[innerDecl.Vars[0]]

	assign := inner.Stmts[1].(*ast.ExprStmt).X.(*ast.Assign)
	sum := assign.Rhs.(*ast.Binary)
	assert.Same(t, innerA, info.Uses[sum.R.(*ast.Var)])
	assert.Same(t, c, info.Uses[assign.Lhs.(*ast.Var)])

	assert.Equal(t, tp.Int{}, info.TypeOf(sum))

	ret := fn.Body.Stmts[2].(*ast.Return).X.(*ast.Binary)
	gv := ret.R.(*ast.Var)
	assert.Same(t, info.Globals[0], info.Uses[gv])
}

func TestReturns(t *testing.T) {
	ret := &ast.Return{}
	pr := &ast.Print{X: &ast.Int{}}

	assert.True(t, Returns(ret))
	assert.False(t, Returns(pr))
	assert.True(t, Returns(&ast.Block{Stmts: []ast.Stmt{pr, ret}}))
	assert.True(t, Returns(&ast.Block{Stmts: []ast.Stmt{ret, pr}}))
	assert.False(t, Returns(&ast.If{Then: ret}))
	assert.False(t, Returns(&ast.If{Then: ret, Else: pr}))
	assert.True(t, Returns(&ast.If{Then: ret, Else: &ast.Block{Stmts: []ast.Stmt{ret}}}))
	assert.False(t, Returns(&ast.While{Body: ret}))
}

func TestEnv(t *testing.T) {
	var e *Env

	assert.Nil(t, e.Lookup("x"))

	x1 := &Object{Name: "x"}
	x2 := &Object{Name: "x"}
	y := &Object{Name: "y"}

	e1 := e.Extend(x1).Extend(y)
	e2 := e1.Extend(x2)

	assert.Same(t, x2, e2.Lookup("x"))
	assert.Same(t, x1, e1.Lookup("x"))
	assert.Same(t, y, e2.Lookup("y"))
	assert.Equal(t, 3, e2.Len())
	assert.Equal(t, 2, e1.Len())
}
