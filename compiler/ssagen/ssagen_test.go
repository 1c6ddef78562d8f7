package ssagen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/stevie/compiler/emu"
	"github.com/slowlang/stevie/compiler/front"
	"github.com/slowlang/stevie/compiler/ir"
	"github.com/slowlang/stevie/compiler/parse"
)

func compile(t *testing.T, src string) *ir.Module {
	t.Helper()

	ctx := context.Background()

	f, err := parse.Parse(ctx, "test.stv", []byte(src))
	require.NoError(t, err, src)

	info, err := front.Check(ctx, f)
	require.NoError(t, err, src)

	m, err := Compile(ctx, f, info)
	require.NoError(t, err, src)

	return m
}

func run(t *testing.T, src string) ([]int32, error) {
	t.Helper()

	m := compile(t, src)

	in := emu.NewInterp(m)

	err := in.Run(context.Background())

	return in.Out, err
}

func TestPrograms(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		out  []int32
	}{
		{"locals", `void main() { int x = 3; int y; y = x + 4; print y; }`, []int32{7}},
		{"bool_if", `void main() { boolean b = (2 == 2); if (b) { print 1; } else { print 0; } }`, []int32{1}},
		{"globals", `int g = 5; int h = g * 2; void main() { print h; g = g + 1; print g; }`, []int32{10, 6}},
		{"seven_args", `int sum(int a, int b, int c, int d, int e, int f, int g) { return a + b + c + d + e + f + g; } void main() { print sum(1, 2, 3, 4, 5, 6, 7); }`, []int32{28}},
		{"shadowing", `void main() { int x = 1; { int x = 2; print x; } { int x = 3; print x; } print x; }`, []int32{2, 3, 1}},
		{"fib", `int fib(int n) { if (n < 2) return n; else return fib(n - 1) + fib(n - 2); } void main() { print fib(10); }`, []int32{55}},
		{"short_circuit_and", `int hits = 0; boolean t() { hits = hits + 1; return true; } void main() { if (false && t()) print 1; print hits; boolean b = 1 < 2 && t(); print hits; if (b) print 2; }`, []int32{0, 1, 2}},
		{"short_circuit_or", `int hits = 0; boolean t() { hits = hits + 1; return true; } void main() { if (true || t()) print 1; print hits; boolean b = 2 < 1 || t(); if (b) print 2; print hits; }`, []int32{1, 0, 2, 1}},
		{"nested_logic", `void main() { boolean a = true; boolean b = false; if ((a && b) || (b || a && 1 < 2)) print 1; else print 2; boolean c = (a || b) && (b || false); if (c) print 3; }`, []int32{1}},
		{"division", `void main() { print 7 / 2; print -7 / 2; print 100 / 10 / 5; }`, []int32{3, -3, 2}},
		{"while_break", `void main() { int i = 0; while (true) { if (i == 3) break; i = i + 1; } print i; }`, []int32{3}},
		{"for_continue", `void main() { int i; for (i = 0; i < 5; i = i + 1) { if (i == 2) continue; print i; } }`, []int32{0, 1, 3, 4}},
		{"for_empty", `void main() { int i = 0; for (;;) { i = i + 1; if (3 < i) break; } print i; }`, []int32{4}},
		{"do_while", `void main() { int i = 0; do { print i; i = i + 1; } while (i < 3); do print 9; while (false); }`, []int32{0, 1, 2, 9}},
		{"do_while_continue", `void main() { int i = 0; do { i = i + 1; if (i == 2) continue; print i; } while (i < 4); }`, []int32{1, 3, 4}},
		{"switch", `void main() { int i; for (i = 0; i < 4; i = i + 1) { switch (i) { case 0: print 10; case 1: print 11; break; default: print 99; } } }`, []int32{10, 11, 11, 99, 99}},
		{"switch_default_first", `void main() { switch (5) { default: print 1; case 2: print 2; } switch (2) { default: print 1; case 2: print 2; } }`, []int32{1, 2, 2}},
		{"switch_no_default", `void main() { switch (7) { case 1: print 1; } print 0; }`, []int32{0}},
		{"arrays", `int[] squares(int n) { int[] a = new int[n]; int i; for (i = 0; i < a.length; i = i + 1) a[i] = i * i; return a; }
void main() { int[] s = squares(5); print s[4]; print s.length; boolean[] b = new boolean[2]; b[1] = true; if (b[1]) print 1; if (b[0]) print 2; }`, []int32{16, 5, 1}},
		{"global_array", `int[] g = new int[3]; void main() { g[0] = 5; print g[0] + g.length; }`, []int32{8}},
		{"nested_arrays", `void main() { int[][] m = new int[2][]; m[0] = new int[3]; m[0][2] = 7; print m[0][2]; print m[0].length; }`, []int32{7, 3}},
		{"eval_order", `int n = 0; int next() { n = n + 1; return n; } void main() { int[] a = new int[3]; a[next() - 1] = next(); print a[0]; print n; }`, []int32{2, 2}},
		{"assign_chain", `void main() { int x; int y; x = y = 4; print x + y; }`, []int32{8}},
		{"void_call_stmt", `int g = 0; void set(int v) { g = v; } void main() { set(3); print g; }`, []int32{3}},
		{"uninitialized", `void main() { int x; boolean b; int[] a; print x; if (b) print 1; }`, []int32{0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, tc.src)
			require.NoError(t, err)
			assert.Equal(t, tc.out, out)
		})
	}
}

func TestBoundsCheck(t *testing.T) {
	for _, src := range []string{
		`void main() { int[] a = new int[2]; print a[2]; }`,
		`void main() { int[] a = new int[2]; a[0 - 1] = 1; }`,
		`void main() { int[] a = new int[0]; print a[0]; }`,
	} {
		out, err := run(t, src)
		assert.ErrorIs(t, err, emu.ErrTrap, src)
		assert.Empty(t, out)
	}
}

func TestLogicText(t *testing.T) {
	m := compile(t, `boolean f(boolean a, boolean b) { return a && b; } void main() {}`)

	f := m.Func("Xf")
	require.NotNil(t, f)

	assert.Equal(t, `define i1 @Xf(i1 %r0, i1 %r1) {
L0:
	%a.addr = alloca i1
	%b.addr = alloca i1
	store i1 %r0, i1* %a.addr
	store i1 %r1, i1* %b.addr
	%r2 = load i1, i1* %a.addr
	br label %L1

L1:
	br i1 %r2, label %L2, label %L4

L2:
	%r3 = load i1, i1* %b.addr
	br label %L3

L3:
	br label %L4

L4:
	%r4 = phi i1 [%r2, %L1], [%r3, %L3]
	ret i1 %r4
}
`, string(f.AppendTo(nil)))
}

func TestModuleText(t *testing.T) {
	m := compile(t, `int g = 1; boolean[] bs = new boolean[1]; void main() { int[] a = new int[g]; a[0] = a[0] + 1; print a[0]; }`)

	text := string(m.AppendTo(nil))

	for _, s := range []string{
		`; ModuleID = "test.stv"`,
		"declare void @Xprint(i32)\n",
		"declare i8* @XallocArray(i32, i32)\n",
		"declare void @llvm.trap()\n",
		"@Xg = global i32 0, align 4\n",
		"@Xbs = global {i32, [0 x i1]}* null, align 8\n",
		"define void @XinitGlobals() {",
		"store i32 1, i32* @Xg",
		"define void @Xmain() {",
		"call i8* @XallocArray(i32 %r",
		", i32 4)",
		"bitcast i8* %r",
		"getelementptr {i32, [0 x i32]}, {i32, [0 x i32]}* %r",
		"icmp ult i32",
	} {
		assert.Contains(t, text, s)
	}

	// one trap block per function
	assert.Equal(t, 1, strings.Count(text, "call void @llvm.trap()"))
	assert.Equal(t, 1, strings.Count(text, "declare void @llvm.trap()"))
}

func TestSharedTerminator(t *testing.T) {
	m := compile(t, `void f(boolean b) { if (b) print 1; else print 2; } void main() { f(true); }`)

	text := string(m.Func("Xf").AppendTo(nil))

	// both arms end with the function return, no join block
	assert.Equal(t, 2, strings.Count(text, "ret void"), text)
	assert.Equal(t, 3, strings.Count(text, ":\n"), text)
}

func TestSwitchText(t *testing.T) {
	m := compile(t, `void main() { switch (2) { case 1: print 1; case 2: print 2; break; default: } }`)

	text := string(m.Func("Xmain").AppendTo(nil))

	assert.Contains(t, text, "switch i32 2, label %L")
	assert.Contains(t, text, "\t\ti32 1, label %L")
	assert.Contains(t, text, "\t\ti32 2, label %L")
}

func TestNonVoidFallOff(t *testing.T) {
	m := compile(t, `int f(int x) { while (true) { if (x < 0) return 1; x = x - 1; } return 0; } void main() { print f(3); }`)

	require.NotNil(t, m.Func("Xf"))

	in := emu.NewInterp(m)
	require.NoError(t, in.Run(context.Background()))
	assert.Equal(t, []int32{1}, in.Out)
}
