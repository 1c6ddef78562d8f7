package back

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/front"
	"github.com/slowlang/stevie/compiler/tp"
)

func testFrame(p asm.Platform, nformals int) (*asm.Assembly, *Frame, []*front.Object) {
	a := asm.New(p)

	var formals []*front.Object

	for i := 0; i < nformals; i++ {
		formals = append(formals, &front.Object{Name: string(rune('a' + i)), Type: tp.Int{}, Kind: front.Param, Index: i})
	}

	tr := tlog.SpanFromContext(context.Background())

	return a, newFunctionFrame(a, tr, formals, nil), formals
}

func TestFrameLayout(t *testing.T) {
	_, f, formals := testFrame(asm.Linux, 8)

	assert.Equal(t, len(asm.CalleeSaves), f.paramBase)
	assert.Equal(t, f.paramBase+6, f.freeBase)
	assert.Equal(t, asm.RAX, f.Free())

	l, ok := f.env.Find(formals[0])
	require.True(t, ok)
	assert.Equal(t, RegLoc(asm.RDI, tp.Int{}), l)

	l, ok = f.env.Find(formals[6])
	require.True(t, ok)
	assert.Equal(t, FrameLoc(16, tp.Int{}), l)

	l, ok = f.env.Find(formals[7])
	require.True(t, ok)
	assert.Equal(t, FrameLoc(24, tp.Int{}), l)
}

func TestFrameUnusedArgRegs(t *testing.T) {
	_, f, _ := testFrame(asm.Linux, 2)

	// rax, then unused argument registers, then caller saved
	assert.Equal(t, []asm.Reg{asm.RAX, asm.RDX, asm.RCX, asm.R8, asm.R9, asm.R10, asm.R11}, f.regs[f.freeBase:])
}

func TestSpillBalance(t *testing.T) {
	a, f, formals := testFrame(asm.Linux, 1)

	n := len(f.regs)

	var regs []asm.Reg

	var rec func(d int) error
	rec = func(d int) error {
		if d == 0 {
			return nil
		}

		return f.withSpill(func(r asm.Reg) error {
			regs = append(regs, r)

			if f.free >= n {
				assert.Equal(t, (f.free-n+1)*asm.QuadSize, f.pushed)
			}

			return rec(d - 1)
		})
	}

	// wrap around up to the parameter register
	depth := n - f.freeBase + f.paramBase

	err := rec(depth)
	require.NoError(t, err)

	assert.Equal(t, 0, f.spills)
	assert.Equal(t, 0, f.pushed)
	assert.Equal(t, f.freeBase, f.free)

	// callee-saved registers were pushed before use, then rdi holding the formal
	assert.Equal(t, asm.CalleeSaves, regs[n-f.freeBase-1:n-f.freeBase-1+len(asm.CalleeSaves)])
	assert.Equal(t, asm.RDI, regs[len(regs)-1])

	l, ok := f.env.Find(formals[0])
	require.True(t, ok)
	assert.Equal(t, RegLoc(asm.RDI, tp.Int{}), l)

	text := string(a.Bytes())
	assert.Contains(t, text, "pushq\t%rbx")
	assert.Contains(t, text, "pushq\t%rdi")
	assert.Contains(t, text, "popq\t%rdi")
}

func TestSpillRelocatesFormal(t *testing.T) {
	_, f, formals := testFrame(asm.Linux, 1)

	n := len(f.regs)

	for f.free < n+f.paramBase-1 {
		f.spill()
	}

	r := f.spill()
	assert.Equal(t, asm.RDI, r)

	l, ok := f.env.Find(formals[0])
	require.True(t, ok)
	assert.Equal(t, FrameLoc(-f.pushed, tp.Int{}), l)

	f.unspill()

	l, _ = f.env.Find(formals[0])
	assert.Equal(t, RegLoc(asm.RDI, tp.Int{}), l)
}

func TestCallFrameLayout(t *testing.T) {
	for _, tc := range []struct {
		p      asm.Platform
		locals int
		nargs  int
		bytes  int
		pad    int
	}{
		{asm.Linux, 0, 2, 0, 0},
		{asm.Linux, 1, 8, 16, 0},
		{asm.MacOS, 0, 1, 0, 0},
		{asm.MacOS, 1, 1, 8, 8},
		{asm.MacOS, 0, 7, 16, 8},
		{asm.MacOS, 1, 7, 8, 0},
	} {
		a, f, _ := testFrame(tc.p, 0)

		for i := 0; i < tc.locals; i++ {
			f.allocLocal(&front.Object{Name: "x", Type: tp.Int{}, Kind: front.Local}, asm.Imm(0))
		}

		cf := f.prepareCall(tc.nargs)

		assert.Equal(t, tc.bytes, cf.argBytes, "%+v", tc)
		assert.Equal(t, tc.pad, cf.pad, "%+v", tc)
		if tc.p&asm.Align16 != 0 {
			assert.Zero(t, cf.pushed%16, "%+v", tc)
		}

		for i := 0; i < tc.nargs; i++ {
			if i < len(asm.Args) {
				assert.Equal(t, asm.Args[i], cf.Free())
			}

			a.Emit("movl", asm.Imm(int64(i)), cf.Free().R32())
			cf.saveArg()
		}

		err := cf.call("f")
		require.NoError(t, err)

		f.removeCall(cf)

		assert.Equal(t, tc.locals*asm.QuadSize, f.pushed)
	}
}

func TestCallFrameStackArgs(t *testing.T) {
	a, f, _ := testFrame(asm.Linux, 0)

	cf := f.prepareCall(8)

	for i := 0; i < 8; i++ {
		a.Emit("movl", asm.Imm(int64(i)), cf.Free().R32())
		cf.saveArg()
	}

	require.NoError(t, cf.call("f"))
	f.removeCall(cf)

	text := string(a.Bytes())

	// seventh argument at the lowest address
	assert.Contains(t, text, "subq\t$16, %rsp")
	assert.Contains(t, text, "movq\t%rax, -16(%rbp)")
	assert.Contains(t, text, "movq\t%rax, -8(%rbp)")
	assert.Contains(t, text, "call\tXf")
	assert.Contains(t, text, "movl\t$5, %r9d")
}

func TestCallFrameSavesLive(t *testing.T) {
	a, f, formals := testFrame(asm.Linux, 2)

	// a value is live in rax while calling
	r := f.spill()
	assert.Equal(t, asm.RDX, r)

	cf := f.prepareCall(0)

	l, ok := cf.env.Find(formals[1])
	require.True(t, ok)
	assert.Equal(t, InFrame, l.Kind)

	require.NoError(t, cf.call("g"))
	f.removeCall(cf)
	f.unspill()

	assert.Equal(t, `	pushq	%rax
	pushq	%rsi
	pushq	%rdi
	call	Xg
	movq	%rax, %rdx
	popq	%rdi
	popq	%rsi
	popq	%rax
`, string(a.Bytes()))

	assert.Equal(t, 0, f.pushed)

	l, _ = f.env.Find(formals[1])
	assert.Equal(t, RegLoc(asm.RSI, tp.Int{}), l)
}

func TestCallArgsMismatch(t *testing.T) {
	_, f, _ := testFrame(asm.Linux, 0)

	cf := f.prepareCall(2)
	cf.saveArg()

	err := cf.call("h")
	assert.Error(t, err)
}

func TestResetTo(t *testing.T) {
	a, f, _ := testFrame(asm.Linux, 0)

	env := f.env

	f.allocLocal(&front.Object{Name: "x", Type: tp.Int{}}, asm.Imm(0))
	f.allocLocal(&front.Object{Name: "y", Type: tp.Int{}}, asm.Imm(0))

	assert.Equal(t, 16, f.pushed)

	f.resetTo(env)

	assert.Equal(t, 0, f.pushed)
	assert.Equal(t, -16, a.Pending())
	assert.Same(t, env, f.env)
}
