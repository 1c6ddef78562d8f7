package emu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/stevie/compiler/ir"
)

func voidReg() ir.Reg { return ir.Reg{T: ir.Void{}} }

func printCall(x ir.Value, next ir.Code) ir.Code {
	return &ir.Call{Dst: voidReg(), Func: "Xprint", Args: []ir.Value{x}, Next: next}
}

func TestInterpGlobalsAndCalls(t *testing.T) {
	g := ir.GlobalRef{Name: "Xg", Elem: ir.I32}

	initF := ir.NewFunction("XinitGlobals", ir.Void{})
	initF.SetEntry(&ir.Store{Val: ir.I32Const(40), Ptr: g, Next: &ir.Ret{}})

	// add(a) = a + g
	add := ir.NewFunction("Xadd", ir.I32, ir.I32)
	v := add.NewReg(ir.I32)
	s := add.NewReg(ir.I32)
	add.SetEntry(&ir.Load{Dst: v, Ptr: g, Next: &ir.BinOp{Dst: s, Op: ir.Add, X: add.Params[0], Y: v, Next: &ir.Ret{X: s}}})

	main := ir.NewFunction("Xmain", ir.Void{})
	r := main.NewReg(ir.I32)
	q := main.NewReg(ir.I32)
	main.SetEntry(&ir.Call{Dst: r, Func: "Xadd", Args: []ir.Value{ir.I32Const(2)},
		Next: &ir.BinOp{Dst: q, Op: ir.SDiv, X: r, Y: ir.I32Const(-4),
			Next: printCall(r, printCall(q, &ir.Ret{}))}})

	m := &ir.Module{
		Globals: []ir.Global{{Name: "Xg", T: ir.I32}},
		Funcs:   []*ir.Function{initF, add, main},
	}

	for _, f := range m.Funcs {
		require.NoError(t, f.Finalize())
	}

	in := NewInterp(m)

	err := in.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int32{42, -10}, in.Out)
}

func TestInterpPhiAndSlots(t *testing.T) {
	// f(x) = x < 3 && x == 1, kept in a slot
	f := ir.NewFunction("Xf", ir.I1, ir.I32)
	x := f.Params[0]

	first, right, second, join := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	slot := f.NewSlot("b", ir.I1)

	lt := f.NewReg(ir.I1)
	eq := f.NewReg(ir.I1)
	d := f.NewReg(ir.I1)
	res := f.NewReg(ir.I1)

	f.SetEntry(&ir.Icmp{Dst: lt, Cond: ir.SLT, X: x, Y: ir.I32Const(3), Next: &ir.Goto{To: first}})
	first.Set(&ir.CondBr{Cond: lt, Then: right, Else: join})
	right.Set(&ir.Icmp{Dst: eq, Cond: ir.EQ, X: x, Y: ir.I32Const(1), Next: &ir.Goto{To: second}})
	second.Set(&ir.Goto{To: join})
	join.Set(&ir.Phi{Dst: d, Edges: []ir.PhiEdge{{X: lt, From: first}, {X: eq, From: second}},
		Next: &ir.Store{Val: d, Ptr: slot, Next: &ir.Load{Dst: res, Ptr: slot, Next: &ir.Ret{X: res}}}})

	require.NoError(t, f.Finalize())

	in := NewInterp(&ir.Module{Funcs: []*ir.Function{f}})

	for _, tc := range []struct {
		x    int64
		want int64
	}{
		{1, 1},
		{2, 0},
		{5, 0},
	} {
		r, err := in.Call(context.Background(), "Xf", tc.x)
		require.NoError(t, err)
		assert.Equal(t, tc.want, r, "x = %d", tc.x)
	}
}

func TestInterpArrays(t *testing.T) {
	arrT := ir.Ptr{Elem: ir.ArrayBody(ir.I32)}

	f := ir.NewFunction("Xf", ir.I32, ir.I32)
	raw := f.NewReg(ir.Ptr{Elem: ir.I8})
	arr := f.NewReg(arrT)
	ep := f.NewReg(ir.Ptr{Elem: ir.I32})
	lp := f.NewReg(ir.Ptr{Elem: ir.I32})
	n := f.NewReg(ir.I32)
	ok := f.NewReg(ir.I1)
	v := f.NewReg(ir.I32)
	s := f.NewReg(ir.I32)

	good, trap := f.NewBlock(), f.NewBlock()

	f.SetEntry(&ir.Call{Dst: raw, Func: "XallocArray", Args: []ir.Value{ir.I32Const(3), ir.I32Const(4)},
		Next: &ir.Bitcast{Dst: arr, X: raw,
			Next: &ir.GEP{Dst: lp, Ptr: arr, Idx: []ir.Value{ir.I32Const(0), ir.I32Const(0)},
				Next: &ir.Load{Dst: n, Ptr: lp,
					Next: &ir.Icmp{Dst: ok, Cond: ir.ULT, X: f.Params[0], Y: n,
						Next: &ir.CondBr{Cond: ok, Then: good, Else: trap}}}}}})

	good.Set(&ir.GEP{Dst: ep, Ptr: arr, Idx: []ir.Value{ir.I32Const(0), ir.I32Const(1), f.Params[0]},
		Next: &ir.Store{Val: ir.I32Const(7), Ptr: ep,
			Next: &ir.Load{Dst: v, Ptr: ep,
				Next: &ir.BinOp{Dst: s, Op: ir.Add, X: v, Y: n, Next: &ir.Ret{X: s}}}}})

	trap.Set(&ir.Call{Dst: voidReg(), Func: "llvm.trap", Next: &ir.Unreachable{}})

	require.NoError(t, f.Finalize())

	in := NewInterp(&ir.Module{Funcs: []*ir.Function{f}})

	r, err := in.Call(context.Background(), "Xf", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r)

	// negative index is a large unsigned one
	_, err = in.Call(context.Background(), "Xf", -1)
	assert.ErrorIs(t, err, ErrTrap)

	_, err = in.Call(context.Background(), "Xf", 3)
	assert.ErrorIs(t, err, ErrTrap)
}

func TestInterpSwitch(t *testing.T) {
	f := ir.NewFunction("Xf", ir.I32, ir.I32)

	one, two, def := f.NewBlock(), f.NewBlock(), f.NewBlock()

	f.SetEntry(&ir.Switch{X: f.Params[0], Default: def, Cases: []ir.SwitchCase{{Num: 1, To: one}, {Num: 2, To: two}}})
	one.Set(&ir.Ret{X: ir.I32Const(10)})
	two.Set(&ir.Ret{X: ir.I32Const(20)})
	def.Set(&ir.Ret{X: ir.I32Const(-1)})

	require.NoError(t, f.Finalize())

	in := NewInterp(&ir.Module{Funcs: []*ir.Function{f}})

	for x, want := range map[int64]int64{1: 10, 2: 20, 0: -1, 3: -1} {
		r, err := in.Call(context.Background(), "Xf", x)
		require.NoError(t, err)
		assert.Equal(t, want, r, "x = %d", x)
	}
}

func TestInterpErrors(t *testing.T) {
	f := ir.NewFunction("Xloop", ir.Void{})
	f.SetEntry(&ir.Goto{To: f.Entry})

	div := ir.NewFunction("Xdiv", ir.I32, ir.I32)
	q := div.NewReg(ir.I32)
	div.SetEntry(&ir.BinOp{Dst: q, Op: ir.SDiv, X: ir.I32Const(1), Y: div.Params[0], Next: &ir.Ret{X: q}})

	un := ir.NewFunction("Xun", ir.I32)
	un.SetEntry(&ir.Unreachable{})

	in := NewInterp(&ir.Module{Funcs: []*ir.Function{f, div, un}})
	in.MaxSteps = 1000

	_, err := in.Call(context.Background(), "Xloop")
	assert.ErrorContains(t, err, "step limit")

	in.MaxSteps = 1_000_000

	_, err = in.Call(context.Background(), "Xdiv", 0)
	assert.ErrorContains(t, err, "division by zero")

	_, err = in.Call(context.Background(), "Xun")
	assert.ErrorContains(t, err, "unreachable")

	_, err = in.Call(context.Background(), "Xnope")
	assert.Error(t, err)

	_, err = in.Call(context.Background(), "Xdiv")
	assert.ErrorContains(t, err, "want 1 args")
}
