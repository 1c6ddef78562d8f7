package emu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/stevie/compiler/asm"
)

func load(t *testing.T, p asm.Platform, text string) *Machine {
	t.Helper()

	m := NewMachine(p)

	err := m.Load([]byte(text))
	require.NoError(t, err)

	return m
}

func TestMachineArith(t *testing.T) {
	m := load(t, asm.Linux, `
	.globl	Xf
Xf:
	pushq	%rbp
	movq	%rsp, %rbp
	movl	%edi, %eax
	movl	$3, %ecx
	imull	%ecx, %eax	# a * 3
	subl	%esi, %eax
	movl	$100, %edx
	xchgl	%edx, %eax
	subl	%edx, %eax
	movq	%rbp, %rsp
	popq	%rbp
	ret
`)

	err := m.Call(context.Background(), "f", 5, 20)
	require.NoError(t, err)

	// 100 - (5*3 - 20)
	assert.Equal(t, int32(105), m.Result())
}

func TestMachineGlobalsAndPrint(t *testing.T) {
	m := load(t, asm.Linux, `
	.data
Xg:
	.long	0
Xa:
	.quad	0

	.text
XinitGlobals:
	pushq	%rbp
	movq	%rsp, %rbp
	movl	$-7, %eax
	movl	%eax, Xg(%rip)
	movq	%rbp, %rsp
	popq	%rbp
	ret
Xmain:
	pushq	%rbp
	movq	%rsp, %rbp
	movl	Xg(%rip), %edi
	call	Xprint
	pushq	$4
	movl	-8(%rbp), %edi
	addq	$8, %rsp
	call	Xprint
	movq	%rbp, %rsp
	popq	%rbp
	ret
`)

	err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int32{-7, 4}, m.Out)
}

func TestMachineBranches(t *testing.T) {
	m := load(t, asm.Linux, `
Xmain:
	pushq	%rbp
	movq	%rsp, %rbp
	movl	$0, %eax
	jmp	l1
l0:
	pushq	%rax
	movl	%eax, %edi
	call	Xprint
	popq	%rax
	movl	$1, %ecx
	addl	%ecx, %eax
l1:
	movl	$3, %ecx
	cmpl	%ecx, %eax
	jl	l0
	cmpl	$3, %eax
	je	l2
	movl	$99, %edi
	call	Xprint
l2:
	movq	%rbp, %rsp
	popq	%rbp
	ret
`)

	err := m.Call(context.Background(), "main")
	require.NoError(t, err)

	assert.Equal(t, []int32{0, 1, 2}, m.Out)
}

func TestMachineEpilogueCheck(t *testing.T) {
	m := load(t, asm.Linux, `
Xmain:
	pushq	%rbp
	movq	%rsp, %rbp
	pushq	$0
	movq	%rbp, %rsp
	popq	%rbp
	ret
`)

	err := m.Call(context.Background(), "main")
	assert.ErrorContains(t, err, "epilogue")
}

func TestMachineCalleeSavedCheck(t *testing.T) {
	m := load(t, asm.Linux, `
Xf:
	pushq	%rbp
	movq	%rsp, %rbp
	movl	$1, %ebx
	movq	%rbp, %rsp
	popq	%rbp
	ret
`)

	err := m.Call(context.Background(), "f")
	assert.ErrorContains(t, err, "callee-saved")
}

func TestMachineAlignmentCheck(t *testing.T) {
	text := `
_Xmain:
	pushq	%rbp
	movq	%rsp, %rbp
	pushq	$1
	call	_Xprint
	movq	%rbp, %rsp
	popq	%rbp
	ret
`

	m := load(t, asm.MacOS, text)

	err := m.Call(context.Background(), "main")
	assert.ErrorContains(t, err, "misaligned")

	// without Align16 only the unbalanced stack is caught
	m = load(t, asm.Underscores, text)

	err = m.Call(context.Background(), "main")
	assert.ErrorContains(t, err, "epilogue")
}

func TestMachineClobbers(t *testing.T) {
	m := load(t, asm.Linux, `
Xmain:
	pushq	%rbp
	movq	%rsp, %rbp
	movl	$5, %ecx
	movl	$1, %edi
	call	Xprint
	movl	%ecx, %edi
	call	Xprint
	movq	%rbp, %rsp
	popq	%rbp
	ret
`)

	err := m.Call(context.Background(), "main")
	require.NoError(t, err)

	require.Len(t, m.Out, 2)
	assert.NotEqual(t, int32(5), m.Out[1])
}

func TestMachineErrors(t *testing.T) {
	m := NewMachine(asm.Linux)
	assert.Error(t, m.Load([]byte("\tmovl\t%xmm0, %eax\n")))

	m = load(t, asm.Linux, "Xmain:\n\tjmp\tnowhere\n")
	assert.ErrorContains(t, m.Call(context.Background(), "main"), "undefined label")

	m = load(t, asm.Linux, "Xmain:\n\tjmp\tXmain\n")
	m.MaxSteps = 100
	assert.ErrorContains(t, m.Call(context.Background(), "main"), "step limit")

	assert.Error(t, m.Call(context.Background(), "nope"))
}
