package asm

import "tlog.app/go/tlog/tlwire"

type (
	// Reg is an x86-64 general purpose register.
	Reg int
)

const (
	RAX Reg = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	NumRegs
)

var (
	names64 = []string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	names32 = []string{"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp", "r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
)

// System V register classes.
var (
	CalleeSaves = []Reg{RBX, R12, R13, R14, R15}
	Args        = []Reg{RDI, RSI, RDX, RCX, R8, R9}
	Results     = []Reg{RAX}
	CallerSaves = []Reg{R10, R11}

	StackPointer = RSP
	BasePointer  = RBP
)

func (r Reg) R64() string { return "%" + names64[r] }
func (r Reg) R32() string { return "%" + names32[r] }

// W returns the register name for a value of w bytes.
func (r Reg) W(w int) string {
	if w == 8 {
		return r.R64()
	}

	return r.R32()
}

func (r Reg) String() string {
	if r < 0 || r >= NumRegs {
		return "reg?"
	}

	return names64[r]
}

// ParseReg resolves both 64 and 32 bit names without the % sign.
func ParseReg(n string) (r Reg, w int, ok bool) {
	for i := range names64 {
		if names64[i] == n {
			return Reg(i), 8, true
		}

		if names32[i] == n {
			return Reg(i), 4, true
		}
	}

	return -1, 0, false
}

func (r Reg) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	return e.AppendString(b, r.String())
}
