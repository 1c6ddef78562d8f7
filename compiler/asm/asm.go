package asm

import (
	"fmt"
	"strconv"
)

type (
	// Platform is a set of code generation flags.
	Platform int

	Label int

	// Assembly accumulates AT&T syntax text.
	//
	// Stack pointer changes are batched: Adjust records a delta
	// which is emitted right before the next instruction or label.
	Assembly struct {
		Platform Platform

		b []byte

		labels  int
		pending int
	}
)

// Platform flags.
const (
	Underscores Platform = 1 << iota
	Align16
)

const (
	Linux Platform = 0
	MacOS          = Underscores | Align16
)

// QuadSize is the size of a stack slot.
const QuadSize = 8

func New(p Platform) *Assembly {
	return &Assembly{Platform: p}
}

func (a *Assembly) Bytes() []byte { return a.b }

func (a *Assembly) NewLabel() Label {
	l := Label(a.labels)
	a.labels++

	return l
}

func (l Label) String() string { return "l" + strconv.Itoa(int(l)) }

// Name decorates a source level symbol for the platform.
func (a *Assembly) Name(n string) string {
	if a.Platform&Underscores != 0 {
		return "_X" + n
	}

	return "X" + n
}

// Global is a rip relative reference to a named symbol.
func (a *Assembly) Global(n string) string {
	return a.Name(n) + "(%rip)"
}

func Imm(v int64) string { return "$" + strconv.FormatInt(v, 10) }

func Indirect(off int, r Reg) string {
	if off == 0 {
		return "(" + r.R64() + ")"
	}

	return strconv.Itoa(off) + "(" + r.R64() + ")"
}

func (a *Assembly) Emit(op string, args ...string) {
	a.flush()

	a.b = append(a.b, '\t')
	a.b = append(a.b, op...)

	for i, arg := range args {
		if i == 0 {
			a.b = append(a.b, '\t')
		} else {
			a.b = append(a.b, ", "...)
		}

		a.b = append(a.b, arg...)
	}

	a.b = append(a.b, '\n')
}

func (a *Assembly) Label(l Label) {
	a.flush()

	a.b = fmt.Appendf(a.b, "%v:\n", l)
}

func (a *Assembly) Symbol(name string) {
	a.flush()

	a.b = fmt.Appendf(a.b, "%s:\n", a.Name(name))
}

func (a *Assembly) Blank() {
	a.b = append(a.b, '\n')
}

func (a *Assembly) Comment(format string, args ...any) {
	a.b = append(a.b, "\t# "...)
	a.b = fmt.Appendf(a.b, format, args...)
	a.b = append(a.b, '\n')
}

// Adjust reserves n bytes of stack, or releases -n if negative.
func (a *Assembly) Adjust(n int) {
	a.pending += n
}

func (a *Assembly) Pending() int { return a.pending }

// Drop forgets the pending adjustment.
// Used when the current point is unreachable.
func (a *Assembly) Drop() {
	a.pending = 0
}

func (a *Assembly) flush() {
	n := a.pending
	if n == 0 {
		return
	}

	a.pending = 0

	if n > 0 {
		a.Emit("subq", Imm(int64(n)), StackPointer.R64())
	} else {
		a.Emit("addq", Imm(int64(-n)), StackPointer.R64())
	}
}

// AlignmentAdjust returns the number of bytes to add to pushed
// to keep the stack 16 byte aligned at calls.
func (a *Assembly) AlignmentAdjust(pushed int) int {
	if a.Platform&Align16 == 0 {
		return 0
	}

	return (16 - pushed) & 15
}

func (a *Assembly) Prologue() {
	a.Emit("pushq", BasePointer.R64())
	a.Emit("movq", StackPointer.R64(), BasePointer.R64())
}

// Epilogue flushes pending adjustments, so it's the stack pointer
// which is expected to be equal to the base pointer at this point.
func (a *Assembly) Epilogue() {
	a.Emit("movq", BasePointer.R64(), StackPointer.R64())
	a.Emit("popq", BasePointer.R64())
	a.Emit("ret")
}

func (p Platform) String() string {
	switch p {
	case Linux:
		return "linux"
	case MacOS:
		return "macos"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

func ParsePlatform(s string) (Platform, bool) {
	switch s {
	case "linux", "":
		return Linux, true
	case "macos", "darwin", "macosx":
		return MacOS, true
	default:
		return 0, false
	}
}
