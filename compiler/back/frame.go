package back

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/front"
)

type (
	// Frame tracks register and stack usage of a function being compiled.
	//
	// regs is used as a ring indexed by free.
	// Indexes below paramBase are callee-saved registers,
	// they are only taken after wrapping around and so they are always pushed first.
	// [paramBase, freeBase) hold register parameters.
	// free names the register the next value is computed into.
	// Indexes past len(regs) reuse a register after pushing its old value.
	Frame struct {
		a  *asm.Assembly
		tr tlog.Span

		regs []asm.Reg

		paramBase int
		freeBase  int
		free      int

		// pushed is the number of bytes reserved below %rbp.
		pushed int

		env     *LocEnv
		formals []*front.Object

		spills int
	}

	// CallFrame is a Frame for evaluating call arguments.
	// Register arguments are computed right into their registers,
	// the rest are stored to the outgoing area at the bottom of the stack.
	CallFrame struct {
		Frame

		nargs int
		added int

		// argTop is the frame size before the outgoing area.
		argTop   int
		argBytes int
		pad      int
	}
)

func newFunctionFrame(a *asm.Assembly, tr tlog.Span, formals []*front.Object, globals *LocEnv) *Frame {
	f := &Frame{
		a:       a,
		tr:      tr,
		env:     globals,
		formals: formals,
	}

	f.regs = append(f.regs, asm.CalleeSaves...)

	f.paramBase = len(f.regs)

	i := 0
	for ; i < len(asm.Args) && i < len(formals); i++ {
		f.regs = append(f.regs, asm.Args[i])
		f.env = f.env.Extend(formals[i], RegLoc(asm.Args[i], formals[i].Type))
	}

	// The caller stored the rest at increasing addresses starting just above the return address.
	for j := i; j < len(formals); j++ {
		off := (2 + j - i) * asm.QuadSize
		f.env = f.env.Extend(formals[j], FrameLoc(off, formals[j].Type))
	}

	f.freeBase = len(f.regs)
	f.free = f.freeBase

	f.regs = append(f.regs, asm.Results...)
	f.regs = append(f.regs, asm.Args[i:]...)
	f.regs = append(f.regs, asm.CallerSaves...)

	return f
}

func (f *Frame) reg(n int) asm.Reg {
	return f.regs[n%len(f.regs)]
}

// Free is the register the next value goes to.
func (f *Frame) Free() asm.Reg { return f.reg(f.free) }

func (f *Frame) Pushed() int { return f.pushed }

func (f *Frame) Env() *LocEnv { return f.env }

// spill makes the next register available, saving its value on the stack if it's taken.
// Each spill must be paired with unspill.
func (f *Frame) spill() asm.Reg {
	f.free++
	f.spills++

	r := f.reg(f.free)

	if f.free >= len(f.regs) {
		f.a.Emit("pushq", r.R64())
		f.pushed += asm.QuadSize

		if n, ok := f.spilledFormal(); ok {
			f.env = f.env.Extend(f.formals[n], FrameLoc(-f.pushed, f.formals[n].Type))
		}

		f.tr.V("spill").Printw("spill", "reg", r, "free", f.free, "pushed", f.pushed)
	}

	return r
}

func (f *Frame) unspill() {
	r := f.reg(f.free)

	if f.free >= len(f.regs) {
		f.a.Emit("popq", r.R64())
		f.pushed -= asm.QuadSize

		if _, ok := f.spilledFormal(); ok {
			f.env = f.env.Next()
		}

		f.tr.V("spill").Printw("unspill", "reg", r, "free", f.free, "pushed", f.pushed)
	}

	f.free--
	f.spills--
}

func (f *Frame) spilledFormal() (int, bool) {
	n := f.free - (len(f.regs) + f.paramBase)

	return n, n >= 0 && n < len(f.formals) && n < len(asm.Args)
}

// withSpill acquires the next register for the duration of fn.
func (f *Frame) withSpill(fn func(r asm.Reg) error) error {
	r := f.spill()
	defer f.unspill()

	return fn(r)
}

func (f *Frame) loc(obj *front.Object) (Loc, error) {
	l, ok := f.env.Find(obj)
	if !ok {
		return Loc{}, errors.New("no location for %v %v", obj.Kind, obj.Name)
	}

	return l, nil
}

// load moves a variable to the free register.
func (f *Frame) load(obj *front.Object) error {
	l, err := f.loc(obj)
	if err != nil {
		return err
	}

	f.a.Emit(mov(l.W), l.Operand(f.a), f.Free().W(l.W))

	return nil
}

// store saves the free register to a variable.
func (f *Frame) store(obj *front.Object) error {
	l, err := f.loc(obj)
	if err != nil {
		return err
	}

	f.a.Emit(mov(l.W), f.Free().W(l.W), l.Operand(f.a))

	return nil
}

// allocLocal pushes src as the initial value of a new local variable.
func (f *Frame) allocLocal(obj *front.Object, src string) {
	f.a.Emit("pushq", src)
	f.pushed += asm.QuadSize

	f.env = f.env.Extend(obj, FrameLoc(-f.pushed, obj.Type))
}

// resetTo drops locals declared after env was saved.
// The stack pointer is adjusted lazily.
func (f *Frame) resetTo(env *LocEnv) {
	for ; f.env != env && f.env != nil; f.env = f.env.Next() {
		f.pushed -= asm.QuadSize
		f.a.Adjust(-asm.QuadSize)
	}
}

func (f *Frame) insertAdjust(n int) {
	f.pushed += n
	f.a.Adjust(n)
}

// prepareCall saves live caller-saved registers and
// reserves the outgoing argument area.
func (f *Frame) prepareCall(nargs int) *CallFrame {
	env := f.env

	// Live values are in [b, free) counting from the most recent.
	b := max(f.paramBase, f.free-len(f.regs)+1)

	for r := f.free - 1; r >= b; r-- {
		if r%len(f.regs) < f.paramBase {
			continue
		}

		f.pushed += asm.QuadSize
		f.a.Emit("pushq", f.reg(r).R64())

		if r < f.freeBase {
			n := r - f.paramBase
			env = env.Extend(f.formals[n], FrameLoc(-f.pushed, f.formals[n].Type))
		}
	}

	cf := &CallFrame{
		Frame: Frame{
			a:      f.a,
			tr:     f.tr,
			env:    env,
			pushed: f.pushed,
		},
		nargs:  nargs,
		argTop: f.pushed,
	}

	cf.regs = append(cf.regs, asm.CalleeSaves...)
	cf.paramBase = len(cf.regs)
	cf.freeBase = cf.paramBase
	cf.free = cf.paramBase
	cf.regs = append(cf.regs, asm.Args...)
	cf.regs = append(cf.regs, asm.Results...)
	cf.regs = append(cf.regs, asm.CallerSaves...)

	cf.argBytes = max(0, nargs-len(asm.Args)) * asm.QuadSize
	cf.pad = f.a.AlignmentAdjust(f.pushed + cf.argBytes)
	cf.argBytes += cf.pad

	cf.insertAdjust(cf.argBytes)

	return cf
}

// saveArg takes the value in the free register as the next argument.
func (cf *CallFrame) saveArg() {
	if cf.added < len(asm.Args) {
		cf.free++
		cf.added++

		return
	}

	k := cf.added - len(asm.Args)
	off := -(cf.argTop + cf.argBytes) + k*asm.QuadSize

	cf.a.Emit("movq", cf.Free().R64(), asm.Indirect(off, asm.BasePointer))
	cf.added++
}

// call emits the call and releases the outgoing area.
func (cf *CallFrame) call(name string) error {
	if cf.added != cf.nargs {
		return errors.New("call %v: %d of %d arguments prepared", name, cf.added, cf.nargs)
	}

	if cf.spills != 0 {
		return errors.New("call %v: %d unbalanced spills", name, cf.spills)
	}

	cf.a.Emit("call", cf.a.Name(name))
	cf.insertAdjust(-cf.argBytes)

	return nil
}

// removeCall moves the result to the free register
// and restores registers saved by prepareCall.
func (f *Frame) removeCall(cf *CallFrame) {
	res := asm.Results[0]
	if f.Free() != res {
		f.a.Emit("movq", res.R64(), f.Free().R64())
	}

	b := max(f.paramBase, f.free-len(f.regs)+1)

	for r := b; r < f.free; r++ {
		if r%len(f.regs) < f.paramBase {
			continue
		}

		f.pushed -= asm.QuadSize
		f.a.Emit("popq", f.reg(r).R64())
	}
}
