package emu

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/asm"
)

type (
	// Machine runs the subset of AT&T x86-64 assembly the native backend emits.
	//
	// It also checks the calling convention:
	// the stack pointer equals the base pointer at every epilogue,
	// callee-saved registers survive calls,
	// and the stack is 16 byte aligned at calls on Align16 platforms.
	Machine struct {
		Platform asm.Platform

		MaxSteps int

		// Out collects values passed to print.
		Out []int32

		regs [asm.NumRegs]uint64

		less, eq bool

		mem  []byte
		data uint64 // next free data address

		code   []instr
		labels map[string]int
		syms   map[string]uint64

		calls []callRec
	}

	instr struct {
		op   string
		args []operand
		line int
	}

	operandKind int

	operand struct {
		kind operandKind
		reg  asm.Reg
		w    int
		imm  int64
		sym  string
	}

	callRec struct {
		ret   uint64
		saved [5]uint64
		name  string
	}
)

const (
	opReg operandKind = iota
	opImm
	opMem // imm(reg)
	opSym // sym(%rip)
	opLabel
)

const (
	memBase = 0x10000
	memSize = 1 << 20

	// exitAddr is a return address which ends Call.
	exitAddr = 0

	poison = 0xdeadbeefdeadbeef
)

func NewMachine(p asm.Platform) *Machine {
	return &Machine{
		Platform: p,
		MaxSteps: 10_000_000,
		mem:      make([]byte, memSize),
		data:     memBase + 64,
		labels:   map[string]int{},
		syms:     map[string]uint64{},
	}
}

// Load parses assembly text.
func (m *Machine) Load(text []byte) (err error) {
	data := false
	var pending []string

	for n, line := range strings.Split(string(text), "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") {
			name := line[:len(line)-1]

			if data {
				pending = append(pending, name)
			} else {
				m.labels[name] = len(m.code)
			}

			continue
		}

		op, rest, _ := strings.Cut(line, "\t")
		if sp := strings.IndexByte(op, ' '); sp >= 0 {
			op, rest = op[:sp], op[sp+1:]+rest
		}

		switch op {
		case ".data":
			data = true
			continue
		case ".text":
			data = false
			continue
		case ".long", ".quad":
			size := uint64(4)
			if op == ".quad" {
				size = 8
			}

			m.data = (m.data + size - 1) &^ (size - 1)

			for _, name := range pending {
				m.syms[name] = m.data
			}

			pending = pending[:0]
			m.data += size

			continue
		}

		if strings.HasPrefix(op, ".") {
			continue
		}

		in := instr{op: op, line: n + 1}

		for _, a := range splitArgs(rest) {
			x, err := parseOperand(a)
			if err != nil {
				return errors.Wrap(err, "line %d", n+1)
			}

			in.args = append(in.args, x)
		}

		m.code = append(m.code, in)
	}

	return nil
}

func splitArgs(s string) (r []string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	depth := 0
	st := 0

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				r = append(r, strings.TrimSpace(s[st:i]))
				st = i + 1
			}
		}
	}

	return append(r, strings.TrimSpace(s[st:]))
}

func parseOperand(s string) (operand, error) {
	switch {
	case strings.HasPrefix(s, "%"):
		r, w, ok := asm.ParseReg(s[1:])
		if !ok {
			return operand{}, errors.New("bad register: %q", s)
		}

		return operand{kind: opReg, reg: r, w: w}, nil
	case strings.HasPrefix(s, "$"):
		v, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return operand{}, errors.Wrap(err, "immediate")
		}

		return operand{kind: opImm, imm: v}, nil
	case strings.HasSuffix(s, "(%rip)"):
		return operand{kind: opSym, sym: strings.TrimSuffix(s, "(%rip)")}, nil
	case strings.HasSuffix(s, ")"):
		i := strings.IndexByte(s, '(')
		if i < 0 {
			return operand{}, errors.New("bad memory operand: %q", s)
		}

		var off int64

		if i > 0 {
			var err error

			off, err = strconv.ParseInt(s[:i], 10, 64)
			if err != nil {
				return operand{}, errors.Wrap(err, "offset")
			}
		}

		r, w, ok := asm.ParseReg(strings.TrimPrefix(s[i+1:len(s)-1], "%"))
		if !ok || w != 8 {
			return operand{}, errors.New("bad base register: %q", s)
		}

		return operand{kind: opMem, reg: r, imm: off}, nil
	default:
		return operand{kind: opLabel, sym: s}, nil
	}
}

// Run calls initGlobals and then main.
func (m *Machine) Run(ctx context.Context) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "emu: run amd64", "platform", m.Platform)
	defer tr.Finish("err", &err)

	for _, fn := range []string{"initGlobals", "main"} {
		err = m.Call(ctx, fn)
		if err != nil {
			return errors.Wrap(err, "%v", fn)
		}
	}

	return nil
}

// Call runs a function until it returns.
func (m *Machine) Call(ctx context.Context, name string, args ...int64) error {
	sym := m.name(name)

	pc, ok := m.labels[sym]
	if !ok {
		return errors.New("no function %v", sym)
	}

	if m.regs[asm.RSP] == 0 {
		m.regs[asm.RSP] = memBase + memSize
		m.regs[asm.RBP] = m.regs[asm.RSP]
	}

	for i, a := range args {
		m.regs[asm.Args[i]] = uint64(a)
	}

	err := m.push(exitAddr)
	if err != nil {
		return err
	}

	m.enter(sym, exitAddr)

	for steps := 0; ; steps++ {
		if steps >= m.MaxSteps {
			return errors.New("step limit exceeded")
		}

		if pc < 0 || pc >= len(m.code) {
			return errors.New("pc out of code: %d", pc)
		}

		in := &m.code[pc]

		// Code addresses are instruction indexes plus one, so zero is never a valid one.
		next, err := m.exec(in, pc+2)
		if err != nil {
			return errors.Wrap(err, "line %d: %v", in.line, in.op)
		}

		if next == exitAddr {
			return nil
		}

		pc = next - 1
	}
}

// Result is the value of the last call as a 32 bit integer.
func (m *Machine) Result() int32 { return int32(m.regs[asm.RAX]) }

func (m *Machine) name(n string) string {
	if m.Platform&asm.Underscores != 0 {
		return "_X" + n
	}

	return "X" + n
}

func (m *Machine) enter(name string, ret uint64) {
	c := callRec{ret: ret, name: name}

	for i, r := range asm.CalleeSaves {
		c.saved[i] = m.regs[r]
	}

	m.calls = append(m.calls, c)
}

// exec executes one instruction and returns the address of the next one.
// exitAddr means the outermost call returned.
func (m *Machine) exec(in *instr, next int) (int, error) {
	arg := func(i int) *operand { return &in.args[i] }

	want := func(n int) error {
		if len(in.args) != n {
			return errors.New("want %d operands, got %d", n, len(in.args))
		}

		return nil
	}

	switch in.op {
	case "movl", "movq", "addl", "subl", "imull", "addq", "subq", "cmpl", "xchgl":
		if err := want(2); err != nil {
			return 0, err
		}

		w := 4
		if strings.HasSuffix(in.op, "q") {
			w = 8
		}

		src, err := m.read(arg(0), w)
		if err != nil {
			return 0, err
		}

		if in.op == "movq" && arg(0).kind == opReg && arg(0).reg == asm.RBP && arg(1).kind == opReg && arg(1).reg == asm.RSP {
			if m.regs[asm.RSP] != m.regs[asm.RBP] {
				return 0, errors.New("epilogue: rsp is %d bytes below rbp", int64(m.regs[asm.RBP]-m.regs[asm.RSP]))
			}
		}

		switch in.op {
		case "movl", "movq":
			return next, m.write(arg(1), w, src)
		case "xchgl":
			dst, err := m.read(arg(1), w)
			if err != nil {
				return 0, err
			}

			if err = m.write(arg(1), w, src); err != nil {
				return 0, err
			}

			return next, m.write(arg(0), w, dst)
		}

		dst, err := m.read(arg(1), w)
		if err != nil {
			return 0, err
		}

		switch in.op {
		case "cmpl":
			m.less = int32(dst) < int32(src)
			m.eq = int32(dst) == int32(src)

			return next, nil
		case "addl", "addq":
			dst += src
		case "subl", "subq":
			dst -= src
		case "imull":
			dst = uint64(int32(dst) * int32(src))
		}

		return next, m.write(arg(1), w, dst)
	case "pushq":
		if err := want(1); err != nil {
			return 0, err
		}

		v, err := m.read(arg(0), 8)
		if err != nil {
			return 0, err
		}

		return next, m.push(v)
	case "popq":
		if err := want(1); err != nil {
			return 0, err
		}

		v, err := m.pop()
		if err != nil {
			return 0, err
		}

		return next, m.write(arg(0), 8, v)
	case "jmp", "je", "jz", "jne", "jnz", "jl", "jnge", "jge", "jnl", "jg", "jle":
		if err := want(1); err != nil {
			return 0, err
		}

		var taken bool

		switch in.op {
		case "jmp":
			taken = true
		case "je", "jz":
			taken = m.eq
		case "jne", "jnz":
			taken = !m.eq
		case "jl", "jnge":
			taken = m.less
		case "jge", "jnl":
			taken = !m.less
		case "jg":
			taken = !m.less && !m.eq
		case "jle":
			taken = m.less || m.eq
		}

		if !taken {
			return next, nil
		}

		pc, ok := m.labels[arg(0).sym]
		if !ok {
			return 0, errors.New("undefined label %v", arg(0).sym)
		}

		return pc + 1, nil
	case "call":
		if err := want(1); err != nil {
			return 0, err
		}

		if m.Platform&asm.Align16 != 0 && m.regs[asm.RSP]%16 != 0 {
			return 0, errors.New("call %v: misaligned stack", arg(0).sym)
		}

		sym := arg(0).sym

		if sym == m.name("print") {
			m.Out = append(m.Out, int32(m.regs[asm.RDI]))
			m.clobber()

			return next, nil
		}

		pc, ok := m.labels[sym]
		if !ok {
			return 0, errors.New("undefined function %v", sym)
		}

		if err := m.push(uint64(next)); err != nil {
			return 0, err
		}

		m.enter(sym, uint64(next))

		return pc + 1, nil
	case "ret":
		ret, err := m.pop()
		if err != nil {
			return 0, err
		}

		if len(m.calls) == 0 {
			return 0, errors.New("ret without call")
		}

		c := m.calls[len(m.calls)-1]
		m.calls = m.calls[:len(m.calls)-1]

		if c.ret != ret {
			return 0, errors.New("%v: return address mismatch", c.name)
		}

		for i, r := range asm.CalleeSaves {
			if m.regs[r] != c.saved[i] {
				return 0, errors.New("%v: callee-saved register %v not preserved", c.name, r)
			}
		}

		m.clobber()

		return int(ret), nil
	default:
		return 0, errors.New("unsupported instruction")
	}
}

// clobber trashes caller-saved registers except the result.
func (m *Machine) clobber() {
	for _, r := range asm.Args {
		m.regs[r] = poison
	}

	for _, r := range asm.CallerSaves {
		m.regs[r] = poison
	}
}

func (m *Machine) addr(x *operand) (uint64, error) {
	switch x.kind {
	case opMem:
		return m.regs[x.reg] + uint64(x.imm), nil
	case opSym:
		a, ok := m.syms[x.sym]
		if !ok {
			return 0, errors.New("undefined symbol %v", x.sym)
		}

		return a, nil
	default:
		return 0, errors.New("not a memory operand")
	}
}

func (m *Machine) read(x *operand, w int) (uint64, error) {
	switch x.kind {
	case opReg:
		v := m.regs[x.reg]
		if w == 4 || x.w == 4 {
			v = uint64(uint32(v))
		}

		return v, nil
	case opImm:
		if w == 4 {
			return uint64(uint32(x.imm)), nil
		}

		return uint64(x.imm), nil
	}

	a, err := m.addr(x)
	if err != nil {
		return 0, err
	}

	b, err := m.slice(a, w)
	if err != nil {
		return 0, err
	}

	if w == 4 {
		return uint64(binary.LittleEndian.Uint32(b)), nil
	}

	return binary.LittleEndian.Uint64(b), nil
}

func (m *Machine) write(x *operand, w int, v uint64) error {
	switch x.kind {
	case opReg:
		if w == 4 {
			v = uint64(uint32(v))
		}

		m.regs[x.reg] = v

		return nil
	case opImm, opLabel:
		return errors.New("bad destination")
	}

	a, err := m.addr(x)
	if err != nil {
		return err
	}

	b, err := m.slice(a, w)
	if err != nil {
		return err
	}

	if w == 4 {
		binary.LittleEndian.PutUint32(b, uint32(v))
	} else {
		binary.LittleEndian.PutUint64(b, v)
	}

	return nil
}

func (m *Machine) slice(a uint64, w int) ([]byte, error) {
	if a < memBase || a+uint64(w) > memBase+memSize {
		return nil, errors.New("memory access out of range: %#x", a)
	}

	off := a - memBase

	return m.mem[off : off+uint64(w)], nil
}

func (m *Machine) push(v uint64) error {
	m.regs[asm.RSP] -= 8

	b, err := m.slice(m.regs[asm.RSP], 8)
	if err != nil {
		return errors.New("stack overflow")
	}

	binary.LittleEndian.PutUint64(b, v)

	return nil
}

func (m *Machine) pop() (uint64, error) {
	b, err := m.slice(m.regs[asm.RSP], 8)
	if err != nil {
		return 0, errors.New("stack underflow")
	}

	m.regs[asm.RSP] += 8

	return binary.LittleEndian.Uint64(b), nil
}
