package ir

import (
	"strconv"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/stevie/compiler/set"
)

type (
	Label int

	// Block is a basic block. Its code may be set after the block
	// is referenced from other blocks, but only once.
	Block struct {
		Label Label
		Code  Code

		sets  int
		setAt loc.PC
	}

	Function struct {
		Name   string
		Ret    Type
		Params []Reg

		Entry *Block

		regs   int
		labels int

		slots   map[string]int
		allocas []Slot

		order []*Block
	}

	blocks struct {
		heap.Heap[*Block]
	}
)

func NewFunction(name string, ret Type, params ...Type) *Function {
	f := &Function{
		Name:  name,
		Ret:   ret,
		slots: make(map[string]int),
	}

	for _, t := range params {
		f.Params = append(f.Params, f.NewReg(t))
	}

	f.Entry = f.NewBlock()

	return f
}

func (f *Function) NewBlock() *Block {
	b := &Block{Label: Label(f.labels)}
	f.labels++

	return b
}

func (f *Function) NewReg(t Type) Reg {
	r := Reg{N: f.regs, T: t}
	f.regs++

	return r
}

// NewSlot allocates a stack slot in the entry block.
// Shadowed names get a numeric suffix.
func (f *Function) NewSlot(name string, elem Type) Slot {
	n := f.slots[name]
	f.slots[name] = n + 1

	s := Slot{Name: name + ".addr", Elem: elem}
	if n != 0 {
		s.Name += strconv.Itoa(n)
	}

	f.allocas = append(f.allocas, s)

	return s
}

// SetEntry prepends slot allocations to body and makes it the entry code.
// It's called once all the slots are known.
func (f *Function) SetEntry(body Code) {
	for i := len(f.allocas) - 1; i >= 0; i-- {
		body = &Alloca{Slot: f.allocas[i], Next: body}
	}

	f.Entry.set(body, loc.Caller(1))
}

// Blocks returns reachable blocks in label order after Finalize.
func (f *Function) Blocks() []*Block { return f.order }

// Finalize walks the blocks reachable from the entry.
// Every one of them must have its code set exactly once
// and every register must be defined once.
func (f *Function) Finalize() error {
	visited := set.MakeBitmap(f.labels)
	defs := set.MakeBitmap(f.regs)

	for _, r := range f.Params {
		defs.Set(r.N)
	}

	q := blocks{Heap: heap.Heap[*Block]{Less: blocksLess}}

	visited.Set(int(f.Entry.Label))
	q.Push(f.Entry)

	f.order = f.order[:0]

	for q.Len() != 0 {
		b := q.Pop()

		switch {
		case b.sets == 0:
			return errors.New("%v: block %v: no code", f.Name, b.Label)
		case b.sets > 1:
			return errors.New("%v: block %v: code set %d times, last at %v", f.Name, b.Label, b.sets, b.setAt)
		}

		for c := b.Code; c != nil; c = Next(c) {
			if r, ok := Def(c); ok {
				if defs.IsSet(r.N) {
					return errors.New("%v: block %v: register %v defined twice", f.Name, b.Label, r)
				}

				defs.Set(r.N)
			}

			for _, s := range Succs(c) {
				if s == nil {
					return errors.New("%v: block %v: jump to nil block", f.Name, b.Label)
				}

				if visited.IsSet(int(s.Label)) {
					continue
				}

				visited.Set(int(s.Label))
				q.Push(s)
			}
		}

		f.order = append(f.order, b)
	}

	return nil
}

// Set sets block code. Setting it twice is reported by Finalize.
func (b *Block) Set(c Code) {
	b.set(c, loc.Caller(1))
}

func (b *Block) set(c Code, pc loc.PC) {
	b.Code = c
	b.sets++
	b.setAt = pc
}

func (b *Block) IsSet() bool { return b.sets != 0 }

func (b *Block) TlogAppend(buf []byte) []byte {
	var e tlwire.LowEncoder

	return e.AppendString(buf, b.Label.String())
}

func (l Label) String() string { return "L" + strconv.Itoa(int(l)) }

func blocksLess(d []*Block, i, j int) bool {
	return d[i].Label < d[j].Label
}
