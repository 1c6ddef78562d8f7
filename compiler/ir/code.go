package ir

type (
	// Code is an instruction list ending in a terminator.
	// Instructions link to the rest of the list through Next.
	Code interface {
		code()
	}

	// Instructions.

	BinOp struct {
		Dst  Reg
		Op   Op
		X, Y Value
		Next Code
	}

	Icmp struct {
		Dst  Reg
		Cond Cond
		X, Y Value
		Next Code
	}

	Load struct {
		Dst  Reg
		Ptr  Value
		Next Code
	}

	Store struct {
		Val  Value
		Ptr  Value
		Next Code
	}

	Alloca struct {
		Slot Slot
		Next Code
	}

	// Call has Dst.T == Void for void functions.
	Call struct {
		Dst  Reg
		Func string
		Args []Value
		Next Code
	}

	// Bitcast converts X to Dst.T.
	Bitcast struct {
		Dst  Reg
		X    Value
		Next Code
	}

	// GEP computes an element address with constant or register indexes.
	GEP struct {
		Dst  Reg
		Ptr  Value
		Idx  []Value
		Next Code
	}

	Phi struct {
		Dst   Reg
		Edges []PhiEdge
		Next  Code
	}

	PhiEdge struct {
		X    Value
		From *Block
	}

	// Terminators.

	Goto struct {
		To *Block
	}

	CondBr struct {
		Cond       Value
		Then, Else *Block
	}

	Switch struct {
		X       Value
		Default *Block
		Cases   []SwitchCase
	}

	SwitchCase struct {
		Num int32
		To  *Block
	}

	// Ret returns X, or nothing if X is nil.
	Ret struct {
		X Value
	}

	Unreachable struct{}

	Op   string
	Cond string
)

const (
	Add  Op = "add"
	Sub  Op = "sub"
	Mul  Op = "mul"
	SDiv Op = "sdiv"
)

const (
	EQ  Cond = "eq"
	SLT Cond = "slt"
	ULT Cond = "ult"
)

func (*BinOp) code()       {}
func (*Icmp) code()        {}
func (*Load) code()        {}
func (*Store) code()       {}
func (*Alloca) code()      {}
func (*Call) code()        {}
func (*Bitcast) code()     {}
func (*GEP) code()         {}
func (*Phi) code()         {}
func (*Goto) code()        {}
func (*CondBr) code()      {}
func (*Switch) code()      {}
func (*Ret) code()         {}
func (*Unreachable) code() {}

// Next returns the code following c, or nil if c is a terminator.
func Next(c Code) Code {
	switch c := c.(type) {
	case *BinOp:
		return c.Next
	case *Icmp:
		return c.Next
	case *Load:
		return c.Next
	case *Store:
		return c.Next
	case *Alloca:
		return c.Next
	case *Call:
		return c.Next
	case *Bitcast:
		return c.Next
	case *GEP:
		return c.Next
	case *Phi:
		return c.Next
	default:
		return nil
	}
}

// Def returns the register c defines.
func Def(c Code) (Reg, bool) {
	switch c := c.(type) {
	case *BinOp:
		return c.Dst, true
	case *Icmp:
		return c.Dst, true
	case *Load:
		return c.Dst, true
	case *Call:
		if _, ok := c.Dst.T.(Void); ok {
			return Reg{}, false
		}

		return c.Dst, true
	case *Bitcast:
		return c.Dst, true
	case *GEP:
		return c.Dst, true
	case *Phi:
		return c.Dst, true
	default:
		return Reg{}, false
	}
}

// Succs returns the blocks a terminator may jump to.
func Succs(c Code) []*Block {
	switch c := c.(type) {
	case *Goto:
		return []*Block{c.To}
	case *CondBr:
		return []*Block{c.Then, c.Else}
	case *Switch:
		l := make([]*Block, 0, len(c.Cases)+1)
		l = append(l, c.Default)

		for _, cs := range c.Cases {
			l = append(l, cs.To)
		}

		return l
	default:
		return nil
	}
}

// Terminator returns the last element of the list.
func Terminator(c Code) Code {
	for {
		n := Next(c)
		if n == nil {
			return c
		}

		c = n
	}
}

// IsBareTerminator reports whether c is a single instruction
// which can be shared between several predecessors.
func IsBareTerminator(c Code) bool {
	switch c.(type) {
	case *Goto, *Ret, *Unreachable:
		return true
	default:
		return false
	}
}
