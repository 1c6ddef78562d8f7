package front

import (
	"fmt"

	"tlog.app/go/loc"

	"github.com/slowlang/stevie/compiler/ast"
)

type (
	// Error is a static error: the program is rejected.
	Error struct {
		Pos int
		Msg string

		// PC is where the checker raised it.
		PC loc.PC
	}
)

func errorf(n ast.Node, format string, args ...any) error {
	pos := -1
	if n != nil {
		pos = n.Position()
	}

	return &Error{
		Pos: pos,
		Msg: fmt.Sprintf(format, args...),
		PC:  loc.Caller(1),
	}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Position() int { return e.Pos }
