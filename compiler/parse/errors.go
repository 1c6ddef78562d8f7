package parse

import (
	"fmt"
	"strings"
)

type (
	UnexpectedError struct {
		Pos   int
		Token Token
		Want  []Token
	}

	Error struct {
		Pos int
		Msg string
	}
)

func NewUnexpected(pos int, got Token, want ...Token) error {
	return UnexpectedError{
		Pos:   pos,
		Token: got,
		Want:  want,
	}
}

func (e UnexpectedError) Error() string {
	l := make([]string, len(e.Want))

	for i := range e.Want {
		l[i] = describe(e.Want[i])
	}

	return fmt.Sprintf("unexpected %v, want %v", describe(e.Token), strings.Join(l, " or "))
}

func (e UnexpectedError) Position() int { return e.Pos }

func (e Error) Error() string { return e.Msg }

func (e Error) Position() int { return e.Pos }

// LineCol converts a byte offset into 1-based line and column.
func LineCol(text []byte, pos int) (line, col int) {
	line, col = 1, 1

	for i := 0; i < pos && i < len(text); i++ {
		if text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	return line, col
}

func describe(tk Token) string {
	switch tk := tk.(type) {
	case nil:
		return "end of file"
	case Char:
		return fmt.Sprintf("%q", string(rune(tk)))
	case Op:
		return fmt.Sprintf("%q", string(tk))
	case Keyword:
		return fmt.Sprintf("keyword %q", string(tk))
	case Ident:
		if tk == "" {
			return "identifier"
		}

		return fmt.Sprintf("identifier %q", string(tk))
	case Number:
		if tk == "" {
			return "number"
		}

		return "number " + string(tk)
	default:
		return fmt.Sprintf("%v", tk)
	}
}
