package back

import "fmt"

type (
	// UnsupportedError is returned for a well-typed construct
	// the native backend doesn't implement.
	UnsupportedError struct {
		Construct string
		Pos       int
	}
)

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("native backend: unsupported %s", e.Construct)
}

func (e *UnsupportedError) Position() int { return e.Pos }

func unsupported(what string, pos int) error {
	return &UnsupportedError{Construct: what, Pos: pos}
}
