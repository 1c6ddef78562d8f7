package tp

type (
	Type interface {
		String() string
	}

	Int struct{}

	Boolean struct{}

	Array struct {
		Elem Type
	}
)

func (x Int) String() string     { return "int" }
func (x Boolean) String() string { return "boolean" }
func (x Array) String() string   { return x.Elem.String() + "[]" }

// Equal compares types structurally.
func Equal(x, y Type) bool {
	switch x := x.(type) {
	case Int:
		_, ok := y.(Int)
		return ok
	case Boolean:
		_, ok := y.(Boolean)
		return ok
	case Array:
		y, ok := y.(Array)
		return ok && Equal(x.Elem, y.Elem)
	default:
		return false
	}
}

func IsArray(x Type) bool {
	_, ok := x.(Array)
	return ok
}

func ArrayOf(elem Type, dims int) Type {
	for i := 0; i < dims; i++ {
		elem = Array{Elem: elem}
	}

	return elem
}
