package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bitmap is a growable set of small non-negative ints.
	// Labels and register numbers are dense.
	Bitmap struct {
		w []uint64
	}
)

// MakeBitmap makes a set preallocated for ints in [0, n).
func MakeBitmap(n int) Bitmap {
	return Bitmap{w: make([]uint64, (n+63)/64)}
}

func (s *Bitmap) Set(i int) {
	w, bit := split(i)

	for w >= len(s.w) {
		s.w = append(s.w, 0)
	}

	s.w[w] |= bit
}

func (s *Bitmap) IsSet(i int) bool {
	w, bit := split(i)

	return w < len(s.w) && s.w[w]&bit != 0
}

// Range calls f for each element in increasing order until f returns false.
func (s *Bitmap) Range(f func(i int) bool) {
	for w, x := range s.w {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(w*64 + j) {
				return
			}
		}
	}
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)
		return true
	})

	return e.AppendBreak(b)
}

func split(i int) (int, uint64) {
	if i < 0 {
		panic("negative set element")
	}

	return i / 64, 1 << uint(i%64)
}
