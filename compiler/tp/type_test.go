package tp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	for _, tc := range []struct {
		x, y Type
		eq   bool
	}{
		{Int{}, Int{}, true},
		{Boolean{}, Boolean{}, true},
		{Int{}, Boolean{}, false},
		{Array{Elem: Int{}}, Array{Elem: Int{}}, true},
		{Array{Elem: Int{}}, Array{Elem: Boolean{}}, false},
		{Array{Elem: Int{}}, Int{}, false},
		{ArrayOf(Int{}, 2), Array{Elem: Array{Elem: Int{}}}, true},
		{nil, Int{}, false},
	} {
		assert.Equal(t, tc.eq, Equal(tc.x, tc.y), "%v == %v", tc.x, tc.y)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "int", Int{}.String())
	assert.Equal(t, "boolean[][]", ArrayOf(Boolean{}, 2).String())
}
