package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/stevie/compiler"
)

func writeProgram(t *testing.T, src string) string {
	t.Helper()

	name := filepath.Join(t.TempDir(), "test.stv")

	err := os.WriteFile(name, []byte(src), 0o644)
	require.NoError(t, err)

	return name
}

func TestRunFiles(t *testing.T) {
	name := writeProgram(t, `void main() { print 1; print 2; }`)

	var got []byte

	err := runFiles(context.Background(), compiler.Options{Target: compiler.SSA}, []string{name}, func(b []byte) error {
		got = b
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", string(got))
}

func TestRunFilesRuntimeError(t *testing.T) {
	name := writeProgram(t, `void main() { int[] a = new int[1]; print 1; print a[1]; }`)

	var got []byte

	err := runFiles(context.Background(), compiler.Options{Target: compiler.SSA}, []string{name}, func(b []byte) error {
		got = b
		return nil
	})
	assert.ErrorContains(t, err, "run "+name)
	assert.Equal(t, "1\n", string(got))

	werr := errors.New("disk full")

	err = runFiles(context.Background(), compiler.Options{Target: compiler.SSA}, []string{name}, func(b []byte) error {
		return werr
	})
	assert.ErrorContains(t, err, "run "+name)
	assert.ErrorContains(t, err, "disk full")
}
