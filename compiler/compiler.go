package compiler

import (
	"context"
	_ "embed"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/ast"
	"github.com/slowlang/stevie/compiler/back"
	"github.com/slowlang/stevie/compiler/front"
	"github.com/slowlang/stevie/compiler/ir"
	"github.com/slowlang/stevie/compiler/parse"
	"github.com/slowlang/stevie/compiler/ssagen"
)

type (
	Target int

	Options struct {
		Target   Target
		Platform asm.Platform
	}

	positioned interface {
		Position() int
	}
)

const (
	Native Target = iota
	SSA
)

// RuntimeSource is the C runtime the output links against.
//
//go:embed runtime/runtime.c
var RuntimeSource []byte

func CompileFile(ctx context.Context, name string, opts Options) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, opts)
}

// Compile translates source text into assembly or SSA text.
// No output is returned on error.
func Compile(ctx context.Context, name string, text []byte, opts Options) (obj []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name, "target", opts.Target)
	defer tr.Finish("err", &err)

	f, info, err := Check(ctx, name, text)
	if err != nil {
		return nil, err
	}

	switch opts.Target {
	case Native:
		obj, err = back.Compile(ctx, f, info, opts.Platform)
	case SSA:
		var m *ir.Module

		m, err = ssagen.Compile(ctx, f, info)
		if err == nil {
			obj = m.AppendTo(nil)
		}
	default:
		return nil, errors.New("unsupported target: %v", opts.Target)
	}

	if err != nil {
		return nil, withPosition(name, text, err)
	}

	return obj, nil
}

// CompileSSA returns the SSA module itself.
func CompileSSA(ctx context.Context, name string, text []byte) (m *ir.Module, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile ssa", "name", name)
	defer tr.Finish("err", &err)

	f, info, err := Check(ctx, name, text)
	if err != nil {
		return nil, err
	}

	m, err = ssagen.Compile(ctx, f, info)
	if err != nil {
		return nil, withPosition(name, text, err)
	}

	return m, nil
}

// Check parses and type checks source text.
func Check(ctx context.Context, name string, text []byte) (f *ast.File, info *front.Info, err error) {
	f, err = parse.Parse(ctx, name, text)
	if err != nil {
		return nil, nil, withPosition(name, text, errors.Wrap(err, "parse"))
	}

	info, err = front.Check(ctx, f)
	if err != nil {
		return nil, nil, withPosition(name, text, err)
	}

	return f, info, nil
}

// IsRejected reports whether the program is not valid.
func IsRejected(err error) bool {
	var ferr *front.Error
	var perr parse.Error
	var uerr parse.UnexpectedError

	return errors.As(err, &ferr) || errors.As(err, &perr) || errors.As(err, &uerr)
}

// IsUnsupported reports whether the program is valid,
// but uses a construct the native backend does not implement.
func IsUnsupported(err error) bool {
	var uerr *back.UnsupportedError

	return errors.As(err, &uerr)
}

func withPosition(name string, text []byte, err error) error {
	var p positioned

	if !errors.As(err, &p) || p.Position() < 0 {
		return errors.Wrap(err, "%v", name)
	}

	line, col := parse.LineCol(text, p.Position())

	return errors.Wrap(err, "%v:%d:%d", name, line, col)
}

func (t Target) String() string {
	switch t {
	case Native:
		return "asm"
	case SSA:
		return "ssa"
	default:
		return "target?"
	}
}

func ParseTarget(s string) (Target, error) {
	switch s {
	case "asm", "native":
		return Native, nil
	case "ssa", "llvm":
		return SSA, nil
	default:
		return 0, errors.New("unknown target: %q", s)
	}
}
