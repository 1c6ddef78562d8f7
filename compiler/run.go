package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler/emu"
)

// Run compiles the program and executes it with the emulator for the target.
// It returns the printed values, including the ones printed before a runtime error.
func Run(ctx context.Context, name string, text []byte, opts Options) (out []int32, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "run", "name", name, "target", opts.Target)
	defer tr.Finish("err", &err)

	switch opts.Target {
	case Native:
		obj, err := Compile(ctx, name, text, opts)
		if err != nil {
			return nil, err
		}

		m := emu.NewMachine(opts.Platform)

		err = m.Load(obj)
		if err != nil {
			return nil, errors.Wrap(err, "load")
		}

		err = m.Run(ctx)

		return m.Out, err
	case SSA:
		mod, err := CompileSSA(ctx, name, text)
		if err != nil {
			return nil, err
		}

		in := emu.NewInterp(mod)

		err = in.Run(ctx)

		return in.Out, err
	default:
		return nil, errors.New("unsupported target: %v", opts.Target)
	}
}
