package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/stevie/compiler"
	"github.com/slowlang/stevie/compiler/asm"
	"github.com/slowlang/stevie/compiler/format"
	"github.com/slowlang/stevie/compiler/parse"
)

const platformEnv = "STEVIE_PLATFORM"

func main() {
	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse and print formatted source",
		Action:      parseAct,
		Args:        cli.Args{},
	}

	checkCmd := &cli.Command{
		Name:        "check",
		Description: "type check source files",
		Action:      checkAct,
		Args:        cli.Args{},
	}

	asmCmd := &cli.Command{
		Name:        "asm",
		Description: "compile to x86-64 assembly",
		Action:      compileAct(compiler.Native),
		Args:        cli.Args{},
	}

	ssaCmd := &cli.Command{
		Name:        "ssa",
		Description: "compile to LLVM text",
		Action:      compileAct(compiler.SSA),
		Args:        cli.Args{},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile and execute with the emulator",
		Action:      runAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("target,t", "ssa", "backend to run: asm or ssa"),
		},
	}

	runtimeCmd := &cli.Command{
		Name:        "runtime",
		Description: "print the C runtime source",
		Action:      runtimeAct,
	}

	app := &cli.Command{
		Name:        "stevie",
		Description: "stevie compiles a small imperative language to x86-64 assembly or LLVM text",
		Flags: []*cli.Flag{
			cli.NewFlag("platform", "", "target platform: linux or macos (default $"+platformEnv+" or linux)"),
			cli.NewFlag("output,o", "", "output file (default stdout)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			parseCmd,
			checkCmd,
			asmCmd,
			ssaCmd,
			runCmd,
			runtimeCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func parseAct(c *cli.Command) (err error) {
	ctx, tr := setup(c)
	defer tr.Finish("err", &err)

	var b []byte

	for _, a := range c.Args {
		f, err := parse.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		b, err = format.Format(ctx, b, f)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}
	}

	return output(c, b)
}

func checkAct(c *cli.Command) (err error) {
	ctx, tr := setup(c)
	defer tr.Finish("err", &err)

	var b []byte

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		_, info, err := compiler.Check(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "check")
		}

		tr.Printw("checked", "file", a, "funcs", len(info.Funcs), "globals", len(info.Globals))

		b = fmt.Appendf(b, "%v: ok\n", a)
	}

	return output(c, b)
}

func compileAct(target compiler.Target) func(*cli.Command) error {
	return func(c *cli.Command) (err error) {
		ctx, tr := setup(c)
		defer tr.Finish("err", &err)

		opts, err := options(c, target)
		if err != nil {
			return err
		}

		var b []byte

		for _, a := range c.Args {
			obj, err := compiler.CompileFile(ctx, a, opts)
			if err != nil {
				return errors.Wrap(err, "compile %v", a)
			}

			b = append(b, obj...)
		}

		return output(c, b)
	}
}

func runAct(c *cli.Command) (err error) {
	ctx, tr := setup(c)
	defer tr.Finish("err", &err)

	target, err := compiler.ParseTarget(c.String("target"))
	if err != nil {
		return err
	}

	opts, err := options(c, target)
	if err != nil {
		return err
	}

	return runFiles(ctx, opts, c.Args, func(b []byte) error {
		return output(c, b)
	})
}

// runFiles runs each program in turn and writes what they printed.
// Output is written even if a program fails at run time.
func runFiles(ctx context.Context, opts compiler.Options, names []string, write func([]byte) error) error {
	var b []byte

	for _, a := range names {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		out, err := compiler.Run(ctx, a, text, opts)

		for _, x := range out {
			b = fmt.Appendf(b, "%d\n", x)
		}

		if err != nil {
			if werr := write(b); werr != nil {
				return errors.Wrap(err, "run %v (write output: %v)", a, werr)
			}

			return errors.Wrap(err, "run %v", a)
		}
	}

	return write(b)
}

func runtimeAct(c *cli.Command) (err error) {
	return output(c, compiler.RuntimeSource)
}

func setup(c *cli.Command) (context.Context, tlog.Span) {
	tlog.SetVerbosity(c.String("verbosity"))

	tr := tlog.Start("stevie", "cmd", c.Name, "run_id", ulid.Make().String())

	return tlog.ContextWithSpan(context.Background(), tr), tr
}

func options(c *cli.Command, target compiler.Target) (compiler.Options, error) {
	name := c.String("platform")
	if name == "" {
		name = os.Getenv(platformEnv)
	}

	if name == "" {
		name = "linux"
	}

	p, ok := asm.ParsePlatform(name)
	if !ok {
		return compiler.Options{}, errors.New("unknown platform: %q", name)
	}

	return compiler.Options{Target: target, Platform: p}, nil
}

func output(c *cli.Command, b []byte) error {
	name := c.String("output")
	if name == "" || name == "-" {
		_, err := os.Stdout.Write(b)
		return err
	}

	return os.WriteFile(name, b, 0o644)
}
