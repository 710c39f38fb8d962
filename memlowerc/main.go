// memlowerc lowers the bulk memory intrinsics
// of a YAML module description into loops.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/eaburns/memlower/alias"
	"github.com/eaburns/memlower/backend/llvm"
	"github.com/eaburns/memlower/flowgraph"
	"github.com/eaburns/memlower/lower"
	"github.com/eaburns/memlower/memfile"
	"github.com/eaburns/memlower/target"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

type rootOptions struct {
	Verbose bool
	NoColor bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "memlowerc",
		Short: "Lower bulk memory intrinsics into loops",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.NoColor {
				color.NoColor = true
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log each expansion")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	cmd.AddCommand(newLowerCommand(opts))
	return cmd
}

type lowerOptions struct {
	*rootOptions
	InferTypes bool
	FullUnroll bool
	Target     string
	WideBytes  int
	Alias      string
	Optimize   bool
	Format     string
	Triple     string
	Output     string
}

func newLowerCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &lowerOptions{rootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "lower <file.yaml>",
		Short: "Expand every memcpy, memmove, and memset in a module",
		Long: `Lower reads a YAML module description, expands its bulk memory
intrinsics into explicit load/store loops, and writes the result
as flowgraph text or LLVM IR.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&opts.InferTypes, "infer-types", false, "copy with the pointee type of the operands when suitable")
	cmd.Flags().BoolVar(&opts.FullUnroll, "full-unroll", false, "request full unrolling of generated loops")
	cmd.Flags().StringVar(&opts.Target, "target", "host", "target model (generic|host|wide)")
	cmd.Flags().IntVar(&opts.WideBytes, "wide-bytes", 16, "widest access in bytes for -target=wide")
	cmd.Flags().StringVar(&opts.Alias, "alias", "basic", "alias analysis (basic|none)")
	cmd.Flags().BoolVar(&opts.Optimize, "optimize", false, "simplify the lowered control flow")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|llvm)")
	cmd.Flags().StringVar(&opts.Triple, "triple", "", "LLVM target triple")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	return cmd
}

func runLower(opts *lowerOptions, path string, stdout, stderr io.Writer) (err error) {
	if opts.Format != "text" && opts.Format != "llvm" {
		return errors.Errorf("invalid format %q: must be text or llvm", opts.Format)
	}
	mod, err := memfile.Load(path)
	if err != nil {
		return err
	}
	model, err := target.ByName(opts.Target, opts.WideBytes)
	if err != nil {
		return err
	}
	var a alias.Analyzer
	switch opts.Alias {
	case "basic":
		a = alias.Basic{Layout: mod.Layout}
	case "none":
		a = alias.Conservative{}
	default:
		return errors.Errorf("invalid alias analysis %q: must be basic or none", opts.Alias)
	}

	log := newLogger(opts.Verbose, stderr)
	defer log.Sync()
	cfg := lower.Config{InferTypes: opts.InferTypes, FullUnroll: opts.FullUnroll}
	l := lower.New(cfg, model,
		lower.WithAlias(a),
		lower.WithLayout(mod.Layout),
		lower.WithLogger(log.Named(color.CyanString("lower"))))
	n := l.Lower(mod)

	var checkErr error
	for _, f := range mod.Funcs {
		if opts.Optimize {
			flowgraph.Optimize(f)
		}
		f.Renumber()
		checkErr = multierr.Append(checkErr, flowgraph.Check(f))
	}
	if checkErr != nil {
		return errors.Wrap(checkErr, "lowered module is malformed")
	}

	w := stdout
	if opts.Output != "" {
		f, createErr := os.Create(opts.Output)
		if createErr != nil {
			return errors.Wrap(createErr, "failed to create output file")
		}
		defer func() { err = multierr.Append(err, f.Close()) }()
		w = f
	}
	switch opts.Format {
	case "llvm":
		var gopts []llvm.Option
		if opts.Triple != "" {
			gopts = append(gopts, llvm.Triple(opts.Triple))
		}
		err = llvm.Generate(w, mod, gopts...)
	default:
		_, err = fmt.Fprintln(w, mod.String())
	}
	if err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	fmt.Fprintf(stderr, "%s %s: %d intrinsic(s) in %d func(s)\n",
		color.GreenString("lowered"), path, n, len(mod.Funcs))
	return nil
}

// newLogger returns a console logger writing to w.
// Expansions are logged at debug level,
// so they appear only if verbose is set.
func newLogger(verbose bool, w io.Writer) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	if verbose {
		level = zapcore.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.TimeKey = ""
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}
