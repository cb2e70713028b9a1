// Package cli implements the oxython command: script execution, the
// disassembler and the REPL.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/funvibe/oxython/internal/backend"
	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/vm"
)

var log = commonlog.GetLogger("oxython.cli")

const usage = "Usage: oxython [-d] [-v...] [script]"

// options are the parsed command-line flags
type options struct {
	disassemble bool
	verbosity   int
	help        bool
	version     bool
	args        []string
}

// parseArgs scans flags the way the rest of the CLI does: flags may
// appear anywhere, everything else is positional.
func parseArgs(args []string) (*options, error) {
	opts := &options{}
	for _, arg := range args {
		switch {
		case arg == "-d" || arg == "--disassemble":
			opts.disassemble = true
		case arg == "-h" || arg == "-help" || arg == "--help":
			opts.help = true
		case arg == "--version" || arg == "-version":
			opts.version = true
		case arg == "--verbose":
			opts.verbosity++
		case strings.HasPrefix(arg, "-v") && strings.Trim(arg[1:], "v") == "":
			// -v, -vv, -vvv ...
			opts.verbosity += len(arg) - 1
		case strings.HasPrefix(arg, "-") && arg != "-":
			return nil, fmt.Errorf("unknown flag %s", arg)
		default:
			opts.args = append(opts.args, arg)
		}
	}
	return opts, nil
}

// Run runs the command with the process arguments and standard streams
// and returns the exit code.
func Run() int {
	return Main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Main is Run with explicit arguments and streams.
func Main(args []string, stdin io.Reader, stdout, stderr io.Writer) (code int) {
	// Catch panics and show user-friendly error
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r) // Re-panic to get stack trace
			}
			fmt.Fprintf(stderr, "Internal error: %v\n", r)
			fmt.Fprintln(stderr, "This is a bug. Please report it.")
			code = config.ExitSoftware
		}
	}()

	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n%s\n", err, usage)
		return config.ExitUsage
	}
	if opts.help {
		printHelp(stdout)
		return config.ExitOK
	}
	if opts.version {
		fmt.Fprintln(stdout, "oxython "+config.Version)
		return config.ExitOK
	}
	if len(opts.args) > 1 {
		fmt.Fprintln(stderr, usage)
		return config.ExitUsage
	}

	settings, settingsPath, err := loadSettings()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return config.ExitDataErr
	}
	configureLogging(settings, opts.verbosity)
	if settingsPath != "" {
		log.Debugf("settings loaded from %s", settingsPath)
	}

	if len(opts.args) == 0 {
		if opts.disassemble {
			fmt.Fprintf(stderr, "Error: -d needs a script\n%s\n", usage)
			return config.ExitUsage
		}
		return runREPL(settings, stdin, stdout, stderr)
	}
	return runFile(opts.args[0], opts.disassemble, settings, stdout, stderr)
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, usage)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "With no script, start the interactive REPL.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -d, --disassemble  print the compiled bytecode instead of running")
	fmt.Fprintln(w, "  -v, --verbose      raise log verbosity (repeatable)")
	fmt.Fprintln(w, "  -h, --help         show this help")
	fmt.Fprintln(w, "      --version      print the version")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Settings are read from oxython.yaml or oxython.toml, or from $%s.\n", config.ConfigEnvVar)
}

func loadSettings() (*config.Settings, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return config.DefaultSettings(), "", nil
	}
	return config.Resolve(wd)
}

func configureLogging(settings *config.Settings, extra int) {
	// commonlog counts from notice at 0 and goes quieter below it
	verbosity := settings.Log.Verbosity + extra - 1
	if verbosity > 2 {
		verbosity = 2
	}
	var path *string
	if settings.Log.File != "" {
		path = &settings.Log.File
	}
	commonlog.Configure(verbosity, path)
}

func newMachine(settings *config.Settings, module string, stdout io.Writer) *vm.VM {
	return vm.New(
		vm.WithStackSize(settings.VM.StackSize),
		vm.WithMaxFrames(settings.VM.MaxFrames),
		vm.WithOutput(stdout),
		vm.WithModule(module),
	)
}

// moduleName derives the module recorded for a script from its file name.
func moduleName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	for _, known := range config.SourceFileExtensions {
		if strings.EqualFold(ext, known) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// runFile compiles and runs (or disassembles) one script.
func runFile(path string, disassemble bool, settings *config.Settings, stdout, stderr io.Writer) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading file '%s': %s\n", path, readError(err))
		return config.ExitIOErr
	}

	module := moduleName(path)
	ctx := pipeline.NewContext(string(source))
	ctx.FilePath = path
	ctx.Module = module
	ctx.Output = stdout

	var execBackend backend.Backend
	if disassemble {
		execBackend = backend.NewDisassembler()
	} else {
		execBackend = backend.NewVM(newMachine(settings, module, stdout))
	}

	return runPipeline(ctx, execBackend, stderr)
}

func readError(err error) string {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}

// runPipeline runs the unified pipeline and reports errors on stderr.
func runPipeline(ctx *pipeline.PipelineContext, execBackend backend.Backend, stderr io.Writer) int {
	processingPipeline := pipeline.New(
		&backend.CompileProcessor{},
		backend.NewExecutionProcessor(execBackend),
	)
	ctx = processingPipeline.Run(ctx)

	if !ctx.Failed() {
		return config.ExitOK
	}
	reportErrors(ctx, stderr)
	if ctx.CompileFailed() {
		return config.ExitDataErr
	}
	return config.ExitSoftware
}

// reportErrors prints compile diagnostics one per line, or a runtime
// error followed by its stack trace.
func reportErrors(ctx *pipeline.PipelineContext, w io.Writer) {
	var rt *vm.RuntimeError
	if errors.As(ctx.RuntimeErr, &rt) {
		fmt.Fprintf(w, "Runtime error: %s\n", rt.Error())
		if len(rt.Trace) > 1 {
			fmt.Fprintln(w, rt.StackTrace())
		}
		return
	}
	if ctx.RuntimeErr != nil {
		fmt.Fprintf(w, "Runtime error: %s\n", ctx.RuntimeErr)
		return
	}
	for _, err := range ctx.Errors {
		fmt.Fprintln(w, err.Error())
	}
}
