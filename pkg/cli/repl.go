package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/oxython/internal/backend"
	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/history"
	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/vm"
)

const (
	continuationPrompt = "... "
	historyShown       = 20
)

// repl holds one interactive session. Globals live on machine and
// survive from one entry to the next.
type repl struct {
	settings    *config.Settings
	machine     *vm.VM
	history     *history.Store
	interactive bool
	out         io.Writer
	errOut      io.Writer
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runREPL(settings *config.Settings, stdin io.Reader, stdout, stderr io.Writer) int {
	r := &repl{
		settings:    settings,
		machine:     newMachine(settings, settings.Module, stdout),
		interactive: isTerminal(stdin),
		out:         stdout,
		errOut:      stderr,
	}

	if settings.HistoryEnabled() {
		store, err := history.Open(settings.REPL.HistoryFile, settings.REPL.HistoryLimit)
		if err != nil {
			log.Warningf("history disabled: %s", err)
		} else {
			r.history = store
			defer store.Close()
		}
	}

	if r.interactive && settings.ShowBanner() {
		fmt.Fprintf(stdout, "oxython %s\n", config.Version)
		fmt.Fprintln(stdout, "Welcome to the oxython REPL! (Ctrl+D to exit)")
	}

	r.loop(stdin)
	return config.ExitOK
}

func (r *repl) prompt(p string) {
	if r.interactive {
		fmt.Fprint(r.out, p)
	}
}

// loop reads entries until EOF or :quit. A line ending in ':' opens a
// block that runs once a blank line is entered.
func (r *repl) loop(stdin io.Reader) {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var block []string
	r.prompt(r.settings.REPL.Prompt)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if block != nil {
			if trimmed != "" {
				block = append(block, line)
				r.prompt(continuationPrompt)
				continue
			}
			r.submit(strings.Join(block, "\n"))
			block = nil
			r.prompt(r.settings.REPL.Prompt)
			continue
		}

		switch {
		case trimmed == "":
		case trimmed == ":quit" || trimmed == ":q":
			return
		case trimmed == ":history":
			r.showHistory()
		case strings.HasSuffix(strings.TrimRight(line, " \t"), ":"):
			block = []string{line}
			r.prompt(continuationPrompt)
			continue
		default:
			r.submit(line)
		}
		r.prompt(r.settings.REPL.Prompt)
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("reading input: %s", err)
	}
	if block != nil {
		r.submit(strings.Join(block, "\n"))
	}
	if r.interactive {
		fmt.Fprintln(r.out)
	}
}

// submit compiles and runs one entry and echoes its value when the entry
// ends in an expression that did not produce None.
func (r *repl) submit(source string) {
	if r.history != nil {
		if err := r.history.Add(context.Background(), source); err != nil {
			log.Warningf("history: %s", err)
		}
	}

	ctx := pipeline.NewContext(source)
	ctx.Module = r.settings.Module
	ctx.Output = r.out

	p := pipeline.New(
		&backend.CompileProcessor{},
		backend.NewExecutionProcessor(backend.NewVM(r.machine)),
	)
	ctx = p.Run(ctx)

	if ctx.Failed() {
		reportErrors(ctx, r.errOut)
		return
	}
	if !ctx.HasResult || ctx.Result.IsNil() {
		return
	}
	text, err := r.machine.Represent(ctx.Result)
	if err != nil {
		fmt.Fprintf(r.errOut, "Runtime error: %s\n", err)
		return
	}
	fmt.Fprintln(r.out, text)
}

func (r *repl) showHistory() {
	if r.history == nil {
		fmt.Fprintln(r.out, "history is disabled")
		return
	}
	entries, err := r.history.Recent(context.Background(), historyShown)
	if err != nil {
		fmt.Fprintf(r.errOut, "Error: %s\n", err)
		return
	}
	for _, e := range entries {
		fmt.Fprintf(r.out, "%5d  %s\n", e.ID, strings.ReplaceAll(e.Line, "\n", "\n       "))
	}
}
