package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/df-mc/plugintemplate/server"
	"github.com/mattn/go-isatty"
)

// Console provides a CLI backed command source that reads command lines from
// an io.Reader (defaulting to os.Stdin) and executes them on the provided
// server. Feedback is written to the logger of the console.
type Console struct {
	srv         *server.Server
	log         *slog.Logger
	src         server.Source
	reader      io.Reader
	interactive bool
}

// New returns a Console bound to the provided server. The console reads from
// os.Stdin. If stdin is a terminal, Run shows a prompt with tab completion.
func New(srv *server.Server, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	fd := os.Stdin.Fd()
	return &Console{
		srv:         srv,
		log:         log,
		src:         server.ConsoleSource(log),
		reader:      os.Stdin,
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// WithReader sets a custom reader for the console input. It enables testing the
// console without relying on os.Stdin. A console with a custom reader never
// shows a prompt.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
		c.interactive = false
	}
	return c
}

// Run starts consuming commands from the console. It blocks until the context
// is cancelled, the input ends or "stop" is entered.
func (c *Console) Run(ctx context.Context) error {
	if c.interactive {
		return c.runPrompt(ctx)
	}
	return c.runLines(ctx)
}

func (c *Console) runLines(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.reader)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-errs; err != nil {
					c.log.Error("Console input error.", "err", err)
					return err
				}
				return nil
			}
			if !c.execute(line) {
				return nil
			}
		}
	}
}

func (c *Console) runPrompt(ctx context.Context) error {
	done := make(chan struct{})
	stopped := false
	p := prompt.New(
		func(line string) {
			if ctx.Err() == nil && !c.execute(line) {
				stopped = true
			}
		},
		c.suggest,
		prompt.OptionPrefix("> "),
		prompt.OptionTitle(c.srv.Name()),
		prompt.OptionParser(&cancelParser{ConsoleParser: prompt.NewStandardInputParser(), ctx: ctx}),
		prompt.OptionSwitchKeyBindMode(prompt.EmacsKeyBind),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return stopped }),
	)
	go func() {
		defer close(done)
		p.Run()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// The parser now feeds the keys that end the prompt, which restores
		// the terminal on its way out.
		select {
		case <-done:
		case <-time.After(time.Second):
			c.log.Warn("Console prompt did not stop in time.")
		}
	}
	return nil
}

// cancelParser reads keys from the terminal until ctx is done. It then clears
// the input line and sends Ctrl-D so that the prompt exits and restores the
// terminal state.
type cancelParser struct {
	prompt.ConsoleParser
	ctx     context.Context
	pending [][]byte
}

// Read is called from the single input goroutine of the prompt.
func (p *cancelParser) Read() ([]byte, error) {
	if p.ctx.Err() != nil {
		if p.pending == nil {
			p.pending = [][]byte{{0x0b}, {0x15}, {0x04}}
		}
		if len(p.pending) > 0 {
			key := p.pending[0]
			p.pending = p.pending[1:]
			return key, nil
		}
	}
	return p.ConsoleParser.Read()
}

// execute runs a single line as the console. It returns false if the line
// asks the console to stop.
func (c *Console) execute(line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return true
	case "stop", "exit":
		c.log.Info("Console stopped.")
		return false
	}
	c.srv.Execute(c.src, line)
	return true
}

// suggest completes the text before the cursor for the prompt.
func (c *Console) suggest(d prompt.Document) []prompt.Suggest {
	completions := c.srv.Complete(c.src, d.TextBeforeCursor())
	suggestions := make([]prompt.Suggest, 0, len(completions))
	for _, s := range completions {
		suggestions = append(suggestions, prompt.Suggest{Text: s})
	}
	return suggestions
}
