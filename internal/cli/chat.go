// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for the deepgate CLI.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /models             Fetch and list the server's models
//   /load <name>        Load a model on the server and select it
//   /model [name]       Show or select the session model
//   /new [kind]         Start a new session (chat, note, prompt)
//   /history            List saved sessions
//   /resume <n|id>      Resume a saved session
//   /show               Print the current session
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current reply
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/rs/zerolog"

	"github.com/jeranaias/deepgate/internal/chat"
	"github.com/jeranaias/deepgate/internal/deepgate"
	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineEditor provides input history and line editing for interactive chat.
type LineEditor struct {
	line        *liner.State
	historyFile string
}

// NewLineEditor creates a line editor. An empty historyFile keeps history
// in memory only.
func NewLineEditor(historyFile string) *LineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	e := &LineEditor{line: line, historyFile: historyFile}
	e.LoadHistory()
	return e
}

// State returns the underlying liner state for prompts.
func (e *LineEditor) State() *liner.State {
	return e.line
}

// LoadHistory loads command history from file.
func (e *LineEditor) LoadHistory() {
	if e.historyFile == "" {
		return
	}
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (e *LineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with owner-only permissions.
func (e *LineEditor) SaveHistory() {
	if e.historyFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(e.historyFile), util.PrivateDirPerm); err != nil {
		return
	}
	f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	e.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (e *LineEditor) Close() {
	e.SaveHistory()
	e.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// REPLConfig configures the interactive loop.
type REPLConfig struct {
	Orchestrator *chat.Orchestrator
	Editor       *LineEditor
	Renderer     *StreamRenderer
	Out          io.Writer
	Logger       *zerolog.Logger

	// BaseURL is shown in the banner.
	BaseURL string
	Quiet   bool
}

// REPL is the interactive chat loop.
type REPL struct {
	orch     *chat.Orchestrator
	editor   *LineEditor
	renderer *StreamRenderer
	out      io.Writer
	log      zerolog.Logger
	baseURL  string
	quiet    bool
}

// NewREPL creates a REPL.
func NewREPL(cfg REPLConfig) *REPL {
	r := &REPL{
		orch:     cfg.Orchestrator,
		editor:   cfg.Editor,
		renderer: cfg.Renderer,
		out:      cfg.Out,
		log:      zerolog.Nop(),
		baseURL:  cfg.BaseURL,
		quiet:    cfg.Quiet,
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.renderer == nil {
		r.renderer = NewStreamRenderer(r.out)
	}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	}
	return r
}

// Run reads input until /quit, Ctrl+D or ctx ends.
func (r *REPL) Run(ctx context.Context) error {
	if !r.quiet {
		r.printWelcome(ctx)
	}

	// Fetch models up front so /load has a list to flag.
	if _, err := r.orch.RefreshModels(ctx); err != nil {
		r.printError(err)
	}

	for ctx.Err() == nil {
		input, err := r.editor.ReadInput(PromptStyle.Render("deepgate> "))
		if err != nil {
			// Ctrl+C at the prompt or Ctrl+D both exit
			fmt.Fprintln(r.out)
			r.printGoodbye()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := r.handleSlashCommand(ctx, input)
			if err != nil {
				r.printError(err)
			}
			if !keepGoing {
				r.printGoodbye()
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			r.printGoodbye()
			return nil
		}

		if err := r.send(ctx, input); err != nil {
			r.printError(err)
		}
	}
	return ctx.Err()
}

// send runs one turn. Ctrl+C cancels the reply, not the REPL.
func (r *REPL) send(ctx context.Context, input string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	start := time.Now()
	err := r.orch.Send(turnCtx, input)
	if err != nil {
		r.renderer.Abort()
		if turnCtx.Err() != nil && ctx.Err() == nil {
			fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
			return nil
		}
		return err
	}

	if !r.quiet {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("[%s]", time.Since(start).Round(time.Millisecond))))
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// parseCommand splits a slash command into its lowercased name and args.
func parseCommand(input string) (string, []string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return "", nil
	}
	return strings.ToLower(parts[0]), parts[1:]
}

// handleSlashCommand runs a slash command. It returns false to exit.
func (r *REPL) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	command, args := parseCommand(input)

	switch command {
	case "/help", "/h", "/?", "/":
		r.printHelp()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	case "/models":
		models, err := r.orch.RefreshModels(ctx)
		if err != nil {
			return true, err
		}
		PrintModels(r.out, models)
		return true, nil

	case "/load":
		if len(args) == 0 {
			return true, errors.New("usage: /load <model>")
		}
		return true, r.loadModel(ctx, args[0])

	case "/model", "/m":
		return true, r.handleModelCommand(ctx, args)

	case "/new":
		kind := model.KindChat
		if len(args) > 0 {
			k, err := model.ParseKind(args[0])
			if err != nil {
				return true, err
			}
			kind = k
		}
		conv, err := r.orch.NewSession(ctx, kind)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(r.out, "%s New %s session %s\n", SuccessStyle.Render("[OK]"), conv.Kind, DimStyle.Render(conv.ID))
		return true, nil

	case "/history":
		sessions, err := r.orch.History(ctx)
		if err != nil {
			return true, err
		}
		PrintHistory(r.out, sessions)
		return true, nil

	case "/resume":
		if len(args) == 0 {
			return true, errors.New("usage: /resume <number|id>")
		}
		sessions, err := r.orch.History(ctx)
		if err != nil {
			return true, err
		}
		id, err := resolveSessionRef(args[0], sessions)
		if err != nil {
			return true, err
		}
		conv, err := r.orch.Resume(ctx, id)
		if err != nil {
			return true, err
		}
		PrintTranscript(r.out, conv)
		return true, nil

	case "/show":
		conv, err := r.orch.Session(ctx)
		if err != nil {
			return true, err
		}
		PrintTranscript(r.out, conv)
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleModelCommand shows or selects the session model.
func (r *REPL) handleModelCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		conv, err := r.orch.Session(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s Current model: %s\n", DimStyle.Render("[Model]"), CommandStyle.Render(modelOrNone(conv.Model)))
		return nil
	}

	if err := r.orch.SetModel(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s Selected model: %s %s\n",
		SuccessStyle.Render("[OK]"),
		args[0],
		DimStyle.Render("(use /load to load it on the server)"))
	return nil
}

func (r *REPL) loadModel(ctx context.Context, name string) error {
	loadCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintf(r.out, "%s %s...\n", RenderStatus("loading"), name)
	start := time.Now()
	if err := r.orch.LoadModel(loadCtx, name); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s Loaded %s in %s\n",
		SuccessStyle.Render("[OK]"),
		CommandStyle.Render(name),
		time.Since(start).Round(time.Millisecond))
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (r *REPL) printWelcome(ctx context.Context) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, TitleStyle.Render("deepgate interactive chat"))
	fmt.Fprintln(r.out, RenderSeparator())
	if r.baseURL != "" {
		status := RenderStatus("ok")
		if err := r.orch.Ping(ctx); err != nil {
			r.log.Debug().Err(err).Msg("server ping failed")
			status = RenderStatus("offline")
		}
		fmt.Fprintf(r.out, "%s %s %s\n", DimStyle.Render("Server:"), CommandStyle.Render(r.baseURL), status)
	}
	fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("Environment:"), CommandStyle.Render(r.orch.Environment().String()))
	if conv, err := r.orch.Session(ctx); err == nil {
		fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("Model:"), CommandStyle.Render(modelOrNone(conv.Model)))
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(r.out)
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(r.out, RenderSeparator(20))

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/models", "List the server's models"},
		{"/load <name>", "Load a model and select it"},
		{"/model [name]", "Show or select the session model"},
		{"/new [kind]", "Start a new session (chat, note, prompt)"},
		{"/history", "List saved sessions"},
		{"/resume <n|id>", "Resume a saved session"},
		{"/show", "Print the current session"},
		{"/quit, /q", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %s  %s\n", CommandStyle.Render(fmt.Sprintf("%-15s", c.cmd)), DimStyle.Render(c.desc))
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, DimStyle.Render("Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Fprintln(r.out)
}

func (r *REPL) printError(err error) {
	label := "[Error]"
	switch {
	case errors.Is(err, chat.ErrBusy):
		label = "[Busy]"
	case deepgate.IsNetworkError(err):
		label = "[Connection]"
	case deepgate.IsModelLoadError(err):
		label = "[Load]"
	}
	r.log.Debug().Err(err).Msg("command failed")
	fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render(label), err)
}

func (r *REPL) printGoodbye() {
	fmt.Fprintln(r.out, DimStyle.Render("Goodbye!"))
}
