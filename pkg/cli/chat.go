// Package cli implements the interactive terminal chat session.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ensemble-ai/ensemble/pkg/graph"
	"github.com/ensemble-ai/ensemble/pkg/progress"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// Chat is one interactive terminal session against a chatbot.
type Chat struct {
	executor *graph.Executor
	in       io.Reader
	out      io.Writer
	tty      bool
	history  []protocol.Message
}

// NewChat builds a session on stdin/stdout. Prompt decorations are only
// rendered when stdout is a terminal.
func NewChat(executor *graph.Executor) *Chat {
	return &Chat{
		executor: executor,
		in:       os.Stdin,
		out:      os.Stdout,
		tty:      term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// Run loops until exit, quit or EOF. Each input line is one turn.
func (c *Chat) Run(ctx context.Context) error {
	if c.tty {
		fmt.Fprintln(c.out, "Chat session started. Type 'exit' or 'quit' to leave.")
		fmt.Fprintln(c.out)
	}

	reader := bufio.NewReader(c.in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.prompt()
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		query := strings.TrimSpace(line)
		switch query {
		case "":
			continue
		case "exit", "quit":
			if c.tty {
				fmt.Fprintln(c.out, "Bye.")
			}
			return nil
		}

		c.runTurn(ctx, query)
	}
}

func (c *Chat) runTurn(ctx context.Context, query string) {
	sink := progress.NewSink()
	turnCtx := progress.NewContext(ctx, sink)

	done := make(chan *protocol.ChatbotState, 1)
	go func() {
		done <- c.executor.RunTurn(turnCtx, protocol.NewChatbotState(c.history, query))
	}()

	for event := range sink.Events() {
		c.render(event)
	}

	state := <-done
	c.history = state.Messages
	fmt.Fprintln(c.out)
}

// render writes one progress line, or the reply itself for terminal events.
func (c *Chat) render(event progress.Event) {
	switch event.Type {
	case progress.EventText:
		c.progressLine(fmt.Sprintf("%s %s", event.Source, event.Message))
	case progress.EventToolStart:
		c.progressLine(fmt.Sprintf("calling %s ...", event.Tool))
	case progress.EventToolEnd:
		if !event.OK {
			c.progressLine(fmt.Sprintf("%s failed", event.Tool))
		}
	case progress.EventToken:
		fmt.Fprint(c.out, event.Text)
	case progress.EventFinal:
		fmt.Fprintln(c.out, event.Text)
	case progress.EventError:
		fmt.Fprintln(c.out, event.Message)
	}
}

func (c *Chat) prompt() {
	if c.tty {
		fmt.Fprint(c.out, "You: ")
	}
}

// progressLine prints transient activity. On a plain pipe the lines are
// suppressed so output stays machine-readable.
func (c *Chat) progressLine(text string) {
	if c.tty {
		fmt.Fprintf(c.out, "  ⋅ %s\n", text)
	}
}
