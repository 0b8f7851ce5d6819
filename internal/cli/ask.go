// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command handler for the clausedesk CLI.
//
// USABILITY: Markdown rendering for readable answers on a TTY
//
// Handles "clausedesk ask", which sends one question to the backend and
// streams the answer to stdout.
//
// Examples:
//   clausedesk ask "What is the notice period in the MSA?"
//   clausedesk ask --json "List the indemnity obligations"
//   clausedesk ask --no-stream "Summarize the termination clause"
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/clausedesk/clausedesk-tui/internal/api"
	"github.com/clausedesk/clausedesk-tui/internal/config"
	"github.com/clausedesk/clausedesk-tui/internal/ui/styles"
	"github.com/clausedesk/clausedesk-tui/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer is the global glamour renderer for markdown output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayAnswer prints an answer, rendering markdown only on a TTY so
// piped output stays clean.
func displayAnswer(content string) {
	if IsStdoutTTY() {
		fmt.Print(renderMarkdown(content))
	} else {
		fmt.Println(content)
	}
}

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Teal).
			Bold(true)

	sourceHeaderStyle = lipgloss.NewStyle().
				Foreground(styles.Teal).
				Bold(true)

	sourceStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	metaStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)
)

// =============================================================================
// CLIENT CONSTRUCTION
// =============================================================================

// buildClient creates an API client from config plus CLI overrides.
func buildClient(args Args) (*api.Client, *config.Config) {
	cfg := config.Global()

	baseURL := cfg.Server.URL
	if args.ServerURL != "" {
		baseURL = args.ServerURL
	}
	model := cfg.Server.Model
	if args.Model != "" {
		model = args.Model
	}

	client := api.NewClient(baseURL, cfg.Server.Token).WithModel(model)
	return client, cfg
}

// resolveTopK picks the retrieval depth from flag or config.
func resolveTopK(args Args, cfg *config.Config) int {
	if args.TopK > 0 {
		return args.TopK
	}
	return cfg.Chat.TopK
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAsk processes the ask command.
func HandleAsk(args Args) error {
	if args.Query == "" {
		return errors.New("no question given; usage: clausedesk ask \"question\"")
	}

	client, cfg := buildClient(args)
	req := &api.ChatRequest{
		Messages:     []api.ChatMessage{api.NewUserMessage(args.Query)},
		ContextFiles: args.ContextFiles,
		TopK:         resolveTopK(args, cfg),
	}

	// Ctrl+C cancels, keeping the partial answer already printed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.JSON {
		return askJSON(ctx, client, req)
	}
	if args.NoStream || !cfg.Chat.Stream {
		return askOneShot(ctx, client, req, cfg)
	}
	return askStreaming(ctx, client, req, args, cfg)
}

// askJSON performs a non-streaming request and prints the envelope.
func askJSON(ctx context.Context, client *api.Client, req *api.ChatRequest) error {
	resp, err := client.Chat(ctx, req)
	if err != nil {
		NewJSONErrorResponse("ask", err).Print()
		return err
	}
	return NewJSONResponse("ask", resp).Print()
}

// askOneShot waits for the complete answer, then renders it.
func askOneShot(ctx context.Context, client *api.Client, req *api.ChatRequest, cfg *config.Config) error {
	resp, err := client.Chat(ctx, req)
	if err != nil {
		return err
	}

	displayAnswer(resp.Answer)
	if cfg.UI.ShowSources {
		printSources(resp.Sources)
	}
	if cfg.UI.ShowConfidence && resp.Confidence != "" {
		fmt.Println(metaStyle.Render("confidence " + resp.Confidence))
	}
	return nil
}

// askStreaming streams the answer token by token.
func askStreaming(ctx context.Context, client *api.Client, req *api.ChatRequest, args Args, cfg *config.Config) error {
	var sources []api.SourceCitation
	var done *api.DonePayload
	var failed error

	err := client.ChatStream(ctx, req, func(ev api.StreamEvent) {
		switch ev.Type {
		case api.EventContent:
			fmt.Print(ev.Content)
		case api.EventSources:
			sources = ev.Sources
		case api.EventDone:
			done = ev.Done
		case api.EventError:
			failed = errors.New(ev.Err)
		}
	})
	fmt.Println()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, warningStyle.Render("[cancelled]"))
			return nil
		}
		var streamErr *api.StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			fmt.Fprintln(os.Stderr, warningStyle.Render("[connection lost, partial answer shown]"))
		}
		return err
	}
	if failed != nil {
		return failed
	}

	if cfg.UI.ShowSources && !args.Quiet {
		printWireSources(sources)
	}
	if cfg.UI.ShowConfidence && !args.Quiet && done != nil && done.Confidence != "" {
		fmt.Println(metaStyle.Render("confidence " + done.Confidence))
	}
	return nil
}

// printWireSources prints citations from the stream.
func printWireSources(sources []api.SourceCitation) {
	if len(sources) == 0 {
		return
	}
	fmt.Println(sourceHeaderStyle.Render("Sources:"))
	for i, src := range sources {
		loc := src.Filename
		if src.Page > 0 {
			loc = fmt.Sprintf("%s p.%d", src.Filename, src.Page)
		}
		fmt.Println(sourceStyle.Render(fmt.Sprintf("  %d. %s (%.0f%%) %s",
			i+1, loc, src.Score*100, util.TruncateRunes(src.Text, 80))))
	}
}

// printSources prints citations from a non-streaming response.
func printSources(sources []api.SourceCitation) {
	printWireSources(sources)
}
