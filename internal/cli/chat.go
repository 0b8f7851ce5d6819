// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive REPL chat for the clausedesk CLI.
//
// USABILITY: Input history and line editing for a comfortable REPL
//
// Handles "clausedesk chat": a readline-style loop where each question
// streams its answer inline. Ctrl+C cancels the in-flight answer and
// keeps the partial content; Ctrl+D exits.
//
// Slash commands:
//   /help               Show available commands
//   /clear              Clear conversation history
//   /model [name]       Show or switch model
//   /topk [n]           Show or set retrieval depth
//   /sources [on|off]   Toggle citation display
//   /rate <1-5> [text]  Rate the last answer
//   /save               Save the conversation
//   /sessions           List saved conversations
//   /quit, /exit        Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/clausedesk/clausedesk-tui/internal/api"
	"github.com/clausedesk/clausedesk-tui/internal/config"
	"github.com/clausedesk/clausedesk-tui/internal/model"
	"github.com/clausedesk/clausedesk-tui/internal/session"
	"github.com/clausedesk/clausedesk-tui/internal/storage"
	"github.com/clausedesk/clausedesk-tui/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := ""
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.loadHistory()
	return c
}

func (c *ChatCLI) loadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and releases the terminal.
// SECURITY: History is written with 0600 permissions.
func (c *ChatCLI) Close() {
	if c.historyFile != "" {
		if err := config.EnsureConfigDir(); err == nil {
			if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
				c.line.WriteHistory(f)
				f.Close()
			}
		}
	}
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession holds the state of one interactive chat run.
type ChatSession struct {
	Config     *config.Config
	Client     *api.Client
	Controller *session.Controller
	Conv       *model.Conversation
	Store      *storage.Store
	InputCLI   *ChatCLI

	ShowSources bool
	Quiet       bool

	// lastSources holds the citations of the in-flight answer so they
	// can be printed after the stream settles.
	lastSources []model.Citation
}

// newChatSession assembles the chat session from config and flags.
func newChatSession(args Args) (*ChatSession, error) {
	client, cfg := buildClient(args)
	conv := model.NewConversation()

	s := &ChatSession{
		Config:      cfg,
		Client:      client,
		Conv:        conv,
		InputCLI:    NewChatCLI(),
		ShowSources: cfg.UI.ShowSources,
		Quiet:       args.Quiet,
	}

	if dir, err := storage.DefaultDir(); err == nil {
		if store, err := storage.NewStore(dir); err == nil {
			s.Store = store
		}
	}

	s.Controller = session.NewController(client, conv,
		session.WithWindow(cfg.Chat.HistoryWindow),
		session.WithTopK(resolveTopK(args, cfg)),
		session.WithCallbacks(session.Callbacks{
			OnContent: func(delta string) {
				fmt.Print(delta)
			},
			OnSources: func(sources []model.Citation) {
				s.lastSources = sources
			},
			OnDone: func(meta model.AnswerMeta) {
				fmt.Println()
				if s.ShowSources && !s.Quiet {
					printModelSources(s.lastSources)
				}
				if cfg.UI.ShowConfidence && !s.Quiet && meta.Confidence != "" {
					fmt.Println(metaStyle.Render("confidence " + meta.Confidence))
				}
			},
			OnError: func(err error) {
				fmt.Println()
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			},
		}),
	)
	return s, nil
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive chat loop.
func HandleChat(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	s, err := newChatSession(args)
	if err != nil {
		return err
	}
	defer s.InputCLI.Close()

	if !s.Quiet {
		printChatWelcome(s)
	}

	// First Ctrl+C during streaming cancels the answer; the partial
	// content is kept.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			s.Controller.Cancel()
		}
	}()

	for {
		input, err := s.InputCLI.ReadInput(promptStyle.Render("clausedesk> "))
		if err != nil {
			// Ctrl+C at the prompt or EOF: exit gracefully.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := s.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if err := s.processMessage(input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// processMessage streams one question and its answer.
func (s *ChatSession) processMessage(input string) error {
	s.lastSources = nil
	fmt.Println()

	err := s.Controller.Send(context.Background(), input)
	if errors.Is(err, session.ErrBusy) {
		return errors.New("an answer is already streaming")
	}
	if err != nil {
		// OnError already reported the failure.
		return nil
	}

	if s.Controller.State() == session.StateCancelled {
		fmt.Fprintln(os.Stderr, warningStyle.Render("[cancelled]"))
	}

	if s.Config.Chat.AutoSave && s.Store != nil {
		if err := s.Store.Save(s.Conv); err != nil {
			fmt.Fprintf(os.Stderr, "%s could not save conversation: %v\n",
				warningStyle.Render("[Warning]"), err)
		}
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand executes one REPL command. The bool result reports
// whether the loop should continue.
func (s *ChatSession) handleSlashCommand(input string) (bool, error) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	rest := fields[1:]

	switch cmd {
	case "/help", "/h":
		printChatHelp()
		return true, nil

	case "/clear", "/c":
		s.Conv.Clear()
		fmt.Println("Conversation cleared.")
		return true, nil

	case "/model":
		if len(rest) == 0 {
			name := s.Config.Server.Model
			if name == "" {
				name = "(server default)"
			}
			fmt.Println("Model:", name)
			return true, nil
		}
		s.Config.Server.Model = rest[0]
		s.Client.WithModel(rest[0])
		fmt.Println("Model set to", rest[0])
		return true, nil

	case "/topk":
		if len(rest) == 0 {
			fmt.Println("Retrieval depth:", s.Config.Chat.TopK)
			return true, nil
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 || n > api.MaxTopK {
			return true, fmt.Errorf("topk must be between 1 and %d", api.MaxTopK)
		}
		s.Config.Chat.TopK = n
		s.Controller = session.NewController(s.Client, s.Conv,
			session.WithWindow(s.Config.Chat.HistoryWindow),
			session.WithTopK(n),
			session.WithCallbacks(s.callbacks()))
		fmt.Println("Retrieval depth set to", n)
		return true, nil

	case "/sources":
		if len(rest) > 0 {
			s.ShowSources = strings.EqualFold(rest[0], "on")
		} else {
			s.ShowSources = !s.ShowSources
		}
		if s.ShowSources {
			fmt.Println("Sources: on")
		} else {
			fmt.Println("Sources: off")
		}
		return true, nil

	case "/rate":
		return true, s.rateLastAnswer(rest)

	case "/save":
		if s.Store == nil {
			return true, errors.New("conversation store unavailable")
		}
		if err := s.Store.Save(s.Conv); err != nil {
			return true, err
		}
		fmt.Println("Saved as", s.Conv.ID)
		return true, nil

	case "/sessions":
		if s.Store == nil {
			return true, errors.New("conversation store unavailable")
		}
		metas, err := s.Store.List()
		if err != nil {
			return true, err
		}
		if len(metas) == 0 {
			fmt.Println("No saved conversations.")
			return true, nil
		}
		for _, meta := range metas {
			fmt.Printf("  %-40s  %3d msgs  %s\n", meta.ID, meta.MessageCount,
				util.TruncateRunes(meta.Title, 40))
		}
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

// callbacks rebuilds the streaming callbacks for a replacement controller.
func (s *ChatSession) callbacks() session.Callbacks {
	return session.Callbacks{
		OnContent: func(delta string) { fmt.Print(delta) },
		OnSources: func(sources []model.Citation) { s.lastSources = sources },
		OnDone: func(meta model.AnswerMeta) {
			fmt.Println()
			if s.ShowSources && !s.Quiet {
				printModelSources(s.lastSources)
			}
			if s.Config.UI.ShowConfidence && !s.Quiet && meta.Confidence != "" {
				fmt.Println(metaStyle.Render("confidence " + meta.Confidence))
			}
		},
		OnError: func(err error) {
			fmt.Println()
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		},
	}
}

// rateLastAnswer records a 1-5 rating for the most recent answer,
// locally and (when the conversation is known remotely) on the backend.
func (s *ChatSession) rateLastAnswer(rest []string) error {
	if len(rest) == 0 {
		return errors.New("usage: /rate <1-5> [feedback]")
	}
	rating, err := strconv.Atoi(rest[0])
	if err != nil || rating < 1 || rating > 5 {
		return errors.New("usage: /rate <1-5> [feedback]")
	}
	feedback := strings.Join(rest[1:], " ")

	turn := s.Conv.Last()
	if turn == nil || turn.Role != model.RoleAssistant {
		return errors.New("no answer to rate yet")
	}
	turn.SetRating(rating, feedback)

	if s.Conv.RemoteID != "" {
		idx := s.Conv.MessageCount() - 1
		ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
		defer cancel()
		if err := s.Client.RateMessage(ctx, s.Conv.RemoteID, idx, rating, feedback); err != nil {
			return fmt.Errorf("rating saved locally, backend rejected it: %w", err)
		}
	}
	fmt.Println("Rated", rating, "of 5.")
	return nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printChatWelcome(s *ChatSession) {
	fmt.Println(promptStyle.Render("ClauseDesk chat"))
	fmt.Println(metaStyle.Render("Ask about your contracts. /help for commands, Ctrl+D to exit."))

	ctx, cancel := context.WithTimeout(context.Background(), api.HealthTimeout)
	defer cancel()
	if err := s.Client.Health(ctx); err != nil {
		fmt.Fprintln(os.Stderr, warningStyle.Render("[Warning] backend unreachable: ")+err.Error())
	}
	fmt.Println()
}

func printChatHelp() {
	fmt.Print(`Commands:
  /help               Show this help
  /clear              Clear the conversation
  /model [name]       Show or switch model
  /topk [n]           Show or set retrieval depth (1-20)
  /sources [on|off]   Toggle citation display
  /rate <1-5> [text]  Rate the last answer
  /save               Save the conversation
  /sessions           List saved conversations
  /quit               Exit
`)
}

// printModelSources prints citations already converted to model form.
func printModelSources(sources []model.Citation) {
	if len(sources) == 0 {
		return
	}
	fmt.Println(sourceHeaderStyle.Render("Sources:"))
	for i, src := range sources {
		loc := src.Filename
		if src.Page > 0 {
			loc = fmt.Sprintf("%s p.%d", src.Filename, src.Page)
		}
		fmt.Println(sourceStyle.Render(fmt.Sprintf("  %d. %s (%.0f%%)", i+1, loc, src.Score*100)))
	}
}
