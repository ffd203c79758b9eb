package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"assistant-relay/internal/client"
	"assistant-relay/internal/tui"
)

type options struct {
	url     string
	timeout time.Duration
	style   string
	logFile string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with the personal assistant relay from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", envOrDefault("RELAY_URL", "http://localhost:8080"), "relay base URL")
	flags.DurationVar(&opts.timeout, "timeout", 0, "give up on a reply after this long (0 waits forever)")
	flags.StringVar(&opts.style, "style", "", "glamour style for assistant replies (dark, light, notty); empty detects")
	flags.StringVar(&opts.logFile, "log-file", "", "append client errors to this file")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	logger := zerolog.Nop()
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = zerolog.New(f).With().Timestamp().Str("component", "chat").Logger()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relay := client.NewHTTPRelay(opts.url, &http.Client{Timeout: opts.timeout})
	model := tui.New(ctx, relay, opts.style, client.WithLogger(logger))

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run chat UI: %w", err)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
