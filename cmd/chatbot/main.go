package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/kbchat/internal/logging"
	"github.com/zhouzirui/kbchat/internal/tui"
	"github.com/zhouzirui/kbchat/pkg/chatbot"
	"github.com/zhouzirui/kbchat/pkg/kbclient"
)

type options struct {
	server          string
	knowledgeBase   string
	heading         string
	description     string
	welcome         string
	background      string
	foreground      string
	noClose         bool
	noLauncher      bool
	defaultMessages int
	showRemaining   bool
	fetchWidget     bool
	logFile         string
	logLevel        string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "kbchat",
		Short: "Chat with a knowledge base from the terminal",
		Long: `kbchat renders the knowledge-base chat widget in the terminal.

The first question opens a session on the backend; every question is then
answered inside that session until its quota runs out.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.server, "server", "s", envOr("KBCHAT_SERVER", "http://localhost:8080"), "Knowledge-base backend URL")
	f.StringVarP(&opts.knowledgeBase, "kb", "k", os.Getenv("KBCHAT_KB"), "Knowledge base id")
	f.StringVar(&opts.heading, "heading", "", "Widget heading")
	f.StringVar(&opts.description, "description", "", "Widget description (markdown)")
	f.StringVar(&opts.welcome, "welcome", "", "Welcome message")
	f.StringVar(&opts.background, "bg", "", "Accent background colour (#hex or rgb())")
	f.StringVar(&opts.foreground, "fg", "", "Accent font colour (#hex or rgb())")
	f.BoolVar(&opts.noClose, "no-close", false, "Hide the close control")
	f.BoolVar(&opts.noLauncher, "no-launcher", false, "Quit on close instead of collapsing to the launcher")
	f.IntVar(&opts.defaultMessages, "default-messages", 0, "Messages already used by this visitor")
	f.BoolVar(&opts.showRemaining, "show-remaining", false, "Show the remaining message counter")
	f.BoolVar(&opts.fetchWidget, "fetch-widget", true, "Load heading, description and colours from the backend")
	f.StringVar(&opts.logFile, "log-file", "", "Write logs to this file (default: discard)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: trace|debug|info|warn|error")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	if opts.knowledgeBase == "" {
		return fmt.Errorf("a knowledge base id is required (--kb or KBCHAT_KB)")
	}

	// 终端处于 alt-screen，日志只能写文件
	var logOut io.Writer = io.Discard
	if opts.logFile != "" {
		file, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer file.Close()
		logOut = file
	}
	logging.Init(logOut, opts.logLevel, "json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := kbclient.New(opts.server, kbclient.WithLogger(logging.Component("kbclient")))

	var fetched chatbot.Customize
	if opts.fetchWidget {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c, err := client.Widget(fetchCtx, opts.knowledgeBase)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("kb", opts.knowledgeBase).Msg("unable to fetch widget settings, using flags only")
		} else {
			fetched = c
		}
	}

	props := buildProps(opts, fetched)
	conv := chatbot.New(client, props, chatbot.WithLogger(logging.Component("widget")))
	model := tui.New(ctx, conv, props, tui.Options{ShowRemaining: opts.showRemaining})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run terminal widget: %w", err)
	}
	return nil
}

// buildProps layers flag values over the customization fetched from the backend.
func buildProps(opts *options, fetched chatbot.Customize) chatbot.Props {
	props := chatbot.DefaultProps(opts.knowledgeBase)
	props.Customize = fetched
	props.ShowCloseButton = !opts.noClose
	props.ShowLauncher = !opts.noLauncher
	props.DefaultMessageNumber = max(opts.defaultMessages, 0)

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&props.Customize.Heading, opts.heading)
	override(&props.Customize.Description, opts.description)
	override(&props.Customize.WelcomeMessage, opts.welcome)
	override(&props.Customize.BackgroundColor, opts.background)
	override(&props.Customize.FontColor, opts.foreground)
	return props
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
