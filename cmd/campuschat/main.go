package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"CampusChat/internal/api"
	"CampusChat/internal/cache"
	"CampusChat/internal/chat"
	"CampusChat/internal/config"
	"CampusChat/internal/metrics"
	"CampusChat/internal/session"
	"CampusChat/internal/status"
	"CampusChat/internal/store"
	"CampusChat/internal/telemetry"
)

var (
	promptColor = color.New(color.FgCyan)
	botColor    = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed)
	infoColor   = color.New(color.FgYellow)
)

func main() {
	var (
		configPath   string
		backendURL   string
		timeout      time.Duration
		pollInterval time.Duration
		cacheTTL     time.Duration
		transcriptDB string
		replayID     string
		debug        bool
	)

	flag.StringVar(&configPath, "config", "", "Path to TOML config file")
	flag.StringVar(&backendURL, "backend-url", "", "Question-answering backend origin")
	flag.DurationVar(&timeout, "timeout", 0, "Per-request timeout")
	flag.DurationVar(&pollInterval, "poll-interval", 0, "Backend health poll interval")
	flag.DurationVar(&cacheTTL, "cache-ttl", 0, "Answer cache TTL (0 disables the cache)")
	flag.StringVar(&transcriptDB, "transcript-db", "", "SQLite path for transcript persistence")
	flag.StringVar(&replayID, "replay", "", "Print a stored session transcript and exit")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if backendURL != "" {
		cfg.BackendURL = backendURL
	}
	if timeout > 0 {
		cfg.RequestTimeout = config.Duration(timeout)
	}
	if pollInterval > 0 {
		cfg.PollInterval = config.Duration(pollInterval)
	}
	if cacheTTL > 0 {
		cfg.CacheTTL = config.Duration(cacheTTL)
	}
	if transcriptDB != "" {
		cfg.TranscriptDB = transcriptDB
	}
	if debug {
		cfg.Debug = true
	}

	ctx := context.Background()
	tel, err := telemetry.Init(ctx, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer tel.Shutdown()

	if replayID != "" {
		if err := replay(cfg, replayID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, tel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// replay prints a previously persisted transcript.
func replay(cfg config.Config, sessionID string) error {
	if cfg.TranscriptDB == "" {
		return fmt.Errorf("replay requires -transcript-db")
	}
	s, err := store.Open(cfg.TranscriptDB)
	if err != nil {
		return err
	}
	defer s.Close()

	turns, err := s.LoadTurns(sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("no transcript found for session %s", sessionID)
	}
	for _, turn := range turns {
		printTurn(turn)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, tel *telemetry.Providers) error {
	client := api.NewClient(api.ClientConfig{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.RequestTimeout.Std(),
		Tracer:  tel.Tracer,
		Logger:  tel.Logger,
	})

	ctrl := chat.New(cfg, client, metrics.New(tel.Meter), tel.Logger)
	ctrl.OnTurn(printTurn)

	if cfg.CacheTTL.Std() > 0 {
		ctrl.SetAnswerCache(cache.New(cfg.CacheTTL.Std()))
	}
	if cfg.TranscriptDB != "" {
		s, err := store.Open(cfg.TranscriptDB)
		if err != nil {
			return err
		}
		defer s.Close()
		ctrl.SetTranscriptStore(s)
	}

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	fmt.Println("=== CampusChat ===")
	fmt.Printf("Session: %s\n", ctrl.Session().ID)
	fmt.Printf("Backend: %s\n", cfg.BackendURL)
	printStatus(ctrl.Status())
	fmt.Println()
	for _, turn := range ctrl.History() {
		printTurn(turn)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(ctx, ctrl, input)
			if err != nil {
				errColor.Printf("Error: %v\n", err)
			}
			if quit {
				break
			}
			continue
		}

		if err := ctrl.SubmitMessage(ctx, input); err != nil && err != chat.ErrEmptyInput {
			errColor.Printf("Error: %v\n", err)
		}
	}

	if err := ctrl.Teardown(); err != nil {
		return err
	}
	fmt.Println("Goodbye!")
	return nil
}

// handleCommand handles slash commands. Returns true to quit.
func handleCommand(ctx context.Context, ctrl *chat.Controller, input string) (bool, error) {
	cmd, rest, _ := strings.Cut(input, " ")

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/search":
		err := ctrl.SubmitSearch(ctx, rest)
		if err == chat.ErrEmptyInput {
			return false, fmt.Errorf("usage: /search <query>")
		}
		return false, err

	case "/status":
		printStatus(ctrl.Status())
		return false, nil

	case "/refresh":
		if !ctrl.RefreshStatus(ctx) {
			infoColor.Println("A health check is already in progress.")
			return false, nil
		}
		printStatus(ctrl.Status())
		return false, nil

	case "/stats":
		printStats(ctrl)
		return false, nil

	case "/clear":
		ctrl.ClearHistory()
		infoColor.Println("History cleared.")
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /search <query>  - Search campus documents")
		fmt.Println("  /status          - Show backend status")
		fmt.Println("  /refresh         - Re-check backend status now")
		fmt.Println("  /stats           - Show session statistics")
		fmt.Println("  /clear           - Clear conversation history")
		fmt.Println("  /help            - Show this help message")
		fmt.Println("  /quit, /exit     - Exit")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

func printTurn(turn session.Turn) {
	switch {
	case turn.Role == session.RoleUser:
		promptColor.Printf("You: %s\n", turn.Text)
	case turn.Diagnostics["error_kind"] != "":
		errColor.Printf("Bot: %s\n", turn.Text)
	default:
		botColor.Printf("Bot: %s\n", turn.Text)
	}
}

func printStatus(snap status.Snapshot) {
	reachable := "unreachable"
	if snap.Reachable {
		reachable = "reachable"
	}
	infoColor.Printf("Backend: %s, mode %s", reachable, snap.Mode)
	if snap.Mode == status.ModeFull {
		infoColor.Printf(", %d of %d features active", snap.ActiveFeatures, len(snap.Features))
	}
	if !snap.CheckedAt.IsZero() {
		infoColor.Printf(" (checked %s)", snap.CheckedAt.Format("15:04:05"))
	}
	infoColor.Println()
}

func printStats(ctrl *chat.Controller) {
	stats := ctrl.Stats()
	mean := "unavailable"
	if stats.HasLatency {
		mean = fmt.Sprintf("%d ms", stats.MeanLatencyMS)
	}
	infoColor.Printf("Session %s\n", ctrl.Session().ID)
	infoColor.Printf("  Messages answered: %d\n", stats.Messages)
	infoColor.Printf("  Requests measured: %d\n", stats.Samples)
	infoColor.Printf("  Mean latency: %s\n", mean)
}
