package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ammar1510/mesh/internal/api"
	"github.com/ammar1510/mesh/internal/auth"
	"github.com/ammar1510/mesh/internal/chat"
	"github.com/ammar1510/mesh/internal/config"
	"github.com/ammar1510/mesh/internal/drafts"
	"github.com/ammar1510/mesh/internal/logger"
	"github.com/ammar1510/mesh/internal/websocket"
)

var log = logger.New("mesh-chat")

func init() {
	rootCmd.AddCommand(openCmd)
}

var openCmd = &cobra.Command{
	Use:   "open [peer-id]",
	Short: "Open the conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runOpen(ctx, configPath, metricsAddr, verbose, args[0])
	},
}

func runOpen(ctx context.Context, configPath, metricsAddr string, verbose bool, peerID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	closeLog, err := setupLogging(cfg, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}
	session, err := auth.ParseSession(token)
	if err != nil {
		return fmt.Errorf("invalid session token: %w", err)
	}

	store, err := drafts.NewStore(drafts.StoreType(cfg.Drafts.Store), cfg.Drafts.DSN)
	if err != nil {
		return fmt.Errorf("failed to open draft store: %w", err)
	}
	defer store.Close()

	var metrics *chat.Metrics
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		metrics = chat.NewMetrics(reg)
		shutdown := serveMetrics(cfg.Metrics.Addr, reg)
		defer shutdown()
	}

	conn := websocket.New(websocket.Config{
		URL:               cfg.SocketURL,
		Token:             token,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay(),
		AttemptTimeout:    cfg.AttemptTimeout(),
	})
	defer conn.Close()

	var rt chat.Realtime
	if err := conn.Connect(ctx); err != nil {
		log.Warn("Live updates unavailable: %v", err)
		fmt.Fprintln(os.Stderr, "Live updates unavailable, continuing offline")
	} else {
		if err := conn.Join(session.UserID); err != nil {
			log.Warn("Failed to join event stream: %v", err)
		}
		rt = conn
	}

	conv := chat.NewConversation(api.NewClient(cfg.APIURL, token), rt, session.Self(), chat.Options{
		PageSize:       cfg.Chat.PageSize,
		ThreadPageSize: cfg.Chat.ThreadPageSize,
		TypingTimeout:  cfg.TypingTimeout(),
		GroupWindow:    cfg.GroupWindow(),
		Drafts:         store,
		Metrics:        metrics,
	})
	defer conv.Close()

	maxVoice, _ := cfg.MaxVoiceNoteBytes()
	t := newTerminal(conv, session.UserID, os.Stdout, maxVoice)

	if err := conv.Open(ctx, peerID); err != nil {
		if errors.Is(err, chat.ErrPeerNotFound) {
			t.draw()
			return fmt.Errorf("no user with id %s", peerID)
		}
		return err
	}
	return t.run(ctx, os.Stdin)
}

// setupLogging sends log output to the configured file so it never
// interleaves with the chat screen.
func setupLogging(cfg *config.Config, verbose bool) (func(), error) {
	if err := logger.Configure(cfg.Log.Level); err != nil {
		return nil, err
	}
	if verbose {
		logger.SetMinLevel(logger.LevelDebug)
	}

	if cfg.Log.File == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(f)
	return func() { f.Close() }, nil
}

// resolveToken returns the configured token, prompting for it when stdin
// is a terminal.
func resolveToken(cfg *config.Config) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no session token: set MESH_TOKEN or token in the config file")
	}
	fmt.Fprint(os.Stderr, "Session token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info("Serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}
