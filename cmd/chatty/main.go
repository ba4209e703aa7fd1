package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatty/internal/bus"
	"chatty/internal/channel"
	"chatty/internal/chat"
	"chatty/internal/config"
	"chatty/internal/domain"
	"chatty/internal/draw"
	"chatty/internal/gateway"
	"chatty/internal/metrics"
	"chatty/internal/overlay"
	"chatty/internal/persona"
	"chatty/internal/prompt"
	"chatty/internal/sanitize"
	"chatty/internal/store"
	"chatty/internal/voice"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "chatty",
		Short: "Chatty: a multi-surface conversational AI agent",
		Long:  "Chatty bridges chat surfaces (Twitch, Discord, Telegram, Slack, WebSocket) to a streaming text-generation backend.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yml (default: ~/.chatty/config.yml)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the generation backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			gw := gateway.New(cfg.Backend, gateway.Callbacks{}, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := gw.Healthy(ctx); err != nil {
				logger.Error("backend unhealthy", "url", cfg.Backend.BaseURL, "err", err)
				return err
			}
			logger.Info("backend healthy", "url", cfg.Backend.BaseURL)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("chatty " + version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the agent and all enabled surfaces",
		RunE:  run,
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setLogLevel(cfg.General.LogLevel)

	p, err := persona.Load(cfg.General.PersonaFile)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}
	logger.Info("persona loaded", "name", p.Name, "file", cfg.General.PersonaFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(cfg.General.BusBuffer, logger)
	defer messageBus.Close()

	budgeter, err := prompt.New(cfg.Messages, p, cfg.Drawing.Enabled, logger)
	if err != nil {
		return err
	}

	sanitizer := sanitize.New(cfg.Sanitizer, p.Name, cfg.Messages.ChatDelimiter, logger)

	var drawManager *draw.Manager
	if cfg.Drawing.Enabled {
		client := draw.NewClient(cfg.Drawing.BaseURL, cfg.Drawing.NegativePrompt, cfg.Drawing.RequestParams)
		drawManager = draw.NewManager(client, cfg.Drawing, logger)
	}

	var speaker *voice.Speaker
	if cfg.Voice.Enabled {
		speaker = voice.New(cfg.Voice, nil, logger)
		go speaker.Run(ctx)
	}

	var overlayOut *overlay.Output
	if cfg.Overlay.Enabled {
		overlayOut = overlay.New(cfg.Overlay.ResponseFile, cfg.Overlay.PromptFile, cfg.Overlay.Expire(), logger)
	}

	var transcript *store.SQLiteStore
	if cfg.Store.Enabled {
		transcript, err = store.New(cfg.Store.DBPath, logger)
		if err != nil {
			return fmt.Errorf("transcript store: %w", err)
		}
		defer transcript.Close()
	}

	deps := chat.Deps{
		Config:      cfg.Messages,
		Voice:       cfg.Voice,
		PersonaName: p.Name,
		Budgeter:    budgeter,
		Sanitizer:   sanitizer,
		Bus:         messageBus,
		DrawManager: drawManager,
		Speaker:     speaker,
		Overlay:     overlayOut,
		Transcript:  transcript,
		Logger:      logger,
	}
	// The gateway and dispatcher reference each other; the callbacks close
	// over the dispatcher variable assigned just below.
	var dispatcher *chat.Dispatcher
	gw := gateway.New(cfg.Backend, gateway.Callbacks{
		OnToken:    func(channelID, token string) { dispatcher.OnToken(channelID, token) },
		OnResponse: func(channelID, full string) { dispatcher.OnResponse(channelID, full) },
	}, logger)
	deps.Generator = gw
	dispatcher = chat.NewDispatcher(deps)

	if err := gw.Healthy(ctx); err != nil {
		logger.Warn("backend unhealthy at startup", "err", err)
	}
	go gw.Run(ctx)
	go dispatcher.Run(ctx)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Port)
	}

	startSurfaces(ctx, cfg, messageBus)

	logger.Info("chatty started", "version", version)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func startSurfaces(ctx context.Context, cfg *config.Config, messageBus domain.MessageBus) {
	var surfaces []domain.Surface
	if cfg.Channels.Twitch.Enabled {
		surfaces = append(surfaces, channel.NewTwitch(cfg.Channels.Twitch, logger))
	}
	if cfg.Channels.Discord.Enabled {
		surfaces = append(surfaces, channel.NewDiscord(cfg.Channels.Discord, logger))
	}
	if cfg.Channels.Telegram.Enabled {
		surfaces = append(surfaces, channel.NewTelegram(cfg.Channels.Telegram, logger))
	}
	if cfg.Channels.Slack.Enabled {
		surfaces = append(surfaces, channel.NewSlack(cfg.Channels.Slack, logger))
	}
	if cfg.Channels.WebSocket.Enabled {
		surfaces = append(surfaces, channel.NewWebSocketAPI(cfg.Channels.WebSocket, logger))
	}
	if len(surfaces) == 0 {
		logger.Warn("no surfaces enabled")
	}

	for _, s := range surfaces {
		s := s
		go func() {
			if err := s.Start(ctx, messageBus); err != nil {
				logger.Error("surface error", "surface", s.Name(), "err", err)
			}
		}()
		logger.Info("surface enabled", "surface", s.Name())
	}
}

func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Collector.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics server starting", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "err", err)
	}
}

func setLogLevel(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
