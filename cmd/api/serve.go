package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/aura/backend/internal/config"
	"github.com/zhouzirui/aura/backend/internal/handler"
	"github.com/zhouzirui/aura/backend/internal/handler/voice"
	"github.com/zhouzirui/aura/backend/internal/model/prompt"
	"github.com/zhouzirui/aura/backend/internal/service/ai"
	"github.com/zhouzirui/aura/backend/internal/service/conversation"
	"github.com/zhouzirui/aura/backend/internal/service/narration"
	"github.com/zhouzirui/aura/backend/internal/service/session"
	"github.com/zhouzirui/aura/backend/internal/service/speech"
	"github.com/zhouzirui/aura/backend/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	adapter, err := openAdapter(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer adapter.Close()

	gateway := newGateway(ctx, cfg, logger)

	store := session.NewStore(adapter,
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithLogger(logger),
	)

	hub := voice.NewHub(logger)
	player := narration.NewPlayer(hub, logger)
	defer player.Close()
	narrator := narration.NewNarrator(gateway, adapter, player, logger)

	ctl := conversation.NewController(store, adapter, gateway, narrator, logger)
	defer ctl.Wait()

	notice, err := ctl.Bootstrap(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to bootstrap sessions: %w", err)
	}
	if notice != "" {
		logger.Warn("session restore failed", "notice", notice)
	}
	logger.Info("sessions ready", "count", store.Len(), "storage", cfg.Storage.Driver)

	router := handler.NewRouter(ctl, prompt.NewMemoryStore(prompt.Seed()), hub, logger)
	return startServer(ctx, cfg.Server, router, logger)
}

// openAdapter 按配置打开持久化驱动。
func openAdapter(ctx context.Context, cfg config.StorageConfig) (*storage.Adapter, error) {
	kv, err := storage.NewKV(ctx, cfg.Driver, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Driver, err)
	}
	return storage.NewAdapter(kv), nil
}

// newGateway 选择模型后端。凭证缺失或初始化失败时返回 Unconfigured，
// 错误会在会话中展示给用户。
func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) ai.Gateway {
	switch cfg.AI.Provider {
	case config.ProviderArk:
		if !cfg.AI.Ark.Enabled() {
			logger.Warn("Ark 凭证未配置，模型调用将返回缺失凭证错误")
			return ai.Unconfigured{}
		}
		chatModel, err := cfg.AI.Ark.NewChatModel(ctx)
		if err != nil {
			logger.Error("failed to create ark chat model", "error", err)
			return ai.Unconfigured{}
		}

		var synth ai.Synthesizer
		if cfg.Speech.Enabled {
			synth = speech.NewVolcengineSynthesizer(cfg.Speech, logger)
		} else {
			logger.Info("语音服务凭证未配置，朗读不可用")
		}

		gw, err := ai.NewEinoGateway(ctx, chatModel, synth, logger)
		if err != nil {
			logger.Error("failed to initialize eino gateway", "error", err)
			return ai.Unconfigured{}
		}
		logger.Info("AI gateway initialized", "provider", "ark", "model", cfg.AI.Ark.Model)
		return gw

	default:
		if !cfg.AI.Gemini.Enabled() {
			logger.Warn("API_KEY not set, model calls will fail until it is configured")
			return ai.Unconfigured{}
		}
		gw, err := ai.NewGeminiGateway(ctx, cfg.AI.Gemini, logger)
		if err != nil {
			logger.Error("failed to initialize gemini gateway", "error", err)
			return ai.Unconfigured{}
		}
		logger.Info("AI gateway initialized", "provider", "gemini", "model", cfg.AI.Gemini.Model)
		return gw
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Aura backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
