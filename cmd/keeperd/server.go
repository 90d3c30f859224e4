package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/ai-trpg/keeper/internal/bootstrap"
	"github.com/ai-trpg/keeper/internal/catalog"
	"github.com/ai-trpg/keeper/internal/config"
	"github.com/ai-trpg/keeper/internal/dicehub"
	"github.com/ai-trpg/keeper/internal/diceroll"
	"github.com/ai-trpg/keeper/internal/httpapi"
	"github.com/ai-trpg/keeper/internal/intent"
	"github.com/ai-trpg/keeper/internal/memoryclient"
	"github.com/ai-trpg/keeper/internal/metrics"
	"github.com/ai-trpg/keeper/internal/npcreactor"
	"github.com/ai-trpg/keeper/internal/oracleclient"
	"github.com/ai-trpg/keeper/internal/ports"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
	"github.com/ai-trpg/keeper/internal/skillcheck"
	"github.com/ai-trpg/keeper/internal/stores"
	"github.com/ai-trpg/keeper/internal/synth"
	"github.com/ai-trpg/keeper/internal/trigger"
	"github.com/ai-trpg/keeper/internal/turn"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the keeper HTTP/WebSocket server",
	RunE:  runServer,
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("keeperd: received shutdown signal, stopping gracefully")
		cancel()
	}()

	redisClient, err := redisclient.NewClient(cfg.RedisAddr, &redisclient.Options{
		PoolSize:        cfg.RedisPoolSize,
		MaxRetries:      cfg.RedisMaxRetry,
		ConnMaxIdleTime: cfg.RedisIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	rawDB, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if !cfg.SkipAutoMigration {
		if err := catalog.Migrate(rawDB); err != nil {
			return fmt.Errorf("migrate catalog: %w", err)
		}
	}
	db := sqlx.NewDb(rawDB, "postgres")

	loader, err := catalog.New(catalog.Config{DB: db})
	if err != nil {
		return fmt.Errorf("create catalog loader: %w", err)
	}

	sheets, err := stores.NewSheetStore(redisClient)
	if err != nil {
		return fmt.Errorf("create sheet store: %w", err)
	}
	sessions, err := stores.NewSessionStore(redisClient)
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	maps, err := stores.NewMapStateStore(redisClient)
	if err != nil {
		return fmt.Errorf("create map state store: %w", err)
	}
	world, err := stores.NewWorldStore(redisClient)
	if err != nil {
		return fmt.Errorf("create world store: %w", err)
	}
	history, err := stores.NewHistoryStore(redisClient)
	if err != nil {
		return fmt.Errorf("create history store: %w", err)
	}
	completedEvents, err := stores.NewCompletedEventsStore(redisClient)
	if err != nil {
		return fmt.Errorf("create completed events store: %w", err)
	}
	changes, err := stores.NewChangeApplier(sheets, sessions, maps, world)
	if err != nil {
		return fmt.Errorf("create change applier: %w", err)
	}

	boot, err := bootstrap.New(bootstrap.Config{
		Catalog: loader, Sheets: sheets, Sessions: sessions, Maps: maps, World: world,
	})
	if err != nil {
		return fmt.Errorf("create bootstrapper: %w", err)
	}
	if err := boot.SeedWorldState(ctx); err != nil {
		return fmt.Errorf("seed world state: %w", err)
	}

	oracle, err := oracleclient.New(oracleclient.Config{
		Endpoint: cfg.OracleEndpoint, APIKey: cfg.OracleAPIKey, Timeout: cfg.OracleTimeout,
	})
	if err != nil {
		return fmt.Errorf("create oracle client: %w", err)
	}

	var memory ports.Memory = memoryclient.NewNoop()
	if cfg.MemoryEndpoint != "" {
		memory, err = memoryclient.New(memoryclient.Config{Endpoint: cfg.MemoryEndpoint})
		if err != nil {
			return fmt.Errorf("create memory client: %w", err)
		}
	}

	hub, err := dicehub.New(dicehub.Config{Redis: redisClient})
	if err != nil {
		return fmt.Errorf("create dice hub: %w", err)
	}
	go hub.Run(ctx)

	roller := diceroll.NewToolkitRoller()

	parser, err := intent.NewParser(intent.Config{Oracle: oracle})
	if err != nil {
		return fmt.Errorf("create intent parser: %w", err)
	}
	evaluator, err := trigger.NewEvaluator(trigger.Config{
		Oracle:       oracle,
		ResolveAgent: sessions.Get,
	})
	if err != nil {
		return fmt.Errorf("create trigger evaluator: %w", err)
	}
	resolver, err := skillcheck.NewResolver(skillcheck.Config{Roller: roller, DiceSink: hub})
	if err != nil {
		return fmt.Errorf("create skill resolver: %w", err)
	}
	reactor, err := npcreactor.NewReactor(npcreactor.Config{
		Oracle: oracle, Memory: memory, Roller: roller, Sheets: sheets, Sessions: sessions,
	})
	if err != nil {
		return fmt.Errorf("create npc reactor: %w", err)
	}
	synthesizer, err := synth.NewSynthesizer(synth.Config{
		Sheets: sheets, Sessions: sessions, Maps: maps, History: history,
		CompletedEvents: completedEvents, Changes: changes, Roller: roller, Refresh: hub,
	})
	if err != nil {
		return fmt.Errorf("create synthesizer: %w", err)
	}

	orchestrator, err := turn.New(turn.Config{
		Bootstrap: boot, Sheets: sheets, Sessions: sessions, Maps: maps, CompletedEvents: completedEvents,
		IntentParser: parser, TriggerEvaluator: evaluator, SkillResolver: resolver,
		NPCReactor: reactor, Synthesizer: synthesizer, OracleTimeout: cfg.OracleTimeout,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	registry := metrics.NewRegistry()

	router, err := httpapi.NewRouter(httpapi.Config{
		Bootstrap: boot, Orchestrator: orchestrator, Sheets: sheets, Sessions: sessions,
		History: history, Hub: hub, Redis: redisClient, Registry: registry,
	})
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("keeperd: http server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		slog.Info("keeperd: stopped gracefully")
		return nil
	case err := <-errChan:
		return err
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
