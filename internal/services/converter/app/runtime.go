package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/platform/timeouts"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/llm"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/pipeline"
	convsqlite "github.com/davidvanstory/MultiplayerGame/internal/services/converter/storage/sqlite"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/sandbox"
	gamesqlite "github.com/davidvanstory/MultiplayerGame/internal/services/game/storage/sqlite"
)

// RuntimeConfig controls converter startup, dependencies, and worker
// behavior.
type RuntimeConfig struct {
	Port int

	// DBPath holds the job queue and artifact store.
	DBPath string
	// GameDBPath is the room store the worker publishes results to. In a
	// split deployment both services point at the same file.
	GameDBPath string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	LLMRetries    int

	MaxDocumentBytes int64
}

const (
	defaultConverterPort = 8090
	defaultConverterDB   = "data/converter.db"
	defaultGameDB        = "data/game.db"
)

// Run starts the converter dependencies, serves the HTTP API in the
// background, and drives the worker loop until the context ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.OpenAIKey) == "" {
		return fmt.Errorf("model api key is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultConverterPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultConverterDB
	}
	if strings.TrimSpace(cfg.GameDBPath) == "" {
		cfg.GameDBPath = defaultGameDB
	}

	for _, path := range []string{cfg.DBPath, cfg.GameDBPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	convStore, err := convsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open converter sqlite store: %w", err)
	}
	defer func() {
		if closeErr := convStore.Close(); closeErr != nil {
			log.Printf("close converter sqlite store: %v", closeErr)
		}
	}()

	gameStore, err := gamesqlite.Open(cfg.GameDBPath)
	if err != nil {
		return fmt.Errorf("open game sqlite store: %w", err)
	}
	defer func() {
		if closeErr := gameStore.Close(); closeErr != nil {
			log.Printf("close game sqlite store: %v", closeErr)
		}
	}()

	host := sandbox.New(sandbox.Config{Resolver: convStore})

	pipe, err := pipeline.New(pipeline.Config{
		Jobs:      convStore,
		Artifacts: convStore,
		Rooms:     gameStore,
		Deployer:  host,
		Model: llm.NewOpenAI(llm.OpenAIConfig{
			ResponsesURL: cfg.OpenAIBaseURL,
			APIKey:       cfg.OpenAIKey,
			Model:        cfg.OpenAIModel,
		}),
		PollInterval:  cfg.PollInterval,
		LeaseTTL:      cfg.LeaseTTL,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
		LLMRetries:    cfg.LLMRetries,
	})
	if err != nil {
		return fmt.Errorf("build conversion pipeline: %w", err)
	}

	handler, err := NewHandler(HandlerConfig{
		Pipeline:         pipe,
		Artifacts:        convStore,
		MaxDocumentBytes: cfg.MaxDocumentBytes,
	})
	if err != nil {
		return fmt.Errorf("build converter handler: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("converter http server: %v", err)
		}
		serveErr <- err
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown converter http server: %v", err)
		}
		cancel()
		<-serveErr
	}()

	log.Printf("converter listening on %s", httpServer.Addr)
	if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
