// Package server hosts the game service: the room store, registry, session
// runtime, validator sandbox, and HTTP transport, wired from the
// environment.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidvanstory/MultiplayerGame/internal/auth/token"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/timeouts"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/client"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/api/httpapi"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/registry"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/runtime"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/sandbox"
	storagesqlite "github.com/davidvanstory/MultiplayerGame/internal/services/game/storage/sqlite"
)

// Server hosts the multiplayer game service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *storagesqlite.Store
	reg        *registry.Registry
}

// New creates a configured game server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured game server listening on addr. The
// listener is bound eagerly so port conflicts surface before any stores
// are opened.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	store, err := openRoomStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	reg, err := registry.New(registry.Config{Store: store})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build room registry: %w", err)
	}

	// A converter address switches on document conversions and remote
	// validator resolution. Without one the service runs standalone:
	// direct rooms only, generic validators.
	var conversions httpapi.Conversions
	var documents httpapi.DocumentSource
	var resolver sandbox.Resolver
	if converterAddr := strings.TrimSpace(os.Getenv("MPG_CONVERTER_ADDR")); converterAddr != "" {
		converter, err := client.New(client.Config{BaseURL: converterAddr})
		if err != nil {
			_ = listener.Close()
			_ = store.Close()
			reg.Close()
			return nil, fmt.Errorf("build converter client: %w", err)
		}
		conversions = conversionClient{converter}
		documents = converter
		resolver = converter
	}

	host := sandbox.New(sandbox.Config{Resolver: resolver})

	rt, err := runtime.New(runtime.Config{
		Store:    store,
		Registry: reg,
		Invoker:  host,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		reg.Close()
		return nil, fmt.Errorf("build session runtime: %w", err)
	}

	secret, err := tokenSecret()
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		reg.Close()
		return nil, err
	}
	tokens, err := token.New(token.Config{Secret: secret})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		reg.Close()
		return nil, fmt.Errorf("build token issuer: %w", err)
	}

	handler, err := httpapi.New(httpapi.Config{
		Store:         store,
		Runtime:       rt,
		Tokens:        tokens,
		Conversions:   conversions,
		Deployer:      host,
		Documents:     documents,
		PublicBaseURL: strings.TrimSpace(os.Getenv("MPG_PUBLIC_BASE_URL")),
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		reg.Close()
		return nil, fmt.Errorf("build http handler: %w", err)
	}

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		store: store,
		reg:   reg,
	}, nil
}

// Addr returns the listener address for the game server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a game server until the context ends.
func Run(ctx context.Context, port int) error {
	srv, err := New(port)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// RunWithAddr creates and serves a game server on addr until the context
// ends.
func RunWithAddr(ctx context.Context, addr string) error {
	srv, err := NewWithAddr(addr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the game server and blocks until it stops or the context
// ends. In-flight requests get a bounded drain on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.close()

	stopJanitor := s.reg.StartJanitor(ctx)
	defer stopJanitor()

	log.Printf("game server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}

func (s *Server) close() {
	if s == nil {
		return
	}
	if s.reg != nil {
		s.reg.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close room store: %v", err)
		}
	}
}

func openRoomStore() (*storagesqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("MPG_GAME_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "game.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := storagesqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

// tokenSecret reads the signing secret from the environment, generating an
// ephemeral one when unset so development servers start without config.
func tokenSecret() ([]byte, error) {
	if secret := strings.TrimSpace(os.Getenv("MPG_TOKEN_SECRET")); secret != "" {
		return []byte(secret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	log.Printf("MPG_TOKEN_SECRET is unset; player tokens will not survive a restart")
	return secret, nil
}
