// Package entrypoint runs the game and conversion services in one process.
//
// The game service reaches the converter over loopback HTTP, the same
// contract it uses when the two run as separate deployments.
package entrypoint

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	convertercmd "github.com/davidvanstory/MultiplayerGame/internal/cmd/converter"
	gamecmd "github.com/davidvanstory/MultiplayerGame/internal/cmd/game"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/cmd"
	converterapp "github.com/davidvanstory/MultiplayerGame/internal/services/converter/app"
	server "github.com/davidvanstory/MultiplayerGame/internal/services/game/app"
)

// Config holds configuration for both services.
type Config struct {
	Game      gamecmd.Config
	Converter convertercmd.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Game.Port, "game-port", cfg.Game.Port, "The game server port")
	fs.IntVar(&cfg.Converter.Port, "converter-port", cfg.Converter.Port, "The converter server port")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts both services and stops the pair when either exits.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceEntrypoint, func(context.Context) error {
		return runServices(ctx, cfg)
	})
}

// serviceExit reports one service's run result.
type serviceExit struct {
	name string
	err  error
}

func runServices(ctx context.Context, cfg Config) error {
	// The game service discovers the converter through the environment,
	// exactly as it does in a split deployment.
	if os.Getenv("MPG_CONVERTER_ADDR") == "" {
		addr := fmt.Sprintf("http://127.0.0.1:%d", cfg.Converter.Port)
		if err := os.Setenv("MPG_CONVERTER_ADDR", addr); err != nil {
			return fmt.Errorf("set converter address: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitCh := make(chan serviceExit, 2)
	go func() {
		exitCh <- serviceExit{name: cmd.ServiceConverter, err: converterapp.Run(ctx, cfg.Converter.Runtime())}
	}()
	go func() {
		exitCh <- serviceExit{name: cmd.ServiceGame, err: runGame(ctx, cfg.Game)}
	}()

	first := <-exitCh
	cancel()
	second := <-exitCh

	if first.err != nil {
		// Only one failure can be returned, so the other is logged.
		if second.err != nil {
			log.Printf("%s exited: %v", second.name, second.err)
		}
		return fmt.Errorf("%s: %w", first.name, first.err)
	}
	if second.err != nil {
		return fmt.Errorf("%s: %w", second.name, second.err)
	}
	return nil
}

func runGame(ctx context.Context, cfg gamecmd.Config) error {
	if cfg.Addr != "" {
		return server.RunWithAddr(ctx, cfg.Addr)
	}
	return server.Run(ctx, cfg.Port)
}
