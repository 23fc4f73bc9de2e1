package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/crewlens/crewlens/internal/backend"
	"github.com/crewlens/crewlens/internal/layout"
	"github.com/crewlens/crewlens/internal/replay"
	"github.com/crewlens/crewlens/internal/session"
	"github.com/crewlens/crewlens/internal/webui"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// This command connects to the backend's update stream and serves the web UI.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Connect to a backend and serve the visualization UI",
		Description: `Subscribes to the backend's WebSocket update stream, reconciles the
updates into per-execution graphs, and serves them to browsers over
HTTP and WebSocket. With --replay-dir, recordings are replayed instead
of connecting to a live backend.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a config file (overrides discovery)",
			},
			&cli.StringFlag{
				Name:  "backend-url",
				Usage: "Backend REST base URL",
			},
			&cli.StringFlag{
				Name:  "stream-url",
				Usage: "Backend update stream URL (derived from backend-url if unset)",
			},
			&cli.StringFlag{
				Name:  "listen-host",
				Usage: "Web UI bind address",
			},
			&cli.IntFlag{
				Name:  "listen-port",
				Usage: "Web UI port",
			},
			&cli.StringFlag{
				Name:  "direction",
				Usage: "Layout axis: vertical or horizontal",
			},
			&cli.StringFlag{
				Name:  "replay-dir",
				Usage: "Replay *.jsonl recordings from this directory instead of a backend",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose logging",
			},
		},
		Action: runServe,
	}
}

// flagOverrides builds a Config overlay from the flags that were set.
func flagOverrides(cmd *cli.Command) *Config {
	return &Config{
		BackendURL: cmd.String("backend-url"),
		StreamURL:  cmd.String("stream-url"),
		ListenHost: cmd.String("listen-host"),
		ListenPort: cmd.Int("listen-port"),
		Direction:  cmd.String("direction"),
		ReplayDir:  cmd.String("replay-dir"),
		Verbose:    cmd.Bool("verbose"),
	}
}

// runServe wires together all components: sessions, transport, and web UI.
func runServe(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg = MergeConfigs(cfg, flagOverrides(cmd))

	if cfg.Direction != string(layout.Vertical) && cfg.Direction != string(layout.Horizontal) {
		return fmt.Errorf("invalid direction %q (want vertical or horizontal)", cfg.Direction)
	}

	if cfg.Verbose {
		log.Println("🔧 Configuration:")
		log.Printf("  Backend: %s\n", cfg.BackendURL)
		log.Printf("  Stream: %s\n", cfg.EffectiveStreamURL())
		log.Printf("  Listen: %s\n", cfg.ListenAddr())
		log.Printf("  Direction: %s\n", cfg.Direction)
		log.Printf("  Event buffer: %d updates\n", cfg.EventBufferSize)
		if cfg.ReplayDir != "" {
			log.Printf("  Replay dir: %s\n", cfg.ReplayDir)
		}
		log.Println()
	}

	ctx, stop := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := session.NewManager(layout.Direction(cfg.Direction), cfg.EventBufferSize)

	var client *backend.Client
	if cfg.ReplayDir != "" {
		src, err := replay.New(replay.Config{Directory: cfg.ReplayDir, Verbose: cfg.Verbose}, manager.Dispatch)
		if err != nil {
			return err
		}
		if err := src.Start(ctx); err != nil {
			return err
		}
		defer src.Stop()
		log.Printf("📼 Replaying recordings from %s\n", cfg.ReplayDir)
	} else {
		client = backend.NewClient(cfg.BackendURL)
		go streamLoop(ctx, cfg.EffectiveStreamURL(), manager, cfg.Verbose)
	}

	server := webui.New(manager, client)
	log.Printf("🌐 Web UI listening on http://%s/ui/\n", cfg.ListenAddr())

	if err := server.ListenAndServe(ctx, cfg.ListenAddr()); err != nil {
		return fmt.Errorf("web UI server error: %w", err)
	}

	log.Println("👋 Shut down cleanly")
	return nil
}

// streamLoop keeps one stream subscription alive for the lifetime of the
// process. The stream itself has no reconnect policy; this loop redials
// with a fixed delay so a backend restart only costs a few seconds of
// updates.
func streamLoop(ctx context.Context, url string, manager *session.Manager, verbose bool) {
	const redialDelay = 3 * time.Second

	for ctx.Err() == nil {
		stream := backend.NewStream(url)
		if err := stream.Dial(ctx); err != nil {
			if verbose {
				log.Printf("⚠️  %v (retrying in %s)", err, redialDelay)
			}
		} else {
			if err := stream.Run(ctx, manager.Dispatch); err != nil && ctx.Err() == nil {
				log.Printf("⚠️  stream dropped: %v (reconnecting)", err)
			}
			stream.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}
