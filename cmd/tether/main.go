// Command tether bridges a host editor to an external text engine. The
// host speaks JSON-RPC over stdio; the engine is reached over a socket or
// spawned as a child process.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/tether/internal/config"
	"github.com/xonecas/tether/internal/engine"
	"github.com/xonecas/tether/internal/host"
	"github.com/xonecas/tether/internal/screen"
	"github.com/xonecas/tether/internal/session"
	"github.com/xonecas/tether/internal/trace"
)

func main() {
	configPath := flag.String("config", "", "path to tether.toml")
	engineAddr := flag.String("engine", "", "engine address (unix socket path or host:port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		os.Exit(1)
	}
	if *engineAddr != "" {
		cfg.Engine.Addr = *engineAddr
	}

	// Stdio belongs to the host channel, so logs go to a file (or stderr).
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("tether: exiting")
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var journal *trace.Journal
	if cfg.Trace.Path != "" {
		j, err := trace.Open(cfg.Trace.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Trace.Path).Msg("trace journal disabled")
		} else {
			journal = j
		}
	}

	client, err := connectEngine(ctx, cfg.Engine)
	if err != nil {
		return err
	}

	editor := host.NewRemoteEditor(ctx, stdio{})

	registry := session.NewRegistry()
	registry.Register("trace_faults", func(ctx context.Context, cmd engine.HostCommand) (any, error) {
		return journal.Recent(50)
	})

	sess := session.New(client, editor, session.Options{
		IdleDrain: cfg.Sync.IdleDrainOrDefault(),
		Screen: screen.Config{
			GutterWidth:  cfg.Screen.GutterWidthOrDefault(),
			OOBRowLimit:  cfg.Screen.OOBRowLimitOrDefault(),
			CmdlineDelay: cfg.Screen.CmdlineDelayOrDefault(),
			GutterStyle:  cfg.Screen.GutterStyleOrDefault(),
			Theme:        cfg.Screen.ThemeOrDefault(),
		},
		Journal:  journal,
		Dispatch: registry,
	})
	editor.SetHooks(sess)

	go sess.Run(ctx)
	defer sess.Close(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-client.DisconnectNotify():
		log.Info().Msg("engine channel closed")
	case <-editor.DisconnectNotify():
		log.Info().Msg("host channel closed")
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	}
	return nil
}

// connectEngine dials a configured address, or spawns the configured
// engine command and speaks over its stdio.
func connectEngine(ctx context.Context, cfg config.EngineConfig) (*engine.Client, error) {
	if cfg.Addr != "" {
		return engine.Dial(ctx, cfg.Addr)
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("no engine address or command configured")
	}

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn().Err(err).Msg("engine process exited")
		}
	}()
	return engine.NewClient(ctx, pipePair{r: stdout, w: stdin}), nil
}

func setupLogging(cfg config.LogConfig) (func(), error) {
	level, err := zerolog.ParseLevel(cfg.LevelOrDefault())
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	if cfg.File == "" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { f.Close() }, nil
}

// stdio is the host channel transport: the process's own stdin/stdout.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return os.Stdout.Close() }

// pipePair joins a child process's stdout/stdin into one transport.
type pipePair struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p pipePair) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipePair) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p pipePair) Close() error {
	p.w.Close()
	return p.r.Close()
}
