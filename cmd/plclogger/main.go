package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/plcwatch/plclogger/internal/api"
	"github.com/plcwatch/plclogger/internal/config"
	"github.com/plcwatch/plclogger/internal/diag"
	"github.com/plcwatch/plclogger/internal/device"
	"github.com/plcwatch/plclogger/internal/journal"
	"github.com/plcwatch/plclogger/internal/observability"
	"github.com/plcwatch/plclogger/internal/session"
	"github.com/plcwatch/plclogger/internal/tagcfg"
)

const version = "0.1.0"

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "plclogger",
		Usage: "Polls a PLC on a trigger condition and appends samples to SQLite",
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
			hashCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintf(os.Stderr, "plclogger: %v\n", err)
		os.Exit(1)
	}
}

// setup loads process config and brings up logging and tracing. The
// returned function flushes the tracer.
func setup() (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	shutdown, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "plclogger",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Protocol:       cfg.OTLPProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		shutdown = func(context.Context) error { return nil }
	}
	return cfg, func() {
		if err := shutdown(context.Background()); err != nil {
			log.Debug().Err(err).Msg("Tracer shutdown")
		}
	}, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a headless logging session",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "tcp", Usage: "force Modbus TCP mode"},
			&cli.BoolFlag{Name: "ads", Usage: "force Beckhoff ADS mode"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("tcp") && cmd.Bool("ads") {
				return fmt.Errorf("--tcp and --ads are mutually exclusive")
			}

			cfg, flush, err := setup()
			if err != nil {
				return err
			}
			defer flush()

			log.Info().Str("version", version).Msg("Starting PLC logger")

			doc := tagcfg.Load(cfg.TagConfigPath)
			if cmd.Bool("tcp") {
				doc.Settings.Mode = tagcfg.ModeTCP
			} else if cmd.Bool("ads") {
				doc.Settings.Mode = tagcfg.ModeADS
			}

			jnl, err := journal.Open(cfg.JournalPath)
			if err != nil {
				log.Warn().Err(err).Msg("Session journal unavailable, continuing without it")
				jnl = nil
			} else {
				defer jnl.Close()
			}

			sess, err := session.New(cfg.LogsDir, doc, consoleNotifier{}, jnl)
			if err != nil {
				return err
			}
			log.Info().Str("db", sess.DatabasePath()).Msg("Logging to database")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return sess.Run(ctx)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the history and diagnostics HTTP API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, flush, err := setup()
			if err != nil {
				return err
			}
			defer flush()

			log.Info().Str("version", version).Msg("Starting PLC logger API")

			doc := tagcfg.Load(cfg.TagConfigPath)

			jnl, err := journal.Open(cfg.JournalPath)
			if err != nil {
				log.Warn().Err(err).Msg("Session journal unavailable, continuing without it")
				jnl = nil
			} else {
				defer jnl.Close()
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			prober := diag.New(func() (device.Session, error) {
				return session.NewDevice(doc.Settings)
			}, secondsToDuration(cfg.DiagInterval))
			go prober.Run(ctx)

			srv := api.NewServer(cfg.LogsDir, prober, jnl)
			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Start(cfg.APIAddr)
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("Received shutdown signal")
			case err := <-errChan:
				return err
			}
			return srv.Shutdown(context.Background())
		},
	}
}

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash",
		Usage: "Print the fingerprint of the current tag configuration",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			observability.InitLogger("error", "")
			hash, err := tagcfg.Hash(tagcfg.Load(cfg.TagConfigPath))
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
