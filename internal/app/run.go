package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobobo1618/ninesleep/internal/archive"
	"github.com/bobobo1618/ninesleep/internal/command"
	"github.com/bobobo1618/ninesleep/internal/config"
	"github.com/bobobo1618/ninesleep/internal/db"
	"github.com/bobobo1618/ninesleep/internal/httpapi"
	"github.com/bobobo1618/ninesleep/internal/migrate"
	"github.com/bobobo1618/ninesleep/internal/modules/bed"
	"github.com/bobobo1618/ninesleep/internal/mqtt"
	"github.com/bobobo1618/ninesleep/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Run starts the gateway and blocks until ctx is cancelled or a component
// fails. Both firmware listeners are bound before anything else starts, so
// a bind failure is returned without serving anything.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"commandSocket", cfg.CommandSocket,
		"commandReadTimeout", cfg.CommandReadTimeout,
		"telemetryAddr", cfg.TelemetryAddr,
		"telemetryIdleTimeout", cfg.TelemetryIdleTimeout,
		"archiveBackend", cfg.ArchiveBackend,
		"archiveDir", cfg.ArchiveDir,
		"archiveCompression", cfg.ArchiveCompression,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
	)

	commandLn, err := command.Listen(cfg.CommandSocket)
	if err != nil {
		return err
	}
	telemetryLn, err := telemetry.Listen(cfg.TelemetryAddr)
	if err != nil {
		commandLn.Close()
		return err
	}

	store, dbConn, err := openArchive(ctx, cfg, logger)
	if err != nil {
		commandLn.Close()
		telemetryLn.Close()
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("archive close", "error", err)
		}
	}()

	var (
		publisher *mqtt.Publisher
		sink      telemetry.Sink
	)
	if cfg.MQTTBroker != "" {
		publisher = mqtt.NewPublisher(cfg, logger.With("component", "mqtt"))
		sink = publisher
	} else {
		logger.Info("no MQTT broker configured, readings are only logged")
	}

	channel := command.NewChannel(logger.With("component", "command"), cfg.CommandReadTimeout)
	handler := telemetry.NewHandler(telemetry.Options{
		Store:       store,
		Sink:        sink,
		Logger:      logger.With("component", "telemetry"),
		IdleTimeout: cfg.TelemetryIdleTimeout,
	})

	mux := httpapi.NewMux(channel, dbConn)
	bed.RegisterFeature(mux, channel, logger.With("component", "bed"))
	srv := httpapi.NewServer(cfg, mux, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return command.Serve(gctx, commandLn, channel, logger.With("component", "command"))
	})
	g.Go(func() error {
		return telemetry.Serve(gctx, telemetryLn, handler, logger.With("component", "telemetry"))
	})

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if publisher != nil {
		g.Go(func() error {
			// Forwarding is optional: the gateway keeps running while the
			// broker is unreachable and paho keeps retrying.
			if err := publisher.Connect(gctx); err != nil && gctx.Err() == nil {
				logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
			}
			<-gctx.Done()
			logger.Info("mqtt disconnecting")
			publisher.Disconnect()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// openArchive builds the configured batch store. The returned *sql.DB is
// nil for the file backend; otherwise it is owned by the store.
func openArchive(ctx context.Context, cfg config.Config, logger *slog.Logger) (archive.Store, *sql.DB, error) {
	compression, err := archive.ParseCompression(cfg.ArchiveCompression)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.ArchiveBackend {
	case "sqlite":
		dbConn, err := db.Open(ctx, cfg, logger.With("component", "db"))
		if err != nil {
			return nil, nil, err
		}
		if err := migrate.Run(ctx, dbConn, logger); err != nil {
			dbConn.Close()
			return nil, nil, err
		}
		logger.Info("archiving batches to sqlite", "compression", string(compression))
		return archive.NewSQLiteStore(dbConn, compression), dbConn, nil
	default:
		store, err := archive.NewFileStore(cfg.ArchiveDir, compression, logger.With("component", "archive"))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("archiving batches to files", "dir", cfg.ArchiveDir, "compression", string(compression))
		return store, nil, nil
	}
}
