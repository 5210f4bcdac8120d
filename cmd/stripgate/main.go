// Stripgate bridges a smart-home voice platform and WiFi strip-light
// controllers.
//
// Controllers dial in over WebSocket and announce their id; the platform
// lists, queries and drives them over HTTPS with bearer tokens issued by an
// external identity provider. Device state lives in memory only. An action
// audit trail (SQLite), an MQTT state mirror and InfluxDB telemetry can be
// enabled in the config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxsfamily/stripgate/internal/api"
	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/auth"
	"github.com/maxsfamily/stripgate/internal/bridge"
	"github.com/maxsfamily/stripgate/internal/connection"
	"github.com/maxsfamily/stripgate/internal/device"
	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
	"github.com/maxsfamily/stripgate/internal/infrastructure/database"
	"github.com/maxsfamily/stripgate/internal/infrastructure/influxdb"
	"github.com/maxsfamily/stripgate/internal/infrastructure/logging"
	"github.com/maxsfamily/stripgate/internal/infrastructure/mqtt"
	"github.com/maxsfamily/stripgate/internal/session"
	"github.com/maxsfamily/stripgate/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// sessionPruneInterval is how often expired, unrefreshable sessions are dropped.
const sessionPruneInterval = 10 * time.Minute

// startupHealthTimeout bounds the health check run before serving.
const startupHealthTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// infra holds the optional infrastructure clients; nil means disabled.
type infra struct {
	db     *database.DB
	mqtt   *mqtt.Client
	influx *influxdb.Client
}

// run is the application logic, separated from main for testability.
// Components start in dependency order and stop in reverse.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear start-up sequence
	log := logging.Default()
	log.Info("starting stripgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	var in infra

	// Audit trail (optional)
	var (
		auditRepo audit.Repository
		recorder  *audit.Recorder
	)
	if cfg.Database.Enabled {
		in.db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := in.db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := in.db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		repo := audit.NewSQLiteRepository(in.db.DB)
		auditRepo = repo
		recorder = audit.NewRecorder(repo, audit.DefaultQueueSize)
		recorder.SetLogger(log.With("component", "audit"))

		// Drained before the database closes: defers run in reverse order.
		recorderCtx, stopRecorder := context.WithCancel(context.Background())
		recorderDone := make(chan struct{})
		go func() {
			defer close(recorderDone)
			recorder.Run(recorderCtx)
		}()
		defer func() {
			stopRecorder()
			<-recorderDone
			log.Info("audit recorder drained")
		}()
	} else {
		log.Info("audit trail disabled")
	}

	// Device registry and connections
	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))

	manager := connection.NewManager(cfg.WebSocket, registry, log)
	registry.SetSender(manager)
	defer func() {
		log.Info("closing device connections")
		manager.Close()
	}()

	for _, id := range cfg.Devices.Preprovisioned {
		if regErr := registry.Register(device.NewStrip(id, nil)); regErr != nil {
			return fmt.Errorf("pre-provisioning device %q: %w", id, regErr)
		}
	}
	if n := len(cfg.Devices.Preprovisioned); n > 0 {
		log.Info("devices pre-provisioned", "count", n)
	}

	// Sessions
	sessions := session.NewCache(session.NewOAuthProvider(cfg.Provider, nil), cfg.Provider)
	sessions.SetLogger(log.With("component", "session"))
	go sessions.Run(ctx, sessionPruneInterval)

	// MQTT state mirror (optional)
	if cfg.MQTT.Enabled {
		in.mqtt, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := in.mqtt.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		in.mqtt.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mirror, bridgeErr := startBridge(in.mqtt, registry, recorder, cfg.MQTT, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mirror.Stop()
		}()
	} else {
		log.Info("MQTT state mirror disabled")
	}

	// InfluxDB telemetry (optional)
	if cfg.InfluxDB.Enabled {
		in.influx, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := in.influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		in.influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		registry.AddObserver(bridge.NewTelemetry(in.influx))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Operator account (optional)
	operator, err := auth.NewOperator(cfg.Security)
	if err != nil {
		return fmt.Errorf("configuring operator account: %w", err)
	}
	if operator == nil {
		log.Info("operator login disabled")
	}

	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Registry:    registry,
		Sessions:    sessions,
		Connections: manager,
		Operator:    operator,
		AuditRepo:   auditRepo,
		Recorder:    recorder,
		Health:      in.healthCheck,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	healthCtx, cancelHealth := context.WithTimeout(ctx, startupHealthTimeout)
	err = in.healthCheck(healthCtx)
	cancelHealth()
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startBridge wires the MQTT mirror to the registry and republishes the
// retained topics whenever the broker connection is re-established.
func startBridge(client *mqtt.Client, registry *device.Registry, recorder *audit.Recorder, cfg config.MQTTConfig, log *logging.Logger) (*bridge.Bridge, error) {
	opts := bridge.Options{
		MQTT:     client,
		Registry: registry,
		QoS:      byte(cfg.QoS), //nolint:gosec // validated to 0..2
	}
	if recorder != nil {
		opts.Recorder = recorder
	}

	b, err := bridge.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	b.SetLogger(log.With("component", "bridge"))

	registry.AddObserver(b)
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	client.SetOnConnect(b.Republish)
	log.Info("MQTT bridge started")
	return b, nil
}

func getConfigPath() string {
	if path := os.Getenv("STRIPGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every enabled infrastructure component.
func (in infra) healthCheck(ctx context.Context) error {
	var errs []error

	if in.db != nil {
		if err := in.db.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if in.mqtt != nil {
		if err := in.mqtt.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if in.influx != nil {
		if err := in.influx.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}

	return errors.Join(errs...)
}
