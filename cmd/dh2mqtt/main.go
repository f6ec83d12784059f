// dh2mqtt relays device-hub control messages to per-device MQTT topics.
//
// The relay subscribes to dh/# on a single broker, decodes every envelope
// that arrives on dh/request and republishes its notification parameters on
// devices/<deviceId>/notification/<name>. A watchdog forces a reconnect when
// the control topic stays silent for too long.
//
// Usage:
//
//	dh2mqtt <path/to/config.yaml>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/dh2mqtt/internal/api"
	"github.com/nerrad567/dh2mqtt/internal/bridges/devicehub"
	"github.com/nerrad567/dh2mqtt/internal/connection"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/dh2mqtt/internal/journal"
	"github.com/nerrad567/dh2mqtt/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// journalQueueSize bounds the transitions waiting to be persisted.
const journalQueueSize = 64

const usageText = `Usage: dh2mqtt <path/to/config.yaml>

The configuration file must provide:
  server.url       broker URL, e.g. tcp://broker:1883 or ssl://broker:8883
  server.user      broker user name
  server.password  broker password
  client.id        MQTT client identifier

Optional sections: mqtt, relay, logging, journal, influxdb, api.
Environment variables DH2MQTT_SERVER_URL, DH2MQTT_SERVER_USER,
DH2MQTT_SERVER_PASSWORD and DH2MQTT_CLIENT_ID override the file.
`

// errUsage is returned by run after the usage text has been printed.
var errUsage = errors.New("invalid invocation")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for the usage text
//
// Returns:
//   - error: nil on clean shutdown, errUsage after printing usage, or the failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return usage(stdout, fmt.Errorf("expected 1 argument, got %d", len(args)))
	}
	configPath := args[0]

	// Nothing touches the network until the configuration is complete.
	cfg, err := config.Load(configPath)
	if err != nil {
		return usage(stdout, err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting dh2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	checks := make(map[string]api.HealthChecker)

	// Connection journal (optional)
	var journalWriter *journal.Writer
	var journalRepo journal.Repository
	if cfg.Journal.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening journal: %w", openErr)
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}

		repo := journal.NewSQLiteRepository(db.DB)
		journalRepo = repo
		checks["journal"] = db
		journalWriter = journal.NewWriter(repo, journalQueueSize, log)
		journalWriter.Start()
		defer journalWriter.Stop()
		log.Info("journal enabled", "path", cfg.Journal.Path)
	}

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	mgr, err := connection.NewManager(connection.Config{
		Filter:            devicehub.ControlFilter,
		TickInterval:      cfg.Relay.TickInterval,
		WatchdogThreshold: cfg.Relay.WatchdogThreshold,
		ReconnectDelay:    cfg.Relay.ReconnectDelay,
		DispatchBuffer:    cfg.Relay.DispatchBuffer,
		Accept:            devicehub.IsControlTopic,
	}, sessionFactory(cfg, log))
	if err != nil {
		return fmt.Errorf("creating connection manager: %w", err)
	}
	mgr.SetLogger(log.With("component", "connection"))
	mgr.SetOnTransition(transitionObserver(log, journalWriter, influxClient))

	relayOpts := devicehub.RelayOptions{
		Connection: mgr,
		Logger:     log.With("component", "relay"),
	}
	if influxClient != nil {
		relayOpts.Recorder = outcomeRecorder{client: influxClient}
	}
	relay, err := devicehub.NewRelay(relayOpts)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	mgr.SetHandler(relay)

	// Status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.With("component", "api"),
			Connection: mgr,
			Relay:      relay,
			Journal:    journalRepo,
			Checks:     checks,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("relay running",
		"broker", cfg.Server.URL,
		"client_id", cfg.Client.ID,
		"filter", devicehub.ControlFilter,
	)

	if err := mgr.Run(ctx); err != nil {
		return fmt.Errorf("running connection manager: %w", err)
	}

	stats := relay.Stats()
	connStats := mgr.Stats()
	log.Info("shutdown complete",
		"received", stats.Received,
		"relayed", stats.Relayed,
		"dropped", stats.Dropped,
		"connects", connStats.Connects,
		"connection_losses", connStats.ConnectionLosses,
	)
	return nil
}

// usage prints the reason and the usage text, then returns errUsage.
func usage(w io.Writer, reason error) error {
	fmt.Fprintf(w, "dh2mqtt: %v\n\n%s", reason, usageText)
	return errUsage
}

// sessionFactory builds a fresh paho-backed session for every connect attempt.
func sessionFactory(cfg *config.Config, log *logging.Logger) connection.SessionFactory {
	mqttLog := log.With("component", "mqtt")
	return func(onLost func(err error)) connection.Session {
		return mqtt.NewClient(mqtt.Options{
			ServerURL:        cfg.Server.URL,
			ClientID:         cfg.Client.ID,
			Username:         cfg.Server.User,
			Password:         cfg.Server.Password,
			QoS:              byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2 by config
			ConnectTimeout:   cfg.MQTT.ConnectTimeout,
			PublishTimeout:   cfg.MQTT.PublishTimeout,
			KeepAlive:        cfg.MQTT.KeepAlive,
			OnConnectionLost: onLost,
			Logger:           mqttLog,
		})
	}
}

// transitionObserver fans state changes out to the log, the journal and InfluxDB.
// Either sink may be nil.
func transitionObserver(log *logging.Logger, w *journal.Writer, influx *influxdb.Client) func(connection.Transition) {
	return func(tr connection.Transition) {
		reason := ""
		if tr.Reason != nil {
			reason = tr.Reason.Error()
		}
		log.Info("connection state changed",
			"from", tr.From.String(),
			"to", tr.To.String(),
			"reason", reason,
		)
		if w != nil {
			w.Observe(tr)
		}
		if influx != nil {
			influx.WriteConnectionState(tr.From.String(), tr.To.String(), reason, tr.At)
		}
	}
}

// outcomeRecorder adapts the InfluxDB client to devicehub.Recorder.
type outcomeRecorder struct {
	client *influxdb.Client
}

func (r outcomeRecorder) RecordOutcome(outcome devicehub.Outcome, deviceID string) {
	r.client.WriteRelayOutcome(string(outcome), deviceID)
}
