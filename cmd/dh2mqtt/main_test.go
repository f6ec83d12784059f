package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dh2mqtt/internal/bridges/devicehub"
	"github.com/nerrad567/dh2mqtt/internal/connection"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/mqtt"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DH2MQTT_SERVER_URL",
		"DH2MQTT_SERVER_USER",
		"DH2MQTT_SERVER_PASSWORD",
		"DH2MQTT_CLIENT_ID",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func runWithTimeout(t *testing.T, args []string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, args, &out)
	return out.String(), err
}

// TestRun_WrongArgumentCount verifies usage is printed for a bad invocation.
func TestRun_WrongArgumentCount(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"two arguments", []string{"a.yaml", "b.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runWithTimeout(t, tt.args)
			require.ErrorIs(t, err, errUsage)
			assert.Contains(t, out, "Usage: dh2mqtt")
		})
	}
}

// TestRun_UnreadableConfig verifies a missing file is a usage error.
func TestRun_UnreadableConfig(t *testing.T) {
	clearEnv(t)

	out, err := runWithTimeout(t, []string{"/nonexistent/path/config.yaml"})
	require.ErrorIs(t, err, errUsage)
	assert.Contains(t, out, "reading config file")
}

// TestRun_MissingRequiredKeys verifies usage names every absent key.
func TestRun_MissingRequiredKeys(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  url: "tcp://127.0.0.1:1883"
logging:
  level: error
`)

	out, err := runWithTimeout(t, []string{path})
	require.ErrorIs(t, err, errUsage)
	for _, key := range []string{"client.id", "server.user", "server.password"} {
		assert.Contains(t, out, key)
	}
}

// TestRun_InvalidJournalPath verifies an unusable journal path stops startup.
func TestRun_InvalidJournalPath(t *testing.T) {
	clearEnv(t)

	// A regular file cannot be used as the journal's parent directory.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	path := writeConfig(t, `
server:
  url: "tcp://127.0.0.1:1"
  user: "user"
  password: "secret"
client:
  id: "test-client"
logging:
  level: error
  output: stderr
journal:
  enabled: true
  path: "`+filepath.Join(blocker, "journal.db")+`"
`)

	_, err := runWithTimeout(t, []string{path})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errUsage)
}

// TestRun_ShutsDownWhileRetrying verifies an unreachable broker does not
// prevent a clean shutdown.
func TestRun_ShutsDownWhileRetrying(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  url: "tcp://127.0.0.1:1"
  user: "user"
  password: "secret"
client:
  id: "test-client"
mqtt:
  connect_timeout: 200ms
relay:
  reconnect_delay: 50ms
logging:
  level: error
  output: stderr
journal:
  enabled: true
  path: "`+filepath.Join(t.TempDir(), "journal.db")+`"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{path}, &out))
	assert.Empty(t, out.String(), "nothing should reach stdout")
}

func TestSessionFactory(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{URL: "tcp://127.0.0.1:1883", User: "u", Password: "p"},
		Client: config.ClientConfig{ID: "relay"},
		MQTT:   config.MQTTConfig{QoS: 1},
	}
	log := logging.Nop()

	factory := sessionFactory(cfg, log)
	first := factory(func(error) {})
	second := factory(func(error) {})

	require.IsType(t, &mqtt.Client{}, first)
	assert.NotSame(t, first, second, "factory should build a new session for every attempt")
	assert.False(t, first.IsConnected())
	first.Close()
	second.Close()
}

func TestTransitionObserver_NilSinks(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	observe := transitionObserver(log, nil, nil)
	observe(connection.Transition{
		From:   connection.StateConnected,
		To:     connection.StateDisconnected,
		Reason: connection.ErrWatchdogTimeout,
		At:     time.Now(),
	})

	got := buf.String()
	assert.Contains(t, got, `"to":"disconnected"`)
	assert.Contains(t, got, "watchdog timeout")
}

var _ devicehub.Recorder = outcomeRecorder{}
