package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// CommandSocket is the unix socket the firmware dials for control
	// commands.
	CommandSocket      string
	CommandReadTimeout time.Duration

	TelemetryAddr        string
	TelemetryIdleTimeout time.Duration

	// ArchiveBackend is "file" (one file per batch under ArchiveDir) or
	// "sqlite" (rows in the database at SQLitePath / DBDSN).
	ArchiveBackend     string
	ArchiveDir         string
	ArchiveCompression string

	SQLitePath        string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// MQTTBroker empty disables forwarding of decoded readings.
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
}

// fileValues mirrors the environment keys for the optional YAML file named
// by CONFIG_FILE. Environment variables take precedence over it.
type fileValues map[string]string

// LoadFromEnv reads configuration from the environment, on top of the YAML
// file named by CONFIG_FILE when that is set.
func LoadFromEnv() (Config, error) {
	file, err := loadFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return Config{}, err
	}
	get := func(key, def string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		if v := strings.TrimSpace(file[key]); v != "" {
			return v
		}
		return def
	}

	appEnv := get("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(get("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	commandReadTimeout, err := parsePositiveDuration("COMMAND_READ_TIMEOUT", get("COMMAND_READ_TIMEOUT", "50ms"))
	if err != nil {
		return Config{}, err
	}

	telemetryIdleTimeout, err := parsePositiveDuration("TELEMETRY_IDLE_TIMEOUT", get("TELEMETRY_IDLE_TIMEOUT", "60s"))
	if err != nil {
		return Config{}, err
	}

	archiveBackend := strings.ToLower(get("ARCHIVE_BACKEND", "file"))
	switch archiveBackend {
	case "file", "sqlite":
	default:
		return Config{}, fmt.Errorf("invalid ARCHIVE_BACKEND %q (allowed: file, sqlite)", archiveBackend)
	}

	archiveCompression := strings.ToLower(get("ARCHIVE_COMPRESSION", "none"))
	switch archiveCompression {
	case "none", "zstd", "lz4":
	default:
		return Config{}, fmt.Errorf("invalid ARCHIVE_COMPRESSION %q (allowed: none, zstd, lz4)", archiveCompression)
	}

	maxOpenConnsStr := get("DB_MAX_OPEN_CONNS", "1")
	maxOpenConns, err := strconv.Atoi(maxOpenConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS %q: %w", maxOpenConnsStr, err)
	}

	maxIdleConnsStr := get("DB_MAX_IDLE_CONNS", "1")
	maxIdleConns, err := strconv.Atoi(maxIdleConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS %q: %w", maxIdleConnsStr, err)
	}

	connMaxLifetimeStr := get("DB_CONN_MAX_LIFETIME", "0s")
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME %q: %w", connMaxLifetimeStr, err)
	}

	mqttPortStr := get("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT must be 1-65535, got %d", mqttPort)
	}

	return Config{
		AppEnv:               appEnv,
		LogLevel:             level,
		HTTPAddr:             get("HTTP_ADDR", ":8080"),
		CommandSocket:        get("COMMAND_SOCKET", "/deviceinfo/dac.sock"),
		CommandReadTimeout:   commandReadTimeout,
		TelemetryAddr:        get("TELEMETRY_ADDR", "127.0.0.1:1337"),
		TelemetryIdleTimeout: telemetryIdleTimeout,
		ArchiveBackend:       archiveBackend,
		ArchiveDir:           get("ARCHIVE_DIR", "batches"),
		ArchiveCompression:   archiveCompression,
		SQLitePath:           get("SQLITE_PATH", "batches/archive.db"),
		DBDSN:                get("DB_DSN", ""),
		DBMaxOpenConns:       maxOpenConns,
		DBMaxIdleConns:       maxIdleConns,
		DBConnMaxLifetime:    connMaxLifetime,
		MQTTBroker:           get("MQTT_BROKER", ""),
		MQTTPort:             mqttPort,
		MQTTClientID:         get("MQTT_CLIENT_ID", "ninesleep-gateway"),
		MQTTUsername:         get("MQTT_USERNAME", ""),
		MQTTPassword:         get("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:      strings.Trim(get("MQTT_TOPIC_PREFIX", "ninesleep"), "/"),
	}, nil
}

func loadFile(path string) (fileValues, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CONFIG_FILE %q: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse CONFIG_FILE %q: %w", path, err)
	}
	out := make(fileValues, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func parsePositiveDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
