package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigFile         = "DOCSYNC_CONFIG_FILE"
	envListenAddr         = "DOCSYNC_LISTEN_ADDR"
	envPostgresDSN        = "DOCSYNC_POSTGRES_DSN"
	envPostgresReplicaDSN = "DOCSYNC_POSTGRES_REPLICA_DSN"
	envTableName          = "DOCSYNC_TABLE_NAME"
	envLogLevel           = "DOCSYNC_LOG_LEVEL"
	envRelayAddr          = "DOCSYNC_RELAY_ADDR"
	envRelayToken         = "DOCSYNC_RELAY_TOKEN"
	envOTLPEndpoint       = "DOCSYNC_OTLP_ENDPOINT"
	envSyncInterval       = "DOCSYNC_SYNC_INTERVAL"
)

const (
	defaultListenAddr   = ":8080"
	defaultRelayAddr    = ":8086"
	defaultTableName    = "documents"
	defaultLogLevel     = "info"
	defaultSyncInterval = 20 * time.Second
)

// Later entries win for the data store endpoint. All entries contribute message hub endpoints.
var (
	dataStoreEndpointVars = []string{"NOWY_DATABASE_ENDPOINT_URL", "LR_DATABASE_ENDPOINT_URL", "TS_DATABASE_ENDPOINT_URL"}
	messageHubURLVars     = []string{"NOWY_MESSAGEHUB_URLS", "LR_MESSAGEHUB_URLS", "TS_MESSAGEHUB_URLS"}
)

var (
	ErrReadingConfigFileFailed = errors.New("reading config file failed")
	ErrParsingConfigFileFailed = errors.New("parsing config file failed")
	ErrInvalidDuration         = errors.New("invalid duration")
	ErrMissingPostgresDSN      = errors.New("postgres dsn must not be empty")
	ErrMissingTableName        = errors.New("table name must not be empty")
)

// Config is the complete process configuration of the docsync binaries and clients.
type Config struct {
	ListenAddr         string        `yaml:"listen_addr"`
	PostgresDSN        string        `yaml:"postgres_dsn"`
	PostgresReplicaDSN string        `yaml:"postgres_replica_dsn"`
	TableName          string        `yaml:"table_name"`
	LogLevel           string        `yaml:"log_level"`
	DataStoreURL       string        `yaml:"data_store_url"`
	MessageHubURLs     []string      `yaml:"message_hub_urls"`
	RelayAddr          string        `yaml:"relay_addr"`
	RelayToken         string        `yaml:"relay_token"`
	OTLPEndpoint       string        `yaml:"otlp_endpoint"`
	SyncInterval       time.Duration `yaml:"sync_interval"`
}

// Default returns the configuration used when neither file nor environment set a value.
func Default() Config {
	return Config{
		ListenAddr:   defaultListenAddr,
		PostgresDSN:  PostgresDefaultDSN(),
		TableName:    defaultTableName,
		LogLevel:     defaultLogLevel,
		RelayAddr:    defaultRelayAddr,
		SyncInterval: defaultSyncInterval,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadFrom builds the configuration from defaults, the optional YAML file and the variables lookup resolves.
func LoadFrom(lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path, ok := lookup(envConfigFile); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Join(ErrReadingConfigFileFailed, err)
		}

		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Join(ErrParsingConfigFileFailed, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	stringVars := map[string]*string{
		envListenAddr:         &c.ListenAddr,
		envPostgresDSN:        &c.PostgresDSN,
		envPostgresReplicaDSN: &c.PostgresReplicaDSN,
		envTableName:          &c.TableName,
		envLogLevel:           &c.LogLevel,
		envRelayAddr:          &c.RelayAddr,
		envRelayToken:         &c.RelayToken,
		envOTLPEndpoint:       &c.OTLPEndpoint,
	}

	for key, target := range stringVars {
		if val, ok := lookup(key); ok && val != "" {
			*target = val
		}
	}

	if val, ok := lookup(envSyncInterval); ok && val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return errors.Join(ErrInvalidDuration, errors.New(envSyncInterval), err)
		}

		c.SyncInterval = d
	}

	if url := lastEntry(lookup, dataStoreEndpointVars); url != "" {
		c.DataStoreURL = url
	}

	if urls := allEntries(lookup, messageHubURLVars); len(urls) > 0 {
		c.MessageHubURLs = urls
	}

	return nil
}

// Validate reports settings the binaries cannot start with.
func (c Config) Validate() error {
	if c.PostgresDSN == "" {
		return ErrMissingPostgresDSN
	}

	if c.TableName == "" {
		return ErrMissingTableName
	}

	return nil
}

// SlogLevel maps the configured log level to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// splitEntries splits comma separated values of every variable in order, dropping empty entries.
func splitEntries(lookup LookupFunc, keys []string) []string {
	var entries []string

	for _, key := range keys {
		val, _ := lookup(key)
		for _, entry := range strings.Split(val, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				entries = append(entries, entry)
			}
		}
	}

	return entries
}

func lastEntry(lookup LookupFunc, keys []string) string {
	entries := splitEntries(lookup, keys)
	if len(entries) == 0 {
		return ""
	}

	return entries[len(entries)-1]
}

// allEntries keeps the first occurrence of every entry.
func allEntries(lookup LookupFunc, keys []string) []string {
	seen := make(map[string]bool)
	var urls []string

	for _, entry := range splitEntries(lookup, keys) {
		if !seen[entry] {
			seen[entry] = true
			urls = append(urls, entry)
		}
	}

	return urls
}
