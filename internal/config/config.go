package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/psotrace/internal/crypto"
)

// EnvPath names the environment variable that overrides the default config path.
const EnvPath = "PSOTRACE_CONFIG"

// DefaultPath is used when neither the -config flag nor EnvPath is set.
const DefaultPath = "config/psotrace.yaml"

// Trace holds all configuration for psotrace.
type Trace struct {
	// Decoding
	Cipher string   `yaml:"cipher"` // gamecube | pc
	Ports  []uint16 `yaml:"ports"`  // TCP port allow-list, empty = all

	// Runtime
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	Workers  int    `yaml:"workers"`   // captures processed concurrently

	// Output
	Console  ConsoleConfig `yaml:"console"`
	JSONPath string        `yaml:"json_path"` // "" = off, "-" = stdout
	Live     LiveConfig    `yaml:"live"`

	// Message store
	Database StoreConfig `yaml:"database"`
}

// ConsoleConfig controls the human readable trace.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
	Hexdump bool `yaml:"hexdump"`
}

// LiveConfig controls the websocket feed.
type LiveConfig struct {
	Listen string `yaml:"listen"` // host:port, empty = off
}

// StoreConfig enables storing records in PostgreSQL.
type StoreConfig struct {
	Enabled        bool `yaml:"enabled"`
	DatabaseConfig `yaml:",inline"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultTrace returns Trace config with sensible defaults.
func DefaultTrace() Trace {
	return Trace{
		Cipher:   crypto.VariantGameCube.String(),
		LogLevel: "info",
		Workers:  4,
		Console: ConsoleConfig{
			Enabled: true,
			Hexdump: true,
		},
		Database: StoreConfig{
			DatabaseConfig: DatabaseConfig{
				Host:     "127.0.0.1",
				Port:     5432,
				User:     "psotrace",
				Password: "psotrace",
				DBName:   "psotrace",
				SSLMode:  "disable",
			},
		},
	}
}

// LoadTrace loads config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadTrace(path string) (Trace, error) {
	cfg := DefaultTrace()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Path resolves the config path: flag value, then EnvPath, then DefaultPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Variant returns the configured cipher variant.
func (c Trace) Variant() (crypto.Variant, error) {
	return crypto.ParseVariant(c.Cipher)
}

// Validate checks values that cannot be defaulted.
func (c Trace) Validate() error {
	var errs []error
	if _, err := c.Variant(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Database.Enabled && c.Database.Host == "" {
		errs = append(errs, errors.New("database enabled without host"))
	}
	return errors.Join(errs...)
}
