package config

import (
	"fmt"
	"time"
)

// StoreConfig selects and parameterizes the credential/history backend.
type StoreConfig struct {
	// Backend is "file" or "sqlite".
	Backend         string `mapstructure:"backend" yaml:"backend"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	HistoryFile     string `mapstructure:"history_file" yaml:"history_file"`
	SQLitePath      string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// Config holds server and client configuration values.
type Config struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// PollTimeout drives the hub's housekeeping tick and the client's idle
	// check. Expiry means "nothing to do", never an error.
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	// AdminAddr exposes /healthz, /status and /metrics; empty disables it.
	AdminAddr string      `mapstructure:"admin_addr" yaml:"admin_addr"`
	LogLevel  string      `mapstructure:"log_level" yaml:"log_level"`
	Store     StoreConfig `mapstructure:"store" yaml:"store"`
}

// Default returns configuration with the built-in defaults both binaries
// fall back to when started without arguments.
func Default() Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        6060,
		PollTimeout: 5 * time.Second,
		AdminAddr:   "",
		LogLevel:    "info",
		Store: StoreConfig{
			Backend:         "file",
			CredentialsFile: "credentials.csv",
			HistoryFile:     "history.csv",
			SQLitePath:      "chatline.db",
		},
	}
}

// Addr renders the listen/dial address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
