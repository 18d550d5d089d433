// Package config loads the layered ipcbind configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Config is the ipcbind configuration shared by the server and the CLI.
type Config struct {
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `json:"logLevel,omitempty" env:"IPCBIND_LOG_LEVEL"`
	// LogPretty switches to human-readable console logs.
	LogPretty bool `json:"logPretty,omitempty" env:"IPCBIND_LOG_PRETTY"`
	// Catalog is the path of the catalog file, relative to the working directory.
	Catalog string `json:"catalog,omitempty" env:"IPCBIND_CATALOG"`

	Server ServerConfig `json:"server" envPrefix:"IPCBIND_SERVER_"`
	Client ClientConfig `json:"client" envPrefix:"IPCBIND_CLIENT_"`
}

// ServerConfig configures the host server.
type ServerConfig struct {
	Hostname       string   `json:"hostname,omitempty" env:"HOSTNAME"`
	Port           int      `json:"port,omitempty" env:"PORT"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
	OutboundBuffer int      `json:"outboundBuffer,omitempty" env:"OUTBOUND_BUFFER"`
}

// ClientConfig configures the WebSocket client used by the CLI.
type ClientConfig struct {
	URL                  string   `json:"url,omitempty" env:"URL"`
	Label                string   `json:"label,omitempty" env:"LABEL"`
	Timeout              Duration `json:"timeout,omitempty" env:"TIMEOUT"`
	AutoReconnect        bool     `json:"autoReconnect,omitempty" env:"AUTO_RECONNECT"`
	MaxReconnectAttempts int      `json:"maxReconnectAttempts,omitempty" env:"MAX_RECONNECT_ATTEMPTS"`
	ReconnectDelay       Duration `json:"reconnectDelay,omitempty" env:"RECONNECT_DELAY"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Catalog:  "ipcbind.yaml",
		Server: ServerConfig{
			Hostname:       "127.0.0.1",
			Port:           7420,
			AllowedOrigins: []string{"*"},
			OutboundBuffer: 64,
		},
		Client: ClientConfig{
			URL:                  "ws://127.0.0.1:7420/ipc",
			Label:                "main",
			Timeout:              Duration(30 * time.Second),
			AutoReconnect:        true,
			MaxReconnectAttempts: 5,
			ReconnectDelay:       Duration(time.Second),
		},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/ipcbind/)
// 3. Project config (ipcbind.json[c] and .ipcbind/ in directory)
// 4. IPCBIND_CONFIG file
// 5. .env in directory (never overrides variables already set)
// 6. Environment variables
//
// Missing files are skipped; malformed ones are errors.
func Load(directory string) (*Config, error) {
	cfg := Default()

	loaded := make(map[string]bool)
	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		loaded[absPath] = true
		return loadConfigFile(path, cfg)
	}

	paths := GetPaths().Files()
	if directory != "" {
		paths = append(paths, projectFiles(directory)...)
	}

	if configPath := os.Getenv("IPCBIND_CONFIG"); configPath != "" {
		paths = append(paths, configPath)
	}

	for _, path := range paths {
		if err := loadOnce(path); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		if err := godotenv.Load(filepath.Join(directory, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.OutboundBuffer < 0 {
		return fmt.Errorf("server.outboundBuffer must not be negative: %d", c.Server.OutboundBuffer)
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative: %s", c.Client.Timeout.Std())
	}
	if c.Client.MaxReconnectAttempts < 0 {
		return fmt.Errorf("client.maxReconnectAttempts must not be negative: %d", c.Client.MaxReconnectAttempts)
	}
	return nil
}

// loadConfigFile overlays a single config file onto cfg. Fields absent from
// the file keep their current values.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	data = interpolate(data, filepath.Dir(path))

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return jsonEscape(os.Getenv(envPattern.FindStringSubmatch(match)[1]))
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}
		return jsonEscape(strings.TrimRight(string(content), "\r\n"))
	})

	return []byte(str)
}

// jsonEscape escapes s for use inside a JSON string literal.
func jsonEscape(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted[1 : len(quoted)-1])
}
