// Package config loads client and server settings from layered JSONC files
// and MULTISIG_ environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"

	"multisigcheck/internal/utils"
)

// FileName is the project config file looked up in the working directory.
const FileName = "multisigcheck.json"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MULTISIG_"

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config")
)

// Duration accepts Go duration strings such as "1s" in JSON and env values.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Client ClientConfig `json:"client" envPrefix:"CLIENT_"`
	Server ServerConfig `json:"server" envPrefix:"SERVER_"`
	Log    LogConfig    `json:"log"    envPrefix:"LOG_"`

	// Sources lists the files that were applied, lowest precedence first.
	Sources []string `json:"-"`
}

type ClientConfig struct {
	// BackendURL is empty when the client runs without remote storage.
	BackendURL string `json:"backend_url" env:"BACKEND_URL"`
	// ShareBaseURL is the page share links point at.
	ShareBaseURL string   `json:"share_base_url" env:"SHARE_BASE_URL"`
	StateDir     string   `json:"state_dir"      env:"STATE_DIR"`
	SaveDelay    Duration `json:"save_delay"     env:"SAVE_DELAY"`
}

type ServerConfig struct {
	Addr      string `json:"addr"       env:"ADDR"`
	PublicURL string `json:"public_url" env:"PUBLIC_URL"`
	// Driver is "file" or "sqlite".
	Driver        string      `json:"driver"          env:"DRIVER"`
	DataDir       string      `json:"data_dir"        env:"DATA_DIR"`
	MasterKey     string      `json:"master_key"      env:"MASTER_KEY"`
	MasterKeyFile string      `json:"master_key_file" env:"MASTER_KEY_FILE"`
	SessionTTL    Duration    `json:"session_ttl"     env:"SESSION_TTL"`
	Google        OAuthClient `json:"google" envPrefix:"GOOGLE_"`
	GitHub        OAuthClient `json:"github" envPrefix:"GITHUB_"`
	// TLSCert and TLSKey switch the listener to HTTPS when both are set.
	TLSCert string `json:"tls_cert" env:"TLS_CERT"`
	TLSKey  string `json:"tls_key"  env:"TLS_KEY"`
}

type OAuthClient struct {
	ClientID     string `json:"client_id"     env:"CLIENT_ID"`
	ClientSecret string `json:"client_secret" env:"CLIENT_SECRET"`
}

type LogConfig struct {
	Level       string `json:"level"       env:"LEVEL"`
	File        string `json:"file"        env:"FILE"`
	Development bool   `json:"development" env:"DEVELOPMENT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Client: ClientConfig{
			ShareBaseURL: "https://multisig.checklist.local/",
			StateDir:     utils.DefaultStateDir(),
			SaveDelay:    Duration(time.Second),
		},
		Server: ServerConfig{
			Addr:          ":8080",
			PublicURL:     "http://localhost:8080",
			Driver:        "file",
			DataDir:       "data",
			MasterKeyFile: "master.key",
			SessionTTL:    Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load applies, in increasing precedence: defaults, the global config, the
// project config in workDir, the explicit config file, and the environment.
func Load(workDir, explicitPath string) (Config, error) {
	return LoadWithEnv(workDir, explicitPath, nil)
}

// LoadWithEnv is Load with an explicit environment; nil means the process
// environment.
func LoadWithEnv(workDir, explicitPath string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
		workDir = wd
	}

	cfg := Default()
	if p := globalPath(environ); p != "" {
		if err := cfg.apply(p, false); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.apply(filepath.Join(workDir, FileName), false); err != nil {
		return Config{}, err
	}
	if explicitPath != "" {
		if !filepath.IsAbs(explicitPath) {
			explicitPath = filepath.Join(workDir, explicitPath)
		}
		if err := cfg.apply(explicitPath, true); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("%w: environment: %w", ErrConfigInvalid, err)
	}

	cfg.Server.DataDir = resolve(workDir, cfg.Server.DataDir)
	cfg.Server.MasterKeyFile = resolve(workDir, cfg.Server.MasterKeyFile)
	cfg.Client.StateDir = resolve(workDir, cfg.Client.StateDir)
	cfg.Server.TLSCert = resolve(workDir, cfg.Server.TLSCert)
	cfg.Server.TLSKey = resolve(workDir, cfg.Server.TLSKey)
	if cfg.Log.File != "" {
		cfg.Log.File = resolve(workDir, cfg.Log.File)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// globalPath is $XDG_CONFIG_HOME/multisigcheck/config.json, or the same under
// ~/.config.
func globalPath(environ map[string]string) string {
	if xdg := environ["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "multisigcheck", "config.json")
	}
	if home := environ["HOME"]; home != "" {
		return filepath.Join(home, ".config", "multisigcheck", "config.json")
	}
	return ""
}

// apply overlays the keys present in the file at path onto c.
func (c *Config) apply(path string, mustExist bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return nil
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, err)
	}
	if err := json.Unmarshal(standardized, c); err != nil {
		return fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	c.Sources = append(c.Sources, path)
	return nil
}

func resolve(workDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.Client.BackendURL != "" {
		if err := requireHTTP(c.Client.BackendURL); err != nil {
			return fmt.Errorf("%w: client.backend_url: %w", ErrConfigInvalid, err)
		}
	}
	if err := requireHTTP(c.Client.ShareBaseURL); err != nil {
		return fmt.Errorf("%w: client.share_base_url: %w", ErrConfigInvalid, err)
	}
	if c.Client.SaveDelay < 0 {
		return fmt.Errorf("%w: client.save_delay must not be negative", ErrConfigInvalid)
	}
	switch c.Server.Driver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("%w: server.driver %q (want file or sqlite)", ErrConfigInvalid, c.Server.Driver)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("%w: server.tls_cert and server.tls_key must be set together", ErrConfigInvalid)
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("%w: server.session_ttl must be positive", ErrConfigInvalid)
	}
	return nil
}

func requireHTTP(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

// BackendBase returns the backend URL without a trailing slash.
func (c ClientConfig) BackendBase() string {
	return strings.TrimRight(c.BackendURL, "/")
}
