package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Dir returns the Data Lab home directory (~/.datalab), which holds the
// config file, the per-user token files, and the job ledger.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}

	return filepath.Join(home, ".datalab"), nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, "config.toml")
}

// Load reads and parses a TOML config file. Unknown keys are fatal:
// silently ignoring a typo in a config file leads to hard-to-debug
// behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config file if it exists, otherwise returns
// defaults. Supports the zero-config first run: anonymous access needs
// no file at all.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Save writes cfg to path, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("config: encoding: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("config: closing %s: %w", path, err)
	}

	return nil
}

// validate rejects configurations that cannot work.
func validate(cfg *Config) error {
	for name, u := range map[string]string{
		"auth_url":    cfg.Service.AuthURL,
		"query_url":   cfg.Service.QueryURL,
		"storage_url": cfg.Service.StorageURL,
	} {
		if u == "" {
			return fmt.Errorf("%s must not be empty", name)
		}

		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must be an http(s) URL, got %q", name, u)
		}
	}

	if cfg.Service.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", cfg.Service.Timeout)
	}

	switch cfg.Login.Status {
	case "", "loggedin", "loggedout":
	default:
		return fmt.Errorf("login status must be loggedin or loggedout, got %q", cfg.Login.Status)
	}

	return nil
}
