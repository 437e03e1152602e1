package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/chainletter/chainletter/errors"
)

// WriteStarter writes a starter config file populated with the current
// defaults to path, creating parent directories as needed. Refuses to
// overwrite an existing file.
func WriteStarter(path string, account string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	cfg := defaultsAsConfig()
	cfg.Account.Name = account

	out, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal starter config")
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// defaultsAsConfig materializes SetDefaults into a Config struct
func defaultsAsConfig() *Config {
	v := newDefaultViper()
	var cfg Config
	// Defaults always unmarshal cleanly; ignore the impossible error path.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
