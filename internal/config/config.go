package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const defaultConfigPath = "~/.config/mofa-models/config.toml"

// Storage contains the asset storage locations.
type Storage struct {
	BaseDir  string            `toml:"base_dir"`
	Families map[string]string `toml:"families"`
}

// Hub contains the model hub connection settings.
type Hub struct {
	Endpoint       string `toml:"endpoint"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Download contains transfer settings.
type Download struct {
	Concurrency        int `toml:"concurrency"`
	LockTimeoutSeconds int `toml:"lock_timeout_seconds"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Metrics contains the Prometheus textfile export settings.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config is the mofa-models configuration file.
type Config struct {
	Storage    Storage           `toml:"storage"`
	Hub        Hub               `toml:"hub"`
	Download   Download          `toml:"download"`
	Thresholds map[string]string `toml:"thresholds"`
	Logging    Logging           `toml:"logging"`
	Metrics    Metrics           `toml:"metrics"`

	thresholdBytes map[string]int64
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error; defaults apply. Environment overrides are applied after
// the file is read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// applyEnv lets the conventional hub variables override the file.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("HF_ENDPOINT")); v != "" {
		c.Hub.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("HF_TOKEN")); v != "" {
		c.Hub.Token = v
	}
}

// ThresholdBytes returns the per-asset minimum size overrides in bytes.
func (c *Config) ThresholdBytes() map[string]int64 {
	out := make(map[string]int64, len(c.thresholdBytes))
	for k, v := range c.thresholdBytes {
		out[k] = v
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
