package config

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

func (c *Config) normalize() error {
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeHub()
	if err := c.normalizeThresholds(); err != nil {
		return err
	}
	c.normalizeLogging()

	var err error
	if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	var err error
	if c.Storage.BaseDir, err = expandPath(strings.TrimSpace(c.Storage.BaseDir)); err != nil {
		return fmt.Errorf("storage.base_dir: %w", err)
	}
	for family, dir := range c.Storage.Families {
		if c.Storage.Families[family], err = expandPath(strings.TrimSpace(dir)); err != nil {
			return fmt.Errorf("storage.families.%s: %w", family, err)
		}
	}
	return nil
}

func (c *Config) normalizeHub() {
	c.Hub.Endpoint = strings.TrimRight(strings.TrimSpace(c.Hub.Endpoint), "/")
	if c.Hub.Endpoint == "" {
		c.Hub.Endpoint = defaultHubEndpoint
	}
	c.Hub.Token = strings.TrimSpace(c.Hub.Token)
	if c.Hub.TimeoutSeconds == 0 {
		c.Hub.TimeoutSeconds = defaultHubTimeoutSeconds
	}
	if c.Download.Concurrency == 0 {
		c.Download.Concurrency = defaultConcurrency
	}
}

// normalizeThresholds parses human-readable sizes such as "1MiB" or "200 kB".
func (c *Config) normalizeThresholds() error {
	c.thresholdBytes = make(map[string]int64, len(c.Thresholds))
	for asset, raw := range c.Thresholds {
		size, err := humanize.ParseBytes(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("thresholds.%s: %w", asset, err)
		}
		c.thresholdBytes[asset] = int64(size)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
