package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateHub(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateHub() error {
	u, err := url.Parse(c.Hub.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("hub.endpoint must be an http(s) URL, got %q", c.Hub.Endpoint)
	}
	if c.Hub.TimeoutSeconds < 0 {
		return errors.New("hub.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.Concurrency < 1 || c.Download.Concurrency > 16 {
		return fmt.Errorf("download.concurrency must be between 1 and 16, got %d", c.Download.Concurrency)
	}
	if c.Download.LockTimeoutSeconds < 0 {
		return errors.New("download.lock_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateThresholds() error {
	for asset, size := range c.thresholdBytes {
		if size <= 0 {
			return fmt.Errorf("thresholds.%s must be positive", asset)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
