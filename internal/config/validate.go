package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.PipeDir == "" {
		return errors.New("paths.pipe_dir must be set")
	}
	if filepath.Clean(c.Paths.PipeDir) == filepath.Clean(c.Paths.DataDir) {
		return errors.New("paths.pipe_dir must differ from paths.data_dir; teardown removes the pipe directory")
	}
	if filepath.Dir(c.Paths.PipeDir) == c.Paths.PipeDir {
		return fmt.Errorf("paths.pipe_dir %q must not be a filesystem root", c.Paths.PipeDir)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Shell == "" {
		return errors.New("pipeline.shell must be set")
	}
	if c.Pipeline.KillGraceSeconds < 0 {
		return errors.New("pipeline.kill_grace_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
		return fmt.Errorf("metrics.listen: %w", err)
	}
	return nil
}
