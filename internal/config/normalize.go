package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DefaultOutput, err = expandPath(c.Paths.DefaultOutput); err != nil {
		return fmt.Errorf("paths.default_output: %w", err)
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ResourceDir) != "" {
		if c.Paths.ResourceDir, err = expandPath(c.Paths.ResourceDir); err != nil {
			return fmt.Errorf("paths.resource_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.History.Path) != "" {
		if c.History.Path, err = expandPath(c.History.Path); err != nil {
			return fmt.Errorf("history.path: %w", err)
		}
	}
	if strings.TrimSpace(c.Logging.Dir) != "" {
		if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
			return fmt.Errorf("logging.dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	if c.Processing.PollIntervalMS <= 0 {
		c.Processing.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Processing.Parallelism < 0 {
		c.Processing.Parallelism = 0
	}
	if c.Processing.Parallelism > MaxWorkers {
		c.Processing.Parallelism = MaxWorkers
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
