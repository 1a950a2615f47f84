package main

import (
	"path/filepath"
	"strings"
	"sync"

	"log/slog"

	"hybridmux/internal/config"
	"hybridmux/internal/history"
	"hybridmux/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg)
}

// openJournal returns the history store, or nil when history is disabled.
func (c *commandContext) openJournal() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(historyPath(cfg))
}

func historyPath(cfg *config.Config) string {
	if strings.TrimSpace(cfg.History.Path) != "" {
		return cfg.History.Path
	}
	return filepath.Join(cfg.Logging.Dir, "history.db")
}
