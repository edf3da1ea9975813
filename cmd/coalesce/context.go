package main

import (
	"log/slog"
	"os/user"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"coalesce/internal/config"
	"coalesce/internal/engine"
	"coalesce/internal/logging"
	"coalesce/internal/store"
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withStore opens the store for one command invocation and closes it when
// the command returns.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cfg, s)
}

// withEngine opens the store, builds a file-backed logger, and hands both to
// fn wrapped in an engine.
func (c *commandContext) withEngine(fn func(*engine.Engine, *store.Store) error) error {
	return c.withStore(func(cfg *config.Config, s *store.Store) error {
		logger, err := c.buildLogger(cfg)
		if err != nil {
			return err
		}
		return fn(engine.New(cfg, s, logger), s)
	})
}

func (c *commandContext) buildLogger(cfg *config.Config) (*slog.Logger, error) {
	opts, err := logging.FileOptions(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		return nil, err
	}
	return logging.New(opts)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// operatorName resolves the identity recorded on manual review decisions.
func operatorName() string {
	if u, err := user.Current(); err == nil && strings.TrimSpace(u.Username) != "" {
		return u.Username
	}
	return "operator"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
