package main

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"daybook/internal/archive"
	"daybook/internal/bootstrap"
	"daybook/internal/config"
	"daybook/internal/logging"
	"daybook/internal/ports"
)

type commandContext struct {
	configFlag *string

	once   sync.Once
	cfg    config.Config
	logger *zap.Logger
	err    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
		if err != nil {
			c.err = err
			return
		}
		c.cfg = cfg
		c.logger = logger
	})
	return c.err
}

func (c *commandContext) services(sink ports.EventSink) (bootstrap.Services, error) {
	if err := c.ensure(); err != nil {
		return bootstrap.Services{}, err
	}
	return bootstrap.Build(c.cfg, sink, c.logger), nil
}

func (c *commandContext) openArchive() (*archive.Store, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	return archive.Open(c.cfg.Storage.ArchivePath)
}

func (c *commandContext) config() (config.Config, error) {
	if err := c.ensure(); err != nil {
		return config.Config{}, err
	}
	return c.cfg, nil
}
