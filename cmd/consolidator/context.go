package main

import (
	"strings"
	"sync"

	"ArticlesConsolidator/internal/app"
	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() config.Config {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config = config.Load(path)
	})
	return c.config
}

func (c *commandContext) withApp(fn func(*app.Application) error) error {
	cfg := c.ensureConfig()
	application, err := app.New(cfg, logging.New(cfg.Logging.Level))
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}
