package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
	"reelsmith/internal/daemonrun"
	"reelsmith/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return *c.logLevelFlag
	}
	if c.config != nil {
		return c.config.Logging.Level
	}
	return "info"
}

// logger writes CLI diagnostics to the command's stderr.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	return logging.NewWriter(cmd.ErrOrStderr(), c.logLevel())
}

func (c *commandContext) mediaTools(cmd *cobra.Command) (daemonrun.MediaTools, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return daemonrun.MediaTools{}, err
	}
	return daemonrun.NewMediaTools(cfg, c.logger(cmd)), nil
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := api.NewClient(cfg.API.Bind, cfg.API.Token)
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return wrapAPIError(err, cfg.API.Bind)
	}
	return nil
}

func wrapAPIError(err error, bind string) error {
	if api.IsAPIUnavailable(err) {
		if strings.TrimSpace(bind) == "" {
			return errors.New("connect to daemon: api.bind is not configured")
		}
		return fmt.Errorf("connect to daemon: nothing is listening on %s; start it with `reelsmith serve`", bind)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
