// Package common holds setup shared by the blockwatch subcommands.
package common

import (
	"fmt"

	"github.com/jonesrussell/blockwatch/internal/config"
	"github.com/jonesrussell/blockwatch/internal/logger"
)

// Setup loads configuration and builds the logger. The debug flag overrides
// the config file's debug setting.
func Setup(cfgFile string, debug bool) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}
