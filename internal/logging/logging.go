// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

// Config selects level, encoding and an optional zapfilter rule set such as
// "info+:* debug:pipeline.*".
type Config struct {
	Level  string
	Format string // json or console
	Filter string
}

func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console", "text", "dev":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		zc.Level = lvl
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.Filter == "" {
		return logger, nil
	}

	var ferr error
	logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		wrapped, err := Filter(c, cfg.Filter)
		if err != nil {
			ferr = err
			return c
		}
		return wrapped
	}))
	if ferr != nil {
		return nil, ferr
	}
	return logger, nil
}

// Filter narrows core to the entries matched by rules.
func Filter(core zapcore.Core, rules string) (zapcore.Core, error) {
	fn, err := zapfilter.ParseRules(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid log filter %q: %w", rules, err)
	}
	return zapfilter.NewFilteringCore(core, fn), nil
}
