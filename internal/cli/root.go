// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/config"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/logging"
)

const envPrefix = "WRC"

// Version is set at build time with -ldflags.
var Version = "dev"

// env holds what every subcommand needs once flags are parsed.
type env struct {
	v *viper.Viper

	cfgFile   string
	logLevel  string
	logFormat string
	logFilter string

	// one string flag per config key, e.g. --catch-threshold
	overrides map[string]*string

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

// NewRootCmd builds the wrccoach command tree writing reports to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	e := &env{v: viper.New(), overrides: map[string]*string{}, out: out}

	root := &cobra.Command{
		Use:           "wrccoach",
		Short:         "Stroke analysis for rowing sessions recorded with a phone",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&e.cfgFile, "config", "", "KEY=VALUE config file")
	pf.StringVar(&e.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&e.logFormat, "log-format", "console", "log format (json, console)")
	pf.StringVar(&e.logFilter, "log-filter", "", "zapfilter rules, e.g. \"info+:* debug:pipeline\"")
	for _, key := range config.Keys() {
		val := new(string)
		e.overrides[key] = val
		pf.StringVar(val, flagName(key), "", "overrides "+key)
	}

	root.AddCommand(
		newReplayCmd(e),
		newInspectCmd(e),
		newExportCmd(e),
		newSimulateCmd(e),
		newCalibrateCmd(e),
		newLiveCmd(e),
		newGPSCmd(e),
		newConsoleCmd(e),
	)
	return root
}

// Execute runs the command tree with SIGINT/SIGTERM cancelling the
// context. It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := NewRootCmd(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func flagName(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", "-"))
}

// init binds env vars, loads the config file, applies overrides and builds
// the logger.
func (e *env) init(cmd *cobra.Command) error {
	e.v.SetEnvPrefix(envPrefix)
	e.v.AutomaticEnv()
	bindFlags(cmd, e.v)

	cfg := config.Defaults()
	if e.cfgFile != "" {
		var err error
		if cfg, err = config.Load(e.cfgFile); err != nil {
			return err
		}
	}
	for key, val := range e.overrides {
		if *val == "" {
			continue
		}
		if err := cfg.Set(key, *val); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg

	logger, err := logging.New(logging.Config{Level: e.logLevel, Format: e.logFormat, Filter: e.logFilter})
	if err != nil {
		return err
	}
	e.logger = logger.Named(cmd.Name())
	return nil
}

// Bind each cobra flag to its associated viper configuration
// (environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --catch-threshold to WRC_CATCH_THRESHOLD
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
			fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
		}
		// Apply the viper value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
