package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/app"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/sim"
)

func (e *env) replayOptions(fileSettings bool, calFile string) (app.ReplayOptions, error) {
	opts := app.ReplayOptions{Config: e.cfg, FileSettings: fileSettings}
	if calFile == "" {
		calFile = e.cfg.CalibrationFile
	}
	if calFile != "" {
		rec, err := app.LoadCalibration(calFile)
		if err != nil {
			return opts, err
		}
		opts.Calibration = rec
	}
	return opts, nil
}

func newReplayCmd(e *env) *cobra.Command {
	var (
		fileSettings bool
		calFile      string
		reportFile   string
	)
	cmd := &cobra.Command{
		Use:   "replay <session.wrcdata>",
		Short: "replays a recorded session through the stroke pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := e.replayOptions(fileSettings, calFile)
			if err != nil {
				return err
			}
			out := e.out
			if reportFile != "" {
				f, err := os.Create(reportFile)
				if err != nil {
					return fmt.Errorf("failed to create report: %w", err)
				}
				defer f.Close()
				out = f
			}
			_, err = app.RunReplay(cmd.Context(), args[0], opts, e.logger, out)
			return err
		},
	}
	cmd.Flags().BoolVar(&fileSettings, "file-settings", true, "take mounting and thresholds from the session header")
	cmd.Flags().StringVar(&calFile, "calibration-record", "", "YAML calibration record overriding the one in the session")
	cmd.Flags().StringVar(&reportFile, "report", "", "write the YAML report here instead of stdout")
	return cmd
}

func newInspectCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session.wrcdata>",
		Short: "prints container metadata without running the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.RunInspect(args[0], e.out)
			return err
		},
	}
}

func newExportCmd(e *env) *cobra.Command {
	var (
		dir          string
		withStrokes  bool
		fileSettings bool
	)
	cmd := &cobra.Command{
		Use:   "export <session.wrcdata>",
		Short: "writes the session as CSV files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := e.replayOptions(fileSettings, "")
			if err != nil {
				return err
			}
			_, err = app.RunExport(cmd.Context(), args[0], dir, withStrokes, opts, e.logger)
			return err
		},
	}
	cmd.Flags().StringVarP(&dir, "out", "o", "", "output directory (default: next to the session)")
	cmd.Flags().BoolVar(&withStrokes, "strokes", true, "replay the session and export detected strokes")
	cmd.Flags().BoolVar(&fileSettings, "file-settings", true, "take mounting and thresholds from the session header")
	return cmd
}

func newSimulateCmd(e *env) *cobra.Command {
	sc := sim.DefaultConfig()
	var version int
	cmd := &cobra.Command{
		Use:   "simulate <out.wrcdata>",
		Short: "writes a synthetic rowing session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc.Mounting = e.cfg.Mounting
			return app.RunSimulate(sc, version, args[0], e.logger)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&sc.Duration, "duration", sc.Duration, "rowing time in seconds")
	f.Float64Var(&sc.StillTime, "still", sc.StillTime, "still calibration window in seconds")
	f.Float64Var(&sc.SampleRate, "rate", sc.SampleRate, "IMU rate in Hz")
	f.Float64Var(&sc.StrokeRate, "spm", sc.StrokeRate, "stroke rate")
	f.Float64Var(&sc.Amplitude, "amplitude", sc.Amplitude, "surge amplitude in m/s²")
	f.Float64Var(&sc.Noise, "noise", sc.Noise, "accelerometer noise std in m/s²")
	f.Float64Var(&sc.Jitter, "jitter", sc.Jitter, "timestamp jitter as a fraction of the interval")
	f.Float64Var(&sc.Pitch, "pitch", sc.Pitch, "mounting pitch in degrees")
	f.Float64Var(&sc.Roll, "roll", sc.Roll, "mounting roll in degrees")
	f.Float64Var(&sc.BoatSpeed, "speed", sc.BoatSpeed, "boat speed in m/s")
	f.Int64Var(&sc.Seed, "seed", sc.Seed, "random seed")
	f.IntVar(&version, "container-version", 0, "container version 1-3 (default latest)")
	return cmd
}

func newCalibrateCmd(e *env) *cobra.Command {
	var opts app.CalibrateOptions
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "derives the mounting record from a still window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Session == "" && opts.URL == "" {
				opts.URL = e.cfg.PhoneURL
			}
			_, err := app.RunCalibrate(cmd.Context(), opts, e.logger)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Session, "session", "", "recorded session to calibrate from")
	cmd.Flags().StringVar(&opts.URL, "url", "", "phone stream URL (default PHONE_URL)")
	cmd.Flags().Float64Var(&opts.Window, "window", app.DefaultStillWindow, "capture window in ms")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "calibration.yaml", "where to save the record")
	return cmd
}

func newLiveCmd(e *env) *cobra.Command {
	var opts app.LiveOptions
	cmd := &cobra.Command{
		Use:   "live",
		Short: "runs the pipeline on the phone stream and publishes strokes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := app.RunLive(cmd.Context(), e.cfg, opts, e.logger)
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.Demo, "demo", false, "use a simulated crew instead of the phone")
	cmd.Flags().StringVar(&opts.StrokeCSV, "strokes-csv", "", "append detected strokes to this CSV file")
	return cmd
}

func newGPSCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "gps",
		Short: "publishes fixes from a serial GPS receiver to MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.cfg.GPSSerialPort == "" || e.cfg.MQTTBroker == "" {
				return fmt.Errorf("gps: GPS_SERIAL_PORT and MQTT_BROKER are required")
			}
			e.logger.Info("starting GPS producer", zap.String("topic", e.cfg.TopicGPS))
			return app.RunGPSProducer(cmd.Context(), e.cfg, e.logger)
		},
	}
}

func newConsoleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "prints what the coach topics carry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.cfg.MQTTBroker == "" {
				return fmt.Errorf("console: MQTT_BROKER is required")
			}
			return app.RunConsoleMQTT(cmd.Context(), e.cfg, e.out, e.logger)
		},
	}
}
