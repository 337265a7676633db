package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/filter"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/frame"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker   string
	MQTTClientID string

	// Topics
	TopicStroke     string
	TopicPose       string
	TopicGPS        string
	TopicDiagnostic string
	TopicAnalysis   string

	// Sources
	PhoneURL      string // websocket stream of raw samples
	GPSSerialPort string
	GPSBaudRate   int

	// Sampling
	SampleRate    float64 // Hz, 0 = measure
	WarmupSamples int

	// Orientation and frame
	Alpha           float64
	Mounting        frame.MountingMode
	FrameMode       pipeline.FrameMode
	CalibrationFile string

	// Band-pass, Hz
	LowCut  float64
	HighCut float64

	// Stroke detection, m/s² and ms
	CatchThreshold  float64
	FinishThreshold float64
	BaselineWindow  float64
	MinDrive        float64
	MinCycle        float64
	MaxCycle        float64

	// PCA
	AxisWindow   int
	MotionFloor  float64
	AxisInterval float64 // ms

	// Adaptive re-analysis
	HistorySize        int
	AnalysisInterval   float64 // ms, 0 = off
	AdaptivePercentile float64

	// Timing and outputs
	ConsoleLogInterval int // milliseconds
	MetricsAddr        string
}

// Defaults returns a configuration usable without a file.
func Defaults() *Config {
	p := pipeline.DefaultConfig()
	return &Config{
		MQTTClientID:       "wrc-coach",
		TopicStroke:        "wrc/stroke",
		TopicPose:          "wrc/pose",
		TopicGPS:           "wrc/gps",
		TopicDiagnostic:    "wrc/diagnostic",
		TopicAnalysis:      "wrc/analysis",
		GPSBaudRate:        9600,
		SampleRate:         p.SampleRate,
		WarmupSamples:      p.WarmupSamples,
		Alpha:              p.Alpha,
		Mounting:           p.Mounting,
		FrameMode:          p.Frame,
		LowCut:             filter.DefaultLowCut,
		HighCut:            filter.DefaultHighCut,
		CatchThreshold:     stroke.DefaultCatchThreshold,
		FinishThreshold:    stroke.DefaultFinishThreshold,
		BaselineWindow:     stroke.DefaultBaselineWindow,
		MinDrive:           stroke.DefaultMinDrive,
		MinCycle:           stroke.DefaultMinCycle,
		MaxCycle:           stroke.DefaultMaxCycle,
		AxisWindow:         frame.DefaultAxisWindow,
		MotionFloor:        frame.DefaultMotionFloor,
		AxisInterval:       p.AxisInterval,
		HistorySize:        p.HistorySize,
		AnalysisInterval:   p.AnalysisInterval,
		AdaptivePercentile: p.Adaptive.Percentile,
		ConsoleLogInterval: 1000,
	}
}

// Load reads a KEY=VALUE configuration file on top of Defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines; blank lines and # comments are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.Set(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type setter func(c *Config, value string) error

func str(f func(*Config) *string) setter {
	return func(c *Config, v string) error {
		*f(c) = v
		return nil
	}
}

func integer(f func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*f(c) = n
		return nil
	}
}

func float(f func(*Config) *float64) setter {
	return func(c *Config, v string) error {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*f(c) = x
		return nil
	}
}

var setters = map[string]setter{
	// MQTT
	"MQTT_BROKER":    str(func(c *Config) *string { return &c.MQTTBroker }),
	"MQTT_CLIENT_ID": str(func(c *Config) *string { return &c.MQTTClientID }),

	// Topics
	"TOPIC_STROKE":     str(func(c *Config) *string { return &c.TopicStroke }),
	"TOPIC_POSE":       str(func(c *Config) *string { return &c.TopicPose }),
	"TOPIC_GPS":        str(func(c *Config) *string { return &c.TopicGPS }),
	"TOPIC_DIAGNOSTIC": str(func(c *Config) *string { return &c.TopicDiagnostic }),
	"TOPIC_ANALYSIS":   str(func(c *Config) *string { return &c.TopicAnalysis }),

	// Sources
	"PHONE_URL":       str(func(c *Config) *string { return &c.PhoneURL }),
	"GPS_SERIAL_PORT": str(func(c *Config) *string { return &c.GPSSerialPort }),
	"GPS_BAUD_RATE":   integer(func(c *Config) *int { return &c.GPSBaudRate }),

	// Sampling
	"SAMPLE_RATE":    float(func(c *Config) *float64 { return &c.SampleRate }),
	"WARMUP_SAMPLES": integer(func(c *Config) *int { return &c.WarmupSamples }),

	// Orientation and frame
	"ALPHA": float(func(c *Config) *float64 { return &c.Alpha }),
	"MOUNTING": func(c *Config, v string) error {
		m, err := frame.ParseMountingMode(v)
		if err != nil {
			return err
		}
		c.Mounting = m
		return nil
	},
	"FRAME_MODE": func(c *Config, v string) error {
		m, err := pipeline.ParseFrameMode(v)
		if err != nil {
			return err
		}
		c.FrameMode = m
		return nil
	},
	"CALIBRATION_FILE": str(func(c *Config) *string { return &c.CalibrationFile }),

	// Band-pass
	"LOW_CUT":  float(func(c *Config) *float64 { return &c.LowCut }),
	"HIGH_CUT": float(func(c *Config) *float64 { return &c.HighCut }),

	// Stroke detection
	"CATCH_THRESHOLD":  float(func(c *Config) *float64 { return &c.CatchThreshold }),
	"FINISH_THRESHOLD": float(func(c *Config) *float64 { return &c.FinishThreshold }),
	"BASELINE_WINDOW":  float(func(c *Config) *float64 { return &c.BaselineWindow }),
	"MIN_DRIVE":        float(func(c *Config) *float64 { return &c.MinDrive }),
	"MIN_CYCLE":        float(func(c *Config) *float64 { return &c.MinCycle }),
	"MAX_CYCLE":        float(func(c *Config) *float64 { return &c.MaxCycle }),

	// PCA
	"AXIS_WINDOW":   integer(func(c *Config) *int { return &c.AxisWindow }),
	"MOTION_FLOOR":  float(func(c *Config) *float64 { return &c.MotionFloor }),
	"AXIS_INTERVAL": float(func(c *Config) *float64 { return &c.AxisInterval }),

	// Adaptive re-analysis
	"HISTORY_SIZE":        integer(func(c *Config) *int { return &c.HistorySize }),
	"ANALYSIS_INTERVAL":   float(func(c *Config) *float64 { return &c.AnalysisInterval }),
	"ADAPTIVE_PERCENTILE": float(func(c *Config) *float64 { return &c.AdaptivePercentile }),

	// Timing and outputs
	"CONSOLE_LOG_INTERVAL": integer(func(c *Config) *int { return &c.ConsoleLogInterval }),
	"METRICS_ADDR":         str(func(c *Config) *string { return &c.MetricsAddr }),
}

// Keys lists every accepted key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one KEY=VALUE pair.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.SampleRate < 0 {
		return fmt.Errorf("SAMPLE_RATE must be >= 0, got %v", c.SampleRate)
	}
	if c.SampleRate > 0 && c.HighCut >= c.SampleRate/2 {
		return fmt.Errorf("HIGH_CUT %v must be below half of SAMPLE_RATE %v", c.HighCut, c.SampleRate)
	}
	if !(c.Alpha > 0 && c.Alpha < 1) {
		return fmt.Errorf("ALPHA must be in (0,1), got %v", c.Alpha)
	}
	if !(c.LowCut > 0 && c.LowCut < c.HighCut) {
		return fmt.Errorf("need 0 < LOW_CUT < HIGH_CUT, got %v and %v", c.LowCut, c.HighCut)
	}
	if !(c.CatchThreshold > c.FinishThreshold) {
		return fmt.Errorf("CATCH_THRESHOLD %v must exceed FINISH_THRESHOLD %v", c.CatchThreshold, c.FinishThreshold)
	}
	if c.BaselineWindow < 0 {
		return fmt.Errorf("BASELINE_WINDOW must be >= 0, got %v", c.BaselineWindow)
	}
	if !(c.AdaptivePercentile > 0 && c.AdaptivePercentile < 1) {
		return fmt.Errorf("ADAPTIVE_PERCENTILE must be in (0,1), got %v", c.AdaptivePercentile)
	}
	if c.GPSBaudRate <= 0 {
		return fmt.Errorf("GPS_BAUD_RATE must be positive, got %d", c.GPSBaudRate)
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be positive, got %d", c.ConsoleLogInterval)
	}
	return nil
}

// Pipeline derives the pipeline context. The calibration record is loaded
// separately and attached by the caller.
func (c *Config) Pipeline() pipeline.Config {
	p := pipeline.DefaultConfig()
	p.SampleRate = c.SampleRate
	p.WarmupSamples = c.WarmupSamples
	p.Alpha = c.Alpha
	p.Mounting = c.Mounting
	p.Frame = c.FrameMode
	p.LowCut, p.HighCut = c.LowCut, c.HighCut
	p.CatchThreshold, p.FinishThreshold = c.CatchThreshold, c.FinishThreshold
	p.BaselineWindow = c.BaselineWindow
	p.MinDrive, p.MinCycle, p.MaxCycle = c.MinDrive, c.MinCycle, c.MaxCycle
	p.AxisWindow, p.MotionFloor, p.AxisInterval = c.AxisWindow, c.MotionFloor, c.AxisInterval
	p.HistorySize = c.HistorySize
	p.AnalysisInterval = c.AnalysisInterval
	p.Adaptive.Percentile = c.AdaptivePercentile
	return p
}
