package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/frame"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
)

const sample = `
# boat setup
MQTT_BROKER=tcp://localhost:1883
MOUNTING = rower
FRAME_MODE=auto
SAMPLE_RATE=52
CATCH_THRESHOLD=0.8
FINISH_THRESHOLD=-0.4
ANALYSIS_INTERVAL=5000
AXIS_WINDOW=400
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, frame.Rower, cfg.Mounting)
	assert.Equal(t, pipeline.FrameAuto, cfg.FrameMode)
	assert.Equal(t, 52.0, cfg.SampleRate)
	assert.Equal(t, 400, cfg.AxisWindow)

	// untouched keys keep their defaults
	def := Defaults()
	assert.Equal(t, def.TopicStroke, cfg.TopicStroke)
	assert.Equal(t, def.LowCut, cfg.LowCut)

	p := cfg.Pipeline()
	assert.Equal(t, 52.0, p.SampleRate)
	assert.Equal(t, 0.8, p.CatchThreshold)
	assert.Equal(t, -0.4, p.FinishThreshold)
	assert.Equal(t, 5000.0, p.AnalysisInterval)
	assert.Equal(t, pipeline.FrameAuto, p.Frame)
	assert.Equal(t, 400, p.AxisWindow)
}

func TestDefaultsMatchPipeline(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, pipeline.DefaultConfig(), cfg.Pipeline())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "missing equals", input: "MOUNTING rower", want: "invalid config line 1"},
		{name: "unknown key", input: "\n\nBOGUS=1", want: `config line 3: unknown config key: "BOGUS"`},
		{name: "bad number", input: "ALPHA=high", want: `invalid ALPHA "high"`},
		{name: "bad mounting", input: "MOUNTING=keel", want: "invalid MOUNTING"},
		{name: "bad frame", input: "FRAME_MODE=sideways", want: "invalid FRAME_MODE"},
		{name: "alpha range", input: "ALPHA=1.5", want: "ALPHA must be in (0,1)"},
		{name: "thresholds inverted", input: "CATCH_THRESHOLD=-1", want: "must exceed FINISH_THRESHOLD"},
		{name: "band above nyquist", input: "SAMPLE_RATE=2", want: "below half of SAMPLE_RATE"},
		{name: "band inverted", input: "LOW_CUT=2", want: "LOW_CUT < HIGH_CUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrc.conf")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, frame.Rower, cfg.Mounting)

	_, err = Load(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestKeysAreSettable(t *testing.T) {
	keys := Keys()
	require.NotEmpty(t, keys)
	assert.IsIncreasing(t, keys)
	for _, k := range keys {
		err := Defaults().Set(k, "")
		// empty strings are fine for string keys and rejected by the others,
		// but never as an unknown key
		if err != nil {
			assert.NotContains(t, err.Error(), "unknown config key")
		}
	}
}
