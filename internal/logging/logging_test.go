package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		debug   bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "console debug", cfg: Config{Format: "console", Level: "debug"}, debug: true},
		{name: "json warn", cfg: Config{Format: "json", Level: "warn"}},
		{name: "filtered", cfg: Config{Level: "debug", Filter: "*:pipeline"}, debug: true},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "xml"}, wantErr: true},
		{name: "bad filter", cfg: Config{Filter: "nope:"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.debug, l.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestFilter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	filtered, err := Filter(core, "warn+:* *:pipeline")
	require.NoError(t, err)

	l := zap.New(filtered)
	l.Named("pipeline").Debug("kept by name")
	l.Named("mqtt").Info("dropped")
	l.Named("mqtt").Warn("kept by level")

	msgs := []string{}
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"kept by name", "kept by level"}, msgs)
}
