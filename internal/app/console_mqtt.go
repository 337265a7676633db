package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/config"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/session"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// Console prints what the coach topics carry. Poses are rate limited to
// one line per PoseInterval.
type Console struct {
	mu           sync.Mutex
	out          io.Writer
	topics       Topics
	PoseInterval time.Duration
	lastPose     time.Time
	now          func() time.Time
}

func NewConsole(out io.Writer, topics Topics, poseInterval time.Duration) *Console {
	return &Console{out: out, topics: topics, PoseInterval: poseInterval, now: time.Now}
}

// Handle prints one message. Unknown topics are ignored.
func (c *Console) Handle(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch topic {
	case c.topics.Stroke:
		var e stroke.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("stroke unmarshal error: %w", err)
		}
		if e.Complete() {
			fmt.Fprintf(c.out, "[STROKE] %2d spm  drive=%4.0fms (%2d%%)  recovery=%4.0fms  peak=%5.2f\n",
				e.StrokeRate, e.DriveTime, e.DrivePercent, e.RecoveryTime, e.PeakAccel)
		} else {
			fmt.Fprintf(c.out, "[STROKE] first  drive=%4.0fms  peak=%5.2f\n", e.DriveTime, e.PeakAccel)
		}

	case c.topics.Pose:
		now := c.now()
		if c.PoseInterval > 0 && now.Sub(c.lastPose) < c.PoseInterval {
			return nil
		}
		var o pipeline.Output
		if err := json.Unmarshal(payload, &o); err != nil {
			return fmt.Errorf("pose unmarshal error: %w", err)
		}
		c.lastPose = now
		fmt.Fprintf(c.out, "[POSE]  PITCH=%6.2f  ROLL=%6.2f  SURGE=%6.2f  FILT=%6.2f  %s\n",
			o.Orientation.Pitch, o.Orientation.Roll, o.Boat.Surge, o.Filtered, o.Phase)

	case c.topics.GPS:
		var f gps.Sample
		if err := json.Unmarshal(payload, &f); err != nil {
			return fmt.Errorf("gps unmarshal error: %w", err)
		}
		split := 0.0
		if f.Speed > session.MovingSpeed {
			split = 500 / f.Speed
		}
		fmt.Fprintf(c.out, "[GPS ]  lat=%.6f lon=%.6f speed=%.2fm/s split=%s heading=%.1f°\n",
			f.Lat, f.Lon, f.Speed, session.FormatSplit(split), f.Heading)

	case c.topics.Diagnostic:
		var d diagnosticMsg
		if err := json.Unmarshal(payload, &d); err != nil {
			return fmt.Errorf("diagnostic unmarshal error: %w", err)
		}
		line := fmt.Sprintf("[DIAG]  %s", d.Kind)
		if d.Rejection != nil {
			line += fmt.Sprintf(" %s %.0fms", d.Rejection.Reason, d.Rejection.Duration)
		}
		if d.Error != "" {
			line += " " + d.Error
		}
		fmt.Fprintln(c.out, line)

	case c.topics.Analysis:
		var a analysisMsg
		if err := json.Unmarshal(payload, &a); err != nil {
			return fmt.Errorf("analysis unmarshal error: %w", err)
		}
		if a.Error != "" {
			fmt.Fprintf(c.out, "[ANLY]  %s\n", a.Error)
			return nil
		}
		sum := session.Summarize(a.Strokes, nil)
		fmt.Fprintf(c.out, "[ANLY]  %d strokes  %.1f spm  drive %.0f%%  rejected=%d\n",
			sum.Strokes, sum.RateMean, sum.DriveMean, a.Rejected)
	}
	return nil
}

// RunConsoleMQTT subscribes to every configured topic and prints until ctx
// is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer, logger *zap.Logger) error {
	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-console", logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	topics := TopicsFrom(cfg)
	console := NewConsole(out, topics, time.Duration(cfg.ConsoleLogInterval)*time.Millisecond)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := console.Handle(msg.Topic(), msg.Payload()); err != nil {
			logger.Warn("console", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}

	for _, topic := range []string{topics.Stroke, topics.Pose, topics.GPS, topics.Diagnostic, topics.Analysis} {
		if topic == "" {
			continue
		}
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		logger.Info("subscribed", zap.String("topic", topic))
	}

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}
