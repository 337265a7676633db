package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/config"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

const publishTimeout = 2 * time.Second

// Publishing is the subset of mqtt.Client the publisher needs.
type Publishing interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ConnectMQTT connects to broker and blocks until the session is up.
func ConnectMQTT(broker, clientID string, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	logger.Info("connected to MQTT broker", zap.String("broker", broker), zap.String("client_id", clientID))
	return client, nil
}

// Topics names where each kind of output goes. Empty topics are not
// published.
type Topics struct {
	Stroke     string
	Pose       string
	GPS        string
	Diagnostic string
	Analysis   string
}

func TopicsFrom(cfg *config.Config) Topics {
	return Topics{
		Stroke:     cfg.TopicStroke,
		Pose:       cfg.TopicPose,
		GPS:        cfg.TopicGPS,
		Diagnostic: cfg.TopicDiagnostic,
		Analysis:   cfg.TopicAnalysis,
	}
}

// Publisher sends pipeline output to MQTT as JSON. Poses are thinned to
// one per PoseEvery samples.
type Publisher struct {
	client    Publishing
	topics    Topics
	log       *zap.Logger
	PoseEvery int

	n int
}

func NewPublisher(client Publishing, topics Topics, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, topics: topics, log: logger, PoseEvery: 5}
}

// diagnosticMsg carries the error text, which Diagnostic itself does not
// serialize.
type diagnosticMsg struct {
	pipeline.Diagnostic
	Error string `json:"error,omitempty"`
}

type analysisMsg struct {
	T         float64        `json:"t"`
	Strokes   []stroke.Event `json:"strokes"`
	Rejected  int            `json:"rejected"`
	Threshold float64        `json:"threshold"`
	Error     string         `json:"error,omitempty"`
}

func (p *Publisher) OnSample(o pipeline.Output) {
	p.n++
	if p.PoseEvery > 1 && p.n%p.PoseEvery != 0 {
		return
	}
	p.publish(p.topics.Pose, false, o)
}

func (p *Publisher) OnStroke(e stroke.Event) {
	p.publish(p.topics.Stroke, false, e)
}

func (p *Publisher) OnDiagnostic(d pipeline.Diagnostic) {
	msg := diagnosticMsg{Diagnostic: d}
	if d.Err != nil {
		msg.Error = d.Err.Error()
	}
	p.publish(p.topics.Diagnostic, false, msg)
}

func (p *Publisher) OnAnalysis(a pipeline.Analysis) {
	msg := analysisMsg{
		T:         a.T,
		Strokes:   a.Result.Strokes,
		Rejected:  len(a.Result.Rejected),
		Threshold: a.Result.Threshold,
	}
	if a.Err != nil {
		msg.Error = a.Err.Error()
	}
	p.publish(p.topics.Analysis, false, msg)
}

// PublishGPS sends a fix as a retained message so late subscribers see the
// last position.
func (p *Publisher) PublishGPS(s gps.Sample) {
	p.publish(p.topics.GPS, true, s)
}

func (p *Publisher) publish(topic string, retained bool, v any) {
	if topic == "" {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Warn("json marshal error", zap.String("topic", topic), zap.Error(err))
		return
	}
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.log.Warn("publish timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn("publish error", zap.String("topic", topic), zap.Error(err))
	}
}
