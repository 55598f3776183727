package monitoring

import (
	"context"
	"time"

	"loadcast/pkg/kafka"
	"loadcast/pkg/logger"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one monitoring finding.
type Alert struct {
	Severity  string    `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertSink delivers alerts. Delivery failures never block a check cycle.
type AlertSink interface {
	Send(ctx context.Context, alert Alert) error
}

// LogSink writes alerts to the structured log. Always installed.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Send(_ context.Context, alert Alert) error {
	s.logger.Warn("alert",
		logger.String("severity", alert.Severity),
		logger.String("component", alert.Component),
		logger.String("message", alert.Message))
	return nil
}

// KafkaSink publishes alert events to a topic for downstream consumers.
type KafkaSink struct {
	producer *kafka.Producer
}

// NewKafkaSink creates a KafkaSink over an existing producer.
func NewKafkaSink(p *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Send(ctx context.Context, alert Alert) error {
	return s.producer.Publish(ctx, []byte(alert.Component), alert)
}
