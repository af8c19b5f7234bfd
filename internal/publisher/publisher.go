package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/metrics"
	"github.com/Checker-Finance/login-verifier/pkg/model"
)

// jetStream is the part of nats.JetStreamContext the publisher needs.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Envelope wraps a verification result on the wire.
type Envelope struct {
	ID        uuid.UUID    `json:"id"`
	EventType string       `json:"event_type"`
	Version   string       `json:"version"`
	Service   string       `json:"service"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   model.Result `json:"payload"`
}

// Publisher emits verification results to a JetStream subject.
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	subject string
	service string
	logger  *zap.Logger
}

// New creates a Publisher and makes sure a stream captures subject.
func New(nc *nats.Conn, subject, stream, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if _, err := js.StreamInfo(stream); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subject + ".>"},
			MaxAge:   7 * 24 * time.Hour,
		}); err != nil {
			return nil, err
		}
	}
	return newPublisher(nc, js, subject, service, logger), nil
}

func newPublisher(nc *nats.Conn, js jetStream, subject, service string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, js: js, subject: subject, service: service, logger: logger}
}

// PublishResult sends one result. The scenario name is appended to the subject.
func (p *Publisher) PublishResult(ctx context.Context, r model.Result) error {
	env := Envelope{
		ID:        uuid.New(),
		EventType: "login_contract.verified",
		Version:   "1.0.0",
		Service:   p.service,
		Timestamp: time.Now().UTC(),
		Payload:   r,
	}
	data, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	subject := p.subject + "." + r.Scenario
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{r.RunID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"passed":         []string{boolHeader(r.Passed)},
		},
	}
	// deduplicate redeliveries of the same scenario in the same run
	msg.Header.Set(nats.MsgIdHdr, r.RunID.String()+":"+r.Scenario)

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("run_id", r.RunID.String()),
			zap.Error(err))
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", subject),
		zap.Bool("passed", r.Passed))
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// Connected reports whether the underlying connection is up.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}

func boolHeader(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
