package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/pkg/events"
)

// jetStreamPublisher is the subset of nats.JetStreamContext the sink needs.
type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSSink publishes reports to a JetStream subject.
type NATSSink struct {
	conn    *nats.Conn
	js      jetStreamPublisher
	subject string
	log     logrus.FieldLogger
}

// NewNATSSink connects to url and makes sure stream exists and captures subject.
func NewNATSSink(url, stream, subject string, log logrus.FieldLogger) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "nats_sink")

	conn, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		log.WithFields(logrus.Fields{"stream": stream, "subject": subject}).Info("creating JetStream stream")
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subject},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    7 * 24 * time.Hour,
			Replicas:  1,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
		}
	}

	return &NATSSink{conn: conn, js: js, subject: subject, log: log}, nil
}

func (s *NATSSink) Emit(ctx context.Context, report *events.AnalysisReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := report.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.js.Publish(s.subject, data, nats.Context(ctx), nats.MsgId(report.ID.String())); err != nil {
		return fmt.Errorf("failed to publish report for block %d to NATS: %w", report.BlockNumber, err)
	}
	s.log.WithField("block", report.BlockNumber).Debug("published report")
	return nil
}

func (s *NATSSink) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
