package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zac/internal/config"
	"zac/internal/domain"

	"github.com/nats-io/nats.go"
)

const (
	reportStreamMaxAge = 30 * 24 * time.Hour
	natsConnectTimeout = 5 * time.Second
)

// NATSSink publishes the JSON report into a JetStream stream.
// The run id is the message id, so a repeated publish of the same run is deduplicated.
type NATSSink struct {
	cfg config.NATSReport
}

// NewNATSSink creates a JetStream sink; the connection is opened per delivery.
func NewNATSSink(cfg config.NATSReport) *NATSSink {
	return &NATSSink{cfg: cfg}
}

// Name returns the sink key.
func (s *NATSSink) Name() string {
	return "nats"
}

// Deliver connects, ensures the stream, and publishes the report.
// Params: context, report, and rendered text (unused; subscribers get the JSON report).
// Returns: connect, stream, or publish error.
func (s *NATSSink) Deliver(ctx context.Context, report domain.RunReport, _ string) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal nats report: %w", err)
	}
	nc, err := nats.Connect(s.cfg.URL, nats.Name("zac"), nats.Timeout(natsConnectTimeout))
	if err != nil {
		return fmt.Errorf("connect report nats: %w", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream init for reports: %w", err)
	}
	if err := ensureStream(js, s.cfg.Stream, s.cfg.Subject); err != nil {
		return err
	}

	msg := nats.NewMsg(s.cfg.Subject)
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, report.RunID.String())
	if _, err := js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// ensureStream creates the report stream when it does not exist.
// Params: JetStream context, stream name, and subject.
// Returns: lookup or create error.
func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    reportStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}
