package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facehook/internal/models"
)

const (
	RecognitionsStreamName = "RECOGNITIONS"
	DefaultSubject         = "recognitions.latest"
)

// Producer publishes every new latest record to a JetStream subject so that
// other services can follow recognitions without polling.
type Producer struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

func NewProducer(natsURL, subject string) (*Producer, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("facehook"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js, subject: subject}, nil
}

func (p *Producer) Subject() string { return p.subject }

// EnsureStream creates the recognitions stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        RecognitionsStreamName,
		Subjects:    []string{p.subject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     100000,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  30 * time.Second,
		Description: "Latest face recognition records",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name, "subject", p.subject)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishRecognition publishes rec with the same JSON the latest endpoint
// serves.
func (p *Producer) PublishRecognition(ctx context.Context, rec models.RecognitionRecord) error {
	msg, err := encodeRecognition(p.subject, rec)
	if err != nil {
		return err
	}
	if _, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(msg.Header.Get(nats.MsgIdHdr))); err != nil {
		return fmt.Errorf("publish recognition: %w", err)
	}
	return nil
}

func encodeRecognition(subject string, rec models.RecognitionRecord) (*nats.Msg, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal recognition: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Header.Set("Facehook-Recognized", fmt.Sprint(rec.IsRecognized()))
	return msg, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
