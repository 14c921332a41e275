package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Notification announces to the downstream hub that a message's document is
// available for retrieval.
type Notification struct {
	MessageID    string    `json:"message_id"`
	BundleID     string    `json:"bundle_id"`
	DocumentType string    `json:"document_type"`
	Receiver     string    `json:"receiver"`
	ReceiverRole string    `json:"receiver_role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Publisher sends availability notifications. Send must be safely
// re-invocable for the same idempotency key.
type Publisher interface {
	Send(ctx context.Context, idempotencyKey string, n Notification) error
}

type JetStreamConfig struct {
	URL             string
	StreamName      string
	Subject         string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "MARKET_NOTIFICATIONS",
		Subject:         "market.messages.available",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamPublisher publishes notifications to a JetStream stream. The
// stream's duplicate window combined with the per-message Nats-Msg-Id makes
// re-sends for the same key server-side no-ops.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Availability notifications for outgoing market messages",
		Subjects:    []string{p.config.Subject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  p.config.DuplicateWindow,
	}

	_, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return err
		}
		if _, err := p.js.CreateStream(ctx, sc); err != nil {
			return err
		}
		return nil
	}

	_, err = p.js.UpdateStream(ctx, sc)
	return err
}

func (p *JetStreamPublisher) Send(ctx context.Context, idempotencyKey string, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = p.js.Publish(ctx, p.config.Subject, payload, jetstream.WithMsgID(idempotencyKey))
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close drains the underlying connection.
func (p *JetStreamPublisher) Close() {
	p.nc.Close()
}
