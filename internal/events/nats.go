package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "SMS"

// NATS publishes to a JetStream stream capturing sms.>.
type NATS struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// ConnectNATS connects and ensures the stream exists.
func ConnectNATS(ctx context.Context, url string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("sms-gateway"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"sms.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "stream", streamName)
	return &NATS{nc: nc, js: js}, nil
}

func (n *NATS) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}
