package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultFlushTimeout = 5 * time.Second

// NATSPublisher sends JSON events on the NATS subject named by their topic.
// Charter events carry the charter id in CharterIDHeader so consumers can
// filter without decoding the body.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("charters"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, event any) error {
	msg, err := newMsg(topic, event)
	if err != nil {
		return err
	}
	return p.conn.PublishMsg(msg)
}

func newMsg(topic string, event any) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := &nats.Msg{Subject: topic, Data: data, Header: nats.Header{}}
	if k, ok := event.(keyed); ok && k.EventCharterID() != "" {
		msg.Header.Set(CharterIDHeader, k.EventCharterID())
	}
	return msg, nil
}

// Flush blocks until the server has processed every published event. A ctx
// without a deadline is bounded by defaultFlushTimeout.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
