package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const subscriptionBuffer = 64

// NATSSubscriber reads events from NATS. It reconnects indefinitely.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to url. opts are applied after the defaults, so
// callers can add disconnect and reconnect handlers.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	all := append([]nats.Option{
		nats.Name("charters-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// subscription forwards NATS messages to a channel until it is closed.
// Messages that find the channel full are dropped so a slow reader never
// blocks the NATS connection.
type subscription struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

func (s *subscription) deliver(msg *nats.Msg) {
	m := Message{Topic: msg.Subject, Data: msg.Data}
	if msg.Header != nil {
		m.CharterID = msg.Header.Get(CharterIDHeader)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- m:
	default:
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe accepts NATS wildcards in pattern. Cancel may be called more
// than once. Messages already buffered stay readable after cancel.
func (s *NATSSubscriber) Subscribe(pattern string) (<-chan Message, func(), error) {
	sub := &subscription{ch: make(chan Message, subscriptionBuffer)}
	ns, err := s.conn.Subscribe(pattern, sub.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to %s: %w", pattern, err)
	}
	// Make sure the server knows about the interest before returning, or
	// events published right after could be missed.
	if err := s.conn.Flush(); err != nil {
		_ = ns.Unsubscribe()
		return nil, nil, fmt.Errorf("flush subscription to %s: %w", pattern, err)
	}
	cancel := func() {
		_ = ns.Unsubscribe()
		sub.close()
	}
	return sub.ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
