// Package bus publishes workflow events to a message bus.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher delivers a payload to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// NATSPublisher publishes on a core NATS connection.
type NATSPublisher struct {
	nc  *nats.Conn
	log logrus.FieldLogger
}

// ConnectNATS dials url and keeps reconnecting for the life of the process.
func ConnectNATS(url string, log logrus.FieldLogger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("workflow"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, log: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// LogPublisher writes every message to the log. It stands in for a bus
// when none is configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.log.WithField("subject", subject).Debug(string(data))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Message is one payload captured by a MemoryPublisher.
type Message struct {
	Subject string
	Data    []byte
}

// MemoryPublisher keeps published messages in memory.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes every later Publish return err.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MemoryPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, Message{Subject: subject, Data: append([]byte(nil), data...)})
	return nil
}

// Messages returns a copy of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]Message, len(p.messages))
	copy(result, p.messages)
	return result
}

func (p *MemoryPublisher) Close() error { return nil }
