// Package events publishes RFP lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rfp-backend/models"

	"github.com/nats-io/nats.go"
)

// Event types, used verbatim as NATS subjects
const (
	TypeCreated = "rfp.created"
	TypeUpdated = "rfp.updated"
	TypeDeleted = "rfp.deleted"
	TypeClosed  = "rfp.closed"
)

// Event describes a change to an RFP
type Event struct {
	Type       string           `json:"type"`
	RFPID      string           `json:"rfpId"`
	Status     models.RFPStatus `json:"status,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
	RFP        *models.RFP      `json:"rfp,omitempty"`
}

// Publisher delivers lifecycle events
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NopPublisher discards every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events as JSON on core NATS subjects
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// ConnectNATS dials the server at url. prefix, if set, is prepended to
// every subject ("prefix.rfp.created").
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("rfp-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Subject returns the subject an event is published on
func (p *NATSPublisher) Subject(evt Event) string {
	if p.prefix == "" {
		return evt.Type
	}
	return p.prefix + "." + evt.Type
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.Subject(evt)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
