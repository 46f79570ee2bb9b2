// Package notify publishes patrol events to NATS for downstream consumers.
// Publishing is best effort: a broker outage never affects polling or builds.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/refpatrol/internal/logfields"
)

// PollEvent describes one completed poll cycle.
type PollEvent struct {
	Alias       string    `json:"alias"`
	URL         string    `json:"url"`
	PollID      string    `json:"poll_id"`
	ChangedRefs []string  `json:"changed_refs,omitempty"`
	Time        time.Time `json:"time"`
}

// ChainEvent describes one finished build chain.
type ChainEvent struct {
	Alias   string    `json:"alias"`
	Ref     string    `json:"ref"`
	Commit  string    `json:"commit"`
	PollID  string    `json:"poll_id"`
	Success bool      `json:"success"`
	Time    time.Time `json:"time"`
}

// Publisher emits patrol events. Implementations must tolerate concurrent use.
type Publisher interface {
	PollCompleted(ev PollEvent)
	ChainFinished(ev ChainEvent)
	Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PollCompleted(PollEvent)  {}
func (NoopPublisher) ChainFinished(ChainEvent) {}
func (NoopPublisher) Close()                   {}

// NATSPublisher publishes events as JSON messages on a subject hierarchy
// below the configured root subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to the broker. subject is the root subject;
// events are published to "<subject>.poll" and "<subject>.chain".
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	slog.Info("NATS publisher connected", slog.String("nats_url", url), slog.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) PollCompleted(ev PollEvent)  { p.publish(p.subject+".poll", ev) }
func (p *NATSPublisher) ChainFinished(ev ChainEvent) { p.publish(p.subject+".chain", ev) }

func (p *NATSPublisher) publish(subject string, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to encode event", logfields.Error(err))
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		slog.Warn("Failed to publish event",
			slog.String("subject", subject), logfields.Error(err))
	}
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
