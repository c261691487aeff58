package watch

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSPublisher fans mutations out to a NATS subject so coordinators on other
// hosts can observe them. It implements Handler and is registered on a
// Registry like any in-process watcher.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	ownsConn      bool
}

// NewNATSPublisher connects to NATS and returns a publisher. Subjects are
// <prefix>.<project>.<section> for section mutations and
// <prefix>.<project>.lifecycle for transitions and restores.
func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("agentcoord-watch"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS mutation publisher connected", "url", url, "subject_prefix", subjectPrefix)
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix, ownsConn: true}, nil
}

// NewNATSPublisherWithConn wraps an existing connection; Close leaves the
// connection open for its owner.
func NewNATSPublisherWithConn(conn *nats.Conn, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix}
}

// Handle publishes one mutation. Satisfies Handler.
func (p *NATSPublisher) Handle(m Mutation) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mutation: %w", err)
	}
	if err := p.conn.Publish(p.subject(m), payload); err != nil {
		return fmt.Errorf("publish mutation: %w", err)
	}
	return nil
}

func (p *NATSPublisher) subject(m Mutation) string {
	if m.Section != "" {
		return fmt.Sprintf("%s.%s.%s", p.subjectPrefix, m.ProjectID, m.Section)
	}
	return fmt.Sprintf("%s.%s.lifecycle", p.subjectPrefix, m.ProjectID)
}

// Close drains the connection when this publisher owns it.
func (p *NATSPublisher) Close() {
	if p.ownsConn && p.conn != nil {
		p.conn.Close()
	}
}
