package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used to emit audit events
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each entry as JSON on <prefix>.<action>
type NATSSink struct {
	pub    Publisher
	prefix string
}

func NewNATSSink(pub Publisher, subjectPrefix string) *NATSSink {
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(subjectPrefix, ".")}
}

// ConnectNATS dials the broker with unlimited reconnects
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

func (s *NATSSink) Record(_ context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	subject := s.prefix + "." + strings.ToLower(entry.Action)
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}
