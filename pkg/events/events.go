package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/healthcure/clinic/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

// Security event subjects. Downstream consumers (SIEM forwarder, alerting)
// subscribe to security.> .
const (
	SubjectAuditRecorded = "security.audit.recorded"
	SubjectLoginFailed   = "security.login.failed"
	SubjectLoginSuccess  = "security.login.success"
	SubjectMFAFailed     = "security.mfa.failed"
)

type SecurityEvent struct {
	Action   string          `json:"action"`
	ActorID  *int64          `json:"actor_id,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
	Recorded time.Time       `json:"recorded"`
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "publishing event", "subject", subject)

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}
