package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/govbridge/govchat/internal/models"
)

// automation request/reply wire format shared with the automation
// workers.
type executeRequest struct {
	Service   models.Service    `json:"service"`
	Operation models.Operation  `json:"operation"`
	Payload   map[string]string `json:"payload"`
}

type executeReply struct {
	OK        bool              `json:"ok"`
	Payload   map[string]string `json:"payload,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"` // "temporary" or "permanent"
	Message   string            `json:"message,omitempty"`
}

// NATSAutomator reaches the browser-automation workers over NATS
// request/reply, one subject per service.
type NATSAutomator struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSAutomator creates an automator client on an existing NATS
// connection. Requests for service S go to "<prefix>.<S>".
func NewNATSAutomator(conn *nats.Conn, subjectPrefix string) *NATSAutomator {
	return &NATSAutomator{conn: conn, subjectPrefix: subjectPrefix}
}

func (a *NATSAutomator) Execute(ctx context.Context, service models.Service, operation models.Operation, payload map[string]string) (map[string]string, error) {
	data, err := json.Marshal(executeRequest{
		Service:   service,
		Operation: operation,
		Payload:   payload,
	})
	if err != nil {
		return nil, NewPermanent(service, "failed to marshal automation request", err)
	}

	subject := fmt.Sprintf("%s.%s", a.subjectPrefix, service)
	msg, err := a.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, NewTemporary(service, "no automation worker available", err)
		}
		return nil, NewTemporary(service, "automation request failed", err)
	}

	var reply executeReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, NewTemporary(service, "unreadable automation reply", err)
	}

	if !reply.OK {
		if reply.ErrorKind == "permanent" {
			return nil, NewPermanent(service, reply.Message, nil)
		}
		return nil, NewTemporary(service, reply.Message, nil)
	}
	return reply.Payload, nil
}
