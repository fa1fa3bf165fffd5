package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/govbridge/govchat/internal/config"
)

// InboundMessage is what the chat-transport collaborator delivers for
// each citizen message.
type InboundMessage struct {
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is the reply pushed back to the collaborator, either
// as the request reply or on the outbound subject for async results.
type OutboundMessage struct {
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageHandler processes one inbound citizen message and returns the
// synchronous reply. The conversation controller implements it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, text string, ts time.Time) string
}

type NATSTransport struct {
	conn   *nats.Conn
	config *config.Config
	ctrl   MessageHandler
}

func NewNATSTransport(cfg *config.Config) (*NATSTransport, error) {
	// Connect to NATS
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("Connected to NATS server: %s", cfg.NatsURL)

	return &NATSTransport{
		conn:   conn,
		config: cfg,
	}, nil
}

// SetController wires the controller in after construction; the
// controller itself needs the transport as its Sender.
func (nt *NATSTransport) SetController(ctrl MessageHandler) {
	nt.ctrl = ctrl
}

func (nt *NATSTransport) Start() error {
	// Subscribe to inbound citizen messages
	_, err := nt.conn.Subscribe(nt.config.NatsInboundSubject, nt.handleInbound)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.config.NatsInboundSubject, err)
	}

	log.Printf("Subscribed to subject: %s", nt.config.NatsInboundSubject)
	return nil
}

func (nt *NATSTransport) handleInbound(msg *nats.Msg) {
	var inbound InboundMessage
	if err := json.Unmarshal(msg.Data, &inbound); err != nil {
		log.Printf("Error parsing inbound message: %v", err)
		return
	}
	if inbound.UserID == "" || inbound.Text == "" {
		log.Printf("Dropping inbound message with empty user_id or text")
		return
	}
	if inbound.Timestamp.IsZero() {
		inbound.Timestamp = time.Now()
	}

	// Each message is handled on its own goroutine: per-user ordering is
	// enforced by the session lock, and one slow classification must not
	// hold up other citizens' messages on the subscription's delivery
	// goroutine.
	go nt.process(msg, inbound)
}

func (nt *NATSTransport) process(msg *nats.Msg, inbound InboundMessage) {
	log.Printf("Processing message from user %s", inbound.UserID)

	ctx, cancel := context.WithTimeout(context.Background(), nt.config.NatsTimeout)
	defer cancel()

	reply := nt.ctrl.HandleMessage(ctx, inbound.UserID, inbound.Text, inbound.Timestamp)

	outbound := OutboundMessage{
		UserID:    inbound.UserID,
		Text:      reply,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(outbound)
	if err != nil {
		log.Printf("Error marshaling reply: %v", err)
		return
	}

	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil {
			log.Printf("Error sending reply: %v", err)
		}
		return
	}
	if err := nt.conn.Publish(nt.config.NatsOutboundSubject, data); err != nil {
		log.Printf("Error publishing reply: %v", err)
	}
}

// SendMessage implements controller.Sender: async result delivery goes
// out on the outbound subject.
func (nt *NATSTransport) SendMessage(userID, text string) error {
	outbound := OutboundMessage{
		UserID:    userID,
		Text:      text,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(outbound)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	if err := nt.conn.Publish(nt.config.NatsOutboundSubject, data); err != nil {
		return fmt.Errorf("failed to publish outbound message: %w", err)
	}
	return nil
}

// Conn exposes the underlying connection so other NATS clients (the
// portal automator) can share it.
func (nt *NATSTransport) Conn() *nats.Conn {
	return nt.conn
}

func (nt *NATSTransport) Close() error {
	if nt.conn != nil {
		nt.conn.Close()
		log.Println("NATS connection closed")
	}
	return nil
}
