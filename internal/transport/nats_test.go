package transport

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/govbridge/govchat/internal/config"
)

// gatedHandler blocks every HandleMessage call until the gate opens and
// tracks how many calls are in flight.
type gatedHandler struct {
	gate     chan struct{}
	inFlight atomic.Int32
	calls    atomic.Int32
}

func (h *gatedHandler) HandleMessage(ctx context.Context, userID, text string, ts time.Time) string {
	h.calls.Add(1)
	h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	<-h.gate
	return "done"
}

func inboundMsg(t *testing.T, userID, text string) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(InboundMessage{UserID: userID, Text: text})
	require.NoError(t, err)
	return &nats.Msg{Subject: "citizen.message", Reply: "_INBOX.test", Data: data}
}

func TestInboundMessagesDoNotBlockEachOther(t *testing.T) {
	handler := &gatedHandler{gate: make(chan struct{})}
	nt := &NATSTransport{config: config.Load(), ctrl: handler}

	// The subscription delivers messages one at a time on a single
	// goroutine; both calls below must return immediately even though
	// the first handler is still blocked.
	nt.handleInbound(inboundMsg(t, "+256772000001", "check my tax status"))
	nt.handleInbound(inboundMsg(t, "+256772000002", "check my pension"))

	require.Eventually(t, func() bool {
		return handler.inFlight.Load() == 2
	}, time.Second, 5*time.Millisecond, "second user's message stuck behind the first")

	close(handler.gate)
	require.Eventually(t, func() bool {
		return handler.inFlight.Load() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestInboundValidation(t *testing.T) {
	handler := &gatedHandler{gate: make(chan struct{})}
	close(handler.gate)
	nt := &NATSTransport{config: config.Load(), ctrl: handler}

	nt.handleInbound(&nats.Msg{Subject: "citizen.message", Data: []byte("not json")})
	nt.handleInbound(inboundMsg(t, "", "no user"))
	nt.handleInbound(inboundMsg(t, "+256772000001", ""))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, handler.calls.Load(), "invalid messages must be dropped before handling")
}
