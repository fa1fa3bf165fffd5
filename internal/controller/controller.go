// Package controller implements the conversation state machine: it
// owns the turn-by-turn lifecycle of a citizen session and drives the
// service pipeline for everything that is not a universal command.
package controller

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/govbridge/govchat/internal/intent"
	"github.com/govbridge/govchat/internal/models"
	"github.com/govbridge/govchat/internal/prompts"
	"github.com/govbridge/govchat/internal/queue"
	"github.com/govbridge/govchat/internal/session"
	"github.com/govbridge/govchat/internal/validate"
)

// Sender pushes an asynchronous outbound message to a citizen. The
// chat-transport collaborator implements it.
type Sender interface {
	SendMessage(userID, text string) error
}

// Controller is the top-level state machine.
type Controller struct {
	sessions   *session.Manager
	classifier intent.Classifier
	dispatcher *queue.Dispatcher
	sender     Sender

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New creates a controller.
func New(sessions *session.Manager, classifier intent.Classifier, dispatcher *queue.Dispatcher, sender Sender) *Controller {
	return &Controller{
		sessions:   sessions,
		classifier: classifier,
		dispatcher: dispatcher,
		sender:     sender,
		done:       make(chan struct{}),
	}
}

// Close stops result delivery and waits for in-flight waiters.
func (c *Controller) Close() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}

// HandleMessage processes one inbound message and returns the reply.
// It never propagates an error to the transport: anything unexpected
// degrades to a safe fallback message.
func (c *Controller) HandleMessage(ctx context.Context, rawUserID, text string, ts time.Time) (reply string) {
	userID := session.NormalizeUserID(rawUserID)

	// Serialize handling per user: a second concurrent message waits
	// behind this lock rather than interleaving into the same session.
	unlock := c.sessions.Lock(userID)
	defer unlock()

	lang := models.DefaultLanguage

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: panic handling message (user=%s): %v", userID, r)
			reply = prompts.Reply(lang, prompts.ReplyFallback)
		}
	}()

	sess, created, err := c.sessions.GetOrCreate(ctx, userID, ts)
	if err != nil {
		log.Printf("ERROR: session load failed (user=%s): %v", userID, err)
		return prompts.Reply(lang, prompts.ReplyFallback)
	}
	lang = sess.Language
	if created {
		log.Printf("New session %s for user %s", sess.SessionID, userID)
	}

	c.sessions.TouchAndBoundHistory(sess, session.Turn{Role: "user", Content: text, Timestamp: ts})

	reply, destroyed := c.handleTurn(ctx, sess, text, ts)

	if !destroyed {
		c.sessions.TouchAndBoundHistory(sess, session.Turn{Role: "assistant", Content: reply, Timestamp: ts})
		if err := c.persist(ctx, sess); err != nil {
			log.Printf("ERROR: session update failed (session=%s user=%s): %v", sess.SessionID, userID, err)
			return prompts.Reply(lang, prompts.ReplyFallback)
		}
	}
	return reply
}

// persist writes the session back, transparently retrying one version
// conflict by reapplying this turn's final state onto a fresh copy.
func (c *Controller) persist(ctx context.Context, sess *session.Session) error {
	final := *sess
	return c.sessions.Update(ctx, sess, func(fresh *session.Session) {
		fresh.Language = final.Language
		fresh.State = final.State
		fresh.PendingIntent = final.PendingIntent
		fresh.AwaitingField = final.AwaitingField
		fresh.ActiveRequestID = final.ActiveRequestID
		fresh.CancelledRequestID = final.CancelledRequestID
		fresh.History = final.History
		fresh.Touch(final.LastActivityAt)
	})
}

// handleTurn runs the state machine for one message. The bool reports
// whether the session was destroyed (logout) and must not be persisted.
func (c *Controller) handleTurn(ctx context.Context, sess *session.Session, text string, ts time.Time) (string, bool) {
	if cmd, arg, ok := parseCommand(text); ok {
		return c.handleCommand(ctx, sess, cmd, arg)
	}

	switch sess.State {
	case session.StateProcessing:
		return prompts.Reply(sess.Language, prompts.ReplyStillProcessing), false

	case session.StateAwaitingInput:
		return c.fillAwaitedField(ctx, sess, text, ts), false

	default:
		return c.classifyAndDispatch(ctx, sess, text, ts), false
	}
}

// parseCommand recognizes the universal commands in any state.
func parseCommand(text string) (cmd, arg string, ok bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return "", "", false
	}
	switch fields[0] {
	case "cancel", "help", "status", "logout":
		return fields[0], "", len(fields) == 1
	case "language":
		if len(fields) == 2 {
			return "language", fields[1], true
		}
		return "language", "", true
	}
	return "", "", false
}

func (c *Controller) handleCommand(ctx context.Context, sess *session.Session, cmd, arg string) (string, bool) {
	switch cmd {
	case "help":
		return prompts.Reply(sess.Language, prompts.ReplyHelp), false

	case "status":
		switch sess.State {
		case session.StateAwaitingInput:
			return prompts.Reply(sess.Language, prompts.ReplyStatusAwaiting,
				intent.FieldLabel(sess.PendingIntent.Service, sess.AwaitingField),
				prompts.ServiceLabel(sess.PendingIntent.Service)), false
		case session.StateProcessing:
			return prompts.Reply(sess.Language, prompts.ReplyStatusProcessing,
				prompts.ServiceLabel(sess.PendingIntent.Service)), false
		default:
			return prompts.Reply(sess.Language, prompts.ReplyStatusIdle), false
		}

	case "language":
		lang := models.Language(arg)
		if !lang.Valid() {
			return prompts.Reply(sess.Language, prompts.ReplyLanguageUnknown), false
		}
		sess.Language = lang
		return prompts.Reply(lang, prompts.ReplyLanguageChanged), false

	case "cancel":
		return c.handleCancel(sess), false

	case "logout":
		lang := sess.Language
		if err := c.sessions.Delete(ctx, sess.UserID); err != nil {
			log.Printf("ERROR: logout delete failed (session=%s): %v", sess.SessionID, err)
			return prompts.Reply(lang, prompts.ReplyFallback), false
		}
		log.Printf("Session %s destroyed by logout (user=%s)", sess.SessionID, sess.UserID)
		return prompts.Reply(lang, prompts.ReplyLoggedOut), true
	}
	return prompts.Reply(sess.Language, prompts.ReplyFallback), false
}

func (c *Controller) handleCancel(sess *session.Session) string {
	switch sess.State {
	case session.StateProcessing:
		// Best effort: drop it from the queue if still waiting; if the
		// portal call is already in flight, mark it so the late result
		// is discarded on arrival instead of delivered.
		if sess.ActiveRequestID != "" && sess.PendingIntent != nil {
			c.dispatcher.Cancel(sess.PendingIntent.Service, sess.ActiveRequestID)
			sess.CancelledRequestID = sess.ActiveRequestID
		}
		sess.Reset()
		return prompts.Reply(sess.Language, prompts.ReplyCancelled)

	case session.StateAwaitingInput:
		sess.Reset()
		return prompts.Reply(sess.Language, prompts.ReplyCancelled)

	default:
		return prompts.Reply(sess.Language, prompts.ReplyNothingToCancel)
	}
}

// fillAwaitedField treats the message as the value of the awaited
// entity, without reclassifying it.
func (c *Controller) fillAwaitedField(ctx context.Context, sess *session.Session, text string, ts time.Time) string {
	pending := sess.PendingIntent
	if pending == nil || sess.AwaitingField == "" {
		// Inconsistent state; start over from classification.
		sess.Reset()
		return c.classifyAndDispatch(ctx, sess, text, ts)
	}

	pending.Entities[sess.AwaitingField] = strings.TrimSpace(text)
	pending.MissingFields = remainingFields(pending)

	if !pending.Complete() {
		sess.AwaitingField = pending.MissingFields[0]
		return prompts.Reply(sess.Language, prompts.ReplyAskField,
			intent.FieldLabel(pending.Service, sess.AwaitingField))
	}

	sess.AwaitingField = ""
	return c.submit(sess, ts)
}

func (c *Controller) classifyAndDispatch(ctx context.Context, sess *session.Session, text string, ts time.Time) string {
	classified, err := c.classifier.Classify(ctx, text, sess.Language)
	if err != nil {
		log.Printf("ERROR: classification failed (session=%s): %v", sess.SessionID, err)
		return prompts.Reply(sess.Language, prompts.ReplyHelp)
	}

	sess.PendingIntent = classified

	if !classified.Complete() {
		sess.State = session.StateAwaitingInput
		sess.AwaitingField = classified.MissingFields[0]
		return prompts.Reply(sess.Language, prompts.ReplyAskField,
			intent.FieldLabel(classified.Service, sess.AwaitingField))
	}

	return c.submit(sess, ts)
}

// submit validates the collected payload and enqueues the request.
func (c *Controller) submit(sess *session.Session, ts time.Time) string {
	pending := sess.PendingIntent
	label := prompts.ServiceLabel(pending.Service)

	if err := validate.Payload(pending.Service, pending.Operation, pending.Entities); err != nil {
		log.Printf("Validation failed (session=%s service=%s): %v", sess.SessionID, pending.Service, err)
		// Keep the intent and re-ask so the citizen can correct it.
		sess.State = session.StateAwaitingInput
		sess.AwaitingField = validate.ReferenceField
		return prompts.Reply(sess.Language, prompts.ReplyValidationError,
			intent.FieldLabel(pending.Service, validate.ReferenceField))
	}

	req := &models.ServiceRequest{
		RequestID:    uuid.NewString(),
		SessionID:    sess.SessionID,
		Service:      pending.Service,
		Operation:    pending.Operation,
		InputPayload: pending.Entities,
		EnqueuedAt:   ts,
	}

	position, wait, resultC, err := c.dispatcher.Submit(req)
	if err == queue.ErrBackpressure {
		log.Printf("Backpressure for %s (session=%s)", pending.Service, sess.SessionID)
		sess.Reset()
		return prompts.Reply(sess.Language, prompts.ReplyBackpressure, label)
	}
	if err != nil {
		log.Printf("ERROR: submit failed (session=%s request=%s): %v", sess.SessionID, req.RequestID, err)
		sess.Reset()
		return prompts.Reply(sess.Language, prompts.ReplyFallback)
	}

	sess.State = session.StateProcessing
	sess.ActiveRequestID = req.RequestID
	log.Printf("Request %s queued at position %d (session=%s service=%s)",
		req.RequestID, position, sess.SessionID, pending.Service)

	c.wg.Add(1)
	go c.awaitResult(sess.UserID, sess.SessionID, req, resultC)

	if position > 1 {
		return prompts.Reply(sess.Language, prompts.ReplyAckQueued, label, position, wait.Round(time.Second))
	}
	return prompts.Reply(sess.Language, prompts.ReplyAck, label)
}

// awaitResult picks up the request's terminal result and pushes the
// formatted reply to the citizen, unless the request was cancelled or
// the session has since gone away.
func (c *Controller) awaitResult(userID, sessionID string, req *models.ServiceRequest, resultC <-chan *models.ServiceResult) {
	defer c.wg.Done()

	var result *models.ServiceResult
	select {
	case <-c.done:
		return
	case result = <-resultC:
	}

	unlock := c.sessions.Lock(userID)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := c.sessions.Get(ctx, userID, time.Now())
	if err != nil {
		log.Printf("Discarding result for request %s: session gone (user=%s)", req.RequestID, userID)
		return
	}
	if sess.SessionID != sessionID {
		log.Printf("Discarding result for request %s: session replaced", req.RequestID)
		return
	}
	if sess.CancelledRequestID == req.RequestID {
		log.Printf("Discarding result for cancelled request %s (session=%s)", req.RequestID, sessionID)
		sess.CancelledRequestID = ""
		if err := c.sessions.Update(ctx, sess, nil); err != nil && err != session.ErrConflict {
			log.Printf("WARN: failed to clear cancel marker (session=%s): %v", sessionID, err)
		}
		return
	}
	if sess.ActiveRequestID != req.RequestID {
		log.Printf("Discarding result for superseded request %s (session=%s)", req.RequestID, sessionID)
		return
	}

	reply := c.formatResult(sess, req, result)

	sess.Reset()
	// The request reached a terminal outcome; the next message starts a
	// fresh classification from here just like idle.
	sess.State = session.StateCompleted
	c.sessions.TouchAndBoundHistory(sess, session.Turn{Role: "assistant", Content: reply, Timestamp: result.CompletedAt})
	if err := c.persist(ctx, sess); err != nil {
		log.Printf("ERROR: session update after result failed (session=%s request=%s): %v", sessionID, req.RequestID, err)
	}

	if err := c.sender.SendMessage(userID, reply); err != nil {
		log.Printf("ERROR: result delivery failed (session=%s request=%s): %v", sessionID, req.RequestID, err)
	}
}

func (c *Controller) formatResult(sess *session.Session, req *models.ServiceRequest, result *models.ServiceResult) string {
	label := prompts.ServiceLabel(req.Service)

	if result.Success {
		log.Printf("Request %s completed (session=%s service=%s source=%s attempts=%d)",
			req.RequestID, sess.SessionID, req.Service, result.Source, result.Attempts)
		return prompts.FormatResult(sess.Language, req.Service, result.ResultPayload)
	}

	log.Printf("Request %s failed (session=%s service=%s kind=%s attempts=%d)",
		req.RequestID, sess.SessionID, req.Service, result.Kind, result.Attempts)

	switch result.Kind {
	case models.KindServiceTimeout:
		return prompts.Reply(sess.Language, prompts.ReplyServiceTimeout, label)
	case models.KindServiceError:
		return prompts.Reply(sess.Language, prompts.ReplyServiceError, label)
	case models.KindServiceUnavailable:
		return prompts.Reply(sess.Language, prompts.ReplyServiceUnavailable, label)
	default:
		return prompts.Reply(sess.Language, prompts.ReplyFallback)
	}
}

func remainingFields(pending *models.Intent) []string {
	required := intent.Schema[pending.Service]
	missing := make([]string, 0, len(required))
	for _, field := range required {
		if pending.Entities[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
