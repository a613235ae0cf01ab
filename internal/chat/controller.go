// Package chat implements the question/answer controller for one uploaded document.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/docchat/internal/api"
	"github.com/hyperjump/docchat/internal/models"
	"go.uber.org/zap"
)

// FallbackAnswer is the assistant reply when no answer could be obtained.
const FallbackAnswer = "Error fetching answer."

// DefaultSuggestions are preset questions offered when none are configured.
var DefaultSuggestions = []string{
	"Summarize this document",
	"What are the key points?",
	"Who is the intended audience?",
}

// Asker sends a question about a document to the backend.
type Asker interface {
	Query(ctx context.Context, documentID, question string) (*models.QueryResponse, error)
}

// Controller owns the message history and the send/receive cycle for one document.
// The history only grows; at most one question is in flight.
type Controller struct {
	asker       Asker
	documentID  string
	logger      *zap.Logger
	now         func() time.Time
	onMessage   func(models.Message)
	onFocus     func()
	suggestions []string

	mu      sync.Mutex
	history []models.Message
	waiting bool
	input   string
	closed  bool
	cancel  context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMessageHook registers fn to receive each appended message, in history order.
func WithMessageHook(fn func(models.Message)) Option {
	return func(c *Controller) { c.onMessage = fn }
}

// WithFocusHook registers fn to run when the input is re-armed after a round trip.
func WithFocusHook(fn func()) Option {
	return func(c *Controller) { c.onFocus = fn }
}

// WithSuggestions sets the preset questions. An empty list keeps the defaults.
func WithSuggestions(s []string) Option {
	return func(c *Controller) {
		if len(s) > 0 {
			c.suggestions = append([]string(nil), s...)
		}
	}
}

// NewController creates a controller with an empty history scoped to documentID.
func NewController(asker Asker, documentID string, opts ...Option) *Controller {
	c := &Controller{
		asker:       asker,
		documentID:  documentID,
		logger:      zap.NewNop(),
		now:         time.Now,
		suggestions: append([]string(nil), DefaultSuggestions...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DocumentID returns the document this chat is scoped to.
func (c *Controller) DocumentID() string {
	return c.documentID
}

// Send asks question. It returns false without doing anything if the trimmed question
// is empty, a question is already outstanding, or the controller is closed. Otherwise the
// user message is appended immediately, Send blocks for the round trip, and exactly one
// assistant message is appended before it returns.
func (c *Controller) Send(ctx context.Context, question string) bool {
	q := strings.TrimSpace(question)
	if q == "" {
		return false
	}
	c.mu.Lock()
	if c.closed || c.waiting {
		c.mu.Unlock()
		return false
	}
	userMsg := models.Message{Role: models.RoleUser, Content: q, Timestamp: c.now()}
	c.history = append(c.history, userMsg)
	c.waiting = true
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	c.emit(userMsg)

	resp, err := c.asker.Query(reqCtx, c.documentID, q)
	cancel()
	content := c.reply(resp, err)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("discarding answer for closed chat", zap.String("document_id", c.documentID))
		return true
	}
	assistantMsg := models.Message{Role: models.RoleAssistant, Content: content, Timestamp: c.now()}
	c.history = append(c.history, assistantMsg)
	c.waiting = false
	c.input = ""
	c.cancel = nil
	c.mu.Unlock()
	c.emit(assistantMsg)
	if c.onFocus != nil {
		c.onFocus()
	}
	return true
}

// SubmitInput sends the current input buffer.
func (c *Controller) SubmitInput(ctx context.Context) bool {
	return c.Send(ctx, c.Input())
}

// SetInput replaces the input buffer. It is ignored while the input is disabled.
func (c *Controller) SetInput(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting || c.closed {
		return false
	}
	c.input = s
	return true
}

// Input returns the input buffer.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// InputEnabled reports whether the user may type and send.
func (c *Controller) InputEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.waiting && !c.closed
}

// Suggestions returns the preset questions.
func (c *Controller) Suggestions() []string {
	return append([]string(nil), c.suggestions...)
}

// ChooseSuggestion copies suggestion i into the input without sending it.
func (c *Controller) ChooseSuggestion(i int) bool {
	if i < 0 || i >= len(c.suggestions) {
		return false
	}
	return c.SetInput(c.suggestions[i])
}

// History returns a copy of the messages in insertion order.
func (c *Controller) History() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.history...)
}

// Waiting reports whether a question is outstanding.
func (c *Controller) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Close tears the chat down: the in-flight request is cancelled and its completion discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.waiting = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) reply(resp *models.QueryResponse, err error) string {
	if err != nil {
		var se *api.StatusError
		fields := []zap.Field{
			zap.String("document_id", c.documentID),
			zap.String("kind", string(models.QueryTransportFailure)),
			zap.Error(err),
		}
		if errors.As(err, &se) {
			fields = append(fields, zap.Int("status", se.Code))
		}
		c.logger.Warn("query failed", fields...)
		return FallbackAnswer
	}
	if answer, ok := resp.AnswerText(); ok {
		return answer
	}
	if msg, ok := resp.ErrorText(); ok {
		c.logger.Info("answer service error",
			zap.String("document_id", c.documentID),
			zap.String("kind", string(models.AnswerServiceError)),
			zap.String("error", msg))
		return msg
	}
	c.logger.Warn("query response had neither answer nor error", zap.String("document_id", c.documentID))
	return FallbackAnswer
}

func (c *Controller) emit(m models.Message) {
	if c.onMessage != nil {
		c.onMessage(m)
	}
}
