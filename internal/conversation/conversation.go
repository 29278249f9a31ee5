// Package conversation owns the copilot transcript and the asynchronous
// exchanges with the analysis service that extend it.
package conversation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/unlabel/internal/backend"
	"github.com/vbonduro/unlabel/internal/capture"
	"github.com/vbonduro/unlabel/internal/domain"
)

const (
	WelcomeText  = "I'm your Unlabel Co-pilot. Show me a label or ask about ingredients, and I'll help you understand the trade-offs."
	TextApology  = "I'm having trouble connecting to my reasoning engine right now. Please try again."
	ImageApology = "I couldn't analyze that image. Please try again."
	ImageCaption = "Analyze this label"
)

var (
	ErrEmptyText = errors.New("message text is empty")
	ErrClosed    = errors.New("conversation is closed")
)

// analyzer is the subset of backend.Client that Controller requires.
type analyzer interface {
	Decide(ctx context.Context, req backend.DecisionRequest) (*domain.Decision, error)
	AnalyzeImage(ctx context.Context, r io.Reader, filename, mimeType string) (*domain.LegacyAnalysis, error)
}

type EventKind string

const (
	EventMessage  EventKind = "message"
	EventAwaiting EventKind = "awaiting"
)

// Event is delivered to subscribers whenever the transcript grows or the
// awaiting indicator flips.
type Event struct {
	Kind     EventKind       `json:"type"`
	Message  *domain.Message `json:"message,omitempty"`
	Awaiting bool            `json:"awaiting"`
}

const subscriberBuffer = 64

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithUserIntent sets the user_intent sent with every text submission.
func WithUserIntent(intent string) Option {
	return func(c *Controller) { c.intent = intent }
}

// Controller is safe for concurrent use. Replies are appended in the order
// their requests complete; user messages are appended in submission order.
type Controller struct {
	api    analyzer
	logger *slog.Logger
	now    func() time.Time
	intent string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	messages []domain.Message
	seq      uint64
	pending  int
	subs     map[int]chan Event
	nextSub  int
	closed   bool
}

// New returns a controller whose transcript holds only the welcome message.
func New(api analyzer, logger *slog.Logger, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:    api,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mu.Lock()
	c.appendLocked(domain.Message{Role: domain.RoleSystem, Kind: domain.KindText, Text: WelcomeText})
	c.mu.Unlock()
	return c
}

// Transcript returns a copy of the messages in order.
func (c *Controller) Transcript() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Awaiting reports whether any submission is still outstanding.
func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Subscribe returns a channel of transcript events and a func that ends the
// subscription. Events are dropped for subscribers that fall behind.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// SubmitText appends the user's text and asks the decision engine about it
// in the background. It returns the appended message.
func (c *Controller) SubmitText(ctx context.Context, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, ErrEmptyText
	}

	msg, err := c.begin(domain.Message{Role: domain.RoleUser, Kind: domain.KindText, Text: text})
	if err != nil {
		return domain.Message{}, err
	}

	req := backend.DecisionRequest{Text: text, UserIntent: c.intent}
	c.run(ctx, "decision", func(ctx context.Context) domain.Message {
		decision, err := c.api.Decide(ctx, req)
		if err != nil {
			c.logger.Warn("decision request failed", "message_id", msg.ID, "error", err)
			return domain.Message{Role: domain.RoleSystem, Kind: domain.KindText, Text: TextApology}
		}
		c.logger.Info("decision received", "message_id", msg.ID, "verdict", string(decision.Verdict))
		return domain.Message{Role: domain.RoleSystem, Kind: domain.KindDecision, Decision: decision}
	})
	return msg, nil
}

// SubmitCapture appends the captured image (or document) and sends it to the
// image analysis endpoint in the background.
func (c *Controller) SubmitCapture(ctx context.Context, res capture.Result) (domain.Message, error) {
	msg, err := c.begin(domain.Message{
		Role:         domain.RoleUser,
		Kind:         domain.KindImage,
		Text:         ImageCaption,
		ImagePreview: res.Preview,
		Attachment:   res.File.Name,
	})
	if err != nil {
		return domain.Message{}, err
	}

	file := res.File
	c.run(ctx, "image", func(ctx context.Context) domain.Message {
		a, err := c.api.AnalyzeImage(ctx, bytes.NewReader(file.Data), file.Name, file.MediaType)
		if err != nil {
			c.logger.Warn("image analysis failed", "message_id", msg.ID, "file", file.Name, "error", err)
			return domain.Message{Role: domain.RoleSystem, Kind: domain.KindText, Text: ImageApology}
		}
		c.logger.Info("image analysis received", "message_id", msg.ID, "file", file.Name)
		return domain.Message{Role: domain.RoleSystem, Kind: domain.KindLegacyAnalysis, Analysis: a}
	})
	return msg, nil
}

// Wait blocks until every outstanding submission has resolved.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels outstanding requests, discards their late results and ends
// all subscriptions. Closing twice is a no-op.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	return nil
}

// begin appends the user's message and raises the awaiting indicator in one
// step, so observers never see the message without the indicator.
func (c *Controller) begin(msg domain.Message) (domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.Message{}, ErrClosed
	}
	msg = c.appendLocked(msg)
	c.pending++
	if c.pending == 1 {
		c.publishLocked(Event{Kind: EventAwaiting, Awaiting: true})
	}
	c.wg.Add(1)
	return msg, nil
}

// run performs fn on a context detached from the caller's cancellation but
// bound to the controller's lifetime, then appends its reply.
func (c *Controller) run(ctx context.Context, op string, fn func(context.Context) domain.Message) {
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.ctx, cancel)

	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()
		defer c.finish()

		reply := fn(reqCtx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			c.logger.Debug("discarding reply after close", "op", op)
			return
		}
		c.appendLocked(reply)
	}()
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if c.pending == 0 && !c.closed {
		c.publishLocked(Event{Kind: EventAwaiting, Awaiting: false})
	}
}

func (c *Controller) appendLocked(msg domain.Message) domain.Message {
	c.seq++
	msg.Seq = c.seq
	msg.ID = newID()
	msg.CreatedAt = c.now()
	c.messages = append(c.messages, msg)
	c.publishLocked(Event{Kind: EventMessage, Message: &msg, Awaiting: c.pending > 0})
	return msg
}

func (c *Controller) publishLocked(ev Event) {
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("subscriber lagging, event dropped", "subscriber", id, "event", string(ev.Kind))
		}
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
