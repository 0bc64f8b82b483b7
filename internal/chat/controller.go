// Package chat orchestrates the conversation: it owns the session
// identity, the append-only turn history, the metrics accumulator, and
// the backend status snapshot. Everything else receives state through
// it; there are no ambient globals.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"CampusChat/internal/api"
	"CampusChat/internal/cache"
	"CampusChat/internal/config"
	"CampusChat/internal/metrics"
	"CampusChat/internal/render"
	"CampusChat/internal/session"
	"CampusChat/internal/status"
	"CampusChat/internal/store"
)

// Greeting opens every conversation and survives history resets.
const Greeting = "Hi! Ask me anything about the university: admissions, programs, tuition, campus life. Type /help for commands."

var (
	// ErrEmptyInput rejects empty or whitespace-only submissions before
	// any history mutation or network call.
	ErrEmptyInput = errors.New("empty input")

	// ErrAlreadyStarted guards the once-only lifecycle of Start.
	ErrAlreadyStarted = errors.New("controller already started")

	// ErrNotStarted is returned by submissions before Start.
	ErrNotStarted = errors.New("controller not started")
)

// Dispatcher is the outbound interface the controller needs from the
// backend client.
type Dispatcher interface {
	Chat(ctx context.Context, question, sessionID string) (*api.ChatResponse, error)
	Search(ctx context.Context, query string, k int) (*api.SearchResponse, error)
	Health(ctx context.Context) (*api.HealthResponse, error)
}

// Stats is a point-in-time view of session performance.
type Stats struct {
	MeanLatencyMS int64
	HasLatency    bool
	Samples       int
	Messages      int
}

// Controller coordinates submissions, completions, and status polling.
// Submissions never block on the network: each one appends the user
// turn synchronously, dispatches in the background, and appends the
// outcome at completion time. Completion order therefore decides
// display order when responses race; that relaxation is deliberate.
type Controller struct {
	cfg     config.Config
	logger  *slog.Logger
	client  Dispatcher
	metrics *metrics.Accumulator
	poller  *status.Poller

	answers     *cache.Cache // nil disables answer reuse
	transcripts *store.Store // nil disables persistence

	mu      sync.Mutex
	started bool
	sess    *session.Session
	history []session.Turn
	epoch   uint64

	onTurn func(session.Turn)

	// completed fires after every async completion settles (applied or
	// dropped). Tests use it to synchronize; nil in production.
	completed func()
}

// New creates a controller around the given dispatcher. The accumulator
// and logger may be nil; defaults are used.
func New(cfg config.Config, client Dispatcher, acc *metrics.Accumulator, logger *slog.Logger) *Controller {
	if acc == nil {
		acc = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		metrics: acc,
	}
	c.poller = status.New(client.Health, cfg.PollInterval.Std(), logger)
	return c
}

// SetAnswerCache enables reuse of answers for repeated questions.
func (c *Controller) SetAnswerCache(ac *cache.Cache) {
	c.answers = ac
}

// SetTranscriptStore enables transcript persistence on Teardown.
func (c *Controller) SetTranscriptStore(s *store.Store) {
	c.transcripts = s
}

// OnTurn registers the display callback for assistant turns appended
// asynchronously. Must be set before Start.
func (c *Controller) OnTurn(fn func(session.Turn)) {
	c.onTurn = fn
}

// OnStatus registers the display callback for status updates. Must be
// set before Start.
func (c *Controller) OnStatus(fn func(status.Snapshot)) {
	c.poller.OnUpdate(fn)
}

// Start generates the session identity, appends the greeting, performs
// the initial status poll, and starts the polling timer. Calling it a
// second time is an error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.sess = session.New()
	c.history = append(c.history, session.Turn{
		Role:      session.RoleAssistant,
		Text:      Greeting,
		Timestamp: time.Now(),
	})
	id := c.sess.ID
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", id, "backend_url", c.cfg.BackendURL)

	c.poller.Refresh(ctx)
	c.poller.Start()
	return nil
}

// Teardown stops polling and persists the transcript when a store is
// configured. The session identity is discarded with the process.
func (c *Controller) Teardown() error {
	c.poller.Stop()

	if c.transcripts == nil {
		return nil
	}
	c.mu.Lock()
	sess := c.sess
	turns := make([]session.Turn, len(c.history))
	copy(turns, c.history)
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := c.transcripts.SaveSession(sess, turns); err != nil {
		c.logger.Error("failed to save transcript", "session_id", sess.ID, "error", err)
		return err
	}
	c.logger.Info("transcript saved", "session_id", sess.ID, "turns", len(turns))
	return nil
}

// SubmitMessage validates the input, appends the user turn
// synchronously, and dispatches the chat request in the background.
func (c *Controller) SubmitMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	epoch := c.epoch
	sessID := c.sess.ID
	c.history = append(c.history, session.Turn{
		Role:      session.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	})
	c.mu.Unlock()

	go c.completeChat(ctx, epoch, sessID, text)
	return nil
}

// SubmitSearch validates the query and dispatches a document search in
// the background. The ranked list arrives as one assistant turn.
func (c *Controller) SubmitSearch(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	epoch := c.epoch
	c.history = append(c.history, session.Turn{
		Role:      session.RoleUser,
		Text:      "Search: " + query,
		Timestamp: time.Now(),
	})
	c.mu.Unlock()

	go c.completeSearch(ctx, epoch, query)
	return nil
}

func (c *Controller) completeChat(ctx context.Context, epoch uint64, sessID, question string) {
	defer c.settled()

	var key string
	if c.answers != nil {
		key = cache.Key(question, sessID)
		if resp, ok := c.answers.Get(key); ok {
			c.logger.Debug("answer cache hit", "session_id", sessID)
			c.apply(ctx, epoch, render.Answer(resp), completion{countMessage: true})
			return
		}
	}

	start := time.Now()
	resp, err := c.client.Chat(ctx, question, sessID)
	if err != nil {
		de := api.AsDispatchError(err)
		c.logger.Warn("chat dispatch failed", "session_id", sessID, "kind", de.Kind.String(), "error", err)
		c.apply(ctx, epoch, render.Failure(err), completion{})
		return
	}
	elapsed := time.Since(start).Seconds() * 1000

	if c.answers != nil {
		c.answers.Set(key, resp)
	}
	c.apply(ctx, epoch, render.Answer(resp), completion{latencyMS: elapsed, recordLatency: true, countMessage: true})
}

func (c *Controller) completeSearch(ctx context.Context, epoch uint64, query string) {
	defer c.settled()

	start := time.Now()
	resp, err := c.client.Search(ctx, query, c.cfg.SearchLimit)
	if err != nil {
		de := api.AsDispatchError(err)
		c.logger.Warn("search dispatch failed", "query", query, "kind", de.Kind.String(), "error", err)
		c.apply(ctx, epoch, render.Failure(err), completion{})
		return
	}
	elapsed := time.Since(start).Seconds() * 1000

	c.apply(ctx, epoch, render.SearchResults(query, resp), completion{latencyMS: elapsed, recordLatency: true})
}

// completion describes what a settled dispatch contributes to metrics.
// Failed dispatches contribute nothing.
type completion struct {
	latencyMS     float64
	recordLatency bool
	countMessage  bool
}

// apply appends the turn at the current tail unless the history epoch
// moved on since dispatch, in which case the completion is discarded.
func (c *Controller) apply(ctx context.Context, epoch uint64, turn session.Turn, done completion) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Info("dropping stale completion", "dispatch_epoch", epoch)
		return
	}
	c.history = append(c.history, turn)
	c.mu.Unlock()

	if done.recordLatency {
		c.metrics.RecordLatency(ctx, done.latencyMS)
	}
	if done.countMessage {
		c.metrics.RecordMessage(ctx)
	}
	if c.onTurn != nil {
		c.onTurn(turn)
	}
}

func (c *Controller) settled() {
	if c.completed != nil {
		c.completed()
	}
}

// ClearHistory truncates the history back to the greeting and resets
// the metrics window. Session identity and the status snapshot are
// untouched. In-flight requests keep running; their completions are
// dropped by the epoch check.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	c.epoch++
	if len(c.history) > 1 {
		c.history = c.history[:1]
	}
	epoch := c.epoch
	c.mu.Unlock()

	c.metrics.Reset()
	c.logger.Info("history cleared", "epoch", epoch)
}

// RefreshStatus triggers a manual poll. Returns false when one is
// already outstanding.
func (c *Controller) RefreshStatus(ctx context.Context) bool {
	return c.poller.Refresh(ctx)
}

// Status returns the current backend status snapshot.
func (c *Controller) Status() status.Snapshot {
	return c.poller.Snapshot()
}

// Session returns the immutable session identity, or nil before Start.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	s := *c.sess
	return &s
}

// History returns a copy of the turn history in display order.
func (c *Controller) History() []session.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := make([]session.Turn, len(c.history))
	copy(turns, c.history)
	return turns
}

// Stats reports the session's performance counters.
func (c *Controller) Stats() Stats {
	mean, ok := c.metrics.MeanLatency()
	return Stats{
		MeanLatencyMS: mean,
		HasLatency:    ok,
		Samples:       c.metrics.SampleCount(),
		Messages:      c.metrics.MessageCount(),
	}
}
