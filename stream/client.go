package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Named events understood by the client.
const (
	EventProgress = "progress"
	EventComplete = "complete"
)

// TokenParam is the query parameter carrying the access token.
const TokenParam = "token"

// State is the client's connection state.
type State int32

const (
	Idle State = iota
	Connecting
	Connected
	Error
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Observer receives lifecycle signals for metrics and audit.
type Observer interface {
	StreamStarted(subID, target string)
	StreamConnected(subID string)
	StreamProgress(subID string)
	StreamCompleted(subID string)
	StreamFrameDropped(subID, event string)
	StreamTransientError(subID string, err error)
	StreamFailed(subID string, err error)
	StreamStopped(subID string)
}

// Snapshot is a consistent view of the client.
type Snapshot struct {
	State          State
	Latest         *Event
	SubscriptionID string
}

// Client manages the lifecycle of one event channel.
type Client struct {
	target    string
	tokens    TokenSource
	transport Transport
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time

	onProgress    func(Event)
	onComplete    func(Event)
	onError       func(error)
	onStateChange func(State)
	onClose       []func()

	mu       sync.Mutex
	state    State
	latest   *Event
	sub      *subscription
	channels []Channel
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a [Client].
type Option func(*Client)

// OnProgress registers the callback for accepted progress events.
func OnProgress(fn func(Event)) Option {
	return func(c *Client) { c.onProgress = fn }
}

// OnComplete registers the callback for the accepted complete event.
func OnComplete(fn func(Event)) Option {
	return func(c *Client) { c.onComplete = fn }
}

// OnError registers the callback for fatal channel errors.
func OnError(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

// OnStateChange registers a callback invoked after every state transition.
func OnStateChange(fn func(State)) Option {
	return func(c *Client) { c.onStateChange = fn }
}

// OnClose registers a function run once after the first Close returns from
// its cleanup.
func OnClose(fn func()) Option {
	return func(c *Client) {
		if fn != nil {
			c.onClose = append(c.onClose, fn)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New returns an idle client for target. An empty target yields a client that
// never performs I/O. tokens may be nil, in which case the channel is opened
// without a token.
func New(target string, tokens TokenSource, transport Transport, opts ...Option) *Client {
	c := &Client{
		target:    target,
		tokens:    tokens,
		transport: transport,
		logger:    zap.NewNop(),
		now:       time.Now,
		state:     Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the channel target without credentials.
func (c *Client) Target() string {
	return c.target
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the state and latest payload.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{State: c.state}
	if c.latest != nil {
		ev := *c.latest
		snap.Latest = &ev
	}
	if c.sub != nil {
		snap.SubscriptionID = c.sub.id
	}
	return snap
}

// Start opens the channel. It is a no-op when the target is empty or a
// channel is already connecting or connected.
func (c *Client) Start(ctx context.Context) {
	if c.target == "" || c.transport == nil {
		return
	}

	c.mu.Lock()
	if c.closed || c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return
	}
	if prev := c.sub; prev != nil && prev.ch != nil {
		// Error and Complete close their channel already; Close is idempotent.
		_ = prev.ch.Close()
	}
	s := &subscription{id: uuid.NewString(), client: c}
	c.sub = s
	c.state = Connecting
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.notifyState(Connecting)
	if c.observer != nil {
		c.observer.StreamStarted(s.id, c.target)
	}

	token := ""
	if c.tokens != nil {
		token = c.tokens.AccessToken(ctx)
	}

	target, err := withToken(c.target, token)
	var ch Channel
	if err == nil {
		ch, err = c.transport.Open(ctx, target, s)
	}
	if err != nil {
		c.openFailed(s, err)
		return
	}

	c.mu.Lock()
	c.channels = append(pruneDone(c.channels), ch)
	s.ch = ch
	live := c.sub == s && !s.finished
	c.mu.Unlock()

	if !live {
		// Stopped, completed or failed before Open returned.
		_ = ch.Close()
	}
}

func (c *Client) openFailed(s *subscription, err error) {
	c.mu.Lock()
	if c.sub != s || s.finished {
		c.mu.Unlock()
		return
	}
	s.finished = true
	c.state = Error
	c.mu.Unlock()

	c.logger.Debug("stream open failed", zap.String("subscription", s.id), zap.Error(err))
	if c.observer != nil {
		c.observer.StreamFailed(s.id, err)
	}
	if c.onError != nil {
		c.onError(err)
	}
	c.notifyState(Error)
}

// Stop closes the channel if one is open and returns the client to Idle. It
// is safe to call in any state and more than once. The latest payload is
// kept.
func (c *Client) Stop() {
	c.mu.Lock()
	s := c.sub
	c.sub = nil
	var ch Channel
	if s != nil {
		ch = s.ch
		s.finished = true
	}
	prev := c.state
	c.state = Idle
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if prev == Idle {
		return
	}
	// Complete and Error already reported the end of the subscription.
	if c.observer != nil && s != nil && (prev == Connecting || prev == Connected) {
		c.observer.StreamStopped(s.id)
	}
	c.notifyState(Idle)
}

// Close stops the client and waits until no reader goroutine remains. Later
// calls to Start are no-ops. Close must not be called from a callback.
func (c *Client) Close() error {
	c.mu.Lock()
	first := !c.closed
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.inflight.Wait()

	c.mu.Lock()
	channels := c.channels
	c.channels = nil
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
		<-ch.Done()
	}
	if first {
		for _, fn := range c.onClose {
			fn()
		}
	}
	return nil
}

func (c *Client) notifyState(s State) {
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

func pruneDone(channels []Channel) []Channel {
	kept := channels[:0]
	for _, ch := range channels {
		select {
		case <-ch.Done():
		default:
			kept = append(kept, ch)
		}
	}
	return kept
}

func withToken(target, token string) (string, error) {
	if token == "" {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("stream: parse target: %w", err)
	}
	q := u.Query()
	q.Set(TokenParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// subscription is the Handler for one Start. Signals from a subscription that
// is no longer current are ignored.
type subscription struct {
	id     string
	client *Client

	// guarded by client.mu
	ch       Channel
	finished bool
}

func (s *subscription) live() bool {
	c := s.client
	return c.sub == s && !s.finished && (c.state == Connecting || c.state == Connected)
}

func (s *subscription) Opened() {
	c := s.client
	c.mu.Lock()
	if !s.live() || c.state != Connecting {
		c.mu.Unlock()
		return
	}
	c.state = Connected
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.StreamConnected(s.id)
	}
	c.notifyState(Connected)
}

func (s *subscription) Message(name string, data []byte, id string) {
	if name != EventProgress && name != EventComplete {
		return
	}
	c := s.client

	if !json.Valid(data) {
		c.mu.Lock()
		live := s.live()
		c.mu.Unlock()
		if live {
			c.logger.Debug("dropping malformed frame",
				zap.String("subscription", s.id),
				zap.String("event", name),
				zap.Int("bytes", len(data)))
			if c.observer != nil {
				c.observer.StreamFrameDropped(s.id, name)
			}
		}
		return
	}

	ev := Event{
		Name:       name,
		Data:       json.RawMessage(append([]byte(nil), data...)),
		ID:         id,
		ReceivedAt: c.now(),
	}

	c.mu.Lock()
	if !s.live() {
		c.mu.Unlock()
		return
	}
	latest := ev
	c.latest = &latest

	if name == EventProgress {
		// A message proves the channel is open even if the open signal was missed.
		connected := c.state == Connecting
		if connected {
			c.state = Connected
		}
		c.mu.Unlock()

		if connected {
			c.notifyState(Connected)
		}
		if c.observer != nil {
			c.observer.StreamProgress(s.id)
		}
		if c.onProgress != nil {
			c.onProgress(ev)
		}
		return
	}

	s.finished = true
	c.state = Complete
	ch := s.ch
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if c.observer != nil {
		c.observer.StreamCompleted(s.id)
	}
	if c.onComplete != nil {
		c.onComplete(ev)
	}
	c.notifyState(Complete)
}

func (s *subscription) Failed(state ReadyState, err error) {
	c := s.client
	c.mu.Lock()
	if !s.live() {
		c.mu.Unlock()
		return
	}

	if !IsFatal(state) {
		c.mu.Unlock()
		c.logger.Debug("stream reconnecting", zap.String("subscription", s.id), zap.Error(err))
		if c.observer != nil {
			c.observer.StreamTransientError(s.id, err)
		}
		return
	}

	s.finished = true
	c.state = Error
	ch := s.ch
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	c.logger.Debug("stream failed", zap.String("subscription", s.id), zap.Error(err))
	if c.observer != nil {
		c.observer.StreamFailed(s.id, err)
	}
	if c.onError != nil {
		c.onError(err)
	}
	c.notifyState(Error)
}
