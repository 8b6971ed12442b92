// Package streamtest provides an in-memory stream.Transport whose channels are
// driven by the test: open them, emit named events, report errors.
package streamtest

import (
	"context"
	"sync"

	"github.com/sentimenta/dashclient/stream"
)

// Transport records every Open and hands back scripted channels.
type Transport struct {
	mu       sync.Mutex
	channels []*Channel
	openErr  error
}

// NewTransport returns an empty transport.
func NewTransport() *Transport {
	return &Transport{}
}

// FailOpen makes subsequent Open calls return err.
func (t *Transport) FailOpen(err error) {
	t.mu.Lock()
	t.openErr = err
	t.mu.Unlock()
}

// Open implements stream.Transport.
func (t *Transport) Open(_ context.Context, target string, h stream.Handler) (stream.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	ch := &Channel{
		Target:  target,
		handler: h,
		state:   stream.ReadyConnecting,
		done:    make(chan struct{}),
	}
	t.channels = append(t.channels, ch)
	return ch, nil
}

// Opens returns how many channels were opened.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

// Last returns the most recently opened channel, or nil.
func (t *Transport) Last() *Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.channels) == 0 {
		return nil
	}
	return t.channels[len(t.channels)-1]
}

// Channel is a scripted stream.Channel. Signals are delivered synchronously on
// the calling goroutine, even after Close, so tests can check that the client
// ignores them.
type Channel struct {
	Target string

	handler   stream.Handler
	mu        sync.Mutex
	state     stream.ReadyState
	closes    int
	done      chan struct{}
	closeOnce sync.Once
}

// Open reports the connection as established.
func (c *Channel) Open() {
	c.setState(stream.ReadyOpen)
	c.handler.Opened()
}

// Emit delivers one named event.
func (c *Channel) Emit(name, data string) {
	c.handler.Message(name, []byte(data), "")
}

// Fail reports a transport error in ready state rs.
func (c *Channel) Fail(rs stream.ReadyState, err error) {
	c.setState(rs)
	c.handler.Failed(rs, err)
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

// ReadyState implements stream.Channel.
func (c *Channel) ReadyState() stream.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close implements stream.Channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closes++
	c.state = stream.ReadyClosed
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done implements stream.Channel.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) setState(rs stream.ReadyState) {
	c.mu.Lock()
	c.state = rs
	c.mu.Unlock()
}

// Tokens is a fixed stream.TokenSource.
type Tokens string

// AccessToken implements stream.TokenSource.
func (t Tokens) AccessToken(context.Context) string {
	return string(t)
}
