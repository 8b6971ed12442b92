package stream

import (
	"context"
	"encoding/json"
	"time"
)

// ReadyState is the transport's own view of its connection.
type ReadyState int32

const (
	// ReadyConnecting means the transport is establishing or re-establishing
	// the connection.
	ReadyConnecting ReadyState = iota
	// ReadyOpen means events are flowing.
	ReadyOpen
	// ReadyClosed means the transport has given up and will not reconnect.
	ReadyClosed
)

func (r ReadyState) String() string {
	switch r {
	case ReadyConnecting:
		return "connecting"
	case ReadyOpen:
		return "open"
	case ReadyClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsFatal reports whether an error signalled in ready state rs ends the
// channel. A transport that is still connecting will retry by itself.
func IsFatal(rs ReadyState) bool {
	return rs == ReadyClosed
}

// Handler receives signals from one channel. A transport calls the methods
// from a single goroutine, in order.
type Handler interface {
	// Opened signals that the connection is established.
	Opened()
	// Message delivers one named event.
	Message(name string, data []byte, id string)
	// Failed signals a transport error. state is the ready state at the time
	// of the error.
	Failed(state ReadyState, err error)
}

// Channel is one open server-push connection.
type Channel interface {
	ReadyState() ReadyState
	// Close stops the channel without waiting. It is idempotent and may be
	// called from a Handler method.
	Close() error
	// Done is closed once the channel's reader goroutine has exited.
	Done() <-chan struct{}
}

// Transport opens channels. Open must not block on the network; the
// connection is established in the background and reported to h.
type Transport interface {
	Open(ctx context.Context, target string, h Handler) (Channel, error)
}

// TokenSource supplies the access token used to authenticate a channel. An
// empty token means no credential is stored.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// Event is one accepted named event.
type Event struct {
	Name       string
	Data       json.RawMessage
	ID         string
	ReceivedAt time.Time
}

// Decode unmarshals the event body into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
