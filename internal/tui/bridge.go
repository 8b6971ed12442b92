package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/gate"
	"github.com/sentimenta/dashclient/stream"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards gate and stream callbacks into a bubbletea program. The
// callbacks run on other goroutines; Send is safe to call from any of them.
type Bridge struct {
	sender Sender
}

var _ gate.View = (*Bridge)(nil)

func NewBridge(s Sender) *Bridge {
	return &Bridge{sender: s}
}

// Loading implements gate.View.
func (b *Bridge) Loading() {
	b.sender.Send(loadingMsg{})
}

// Render implements gate.View.
func (b *Bridge) Render(id api.Identity) {
	b.sender.Send(authorizedMsg{identity: id})
}

// Redirect is the gate's redirect action.
func (b *Bridge) Redirect() {
	b.sender.Send(redirectMsg{})
}

// StreamOptions returns the stream callbacks that feed the model.
func (b *Bridge) StreamOptions() []stream.Option {
	return []stream.Option{
		stream.OnProgress(func(ev stream.Event) { b.sender.Send(progressMsg{event: ev}) }),
		stream.OnComplete(func(ev stream.Event) { b.sender.Send(completeMsg{event: ev}) }),
		stream.OnError(func(err error) { b.sender.Send(errorMsg{err: err}) }),
		stream.OnStateChange(func(s stream.State) { b.sender.Send(stateMsg{state: s}) }),
	}
}
