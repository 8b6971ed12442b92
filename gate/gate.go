package gate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/session"
)

// State is the gate's position in its check.
type State int32

const (
	Checking State = iota
	Authorized
	Redirecting
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Authorized:
		return "authorized"
	case Redirecting:
		return "redirecting"
	default:
		return "unknown"
	}
}

// RedirectReason explains why a gate redirected.
type RedirectReason int

const (
	NoRedirect RedirectReason = iota
	NoCredential
	VerificationFailed
)

func (r RedirectReason) String() string {
	switch r {
	case NoCredential:
		return "no_credential"
	case VerificationFailed:
		return "verification_failed"
	default:
		return ""
	}
}

// View is the protected view a gate wraps.
type View interface {
	// Loading shows the placeholder while the check runs or after a redirect.
	Loading()
	// Render shows protected content for id.
	Render(id api.Identity)
}

// Store is the credential storage the gate reads and clears.
type Store interface {
	Get(ctx context.Context) (session.Credential, bool)
	Clear(ctx context.Context) error
}

// Verifier resolves an access token to an identity.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (api.Identity, error)
}

// Observer receives the outcome of every check.
type Observer interface {
	GateAuthorized(ctx context.Context, id api.Identity, elapsed time.Duration)
	GateRedirected(ctx context.Context, reason RedirectReason, elapsed time.Duration)
}

// Outcome is the result of a mount.
type Outcome struct {
	State    State
	Identity api.Identity
	Reason   RedirectReason
}

// Gate runs the session check for one view activation.
type Gate struct {
	store    Store
	verifier Verifier
	redirect func()
	logger   *zap.Logger
	observer Observer

	once sync.Once

	mu       sync.RWMutex
	state    State
	identity api.Identity
	reason   RedirectReason
}

// Option configures a [Gate].
type Option func(*Gate)

// WithLogger sets the logger used for verification failures.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithObserver registers an observer for check outcomes.
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// New returns a gate in state [Checking]. redirect is called at most once,
// when the gate enters [Redirecting].
func New(store Store, verifier Verifier, redirect func(), opts ...Option) *Gate {
	g := &Gate{
		store:    store,
		verifier: verifier,
		redirect: redirect,
		logger:   zap.NewNop(),
		state:    Checking,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Identity returns the verified identity once the gate is [Authorized].
func (g *Gate) Identity() (api.Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != Authorized {
		return api.Identity{}, false
	}
	return g.identity, true
}

// Mount activates the gate for view. The first call runs the check and blocks
// until it resolves; later calls re-render from the recorded state. view may
// be nil for callers that only need the [Outcome].
func (g *Gate) Mount(ctx context.Context, view View) Outcome {
	first := false
	g.once.Do(func() {
		first = true
		if view != nil {
			view.Loading()
		}
		g.check(ctx)
	})

	out := g.outcome()
	if view == nil {
		return out
	}
	switch out.State {
	case Authorized:
		view.Render(out.Identity)
	case Redirecting:
		if !first {
			view.Loading()
		}
	}
	return out
}

func (g *Gate) outcome() Outcome {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Outcome{State: g.state, Identity: g.identity, Reason: g.reason}
}

func (g *Gate) check(ctx context.Context) {
	start := time.Now()

	var cred session.Credential
	ok := false
	if g.store != nil {
		cred, ok = g.store.Get(ctx)
	}
	if !ok {
		g.toRedirect(ctx, NoCredential, start)
		return
	}

	if g.verifier == nil {
		g.logger.Debug("session check without verifier")
		g.clear(ctx)
		g.toRedirect(ctx, VerificationFailed, start)
		return
	}

	id, err := g.verifier.Verify(ctx, cred.AccessToken)
	if err != nil {
		g.logger.Debug("session verification failed", zap.Error(err))
		g.clear(ctx)
		g.toRedirect(ctx, VerificationFailed, start)
		return
	}

	g.mu.Lock()
	g.state = Authorized
	g.identity = id
	g.mu.Unlock()

	if g.observer != nil {
		g.observer.GateAuthorized(ctx, id, time.Since(start))
	}
}

func (g *Gate) clear(ctx context.Context) {
	// The credential is dropped even when the mount context is done.
	if err := g.store.Clear(context.WithoutCancel(ctx)); err != nil {
		g.logger.Debug("clear rejected credential", zap.Error(err))
	}
}

func (g *Gate) toRedirect(ctx context.Context, reason RedirectReason, start time.Time) {
	g.mu.Lock()
	g.state = Redirecting
	g.reason = reason
	g.mu.Unlock()

	if g.observer != nil {
		g.observer.GateRedirected(ctx, reason, time.Since(start))
	}
	if g.redirect != nil {
		g.redirect()
	}
}
