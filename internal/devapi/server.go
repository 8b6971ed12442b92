// Package devapi is an in-process stand-in for the Sentimenta backend. It
// serves the identity endpoint, the pipeline run endpoints and the run
// progress event stream, with tokens minted by the jwt package. It backs
// cmd/sentimenta-devapi and the end-to-end tests.
package devapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/jwt"
	"github.com/sentimenta/dashclient/middleware"
)

// BasePath is where the API is mounted.
const BasePath = "/api/v1"

const (
	defaultStreamInterval = 2 * time.Second
	defaultStepInterval   = 2 * time.Second
	heartbeatInterval     = 10 * time.Second
)

// Config configures a [Server].
type Config struct {
	// Tokens verifies bearer tokens and mints them in IssueFor.
	Tokens *jwt.Manager
	// StreamInterval is the delay between progress frames.
	StreamInterval time.Duration
	// StepInterval is how often running runs advance. Zero selects the
	// default; negative disables background advancement (see Advance).
	StepInterval time.Duration
	Logger       *zap.Logger
}

// Server is the development backend.
type Server struct {
	echo   *echo.Echo
	tokens *jwt.Manager
	logger *zap.Logger

	streamInterval time.Duration
	stepInterval   time.Duration

	mu    sync.RWMutex
	users map[string]api.Identity

	runs *runRegistry

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New builds a server and starts run advancement.
func New(cfg Config) (*Server, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("devapi: token manager required")
	}
	s := &Server{
		echo:           echo.New(),
		tokens:         cfg.Tokens,
		logger:         cfg.Logger,
		streamInterval: cfg.StreamInterval,
		stepInterval:   cfg.StepInterval,
		users:          make(map[string]api.Identity),
		runs:           newRunRegistry(),
		stop:           make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.streamInterval <= 0 {
		s.streamInterval = defaultStreamInterval
	}
	if s.stepInterval == 0 {
		s.stepInterval = defaultStepInterval
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.errorHandler
	s.routes()

	if s.stepInterval > 0 {
		s.wg.Add(1)
		go s.advanceLoop()
	}
	return s, nil
}

func (s *Server) routes() {
	v1 := s.echo.Group(BasePath, echo.WrapMiddleware(middleware.Guard(s.tokens)))

	v1.GET("/auth/me", s.handleMe)
	v1.GET("/pipeline/runs", s.handleListRuns)
	v1.GET("/pipeline/runs/:id", s.handleGetRun)
	v1.GET("/pipeline/runs/:id/status", s.handleRunStatus)
	v1.GET("/pipeline/runs/:id/stream", s.handleRunStream)
	v1.POST("/connections/:id/sync", s.handleSync)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close stops background run advancement.
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

// AddUser registers an identity that tokens can be issued for.
func (s *Server) AddUser(id api.Identity) {
	s.mu.Lock()
	s.users[id.ID] = id
	s.mu.Unlock()
}

// IssueFor mints a credential pair for a registered user.
func (s *Server) IssueFor(userID string) (access, refresh string, err error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return "", "", errors.New("devapi: unknown user")
	}
	return s.tokens.IssuePair(u.ID, u.Email)
}

// CreateRun starts a simulated pipeline run owned by userID.
func (s *Server) CreateRun(userID, connectionID string, plan RunPlan) api.PipelineRun {
	return s.runs.create(userID, connectionID, plan)
}

// Advance moves one run forward by one step.
func (s *Server) Advance(runID string) {
	s.runs.advance(runID)
}

func (s *Server) advanceLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.stepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runs.advanceAll()
		}
	}
}

func (s *Server) currentUser(c echo.Context) (api.Identity, error) {
	claims, ok := middleware.ClaimsFromContext(c.Request().Context())
	if !ok {
		return api.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "Could not validate credentials")
	}
	s.mu.RLock()
	u, ok := s.users[claims.Subject]
	s.mu.RUnlock()
	if !ok {
		return api.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "User not found")
	}
	return u, nil
}

func (s *Server) handleMe(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) handleListRuns(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.runs.list(u.ID))
}

func (s *Server) handleGetRun(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	row, ok := s.runs.get(u.ID, c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Pipeline run not found")
	}
	return c.JSON(http.StatusOK, row)
}

func (s *Server) handleRunStatus(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	row, ok := s.runs.get(u.ID, c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Pipeline run not found")
	}
	return c.JSON(http.StatusOK, row.Progress())
}

func (s *Server) handleSync(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	row := s.runs.create(u.ID, c.Param("id"), DefaultPlan)
	return c.JSON(http.StatusOK, api.SyncResponse{
		ConnectionID: c.Param("id"),
		TaskID:       row.ID,
		Message:      "Sync started",
	})
}

// errorHandler renders errors as {"detail": ...} like the real backend.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	detail := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	} else {
		s.logger.Error("devapi handler error", zap.Error(err))
	}
	if err := c.JSON(code, map[string]string{"detail": detail}); err != nil {
		s.logger.Debug("write error response", zap.Error(err))
	}
}
