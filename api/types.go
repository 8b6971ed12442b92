package api

import (
	"encoding/json"
	"time"

	"github.com/sentimenta/dashclient/pipeline"
)

// Identity is the authenticated user as reported by the identity endpoint.
type Identity struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Plan      string  `json:"plan"`
}

// DisplayName returns the user's name, falling back to the email.
func (i Identity) DisplayName() string {
	if i.Name != nil && *i.Name != "" {
		return *i.Name
	}
	return i.Email
}

// PipelineRun is one entry of the pipeline run history.
type PipelineRun struct {
	ID                 string     `json:"id"`
	ConnectionID       *string    `json:"connection_id"`
	Platform           *string    `json:"platform,omitempty"`
	ConnectionUsername *string    `json:"connection_username,omitempty"`
	RunType            string     `json:"run_type"`
	Status             string     `json:"status"`
	PostsFetched       int        `json:"posts_fetched"`
	CommentsFetched    int        `json:"comments_fetched"`
	CommentsAnalyzed   int        `json:"comments_analyzed"`
	LLMCalls           int        `json:"llm_calls"`
	ErrorsCount        int        `json:"errors_count"`
	TotalCostUSD       float64    `json:"total_cost_usd"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at"`
	Notes              *string    `json:"notes"`
}

// Progress converts the run row into a progress snapshot.
func (r PipelineRun) Progress() pipeline.Progress {
	p := pipeline.Progress{
		Status:           r.Status,
		PostsFetched:     r.PostsFetched,
		CommentsFetched:  r.CommentsFetched,
		CommentsAnalyzed: r.CommentsAnalyzed,
		ErrorsCount:      r.ErrorsCount,
	}
	if r.Notes != nil {
		p.Notes = *r.Notes
	}
	return p
}

// SyncResponse is returned when a connection sync is started.
type SyncResponse struct {
	ConnectionID string `json:"connection_id"`
	TaskID       string `json:"task_id"`
	Message      string `json:"message"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Code   string          `json:"code"`
}
