package devapi

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/pipeline"
)

// RunPlan scripts a simulated pipeline run.
type RunPlan struct {
	Posts    int
	Comments int
	// AnalyzePerStep is how many comments are analyzed per step.
	AnalyzePerStep int
	// Errors is reported in errors_count; a run with errors ends partial.
	Errors int
	// FailAfter fails the run after that many steps when positive.
	FailAfter int
	// FailNote is stored as the run notes on failure.
	FailNote string
}

// DefaultPlan is a small run that completes in a handful of steps.
var DefaultPlan = RunPlan{Posts: 3, Comments: 12, AnalyzePerStep: 4}

type run struct {
	row   api.PipelineRun
	owner string
	plan  RunPlan
	steps int
	notes map[string]any
}

type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*run
	now  func() time.Time
}

func newRunRegistry() *runRegistry {
	return &runRegistry{
		runs: make(map[string]*run),
		now:  time.Now,
	}
}

func (r *runRegistry) create(owner, connectionID string, plan RunPlan) api.PipelineRun {
	if plan.AnalyzePerStep <= 0 {
		plan.AnalyzePerStep = 1
	}
	id := uuid.NewString()
	row := api.PipelineRun{
		ID:        id,
		RunType:   "sync",
		Status:    pipeline.StatusRunning,
		StartedAt: r.now().UTC(),
	}
	if connectionID != "" {
		conn := connectionID
		row.ConnectionID = &conn
	}

	r.mu.Lock()
	r.runs[id] = &run{row: row, owner: owner, plan: plan}
	r.mu.Unlock()
	return row
}

// get returns the run row if it belongs to owner.
func (r *runRegistry) get(owner, id string) (api.PipelineRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runs[id]
	if !ok || rn.owner != owner {
		return api.PipelineRun{}, false
	}
	return rn.row, true
}

func (r *runRegistry) list(owner string) []api.PipelineRun {
	r.mu.RLock()
	out := make([]api.PipelineRun, 0, len(r.runs))
	for _, rn := range r.runs {
		if rn.owner == owner {
			out = append(out, rn.row)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}

// advanceAll moves every running run forward by one step.
func (r *runRegistry) advanceAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rn := range r.runs {
		r.advanceLocked(rn)
	}
}

// advance moves one run forward by one step.
func (r *runRegistry) advance(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rn, ok := r.runs[id]; ok {
		r.advanceLocked(rn)
	}
}

func (r *runRegistry) advanceLocked(rn *run) {
	if pipeline.Terminal(rn.row.Status) {
		return
	}
	rn.steps++
	row := &rn.row
	plan := rn.plan

	if plan.FailAfter > 0 && rn.steps >= plan.FailAfter {
		r.finishLocked(rn, pipeline.StatusFailed)
		note := plan.FailNote
		if note == "" {
			note = "pipeline failed"
		}
		row.Notes = &note
		return
	}

	switch {
	case row.PostsFetched < plan.Posts:
		row.PostsFetched = plan.Posts
		rn.notes = map[string]any{"step": "fetch_posts", "current": plan.Posts, "total": plan.Posts}
	case row.CommentsFetched < plan.Comments:
		row.CommentsFetched = plan.Comments
		rn.notes = map[string]any{"step": "fetch_comments", "current": plan.Comments, "total": plan.Comments}
	case row.CommentsAnalyzed < plan.Comments:
		row.CommentsAnalyzed = min(plan.Comments, row.CommentsAnalyzed+plan.AnalyzePerStep)
		row.LLMCalls++
		rn.notes = map[string]any{"step": "analyze", "current": row.CommentsAnalyzed, "total": plan.Comments}
	}

	if row.PostsFetched >= plan.Posts && row.CommentsFetched >= plan.Comments && row.CommentsAnalyzed >= plan.Comments {
		row.ErrorsCount = plan.Errors
		status := pipeline.StatusCompleted
		if plan.Errors > 0 {
			status = pipeline.StatusPartial
		}
		r.finishLocked(rn, status)
		rn.notes = map[string]any{"step": "done", "current": plan.Posts, "total": plan.Posts}
	}

	if raw, err := json.Marshal(rn.notes); err == nil {
		s := string(raw)
		row.Notes = &s
	}
}

func (r *runRegistry) finishLocked(rn *run, status string) {
	now := r.now().UTC()
	rn.row.Status = status
	rn.row.EndedAt = &now
}

// progressPayload renders the stream body for a run, merging structured notes
// into the counters.
func progressPayload(row api.PipelineRun) map[string]any {
	payload := map[string]any{
		"status":            row.Status,
		"posts_fetched":     row.PostsFetched,
		"comments_fetched":  row.CommentsFetched,
		"comments_analyzed": row.CommentsAnalyzed,
		"errors_count":      row.ErrorsCount,
	}
	if row.Notes == nil {
		return payload
	}
	var notes map[string]any
	if err := json.Unmarshal([]byte(*row.Notes), &notes); err == nil {
		for k, v := range notes {
			payload[k] = v
		}
	} else {
		payload["notes"] = *row.Notes
	}
	return payload
}
