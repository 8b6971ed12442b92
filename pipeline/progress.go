package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Run statuses reported by the backend.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPartial   = "partial"
)

// perCommentAnalysis is the backend's average analysis time for one comment.
const perCommentAnalysis = 1500 * time.Millisecond

// Progress is one snapshot of a pipeline run.
//
// Step, Current and Total are merged in from the run's structured notes when
// the backend has them; otherwise free-form notes land in Notes.
type Progress struct {
	Status           string `json:"status"`
	PostsFetched     int    `json:"posts_fetched"`
	CommentsFetched  int    `json:"comments_fetched"`
	CommentsAnalyzed int    `json:"comments_analyzed"`
	ErrorsCount      int    `json:"errors_count"`
	Notes            string `json:"notes,omitempty"`
	Step             string `json:"step,omitempty"`
	Current          int    `json:"current,omitempty"`
	Total            int    `json:"total,omitempty"`
}

// Decode parses a progress payload.
func Decode(data json.RawMessage) (Progress, error) {
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, fmt.Errorf("decode pipeline progress: %w", err)
	}
	return p, nil
}

// Terminal reports whether status ends a run.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusPartial:
		return true
	default:
		return false
	}
}

// Percent returns the completion percentage for p. Analysis is capped at 95
// until the run reports completion.
func Percent(p Progress, complete bool) int {
	switch {
	case complete:
		return 100
	case p.CommentsFetched > 0:
		pct := int(math.Round(float64(p.CommentsAnalyzed) / float64(max(p.CommentsFetched, 1)) * 100))
		return min(95, pct)
	case p.PostsFetched > 0:
		return 10
	default:
		return 0
	}
}

// Remaining estimates how long the rest of the analysis will take.
func Remaining(p Progress) time.Duration {
	left := p.CommentsFetched - p.CommentsAnalyzed
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * perCommentAnalysis
}

// StatusText renders the one-line status shown next to the progress bar.
func StatusText(p Progress, complete bool) string {
	switch {
	case complete && p.Status == StatusCompleted:
		return "Done!"
	case complete && p.Notes != "":
		return p.Notes
	case complete:
		return fmt.Sprintf("Run finished with status %q", p.Status)
	case p.CommentsFetched > 0:
		mins := int(math.Ceil(Remaining(p).Minutes()))
		return fmt.Sprintf("Pulling %d comments from %d posts. Time to finish: ~%d min.",
			p.CommentsFetched, p.PostsFetched, mins)
	case p.PostsFetched > 0:
		return fmt.Sprintf("Fetching comments... %d posts found.", p.PostsFetched)
	default:
		return "Reaching the network..."
	}
}
