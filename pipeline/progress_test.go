package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPercentFollowsDashboardRules(t *testing.T) {
	cases := []struct {
		name     string
		p        Progress
		complete bool
		want     int
	}{
		{"nothing yet", Progress{}, false, 0},
		{"posts only", Progress{PostsFetched: 3}, false, 10},
		{"half analyzed", Progress{PostsFetched: 3, CommentsFetched: 10, CommentsAnalyzed: 5}, false, 50},
		{"rounded", Progress{CommentsFetched: 3, CommentsAnalyzed: 2}, false, 67},
		{"capped before complete", Progress{CommentsFetched: 10, CommentsAnalyzed: 10}, false, 95},
		{"complete", Progress{CommentsFetched: 10, CommentsAnalyzed: 1}, true, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Percent(tc.p, tc.complete); got != tc.want {
				t.Fatalf("Percent = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDecodeMergesStructuredNotes(t *testing.T) {
	p, err := Decode([]byte(`{"status":"running","posts_fetched":4,"comments_fetched":20,"comments_analyzed":8,"errors_count":0,"step":"analyze","current":2,"total":4}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != StatusRunning || p.CommentsFetched != 20 || p.Step != "analyze" || p.Total != 4 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if _, err := Decode([]byte(`{`)); err == nil {
		t.Fatal("expected malformed payload error")
	}
}

func TestStatusTextAndRemaining(t *testing.T) {
	p := Progress{PostsFetched: 2, CommentsFetched: 100, CommentsAnalyzed: 20}
	if got := Remaining(p); got != 120*time.Second {
		t.Fatalf("Remaining = %v", got)
	}
	if got := StatusText(p, false); !strings.Contains(got, "~2 min") {
		t.Fatalf("unexpected status text %q", got)
	}
	if got := StatusText(Progress{Status: StatusFailed, Notes: "quota exceeded"}, true); got != "quota exceeded" {
		t.Fatalf("unexpected failure text %q", got)
	}
	if !Terminal(StatusPartial) || Terminal(StatusRunning) {
		t.Fatal("unexpected terminal classification")
	}
}

func TestPollStopsAtTerminalStatus(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (Progress, error) {
		n := calls.Add(1)
		switch n {
		case 1:
			return Progress{}, errors.New("temporary")
		case 2:
			return Progress{Status: StatusRunning, PostsFetched: 1}, nil
		default:
			return Progress{Status: StatusCompleted, PostsFetched: 1}, nil
		}
	}

	var updates int
	p, err := Poll(context.Background(), fetch, time.Millisecond, func(Progress, error) { updates++ })
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if p.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", p.Status)
	}
	if updates != 3 {
		t.Fatalf("expected 3 updates, got %d", updates)
	}
}

func TestPollHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	fetch := func(context.Context) (Progress, error) {
		return Progress{Status: StatusRunning}, nil
	}
	_, err := Poll(ctx, fetch, 5*time.Millisecond, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
