package eventsource

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxFrameSize bounds a single line and the data of one frame.
const DefaultMaxFrameSize = 1 << 20

// ErrFrameTooLarge is reported when a line or the accumulated data of a frame
// exceeds the scanner's limit.
var ErrFrameTooLarge = errors.New("eventsource: frame exceeds size limit")

// Frame is one dispatched event.
type Frame struct {
	// Event is the event name; "message" when the stream did not name it.
	Event string
	Data  string
	// ID is the last event id seen on the stream at dispatch time.
	ID string
}

// Scanner reads frames from an event stream.
//
// Blocks are delimited by blank lines. "data:" lines are joined with "\n",
// "event:" names the frame, "id:" and "retry:" update the scanner's last
// event id and reconnection delay, lines starting with ":" are comments. A
// block without data is not dispatched, and neither is an incomplete block at
// end of stream.
type Scanner struct {
	lines   *bufio.Scanner
	limit   int
	current Frame
	lastID  string
	retry   time.Duration
	err     error
}

// NewScanner returns a scanner over r. lastID seeds the last event id, so ids
// carry across reconnects. maxFrame bounds a line and the data of one frame;
// zero or less selects [DefaultMaxFrameSize].
func NewScanner(r io.Reader, lastID string, maxFrame int) *Scanner {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, min(maxFrame, 64*1024)), maxFrame)
	return &Scanner{
		lines:  lines,
		limit:  maxFrame,
		lastID: lastID,
	}
}

// Next advances to the next frame. It returns false at end of stream or on a
// read error; call [Scanner.Err] to tell them apart.
func (s *Scanner) Next() bool {
	s.current = Frame{}

	var data strings.Builder
	eventType := ""
	hasData := false

	for {
		if !s.lines.Scan() {
			// A trailing block without its blank line is discarded.
			s.err = s.lines.Err()
			if errors.Is(s.err, bufio.ErrTooLong) {
				s.err = ErrFrameTooLarge
			}
			return false
		}
		line := s.lines.Text()

		if line == "" {
			if !hasData {
				eventType = ""
				continue
			}
			if eventType == "" {
				eventType = "message"
			}
			s.current = Frame{Event: eventType, Data: data.String(), ID: s.lastID}
			return true
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
			if data.Len() > s.limit {
				s.err = ErrFrameTooLarge
				return false
			}
		case "event":
			eventType = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		case "retry":
			if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
				s.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// Frame returns the frame read by the last successful Next.
func (s *Scanner) Frame() Frame {
	return s.current
}

// LastEventID returns the most recent id seen on the stream.
func (s *Scanner) LastEventID() string {
	return s.lastID
}

// Retry returns the reconnection delay announced by the server, or 0.
func (s *Scanner) Retry() time.Duration {
	return s.retry
}

// Err returns the error that ended scanning, or nil on a clean EOF.
func (s *Scanner) Err() error {
	return s.err
}
