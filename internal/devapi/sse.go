package devapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/pipeline"
)

// handleRunStream emits a progress frame every stream interval and a complete
// frame once the run reaches a terminal status.
func (s *Server) handleRunStream(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	runID := c.Param("id")

	res := c.Response()
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "Streaming not supported")
	}

	res.Header().Set("Content-Type", "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	flusher.Flush()

	seq := 0
	if last, err := strconv.Atoi(c.Request().Header.Get("Last-Event-ID")); err == nil {
		seq = last
	}

	write := func(event string, body any) error {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		seq++
		if _, err := fmt.Fprintf(res, "id: %d\nevent: %s\ndata: %s\n\n", seq, event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		row, found := s.runs.get(u.ID, runID)
		if !found {
			_ = write("error", map[string]string{"message": "Run not found"})
			return nil
		}

		payload := progressPayload(row)
		if err := write("progress", payload); err != nil {
			s.logger.Debug("stream client gone", zap.String("run", runID), zap.Error(err))
			return nil
		}
		if pipeline.Terminal(row.Status) {
			if err := write("complete", payload); err != nil {
				s.logger.Debug("stream client gone", zap.String("run", runID), zap.Error(err))
			}
			return nil
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-heartbeat.C:
				if _, err := res.Write([]byte(": heartbeat\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				break wait
			}
		}
	}
}
