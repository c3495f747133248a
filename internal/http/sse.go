package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleEvents streams a project's progress as server-sent events. The
// stream ends after the complete event. Projects finished by an earlier
// process have no live stream, so they get a single complete event built
// from the stored status.
func (s *Server) handleEvents(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	st, err := s.registry.Status(ctx, id)
	if err != nil {
		return s.apiError(c, err)
	}

	w := c.Response()
	if _, live := s.registry.Get(id); !live && st.Status.IsTerminal() {
		writeStreamHeaders(w)
		return writeEvent(w, progress.Event{
			Type:      progress.EventComplete,
			ProjectID: id,
			Timestamp: st.UpdatedAt,
			Status:    string(st.Status),
			Completed: st.Completed,
			Error:     st.Error,
		})
	}

	events, cancel, err := s.events.Subscribe(ctx, id)
	if err != nil {
		return s.apiError(c, err)
	}
	defer cancel()
	writeStreamHeaders(w)

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, e); err != nil {
				s.logger.Debug(ctx, "event stream write failed", zap.Error(err))
				return nil
			}
			if e.Type.IsTerminal() {
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func writeStreamHeaders(w *echo.Response) {
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()
}

func writeEvent(w *echo.Response, e progress.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
