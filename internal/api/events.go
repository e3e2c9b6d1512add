package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
)

// handleEvents streams progress snapshots as "progress" events, then one
// "result" event (or "error") once the analysis settles. A reader that
// connects late gets the latest snapshot first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer cannot flush")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var sent *model.AnalysisProgress
	for {
		v := sess.view()
		if v.latest != nil && v.latest != sent {
			if err := writeEvent(w, "progress", v.latest); err != nil {
				return
			}
			sent = v.latest
		}
		if v.finished {
			if v.err != nil {
				_ = writeEvent(w, "error", map[string]string{"message": v.err.Error()})
			} else {
				_ = writeEvent(w, "result", v.result)
			}
			flusher.Flush()
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case <-v.changed:
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("api: marshal event", zap.String("event", name), zap.Error(err))
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
