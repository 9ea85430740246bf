package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentgate-dev/agentgate/pkg/gateway/agui"
	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
	"github.com/agentgate-dev/agentgate/pkg/gateway/events"
	"github.com/agentgate-dev/agentgate/pkg/gateway/query"
)

// handleQueryStream runs one turn in streaming mode and writes the
// transcoded protocol events as server-sent events. A failure mid-stream
// surfaces as a run-error lifecycle event; everything already streamed stays
// visible.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidRequest, "invalid request body", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, apperrors.New(apperrors.ErrCodeUnsupported, "streaming unsupported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	runID := uuid.NewString()
	threadID := req.SessionID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	transcoder := agui.NewTranscoder(threadID, runID)

	write := func(ev agui.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	write(transcoder.RunStarted())

	out := make(chan events.Event, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.orchestrator.Stream(r.Context(), req, out)
		close(out)
	}()

	for domain := range out {
		for _, ev := range transcoder.Transcode(domain) {
			write(ev)
		}
	}

	if err := <-errCh; err != nil {
		s.log.Error(err, "streaming query failed", "run", runID)
		for _, ev := range transcoder.Transcode(events.Failure(err)) {
			write(ev)
		}
	}
}
