// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tamzrod/rfid-monitor/internal/anchor"
	"github.com/tamzrod/rfid-monitor/internal/protocol"
	"github.com/tamzrod/rfid-monitor/internal/status"
	"github.com/tamzrod/rfid-monitor/internal/tags"
)

type lineInfo struct {
	ID        string          `json:"id"`
	Connected bool            `json:"connected"`
	PollCount uint64          `json:"poll_count"`
	Health    string          `json:"health"`
	Status    status.Snapshot `json:"status"`
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	out := make([]lineInfo, 0, len(s.lines))
	for _, l := range s.lines {
		st := l.Status()
		out = append(out, lineInfo{
			ID:        l.ID(),
			Connected: l.Connected(),
			PollCount: l.PollCount(),
			Health:    status.HealthText(st.Health),
			Status:    st,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request, l Line) {
	devs := l.Devices()
	if devs == nil {
		devs = []anchor.Descriptor{}
	}
	writeJSON(w, http.StatusOK, devs)
}

type pollResponse struct {
	Line    string        `json:"line"`
	Tags    []tags.Record `json:"tags"`
	Warning string        `json:"warning,omitempty"`
}

// handlePollNow is "poll now": the raw batch of one correlated cycle.
func (s *Server) handlePollNow(w http.ResponseWriter, r *http.Request, l Line) {
	recs, err := l.PollNow(r.Context())
	if err != nil && !errors.Is(err, protocol.ErrAckMismatch) {
		s.pollFailed(w, l, err)
		return
	}
	if recs == nil {
		recs = []tags.Record{}
	}
	writeJSON(w, http.StatusOK, pollResponse{Line: l.ID(), Tags: recs, Warning: warning(err)})
}

type snapshotResponse struct {
	Line    string        `json:"line"`
	At      time.Time     `json:"at"`
	Tags    []tags.Record `json:"tags"`
	Warning string        `json:"warning,omitempty"`
}

func newSnapshotResponse(id string, snap tags.Snapshot, err error) snapshotResponse {
	recs := snap.Tags
	if recs == nil {
		recs = []tags.Record{}
	}
	return snapshotResponse{Line: id, At: snap.At, Tags: recs, Warning: warning(err)}
}

// handlePollAndMerge is "poll and merge": the reconciled snapshot after one cycle.
func (s *Server) handlePollAndMerge(w http.ResponseWriter, r *http.Request, l Line) {
	snap, err := l.PollAndMerge(r.Context())
	if err != nil && !errors.Is(err, protocol.ErrAckMismatch) {
		s.pollFailed(w, l, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(l.ID(), snap, err))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, l Line) {
	writeJSON(w, http.StatusOK, newSnapshotResponse(l.ID(), l.History(), nil))
}

// pollFailed maps a failed on-demand poll to a status code and reason.
func (s *Server) pollFailed(w http.ResponseWriter, l Line, err error) {
	if errors.Is(err, protocol.ErrTimeout) {
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Reason: "no data"})
		return
	}
	s.log.Warn().Err(err).Str("line", l.ID()).Msg("on-demand poll failed")
	writeJSON(w, http.StatusBadGateway, errorBody{Reason: protocol.Reason(err), Error: err.Error()})
}

func warning(err error) string {
	if err == nil {
		return ""
	}
	return protocol.Reason(err)
}

type intervalBody struct {
	IntervalMs *int64 `json:"interval_ms,omitempty"`
	TagIdleS   *int64 `json:"tag_idle_s,omitempty"`
}

func (s *Server) handleGetInterval(w http.ResponseWriter, r *http.Request, l Line) {
	ms := l.Interval().Milliseconds()
	idle := int64(l.TagIdle() / time.Second)
	writeJSON(w, http.StatusOK, intervalBody{IntervalMs: &ms, TagIdleS: &idle})
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request, l Line) {
	var body intervalBody
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: err.Error()})
		return
	}
	if body.IntervalMs == nil && body.TagIdleS == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: "interval_ms or tag_idle_s required"})
		return
	}

	// both values are checked before either is applied
	switch {
	case body.IntervalMs != nil && *body.IntervalMs < 0:
		writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: "interval_ms must be >= 0"})
		return
	case body.TagIdleS != nil && *body.TagIdleS < 0:
		writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: "tag_idle_s must be >= 0"})
		return
	}

	if body.IntervalMs != nil {
		if err := l.SetInterval(time.Duration(*body.IntervalMs) * time.Millisecond); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: err.Error()})
			return
		}
	}
	if body.TagIdleS != nil {
		if err := l.SetTagIdle(time.Duration(*body.TagIdleS) * time.Second); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: err.Error()})
			return
		}
	}
	s.handleGetInterval(w, r, l)
}

type consoleRequest struct {
	Args []string `json:"args"`
}

type consoleResponse struct {
	Lines []string `json:"lines"`
	Error string   `json:"error,omitempty"`
}

// handleConsole runs one console command. A failed command still answers
// 200 with its output; the failure text is in "error".
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request, l Line) {
	var req consoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: err.Error()})
		return
	}
	if len(req.Args) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Reason: "bad request", Error: "args required"})
		return
	}

	lines, err := l.Console(r.Context(), req.Args)
	resp := consoleResponse{Lines: lines}
	if resp.Lines == nil {
		resp.Lines = []string{}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
