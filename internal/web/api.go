package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"go.uber.org/zap"
)

type scriptRequest struct {
	Dialect string `json:"dialect"`
	Source  string `json:"source"`
}

type validateResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type runResponse struct {
	ID         string  `json:"id"`
	Dialect    string  `json:"dialect"`
	Accepted   bool    `json:"accepted"`
	Reason     string  `json:"reason,omitempty"`
	Output     string  `json:"output"`
	Failed     bool    `json:"failed"`
	DurationMS float64 `json:"duration_ms"`
}

func newRunResponse(res scripting.Result) runResponse {
	return runResponse{
		ID:         res.ID.String(),
		Dialect:    res.Dialect,
		Accepted:   res.Accepted,
		Reason:     res.Reason,
		Output:     res.Output,
		Failed:     res.Failed(),
		DurationMS: float64(res.Duration) / float64(time.Millisecond),
	}
}

type valueResponse struct {
	Path  string      `json:"path"`
	Set   bool        `json:"set"`
	Value watch.Value `json:"value"`
}

// POST /api/scripts/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.deps.Runtime.Validate(req.Dialect, req.Source)
	if errors.Is(err, scripting.ErrUnknownDialect) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := validateResponse{OK: err == nil}
	if err != nil {
		resp.Reason = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/scripts/run
//
// Admitted scripts are queued for the game loop and the request waits for
// the transcript. Rejected scripts answer 422 without being queued.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res := s.deps.Runtime.Admit(req.Dialect, req.Source)
	if !res.Accepted {
		if s.deps.Journal != nil {
			s.deps.Journal.Record(0, res)
		}
		writeJSON(w, http.StatusUnprocessableEntity, newRunResponse(res))
		return
	}

	reply := make(chan scripting.Result, 1)
	err := s.deps.Queue.Submit(scripting.Job{
		Kind:    scripting.JobRun,
		Dialect: res.Dialect,
		Source:  req.Source,
		Reply:   reply,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	timer := time.NewTimer(s.deps.Config.RunTimeout)
	defer timer.Stop()
	select {
	case done := <-reply:
		writeJSON(w, http.StatusOK, newRunResponse(done))
	case <-timer.C:
		writeError(w, http.StatusGatewayTimeout, "run still queued")
	case <-r.Context().Done():
		s.deps.Log.Debug("run request abandoned", zap.Error(r.Context().Err()))
	}
}

// GET /api/values
func (s *Server) handleValues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"values": s.deps.Tracker.Values()})
}

// GET /api/values/{path}
func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	v := s.deps.Tracker.Value(path)
	writeJSON(w, http.StatusOK, valueResponse{Path: path, Set: v.IsSet(), Value: v})
}

// DELETE /api/watches
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.submitClear(w, scripting.Job{Kind: scripting.JobReset})
}

// DELETE /api/watches/{path}
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.submitClear(w, scripting.Job{Kind: scripting.JobClear, Path: mux.Vars(r)["path"]})
}

func (s *Server) submitClear(w http.ResponseWriter, j scripting.Job) {
	if err := s.deps.Queue.Submit(j); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// GET /api/examples
func (s *Server) handleExamples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"examples": s.deps.Examples.All()})
}

// GET /api/runs?limit=N
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "run journal disabled")
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}
	runs, err := s.deps.Runs.RecentRuns(r.Context(), limit)
	if err != nil {
		s.deps.Log.Error("journal read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
