package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/harvest"
)

// schedulerRequest is the body of POST /api/scheduler. Interval may be a
// JSON number or a numeric string.
type schedulerRequest struct {
	Interval json.RawMessage `json:"interval"`
}

func (req schedulerRequest) seconds() (int, error) {
	raw := strings.TrimSpace(string(req.Interval))
	if raw == "" || raw == "null" {
		return 0, errors.NewInvalidRequestError("interval is required")
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequestError("interval must be an integer number of seconds, got %s", raw)
	}
	if n <= 0 {
		return 0, errors.NewInvalidRequestError("interval must be positive, got %d", n)
	}
	return n, nil
}

// GET /api/scheduler
func (s *HarvesterServer) handleSchedulerGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.schedules.GetJob(s.config().Scheduler.JobID)
	if err != nil {
		handleError(w, s.log(r), err, "Failed to get scheduled harvest")
		return
	}
	writeJSON(w, http.StatusOK, job.Summarize(s.now()))
}

// POST /api/scheduler replaces the scheduled harvest with one firing
// every interval seconds, the first run one interval from now.
func (s *HarvesterServer) handleSchedulerSet(w http.ResponseWriter, r *http.Request) {
	var req schedulerRequest
	if err := readJSON(r, &req); err != nil {
		handleError(w, s.log(r), err, "Invalid scheduler request")
		return
	}
	interval, err := req.seconds()
	if err != nil {
		handleError(w, s.log(r), err, "Invalid scheduler interval")
		return
	}

	now := s.now()
	job := harvest.NewScheduledJob(s.config().Scheduler.JobID, interval, now)
	if err := s.schedules.ReplaceJob(job); err != nil {
		handleError(w, s.log(r), err, "Failed to replace scheduled harvest")
		return
	}
	s.log(r).Infow("Scheduled harvest replaced", "job_id", job.ID, "interval_seconds", interval)
	writeJSON(w, http.StatusOK, job.Summarize(now))
}
