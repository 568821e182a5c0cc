package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/teranos/breg-harvester/harvest"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
)

const (
	defaultListSize = 10
	maxListSize     = 1000
)

// Job status names as API clients know them.
var statusNames = map[async.JobStatus]string{
	async.JobStatusQueued:    "queued",
	async.JobStatusRunning:   "started",
	async.JobStatusCompleted: "finished",
	async.JobStatusFailed:    "failed",
	async.JobStatusCancelled: "canceled",
}

// JobDescriptor is the API view of a harvest job. The extended fields
// are only set when asked for.
type JobDescriptor struct {
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	StartedAt   *time.Time      `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at"`
	Description *string         `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	ExcInfo     *string         `json:"exc_info,omitempty"`
}

func describeJob(job *async.Job, extended bool) JobDescriptor {
	status, ok := statusNames[job.Status]
	if !ok {
		status = string(job.Status)
	}
	d := JobDescriptor{
		JobID:      job.ID,
		Status:     status,
		EnqueuedAt: job.CreatedAt,
		StartedAt:  job.StartedAt,
		EndedAt:    job.CompletedAt,
	}
	if extended {
		desc, exc := job.Description, job.Error
		d.Description = &desc
		d.ExcInfo = &exc
		d.Result = job.Result
		if len(d.Result) == 0 {
			d.Result = json.RawMessage("null")
		}
	}
	return d
}

// JobBuckets groups recent harvest jobs by status.
type JobBuckets struct {
	Finished  []JobDescriptor `json:"finished"`
	Failed    []JobDescriptor `json:"failed"`
	Scheduled []JobDescriptor `json:"scheduled"`
	Started   []JobDescriptor `json:"started"`
}

// POST /api/harvest enqueues a harvest of the configured sources.
func (s *HarvesterServer) handleHarvestRun(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	sources, err := harvest.SourcesFromConfig(cfg)
	if err != nil {
		handleError(w, s.log(r), err, "Failed to read configured sources")
		return
	}
	job, err := harvest.Enqueue(s.queue, sources, cfg)
	if err != nil {
		handleError(w, s.log(r), err, "Failed to enqueue harvest")
		return
	}
	if job == nil {
		s.log(r).Infow("Harvest requested without sources")
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s.log(r).Infow("Harvest enqueued", logger.FieldJobID, job.ID, "sources", len(sources))
	writeJSON(w, http.StatusOK, describeJob(job, true))
}

// GET /api/harvest/{id}
func (s *HarvesterServer) handleHarvestJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.GetJob(r.PathValue("id"))
	if err != nil {
		handleError(w, s.log(r), err, "Failed to get harvest job")
		return
	}
	writeJSON(w, http.StatusOK, describeJob(job, true))
}

// GET /api/harvest?num=10&extended=1 lists the newest jobs per status.
func (s *HarvesterServer) handleHarvestList(w http.ResponseWriter, r *http.Request) {
	num, err := parseIntQueryParam(r, "num", defaultListSize, 1, maxListSize)
	if err != nil {
		handleError(w, s.log(r), err, "Invalid num")
		return
	}
	extended := queryFlag(r, "extended")

	list := func(status async.JobStatus) ([]JobDescriptor, error) {
		jobs, err := s.queue.ListJobs(&status, num)
		if err != nil {
			return nil, err
		}
		out := make([]JobDescriptor, 0, len(jobs))
		for _, job := range jobs {
			out = append(out, describeJob(job, extended))
		}
		return out, nil
	}

	var buckets JobBuckets
	for _, b := range []struct {
		status async.JobStatus
		dst    *[]JobDescriptor
	}{
		{async.JobStatusCompleted, &buckets.Finished},
		{async.JobStatusFailed, &buckets.Failed},
		{async.JobStatusQueued, &buckets.Scheduled},
		{async.JobStatusRunning, &buckets.Started},
	} {
		jobs, err := list(b.status)
		if err != nil {
			handleError(w, s.log(r), err, "Failed to list harvest jobs")
			return
		}
		*b.dst = jobs
	}
	writeJSON(w, http.StatusOK, buckets)
}

// GET /api/harvest/source
func (s *HarvesterServer) handleHarvestSources(w http.ResponseWriter, r *http.Request) {
	sources, err := harvest.SourcesFromConfig(s.config())
	if err != nil {
		handleError(w, s.log(r), err, "Failed to read configured sources")
		return
	}
	if len(sources) == 0 {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, harvest.Outcomes(sources))
}
