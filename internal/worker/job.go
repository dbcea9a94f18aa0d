package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"query-streamer/internal/queries"
)

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// ExportJob streams one dataset into storage.
type ExportJob struct {
	ID      string
	Request queries.Request

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	status    JobStatus
	submitted time.Time
	started   time.Time
	finished  time.Time
	err       error
	bytes     int64
	key       string
	url       string
	format    string
}

// JobInfo is a point-in-time view of a job, as returned by the status endpoint.
type JobInfo struct {
	ID        string          `json:"job_id"`
	Status    JobStatus       `json:"status"`
	Request   queries.Request `json:"request"`
	Submitted time.Time       `json:"submitted"`
	Started   *time.Time      `json:"started,omitempty"`
	Finished  *time.Time      `json:"finished,omitempty"`
	Error     string          `json:"error,omitempty"`
	Bytes     int64           `json:"bytes"`
	Key       string          `json:"key,omitempty"`
	URL       string          `json:"url,omitempty"`
	Format    string          `json:"format,omitempty"`
}

// NewExportJob creates a pending job whose run is bounded by timeout.
func NewExportJob(req queries.Request, timeout time.Duration) *ExportJob {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &ExportJob{
		ID:        uuid.NewString(),
		Request:   req,
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusPending,
		submitted: time.Now(),
	}
}

// Info returns a snapshot of the job.
func (j *ExportJob) Info() JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()

	info := JobInfo{
		ID:        j.ID,
		Status:    j.status,
		Request:   j.Request,
		Submitted: j.submitted,
		Bytes:     j.bytes,
		Key:       j.key,
		URL:       j.url,
		Format:    j.format,
	}
	if !j.started.IsZero() {
		t := j.started
		info.Started = &t
	}
	if !j.finished.IsZero() {
		t := j.finished
		info.Finished = &t
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}

func (j *ExportJob) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusProcessing
	j.started = time.Now()
}

func (j *ExportJob) complete(key, url, format string, n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusCompleted
	j.finished = time.Now()
	j.key, j.url, j.format, j.bytes = key, url, format, n
}

func (j *ExportJob) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusFailed
	j.finished = time.Now()
	j.err = err
}
