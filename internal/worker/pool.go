// Package worker runs export jobs in the background.
package worker

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"query-streamer/internal/exporter"
	"query-streamer/internal/metrics"
	"query-streamer/internal/queries"
	"query-streamer/internal/storage"
	"query-streamer/internal/stream"
)

var (
	ErrQueueFull   = errors.New("export queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
	ErrJobNotFound = errors.New("export job not found")
	ErrJobNotReady = errors.New("export job has not completed")
)

// jobRetention is how long finished jobs stay queryable.
const jobRetention = time.Hour

// Opener opens what a request describes: a chunk stream for JSON exports,
// a row table for the other formats.
type Opener interface {
	Open(ctx context.Context, req queries.Request) (stream.Chunks, exporter.Format, error)
	Table(ctx context.Context, req queries.Request) (*queries.Table, error)
}

// Pool manages concurrent export jobs and limits database load.
// Workers take jobs from a bounded queue; a separate semaphore caps how many
// of them hold a database connection at once.
type Pool struct {
	jobQueue chan *ExportJob
	workers  int
	// dbSem restricts the number of concurrent export streams.
	dbSem *semaphore.Weighted
	wg    sync.WaitGroup
	quit  chan struct{}
	once  sync.Once

	opener  Opener
	storage storage.Provider
	useGzip bool

	mu   sync.Mutex
	jobs map[string]*ExportJob
}

// NewPool initializes a worker pool with the specified configuration.
// It does not start the workers; call Start() to begin processing.
func NewPool(workers int, maxDBConcurrency int64, opener Opener, store storage.Provider, useGzip bool) *Pool {
	if workers < 1 {
		workers = 1
	}
	if maxDBConcurrency < 1 {
		maxDBConcurrency = 1
	}
	return &Pool{
		jobQueue: make(chan *ExportJob, 100),
		workers:  workers,
		dbSem:    semaphore.NewWeighted(maxDBConcurrency),
		quit:     make(chan struct{}),
		opener:   opener,
		storage:  store,
		useGzip:  useGzip,
		jobs:     make(map[string]*ExportJob),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	slog.Info("worker pool started", "workers", p.workers)
}

// Submit queues job and makes it visible to Get. It never blocks.
func (p *Pool) Submit(job *ExportJob) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}

	p.mu.Lock()
	p.evictLocked()
	p.jobs[job.ID] = job
	p.mu.Unlock()

	select {
	case p.jobQueue <- job:
		return nil
	default:
		p.mu.Lock()
		delete(p.jobs, job.ID)
		p.mu.Unlock()
		job.cancel()
		return ErrQueueFull
	}
}

// Get returns a snapshot of the job with the given id.
func (p *Pool) Get(id string) (JobInfo, error) {
	p.mu.Lock()
	job, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return JobInfo{}, ErrJobNotFound
	}
	return job.Info(), nil
}

// Download opens the stored document of a completed job.
func (p *Pool) Download(ctx context.Context, id string) (io.ReadCloser, JobInfo, error) {
	info, err := p.Get(id)
	if err != nil {
		return nil, info, err
	}
	if info.Status != StatusCompleted {
		return nil, info, ErrJobNotReady
	}
	r, err := p.storage.Open(ctx, info.Key)
	return r, info, err
}

// Stop initiates graceful shutdown: queued jobs that were not picked up stay PENDING.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) evictLocked() {
	cutoff := time.Now().Add(-jobRetention)
	for id, job := range p.jobs {
		if info := job.Info(); info.Finished != nil && info.Finished.Before(cutoff) {
			delete(p.jobs, id)
		}
	}
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	slog.Debug("worker started", "worker_id", id)

	for {
		select {
		case job := <-p.jobQueue:
			p.processJob(id, job)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) processJob(workerID int, job *ExportJob) {
	defer job.cancel()
	slog.Info("processing job", "worker_id", workerID, "job_id", job.ID, "dataset", job.Request.Dataset)
	job.start()

	if err := p.dbSem.Acquire(job.ctx, 1); err != nil {
		p.failJob(job, fmt.Errorf("failed to acquire db slot: %w", err))
		return
	}
	key, format, n, err := p.executeExport(job)
	p.dbSem.Release(1)
	if err != nil {
		p.failJob(job, err)
		return
	}

	job.complete(key, p.storage.URL(key), string(format), n)
	metrics.ExportJobs.WithLabelValues(string(StatusCompleted)).Inc()
	info := job.Info()
	slog.Info("job completed", "job_id", job.ID, "bytes", n, "key", key,
		"wait", info.Started.Sub(info.Submitted), "duration", info.Finished.Sub(*info.Started))
}

// executeExport runs DB -> stream or row encoder -> [gzip] -> storage.
// JSON is copied chunk by chunk from the stream; every other format is
// written row by row through an exporter.RowEncoder.
func (p *Pool) executeExport(job *ExportJob) (string, exporter.Format, int64, error) {
	format, err := exporter.ParseExportFormat(job.Request.Format)
	if err != nil {
		return "", "", 0, err
	}

	var write func(ctx context.Context, out io.Writer) error
	if format == exporter.FormatJSON {
		s, f, err := p.opener.Open(job.ctx, job.Request)
		if err != nil {
			return "", "", 0, fmt.Errorf("open stream: %w", err)
		}
		defer s.Close()
		format = f
		write = func(ctx context.Context, out io.Writer) error {
			_, err := stream.Copy(ctx, out, s)
			return err
		}
	} else {
		t, err := p.opener.Table(job.ctx, job.Request)
		if err != nil {
			return "", "", 0, fmt.Errorf("open table: %w", err)
		}
		defer t.Close()
		write = func(ctx context.Context, out io.Writer) error {
			return writeTable(ctx, out, t, format)
		}
	}

	key := fmt.Sprintf("exports/%s.%s", job.ID, format.Ext())
	if p.useGzip {
		key += ".gz"
	}
	w, err := p.storage.Create(job.ctx, key)
	if err != nil {
		return "", "", 0, fmt.Errorf("create %s: %w", key, err)
	}

	var out io.Writer = w
	var gz *gzip.Writer
	if p.useGzip {
		gz = gzip.NewWriter(w)
		out = gz
	}
	counter := &countingWriter{w: out}

	err = write(job.ctx, counter)
	if err == nil && gz != nil {
		if cerr := gz.Close(); cerr != nil {
			err = fmt.Errorf("gzip close failed: %w", cerr)
		}
	}
	if err != nil {
		w.Abort(err)
		return "", "", counter.n, fmt.Errorf("export failed: %w", err)
	}
	if err := w.Commit(); err != nil {
		return "", "", counter.n, fmt.Errorf("upload failed: %w", err)
	}
	return key, format, counter.n, nil
}

// writeTable encodes every row of t. The header is written even when t has no rows.
func writeTable(ctx context.Context, w io.Writer, t *queries.Table, format exporter.Format) error {
	enc, err := exporter.NewRowEncoder(format, w)
	if err != nil {
		return err
	}
	defer enc.Close()

	if err := enc.WriteHeader(t.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for {
		row, err := t.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := enc.WriteRow(row.Values); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return enc.Flush()
}

// countingWriter counts the document bytes, before compression.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (p *Pool) failJob(job *ExportJob, err error) {
	job.fail(err)
	metrics.ExportJobs.WithLabelValues(string(StatusFailed)).Inc()
	slog.Error("job failed", "job_id", job.ID, "error", err)
}
