// Package api maps HTTP routes onto query streams, buffered queries and export jobs.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"query-streamer/internal/exporter"
	"query-streamer/internal/metrics"
	"query-streamer/internal/queries"
	"query-streamer/internal/security"
	"query-streamer/internal/storage"
	"query-streamer/internal/stream"
	"query-streamer/internal/transport"
	"query-streamer/internal/worker"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

type Handler struct {
	Catalog *queries.Catalog
	// Exports is nil when export jobs are disabled.
	Exports       *worker.Pool
	Upgrader      *websocket.Upgrader
	ExportTimeout time.Duration
}

func NewHandler(c *queries.Catalog, exports *worker.Pool, up *websocket.Upgrader, exportTimeout time.Duration) *Handler {
	return &Handler{
		Catalog:       c,
		Exports:       exports,
		Upgrader:      up,
		ExportTimeout: exportTimeout,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	mux.HandleFunc("POST /films", h.HandleFilms)
	mux.HandleFunc("POST /filmstream", h.HandleFilmStream)
	mux.HandleFunc("POST /junk", h.HandleJunk)
	mux.HandleFunc("POST /junk2", h.HandleJunkOnConn)
	mux.HandleFunc("GET /junkstream/{limit}/{offset}", h.HandleJunkStream)
	mux.HandleFunc("GET /junkstream2/{limit}/{offset}", h.HandleJunkStream)
	mux.HandleFunc("GET /junkmap/{limit}/{offset}", h.HandleJunkByIDStream)
	mux.HandleFunc("GET /ws/junkstream/{limit}/{offset}", h.HandleJunkWebSocket)
	mux.HandleFunc("POST /query/stream", h.HandleQueryStream)

	if h.Catalog.HasDocs() {
		mux.HandleFunc("GET /docstream/{collection}/{limit}/{offset}", h.HandleDocStream)
	}
	if h.Exports != nil {
		mux.HandleFunc("POST /exports", h.HandleCreateExport)
		mux.HandleFunc("GET /exports/{id}", h.HandleExportStatus)
		mux.HandleFunc("GET /exports/{id}/download", h.HandleExportDownload)
	}
	return mux
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Ping(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "health check failed", "error", err)
		transport.Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	transport.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serve writes s over chunked HTTP and tracks it as an active stream.
func serve[R any](w http.ResponseWriter, r *http.Request, s *stream.Stream[R], contentType string) {
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()
	if err := transport.HTTP(w, r, s, contentType); err != nil {
		slog.WarnContext(r.Context(), "stream ended with error", "path", r.URL.Path, "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		transport.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathPage reads the {limit} and {offset} path parameters.
func pathPage(w http.ResponseWriter, r *http.Request) (queries.Page, bool) {
	limit, lerr := strconv.ParseInt(r.PathValue("limit"), 10, 64)
	offset, oerr := strconv.ParseInt(r.PathValue("offset"), 10, 64)
	if lerr != nil || oerr != nil {
		transport.Error(w, http.StatusBadRequest, "limit and offset must be integers")
		return queries.Page{}, false
	}
	return queries.Page{Offset: offset, Limit: limit}, true
}

// fail answers err with the status its kind maps to.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	transport.Error(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queries.ErrInvalidParams),
		errors.Is(err, queries.ErrUnknownDataset),
		errors.Is(err, exporter.ErrUnsupportedFormat),
		errors.Is(err, security.ErrEmptyQuery),
		errors.Is(err, security.ErrNotSelect),
		errors.Is(err, security.ErrMultipleQueries),
		errors.Is(err, security.ErrForbiddenKeyword),
		errors.Is(err, security.ErrSystemTable):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrJobNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, worker.ErrJobNotReady):
		return http.StatusConflict
	case errors.Is(err, worker.ErrQueueFull),
		errors.Is(err, worker.ErrPoolStopped),
		errors.Is(err, queries.ErrDocsUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
