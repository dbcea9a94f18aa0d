package api

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"query-streamer/internal/exporter"
	"query-streamer/internal/queries"
	"query-streamer/internal/transport"
	"query-streamer/internal/worker"
)

// HandleCreateExport queues a background export and answers 202 with the job id.
func (h *Handler) HandleCreateExport(w http.ResponseWriter, r *http.Request) {
	var req queries.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		fail(w, r, err)
		return
	}

	job := worker.NewExportJob(req, h.ExportTimeout)
	if err := h.Exports.Submit(job); err != nil {
		fail(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "export queued", "job_id", job.ID, "dataset", req.Dataset)

	w.Header().Set("Location", "/exports/"+job.ID)
	transport.JSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(worker.StatusPending)})
}

func (h *Handler) HandleExportStatus(w http.ResponseWriter, r *http.Request) {
	info, err := h.Exports.Get(r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	transport.JSON(w, http.StatusOK, info)
}

// HandleExportDownload sends the stored document of a completed job.
func (h *Handler) HandleExportDownload(w http.ResponseWriter, r *http.Request) {
	body, info, err := h.Exports.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	defer body.Close()

	contentType := exporter.Format(info.Format).ContentType()
	if strings.HasSuffix(info.Key, ".gz") {
		contentType = "application/gzip"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(info.Key)+`"`)
	if _, err := io.Copy(w, body); err != nil {
		slog.WarnContext(r.Context(), "export download interrupted", "job_id", info.ID, "error", err)
	}
}
