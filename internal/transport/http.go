// Package transport writes streams to clients over chunked HTTP and WebSocket.
package transport

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"query-streamer/internal/stream"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

// Error writes {"error": msg} with the given status.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}

// HTTP writes every chunk of s to w as it is produced and flushes it, then closes s.
//
// A failure before the first chunk is answered with a 500 JSON error. A failure
// after the first chunk aborts the connection so the client sees a truncated body.
// A cancelled request context ends the stream silently.
func HTTP(w http.ResponseWriter, r *http.Request, s stream.Chunks, contentType string) error {
	defer s.Close()

	ctx := r.Context()
	rc := http.NewResponseController(w)
	wrote := false
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				slog.DebugContext(ctx, "client went away mid-stream", "error", err)
				return nil
			}
			if !wrote {
				slog.ErrorContext(ctx, "stream failed before first chunk", "error", err)
				Error(w, http.StatusInternalServerError, err.Error())
				return err
			}
			slog.ErrorContext(ctx, "stream aborted", "error", err)
			panic(http.ErrAbortHandler)
		}

		if !wrote {
			h := w.Header()
			h.Set("Content-Type", contentType)
			h.Set("Cache-Control", "no-store")
			h.Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
}
