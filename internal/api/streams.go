package api

import (
	"log/slog"
	"net/http"

	"query-streamer/internal/metrics"
	"query-streamer/internal/queries"
	"query-streamer/internal/transport"
)

const contentTypeJSON = "application/json"

// HandleFilmStream streams POST {"offset":n,"limit":m} worth of films.
func (h *Handler) HandleFilmStream(w http.ResponseWriter, r *http.Request) {
	var p queries.Page
	if !decodeBody(w, r, &p) {
		return
	}
	s, err := h.Catalog.Films(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	serve(w, r, s, contentTypeJSON)
}

// HandleJunkStream serves both /junkstream and /junkstream2, which return the same array.
func (h *Handler) HandleJunkStream(w http.ResponseWriter, r *http.Request) {
	p, ok := pathPage(w, r)
	if !ok {
		return
	}
	s, err := h.Catalog.Junk(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	serve(w, r, s, contentTypeJSON)
}

// HandleJunkByIDStream streams the page as one object keyed by junk id.
func (h *Handler) HandleJunkByIDStream(w http.ResponseWriter, r *http.Request) {
	p, ok := pathPage(w, r)
	if !ok {
		return
	}
	s, err := h.Catalog.JunkByID(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	serve(w, r, s, contentTypeJSON)
}

// HandleJunkWebSocket sends the junk page as one text message per chunk.
func (h *Handler) HandleJunkWebSocket(w http.ResponseWriter, r *http.Request) {
	p, ok := pathPage(w, r)
	if !ok {
		return
	}
	s, err := h.Catalog.Junk(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()
	if err := transport.WebSocket(w, r, h.Upgrader, s); err != nil {
		slog.WarnContext(r.Context(), "websocket stream ended with error", "path", r.URL.Path, "error", err)
	}
}

// HandleQueryStream streams an ad-hoc SELECT as JSON or CSV.
func (h *Handler) HandleQueryStream(w http.ResponseWriter, r *http.Request) {
	var p queries.RawParams
	if !decodeBody(w, r, &p) {
		return
	}
	s, format, err := h.Catalog.Raw(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	serve(w, r, s, format.ContentType())
}

func (h *Handler) HandleDocStream(w http.ResponseWriter, r *http.Request) {
	p, ok := pathPage(w, r)
	if !ok {
		return
	}
	s, err := h.Catalog.Docs(r.Context(), r.PathValue("collection"), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	serve(w, r, s, contentTypeJSON)
}

// HandleFilms is the buffered counterpart of HandleFilmStream.
func (h *Handler) HandleFilms(w http.ResponseWriter, r *http.Request) {
	var p queries.Page
	if !decodeBody(w, r, &p) {
		return
	}
	films, err := h.Catalog.AllFilms(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	transport.JSON(w, http.StatusOK, films)
}

func (h *Handler) HandleJunk(w http.ResponseWriter, r *http.Request) {
	var p queries.Page
	if !decodeBody(w, r, &p) {
		return
	}
	junk, err := h.Catalog.AllJunk(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	transport.JSON(w, http.StatusOK, junk)
}

// HandleJunkOnConn reads the page on an explicitly acquired connection.
func (h *Handler) HandleJunkOnConn(w http.ResponseWriter, r *http.Request) {
	var p queries.Page
	if !decodeBody(w, r, &p) {
		return
	}
	junk, err := h.Catalog.AllJunkOnConn(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	transport.JSON(w, http.StatusOK, junk)
}
