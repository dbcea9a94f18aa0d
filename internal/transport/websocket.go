package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"query-streamer/internal/stream"
)

const writeWait = 10 * time.Second

// NewUpgrader returns an upgrader that accepts the given origins. "*" accepts any.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: stream.DefaultChunkSize * 2,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// WebSocket upgrades the request and sends every chunk of s as one text message,
// then a normal close frame. A stream error closes with 1011. s is always closed.
func WebSocket(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, s stream.Chunks) error {
	defer s.Close()

	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return err
	}
	defer conn.Close()

	// The hijacked request context is not cancelled on disconnect, so a reader
	// watches the socket and cancels the stream when the peer goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return closeWith(conn, websocket.CloseNormalClosure, "")
		}
		if err != nil {
			if ctx.Err() != nil {
				slog.DebugContext(r.Context(), "websocket peer went away mid-stream", "error", err)
				return nil
			}
			slog.ErrorContext(r.Context(), "stream aborted", "error", err)
			_ = closeWith(conn, websocket.CloseInternalServerErr, "stream aborted")
			return err
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, chunk); err != nil {
			return err
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) error {
	return conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
