package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"query-streamer/internal/security"
)

var version = "dev"

// stats counts body reads for HTTP and messages for WebSocket.
type stats struct {
	chunks    int
	bytes     int64
	firstByte time.Duration
	total     time.Duration
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "streamcat %s\n\n", version)
		fmt.Fprintf(os.Stderr, "Fetches a streaming endpoint and copies the document to stdout.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  streamcat [flags] <url>\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  API_SECRET   Signs requests with HMAC (or issues a bearer token for ws:// URLs)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  streamcat http://127.0.0.1:8080/junkstream/100/0\n")
		fmt.Fprintf(os.Stderr, "  streamcat -body '{\"offset\":0,\"limit\":3}' http://127.0.0.1:8080/filmstream\n")
		fmt.Fprintf(os.Stderr, "  streamcat ws://127.0.0.1:8080/ws/junkstream/100/0\n")
	}

	body := flag.String("body", "", "JSON request body; implies POST")
	quiet := flag.Bool("q", false, "Discard the document, print only statistics")
	timeout := flag.Duration("timeout", 0, "Give up after this long (0 = no limit)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamcat %s\n", version)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	var out io.Writer = os.Stdout
	if *quiet {
		out = io.Discard
	}

	target := flag.Arg(0)
	secret := os.Getenv("API_SECRET")
	var st stats
	var err error
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		st, err = fetchWebSocket(ctx, target, secret, out)
	} else {
		st, err = fetchHTTP(ctx, target, *body, secret, out)
	}
	if err != nil {
		slog.Error("fetch failed", "url", target, "error", err)
		os.Exit(1)
	}
	slog.Info("stream complete",
		"chunks", st.chunks,
		"bytes", st.bytes,
		"first_byte", st.firstByte,
		"total", st.total,
	)
}

func fetchHTTP(ctx context.Context, target, body, secret string, out io.Writer) (stats, error) {
	method := http.MethodGet
	if body != "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(body))
	if err != nil {
		return stats{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", security.Sign(secret, method, req.URL.Path, body, ts))
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return stats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return stats{}, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var st stats
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if st.chunks == 0 {
				st.firstByte = time.Since(start)
			}
			st.chunks++
			st.bytes += int64(n)
			if _, werr := out.Write(buf[:n]); werr != nil {
				return st, werr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("stream interrupted after %d bytes: %w", st.bytes, err)
		}
	}
	st.total = time.Since(start)
	return st, nil
}

func fetchWebSocket(ctx context.Context, target, secret string, out io.Writer) (stats, error) {
	if secret != "" {
		token, err := security.IssueToken(secret, "streamcat", time.Minute)
		if err != nil {
			return stats{}, err
		}
		u, err := url.Parse(target)
		if err != nil {
			return stats{}, err
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	start := time.Now()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return stats{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var st stats
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			st.total = time.Since(start)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return st, nil
			}
			return st, fmt.Errorf("stream interrupted after %d messages: %w", st.chunks, err)
		}
		if st.chunks == 0 {
			st.firstByte = time.Since(start)
		}
		st.chunks++
		st.bytes += int64(len(data))
		if _, err := out.Write(data); err != nil {
			return st, err
		}
	}
}
