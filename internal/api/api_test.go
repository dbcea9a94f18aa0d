package api_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-streamer/internal/api"
	"query-streamer/internal/driver"
	"query-streamer/internal/queries"
	"query-streamer/internal/storage"
	"query-streamer/internal/stream"
	"query-streamer/internal/transport"
	"query-streamer/internal/worker"
)

type fixture struct {
	srv *httptest.Server
	db  *driver.SQLDriver
}

func newFixture(t *testing.T, junkRows int, opts stream.Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	d, err := driver.NewSQLiteDriver(filepath.Join(dir, "api.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	_, err = d.DB().Exec(`CREATE TABLE junk (id INTEGER PRIMARY KEY, jsn TEXT NOT NULL)`)
	require.NoError(t, err)
	for i := 1; i <= junkRows; i++ {
		_, err = d.DB().Exec(`INSERT INTO junk (id, jsn) VALUES (?, ?)`, i, fmt.Sprintf(`{"n":%d}`, i))
		require.NoError(t, err)
	}
	_, err = d.DB().Exec(`CREATE TABLE film (
		film_id INTEGER PRIMARY KEY, title TEXT NOT NULL, description TEXT, release_year INTEGER,
		language_id INTEGER NOT NULL, original_language_id INTEGER, rental_duration INTEGER NOT NULL,
		length INTEGER, last_update DATETIME NOT NULL)`)
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		_, err = d.DB().Exec(`INSERT INTO film (film_id, title, language_id, rental_duration, last_update) VALUES (?, ?, 1, 3, ?)`,
			i, fmt.Sprintf("FILM %d", i), time.Date(2022, 2, 15, 10, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	}

	catalog := queries.NewCatalog(d, nil, opts)
	store, err := storage.NewLocalProvider(filepath.Join(dir, "exports"))
	require.NoError(t, err)
	pool := worker.NewPool(1, 1, catalog, store, false)
	pool.Start()
	t.Cleanup(pool.Stop)

	h := api.NewHandler(catalog, pool, transport.NewUpgrader([]string{"*"}), time.Minute)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, db: d}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (f *fixture) post(t *testing.T, path, payload string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestFilmStream_FirstThree(t *testing.T) {
	f := newFixture(t, 0, stream.DefaultOptions())
	resp, body := f.post(t, "/filmstream", `{"offset":0,"limit":3}`)

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var films []queries.Film
	require.NoError(t, json.Unmarshal([]byte(body), &films))
	require.Len(t, films, 3)
	for i, film := range films {
		assert.Equal(t, int32(i+1), film.FilmID)
	}
}

func TestFilmStream_MatchesBuffered(t *testing.T) {
	f := newFixture(t, 0, stream.DefaultOptions())
	_, streamed := f.post(t, "/filmstream", `{"offset":1,"limit":10}`)
	resp, buffered := f.post(t, "/films", `{"offset":1,"limit":10}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, buffered, streamed)
}

func TestJunkStream(t *testing.T) {
	f := newFixture(t, 5, stream.DefaultOptions())
	resp, body := f.get(t, "/junkstream/3/0")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `[{"id":1,"jsn":{"n":1}},{"id":2,"jsn":{"n":2}},{"id":3,"jsn":{"n":3}}]`, body)
}

func TestJunkStream_ManyChunksFormOneDocument(t *testing.T) {
	f := newFixture(t, 300, stream.Options{ChunkSize: 256})
	_, body := f.get(t, "/junkstream/300/0")

	var got []queries.Junk
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 300)
	assert.Equal(t, int64(300), got[299].ID)
}

func TestJunkStream_Empty(t *testing.T) {
	f := newFixture(t, 2, stream.DefaultOptions())
	resp, body := f.get(t, "/junkstream/10/50")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", body)
}

func TestJunkStream_BadParams(t *testing.T) {
	f := newFixture(t, 2, stream.DefaultOptions())

	resp, body := f.get(t, "/junkstream/ten/0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "error")

	resp, _ = f.get(t, "/junkstream/-1/0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJunkStream_SourceUnavailable(t *testing.T) {
	f := newFixture(t, 2, stream.DefaultOptions())
	require.NoError(t, f.db.Close())

	resp, body := f.get(t, "/junkstream/2/0")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, stream.ErrSourceUnavailable.Error())
}

func TestJunkStream2_SameDocumentAsJunkStream(t *testing.T) {
	f := newFixture(t, 3, stream.DefaultOptions())
	_, first := f.get(t, "/junkstream/2/1")
	resp, second := f.get(t, "/junkstream2/2/1")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `[{"id":2,"jsn":{"n":2}},{"id":3,"jsn":{"n":3}}]`, second)
	assert.Equal(t, first, second)
}

func TestJunkMapStream(t *testing.T) {
	f := newFixture(t, 3, stream.DefaultOptions())
	_, body := f.get(t, "/junkmap/2/1")

	assert.Equal(t, `{"2":{"n":2},"3":{"n":3}}`, body)
}

func TestBufferedJunk(t *testing.T) {
	f := newFixture(t, 3, stream.DefaultOptions())
	_, streamed := f.get(t, "/junkstream/2/1")

	resp, buffered := f.post(t, "/junk", `{"offset":1,"limit":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, streamed, buffered)

	resp, onConn := f.post(t, "/junk2", `{"offset":1,"limit":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, streamed, onConn)

	resp, _ = f.post(t, "/junk", `{"offset":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryStream(t *testing.T) {
	f := newFixture(t, 2, stream.DefaultOptions())

	resp, body := f.post(t, "/query/stream", `{"query":"SELECT id FROM junk ORDER BY id","format":"csv"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "id\n1\n2\n", body)

	resp, body = f.post(t, "/query/stream", `{"query":"SELECT id FROM junk ORDER BY id"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `[{"id":1},{"id":2}]`, body)

	resp, _ = f.post(t, "/query/stream", `{"query":"DROP TABLE junk"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "/query/stream", `{"query":"SELECT * FROM nowhere"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestJunkWebSocket(t *testing.T) {
	f := newFixture(t, 50, stream.Options{ChunkSize: 64})
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/junkstream/50/0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var doc strings.Builder
	messages := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
		messages++
		doc.Write(data)
	}

	assert.Greater(t, messages, 1)
	var got []queries.Junk
	require.NoError(t, json.Unmarshal([]byte(doc.String()), &got))
	assert.Len(t, got, 50)
}

func (f *fixture) export(t *testing.T, body string) (string, worker.JobInfo) {
	t.Helper()
	resp, out := f.post(t, "/exports", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, out)
	var created struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.JobID)

	var info worker.JobInfo
	require.Eventually(t, func() bool {
		resp, err := http.Get(f.srv.URL + "/exports/" + created.JobID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if json.NewDecoder(resp.Body).Decode(&info) != nil {
			return false
		}
		return info.Status == worker.StatusCompleted || info.Status == worker.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, worker.StatusCompleted, info.Status, info.Error)
	return created.JobID, info
}

func TestExports(t *testing.T) {
	f := newFixture(t, 3, stream.DefaultOptions())
	id, _ := f.export(t, `{"dataset":"junk","offset":0,"limit":2}`)

	resp, body := f.get(t, "/exports/"+id+"/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `[{"id":1,"jsn":{"n":1}},{"id":2,"jsn":{"n":2}}]`, body)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), id+".json")
}

func TestExports_Excel(t *testing.T) {
	f := newFixture(t, 3, stream.DefaultOptions())
	id, info := f.export(t, `{"dataset":"films","limit":2,"format":"xlsx"}`)
	assert.Equal(t, "xlsx", info.Format)

	resp, body := f.get(t, "/exports/"+id+"/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), id+".xlsx")
	// xlsx is a zip archive.
	assert.True(t, strings.HasPrefix(body, "PK"))
}

func TestExports_Errors(t *testing.T) {
	f := newFixture(t, 1, stream.DefaultOptions())

	resp, _ := f.post(t, "/exports", `{"dataset":"users"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "/exports", `{"dataset":"query","query":"DELETE FROM junk"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "/exports", `{"dataset":"docs","format":"pdf"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "/query/stream", `{"query":"SELECT id FROM junk","format":"xlsx"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.get(t, "/exports/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	f := newFixture(t, 0, stream.DefaultOptions())

	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, _ = f.get(t, "/docstream/junk/1/0")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
