package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jiecolao/pyquest-game/internal/config"
	"github.com/jiecolao/pyquest-game/internal/core/event"
	"github.com/jiecolao/pyquest-game/internal/data"
	"github.com/jiecolao/pyquest-game/internal/persist"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/system"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memJournal struct {
	mu   sync.Mutex
	runs []scripting.Result
}

func (j *memJournal) Record(_ uint64, res scripting.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, res)
}

type fakeRuns struct {
	mu   sync.Mutex
	runs []persist.RunRecord
	err  error
	got  int
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]persist.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = limit
	return f.runs, f.err
}

func (f *fakeRuns) limit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func (j *memJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.runs)
}

type env struct {
	srv     *Server
	http    *httptest.Server
	tracker *watch.Tracker
	journal *memJournal
}

// newEnv starts the API. With loop set, a goroutine drains the job queue
// through a ScriptSystem the way the game loop does.
func newEnv(t *testing.T, loop bool, queueSize int, runs RunReader) *env {
	t.Helper()
	log := zap.NewNop()
	cfg := config.Defaults()
	cfg.Web.RunTimeout = 2 * time.Second
	if !loop {
		cfg.Web.RunTimeout = 50 * time.Millisecond
	}

	tr := watch.NewTracker(log)
	rt, err := scripting.NewRuntime(tr, cfg.Script, log)
	require.NoError(t, err)
	q := scripting.NewQueue(queueSize)
	examples, err := data.ParseExampleTable([]byte("- name: hp\n  dialect: python\n  source: Player.Health = 1\n"))
	require.NoError(t, err)

	e := &env{tracker: tr, journal: &memJournal{}}
	deps := Deps{
		Config:   cfg.Web,
		Log:      log,
		Tracker:  tr,
		Runtime:  rt,
		Queue:    q,
		Examples: examples,
		Journal:  e.journal,
	}
	if runs != nil {
		deps.Runs = runs
	}
	e.srv = NewServer(deps)
	e.http = httptest.NewServer(e.srv.Handler())
	t.Cleanup(func() {
		e.srv.Hub().CloseAll()
		e.http.Close()
	})

	if loop {
		bus := event.NewBus()
		scripts := system.NewScriptSystem(q, rt, tr, bus, e.journal, 4, log)
		scripts.OnClear(e.srv.Hub().Forget)
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			tick := time.NewTicker(5 * time.Millisecond)
			defer tick.Stop()
			for {
				select {
				case <-tick.C:
					scripts.Update(0)
				case <-stop:
					return
				}
			}
		}()
		t.Cleanup(func() {
			close(stop)
			<-done
		})
	}
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestValidateEndpoint(t *testing.T) {
	e := newEnv(t, false, 4, nil)

	resp, out := e.do(t, http.MethodPost, "/api/scripts/validate", scriptRequest{Source: "import os"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, out["ok"])
	assert.Contains(t, out["reason"], "import")

	_, out = e.do(t, http.MethodPost, "/api/scripts/validate", scriptRequest{Dialect: "js", Source: "let x = 1 + 2"})
	assert.Equal(t, true, out["ok"])

	resp, _ = e.do(t, http.MethodPost, "/api/scripts/validate", scriptRequest{Dialect: "ruby", Source: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = e.do(t, http.MethodPost, "/api/scripts/validate", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "invalid JSON")
}

func TestRunEndpoint(t *testing.T) {
	e := newEnv(t, true, 4, nil)

	resp, out := e.do(t, http.MethodPost, "/api/scripts/run", scriptRequest{
		Source: "Player.Health = 100\nPlayer.Mana = 50\nGame.Score = 1000\nprint('ok')",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["accepted"])
	assert.Equal(t, "ok\n", out["output"])
	assert.Equal(t, false, out["failed"])
	assert.Equal(t, "python", out["dialect"])

	assert.Len(t, e.tracker.Values(), 3)
	assert.Eventually(t, func() bool { return e.journal.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunEndpointReportsScriptErrors(t *testing.T) {
	e := newEnv(t, true, 4, nil)
	resp, out := e.do(t, http.MethodPost, "/api/scripts/run", scriptRequest{Dialect: "lua", Source: "undefined_function()"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["failed"])
	assert.Contains(t, out["output"], "Error:")
}

func TestRunEndpointRejects(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	resp, out := e.do(t, http.MethodPost, "/api/scripts/run", scriptRequest{Source: "import os\nprint('x')"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, out["accepted"])
	assert.Contains(t, out["reason"], "line 1")
	assert.Equal(t, 1, e.journal.count())
}

func TestRunEndpointTimeoutAndQueueFull(t *testing.T) {
	e := newEnv(t, false, 1, nil)

	resp, _ := e.do(t, http.MethodPost, "/api/scripts/run", scriptRequest{Source: "x = 1"})
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	// the first job is still queued
	resp, out := e.do(t, http.MethodPost, "/api/scripts/run", scriptRequest{Source: "x = 1"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, scripting.ErrQueueFull.Error(), out["error"])
}

func TestValueEndpoints(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	e.tracker.Dispatch("Player.Health", watch.Int(75))
	e.tracker.Dispatch("Enemy.Target", watch.Null())

	_, out := e.do(t, http.MethodGet, "/api/values", nil)
	values := out["values"].(map[string]any)
	assert.Equal(t, 75.0, values["Player.Health"])
	assert.Contains(t, values, "Enemy.Target")
	assert.Nil(t, values["Enemy.Target"])

	_, out = e.do(t, http.MethodGet, "/api/values/Player.Health", nil)
	assert.Equal(t, "Player.Health", out["path"])
	assert.Equal(t, true, out["set"])
	assert.Equal(t, 75.0, out["value"])

	_, out = e.do(t, http.MethodGet, "/api/values/Game.Score", nil)
	assert.Equal(t, false, out["set"])
	assert.Nil(t, out["value"])
}

func TestValuesSurviveNonFiniteNumbers(t *testing.T) {
	e := newEnv(t, true, 4, nil)
	resp, out := e.do(t, http.MethodPost, "/api/scripts/run", scriptRequest{
		Source: "Player.Health = 100\nPlayer.Mana = float('nan')",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, out["failed"])
	e.tracker.Dispatch("Enemy.Health", watch.Number(math.Inf(-1)))

	resp, out = e.do(t, http.MethodGet, "/api/values", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	values := out["values"].(map[string]any)
	assert.Equal(t, 100.0, values["Player.Health"])
	assert.Equal(t, "NaN", values["Player.Mana"])
	assert.Equal(t, "-Infinity", values["Enemy.Health"])
}

func TestWriteJSONReportsEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": math.NaN()})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out["error"], "encode response")
}

func TestClearEndpoints(t *testing.T) {
	e := newEnv(t, true, 4, nil)
	e.tracker.Dispatch("Player.Health", watch.Int(1))
	e.tracker.Dispatch("Player.Mana", watch.Int(2))

	resp, _ := e.do(t, http.MethodDelete, "/api/watches/Player.Mana", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Eventually(t, func() bool { return !e.tracker.Value("Player.Mana").IsSet() }, time.Second, 5*time.Millisecond)
	assert.True(t, e.tracker.Value("Player.Health").IsSet())

	resp, _ = e.do(t, http.MethodDelete, "/api/watches", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Eventually(t, func() bool { return len(e.tracker.Values()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestExamplesEndpoint(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	_, out := e.do(t, http.MethodGet, "/api/examples", nil)
	list := out["examples"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "hp", list[0].(map[string]any)["name"])
}

func TestRunsEndpoint(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	resp, _ := e.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	runs := &fakeRuns{runs: []persist.RunRecord{{Dialect: "lua", Accepted: true}}}
	e = newEnv(t, false, 4, runs)
	resp, out := e.do(t, http.MethodGet, "/api/runs?limit=5", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, runs.limit())
	assert.Len(t, out["runs"], 1)

	resp, _ = e.do(t, http.MethodGet, "/api/runs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	runs.mu.Lock()
	runs.err = errors.New("db down")
	runs.mu.Unlock()
	resp, _ = e.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 20, runs.limit())
}

func dialWS(t *testing.T, e *env) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketWatch(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	conn := dialWS(t, e)

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "watch", Path: "Player.Health"}))
	msg := readWS(t, conn)
	assert.Equal(t, "watching", msg["type"])
	assert.Equal(t, true, msg["watching"])
	require.Equal(t, 1, e.tracker.WatcherCount("Player.Health"))

	e.tracker.Dispatch("Player.Health", watch.Int(100))
	e.tracker.Dispatch("Player.Health", watch.Int(75))
	msg = readWS(t, conn)
	assert.Equal(t, "change", msg["type"])
	assert.Equal(t, 100.0, msg["new"])
	assert.Nil(t, msg["old"])
	assert.Equal(t, false, msg["old_set"])
	msg = readWS(t, conn)
	assert.Equal(t, 75.0, msg["new"])
	assert.Equal(t, 100.0, msg["old"])

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "get", Path: "Player.Health"}))
	msg = readWS(t, conn)
	assert.Equal(t, "value", msg["type"])
	assert.Equal(t, true, msg["set"])
	assert.Equal(t, 75.0, msg["value"])

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "unwatch", Path: "Player.Health"}))
	msg = readWS(t, conn)
	assert.Equal(t, false, msg["watching"])
	assert.Zero(t, e.tracker.WatcherCount("Player.Health"))
}

func TestWebSocketErrorsAndReset(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	conn := dialWS(t, e)

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "dance", Path: "Player.Health"}))
	assert.Equal(t, "error", readWS(t, conn)["type"])
	require.NoError(t, conn.WriteJSON(clientMessage{Op: "watch"}))
	assert.Contains(t, readWS(t, conn)["error"], "empty path")

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "watch", Path: "Game.Score"}))
	readWS(t, conn)
	e.tracker.UnwatchAll()
	e.srv.Hub().Forget("")
	msg := readWS(t, conn)
	assert.Equal(t, "reset", msg["type"])

	e.srv.Hub().OnRunFinished(event.RunFinished{Result: scripting.Result{Accepted: true, Output: "hi\n"}})
	msg = readWS(t, conn)
	assert.Equal(t, "run", msg["type"])
	assert.Equal(t, "hi\n", msg["run"].(map[string]any)["output"])
}

func TestWebSocketNonFiniteChange(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	conn := dialWS(t, e)
	require.NoError(t, conn.WriteJSON(clientMessage{Op: "watch", Path: "Player.Mana"}))
	readWS(t, conn)

	e.tracker.Dispatch("Player.Mana", watch.Number(math.NaN()))
	msg := readWS(t, conn)
	assert.Equal(t, "change", msg["type"])
	assert.Equal(t, "NaN", msg["new"])
}

func TestWebSocketBadMessageKeepsConnection(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	conn := dialWS(t, e)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":1}`)))
	msg := readWS(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["error"], "invalid message")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op" "watch"}`)))
	assert.Equal(t, "error", readWS(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(clientMessage{Op: "watch", Path: "Game.Score"}))
	assert.Equal(t, "watching", readWS(t, conn)["type"])
	assert.Equal(t, 1, e.srv.Hub().ClientCount())
}

func TestWebSocketDisconnectRemovesWatchers(t *testing.T) {
	e := newEnv(t, false, 4, nil)
	conn := dialWS(t, e)
	require.NoError(t, conn.WriteJSON(clientMessage{Op: "watch", Path: "Enemy.Health"}))
	readWS(t, conn)
	require.Equal(t, 1, e.srv.Hub().ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool {
		return e.tracker.WatcherCount("Enemy.Health") == 0 && e.srv.Hub().ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example")
	assert.True(t, originChecker(nil)(req))
	assert.False(t, originChecker([]string{"http://game.example"})(req))
	assert.True(t, originChecker([]string{"*"})(req))
	req.Header.Set("Origin", "http://game.example")
	assert.True(t, originChecker([]string{"http://game.example"})(req))
}
