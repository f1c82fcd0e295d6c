package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/core/project"
	"AudioDeck/core/transport"
	"AudioDeck/model"
)

// 指标只注册一次，所有测试共用
var metricsRegistry = prometheus.NewRegistry()

type testEnv struct {
	hub      *EventHub
	registry *project.Registry
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := NewEventHub()
	go hub.Run()

	prefs := config.DefaultTransportPrefs()
	prefs.ProjectRate = 1000
	ctx, cancel := context.WithCancel(context.Background())
	registry := project.NewRegistry(ctx, project.Options{
		// 非实时引擎，流不会自行结束
		Engine:       engine.NewSimEngine(engine.Config{InputChannels: 2, BlockFrames: 10}),
		Prefs:        config.NewPreferences(prefs),
		Publishers:   []transport.StatePublisher{hub},
		Notifiers:    hub.NotifierFor,
		PollInterval: 5 * time.Millisecond,
	})

	transport.RegisterMetrics(metricsRegistry)

	t.Cleanup(func() {
		cancel()
		registry.Wait()
		hub.Stop()
	})
	return &testEnv{hub: hub, registry: registry, router: NewRouter(NewProjectHandler(registry, hub), metricsRegistry)}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createProject(t *testing.T, withAudio bool) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{Name: "demo"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var info model.ProjectInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))

	if withAudio {
		rec = e.do(t, http.MethodPost, "/api/projects/"+info.ID+"/tracks",
			model.CreateTrackRequest{Kind: model.TrackKindWave, Duration: 2, Selected: true})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	return info.ID
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) model.TransportSnapshot {
	t.Helper()
	var s model.TransportSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestProjectsListAndCreate(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, false)

	rec := e.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []model.ProjectInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)
	assert.Equal(t, "demo", infos[0].Name)
}

func TestUnknownProject(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/projects/missing/play", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, errorBody(t, rec))
}

func TestPlayWithoutTracks(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, false)

	rec := e.do(t, http.MethodPost, "/api/projects/"+id+"/play", PlayRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, transport.ErrNoAudioTracks.Error(), errorBody(t, rec))
}

func TestPlayStopAndRefusal(t *testing.T) {
	e := newTestEnv(t)
	a := e.createProject(t, true)
	b := e.createProject(t, true)

	rec := e.do(t, http.MethodPost, "/api/projects/"+a+"/play", PlayRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeSnapshot(t, rec)
	assert.True(t, s.Playing)
	assert.Greater(t, s.Token, 0)

	// 另一个项目不能控制当前流
	rec = e.do(t, http.MethodPost, "/api/projects/"+b+"/play", PlayRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/projects/"+b+"/transport", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeSnapshot(t, rec).CanStop)

	rec = e.do(t, http.MethodPost, "/api/projects/"+a+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeSnapshot(t, rec).Paused)

	rec = e.do(t, http.MethodPost, "/api/projects/"+a+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s = decodeSnapshot(t, rec)
	assert.False(t, s.Playing)
	assert.False(t, s.Paused)
	assert.Equal(t, 0, s.Token)
}

func TestPlayRegionModes(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, true)

	rec := e.do(t, http.MethodPost, "/api/projects/"+id+"/play-region", PlayRegionRequest{T0: 0.5, T1: 1, Mode: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 点区间的剪切预览被拒绝
	rec = e.do(t, http.MethodPost, "/api/projects/"+id+"/play-region", PlayRegionRequest{T0: 1, T1: 1, Mode: "cutPreview"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/projects/"+id+"/play-region", PlayRegionRequest{T0: 0.5, T1: 1, Mode: "looped"})
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeSnapshot(t, rec)
	assert.True(t, s.Looping)
	assert.Equal(t, "looped", s.LastPlayMode)
}

func TestRecordAndCancel(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, false)

	rec := e.do(t, http.MethodPost, "/api/projects/"+id+"/record/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/projects/"+id+"/record", RecordRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeSnapshot(t, rec).Recording)

	rec = e.do(t, http.MethodPost, "/api/projects/"+id+"/record/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeSnapshot(t, rec).Recording)

	// 取消的录音不留下轨道
	rec = e.do(t, http.MethodGet, "/api/projects/"+id+"/tracks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []model.TrackInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Empty(t, infos)
}

func TestSelectionAndPlayRegion(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, true)

	rec := e.do(t, http.MethodPut, "/api/projects/"+id+"/selection", SelectionRequest{T0: 1.5, T1: 0.5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.SelectedRegion{T0: 0.5, T1: 1.5}, decodeSnapshot(t, rec).Selection)

	rec = e.do(t, http.MethodPut, "/api/projects/"+id+"/play-region", PlayRegionUpdate{Start: 0.25, End: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	p, err := e.registry.Get(id)
	require.NoError(t, err)
	pr := p.View().PlayRegion()
	assert.True(t, pr.Active)
	assert.Equal(t, 0.25, pr.Start)
}

func TestPlayStopSelect(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, true)

	// 空闲时开始播放
	rec := e.do(t, http.MethodPost, "/api/projects/"+id+"/play-stop-select", PlayStopSelectRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeSnapshot(t, rec).Playing)

	// 播放时停止
	rec = e.do(t, http.MethodPost, "/api/projects/"+id+"/play-stop-select", PlayStopSelectRequest{Click: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeSnapshot(t, rec).Playing)
}

func TestCreateTrackValidation(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, false)

	rec := e.do(t, http.MethodPost, "/api/projects/"+id+"/tracks", model.CreateTrackRequest{Kind: "video"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+id+"/tracks", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = e.do(t, http.MethodPost, "/api/projects/"+id+"/tracks", model.CreateTrackRequest{Kind: model.TrackKindWave, Channels: 2, Duration: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	var infos []model.TrackInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.True(t, infos[0].Leader)
	assert.Equal(t, infos[0].ID, infos[1].GroupID)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{transport.ErrRefused, http.StatusConflict},
		{transport.ErrBusy, http.StatusConflict},
		{transport.ErrNothingToPlay, http.StatusUnprocessableEntity},
		{transport.ErrCutPreviewUnavailable, http.StatusUnprocessableEntity},
		{transport.ErrStreamStartFailed, http.StatusServiceUnavailable},
		{transport.ErrRecordStartFailed, http.StatusServiceUnavailable},
		{project.ErrClosed, http.StatusServiceUnavailable},
		{project.ErrNotFound, http.StatusNotFound},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, true)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/projects/"+id+"/play", nil).Code)

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transport_stream_starts_total")
}

// readEvent 读取下一个指定类型的事件；一帧里可能合并了多条消息
func readEvent(t *testing.T, conn *websocket.Conn, typ string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal(line, &msg))
			if msg["type"] == typ {
				return msg
			}
		}
	}
	t.Fatalf("no %s event", typ)
	return nil
}

func TestEventStream(t *testing.T) {
	e := newTestEnv(t)
	id := e.createProject(t, true)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/projects/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readEvent(t, conn, model.EventTypeState)
	assert.Equal(t, id, first["projectId"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgTypePing}))
	readEvent(t, conn, MsgTypePong)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/projects/"+id+"/play", nil).Code)
	state := readEvent(t, conn, model.EventTypeState)
	data, ok := state["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, id, data["projectId"])
	assert.Equal(t, 1, e.hub.ClientCount(id))
}

func TestNotifierEvents(t *testing.T) {
	hub := NewEventHub()
	n := hub.NotifierFor("p1")
	n.ShowError("Error", "boom", "help")
	n.ShowWarning("DropoutDetected", "lost")
	n.SetStatus(transport.RateStatusField, "Actual Rate: 1000")

	require.Len(t, hub.broadcast, 3)
	var ev model.TransportEvent
	require.NoError(t, json.Unmarshal((<-hub.broadcast).message, &ev))
	assert.Equal(t, model.EventTypeError, ev.Type)
	assert.Equal(t, "help", ev.HelpPage)
	require.NoError(t, json.Unmarshal((<-hub.broadcast).message, &ev))
	assert.Equal(t, model.EventTypeWarning, ev.Type)
	require.NoError(t, json.Unmarshal((<-hub.broadcast).message, &ev))
	assert.Equal(t, model.EventTypeStatus, ev.Type)
	assert.Equal(t, "Actual Rate: 1000", ev.Message)
}
