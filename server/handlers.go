package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"AudioDeck/core/project"
	"AudioDeck/core/transport"
	"AudioDeck/logger"
	"AudioDeck/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const commandTimeout = 5 * time.Second

// errInvalidRequest 请求参数错误
var errInvalidRequest = errors.New("invalid request")

// ProjectHandler 项目与传输控制的 HTTP 处理器
type ProjectHandler struct {
	registry *project.Registry
	hub      *EventHub
	upgrader websocket.Upgrader
}

// NewProjectHandler 创建处理器
func NewProjectHandler(registry *project.Registry, hub *EventHub) *ProjectHandler {
	return &ProjectHandler{
		registry: registry,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ========== 请求体 ==========

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// PlayRequest 播放当前播放区间
type PlayRequest struct {
	Looped     bool `json:"looped"`
	CutPreview bool `json:"cutPreview"`
}

// PlayRegionRequest 播放指定区间
type PlayRegionRequest struct {
	T0             float64 `json:"t0"`
	T1             float64 `json:"t1"`
	Mode           string  `json:"mode"`
	Backwards      bool    `json:"backwards"`
	PlayWhiteSpace bool    `json:"playWhiteSpace"`
}

// RecordRequest 开始录音
type RecordRequest struct {
	AltAppearance bool `json:"altAppearance"`
}

// PlayStopSelectRequest 播放/停止并设置光标
type PlayStopSelectRequest struct {
	Click bool `json:"click"`
	Shift bool `json:"shift"`
}

// SelectionRequest 设置选区
type SelectionRequest struct {
	T0 float64 `json:"t0"`
	T1 float64 `json:"t1"`
}

// PlayRegionUpdate 设置播放区间
type PlayRegionUpdate struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ========== 工具函数 ==========

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

// statusFor 把传输错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, project.ErrNotFound):
		return http.StatusNotFound
	case transport.IsRefusal(err):
		return http.StatusConflict
	case errors.Is(err, transport.ErrNothingToPlay),
		errors.Is(err, transport.ErrNoAudioTracks),
		errors.Is(err, transport.ErrCutPreviewUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transport.ErrStreamStartFailed),
		errors.Is(err, transport.ErrRecordStartFailed),
		errors.Is(err, project.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Warn("请求处理失败", logger.Int("status", status), logger.ErrorField(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

func (h *ProjectHandler) project(r *http.Request) (*project.Project, error) {
	return h.registry.Get(mux.Vars(r)["id"])
}

// run 在项目的控制 goroutine 上执行 fn，成功时返回最新的传输状态
func (h *ProjectHandler) run(w http.ResponseWriter, r *http.Request, fn func(p *project.Project, m *transport.Manager) error) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	err = p.Do(ctx, func(m *transport.Manager) error { return fn(p, m) })
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Transport().Snapshot())
}

// ========== 项目 ==========

// ListProjectsHandler 列出项目
func (h *ProjectHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects := h.registry.List()
	infos := make([]model.ProjectInfo, 0, len(projects))
	for _, p := range projects {
		infos = append(infos, p.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

// CreateProjectHandler 创建项目
func (h *ProjectHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p := h.registry.Create(req.Name)
	writeJSON(w, http.StatusCreated, p.Info())
}

// TransportHandler 获取传输状态
func (h *ProjectHandler) TransportHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Transport().Snapshot())
}

// ========== 传输控制 ==========

// PlayHandler 播放当前播放区间
func (h *ProjectHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, func(_ *project.Project, m *transport.Manager) error {
		return m.PlayCurrentRegion(req.Looped, req.CutPreview)
	})
}

// PlayRegionHandler 播放指定区间
func (h *ProjectHandler) PlayRegionHandler(w http.ResponseWriter, r *http.Request) {
	var req PlayRegionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := transport.ParsePlayMode(req.Mode)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	h.run(w, r, func(_ *project.Project, m *transport.Manager) error {
		opts := m.DefaultPlayOptions()
		if mode == transport.CutPreviewPlay {
			opts.Envelope = nil
		}
		_, err := m.PlayPlayRegion(model.NewSelectedRegion(req.T0, req.T1), opts, mode, req.Backwards, req.PlayWhiteSpace)
		return err
	})
}

// StopHandler 停止
func (h *ProjectHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(_ *project.Project, m *transport.Manager) error {
		return m.Stop(true)
	})
}

// PauseHandler 切换暂停
func (h *ProjectHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(_ *project.Project, m *transport.Manager) error {
		m.Pause()
		return nil
	})
}

// RecordHandler 开始录音
func (h *ProjectHandler) RecordHandler(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, func(_ *project.Project, m *transport.Manager) error {
		return m.OnRecord(req.AltAppearance)
	})
}

// CancelRecordHandler 取消录音
func (h *ProjectHandler) CancelRecordHandler(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(_ *project.Project, m *transport.Manager) error {
		return m.AbortRecording()
	})
}

// PlayStopSelectHandler 正在播放时停止并把光标放到播放头，否则开始播放
func (h *ProjectHandler) PlayStopSelectHandler(w http.ResponseWriter, r *http.Request) {
	var req PlayStopSelectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, func(_ *project.Project, m *transport.Manager) error {
		if m.DoPlayStopSelect(req.Click, req.Shift) {
			return m.Stop(true)
		}
		return m.PlayStopSelect()
	})
}

// ========== 视图 ==========

// SelectionHandler 设置选区
func (h *ProjectHandler) SelectionHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, func(p *project.Project, _ *transport.Manager) error {
		p.View().SetSelection(model.NewSelectedRegion(req.T0, req.T1))
		return nil
	})
}

// SetPlayRegionHandler 设置播放区间
func (h *ProjectHandler) SetPlayRegionHandler(w http.ResponseWriter, r *http.Request) {
	var req PlayRegionUpdate
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, func(p *project.Project, _ *transport.Manager) error {
		p.View().SetPlayRegion(req.Start, req.End)
		return nil
	})
}

// ========== 轨道 ==========

// ListTracksHandler 列出轨道
func (h *ProjectHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Tracks().Infos())
}

// CreateTrackHandler 创建轨道
func (h *ProjectHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTrackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	var created []*model.Track
	err = p.Do(ctx, func(*transport.Manager) error {
		var addErr error
		created, addErr = p.AddTracks(req)
		if addErr != nil {
			return fmt.Errorf("%w: %v", errInvalidRequest, addErr)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	infos := make([]model.TrackInfo, 0, len(created))
	for _, t := range created {
		infos = append(infos, t.Info())
	}
	writeJSON(w, http.StatusCreated, infos)
}

// ========== WebSocket ==========

// EventsHandler 项目事件流
func (h *ProjectHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.project(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := NewClient(h.hub, conn, p.ID())
	h.hub.Register(client)

	// 连接后先推送一次当前状态
	h.hub.PublishState(p.Transport().Snapshot())

	go client.WritePump()
	go client.ReadPump(context.Background())
}
