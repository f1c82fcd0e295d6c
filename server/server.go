package server

import (
	"context"
	"net/http"
	"time"

	"AudioDeck/core/project"
	"AudioDeck/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// corsMiddleware 允许浏览器跨域访问
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter 注册全部路由；gatherer 为空时使用默认注册表
func NewRouter(h *ProjectHandler, gatherer prometheus.Gatherer) *mux.Router {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api/projects").Subrouter()
	api.HandleFunc("", h.ListProjectsHandler).Methods(http.MethodGet)
	api.HandleFunc("", h.CreateProjectHandler).Methods(http.MethodPost)

	// 传输控制
	api.HandleFunc("/{id}/transport", h.TransportHandler).Methods(http.MethodGet)
	api.HandleFunc("/{id}/play", h.PlayHandler).Methods(http.MethodPost)
	api.HandleFunc("/{id}/play-region", h.PlayRegionHandler).Methods(http.MethodPost)
	api.HandleFunc("/{id}/stop", h.StopHandler).Methods(http.MethodPost)
	api.HandleFunc("/{id}/pause", h.PauseHandler).Methods(http.MethodPost)
	api.HandleFunc("/{id}/record", h.RecordHandler).Methods(http.MethodPost)
	api.HandleFunc("/{id}/record/cancel", h.CancelRecordHandler).Methods(http.MethodPost)
	api.HandleFunc("/{id}/play-stop-select", h.PlayStopSelectHandler).Methods(http.MethodPost)

	// 视图
	api.HandleFunc("/{id}/selection", h.SelectionHandler).Methods(http.MethodPut)
	api.HandleFunc("/{id}/play-region", h.SetPlayRegionHandler).Methods(http.MethodPut)

	// 轨道
	api.HandleFunc("/{id}/tracks", h.ListTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/{id}/tracks", h.CreateTrackHandler).Methods(http.MethodPost)

	router.HandleFunc("/ws/projects/{id}", h.EventsHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

// Server HTTP 服务
type Server struct {
	httpServer *http.Server
	hub        *EventHub
}

// New 创建服务，hub 由调用方创建以便作为项目的状态发布者
func New(addr string, registry *project.Registry, hub *EventHub, gatherer prometheus.Gatherer) *Server {
	handler := NewProjectHandler(registry, hub)
	return &Server{
		hub: hub,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(handler, gatherer),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start 启动服务并阻塞到 ctx 结束，随后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run()
	defer s.hub.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
