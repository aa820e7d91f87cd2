package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/pkg/logger"
)

// Server 负责暴露智能体的 REST 接口。
type Server struct {
	addr        string
	metricsPath string
	router      chi.Router
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option 定义服务的可选配置。
type Option func(*Server)

// WithMetrics 启用请求指标与指标端点。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMetricsPath 修改指标端点路径，默认 /metrics。
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.metricsPath = path
		}
	}
}

// NewServer 构造 API 服务实例，并注册健康检查与指标端点。
func NewServer(addr, agentName string, opts ...Option) *Server {
	s := &Server{addr: addr, metricsPath: "/metrics"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logger.Named("api").With(slog.String("agent", agentName))

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent": agentName})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())
	}
	s.router = r
	return s
}

// Post 注册 POST 路由。
func (s *Server) Post(pattern string, h http.HandlerFunc) {
	s.router.Post(pattern, h)
}

// Handler 返回根路由，便于测试。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务已启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP 服务关闭超时", slog.Any("error", err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// observe 记录请求耗时与状态码，路由取 chi 匹配到的模式。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTPRequest(route, r.Method, status, time.Since(start))
		s.logger.Debug("处理请求",
			slog.String("route", route),
			slog.Int("status", status),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type errorResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message"`
}

// Endpoint 把强类型处理函数包装为 JSON 接口，请求体无法解析时返回 400。
func Endpoint[Req any, Resp any](fn func(ctx context.Context, req Req) Resp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{ErrorMessage: "invalid request body: " + err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, fn(r.Context(), req))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
