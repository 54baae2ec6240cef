package web

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/types"
)

// basicAuthMiddleware 检查 user 和 password 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	// 如果用户名或密码未设置，则不启用认证，直接返回原始处理器
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewMux builds the routes of the prober service.
func NewMux(cfg types.WebConf, runner BatchRunner, hub *Hub) *http.ServeMux {
	handler := NewHandler(runner)
	mux := http.NewServeMux()

	mux.Handle("/api/check", basicAuthMiddleware(http.HandlerFunc(handler.HandleCheck), cfg.User, cfg.Password))

	// --- 公开接口 ---
	mux.HandleFunc("/api/status", handler.HandleStatus)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})
	return mux
}

// StartServer starts the HTTP service in the background. The returned server is
// used for shutdown; nil means the service is disabled.
func StartServer(wg *sync.WaitGroup, cfg types.WebConf, runner BatchRunner, hub *Hub) (*http.Server, error) {
	l := logger.WithComponent("Prober/Web")
	if cfg.Port <= 0 {
		l.Info().Msg("Web service is disabled (port is 0 or not set).")
		return nil, nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: NewMux(cfg, runner, hub)}
	l.Info().Msgf("Web service is listening on http://%s", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			l.Error().Err(err).Msg("Web server error.")
		}
		l.Info().Msg("Web server stopped.")
	}()
	return srv, nil
}
