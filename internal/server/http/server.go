package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corvidaelabs/oddbot/internal/gateway"
	"github.com/corvidaelabs/oddbot/internal/runtime"
	"github.com/corvidaelabs/oddbot/internal/server/http/controllers"
	eventsvc "github.com/corvidaelabs/oddbot/internal/services/events"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// Server is the HTTP front of oddbot: the /ws gateway, health, metrics and
// the JSON API.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger log.Logger
}

// New builds the router around an existing service and gateway.
func New(rt *runtime.Runtime, svc *eventsvc.Service, gw *gateway.Gateway, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.WithComponent("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)
	controllers.NewControllerRegistry(rt, svc, gw, logger).RegisterAllRoutes(r)

	return &Server{
		rt:     rt,
		srv:    &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is done. Request contexts derive
// from ctx, so open WebSocket sessions end on shutdown too.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug level once it completes.
func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				log.Str("method", r.Method),
				log.Str("path", r.URL.Path),
				log.Int("status", ww.Status()),
				log.Int("bytes", ww.BytesWritten()),
				log.Dur("elapsed", time.Since(start)),
				log.Str("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
