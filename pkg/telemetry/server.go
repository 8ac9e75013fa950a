package telemetry

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server exports prometheus metrics and, optionally, pprof profiles over
// HTTP.
type Server struct {
	server *http.Server
	name   string
}

// NewMetricsServer creates a prometheus text format HTTP metrics server
func NewMetricsServer(listenAddr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{server: &http.Server{Addr: listenAddr, Handler: mux}, name: "prometheus"}
}

// NewProfileServer creates a server exposing the pprof handlers
func NewProfileServer(listenAddr string) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return &Server{server: &http.Server{Addr: listenAddr, Handler: mux}, name: "pprof"}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen serves until the passed context is completed.
func (s *Server) Listen(ctx context.Context) {
	go func() {
		log.Infof("started %s listener %s", s.name, s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("error starting %s http server: %s", s.name, err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		log.Infof("stopping %s listener", s.name)
		s.server.Shutdown(ctx)
	}()
}
