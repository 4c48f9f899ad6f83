package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PullService is a service that supports the Prometheus pull method.
type PullService struct {
	server *http.Server
	log    logrus.FieldLogger
}

// NewPullService creates a new Prometheus pull service listening on addr.
func NewPullService(addr string, log logrus.FieldLogger) *PullService {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &PullService{
		server: &http.Server{
			Addr:           addr,
			Handler:        mux,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		log: log.WithField("module", "metrics"),
	}
}

// Run serves metrics until ctx is cancelled.
func (s *PullService) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.server.Addr).Info("Serving prometheus metrics")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
