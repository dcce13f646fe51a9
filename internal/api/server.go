package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Server HTTP-сервер с остановкой по контексту.
type Server struct {
	http  *http.Server
	grace time.Duration
}

// NewServer создаёт сервер на addr.
func NewServer(addr string, h http.Handler, readTimeout, writeTimeout, grace time.Duration) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout,
			WriteTimeout:      writeTimeout,
		},
		grace: grace,
	}
}

// Start слушает порт до отмены ctx, затем дожидается текущих запросов
// не дольше grace.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.http.Addr).Info("HTTP API запущен")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("HTTP API останавливается...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("остановка HTTP API: %w", err)
	}
	return nil
}
