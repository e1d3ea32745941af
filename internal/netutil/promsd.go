package netutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type httpSDHandler struct {
	listenIP string
	ports    []uint64
}

func (h *httpSDHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `[{"targets": [`)
	for i, port := range h.ports {
		if i != 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, `"%s:%d"`, h.listenIP, port)
	}
	fmt.Fprint(w, `], "labels": {"__meta_clusterstatsd_job": "clusterstatsd"}}]`)
}

// StartPromSDListener serves a Prometheus HTTP service-discovery document
// listing every cluster's metrics port, on a background goroutine bound to
// ctx's lifetime.
func StartPromSDListener(ctx context.Context, listenAddr string, sdPort uint64, targetPorts []uint64, logger *slog.Logger) error {
	if listenAddr == "" {
		addr, err := FindExternalAddr()
		if err != nil {
			return fmt.Errorf("finding external address for prometheus SD: %w", err)
		}
		listenAddr = addr
	}

	mux := http.NewServeMux()
	mux.Handle("/", &httpSDHandler{listenIP: listenAddr, ports: targetPorts})

	addr := fmt.Sprintf(":%d", sdPort)
	listener, err := Listen(ctx, addr, logger)
	if err != nil {
		return fmt.Errorf("creating listener for prometheus HTTP SD: %w", err)
	}

	server := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger != nil {
				logger.Error("prometheus HTTP SD listener exited", "error", err)
			}
		}
	}()

	if logger != nil {
		logger.Info("started prometheus HTTP SD listener", "address", addr)
	}
	return nil
}
