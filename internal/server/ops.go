package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/scheduler"
)

// OpsServer exposes the scheduler's operational surface: Prometheus
// metrics, status, analytics, and out-of-band cycle triggering.
type OpsServer struct {
	server *http.Server
	port   int
	sched  *scheduler.Scheduler
}

// NewOpsServer creates an ops server bound to a scheduler.
func NewOpsServer(port int, sched *scheduler.Scheduler) *OpsServer {
	return &OpsServer{port: port, sched: sched}
}

// Setup registers the Prometheus collectors and HTTP routes.
func (o *OpsServer) Setup() error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	o.sched.RegisterMetrics(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", o.handleStatus)
	mux.HandleFunc("/analytics", o.handleAnalytics)
	mux.HandleFunc("/cycles/", o.handleTrigger)

	o.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", o.port),
		Handler: mux,
	}
	return nil
}

// Start begins serving on the configured port.
func (o *OpsServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("ops server listening on port %d", o.port)
		if err := o.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("ops server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the ops server.
func (o *OpsServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down ops server...")
	if err := o.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("ops server stopped")
	return nil
}

func (o *OpsServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, o.sched.GetStatus())
}

func (o *OpsServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid window: %v", err), http.StatusBadRequest)
			return
		}
		window = parsed
	}
	writeJSON(w, http.StatusOK, o.sched.GetAnalytics(window))
}

func (o *OpsServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cycleType := strings.TrimPrefix(r.URL.Path, "/cycles/")
	res, err := o.sched.TriggerCycle(r.Context(), scheduler.CycleType(cycleType))
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to encode response: %v", err)
	}
}
