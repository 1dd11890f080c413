// Package metrics 导出采集会话的 Prometheus 指标和状态接口.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Hara602/devreader/internal/model"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Status /status 返回的当前会话信息
type Status struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	File      string    `json:"file"`
	Bytes     uint64    `json:"bytes"`
	Sessions  int       `json:"sessions"`
	LastError string    `json:"last_error,omitempty"`
	Updated   time.Time `json:"updated"`
}

// Collector 实现 capture.Recorder
type Collector struct {
	registry     *prometheus.Registry
	sessions     *prometheus.CounterVec
	bytes        prometheus.Counter
	active       prometheus.Gauge
	sessionBytes prometheus.Gauge

	mu     sync.RWMutex
	status Status
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devreader_sessions_total",
				Help: "Capture sessions by final state",
			},
			[]string{"result"},
		),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devreader_bytes_captured_total",
			Help: "Bytes written to trace files",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devreader_session_active",
			Help: "1 while a device is being streamed",
		}),
		sessionBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devreader_session_bytes",
			Help: "Bytes captured by the current session",
		}),
	}
	c.registry.MustRegister(c.sessions, c.bytes, c.active, c.sessionBytes)
	return c
}

func (c *Collector) StateChanged(id string, state model.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == model.AwaitingDevice && c.status.SessionID != id {
		c.status = Status{SessionID: id, Sessions: c.status.Sessions + 1}
		c.sessionBytes.Set(0)
	}
	c.status.State = state.String()
	c.status.Updated = time.Now()
	if state == model.Streaming {
		c.active.Set(1)
	} else {
		c.active.Set(0)
	}
}

func (c *Collector) FileOpened(_ string, file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.File = file
}

func (c *Collector) BytesCaptured(n int) {
	c.bytes.Add(float64(n))
	c.sessionBytes.Add(float64(n))
	c.mu.Lock()
	c.status.Bytes += uint64(n)
	c.mu.Unlock()
}

func (c *Collector) SessionEnded(res model.SessionResult) {
	c.sessions.WithLabelValues(res.State.String()).Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = res.State.String()
	if res.Err != nil {
		c.status.LastError = res.Err.Error()
	}
}

func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Router /metrics, /health, /status
func (c *Collector) Router() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c.Status())
	}).Methods("GET")
	return router
}

// Serve 阻塞直到 ctx 结束
func (c *Collector) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      c.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
