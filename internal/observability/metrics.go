package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FixesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronda_fixes_received_total",
		Help: "Total de fixes GPS recibidos",
	})
	FixesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronda_fixes_accepted_total",
		Help: "Total de fixes aceptados por el validador",
	})
	FixesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ronda_fixes_rejected_total",
		Help: "Total de fixes rechazados, por motivo",
	}, []string{"reason"})
	ForceAccepts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronda_force_accepts_total",
		Help: "Fixes aceptados a la fuerza tras una racha de rechazos (solo display)",
	})
	CheckpointVisits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronda_checkpoint_visits_total",
		Help: "Total de checkpoints confirmados",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ronda_active_sessions",
		Help: "Sesiones de ronda actualmente en curso",
	})
	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronda_broadcast_drops_total",
		Help: "Ticks de posición descartados por cola llena o transporte caído",
	})
	PublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronda_publish_retries_total",
		Help: "Reintentos de publicación hacia transporte/broker",
	})
	PersistenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronda_persistence_errors_total",
		Help: "Errores al persistir sesiones/visitas (best effort)",
	})
	IngestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ronda_ingest_latency_seconds",
		Help:    "Latencia del pipeline de ingestión por fix",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveIngestLatency(start time.Time) {
	IngestLatency.Observe(time.Since(start).Seconds())
}

func StartMetricsServer(port string) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
	_ = http.ListenAndServe(":"+port, nil)
}
