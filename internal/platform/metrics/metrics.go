package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the sync server.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	activeRooms        prometheus.Gauge
	connectedClients   prometheus.Gauge
	roomWritesTotal    *prometheus.CounterVec
	roomWriteFailures  *prometheus.CounterVec
	coalescedSnapshots prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stroam_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stroam_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	activeRooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stroam_active_rooms",
		Help: "Number of rooms held by the registry",
	})
	connectedClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stroam_connected_clients",
		Help: "Number of open websocket sessions",
	})
	roomWritesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stroam_room_writes_total",
		Help: "Committed room writes by operation",
	}, []string{"op"})
	roomWriteFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stroam_room_write_failures_total",
		Help: "Rejected or failed room writes by operation",
	}, []string{"op"})
	coalescedSnapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stroam_coalesced_snapshots_total",
		Help: "Snapshots replaced before a slow subscriber read them",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		activeRooms,
		connectedClients,
		roomWritesTotal,
		roomWriteFailures,
		coalescedSnapshots,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		activeRooms:        activeRooms,
		connectedClients:   connectedClients,
		roomWritesTotal:    roomWritesTotal,
		roomWriteFailures:  roomWriteFailures,
		coalescedSnapshots: coalescedSnapshots,
	}
}

func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

func (m *Metrics) SetActiveRooms(n int) { m.activeRooms.Set(float64(n)) }

func (m *Metrics) ClientConnected() { m.connectedClients.Inc() }

func (m *Metrics) ClientDisconnected() { m.connectedClients.Dec() }

// ObserveWrite records the outcome of one room write.
func (m *Metrics) ObserveWrite(op string, err error) {
	if err != nil {
		m.roomWriteFailures.WithLabelValues(op).Inc()
		return
	}
	m.roomWritesTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) SnapshotCoalesced() { m.coalescedSnapshots.Inc() }

// Handler serves the registry. updateGauges runs before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
