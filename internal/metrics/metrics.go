package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dialcraft/callcoord/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Webhook ingest metrics
	EventsReceivedTotal   int64
	EventsProcessedTotal  int64
	EventsDuplicateTotal  int64
	EventProcessingErrors int64

	// Call lifecycle metrics
	CallsStartedTotal   int64
	CallsCompletedTotal int64
	CallsFailedTotal    int64
	ResultsCapturedTotal int64
	resultsByDisposition map[types.Disposition]int64
	cxScoreSum           int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	BroadcastsTotal              int64
	activeConnections            int64

	// HTTP metrics
	httpRequestsTotal map[string]map[int]int64 // endpoint -> status -> count

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			resultsByDisposition: make(map[types.Disposition]int64),
			httpRequestsTotal:    make(map[string]map[int]int64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// RecordEventReceived increments the events received counter
func (m *Metrics) RecordEventReceived() {
	m.mu.Lock()
	m.EventsReceivedTotal++
	m.mu.Unlock()
}

// RecordEventProcessed increments the events processed counter
func (m *Metrics) RecordEventProcessed() {
	m.mu.Lock()
	m.EventsProcessedTotal++
	m.mu.Unlock()
}

// RecordEventDuplicate increments the duplicate-delivery counter
func (m *Metrics) RecordEventDuplicate() {
	m.mu.Lock()
	m.EventsDuplicateTotal++
	m.mu.Unlock()
}

// RecordEventError increments the event processing error counter
func (m *Metrics) RecordEventError() {
	m.mu.Lock()
	m.EventProcessingErrors++
	m.mu.Unlock()
}

// RecordCallStarted increments the started-call counter
func (m *Metrics) RecordCallStarted() {
	m.mu.Lock()
	m.CallsStartedTotal++
	m.mu.Unlock()
}

// RecordCallEnded records a terminal event, failed or clean
func (m *Metrics) RecordCallEnded(failed bool) {
	m.mu.Lock()
	if failed {
		m.CallsFailedTotal++
	} else {
		m.CallsCompletedTotal++
	}
	m.mu.Unlock()
}

// RecordResult records a captured outcome
func (m *Metrics) RecordResult(disposition types.Disposition, cxScore int) {
	m.mu.Lock()
	m.ResultsCapturedTotal++
	m.resultsByDisposition[disposition]++
	m.cxScoreSum += int64(cxScore)
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordBroadcast increments the broadcast counter
func (m *Metrics) RecordBroadcast() {
	m.mu.Lock()
	m.BroadcastsTotal++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("callcoord_uptime_seconds", time.Since(m.startTime).Seconds())

		// Ingest metrics
		write("callcoord_events_received_total", m.EventsReceivedTotal)
		write("callcoord_events_processed_total", m.EventsProcessedTotal)
		write("callcoord_events_duplicate_total", m.EventsDuplicateTotal)
		write("callcoord_event_processing_errors_total", m.EventProcessingErrors)

		// Call metrics
		write("callcoord_calls_started_total", m.CallsStartedTotal)
		write("callcoord_calls_completed_total", m.CallsCompletedTotal)
		write("callcoord_calls_failed_total", m.CallsFailedTotal)
		write("callcoord_results_captured_total", m.ResultsCapturedTotal)

		if m.ResultsCapturedTotal > 0 {
			write("callcoord_cx_score_avg", float64(m.cxScoreSum)/float64(m.ResultsCapturedTotal))
		}

		// Results by disposition
		for disposition, count := range m.resultsByDisposition {
			write("callcoord_results_by_disposition", count, "disposition", string(disposition))
		}

		// WebSocket metrics
		write("callcoord_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("callcoord_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("callcoord_websocket_active_connections", m.activeConnections)
		write("callcoord_broadcasts_total", m.BroadcastsTotal)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("callcoord_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
