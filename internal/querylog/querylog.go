// Package querylog is an optional fire-and-forget event sink: one JSON
// event per completed POST /graphql request, published to Kafka when a
// broker is configured.
package querylog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/gratheon/graphql-gateway/internal/auth"
)

const topic = "gateway.query_log"

// Sink publishes completed-request events. A nil *Sink is valid and a no-op,
// matching the "optional" nature of this component.
type Sink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// New builds a Sink writing to brokerURL, or returns nil if brokerURL is
// empty (kafkaBrokerUrl is an optional config option).
func New(brokerURL string) *Sink {
	if brokerURL == "" {
		return nil
	}

	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokerURL),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			Async:        true,
			WriteTimeout: 2 * time.Second,
		},
		logger: slog.Default().With("component", "querylog"),
	}
}

type event struct {
	RequestID      string `json:"requestId"`
	Path           string `json:"path"`
	Method         string `json:"method"`
	OperationName  string `json:"operationName,omitempty"`
	UserID         string `json:"userId,omitempty"`
	Anonymous      bool   `json:"anonymous"`
	Error          string `json:"error,omitempty"`
	DurationMs     int64  `json:"durationMs"`
	SubgraphFanout int    `json:"subgraphFanout"`
	Timestamp      int64  `json:"timestampMs"`
}

// Record publishes one event for a completed request. operationName is the
// top-level field name of the executed query, durationMs the wall-clock
// time spent handling the request, and subgraphFanout the number of
// distinct subgraphs the query plan dispatched to. It never blocks the
// caller on a slow broker beyond WriteTimeout, and never returns an error
// the caller must handle — logging failures are swallowed, matching the
// "optional collaborator" status of this component.
func (s *Sink) Record(r *http.Request, requestID string, identity auth.Context, operationName string, durationMs int64, subgraphFanout int, requestErr error, completedAtMs int64) {
	if s == nil {
		return
	}

	evt := event{
		RequestID:      requestID,
		Path:           r.URL.Path,
		Method:         r.Method,
		OperationName:  operationName,
		Anonymous:      identity.IsAnonymous(),
		DurationMs:     durationMs,
		SubgraphFanout: subgraphFanout,
		Timestamp:      completedAtMs,
	}
	if userID, ok := identity.UserID(); ok {
		evt.UserID = userID
	}
	if requestErr != nil {
		evt.Error = requestErr.Error()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("failed to marshal query-log event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{Value: payload}); err != nil {
		s.logger.Warn("failed to publish query-log event", "error", err)
	}
}

// Close flushes and closes the underlying Kafka writer.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.writer.Close()
}
