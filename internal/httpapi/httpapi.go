// Package httpapi is the event ingestion HTTP surface: validates incoming
// domain event payloads and appends them to the durable log (spec.md §6).
// It owns no business logic beyond validation and log placement — the
// event processor (C7) does everything downstream of the log.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventlog"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
)

// ingestRequest is the POST /events request body.
type ingestRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Server wires the ingestion routes onto a chi router.
type Server struct {
	log      eventlog.Log
	topic    string
	logger   logging.Logger
	router   chi.Router
}

// New builds a Server. log is the durable log events are appended to;
// topic is the domain-event topic name.
func New(log eventlog.Log, topic string, logger logging.Logger) *Server {
	s := &Server{log: log, topic: topic, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Post("/events", s.handleIngest)
	r.Get("/health", s.handleHealth)

	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"details": fmt.Sprintf("malformed JSON body: %v", err),
		})
		return
	}

	eventID := uuid.New()
	record := map[string]interface{}{
		"metadata": map[string]interface{}{
			"event_id":    eventID,
			"event_type":  req.EventType,
			"occurred_at": time.Now().UTC().Format(time.RFC3339),
			"version":     1,
		},
		"payload": req.Payload,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"details": fmt.Sprintf("encoding event record: %v", err),
		})
		return
	}

	event, err := domainevent.Parse(raw)
	if err != nil {
		switch {
		case errors.Is(err, domainevent.ErrUnknownType):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"status":    "error",
				"details":   err.Error(),
				"supported": domainevent.KnownTypes(),
			})
		case errors.Is(err, domainevent.ErrInvalidPayload), errors.Is(err, domainevent.ErrMalformed):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status":  "error",
				"details": err.Error(),
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status":  "error",
				"details": err.Error(),
			})
		}
		return
	}

	partitionKey := event.UserID().String()
	if err := s.log.Append(r.Context(), s.topic, eventlog.Record{Key: partitionKey, Value: raw}); err != nil {
		s.logger.Error("appending event to durable log failed", "event_id", eventID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"details": "durable log unavailable",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"event_id": eventID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// A cheap reachability probe: append a small "{}" health-check record
	// to a dedicated topic. If the log rejects it, the surface is unhealthy
	// by the same definition clients depend on for actual ingestion.
	if err := s.log.Append(r.Context(), healthProbeTopic(s.topic), eventlog.Record{Key: "health", Value: []byte("{}")}); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func healthProbeTopic(eventsTopic string) string {
	return eventsTopic + ".health"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
