package mgmt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"alertengine/internal/analytics"
	"alertengine/internal/domain"
)

// Engine is the management-facing slice of the alerting manager.
// Params: rule CRUD, acknowledgment, analytics, and dry-run testing.
// Returns: operator surface contract.
type Engine interface {
	UpsertRule(rule domain.Rule) error
	RemoveRule(id string) bool
	ListRules() []domain.Rule
	ListActiveRules() []domain.Rule
	Acknowledge(id, userID string) bool
	Resolve(id string) bool
	Notification(id string) (domain.NotificationEvent, bool)
	Analytics(frame analytics.Timeframe) analytics.Report
	TestRule(ctx context.Context, id string, event domain.Event) ([]domain.NotificationEvent, error)
}

// Handler serves the operator management API.
// Params: engine facade, request body cap, and logger.
// Returns: HTTP handler mounted under /api/.
type Handler struct {
	engine      Engine
	maxBodySize int64
	logger      *slog.Logger
}

// NewHandler creates the management handler.
// Params: engine facade, max request body size, and logger.
// Returns: initialized handler.
func NewHandler(engine Engine, maxBodySize int64, logger *slog.Logger) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &Handler{engine: engine, maxBodySize: maxBodySize, logger: logger}
}

// Register mounts management routes on the mux.
// Params: serve mux.
// Returns: nothing.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rules", h.listRules)
	mux.HandleFunc("POST /api/rules", h.upsertRule)
	mux.HandleFunc("PUT /api/rules/{id}", h.putRule)
	mux.HandleFunc("DELETE /api/rules/{id}", h.removeRule)
	mux.HandleFunc("POST /api/rules/{id}/test", h.testRule)
	mux.HandleFunc("GET /api/notifications/{id}", h.getNotification)
	mux.HandleFunc("POST /api/notifications/{id}/ack", h.acknowledge)
	mux.HandleFunc("POST /api/notifications/{id}/resolve", h.resolve)
	mux.HandleFunc("GET /api/analytics", h.analytics)
}

// listRules lists installed rules; ?active=true narrows to active rules.
func (h *Handler) listRules(writer http.ResponseWriter, request *http.Request) {
	var listed []domain.Rule
	if strings.EqualFold(request.URL.Query().Get("active"), "true") {
		listed = h.engine.ListActiveRules()
	} else {
		listed = h.engine.ListRules()
	}
	writeJSON(writer, http.StatusOK, map[string]any{"rules": listed})
}

// upsertRule installs the rule carried in the request body.
func (h *Handler) upsertRule(writer http.ResponseWriter, request *http.Request) {
	rule, ok := h.decodeRule(writer, request)
	if !ok {
		return
	}
	if err := h.engine.UpsertRule(rule); err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"id": rule.ID})
}

// putRule installs the rule under the path id, overriding any body id.
func (h *Handler) putRule(writer http.ResponseWriter, request *http.Request) {
	rule, ok := h.decodeRule(writer, request)
	if !ok {
		return
	}
	rule.ID = request.PathValue("id")
	if err := h.engine.UpsertRule(rule); err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"id": rule.ID})
}

// removeRule deletes one rule by path id.
func (h *Handler) removeRule(writer http.ResponseWriter, request *http.Request) {
	id := request.PathValue("id")
	if !h.engine.RemoveRule(id) {
		writeJSON(writer, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// testRule dry-runs one rule against a synthetic event.
func (h *Handler) testRule(writer http.ResponseWriter, request *http.Request) {
	body, err := h.readBody(request)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	event, err := domain.DecodeEvent(body)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id := request.PathValue("id")
	created, err := h.engine.TestRule(request.Context(), id, event)
	if err != nil {
		writeJSON(writer, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(writer, http.StatusOK, map[string]any{
		"fired":         len(created) > 0,
		"notifications": created,
	})
}

// getNotification returns one ledger entry.
func (h *Handler) getNotification(writer http.ResponseWriter, request *http.Request) {
	notification, ok := h.engine.Notification(request.PathValue("id"))
	if !ok {
		writeJSON(writer, http.StatusNotFound, map[string]string{"error": "notification not found"})
		return
	}
	writeJSON(writer, http.StatusOK, notification)
}

// acknowledge marks one notification acknowledged by the request user.
func (h *Handler) acknowledge(writer http.ResponseWriter, request *http.Request) {
	body, err := h.readBody(request)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var payload struct {
		UserID string `json:"user_id"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	if strings.TrimSpace(payload.UserID) == "" {
		payload.UserID = "operator"
	}

	acknowledged := h.engine.Acknowledge(request.PathValue("id"), payload.UserID)
	if !acknowledged {
		writeJSON(writer, http.StatusNotFound, map[string]any{"acknowledged": false})
		return
	}
	writeJSON(writer, http.StatusOK, map[string]any{"acknowledged": true})
}

// resolve closes one notification.
func (h *Handler) resolve(writer http.ResponseWriter, request *http.Request) {
	if !h.engine.Resolve(request.PathValue("id")) {
		writeJSON(writer, http.StatusNotFound, map[string]any{"resolved": false})
		return
	}
	writeJSON(writer, http.StatusOK, map[string]any{"resolved": true})
}

// analytics returns one aggregated report for ?timeframe=day|week|month.
func (h *Handler) analytics(writer http.ResponseWriter, request *http.Request) {
	frame, err := analytics.ParseTimeframe(request.URL.Query().Get("timeframe"))
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(writer, http.StatusOK, h.engine.Analytics(frame))
}

// decodeRule reads and decodes one rule document from the request body.
// Params: response writer (for error replies) and request.
// Returns: rule and success flag; errors are already written on failure.
func (h *Handler) decodeRule(writer http.ResponseWriter, request *http.Request) (domain.Rule, bool) {
	body, err := h.readBody(request)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return domain.Rule{}, false
	}
	var rule domain.Rule
	if err := json.Unmarshal(body, &rule); err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return domain.Rule{}, false
	}
	return rule, true
}

// readBody reads the capped request body.
// Params: request.
// Returns: body bytes or read error.
func (h *Handler) readBody(request *http.Request) ([]byte, error) {
	request.Body = http.MaxBytesReader(nil, request.Body, h.maxBodySize)
	defer request.Body.Close()
	return io.ReadAll(request.Body)
}

// writeJSON writes one JSON response document.
// Params: writer, status code, and payload.
// Returns: nothing; encode failures are silently dropped.
func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}
