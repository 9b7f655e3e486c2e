package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"alertengine/internal/domain"
)

// EventSink receives decoded events from ingest transports.
// Params: decoded event payload.
// Returns: processing error.
type EventSink interface {
	Push(event domain.Event) error
}

// HTTPHandler decodes JSON events and forwards them to the sink.
// Params: sink receives validated events, max body limits payload size.
// Returns: HTTP handler for the ingest endpoint.
type HTTPHandler struct {
	sink        EventSink
	maxBodySize int64
	logger      *slog.Logger
}

// NewHTTPHandler creates the ingest HTTP handler.
// Params: sink, max request body size in bytes, and optional logger.
// Returns: configured handler.
func NewHTTPHandler(sink EventSink, maxBodySize int64, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize, logger: logger}
}

// ServeHTTP handles one incoming event request.
// Params: HTTP request/response writer pair.
// Returns: writes status code according to decode/push result.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writeError(writer, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	event, err := domain.DecodeEvent(body)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("http ingest decode failed", "remote", request.RemoteAddr, "error", err.Error())
		}
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sink.Push(event); err != nil {
		if h.logger != nil {
			h.logger.Error("http ingest push failed", "remote", request.RemoteAddr, "error", err.Error())
		}
		writeError(writer, http.StatusServiceUnavailable, "event intake unavailable")
		return
	}
	writer.WriteHeader(http.StatusAccepted)
}

// writeError writes one JSON error document.
// Params: writer, HTTP status, and message.
// Returns: nothing.
func writeError(writer http.ResponseWriter, status int, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(map[string]string{"error": message})
}
