package ingest

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alertengine/internal/domain"
)

type sinkFake struct {
	events []domain.Event
	err    error
}

func (s *sinkFake) Push(event domain.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPHandlerAcceptsEvent(t *testing.T) {
	t.Parallel()

	sink := &sinkFake{}
	handler := NewHTTPHandler(sink, 1<<20, testLogger())

	body := `{"source":"compliance","fields":{"risk_score":85,"region":"emea","audited":false}}`
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body)))

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected one pushed event, got %d", len(sink.events))
	}
	event := sink.events[0]
	if event.Source != "compliance" {
		t.Fatalf("expected source to survive decode, got %q", event.Source)
	}
	if score, ok := event.Fields["risk_score"]; !ok {
		t.Fatal("expected risk_score field")
	} else if got, ok := score.AsNumber(); !ok || got != 85 {
		t.Fatalf("expected numeric 85, got %+v", score)
	}
}

func TestHTTPHandlerRejectsNonPost(t *testing.T) {
	t.Parallel()

	handler := NewHTTPHandler(&sinkFake{}, 1<<20, testLogger())
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error body, got content type %q", ct)
	}
}

func TestHTTPHandlerRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "broken json", body: `{"fields":`},
		{name: "no fields", body: `{"source":"x"}`},
		{name: "bad confidence", body: `{"confidence":1.5,"fields":{"risk_score":1}}`},
	}
	for _, testCase := range cases {
		sink := &sinkFake{}
		handler := NewHTTPHandler(sink, 1<<20, testLogger())
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(testCase.body)))

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", testCase.name, recorder.Code)
		}
		if len(sink.events) != 0 {
			t.Fatalf("%s: expected no pushed events", testCase.name)
		}
	}
}

func TestHTTPHandlerEnforcesBodyLimit(t *testing.T) {
	t.Parallel()

	handler := NewHTTPHandler(&sinkFake{}, 16, testLogger())
	body := `{"fields":{"risk_score":` + strings.Repeat("9", 64) + `}}`
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body)))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", recorder.Code)
	}
}

func TestHTTPHandlerReportsSinkFailure(t *testing.T) {
	t.Parallel()

	sink := &sinkFake{err: errors.New("queue full")}
	handler := NewHTTPHandler(sink, 1<<20, testLogger())
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"fields":{"risk_score":1}}`)))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
}
