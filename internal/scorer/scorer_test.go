package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"alertengine/internal/domain"
)

func scoreCondition() domain.TriggerCondition {
	return domain.TriggerCondition{
		Field:      domain.FieldScoreDrop,
		Comparison: domain.CompareGreaterThan,
		Value:      domain.Number(5),
	}
}

func scoreEvent() domain.Event {
	return domain.Event{
		Source: "compliance-monitor",
		Fields: map[string]domain.TypedValue{
			"compliance_score_change": domain.Number(7),
		},
	}
}

func TestHTTPScorerScore(t *testing.T) {
	t.Parallel()

	var gotRequest scoreRequest
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", request.Method)
		}
		if err := json.NewDecoder(request.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(Result{Confidence: 0.9, Reasoning: "sharp drop"})
	}))
	defer server.Close()

	s := NewHTTPScorer(server.URL, 5, map[string]string{"X-Auth": "token"}, nil)
	confidence, err := s.Score(context.Background(), scoreCondition(), scoreEvent())
	if err != nil {
		t.Fatalf("expected score, got error %v", err)
	}
	if confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", confidence)
	}
	if gotRequest.Field != "score_drop" || gotRequest.Comparison != "greater_than" {
		t.Fatalf("expected condition in request, got %+v", gotRequest)
	}
	if gotRequest.Source != "compliance-monitor" {
		t.Fatalf("expected event source forwarded, got %+v", gotRequest)
	}
}

func TestHTTPScorerErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		http.Error(writer, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewHTTPScorer(server.URL, 5, nil, nil)
	if _, err := s.Score(context.Background(), scoreCondition(), scoreEvent()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestHTTPScorerMissingURL(t *testing.T) {
	t.Parallel()

	s := NewHTTPScorer("", 5, nil, nil)
	if _, err := s.Score(context.Background(), scoreCondition(), scoreEvent()); err == nil {
		t.Fatal("expected error for unconfigured url")
	}
}

func TestFixedScorer(t *testing.T) {
	t.Parallel()

	confidence, err := Fixed{Confidence: 0.42}.Score(context.Background(), scoreCondition(), scoreEvent())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if confidence != 0.42 {
		t.Fatalf("expected 0.42, got %v", confidence)
	}
}
