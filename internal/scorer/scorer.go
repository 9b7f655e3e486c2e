package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alertengine/internal/domain"
)

// Result returns one scored condition/event pair.
// Params: confidence probability and free-text reasoning.
// Returns: scorer capability output.
type Result struct {
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// HTTPScorer grades conditions through an external completion-backed scoring endpoint.
// Params: endpoint URL, request timeout, and optional static headers.
// Returns: confidence scorer capability over HTTP.
type HTTPScorer struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPScorer creates the HTTP scorer client.
// Params: endpoint URL, timeout seconds, static headers, and logger.
// Returns: initialized scorer.
func NewHTTPScorer(url string, timeoutSec int, headers map[string]string, logger *slog.Logger) *HTTPScorer {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &HTTPScorer{
		url:     strings.TrimSpace(url),
		headers: headers,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		logger:  logger,
	}
}

// scoreRequest is the outbound scoring payload.
type scoreRequest struct {
	Field      string                       `json:"field"`
	Comparison string                       `json:"comparison"`
	Value      domain.TypedValue            `json:"value"`
	Event      map[string]domain.TypedValue `json:"event"`
	Source     string                       `json:"source,omitempty"`
}

// Score grades one condition against one event.
// Params: context, condition under evaluation, and triggering event.
// Returns: confidence in [0,1] or transport/decode error.
func (s *HTTPScorer) Score(ctx context.Context, condition domain.TriggerCondition, event domain.Event) (float64, error) {
	if s.url == "" {
		return 0, errors.New("scorer url is not configured")
	}
	body, err := json.Marshal(scoreRequest{
		Field:      string(condition.Field),
		Comparison: string(condition.Comparison),
		Value:      condition.Value,
		Event:      event.Fields,
		Source:     event.Source,
	})
	if err != nil {
		return 0, fmt.Errorf("encode score request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build score request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return 0, fmt.Errorf("score request: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		raw, readErr := io.ReadAll(response.Body)
		if readErr != nil || len(strings.TrimSpace(string(raw))) == 0 {
			return 0, fmt.Errorf("scorer status=%d", response.StatusCode)
		}
		return 0, fmt.Errorf("scorer status=%d body=%s", response.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result Result
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode score response: %w", err)
	}
	if s.logger != nil && strings.TrimSpace(result.Reasoning) != "" {
		s.logger.Debug("scorer reasoning", "field", string(condition.Field), "confidence", result.Confidence, "reasoning", result.Reasoning)
	}
	return result.Confidence, nil
}

// Fixed is a constant-confidence scorer for tests and disabled deployments.
// Params: Confidence holds the constant grade.
// Returns: deterministic scorer capability.
type Fixed struct {
	Confidence float64
}

// Score returns the fixed confidence.
// Params: context, condition, and event (all ignored).
// Returns: configured confidence, never an error.
func (f Fixed) Score(context.Context, domain.TriggerCondition, domain.Event) (float64, error) {
	return f.Confidence, nil
}
