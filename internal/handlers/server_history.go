package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

// ErrServerNotFound is returned when no server is stored under the name
var ErrServerNotFound = errors.New("server not found")

// ServerHistoryHandler handles get_server_history tool
type ServerHistoryHandler struct {
	gateway store.Gateway
}

// NewServerHistoryHandler creates a new server history handler
func NewServerHistoryHandler(gateway store.Gateway) *ServerHistoryHandler {
	return &ServerHistoryHandler{gateway: gateway}
}

// ServerHistoryParams represents parameters for get_server_history.
// Zero From/To leave the range open on that side.
type ServerHistoryParams struct {
	Name string
	From time.Time
	To   time.Time
	Mode string
}

// ServerHistoryResult is the get_server_history response body
type ServerHistoryResult struct {
	Server  IdentityView `json:"server"`
	Metrics []MetricView `json:"metrics"`
	Tests   []TestView   `json:"tests"`
}

// GetServerHistory returns one server with its samples in [From, To]
func (h *ServerHistoryHandler) GetServerHistory(ctx context.Context, params ServerHistoryParams) (string, error) {
	ctx, span := startSpan(ctx, "handlers.GetServerHistory",
		attribute.String("handler", "server_history"),
		attribute.String("server_name", params.Name),
		attribute.String("mode", params.Mode),
	)

	if err := ValidateName(params.Name); err != nil {
		endSpanWithError(span, err, "validation failed")
		return "", err
	}
	if err := ValidateTimeRange(params.From, params.To); err != nil {
		endSpanWithError(span, err, "validation failed")
		return "", err
	}
	if err := ValidateMode(params.Mode); err != nil {
		endSpanWithError(span, err, "validation failed")
		return "", err
	}

	hist, err := h.gateway.LoadByName(ctx, params.Name)
	if err != nil {
		endSpanWithError(span, err, "load failed")
		return "", fmt.Errorf("failed to load server %q: %w", params.Name, err)
	}
	if hist == nil {
		err := fmt.Errorf("%w: %s", ErrServerNotFound, params.Name)
		endSpanWithError(span, err, "not found")
		return "", err
	}

	result := ServerHistoryResult{
		Server:  newIdentityView(hist.Identity, params.Mode == ModeFull),
		Metrics: []MetricView{},
		Tests:   []TestView{},
	}
	for _, m := range hist.Metrics() {
		if inRange(m.SavedAt, params.From, params.To) {
			result.Metrics = append(result.Metrics, newMetricView(m))
		}
	}
	for _, t := range hist.Tests() {
		if inRange(t.SavedAt, params.From, params.To) {
			result.Tests = append(result.Tests, newTestView(t))
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		endSpanWithError(span, err, "marshal failed")
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	span.SetAttributes(
		attribute.Int("metrics", len(result.Metrics)),
		attribute.Int("tests", len(result.Tests)),
	)
	endSpanSuccess(span)
	return string(data), nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
