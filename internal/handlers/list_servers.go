package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/SteelMorgan/vpngate-harvester/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

// ListServersHandler handles list_servers tool
type ListServersHandler struct {
	gateway store.Gateway
}

// NewListServersHandler creates a new list servers handler
func NewListServersHandler(gateway store.Gateway) *ListServersHandler {
	return &ListServersHandler{gateway: gateway}
}

// ListServersParams represents parameters for list_servers
type ListServersParams struct {
	CountryCode string
	Limit       int
}

// ServerSummary is one entry of the list_servers result
type ServerSummary struct {
	IdentityView
	MetricCount int         `json:"metric_count"`
	TestCount   int         `json:"test_count"`
	Latest      *MetricView `json:"latest,omitempty"`
}

// ListServersResult is the list_servers response body
type ListServersResult struct {
	Servers   []ServerSummary `json:"servers"`
	Total     int             `json:"total"`
	Truncated bool            `json:"truncated"`
}

// ListServers returns stored servers ordered by name
func (h *ListServersHandler) ListServers(ctx context.Context, params ListServersParams) (string, error) {
	ctx, span := startSpan(ctx, "handlers.ListServers",
		attribute.String("handler", "list_servers"),
		attribute.String("country_code", params.CountryCode),
		attribute.Int("limit", params.Limit),
	)

	if err := ValidateCountryCode(params.CountryCode); err != nil {
		endSpanWithError(span, err, "validation failed")
		return "", err
	}
	limit, err := NormalizeLimit(params.Limit)
	if err != nil {
		endSpanWithError(span, err, "validation failed")
		return "", err
	}

	histories, err := h.gateway.LoadAll(ctx)
	if err != nil {
		endSpanWithError(span, err, "load failed")
		return "", fmt.Errorf("failed to load servers: %w", err)
	}

	result := ListServersResult{Servers: []ServerSummary{}}
	for _, hist := range histories {
		if params.CountryCode != "" && !strings.EqualFold(hist.Identity.CountryCode, params.CountryCode) {
			continue
		}
		summary := ServerSummary{
			IdentityView: newIdentityView(hist.Identity, false),
			MetricCount:  hist.MetricCount(),
			TestCount:    hist.TestCount(),
		}
		if latest, ok := hist.LatestMetric(); ok {
			v := newMetricView(latest)
			summary.Latest = &v
		}
		result.Servers = append(result.Servers, summary)
	}

	sort.Slice(result.Servers, func(i, j int) bool {
		return result.Servers[i].Name < result.Servers[j].Name
	})
	result.Total = len(result.Servers)
	if len(result.Servers) > limit {
		result.Servers = result.Servers[:limit]
		result.Truncated = true
	}

	data, err := json.Marshal(result)
	if err != nil {
		endSpanWithError(span, err, "marshal failed")
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	span.SetAttributes(attribute.Int("servers", len(result.Servers)))
	endSpanSuccess(span)
	return string(data), nil
}
