package storefront

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
)

const tracerName = "github.com/utafrali/storefront/internal/storefront"

// maxResponseBody bounds how much of a GraphQL response is read.
const maxResponseBody = 4 << 20

var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "storefront_api_request_duration_seconds",
		Help:    "Duration of commerce backend GraphQL requests",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation", "outcome"},
)

// Config identifies the remote storefront API.
type Config struct {
	// Domain is the shop domain, with or without scheme.
	Domain      string
	APIVersion  string
	AccessToken string
	// Endpoint overrides the URL derived from Domain and APIVersion.
	Endpoint string
}

// URL returns the GraphQL endpoint, https://{domain}/api/{version}/graphql.json.
func (c Config) URL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	domain := strings.TrimPrefix(c.Domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")
	return fmt.Sprintf("https://%s/api/%s/graphql.json", domain, c.APIVersion)
}

// Client sends locale-aware GraphQL requests to the storefront API. It makes
// a single attempt per call; retrying is up to the caller.
type Client struct {
	doer     httpclient.Doer
	endpoint string
	token    string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewClient creates a client that sends requests through doer.
func NewClient(cfg Config, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		doer:     doer,
		endpoint: cfg.URL(),
		token:    cfg.AccessToken,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// Request posts query with variables in the given locale and decodes the
// response "data" object into out. The locale is sent as the $country and
// $language variables consumed by @inContext and as Accept-Language.
//
// Transport failures return *NetworkError; rejected requests return
// *APIError. Mutation userErrors are part of data and never an error here.
func (c *Client) Request(ctx context.Context, query string, variables map[string]any, locale domain.Locale, out any) (err error) {
	op := operationName(query)
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "storefront."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("graphql.operation.name", op),
			attribute.String("storefront.country", string(locale.Country)),
			attribute.String("storefront.language", string(locale.Language)),
		),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
		requestDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
	}()

	vars := make(map[string]any, len(variables)+2)
	for k, v := range variables {
		vars[k] = v
	}
	if locale.Country != "" {
		vars["country"] = locale.Country
	}
	if locale.Language != "" {
		vars["language"] = locale.Language
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("storefront %s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("storefront %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", AcceptLanguage(locale))
	if c.token != "" {
		req.Header.Set("X-Shopify-Storefront-Access-Token", c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return &NetworkError{Op: op, Err: &httpclient.StatusError{StatusCode: resp.StatusCode, Body: raw}}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: statusMessage(resp.StatusCode, raw)}
	}

	var gql graphQLResponse
	if err := json.Unmarshal(raw, &gql); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "undecodable response body: " + err.Error()}
	}
	if len(gql.Errors) > 0 {
		return newGraphQLAPIError(op, gql.Errors)
	}
	if len(gql.Data) == 0 || string(gql.Data) == "null" {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "response has no data"}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "unexpected response shape: " + err.Error()}
	}

	c.logger.DebugContext(ctx, "storefront request completed",
		slog.String("operation", op),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// AcceptLanguage renders a locale as an Accept-Language value, e.g. "ca-ES".
func AcceptLanguage(l domain.Locale) string {
	return strings.ToLower(string(l.Language)) + "-" + string(l.Country)
}

// operationName returns the name following the leading query or mutation
// keyword, or "anonymous".
func operationName(query string) string {
	fields := strings.Fields(query)
	if len(fields) < 2 || (fields[0] != "query" && fields[0] != "mutation") {
		return "anonymous"
	}
	name, _, _ := strings.Cut(fields[1], "(")
	if name == "" || name == "{" {
		return "anonymous"
	}
	return name
}

func statusMessage(status int, body []byte) string {
	var gql graphQLResponse
	if err := json.Unmarshal(body, &gql); err == nil && len(gql.Errors) > 0 {
		return newGraphQLAPIError("", gql.Errors).Message
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	if text == "" {
		return http.StatusText(status)
	}
	return text
}

func outcome(err error) string {
	var ne *NetworkError
	var ae *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ne):
		return "network_error"
	case errors.As(err, &ae):
		return "api_error"
	default:
		return "error"
	}
}
