package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/winfrey-Git/customer-portal/internal/apperr"
	"github.com/winfrey-Git/customer-portal/internal/erp"
	"github.com/winfrey-Git/customer-portal/internal/odata"
	"github.com/winfrey-Git/customer-portal/internal/telemetry"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 10 << 20
)

// Call describes one outbound OData request.
type Call struct {
	Method string
	Entity string
	// Key addresses a single entity; when empty the collection is queried.
	Key   string
	Query odata.Query
	// Clauses are server-side filters AND-combined with Query.Filter.
	Clauses []string
	Body    any
	Header  http.Header
}

// Dispatcher forwards portal requests to the ERP's OData endpoints and
// normalizes the responses.
type Dispatcher struct {
	endpoints *erp.EndpointTable
	creds     erp.Credentials
	client    *http.Client
	timeout   time.Duration
	metrics   *telemetry.UpstreamMetrics
	logger    *slog.Logger
}

type DispatcherOption func(*Dispatcher)

// WithTimeout bounds every outbound call.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithMetrics(m *telemetry.UpstreamMetrics) DispatcherOption {
	return func(p *Dispatcher) {
		p.metrics = m
	}
}

func NewDispatcher(endpoints *erp.EndpointTable, creds erp.Credentials, client *http.Client, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		endpoints: endpoints,
		creds:     creds,
		client:    client,
		timeout:   defaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Endpoint resolves an entity key against the endpoint table.
func (d *Dispatcher) Endpoint(entity string) (erp.Endpoint, error) {
	return d.endpoints.Lookup(entity)
}

// Do issues exactly one request. A successful empty body is returned as {}.
func (d *Dispatcher) Do(ctx context.Context, call Call) (json.RawMessage, error) {
	ep, err := d.endpoints.Lookup(call.Entity)
	if err != nil {
		return nil, err
	}

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}

	target := odata.BuildURL(ep.URL, call.Query, ep.SearchFields, call.Clauses...)
	if call.Key != "" {
		target = odata.EntityURL(ep.URL, call.Key)
	}

	var body io.Reader
	if call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request body: %w", ep.Key, err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperr.Config("invalid ERP request URL", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for key, values := range call.Header {
		key = http.CanonicalHeaderKey(key)
		if key == "Authorization" {
			continue
		}
		req.Header[key] = append([]string(nil), values...)
	}
	req.Header.Set("Authorization", d.creds.Header())

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		d.metrics.Record(ctx, "odata", ep.Key, method, 0, "unavailable", time.Since(start))
		return nil, d.transportError(ctx, ep.Key, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		d.metrics.Record(ctx, "odata", ep.Key, method, resp.StatusCode, "unavailable", time.Since(start))
		return nil, d.transportError(ctx, ep.Key, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.metrics.Record(ctx, "odata", ep.Key, method, resp.StatusCode, "error", time.Since(start))
		d.logger.WarnContext(ctx, "ERP returned error status",
			"entity", ep.Key,
			"method", method,
			"url", target,
			"status", resp.StatusCode,
			"headers", resp.Header,
			"body", string(data),
		)
		return nil, apperr.Backend(failureMessage(method, ep.Key), resp.Status, resp.StatusCode)
	}

	d.metrics.Record(ctx, "odata", ep.Key, method, resp.StatusCode, "ok", time.Since(start))

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		d.logger.WarnContext(ctx, "ERP returned invalid JSON", "entity", ep.Key, "url", target, "body", string(data))
		return nil, apperr.Backend("invalid JSON from upstream", resp.Status, resp.StatusCode)
	}

	return json.RawMessage(data), nil
}

// List runs a collection query and returns the OData value array.
func (d *Dispatcher) List(ctx context.Context, call Call) ([]json.RawMessage, error) {
	call.Key = ""
	raw, err := d.Do(ctx, call)
	if err != nil {
		return nil, err
	}

	var page struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, apperr.Backend("invalid JSON from upstream", "expected an OData collection", 0)
	}
	if page.Value == nil {
		return []json.RawMessage{}, nil
	}
	return page.Value, nil
}

func (d *Dispatcher) transportError(ctx context.Context, entity, target string, err error) error {
	d.logger.ErrorContext(ctx, "ERP request failed", "entity", entity, "url", target, "error", err)
	return apperr.Transport(err)
}

func failureMessage(method, entity string) string {
	switch method {
	case http.MethodPost:
		return "Failed to create " + entity
	case http.MethodPatch, http.MethodPut:
		return "Failed to update " + entity
	case http.MethodDelete:
		return "Failed to delete " + entity
	default:
		return "Failed to fetch " + entity
	}
}
