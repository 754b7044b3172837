// Package soap creates customers through the ERP's CustomerService codeunit.
package soap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/winfrey-Git/customer-portal/internal/apperr"
	"github.com/winfrey-Git/customer-portal/internal/erp"
	"github.com/winfrey-Git/customer-portal/internal/telemetry"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

type Client struct {
	url       string
	creds     erp.Credentials
	client    *http.Client
	extractor ResultExtractor
	timeout   time.Duration
	metrics   *telemetry.UpstreamMetrics
	logger    *slog.Logger
}

type Option func(*Client)

func WithExtractor(e ResultExtractor) Option {
	return func(c *Client) {
		if e != nil {
			c.extractor = e
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *telemetry.UpstreamMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(url string, creds erp.Credentials, client *http.Client, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		url:       url,
		creds:     creds,
		client:    client,
		extractor: RegexExtractor{},
		timeout:   defaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateCustomer validates the fields, posts the envelope and returns the new
// customer number.
func (c *Client) CreateCustomer(ctx context.Context, fields CustomerFields) (string, error) {
	if err := fields.Validate(); err != nil {
		return "", err
	}
	fields = fields.Trimmed()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(BuildEnvelope(fields)))
	if err != nil {
		return "", apperr.Config("invalid SOAP endpoint URL", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+Action+`"`)
	req.Header.Set("Authorization", c.creds.Header())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.Record(ctx, "soap", Operation, http.MethodPost, 0, "unavailable", time.Since(start))
		c.logger.ErrorContext(ctx, "SOAP request failed", "operation", Operation, "url", c.url, "error", err)
		return "", apperr.Transport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.metrics.Record(ctx, "soap", Operation, http.MethodPost, resp.StatusCode, "unavailable", time.Since(start))
		return "", apperr.Transport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.Record(ctx, "soap", Operation, http.MethodPost, resp.StatusCode, "error", time.Since(start))
		c.logger.WarnContext(ctx, "SOAP service returned error status",
			"operation", Operation,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return "", apperr.Backend("Failed to create customer", string(body), resp.StatusCode)
	}

	customerNo, err := c.extractor.Extract(body)
	if err != nil || customerNo == "" {
		c.metrics.Record(ctx, "soap", Operation, http.MethodPost, resp.StatusCode, "malformed", time.Since(start))
		c.logger.WarnContext(ctx, "SOAP response carried no customer number", "operation", Operation, "error", err, "body", string(body))
		return "", apperr.Backend("malformed upstream response", fmt.Sprintf("no %s in %s response", returnValueElement, Operation), resp.StatusCode)
	}

	c.metrics.Record(ctx, "soap", Operation, http.MethodPost, resp.StatusCode, "ok", time.Since(start))
	c.logger.InfoContext(ctx, "customer created", "customer_no", customerNo)
	return customerNo, nil
}
