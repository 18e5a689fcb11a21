package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ordersync/internal/config"
	"ordersync/internal/order"
	"ordersync/internal/utils"
)

// Client represents the persistence service client
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryMax   int
	backoff    time.Duration
	logger     *utils.Logger
	metrics    *utils.Metrics
	tracer     trace.Tracer
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *utils.Logger, metrics *utils.Metrics) *Client {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Client{
		baseURL: cfg.API.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.API.Timeout,
		},
		retryMax: cfg.API.RetryMax,
		backoff:  cfg.API.RetryBackoff,
		logger:   logger.With("api", nil),
		metrics:  metrics,
		tracer:   otel.Tracer("ordersync/api"),
	}
}

// call describes one logical request
type call struct {
	op      string
	orderID string
	method  string
	path    string
	body    interface{}
	target  interface{}
}

// doRequest executes a request, tracing and recording it. Only GETs are
// retried; mutations fail fast and surface to the caller.
func (c *Client) doRequest(ctx context.Context, cl call) error {
	ctx, span := c.tracer.Start(ctx, "api."+cl.op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("http.path", cl.path),
		attribute.String("order.id", cl.orderID),
	)

	start := time.Now()
	err := c.withRetry(ctx, cl)
	c.metrics.RecordAPICall(cl.op, err == nil, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify(cl.op, cl.orderID, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (c *Client) withRetry(ctx context.Context, cl call) error {
	retryMax := c.retryMax
	if cl.method != http.MethodGet || retryMax < 0 {
		retryMax = 0
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.backoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retryMax)), ctx)

	attempts := 0
	operation := func() error {
		attempts++
		err := c.executeRequest(ctx, cl)
		if err == nil {
			return nil
		}

		// Don't retry on client errors (4xx) except 429
		var httpErr *HTTPError
		if errors.As(err, &httpErr) &&
			httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		var decErr *decodeError
		if errors.As(err, &decErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("request attempt failed", map[string]interface{}{
			"op":      cl.op,
			"attempt": attempts,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil || attempts <= 1 {
		return err
	}
	return fmt.Errorf("request failed after %d attempts: %w", attempts, err)
}

// executeRequest performs a single HTTP request
func (c *Client) executeRequest(ctx context.Context, cl call) error {
	url := c.baseURL + cl.path

	var reqBody io.Reader
	if cl.body != nil {
		jsonData, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Check for HTTP errors
	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return &HTTPError{
				StatusCode: resp.StatusCode,
				Message:    string(respBody),
			}
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Message,
			ErrorType:  errResp.Error,
		}
	}

	// Decode successful response
	if cl.target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, cl.target); err != nil {
			return &decodeError{err: err}
		}
	}

	return nil
}

// classify maps a transport outcome onto the order error taxonomy
func classify(op, orderID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return order.Wrap(order.KindNetworkFailure, op, orderID, err)
	}

	var decErr *decodeError
	if errors.As(err, &decErr) {
		return order.Wrap(order.KindMalformed, op, orderID, err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusConflict:
			return order.Wrap(order.KindConflict, op, orderID, err)
		case httpErr.StatusCode == http.StatusNotFound:
			return order.Wrap(order.KindNotFound, op, orderID, err)
		case httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests:
			return order.Wrap(order.KindNetworkFailure, op, orderID, err)
		default:
			// the service refused the change itself
			return order.Wrap(order.KindInvalidTransition, op, orderID, err)
		}
	}

	return order.Wrap(order.KindNetworkFailure, op, orderID, err)
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	Message    string
	ErrorType  string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.ErrorType, e.Message)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}
