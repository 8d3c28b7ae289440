package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// This file implements the HTTP gateway: the single configured client that
// every upstream call goes through. The gateway attaches the required
// headers per destination, unwraps response bodies, and classifies every
// failure into a uniform *GatewayError so the services above it can apply
// their fallback policies without caring which provider misbehaved. Each
// upstream host gets its own circuit breaker; an open breaker fails fast
// and is reported the same way as an unreachable network.

// ErrorKind distinguishes the three failure classes the gateway can report.
type ErrorKind int

const (
	// KindTransport: the request was sent but no usable response arrived
	// (connection refused, timeout, open circuit breaker, unreadable body).
	KindTransport ErrorKind = iota
	// KindHTTPStatus: the server answered with a non-2xx status code.
	KindHTTPStatus
	// KindRequestConstruction: the request failed before it was sent.
	KindRequestConstruction
)

// GatewayError is the uniform error shape for all upstream failures. It
// always carries both the human-readable category and the original cause.
type GatewayError struct {
	Kind       ErrorKind
	Category   string
	StatusCode int
	Cause      error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Cause)
	}
	return e.Category
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// statusCategories maps the known upstream status codes to their fixed
// human-readable categories. Unknown codes fall back to categoryDefault.
var statusCategories = map[int]string{
	http.StatusBadRequest:          "invalid request parameters",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "access denied",
	http.StatusNotFound:            "resource not found",
	http.StatusTooManyRequests:     "too many requests",
	http.StatusInternalServerError: "internal server error",
	http.StatusBadGateway:          "service temporarily unavailable",
	http.StatusServiceUnavailable:  "service temporarily unavailable",
	http.StatusGatewayTimeout:      "service temporarily unavailable",
}

const (
	categoryDefault     = "request failed"
	categoryUnreachable = "network unreachable"
)

// categoryForStatus returns the fixed category for an upstream status code.
func categoryForStatus(code int) string {
	if category, found := statusCategories[code]; found {
		return category
	}
	return categoryDefault
}

// statusCodeError carries a non-2xx upstream response through the circuit
// breaker so it can be classified after Execute returns.
type statusCodeError struct {
	code int
	body []byte
}

func (e *statusCodeError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.code)
}

// nominatimUserAgent identifies this application to the geocoding provider,
// whose usage policy requires a descriptive client identifier.
const nominatimUserAgent = "WaymarkApp/1.0 (contact@example.com)"

// Gateway wraps an *http.Client with header injection, response unwrapping,
// failure classification and a per-host circuit breaker.
type Gateway struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewGateway creates a gateway around the given client. The client's
// timeout is the only request deadline; there is no per-call override.
func NewGateway(client *http.Client, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:    client,
		logger:    logger,
		userAgent: nominatimUserAgent,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// Get performs a GET against rawURL with the encoded query and returns the
// raw response body.
func (g *Gateway) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	return g.do(ctx, http.MethodGet, rawURL, query, "", nil)
}

// Post performs a POST with the given body. An empty contentType keeps the
// default application/json.
func (g *Gateway) Post(ctx context.Context, rawURL string, contentType string, body []byte) ([]byte, error) {
	return g.do(ctx, http.MethodPost, rawURL, nil, contentType, body)
}

func (g *Gateway) do(ctx context.Context, method, rawURL string, query url.Values, contentType string, body []byte) ([]byte, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, g.fail(rawURL, &GatewayError{
			Kind:     KindRequestConstruction,
			Category: err.Error(),
			Cause:    err,
		})
	}
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, g.fail(rawURL, &GatewayError{
			Kind:     KindRequestConstruction,
			Category: err.Error(),
			Cause:    err,
		})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.Contains(target.Host+target.Path, "nominatim") {
		req.Header.Set("User-Agent", g.userAgent)
	}

	breaker := g.breakerFor(target.Host)
	data, err := breaker.Execute(func() ([]byte, error) {
		resp, doErr := g.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		payload, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &statusCodeError{code: resp.StatusCode, body: payload}
		}
		return payload, nil
	})
	if err != nil {
		return nil, g.fail(target.String(), classify(err))
	}

	return data, nil
}

// classify turns an error coming out of the breaker into a GatewayError,
// following the precedence: status code if a response arrived, otherwise
// transport failure (including open-breaker fast failures).
func classify(err error) *GatewayError {
	var statusErr *statusCodeError
	if errors.As(err, &statusErr) {
		return &GatewayError{
			Kind:       KindHTTPStatus,
			Category:   categoryForStatus(statusErr.code),
			StatusCode: statusErr.code,
			Cause:      err,
		}
	}
	return &GatewayError{
		Kind:     KindTransport,
		Category: categoryUnreachable,
		Cause:    err,
	}
}

// fail logs the failure with context and records it in the upstream metric
// before handing the error back to the caller.
func (g *Gateway) fail(target string, gwErr *GatewayError) error {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	g.logger.Error("upstream request failed",
		"host", host,
		"category", gwErr.Category,
		"status", gwErr.StatusCode,
		"error", gwErr.Cause,
	)
	upstreamFailuresTotal.WithLabelValues(host, gwErr.Category).Inc()
	return gwErr
}

// breakerFor returns the circuit breaker for an upstream host, creating it
// on first use. Settings follow the usual shape for third-party APIs: trip
// after six consecutive failures, probe again after thirty seconds.
func (g *Gateway) breakerFor(host string) *gobreaker.CircuitBreaker[[]byte] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if breaker, found := g.breakers[host]; found {
		return breaker
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// 4xx answers (except 429) prove the upstream is alive; only
		// transport failures, 5xx and rate limiting count toward tripping.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var statusErr *statusCodeError
			if errors.As(err, &statusErr) {
				return statusErr.code < 500 && statusErr.code != http.StatusTooManyRequests
			}
			return false
		},
	})
	g.breakers[host] = breaker
	return breaker
}
