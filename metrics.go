package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// This file defines the Prometheus metrics that are exposed by the application.

// httpRequestsTotal is a Prometheus counter vector that tracks the total number of HTTP requests.
// It is partitioned by the request's URL path, HTTP method, and the resulting status code.
var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "waymark_http_requests_total",
	Help: "Total number of HTTP requests by path, method and code.",
}, []string{"path", "method", "code"})

// upstreamFailuresTotal counts failed calls to upstream geodata providers,
// partitioned by provider host and the error category reported to clients.
var upstreamFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "waymark_upstream_failures_total",
	Help: "Total number of failed upstream requests by host and error category.",
}, []string{"host", "category"})

// degradedResultsTotal counts the responses served from deterministic
// fallback data instead of a live upstream, partitioned by service.
var degradedResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "waymark_degraded_results_total",
	Help: "Total number of fallback results served by service.",
}, []string{"service"})

// externalRequestDuration is a Prometheus histogram vector that tracks the duration
// of requests made to external upstream APIs, partitioned by host.
var externalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "waymark_external_request_duration_seconds",
	Help:    "Duration of requests to external upstream APIs by host.",
	Buckets: prometheus.DefBuckets,
}, []string{"host"})
