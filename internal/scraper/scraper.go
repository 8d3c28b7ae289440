// This file implements a standalone metrics scraper for the Waymark service.
// It is designed to be deployed as a separate, serverless container (e.g., on
// Cloud Run) and triggered periodically by a scheduler (e.g., Cloud Scheduler).
//
// The scraper performs the following steps:
//  1. Receives an HTTP request from the scheduler.
//  2. Fetches Prometheus metrics from the main service's /metrics endpoint.
//  3. Parses the text-based Prometheus exposition format, handling counters,
//     gauges, and histograms.
//  4. Converts the parsed metrics into the format required by Google Cloud's
//     Managed Service for Prometheus.
//  5. Ingests the converted metrics into Google Cloud Monitoring.
//
// This approach decouples metrics collection from the main service, ensuring
// that scraping is reliable and independently managed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/genproto/googleapis/api/distribution"
	"google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// scraper holds the configuration resolved once at request time.
type scraper struct {
	projectID  string
	metricsURL string
	location   string
	logger     *slog.Logger
}

// main is the entry point for the scraper service. It sets up a JSON-based
// structured logger, configures an HTTP server as required by the Cloud Run
// environment, and registers the scrape handler to process incoming requests.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("starting server", "port", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		scrapeHandler(w, r, logger)
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// scrapeHandler handles incoming HTTP requests from Cloud Scheduler.
// It resolves configuration, orchestrates the scraping and ingestion
// process, and logs the outcome.
func scrapeHandler(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	logger.Info("scrape request received")

	s, err := scraperFromEnv(logger)
	if err != nil {
		logger.Error("scraper misconfigured", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.scrapeAndIngest(r.Context()); err != nil {
		logger.Error("error during scrape and ingest", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Info("successfully scraped and ingested metrics")
	fmt.Fprintln(w, "Success")
}

// scraperFromEnv reads the required environment variables. GCP_LOCATION is
// optional and defaults to europe-west1.
func scraperFromEnv(logger *slog.Logger) (*scraper, error) {
	metricsURL := os.Getenv("METRICS_URL")
	if metricsURL == "" {
		return nil, fmt.Errorf("environment variable METRICS_URL must be set")
	}
	projectID := os.Getenv("PROJECT_ID")
	if projectID == "" {
		return nil, fmt.Errorf("environment variable PROJECT_ID must be set")
	}
	location := os.Getenv("GCP_LOCATION")
	if location == "" {
		location = "europe-west1"
	}
	return &scraper{
		projectID:  projectID,
		metricsURL: metricsURL,
		location:   location,
		logger:     logger,
	}, nil
}

// scrapeAndIngest performs the core logic of fetching, parsing, and
// ingesting metrics.
func (s *scraper) scrapeAndIngest(ctx context.Context) error {
	timeSeries, err := s.fetchTimeSeries(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch and convert metrics: %w", err)
	}

	if len(timeSeries) == 0 {
		s.logger.Info("no metric samples found to ingest")
		return nil
	}

	if err := s.ingest(ctx, timeSeries); err != nil {
		return fmt.Errorf("failed to ingest metrics: %w", err)
	}

	return nil
}

// fetchTimeSeries scrapes the Prometheus endpoint, parses the response, and
// converts the metrics into Google Cloud Monitoring's TimeSeries format.
// It handles Counter, Gauge, Untyped, and Histogram metric types.
func (s *scraper) fetchTimeSeries(ctx context.Context) ([]*monitoringpb.TimeSeries, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.metricsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http request failed with status code %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	metricFamilies, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prometheus metrics: %w", err)
	}

	resource := &monitoredres.MonitoredResource{
		Type: "prometheus_target",
		Labels: map[string]string{
			"project_id": s.projectID,
			"location":   s.location,
			"cluster":    "__gce__",
			"namespace":  "waymark",
			"job":        "waymark",
			"instance":   s.metricsURL,
		},
	}

	var timeSeriesList []*monitoringpb.TimeSeries
	now := timestamppb.New(time.Now())

	for name, mf := range metricFamilies {
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}

			ts := &monitoringpb.TimeSeries{
				Metric: &metric.Metric{
					Type:   "prometheus.googleapis.com/" + name,
					Labels: labels,
				},
				Resource: resource,
			}

			var point *monitoringpb.Point
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				point = createPoint(now, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				point = createPoint(now, m.GetGauge().GetValue())
			case dto.MetricType_UNTYPED:
				point = createPoint(now, m.GetUntyped().GetValue())
			case dto.MetricType_HISTOGRAM:
				point = createDistributionPoint(now, m.GetHistogram(), s.logger)
			case dto.MetricType_SUMMARY:
				s.logger.Debug("skipping metric with unhandled summary type", "metric", name)
				continue
			default:
				s.logger.Warn("skipping metric with unhandled type", "metric", name, "type", mf.GetType())
				continue
			}

			ts.Points = []*monitoringpb.Point{point}
			timeSeriesList = append(timeSeriesList, ts)
		}
	}
	return timeSeriesList, nil
}

// createPoint creates a monitoring TimeSeries point with a double value.
// This is used for simple metrics like counters and gauges.
func createPoint(timestamp *timestamppb.Timestamp, value float64) *monitoringpb.Point {
	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{
			EndTime: timestamp,
		},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DoubleValue{
				DoubleValue: value,
			},
		},
	}
}

// createDistributionPoint creates a monitoring TimeSeries point for a histogram.
// It converts a Prometheus histogram DTO into a Google Cloud Monitoring
// Distribution value.
func createDistributionPoint(timestamp *timestamppb.Timestamp, h *dto.Histogram, logger *slog.Logger) *monitoringpb.Point {
	promBuckets := h.GetBucket()
	bounds := make([]float64, len(promBuckets)-1)
	bucketCounts := make([]int64, len(promBuckets))
	var lastCumulativeCount uint64

	for i, b := range promBuckets {
		// The last bucket in Prometheus is +Inf, which we don't need for bounds.
		if i < len(promBuckets)-1 {
			bounds[i] = b.GetUpperBound()
		}
		cumulativeCount := b.GetCumulativeCount()
		countInBucket := cumulativeCount - lastCumulativeCount
		if countInBucket > math.MaxInt64 {
			logger.Warn("histogram bucket count exceeds MaxInt64, capping value", "bucket", i, "value", countInBucket)
			bucketCounts[i] = math.MaxInt64
		} else {
			bucketCounts[i] = int64(countInBucket)
		}
		lastCumulativeCount = cumulativeCount
	}

	sampleCount := h.GetSampleCount()
	var finalSampleCount int64
	if sampleCount > math.MaxInt64 {
		logger.Warn("histogram sample count exceeds MaxInt64, capping value", "value", sampleCount)
		finalSampleCount = math.MaxInt64
	} else {
		finalSampleCount = int64(sampleCount)
	}

	dist := &distribution.Distribution{
		Count: finalSampleCount,
		Mean:  h.GetSampleSum() / float64(h.GetSampleCount()),
		BucketOptions: &distribution.Distribution_BucketOptions{
			Options: &distribution.Distribution_BucketOptions_ExplicitBuckets{
				ExplicitBuckets: &distribution.Distribution_BucketOptions_Explicit{
					Bounds: bounds,
				},
			},
		},
		BucketCounts: bucketCounts,
	}

	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{
			EndTime: timestamp,
		},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DistributionValue{
				DistributionValue: dist,
			},
		},
	}
}

// ingest writes the TimeSeries data to the Google Cloud Monitoring API.
// It creates a new client for each call to ensure freshness but relies on
// underlying connection pooling.
func (s *scraper) ingest(ctx context.Context, timeSeries []*monitoringpb.TimeSeries) error {
	client, err := monitoring.NewMetricClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create monitoring client: %w", err)
	}
	defer client.Close()

	req := &monitoringpb.CreateTimeSeriesRequest{
		Name:       "projects/" + s.projectID,
		TimeSeries: timeSeries,
	}

	if err := client.CreateTimeSeries(ctx, req); err != nil {
		return fmt.Errorf("failed to write time series data: %w", err)
	}
	return nil
}
