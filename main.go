package main

import (
	"net/http"
	"os"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config()
	cfg.logger.Debug("configuration loaded")

	scheduler := NewScheduler(cfg, cfg.refreshInterval)
	cfg.logger.Info("starting scheduler", "interval", cfg.refreshInterval.String())
	scheduler.Start()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/search", cfg.handlerSearch)
	mux.HandleFunc("/api/reverse", cfg.handlerReverse)
	mux.HandleFunc("/api/suggestions", cfg.handlerSuggestions)
	mux.HandleFunc("/api/poi", cfg.handlerPOI)
	mux.HandleFunc("/api/route", cfg.handlerRoute)
	mux.HandleFunc("/api/matrix", cfg.handlerDistanceMatrix)
	mux.HandleFunc("/api/weather", cfg.handlerWeather)
	mux.HandleFunc("/api/airquality", cfg.handlerAirQuality)
	mux.HandleFunc("/api/markers", cfg.handlerMarkers)
	mux.HandleFunc("/api/markers/{id}", cfg.handlerMarkerByID)
	mux.HandleFunc("/api/history", cfg.handlerHistory)
	mux.HandleFunc("/api/state", cfg.handlerState)
	mux.HandleFunc("/api/view", cfg.handlerSetView)
	mux.HandleFunc("/api/theme/toggle", cfg.handlerToggleTheme)
	mux.HandleFunc("/api/layer", cfg.handlerSetLayer)
	mux.Handle("/metrics", promhttp.Handler())

	if cfg.devMode {
		cfg.logger.Debug("development mode enabled. Registering /dev endpoints.")
		mux.HandleFunc("/dev/reset", cfg.handlerReset)
		mux.HandleFunc("/dev/runrefreshjobs", scheduler.handlerRunRefreshJobs)
	}

	server := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: corsMiddleware(metricsMiddleware(mux)),
	}

	cfg.logger.Info("starting server", "port", cfg.port)
	err := server.ListenAndServe()
	if err != nil {
		cfg.logger.Error("server startup failed", "error", err)
		os.Exit(1)
	}
}
