package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type apiConfig struct {
	gateway         *Gateway
	geocoder        GeocodingService
	router          RoutingService
	weather         WeatherService
	store           *MapStore
	cache           Cache
	nominatimURL    string
	overpassURL     string
	osrmURL         string
	weatherURL      string
	airQualityURL   string
	refreshInterval time.Duration
	port            string
	devMode         bool
	logger          *slog.Logger
}

// getRequiredEnv retrieves an environment variable by key, and fatals if it's not set.
func getRequiredEnv(key string, logger *slog.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		logger.Error("environment variable must be set", "key", key)
		os.Exit(1)
	}
	return val
}

// getEnv retrieves an environment variable by key, with a fallback value.
func getEnv(key, fallback string, logger *slog.Logger) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer, with a fallback value.
func getEnvAsInt(key string, fallback int, logger *slog.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback)
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		logger.Warn("invalid integer value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// config assembles the application from the environment: logger, cache,
// storage backend, gateway and the three upstream services. Every upstream
// URL has a public default so the service runs with no configuration at all.
func config() *apiConfig {
	devModeStr := os.Getenv("DEV_MODE")
	devMode, err := strconv.ParseBool(devModeStr)
	if err != nil {
		devMode = false
	}

	var logger *slog.Logger
	if devMode {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cache := configureCache(logger)
	storage := configureStorage(logger)

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &metricsTransport{wrapped: http.DefaultTransport},
	}
	gateway := NewGateway(httpClient, logger)

	refreshIntervalMin := getEnvAsInt("REFRESH_INTERVAL_MIN", 30, logger)

	cfg := apiConfig{
		gateway:         gateway,
		cache:           cache,
		nominatimURL:    getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org", logger),
		overpassURL:     getEnv("OVERPASS_URL", "https://overpass-api.de", logger),
		osrmURL:         getEnv("OSRM_URL", "https://router.project-osrm.org", logger),
		weatherURL:      getEnv("WEATHER_URL", "https://api.open-meteo.com", logger),
		airQualityURL:   getEnv("AIRQUALITY_URL", "https://api.openaq.org", logger),
		refreshInterval: time.Duration(refreshIntervalMin) * time.Minute,
		port:            getEnv("PORT", "8080", logger),
		devMode:         devMode,
		logger:          logger,
	}

	cfg.geocoder = NewNominatimService(gateway, cfg.nominatimURL, cfg.overpassURL, logger)
	cfg.router = NewOSRMRoutingService(gateway, cfg.osrmURL, logger)
	cfg.weather = NewOpenMeteoService(gateway, cfg.weatherURL, cfg.airQualityURL, logger)
	cfg.store = NewMapStore(storage, logger)

	return &cfg
}

// configureCache connects to Redis when REDIS_URL is set and falls back to
// the in-process cache otherwise.
func configureCache(logger *slog.Logger) Cache {
	redisURL, ok := os.LookupEnv("REDIS_URL")
	if !ok {
		logger.Info("REDIS_URL not set, using in-memory cache")
		return NewMemoryCache()
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("could not parse Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(opt)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Error("could not connect to Redis", "error", err)
		os.Exit(1)
	}
	return NewRedisCache(redisClient)
}

// configureStorage picks the persistence backend from STORAGE_BACKEND:
// "file" (default), "redis" or "postgres".
func configureStorage(logger *slog.Logger) Storage {
	backend := getEnv("STORAGE_BACKEND", "file", logger)
	switch backend {
	case "file":
		path := getEnv("STORAGE_FILE", "data/mapstate.json", logger)
		return NewFileStorage(path)
	case "redis":
		redisURL := getRequiredEnv("REDIS_URL", logger)
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("could not parse Redis URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opt)
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logger.Error("could not connect to Redis", "error", err)
			os.Exit(1)
		}
		return NewRedisStorage(redisClient)
	case "postgres":
		dbURL := getRequiredEnv("DB_URL", logger)
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			logger.Error("couldn't prepare connection to database", "error", err)
			os.Exit(1)
		}
		if err := db.Ping(); err != nil {
			logger.Error("couldn't connect to database", "error", err)
			os.Exit(1)
		}
		storage := NewPostgresStorage(db)
		if err := storage.EnsureSchema(context.Background()); err != nil {
			logger.Error("couldn't ensure database schema", "error", err)
			os.Exit(1)
		}
		return storage
	default:
		logger.Error("unknown storage backend", "backend", backend)
		os.Exit(1)
		return nil
	}
}
