package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

// This file implements the weather and air-quality lookups. Weather comes
// from an Open-Meteo-compatible forecast endpoint, air quality from an
// OpenAQ-compatible one. Both are ambient features: the weather widget must
// never show an empty or error state, so a failed forecast yields a fixed
// placeholder snapshot flagged as degraded, and a failed air-quality lookup
// yields nil.

// Placeholder snapshot constants, returned whenever the forecast backend
// is unreachable or its response cannot be used.
const (
	fallbackTemperatureC  = 25.0
	fallbackWindSpeed     = 3.0
	fallbackWindDirection = 180
	fallbackWeatherCode   = 1
	fallbackTempMaxC      = 28.0
	fallbackTempMinC      = 22.0
	fallbackSunrise       = "06:00"
	fallbackSunset        = "18:00"
)

// WeatherService defines the forecast and air-quality operations used by
// the handlers and the scheduler.
type WeatherService interface {
	GetWeather(ctx context.Context, lat, lng float64) Result[WeatherSnapshot]
	GetAirQuality(ctx context.Context, lat, lng float64) *AirQualityRecord
}

// OpenMeteoService implements WeatherService against an Open-Meteo forecast
// API and an OpenAQ measurements API.
type OpenMeteoService struct {
	gateway       *Gateway
	forecastURL   string
	airQualityURL string
	logger        *slog.Logger
	now           func() time.Time
}

// NewOpenMeteoService creates an OpenMeteoService. The clock is injectable
// so tests can pin the placeholder snapshot's date.
func NewOpenMeteoService(gateway *Gateway, forecastURL, airQualityURL string, logger *slog.Logger) *OpenMeteoService {
	return &OpenMeteoService{
		gateway:       gateway,
		forecastURL:   forecastURL,
		airQualityURL: airQualityURL,
		logger:        logger,
		now:           time.Now,
	}
}

// openMeteoResponse mirrors the Open-Meteo forecast payload fields this
// application consumes. Hourly series are requested for parity with the
// frontend's query but the snapshot is built from current + daily.
type openMeteoResponse struct {
	CurrentWeather struct {
		Temperature   float64 `json:"temperature"`
		WindSpeed     float64 `json:"windspeed"`
		WindDirection float64 `json:"winddirection"`
		WeatherCode   int     `json:"weathercode"`
		Time          string  `json:"time"`
	} `json:"current_weather"`
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weathercode"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		Sunrise     []string  `json:"sunrise"`
		Sunset      []string  `json:"sunset"`
	} `json:"daily"`
}

// GetWeather requests current, hourly and daily fields with timezone
// auto-detection and normalizes the reply into a WeatherSnapshot. Any
// failure returns the degraded placeholder snapshot with the cause.
func (s *OpenMeteoService) GetWeather(ctx context.Context, lat, lng float64) Result[WeatherSnapshot] {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("current_weather", "true")
	params.Set("hourly", "temperature_2m,relativehumidity_2m,weathercode,windspeed_10m")
	params.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min,sunrise,sunset")
	params.Set("timezone", "auto")

	body, err := s.gateway.Get(ctx, s.forecastURL+"/v1/forecast", params)
	if err != nil {
		return s.fallback(err)
	}

	var response openMeteoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return s.fallback(fmt.Errorf("failed to decode forecast response: %w", err))
	}

	observedAt, err := time.Parse("2006-01-02T15:04", response.CurrentWeather.Time)
	if err != nil {
		observedAt = s.now().UTC()
	}

	snapshot := WeatherSnapshot{
		Current: CurrentConditions{
			Temperature:   response.CurrentWeather.Temperature,
			WindSpeed:     response.CurrentWeather.WindSpeed,
			WindDirection: int(response.CurrentWeather.WindDirection),
			Code:          response.CurrentWeather.WeatherCode,
			ObservedAt:    observedAt,
		},
	}
	for i, date := range response.Daily.Time {
		day := DailyConditions{Date: date}
		if i < len(response.Daily.WeatherCode) {
			day.Code = response.Daily.WeatherCode[i]
		}
		if i < len(response.Daily.TempMax) {
			day.TempMax = response.Daily.TempMax[i]
		}
		if i < len(response.Daily.TempMin) {
			day.TempMin = response.Daily.TempMin[i]
		}
		if i < len(response.Daily.Sunrise) {
			day.Sunrise = response.Daily.Sunrise[i]
		}
		if i < len(response.Daily.Sunset) {
			day.Sunset = response.Daily.Sunset[i]
		}
		snapshot.Daily = append(snapshot.Daily, day)
	}

	return ok(snapshot)
}

// fallback builds the fixed placeholder snapshot for today's date.
func (s *OpenMeteoService) fallback(cause error) Result[WeatherSnapshot] {
	s.logger.Warn("weather lookup failed, returning placeholder snapshot", "error", cause)
	degradedResultsTotal.WithLabelValues("weather").Inc()

	now := s.now().UTC()
	snapshot := WeatherSnapshot{
		Current: CurrentConditions{
			Temperature:   fallbackTemperatureC,
			WindSpeed:     fallbackWindSpeed,
			WindDirection: fallbackWindDirection,
			Code:          fallbackWeatherCode,
			ObservedAt:    now,
		},
		Daily: []DailyConditions{{
			Date:    now.Format("2006-01-02"),
			Code:    fallbackWeatherCode,
			TempMax: fallbackTempMaxC,
			TempMin: fallbackTempMinC,
			Sunrise: fallbackSunrise,
			Sunset:  fallbackSunset,
		}},
	}
	return degraded(snapshot, cause)
}

// openAQResponse is the envelope of an OpenAQ latest-measurements reply.
type openAQResponse struct {
	Results []AirQualityRecord `json:"results"`
}

// GetAirQuality requests the nearest station within 10 km and returns its
// latest record, or nil when no station is found or the provider fails.
func (s *OpenMeteoService) GetAirQuality(ctx context.Context, lat, lng float64) *AirQualityRecord {
	params := url.Values{}
	params.Set("coordinates", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("radius", "10000")
	params.Set("limit", "1")

	body, err := s.gateway.Get(ctx, s.airQualityURL+"/v2/latest", params)
	if err != nil {
		s.logger.Warn("air quality lookup failed", "lat", lat, "lng", lng, "error", err)
		return nil
	}

	var response openAQResponse
	if err := json.Unmarshal(body, &response); err != nil {
		s.logger.Warn("failed to decode air quality response", "error", err)
		return nil
	}
	if len(response.Results) == 0 {
		return nil
	}
	return &response.Results[0]
}
