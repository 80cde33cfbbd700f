// Package ingest is the domain glue between the scheduling core and the
// web: an SSRF-safe rate-limited fetcher, goquery-based page parsing, record
// models with their sqlite store, and the work handlers registered under
// stable keys for the news, weather and air-quality spiders.
package ingest

import "time"

// NewsRecord is one scraped headline, keyed by link.
type NewsRecord struct {
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	PublishDate string    `json:"publish_date"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	Popularity  int       `json:"popularity"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// WeatherRecord is one day's forecast for a city, keyed by
// (province, city, date).
type WeatherRecord struct {
	Province        string    `json:"province"`
	City            string    `json:"city"`
	Date            string    `json:"date"`
	TemperatureHigh string    `json:"temperature_high"`
	TemperatureLow  string    `json:"temperature_low"`
	Weather         string    `json:"weather"`
	Wind            string    `json:"wind"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// AirQualityRecord is one day's air quality reading for a city, keyed by
// (province, city, date). Pollutant values stay strings: sources publish
// placeholders like "-" and ranges that must round-trip unchanged.
type AirQualityRecord struct {
	Province  string    `json:"province"`
	City      string    `json:"city"`
	Date      string    `json:"date"`
	Quality   string    `json:"quality"`
	AQI       string    `json:"aqi"`
	AQIRank   string    `json:"aqi_rank"`
	PM25      string    `json:"pm25"`
	PM10      string    `json:"pm10"`
	SO2       string    `json:"so2"`
	NO2       string    `json:"no2"`
	CO        string    `json:"co"`
	O3        string    `json:"o3"`
	FetchedAt time.Time `json:"fetched_at"`
}
