package ingest

import (
	"database/sql"
	"time"

	"github.com/skeinworks/spindle/errors"
)

// RecordStore persists scraped records. All writes are upserts on the
// record's natural key, so re-running a spider refreshes rather than
// duplicates.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore creates a record store.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// UpsertNews inserts or refreshes a news record by link.
func (s *RecordStore) UpsertNews(rec *NewsRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO news_records (link, title, source, publish_date, summary, content, popularity, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(link) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			publish_date = excluded.publish_date,
			summary = excluded.summary,
			content = excluded.content,
			popularity = excluded.popularity,
			fetched_at = excluded.fetched_at
	`,
		rec.Link,
		rec.Title,
		rec.Source,
		rec.PublishDate,
		rec.Summary,
		rec.Content,
		rec.Popularity,
		rec.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert news record %s", rec.Link)
	}
	return nil
}

// UpsertWeather inserts or refreshes a forecast by (province, city, date).
func (s *RecordStore) UpsertWeather(rec *WeatherRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO weather_records (province, city, date, temperature_high, temperature_low, weather, wind, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(province, city, date) DO UPDATE SET
			temperature_high = excluded.temperature_high,
			temperature_low = excluded.temperature_low,
			weather = excluded.weather,
			wind = excluded.wind,
			fetched_at = excluded.fetched_at
	`,
		rec.Province,
		rec.City,
		rec.Date,
		rec.TemperatureHigh,
		rec.TemperatureLow,
		rec.Weather,
		rec.Wind,
		rec.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert weather record %s/%s/%s", rec.Province, rec.City, rec.Date)
	}
	return nil
}

// UpsertAirQuality inserts or refreshes a reading by (province, city, date).
func (s *RecordStore) UpsertAirQuality(rec *AirQualityRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO air_quality_records (province, city, date, quality, aqi, aqi_rank, pm25, pm10, so2, no2, co, o3, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(province, city, date) DO UPDATE SET
			quality = excluded.quality,
			aqi = excluded.aqi,
			aqi_rank = excluded.aqi_rank,
			pm25 = excluded.pm25,
			pm10 = excluded.pm10,
			so2 = excluded.so2,
			no2 = excluded.no2,
			co = excluded.co,
			o3 = excluded.o3,
			fetched_at = excluded.fetched_at
	`,
		rec.Province,
		rec.City,
		rec.Date,
		rec.Quality,
		rec.AQI,
		rec.AQIRank,
		rec.PM25,
		rec.PM10,
		rec.SO2,
		rec.NO2,
		rec.CO,
		rec.O3,
		rec.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert air quality record %s/%s/%s", rec.Province, rec.City, rec.Date)
	}
	return nil
}

// ListNews returns the most recently fetched news records.
func (s *RecordStore) ListNews(limit int) ([]*NewsRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT link, title, source, publish_date, summary, content, popularity, fetched_at
		FROM news_records
		ORDER BY fetched_at DESC, link ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list news records")
	}
	defer rows.Close()

	var recs []*NewsRecord
	for rows.Next() {
		var rec NewsRecord
		var fetchedAt string
		if err := rows.Scan(&rec.Link, &rec.Title, &rec.Source, &rec.PublishDate,
			&rec.Summary, &rec.Content, &rec.Popularity, &fetchedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan news record")
		}
		if rec.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
			return nil, errors.Wrap(err, "failed to parse fetched_at")
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// ListWeather returns forecasts for a city, most recent date first.
func (s *RecordStore) ListWeather(province, city string, limit int) ([]*WeatherRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT province, city, date, temperature_high, temperature_low, weather, wind, fetched_at
		FROM weather_records
		WHERE province = ? AND city = ?
		ORDER BY date DESC
		LIMIT ?`, province, city, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list weather records for %s/%s", province, city)
	}
	defer rows.Close()

	var recs []*WeatherRecord
	for rows.Next() {
		var rec WeatherRecord
		var fetchedAt string
		if err := rows.Scan(&rec.Province, &rec.City, &rec.Date, &rec.TemperatureHigh,
			&rec.TemperatureLow, &rec.Weather, &rec.Wind, &fetchedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan weather record")
		}
		if rec.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
			return nil, errors.Wrap(err, "failed to parse fetched_at")
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// ListAirQuality returns readings for a city, most recent date first.
func (s *RecordStore) ListAirQuality(province, city string, limit int) ([]*AirQualityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT province, city, date, quality, aqi, aqi_rank, pm25, pm10, so2, no2, co, o3, fetched_at
		FROM air_quality_records
		WHERE province = ? AND city = ?
		ORDER BY date DESC
		LIMIT ?`, province, city, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list air quality records for %s/%s", province, city)
	}
	defer rows.Close()

	var recs []*AirQualityRecord
	for rows.Next() {
		var rec AirQualityRecord
		var fetchedAt string
		if err := rows.Scan(&rec.Province, &rec.City, &rec.Date, &rec.Quality, &rec.AQI,
			&rec.AQIRank, &rec.PM25, &rec.PM10, &rec.SO2, &rec.NO2, &rec.CO, &rec.O3,
			&fetchedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan air quality record")
		}
		if rec.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
			return nil, errors.Wrap(err, "failed to parse fetched_at")
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Counts returns record totals per table, for the stats command.
func (s *RecordStore) Counts() (map[string]int, error) {
	counts := make(map[string]int, 3)
	for _, table := range []string{"news_records", "weather_records", "air_quality_records"} {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", table)
		}
		counts[table] = n
	}
	return counts, nil
}
