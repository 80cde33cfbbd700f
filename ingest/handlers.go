package ingest

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/skeinworks/spindle/errors"
	"github.com/skeinworks/spindle/schedule"
)

// Stable work keys. Jobs persist these strings; changing one orphans every
// job that references it.
const (
	WorkKeyNews       = "ingest.news-spider"
	WorkKeyWeather    = "ingest.weather-spider"
	WorkKeyAirQuality = "ingest.aqi-spider"
)

// Rule sets for the supported page layouts.
var (
	newsRules = RuleSet{
		ItemSelector: "div.news-item",
		Fields: []ParseRule{
			{Field: "title", Selector: "a.title"},
			{Field: "link", Selector: "a.title", Attr: "href"},
			{Field: "source", Selector: "span.source"},
			{Field: "publish_date", Selector: "span.date"},
			{Field: "summary", Selector: "p.summary"},
			{Field: "popularity", Selector: "span.popularity"},
		},
	}

	weatherRules = RuleSet{
		ItemSelector: "table.forecast tbody tr",
		Fields: []ParseRule{
			{Field: "date", Selector: "td:nth-child(1)"},
			{Field: "weather", Selector: "td:nth-child(2)"},
			{Field: "temperature_high", Selector: "td:nth-child(3)"},
			{Field: "temperature_low", Selector: "td:nth-child(4)"},
			{Field: "wind", Selector: "td:nth-child(5)"},
		},
	}

	aqiRules = RuleSet{
		ItemSelector: "table.aqi tbody tr",
		Fields: []ParseRule{
			{Field: "date", Selector: "td:nth-child(1)"},
			{Field: "quality", Selector: "td:nth-child(2)"},
			{Field: "aqi", Selector: "td:nth-child(3)"},
			{Field: "aqi_rank", Selector: "td:nth-child(4)"},
			{Field: "pm25", Selector: "td:nth-child(5)"},
			{Field: "pm10", Selector: "td:nth-child(6)"},
			{Field: "so2", Selector: "td:nth-child(7)"},
			{Field: "no2", Selector: "td:nth-child(8)"},
			{Field: "co", Selector: "td:nth-child(9)"},
			{Field: "o3", Selector: "td:nth-child(10)"},
		},
	}
)

// Handlers bundles the spider work functions with their dependencies.
type Handlers struct {
	fetcher *Fetcher
	records *RecordStore
	logger  *zap.SugaredLogger
}

// NewHandlers creates the spider handlers.
func NewHandlers(fetcher *Fetcher, records *RecordStore, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{fetcher: fetcher, records: records, logger: logger}
}

// Register installs all spider work functions under their stable keys.
func (h *Handlers) Register(registry *schedule.Registry) {
	registry.Register(WorkKeyNews, h.runNews)
	registry.Register(WorkKeyWeather, h.runWeather)
	registry.Register(WorkKeyAirQuality, h.runAirQuality)
}

// runNews fetches each url in the specification and upserts one news record
// per parsed headline.
func (h *Handlers) runNews(ctx context.Context, job *schedule.Job, params map[string]any) error {
	urls, err := urlsParam(params)
	if err != nil {
		return err
	}
	source := stringParam(params, "source")

	var firstErr error
	stored := 0
	for _, url := range urls {
		items, err := h.fetchAndParse(ctx, url, newsRules)
		if err != nil {
			h.logger.Warnw("News fetch failed", "job_id", job.ID, "url", url, "error", err)
			firstErr = errors.CombineErrors(firstErr, err)
			continue
		}
		for _, item := range items {
			if item["link"] == "" {
				continue
			}
			rec := &NewsRecord{
				Link:        item["link"],
				Title:       item["title"],
				Source:      item["source"],
				PublishDate: item["publish_date"],
				Summary:     item["summary"],
				FetchedAt:   time.Now().UTC(),
			}
			if rec.Source == "" {
				rec.Source = source
			}
			rec.Popularity, _ = strconv.Atoi(item["popularity"])
			if err := h.records.UpsertNews(rec); err != nil {
				return err
			}
			stored++
		}
	}

	h.logger.Infow("News spider finished",
		"job_id", job.ID, "urls", len(urls), "records", stored)
	if stored == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

// runWeather fetches forecast pages and upserts one record per day row.
func (h *Handlers) runWeather(ctx context.Context, job *schedule.Job, params map[string]any) error {
	urls, err := urlsParam(params)
	if err != nil {
		return err
	}
	province := stringParam(params, "province")
	city := stringParam(params, "city")
	if province == "" || city == "" {
		return errors.New("weather spider requires province and city params")
	}

	var firstErr error
	stored := 0
	for _, url := range urls {
		items, err := h.fetchAndParse(ctx, url, weatherRules)
		if err != nil {
			h.logger.Warnw("Weather fetch failed", "job_id", job.ID, "url", url, "error", err)
			firstErr = errors.CombineErrors(firstErr, err)
			continue
		}
		for _, item := range items {
			if item["date"] == "" {
				continue
			}
			rec := &WeatherRecord{
				Province:        province,
				City:            city,
				Date:            item["date"],
				TemperatureHigh: item["temperature_high"],
				TemperatureLow:  item["temperature_low"],
				Weather:         item["weather"],
				Wind:            item["wind"],
				FetchedAt:       time.Now().UTC(),
			}
			if err := h.records.UpsertWeather(rec); err != nil {
				return err
			}
			stored++
		}
	}

	h.logger.Infow("Weather spider finished",
		"job_id", job.ID, "province", province, "city", city, "records", stored)
	if stored == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

// runAirQuality fetches air quality pages and upserts one record per day row.
func (h *Handlers) runAirQuality(ctx context.Context, job *schedule.Job, params map[string]any) error {
	urls, err := urlsParam(params)
	if err != nil {
		return err
	}
	province := stringParam(params, "province")
	city := stringParam(params, "city")
	if province == "" || city == "" {
		return errors.New("air quality spider requires province and city params")
	}

	var firstErr error
	stored := 0
	for _, url := range urls {
		items, err := h.fetchAndParse(ctx, url, aqiRules)
		if err != nil {
			h.logger.Warnw("Air quality fetch failed", "job_id", job.ID, "url", url, "error", err)
			firstErr = errors.CombineErrors(firstErr, err)
			continue
		}
		for _, item := range items {
			if item["date"] == "" {
				continue
			}
			rec := &AirQualityRecord{
				Province:  province,
				City:      city,
				Date:      item["date"],
				Quality:   item["quality"],
				AQI:       item["aqi"],
				AQIRank:   item["aqi_rank"],
				PM25:      item["pm25"],
				PM10:      item["pm10"],
				SO2:       item["so2"],
				NO2:       item["no2"],
				CO:        item["co"],
				O3:        item["o3"],
				FetchedAt: time.Now().UTC(),
			}
			if err := h.records.UpsertAirQuality(rec); err != nil {
				return err
			}
			stored++
		}
	}

	h.logger.Infow("Air quality spider finished",
		"job_id", job.ID, "province", province, "city", city, "records", stored)
	if stored == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

func (h *Handlers) fetchAndParse(ctx context.Context, url string, rules RuleSet) ([]map[string]string, error) {
	body, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return rules.Parse(body)
}

// urlsParam reads the url list from specification params. Accepts []string
// or the []any that json.Unmarshal produces.
func urlsParam(params map[string]any) ([]string, error) {
	raw, ok := params["urls"]
	if !ok {
		return nil, errors.New("specification params missing urls")
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		urls := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Newf("non-string url entry %v", item)
			}
			urls = append(urls, s)
		}
		return urls, nil
	default:
		return nil, errors.Newf("urls param has unexpected type %T", raw)
	}
}

func stringParam(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}
